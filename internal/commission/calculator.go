package commission

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
)

var hundred = decimal.NewFromInt(100)

// ValidPercent reports whether p is usable as a commission rate.
func ValidPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// ItemCommission returns totalCents*percent/100 rounded half-up to a whole cent.
func ItemCommission(totalCents int64, percent decimal.Decimal) int64 {
	if totalCents <= 0 || percent.IsZero() {
		return 0
	}
	amount := decimal.NewFromInt(totalCents).Mul(percent).Div(hundred).Round(0)
	return amount.IntPart()
}

// Line is one priced item with its frozen commission.
type Line struct {
	VendorID        uuid.UUID
	OrderItemID     uuid.UUID
	TotalCents      int64
	CommissionCents int64
}

// VendorEarning is a vendor's aggregated share of one order.
type VendorEarning struct {
	VendorID        uuid.UUID
	GrossCents      int64
	CommissionCents int64
	NetCents        int64
	Items           int
}

// EarningsByVendor sums lines per vendor. Output is ordered by vendor ID so
// ledger rows are written in a stable order across retries.
func EarningsByVendor(lines []Line) []VendorEarning {
	byVendor := make(map[uuid.UUID]*VendorEarning, len(lines))
	for _, line := range lines {
		agg, ok := byVendor[line.VendorID]
		if !ok {
			agg = &VendorEarning{VendorID: line.VendorID}
			byVendor[line.VendorID] = agg
		}
		agg.GrossCents += line.TotalCents
		agg.CommissionCents += line.CommissionCents
		agg.NetCents += line.TotalCents - line.CommissionCents
		agg.Items++
	}
	out := make([]VendorEarning, 0, len(byVendor))
	for _, agg := range byVendor {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].VendorID.String() < out[j].VendorID.String()
	})
	return out
}

// LinesFromItems adapts persisted order items.
func LinesFromItems(items []models.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			VendorID:        item.VendorID,
			OrderItemID:     item.ID,
			TotalCents:      item.TotalPriceCents,
			CommissionCents: item.CommissionAmountCents,
		})
	}
	return lines
}
