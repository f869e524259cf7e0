package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem is one purchased offer. Commission fields are frozen at order
// creation and never recomputed.
type OrderItem struct {
	ID                        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VendorID                  uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;index"`
	ProductID                 uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	OfferID                   uuid.UUID       `gorm:"column:offer_id;type:uuid;not null"`
	VariantID                 *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	Quantity                  int             `gorm:"column:quantity;not null"`
	UnitPriceCents            int64           `gorm:"column:unit_price_cents;not null"`
	TotalPriceCents           int64           `gorm:"column:total_price_cents;not null"`
	CommissionPercentSnapshot decimal.Decimal `gorm:"column:commission_percent_snapshot;type:numeric(5,2);not null"`
	CommissionAmountCents     int64           `gorm:"column:commission_amount_cents;not null"`
	CreatedAt                 time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// NetEarningCents is what the vendor keeps for this item.
func (i OrderItem) NetEarningCents() int64 {
	return i.TotalPriceCents - i.CommissionAmountCents
}
