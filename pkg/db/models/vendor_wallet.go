package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorWallet is the cached projection of a vendor's ledger. Only the ledger
// package writes these fields.
type VendorWallet struct {
	VendorID            uuid.UUID `gorm:"column:vendor_id;type:uuid;primaryKey"`
	BalanceCents        int64     `gorm:"column:balance_cents;not null;default:0;check:chk_vendor_wallets_balance_non_negative,balance_cents >= 0"`
	PendingBalanceCents int64     `gorm:"column:pending_balance_cents;not null;default:0;check:chk_vendor_wallets_pending_non_negative,pending_balance_cents >= 0"`
	TotalEarningsCents  int64     `gorm:"column:total_earnings_cents;not null;default:0"`
	TotalWithdrawnCents int64     `gorm:"column:total_withdrawn_cents;not null;default:0"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HeldCents is the sum the ledger rows must add up to.
func (w VendorWallet) HeldCents() int64 {
	return w.BalanceCents + w.PendingBalanceCents
}
