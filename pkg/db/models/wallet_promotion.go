package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletPromotion records a pending-to-balance reclassification for one
// order's earnings. It is not a ledger row and never changes the ledger sum.
type WalletPromotion struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	VendorID    uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_wallet_promotions_vendor_order,priority:1"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_wallet_promotions_vendor_order,priority:2"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	PromotedAt  time.Time `gorm:"column:promoted_at;not null"`
}

func (p *WalletPromotion) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
