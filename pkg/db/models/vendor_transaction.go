package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// VendorTransaction is an append-only ledger row. Amount is signed.
type VendorTransaction struct {
	ID                       uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	VendorID                 uuid.UUID                   `gorm:"column:vendor_id;type:uuid;not null;index:ix_vendor_transactions_vendor_created,priority:1"`
	Type                     enums.VendorTransactionType `gorm:"column:type;type:vendor_transaction_type_enum;not null"`
	Bucket                   enums.WalletBucket          `gorm:"column:bucket;type:wallet_bucket_enum;not null"`
	AmountCents              int64                       `gorm:"column:amount_cents;not null"`
	BalanceAfterCents        int64                       `gorm:"column:balance_after_cents;not null"`
	PendingBalanceAfterCents int64                       `gorm:"column:pending_balance_after_cents;not null"`
	OrderID                  *uuid.UUID                  `gorm:"column:order_id;type:uuid;index"`
	OrderItemID              *uuid.UUID                  `gorm:"column:order_item_id;type:uuid"`
	PayoutID                 *uuid.UUID                  `gorm:"column:payout_id;type:uuid"`
	RefundID                 *uuid.UUID                  `gorm:"column:refund_id;type:uuid"`
	Description              *string                     `gorm:"column:description"`
	ReferenceNumber          *string                     `gorm:"column:reference_number"`
	IdempotencyKey           *string                     `gorm:"column:idempotency_key;uniqueIndex:ux_vendor_transactions_idempotency_key"`
	CreatedAt                time.Time                   `gorm:"column:created_at;autoCreateTime;index:ix_vendor_transactions_vendor_created,priority:2"`
}

func (t *VendorTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
