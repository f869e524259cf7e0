package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Refund returns money for an approved return. One refund per order item.
type Refund struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID     uuid.UUID          `gorm:"column:payment_id;type:uuid;not null;index"`
	ReturnID      uuid.UUID          `gorm:"column:return_id;type:uuid;not null"`
	OrderItemID   uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ux_refunds_order_item_id"`
	AmountCents   int64              `gorm:"column:amount_cents;not null"`
	Status        enums.RefundStatus `gorm:"column:status;type:refund_status_enum;not null;default:'pending'"`
	TransactionID *string            `gorm:"column:transaction_id"`
	FailureReason *string            `gorm:"column:failure_reason"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt   *time.Time         `gorm:"column:processed_at"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
