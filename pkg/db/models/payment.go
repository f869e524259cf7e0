package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Payment records a gateway charge for an order.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	TransactionID   string              `gorm:"column:transaction_id;not null;uniqueIndex:ux_payments_transaction_id"`
	Method          string              `gorm:"column:method;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status_enum;not null;default:'pending'"`
	AmountCents     int64               `gorm:"column:amount_cents;not null"`
	GatewayName     string              `gorm:"column:gateway_name;not null"`
	ReferenceNumber *string             `gorm:"column:reference_number"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	FailureReason   *string             `gorm:"column:failure_reason"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
