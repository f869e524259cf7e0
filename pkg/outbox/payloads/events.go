package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// OrderCreatedEvent signals a new order accepted by the catalog gate.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      uuid.UUID   `json:"user_id"`
	VendorIDs   []uuid.UUID `json:"vendor_ids"`
	TotalCents  int64       `json:"total_cents"`
}

// OrderStatusChangedEvent is emitted on every order state transition.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Version int64             `json:"version"`
}

// PaymentStatusEvent covers both completed and failed gateway callbacks.
type PaymentStatusEvent struct {
	PaymentID     uuid.UUID           `json:"payment_id"`
	OrderID       uuid.UUID           `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	Status        enums.PaymentStatus `json:"status"`
	AmountCents   int64               `json:"amount_cents"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// VendorEarningCreditedEvent reports one vendor's net share of an order.
type VendorEarningCreditedEvent struct {
	VendorID      uuid.UUID `json:"vendor_id"`
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
}

// WalletPromotedEvent reports pending earnings becoming withdrawable.
type WalletPromotedEvent struct {
	VendorID    uuid.UUID `json:"vendor_id"`
	OrderID     uuid.UUID `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	PromotedAt  time.Time `json:"promoted_at"`
}

// PayoutEvent covers payout request, decision and completion.
type PayoutEvent struct {
	PayoutID        uuid.UUID          `json:"payout_id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	AmountCents     int64              `json:"amount_cents"`
	Status          enums.PayoutStatus `json:"status"`
	ReferenceNumber string             `json:"reference_number,omitempty"`
}

// ReturnEvent covers return request and decision.
type ReturnEvent struct {
	ReturnID    uuid.UUID          `json:"return_id"`
	OrderID     uuid.UUID          `json:"order_id"`
	OrderItemID uuid.UUID          `json:"order_item_id"`
	Status      enums.ReturnStatus `json:"status"`
	RefundID    *uuid.UUID         `json:"refund_id,omitempty"`
}

// RefundEvent covers refund completion and failure.
type RefundEvent struct {
	RefundID      uuid.UUID          `json:"refund_id"`
	PaymentID     uuid.UUID          `json:"payment_id"`
	OrderItemID   uuid.UUID          `json:"order_item_id"`
	VendorID      uuid.UUID          `json:"vendor_id"`
	AmountCents   int64              `json:"amount_cents"`
	Status        enums.RefundStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
}
