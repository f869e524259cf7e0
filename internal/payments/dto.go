package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// StartPaymentInput opens a gateway payment attempt for an order.
type StartPaymentInput struct {
	OrderID       uuid.UUID
	UserID        uuid.UUID
	TransactionID string
	Method        string
	GatewayName   string
}

// CallbackInput is the normalized gateway notification.
type CallbackInput struct {
	TransactionID   string
	Success         bool
	ReferenceNumber *string
	FailureReason   *string
}

// CallbackResult describes what a callback did. Applied is false for
// replays of an outcome already recorded.
type CallbackResult struct {
	PaymentID uuid.UUID           `json:"payment_id"`
	OrderID   uuid.UUID           `json:"order_id"`
	Status    enums.PaymentStatus `json:"status"`
	Applied   bool                `json:"applied"`
}

// PaymentView is the API shape of a payment.
type PaymentView struct {
	ID            uuid.UUID           `json:"id"`
	OrderID       uuid.UUID           `json:"order_id"`
	TransactionID string              `json:"transaction_id"`
	Method        string              `json:"method"`
	GatewayName   string              `json:"gateway_name"`
	Status        enums.PaymentStatus `json:"status"`
	AmountCents   int64               `json:"amount_cents"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
}

func ViewOf(payment *models.Payment) PaymentView {
	return PaymentView{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		TransactionID: payment.TransactionID,
		Method:        payment.Method,
		GatewayName:   payment.GatewayName,
		Status:        payment.Status,
		AmountCents:   payment.AmountCents,
		PaidAt:        payment.PaidAt,
		FailureReason: payment.FailureReason,
	}
}

func outcomeOf(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
