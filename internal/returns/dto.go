package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

type RequestReturnInput struct {
	OrderID     uuid.UUID
	OrderItemID uuid.UUID
	Reason      string
	UserID      uuid.UUID
}

type DecideReturnInput struct {
	ID         uuid.UUID
	Approve    bool
	AdminNotes *string
	Version    int64
	AdminID    uuid.UUID
}

type CompleteRefundInput struct {
	ID            uuid.UUID
	TransactionID string
	AdminID       uuid.UUID
}

type FailRefundInput struct {
	ID      uuid.UUID
	Reason  string
	AdminID uuid.UUID
}

// Decision is the outcome of DecideReturn. Refund is set on approval.
type Decision struct {
	Return *models.ReturnRequest
	Refund *models.Refund
}

type ReturnView struct {
	ID          uuid.UUID          `json:"id"`
	OrderID     uuid.UUID          `json:"order_id"`
	OrderItemID uuid.UUID          `json:"order_item_id"`
	Reason      string             `json:"reason"`
	Status      enums.ReturnStatus `json:"status"`
	AdminNotes  *string            `json:"admin_notes,omitempty"`
	Version     int64              `json:"version"`
	RequestedAt time.Time          `json:"requested_at"`
	ApprovedAt  *time.Time         `json:"approved_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

type RefundView struct {
	ID            uuid.UUID          `json:"id"`
	PaymentID     uuid.UUID          `json:"payment_id"`
	ReturnID      uuid.UUID          `json:"return_id"`
	OrderItemID   uuid.UUID          `json:"order_item_id"`
	AmountCents   int64              `json:"amount_cents"`
	Status        enums.RefundStatus `json:"status"`
	TransactionID *string            `json:"transaction_id,omitempty"`
	FailureReason *string            `json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time         `json:"processed_at,omitempty"`
}

func ReturnViewOf(ret *models.ReturnRequest) ReturnView {
	return ReturnView{
		ID:          ret.ID,
		OrderID:     ret.OrderID,
		OrderItemID: ret.OrderItemID,
		Reason:      ret.Reason,
		Status:      ret.Status,
		AdminNotes:  ret.AdminNotes,
		Version:     ret.Version,
		RequestedAt: ret.RequestedAt,
		ApprovedAt:  ret.ApprovedAt,
		CompletedAt: ret.CompletedAt,
	}
}

func RefundViewOf(refund *models.Refund) RefundView {
	return RefundView{
		ID:            refund.ID,
		PaymentID:     refund.PaymentID,
		ReturnID:      refund.ReturnID,
		OrderItemID:   refund.OrderItemID,
		AmountCents:   refund.AmountCents,
		Status:        refund.Status,
		TransactionID: refund.TransactionID,
		FailureReason: refund.FailureReason,
		ProcessedAt:   refund.ProcessedAt,
	}
}
