package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

var returnableOrderStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusProcessing: true,
	enums.OrderStatusShipped:    true,
	enums.OrderStatusDelivered:  true,
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs the return and refund workflow.
type Service interface {
	RequestReturn(ctx context.Context, input RequestReturnInput) (*models.ReturnRequest, error)
	DecideReturn(ctx context.Context, input DecideReturnInput) (*Decision, error)
	ProcessRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
	CompleteRefund(ctx context.Context, input CompleteRefundInput) (*models.Refund, error)
	FailRefund(ctx context.Context, input FailRefundInput) (*models.Refund, error)
	GetReturn(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error)
	GetRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
}

type ServiceParams struct {
	Repo      Repository
	OrderRepo orders.Repository
	Orders    orders.Service
	Ledger    ledger.Service
	Outbox    outbox.Emitter
	Tx        txRunner
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	orderRepo orders.Repository
	orders    orders.Service
	ledger    ledger.Service
	outbox    outbox.Emitter
	tx        txRunner
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("returns repository required")
	case params.OrderRepo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		orderRepo: params.OrderRepo,
		orders:    params.Orders,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		tx:        params.Tx,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

func (s *service) RequestReturn(ctx context.Context, input RequestReturnInput) (*models.ReturnRequest, error) {
	reason := strings.TrimSpace(input.Reason)
	if input.OrderItemID == uuid.Nil || reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item and reason required")
	}

	var ret *models.ReturnRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		item, err := orderRepo.FindItem(ctx, input.OrderItemID)
		if err != nil {
			return notFoundOr(err, "order item not found", "load order item")
		}
		if input.OrderID != uuid.Nil && item.OrderID != input.OrderID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		order, err := orderRepo.FindByID(ctx, item.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if !returnableOrderStatuses[order.Status] {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order in status %s cannot be returned", order.Status))
		}

		ret = &models.ReturnRequest{
			OrderID:     order.ID,
			OrderItemID: item.ID,
			RequestedBy: input.UserID,
			Reason:      reason,
			Status:      enums.ReturnStatusPending,
			Version:     1,
			RequestedAt: s.now().UTC(),
		}
		if err := s.repo.WithTx(tx).CreateReturn(ctx, ret); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order item already has a return")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return")
		}
		return s.emitReturn(ctx, tx, enums.EventReturnRequested, ret, nil,
			&outbox.ActorRef{UserID: input.UserID, Role: string(enums.ActorRoleCustomer)})
	})
	if err != nil {
		return nil, err
	}
	s.logReturn(ctx, ret, "return requested")
	return ret, nil
}

// DecideReturn approves or rejects a pending return. Approval opens exactly
// one refund for the item's net earning against the order's completed
// payment.
func (s *service) DecideReturn(ctx context.Context, input DecideReturnInput) (*Decision, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	to := enums.ReturnStatusRejected
	if input.Approve {
		to = enums.ReturnStatusApproved
	}

	decision := &Decision{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ret, err := s.loadReturn(ctx, repo, input.ID)
		if err != nil {
			return err
		}
		if ret.Status != enums.ReturnStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("return cannot move from %s to %s", ret.Status, to))
		}
		if ret.Version != input.Version {
			return staleReturn(ret, input.Version)
		}

		now := s.now().UTC()
		updates := map[string]any{"status": to}
		if input.AdminNotes != nil {
			updates["admin_notes"] = *input.AdminNotes
			ret.AdminNotes = input.AdminNotes
		}
		if input.Approve {
			updates["approved_at"] = now
			ret.ApprovedAt = &now
			refund, err := s.openRefund(ctx, tx, ret)
			if err != nil {
				return err
			}
			decision.Refund = refund
		}
		if err := s.transitionReturn(ctx, repo, ret, to, updates); err != nil {
			return err
		}
		decision.Return = ret

		var refundID *uuid.UUID
		if decision.Refund != nil {
			refundID = &decision.Refund.ID
		}
		return s.emitReturn(ctx, tx, enums.EventReturnDecided, ret, refundID, adminActor(input.AdminID))
	})
	if err != nil {
		return nil, err
	}
	s.logReturn(ctx, decision.Return, "return decided")
	return decision, nil
}

func (s *service) openRefund(ctx context.Context, tx *gorm.DB, ret *models.ReturnRequest) (*models.Refund, error) {
	repo := s.repo.WithTx(tx)
	item, err := s.orderRepo.WithTx(tx).FindItem(ctx, ret.OrderItemID)
	if err != nil {
		return nil, notFoundOr(err, "order item not found", "load order item")
	}
	payment, err := repo.FindCompletedPayment(ctx, ret.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has no completed payment to refund")
	}

	amount := item.NetEarningCents()
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item has no refundable earning")
	}
	refunded, err := repo.SumOpenRefunds(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum refunds")
	}
	if refunded+amount > payment.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "refunds would exceed the payment amount").
			WithDetails(map[string]any{"payment_cents": payment.AmountCents, "refunded_cents": refunded, "requested_cents": amount})
	}

	refund := &models.Refund{
		PaymentID:   payment.ID,
		ReturnID:    ret.ID,
		OrderItemID: item.ID,
		AmountCents: amount,
		Status:      enums.RefundStatusPending,
	}
	if err := repo.CreateRefund(ctx, refund); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order item already refunded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}
	return refund, nil
}

func (s *service) ProcessRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	if refundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	var refund *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		refund, err = s.loadRefund(ctx, repo, refundID)
		if err != nil {
			return err
		}
		return s.transitionRefund(ctx, repo, refund, enums.RefundStatusProcessing,
			[]enums.RefundStatus{enums.RefundStatusPending},
			map[string]any{"status": enums.RefundStatusProcessing})
	})
	if err != nil {
		return nil, err
	}
	s.logRefund(ctx, refund, "refund processing")
	return refund, nil
}

// CompleteRefund books the refund against the vendor ledger and closes the
// return. The order becomes Refunded once every item has a completed refund.
// A wallet that cannot cover the debit leaves the refund Processing.
func (s *service) CompleteRefund(ctx context.Context, input CompleteRefundInput) (*models.Refund, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	transactionID := strings.TrimSpace(input.TransactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway transaction id required")
	}

	var refund *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		orderRepo := s.orderRepo.WithTx(tx)
		var err error
		refund, err = s.loadRefund(ctx, repo, input.ID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := s.transitionRefund(ctx, repo, refund, enums.RefundStatusCompleted,
			[]enums.RefundStatus{enums.RefundStatusProcessing},
			map[string]any{"status": enums.RefundStatusCompleted, "transaction_id": transactionID, "processed_at": now}); err != nil {
			return err
		}
		refund.TransactionID = &transactionID
		refund.ProcessedAt = &now

		item, err := orderRepo.FindItem(ctx, refund.OrderItemID)
		if err != nil {
			return notFoundOr(err, "order item not found", "load order item")
		}
		orderID, itemID, refundID := item.OrderID, item.ID, refund.ID
		description := "refund for returned item"
		if _, err := s.ledger.Debit(ctx, tx, ledger.Entry{
			VendorID:       item.VendorID,
			Type:           enums.VendorTxnRefund,
			AmountCents:    refund.AmountCents,
			OrderID:        &orderID,
			OrderItemID:    &itemID,
			RefundID:       &refundID,
			Description:    &description,
			IdempotencyKey: ledger.RefundKey(refund.ID),
		}); err != nil {
			return err
		}

		ret, err := s.loadReturn(ctx, repo, refund.ReturnID)
		if err != nil {
			return err
		}
		if err := s.transitionReturn(ctx, repo, ret, enums.ReturnStatusCompleted,
			map[string]any{"status": enums.ReturnStatusCompleted, "completed_at": now}); err != nil {
			return err
		}

		order, err := orderRepo.FindByID(ctx, item.OrderID)
		if err != nil {
			return notFoundOr(err, "order not found", "load order")
		}
		completed, err := repo.CountCompletedRefunds(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count refunds")
		}
		if completed == int64(len(order.Items)) && order.Status != enums.OrderStatusRefunded {
			if err := s.orders.TransitionTx(ctx, tx, order, enums.OrderStatusRefunded, adminActor(input.AdminID)); err != nil {
				return err
			}
		}

		vendorID := item.VendorID
		return s.emitRefund(ctx, tx, enums.EventRefundCompleted, refund, vendorID, adminActor(input.AdminID))
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance) {
			s.logg.Warn(ctx, "refund left processing: vendor wallet cannot cover it")
		}
		return nil, err
	}
	s.logRefund(ctx, refund, "refund completed")
	return refund, nil
}

func (s *service) FailRefund(ctx context.Context, input FailRefundInput) (*models.Refund, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason required")
	}
	var refund *models.Refund
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		refund, err = s.loadRefund(ctx, repo, input.ID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.transitionRefund(ctx, repo, refund, enums.RefundStatusFailed,
			[]enums.RefundStatus{enums.RefundStatusPending, enums.RefundStatusProcessing},
			map[string]any{"status": enums.RefundStatusFailed, "failure_reason": reason, "processed_at": now}); err != nil {
			return err
		}
		refund.FailureReason = &reason
		refund.ProcessedAt = &now

		item, err := s.orderRepo.WithTx(tx).FindItem(ctx, refund.OrderItemID)
		if err != nil {
			return notFoundOr(err, "order item not found", "load order item")
		}
		return s.emitRefund(ctx, tx, enums.EventRefundFailed, refund, item.VendorID, adminActor(input.AdminID))
	})
	if err != nil {
		return nil, err
	}
	s.logRefund(ctx, refund, "refund failed")
	return refund, nil
}

func (s *service) GetReturn(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	return s.loadReturn(ctx, s.repo, returnID)
}

func (s *service) GetRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	if refundID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	return s.loadRefund(ctx, s.repo, refundID)
}

func (s *service) transitionReturn(ctx context.Context, repo Repository, ret *models.ReturnRequest, to enums.ReturnStatus, updates map[string]any) error {
	ok, err := repo.TransitionReturn(ctx, ret.ID, ret.Status, ret.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return")
	}
	if !ok {
		current, err := s.loadReturn(ctx, repo, ret.ID)
		if err != nil {
			return err
		}
		if current.Status != ret.Status {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("return cannot move from %s to %s", current.Status, to))
		}
		return staleReturn(current, ret.Version)
	}
	ret.Status = to
	ret.Version++
	return nil
}

func (s *service) transitionRefund(ctx context.Context, repo Repository, refund *models.Refund, to enums.RefundStatus, from []enums.RefundStatus, updates map[string]any) error {
	allowed := false
	for _, status := range from {
		if refund.Status == status {
			allowed = true
		}
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("refund cannot move from %s to %s", refund.Status, to))
	}
	ok, err := repo.TransitionRefund(ctx, refund.ID, from, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update refund")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "refund changed concurrently")
	}
	refund.Status = to
	return nil
}

func (s *service) loadReturn(ctx context.Context, repo Repository, returnID uuid.UUID) (*models.ReturnRequest, error) {
	ret, err := repo.FindReturn(ctx, returnID)
	if err != nil {
		return nil, notFoundOr(err, "return not found", "load return")
	}
	return ret, nil
}

func (s *service) loadRefund(ctx context.Context, repo Repository, refundID uuid.UUID) (*models.Refund, error) {
	refund, err := repo.FindRefund(ctx, refundID)
	if err != nil {
		return nil, notFoundOr(err, "refund not found", "load refund")
	}
	return refund, nil
}

func (s *service) emitReturn(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, ret *models.ReturnRequest, refundID *uuid.UUID, actor *outbox.ActorRef) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturnRequest,
		AggregateID:   ret.ID,
		Actor:         actor,
		Data: payloads.ReturnEvent{
			ReturnID:    ret.ID,
			OrderID:     ret.OrderID,
			OrderItemID: ret.OrderItemID,
			Status:      ret.Status,
			RefundID:    refundID,
		},
	})
}

func (s *service) emitRefund(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, refund *models.Refund, vendorID uuid.UUID, actor *outbox.ActorRef) error {
	event := payloads.RefundEvent{
		RefundID:    refund.ID,
		PaymentID:   refund.PaymentID,
		OrderItemID: refund.OrderItemID,
		VendorID:    vendorID,
		AmountCents: refund.AmountCents,
		Status:      refund.Status,
	}
	if refund.FailureReason != nil {
		event.FailureReason = *refund.FailureReason
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Actor:         actor,
		Data:          event,
	})
}

func (s *service) logReturn(ctx context.Context, ret *models.ReturnRequest, msg string) {
	logCtx := s.logg.WithOrderID(ctx, ret.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"return_id": ret.ID.String(), "status": ret.Status})
	s.logg.Info(logCtx, msg)
}

func (s *service) logRefund(ctx context.Context, refund *models.Refund, msg string) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_id":    refund.ID.String(),
		"status":       refund.Status,
		"amount_cents": refund.AmountCents,
	})
	s.logg.Info(logCtx, msg)
}

func staleReturn(ret *models.ReturnRequest, expected int64) error {
	return pkgerrors.New(pkgerrors.CodeConcurrency, "return version is stale").
		WithDetails(map[string]any{"return_id": ret.ID, "current_version": ret.Version, "expected_version": expected})
}

func notFoundOr(err error, notFound, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func adminActor(adminID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: adminID, Role: string(enums.ActorRoleAdmin)}
}
