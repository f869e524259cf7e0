package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	"github.com/angelmondragon/storefront-settlement/internal/commission"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

const (
	failureStockUnavailable = "stock_unavailable"
	failureOrderNotPayable  = "order_not_payable"
	failureGatewayDeclined  = "gateway_declined"

	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service confirms gateway payments and books their effects.
type Service interface {
	StartPayment(ctx context.Context, input StartPaymentInput) (*models.Payment, error)
	HandleCallback(ctx context.Context, input CallbackInput) (*CallbackResult, error)
}

// ServiceParams wires the payment service. Guard and Metrics are optional.
type ServiceParams struct {
	Repo      Repository
	OrderRepo orders.Repository
	Orders    orders.Service
	Stock     catalog.StockReserver
	Ledger    ledger.Service
	Outbox    outbox.Emitter
	Tx        txRunner
	Guard     *IdempotencyGuard
	Logger    *logger.Logger
	Metrics   *metrics.SettlementMetrics
}

type service struct {
	repo      Repository
	orderRepo orders.Repository
	orders    orders.Service
	stock     catalog.StockReserver
	ledger    ledger.Service
	outbox    outbox.Emitter
	tx        txRunner
	guard     *IdempotencyGuard
	logg      *logger.Logger
	metrics   *metrics.SettlementMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.OrderRepo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock reserver required")
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
		stock:     params.Stock,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		tx:        params.Tx,
		guard:     params.Guard,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

// StartPayment opens a pending payment for the order total. A PaymentPending
// order accepts a new attempt once earlier attempts have failed.
func (s *service) StartPayment(ctx context.Context, input StartPaymentInput) (*models.Payment, error) {
	input.TransactionID = strings.TrimSpace(input.TransactionID)
	if input.OrderID == uuid.Nil || input.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and transaction id required")
	}
	if input.Method == "" || input.GatewayName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method and gateway required")
	}

	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadOrder(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		repo := s.repo.WithTx(tx)

		switch order.Status {
		case enums.OrderStatusPending:
			actor := &outbox.ActorRef{UserID: input.UserID, Role: string(enums.ActorRoleCustomer)}
			if err := s.orders.TransitionTx(ctx, tx, order, enums.OrderStatusPaymentPending, actor); err != nil {
				return err
			}
		case enums.OrderStatusPaymentPending:
			open, err := repo.HasPending(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open payments")
			}
			if open {
				return pkgerrors.New(pkgerrors.CodeConflict, "a payment attempt is already awaiting the gateway")
			}
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order in status %s cannot take a payment", order.Status))
		}

		payment = &models.Payment{
			OrderID:       order.ID,
			TransactionID: input.TransactionID,
			Method:        input.Method,
			GatewayName:   input.GatewayName,
			Status:        enums.PaymentStatusPending,
			AmountCents:   order.TotalCents,
		}
		if err := repo.Create(ctx, payment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction id already used")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, payment.OrderID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"payment_id": payment.ID.String(), "amount_cents": payment.AmountCents})
	s.logg.Info(logCtx, "payment started")
	return payment, nil
}

func (s *service) HandleCallback(ctx context.Context, input CallbackInput) (*CallbackResult, error) {
	input.TransactionID = strings.TrimSpace(input.TransactionID)
	if input.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"transaction_id": input.TransactionID, "success": input.Success})
	outcome := outcomeOf(input.Success)

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, input.TransactionID, outcome)
		if err != nil {
			s.logg.Warn(logCtx, "payment idempotency guard unavailable: "+err.Error())
		} else if seen {
			if result, err := s.replayed(ctx, input); result != nil || err != nil {
				s.record(result, err)
				return result, err
			}
		}
	}

	var (
		result *CallbackResult
		err    error
	)
	if input.Success {
		result, err = s.complete(ctx, input)
	} else {
		result, err = s.fail(ctx, input)
	}

	if err != nil && s.guard != nil && retryable(err) {
		if relErr := s.guard.Release(ctx, input.TransactionID, outcome); relErr != nil {
			s.logg.Warn(logCtx, "release payment idempotency key: "+relErr.Error())
		}
	}
	s.record(result, err)
	switch {
	case err == nil:
		s.logg.Info(logCtx, "payment callback applied")
	case pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOperation):
		s.logg.Debug(logCtx, "payment callback replayed")
	case retryable(err):
		s.logg.Error(logCtx, "payment callback failed", err)
	default:
		s.logg.Warn(logCtx, "payment callback rejected: "+err.Error())
	}
	return result, err
}

// replayed answers a callback the guard has seen before from the stored
// payment. It returns nil, nil when the payment is still pending, in which
// case the callback is processed normally.
func (s *service) replayed(ctx context.Context, input CallbackInput) (*CallbackResult, error) {
	payment, err := s.repo.FindByTransactionID(ctx, input.TransactionID)
	if err != nil {
		return nil, nil
	}
	if payment.Status == enums.PaymentStatusPending {
		return nil, nil
	}
	return terminalOutcome(payment, input.Success)
}

func (s *service) complete(ctx context.Context, input CallbackInput) (*CallbackResult, error) {
	var result *CallbackResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := s.loadPayment(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if payment.Status != enums.PaymentStatusPending {
			result, err = terminalOutcome(payment, true)
			return err
		}

		order, err := s.loadOrder(ctx, tx, payment.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPaymentPending {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order in status %s cannot be paid", order.Status)).
				WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
		}

		paidAt := s.now().UTC()
		ok, err := repo.MarkCompleted(ctx, payment.ID, paidAt, input.ReferenceNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConcurrency, "payment changed concurrently")
		}
		payment.Status = enums.PaymentStatusCompleted
		payment.PaidAt = &paidAt

		system := &outbox.ActorRef{Role: string(enums.ActorRoleSystem)}
		if err := s.orders.TransitionTx(ctx, tx, order, enums.OrderStatusProcessing, system); err != nil {
			return err
		}

		lines := make([]catalog.PurchaseLine, 0, len(order.Items))
		for _, item := range order.Items {
			lines = append(lines, catalog.PurchaseLine{OfferID: item.OfferID, Quantity: item.Quantity})
		}
		if err := s.stock.Reserve(ctx, tx, lines); err != nil {
			return err
		}

		if err := s.creditEarnings(ctx, tx, order); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCompleted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         system,
			Data: payloads.PaymentStatusEvent{
				PaymentID:     payment.ID,
				OrderID:       payment.OrderID,
				TransactionID: payment.TransactionID,
				Status:        payment.Status,
				AmountCents:   payment.AmountCents,
			},
		}); err != nil {
			return err
		}
		result = &CallbackResult{PaymentID: payment.ID, OrderID: payment.OrderID, Status: payment.Status, Applied: true}
		return nil
	})
	if err == nil {
		return result, nil
	}
	if result != nil {
		return result, err
	}

	var reason string
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeStockUnavailable):
		reason = failureStockUnavailable
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
		reason = failureOrderNotPayable
	default:
		return nil, err
	}
	if compErr := s.compensate(ctx, input.TransactionID, reason); compErr != nil {
		s.logg.Error(ctx, "mark payment failed after rejected confirmation", compErr)
	}
	return nil, err
}

func (s *service) creditEarnings(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	orderID := order.ID
	for _, earning := range commission.EarningsByVendor(commission.LinesFromItems(order.Items)) {
		if earning.NetCents <= 0 {
			continue
		}
		description := fmt.Sprintf("earning for order %s", order.OrderNumber)
		row, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			VendorID:       earning.VendorID,
			Type:           enums.VendorTxnEarning,
			AmountCents:    earning.NetCents,
			OrderID:        &orderID,
			Description:    &description,
			IdempotencyKey: ledger.EarningKey(order.ID, earning.VendorID),
		})
		if err != nil {
			return err
		}
		vendorID := earning.VendorID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorEarningCredited,
			AggregateType: enums.AggregateVendorWallet,
			AggregateID:   earning.VendorID,
			Actor:         &outbox.ActorRef{VendorID: &vendorID, Role: string(enums.ActorRoleSystem)},
			Data: payloads.VendorEarningCreditedEvent{
				VendorID:      earning.VendorID,
				OrderID:       order.ID,
				TransactionID: row.ID,
				AmountCents:   earning.NetCents,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) fail(ctx context.Context, input CallbackInput) (*CallbackResult, error) {
	reason := failureGatewayDeclined
	if input.FailureReason != nil && strings.TrimSpace(*input.FailureReason) != "" {
		reason = strings.TrimSpace(*input.FailureReason)
	}
	var result *CallbackResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := s.loadPayment(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		if payment.Status != enums.PaymentStatusPending {
			result, err = terminalOutcome(payment, false)
			return err
		}
		if err := s.markFailedTx(ctx, tx, payment, reason); err != nil {
			return err
		}
		result = &CallbackResult{PaymentID: payment.ID, OrderID: payment.OrderID, Status: payment.Status, Applied: true}
		return nil
	})
	return result, err
}

// compensate records a rejected confirmation in its own transaction after
// the confirmation rolled back.
func (s *service) compensate(ctx context.Context, transactionID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payment, err := s.loadPayment(ctx, s.repo.WithTx(tx), transactionID)
		if err != nil {
			return err
		}
		if payment.Status != enums.PaymentStatusPending {
			return nil
		}
		return s.markFailedTx(ctx, tx, payment, reason)
	})
}

func (s *service) markFailedTx(ctx context.Context, tx *gorm.DB, payment *models.Payment, reason string) error {
	ok, err := s.repo.WithTx(tx).MarkFailed(ctx, payment.ID, reason)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "payment changed concurrently")
	}
	payment.Status = enums.PaymentStatusFailed
	payment.FailureReason = &reason
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{Role: string(enums.ActorRoleSystem)},
		Data: payloads.PaymentStatusEvent{
			PaymentID:     payment.ID,
			OrderID:       payment.OrderID,
			TransactionID: payment.TransactionID,
			Status:        payment.Status,
			AmountCents:   payment.AmountCents,
			FailureReason: reason,
		},
	})
}

func (s *service) loadPayment(ctx context.Context, repo Repository, transactionID string) (*models.Payment, error) {
	payment, err := repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func (s *service) loadOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orderRepo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) record(result *CallbackResult, err error) {
	switch {
	case err == nil && result != nil && result.Status == enums.PaymentStatusCompleted:
		s.metrics.IncCallback(outcomeCompleted)
	case err == nil:
		s.metrics.IncCallback(outcomeFailed)
	case pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOperation):
		s.metrics.IncCallback(outcomeDuplicate)
	case retryable(err):
		s.metrics.IncCallback(outcomeError)
	default:
		s.metrics.IncCallback(outcomeRejected)
	}
}

// terminalOutcome maps a callback against a settled payment: the same
// outcome is a replay, the opposite one is refused.
func terminalOutcome(payment *models.Payment, success bool) (*CallbackResult, error) {
	result := &CallbackResult{PaymentID: payment.ID, OrderID: payment.OrderID, Status: payment.Status}
	same := (payment.Status == enums.PaymentStatusCompleted) == success
	if same {
		return result, pkgerrors.New(pkgerrors.CodeDuplicateOperation, "payment outcome already recorded").
			WithDetails(map[string]any{"payment_id": payment.ID, "status": payment.Status})
	}
	return result, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payment already %s", payment.Status)).
		WithDetails(map[string]any{"payment_id": payment.ID, "status": payment.Status})
}

func retryable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	return pkgerrors.MetadataFor(typed.Code()).Retryable
}
