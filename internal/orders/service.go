package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	"github.com/angelmondragon/storefront-settlement/internal/commission"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

const (
	paymentFailureOrderCancelled = "order_cancelled"

	// MaxItemQuantity bounds a single order line.
	MaxItemQuantity = 10000
)

var errAmountOverflow = pkgerrors.New(pkgerrors.CodeValidation, "order amount exceeds supported range")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns order creation and the order state machine.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	// TransitionTx moves order within the caller's transaction and updates
	// Status and Version in place. Payment and refund workflows use it.
	TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor *outbox.ActorRef) error
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Gate       catalog.Gate
	Stock      catalog.StockReserver
	Commission commission.Source
	Ledger     ledger.Service
	Outbox     outbox.Emitter
	Logger     *logger.Logger
}

type service struct {
	repo       Repository
	tx         txRunner
	gate       catalog.Gate
	stock      catalog.StockReserver
	commission commission.Source
	ledger     ledger.Service
	outbox     outbox.Emitter
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Gate == nil:
		return nil, fmt.Errorf("catalog gate required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock reserver required")
	case params.Commission == nil:
		return nil, fmt.Errorf("commission source required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		gate:       params.Gate,
		stock:      params.Stock,
		commission: params.Commission,
		ledger:     params.Ledger,
		outbox:     params.Outbox,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	if input.ShippingCents < 0 || input.DiscountCents < 0 || input.TaxCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping, discount and tax must not be negative")
	}

	lines := make([]catalog.PurchaseLine, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 || item.Quantity > MaxItemQuantity {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxItemQuantity)).
				WithDetails(map[string]any{"offer_id": item.OfferID, "quantity": item.Quantity})
		}
		lines = append(lines, catalog.PurchaseLine{OfferID: item.OfferID, Quantity: item.Quantity})
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		offers, err := s.gate.CheckPurchasable(ctx, tx, lines)
		if err != nil {
			return err
		}

		percents := map[uuid.UUID]decimal.Decimal{}
		items := make([]models.OrderItem, 0, len(input.Items))
		var subtotal int64
		for _, requested := range input.Items {
			offer := offers[requested.OfferID]
			pct, ok := percents[offer.VendorID]
			if !ok {
				pct, err = s.commission.PercentFor(ctx, tx, offer.VendorID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve commission")
				}
				percents[offer.VendorID] = pct
			}
			unit := offer.EffectivePriceCents()
			total, ok := mulCents(unit, int64(requested.Quantity))
			if !ok {
				return errAmountOverflow
			}
			if subtotal, ok = addCents(subtotal, total); !ok {
				return errAmountOverflow
			}
			items = append(items, models.OrderItem{
				VendorID:                  offer.VendorID,
				ProductID:                 offer.ProductID,
				OfferID:                   offer.ID,
				VariantID:                 requested.VariantID,
				Quantity:                  requested.Quantity,
				UnitPriceCents:            unit,
				TotalPriceCents:           total,
				CommissionPercentSnapshot: pct,
				CommissionAmountCents:     commission.ItemCommission(total, pct),
			})
		}

		grand, ok := addCents(subtotal, input.ShippingCents)
		if ok {
			grand, ok = addCents(grand, input.TaxCents)
		}
		if !ok {
			return errAmountOverflow
		}
		grand -= input.DiscountCents
		if grand < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order value")
		}

		order = &models.Order{
			OrderNumber:       s.orderNumber(),
			UserID:            input.UserID,
			Status:            enums.OrderStatusPending,
			SubtotalCents:     subtotal,
			ShippingCents:     input.ShippingCents,
			DiscountCents:     input.DiscountCents,
			TaxCents:          input.TaxCents,
			TotalCents:        grand,
			ShippingAddressID: input.ShippingAddressID,
			Version:           1,
			Items:             items,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number collision; retry")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.ActorRoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				VendorIDs:   vendorIDs(items),
				TotalCents:  order.TotalCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"order_number": order.OrderNumber, "total_cents": order.TotalCents, "items": len(order.Items)})
	s.logg.Info(logCtx, "order created")
	return order, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if !adminTargets[input.To] {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("status %s is set by its own workflow", input.To))
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.load(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if err := checkVersion(order, input.Version); err != nil {
			return err
		}
		actor := &outbox.ActorRef{UserID: input.ActorID, Role: string(enums.ActorRoleAdmin)}
		return s.TransitionTx(ctx, tx, order, input.To, actor)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel closes an order that has not shipped. A paid order gives its stock
// back and reverses each vendor's earning.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.load(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		if !input.ActorRole.Privileged() && order.UserID != input.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if err := checkVersion(order, input.Version); err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusCancelled) {
			return invalidTransition(order.Status, enums.OrderStatusCancelled)
		}

		repo := s.repo.WithTx(tx)
		switch order.Status {
		case enums.OrderStatusPaymentPending:
			if _, err := repo.FailPendingPayments(ctx, order.ID, paymentFailureOrderCancelled); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close pending payments")
			}
		case enums.OrderStatusProcessing:
			if err := s.unwindPaidOrder(ctx, tx, order); err != nil {
				return err
			}
		}

		actor := &outbox.ActorRef{UserID: input.ActorID, Role: string(input.ActorRole)}
		return s.TransitionTx(ctx, tx, order, enums.OrderStatusCancelled, actor)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) unwindPaidOrder(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	returns, err := s.repo.WithTx(tx).CountReturns(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check returns")
	}
	if returns > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order has returns; settle them through the refund workflow")
	}

	lines := make([]catalog.PurchaseLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, catalog.PurchaseLine{OfferID: item.OfferID, Quantity: item.Quantity})
	}
	if err := s.stock.Release(ctx, tx, lines); err != nil {
		return err
	}

	description := "order cancelled after payment"
	for _, earning := range commission.EarningsByVendor(commission.LinesFromItems(order.Items)) {
		if earning.NetCents <= 0 {
			continue
		}
		orderID := order.ID
		_, err := s.ledger.Debit(ctx, tx, ledger.Entry{
			VendorID:       earning.VendorID,
			Type:           enums.VendorTxnRefund,
			AmountCents:    earning.NetCents,
			OrderID:        &orderID,
			Description:    &description,
			IdempotencyKey: fmt.Sprintf("cancel:%s:%s", order.ID, earning.VendorID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor *outbox.ActorRef) error {
	from := order.Status
	if !CanTransition(from, to) {
		return invalidTransition(from, to)
	}
	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, from, order.Version, to)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "order changed concurrently").
			WithDetails(map[string]any{"order_id": order.ID, "expected_version": order.Version})
	}
	order.Status = to
	order.Version++

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID: order.ID,
			From:    from,
			To:      to,
			Version: order.Version,
		},
	}); err != nil {
		return err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from, "to": to, "version": order.Version})
	s.logg.Info(logCtx, "order status changed")
	return nil
}

func (s *service) load(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func checkVersion(order *models.Order, expected int64) error {
	if expected != order.Version {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "order version is stale").
			WithDetails(map[string]any{"order_id": order.ID, "current_version": order.Version, "expected_version": expected})
	}
	return nil
}

// orderNumber renders SO-YYYYMMDD-XXXXXXXX with a random suffix.
func (s *service) orderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("SO-%s-%s", s.now().UTC().Format("20060102"), suffix)
}

func vendorIDs(items []models.OrderItem) []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	out := []uuid.UUID{}
	for _, item := range items {
		if seen[item.VendorID] {
			continue
		}
		seen[item.VendorID] = true
		out = append(out, item.VendorID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// mulCents multiplies two non-negative amounts, reporting int64 overflow.
func mulCents(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// addCents adds two non-negative amounts, reporting int64 overflow.
func addCents(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
