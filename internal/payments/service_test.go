package payments

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	"github.com/angelmondragon/storefront-settlement/internal/commission"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
)

type paymentHarness struct {
	client *db.Client
	orders orders.Service
	ledger ledger.Service
	params ServiceParams
	svc    Service
}

func newPaymentHarness(t *testing.T) paymentHarness {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	catalogRepo := catalog.NewRepository(conn)
	gate, err := catalog.NewGate(catalogRepo)
	require.NoError(t, err)
	stock, err := catalog.NewStockReserver(catalogRepo)
	require.NoError(t, err)
	source, err := commission.NewSource(decimal.NewFromInt(10), logg)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:   ledger.NewRepository(conn),
		Tx:     client,
		Outbox: emitter,
		Logger: logg,
	})
	require.NoError(t, err)
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:       orderRepo,
		Tx:         client,
		Gate:       gate,
		Stock:      stock,
		Commission: source,
		Ledger:     ledgerSvc,
		Outbox:     emitter,
		Logger:     logg,
	})
	require.NoError(t, err)
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, "payments")
	require.NoError(t, err)

	params := ServiceParams{
		Repo:      NewRepository(conn),
		OrderRepo: orderRepo,
		Orders:    orderSvc,
		Stock:     stock,
		Ledger:    ledgerSvc,
		Outbox:    emitter,
		Tx:        client,
		Guard:     guard,
		Logger:    logg,
		Metrics:   metrics.NewSettlementMetrics(prometheus.NewRegistry()),
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return paymentHarness{client: client, orders: orderSvc, ledger: ledgerSvc, params: params, svc: svc}
}

func (h paymentHarness) placeOrder(t *testing.T, userID uuid.UUID, items ...orders.CreateOrderItem) *models.Order {
	t.Helper()
	order, err := h.orders.Create(context.Background(), orders.CreateOrderInput{UserID: userID, Items: items})
	require.NoError(t, err)
	return order
}

func (h paymentHarness) start(t *testing.T, order *models.Order) *models.Payment {
	t.Helper()
	payment, err := h.svc.StartPayment(context.Background(), StartPaymentInput{
		OrderID:       order.ID,
		UserID:        order.UserID,
		TransactionID: "txn-" + uuid.NewString(),
		Method:        "card",
		GatewayName:   "test-gateway",
	})
	require.NoError(t, err)
	return payment
}

func (h paymentHarness) reload(t *testing.T, payment *models.Payment) models.Payment {
	t.Helper()
	var out models.Payment
	require.NoError(t, h.client.DB().First(&out, "id = ?", payment.ID).Error)
	return out
}

func (h paymentHarness) pending(t *testing.T, vendorID uuid.UUID) int64 {
	t.Helper()
	wallet, err := h.ledger.Wallet(context.Background(), vendorID)
	require.NoError(t, err)
	return wallet.PendingBalanceCents
}

func TestCallbackSplitsEarningsByVendorCommission(t *testing.T) {
	h := newPaymentHarness(t)
	conn := h.client.DB()
	ten := decimal.NewFromInt(10)
	twenty := decimal.NewFromInt(20)
	vendorA := dbtest.SeedVendor(t, conn, &ten)
	vendorB := dbtest.SeedVendor(t, conn, &twenty)
	offerA := dbtest.SeedOffer(t, conn, vendorA.ID, 100000, 3)
	offerB := dbtest.SeedOffer(t, conn, vendorB.ID, 50000, 3)

	order := h.placeOrder(t, uuid.New(),
		orders.CreateOrderItem{OfferID: offerA.ID, Quantity: 1},
		orders.CreateOrderItem{OfferID: offerB.ID, Quantity: 1},
	)
	payment := h.start(t, order)
	require.Equal(t, order.TotalCents, payment.AmountCents)

	ref := "gw-ref-1"
	result, err := h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true, ReferenceNumber: &ref})
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, enums.PaymentStatusCompleted, result.Status)

	require.Equal(t, int64(90000), h.pending(t, vendorA.ID))
	require.Equal(t, int64(40000), h.pending(t, vendorB.ID))
	require.Equal(t, 2, dbtest.Stock(t, conn, offerA.ID))
	require.Equal(t, 2, dbtest.Stock(t, conn, offerB.ID))

	stored := h.reload(t, payment)
	require.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.PaidAt)
	require.Equal(t, ref, *stored.ReferenceNumber)

	paid, err := h.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, paid.Status)

	var earnings int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventVendorEarningCredited).Count(&earnings).Error)
	require.Equal(t, int64(2), earnings)

	for _, vendorID := range []uuid.UUID{vendorA.ID, vendorB.ID} {
		rec, err := h.ledger.Verify(context.Background(), vendorID)
		require.NoError(t, err)
		require.True(t, rec.Consistent)
	}
}

func TestCallbackReplayIsIdempotent(t *testing.T) {
	h := newPaymentHarness(t)
	conn := h.client.DB()
	vendor := dbtest.SeedVendor(t, conn, nil)
	offer := dbtest.SeedOffer(t, conn, vendor.ID, 10000, 5)
	order := h.placeOrder(t, uuid.New(), orders.CreateOrderItem{OfferID: offer.ID, Quantity: 2})
	payment := h.start(t, order)

	_, err := h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true})
	require.NoError(t, err)

	result, err := h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOperation))
	require.NotNil(t, result)
	require.False(t, result.Applied)

	// Without the redis fast path the database state answers the replay.
	params := h.params
	params.Guard = nil
	noGuard, err := NewService(params)
	require.NoError(t, err)
	_, err = noGuard.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOperation))

	require.Equal(t, int64(18000), h.pending(t, vendor.ID))
	require.Equal(t, 3, dbtest.Stock(t, conn, offer.ID))
	var rows int64
	require.NoError(t, conn.Model(&models.VendorTransaction{}).Where("vendor_id = ?", vendor.ID).Count(&rows).Error)
	require.Equal(t, int64(1), rows)
}

func TestCallbackOppositeOutcomeIsRejected(t *testing.T) {
	h := newPaymentHarness(t)
	conn := h.client.DB()
	vendor := dbtest.SeedVendor(t, conn, nil)
	offer := dbtest.SeedOffer(t, conn, vendor.ID, 10000, 5)
	order := h.placeOrder(t, uuid.New(), orders.CreateOrderItem{OfferID: offer.ID, Quantity: 1})
	payment := h.start(t, order)

	_, err := h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true})
	require.NoError(t, err)

	_, err = h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: false})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	require.Equal(t, enums.PaymentStatusCompleted, h.reload(t, payment).Status)
}

func TestCallbackStockShortageFailsPayment(t *testing.T) {
	h := newPaymentHarness(t)
	conn := h.client.DB()
	vendor := dbtest.SeedVendor(t, conn, nil)
	offer := dbtest.SeedOffer(t, conn, vendor.ID, 10000, 2)
	order := h.placeOrder(t, uuid.New(), orders.CreateOrderItem{OfferID: offer.ID, Quantity: 2})
	payment := h.start(t, order)

	require.NoError(t, conn.Model(&models.VendorOffer{}).Where("id = ?", offer.ID).Update("stock_quantity", 1).Error)

	_, err := h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStockUnavailable))

	stored := h.reload(t, payment)
	require.Equal(t, enums.PaymentStatusFailed, stored.Status)
	require.Equal(t, "stock_unavailable", *stored.FailureReason)
	require.Equal(t, 1, dbtest.Stock(t, conn, offer.ID))
	require.Zero(t, h.pending(t, vendor.ID))

	current, err := h.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaymentPending, current.Status)
}

func TestFailedCallbackAllowsRetry(t *testing.T) {
	h := newPaymentHarness(t)
	conn := h.client.DB()
	vendor := dbtest.SeedVendor(t, conn, nil)
	offer := dbtest.SeedOffer(t, conn, vendor.ID, 10000, 5)
	order := h.placeOrder(t, uuid.New(), orders.CreateOrderItem{OfferID: offer.ID, Quantity: 1})
	first := h.start(t, order)

	_, err := h.svc.StartPayment(context.Background(), StartPaymentInput{
		OrderID: order.ID, UserID: order.UserID, TransactionID: "txn-other", Method: "card", GatewayName: "test-gateway",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	reason := "card_declined"
	result, err := h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: first.TransactionID, Success: false, FailureReason: &reason})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, result.Status)
	require.Equal(t, reason, *h.reload(t, first).FailureReason)
	require.Equal(t, 5, dbtest.Stock(t, conn, offer.ID))

	second := h.start(t, order)
	_, err = h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: second.TransactionID, Success: true})
	require.NoError(t, err)
	require.Equal(t, int64(9000), h.pending(t, vendor.ID))
}

func TestStartPaymentChecksOwnershipAndStatus(t *testing.T) {
	h := newPaymentHarness(t)
	conn := h.client.DB()
	vendor := dbtest.SeedVendor(t, conn, nil)
	offer := dbtest.SeedOffer(t, conn, vendor.ID, 10000, 5)
	order := h.placeOrder(t, uuid.New(), orders.CreateOrderItem{OfferID: offer.ID, Quantity: 1})

	_, err := h.svc.StartPayment(context.Background(), StartPaymentInput{
		OrderID: order.ID, UserID: uuid.New(), TransactionID: "txn-x", Method: "card", GatewayName: "test-gateway",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	payment := h.start(t, order)
	_, err = h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true})
	require.NoError(t, err)

	_, err = h.svc.StartPayment(context.Background(), StartPaymentInput{
		OrderID: order.ID, UserID: order.UserID, TransactionID: "txn-y", Method: "card", GatewayName: "test-gateway",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: "unknown", Success: true})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCallbackAfterCancelIsRefused(t *testing.T) {
	h := newPaymentHarness(t)
	conn := h.client.DB()
	vendor := dbtest.SeedVendor(t, conn, nil)
	offer := dbtest.SeedOffer(t, conn, vendor.ID, 10000, 5)
	order := h.placeOrder(t, uuid.New(), orders.CreateOrderItem{OfferID: offer.ID, Quantity: 1})
	payment := h.start(t, order)

	var current models.Order
	require.NoError(t, conn.First(&current, "id = ?", order.ID).Error)
	_, err := h.orders.Cancel(context.Background(), orders.CancelInput{
		OrderID: order.ID, Version: current.Version, ActorID: order.UserID, ActorRole: enums.ActorRoleCustomer,
	})
	require.NoError(t, err)

	_, err = h.svc.HandleCallback(context.Background(), CallbackInput{TransactionID: payment.TransactionID, Success: true})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	require.Zero(t, h.pending(t, vendor.ID))
	require.Equal(t, 5, dbtest.Stock(t, conn, offer.ID))
}
