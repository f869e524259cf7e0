package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/internal/payouts"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
)

func TestNewServicesRequiresInfrastructure(t *testing.T) {
	_, err := NewServices(ServicesParams{})
	require.Error(t, err)
}

func TestServicesSettleAnOrderEndToEnd(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	cfg := &config.Config{Settlement: config.SettlementConfig{
		DefaultCommissionPercent: decimal.NewFromInt(10),
		PaymentIdempotencyTTL:    time.Hour,
	}}
	svcs, err := NewServices(ServicesParams{
		Config:  cfg,
		Logger:  logger.New(logger.Options{ServiceName: "app-test", Output: io.Discard}),
		DB:      conn,
		Tx:      client,
		Metrics: metrics.NewSettlementMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	ctx := context.Background()

	vendor := dbtest.SeedVendor(t, conn, nil)
	offer := dbtest.SeedOffer(t, conn, vendor.ID, 1000, 5)
	customer := uuid.New()

	order, err := svcs.Orders.Create(ctx, orders.CreateOrderInput{
		UserID: customer,
		Items:  []orders.CreateOrderItem{{OfferID: offer.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2000), order.TotalCents)

	_, err = svcs.Payments.StartPayment(ctx, payments.StartPaymentInput{
		OrderID:       order.ID,
		UserID:        customer,
		TransactionID: "txn-e2e",
		Method:        "card",
		GatewayName:   "test",
	})
	require.NoError(t, err)

	result, err := svcs.Payments.HandleCallback(ctx, payments.CallbackInput{TransactionID: "txn-e2e", Success: true})
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, 3, dbtest.Stock(t, conn, offer.ID))

	wallet, err := svcs.Ledger.Wallet(ctx, vendor.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1800), wallet.PendingBalanceCents)
	require.Zero(t, wallet.BalanceCents)

	_, err = svcs.Ledger.Promote(ctx, vendor.ID, order.ID)
	require.NoError(t, err)

	payout, err := svcs.Payouts.Request(ctx, payouts.RequestPayoutInput{
		VendorID: vendor.ID, AmountCents: 1800, BankName: "b", AccountName: "a", AccountNumber: "1234",
	})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusPending, payout.Status)

	recon, err := svcs.Ledger.Verify(ctx, vendor.ID)
	require.NoError(t, err)
	require.True(t, recon.Consistent)
	require.Equal(t, int64(1800), recon.LedgerSumCents)
}
