package cron

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	"github.com/angelmondragon/storefront-settlement/internal/commission"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
)

type settlementHarness struct {
	client    *db.Client
	ledger    ledger.Service
	orders    orders.Service
	orderRepo orders.Repository
}

func newSettlementHarness(t *testing.T) settlementHarness {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	logg := quietLogger()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:   ledger.NewRepository(conn),
		Tx:     client,
		Outbox: emitter,
		Logger: logg,
	})
	require.NoError(t, err)

	catalogRepo := catalog.NewRepository(conn)
	gate, err := catalog.NewGate(catalogRepo)
	require.NoError(t, err)
	stock, err := catalog.NewStockReserver(catalogRepo)
	require.NoError(t, err)
	source, err := commission.NewSource(decimal.NewFromInt(10), logg)
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
	return settlementHarness{client: client, ledger: ledgerSvc, orders: orderSvc, orderRepo: orderRepo}
}

// earn books a pending earning for vendorID on a fresh order id.
func (h settlementHarness) earn(t *testing.T, vendorID uuid.UUID, amount int64) uuid.UUID {
	t.Helper()
	orderID := uuid.New()
	require.NoError(t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := h.ledger.Credit(context.Background(), tx, ledger.Entry{
			VendorID:       vendorID,
			Type:           enums.VendorTxnEarning,
			AmountCents:    amount,
			OrderID:        &orderID,
			IdempotencyKey: ledger.EarningKey(orderID, vendorID),
		})
		return err
	}))
	return orderID
}
