package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/catalog"
	"github.com/angelmondragon/storefront-settlement/internal/commission"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/internal/payouts"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	pkgredis "github.com/angelmondragon/storefront-settlement/pkg/redis"
)

const paymentGuardScope = "payment-callback"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServicesParams carries the infrastructure the settlement services share.
// Idempotency is optional; without it payment callbacks rely on the database
// guards alone.
type ServicesParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *gorm.DB
	Tx          txRunner
	Idempotency pkgredis.IdempotencyStore
	Metrics     *metrics.SettlementMetrics
}

// Services is the wired settlement core.
type Services struct {
	OrderRepo orders.Repository
	Ledger    ledger.Service
	Orders    orders.Service
	Payments  payments.Service
	Payouts   payouts.Service
	Returns   returns.Service
	Outbox    *outbox.Repository
}

func NewServices(params ServicesParams) (*Services, error) {
	switch {
	case params.Config == nil:
		return nil, fmt.Errorf("config required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("database required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	cfg := params.Config
	conn := params.DB
	logg := params.Logger

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	catalogRepo := catalog.NewRepository(conn)
	gate, err := catalog.NewGate(catalogRepo)
	if err != nil {
		return nil, fmt.Errorf("catalog gate: %w", err)
	}
	stock, err := catalog.NewStockReserver(catalogRepo)
	if err != nil {
		return nil, fmt.Errorf("stock reserver: %w", err)
	}
	source, err := commission.NewSource(cfg.Settlement.DefaultCommissionPercent, logg)
	if err != nil {
		return nil, fmt.Errorf("commission source: %w", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		Tx:      params.Tx,
		Outbox:  emitter,
		Logger:  logg,
		Metrics: params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:       orderRepo,
		Tx:         params.Tx,
		Gate:       gate,
		Stock:      stock,
		Commission: source,
		Ledger:     ledgerSvc,
		Outbox:     emitter,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	var guard *payments.IdempotencyGuard
	if params.Idempotency != nil {
		guard, err = payments.NewIdempotencyGuard(params.Idempotency, paymentGuardTTL(cfg), paymentGuardScope)
		if err != nil {
			return nil, fmt.Errorf("payment guard: %w", err)
		}
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:      payments.NewRepository(conn),
		OrderRepo: orderRepo,
		Orders:    orderSvc,
		Stock:     stock,
		Ledger:    ledgerSvc,
		Outbox:    emitter,
		Tx:        params.Tx,
		Guard:     guard,
		Logger:    logg,
		Metrics:   params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:    payouts.NewRepository(conn),
		Ledger:  ledgerSvc,
		Outbox:  emitter,
		Tx:      params.Tx,
		Logger:  logg,
		Metrics: params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	returnSvc, err := returns.NewService(returns.ServiceParams{
		Repo:      returns.NewRepository(conn),
		OrderRepo: orderRepo,
		Orders:    orderSvc,
		Ledger:    ledgerSvc,
		Outbox:    emitter,
		Tx:        params.Tx,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("returns service: %w", err)
	}

	return &Services{
		OrderRepo: orderRepo,
		Ledger:    ledgerSvc,
		Orders:    orderSvc,
		Payments:  paymentSvc,
		Payouts:   payoutSvc,
		Returns:   returnSvc,
		Outbox:    outboxRepo,
	}, nil
}

func paymentGuardTTL(cfg *config.Config) time.Duration {
	if cfg.Settlement.PaymentIdempotencyTTL > 0 {
		return cfg.Settlement.PaymentIdempotencyTTL
	}
	return 72 * time.Hour
}
