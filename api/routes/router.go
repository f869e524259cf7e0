package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-settlement/api/controllers"
	admincontrollers "github.com/angelmondragon/storefront-settlement/api/controllers/admin"
	ordercontrollers "github.com/angelmondragon/storefront-settlement/api/controllers/orders"
	vendorcontrollers "github.com/angelmondragon/storefront-settlement/api/controllers/vendor"
	webhookcontrollers "github.com/angelmondragon/storefront-settlement/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/internal/payouts"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-settlement/pkg/redis"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	Orders      orders.Service
	Payments    payments.Service
	Payouts     payouts.Service
	Returns     returns.Service
	Ledger      ledger.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentCallback(deps.Payments, cfg.Webhook.PaymentSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, cfg.Settlement.HTTPIdempotencyTTL, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin))
			r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer)).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer)).Post("/{orderId}/payments", ordercontrollers.StartPayment(deps.Payments, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer)).Post("/{orderId}/items/{itemId}/returns", ordercontrollers.RequestReturn(deps.Returns, logg))
		})

		r.Route("/vendor", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor))
			r.Get("/wallet", vendorcontrollers.Wallet(deps.Ledger, logg))
			r.Get("/transactions", vendorcontrollers.Transactions(deps.Ledger, logg))
			r.Get("/payouts", vendorcontrollers.ListPayouts(deps.Payouts, logg))
			r.Post("/payouts", vendorcontrollers.RequestPayout(deps.Payouts, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.Get("/orders/{orderId}", admincontrollers.OrderDetail(deps.Orders, logg))
			r.Patch("/orders/{orderId}/status", admincontrollers.OrderStatus(deps.Orders, logg))

			r.Get("/payouts/{payoutId}", admincontrollers.PayoutDetail(deps.Payouts, logg))
			r.Post("/payouts/{payoutId}/decision", admincontrollers.PayoutDecision(deps.Payouts, logg))
			r.Post("/payouts/{payoutId}/complete", admincontrollers.PayoutComplete(deps.Payouts, logg))

			r.Get("/returns/{returnId}", admincontrollers.ReturnDetail(deps.Returns, logg))
			r.Post("/returns/{returnId}/decision", admincontrollers.ReturnDecision(deps.Returns, logg))
			r.Get("/refunds/{refundId}", admincontrollers.RefundDetail(deps.Returns, logg))
			r.Post("/refunds/{refundId}/process", admincontrollers.RefundProcess(deps.Returns, logg))
			r.Post("/refunds/{refundId}/complete", admincontrollers.RefundComplete(deps.Returns, logg))
			r.Post("/refunds/{refundId}/fail", admincontrollers.RefundFail(deps.Returns, logg))

			r.Get("/vendors/{vendorId}/wallet", admincontrollers.WalletDetail(deps.Ledger, logg))
			r.Post("/vendors/{vendorId}/wallet/promote", admincontrollers.WalletPromote(deps.Ledger, logg))
			r.Get("/vendors/{vendorId}/wallet/verify", admincontrollers.WalletVerify(deps.Ledger, logg))
		})
	})

	return r
}
