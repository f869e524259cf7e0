package admin

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type promoteRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type promotionView struct {
	VendorID    uuid.UUID `json:"vendor_id"`
	OrderID     uuid.UUID `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	PromotedAt  time.Time `json:"promoted_at"`
}

func WalletDetail(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wallet, err := svc.Wallet(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger.WalletViewOf(wallet))
	}
}

// WalletPromote moves one order's pending earnings into the withdrawable
// balance ahead of the scheduled promotion.
func WalletPromote(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body promoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		promotion, err := svc.Promote(r.Context(), vendorID, body.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promotionView{
			VendorID:    promotion.VendorID,
			OrderID:     promotion.OrderID,
			AmountCents: promotion.AmountCents,
			PromotedAt:  promotion.PromotedAt,
		})
	}
}

// WalletVerify compares the cached wallet with its ledger rows.
func WalletVerify(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		recon, err := svc.Verify(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, recon)
	}
}
