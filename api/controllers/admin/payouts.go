package admin

import (
	"net/http"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/payouts"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type decisionRequest struct {
	Approve    *bool   `json:"approve" validate:"required"`
	AdminNotes *string `json:"admin_notes" validate:"omitempty,max=1000"`
	Version    int64   `json:"version" validate:"required,min=1"`
}

type payoutCompleteRequest struct {
	ReferenceNumber string  `json:"reference_number" validate:"omitempty,max=128"`
	AdminNotes      *string `json:"admin_notes" validate:"omitempty,max=1000"`
	Version         int64   `json:"version" validate:"required,min=1"`
}

func PayoutDetail(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payouts.ViewOf(payout))
	}
}

// PayoutDecision approves or rejects a pending payout.
func PayoutDecision(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body decisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Decide(r.Context(), payouts.DecideInput{
			ID:         payoutID,
			Approve:    *body.Approve,
			AdminNotes: body.AdminNotes,
			Version:    body.Version,
			AdminID:    middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payouts.ViewOf(payout))
	}
}

// PayoutComplete records the bank transfer and debits the vendor wallet.
func PayoutComplete(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body payoutCompleteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Complete(r.Context(), payouts.CompleteInput{
			ID:              payoutID,
			ReferenceNumber: body.ReferenceNumber,
			AdminNotes:      body.AdminNotes,
			Version:         body.Version,
			AdminID:         middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payouts.ViewOf(payout))
	}
}
