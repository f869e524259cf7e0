package admin

import (
	"net/http"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type returnDecisionResponse struct {
	Return returns.ReturnView  `json:"return"`
	Refund *returns.RefundView `json:"refund,omitempty"`
}

type refundCompleteRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=128"`
}

type refundFailRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ReturnDecision approves or rejects a requested return. Approval opens a
// pending refund.
func ReturnDecision(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body decisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		decision, err := svc.DecideReturn(r.Context(), returns.DecideReturnInput{
			ID:         returnID,
			Approve:    *body.Approve,
			AdminNotes: body.AdminNotes,
			Version:    body.Version,
			AdminID:    middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := returnDecisionResponse{Return: returns.ReturnViewOf(decision.Return)}
		if decision.Refund != nil {
			view := returns.RefundViewOf(decision.Refund)
			out.Refund = &view
		}
		responses.WriteSuccess(w, out)
	}
}

func ReturnDetail(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ret, err := svc.GetReturn(r.Context(), returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returns.ReturnViewOf(ret))
	}
}

func RefundDetail(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refundID, err := validators.ParseUUIDParam(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refund, err := svc.GetRefund(r.Context(), refundID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returns.RefundViewOf(refund))
	}
}

// RefundProcess hands a pending refund to the gateway.
func RefundProcess(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refundID, err := validators.ParseUUIDParam(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refund, err := svc.ProcessRefund(r.Context(), refundID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returns.RefundViewOf(refund))
	}
}

// RefundComplete settles a refund and debits the vendor.
func RefundComplete(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refundID, err := validators.ParseUUIDParam(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body refundCompleteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refund, err := svc.CompleteRefund(r.Context(), returns.CompleteRefundInput{
			ID:            refundID,
			TransactionID: body.TransactionID,
			AdminID:       middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returns.RefundViewOf(refund))
	}
}

func RefundFail(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refundID, err := validators.ParseUUIDParam(r, "refundId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body refundFailRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refund, err := svc.FailRefund(r.Context(), returns.FailRefundInput{
			ID:      refundID,
			Reason:  validators.SanitizeString(body.Reason, 500),
			AdminID: middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returns.RefundViewOf(refund))
	}
}
