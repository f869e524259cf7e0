package admin

import (
	"net/http"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type orderStatusRequest struct {
	Status  enums.OrderStatus `json:"status" validate:"required"`
	Version int64             `json:"version" validate:"required,min=1"`
}

// OrderStatus moves an order along the fulfilment path.
func OrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body orderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Transition(r.Context(), orders.TransitionInput{
			OrderID: orderID,
			To:      body.Status,
			Version: body.Version,
			ActorID: middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ViewOf(order))
	}
}

// OrderDetail returns any order.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.ViewOf(order))
	}
}
