package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/api/middleware"
	"github.com/angelmondragon/storefront-settlement/api/responses"
	"github.com/angelmondragon/storefront-settlement/api/validators"
	internalorders "github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/internal/payments"
	"github.com/angelmondragon/storefront-settlement/internal/returns"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

type createOrderItem struct {
	OfferID   uuid.UUID  `json:"offer_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" validate:"required,min=1,max=10000"`
}

type createOrderRequest struct {
	Items             []createOrderItem `json:"items" validate:"required,min=1,dive"`
	ShippingCents     int64             `json:"shipping_cents" validate:"min=0"`
	DiscountCents     int64             `json:"discount_cents" validate:"min=0"`
	TaxCents          int64             `json:"tax_cents" validate:"min=0"`
	ShippingAddressID *uuid.UUID        `json:"shipping_address_id"`
}

// Create places an order for the calling customer.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalorders.CreateOrderInput{
			UserID:            middleware.UserIDFromContext(r.Context()),
			ShippingCents:     body.ShippingCents,
			DiscountCents:     body.DiscountCents,
			TaxCents:          body.TaxCents,
			ShippingAddressID: body.ShippingAddressID,
		}
		for _, item := range body.Items {
			input.Items = append(input.Items, internalorders.CreateOrderItem{
				OfferID:   item.OfferID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			})
		}
		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.ViewOf(order))
	}
}

// Detail returns an order to its owner or to an admin.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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
		if middleware.RoleFromContext(r.Context()) != enums.ActorRoleAdmin && order.UserID != middleware.UserIDFromContext(r.Context()) {
			// Hide other customers' orders entirely.
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		responses.WriteSuccess(w, internalorders.ViewOf(order))
	}
}

type startPaymentRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=128"`
	Method        string `json:"method" validate:"required,max=32"`
	GatewayName   string `json:"gateway_name" validate:"required,max=64"`
}

// StartPayment opens a gateway payment attempt for the caller's order.
func StartPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body startPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.StartPayment(r.Context(), payments.StartPaymentInput{
			OrderID:       orderID,
			UserID:        middleware.UserIDFromContext(r.Context()),
			TransactionID: body.TransactionID,
			Method:        body.Method,
			GatewayName:   body.GatewayName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payments.ViewOf(payment))
	}
}

type versionRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

// Cancel cancels an order for its owner, or for an admin.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body versionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID:   orderID,
			Version:   body.Version,
			ActorID:   middleware.UserIDFromContext(r.Context()),
			ActorRole: middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ViewOf(order))
	}
}

type returnRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RequestReturn opens a return for one item of the caller's order.
func RequestReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body returnRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ret, err := svc.RequestReturn(r.Context(), returns.RequestReturnInput{
			OrderID:     orderID,
			OrderItemID: itemID,
			Reason:      validators.SanitizeString(body.Reason, 500),
			UserID:      middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, returns.ReturnViewOf(ret))
	}
}
