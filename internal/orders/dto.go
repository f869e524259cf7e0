package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// CreateOrderInput is a customer checkout request.
type CreateOrderInput struct {
	UserID            uuid.UUID
	Items             []CreateOrderItem
	ShippingCents     int64
	DiscountCents     int64
	TaxCents          int64
	ShippingAddressID *uuid.UUID
}

// CreateOrderItem requests quantity units of one offer.
type CreateOrderItem struct {
	OfferID   uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// TransitionInput is an operator-driven status change.
type TransitionInput struct {
	OrderID uuid.UUID
	To      enums.OrderStatus
	Version int64
	ActorID uuid.UUID
}

// CancelInput cancels an order on behalf of its owner or an operator.
type CancelInput struct {
	OrderID   uuid.UUID
	Version   int64
	ActorID   uuid.UUID
	ActorRole enums.ActorRole
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID                uuid.UUID         `json:"id"`
	OrderNumber       string            `json:"order_number"`
	UserID            uuid.UUID         `json:"user_id"`
	Status            enums.OrderStatus `json:"status"`
	SubtotalCents     int64             `json:"subtotal_cents"`
	ShippingCents     int64             `json:"shipping_cents"`
	DiscountCents     int64             `json:"discount_cents"`
	TaxCents          int64             `json:"tax_cents"`
	TotalCents        int64             `json:"total_cents"`
	ShippingAddressID *uuid.UUID        `json:"shipping_address_id,omitempty"`
	Version           int64             `json:"version"`
	Items             []OrderItemView   `json:"items"`
	CreatedAt         time.Time         `json:"created_at"`
}

// OrderItemView is the API shape of an order item.
type OrderItemView struct {
	ID                    uuid.UUID       `json:"id"`
	VendorID              uuid.UUID       `json:"vendor_id"`
	ProductID             uuid.UUID       `json:"product_id"`
	OfferID               uuid.UUID       `json:"offer_id"`
	VariantID             *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity              int             `json:"quantity"`
	UnitPriceCents        int64           `json:"unit_price_cents"`
	TotalPriceCents       int64           `json:"total_price_cents"`
	CommissionPercent     decimal.Decimal `json:"commission_percent"`
	CommissionAmountCents int64           `json:"commission_amount_cents"`
}

// ViewOf maps a persisted order to its API shape.
func ViewOf(order *models.Order) OrderView {
	view := OrderView{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		UserID:            order.UserID,
		Status:            order.Status,
		SubtotalCents:     order.SubtotalCents,
		ShippingCents:     order.ShippingCents,
		DiscountCents:     order.DiscountCents,
		TaxCents:          order.TaxCents,
		TotalCents:        order.TotalCents,
		ShippingAddressID: order.ShippingAddressID,
		Version:           order.Version,
		CreatedAt:         order.CreatedAt,
		Items:             make([]OrderItemView, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ID:                    item.ID,
			VendorID:              item.VendorID,
			ProductID:             item.ProductID,
			OfferID:               item.OfferID,
			VariantID:             item.VariantID,
			Quantity:              item.Quantity,
			UnitPriceCents:        item.UnitPriceCents,
			TotalPriceCents:       item.TotalPriceCents,
			CommissionPercent:     item.CommissionPercentSnapshot,
			CommissionAmountCents: item.CommissionAmountCents,
		})
	}
	return view
}
