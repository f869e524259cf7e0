package orders

import (
	"fmt"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:        {enums.OrderStatusPaymentPending, enums.OrderStatusCancelled},
	enums.OrderStatusPaymentPending: {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing:     {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:        {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
	enums.OrderStatusDelivered:      {enums.OrderStatusRefunded},
}

// CanTransition reports whether from -> to is an edge of the order lifecycle.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("order cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

// adminTargets are the statuses an operator may set directly. The rest are
// driven by payment, cancellation and refund workflows.
var adminTargets = map[enums.OrderStatus]bool{
	enums.OrderStatusShipped:   true,
	enums.OrderStatusDelivered: true,
}
