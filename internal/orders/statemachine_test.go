package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

func TestCanTransitionFollowsLifecycle(t *testing.T) {
	all := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusPaymentPending,
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	}
	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderStatusPending, enums.OrderStatusPaymentPending}:    true,
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:         true,
		{enums.OrderStatusPaymentPending, enums.OrderStatusProcessing}: true,
		{enums.OrderStatusPaymentPending, enums.OrderStatusCancelled}:  true,
		{enums.OrderStatusProcessing, enums.OrderStatusShipped}:        true,
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled}:      true,
		{enums.OrderStatusProcessing, enums.OrderStatusRefunded}:       true,
		{enums.OrderStatusShipped, enums.OrderStatusDelivered}:         true,
		{enums.OrderStatusShipped, enums.OrderStatusRefunded}:          true,
		{enums.OrderStatusDelivered, enums.OrderStatusRefunded}:        true,
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, allowed[[2]enums.OrderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestInvalidTransitionCarriesCode(t *testing.T) {
	err := invalidTransition(enums.OrderStatusCancelled, enums.OrderStatusShipped)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}
