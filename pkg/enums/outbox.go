package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregatePayment       OutboxAggregateType = "payment"
	AggregateVendorWallet  OutboxAggregateType = "vendor_wallet"
	AggregatePayout        OutboxAggregateType = "payout"
	AggregateReturnRequest OutboxAggregateType = "return_request"
	AggregateRefund        OutboxAggregateType = "refund"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateVendorWallet,
	AggregatePayout,
	AggregateReturnRequest,
	AggregateRefund,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventPaymentCompleted      OutboxEventType = "payment_completed"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventVendorEarningCredited OutboxEventType = "vendor_earning_credited"
	EventWalletPromoted        OutboxEventType = "wallet_promoted"
	EventPayoutRequested       OutboxEventType = "payout_requested"
	EventPayoutDecided         OutboxEventType = "payout_decided"
	EventPayoutCompleted       OutboxEventType = "payout_completed"
	EventReturnRequested       OutboxEventType = "return_requested"
	EventReturnDecided         OutboxEventType = "return_decided"
	EventRefundCompleted       OutboxEventType = "refund_completed"
	EventRefundFailed          OutboxEventType = "refund_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventVendorEarningCredited,
	EventWalletPromoted,
	EventPayoutRequested,
	EventPayoutDecided,
	EventPayoutCompleted,
	EventReturnRequested,
	EventReturnDecided,
	EventRefundCompleted,
	EventRefundFailed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
