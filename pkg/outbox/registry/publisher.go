package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic name.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}
	topic := cfg.DomainTopic

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderCreated,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderCreatedEvent{} },
		},
		{
			EventType:      enums.EventOrderStatusChanged,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventPaymentCompleted,
			AggregateType:  enums.AggregatePayment,
			PayloadFactory: func() interface{} { return &payloads.PaymentStatusEvent{} },
		},
		{
			EventType:      enums.EventPaymentFailed,
			AggregateType:  enums.AggregatePayment,
			PayloadFactory: func() interface{} { return &payloads.PaymentStatusEvent{} },
		},
		{
			EventType:      enums.EventVendorEarningCredited,
			AggregateType:  enums.AggregateVendorWallet,
			PayloadFactory: func() interface{} { return &payloads.VendorEarningCreditedEvent{} },
		},
		{
			EventType:      enums.EventWalletPromoted,
			AggregateType:  enums.AggregateVendorWallet,
			PayloadFactory: func() interface{} { return &payloads.WalletPromotedEvent{} },
		},
		{
			EventType:      enums.EventPayoutRequested,
			AggregateType:  enums.AggregatePayout,
			PayloadFactory: func() interface{} { return &payloads.PayoutEvent{} },
		},
		{
			EventType:      enums.EventPayoutDecided,
			AggregateType:  enums.AggregatePayout,
			PayloadFactory: func() interface{} { return &payloads.PayoutEvent{} },
		},
		{
			EventType:      enums.EventPayoutCompleted,
			AggregateType:  enums.AggregatePayout,
			PayloadFactory: func() interface{} { return &payloads.PayoutEvent{} },
		},
		{
			EventType:      enums.EventReturnRequested,
			AggregateType:  enums.AggregateReturnRequest,
			PayloadFactory: func() interface{} { return &payloads.ReturnEvent{} },
		},
		{
			EventType:      enums.EventReturnDecided,
			AggregateType:  enums.AggregateReturnRequest,
			PayloadFactory: func() interface{} { return &payloads.ReturnEvent{} },
		},
		{
			EventType:      enums.EventRefundCompleted,
			AggregateType:  enums.AggregateRefund,
			PayloadFactory: func() interface{} { return &payloads.RefundEvent{} },
		},
		{
			EventType:      enums.EventRefundFailed,
			AggregateType:  enums.AggregateRefund,
			PayloadFactory: func() interface{} { return &payloads.RefundEvent{} },
		},
	} {
		desc.Topic = topic
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
