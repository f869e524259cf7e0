package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/registry"
)

func paymentEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentCompleted,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func resolvedPayment() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "settlement-topic",
			AggregateType: enums.AggregatePayment,
		},
		Envelope: outbox.PayloadEnvelope{EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:  &payloads.PaymentStatusEvent{},
	}
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{paymentEvent(t, 0), paymentEvent(t, 0)}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedPayment()}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	require.Empty(t, repo.terminal)
}

func TestProcessBatchParksNonRetryable(t *testing.T) {
	event := paymentEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakePublisher{}, reg, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, repo.published)
}

func TestProcessBatchParksAfterMaxAttempts(t *testing.T) {
	event := paymentEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedPayment()}, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Empty(t, repo.failed)
}

func TestProcessBatchIdleWhenEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, nil)
	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestPublishCarriesEventAttributes(t *testing.T) {
	event := paymentEvent(t, 0)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, &fakeRepo{}, pub, &fakeRegistry{}, nil)

	require.NoError(t, service.publishResolved(context.Background(), event, resolvedPayment()))
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, string(enums.EventPaymentCompleted), msg.Attributes["event_type"])
	require.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.Equal(t, event.AggregateID.String(), msg.Key)
	require.JSONEq(t, string(event.Payload), string(msg.Data))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(500*time.Millisecond, 500*time.Millisecond, 10*time.Second))
	require.Equal(t, 10*time.Second, nextBackoff(8*time.Second, time.Second, 10*time.Second))
	require.Equal(t, time.Second, nextBackoff(0, 500*time.Millisecond, 10*time.Second))
	d := withJitter(time.Second)
	require.GreaterOrEqual(t, d, time.Second)
	require.Less(t, d, time.Second+jitterWindow)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		Broker:           fakeBroker{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(_ string) publisher { return pub },
		Metrics:          metrics.NewOutboxMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(tb, err)
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeBroker struct{}

func (fakeBroker) Ping(context.Context) error { return nil }

func (fakeBroker) Publisher(string) publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []outboundMessage
}

func (f *fakePublisher) Publish(_ context.Context, msg outboundMessage) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

func TestDispatchOutcomes(t *testing.T) {
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{err: errors.New("transient")}}}
	repo := &fakeRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedPayment()}, nil)

	got, err := service.dispatch(context.Background(), nil, paymentEvent(t, 0))
	require.NoError(t, err)
	require.Equal(t, outcomePublished, got)

	got, err = service.dispatch(context.Background(), nil, paymentEvent(t, 0))
	require.NoError(t, err)
	require.Equal(t, outcomeRetry, got)

	got, err = service.dispatch(context.Background(), nil, paymentEvent(t, 0))
	require.NoError(t, err)
	require.Equal(t, outcomeParked, got, "nil publish result parks the event")
	require.Len(t, repo.terminal, 1)
}

func TestKafkaPublisherRequiresTopic(t *testing.T) {
	require.Nil(t, kafkaBroker{}.Publisher(""))
	require.NotNil(t, kafkaBroker{}.Publisher("settlement-topic"))
}
