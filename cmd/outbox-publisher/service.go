package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond

	parkReasonNonRetryable = "non_retryable"
	parkReasonMaxAttempts  = "max_attempts"
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// broker is the transport behind the publisher: Pub/Sub or Kafka.
type broker interface {
	Ping(context.Context) error
	Publisher(topic string) publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, outboundMessage) publishResult
}

// outboundMessage is the transport-neutral form of an outbox row. Key is the
// aggregate id so per-aggregate ordering is possible on brokers that support it.
type outboundMessage struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	Broker           broker
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.OutboxMetrics
}

// Service drains unpublished outbox rows to the broker. Each batch is claimed
// and marked inside one transaction so concurrent publishers skip locked rows.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	broker       broker
	registry     registryResolver
	metrics      *metrics.OutboxMetrics
	publisherFor publisherFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// outcome is what happened to a single event within a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("broker is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = params.Broker.Publisher
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		broker:       params.Broker,
		registry:     params.Registry,
		metrics:      params.Metrics,
		publisherFor: factory,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is cancelled. Empty batches sleep one interval; batch
// errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"broker":   s.broker.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", name), "dependency ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := s.pollInterval
	for ctx.Err() == nil {
		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = withJitter(backoff)
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
			wait = withJitter(s.pollInterval)
		}
		if err := sleepCtx(ctx, wait); err != nil {
			break
		}
	}
	s.logg.Info(ctx, "outbox publisher context canceled")
	return ctx.Err()
}

// processBatch reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}
		tally := map[outcome]int{}
		for _, event := range events {
			result, err := s.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			tally[result]++
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"batch_size": claimed,
			"published":  tally[outcomePublished],
			"retried":    tally[outcomeRetry],
			"parked":     tally[outcomeParked],
		}), "outbox batch processed")
		return nil
	})
	return claimed > 0, err
}

// dispatch publishes one event and records the result on its row. A returned
// error means the row could not be updated and aborts the batch.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeParked, s.park(ctx, tx, event, parkReasonNonRetryable, err, s.eventFields(event, nil))
	}

	fields := s.eventFields(event, resolved)
	pubErr := s.publishResolved(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.Published(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return outcomeParked, s.park(ctx, tx, event, parkReasonNonRetryable, pubErr, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return outcomeParked, s.park(ctx, tx, event, parkReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr), fields)
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", pubErr.Error()), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	s.metrics.Retried(string(event.EventType))
	return outcomeRetry, nil
}

// park stops retrying event. The row keeps its payload and last error so an
// operator can replay it by resetting attempt_count.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason string, cause error, fields map[string]any) error {
	fields["park_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event parked")

	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.Parked(string(event.EventType), reason)
	return nil
}

func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, messageFor(event, resolved.Envelope))
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func messageFor(event models.OutboxEvent, envelope outbox.PayloadEnvelope) outboundMessage {
	return outboundMessage{
		Key:  event.AggregateID.String(),
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
