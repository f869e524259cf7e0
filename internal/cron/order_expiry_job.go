package cron

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-settlement/internal/orders"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

const (
	defaultUnpaidOrderTTL = 48 * time.Hour
	defaultExpiryBatch    = 100
)

type staleOrderReader interface {
	ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

// OrderExpiryJobParams configure the unpaid order sweeper.
type OrderExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    orders.Service
	Reader    staleOrderReader
	TTL       time.Duration
	BatchSize int
}

// NewOrderExpiryJob cancels orders that sat unpaid longer than TTL. Open
// payment attempts on them are failed by the cancellation.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Orders == nil:
		return nil, errors.New("orders service required")
	case params.Reader == nil:
		return nil, errors.New("stale order reader required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUnpaidOrderTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		reader: params.Reader,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders orders.Service
	reader staleOrderReader
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var (
		errs             error
		expired, skipped int
	)
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		stale, err := j.reader.ListStaleUnpaid(ctx, cutoff, j.batch)
		if err != nil {
			return multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale orders"))
		}
		progress := 0
		for _, order := range stale {
			_, err := j.orders.Cancel(ctx, orders.CancelInput{
				OrderID:   order.ID,
				Version:   order.Version,
				ActorID:   uuid.Nil,
				ActorRole: enums.ActorRoleSystem,
			})
			switch {
			case err == nil:
				expired++
				progress++
			case pkgerrors.IsCode(err, pkgerrors.CodeConcurrency), pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
				// Paid or touched since it was listed.
				skipped++
				progress++
			default:
				j.logg.Error(j.logg.WithOrderID(ctx, order.ID.String()), "unpaid order expiry failed", err)
				errs = multierr.Append(errs, err)
			}
		}
		if len(stale) < j.batch || progress == 0 {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "unpaid order sweep complete")
	return errs
}
