package cron

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

const defaultPromotionBatch = 200

type WalletPromotionJobParams struct {
	Logger       *logger.Logger
	Ledger       ledger.Service
	ReturnWindow time.Duration
	BatchSize    int
}

// NewWalletPromotionJob moves earnings older than the return window from the
// pending bucket into the withdrawable balance.
func NewWalletPromotionJob(params WalletPromotionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Ledger == nil:
		return nil, errors.New("ledger service required")
	case params.ReturnWindow < 0:
		return nil, errors.New("return window must not be negative")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPromotionBatch
	}
	return &walletPromotionJob{
		logg:   params.Logger,
		ledger: params.Ledger,
		window: params.ReturnWindow,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type walletPromotionJob struct {
	logg   *logger.Logger
	ledger ledger.Service
	window time.Duration
	batch  int
	now    func() time.Time
}

func (j *walletPromotionJob) Name() string { return "wallet-promotion" }

func (j *walletPromotionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	var (
		errs                      error
		promoted, skipped, failed int
	)
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		candidates, err := j.ledger.ListPromotable(ctx, cutoff, j.batch)
		if err != nil {
			return multierr.Append(errs, err)
		}
		progress := 0
		for _, c := range candidates {
			_, err := j.ledger.Promote(ctx, c.VendorID, c.OrderID)
			switch {
			case err == nil:
				promoted++
				progress++
			case pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOperation):
				skipped++
				progress++
			default:
				failed++
				logCtx := j.logg.WithVendorID(ctx, c.VendorID.String())
				logCtx = j.logg.WithOrderID(logCtx, c.OrderID.String())
				j.logg.Error(logCtx, "earning promotion failed", err)
				errs = multierr.Append(errs, err)
			}
		}
		// A short page is the last one. A page where nothing moved would come
		// back unchanged, so stop there too.
		if len(candidates) < j.batch || progress == 0 {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"promoted": promoted,
		"skipped":  skipped,
		"failed":   failed,
	})
	j.logg.Info(logCtx, "wallet promotion pass complete")
	return errs
}
