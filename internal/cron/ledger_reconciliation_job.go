package cron

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

const defaultReconcileBatch = 500

type LedgerReconciliationJobParams struct {
	Logger    *logger.Logger
	Ledger    ledger.Service
	BatchSize int
}

// NewLedgerReconciliationJob checks balance+pending against the ledger sum for
// every wallet. It only reports; wallets are never rewritten.
func NewLedgerReconciliationJob(params LedgerReconciliationJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Ledger == nil:
		return nil, errors.New("ledger service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &ledgerReconciliationJob{logg: params.Logger, ledger: params.Ledger, batch: batch}, nil
}

type ledgerReconciliationJob struct {
	logg   *logger.Logger
	ledger ledger.Service
	batch  int
}

func (j *ledgerReconciliationJob) Name() string { return "ledger-reconciliation" }

func (j *ledgerReconciliationJob) Run(ctx context.Context) error {
	var (
		errs       error
		after      uuid.UUID
		checked    int
		mismatched int
	)
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		ids, err := j.ledger.ListWalletVendorIDs(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, err)
		}
		for _, vendorID := range ids {
			checked++
			if _, err := j.ledger.Verify(ctx, vendorID); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeLedgerInvariant) {
					mismatched++
				}
				errs = multierr.Append(errs, err)
			}
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"wallets_checked":    checked,
		"wallets_mismatched": mismatched,
	})
	if mismatched > 0 {
		j.logg.Warn(logCtx, "ledger reconciliation found mismatched wallets")
	} else {
		j.logg.Info(logCtx, "ledger reconciliation complete")
	}
	return errs
}
