package cron

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

func TestLedgerReconciliationPassesConsistentWallets(t *testing.T) {
	h := newSettlementHarness(t)
	for i := 0; i < 3; i++ {
		h.earn(t, uuid.New(), int64(1000*(i+1)))
	}
	job, err := NewLedgerReconciliationJob(LedgerReconciliationJobParams{Logger: quietLogger(), Ledger: h.ledger, BatchSize: 2})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
}

func TestLedgerReconciliationReportsDrift(t *testing.T) {
	h := newSettlementHarness(t)
	healthy := uuid.New()
	drifted := uuid.New()
	h.earn(t, healthy, 5000)
	h.earn(t, drifted, 5000)

	require.NoError(t, h.client.DB().Model(&models.VendorWallet{}).
		Where("vendor_id = ?", drifted).
		Update("balance_cents", 700).Error)

	job, err := NewLedgerReconciliationJob(LedgerReconciliationJobParams{Logger: quietLogger(), Ledger: h.ledger, BatchSize: 1})
	require.NoError(t, err)
	err = job.Run(context.Background())
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLedgerInvariant))

	wallet, err := h.ledger.Wallet(context.Background(), drifted)
	require.NoError(t, err)
	require.Equal(t, int64(700), wallet.BalanceCents, "reconciliation must not rewrite wallets")
}
