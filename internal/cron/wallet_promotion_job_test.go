package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
)

func newPromotionJob(t *testing.T, h settlementHarness, now time.Time, batch int) *walletPromotionJob {
	t.Helper()
	jobIface, err := NewWalletPromotionJob(WalletPromotionJobParams{
		Logger:       quietLogger(),
		Ledger:       h.ledger,
		ReturnWindow: 14 * 24 * time.Hour,
		BatchSize:    batch,
	})
	require.NoError(t, err)
	job := jobIface.(*walletPromotionJob)
	job.now = func() time.Time { return now }
	return job
}

func TestWalletPromotionWaitsForReturnWindow(t *testing.T) {
	h := newSettlementHarness(t)
	vendorID := uuid.New()
	h.earn(t, vendorID, 90000)

	early := newPromotionJob(t, h, time.Now().Add(24*time.Hour), 10)
	require.NoError(t, early.Run(context.Background()))
	wallet, err := h.ledger.Wallet(context.Background(), vendorID)
	require.NoError(t, err)
	require.Equal(t, int64(90000), wallet.PendingBalanceCents)
	require.Zero(t, wallet.BalanceCents)
}

func TestWalletPromotionMovesAgedEarnings(t *testing.T) {
	h := newSettlementHarness(t)
	vendorA := uuid.New()
	vendorB := uuid.New()
	h.earn(t, vendorA, 90000)
	h.earn(t, vendorA, 10000)
	h.earn(t, vendorB, 40000)

	// Batch of one forces the job through several pages.
	job := newPromotionJob(t, h, time.Now().Add(15*24*time.Hour), 1)
	require.NoError(t, job.Run(context.Background()))

	walletA, err := h.ledger.Wallet(context.Background(), vendorA)
	require.NoError(t, err)
	require.Equal(t, int64(100000), walletA.BalanceCents)
	require.Zero(t, walletA.PendingBalanceCents)
	walletB, err := h.ledger.Wallet(context.Background(), vendorB)
	require.NoError(t, err)
	require.Equal(t, int64(40000), walletB.BalanceCents)

	var promotions int64
	require.NoError(t, h.client.DB().Model(&models.WalletPromotion{}).Count(&promotions).Error)
	require.Equal(t, int64(3), promotions)

	// Nothing is left to promote on a second pass.
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, h.client.DB().Model(&models.WalletPromotion{}).Count(&promotions).Error)
	require.Equal(t, int64(3), promotions)

	rec, err := h.ledger.Verify(context.Background(), vendorA)
	require.NoError(t, err)
	require.True(t, rec.Consistent)
}
