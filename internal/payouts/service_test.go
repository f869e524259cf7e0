package payouts

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/ledger"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/pagination"
)

type payoutHarness struct {
	client *db.Client
	ledger ledger.Service
	svc    Service
}

func newPayoutHarness(t *testing.T) payoutHarness {
	t.Helper()
	client := dbtest.Open(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "payouts-test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	reg := prometheus.NewRegistry()
	m := metrics.NewSettlementMetrics(reg)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		Tx:      client,
		Outbox:  emitter,
		Logger:  logg,
		Metrics: m,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Ledger:  ledgerSvc,
		Outbox:  emitter,
		Tx:      client,
		Logger:  logg,
		Metrics: m,
	})
	require.NoError(t, err)
	return payoutHarness{client: client, ledger: ledgerSvc, svc: svc}
}

// fund puts amount into the vendor's withdrawable balance.
func (h payoutHarness) fund(t *testing.T, vendorID uuid.UUID, amount int64) {
	t.Helper()
	require.NoError(t, h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := h.ledger.Credit(context.Background(), tx, ledger.Entry{
			VendorID:    vendorID,
			Type:        enums.VendorTxnAdjustment,
			AmountCents: amount,
		})
		return err
	}))
}

func (h payoutHarness) approved(t *testing.T, vendorID uuid.UUID, amount int64) *models.Payout {
	t.Helper()
	payout, err := h.svc.Request(context.Background(), RequestPayoutInput{
		VendorID:      vendorID,
		RequestedBy:   uuid.New(),
		AmountCents:   amount,
		BankName:      "First Bank",
		AccountName:   "Vendor LLC",
		AccountNumber: "0012345678",
	})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusPending, payout.Status)
	decided, err := h.svc.Decide(context.Background(), DecideInput{ID: payout.ID, Approve: true, Version: payout.Version, AdminID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusProcessing, decided.Status)
	return decided
}

func TestRequestChecksAvailableBalance(t *testing.T) {
	h := newPayoutHarness(t)
	vendorID := uuid.New()
	h.fund(t, vendorID, 5000)

	_, err := h.svc.Request(context.Background(), RequestPayoutInput{
		VendorID: vendorID, AmountCents: 6000, BankName: "b", AccountName: "a", AccountNumber: "1",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))

	_, err = h.svc.Request(context.Background(), RequestPayoutInput{VendorID: vendorID, AmountCents: 100})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Request(context.Background(), RequestPayoutInput{
		VendorID: vendorID, AmountCents: 0, BankName: "b", AccountName: "a", AccountNumber: "1",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCompleteDebitsWallet(t *testing.T) {
	h := newPayoutHarness(t)
	vendorID := uuid.New()
	h.fund(t, vendorID, 100000)
	payout := h.approved(t, vendorID, 40000)

	done, err := h.svc.Complete(context.Background(), CompleteInput{ID: payout.ID, ReferenceNumber: " TRF-1 ", Version: payout.Version, AdminID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusCompleted, done.Status)
	require.Equal(t, "TRF-1", *done.ReferenceNumber)

	wallet, err := h.ledger.Wallet(context.Background(), vendorID)
	require.NoError(t, err)
	require.Equal(t, int64(60000), wallet.BalanceCents)
	require.Equal(t, int64(40000), wallet.TotalWithdrawnCents)

	rec, err := h.ledger.Verify(context.Background(), vendorID)
	require.NoError(t, err)
	require.True(t, rec.Consistent)
}

func TestCompleteWithoutReference(t *testing.T) {
	h := newPayoutHarness(t)
	vendorID := uuid.New()
	h.fund(t, vendorID, 50000)
	payout := h.approved(t, vendorID, 20000)

	done, err := h.svc.Complete(context.Background(), CompleteInput{ID: payout.ID, ReferenceNumber: "  ", Version: payout.Version, AdminID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusCompleted, done.Status)
	require.Nil(t, done.ReferenceNumber)

	stored, err := h.svc.Get(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Nil(t, stored.ReferenceNumber)

	var row models.VendorTransaction
	require.NoError(t, h.client.DB().Where("payout_id = ?", payout.ID).First(&row).Error)
	require.Equal(t, int64(-20000), row.AmountCents)
	require.Nil(t, row.ReferenceNumber)

	wallet, err := h.ledger.Wallet(context.Background(), vendorID)
	require.NoError(t, err)
	require.Equal(t, int64(30000), wallet.BalanceCents)
}

func TestCompleteHappensAtMostOnce(t *testing.T) {
	h := newPayoutHarness(t)
	vendorID := uuid.New()
	h.fund(t, vendorID, 100000)
	payout := h.approved(t, vendorID, 30000)

	done, err := h.svc.Complete(context.Background(), CompleteInput{ID: payout.ID, ReferenceNumber: "TRF-1", Version: payout.Version, AdminID: uuid.New()})
	require.NoError(t, err)

	_, err = h.svc.Complete(context.Background(), CompleteInput{ID: payout.ID, ReferenceNumber: "TRF-1", Version: done.Version, AdminID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	var rows int64
	require.NoError(t, h.client.DB().Model(&models.VendorTransaction{}).
		Where("vendor_id = ? AND type = ?", vendorID, enums.VendorTxnWithdrawal).Count(&rows).Error)
	require.Equal(t, int64(1), rows)

	wallet, err := h.ledger.Wallet(context.Background(), vendorID)
	require.NoError(t, err)
	require.Equal(t, int64(70000), wallet.BalanceCents)
}

func TestConcurrentCompletionsCannotOverdraw(t *testing.T) {
	h := newPayoutHarness(t)
	vendorID := uuid.New()
	h.fund(t, vendorID, 100000)
	first := h.approved(t, vendorID, 60000)
	second := h.approved(t, vendorID, 60000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, payout := range []*models.Payout{first, second} {
		wg.Add(1)
		go func(i int, payout *models.Payout) {
			defer wg.Done()
			_, errs[i] = h.svc.Complete(context.Background(), CompleteInput{
				ID: payout.ID, ReferenceNumber: "TRF", Version: payout.Version, AdminID: uuid.New(),
			})
		}(i, payout)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance), "unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)

	wallet, err := h.ledger.Wallet(context.Background(), vendorID)
	require.NoError(t, err)
	require.Equal(t, int64(40000), wallet.BalanceCents)

	statuses := map[enums.PayoutStatus]int{}
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		payout, err := h.svc.Get(context.Background(), id)
		require.NoError(t, err)
		statuses[payout.Status]++
	}
	require.Equal(t, 1, statuses[enums.PayoutStatusCompleted])
	require.Equal(t, 1, statuses[enums.PayoutStatusProcessing])
}

func TestDecideGuardsStatusAndVersion(t *testing.T) {
	h := newPayoutHarness(t)
	vendorID := uuid.New()
	h.fund(t, vendorID, 10000)
	payout, err := h.svc.Request(context.Background(), RequestPayoutInput{
		VendorID: vendorID, AmountCents: 5000, BankName: "b", AccountName: "a", AccountNumber: "99887766",
	})
	require.NoError(t, err)

	_, err = h.svc.Decide(context.Background(), DecideInput{ID: payout.ID, Approve: false, Version: payout.Version + 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrency))

	notes := "missing KYC"
	rejected, err := h.svc.Decide(context.Background(), DecideInput{ID: payout.ID, Approve: false, AdminNotes: &notes, Version: payout.Version, AdminID: uuid.New()})
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusRejected, rejected.Status)
	require.NotNil(t, rejected.ProcessedAt)

	_, err = h.svc.Decide(context.Background(), DecideInput{ID: payout.ID, Approve: true, Version: rejected.Version})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.svc.Complete(context.Background(), CompleteInput{ID: payout.ID, ReferenceNumber: "x", Version: rejected.Version})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	require.Equal(t, "****7766", ViewOf(rejected).AccountNumber)
}

func TestListForVendorPages(t *testing.T) {
	h := newPayoutHarness(t)
	vendorID := uuid.New()
	h.fund(t, vendorID, 10000)
	for i := 0; i < 3; i++ {
		_, err := h.svc.Request(context.Background(), RequestPayoutInput{
			VendorID: vendorID, AmountCents: 1000, BankName: "b", AccountName: "a", AccountNumber: "1",
		})
		require.NoError(t, err)
	}

	page, err := h.svc.ListForVendor(context.Background(), vendorID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Payouts, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := h.svc.ListForVendor(context.Background(), vendorID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Payouts, 1)
	require.Empty(t, rest.NextCursor)

	other, err := h.svc.ListForVendor(context.Background(), uuid.New(), pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, other.Payouts)
}
