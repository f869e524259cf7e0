package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
	"github.com/angelmondragon/storefront-settlement/pkg/metrics"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox"
	"github.com/angelmondragon/storefront-settlement/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-settlement/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of vendor wallet fields.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.VendorTransaction, error)
	Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.VendorTransaction, error)
	Promote(ctx context.Context, vendorID, orderID uuid.UUID) (*models.WalletPromotion, error)
	Verify(ctx context.Context, vendorID uuid.UUID) (*Reconciliation, error)
	Wallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error)
	ListTransactions(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*TransactionList, error)
	ListPromotable(ctx context.Context, earnedBefore time.Time, limit int) ([]PromotionCandidate, error)
	ListWalletVendorIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.SettlementMetrics
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
	now     func() time.Time
}

// NewService builds the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.VendorTransaction, error) {
	if !entry.Type.AllowsCredit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s cannot credit a wallet", entry.Type))
	}
	return s.apply(ctx, tx, entry, 1)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.VendorTransaction, error) {
	if !entry.Type.AllowsDebit() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s cannot debit a wallet", entry.Type))
	}
	return s.apply(ctx, tx, entry, -1)
}

// apply runs the five ledger steps against the caller's transaction: wallet
// upsert, conditional update, re-read, row insert, invariant check. Any error
// must roll the caller's transaction back.
func (s *service) apply(ctx context.Context, tx *gorm.DB, entry Entry, sign int64) (*models.VendorTransaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger writes require a transaction")
	}
	if err := entry.validate(); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	if entry.IdempotencyKey != "" {
		existing, err := repo.FindByIdempotencyKey(ctx, entry.IdempotencyKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ledger idempotency key")
		}
		if existing != nil {
			return existing, pkgerrors.New(pkgerrors.CodeDuplicateOperation, "ledger entry already recorded").
				WithDetails(map[string]any{"idempotency_key": entry.IdempotencyKey, "transaction_id": existing.ID})
		}
	}

	bucket, err := s.resolveBucket(ctx, repo, entry)
	if err != nil {
		return nil, err
	}
	amount := sign * entry.AmountCents
	delta := deltaFor(entry.Type, bucket, amount)

	if err := repo.EnsureWallet(ctx, entry.VendorID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure vendor wallet")
	}
	ok, err := repo.ApplyDelta(ctx, entry.VendorID, delta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor wallet")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient wallet funds").
			WithDetails(map[string]any{"vendor_id": entry.VendorID, "bucket": bucket, "amount_cents": entry.AmountCents})
	}

	wallet, err := repo.FindWallet(ctx, entry.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload vendor wallet")
	}

	row := &models.VendorTransaction{
		VendorID:                 entry.VendorID,
		Type:                     entry.Type,
		Bucket:                   bucket,
		AmountCents:              amount,
		BalanceAfterCents:        wallet.BalanceCents,
		PendingBalanceAfterCents: wallet.PendingBalanceCents,
		OrderID:                  entry.OrderID,
		OrderItemID:              entry.OrderItemID,
		PayoutID:                 entry.PayoutID,
		RefundID:                 entry.RefundID,
		Description:              entry.Description,
		ReferenceNumber:          entry.ReferenceNumber,
	}
	if entry.IdempotencyKey != "" {
		key := entry.IdempotencyKey
		row.IdempotencyKey = &key
	}
	if err := repo.InsertTransaction(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDuplicateOperation, err, "ledger entry already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger row")
	}

	if err := s.checkInvariant(ctx, repo, *wallet); err != nil {
		return nil, err
	}

	s.metrics.ObserveLedgerEntry(string(entry.Type), amount)
	logCtx := s.logg.WithVendorID(ctx, entry.VendorID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"ledger_type":   entry.Type,
		"bucket":        bucket,
		"amount_cents":  amount,
		"balance_after": wallet.BalanceCents,
		"pending_after": wallet.PendingBalanceCents,
	})
	s.logg.Info(logCtx, "ledger entry recorded")
	return row, nil
}

// resolveBucket picks the wallet field a row settles against. Refunds follow
// the earning: pending until the order is promoted, balance afterwards.
func (s *service) resolveBucket(ctx context.Context, repo Repository, entry Entry) (enums.WalletBucket, error) {
	switch entry.Type {
	case enums.VendorTxnEarning:
		return enums.WalletBucketPending, nil
	case enums.VendorTxnRefund:
		if entry.OrderID == nil {
			return enums.WalletBucketBalance, nil
		}
		promotion, err := repo.FindPromotion(ctx, entry.VendorID, *entry.OrderID)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet promotion")
		}
		if promotion == nil {
			return enums.WalletBucketPending, nil
		}
		return enums.WalletBucketBalance, nil
	default:
		return enums.WalletBucketBalance, nil
	}
}

func deltaFor(txnType enums.VendorTransactionType, bucket enums.WalletBucket, amount int64) walletDelta {
	var delta walletDelta
	if bucket == enums.WalletBucketPending {
		delta.Pending = amount
	} else {
		delta.Balance = amount
	}
	switch txnType {
	case enums.VendorTxnEarning, enums.VendorTxnRefund:
		delta.TotalEarnings = amount
	case enums.VendorTxnWithdrawal:
		delta.TotalWithdrawn = -amount
	}
	return delta
}

// checkInvariant compares the cached wallet against the ledger sum.
func (s *service) checkInvariant(ctx context.Context, repo Repository, wallet models.VendorWallet) error {
	sum, err := repo.SumAmounts(ctx, wallet.VendorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger rows")
	}
	if sum == wallet.HeldCents() {
		return nil
	}
	s.metrics.IncInvariantViolation()
	violation := pkgerrors.New(pkgerrors.CodeLedgerInvariant, "ledger consistency check failed").
		WithDetails(Reconciliation{
			VendorID:       wallet.VendorID,
			BalanceCents:   wallet.BalanceCents,
			PendingCents:   wallet.PendingBalanceCents,
			LedgerSumCents: sum,
		})
	logCtx := s.logg.WithVendorID(ctx, wallet.VendorID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"balance_cents":    wallet.BalanceCents,
		"pending_cents":    wallet.PendingBalanceCents,
		"ledger_sum_cents": sum,
	})
	s.logg.Error(logCtx, "vendor ledger invariant violated", violation)
	return violation
}

func (s *service) Verify(ctx context.Context, vendorID uuid.UUID) (*Reconciliation, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	var wallet models.VendorWallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindWalletShared(ctx, vendorID)
		switch {
		case err == nil:
			wallet = *found
		case isNotFound(err):
			wallet = models.VendorWallet{VendorID: vendorID}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor wallet")
		}
		return s.checkInvariant(ctx, repo, wallet)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			if recon, ok := typed.Details().(Reconciliation); ok {
				return &recon, err
			}
		}
		return nil, err
	}
	return &Reconciliation{
		VendorID:       vendorID,
		BalanceCents:   wallet.BalanceCents,
		PendingCents:   wallet.PendingBalanceCents,
		LedgerSumCents: wallet.HeldCents(),
		Consistent:     true,
	}, nil
}

// Wallet returns the vendor's wallet, or a zeroed view when none exists yet.
func (s *service) Wallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	wallet, err := s.repo.FindWallet(ctx, vendorID)
	if err != nil {
		if isNotFound(err) {
			return &models.VendorWallet{VendorID: vendorID}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor wallet")
	}
	return wallet, nil
}

func (s *service) ListTransactions(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}
	rows, next, err := s.repo.ListTransactions(ctx, vendorID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger rows")
	}
	out := &TransactionList{Transactions: make([]TransactionView, 0, len(rows))}
	for _, row := range rows {
		out.Transactions = append(out.Transactions, viewOf(row))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

func (s *service) ListPromotable(ctx context.Context, earnedBefore time.Time, limit int) ([]PromotionCandidate, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	rows, err := s.repo.ListPromotable(ctx, earnedBefore, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotable earnings")
	}
	return rows, nil
}

func (s *service) ListWalletVendorIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	ids, err := s.repo.ListWalletVendorIDs(ctx, after, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallets")
	}
	return ids, nil
}

// Promote moves an order's net pending earning into the withdrawable balance.
// It writes no ledger row, so balance+pending is unchanged.
func (s *service) Promote(ctx context.Context, vendorID, orderID uuid.UUID) (*models.WalletPromotion, error) {
	if vendorID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id and order id required")
	}
	var promotion *models.WalletPromotion
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindPromotion(ctx, vendorID, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet promotion")
		}
		if existing != nil {
			promotion = existing
			return pkgerrors.New(pkgerrors.CodeDuplicateOperation, "earning already promoted")
		}

		amount, rows, err := repo.SumPendingForOrder(ctx, vendorID, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending earning")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no pending earning for order")
		}
		if amount < 0 {
			return pkgerrors.New(pkgerrors.CodeLedgerInvariant, "pending earning for order is negative")
		}
		if amount > 0 {
			ok, err := repo.ApplyDelta(ctx, vendorID, walletDelta{Pending: -amount, Balance: amount})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reclassify pending earning")
			}
			if !ok {
				s.metrics.IncInvariantViolation()
				return pkgerrors.New(pkgerrors.CodeLedgerInvariant, "pending balance below order earning")
			}
		}

		now := s.now().UTC()
		promotion = &models.WalletPromotion{
			VendorID:    vendorID,
			OrderID:     orderID,
			AmountCents: amount,
			PromotedAt:  now,
		}
		if err := repo.InsertPromotion(ctx, promotion); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeDuplicateOperation, err, "earning already promoted")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet promotion")
		}

		wallet, err := repo.FindWallet(ctx, vendorID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload vendor wallet")
		}
		if err := s.checkInvariant(ctx, repo, *wallet); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletPromoted,
			AggregateType: enums.AggregateVendorWallet,
			AggregateID:   vendorID,
			Data: payloads.WalletPromotedEvent{
				VendorID:    vendorID,
				OrderID:     orderID,
				AmountCents: amount,
				PromotedAt:  now,
			},
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateOperation) {
			return promotion, err
		}
		return nil, err
	}

	logCtx := s.logg.WithVendorID(ctx, vendorID.String())
	logCtx = s.logg.WithOrderID(logCtx, orderID.String())
	logCtx = s.logg.WithField(logCtx, "amount_cents", promotion.AmountCents)
	s.logg.Info(logCtx, "pending earning promoted")
	return promotion, nil
}
