package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/internal/ledger"
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

// Service runs the vendor payout workflow: Pending, then Processing or
// Rejected, then Completed.
type Service interface {
	Request(ctx context.Context, input RequestPayoutInput) (*models.Payout, error)
	Decide(ctx context.Context, input DecideInput) (*models.Payout, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Payout, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*PayoutList, error)
}

type ServiceParams struct {
	Repo    Repository
	Ledger  ledger.Service
	Outbox  outbox.Emitter
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.SettlementMetrics
}

type service struct {
	repo    Repository
	ledger  ledger.Service
	outbox  outbox.Emitter
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payouts repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// Request records a withdrawal request. The balance check here is advisory;
// Complete is where funds actually leave the wallet.
func (s *service) Request(ctx context.Context, input RequestPayoutInput) (*models.Payout, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	wallet, err := s.ledger.Wallet(ctx, input.VendorID)
	if err != nil {
		return nil, err
	}
	if wallet.BalanceCents < input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "payout exceeds available balance").
			WithDetails(map[string]any{"available_cents": wallet.BalanceCents, "requested_cents": input.AmountCents})
	}

	payout := &models.Payout{
		VendorID:      input.VendorID,
		AmountCents:   input.AmountCents,
		Status:        enums.PayoutStatusPending,
		BankName:      strings.TrimSpace(input.BankName),
		AccountName:   strings.TrimSpace(input.AccountName),
		AccountNumber: strings.TrimSpace(input.AccountNumber),
		Version:       1,
		RequestedAt:   s.now().UTC(),
	}
	vendorID := input.VendorID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		return s.emit(ctx, tx, enums.EventPayoutRequested, payout, &outbox.ActorRef{
			UserID:   input.RequestedBy,
			VendorID: &vendorID,
			Role:     string(enums.ActorRoleVendor),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPayoutTransition(string(enums.PayoutStatusPending))
	s.logTransition(ctx, payout, "payout requested")
	return payout, nil
}

func (s *service) Decide(ctx context.Context, input DecideInput) (*models.Payout, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	to := enums.PayoutStatusRejected
	if input.Approve {
		to = enums.PayoutStatusProcessing
	}

	var payout *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = s.load(ctx, tx, input.ID)
		if err != nil {
			return err
		}
		if payout.Status != enums.PayoutStatusPending {
			return invalidTransition(payout.Status, to)
		}
		if err := checkVersion(payout, input.Version); err != nil {
			return err
		}

		now := s.now().UTC()
		updates := map[string]any{"status": to, "processed_by": input.AdminID}
		if input.AdminNotes != nil {
			updates["admin_notes"] = *input.AdminNotes
			payout.AdminNotes = input.AdminNotes
		}
		if to == enums.PayoutStatusRejected {
			updates["processed_at"] = now
			payout.ProcessedAt = &now
		}
		if err := s.transition(ctx, tx, payout, to, updates); err != nil {
			return err
		}
		adminID := input.AdminID
		payout.ProcessedBy = &adminID
		return s.emit(ctx, tx, enums.EventPayoutDecided, payout, adminActor(input.AdminID))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncPayoutTransition(string(to))
	s.logTransition(ctx, payout, "payout decided")
	return payout, nil
}

// Complete debits the wallet and closes the payout in one transaction. A
// wallet that can no longer cover the amount leaves the payout Processing.
func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Payout, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	// The transfer reference is optional; some payouts settle without one.
	var reference *string
	if ref := strings.TrimSpace(input.ReferenceNumber); ref != "" {
		reference = &ref
	}

	var payout *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		payout, err = s.load(ctx, tx, input.ID)
		if err != nil {
			return err
		}
		if payout.Status != enums.PayoutStatusProcessing {
			return invalidTransition(payout.Status, enums.PayoutStatusCompleted)
		}
		if err := checkVersion(payout, input.Version); err != nil {
			return err
		}

		now := s.now().UTC()
		adminID := input.AdminID
		updates := map[string]any{
			"status":       enums.PayoutStatusCompleted,
			"processed_at": now,
			"processed_by": adminID,
		}
		if reference != nil {
			updates["reference_number"] = *reference
		}
		if input.AdminNotes != nil {
			updates["admin_notes"] = *input.AdminNotes
			payout.AdminNotes = input.AdminNotes
		}
		if err := s.transition(ctx, tx, payout, enums.PayoutStatusCompleted, updates); err != nil {
			return err
		}
		payout.ReferenceNumber = reference
		payout.ProcessedAt = &now
		payout.ProcessedBy = &adminID

		payoutID := payout.ID
		description := "payout withdrawal"
		if _, err := s.ledger.Debit(ctx, tx, ledger.Entry{
			VendorID:        payout.VendorID,
			Type:            enums.VendorTxnWithdrawal,
			AmountCents:     payout.AmountCents,
			PayoutID:        &payoutID,
			Description:     &description,
			ReferenceNumber: reference,
			IdempotencyKey:  ledger.WithdrawalKey(payout.ID),
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventPayoutCompleted, payout, adminActor(input.AdminID))
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance) {
			logCtx := s.logg.WithVendorID(ctx, vendorOf(payout))
			s.logg.Warn(logCtx, "payout left processing: wallet balance too low")
		}
		return nil, err
	}
	s.metrics.IncPayoutTransition(string(enums.PayoutStatusCompleted))
	s.logTransition(ctx, payout, "payout completed")
	return payout, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*PayoutList, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListForVendor(ctx, vendorID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	out := &PayoutList{Payouts: make([]PayoutView, 0, len(rows))}
	for i := range rows {
		out.Payouts = append(out.Payouts, ViewOf(&rows[i]))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

// transition applies the guarded update. A miss is re-read to tell a status
// race apart from a stale version.
func (s *service) transition(ctx context.Context, tx *gorm.DB, payout *models.Payout, to enums.PayoutStatus, updates map[string]any) error {
	repo := s.repo.WithTx(tx)
	ok, err := repo.Transition(ctx, payout.ID, payout.Status, payout.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
	}
	if !ok {
		current, err := s.load(ctx, tx, payout.ID)
		if err != nil {
			return err
		}
		if current.Status != payout.Status {
			return invalidTransition(current.Status, to)
		}
		return pkgerrors.New(pkgerrors.CodeConcurrency, "payout changed concurrently").
			WithDetails(map[string]any{"payout_id": payout.ID, "current_version": current.Version})
	}
	payout.Status = to
	payout.Version++
	return nil
}

func (s *service) load(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.WithTx(tx).FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.Payout, actor *outbox.ActorRef) error {
	event := payloads.PayoutEvent{
		PayoutID:    payout.ID,
		VendorID:    payout.VendorID,
		AmountCents: payout.AmountCents,
		Status:      payout.Status,
	}
	if payout.ReferenceNumber != nil {
		event.ReferenceNumber = *payout.ReferenceNumber
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Actor:         actor,
		Data:          event,
	})
}

func (s *service) logTransition(ctx context.Context, payout *models.Payout, msg string) {
	logCtx := s.logg.WithVendorID(ctx, payout.VendorID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"payout_id":    payout.ID.String(),
		"status":       payout.Status,
		"amount_cents": payout.AmountCents,
		"version":      payout.Version,
	})
	s.logg.Info(logCtx, msg)
}

func checkVersion(payout *models.Payout, expected int64) error {
	if payout.Version != expected {
		return pkgerrors.New(pkgerrors.CodeConcurrency, "payout version is stale").
			WithDetails(map[string]any{"payout_id": payout.ID, "current_version": payout.Version, "expected_version": expected})
	}
	return nil
}

func invalidTransition(from, to enums.PayoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payout cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func adminActor(adminID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: adminID, Role: string(enums.ActorRoleAdmin)}
}

func vendorOf(payout *models.Payout) string {
	if payout == nil {
		return ""
	}
	return payout.VendorID.String()
}
