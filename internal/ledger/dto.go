package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// Entry describes one ledger movement. AmountCents is the unsigned magnitude;
// Credit and Debit apply the sign.
type Entry struct {
	VendorID        uuid.UUID
	Type            enums.VendorTransactionType
	AmountCents     int64
	OrderID         *uuid.UUID
	OrderItemID     *uuid.UUID
	PayoutID        *uuid.UUID
	RefundID        *uuid.UUID
	Description     *string
	ReferenceNumber *string
	IdempotencyKey  string
}

func (e Entry) validate() error {
	if e.VendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if !e.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger type %q", e.Type))
	}
	if e.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger amount must be positive")
	}
	return nil
}

// EarningKey is the idempotency key of an order's earning for a vendor.
func EarningKey(orderID, vendorID uuid.UUID) string {
	return fmt.Sprintf("earning:%s:%s", orderID, vendorID)
}

// WithdrawalKey is the idempotency key of a payout's debit.
func WithdrawalKey(payoutID uuid.UUID) string {
	return fmt.Sprintf("withdrawal:%s", payoutID)
}

// RefundKey is the idempotency key of a refund's debit.
func RefundKey(refundID uuid.UUID) string {
	return fmt.Sprintf("refund:%s", refundID)
}

// Reconciliation compares the cached wallet with the ledger sum.
type Reconciliation struct {
	VendorID       uuid.UUID `json:"vendor_id"`
	BalanceCents   int64     `json:"balance_cents"`
	PendingCents   int64     `json:"pending_balance_cents"`
	LedgerSumCents int64     `json:"ledger_sum_cents"`
	Consistent     bool      `json:"consistent"`
}

// TransactionView is the API shape of a ledger row.
type TransactionView struct {
	ID                       uuid.UUID                   `json:"id"`
	Type                     enums.VendorTransactionType `json:"type"`
	Bucket                   enums.WalletBucket          `json:"bucket"`
	AmountCents              int64                       `json:"amount_cents"`
	BalanceAfterCents        int64                       `json:"balance_after_cents"`
	PendingBalanceAfterCents int64                       `json:"pending_balance_after_cents"`
	OrderID                  *uuid.UUID                  `json:"order_id,omitempty"`
	PayoutID                 *uuid.UUID                  `json:"payout_id,omitempty"`
	RefundID                 *uuid.UUID                  `json:"refund_id,omitempty"`
	Description              *string                     `json:"description,omitempty"`
	ReferenceNumber          *string                     `json:"reference_number,omitempty"`
	CreatedAt                time.Time                   `json:"created_at"`
}

// TransactionList is one page of ledger rows, newest first.
type TransactionList struct {
	Transactions []TransactionView `json:"transactions"`
	NextCursor   string            `json:"next_cursor,omitempty"`
}

func viewOf(row models.VendorTransaction) TransactionView {
	return TransactionView{
		ID:                       row.ID,
		Type:                     row.Type,
		Bucket:                   row.Bucket,
		AmountCents:              row.AmountCents,
		BalanceAfterCents:        row.BalanceAfterCents,
		PendingBalanceAfterCents: row.PendingBalanceAfterCents,
		OrderID:                  row.OrderID,
		PayoutID:                 row.PayoutID,
		RefundID:                 row.RefundID,
		Description:              row.Description,
		ReferenceNumber:          row.ReferenceNumber,
		CreatedAt:                row.CreatedAt,
	}
}

// WalletView is the API shape of a vendor wallet.
type WalletView struct {
	VendorID            uuid.UUID `json:"vendor_id"`
	BalanceCents        int64     `json:"balance_cents"`
	PendingBalanceCents int64     `json:"pending_balance_cents"`
	TotalEarningsCents  int64     `json:"total_earnings_cents"`
	TotalWithdrawnCents int64     `json:"total_withdrawn_cents"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func WalletViewOf(wallet *models.VendorWallet) WalletView {
	return WalletView{
		VendorID:            wallet.VendorID,
		BalanceCents:        wallet.BalanceCents,
		PendingBalanceCents: wallet.PendingBalanceCents,
		TotalEarningsCents:  wallet.TotalEarningsCents,
		TotalWithdrawnCents: wallet.TotalWithdrawnCents,
		UpdatedAt:           wallet.UpdatedAt,
	}
}
