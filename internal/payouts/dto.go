package payouts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// RequestPayoutInput is a vendor's withdrawal request.
type RequestPayoutInput struct {
	VendorID      uuid.UUID
	RequestedBy   uuid.UUID
	AmountCents   int64
	BankName      string
	AccountName   string
	AccountNumber string
}

func (in RequestPayoutInput) validate() error {
	if in.VendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "vendor identity missing")
	}
	if in.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	if strings.TrimSpace(in.BankName) == "" || strings.TrimSpace(in.AccountName) == "" || strings.TrimSpace(in.AccountNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "bank details required")
	}
	return nil
}

// DecideInput approves or rejects a pending payout.
type DecideInput struct {
	ID         uuid.UUID
	Approve    bool
	AdminNotes *string
	Version    int64
	AdminID    uuid.UUID
}

// CompleteInput records the bank transfer of an approved payout.
type CompleteInput struct {
	ID              uuid.UUID
	ReferenceNumber string
	AdminNotes      *string
	Version         int64
	AdminID         uuid.UUID
}

// PayoutView is the API shape of a payout. The account number is masked.
type PayoutView struct {
	ID              uuid.UUID          `json:"id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	AmountCents     int64              `json:"amount_cents"`
	Status          enums.PayoutStatus `json:"status"`
	BankName        string             `json:"bank_name"`
	AccountName     string             `json:"account_name"`
	AccountNumber   string             `json:"account_number"`
	ReferenceNumber *string            `json:"reference_number,omitempty"`
	AdminNotes      *string            `json:"admin_notes,omitempty"`
	Version         int64              `json:"version"`
	RequestedAt     time.Time          `json:"requested_at"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
}

// PayoutList is one page of payouts, newest first.
type PayoutList struct {
	Payouts    []PayoutView `json:"payouts"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func ViewOf(payout *models.Payout) PayoutView {
	return PayoutView{
		ID:              payout.ID,
		VendorID:        payout.VendorID,
		AmountCents:     payout.AmountCents,
		Status:          payout.Status,
		BankName:        payout.BankName,
		AccountName:     payout.AccountName,
		AccountNumber:   maskAccount(payout.AccountNumber),
		ReferenceNumber: payout.ReferenceNumber,
		AdminNotes:      payout.AdminNotes,
		Version:         payout.Version,
		RequestedAt:     payout.RequestedAt,
		ProcessedAt:     payout.ProcessedAt,
	}
}

func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
