package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Payout is a vendor withdrawal request moderated by an admin.
type Payout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:payout_status_enum;not null;default:'pending'"`
	BankName        string             `gorm:"column:bank_name;not null"`
	AccountName     string             `gorm:"column:account_name;not null"`
	AccountNumber   string             `gorm:"column:account_number;not null"`
	ReferenceNumber *string            `gorm:"column:reference_number"`
	AdminNotes      *string            `gorm:"column:admin_notes"`
	ProcessedBy     *uuid.UUID         `gorm:"column:processed_by;type:uuid"`
	Version         int64              `gorm:"column:version;not null;default:1"`
	RequestedAt     time.Time          `gorm:"column:requested_at;not null"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
