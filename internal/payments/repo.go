package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Repository persists payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	HasPending(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, referenceNumber *string) (bool, error)
	MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "transaction_id = ?", transactionID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) HasPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Count(&count).Error
	return count > 0, err
}

// MarkCompleted moves a pending payment to completed. False means the
// payment had already left pending.
func (r *repository) MarkCompleted(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, referenceNumber *string) (bool, error) {
	updates := map[string]any{
		"status":  enums.PaymentStatusCompleted,
		"paid_at": paidAt,
	}
	if referenceNumber != nil {
		updates["reference_number"] = *referenceNumber
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
