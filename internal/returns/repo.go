package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Repository persists returns and refunds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateReturn(ctx context.Context, ret *models.ReturnRequest) error
	FindReturn(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error)
	TransitionReturn(ctx context.Context, returnID uuid.UUID, from enums.ReturnStatus, expectedVersion int64, updates map[string]any) (bool, error)
	CreateRefund(ctx context.Context, refund *models.Refund) error
	FindRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error)
	TransitionRefund(ctx context.Context, refundID uuid.UUID, from []enums.RefundStatus, updates map[string]any) (bool, error)
	FindCompletedPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	SumOpenRefunds(ctx context.Context, paymentID uuid.UUID) (int64, error)
	CountCompletedRefunds(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a returns repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateReturn(ctx context.Context, ret *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *repository) FindReturn(ctx context.Context, returnID uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	if err := r.db.WithContext(ctx).First(&ret, "id = ?", returnID).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) TransitionReturn(ctx context.Context, returnID uuid.UUID, from enums.ReturnStatus, expectedVersion int64, updates map[string]any) (bool, error) {
	values := map[string]any{"version": gorm.Expr("version + 1")}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND version = ? AND status = ?", returnID, expectedVersion, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) FindRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).First(&refund, "id = ?", refundID).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

// TransitionRefund moves a refund out of one of the from statuses.
func (r *repository) TransitionRefund(ctx context.Context, refundID uuid.UUID, from []enums.RefundStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status IN ?", refundID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindCompletedPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusCompleted).
		Order("paid_at DESC").
		Limit(1).
		Find(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == uuid.Nil {
		return nil, nil
	}
	return &payment, nil
}

// SumOpenRefunds totals refunds against a payment that have not failed.
func (r *repository) SumOpenRefunds(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("payment_id = ? AND status <> ?", paymentID, enums.RefundStatusFailed).
		Scan(&sum).Error
	return sum, err
}

func (r *repository) CountCompletedRefunds(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Joins("JOIN order_items ON order_items.id = refunds.order_item_id").
		Where("order_items.order_id = ? AND refunds.status = ?", orderID, enums.RefundStatusCompleted).
		Count(&count).Error
	return count, err
}
