package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Repository persists orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, expectedVersion int64, to enums.OrderStatus) (bool, error)
	CountReturns(ctx context.Context, orderID uuid.UUID) (int64, error)
	FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) (int64, error)
	ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order and its items in one statement batch.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateStatus applies a guarded status change and bumps the version. It
// reports false when the row no longer matches the expected status/version.
func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, expectedVersion int64, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ? AND status = ?", orderID, expectedVersion, from).
		Updates(map[string]any{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountReturns(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReturnRequest{}).Where("order_id = ?", orderID).Count(&count).Error
	return count, err
}

// FailPendingPayments closes payment attempts still awaiting the gateway.
func (r *repository) FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
		})
	return res.RowsAffected, res.Error
}

// ListStaleUnpaid returns orders still waiting for payment that were last
// touched before the cutoff, oldest first.
func (r *repository) ListStaleUnpaid(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	var out []models.Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaymentPending}).
		Where("updated_at < ?", before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
