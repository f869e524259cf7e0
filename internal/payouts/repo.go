package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/pagination"
)

// Repository persists payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	Transition(ctx context.Context, payoutID uuid.UUID, from enums.PayoutStatus, expectedVersion int64, updates map[string]any) (bool, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Payout, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", payoutID).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// Transition applies updates when the payout still has the expected status
// and version, and bumps the version.
func (r *repository) Transition(ctx context.Context, payoutID uuid.UUID, from enums.PayoutStatus, expectedVersion int64, updates map[string]any) (bool, error) {
	values := map[string]any{"version": gorm.Expr("version + 1")}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND version = ? AND status = ?", payoutID, expectedVersion, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListForVendor(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Payout, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Payout{}).Where("vendor_id = ?", vendorID)
	if cursor != nil {
		query = query.Where("((requested_at < ?) OR (requested_at = ? AND id < ?))", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.Payout
	if err := query.Order("requested_at DESC, id DESC").Limit(pagination.FetchLimit(limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Trim(rows, limit, func(row models.Payout) pagination.Cursor {
		return pagination.Cursor{At: row.RequestedAt, ID: row.ID}
	})
	return rows, next, nil
}
