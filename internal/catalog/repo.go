package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
)

// Repository reads offers and applies conditional stock updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOffers(ctx context.Context, ids []uuid.UUID) ([]models.VendorOffer, error)
	DecrementStock(ctx context.Context, offerID uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, offerID uuid.UUID, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOffers(ctx context.Context, ids []uuid.UUID) ([]models.VendorOffer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var offers []models.VendorOffer
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

// DecrementStock subtracts qty only while enough stock remains on a managed
// offer. It reports false when no row matched.
func (r *repository) DecrementStock(ctx context.Context, offerID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorOffer{}).
		Where("id = ? AND manage_stock = ? AND stock_quantity >= ?", offerID, true, qty).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementStock returns qty to a managed offer.
func (r *repository) IncrementStock(ctx context.Context, offerID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorOffer{}).
		Where("id = ? AND manage_stock = ?", offerID, true).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity + ?", qty),
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
