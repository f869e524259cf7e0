package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	"github.com/angelmondragon/storefront-settlement/pkg/pagination"
)

// Repository persists wallets, ledger rows and promotions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureWallet(ctx context.Context, vendorID uuid.UUID) error
	ApplyDelta(ctx context.Context, vendorID uuid.UUID, delta walletDelta) (bool, error)
	FindWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error)
	FindWalletShared(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error)
	InsertTransaction(ctx context.Context, row *models.VendorTransaction) error
	FindByIdempotencyKey(ctx context.Context, key string) (*models.VendorTransaction, error)
	SumAmounts(ctx context.Context, vendorID uuid.UUID) (int64, error)
	SumPendingForOrder(ctx context.Context, vendorID, orderID uuid.UUID) (int64, int64, error)
	FindPromotion(ctx context.Context, vendorID, orderID uuid.UUID) (*models.WalletPromotion, error)
	InsertPromotion(ctx context.Context, promotion *models.WalletPromotion) error
	ListTransactions(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.VendorTransaction, *pagination.Cursor, error)
	ListWalletVendorIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	ListPromotable(ctx context.Context, earnedBefore time.Time, limit int) ([]PromotionCandidate, error)
}

// walletDelta is a signed change per wallet column. Negative Balance or
// Pending values turn into conditional guards on the update.
type walletDelta struct {
	Balance        int64
	Pending        int64
	TotalEarnings  int64
	TotalWithdrawn int64
}

// PromotionCandidate is an order whose earning for a vendor may be promoted.
type PromotionCandidate struct {
	VendorID uuid.UUID `gorm:"column:vendor_id"`
	OrderID  uuid.UUID `gorm:"column:order_id"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) EnsureWallet(ctx context.Context, vendorID uuid.UUID) error {
	wallet := models.VendorWallet{VendorID: vendorID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "vendor_id"}}, DoNothing: true}).
		Create(&wallet).Error
}

func (r *repository) ApplyDelta(ctx context.Context, vendorID uuid.UUID, delta walletDelta) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.VendorWallet{}).Where("vendor_id = ?", vendorID)
	updates := map[string]any{}
	if delta.Balance != 0 {
		updates["balance_cents"] = gorm.Expr("balance_cents + ?", delta.Balance)
		if delta.Balance < 0 {
			query = query.Where("balance_cents >= ?", -delta.Balance)
		}
	}
	if delta.Pending != 0 {
		updates["pending_balance_cents"] = gorm.Expr("pending_balance_cents + ?", delta.Pending)
		if delta.Pending < 0 {
			query = query.Where("pending_balance_cents >= ?", -delta.Pending)
		}
	}
	if delta.TotalEarnings != 0 {
		updates["total_earnings_cents"] = gorm.Expr("total_earnings_cents + ?", delta.TotalEarnings)
	}
	if delta.TotalWithdrawn != 0 {
		updates["total_withdrawn_cents"] = gorm.Expr("total_withdrawn_cents + ?", delta.TotalWithdrawn)
	}
	if len(updates) == 0 {
		return true, nil
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindWallet(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error) {
	var wallet models.VendorWallet
	if err := r.db.WithContext(ctx).First(&wallet, "vendor_id = ?", vendorID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FindWalletShared reads the wallet under FOR SHARE so concurrent writers
// wait until the caller's transaction ends.
func (r *repository) FindWalletShared(ctx context.Context, vendorID uuid.UUID) (*models.VendorWallet, error) {
	var wallet models.VendorWallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&wallet, "vendor_id = ?", vendorID).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) InsertTransaction(ctx context.Context, row *models.VendorTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.VendorTransaction, error) {
	var row models.VendorTransaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *repository) SumAmounts(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.VendorTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("vendor_id = ?", vendorID).
		Scan(&sum).Error
	return sum, err
}

// SumPendingForOrder returns the net pending-bucket amount for one order and
// how many rows contributed to it.
func (r *repository) SumPendingForOrder(ctx context.Context, vendorID, orderID uuid.UUID) (int64, int64, error) {
	var out struct {
		Total int64 `gorm:"column:total"`
		Rows  int64 `gorm:"column:rows_count"`
	}
	err := r.db.WithContext(ctx).
		Model(&models.VendorTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0) AS total, COUNT(*) AS rows_count").
		Where("vendor_id = ? AND order_id = ? AND bucket = ?", vendorID, orderID, enums.WalletBucketPending).
		Scan(&out).Error
	return out.Total, out.Rows, err
}

func (r *repository) FindPromotion(ctx context.Context, vendorID, orderID uuid.UUID) (*models.WalletPromotion, error) {
	var promotion models.WalletPromotion
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND order_id = ?", vendorID, orderID).
		Limit(1).
		Find(&promotion).Error
	if err != nil {
		return nil, err
	}
	if promotion.ID == uuid.Nil {
		return nil, nil
	}
	return &promotion, nil
}

func (r *repository) InsertPromotion(ctx context.Context, promotion *models.WalletPromotion) error {
	return r.db.WithContext(ctx).Create(promotion).Error
}

func (r *repository) ListTransactions(ctx context.Context, vendorID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.VendorTransaction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.VendorTransaction{}).Where("vendor_id = ?", vendorID)
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.VendorTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.FetchLimit(limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Trim(rows, limit, func(row models.VendorTransaction) pagination.Cursor {
		return pagination.Cursor{At: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

func (r *repository) ListWalletVendorIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.VendorWallet{})
	if after != uuid.Nil {
		query = query.Where("vendor_id > ?", after)
	}
	var ids []uuid.UUID
	if err := query.Order("vendor_id ASC").Limit(limit).Pluck("vendor_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

const promotableQuery = `
SELECT t.vendor_id, t.order_id
FROM vendor_transactions t
WHERE t.type = ?
  AND t.order_id IS NOT NULL
  AND t.created_at <= ?
  AND NOT EXISTS (
    SELECT 1 FROM wallet_promotions p
    WHERE p.vendor_id = t.vendor_id AND p.order_id = t.order_id
  )
  AND NOT EXISTS (
    SELECT 1 FROM returns r
    JOIN order_items oi ON oi.id = r.order_item_id
    LEFT JOIN refunds f ON f.return_id = r.id
    WHERE r.order_id = t.order_id
      AND oi.vendor_id = t.vendor_id
      AND (r.status = ? OR (r.status = ? AND (f.id IS NULL OR f.status IN (?, ?))))
  )
ORDER BY t.created_at ASC
LIMIT ?`

// ListPromotable returns earnings old enough to leave the pending bucket
// whose order has no return still in flight for that vendor.
func (r *repository) ListPromotable(ctx context.Context, earnedBefore time.Time, limit int) ([]PromotionCandidate, error) {
	var out []PromotionCandidate
	err := r.db.WithContext(ctx).Raw(promotableQuery,
		enums.VendorTxnEarning,
		earnedBefore,
		enums.ReturnStatusPending,
		enums.ReturnStatusApproved,
		enums.RefundStatusPending,
		enums.RefundStatusProcessing,
		limit,
	).Scan(&out).Error
	return out, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
