package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

// Source resolves the commission percent to snapshot for a vendor.
type Source interface {
	PercentFor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (decimal.Decimal, error)
}

type source struct {
	defaultPercent decimal.Decimal
	logg           *logger.Logger
}

// NewSource returns a Source that reads the vendor override and falls back to
// defaultPercent when the vendor has none or it is out of range.
func NewSource(defaultPercent decimal.Decimal, logg *logger.Logger) (Source, error) {
	if !ValidPercent(defaultPercent) {
		return nil, fmt.Errorf("default commission percent %s out of range", defaultPercent)
	}
	return &source{defaultPercent: defaultPercent, logg: logg}, nil
}

func (s *source) PercentFor(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (decimal.Decimal, error) {
	var vendor models.Vendor
	err := tx.WithContext(ctx).Select("id", "commission_percent").First(&vendor, "id = ?", vendorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.defaultPercent, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load vendor commission: %w", err)
	}
	if !vendor.CommissionPercent.Valid {
		return s.defaultPercent, nil
	}
	if !ValidPercent(vendor.CommissionPercent.Decimal) {
		if s.logg != nil {
			logCtx := s.logg.WithVendorID(ctx, vendorID.String())
			s.logg.Warn(logCtx, "vendor commission out of range; using default")
		}
		return s.defaultPercent, nil
	}
	return vendor.CommissionPercent.Decimal, nil
}
