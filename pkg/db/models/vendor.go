package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Vendor carries the settlement settings of a seller. An invalid
// CommissionPercent falls back to the platform default.
type Vendor struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name              string              `gorm:"column:name;not null"`
	CommissionPercent decimal.NullDecimal `gorm:"column:commission_percent;type:numeric(5,2)"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
