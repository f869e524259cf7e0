package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// VendorOffer is a vendor's sellable listing for a product.
type VendorOffer struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ProductID           uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index"`
	VendorID            uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null;index"`
	PriceCents          int64             `gorm:"column:price_cents;not null"`
	DiscountPriceCents  *int64            `gorm:"column:discount_price_cents"`
	Status              enums.OfferStatus `gorm:"column:status;type:offer_status_enum;not null;default:'pending'"`
	ManageStock         bool              `gorm:"column:manage_stock;not null"`
	StockQuantity       int               `gorm:"column:stock_quantity;not null;default:0;check:chk_vendor_offers_stock_non_negative,stock_quantity >= 0"`
	IsDefaultForProduct bool              `gorm:"column:is_default_for_product;not null;default:false"`
	Version             int64             `gorm:"column:version;not null;default:1"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *VendorOffer) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// EffectivePriceCents returns the discount price when one is set below list.
func (o VendorOffer) EffectivePriceCents() int64 {
	if o.DiscountPriceCents != nil && *o.DiscountPriceCents > 0 && *o.DiscountPriceCents < o.PriceCents {
		return *o.DiscountPriceCents
	}
	return o.PriceCents
}
