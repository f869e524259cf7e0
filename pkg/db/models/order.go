package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Order is the customer-facing aggregate covering every vendor on a checkout.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string            `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status            enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:'pending'"`
	SubtotalCents     int64             `gorm:"column:subtotal_cents;not null"`
	ShippingCents     int64             `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents     int64             `gorm:"column:discount_cents;not null;default:0"`
	TaxCents          int64             `gorm:"column:tax_cents;not null;default:0"`
	TotalCents        int64             `gorm:"column:total_cents;not null"`
	ShippingAddressID *uuid.UUID        `gorm:"column:shipping_address_id;type:uuid"`
	Version           int64             `gorm:"column:version;not null;default:1"`
	Items             []OrderItem       `gorm:"foreignKey:OrderID"`
	ArchivedAt        *time.Time        `gorm:"column:archived_at"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
