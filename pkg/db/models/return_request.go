package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// ReturnRequest is a customer request to send back one order item.
type ReturnRequest struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID uuid.UUID          `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ux_returns_order_item_id"`
	RequestedBy uuid.UUID          `gorm:"column:requested_by;type:uuid;not null"`
	Reason      string             `gorm:"column:reason;not null"`
	Status      enums.ReturnStatus `gorm:"column:status;type:return_status_enum;not null;default:'pending'"`
	AdminNotes  *string            `gorm:"column:admin_notes"`
	Version     int64              `gorm:"column:version;not null;default:1"`
	RequestedAt time.Time          `gorm:"column:requested_at;not null"`
	ApprovedAt  *time.Time         `gorm:"column:approved_at"`
	CompletedAt *time.Time         `gorm:"column:completed_at"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (ReturnRequest) TableName() string {
	return "returns"
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
