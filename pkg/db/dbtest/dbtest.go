// Package dbtest opens throwaway sqlite databases carrying the settlement
// schema for package tests.
package dbtest

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
)

// Models lists every table the settlement services touch.
func Models() []any {
	return []any{
		&models.Vendor{},
		&models.VendorOffer{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.VendorWallet{},
		&models.VendorTransaction{},
		&models.WalletPromotion{},
		&models.Payout{},
		&models.ReturnRequest{},
		&models.Refund{},
		&models.OutboxEvent{},
	}
}

// Open returns a migrated in-memory database wrapped in a db.Client. The pool
// is capped at one connection, so concurrent callers queue on it the way row
// locks would serialize them in Postgres. Code under test must only use the
// tx handed to it inside a transaction.
func Open(t testing.TB) *db.Client {
	t.Helper()
	dsn := "file:settle_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		NowFunc: func() time.Time { return time.Now().UTC() },

		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.Wrap(conn)
}

// SeedVendor inserts a vendor. A nil percent leaves the commission override
// unset.
func SeedVendor(t testing.TB, conn *gorm.DB, percent *decimal.Decimal) models.Vendor {
	t.Helper()
	vendor := models.Vendor{Name: "vendor-" + uuid.NewString()[:8]}
	if percent != nil {
		vendor.CommissionPercent = decimal.NewNullDecimal(*percent)
	}
	if err := conn.Create(&vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	return vendor
}

// SeedOffer inserts an approved, stock-managed offer for vendorID.
func SeedOffer(t testing.TB, conn *gorm.DB, vendorID uuid.UUID, priceCents int64, stock int) models.VendorOffer {
	t.Helper()
	offer := models.VendorOffer{
		ProductID:     uuid.New(),
		VendorID:      vendorID,
		PriceCents:    priceCents,
		Status:        enums.OfferStatusApproved,
		ManageStock:   true,
		StockQuantity: stock,
		Version:       1,
	}
	if err := conn.Create(&offer).Error; err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return offer
}

// Stock reads the current stock of an offer.
func Stock(t testing.TB, conn *gorm.DB, offerID uuid.UUID) int {
	t.Helper()
	var offer models.VendorOffer
	if err := conn.First(&offer, "id = ?", offerID).Error; err != nil {
		t.Fatalf("load offer: %v", err)
	}
	return offer.StockQuantity
}
