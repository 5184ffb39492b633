// Package dbtest opens throwaway sqlite databases with the full schema and
// seeds catalog fixtures for service tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/slug"
)

// Open returns a migrated sqlite database stored under t.TempDir().
// Transactions begin IMMEDIATE so concurrent writers serialize instead of
// failing on lock upgrades.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	return open(t, "")
}

// OpenWithForeignKeys is Open with foreign key enforcement switched on, as
// Postgres always has it.
func OpenWithForeignKeys(t *testing.T) *gorm.DB {
	t.Helper()
	return open(t, "&_foreign_keys=on")
}

func open(t *testing.T, params string) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "retail.db") + "?_busy_timeout=5000&_txlock=immediate" + params
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// MustCreateAttribute creates an attribute with the given values, each
// carrying a zero default price delta.
func MustCreateAttribute(t *testing.T, tx *gorm.DB, name string, values ...string) *models.Attribute {
	t.Helper()
	attr := &models.Attribute{Name: name, Slug: slug.Make(name)}
	if err := tx.Create(attr).Error; err != nil {
		t.Fatalf("create attribute %s: %v", name, err)
	}
	for _, v := range values {
		value := models.AttributeValue{AttributeID: attr.ID, Name: v, Slug: slug.Make(v)}
		if err := tx.Create(&value).Error; err != nil {
			t.Fatalf("create value %s: %v", v, err)
		}
		attr.Values = append(attr.Values, value)
	}
	return attr
}

// MustCreateProduct creates a product with a unique barcode, the given price
// and stock, and matching stock_in_total so the stock invariant holds.
func MustCreateProduct(t *testing.T, tx *gorm.DB, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		Barcode:      fmt.Sprintf("%012d", uuid.New().ID()),
		Name:         "Test Product",
		BasePrice:    decimal.RequireFromString(price),
		MarkupType:   enums.MarkupTypePercentage,
		Price:        decimal.RequireFromString(price),
		Stock:        stock,
		StockInTotal: stock,
	}
	if err := tx.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustAttachValue creates the pivot row for (product, value).
func MustAttachValue(t *testing.T, tx *gorm.DB, productID, valueID uuid.UUID, delta string, stock int) *models.ProductAttributeValue {
	t.Helper()
	pivot := &models.ProductAttributeValue{
		ProductID:        productID,
		AttributeValueID: valueID,
		PriceDelta:       decimal.RequireFromString(delta),
		MarkupType:       enums.MarkupTypePercentage,
		Stock:            stock,
		StockInTotal:     stock,
	}
	if err := tx.Create(pivot).Error; err != nil {
		t.Fatalf("attach value: %v", err)
	}
	return pivot
}

// Count returns the number of rows of model.
func Count(t *testing.T, tx *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := tx.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}
