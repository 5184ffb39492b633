package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type uniqueRow struct {
	ID   int
	Code string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "repo.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&uniqueRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}
	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseTxRebinds(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	tx := db.Begin()
	defer tx.Rollback()

	if base.Tx(tx).db != tx {
		t.Fatalf("expected Tx to bind the transaction handle")
	}
}

func TestMapError(t *testing.T) {
	db := newTestDB(t)

	var row uniqueRow
	err := MapError(db.First(&row, 99).Error, "row")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	if err := db.Create(&uniqueRow{Code: "a"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	err = MapError(db.Create(&uniqueRow{Code: "a"}).Error, "row")
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}

	err = MapError(&pgconn.PgError{Code: "23503", ConstraintName: "sale_items_product_id_fkey"}, "row")
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT for a foreign key violation, got %v", err)
	}

	err = MapError(errors.New("connection reset"), "row")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}

	typed := pkgerrors.New(pkgerrors.CodeUnknownVariant, "nope")
	if MapError(typed, "row") != error(typed) {
		t.Fatalf("typed errors must pass through")
	}
	if MapError(nil, "row") != nil {
		t.Fatalf("nil must stay nil")
	}
}
