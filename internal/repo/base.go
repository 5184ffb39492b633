package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/retail-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"gorm.io/gorm"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx returns a Base bound to an open transaction.
func (b Base) Tx(tx *gorm.DB) Base {
	return Base{db: tx}
}

// MapError translates storage errors into typed errors: a missing row
// becomes NOT_FOUND, a unique or foreign key violation CONFLICT and anything
// else an opaque DEPENDENCY_ERROR. Typed errors pass through untouched.
func MapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not found", entity))
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("%s already exists", entity))
	}
	if db.IsForeignKeyViolation(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("%s is still referenced", entity))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("db: %s", entity))
}
