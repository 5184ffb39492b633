package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/repo"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
)

// Repository persists sales and their items. Sales are written once and
// never updated.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.Tx(tx)}
}

// Create inserts the sale header and its items.
func (r *Repository) Create(ctx context.Context, sale *models.Sale) error {
	conn := r.base.DB(ctx)
	items := sale.Items
	if err := conn.Omit("Items").Create(sale).Error; err != nil {
		return repo.MapError(err, "sale")
	}
	for i := range items {
		items[i].SaleID = sale.ID
	}
	if len(items) > 0 {
		if err := conn.Omit("Product").Create(&items).Error; err != nil {
			return repo.MapError(err, "sale items")
		}
	}
	sale.Items = items
	return nil
}

// FindByID loads a sale with its items and their products.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.base.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at").Order("id") }).
		Preload("Items.Product").
		First(&sale, "id = ?", id).Error
	if err != nil {
		return nil, repo.MapError(err, "sale")
	}
	return &sale, nil
}

// ListFilter narrows ListSales.
type ListFilter struct {
	UserID        *uuid.UUID
	PaymentMethod *enums.PaymentMethod
	From          *time.Time
	To            *time.Time
}

// List pages sales newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Sale, string, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	q := r.base.DB(ctx).Model(&models.Sale{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.PaymentMethod != nil {
		q = q.Where("payment_method = ?", *filter.PaymentMethod)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Sale
	err = q.Preload("Items").
		Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", repo.MapError(err, "sales")
	}

	next := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}
