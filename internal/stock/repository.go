package stock

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/repo"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
)

// Repository is the append-only movement ledger plus the counter updates
// that go with each movement. Movements are never updated or deleted.
type Repository struct {
	base repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{base: r.base.Tx(tx)}
}

func (r *Repository) InsertMovement(ctx context.Context, movement *models.StockMovement) error {
	return repo.MapError(r.base.DB(ctx).Create(movement).Error, "stock movement")
}

// IncrementProduct books an inbound quantity on the product counters.
func (r *Repository) IncrementProduct(ctx context.Context, productID uuid.UUID, quantity int) error {
	res := r.base.DB(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock":          gorm.Expr("stock + ?", quantity),
			"stock_in_total": gorm.Expr("stock_in_total + ?", quantity),
		})
	return affectedOne(res, "product")
}

// IncrementPivot books an inbound quantity on one variant.
func (r *Repository) IncrementPivot(ctx context.Context, productID, valueID uuid.UUID, quantity int) error {
	res := r.base.DB(ctx).Model(&models.ProductAttributeValue{}).
		Where("product_id = ? AND attribute_value_id = ?", productID, valueID).
		Updates(map[string]any{
			"stock":          gorm.Expr("stock + ?", quantity),
			"stock_in_total": gorm.Expr("stock_in_total + ?", quantity),
		})
	return affectedOne(res, "product attribute value")
}

// DecrementProduct takes quantity off the product only if enough stock is
// left. It reports false when the guard rejected the update.
func (r *Repository) DecrementProduct(ctx context.Context, productID uuid.UUID, quantity int) (bool, error) {
	res := r.base.DB(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Updates(map[string]any{
			"stock":           gorm.Expr("stock - ?", quantity),
			"stock_out_total": gorm.Expr("stock_out_total + ?", quantity),
		})
	if res.Error != nil {
		return false, repo.MapError(res.Error, "product")
	}
	return res.RowsAffected == 1, nil
}

// DecrementPivot is DecrementProduct for one variant.
func (r *Repository) DecrementPivot(ctx context.Context, productID, valueID uuid.UUID, quantity int) (bool, error) {
	res := r.base.DB(ctx).Model(&models.ProductAttributeValue{}).
		Where("product_id = ? AND attribute_value_id = ? AND stock >= ?", productID, valueID, quantity).
		Updates(map[string]any{
			"stock":           gorm.Expr("stock - ?", quantity),
			"stock_out_total": gorm.Expr("stock_out_total + ?", quantity),
		})
	if res.Error != nil {
		return false, repo.MapError(res.Error, "product attribute value")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) ProductStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var stock int
	err := r.base.DB(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Pluck("stock", &stock).Error
	return stock, repo.MapError(err, "product")
}

func (r *Repository) PivotStock(ctx context.Context, productID, valueID uuid.UUID) (int, error) {
	var stock int
	err := r.base.DB(ctx).Model(&models.ProductAttributeValue{}).
		Where("product_id = ? AND attribute_value_id = ?", productID, valueID).
		Pluck("stock", &stock).Error
	return stock, repo.MapError(err, "product attribute value")
}

// ListMovements pages a product's movements newest first.
func (r *Repository) ListMovements(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockMovement, string, error) {
	pageSize := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	q := r.base.DB(ctx).Where("product_id = ?", productID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.StockMovement
	err = q.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", repo.MapError(err, "stock movements")
	}

	next := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// MovementsByReference returns the movements written for one sale.
func (r *Repository) MovementsByReference(ctx context.Context, reference uuid.UUID) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	err := r.base.DB(ctx).Where("reference = ?", reference).Order("created_at").Find(&rows).Error
	return rows, repo.MapError(err, "stock movements")
}

type totalsRow struct {
	ProductID uuid.UUID
	Type      enums.MovementType
	Total     int
}

// SumByProduct adds up movement quantities per product and direction.
func (r *Repository) SumByProduct(ctx context.Context, productIDs []uuid.UUID) ([]totalsRow, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var rows []totalsRow
	err := r.base.DB(ctx).Model(&models.StockMovement{}).
		Select("product_id, type, COALESCE(SUM(quantity), 0) AS total").
		Where("product_id IN ?", productIDs).
		Group("product_id, type").
		Scan(&rows).Error
	return rows, repo.MapError(err, "stock movements")
}

func affectedOne(res *gorm.DB, entity string) error {
	if res.Error != nil {
		return repo.MapError(res.Error, entity)
	}
	if res.RowsAffected == 0 {
		return repo.MapError(gorm.ErrRecordNotFound, entity)
	}
	return nil
}
