package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/repo"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// Repository wires together all product-related persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// preloadPivots loads pivot rows with their values and attributes, including
// tombstoned ones so callers can tell a retired value from a missing one.
func preloadPivots(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Pivots", func(db *gorm.DB) *gorm.DB { return db.Order("attribute_value_id") }).
		Preload("Pivots.AttributeValue", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Pivots.AttributeValue.Attribute", func(db *gorm.DB) *gorm.DB { return db.Unscoped() })
}

// FindByID loads the product without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.conn(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, repo.MapError(err, "product")
	}
	return &product, nil
}

// FindForUpdate loads and row-locks the product with its pivots.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	products, err := r.FindManyForUpdate(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, repo.MapError(gorm.ErrRecordNotFound, "product")
	}
	return &products[0], nil
}

// FindManyForUpdate locks products in id order so concurrent writers always
// acquire row locks in the same sequence. Pivot rows are locked the same way.
func (r *Repository) FindManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	err := db.ForUpdate(r.conn(ctx)).
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, repo.MapError(err, "products")
	}

	pivots, err := r.ListPivots(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[uuid.UUID][]models.ProductAttributeValue, len(products))
	for _, pivot := range pivots {
		byProduct[pivot.ProductID] = append(byProduct[pivot.ProductID], pivot)
	}
	for i := range products {
		products[i].Pivots = byProduct[products[i].ID]
	}
	return products, nil
}

// GetProductDetail fetches a product with category and pivot rows.
func (r *Repository) GetProductDetail(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := preloadPivots(r.conn(ctx).Preload("Category")).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, repo.MapError(err, "product")
	}
	return &product, nil
}

// FindByBarcode returns the products whose barcode matches exactly, with pivots.
func (r *Repository) FindByBarcode(ctx context.Context, barcode string) ([]models.Product, error) {
	var rows []models.Product
	err := preloadPivots(r.conn(ctx)).
		Where("barcode = ?", barcode).
		Find(&rows).Error
	return rows, repo.MapError(err, "products")
}

// BarcodeExists reports whether another product already uses the barcode.
func (r *Repository) BarcodeExists(ctx context.Context, barcode string, exclude *uuid.UUID) (bool, error) {
	q := r.conn(ctx).Model(&models.Product{}).Where("barcode = ?", barcode)
	if exclude != nil {
		q = q.Where("id <> ?", *exclude)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, repo.MapError(err, "products")
	}
	return n > 0, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return repo.MapError(r.conn(ctx).Omit("Category", "Pivots").Create(product).Error, "product")
}

// UpdateProduct writes the editable columns. Stock counters and the
// variants projection have their own write paths.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) error {
	err := r.conn(ctx).Model(product).
		Select(
			"barcode", "name", "brand", "description", "category_id", "subcategory_id",
			"category", "subcategory", "is_promo", "is_combo", "base_price", "markup",
			"markup_type", "price", "image", "images", "updated_at",
		).
		Updates(product).Error
	return repo.MapError(err, "product")
}

// SetStockCounters writes the product stock columns.
func (r *Repository) SetStockCounters(ctx context.Context, product *models.Product) error {
	err := r.conn(ctx).Model(product).
		Select("stock", "stock_in_total", "stock_out_total", "updated_at").
		Updates(product).Error
	return repo.MapError(err, "product")
}

// SaveVariants stores the derived variants projection.
func (r *Repository) SaveVariants(ctx context.Context, productID uuid.UUID, variants types.VariantGroups) error {
	err := r.conn(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Update("variants", variants).Error
	return repo.MapError(err, "product variants")
}

// DeleteProduct removes a product and its association rows.
// ensureNoHistory refuses to delete a product the ledger, a sale or an order
// still points at.
func (r *Repository) ensureNoHistory(ctx context.Context, id uuid.UUID) error {
	conn := r.conn(ctx)
	refs := map[string]int64{}
	for name, model := range map[string]any{
		"stock_movements": &models.StockMovement{},
		"sale_items":      &models.SaleItem{},
		"order_items":     &models.OrderItem{},
	} {
		var n int64
		if err := conn.Model(model).Where("product_id = ?", id).Count(&n).Error; err != nil {
			return repo.MapError(err, name)
		}
		if n > 0 {
			refs[name] = n
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "product has stock or sales history and cannot be deleted").
		WithDetails(map[string]any{"product_id": id, "references": refs})
}

func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	conn := r.conn(ctx)
	if err := r.ensureNoHistory(ctx, id); err != nil {
		return err
	}
	if err := conn.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
		return repo.MapError(err, "cart items")
	}
	if err := conn.Where("product_id = ?", id).Delete(&models.ProductAttributeValue{}).Error; err != nil {
		return repo.MapError(err, "product attribute values")
	}
	if err := conn.Where("product_id = ?", id).Delete(&models.ProductAttribute{}).Error; err != nil {
		return repo.MapError(err, "product attributes")
	}
	res := conn.Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return repo.MapError(res.Error, "product")
	}
	if res.RowsAffected == 0 {
		return repo.MapError(gorm.ErrRecordNotFound, "product")
	}
	return nil
}

// ListPivots returns pivot rows for the products with values and attributes
// loaded. lock row-locks the pivots on postgres.
func (r *Repository) ListPivots(ctx context.Context, productIDs []uuid.UUID, lock bool) ([]models.ProductAttributeValue, error) {
	if len(productIDs) == 0 {
		return []models.ProductAttributeValue{}, nil
	}
	q := r.conn(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var pivots []models.ProductAttributeValue
	err := q.
		Preload("AttributeValue", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("AttributeValue.Attribute", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("product_id IN ?", productIDs).
		Order("product_id").
		Order("attribute_value_id").
		Find(&pivots).Error
	return pivots, repo.MapError(err, "product attribute values")
}

// CreatePivot inserts a new association row.
func (r *Repository) CreatePivot(ctx context.Context, pivot *models.ProductAttributeValue) error {
	return repo.MapError(r.conn(ctx).Omit("AttributeValue").Create(pivot).Error, "product attribute value")
}

// UpdatePivot rewrites the per-variant pricing, stock and image columns.
func (r *Repository) UpdatePivot(ctx context.Context, pivot *models.ProductAttributeValue) error {
	err := r.conn(ctx).Model(&models.ProductAttributeValue{}).
		Where("product_id = ? AND attribute_value_id = ?", pivot.ProductID, pivot.AttributeValueID).
		Updates(map[string]any{
			"price_delta":     pivot.PriceDelta,
			"base_price":      pivot.BasePrice,
			"markup":          pivot.Markup,
			"markup_type":     pivot.MarkupType,
			"stock":           pivot.Stock,
			"stock_in_total":  pivot.StockInTotal,
			"stock_out_total": pivot.StockOutTotal,
			"image":           pivot.Image,
			"updated_at":      time.Now().UTC(),
		}).Error
	return repo.MapError(err, "product attribute value")
}

// DeletePivotsExcept removes the product's pivot rows not listed in keep.
func (r *Repository) DeletePivotsExcept(ctx context.Context, productID uuid.UUID, keep []uuid.UUID) error {
	q := r.conn(ctx).Where("product_id = ?", productID)
	if len(keep) > 0 {
		q = q.Where("attribute_value_id NOT IN ?", keep)
	}
	return repo.MapError(q.Delete(&models.ProductAttributeValue{}).Error, "product attribute values")
}

// ReplaceAttributes replaces the product ↔ attribute links.
func (r *Repository) ReplaceAttributes(ctx context.Context, productID uuid.UUID, attributeIDs []uuid.UUID) error {
	conn := r.conn(ctx)
	if err := conn.Where("product_id = ?", productID).Delete(&models.ProductAttribute{}).Error; err != nil {
		return repo.MapError(err, "product attributes")
	}
	if len(attributeIDs) == 0 {
		return nil
	}
	links := make([]models.ProductAttribute, 0, len(attributeIDs))
	for _, id := range attributeIDs {
		links = append(links, models.ProductAttribute{ProductID: productID, AttributeID: id})
	}
	return repo.MapError(conn.Create(&links).Error, "product attributes")
}

// ListAttributeIDs returns the attributes linked to a product.
func (r *Repository) ListAttributeIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.conn(ctx).Model(&models.ProductAttribute{}).
		Where("product_id = ?", productID).
		Order("attribute_id").
		Pluck("attribute_id", &ids).Error
	return ids, repo.MapError(err, "product attributes")
}

// FindLiveValues loads non-tombstoned values of non-tombstoned attributes.
func (r *Repository) FindLiveValues(ctx context.Context, ids []uuid.UUID) ([]models.AttributeValue, error) {
	if len(ids) == 0 {
		return []models.AttributeValue{}, nil
	}
	var values []models.AttributeValue
	err := r.conn(ctx).
		Preload("Attribute").
		Where("id IN ?", ids).
		Find(&values).Error
	if err != nil {
		return nil, repo.MapError(err, "attribute values")
	}
	live := values[:0]
	for _, v := range values {
		if v.Attribute != nil {
			live = append(live, v)
		}
	}
	return live, nil
}

// CountAttributes counts live attributes among ids.
func (r *Repository) CountAttributes(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := r.conn(ctx).Model(&models.Attribute{}).Where("id IN ?", ids).Count(&n).Error
	return n, repo.MapError(err, "attributes")
}

// Categories

func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return repo.MapError(r.conn(ctx).Create(category).Error, "category")
}

func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	err := r.conn(ctx).Order("name ASC").Find(&rows).Error
	return rows, repo.MapError(err, "categories")
}

func (r *Repository) FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.conn(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, repo.MapError(err, "category")
	}
	return &category, nil
}

type productListQuery struct {
	Pagination pagination.Params
	Filters    ProductListFilters
}

const (
	soldQuantityClause   = "(SELECT COALESCE(SUM(si.quantity), 0) FROM sale_items si WHERE si.product_id = p.id)"
	movementTotalPattern = "(SELECT COALESCE(SUM(sm.quantity), 0) FROM stock_movements sm WHERE sm.product_id = p.id AND sm.type = '%s')"
)

// ListProductSummaries pages through products newest first, computing the
// sold and movement aggregates per row.
func (r *Repository) ListProductSummaries(ctx context.Context, query productListQuery) (*ProductListResult, error) {
	pageSize := pagination.NormalizeLimit(query.Pagination.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(query.Pagination.Limit)

	cursor, err := pagination.ParseCursor(query.Pagination.Cursor)
	if err != nil {
		return nil, err
	}

	qb := r.conn(ctx).
		Table("products p").
		Select(strings.Join([]string{
			"p.id",
			"p.barcode",
			"p.name",
			"p.brand",
			"p.category",
			"p.subcategory",
			"p.category_id",
			"p.is_promo",
			"p.is_combo",
			"p.price",
			"p.stock",
			"p.stock_in_total",
			"p.stock_out_total",
			"p.image",
			"p.variants",
			"p.created_at",
			"p.updated_at",
			soldQuantityClause + " AS sold_quantity",
			fmt.Sprintf(movementTotalPattern, "in") + " AS calculated_stock_in",
			fmt.Sprintf(movementTotalPattern, "out") + " AS calculated_stock_out",
		}, ", ")).
		Joins("LEFT JOIN categories c ON c.id = p.category_id")

	filter := query.Filters
	if search := strings.TrimSpace(filter.Category); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(p.category) LIKE ? OR LOWER(c.name) LIKE ? OR c.slug = ?)", pattern, pattern, strings.ToLower(search))
	}
	if filter.CategoryID != nil {
		qb = qb.Where("(p.category_id = ? OR p.subcategory_id = ?)", *filter.CategoryID, *filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Query); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(p.name) LIKE ? OR p.barcode LIKE ?)", pattern, pattern)
	}
	if filter.IsPromo != nil {
		qb = qb.Where("p.is_promo = ?", *filter.IsPromo)
	}

	if cursor != nil {
		qb = qb.Where("(p.created_at < ?) OR (p.created_at = ? AND p.id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	qb = qb.Order("p.created_at DESC").Order("p.id DESC").Limit(limitWithBuffer)

	var records []productSummaryRecord
	if err := qb.Scan(&records).Error; err != nil {
		return nil, repo.MapError(err, "products")
	}

	resultRows := records
	nextCursor := ""
	if len(records) > pageSize {
		resultRows = records[:pageSize]
		last := resultRows[len(resultRows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	summaries := make([]ProductSummary, 0, len(resultRows))
	for _, record := range resultRows {
		summaries = append(summaries, record.toSummary())
	}

	return &ProductListResult{
		Products:   summaries,
		NextCursor: nextCursor,
	}, nil
}

type productSummaryRecord struct {
	ID                 uuid.UUID
	Barcode            string
	Name               string
	Brand              *string
	Category           *string
	Subcategory        *string
	CategoryID         *uuid.UUID
	IsPromo            bool
	IsCombo            bool
	Price              decimal.Decimal
	Stock              int
	StockInTotal       int
	StockOutTotal      int
	Image              *string
	Variants           types.VariantGroups
	SoldQuantity       int
	CalculatedStockIn  int
	CalculatedStockOut int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r productSummaryRecord) toSummary() ProductSummary {
	variants := r.Variants
	if variants == nil {
		variants = types.VariantGroups{}
	}
	return ProductSummary{
		ID:                 r.ID,
		Barcode:            r.Barcode,
		Name:               r.Name,
		Brand:              r.Brand,
		Category:           r.Category,
		Subcategory:        r.Subcategory,
		CategoryID:         r.CategoryID,
		IsPromo:            r.IsPromo,
		IsCombo:            r.IsCombo,
		Price:              r.Price,
		Stock:              r.Stock,
		StockInTotal:       r.StockInTotal,
		StockOutTotal:      r.StockOutTotal,
		Image:              r.Image,
		Variants:           variants,
		SoldQuantity:       r.SoldQuantity,
		CalculatedStockIn:  r.CalculatedStockIn,
		CalculatedStockOut: r.CalculatedStockOut,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}
