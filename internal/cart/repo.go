package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/retail-backend/internal/repo"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUser loads the user's cart with its lines and their products.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id") }).
		Preload("Items.Product").
		Where("user_id = ?", userID).
		First(&record).Error
	if err != nil {
		return nil, repo.MapError(err, "cart")
	}
	return &record, nil
}

// FindOrCreate returns the user's cart, creating an empty one when the user
// has none. A concurrent create for the same user is absorbed by the unique
// index.
func (r *Repository) FindOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	record := &models.Cart{UserID: userID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(record).Error
	if err != nil {
		return nil, repo.MapError(err, "cart")
	}
	return r.FindByUser(ctx, userID)
}

// FindLine returns the line of a product with the given selection key.
func (r *Repository) FindLine(ctx context.Context, cartID, productID uuid.UUID, selectionKey string) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND selection_key = ?", cartID, productID, selectionKey).
		First(&item).Error
	if err != nil {
		return nil, repo.MapError(err, "cart item")
	}
	return &item, nil
}

func (r *Repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND id = ?", cartID, itemID).
		First(&item).Error
	if err != nil {
		return nil, repo.MapError(err, "cart item")
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return repo.MapError(r.db.WithContext(ctx).Omit("Product").Create(item).Error, "cart item")
}

// UpdateItem rewrites quantity, price and the variant snapshot of a line.
func (r *Repository) UpdateItem(ctx context.Context, item *models.CartItem) error {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ? AND cart_id = ?", item.ID, item.CartID).
		Updates(map[string]any{
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
			"variants":   item.Variants,
		})
	if res.Error != nil {
		return repo.MapError(res.Error, "cart item")
	}
	if res.RowsAffected == 0 {
		return repo.MapError(gorm.ErrRecordNotFound, "cart item")
	}
	return nil
}

func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND id = ?", cartID, itemID).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return repo.MapError(res.Error, "cart item")
	}
	if res.RowsAffected == 0 {
		return repo.MapError(gorm.ErrRecordNotFound, "cart item")
	}
	return nil
}

// ClearItems removes every line of a cart.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
	return repo.MapError(err, "cart items")
}
