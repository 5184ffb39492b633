package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/pricing"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
)

// Service exposes cart operations for storefront users.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// AddItemInput adds quantity units of a product with the chosen values.
type AddItemInput struct {
	ProductID  uuid.UUID
	Quantity   int
	Selections []pricing.Selection
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLoader
	engine   *pricing.Engine
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		products: products,
		engine:   pricing.NewEngine(),
	}, nil
}

// GetCart returns the user's cart; a user without one sees an empty cart.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return NewCartDTO(nil, userID), nil
		}
		return nil, err
	}
	return NewCartDTO(record, userID), nil
}

// AddItem prices the line with the current catalog and merges it into an
// existing line with the same product and selection set. The merged line
// takes the fresh unit price.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}

	p, err := s.products.GetProductDetail(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	quote, err := s.engine.Quote(p, p.Pivots, input.Quantity, input.Selections)
	if err != nil {
		return nil, err
	}
	key := pricing.SelectionKey(input.Selections)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		record, err := txRepo.FindOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		line, err := txRepo.FindLine(ctx, record.ID, p.ID, key)
		switch {
		case err == nil:
			line.Quantity += quote.Quantity
			line.UnitPrice = quote.UnitPrice
			line.Variants = quote.Variants
			return txRepo.UpdateItem(ctx, line)
		case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
			return txRepo.CreateItem(ctx, &models.CartItem{
				CartID:       record.ID,
				ProductID:    p.ID,
				SelectionKey: key,
				Quantity:     quote.Quantity,
				UnitPrice:    quote.UnitPrice,
				Variants:     quote.Variants,
			})
		default:
			return err
		}
	})
	if err != nil {
		return nil, wrapTxError(err, "add cart item")
	}
	return s.GetCart(ctx, userID)
}

func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*CartDTO, error) {
	if quantity <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "quantity must be positive, got %d", quantity)
	}
	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItem(ctx, record.ID, itemID)
	if err != nil {
		return nil, err
	}
	item.Quantity = quantity
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartDTO, error) {
	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteItem(ctx, record.ID, itemID); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// Clear empties the cart. Clearing a missing cart is a no-op.
func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil
		}
		return err
	}
	return s.repo.ClearItems(ctx, record.ID)
}

func wrapTxError(err error, msg string) error {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
