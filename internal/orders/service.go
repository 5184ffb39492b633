package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/cart"
	"github.com/angelmondragon/retail-backend/internal/pricing"
	product "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
)

// Service turns carts into web orders and moves them through review.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	GetOwnOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
}

// PlaceOrderInput carries the shipping details of a checkout.
type PlaceOrderInput struct {
	ShippingAddress string
	City            string
	Department      *string
	Phone           string
	Notes           *string
}

// UpdateStatusInput is an admin review decision.
type UpdateStatusInput struct {
	Status       enums.OrderStatus
	ShippingDate *time.Time
}

// transitions lists the statuses reachable from each status.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusRejected},
	enums.OrderStatusConfirmed: {enums.OrderStatusCompleted, enums.OrderStatusRejected},
}

type service struct {
	repo         Repository
	carts        cart.CartRepository
	products     *product.Repository
	tx           txRunner
	engine       *pricing.Engine
	shippingCost decimal.Decimal
	logg         *logger.Logger
}

func NewService(repo Repository, carts cart.CartRepository, products *product.Repository, tx txRunner, shippingCost decimal.Decimal, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if shippingCost.IsNegative() {
		return nil, fmt.Errorf("shipping cost cannot be negative")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:         repo,
		carts:        carts,
		products:     products,
		tx:           tx,
		engine:       pricing.NewEngine(),
		shippingCost: shippingCost,
		logg:         logg,
	}, nil
}

// PlaceOrder converts the user's cart into a pending order at current
// prices. Stock must cover the order but is not taken: it only moves through
// POS sales and stock adjustments. The cart is emptied in the same
// transaction.
func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	input.ShippingAddress = strings.TrimSpace(input.ShippingAddress)
	input.City = strings.TrimSpace(input.City)
	input.Phone = strings.TrimSpace(input.Phone)
	if input.ShippingAddress == "" || input.City == "" || input.Phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping information is incomplete").
			WithDetails(map[string]any{"required": []string{"shipping_address", "city", "phone"}})
	}

	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		record, err := cartRepo.FindByUser(ctx, userID)
		if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return err
		}
		if record == nil || len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		items, subtotal, err := s.priceCart(ctx, tx, record.Items)
		if err != nil {
			return err
		}
		order := &models.Order{
			UserID:          userID,
			Status:          enums.OrderStatusPending,
			Subtotal:        subtotal,
			ShippingCost:    s.shippingCost,
			Total:           subtotal.Add(s.shippingCost),
			ShippingAddress: input.ShippingAddress,
			City:            input.City,
			Department:      input.Department,
			Phone:           input.Phone,
			Notes:           input.Notes,
			Items:           items,
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		orderID = order.ID
		return cartRepo.ClearItems(ctx, record.ID)
	})
	if err != nil {
		return nil, wrapTxError(err, "place order")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "user_id": userID.String()})
	s.logg.Info(ctx, "order placed")
	return s.GetOrder(ctx, orderID)
}

// priceCart re-quotes every cart line against locked product rows and
// checks the summed demand.
func (s *service) priceCart(ctx context.Context, tx *gorm.DB, lines []models.CartItem) ([]models.OrderItem, decimal.Decimal, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; !ok {
			seen[line.ProductID] = struct{}{}
			ids = append(ids, line.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	rows, err := s.products.WithTx(tx).FindManyForUpdate(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	locked := make(map[uuid.UUID]*models.Product, len(rows))
	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}

	demand := pricing.NewDemand()
	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		p, ok := locked[line.ProductID]
		if !ok {
			return nil, decimal.Zero, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", line.ProductID)
		}
		selections, err := pricing.ParseSelectionKey(line.SelectionKey)
		if err != nil {
			return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart selection")
		}
		quote, err := s.engine.Quote(p, p.Pivots, line.Quantity, selections)
		if err != nil {
			return nil, decimal.Zero, err
		}
		demand.Add(quote)
		subtotal = subtotal.Add(quote.Subtotal)
		items = append(items, models.OrderItem{
			ProductID: quote.ProductID,
			Quantity:  quote.Quantity,
			UnitPrice: quote.UnitPrice,
			Subtotal:  quote.Subtotal,
			Variants:  quote.Variants,
		})
	}
	if err := demand.Check(locked); err != nil {
		return nil, decimal.Zero, err
	}
	return items, subtotal, nil
}

// UpdateStatus applies a review decision. Only pending → confirmed|rejected
// and confirmed → completed|rejected are allowed.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", input.Status)
	}
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		order, err := txRepo.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if !canTransition(order.Status, input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "order cannot move from %s to %s", order.Status, input.Status).
				WithDetails(map[string]any{"from": order.Status, "to": input.Status})
		}
		return txRepo.UpdateStatus(ctx, orderID, input.Status, input.ShippingDate)
	})
	if err != nil {
		return nil, wrapTxError(err, "update order status")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"from":     from.String(),
		"to":       input.Status.String(),
	})
	s.logg.Info(ctx, "order status updated")
	return s.GetOrder(ctx, orderID)
}

func canTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return NewOrderDTO(order), nil
}

// GetOwnOrder hides other users' orders behind NOT_FOUND.
func (s *service) GetOwnOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return NewOrderDTO(order), nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", *filter.Status)
	}
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, err
	}
	out := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, *NewOrderDTO(&rows[i]))
	}
	return out, nil
}

func wrapTxError(err error, msg string) error {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
