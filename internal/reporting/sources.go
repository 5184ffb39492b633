package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/repo"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
)

// Window is a half-open [From, To) interval; a zero Window is unbounded.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Unbounded() bool {
	return w.From.IsZero() && w.To.IsZero()
}

func (w Window) apply(q *gorm.DB, column string) *gorm.DB {
	if !w.From.IsZero() {
		q = q.Where(column+" >= ?", w.From)
	}
	if !w.To.IsZero() {
		q = q.Where(column+" < ?", w.To)
	}
	return q
}

// POSSales supplies committed point-of-sale transactions.
type POSSales interface {
	SalesIn(ctx context.Context, w Window) ([]models.Sale, error)
}

// WebOrders supplies completed storefront orders.
type WebOrders interface {
	CompletedOrdersIn(ctx context.Context, w Window) ([]models.Order, error)
}

// ContractPayments supplies installment payments from contract billing,
// which lives outside this service.
type ContractPayments interface {
	PaymentsIn(ctx context.Context, w Window) ([]ContractPayment, error)
}

// ContractPayment is one installment received on a contract.
type ContractPayment struct {
	ID     uuid.UUID
	PaidAt time.Time
	Amount decimal.Decimal
	Payer  string
	Notes  *string
}

type gormPOSSales struct {
	base repo.Base
}

// NewPOSSales reads sales with their items, products and categories.
func NewPOSSales(db *gorm.DB) POSSales {
	return &gormPOSSales{base: repo.NewBase(db)}
}

func (s *gormPOSSales) SalesIn(ctx context.Context, w Window) ([]models.Sale, error) {
	q := s.base.DB(ctx).
		Preload("Items").
		Preload("Items.Product").
		Preload("Items.Product.Category")
	var rows []models.Sale
	err := w.apply(q, "created_at").Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, repo.MapError(err, "sales")
}

type gormWebOrders struct {
	base repo.Base
}

// NewWebOrders reads completed orders.
func NewWebOrders(db *gorm.DB) WebOrders {
	return &gormWebOrders{base: repo.NewBase(db)}
}

func (s *gormWebOrders) CompletedOrdersIn(ctx context.Context, w Window) ([]models.Order, error) {
	q := s.base.DB(ctx).Preload("Items").Where("status = ?", enums.OrderStatusCompleted)
	var rows []models.Order
	err := w.apply(q, "created_at").Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, repo.MapError(err, "orders")
}
