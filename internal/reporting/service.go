// Package reporting merges POS sales, completed web orders and contract
// payments into one paginated sales feed with period totals.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
	"github.com/angelmondragon/retail-backend/pkg/slug"
)

// PageSize is the fixed feed page size.
const PageSize = 20

const (
	webPaymentMethod = "web"
	uncategorized    = "uncategorized"
)

type Service interface {
	Feed(ctx context.Context, input FeedInput) (*Feed, error)
}

type FeedInput struct {
	Period enums.ReportPeriod
	Page   int
}

// Feed is one page of the merged transaction list plus stats over the
// whole period.
type Feed struct {
	Period       string              `json:"period"`
	Stats        Stats               `json:"stats"`
	Transactions []Transaction       `json:"transactions"`
	Meta         pagination.PageMeta `json:"meta"`
}

type Stats struct {
	Total          decimal.Decimal            `json:"total"`
	POSTotal       decimal.Decimal            `json:"pos_total"`
	OrdersTotal    decimal.Decimal            `json:"orders_total"`
	ContractsTotal decimal.Decimal            `json:"contracts_total"`
	Categories     map[string]decimal.Decimal `json:"categories"`
	Subcategories  map[string]decimal.Decimal `json:"subcategories"`
}

// Transaction is one feed entry of any origin.
type Transaction struct {
	Type           enums.TransactionType      `json:"type"`
	ID             uuid.UUID                  `json:"id"`
	CreatedAt      time.Time                  `json:"created_at"`
	Total          decimal.Decimal            `json:"total"`
	PaymentMethod  string                     `json:"payment_method,omitempty"`
	UserID         *uuid.UUID                 `json:"user_id,omitempty"`
	Payer          string                     `json:"payer,omitempty"`
	Details        *string                    `json:"details,omitempty"`
	ItemCount      int                        `json:"item_count"`
	CategoryTotals map[string]decimal.Decimal `json:"category_totals,omitempty"`
}

type service struct {
	sales     POSSales
	orders    WebOrders
	contracts ContractPayments
	logg      *logger.Logger
	now       func() time.Time
	loc       *time.Location
}

// NewService builds the feed over the given sources. Any source may be nil
// and is then left out of the feed.
func NewService(sales POSSales, orders WebOrders, contracts ContractPayments, loc *time.Location, logg *logger.Logger) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if loc == nil {
		loc = time.Local
	}
	return &service{
		sales:     sales,
		orders:    orders,
		contracts: contracts,
		logg:      logg,
		now:       time.Now,
		loc:       loc,
	}, nil
}

func (s *service) Feed(ctx context.Context, input FeedInput) (*Feed, error) {
	if input.Period == "" {
		input.Period = enums.ReportPeriodAll
	}
	if !input.Period.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid period %q", input.Period).
			WithDetails(map[string]any{"period": input.Period})
	}
	window := PeriodWindow(input.Period, s.now().In(s.loc))

	stats := Stats{
		Total:          decimal.Zero,
		POSTotal:       decimal.Zero,
		OrdersTotal:    decimal.Zero,
		ContractsTotal: decimal.Zero,
		Categories:     map[string]decimal.Decimal{},
		Subcategories:  map[string]decimal.Decimal{},
	}
	var all []Transaction

	if s.sales != nil {
		rows, err := s.sales.SalesIn(ctx, window)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			tx := posTransaction(&rows[i], &stats)
			stats.POSTotal = stats.POSTotal.Add(tx.Total)
			all = append(all, tx)
		}
	}
	if s.orders != nil {
		rows, err := s.orders.CompletedOrdersIn(ctx, window)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			tx := orderTransaction(&rows[i])
			stats.OrdersTotal = stats.OrdersTotal.Add(tx.Total)
			all = append(all, tx)
		}
	}
	if s.contracts != nil {
		rows, err := s.contracts.PaymentsIn(ctx, window)
		if err != nil {
			return nil, err
		}
		for _, payment := range rows {
			tx := Transaction{
				Type:      enums.TransactionTypeContract,
				ID:        payment.ID,
				CreatedAt: payment.PaidAt,
				Total:     payment.Amount,
				Payer:     payment.Payer,
				Details:   payment.Notes,
			}
			stats.ContractsTotal = stats.ContractsTotal.Add(tx.Total)
			all = append(all, tx)
		}
	}
	stats.Total = stats.POSTotal.Add(stats.OrdersTotal).Add(stats.ContractsTotal)

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() > all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	page, meta := pagination.Slice(all, pagination.Page{Number: input.Page, Size: PageSize})

	ctx = s.logg.WithFields(ctx, map[string]any{
		"period":       input.Period.String(),
		"transactions": len(all),
	})
	s.logg.Debug(ctx, "sales feed assembled")

	return &Feed{
		Period:       input.Period.String(),
		Stats:        stats,
		Transactions: page,
		Meta:         meta,
	}, nil
}

// PeriodWindow bounds a period around now: the current day, the ISO week
// starting Monday, or the calendar month. ReportPeriodAll is unbounded.
func PeriodWindow(period enums.ReportPeriod, now time.Time) Window {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case enums.ReportPeriodDaily:
		return Window{From: day, To: day.AddDate(0, 0, 1)}
	case enums.ReportPeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return Window{From: start, To: start.AddDate(0, 0, 7)}
	case enums.ReportPeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Window{From: start, To: start.AddDate(0, 1, 0)}
	default:
		return Window{}
	}
}

// posTransaction converts a sale and books its lines into the category
// totals.
func posTransaction(sale *models.Sale, stats *Stats) Transaction {
	userID := sale.UserID
	tx := Transaction{
		Type:           enums.TransactionTypePOS,
		ID:             sale.ID,
		CreatedAt:      sale.CreatedAt,
		Total:          sale.Total,
		PaymentMethod:  sale.PaymentMethod.String(),
		UserID:         &userID,
		Details:        sale.Notes,
		CategoryTotals: map[string]decimal.Decimal{},
	}
	for _, item := range sale.Items {
		tx.ItemCount += item.Quantity
		category, subcategory := categoryOf(item.Product)
		tx.CategoryTotals[category] = tx.CategoryTotals[category].Add(item.Subtotal)
		stats.Categories[category] = stats.Categories[category].Add(item.Subtotal)
		if subcategory != "" {
			key := category + "/" + subcategory
			stats.Subcategories[key] = stats.Subcategories[key].Add(item.Subtotal)
		}
	}
	return tx
}

func orderTransaction(order *models.Order) Transaction {
	userID := order.UserID
	tx := Transaction{
		Type:          enums.TransactionTypeOrder,
		ID:            order.ID,
		CreatedAt:     order.CreatedAt,
		Total:         order.Total,
		PaymentMethod: webPaymentMethod,
		UserID:        &userID,
		Details:       order.Notes,
	}
	for _, item := range order.Items {
		tx.ItemCount += item.Quantity
	}
	return tx
}

// categoryOf keys a product by its category slug, falling back to the
// legacy free-text columns.
func categoryOf(p *models.Product) (string, string) {
	if p == nil {
		return uncategorized, ""
	}
	category := ""
	switch {
	case p.Category != nil:
		category = p.Category.Slug
	case p.LegacyCategory != nil:
		category = slug.Make(strings.TrimSpace(*p.LegacyCategory))
	}
	if category == "" {
		category = uncategorized
	}
	subcategory := ""
	if p.LegacySubcategory != nil {
		subcategory = slug.Make(strings.TrimSpace(*p.LegacySubcategory))
	}
	return category, subcategory
}
