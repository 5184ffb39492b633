package sales

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/pricing"
	product "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/internal/stock"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/metrics"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
)

// Service records point-of-sale transactions.
type Service interface {
	CreateSale(ctx context.Context, input CreateSaleInput) (*SaleDTO, error)
	GetSale(ctx context.Context, id uuid.UUID) (*SaleDTO, error)
	ListSales(ctx context.Context, filter ListFilter, params pagination.Params) (*SaleList, error)
	LookupBarcode(ctx context.Context, barcode string) ([]product.ProductDTO, error)
}

// CreateSaleInput is a validated POS checkout request.
type CreateSaleInput struct {
	UserID        uuid.UUID
	PaymentMethod enums.PaymentMethod
	Notes         *string
	Items         []LineInput
}

// LineInput is one requested line: a product, a quantity and the chosen
// attribute values.
type LineInput struct {
	ProductID  uuid.UUID
	Quantity   int
	Selections []pricing.Selection
}

// Phase tracks how far a sale got before it committed or aborted.
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseReserving  Phase = "reserving"
	PhasePersisting Phase = "persisting"
	PhaseCommitted  Phase = "committed"
	PhaseAborted    Phase = "aborted"
)

type service struct {
	repo        *Repository
	productRepo *product.Repository
	stock       stock.Service
	projector   *product.Projector
	dbClient    db.TxRunner
	engine      *pricing.Engine
	metrics     *metrics.SalesMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(repo *Repository, productRepo *product.Repository, stockSvc stock.Service, projector *product.Projector, dbClient db.TxRunner, m *metrics.SalesMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if stockSvc == nil {
		return nil, fmt.Errorf("stock service required")
	}
	if projector == nil {
		return nil, fmt.Errorf("projector required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        repo,
		productRepo: productRepo,
		stock:       stockSvc,
		projector:   projector,
		dbClient:    dbClient,
		engine:      pricing.NewEngine(),
		metrics:     m,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// saleRun carries one CreateSale attempt through its phases.
type saleRun struct {
	id     uuid.UUID
	input  CreateSaleInput
	phase  Phase
	quotes []*pricing.Quote
	total  decimal.Decimal
}

// CreateSale prices, reserves and records a sale in a single transaction.
// Products and their variants are locked in id order, the aggregated demand
// is checked against the locked rows and every decrement is re-guarded in
// SQL. Any failure rolls back all stock, ledger and sale writes.
func (s *service) CreateSale(ctx context.Context, input CreateSaleInput) (*SaleDTO, error) {
	started := s.now()
	run := &saleRun{id: uuid.New(), input: input, phase: PhaseValidating}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"sale_id":        run.id.String(),
		"user_id":        input.UserID.String(),
		"payment_method": input.PaymentMethod.String(),
		"lines":          len(input.Items),
	})

	if err := validateSale(input); err != nil {
		return nil, s.abort(ctx, run, err)
	}

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.lockProducts(ctx, tx, input.Items)
		if err != nil {
			return err
		}
		if err := s.quote(run, locked); err != nil {
			return err
		}

		run.phase = PhaseReserving
		reference := run.id
		touched := make([]uuid.UUID, 0, len(run.quotes))
		for _, q := range run.quotes {
			if _, err := s.stock.ApplyOutbound(ctx, tx, stock.OutboundLine{
				ProductID:  q.ProductID,
				Quantity:   q.Quantity,
				Selections: q.Selections,
				Reference:  &reference,
			}); err != nil {
				return err
			}
			touched = append(touched, q.ProductID)
		}

		run.phase = PhasePersisting
		if err := s.repo.WithTx(tx).Create(ctx, run.sale()); err != nil {
			return err
		}
		return s.projector.Rebuild(ctx, tx, touched...)
	})
	s.metrics.ObserveDuration(s.now().Sub(started))
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sale")
		}
		return nil, s.abort(ctx, run, err)
	}

	run.phase = PhaseCommitted
	s.metrics.IncCommitted(input.PaymentMethod.String())
	for range run.quotes {
		s.metrics.IncMovement(enums.MovementTypeOut.String())
	}
	ctx = s.logg.WithField(ctx, "total", run.total.StringFixed(2))
	s.logg.Info(ctx, "sale committed")

	sale, err := s.repo.FindByID(ctx, run.id)
	if err != nil {
		return nil, err
	}
	return NewSaleDTO(sale), nil
}

func (s *service) abort(ctx context.Context, run *saleRun, err error) error {
	failedIn := run.phase
	run.phase = PhaseAborted

	reason := string(pkgerrors.CodeInternal)
	if typed := pkgerrors.As(err); typed != nil {
		reason = string(typed.Code())
	}
	s.metrics.IncAborted(reason)

	ctx = s.logg.WithFields(ctx, map[string]any{
		"phase":  string(failedIn),
		"reason": reason,
	})
	if reason == string(pkgerrors.CodeDependency) || reason == string(pkgerrors.CodeInternal) {
		s.logg.Error(ctx, "sale aborted", err)
	} else {
		s.logg.Warn(ctx, "sale aborted")
	}
	return err
}

func validateSale(input CreateSaleInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", input.PaymentMethod).
			WithDetails(map[string]any{"payment_method": input.PaymentMethod})
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, line := range input.Items {
		if line.ProductID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "items[%d].product_id is required", i)
		}
		if line.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "items[%d].quantity must be positive, got %d", i, line.Quantity).
				WithDetails(map[string]any{"product_id": line.ProductID, "quantity": line.Quantity})
		}
	}
	if input.Notes != nil && strings.TrimSpace(*input.Notes) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notes cannot be blank")
	}
	return nil
}

// lockProducts loads every referenced product with its pivots under row
// locks, in ascending id order so concurrent sales cannot deadlock.
func (s *service) lockProducts(ctx context.Context, tx *gorm.DB, lines []LineInput) (map[uuid.UUID]*models.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	rows, err := s.productRepo.WithTx(tx).FindManyForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}
	locked := make(map[uuid.UUID]*models.Product, len(rows))
	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", id).
				WithDetails(map[string]any{"product_id": id})
		}
	}
	return locked, nil
}

// quote prices every line against the locked rows and checks the summed
// demand per product and per variant.
func (s *service) quote(run *saleRun, locked map[uuid.UUID]*models.Product) error {
	demand := pricing.NewDemand()
	run.quotes = make([]*pricing.Quote, 0, len(run.input.Items))
	run.total = decimal.Zero
	for _, line := range run.input.Items {
		p := locked[line.ProductID]
		q, err := s.engine.Quote(p, p.Pivots, line.Quantity, line.Selections)
		if err != nil {
			return err
		}
		demand.Add(q)
		run.quotes = append(run.quotes, q)
		run.total = run.total.Add(q.Subtotal)
	}
	return demand.Check(locked)
}

func (r *saleRun) sale() *models.Sale {
	sale := &models.Sale{
		ID:            r.id,
		UserID:        r.input.UserID,
		Total:         r.total,
		PaymentMethod: r.input.PaymentMethod,
		Notes:         r.input.Notes,
		Items:         make([]models.SaleItem, 0, len(r.quotes)),
	}
	for _, q := range r.quotes {
		sale.Items = append(sale.Items, models.SaleItem{
			ProductID: q.ProductID,
			Quantity:  q.Quantity,
			UnitPrice: q.UnitPrice,
			Subtotal:  q.Subtotal,
			Variants:  q.Variants,
		})
	}
	return sale
}

func (s *service) GetSale(ctx context.Context, id uuid.UUID) (*SaleDTO, error) {
	sale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewSaleDTO(sale), nil
}

func (s *service) ListSales(ctx context.Context, filter ListFilter, params pagination.Params) (*SaleList, error) {
	if filter.PaymentMethod != nil && !filter.PaymentMethod.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", *filter.PaymentMethod)
	}
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, err
	}
	out := &SaleList{Sales: make([]SaleDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Sales = append(out.Sales, *NewSaleDTO(&rows[i]))
	}
	return out, nil
}

// LookupBarcode returns every product carrying the barcode with its variant
// pricing and stock, for the POS scanner.
func (s *service) LookupBarcode(ctx context.Context, barcode string) ([]product.ProductDTO, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcode is required")
	}
	rows, err := s.productRepo.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no product with barcode %s", barcode).
			WithDetails(map[string]any{"barcode": barcode})
	}
	out := make([]product.ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *product.NewProductDTO(&rows[i]))
	}
	return out, nil
}
