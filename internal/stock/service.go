package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/pricing"
	product "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/metrics"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// Service is the stock ledger. Every counter change is paired with exactly
// one movement row in the same transaction.
type Service interface {
	RecordMovement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, kind enums.MovementType, quantity int, variants types.VariantRefs, reference *uuid.UUID) (*models.StockMovement, error)
	ApplyInbound(ctx context.Context, input InboundInput) (*InboundResult, error)
	ApplyOutbound(ctx context.Context, tx *gorm.DB, line OutboundLine) (*models.StockMovement, error)
	ListMovements(ctx context.Context, productID uuid.UUID, params pagination.Params) (*MovementList, error)
	Totals(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Totals, error)
}

// InboundInput is a stock-in event. Each listed variant receives Quantity.
type InboundInput struct {
	ProductID uuid.UUID
	Quantity  int
	Variants  []pricing.Selection
}

type InboundResult struct {
	Movement MovementDTO         `json:"movement"`
	Product  *product.ProductDTO `json:"product"`
}

// OutboundLine is one sold line already priced and checked by the caller.
type OutboundLine struct {
	ProductID  uuid.UUID
	Quantity   int
	Selections []pricing.ResolvedSelection
	Reference  *uuid.UUID
}

// Totals are the movement sums of one product.
type Totals struct {
	In  int `json:"calculated_stock_in"`
	Out int `json:"calculated_stock_out"`
}

type service struct {
	repo        *Repository
	productRepo *product.Repository
	dbClient    db.TxRunner
	projector   *product.Projector
	engine      *pricing.Engine
	metrics     *metrics.SalesMetrics
	logg        *logger.Logger
}

func NewService(repo *Repository, productRepo *product.Repository, dbClient db.TxRunner, projector *product.Projector, m *metrics.SalesMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if projector == nil {
		return nil, fmt.Errorf("projector required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        repo,
		productRepo: productRepo,
		dbClient:    dbClient,
		projector:   projector,
		engine:      pricing.NewEngine(),
		metrics:     m,
		logg:        logg,
	}, nil
}

func (s *service) RecordMovement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, kind enums.MovementType, quantity int, variants types.VariantRefs, reference *uuid.UUID) (*models.StockMovement, error) {
	if quantity <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "movement quantity must be positive, got %d", quantity).
			WithDetails(map[string]any{"product_id": productID, "quantity": quantity})
	}
	if !kind.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid movement type %q", kind)
	}
	if variants == nil {
		variants = types.VariantRefs{}
	}
	movement := &models.StockMovement{
		ProductID: productID,
		Type:      kind,
		Quantity:  quantity,
		Variants:  variants,
		Reference: reference,
	}
	if err := s.repo.WithTx(tx).InsertMovement(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

// ApplyInbound adds stock to a product and the listed variants in its own
// transaction, then refreshes the projection.
func (s *service) ApplyInbound(ctx context.Context, input InboundInput) (*InboundResult, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "quantity must be positive, got %d", input.Quantity).
			WithDetails(map[string]any{"product_id": input.ProductID, "quantity": input.Quantity})
	}

	var movement *models.StockMovement
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.productRepo.WithTx(tx).FindForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		// the quote resolves selections against live pivots; its price is unused
		quote, err := s.engine.Quote(locked, locked.Pivots, input.Quantity, input.Variants)
		if err != nil {
			return err
		}

		txRepo := s.repo.WithTx(tx)
		if err := txRepo.IncrementProduct(ctx, locked.ID, input.Quantity); err != nil {
			return err
		}
		for _, sel := range quote.Selections {
			if err := txRepo.IncrementPivot(ctx, locked.ID, sel.Pivot.AttributeValueID, input.Quantity); err != nil {
				return err
			}
		}
		movement, err = s.RecordMovement(ctx, tx, locked.ID, enums.MovementTypeIn, input.Quantity, quote.Variants, nil)
		if err != nil {
			return err
		}
		return s.projector.Rebuild(ctx, tx, locked.ID)
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply inbound stock")
		}
		return nil, err
	}
	s.metrics.IncMovement(enums.MovementTypeIn.String())

	ctx = s.logg.WithFields(ctx, map[string]any{
		"product_id": input.ProductID.String(),
		"quantity":   input.Quantity,
		"variants":   len(input.Variants),
	})
	s.logg.Info(ctx, "stock received")

	detail, err := s.productRepo.GetProductDetail(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	return &InboundResult{
		Movement: NewMovementDTO(*movement),
		Product:  product.NewProductDTO(detail),
	}, nil
}

// ApplyOutbound takes a sold line off the product and its variants inside
// the caller's transaction. Each decrement is guarded by stock >= quantity
// so a concurrent writer can never push stock negative; a rejected guard
// reports the stock actually left.
func (s *service) ApplyOutbound(ctx context.Context, tx *gorm.DB, line OutboundLine) (*models.StockMovement, error) {
	if line.Quantity <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "quantity must be positive, got %d", line.Quantity)
	}
	txRepo := s.repo.WithTx(tx)

	ok, err := txRepo.DecrementProduct(ctx, line.ProductID, line.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		available, err := txRepo.ProductStock(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		return nil, pkgerrors.InsufficientStock(pkgerrors.StockShortage{
			ProductID: line.ProductID.String(),
			Requested: line.Quantity,
			Available: available,
		})
	}

	refs := make(types.VariantRefs, 0, len(line.Selections))
	for _, sel := range line.Selections {
		valueID := sel.Pivot.AttributeValueID
		ok, err := txRepo.DecrementPivot(ctx, line.ProductID, valueID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			available, err := txRepo.PivotStock(ctx, line.ProductID, valueID)
			if err != nil {
				return nil, err
			}
			id := valueID.String()
			return nil, pkgerrors.InsufficientStock(pkgerrors.StockShortage{
				ProductID:        line.ProductID.String(),
				AttributeValueID: &id,
				Requested:        line.Quantity,
				Available:        available,
			})
		}
		refs = append(refs, pricing.VariantRef(sel.Pivot))
	}

	return s.RecordMovement(ctx, tx, line.ProductID, enums.MovementTypeOut, line.Quantity, refs, line.Reference)
}

// MovementList is a page of movements.
type MovementList struct {
	Movements  []MovementDTO `json:"movements"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func (s *service) ListMovements(ctx context.Context, productID uuid.UUID, params pagination.Params) (*MovementList, error) {
	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListMovements(ctx, productID, params)
	if err != nil {
		return nil, err
	}
	out := &MovementList{Movements: make([]MovementDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Movements = append(out.Movements, NewMovementDTO(row))
	}
	return out, nil
}

// Totals returns the in/out sums per product; products without movements
// map to zero totals.
func (s *service) Totals(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Totals, error) {
	rows, err := s.repo.SumByProduct(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Totals, len(productIDs))
	for _, id := range productIDs {
		out[id] = Totals{}
	}
	for _, row := range rows {
		t := out[row.ProductID]
		switch row.Type {
		case enums.MovementTypeIn:
			t.In += row.Total
		case enums.MovementTypeOut:
			t.Out += row.Total
		}
		out[row.ProductID] = t
	}
	return out, nil
}

// MovementDTO is the API view of a movement.
type MovementDTO struct {
	ID        uuid.UUID         `json:"id"`
	ProductID uuid.UUID         `json:"product_id"`
	Type      string            `json:"type"`
	Quantity  int               `json:"quantity"`
	Variants  types.VariantRefs `json:"variants"`
	Reference *uuid.UUID        `json:"reference,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewMovementDTO(m models.StockMovement) MovementDTO {
	variants := m.Variants
	if variants == nil {
		variants = types.VariantRefs{}
	}
	return MovementDTO{
		ID:        m.ID,
		ProductID: m.ProductID,
		Type:      m.Type.String(),
		Quantity:  m.Quantity,
		Variants:  variants,
		Reference: m.Reference,
		CreatedAt: m.CreatedAt,
	}
}
