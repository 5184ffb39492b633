package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
)

type fixture struct {
	product *models.Product
	pivots  []models.ProductAttributeValue
	large   uuid.UUID
	red     uuid.UUID
}

func newFixture() fixture {
	size := &models.Attribute{ID: uuid.New(), Name: "Size"}
	color := &models.Attribute{ID: uuid.New(), Name: "Color"}
	large := &models.AttributeValue{ID: uuid.New(), AttributeID: size.ID, Name: "L", Attribute: size}
	red := &models.AttributeValue{ID: uuid.New(), AttributeID: color.ID, Name: "Red", Attribute: color}

	product := &models.Product{ID: uuid.New(), Price: decimal.NewFromInt(100), Stock: 10}
	return fixture{
		product: product,
		large:   large.ID,
		red:     red.ID,
		pivots: []models.ProductAttributeValue{
			{ProductID: product.ID, AttributeValueID: large.ID, PriceDelta: decimal.NewFromInt(10), Stock: 5, AttributeValue: large},
			{ProductID: product.ID, AttributeValueID: red.ID, PriceDelta: decimal.RequireFromString("2.50"), Stock: 8, AttributeValue: red},
		},
	}
}

func TestQuoteAddsPriceDeltas(t *testing.T) {
	f := newFixture()
	engine := NewEngine()

	quote, err := engine.Quote(f.product, f.pivots, 3, []Selection{{AttributeValueID: f.large}})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !quote.UnitPrice.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("expected unit price 110, got %s", quote.UnitPrice)
	}
	if !quote.Subtotal.Equal(decimal.NewFromInt(330)) {
		t.Fatalf("expected subtotal 330, got %s", quote.Subtotal)
	}
	if len(quote.Variants) != 1 || quote.Variants[0].Attribute != "Size" || quote.Variants[0].Value != "L" {
		t.Fatalf("unexpected variant refs %+v", quote.Variants)
	}

	both, err := engine.Quote(f.product, f.pivots, 2, []Selection{{AttributeValueID: f.red}, {AttributeValueID: f.large}})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !both.UnitPrice.Equal(decimal.RequireFromString("112.50")) {
		t.Fatalf("expected unit price 112.50, got %s", both.UnitPrice)
	}
	if !both.Subtotal.Equal(decimal.NewFromInt(225)) {
		t.Fatalf("expected subtotal 225, got %s", both.Subtotal)
	}
}

func TestQuoteWithoutSelectionsUsesProductPrice(t *testing.T) {
	f := newFixture()
	quote, err := NewEngine().Quote(f.product, nil, 4, nil)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !quote.Subtotal.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected subtotal 400, got %s", quote.Subtotal)
	}
}

func TestQuoteRejectsUnknownAndTombstonedValues(t *testing.T) {
	f := newFixture()
	engine := NewEngine()

	_, err := engine.Quote(f.product, f.pivots, 1, []Selection{{AttributeValueID: uuid.New()}})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnknownVariant) {
		t.Fatalf("expected UNKNOWN_VARIANT for missing pivot, got %v", err)
	}

	f.pivots[0].AttributeValue.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	_, err = engine.Quote(f.product, f.pivots, 1, []Selection{{AttributeValueID: f.large}})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnknownVariant) {
		t.Fatalf("expected UNKNOWN_VARIANT for tombstoned value, got %v", err)
	}

	f.pivots[1].AttributeValue = nil
	_, err = engine.Quote(f.product, f.pivots, 1, []Selection{{AttributeValueID: f.red}})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnknownVariant) {
		t.Fatalf("expected UNKNOWN_VARIANT for dangling pivot, got %v", err)
	}
}

func TestQuoteRejectsPivotOfAnotherProduct(t *testing.T) {
	f := newFixture()
	other := &models.Product{ID: uuid.New(), Price: decimal.NewFromInt(50), Stock: 10}
	_, err := NewEngine().Quote(other, f.pivots, 1, []Selection{{AttributeValueID: f.large}})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnknownVariant) {
		t.Fatalf("expected UNKNOWN_VARIANT, got %v", err)
	}
}

func TestQuoteValidatesInput(t *testing.T) {
	f := newFixture()
	engine := NewEngine()

	if _, err := engine.Quote(f.product, f.pivots, 0, nil); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected INVALID_QUANTITY for zero quantity, got %v", err)
	}
	if _, err := engine.Quote(f.product, f.pivots, -2, nil); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected INVALID_QUANTITY for negative quantity, got %v", err)
	}
	dup := []Selection{{AttributeValueID: f.large}, {AttributeValueID: f.large}}
	if _, err := engine.Quote(f.product, f.pivots, 1, dup); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for duplicate selection, got %v", err)
	}
	neg := []Selection{{AttributeValueID: f.large, Quantity: -1}}
	if _, err := engine.Quote(f.product, f.pivots, 1, neg); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected INVALID_QUANTITY for negative selection, got %v", err)
	}
}

func TestCheckFeasibilityReportsVariantShortage(t *testing.T) {
	f := newFixture()
	engine := NewEngine()

	quote, err := engine.Quote(f.product, f.pivots, 6, []Selection{{AttributeValueID: f.large}})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	err = engine.CheckFeasibility(f.product, quote)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}
	shortage := typed.Details().(pkgerrors.StockShortage)
	if shortage.Available != 5 || shortage.Requested != 6 {
		t.Fatalf("unexpected shortage %+v", shortage)
	}
	if shortage.AttributeValueID == nil || *shortage.AttributeValueID != f.large.String() {
		t.Fatalf("expected shortage to name the L variant, got %+v", shortage)
	}

	ok, _ := engine.Quote(f.product, f.pivots, 5, []Selection{{AttributeValueID: f.large}})
	if err := engine.CheckFeasibility(f.product, ok); err != nil {
		t.Fatalf("5 of 5 should be feasible: %v", err)
	}
}

func TestCheckFeasibilityReportsProductShortageFirst(t *testing.T) {
	f := newFixture()
	f.product.Stock = 2
	engine := NewEngine()

	quote, _ := engine.Quote(f.product, f.pivots, 3, []Selection{{AttributeValueID: f.large}})
	err := engine.CheckFeasibility(f.product, quote)
	shortage := pkgerrors.As(err).Details().(pkgerrors.StockShortage)
	if shortage.AttributeValueID != nil || shortage.Available != 2 {
		t.Fatalf("expected product-level shortage, got %+v", shortage)
	}
}

func TestDemandAggregatesAcrossLines(t *testing.T) {
	f := newFixture()
	engine := NewEngine()

	first, _ := engine.Quote(f.product, f.pivots, 3, []Selection{{AttributeValueID: f.large}})
	second, _ := engine.Quote(f.product, f.pivots, 3, []Selection{{AttributeValueID: f.large}})
	for _, q := range []*Quote{first, second} {
		if err := engine.CheckFeasibility(f.product, q); err != nil {
			t.Fatalf("each line alone is feasible: %v", err)
		}
	}

	demand := NewDemand()
	demand.Add(first)
	demand.Add(second)
	if demand.ProductQuantity(f.product.ID) != 6 {
		t.Fatalf("expected aggregated product demand 6, got %d", demand.ProductQuantity(f.product.ID))
	}
	err := demand.Check(map[uuid.UUID]*models.Product{f.product.ID: f.product})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected aggregated demand to exceed variant stock, got %v", err)
	}
}

func TestSelectionQuantityMustMatchLineQuantity(t *testing.T) {
	f := newFixture()
	engine := NewEngine()

	for _, qty := range []int{2, 5} {
		_, err := engine.Quote(f.product, f.pivots, 1, []Selection{{AttributeValueID: f.large, Quantity: qty}})
		if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("selection quantity %d on a line of 1: expected VALIDATION_ERROR, got %v", qty, err)
		}
	}

	quote, err := engine.Quote(f.product, f.pivots, 5, []Selection{{AttributeValueID: f.large, Quantity: 5}})
	if err != nil {
		t.Fatalf("restated line quantity should be accepted: %v", err)
	}
	demand := NewDemand()
	demand.Add(quote)
	if err := demand.Check(map[uuid.UUID]*models.Product{f.product.ID: f.product}); err != nil {
		t.Fatalf("5 of 5 should be feasible: %v", err)
	}

	over, _ := engine.Quote(f.product, f.pivots, 6, []Selection{{AttributeValueID: f.large}})
	err = engine.CheckFeasibility(f.product, over)
	shortage := pkgerrors.As(err).Details().(pkgerrors.StockShortage)
	if shortage.Requested != 6 {
		t.Fatalf("variant demand must equal the line quantity, got %+v", shortage)
	}
}

func TestEffectivePrice(t *testing.T) {
	base := decimal.NewFromInt(100)
	if got := EffectivePrice(base, decimal.NewFromInt(20), enums.MarkupTypePercentage); !got.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("percentage markup: got %s", got)
	}
	if got := EffectivePrice(base, decimal.NewFromInt(15), enums.MarkupTypeManual); !got.Equal(decimal.NewFromInt(115)) {
		t.Fatalf("manual markup: got %s", got)
	}
	if got := EffectivePrice(decimal.RequireFromString("9.99"), decimal.NewFromInt(10), enums.MarkupTypePercentage); !got.Equal(decimal.RequireFromString("10.99")) {
		t.Fatalf("rounded percentage markup: got %s", got)
	}
}

func TestVariantPricePrefersPivotBasePrice(t *testing.T) {
	f := newFixture()
	pivot := f.pivots[0]
	if got := VariantPrice(f.product, &pivot); !got.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("expected product price plus delta, got %s", got)
	}

	base := decimal.NewFromInt(80)
	markup := decimal.NewFromInt(25)
	pivot.BasePrice = &base
	pivot.Markup = &markup
	pivot.MarkupType = enums.MarkupTypePercentage
	if got := VariantPrice(f.product, &pivot); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected pivot override price 100, got %s", got)
	}

	zero := decimal.Zero
	pivot.BasePrice = &zero
	if got := VariantPrice(f.product, &pivot); !got.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("zero base price must inherit the product price, got %s", got)
	}
}

func TestSelectionKeyIsOrderInsensitive(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	k1 := SelectionKey([]Selection{{AttributeValueID: a}, {AttributeValueID: b, Quantity: 2}})
	k2 := SelectionKey([]Selection{{AttributeValueID: b}, {AttributeValueID: a}})
	if k1 != k2 {
		t.Fatalf("keys differ: %q vs %q", k1, k2)
	}
	parsed, err := ParseSelectionKey(k1)
	if err != nil || len(parsed) != 2 {
		t.Fatalf("ParseSelectionKey(%q) = %v, %v", k1, parsed, err)
	}
	if SelectionKey(parsed) != k1 {
		t.Fatalf("parsed key does not re-encode to the same key")
	}
	if SelectionKey(nil) != "" {
		t.Fatalf("empty selection should have empty key")
	}
}
