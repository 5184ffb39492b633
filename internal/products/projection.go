package product

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

const projectionSavepoint = "variants_projection"

// Projector keeps products.variants equal to the live pivot rows.
type Projector struct {
	logg *logger.Logger
}

func NewProjector(logg *logger.Logger) *Projector {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Projector{logg: logg}
}

// Rebuild recomputes the projection of each product inside tx. It is best
// effort: failures are logged as a warning and never abort the caller, and
// a failed product is rolled back to its savepoint so tx stays usable.
func (p *Projector) Rebuild(ctx context.Context, tx *gorm.DB, productIDs ...uuid.UUID) error {
	var errs error
	seen := make(map[uuid.UUID]struct{}, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		errs = multierr.Append(errs, p.rebuildOne(ctx, tx, id))
	}
	if errs != nil {
		ctx = p.logg.WithFields(ctx, map[string]any{
			"products": len(seen),
			"failures": len(multierr.Errors(errs)),
			"error":    errs.Error(),
		})
		p.logg.Warn(ctx, "variants projection incomplete")
	}
	return nil
}

func (p *Projector) rebuildOne(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	if err := tx.SavePoint(projectionSavepoint).Error; err != nil {
		return fmt.Errorf("product %s: savepoint: %w", productID, err)
	}
	repo := NewRepository(tx)

	pivots, err := repo.ListPivots(ctx, []uuid.UUID{productID}, false)
	if err != nil {
		tx.RollbackTo(projectionSavepoint)
		return fmt.Errorf("product %s: %w", productID, err)
	}
	variants, dangling := Project(pivots)
	if err := repo.SaveVariants(ctx, productID, variants); err != nil {
		tx.RollbackTo(projectionSavepoint)
		return fmt.Errorf("product %s: %w", productID, err)
	}
	if dangling != nil {
		return fmt.Errorf("product %s: %w", productID, dangling)
	}
	return nil
}

// Project groups live pivot rows by attribute, attributes ordered by name
// and values by name. Tombstoned values and attributes are left out. Pivots
// whose value or attribute row no longer exists are skipped and reported.
func Project(pivots []models.ProductAttributeValue) (types.VariantGroups, error) {
	var dangling error
	groups := make(map[uuid.UUID]*types.VariantGroup)
	for i := range pivots {
		pivot := &pivots[i]
		value := pivot.AttributeValue
		if value == nil {
			dangling = multierr.Append(dangling, fmt.Errorf("attribute value %s does not exist", pivot.AttributeValueID))
			continue
		}
		if value.Attribute == nil {
			dangling = multierr.Append(dangling, fmt.Errorf("attribute %s of value %s does not exist", value.AttributeID, value.ID))
			continue
		}
		if value.DeletedAt.Valid || value.Attribute.DeletedAt.Valid {
			continue
		}
		group, ok := groups[value.AttributeID]
		if !ok {
			group = &types.VariantGroup{ID: value.AttributeID, Name: value.Attribute.Name}
			groups[value.AttributeID] = group
		}
		group.Values = append(group.Values, types.VariantValue{
			ID:         value.ID,
			Name:       value.Name,
			PriceDelta: pivot.PriceDelta.InexactFloat64(),
			Stock:      pivot.Stock,
		})
	}

	out := make(types.VariantGroups, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group.Values, func(i, j int) bool {
			if group.Values[i].Name != group.Values[j].Name {
				return group.Values[i].Name < group.Values[j].Name
			}
			return group.Values[i].ID.String() < group.Values[j].ID.String()
		})
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, dangling
}
