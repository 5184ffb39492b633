package types

import (
	"database/sql/driver"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// VariantValue is one value entry of the product variants projection.
type VariantValue struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceDelta float64   `json:"priceDelta"`
	Stock      int       `json:"stock"`
}

// VariantGroup groups the offered values of a single attribute.
type VariantGroup struct {
	ID     uuid.UUID      `json:"id"`
	Name   string         `json:"name"`
	Values []VariantValue `json:"values"`
}

// VariantGroups is the denormalized variants column stored on products.
// It is derived from the pivot rows and never edited directly.
type VariantGroups []VariantGroup

func (VariantGroups) GormDataType() string { return "json" }

func (VariantGroups) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonDataType(db)
}

func (v VariantGroups) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	return marshalColumn(v)
}

func (v *VariantGroups) Scan(src any) error {
	var out VariantGroups
	if err := unmarshalColumn(src, &out, "VariantGroups"); err != nil {
		return err
	}
	if out == nil {
		out = VariantGroups{}
	}
	*v = out
	return nil
}

// Pairs flattens the projection into (attribute id, value id) pairs.
func (v VariantGroups) Pairs() map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID)
	for _, group := range v {
		for _, value := range group.Values {
			out[value.ID] = group.ID
		}
	}
	return out
}

// VariantRef describes one attribute value involved in a stock movement or
// a sold line.
type VariantRef struct {
	AttributeValueID uuid.UUID `json:"attribute_value_id"`
	Attribute        string    `json:"attribute"`
	Value            string    `json:"value"`
	PriceDelta       string    `json:"price_delta"`
}

// VariantRefs is stored as JSON on stock movements, sale items and cart lines.
type VariantRefs []VariantRef

func (VariantRefs) GormDataType() string { return "json" }

func (VariantRefs) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonDataType(db)
}

func (v VariantRefs) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	return marshalColumn(v)
}

func (v *VariantRefs) Scan(src any) error {
	var out VariantRefs
	if err := unmarshalColumn(src, &out, "VariantRefs"); err != nil {
		return err
	}
	if out == nil {
		out = VariantRefs{}
	}
	*v = out
	return nil
}

// ValueIDs returns the attribute value ids in order.
func (v VariantRefs) ValueIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(v))
	for _, ref := range v {
		ids = append(ids, ref.AttributeValueID)
	}
	return ids
}
