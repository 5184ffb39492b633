package attributes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
)

// CreateAttributeInput names a new attribute with optional initial values.
type CreateAttributeInput struct {
	Name   string
	Values []CreateValueInput
}

type UpdateAttributeInput struct {
	Name string
}

type CreateValueInput struct {
	Name       string
	PriceDelta *decimal.Decimal
	Image      *string
}

type UpdateValueInput struct {
	Name       *string
	PriceDelta *decimal.Decimal
	Image      *string
}

// AttributeDTO is the API view of an attribute.
type AttributeDTO struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Values    []ValueDTO `json:"values"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type ValueDTO struct {
	ID          uuid.UUID       `json:"id"`
	AttributeID uuid.UUID       `json:"attribute_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	PriceDelta  decimal.Decimal `json:"price_delta"`
	Image       *string         `json:"image,omitempty"`
}

// DeleteResult reports what a delete touched under the active policy.
type DeleteResult struct {
	Policy           string      `json:"policy"`
	ValuesAffected   int         `json:"values_affected"`
	PivotsRemoved    int64       `json:"pivots_removed"`
	ProductsAffected []uuid.UUID `json:"products_affected"`
}

func attributeToDTO(attr models.Attribute) AttributeDTO {
	values := make([]ValueDTO, 0, len(attr.Values))
	for _, v := range attr.Values {
		values = append(values, valueToDTO(v))
	}
	return AttributeDTO{
		ID:        attr.ID,
		Name:      attr.Name,
		Slug:      attr.Slug,
		Values:    values,
		CreatedAt: attr.CreatedAt,
		UpdatedAt: attr.UpdatedAt,
	}
}

func valueToDTO(v models.AttributeValue) ValueDTO {
	return ValueDTO{
		ID:          v.ID,
		AttributeID: v.AttributeID,
		Name:        v.Name,
		Slug:        v.Slug,
		PriceDelta:  v.PriceDelta,
		Image:       v.Image,
	}
}
