package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/api/responses"
	"github.com/angelmondragon/retail-backend/api/validators"
	product "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
)

// ListProducts serves the catalog browse endpoint with sold and movement
// aggregates per row.
func ListProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParseCursorParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		categoryID, err := validators.QueryUUID(r, "category_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query := r.URL.Query()
		filters := product.ProductListFilters{
			Category:   validators.SanitizeString(query.Get("category"), 255),
			CategoryID: categoryID,
			Query:      validators.SanitizeString(query.Get("q"), 255),
		}
		if raw := strings.TrimSpace(query.Get("is_promo")); raw != "" {
			promo, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "is_promo must be a boolean").
					WithDetails(map[string]any{"field": "is_promo"}))
				return
			}
			filters.IsPromo = &promo
		}

		list, err := svc.ListProducts(r.Context(), product.ListProductsInput{Filters: filters, Pagination: params})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetProduct(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func CreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toCreateInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.CreateProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func UpdateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toUpdateInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.UpdateProduct(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func DeleteProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteProduct(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SyncProductAssociations replaces the attribute and value associations of
// a product.
func SyncProductAssociations(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload associationsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.SyncAssociations(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func CheckBarcode(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		check, err := svc.CheckBarcode(r.Context(), r.URL.Query().Get("barcode"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, check)
	}
}

func GenerateBarcode(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := svc.GenerateBarcode(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"barcode": code})
	}
}

func ListCategories(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListCategories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func CreateCategory(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createCategoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.CreateCategory(r.Context(), product.CreateCategoryInput{
			Name:     validators.SanitizeString(payload.Name, 255),
			ParentID: payload.ParentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

type createCategoryRequest struct {
	Name     string     `json:"name" validate:"required,max=255"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

type createProductRequest struct {
	Barcode           string               `json:"barcode,omitempty" validate:"omitempty,max=64"`
	Name              string               `json:"name" validate:"required,max=255"`
	Brand             *string              `json:"brand,omitempty"`
	Description       *string              `json:"description,omitempty"`
	CategoryID        *uuid.UUID           `json:"category_id,omitempty"`
	SubcategoryID     *uuid.UUID           `json:"subcategory_id,omitempty"`
	Category          *string              `json:"category,omitempty"`
	Subcategory       *string              `json:"subcategory,omitempty"`
	IsPromo           bool                 `json:"is_promo"`
	IsCombo           bool                 `json:"is_combo"`
	BasePrice         decimal.Decimal      `json:"base_price"`
	Markup            decimal.Decimal      `json:"markup"`
	MarkupType        string               `json:"markup_type,omitempty"`
	Price             *decimal.Decimal     `json:"price,omitempty"`
	Stock             int                  `json:"stock" validate:"gte=0"`
	Image             *string              `json:"image,omitempty"`
	Images            []string             `json:"images,omitempty"`
	Associations      *associationsRequest `json:"associations,omitempty"`
}

func (r createProductRequest) toCreateInput() (product.CreateProductInput, error) {
	markupType := enums.MarkupTypePercentage
	if r.MarkupType != "" {
		parsed, err := parseMarkupType(r.MarkupType)
		if err != nil {
			return product.CreateProductInput{}, err
		}
		markupType = parsed
	}
	input := product.CreateProductInput{
		Barcode:           strings.TrimSpace(r.Barcode),
		Name:              validators.SanitizeString(r.Name, 255),
		Brand:             r.Brand,
		Description:       r.Description,
		CategoryID:        r.CategoryID,
		SubcategoryID:     r.SubcategoryID,
		LegacyCategory:    r.Category,
		LegacySubcategory: r.Subcategory,
		IsPromo:           r.IsPromo,
		IsCombo:           r.IsCombo,
		BasePrice:         r.BasePrice,
		Markup:            r.Markup,
		MarkupType:        markupType,
		Price:             r.Price,
		Stock:             r.Stock,
		Image:             r.Image,
		Images:            r.Images,
	}
	if r.Associations != nil {
		assoc, err := r.Associations.toInput()
		if err != nil {
			return product.CreateProductInput{}, err
		}
		input.Associations = &assoc
	}
	return input, nil
}

type updateProductRequest struct {
	Barcode           *string              `json:"barcode,omitempty" validate:"omitempty,max=64"`
	Name              *string              `json:"name,omitempty" validate:"omitempty,max=255"`
	Brand             *string              `json:"brand,omitempty"`
	Description       *string              `json:"description,omitempty"`
	CategoryID        *uuid.UUID           `json:"category_id,omitempty"`
	SubcategoryID     *uuid.UUID           `json:"subcategory_id,omitempty"`
	Category          *string              `json:"category,omitempty"`
	Subcategory       *string              `json:"subcategory,omitempty"`
	IsPromo           *bool                `json:"is_promo,omitempty"`
	IsCombo           *bool                `json:"is_combo,omitempty"`
	BasePrice         *decimal.Decimal     `json:"base_price,omitempty"`
	Markup            *decimal.Decimal     `json:"markup,omitempty"`
	MarkupType        *string              `json:"markup_type,omitempty"`
	Price             *decimal.Decimal     `json:"price,omitempty"`
	Stock             *int                 `json:"stock,omitempty" validate:"omitempty,gte=0"`
	Image             *string              `json:"image,omitempty"`
	Images            *[]string            `json:"images,omitempty"`
	Associations      *associationsRequest `json:"associations,omitempty"`
}

func (r updateProductRequest) toUpdateInput() (product.UpdateProductInput, error) {
	input := product.UpdateProductInput{
		Barcode:           r.Barcode,
		Name:              r.Name,
		Brand:             r.Brand,
		Description:       r.Description,
		CategoryID:        r.CategoryID,
		SubcategoryID:     r.SubcategoryID,
		LegacyCategory:    r.Category,
		LegacySubcategory: r.Subcategory,
		IsPromo:           r.IsPromo,
		IsCombo:           r.IsCombo,
		BasePrice:         r.BasePrice,
		Markup:            r.Markup,
		Price:             r.Price,
		Stock:             r.Stock,
		Image:             r.Image,
		Images:            r.Images,
	}
	if r.MarkupType != nil {
		parsed, err := parseMarkupType(*r.MarkupType)
		if err != nil {
			return product.UpdateProductInput{}, err
		}
		input.MarkupType = &parsed
	}
	if r.Associations != nil {
		assoc, err := r.Associations.toInput()
		if err != nil {
			return product.UpdateProductInput{}, err
		}
		input.Associations = &assoc
	}
	return input, nil
}

type associationsRequest struct {
	AttributeIDs []uuid.UUID               `json:"attribute_ids"`
	Values       []associationValueRequest `json:"values" validate:"dive"`
}

type associationValueRequest struct {
	AttributeValueID uuid.UUID        `json:"attribute_value_id" validate:"required"`
	PriceDelta       *decimal.Decimal `json:"price_delta,omitempty"`
	UseCatalogDelta  bool             `json:"use_catalog_delta,omitempty"`
	BasePrice        *decimal.Decimal `json:"base_price,omitempty"`
	Markup           *decimal.Decimal `json:"markup,omitempty"`
	MarkupType       *string          `json:"markup_type,omitempty"`
	Stock            *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	Image            *string          `json:"image,omitempty"`
	KeepImage        bool             `json:"keep_image,omitempty"`
}

func (r associationsRequest) toInput() (product.AssociationsInput, error) {
	input := product.AssociationsInput{AttributeIDs: r.AttributeIDs}
	for _, v := range r.Values {
		value := product.AssociationValue{
			AttributeValueID: v.AttributeValueID,
			PriceDelta:       v.PriceDelta,
			UseCatalogDelta:  v.UseCatalogDelta,
			BasePrice:        v.BasePrice,
			Markup:           v.Markup,
			Stock:            v.Stock,
			Image:            v.Image,
			KeepImage:        v.KeepImage,
		}
		if v.MarkupType != nil {
			parsed, err := parseMarkupType(*v.MarkupType)
			if err != nil {
				return product.AssociationsInput{}, err
			}
			value.MarkupType = &parsed
		}
		input.Values = append(input.Values, value)
	}
	return input, nil
}

func parseMarkupType(raw string) (enums.MarkupType, error) {
	parsed, err := enums.ParseMarkupType(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid markup_type").
			WithDetails(map[string]any{"field": "markup_type"})
	}
	return parsed, nil
}
