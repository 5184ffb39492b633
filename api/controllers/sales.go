package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/retail-backend/api/responses"
	"github.com/angelmondragon/retail-backend/api/validators"
	"github.com/angelmondragon/retail-backend/internal/pricing"
	"github.com/angelmondragon/retail-backend/internal/sales"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
)

// CreateSale runs a POS checkout for the authenticated cashier.
func CreateSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createSaleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := svc.CreateSale(r.Context(), payload.toInput(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sale)
	}
}

func GetSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sale, err := svc.GetSale(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}

func ListSales(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParseCursorParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseSaleFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListSales(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// LookupBarcode resolves a scanned code to products with their variant
// pricing and stock.
func LookupBarcode(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		products, err := svc.LookupBarcode(r.Context(), r.URL.Query().Get("barcode"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}

func parseSaleFilter(r *http.Request) (sales.ListFilter, error) {
	var filter sales.ListFilter
	userID, err := validators.QueryUUID(r, "user_id")
	if err != nil {
		return filter, err
	}
	filter.UserID = userID
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_method")); raw != "" {
		method, err := enums.ParsePaymentMethod(strings.ToLower(raw))
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method").
				WithDetails(map[string]any{"field": "payment_method"})
		}
		filter.PaymentMethod = &method
	}
	if filter.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

type createSaleRequest struct {
	PaymentMethod string            `json:"payment_method" validate:"required"`
	Notes         *string           `json:"notes,omitempty"`
	Items         []saleLineRequest `json:"items"`
}

type saleLineRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	// Variants lists the chosen attribute values of the line.
	Variants []pricing.Selection `json:"variants,omitempty"`
}

func (r createSaleRequest) toInput(userID uuid.UUID) sales.CreateSaleInput {
	input := sales.CreateSaleInput{
		UserID:        userID,
		PaymentMethod: enums.PaymentMethod(strings.ToLower(strings.TrimSpace(r.PaymentMethod))),
		Notes:         r.Notes,
	}
	for _, line := range r.Items {
		input.Items = append(input.Items, sales.LineInput{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			Selections: line.Variants,
		})
	}
	return input
}
