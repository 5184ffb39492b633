package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/api/responses"
	"github.com/angelmondragon/retail-backend/api/validators"
	"github.com/angelmondragon/retail-backend/internal/attributes"
	"github.com/angelmondragon/retail-backend/pkg/logger"
)

func ListAttributes(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListAttributes(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetAttribute(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attr, err := svc.GetAttribute(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attr)
	}
}

func CreateAttribute(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createAttributeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attr, err := svc.CreateAttribute(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, attr)
	}
}

func UpdateAttribute(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateAttributeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attr, err := svc.UpdateAttribute(r.Context(), id, attributes.UpdateAttributeInput{
			Name: validators.SanitizeString(payload.Name, 255),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attr)
	}
}

func DeleteAttribute(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.DeleteAttribute(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CreateAttributeValue(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload attributeValueRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		value, err := svc.CreateValue(r.Context(), id, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, value)
	}
}

func UpdateAttributeValue(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		valueID, err := validators.PathUUID(r, "valueID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateAttributeValueRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		value, err := svc.UpdateValue(r.Context(), id, valueID, attributes.UpdateValueInput{
			Name:       payload.Name,
			PriceDelta: payload.PriceDelta,
			Image:      payload.Image,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, value)
	}
}

func DeleteAttributeValue(svc attributes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		valueID, err := validators.PathUUID(r, "valueID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.DeleteValue(r.Context(), id, valueID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type createAttributeRequest struct {
	Name   string                  `json:"name" validate:"required,max=255"`
	Values []attributeValueRequest `json:"values,omitempty" validate:"omitempty,dive"`
}

func (r createAttributeRequest) toInput() attributes.CreateAttributeInput {
	input := attributes.CreateAttributeInput{Name: validators.SanitizeString(r.Name, 255)}
	for _, v := range r.Values {
		input.Values = append(input.Values, v.toInput())
	}
	return input
}

type updateAttributeRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type attributeValueRequest struct {
	Name       string           `json:"name" validate:"required,max=255"`
	PriceDelta *decimal.Decimal `json:"price_delta,omitempty"`
	Image      *string          `json:"image,omitempty"`
}

func (r attributeValueRequest) toInput() attributes.CreateValueInput {
	return attributes.CreateValueInput{
		Name:       validators.SanitizeString(r.Name, 255),
		PriceDelta: r.PriceDelta,
		Image:      r.Image,
	}
}

type updateAttributeValueRequest struct {
	Name       *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	PriceDelta *decimal.Decimal `json:"price_delta,omitempty"`
	Image      *string          `json:"image,omitempty"`
}
