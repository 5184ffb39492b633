package attributes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/config"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/slug"
)

// ProjectionRebuilder refreshes the variants projection of products inside
// an open transaction.
type ProjectionRebuilder interface {
	Rebuild(ctx context.Context, tx *gorm.DB, productIDs ...uuid.UUID) error
}

// Service manages the catalog-wide attribute definitions.
type Service interface {
	CreateAttribute(ctx context.Context, input CreateAttributeInput) (*AttributeDTO, error)
	UpdateAttribute(ctx context.Context, id uuid.UUID, input UpdateAttributeInput) (*AttributeDTO, error)
	DeleteAttribute(ctx context.Context, id uuid.UUID) (*DeleteResult, error)
	GetAttribute(ctx context.Context, id uuid.UUID) (*AttributeDTO, error)
	ListAttributes(ctx context.Context) ([]AttributeDTO, error)

	CreateValue(ctx context.Context, attributeID uuid.UUID, input CreateValueInput) (*ValueDTO, error)
	UpdateValue(ctx context.Context, attributeID, valueID uuid.UUID, input UpdateValueInput) (*ValueDTO, error)
	DeleteValue(ctx context.Context, attributeID, valueID uuid.UUID) (*DeleteResult, error)
	GetValues(ctx context.Context, ids []uuid.UUID) ([]models.AttributeValue, error)
}

type service struct {
	repo      Repository
	tx        db.TxRunner
	projector ProjectionRebuilder
	policy    config.DeletePolicy
	logg      *logger.Logger
}

// NewService wires the attribute catalog.
func NewService(repo Repository, tx db.TxRunner, projector ProjectionRebuilder, policy config.DeletePolicy, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("attribute repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if projector == nil {
		return nil, fmt.Errorf("projection rebuilder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	parsed, err := config.ParseDeletePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	return &service{repo: repo, tx: tx, projector: projector, policy: parsed, logg: logg}, nil
}

func (s *service) CreateAttribute(ctx context.Context, input CreateAttributeInput) (*AttributeDTO, error) {
	name, slugValue, err := normalizeName(input.Name, "attribute")
	if err != nil {
		return nil, err
	}
	attr := &models.Attribute{Name: name, Slug: slugValue}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.CreateAttribute(ctx, attr); err != nil {
			return err
		}
		seen := map[string]struct{}{}
		for _, in := range input.Values {
			value, err := buildValue(attr.ID, in)
			if err != nil {
				return err
			}
			if _, dup := seen[value.Slug]; dup {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "value %q listed twice", value.Name)
			}
			seen[value.Slug] = struct{}{}
			if err := txRepo.CreateValue(ctx, value); err != nil {
				return err
			}
			attr.Values = append(attr.Values, *value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := attributeToDTO(*attr)
	return &dto, nil
}

func (s *service) UpdateAttribute(ctx context.Context, id uuid.UUID, input UpdateAttributeInput) (*AttributeDTO, error) {
	name, slugValue, err := normalizeName(input.Name, "attribute")
	if err != nil {
		return nil, err
	}

	var out *AttributeDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		attr, err := txRepo.FindAttribute(ctx, id)
		if err != nil {
			return err
		}
		attr.Name = name
		attr.Slug = slugValue
		if err := txRepo.SaveAttribute(ctx, attr); err != nil {
			return err
		}
		// attribute names are part of the projection
		productIDs, err := txRepo.ProductsReferencing(ctx, valueIDs(attr.Values))
		if err != nil {
			return err
		}
		if err := s.projector.Rebuild(ctx, tx, productIDs...); err != nil {
			return err
		}
		dto := attributeToDTO(*attr)
		out = &dto
		return nil
	})
	return out, err
}

func (s *service) GetAttribute(ctx context.Context, id uuid.UUID) (*AttributeDTO, error) {
	attr, err := s.repo.FindAttribute(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := attributeToDTO(*attr)
	return &dto, nil
}

func (s *service) ListAttributes(ctx context.Context) ([]AttributeDTO, error) {
	attrs, err := s.repo.ListAttributes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AttributeDTO, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, attributeToDTO(attr))
	}
	return out, nil
}

func (s *service) CreateValue(ctx context.Context, attributeID uuid.UUID, input CreateValueInput) (*ValueDTO, error) {
	value, err := buildValue(attributeID, input)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindAttribute(ctx, attributeID); err != nil {
			return err
		}
		return txRepo.CreateValue(ctx, value)
	})
	if err != nil {
		return nil, err
	}
	dto := valueToDTO(*value)
	return &dto, nil
}

func (s *service) UpdateValue(ctx context.Context, attributeID, valueID uuid.UUID, input UpdateValueInput) (*ValueDTO, error) {
	var out *ValueDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		value, err := txRepo.FindValue(ctx, attributeID, valueID)
		if err != nil {
			return err
		}
		renamed := false
		if input.Name != nil {
			name, slugValue, err := normalizeName(*input.Name, "value")
			if err != nil {
				return err
			}
			renamed = name != value.Name
			value.Name = name
			value.Slug = slugValue
		}
		if input.PriceDelta != nil {
			value.PriceDelta = *input.PriceDelta
		}
		if input.Image != nil {
			value.Image = input.Image
		}
		if err := txRepo.SaveValue(ctx, value); err != nil {
			return err
		}
		// pivots keep their own delta; a rename shows up in every
		// projection carrying the value
		if renamed {
			productIDs, err := txRepo.ProductsReferencing(ctx, []uuid.UUID{value.ID})
			if err != nil {
				return err
			}
			if err := s.projector.Rebuild(ctx, tx, productIDs...); err != nil {
				return err
			}
		}
		dto := valueToDTO(*value)
		out = &dto
		return nil
	})
	return out, err
}

func (s *service) DeleteAttribute(ctx context.Context, id uuid.UUID) (*DeleteResult, error) {
	var result *DeleteResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindAttribute(ctx, id); err != nil {
			return err
		}
		ids, err := txRepo.ValueIDsOf(ctx, id)
		if err != nil {
			return err
		}
		result, err = s.applyDelete(ctx, tx, txRepo, ids)
		if err != nil {
			return err
		}
		if s.policy != config.DeletePolicyTombstone {
			if err := txRepo.DeleteProductAttributeLinks(ctx, id); err != nil {
				return err
			}
		}
		return txRepo.DeleteAttribute(ctx, id, s.policy != config.DeletePolicyTombstone)
	})
	if err != nil {
		return nil, err
	}
	s.logDelete(ctx, "attribute deleted", id, result)
	return result, nil
}

func (s *service) DeleteValue(ctx context.Context, attributeID, valueID uuid.UUID) (*DeleteResult, error) {
	var result *DeleteResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindValue(ctx, attributeID, valueID); err != nil {
			return err
		}
		var err error
		result, err = s.applyDelete(ctx, tx, txRepo, []uuid.UUID{valueID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logDelete(ctx, "attribute value deleted", valueID, result)
	return result, nil
}

// applyDelete removes or tombstones the given values according to the
// configured policy and keeps the affected projections in step.
func (s *service) applyDelete(ctx context.Context, tx *gorm.DB, txRepo Repository, ids []uuid.UUID) (*DeleteResult, error) {
	result := &DeleteResult{Policy: string(s.policy), ValuesAffected: len(ids), ProductsAffected: []uuid.UUID{}}

	refs, err := txRepo.CountPivots(ctx, ids)
	if err != nil {
		return nil, err
	}
	productIDs, err := txRepo.ProductsReferencing(ctx, ids)
	if err != nil {
		return nil, err
	}

	switch s.policy {
	case config.DeletePolicyRestrict:
		if refs > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "attribute values are still used by products").
				WithDetails(map[string]any{"references": refs, "products": productIDs})
		}
		if err := txRepo.DeleteValues(ctx, ids, true); err != nil {
			return nil, err
		}

	case config.DeletePolicyCascade:
		if err := txRepo.DeletePivots(ctx, ids); err != nil {
			return nil, err
		}
		if err := txRepo.DeleteValues(ctx, ids, true); err != nil {
			return nil, err
		}
		result.PivotsRemoved = refs

	case config.DeletePolicyTombstone:
		if err := txRepo.DeleteValues(ctx, ids, false); err != nil {
			return nil, err
		}
	}

	if len(productIDs) > 0 && s.policy != config.DeletePolicyRestrict {
		if err := s.projector.Rebuild(ctx, tx, productIDs...); err != nil {
			return nil, err
		}
		result.ProductsAffected = productIDs
	}
	return result, nil
}

func (s *service) GetValues(ctx context.Context, ids []uuid.UUID) ([]models.AttributeValue, error) {
	return s.repo.FindValues(ctx, ids)
}

func (s *service) logDelete(ctx context.Context, msg string, id uuid.UUID, result *DeleteResult) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"id":                id.String(),
		"policy":            result.Policy,
		"values_affected":   result.ValuesAffected,
		"pivots_removed":    result.PivotsRemoved,
		"products_affected": len(result.ProductsAffected),
	})
	s.logg.Info(ctx, msg)
}

func buildValue(attributeID uuid.UUID, in CreateValueInput) (*models.AttributeValue, error) {
	name, slugValue, err := normalizeName(in.Name, "value")
	if err != nil {
		return nil, err
	}
	delta := decimal.Zero
	if in.PriceDelta != nil {
		delta = *in.PriceDelta
	}
	return &models.AttributeValue{
		AttributeID: attributeID,
		Name:        name,
		Slug:        slugValue,
		PriceDelta:  delta,
		Image:       in.Image,
	}, nil
}

func normalizeName(raw, kind string) (string, string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s name is required", kind)
	}
	slugValue := slug.Make(name)
	if slugValue == "" {
		return "", "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s name %q has no usable characters", kind, name)
	}
	return name, slugValue, nil
}

func valueIDs(values []models.AttributeValue) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		ids = append(ids, v.ID)
	}
	return ids
}
