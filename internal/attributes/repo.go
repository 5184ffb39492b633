package attributes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/repo"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
)

// Repository persists attributes and their values.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateAttribute(ctx context.Context, attr *models.Attribute) error
	SaveAttribute(ctx context.Context, attr *models.Attribute) error
	FindAttribute(ctx context.Context, id uuid.UUID) (*models.Attribute, error)
	ListAttributes(ctx context.Context) ([]models.Attribute, error)
	DeleteAttribute(ctx context.Context, id uuid.UUID, hard bool) error

	CreateValue(ctx context.Context, value *models.AttributeValue) error
	SaveValue(ctx context.Context, value *models.AttributeValue) error
	FindValue(ctx context.Context, attributeID, valueID uuid.UUID) (*models.AttributeValue, error)
	FindValues(ctx context.Context, ids []uuid.UUID) ([]models.AttributeValue, error)
	ValueIDsOf(ctx context.Context, attributeID uuid.UUID) ([]uuid.UUID, error)
	DeleteValues(ctx context.Context, ids []uuid.UUID, hard bool) error

	CountPivots(ctx context.Context, valueIDs []uuid.UUID) (int64, error)
	ProductsReferencing(ctx context.Context, valueIDs []uuid.UUID) ([]uuid.UUID, error)
	DeletePivots(ctx context.Context, valueIDs []uuid.UUID) error
	DeleteProductAttributeLinks(ctx context.Context, attributeID uuid.UUID) error
}

type repository struct {
	base repo.Base
}

// NewRepository builds the GORM-backed attribute repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{base: r.base.Tx(tx)}
}

func (r *repository) CreateAttribute(ctx context.Context, attr *models.Attribute) error {
	return repo.MapError(r.base.DB(ctx).Create(attr).Error, "attribute")
}

func (r *repository) SaveAttribute(ctx context.Context, attr *models.Attribute) error {
	err := r.base.DB(ctx).Model(attr).Select("name", "slug", "updated_at").Updates(attr).Error
	return repo.MapError(err, "attribute")
}

func (r *repository) FindAttribute(ctx context.Context, id uuid.UUID) (*models.Attribute, error) {
	var attr models.Attribute
	err := r.base.DB(ctx).
		Preload("Values", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		First(&attr, "id = ?", id).Error
	if err != nil {
		return nil, repo.MapError(err, "attribute")
	}
	return &attr, nil
}

func (r *repository) ListAttributes(ctx context.Context) ([]models.Attribute, error) {
	var attrs []models.Attribute
	err := r.base.DB(ctx).
		Preload("Values", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Order("name ASC").
		Find(&attrs).Error
	return attrs, repo.MapError(err, "attributes")
}

func (r *repository) DeleteAttribute(ctx context.Context, id uuid.UUID, hard bool) error {
	db := r.base.DB(ctx)
	if hard {
		db = db.Unscoped()
	}
	res := db.Delete(&models.Attribute{}, "id = ?", id)
	if res.Error != nil {
		return repo.MapError(res.Error, "attribute")
	}
	if res.RowsAffected == 0 {
		return repo.MapError(gorm.ErrRecordNotFound, "attribute")
	}
	return nil
}

func (r *repository) CreateValue(ctx context.Context, value *models.AttributeValue) error {
	return repo.MapError(r.base.DB(ctx).Create(value).Error, "attribute value")
}

func (r *repository) SaveValue(ctx context.Context, value *models.AttributeValue) error {
	err := r.base.DB(ctx).Model(value).
		Select("name", "slug", "price_delta", "image", "updated_at").
		Updates(value).Error
	return repo.MapError(err, "attribute value")
}

func (r *repository) FindValue(ctx context.Context, attributeID, valueID uuid.UUID) (*models.AttributeValue, error) {
	var value models.AttributeValue
	err := r.base.DB(ctx).First(&value, "id = ? AND attribute_id = ?", valueID, attributeID).Error
	if err != nil {
		return nil, repo.MapError(err, "attribute value")
	}
	return &value, nil
}

// FindValues includes tombstoned rows so callers can tell them apart from
// unknown ids.
func (r *repository) FindValues(ctx context.Context, ids []uuid.UUID) ([]models.AttributeValue, error) {
	if len(ids) == 0 {
		return []models.AttributeValue{}, nil
	}
	var values []models.AttributeValue
	err := r.base.DB(ctx).Unscoped().
		Preload("Attribute", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("id IN ?", ids).
		Find(&values).Error
	return values, repo.MapError(err, "attribute values")
}

// ValueIDsOf includes tombstoned values.
func (r *repository) ValueIDsOf(ctx context.Context, attributeID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.base.DB(ctx).Unscoped().Model(&models.AttributeValue{}).
		Where("attribute_id = ?", attributeID).
		Pluck("id", &ids).Error
	return ids, repo.MapError(err, "attribute values")
}

func (r *repository) DeleteValues(ctx context.Context, ids []uuid.UUID, hard bool) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.base.DB(ctx)
	if hard {
		db = db.Unscoped()
	}
	return repo.MapError(db.Where("id IN ?", ids).Delete(&models.AttributeValue{}).Error, "attribute values")
}

func (r *repository) CountPivots(ctx context.Context, valueIDs []uuid.UUID) (int64, error) {
	if len(valueIDs) == 0 {
		return 0, nil
	}
	var n int64
	err := r.base.DB(ctx).Model(&models.ProductAttributeValue{}).
		Where("attribute_value_id IN ?", valueIDs).
		Count(&n).Error
	return n, repo.MapError(err, "product attribute values")
}

func (r *repository) ProductsReferencing(ctx context.Context, valueIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(valueIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.base.DB(ctx).Model(&models.ProductAttributeValue{}).
		Distinct("product_id").
		Where("attribute_value_id IN ?", valueIDs).
		Order("product_id").
		Pluck("product_id", &ids).Error
	return ids, repo.MapError(err, "product attribute values")
}

func (r *repository) DeletePivots(ctx context.Context, valueIDs []uuid.UUID) error {
	if len(valueIDs) == 0 {
		return nil
	}
	err := r.base.DB(ctx).
		Where("attribute_value_id IN ?", valueIDs).
		Delete(&models.ProductAttributeValue{}).Error
	return repo.MapError(err, "product attribute values")
}

func (r *repository) DeleteProductAttributeLinks(ctx context.Context, attributeID uuid.UUID) error {
	err := r.base.DB(ctx).
		Where("attribute_id = ?", attributeID).
		Delete(&models.ProductAttribute{}).Error
	return repo.MapError(err, "product attributes")
}
