package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/keygate/internal/domain/entitlement"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/keygate/internal/shared/errors"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// ResourceRepositoryImpl implements entitlement.ResourceRepository on GORM.
type ResourceRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewResourceRepository(db *gorm.DB, logger logger.Interface) *ResourceRepositoryImpl {
	return &ResourceRepositoryImpl{db: db, logger: logger}
}

func (r *ResourceRepositoryImpl) Create(ctx context.Context, res *entitlement.Resource) error {
	model := mappers.ResourceToModel(res)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create entitlement resource",
			"entitlement_id", res.EntitlementID(),
			"region", res.Region(),
			"error", err)
		return fmt.Errorf("failed to create entitlement resource: %w", err)
	}
	res.SetID(model.ID)
	return nil
}

func (r *ResourceRepositoryImpl) ListByEntitlement(ctx context.Context, entitlementID uint) ([]*entitlement.Resource, error) {
	var list []*models.EntitlementResourceModel
	if err := r.db.WithContext(ctx).
		Where("entitlement_id = ?", entitlementID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list entitlement resources: %w", err)
	}
	return mappers.ResourcesToEntities(list), nil
}

func (r *ResourceRepositoryImpl) FindLive(ctx context.Context, entitlementID uint, region string) (*entitlement.Resource, error) {
	var model models.EntitlementResourceModel
	err := r.db.WithContext(ctx).
		Where("entitlement_id = ? AND region = ? AND released_at IS NULL", entitlementID, region).
		Order("id ASC").
		First(&model).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find live resource: %w", err)
	}
	return mappers.ResourceToEntity(&model), nil
}

// Release stamps the resource as released. Releasing twice keeps the first timestamp.
func (r *ResourceRepositoryImpl) Release(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.EntitlementResourceModel{}).
		Where("id = ? AND released_at IS NULL", id).
		Update("released_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to release resource: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.EntitlementResourceModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check resource: %w", err)
	}
	if count == 0 {
		return errors.NewNotFoundError("entitlement resource not found")
	}
	return nil
}
