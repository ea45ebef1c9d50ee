package mappers

import (
	"fmt"

	"gorm.io/datatypes"

	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/models"
)

// EntitlementMapper handles the conversion between domain entities and persistence models
type EntitlementMapper interface {
	ToEntity(model *models.EntitlementModel) (*entitlement.Entitlement, error)
	ToModel(entity *entitlement.Entitlement) *models.EntitlementModel
	ToEntities(models []*models.EntitlementModel) ([]*entitlement.Entitlement, error)
}

type entitlementMapper struct{}

func NewEntitlementMapper() EntitlementMapper {
	return &entitlementMapper{}
}

func (m *entitlementMapper) ToEntity(model *models.EntitlementModel) (*entitlement.Entitlement, error) {
	if model == nil {
		return nil, nil
	}

	entity, err := entitlement.ReconstructEntitlement(
		model.ID,
		model.OwnerID,
		model.PlanID,
		model.PackageID,
		vo.Status(model.Status),
		utcPtr(model.StartTime),
		utcPtr(model.EndTime),
		vo.PaymentMethod(model.PaymentMethod),
		model.PaymentRef,
		utcPtr(model.GraceUntil),
		model.NeedsReconciliation,
		model.Metadata.Data().ReconciliationReason,
		model.Version,
		model.CreatedAt.UTC(),
		model.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct entitlement entity: %w", err)
	}
	return entity, nil
}

func (m *entitlementMapper) ToModel(entity *entitlement.Entitlement) *models.EntitlementModel {
	if entity == nil {
		return nil
	}
	return &models.EntitlementModel{
		ID:                  entity.ID(),
		OwnerID:             entity.OwnerID(),
		PlanID:              entity.PlanID(),
		PackageID:           entity.PackageID(),
		Status:              string(entity.Status()),
		StartTime:           entity.StartTime(),
		EndTime:             entity.EndTime(),
		PaymentMethod:       string(entity.PaymentMethod()),
		PaymentRef:          entity.PaymentRef(),
		GraceUntil:          entity.GraceUntil(),
		NeedsReconciliation: entity.NeedsReconciliation(),
		Metadata: datatypes.NewJSONType(models.EntitlementMetadata{
			ReconciliationReason: entity.ReconciliationReason(),
		}),
		Version:   entity.Version(),
		CreatedAt: entity.CreatedAt(),
		UpdatedAt: entity.UpdatedAt(),
	}
}

func (m *entitlementMapper) ToEntities(models []*models.EntitlementModel) ([]*entitlement.Entitlement, error) {
	entities := make([]*entitlement.Entitlement, 0, len(models))
	for i, model := range models {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to map model at index %d (ID %d): %w", i, model.ID, err)
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}
