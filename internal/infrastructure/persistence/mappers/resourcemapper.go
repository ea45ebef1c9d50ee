package mappers

import (
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/models"
)

func ResourceToEntity(model *models.EntitlementResourceModel) *entitlement.Resource {
	if model == nil {
		return nil
	}
	return entitlement.ReconstructResource(
		model.ID,
		model.EntitlementID,
		model.Region,
		model.CredentialID,
		model.AccessURI,
		utcPtr(model.ReleasedAt),
		model.CreatedAt.UTC(),
	)
}

func ResourceToModel(entity *entitlement.Resource) *models.EntitlementResourceModel {
	return &models.EntitlementResourceModel{
		ID:            entity.ID(),
		EntitlementID: entity.EntitlementID(),
		Region:        entity.Region(),
		CredentialID:  entity.CredentialID(),
		AccessURI:     entity.AccessURI(),
		ReleasedAt:    entity.ReleasedAt(),
		CreatedAt:     entity.CreatedAt(),
	}
}

func ResourcesToEntities(list []*models.EntitlementResourceModel) []*entitlement.Resource {
	out := make([]*entitlement.Resource, 0, len(list))
	for _, m := range list {
		out = append(out, ResourceToEntity(m))
	}
	return out
}
