package mappers

import (
	"github.com/orris-inc/keygate/internal/domain/user"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/models"
)

func UserToEntity(model *models.UserModel) *user.User {
	if model == nil {
		return nil
	}
	return user.ReconstructUser(model.ID, model.DisplayName, model.CreatedAt.UTC(), model.UpdatedAt.UTC())
}

func UserToModel(entity *user.User) *models.UserModel {
	return &models.UserModel{
		ID:          entity.ID(),
		DisplayName: entity.DisplayName(),
		CreatedAt:   entity.CreatedAt(),
		UpdatedAt:   entity.UpdatedAt(),
	}
}
