package migration

import (
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/models"
)

func AutoMigrateModels() []interface{} {
	return []interface{}{
		&models.UserModel{},
		&models.EntitlementModel{},
		&models.EntitlementResourceModel{},
	}
}
