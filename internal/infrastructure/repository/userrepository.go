package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orris-inc/keygate/internal/domain/user"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/keygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// UserRepositoryImpl implements user.Repository on GORM.
type UserRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewUserRepository(db *gorm.DB, logger logger.Interface) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db, logger: logger}
}

// Upsert inserts the user or refreshes the display name of an existing one.
func (r *UserRepositoryImpl) Upsert(ctx context.Context, u *user.User) error {
	model := mappers.UserToModel(u)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		r.logger.Errorw("failed to upsert user", "user_id", u.ID(), "error", err)
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *UserRepositoryImpl) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return mappers.UserToEntity(&model), nil
}
