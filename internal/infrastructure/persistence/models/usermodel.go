package models

import (
	"time"

	"github.com/orris-inc/keygate/internal/shared/constants"
)

// UserModel is keyed by the chat actor id, so the primary key is not auto-incremented.
type UserModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false"`
	DisplayName string `gorm:"not null;size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for GORM
func (UserModel) TableName() string {
	return constants.TableUsers
}
