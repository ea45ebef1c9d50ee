package models

import (
	"time"

	"github.com/orris-inc/keygate/internal/shared/constants"
)

// EntitlementResourceModel is one provisioned credential. Released rows are kept for history.
type EntitlementResourceModel struct {
	ID            uint       `gorm:"primarykey"`
	EntitlementID uint       `gorm:"not null;index:idx_entitlement_region,priority:1"`
	Region        string     `gorm:"not null;size:50;index:idx_entitlement_region,priority:2"`
	CredentialID  string     `gorm:"not null;size:100"`
	AccessURI     string     `gorm:"not null;type:text"`
	ReleasedAt    *time.Time `gorm:"index:idx_released_at"`
	CreatedAt     time.Time
}

// TableName specifies the table name for GORM
func (EntitlementResourceModel) TableName() string {
	return constants.TableEntitlementResources
}
