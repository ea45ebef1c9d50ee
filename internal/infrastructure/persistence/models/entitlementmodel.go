package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/orris-inc/keygate/internal/shared/constants"
)

// EntitlementMetadata holds operator-facing details that are never queried on.
type EntitlementMetadata struct {
	ReconciliationReason string `json:"reconciliation_reason,omitempty"`
}

// EntitlementModel represents the database persistence model for entitlements
type EntitlementModel struct {
	ID                  uint   `gorm:"primarykey"`
	OwnerID             int64  `gorm:"not null;index:idx_owner_end,priority:1"`
	PlanID              string `gorm:"not null;size:50"`
	PackageID           string `gorm:"not null;size:50;default:''"`
	Status              string `gorm:"not null;size:30;index:idx_status"`
	StartTime           *time.Time
	EndTime             *time.Time `gorm:"index:idx_owner_end,priority:2"`
	PaymentMethod       string     `gorm:"not null;size:20"`
	PaymentRef          string     `gorm:"not null;size:255;index:idx_payment_ref"`
	GraceUntil          *time.Time
	NeedsReconciliation bool `gorm:"not null;default:false;index:idx_reconciliation"`
	Metadata            datatypes.JSONType[EntitlementMetadata]
	Version             int `gorm:"not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName specifies the table name for GORM
func (EntitlementModel) TableName() string {
	return constants.TableEntitlements
}
