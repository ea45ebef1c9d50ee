package entitlement

import (
	"fmt"
	"time"
)

// Resource is one credential provisioned for an entitlement in a region.
// Released resources are kept for history; at most one live resource exists per (entitlement, region).
type Resource struct {
	id            uint
	entitlementID uint
	region        string
	credentialID  string
	accessURI     string
	releasedAt    *time.Time
	createdAt     time.Time
}

func NewResource(entitlementID uint, region, credentialID, accessURI string, now time.Time) (*Resource, error) {
	if entitlementID == 0 {
		return nil, fmt.Errorf("entitlement ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if credentialID == "" {
		return nil, fmt.Errorf("credential ID is required")
	}
	return &Resource{
		entitlementID: entitlementID,
		region:        region,
		credentialID:  credentialID,
		accessURI:     accessURI,
		createdAt:     now,
	}, nil
}

func ReconstructResource(id, entitlementID uint, region, credentialID, accessURI string, releasedAt *time.Time, createdAt time.Time) *Resource {
	return &Resource{
		id:            id,
		entitlementID: entitlementID,
		region:        region,
		credentialID:  credentialID,
		accessURI:     accessURI,
		releasedAt:    releasedAt,
		createdAt:     createdAt,
	}
}

func (r *Resource) ID() uint               { return r.id }
func (r *Resource) EntitlementID() uint    { return r.entitlementID }
func (r *Resource) Region() string         { return r.region }
func (r *Resource) CredentialID() string   { return r.credentialID }
func (r *Resource) AccessURI() string      { return r.accessURI }
func (r *Resource) ReleasedAt() *time.Time { return r.releasedAt }
func (r *Resource) CreatedAt() time.Time   { return r.createdAt }

// IsLive reports whether the backing credential still has to be deleted.
func (r *Resource) IsLive() bool {
	return r.releasedAt == nil && r.credentialID != ""
}

func (r *Resource) SetID(id uint) {
	r.id = id
}

// Release records that the backing credential is gone.
func (r *Resource) Release(now time.Time) {
	if r.releasedAt == nil {
		r.releasedAt = &now
	}
}
