package provisioning

import (
	"context"
	"errors"
)

var (
	// ErrRegionUnavailable is returned when a region's server cannot be reached.
	ErrRegionUnavailable = errors.New("region provisioner unavailable")
	// ErrCredentialNotFound means the credential is already gone; deletion treats it as success.
	ErrCredentialNotFound = errors.New("credential not found")
)

// Credential is what a resource server hands out for one access key.
type Credential struct {
	ID        string
	AccessURI string
}

// ResourceProvisioner manages credentials on one region's resource server.
// Network failures must be returned as errors wrapping ErrRegionUnavailable.
type ResourceProvisioner interface {
	Create(ctx context.Context) (Credential, error)
	Rename(ctx context.Context, credentialID, label string) error
	Delete(ctx context.Context, credentialID string) error
}

// Registry resolves the provisioner responsible for a region.
type Registry interface {
	Provisioner(region string) (ResourceProvisioner, bool)
}

// StaticRegistry is a fixed region → provisioner map.
type StaticRegistry map[string]ResourceProvisioner

func (r StaticRegistry) Provisioner(region string) (ResourceProvisioner, bool) {
	p, ok := r[region]
	return p, ok
}
