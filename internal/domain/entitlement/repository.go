package entitlement

import (
	"context"
	"time"
)

// MutateFunc changes an entitlement loaded under a row lock. Returning an error aborts the write.
type MutateFunc func(e *Entitlement) error

type Repository interface {
	Create(ctx context.Context, e *Entitlement) error
	// GetByID returns (nil, nil) when the entitlement does not exist.
	GetByID(ctx context.Context, id uint) (*Entitlement, error)
	// Mutate performs an atomic read-modify-write on one row and returns the stored result.
	// It returns (nil, nil) when the entitlement does not exist.
	Mutate(ctx context.Context, id uint, fn MutateFunc) (*Entitlement, error)
	ListActive(ctx context.Context) ([]*Entitlement, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*Entitlement, error)
	// ListAdminView returns one page (1-based) ordered by owner then end time descending, plus the total count.
	ListAdminView(ctx context.Context, page, pageSize int) ([]*Entitlement, int64, error)
	ListPendingReconciliation(ctx context.Context) ([]*Entitlement, error)
}

type ResourceRepository interface {
	Create(ctx context.Context, r *Resource) error
	ListByEntitlement(ctx context.Context, entitlementID uint) ([]*Resource, error)
	// FindLive returns (nil, nil) when no live resource exists for the region.
	FindLive(ctx context.Context, entitlementID uint, region string) (*Resource, error)
	Release(ctx context.Context, id uint, at time.Time) error
}
