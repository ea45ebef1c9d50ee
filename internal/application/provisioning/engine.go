// Package provisioning creates and reclaims the per-region credentials of an entitlement.
// Regions are handled independently: one region failing never aborts the others.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orris-inc/keygate/internal/domain/entitlement"
	"github.com/orris-inc/keygate/internal/domain/user"
	"github.com/orris-inc/keygate/internal/shared/biztime"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const defaultConcurrency = 4

// ProvisionResult partitions the requested regions by outcome, preserving request order.
type ProvisionResult struct {
	Succeeded []string
	Failed    []string
	// Resources holds the live resource of every succeeded region.
	Resources []*entitlement.Resource
}

// DeprovisionResult counts reclaimed resources. Deleted == Total means full success.
type DeprovisionResult struct {
	Deleted int
	Total   int
	Failed  []string
}

func (r DeprovisionResult) Complete() bool {
	return r.Deleted == r.Total
}

type Engine struct {
	resources   entitlement.ResourceRepository
	users       user.Repository
	registry    Registry
	clock       biztime.Clock
	logger      logger.Interface
	concurrency int
}

func NewEngine(
	resources entitlement.ResourceRepository,
	users user.Repository,
	registry Registry,
	clock biztime.Clock,
	log logger.Interface,
	concurrency int,
) *Engine {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Engine{
		resources:   resources,
		users:       users,
		registry:    registry,
		clock:       clock,
		logger:      log.Named("provisioning"),
		concurrency: concurrency,
	}
}

// Provision creates one credential per region for ent. A region that already holds a live
// resource for ent counts as succeeded without a new credential.
func (e *Engine) Provision(ctx context.Context, ent *entitlement.Entitlement, regions []string) ProvisionResult {
	regions = dedupe(regions)
	label := e.labelPrefix(ctx, ent.OwnerID())

	ok := make([]bool, len(regions))
	res := make([]*entitlement.Resource, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, region := range regions {
		g.Go(func() error {
			res[i], ok[i] = e.provisionRegion(gctx, ent.ID(), region, label)
			return nil
		})
	}
	_ = g.Wait() // region goroutines never fail the group

	var out ProvisionResult
	for i, region := range regions {
		if ok[i] {
			out.Succeeded = append(out.Succeeded, region)
			out.Resources = append(out.Resources, res[i])
		} else {
			out.Failed = append(out.Failed, region)
		}
	}

	e.logger.Infow("provisioning finished",
		"entitlement_id", ent.ID(),
		"succeeded", out.Succeeded,
		"failed", out.Failed,
	)
	return out
}

func (e *Engine) provisionRegion(ctx context.Context, entID uint, region, labelPrefix string) (*entitlement.Resource, bool) {
	log := e.logger.With("entitlement_id", entID, "region", region)

	existing, err := e.resources.FindLive(ctx, entID, region)
	if err != nil {
		log.Errorw("failed to look up existing resource", "error", err)
		return nil, false
	}
	if existing != nil {
		log.Infow("region already provisioned, reusing credential", "credential_id", existing.CredentialID())
		return existing, true
	}

	p, found := e.registry.Provisioner(region)
	if !found {
		log.Errorw("no provisioner configured for region")
		return nil, false
	}

	cred, err := p.Create(ctx)
	if err != nil {
		log.Warnw("failed to create credential", "error", err)
		return nil, false
	}

	resource, err := entitlement.NewResource(entID, region, cred.ID, cred.AccessURI, e.clock.Now())
	if err == nil {
		err = e.resources.Create(ctx, resource)
	}
	if err != nil {
		log.Errorw("failed to persist resource, deleting orphan credential", "credential_id", cred.ID, "error", err)
		if delErr := p.Delete(ctx, cred.ID); delErr != nil && !errors.Is(delErr, ErrCredentialNotFound) {
			log.Errorw("failed to delete orphan credential", "credential_id", cred.ID, "error", delErr)
		}
		return nil, false
	}

	label := fmt.Sprintf("%s_%s_%d", labelPrefix, region, entID)
	if err := p.Rename(ctx, cred.ID, label); err != nil {
		log.Warnw("failed to rename credential", "credential_id", cred.ID, "label", label, "error", err)
	}

	return resource, true
}

func (e *Engine) labelPrefix(ctx context.Context, ownerID int64) string {
	u, err := e.users.GetByID(ctx, ownerID)
	if err != nil || u == nil {
		if err != nil {
			e.logger.Warnw("failed to load owner for credential label", "owner_id", ownerID, "error", err)
		}
		return fmt.Sprintf("user%d", ownerID)
	}
	return u.DisplayName()
}

// Deprovision deletes every live credential of the entitlement. It is idempotent: a region
// whose resources are all released counts as deleted without touching the provisioner. Rows
// released in an earlier lifecycle of a region that is live again are not counted. The error
// is non-nil only when the resources cannot be listed.
func (e *Engine) Deprovision(ctx context.Context, entitlementID uint) (DeprovisionResult, error) {
	all, err := e.resources.ListByEntitlement(ctx, entitlementID)
	if err != nil {
		return DeprovisionResult{}, fmt.Errorf("failed to list resources: %w", err)
	}

	live := make([]*entitlement.Resource, 0, len(all))
	liveRegions := make(map[string]bool, len(all))
	for _, r := range all {
		if r.IsLive() {
			live = append(live, r)
			liveRegions[r.Region()] = true
		}
	}
	released := make(map[string]bool)
	for _, r := range all {
		if !r.IsLive() && !liveRegions[r.Region()] {
			released[r.Region()] = true
		}
	}

	var (
		mu  sync.Mutex
		out = DeprovisionResult{Total: len(live) + len(released), Deleted: len(released)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, r := range live {
		g.Go(func() error {
			deleted := e.deprovisionResource(gctx, r)
			mu.Lock()
			defer mu.Unlock()
			if deleted {
				out.Deleted++
			} else {
				out.Failed = append(out.Failed, r.Region())
			}
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Infow("deprovisioning finished",
		"entitlement_id", entitlementID,
		"deleted", out.Deleted,
		"total", out.Total,
		"failed", out.Failed,
	)
	return out, nil
}

func (e *Engine) deprovisionResource(ctx context.Context, r *entitlement.Resource) bool {
	log := e.logger.With("entitlement_id", r.EntitlementID(), "region", r.Region(), "credential_id", r.CredentialID())

	p, found := e.registry.Provisioner(r.Region())
	if !found {
		log.Errorw("no provisioner configured for region")
		return false
	}

	if err := p.Delete(ctx, r.CredentialID()); err != nil {
		if !errors.Is(err, ErrCredentialNotFound) {
			log.Warnw("failed to delete credential", "error", err)
			return false
		}
		log.Infow("credential already absent on server")
	}

	// A failed release is retried by the next call; the server then reports not-found.
	if err := e.resources.Release(ctx, r.ID(), e.clock.Now()); err != nil {
		log.Errorw("credential deleted but release not persisted", "error", err)
	}
	return true
}

func dedupe(regions []string) []string {
	seen := make(map[string]bool, len(regions))
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
