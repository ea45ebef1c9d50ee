// Package expiration scans active entitlements, sends renewal reminders and reclaims
// resources of entitlements that stayed lapsed past the grace period.
package expiration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/shared/biztime"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// ResourceEngine reclaims the resources of an entitlement and restores them when a renewal
// races the reclaim. Both operations must be idempotent.
type ResourceEngine interface {
	Provision(ctx context.Context, ent *entitlement.Entitlement, regions []string) provisioning.ProvisionResult
	Deprovision(ctx context.Context, entitlementID uint) (provisioning.DeprovisionResult, error)
}

// DeferredRunner runs a task once at the given time. A task registered under a name that is
// already scheduled replaces the earlier one.
type DeferredRunner interface {
	RunAt(name string, at time.Time, task func(ctx context.Context)) error
}

// ReminderDeduplicator reports whether key is seen for the first time and records it.
type ReminderDeduplicator interface {
	TryMark(ctx context.Context, key string) (bool, error)
}

type Config struct {
	GracePeriod  time.Duration
	ReminderDays int
}

// ScanResult counts what one pass did.
type ScanResult struct {
	Checked  int
	Lapsed   int
	Reminded int
	Expired  int
	Failed   int
}

var errAlreadyInGrace = errors.New("entitlement already in grace")

type Scheduler struct {
	entitlements entitlement.Repository
	resources    ResourceEngine
	notifier     messaging.Notifier
	deferred     DeferredRunner
	reminders    ReminderDeduplicator
	catalog      *catalog.Catalog
	clock        biztime.Clock
	logger       logger.Interface
	cfg          Config

	scan singleflight.Group
	// ids with a deferred job registered by this process
	pending sync.Map
}

func NewScheduler(
	entitlements entitlement.Repository,
	resources ResourceEngine,
	notifier messaging.Notifier,
	deferred DeferredRunner,
	reminders ReminderDeduplicator,
	cat *catalog.Catalog,
	clock biztime.Clock,
	log logger.Interface,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		entitlements: entitlements,
		resources:    resources,
		notifier:     notifier,
		deferred:     deferred,
		reminders:    reminders,
		catalog:      cat,
		clock:        clock,
		logger:       log.Named("expiration"),
		cfg:          cfg,
	}
}

// Scan processes every active entitlement once. Concurrent calls share a single pass.
func (s *Scheduler) Scan(ctx context.Context) (ScanResult, error) {
	v, err, shared := s.scan.Do("scan", func() (any, error) {
		return s.scanOnce(ctx)
	})
	if shared {
		s.logger.Debugw("joined scan already in progress")
	}
	if err != nil {
		return ScanResult{}, err
	}
	return v.(ScanResult), nil
}

// Execute adapts Scan to the scheduler manager's batch job contract.
func (s *Scheduler) Execute(ctx context.Context) (int, error) {
	res, err := s.Scan(ctx)
	return res.Lapsed + res.Reminded + res.Expired, err
}

func (s *Scheduler) scanOnce(ctx context.Context) (ScanResult, error) {
	active, err := s.entitlements.ListActive(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to list active entitlements: %w", err)
	}

	var res ScanResult
	for _, ent := range active {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		if err := s.check(ctx, ent, &res); err != nil {
			res.Failed++
			s.logger.Errorw("failed to process entitlement during scan",
				"entitlement_id", ent.ID(),
				"owner_id", ent.OwnerID(),
				"error", err,
			)
		}
	}

	if res.Lapsed > 0 || res.Expired > 0 || res.Failed > 0 {
		s.logger.Infow("expiration scan finished",
			"checked", res.Checked,
			"lapsed", res.Lapsed,
			"reminded", res.Reminded,
			"expired", res.Expired,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (s *Scheduler) check(ctx context.Context, ent *entitlement.Entitlement, res *ScanResult) error {
	now := s.clock.Now()

	if ent.IsLapsed(now) {
		if ent.InGrace() {
			if !now.Before(*ent.GraceUntil()) {
				// the deferred job was lost, e.g. by a restart
				expired, err := s.expire(ctx, ent.ID())
				if expired {
					res.Expired++
				}
				return err
			}
			return s.scheduleDeferred(ent.ID(), *ent.GraceUntil())
		}
		return s.enterGrace(ctx, ent.ID(), now, res)
	}

	days, ok := ent.DaysLeft(now)
	if !ok || days < 0 || days > s.cfg.ReminderDays {
		return nil
	}
	return s.remind(ctx, ent, days, res)
}

func (s *Scheduler) enterGrace(ctx context.Context, id uint, now time.Time, res *ScanResult) error {
	until := now.Add(s.cfg.GracePeriod)
	ent, err := s.entitlements.Mutate(ctx, id, func(ent *entitlement.Entitlement) error {
		if !ent.IsLapsed(now) {
			return nil
		}
		if ent.InGrace() {
			return errAlreadyInGrace
		}
		return ent.EnterGrace(until, now)
	})
	if errors.Is(err, errAlreadyInGrace) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open grace window: %w", err)
	}
	if ent == nil || !ent.InGrace() {
		// renewed between listing and locking
		return nil
	}
	res.Lapsed++

	s.logger.Infow("entitlement lapsed, grace window opened",
		"entitlement_id", id,
		"owner_id", ent.OwnerID(),
		"grace_until", until,
	)
	s.notify(ctx, ent.OwnerID(), s.lapsedNotice(ent))
	return s.scheduleDeferred(id, until)
}

func (s *Scheduler) scheduleDeferred(id uint, at time.Time) error {
	if _, loaded := s.pending.LoadOrStore(id, struct{}{}); loaded {
		return nil
	}
	err := s.deferred.RunAt(deferredJobName(id), at, func(ctx context.Context) {
		if err := s.RunDeferredDeprovision(ctx, id); err != nil {
			s.logger.Errorw("deferred deprovisioning failed", "entitlement_id", id, "error", err)
		}
	})
	if err != nil {
		s.pending.Delete(id)
		return fmt.Errorf("failed to schedule deferred deprovisioning: %w", err)
	}
	s.logger.Debugw("deferred deprovisioning scheduled", "entitlement_id", id, "at", at)
	return nil
}

func deferredJobName(id uint) string {
	return fmt.Sprintf("expire-entitlement-%d", id)
}

func (s *Scheduler) remind(ctx context.Context, ent *entitlement.Entitlement, days int, res *ScanResult) error {
	// keyed by end time so a renewed entitlement is reminded again before its new end
	key := fmt.Sprintf("%d:%d", ent.ID(), ent.EndTime().Unix())
	first, err := s.reminders.TryMark(ctx, key)
	if err != nil {
		s.logger.Warnw("reminder de-duplication unavailable, sending anyway", "entitlement_id", ent.ID(), "error", err)
		first = true
	}
	if !first {
		return nil
	}
	res.Reminded++
	s.notify(ctx, ent.OwnerID(), s.reminderNotice(ent, days))
	return nil
}

// RunDeferredDeprovision is the grace-period job. It re-reads the entitlement and does
// nothing when it was renewed or already ended.
func (s *Scheduler) RunDeferredDeprovision(ctx context.Context, id uint) error {
	s.pending.Delete(id)
	_, err := s.expire(ctx, id)
	return err
}

// expire reclaims resources of a lapsed entitlement, marks it expired and tells the owner.
func (s *Scheduler) expire(ctx context.Context, id uint) (bool, error) {
	ent, err := s.entitlements.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent == nil || !ent.IsLapsed(s.clock.Now()) {
		s.logger.Debugw("deferred deprovisioning skipped", "entitlement_id", id)
		return false, nil
	}

	res, err := s.reclaim(ctx, ent)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}
	s.notify(ctx, ent.OwnerID(), finalNotice(ent.ID(), *res))
	return true, nil
}

// reclaim deprovisions and marks expired. A nil result means the entitlement was renewed
// or ended elsewhere while its resources were being reclaimed.
func (s *Scheduler) reclaim(ctx context.Context, ent *entitlement.Entitlement) (*provisioning.DeprovisionResult, error) {
	res, err := s.resources.Deprovision(ctx, ent.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to deprovision entitlement: %w", err)
	}

	skipped := false
	updated, err := s.entitlements.Mutate(ctx, ent.ID(), func(e *entitlement.Entitlement) error {
		now := s.clock.Now()
		if !e.IsLapsed(now) {
			skipped = true
			return nil
		}
		return e.MarkExpired(now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark entitlement expired: %w", err)
	}
	if updated == nil || skipped {
		s.logger.Warnw("entitlement changed while its resources were reclaimed",
			"entitlement_id", ent.ID(),
			"deleted", res.Deleted,
			"total", res.Total,
		)
		if updated != nil && updated.Status() == vo.StatusActive {
			s.restore(ctx, updated)
		}
		return nil, nil
	}

	log := s.logger.Infow
	if !res.Complete() {
		log = s.logger.Warnw
	}
	log("entitlement expired",
		"entitlement_id", ent.ID(),
		"owner_id", ent.OwnerID(),
		"deleted", res.Deleted,
		"total", res.Total,
		"failed_regions", res.Failed,
	)
	return &res, nil
}

// restore provisions the package again for an entitlement renewed during a reclaim and
// sends the owner the new keys.
func (s *Scheduler) restore(ctx context.Context, ent *entitlement.Entitlement) {
	pkg, ok := s.catalog.Package(ent.PackageID())
	if !ok {
		s.logger.Errorw("renewed entitlement has no known package, access not restored",
			"entitlement_id", ent.ID(),
			"package", ent.PackageID(),
		)
		return
	}
	res := s.resources.Provision(ctx, ent, pkg.Regions)
	if len(res.Succeeded) == 0 {
		s.logger.Errorw("failed to restore access of renewed entitlement",
			"entitlement_id", ent.ID(),
			"failed_regions", res.Failed,
		)
		return
	}
	s.logger.Infow("access restored after renewal raced the reclaim",
		"entitlement_id", ent.ID(),
		"regions", res.Succeeded,
		"failed_regions", res.Failed,
	)
	s.notify(ctx, ent.OwnerID(), restoredNotice(ent, res, len(pkg.Regions)))
}

// CancelNow ends a lapsed entitlement at the owner's request without waiting for the grace period.
func (s *Scheduler) CancelNow(ctx context.Context, actorID int64, id uint) (messaging.Reply, error) {
	ent, err := s.entitlements.GetByID(ctx, id)
	if err != nil {
		return messaging.Text("Something went wrong. Please try again later."), fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent == nil || ent.OwnerID() != actorID {
		return messaging.Text("Subscription not found."), errNotFound(id, actorID)
	}
	switch {
	case ent.Status() == vo.StatusExpired || ent.Status() == vo.StatusCancelledByAdmin:
		return messaging.Text(fmt.Sprintf("Subscription #%d has already ended.", id)), errNotCancellable(ent)
	case !ent.IsLapsed(s.clock.Now()):
		return messaging.Text(fmt.Sprintf("Subscription #%d is active, there is nothing to cancel.", id)), errNotCancellable(ent)
	}

	res, err := s.reclaim(ctx, ent)
	if err != nil {
		return messaging.Text("We could not remove your keys right now. They will be removed automatically."), err
	}
	if res == nil {
		return messaging.Text(fmt.Sprintf("Subscription #%d changed in the meantime, nothing was cancelled.", id)), nil
	}
	s.pending.Delete(id)
	return finalNotice(id, *res), nil
}
