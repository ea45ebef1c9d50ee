// Package scheduler runs periodic and one-shot jobs on gocron v2.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/orris-inc/keygate/internal/shared/logger"
)

// BatchJob defines the interface for a scheduled batch processing job.
// Each Execute call processes a batch and returns the number of items processed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

const (
	expirationJobName = "expiration-scan"
	// bound for a single scan or deferred task
	jobTimeout = 5 * time.Minute
)

// SchedulerManager owns the single gocron scheduler of the process.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	// cancelled on Stop so in-flight tasks see shutdown
	ctx    context.Context
	cancel context.CancelFunc

	started   bool
	startedMu sync.RWMutex
}

func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log.Named("scheduler"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// RegisterExpirationJobs runs the expiration scan every interval, the first time after
// firstRunDelay or right away when the delay is not positive. Overlapping runs are
// rescheduled rather than stacked.
func (m *SchedulerManager) RegisterExpirationJobs(scanJob BatchJob, interval, firstRunDelay time.Duration) error {
	start := gocron.WithStartImmediately()
	if firstRunDelay > 0 {
		start = gocron.WithStartDateTime(time.Now().Add(firstRunDelay))
	}
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(m.ctx, jobTimeout)
			defer cancel()
			m.runBatch(ctx, expirationJobName, scanJob)
		}),
		gocron.WithStartAt(start),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("expiration", "reminder"),
		gocron.WithName(expirationJobName),
	)
	if err != nil {
		return fmt.Errorf("failed to register expiration job: %w", err)
	}

	m.logger.Infow("registered expiration jobs",
		"interval", interval.String(),
		"first_run_delay", firstRunDelay.String(),
	)
	return nil
}

func (m *SchedulerManager) runBatch(ctx context.Context, name string, job BatchJob) {
	startTime := time.Now()
	count, err := job.Execute(ctx)
	if err != nil {
		m.logger.Errorw("scheduled job failed",
			"job", name,
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}
	if count > 0 {
		m.logger.Infow("scheduled job processed items",
			"job", name,
			"count", count,
			"duration", time.Since(startTime),
		)
	}
}

// RunAt schedules task to run once at the given time. A time in the past runs immediately.
// A job already registered under name is removed first, so the latest call wins.
func (m *SchedulerManager) RunAt(name string, at time.Time, task func(ctx context.Context)) error {
	for _, j := range m.scheduler.Jobs() {
		if j.Name() != name {
			continue
		}
		if err := m.scheduler.RemoveJob(j.ID()); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			return fmt.Errorf("failed to replace %s: %w", name, err)
		}
		m.logger.Debugw("replaced one-time job", "job", name)
	}

	start := gocron.OneTimeJobStartImmediately()
	if at.After(time.Now()) {
		start = gocron.OneTimeJobStartDateTime(at)
	}

	_, err := m.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(m.ctx, jobTimeout)
			defer cancel()
			task(ctx)
		}),
		gocron.WithName(name),
		gocron.WithTags("deferred"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	m.logger.Debugw("scheduled one-time job", "job", name, "at", at)
	return nil
}

// Start starts the scheduler and all registered jobs.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop cancels running tasks and waits for them to return.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")
	m.cancel()

	err := m.scheduler.Shutdown()
	m.started = false
	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
