package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orris-inc/keygate/internal/shared/goroutine"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const (
	defaultWorkerCount = 4
	defaultPollTimeout = 30
	pollErrorBackoff   = 5 * time.Second
)

// OffsetStore persists polling offset across restarts.
type OffsetStore interface {
	GetOffset(ctx context.Context) (int64, error)
	SaveOffset(ctx context.Context, offset int64) error
}

// UpdateHandler processes one update. Errors are logged, never retried.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *Update) error
}

// UpdateSource is the part of the Bot API the poller needs.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
	DeleteWebhook(ctx context.Context) error
}

// PollingService long-polls getUpdates. Updates of one batch are fanned out to workers by
// sender, so each actor's updates are handled in order while different actors run in parallel.
type PollingService struct {
	source      UpdateSource
	handler     UpdateHandler
	logger      logger.Interface
	offsetStore OffsetStore
	pollTimeout int
	workerCount int

	lastUpdateID int64
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	isRunning    bool
	runningMu    sync.Mutex
}

func NewPollingService(
	source UpdateSource,
	handler UpdateHandler,
	offsetStore OffsetStore,
	pollTimeout, workers int,
	log logger.Interface,
) *PollingService {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	return &PollingService{
		source:      source,
		handler:     handler,
		logger:      log.Named("telegram.polling"),
		offsetStore: offsetStore,
		pollTimeout: pollTimeout,
		workerCount: workers,
	}
}

func (s *PollingService) Start(ctx context.Context) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.isRunning {
		return nil
	}

	saved, err := s.offsetStore.GetOffset(ctx)
	if err != nil {
		s.logger.Warnw("failed to load polling offset, starting from 0", "error", err)
	} else if saved > 0 {
		s.lastUpdateID = saved
		s.logger.Infow("loaded polling offset from store", "offset", saved)
	}

	// getUpdates is refused while a webhook is set
	if err := s.source.DeleteWebhook(ctx); err != nil {
		s.logger.Warnw("failed to delete webhook before polling", "error", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.isRunning = true

	s.logger.Infow("starting telegram polling service",
		"timeout", s.pollTimeout,
		"workers", s.workerCount,
	)

	s.wg.Add(1)
	goroutine.SafeGo(s.logger, "telegram-poll-loop", func() {
		defer s.wg.Done()
		s.pollLoop(pollCtx)
	})
	return nil
}

// Stop cancels the pending long poll and waits for in-flight updates.
func (s *PollingService) Stop() {
	s.runningMu.Lock()
	if !s.isRunning {
		s.runningMu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	s.runningMu.Unlock()

	s.wg.Wait()
	s.logger.Infow("telegram polling service stopped")
}

func (s *PollingService) pollLoop(ctx context.Context) {
	for ctx.Err() == nil {
		s.poll(ctx)
	}
}

func (s *PollingService) poll(ctx context.Context) {
	offset := int64(0)
	if s.lastUpdateID > 0 {
		offset = s.lastUpdateID + 1
	}

	updates, err := s.source.GetUpdates(ctx, offset, s.pollTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Errorw("failed to get updates", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(pollErrorBackoff):
		}
		return
	}
	if len(updates) == 0 {
		return
	}

	buckets := make([][]Update, s.workerCount)
	maxUpdateID := s.lastUpdateID
	for _, u := range updates {
		if u.UpdateID <= s.lastUpdateID {
			continue
		}
		idx := s.workerFor(&u)
		buckets[idx] = append(buckets[idx], u)
		if u.UpdateID > maxUpdateID {
			maxUpdateID = u.UpdateID
		}
	}

	var batchWg sync.WaitGroup
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		batchWg.Add(1)
		workerIdx, workerBucket := i, bucket
		goroutine.SafeGo(s.logger, "telegram-worker-batch", func() {
			defer batchWg.Done()
			s.processBatch(ctx, workerIdx, workerBucket)
		})
	}
	batchWg.Wait()

	// advance only after the whole batch ran, so a crash replays rather than skips
	if maxUpdateID == s.lastUpdateID {
		return
	}
	s.lastUpdateID = maxUpdateID

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.offsetStore.SaveOffset(saveCtx, s.lastUpdateID); err != nil {
		s.logger.Warnw("failed to save polling offset", "error", err)
	}
}

func (s *PollingService) processBatch(ctx context.Context, workerIdx int, updates []Update) {
	for i := range updates {
		if ctx.Err() != nil {
			return
		}
		s.handleOne(ctx, workerIdx, &updates[i])
	}
}

func (s *PollingService) handleOne(ctx context.Context, workerIdx int, u *Update) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("panic recovered in update handler",
				"worker", workerIdx,
				"update_id", u.UpdateID,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()

	if err := s.handler.HandleUpdate(ctx, u); err != nil {
		s.logger.Errorw("failed to handle update",
			"worker", workerIdx,
			"update_id", u.UpdateID,
			"error", err,
		)
	}
}

// workerFor keeps every update of one sender on the same worker.
func (s *PollingService) workerFor(u *Update) int {
	key := u.UpdateID
	if from := u.Sender(); from != nil {
		key = from.ID
	}
	idx := int(key % int64(s.workerCount))
	if idx < 0 {
		idx += s.workerCount
	}
	return idx
}
