package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/orris-inc/keygate/internal/application/account"
	"github.com/orris-inc/keygate/internal/application/admin"
	"github.com/orris-inc/keygate/internal/application/conversation"
	"github.com/orris-inc/keygate/internal/application/expiration"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/infrastructure/cache"
	"github.com/orris-inc/keygate/internal/infrastructure/config"
	"github.com/orris-inc/keygate/internal/infrastructure/database"
	"github.com/orris-inc/keygate/internal/infrastructure/outline"
	"github.com/orris-inc/keygate/internal/infrastructure/payment"
	"github.com/orris-inc/keygate/internal/infrastructure/qrcode"
	"github.com/orris-inc/keygate/internal/infrastructure/ratelimit"
	"github.com/orris-inc/keygate/internal/infrastructure/repository"
	"github.com/orris-inc/keygate/internal/infrastructure/scheduler"
	"github.com/orris-inc/keygate/internal/infrastructure/telegram"
	"github.com/orris-inc/keygate/internal/interfaces/bot"
	"github.com/orris-inc/keygate/internal/interfaces/http/handlers"
	"github.com/orris-inc/keygate/internal/shared/biztime"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const qrCodeSize = 512

// container holds the long-lived components of a running server.
type container struct {
	db         *gorm.DB
	redis      *redis.Client
	bot        *telegram.BotService
	dispatcher *bot.Dispatcher
	scheduler  *scheduler.SchedulerManager
	expiration *expiration.Scheduler
	offsets    telegram.OffsetStore
	healthDeps map[string]handlers.Pinger
	logger     logger.Interface
}

func newContainer(cfg *config.Config, log logger.Interface) (*container, error) {
	c := &container{logger: log, healthDeps: make(map[string]handlers.Pinger)}

	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	c.db = db
	sqlDB, err := db.DB()
	if err != nil {
		c.close()
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	c.healthDeps["database"] = sqlDB

	if cfg.Redis.Enabled {
		client, err := initRedis(cfg, log)
		if err != nil {
			c.close()
			return nil, err
		}
		c.redis = client
		c.healthDeps["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	if err := c.wire(cfg); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

// initRedis creates and tests the Redis client connection.
func initRedis(cfg *config.Config, log logger.Interface) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Infow("Redis connection established successfully", "addr", cfg.Redis.GetAddr())
	return client, nil
}

func (c *container) wire(cfg *config.Config) error {
	log := c.logger
	clock := biztime.SystemClock()

	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	registry, err := outline.NewRegistry(cfg.Outline, log)
	if err != nil {
		return fmt.Errorf("failed to build server registry: %w", err)
	}
	for _, pkg := range cat.Packages() {
		for _, region := range pkg.Regions {
			if _, ok := registry[region]; !ok {
				log.Warnw("package region has no server configured", "package", pkg.ID, "region", region)
			}
		}
	}

	entitlements := repository.NewEntitlementRepository(c.db, log)
	resources := repository.NewResourceRepository(c.db, log)
	users := repository.NewUserRepository(c.db, log)

	prov := provisioning.NewEngine(resources, users, registry, clock, log, cfg.Scheduler.ProvisionConcurrency)

	var (
		states    conversation.StateStore
		reminders expiration.ReminderDeduplicator
		limiter   ratelimit.RateLimiter
	)
	policy := ratelimit.PolicyFromConfig(cfg.RateLimit.Default, cfg.RateLimit.Categories)
	// a reminder key must outlive the reminder window it belongs to
	reminderTTL := time.Duration(cfg.Scheduler.ReminderDays+1)*24*time.Hour + cfg.Scheduler.GracePeriod

	if cfg.Conversation.Store == "redis" {
		states = cache.NewRedisConversationStore(c.redis, cfg.Conversation.TTL)
	} else {
		states = conversation.NewMemoryStateStore(cfg.Conversation.TTL)
	}
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedisRateLimiter(c.redis, policy, log)
	} else {
		limiter = ratelimit.NewMemoryRateLimiter(policy, clock)
	}
	if c.redis != nil {
		reminders = cache.NewRedisReminderStore(c.redis, reminderTTL)
		c.offsets = cache.NewPollingOffsetStore(c.redis)
	} else {
		reminders = cache.NewMemoryReminderStore(reminderTTL)
		c.offsets = &cache.MemoryOffsetStore{}
	}

	sched, err := scheduler.NewSchedulerManager(log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	c.scheduler = sched

	c.bot = telegram.NewBotService(cfg.Telegram, log)

	c.expiration = expiration.NewScheduler(
		entitlements,
		prov,
		c.bot,
		sched,
		reminders,
		cat,
		clock,
		log,
		expiration.Config{
			GracePeriod:  cfg.Scheduler.GracePeriod,
			ReminderDays: cfg.Scheduler.ReminderDays,
		},
	)

	flows := conversation.NewEngine(
		states,
		entitlements,
		prov,
		payment.NewRouter(cfg.Payment, log),
		cat,
		qrcode.NewEncoder(qrCodeSize),
		clock,
		log,
	)

	if cfg.Admin.ActorID == 0 {
		log.Warnw("admin.actor_id not set, admin commands are disabled")
	}

	c.dispatcher = bot.NewDispatcher(
		bot.Services{
			Account:    account.NewService(users, entitlements, resources, cat, clock, log),
			Flows:      flows,
			Expiration: c.expiration,
			Admin:      admin.NewDeletionFlow(entitlements, users, prov, cat, cfg.Admin.ActorID, clock, log),
		},
		limiter,
		c.bot,
		log,
	)
	return nil
}

func (c *container) close() {
	if c.scheduler != nil {
		if err := c.scheduler.Stop(); err != nil {
			c.logger.Errorw("failed to stop scheduler", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Errorw("failed to close redis", "error", err)
		}
	}
	if c.db != nil {
		if err := database.Close(c.db); err != nil {
			c.logger.Errorw("failed to close database", "error", err)
		}
	}
}
