package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/orris-inc/keygate/internal/infrastructure/config"
	"github.com/orris-inc/keygate/internal/infrastructure/migration"
	"github.com/orris-inc/keygate/internal/infrastructure/telegram"
	"github.com/orris-inc/keygate/internal/interfaces/bot"
	httpRouter "github.com/orris-inc/keygate/internal/interfaces/http"
	"github.com/orris-inc/keygate/internal/interfaces/http/handlers"
	"github.com/orris-inc/keygate/internal/shared/goroutine"
	"github.com/orris-inc/keygate/internal/shared/logger"
	"github.com/orris-inc/keygate/internal/shared/version"
)

const shutdownTimeout = 30 * time.Second

var (
	env         string
	autoMigrate bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the bot",
		Long:  `Start the Telegram bot, the expiration scheduler and the HTTP endpoint (health and, in webhook mode, updates).`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Apply database migrations on startup")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(mapEnvToGinMode(env))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode == gin.DebugMode); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()
	log.Infow("starting server",
		"version", version.String(),
		"environment", env,
		"polling", cfg.Telegram.UsePolling(),
		"auto_migrate", autoMigrate,
	)

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard

	c, err := newContainer(cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	if autoMigrate {
		if env == "production" {
			log.Warnw("auto-migration is enabled in production environment")
		}
		if err := migration.NewManager(cfg.Database.Driver, log).Migrate(c.db); err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.bot.SetMyCommands(ctx, bot.Commands()); err != nil {
		log.Warnw("failed to register bot commands", "error", err)
	}

	if err := c.scheduler.RegisterExpirationJobs(c.expiration, cfg.Scheduler.ScanInterval, cfg.Scheduler.FirstRunDelay); err != nil {
		return err
	}
	c.scheduler.Start()

	var webhook *handlers.WebhookHandler
	var polling *telegram.PollingService
	if cfg.Telegram.UsePolling() {
		polling = telegram.NewPollingService(c.bot, c.dispatcher, c.offsets, cfg.Telegram.PollTimeout, cfg.Telegram.Workers, log)
		if err := polling.Start(ctx); err != nil {
			return fmt.Errorf("failed to start polling: %w", err)
		}
	} else {
		webhook = handlers.NewWebhookHandler(c.dispatcher, cfg.Telegram.WebhookSecret, log.Named("webhook"))
		if err := c.bot.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		log.Infow("webhook registered", "url", cfg.Telegram.WebhookURL)
	}

	router := httpRouter.NewRouter(webhook, handlers.NewHealthHandler(c.healthDeps), log.Named("http"))
	router.SetupRoutes()

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	goroutine.SafeGo(log, "http-server", func() {
		log.Infow("server starting", "address", srv.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	select {
	case <-ctx.Done():
		log.Infow("shutting down server...")
	case err := <-serveErr:
		log.Errorw("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if polling != nil {
		polling.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}

func mapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return gin.ReleaseMode
	case "test", "testing":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
