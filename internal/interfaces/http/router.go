// Package http exposes the Telegram webhook receiver and the health endpoint.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/keygate/internal/interfaces/http/handlers"
	"github.com/orris-inc/keygate/internal/interfaces/http/middleware"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const (
	WebhookPath = "/webhooks/telegram"
	HealthPath  = "/healthz"
)

type Router struct {
	engine  *gin.Engine
	webhook *handlers.WebhookHandler
	health  *handlers.HealthHandler
	logger  logger.Interface
}

func NewRouter(webhook *handlers.WebhookHandler, health *handlers.HealthHandler, log logger.Interface) *Router {
	engine := gin.New()
	engine.Use(middleware.Recovery(log), middleware.Logger(log))
	return &Router{
		engine:  engine,
		webhook: webhook,
		health:  health,
		logger:  log,
	}
}

// SetupRoutes registers the health endpoint and, when a webhook handler is set, the webhook.
func (r *Router) SetupRoutes() {
	r.engine.GET(HealthPath, r.health.Health)
	if r.webhook != nil {
		r.engine.POST(WebhookPath, r.webhook.HandleWebhook)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
