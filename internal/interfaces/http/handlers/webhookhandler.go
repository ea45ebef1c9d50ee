package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/keygate/internal/infrastructure/telegram"
	"github.com/orris-inc/keygate/internal/shared/constants"
	"github.com/orris-inc/keygate/internal/shared/logger"
	"github.com/orris-inc/keygate/internal/shared/utils"
)

// WebhookHandler receives Telegram updates pushed to the webhook URL.
type WebhookHandler struct {
	updates telegram.UpdateHandler
	secret  string
	logger  logger.Interface
}

func NewWebhookHandler(updates telegram.UpdateHandler, secret string, log logger.Interface) *WebhookHandler {
	return &WebhookHandler{
		updates: updates,
		secret:  secret,
		logger:  log,
	}
}

// HandleWebhook processes one update.
// POST /webhooks/telegram
//
// Handling errors still answer 200: Telegram would otherwise redeliver the same update.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	if h.secret == "" {
		h.logger.Errorw("webhook secret not configured, rejecting request")
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "webhook not configured")
		return
	}

	got := c.GetHeader(constants.HeaderTelegramToken)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.logger.Warnw("webhook secret verification failed", "received_secret_empty", got == "")
		utils.ErrorResponse(c, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warnw("failed to parse webhook update", "error", err)
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	// a dropped connection must not abort provisioning half way
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.updates.HandleUpdate(ctx, &update); err != nil {
		h.logger.Errorw("failed to handle webhook update", "update_id", update.UpdateID, "error", err)
		_ = c.Error(err)
	}
	c.Status(http.StatusOK)
}
