// Package bot routes Telegram updates to the application flows and delivers their replies.
package bot

import (
	"context"
	"fmt"

	"github.com/orris-inc/keygate/internal/application/account"
	"github.com/orris-inc/keygate/internal/application/admin"
	"github.com/orris-inc/keygate/internal/application/conversation"
	"github.com/orris-inc/keygate/internal/application/expiration"
	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/infrastructure/ratelimit"
	"github.com/orris-inc/keygate/internal/infrastructure/telegram"
	apperrors "github.com/orris-inc/keygate/internal/shared/errors"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const (
	msgUnrecognized = "Sorry, I did not understand that. Use /help to see what I can do."
	msgSlowDown     = "Please wait a moment before trying again."
)

// Outbound is the part of the bot client the dispatcher talks back through.
type Outbound interface {
	Send(ctx context.Context, chatID int64, reply messaging.Reply) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

// Services groups the flows a dispatcher routes to.
type Services struct {
	Account    *account.Service
	Flows      *conversation.Engine
	Expiration *expiration.Scheduler
	Admin      *admin.DeletionFlow
}

// Dispatcher implements telegram.UpdateHandler for both polling and webhook delivery.
type Dispatcher struct {
	svc     Services
	limiter ratelimit.RateLimiter
	out     Outbound
	logger  logger.Interface
}

var _ telegram.UpdateHandler = (*Dispatcher)(nil)

func NewDispatcher(svc Services, limiter ratelimit.RateLimiter, out Outbound, log logger.Interface) *Dispatcher {
	return &Dispatcher{
		svc:     svc,
		limiter: limiter,
		out:     out,
		logger:  log.Named("bot"),
	}
}

// HandleUpdate processes one update. Flow failures are answered in chat and logged;
// only delivery failures are returned.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	from := update.Sender()
	if from == nil || from.IsBot {
		return nil
	}

	if err := d.svc.Account.Touch(ctx, from.ID, from.DisplayName()); err != nil {
		d.logger.Warnw("failed to register user", "actor_id", from.ID, "error", err)
	}

	switch {
	case update.CallbackQuery != nil:
		return d.handleCallback(ctx, from, update.CallbackQuery)
	case update.Message != nil:
		return d.handleMessage(ctx, from, update.Message)
	}
	return nil
}

func (d *Dispatcher) allow(ctx context.Context, actorID int64, category ratelimit.Category) bool {
	if d.limiter.Allow(ctx, actorID, category) {
		return true
	}
	d.logger.Debugw("action rate limited", "actor_id", actorID, "category", category)
	return false
}

// deliver sends the reply and logs the flow error at a level matching its type.
func (d *Dispatcher) deliver(ctx context.Context, chatID, actorID int64, action string, reply messaging.Reply, flowErr error) error {
	if flowErr != nil {
		d.logFlowError(actorID, action, flowErr)
	}
	if reply.Text == "" && len(reply.Attachments) == 0 {
		return nil
	}
	if err := d.out.Send(ctx, chatID, reply); err != nil {
		return fmt.Errorf("failed to deliver %s reply: %w", action, err)
	}
	return nil
}

func (d *Dispatcher) logFlowError(actorID int64, action string, err error) {
	args := []any{"actor_id", actorID, "action", action, "error", err}
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeNotFound, apperrors.ErrorTypeRateLimit:
		d.logger.Debugw("action rejected", args...)
	case apperrors.ErrorTypeForbidden, apperrors.ErrorTypeUnavailable, apperrors.ErrorTypeConflict:
		d.logger.Warnw("action failed", args...)
	default:
		d.logger.Errorw("action aborted", args...)
	}
}
