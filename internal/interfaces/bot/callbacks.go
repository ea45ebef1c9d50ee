package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/orris-inc/keygate/internal/application/account"
	"github.com/orris-inc/keygate/internal/application/admin"
	"github.com/orris-inc/keygate/internal/application/conversation"
	"github.com/orris-inc/keygate/internal/application/expiration"
	"github.com/orris-inc/keygate/internal/application/messaging"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/infrastructure/ratelimit"
	"github.com/orris-inc/keygate/internal/infrastructure/telegram"
)

func (d *Dispatcher) handleCallback(ctx context.Context, from *telegram.User, cq *telegram.CallbackQuery) error {
	chatID := from.ID
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
	}

	if !d.allow(ctx, from.ID, callbackCategory(cq.Data)) {
		d.answer(ctx, cq.ID, msgSlowDown)
		return nil
	}
	// answered up front so the client stops its spinner while provisioning runs
	d.answer(ctx, cq.ID, "")

	reply, err := d.runCallback(ctx, from, cq.Data)
	return d.deliver(ctx, chatID, from.ID, callbackAction(cq.Data), reply, err)
}

// callbackCategory puts the subscribe button under the same cooldown as /subscribe.
func callbackCategory(data string) ratelimit.Category {
	if data == account.SubscribeCallback {
		return ratelimit.CategorySubscribe
	}
	return ratelimit.CategoryCallback
}

func (d *Dispatcher) answer(ctx context.Context, id, text string) {
	if id == "" {
		return
	}
	if err := d.out.AnswerCallbackQuery(ctx, id, text); err != nil {
		d.logger.Debugw("failed to answer callback query", "callback_id", id, "error", err)
	}
}

func (d *Dispatcher) runCallback(ctx context.Context, from *telegram.User, data string) (messaging.Reply, error) {
	switch data {
	case account.SubscribeCallback:
		return d.svc.Flows.StartPurchase(ctx, from.ID)
	case account.MySubscriptionsCallback:
		return d.svc.Account.Subscriptions(ctx, from.ID)
	case account.MenuCallback:
		return d.svc.Account.Menu(), nil
	case account.HelpCallback:
		return d.svc.Account.Help(), nil
	}

	if admin.IsCallback(data) {
		cb, ok := admin.ParseCallback(data)
		if !ok {
			return messaging.Text(msgUnrecognized), nil
		}
		return d.svc.Admin.Handle(ctx, from.ID, cb)
	}
	if id, ok := idSuffix(data, expiration.RenewPrefix); ok {
		return d.svc.Flows.StartRenewal(ctx, from.ID, id)
	}
	if id, ok := idSuffix(data, expiration.CancelExpiredPrefix); ok {
		return d.svc.Expiration.CancelNow(ctx, from.ID, id)
	}
	if p, ok := conversation.ParsePayload(data); ok {
		return d.runFlowAction(ctx, from.ID, p)
	}
	return messaging.Text(msgUnrecognized), nil
}

func (d *Dispatcher) runFlowAction(ctx context.Context, actorID int64, p conversation.Payload) (messaging.Reply, error) {
	switch p.Action {
	case conversation.ActionPlan:
		return d.svc.Flows.ChooseDuration(ctx, actorID, p.FlowID, p.Arg)
	case conversation.ActionPay:
		return d.svc.Flows.ChoosePayment(ctx, actorID, p.FlowID, vo.PaymentMethod(p.Arg))
	case conversation.ActionPaid:
		return d.svc.Flows.ConfirmPayment(ctx, actorID, p.FlowID)
	case conversation.ActionPackage:
		return d.svc.Flows.ChoosePackage(ctx, actorID, p.FlowID, p.Arg)
	case conversation.ActionBack:
		return d.svc.Flows.BackToPlans(ctx, actorID, p.FlowID)
	default:
		return d.svc.Flows.CancelFlow(ctx, actorID, p.FlowID)
	}
}

// idSuffix parses "<prefix><id>" payloads. Zero and non-numeric ids are rejected.
func idSuffix(data, prefix string) (uint, bool) {
	rest, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// callbackAction names the callback for logs without its variable part.
func callbackAction(data string) string {
	if i := strings.IndexAny(data, ":0123456789"); i > 0 {
		return strings.TrimSuffix(data[:i], "_")
	}
	return data
}
