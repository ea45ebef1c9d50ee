package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/infrastructure/ratelimit"
	"github.com/orris-inc/keygate/internal/infrastructure/telegram"
	"github.com/orris-inc/keygate/internal/shared/constants"
)

const (
	cmdStart           = "start"
	cmdHelp            = "help"
	cmdSubscribe       = "subscribe"
	cmdMySubscriptions = "my_subscriptions"
	cmdCancel          = "cancel"
	cmdAdminDelete     = "admin_delete"
)

// Commands is the menu registered with Telegram. The admin command is left out on purpose.
func Commands() []telegram.BotCommand {
	return []telegram.BotCommand{
		{Command: cmdStart, Description: "Main menu"},
		{Command: cmdSubscribe, Description: "Buy or renew a subscription"},
		{Command: cmdMySubscriptions, Description: "Your subscriptions and keys"},
		{Command: cmdCancel, Description: "Cancel the current purchase"},
		{Command: cmdHelp, Description: "Help"},
	}
}

// parseCommand splits "/name@bot arg" into name and arg. ok is false for plain text.
func parseCommand(text string) (name, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(head, "@")
	return strings.ToLower(name), strings.TrimSpace(rest), name != ""
}

func commandCategory(name string) ratelimit.Category {
	if name == cmdSubscribe {
		return ratelimit.CategorySubscribe
	}
	return ratelimit.CategoryCommand
}

func (d *Dispatcher) handleMessage(ctx context.Context, from *telegram.User, msg *telegram.Message) error {
	chatID := from.ID
	if msg.Chat != nil {
		chatID = msg.Chat.ID
	}

	name, arg, ok := parseCommand(strings.TrimSpace(msg.Text))
	if !ok {
		if !d.allow(ctx, from.ID, ratelimit.CategoryMessage) {
			return nil
		}
		return d.deliver(ctx, chatID, from.ID, "message", messaging.Text(msgUnrecognized), nil)
	}
	if !d.allow(ctx, from.ID, commandCategory(name)) {
		return nil
	}

	reply, err := d.runCommand(ctx, from, name, arg)
	return d.deliver(ctx, chatID, from.ID, "/"+name, reply, err)
}

func (d *Dispatcher) runCommand(ctx context.Context, from *telegram.User, name, arg string) (messaging.Reply, error) {
	switch name {
	case cmdStart:
		return d.svc.Account.Welcome(from.DisplayName()), nil
	case cmdHelp:
		return d.svc.Account.Help(), nil
	case cmdMySubscriptions:
		return d.svc.Account.Subscriptions(ctx, from.ID)
	case cmdSubscribe:
		return d.svc.Flows.StartPurchase(ctx, from.ID)
	case cmdCancel:
		return d.svc.Flows.Cancel(ctx, from.ID)
	case cmdAdminDelete:
		return d.adminDelete(ctx, from.ID, arg)
	default:
		return messaging.Text(msgUnrecognized), nil
	}
}

// adminDelete opens the list, or jumps to confirmation when an id is given.
func (d *Dispatcher) adminDelete(ctx context.Context, actorID int64, arg string) (messaging.Reply, error) {
	if arg == "" {
		return d.svc.Admin.List(ctx, actorID, constants.DefaultPage)
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id == 0 {
		return d.svc.Admin.List(ctx, actorID, constants.DefaultPage)
	}
	return d.svc.Admin.Select(ctx, actorID, uint(id))
}
