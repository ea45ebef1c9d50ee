package expiration

import (
	"context"
	"fmt"
	"strings"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	"github.com/orris-inc/keygate/internal/shared/biztime"
	apperrors "github.com/orris-inc/keygate/internal/shared/errors"
)

// Callback payloads of the expiry buttons.
const (
	RenewPrefix         = "renew_"
	CancelExpiredPrefix = "cancel_expired_"
)

func RenewPayload(id uint) string         { return fmt.Sprintf("%s%d", RenewPrefix, id) }
func CancelExpiredPayload(id uint) string { return fmt.Sprintf("%s%d", CancelExpiredPrefix, id) }

func (s *Scheduler) notify(ctx context.Context, actorID int64, reply messaging.Reply) {
	if err := s.notifier.Send(ctx, actorID, reply); err != nil {
		s.logger.Warnw("failed to notify owner", "actor_id", actorID, "error", err)
	}
}

func (s *Scheduler) lapsedNotice(ent *entitlement.Entitlement) messaging.Reply {
	text := fmt.Sprintf(
		"Your subscription #%d (%s) expired on %s.\n\n"+
			"Renew within %s to keep your servers, otherwise your access keys will be removed.",
		ent.ID(), s.catalog.PlanName(ent.PlanID()), biztime.FormatDate(*ent.EndTime()), s.cfg.GracePeriod,
	)
	return messaging.Reply{
		Text: text,
		Buttons: [][]messaging.Button{messaging.Row(
			messaging.Callback("Renew now", RenewPayload(ent.ID())),
			messaging.Callback("Cancel now", CancelExpiredPayload(ent.ID())),
		)},
	}
}

func (s *Scheduler) reminderNotice(ent *entitlement.Entitlement, days int) messaging.Reply {
	var when string
	switch days {
	case 0:
		when = "today"
	case 1:
		when = "in 1 day"
	default:
		when = fmt.Sprintf("in %d days", days)
	}
	text := fmt.Sprintf("Your subscription #%d (%s) expires %s, on %s.",
		ent.ID(), s.catalog.PlanName(ent.PlanID()), when, biztime.FormatDate(*ent.EndTime()))
	return messaging.Reply{
		Text:    text,
		Buttons: [][]messaging.Button{messaging.Row(messaging.Callback("Renew", RenewPayload(ent.ID())))},
	}
}

func finalNotice(id uint, res provisioning.DeprovisionResult) messaging.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "Subscription #%d has ended. ", id)
	switch {
	case res.Complete():
		b.WriteString("All access keys were removed.")
	case res.Deleted == 0:
		fmt.Fprintf(&b, "We could not remove your access keys (0/%d). Support has been notified.", res.Total)
	default:
		fmt.Fprintf(&b, "%d/%d access keys were removed. Support will remove the rest.", res.Deleted, res.Total)
	}
	b.WriteString("\n\nUse /subscribe to get a new subscription.")
	return messaging.Text(b.String())
}

func restoredNotice(ent *entitlement.Entitlement, res provisioning.ProvisionResult, requested int) messaging.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "Subscription #%d was renewed while its access keys were being removed. "+
		"It is active until %s and your keys were issued again.\n", ent.ID(), biztime.FormatDate(*ent.EndTime()))
	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "%d of %d servers are set up, support will restore the rest.\n", len(res.Succeeded), requested)
	}
	for _, r := range res.Resources {
		fmt.Fprintf(&b, "\n%s:\n%s\n", catalog.RegionName(r.Region()), r.AccessURI())
	}
	return messaging.Text(b.String())
}

func errNotFound(id uint, actorID int64) error {
	return apperrors.NewNotFoundError("entitlement not found", fmt.Sprintf("id=%d actor=%d", id, actorID))
}

func errNotCancellable(ent *entitlement.Entitlement) error {
	return apperrors.NewValidationError("entitlement is not in grace", string(ent.Status()))
}
