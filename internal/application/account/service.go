// Package account serves the non-flow user surface: registration, the main menu and the
// subscription overview.
package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/orris-inc/keygate/internal/application/expiration"
	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/domain/user"
	"github.com/orris-inc/keygate/internal/shared/biztime"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// Menu callbacks.
const (
	SubscribeCallback       = "subscribe"
	MySubscriptionsCallback = "my_subscriptions"
	MenuCallback            = "back_to_menu"
	HelpCallback            = "help"
)

const (
	maxSeenUsers = 10_000
	// display names are refreshed at most this often per user
	seenTTL = time.Hour
)

const helpText = "I sell VPN access keys.\n\n" +
	"/subscribe - buy a subscription\n" +
	"/my_subscriptions - your subscriptions and access keys\n" +
	"/cancel - abort the purchase in progress\n" +
	"/help - this message\n\n" +
	"Access keys work with the Outline client: copy a key or scan its QR code in the app."

type Service struct {
	users        user.Repository
	entitlements entitlement.Repository
	resources    entitlement.ResourceRepository
	catalog      *catalog.Catalog
	clock        biztime.Clock
	logger       logger.Interface

	seenMu sync.Mutex
	seen   *expirable.LRU[int64, string]
}

func NewService(
	users user.Repository,
	entitlements entitlement.Repository,
	resources entitlement.ResourceRepository,
	cat *catalog.Catalog,
	clock biztime.Clock,
	log logger.Interface,
) *Service {
	return &Service{
		users:        users,
		entitlements: entitlements,
		resources:    resources,
		catalog:      cat,
		clock:        clock,
		logger:       log.Named("account"),
		seen:         expirable.NewLRU[int64, string](maxSeenUsers, nil, seenTTL),
	}
}

// Touch registers the actor on first contact and keeps the display name current.
func (s *Service) Touch(ctx context.Context, actorID int64, displayName string) error {
	s.seenMu.Lock()
	name, ok := s.seen.Get(actorID)
	s.seenMu.Unlock()
	if ok && name == displayName {
		return nil
	}

	u, err := user.NewUser(actorID, displayName, s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	s.seenMu.Lock()
	s.seen.Add(actorID, displayName)
	s.seenMu.Unlock()
	return nil
}

func mainMenuButtons() [][]messaging.Button {
	return [][]messaging.Button{
		messaging.Row(messaging.Callback("Subscribe", SubscribeCallback)),
		messaging.Row(messaging.Callback("My subscriptions", MySubscriptionsCallback)),
		messaging.Row(messaging.Callback("Help", HelpCallback)),
	}
}

// Welcome is the /start screen.
func (s *Service) Welcome(displayName string) messaging.Reply {
	greeting := "Welcome!"
	if displayName != "" {
		greeting = fmt.Sprintf("Welcome, %s!", displayName)
	}
	return messaging.Reply{
		Text:    greeting + "\n\nPick what you want to do:",
		Buttons: mainMenuButtons(),
	}
}

func (s *Service) Menu() messaging.Reply {
	return messaging.Reply{Text: "Main menu:", Buttons: mainMenuButtons()}
}

func (s *Service) Help() messaging.Reply {
	return messaging.Reply{
		Text:    helpText,
		Buttons: [][]messaging.Button{messaging.Row(messaging.Callback("« Menu", MenuCallback))},
	}
}

// Subscriptions lists the actor's entitlements with their live access keys.
func (s *Service) Subscriptions(ctx context.Context, actorID int64) (messaging.Reply, error) {
	ents, err := s.entitlements.ListByOwner(ctx, actorID)
	if err != nil {
		return messaging.Text("Could not load your subscriptions. Please try again later."),
			fmt.Errorf("failed to list entitlements: %w", err)
	}

	now := s.clock.Now()
	var (
		b    strings.Builder
		rows [][]messaging.Button
	)
	for _, ent := range ents {
		if ent.Status() == vo.StatusCancelledByAdmin {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if err := s.describe(ctx, &b, ent, now); err != nil {
			return messaging.Text("Could not load your subscriptions. Please try again later."), err
		}
		if ent.Status().CanRenew() {
			rows = append(rows, messaging.Row(messaging.Callback(fmt.Sprintf("Renew #%d", ent.ID()), expiration.RenewPayload(ent.ID()))))
		}
	}

	if b.Len() == 0 {
		return messaging.Reply{
			Text:    "You have no subscriptions yet.",
			Buttons: [][]messaging.Button{messaging.Row(messaging.Callback("Subscribe", SubscribeCallback))},
		}, nil
	}
	rows = append(rows, messaging.Row(messaging.Callback("« Menu", MenuCallback)))
	return messaging.Reply{Text: "Your subscriptions:\n\n" + b.String(), Buttons: rows}, nil
}

func (s *Service) describe(ctx context.Context, b *strings.Builder, ent *entitlement.Entitlement, now time.Time) error {
	fmt.Fprintf(b, "#%d · %s · ", ent.ID(), s.catalog.PlanName(ent.PlanID()))
	switch ent.Status() {
	case vo.StatusPendingPayment:
		b.WriteString("paid, awaiting setup")
		if ent.NeedsReconciliation() {
			b.WriteString(" (our team has been notified)")
		}
		return nil
	case vo.StatusExpired:
		fmt.Fprintf(b, "expired on %s", biztime.FormatDate(*ent.EndTime()))
		return nil
	}

	end := *ent.EndTime()
	if !end.After(now) {
		fmt.Fprintf(b, "ended on %s, renew now to keep your keys", biztime.FormatDate(end))
	} else {
		fmt.Fprintf(b, "active until %s (%d days left)", biztime.FormatDate(end), biztime.DaysUntil(now, end))
	}

	resources, err := s.resources.ListByEntitlement(ctx, ent.ID())
	if err != nil {
		return fmt.Errorf("failed to list resources of entitlement %d: %w", ent.ID(), err)
	}
	for _, r := range resources {
		if !r.IsLive() {
			continue
		}
		fmt.Fprintf(b, "\n%s: %s", catalog.RegionName(r.Region()), r.AccessURI())
	}
	return nil
}
