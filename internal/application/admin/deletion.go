// Package admin implements the privileged subscription deletion flow.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/domain/user"
	"github.com/orris-inc/keygate/internal/shared/biztime"
	"github.com/orris-inc/keygate/internal/shared/constants"
	apperrors "github.com/orris-inc/keygate/internal/shared/errors"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const msgRefused = "You are not allowed to do that."

type Deprovisioner interface {
	Deprovision(ctx context.Context, entitlementID uint) (provisioning.DeprovisionResult, error)
}

// DeletionFlow lists entitlements and cancels them on behalf of the operator. It keeps no
// state between steps: every button carries the page or entitlement id it acts on.
type DeletionFlow struct {
	entitlements  entitlement.Repository
	users         user.Repository
	deprovisioner Deprovisioner
	catalog       *catalog.Catalog
	adminID       int64
	clock         biztime.Clock
	logger        logger.Interface
}

func NewDeletionFlow(
	entitlements entitlement.Repository,
	users user.Repository,
	deprovisioner Deprovisioner,
	cat *catalog.Catalog,
	adminID int64,
	clock biztime.Clock,
	log logger.Interface,
) *DeletionFlow {
	return &DeletionFlow{
		entitlements:  entitlements,
		users:         users,
		deprovisioner: deprovisioner,
		catalog:       cat,
		adminID:       adminID,
		clock:         clock,
		logger:        log.Named("admin"),
	}
}

// IsAdmin reports whether actorID is the configured operator. A zero admin id disables the flow.
func (f *DeletionFlow) IsAdmin(actorID int64) bool {
	return f.adminID != 0 && actorID == f.adminID
}

func (f *DeletionFlow) authorize(actorID int64, action string) error {
	if f.IsAdmin(actorID) {
		return nil
	}
	f.logger.Warnw("unauthorized admin action rejected", "actor_id", actorID, "action", action)
	return apperrors.NewForbiddenError("admin only", action)
}

// List shows one page of manageable entitlements. Out-of-range pages are clamped.
func (f *DeletionFlow) List(ctx context.Context, actorID int64, page int) (messaging.Reply, error) {
	if err := f.authorize(actorID, "list"); err != nil {
		return messaging.Text(msgRefused), err
	}
	if page < constants.DefaultPage {
		page = constants.DefaultPage
	}

	items, total, err := f.entitlements.ListAdminView(ctx, page, constants.AdminPageSize)
	if err != nil {
		return messaging.Text("Could not load subscriptions."), fmt.Errorf("failed to list entitlements: %w", err)
	}
	if total == 0 {
		return messaging.Text("No subscriptions found to delete."), nil
	}
	pages := int((total + constants.AdminPageSize - 1) / constants.AdminPageSize)
	if page > pages {
		page = pages
		items, total, err = f.entitlements.ListAdminView(ctx, page, constants.AdminPageSize)
		if err != nil {
			return messaging.Text("Could not load subscriptions."), fmt.Errorf("failed to list entitlements: %w", err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subscriptions: %d (page %d/%d)\nSelect a subscription to delete:", total, page, pages)

	var rows [][]messaging.Button
	var flagged []string
	for _, ent := range items {
		rows = append(rows, messaging.Row(messaging.Callback(f.itemLabel(ctx, ent), selectPayload(ent.ID()))))
		if ent.NeedsReconciliation() {
			flagged = append(flagged, fmt.Sprintf("#%d", ent.ID()))
		}
	}
	if len(flagged) > 0 {
		fmt.Fprintf(&b, "\n\nPaid but not provisioned, needs reconciliation: %s", strings.Join(flagged, ", "))
	}

	var nav []messaging.Button
	if page > 1 {
		nav = append(nav, messaging.Callback("« Previous", pagePayload(page-1)))
	}
	if page < pages {
		nav = append(nav, messaging.Callback("Next »", pagePayload(page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, messaging.Row(messaging.Callback("Close", abortPayload)))
	return messaging.Reply{Text: b.String(), Buttons: rows}, nil
}

func (f *DeletionFlow) itemLabel(ctx context.Context, ent *entitlement.Entitlement) string {
	end := "n/a"
	if ent.EndTime() != nil {
		end = ent.EndTime().Format("2006-01-02")
	}
	mark := ""
	if ent.NeedsReconciliation() {
		mark = " ⚠"
	}
	return fmt.Sprintf("#%d %s · %s · %s · %s%s",
		ent.ID(), f.ownerName(ctx, ent.OwnerID()), f.catalog.PlanName(ent.PlanID()), ent.Status(), end, mark)
}

func (f *DeletionFlow) ownerName(ctx context.Context, ownerID int64) string {
	u, err := f.users.GetByID(ctx, ownerID)
	if err != nil || u == nil {
		return fmt.Sprintf("user%d", ownerID)
	}
	name := []rune(u.DisplayName())
	if len(name) > 12 {
		return string(name[:12])
	}
	return string(name)
}

// Select asks the operator to confirm the deletion of one entitlement.
func (f *DeletionFlow) Select(ctx context.Context, actorID int64, id uint) (messaging.Reply, error) {
	if err := f.authorize(actorID, "select"); err != nil {
		return messaging.Text(msgRefused), err
	}
	ent, err := f.load(ctx, id)
	if err != nil {
		return f.notFoundReply(id, err), err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Delete subscription #%d?\n\n", ent.ID())
	fmt.Fprintf(&b, "Owner: %s (%d)\n", f.ownerName(ctx, ent.OwnerID()), ent.OwnerID())
	fmt.Fprintf(&b, "Plan: %s\n", f.catalog.PlanName(ent.PlanID()))
	fmt.Fprintf(&b, "Status: %s\n", ent.Status())
	if ent.EndTime() != nil {
		fmt.Fprintf(&b, "Ends: %s\n", biztime.FormatDate(*ent.EndTime()))
	}
	fmt.Fprintf(&b, "Payment: %s %s\n", ent.PaymentMethod(), ent.PaymentRef())
	if ent.NeedsReconciliation() {
		fmt.Fprintf(&b, "Needs reconciliation: %s\n", ent.ReconciliationReason())
	}
	b.WriteString("\nAll access keys will be deleted and the subscription cancelled.")

	return messaging.Reply{
		Text: b.String(),
		Buttons: [][]messaging.Button{
			messaging.Row(messaging.Callback(fmt.Sprintf("Yes, delete #%d", ent.ID()), confirmPayload(ent.ID()))),
			messaging.Row(
				messaging.Callback("No, keep it", abortPayload),
				messaging.Callback("Back to list", pagePayload(1)),
			),
		},
	}, nil
}

// Confirm deprovisions and cancels. The status change happens whatever the deprovisioning outcome;
// the outcome is reported separately.
func (f *DeletionFlow) Confirm(ctx context.Context, actorID int64, id uint) (messaging.Reply, error) {
	if err := f.authorize(actorID, "confirm"); err != nil {
		return messaging.Text(msgRefused), err
	}
	if _, err := f.load(ctx, id); err != nil {
		return f.notFoundReply(id, err), err
	}

	res, depErr := f.deprovisioner.Deprovision(ctx, id)
	if depErr != nil {
		f.logger.Errorw("failed to deprovision entitlement", "entitlement_id", id, "error", depErr)
	}

	cancelled, err := f.entitlements.Mutate(ctx, id, func(ent *entitlement.Entitlement) error {
		return ent.CancelByAdmin(f.clock.Now())
	})
	if err != nil || cancelled == nil {
		f.logger.Errorw("failed to cancel entitlement", "entitlement_id", id, "error", err)
		return messaging.Text(fmt.Sprintf("Failed to cancel subscription #%d. Check the logs.", id)),
			apperrors.NewInternalError("admin cancellation failed", fmt.Sprint(err))
	}

	f.logger.Infow("entitlement cancelled by admin",
		"actor_id", actorID,
		"entitlement_id", id,
		"owner_id", cancelled.OwnerID(),
		"deleted", res.Deleted,
		"total", res.Total,
		"failed_regions", res.Failed,
	)

	var text string
	switch {
	case depErr != nil:
		text = fmt.Sprintf("Subscription #%d cancelled. Its access keys could not be listed, clean them up manually.", id)
	case res.Complete():
		text = fmt.Sprintf("Subscription #%d cancelled. Access keys deleted: %d/%d.", id, res.Deleted, res.Total)
	default:
		text = fmt.Sprintf("Subscription #%d cancelled. Access keys deleted: %d/%d, failed regions: %s.",
			id, res.Deleted, res.Total, strings.Join(res.Failed, ", "))
	}
	return messaging.Text(text), nil
}

// Abort closes the flow without changes.
func (f *DeletionFlow) Abort(_ context.Context, actorID int64) (messaging.Reply, error) {
	if err := f.authorize(actorID, "abort"); err != nil {
		return messaging.Text(msgRefused), err
	}
	return messaging.Text("Deletion cancelled. Nothing was changed."), nil
}

// Handle dispatches a parsed admin callback.
func (f *DeletionFlow) Handle(ctx context.Context, actorID int64, cb Callback) (messaging.Reply, error) {
	switch cb.Action {
	case ActionPage:
		return f.List(ctx, actorID, int(cb.N))
	case ActionSelect:
		return f.Select(ctx, actorID, uint(cb.N))
	case ActionConfirm:
		return f.Confirm(ctx, actorID, uint(cb.N))
	default:
		return f.Abort(ctx, actorID)
	}
}

// load returns entitlements that can still be cancelled.
func (f *DeletionFlow) load(ctx context.Context, id uint) (*entitlement.Entitlement, error) {
	ent, err := f.entitlements.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent == nil {
		return nil, apperrors.NewNotFoundError("entitlement not found", fmt.Sprint(id))
	}
	if ent.Status() == vo.StatusCancelledByAdmin {
		return nil, apperrors.NewValidationError("entitlement already cancelled", fmt.Sprint(id))
	}
	return ent, nil
}

func (f *DeletionFlow) notFoundReply(id uint, err error) messaging.Reply {
	var text string
	switch {
	case apperrors.IsNotFoundError(err):
		text = fmt.Sprintf("Subscription #%d not found.", id)
	case apperrors.IsValidationError(err):
		text = fmt.Sprintf("Subscription #%d is already cancelled.", id)
	default:
		text = "Could not load the subscription."
	}
	return messaging.Reply{
		Text:    text,
		Buttons: [][]messaging.Button{messaging.Row(messaging.Callback("Back to list", pagePayload(1)))},
	}
}
