package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/application/payment"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/shared/biztime"
	apperrors "github.com/orris-inc/keygate/internal/shared/errors"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// Provisioner is the part of the provisioning engine the flow needs.
type Provisioner interface {
	Provision(ctx context.Context, ent *entitlement.Entitlement, regions []string) provisioning.ProvisionResult
}

// KeyEncoder renders an access URI as an image the user can scan.
type KeyEncoder interface {
	Encode(uri string) ([]byte, error)
}

// Engine is the purchase/renewal state machine. Every operation returns the reply to show;
// a non-nil error classifies the failure (see shared/errors) and is meant for logging.
type Engine struct {
	states       StateStore
	entitlements entitlement.Repository
	provisioner  Provisioner
	payments     payment.Router
	catalog      *catalog.Catalog
	keys         KeyEncoder
	clock        biztime.Clock
	logger       logger.Interface
}

func NewEngine(
	states StateStore,
	entitlements entitlement.Repository,
	provisioner Provisioner,
	payments payment.Router,
	cat *catalog.Catalog,
	keys KeyEncoder,
	clock biztime.Clock,
	log logger.Interface,
) *Engine {
	return &Engine{
		states:       states,
		entitlements: entitlements,
		provisioner:  provisioner,
		payments:     payments,
		catalog:      cat,
		keys:         keys,
		clock:        clock,
		logger:       log.Named("conversation"),
	}
}

func newFlowID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Current returns the actor's flow state, or nil.
func (e *Engine) Current(ctx context.Context, actorID int64) (*State, error) {
	return e.states.Get(ctx, actorID)
}

// StartPurchase begins a new purchase flow, superseding any flow in progress.
func (e *Engine) StartPurchase(ctx context.Context, actorID int64) (messaging.Reply, error) {
	st := &State{ActorID: actorID, FlowID: newFlowID(), Step: StepChooseDuration, UpdatedAt: e.clock.Now()}
	if err := e.states.Put(ctx, st); err != nil {
		return messaging.Text(msgGenericFailure), fmt.Errorf("failed to store conversation state: %w", err)
	}
	e.logger.Debugw("purchase flow started", "actor_id", actorID, "flow_id", st.FlowID)
	return e.planMenu(st, ""), nil
}

// StartRenewal begins a renewal flow for one of the actor's entitlements.
func (e *Engine) StartRenewal(ctx context.Context, actorID int64, entitlementID uint) (messaging.Reply, error) {
	ent, err := e.entitlements.GetByID(ctx, entitlementID)
	if err != nil {
		return messaging.Text(msgGenericFailure), fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent == nil || ent.OwnerID() != actorID {
		return messaging.Text("Subscription not found."),
			apperrors.NewNotFoundError("entitlement not found", fmt.Sprintf("id=%d actor=%d", entitlementID, actorID))
	}
	if !ent.Status().CanRenew() {
		return messaging.Text("This subscription can no longer be renewed. Use /subscribe to buy a new one."),
			apperrors.NewValidationError("entitlement is not renewable", string(ent.Status()))
	}

	st := &State{
		ActorID:    actorID,
		FlowID:     newFlowID(),
		Step:       StepChooseDuration,
		RenewingID: entitlementID,
		UpdatedAt:  e.clock.Now(),
	}
	if err := e.states.Put(ctx, st); err != nil {
		return messaging.Text(msgGenericFailure), fmt.Errorf("failed to store conversation state: %w", err)
	}
	e.logger.Debugw("renewal flow started", "actor_id", actorID, "flow_id", st.FlowID, "entitlement_id", entitlementID)
	return e.planMenu(st, ""), nil
}

// load returns the actor's state if it belongs to flowID and is at one of the given steps.
// Anything else is a stale action and leaves the state untouched.
func (e *Engine) load(ctx context.Context, actorID int64, flowID string, steps ...Step) (*State, error) {
	st, err := e.states.Get(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	if st == nil || st.FlowID != flowID {
		return nil, apperrors.NewValidationError("stale flow action", "flow="+flowID)
	}
	for _, s := range steps {
		if st.Step == s {
			return st, nil
		}
	}
	return nil, apperrors.NewValidationError("action does not match flow step", string(st.Step))
}

func (e *Engine) staleReply(err error) messaging.Reply {
	if apperrors.IsValidationError(err) {
		return messaging.Text(msgStale)
	}
	return messaging.Text(msgGenericFailure)
}

func (e *Engine) save(ctx context.Context, st *State) error {
	st.UpdatedAt = e.clock.Now()
	if err := e.states.Put(ctx, st); err != nil {
		return fmt.Errorf("failed to store conversation state: %w", err)
	}
	return nil
}

// abort ends the flow after a broken invariant.
func (e *Engine) abort(ctx context.Context, actorID int64, reason string) (messaging.Reply, error) {
	if err := e.states.Delete(ctx, actorID); err != nil {
		e.logger.Warnw("failed to clear conversation state", "actor_id", actorID, "error", err)
	}
	e.logger.Errorw("conversation aborted", "actor_id", actorID, "reason", reason)
	return messaging.Text(msgGenericFailure), apperrors.NewInternalError("conversation aborted", reason)
}

// ChooseDuration records the plan and moves to payment method selection.
func (e *Engine) ChooseDuration(ctx context.Context, actorID int64, flowID, planID string) (messaging.Reply, error) {
	st, err := e.load(ctx, actorID, flowID, StepChooseDuration)
	if err != nil {
		return e.staleReply(err), err
	}
	plan, ok := e.catalog.Plan(planID)
	if !ok {
		return e.planMenu(st, msgInvalidChoice), apperrors.NewValidationError("unknown plan", planID)
	}

	st.PlanID = plan.ID
	st.Step = StepChoosePayment
	if err := e.save(ctx, st); err != nil {
		return messaging.Text(msgGenericFailure), err
	}
	return e.paymentMenu(st, plan), nil
}

// BackToPlans returns from payment method selection to plan selection.
func (e *Engine) BackToPlans(ctx context.Context, actorID int64, flowID string) (messaging.Reply, error) {
	st, err := e.load(ctx, actorID, flowID, StepChoosePayment)
	if err != nil {
		return e.staleReply(err), err
	}
	st.PlanID = ""
	st.Step = StepChooseDuration
	if err := e.save(ctx, st); err != nil {
		return messaging.Text(msgGenericFailure), err
	}
	return e.planMenu(st, ""), nil
}

// ChoosePayment mints a charge on the chosen rail. A provider error returns the flow to plan selection.
func (e *Engine) ChoosePayment(ctx context.Context, actorID int64, flowID string, method vo.PaymentMethod) (messaging.Reply, error) {
	st, err := e.load(ctx, actorID, flowID, StepChoosePayment)
	if err != nil {
		return e.staleReply(err), err
	}
	plan, ok := e.catalog.Plan(st.PlanID)
	if !ok {
		return e.abort(ctx, actorID, "plan vanished from catalog: "+st.PlanID)
	}
	verifier, ok := e.payments.Verifier(method)
	price, priced := plan.Price(method)
	if !ok || !priced {
		return e.paymentMenu(st, plan), apperrors.NewValidationError("unsupported payment method", string(method))
	}

	description := fmt.Sprintf("VPN subscription, %s", plan.Name)
	if st.IsRenewal() {
		description = fmt.Sprintf("Renewal of subscription #%d, %s", st.RenewingID, plan.Name)
	}
	charge, err := verifier.CreateCharge(ctx, payment.ChargeRequest{
		ActorID:        actorID,
		Amount:         price,
		Description:    description,
		IdempotencyKey: fmt.Sprintf("%s-%s-%s", st.FlowID, plan.ID, method),
	})
	if err != nil {
		e.logger.Warnw("failed to create charge", "actor_id", actorID, "method", method, "error", err)
		st.PlanID = ""
		st.Step = StepChooseDuration
		if saveErr := e.save(ctx, st); saveErr != nil {
			return messaging.Text(msgGenericFailure), saveErr
		}
		return e.planMenu(st, msgProviderDown), apperrors.NewUnavailableError("payment provider error", err.Error())
	}

	st.PaymentRef = charge.Reference
	st.PaymentMethod = method
	st.PayURL = charge.PayURL
	st.Step = StepAwaitPayment
	if err := e.save(ctx, st); err != nil {
		return messaging.Text(msgGenericFailure), err
	}

	text := fmt.Sprintf("Please pay %s for %s using the button below, then press \"I have paid\".", price, plan.Name)
	return awaitMenu(st, text), nil
}

// ConfirmPayment checks the pending charge. It can be called any number of times while unpaid.
func (e *Engine) ConfirmPayment(ctx context.Context, actorID int64, flowID string) (messaging.Reply, error) {
	st, err := e.load(ctx, actorID, flowID, StepAwaitPayment)
	if err != nil {
		return e.staleReply(err), err
	}
	if st.PaymentRef == "" {
		return e.abort(ctx, actorID, "awaiting payment without a payment reference")
	}
	plan, ok := e.catalog.Plan(st.PlanID)
	if !ok {
		return e.abort(ctx, actorID, "plan vanished from catalog: "+st.PlanID)
	}
	verifier, ok := e.payments.Verifier(st.PaymentMethod)
	if !ok {
		return e.abort(ctx, actorID, "no verifier for payment method "+string(st.PaymentMethod))
	}
	price, _ := plan.Price(st.PaymentMethod)

	status, err := verifier.Status(ctx, st.PaymentRef)
	if err != nil {
		e.logger.Warnw("failed to check payment status", "actor_id", actorID, "payment_ref", st.PaymentRef, "error", err)
		return awaitMenu(st, msgProviderDown), apperrors.NewUnavailableError("payment status unavailable", err.Error())
	}
	if status != payment.StatusPaid {
		return awaitMenu(st, msgNotConfirmed), apperrors.NewValidationError("payment not confirmed", string(status))
	}

	verified, err := verifier.Verify(ctx, st.PaymentRef, price)
	if err != nil {
		e.logger.Warnw("failed to verify payment", "actor_id", actorID, "payment_ref", st.PaymentRef, "error", err)
		return awaitMenu(st, msgProviderDown), apperrors.NewUnavailableError("payment verification unavailable", err.Error())
	}
	if !verified {
		e.logger.Warnw("paid charge failed verification", "actor_id", actorID, "payment_ref", st.PaymentRef)
		return awaitMenu(st, msgNotVerified), apperrors.NewValidationError("payment verification failed", st.PaymentRef)
	}

	e.logger.Infow("payment confirmed", "actor_id", actorID, "payment_ref", st.PaymentRef, "method", st.PaymentMethod)
	if st.IsRenewal() {
		return e.completeRenewal(ctx, st, plan)
	}
	return e.createPending(ctx, st)
}

func (e *Engine) completeRenewal(ctx context.Context, st *State, plan catalog.Plan) (messaging.Reply, error) {
	now := e.clock.Now()
	var wasExpired bool
	ent, err := e.entitlements.Mutate(ctx, st.RenewingID, func(ent *entitlement.Entitlement) error {
		if ent.OwnerID() != st.ActorID {
			return apperrors.NewForbiddenError("entitlement belongs to another actor")
		}
		wasExpired = ent.Status() == vo.StatusExpired
		return ent.Renew(plan.Duration, st.PaymentMethod, st.PaymentRef, now)
	})
	if err != nil {
		return e.abort(ctx, st.ActorID, fmt.Sprintf("renewal of entitlement %d failed after payment %s: %v", st.RenewingID, st.PaymentRef, err))
	}
	if ent == nil {
		return e.abort(ctx, st.ActorID, fmt.Sprintf("renewed entitlement %d disappeared", st.RenewingID))
	}

	if err := e.states.Delete(ctx, st.ActorID); err != nil {
		e.logger.Warnw("failed to clear conversation state", "actor_id", st.ActorID, "error", err)
	}
	e.logger.Infow("entitlement renewed",
		"actor_id", st.ActorID,
		"entitlement_id", ent.ID(),
		"end_time", ent.EndTime(),
	)
	renewed := fmt.Sprintf("Subscription #%d renewed. It is now active until %s.", ent.ID(), biztime.FormatDate(*ent.EndTime()))
	if !wasExpired {
		return messaging.Text(renewed), nil
	}
	return e.restoreAccess(ctx, ent, renewed), nil
}

// restoreAccess provisions the package of an entitlement renewed after expiry; its
// resources were released when it expired.
func (e *Engine) restoreAccess(ctx context.Context, ent *entitlement.Entitlement, renewed string) messaging.Reply {
	pkg, ok := e.catalog.Package(ent.PackageID())
	if !ok {
		e.logger.Errorw("renewed entitlement has no known package", "entitlement_id", ent.ID(), "package", ent.PackageID())
		return messaging.Text(renewed + "\n\n" + msgKeysLater)
	}
	res := e.provisioner.Provision(ctx, ent, pkg.Regions)
	if len(res.Succeeded) == 0 {
		e.logger.Errorw("failed to restore access after renewal",
			"entitlement_id", ent.ID(),
			"failed_regions", res.Failed,
		)
		return messaging.Text(renewed + "\n\n" + msgKeysLater)
	}
	reply := e.activationReply(ent, res, len(pkg.Regions))
	reply.Text = renewed + "\n\n" + reply.Text
	return reply
}

func (e *Engine) createPending(ctx context.Context, st *State) (messaging.Reply, error) {
	ent, err := entitlement.NewEntitlement(st.ActorID, st.PlanID, st.PaymentMethod, st.PaymentRef, e.clock.Now())
	if err != nil {
		return e.abort(ctx, st.ActorID, err.Error())
	}
	if err := e.entitlements.Create(ctx, ent); err != nil {
		e.logger.Errorw("failed to create entitlement after payment", "actor_id", st.ActorID, "payment_ref", st.PaymentRef, "error", err)
		return awaitMenu(st, "Payment received, but we could not save it yet. Press \"I have paid\" again in a minute."),
			apperrors.NewUnavailableError("entitlement store unavailable", err.Error())
	}

	st.EntitlementID = ent.ID()
	st.Step = StepChoosePackage
	if err := e.save(ctx, st); err != nil {
		return messaging.Text(msgGenericFailure), err
	}
	return e.packageMenu(st, "Payment confirmed!"), nil
}

// ChoosePackage provisions the package regions and activates the entitlement on at least one success.
func (e *Engine) ChoosePackage(ctx context.Context, actorID int64, flowID, packageID string) (messaging.Reply, error) {
	st, err := e.load(ctx, actorID, flowID, StepChoosePackage)
	if err != nil {
		return e.staleReply(err), err
	}
	if st.EntitlementID == 0 {
		return e.abort(ctx, actorID, "package step without a pending entitlement")
	}
	pkg, ok := e.catalog.Package(packageID)
	if !ok {
		return e.packageMenu(st, msgInvalidChoice), apperrors.NewValidationError("unknown package", packageID)
	}
	plan, ok := e.catalog.Plan(st.PlanID)
	if !ok {
		return e.abort(ctx, actorID, "plan vanished from catalog: "+st.PlanID)
	}

	ent, err := e.entitlements.GetByID(ctx, st.EntitlementID)
	if err != nil {
		return e.packageMenu(st, "We could not reach our database. Please pick the package again."),
			apperrors.NewUnavailableError("entitlement store unavailable", err.Error())
	}
	if ent == nil || ent.OwnerID() != actorID || ent.Status() != vo.StatusPendingPayment {
		return e.abort(ctx, actorID, fmt.Sprintf("pending entitlement %d missing or not pending", st.EntitlementID))
	}

	res := e.provisioner.Provision(ctx, ent, pkg.Regions)
	now := e.clock.Now()

	if len(res.Succeeded) == 0 {
		reason := fmt.Sprintf("provisioning failed in all regions: %s", strings.Join(res.Failed, ","))
		if _, err := e.entitlements.Mutate(ctx, ent.ID(), func(ent *entitlement.Entitlement) error {
			return ent.FlagForReconciliation(pkg.ID, reason, now)
		}); err != nil {
			e.logger.Errorw("failed to flag entitlement for reconciliation", "entitlement_id", ent.ID(), "error", err)
		}
		if err := e.states.Delete(ctx, actorID); err != nil {
			e.logger.Warnw("failed to clear conversation state", "actor_id", actorID, "error", err)
		}
		e.logger.Errorw("paid entitlement needs manual reconciliation",
			"actor_id", actorID,
			"entitlement_id", ent.ID(),
			"payment_ref", ent.PaymentRef(),
			"failed_regions", res.Failed,
		)
		text := fmt.Sprintf("We could not set up any server for your subscription #%d. "+
			"Your payment is safe and our team has been notified.", ent.ID())
		return messaging.Text(text), apperrors.NewUnavailableError("provisioning failed in all regions", reason)
	}

	activated, err := e.entitlements.Mutate(ctx, ent.ID(), func(ent *entitlement.Entitlement) error {
		return ent.Activate(pkg.ID, plan.Duration, now)
	})
	if err != nil || activated == nil {
		return e.abort(ctx, actorID, fmt.Sprintf("activation of entitlement %d failed: %v", ent.ID(), err))
	}
	if err := e.states.Delete(ctx, actorID); err != nil {
		e.logger.Warnw("failed to clear conversation state", "actor_id", actorID, "error", err)
	}

	e.logger.Infow("entitlement activated",
		"actor_id", actorID,
		"entitlement_id", activated.ID(),
		"regions", res.Succeeded,
		"failed_regions", res.Failed,
	)
	return e.activationReply(activated, res, len(pkg.Regions)), nil
}

// Cancel drops the actor's flow. Entitlements already created stay as they are.
func (e *Engine) Cancel(ctx context.Context, actorID int64) (messaging.Reply, error) {
	st, err := e.states.Get(ctx, actorID)
	if err != nil {
		return messaging.Text(msgGenericFailure), fmt.Errorf("failed to load conversation state: %w", err)
	}
	if st == nil {
		return messaging.Text(msgNothingToCancel), nil
	}
	if err := e.states.Delete(ctx, actorID); err != nil {
		return messaging.Text(msgGenericFailure), fmt.Errorf("failed to clear conversation state: %w", err)
	}
	e.logger.Infow("conversation cancelled", "actor_id", actorID, "step", st.Step, "entitlement_id", st.EntitlementID)
	return messaging.Text(msgCancelled), nil
}

// CancelFlow is the button variant of Cancel; buttons of a superseded flow are stale.
func (e *Engine) CancelFlow(ctx context.Context, actorID int64, flowID string) (messaging.Reply, error) {
	if _, err := e.load(ctx, actorID, flowID, StepChooseDuration, StepChoosePayment, StepAwaitPayment, StepChoosePackage); err != nil {
		return e.staleReply(err), err
	}
	return e.Cancel(ctx, actorID)
}
