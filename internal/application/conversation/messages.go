package conversation

import (
	"fmt"
	"strings"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/shared/biztime"
)

const (
	msgStale           = "This button belongs to a flow that is no longer active. Use /subscribe to start again."
	msgNotConfirmed    = "Payment is not confirmed yet. If you have paid, wait a moment and press \"I have paid\" again."
	msgNotVerified     = "The payment could not be verified yet. Please try again in a minute."
	msgProviderDown    = "The payment provider is not responding. Please try again in a few minutes."
	msgGenericFailure  = "Something went wrong. Please start again with /subscribe."
	msgCancelled       = "Cancelled. Use /subscribe whenever you are ready."
	msgNothingToCancel = "There is nothing to cancel."
	msgInvalidChoice   = "That option is not available. Please pick one of the buttons."
	msgKeysLater       = "We could not set up your servers right now. Our team has been notified and will send your keys."
)

func methodLabel(m vo.PaymentMethod) string {
	switch m {
	case vo.PaymentMethodCrypto:
		return "Crypto"
	case vo.PaymentMethodCard:
		return "Card"
	default:
		return string(m)
	}
}

func (e *Engine) planMenu(st *State, intro string) messaging.Reply {
	var b strings.Builder
	if intro != "" {
		b.WriteString(intro)
		b.WriteString("\n\n")
	}
	if st.IsRenewal() {
		fmt.Fprintf(&b, "Renewing subscription #%d. Choose a duration:", st.RenewingID)
	} else {
		b.WriteString("Choose a subscription duration:")
	}

	var rows [][]messaging.Button
	for _, p := range e.catalog.Plans() {
		var prices []string
		for _, m := range e.payments.Methods() {
			if price, ok := p.Price(m); ok {
				prices = append(prices, price.String())
			}
		}
		label := p.Name
		if len(prices) > 0 {
			label += " · " + strings.Join(prices, " / ")
		}
		rows = append(rows, messaging.Row(messaging.Callback(label, payload(ActionPlan, st.FlowID, p.ID))))
	}
	rows = append(rows, messaging.Row(messaging.Callback("Cancel", payload(ActionCancel, st.FlowID))))
	return messaging.Reply{Text: b.String(), Buttons: rows}
}

func (e *Engine) paymentMenu(st *State, plan catalog.Plan) messaging.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s\n\nChoose a payment method:", plan.Name)

	var row []messaging.Button
	for _, m := range e.payments.Methods() {
		price, ok := plan.Price(m)
		if !ok {
			continue
		}
		row = append(row, messaging.Callback(fmt.Sprintf("%s · %s", methodLabel(m), price), payload(ActionPay, st.FlowID, string(m))))
	}
	return messaging.Reply{
		Text: b.String(),
		Buttons: [][]messaging.Button{
			row,
			messaging.Row(
				messaging.Callback("Back to plans", payload(ActionBack, st.FlowID)),
				messaging.Callback("Cancel", payload(ActionCancel, st.FlowID)),
			),
		},
	}
}

func awaitMenu(st *State, text string) messaging.Reply {
	var rows [][]messaging.Button
	if st.PayURL != "" {
		rows = append(rows, messaging.Row(messaging.Link("Pay", st.PayURL)))
	}
	rows = append(rows, messaging.Row(
		messaging.Callback("I have paid", payload(ActionPaid, st.FlowID)),
		messaging.Callback("Cancel", payload(ActionCancel, st.FlowID)),
	))
	return messaging.Reply{Text: text, Buttons: rows}
}

func (e *Engine) packageMenu(st *State, intro string) messaging.Reply {
	var rows [][]messaging.Button
	for _, p := range e.catalog.Packages() {
		names := make([]string, 0, len(p.Regions))
		for _, r := range p.Regions {
			names = append(names, catalog.RegionName(r))
		}
		rows = append(rows, messaging.Row(messaging.Callback(
			fmt.Sprintf("%s (%s)", p.Name, strings.Join(names, ", ")),
			payload(ActionPackage, st.FlowID, p.ID),
		)))
	}
	return messaging.Reply{Text: intro + "\n\nChoose your server package:", Buttons: rows}
}

func (e *Engine) activationReply(ent *entitlement.Entitlement, res provisioning.ProvisionResult, requested int) messaging.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "Your subscription #%d is active until %s.\n", ent.ID(), biztime.FormatDate(*ent.EndTime()))
	if len(res.Failed) > 0 {
		failed := make([]string, 0, len(res.Failed))
		for _, r := range res.Failed {
			failed = append(failed, catalog.RegionName(r))
		}
		fmt.Fprintf(&b, "%d of %d servers were set up. Not available right now: %s.\n",
			len(res.Succeeded), requested, strings.Join(failed, ", "))
	}
	b.WriteString("\nYour access keys:\n")

	var attachments []messaging.Attachment
	for _, r := range res.Resources {
		fmt.Fprintf(&b, "\n%s:\n%s\n", catalog.RegionName(r.Region()), r.AccessURI())
		if e.keys == nil {
			continue
		}
		png, err := e.keys.Encode(r.AccessURI())
		if err != nil {
			e.logger.Warnw("failed to render access key", "region", r.Region(), "error", err)
			continue
		}
		attachments = append(attachments, messaging.Attachment{
			Name:    r.Region() + ".png",
			Caption: catalog.RegionName(r.Region()),
			PNG:     png,
		})
	}
	return messaging.Reply{Text: b.String(), Attachments: attachments}
}
