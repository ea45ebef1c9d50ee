package conversation

import "strings"

// Callback actions of the interactive flow. Payloads have the form action:flow[:arg].
const (
	ActionPlan    = "plan"
	ActionPay     = "pay"
	ActionPaid    = "paid"
	ActionPackage = "pkg"
	ActionBack    = "back"
	ActionCancel  = "cancel"
)

func payload(action, flowID string, arg ...string) string {
	parts := append([]string{action, flowID}, arg...)
	return strings.Join(parts, ":")
}

// Payload is a parsed flow callback.
type Payload struct {
	Action string
	FlowID string
	Arg    string
}

// ParsePayload returns false for data that is not a flow callback.
func ParsePayload(data string) (Payload, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return Payload{}, false
	}
	p := Payload{Action: parts[0], FlowID: parts[1]}
	if len(parts) == 3 {
		p.Arg = parts[2]
	}
	switch p.Action {
	case ActionPlan, ActionPay, ActionPackage:
		return p, p.Arg != ""
	case ActionPaid, ActionBack, ActionCancel:
		return p, true
	default:
		return Payload{}, false
	}
}
