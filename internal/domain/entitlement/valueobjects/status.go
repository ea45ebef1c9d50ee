package valueobjects

type Status string

const (
	StatusPendingPayment   Status = "pending_payment"
	StatusActive           Status = "active"
	StatusExpired          Status = "expired"
	StatusCancelledByAdmin Status = "cancelled_by_admin"
)

var statusTransitions = map[Status][]Status{
	StatusPendingPayment:   {StatusActive, StatusCancelledByAdmin},
	StatusActive:           {StatusActive, StatusExpired, StatusCancelledByAdmin},
	StatusExpired:          {StatusActive, StatusCancelledByAdmin},
	StatusCancelledByAdmin: {},
}

var ValidStatuses = map[Status]bool{
	StatusPendingPayment:   true,
	StatusActive:           true,
	StatusExpired:          true,
	StatusCancelledByAdmin: true,
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	return ValidStatuses[s]
}

// CanTransitionTo reports whether the lifecycle allows moving from s to target.
// active → active is a renewal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// CanRenew is true for entitlements that still own (or recently owned) resources.
func (s Status) CanRenew() bool {
	return s == StatusActive || s == StatusExpired
}

// AdminVisible lists the statuses shown in the admin deletion view.
func AdminVisible() []Status {
	return []Status{StatusPendingPayment, StatusActive, StatusExpired}
}
