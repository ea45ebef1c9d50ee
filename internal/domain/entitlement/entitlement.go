package entitlement

import (
	"fmt"
	"time"

	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
)

// Entitlement is the aggregate root for one paid, time-boxed grant of access.
// start and end are nil until the first activation and are never cleared afterwards.
type Entitlement struct {
	id                   uint
	ownerID              int64
	planID               string
	packageID            string
	status               vo.Status
	startTime            *time.Time
	endTime              *time.Time
	paymentMethod        vo.PaymentMethod
	paymentRef           string
	graceUntil           *time.Time
	needsReconciliation  bool
	reconciliationReason string
	version              int
	createdAt            time.Time
	updatedAt            time.Time
}

// NewEntitlement creates an entitlement in pending_payment for a confirmed payment.
func NewEntitlement(ownerID int64, planID string, method vo.PaymentMethod, paymentRef string, now time.Time) (*Entitlement, error) {
	if ownerID == 0 {
		return nil, fmt.Errorf("owner ID is required")
	}
	if planID == "" {
		return nil, fmt.Errorf("plan ID is required")
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("invalid payment method: %s", method)
	}

	return &Entitlement{
		ownerID:       ownerID,
		planID:        planID,
		status:        vo.StatusPendingPayment,
		paymentMethod: method,
		paymentRef:    paymentRef,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ReconstructEntitlement rebuilds an entitlement from persistence.
func ReconstructEntitlement(
	id uint,
	ownerID int64,
	planID, packageID string,
	status vo.Status,
	startTime, endTime *time.Time,
	paymentMethod vo.PaymentMethod,
	paymentRef string,
	graceUntil *time.Time,
	needsReconciliation bool,
	reconciliationReason string,
	version int,
	createdAt, updatedAt time.Time,
) (*Entitlement, error) {
	if id == 0 {
		return nil, fmt.Errorf("entitlement ID cannot be zero")
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid entitlement status: %s", status)
	}
	if status != vo.StatusPendingPayment && endTime == nil {
		return nil, fmt.Errorf("entitlement %d in status %s has no end time", id, status)
	}

	return &Entitlement{
		id:                   id,
		ownerID:              ownerID,
		planID:               planID,
		packageID:            packageID,
		status:               status,
		startTime:            startTime,
		endTime:              endTime,
		paymentMethod:        paymentMethod,
		paymentRef:           paymentRef,
		graceUntil:           graceUntil,
		needsReconciliation:  needsReconciliation,
		reconciliationReason: reconciliationReason,
		version:              version,
		createdAt:            createdAt,
		updatedAt:            updatedAt,
	}, nil
}

func (e *Entitlement) ID() uint                        { return e.id }
func (e *Entitlement) OwnerID() int64                  { return e.ownerID }
func (e *Entitlement) PlanID() string                  { return e.planID }
func (e *Entitlement) PackageID() string               { return e.packageID }
func (e *Entitlement) Status() vo.Status               { return e.status }
func (e *Entitlement) StartTime() *time.Time           { return e.startTime }
func (e *Entitlement) EndTime() *time.Time             { return e.endTime }
func (e *Entitlement) PaymentMethod() vo.PaymentMethod { return e.paymentMethod }
func (e *Entitlement) PaymentRef() string              { return e.paymentRef }
func (e *Entitlement) GraceUntil() *time.Time          { return e.graceUntil }
func (e *Entitlement) NeedsReconciliation() bool       { return e.needsReconciliation }
func (e *Entitlement) ReconciliationReason() string    { return e.reconciliationReason }
func (e *Entitlement) Version() int                    { return e.version }
func (e *Entitlement) CreatedAt() time.Time            { return e.createdAt }
func (e *Entitlement) UpdatedAt() time.Time            { return e.updatedAt }

// SetID sets the entitlement ID after persistence.
func (e *Entitlement) SetID(id uint) error {
	if e.id != 0 {
		return fmt.Errorf("entitlement ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("entitlement ID cannot be zero")
	}
	e.id = id
	return nil
}

func (e *Entitlement) transition(target vo.Status, now time.Time) error {
	if !e.status.CanTransitionTo(target) {
		return fmt.Errorf("cannot transition entitlement %d from %s to %s", e.id, e.status, target)
	}
	e.status = target
	e.updatedAt = now
	e.version++
	return nil
}

// Activate starts the access period once at least one resource is provisioned.
func (e *Entitlement) Activate(packageID string, duration time.Duration, now time.Time) error {
	if e.status != vo.StatusPendingPayment {
		return fmt.Errorf("entitlement %d is %s, only pending entitlements can be activated", e.id, e.status)
	}
	if duration <= 0 {
		return fmt.Errorf("plan duration must be positive")
	}
	if err := e.transition(vo.StatusActive, now); err != nil {
		return err
	}

	start := now
	end := now.Add(duration)
	e.packageID = packageID
	e.startTime = &start
	e.endTime = &end
	e.needsReconciliation = false
	e.reconciliationReason = ""
	return nil
}

// Renew extends the end time from the stored end time, so unused time is kept.
// Renewing an expired entitlement makes it active again.
func (e *Entitlement) Renew(duration time.Duration, method vo.PaymentMethod, paymentRef string, now time.Time) error {
	if !e.status.CanRenew() {
		return fmt.Errorf("entitlement %d in status %s cannot be renewed", e.id, e.status)
	}
	if e.endTime == nil {
		return fmt.Errorf("entitlement %d has no end time to extend", e.id)
	}
	if duration <= 0 {
		return fmt.Errorf("plan duration must be positive")
	}
	if err := e.transition(vo.StatusActive, now); err != nil {
		return err
	}

	end := e.endTime.Add(duration)
	e.endTime = &end
	e.paymentMethod = method
	e.paymentRef = paymentRef
	e.graceUntil = nil
	return nil
}

// IsLapsed reports an active entitlement whose end time has passed.
func (e *Entitlement) IsLapsed(now time.Time) bool {
	return e.status == vo.StatusActive && e.endTime != nil && !e.endTime.After(now)
}

// InGrace reports whether a grace window was opened and not closed by renewal or expiry.
func (e *Entitlement) InGrace() bool {
	return e.graceUntil != nil
}

// EnterGrace opens the grace window for a lapsed entitlement.
func (e *Entitlement) EnterGrace(until, now time.Time) error {
	if !e.IsLapsed(now) {
		return fmt.Errorf("entitlement %d is not lapsed", e.id)
	}
	if e.graceUntil != nil {
		return fmt.Errorf("entitlement %d is already in grace", e.id)
	}
	e.graceUntil = &until
	e.updatedAt = now
	e.version++
	return nil
}

// MarkExpired closes the lifecycle after resources were reclaimed.
func (e *Entitlement) MarkExpired(now time.Time) error {
	if err := e.transition(vo.StatusExpired, now); err != nil {
		return err
	}
	e.graceUntil = nil
	return nil
}

// CancelByAdmin is unconditional for every non-terminal status.
func (e *Entitlement) CancelByAdmin(now time.Time) error {
	if err := e.transition(vo.StatusCancelledByAdmin, now); err != nil {
		return err
	}
	e.graceUntil = nil
	return nil
}

// FlagForReconciliation marks a paid entitlement whose provisioning failed everywhere.
func (e *Entitlement) FlagForReconciliation(packageID, reason string, now time.Time) error {
	if e.status != vo.StatusPendingPayment {
		return fmt.Errorf("only pending entitlements can be flagged, entitlement %d is %s", e.id, e.status)
	}
	e.packageID = packageID
	e.needsReconciliation = true
	e.reconciliationReason = reason
	e.updatedAt = now
	e.version++
	return nil
}

// DaysLeft returns whole days until the end time; ok is false when there is no end time.
func (e *Entitlement) DaysLeft(now time.Time) (days int, ok bool) {
	if e.endTime == nil {
		return 0, false
	}
	return int(e.endTime.Sub(now) / (24 * time.Hour)), true
}
