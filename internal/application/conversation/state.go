// Package conversation drives the per-actor purchase and renewal flows.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
)

type Step string

const (
	StepChooseDuration Step = "choose_duration"
	StepChoosePayment  Step = "choose_payment"
	StepAwaitPayment   Step = "await_payment_confirmation"
	StepChoosePackage  Step = "choose_package"
)

// State is the ephemeral progress of one actor. FlowID is embedded in every button of the
// flow, so buttons from a superseded flow can be recognised and rejected.
type State struct {
	ActorID       int64            `json:"actor_id"`
	FlowID        string           `json:"flow_id"`
	Step          Step             `json:"step"`
	PlanID        string           `json:"plan_id,omitempty"`
	PackageID     string           `json:"package_id,omitempty"`
	PaymentRef    string           `json:"payment_ref,omitempty"`
	PaymentMethod vo.PaymentMethod `json:"payment_method,omitempty"`
	PayURL        string           `json:"pay_url,omitempty"`
	// RenewingID is set for renewal flows, which skip the package step.
	RenewingID uint `json:"renewing_id,omitempty"`
	// EntitlementID is the pending entitlement created after payment in a purchase flow.
	EntitlementID uint      `json:"entitlement_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *State) IsRenewal() bool {
	return s.RenewingID != 0
}

// StateStore holds at most one state per actor. Put overwrites.
type StateStore interface {
	// Get returns (nil, nil) when the actor has no flow in progress.
	Get(ctx context.Context, actorID int64) (*State, error)
	Put(ctx context.Context, state *State) error
	Delete(ctx context.Context, actorID int64) error
}

const maxTrackedConversations = 50_000

// MemoryStateStore keeps states in process memory. Abandoned flows are evicted after ttl.
type MemoryStateStore struct {
	mu     sync.Mutex
	states *expirable.LRU[int64, State]
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{states: expirable.NewLRU[int64, State](maxTrackedConversations, nil, ttl)}
}

func (s *MemoryStateStore) Get(_ context.Context, actorID int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states.Get(actorID)
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStateStore) Put(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states.Add(state.ActorID, *state)
	return nil
}

func (s *MemoryStateStore) Delete(_ context.Context, actorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states.Remove(actorID)
	return nil
}
