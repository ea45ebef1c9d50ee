// Package testutil provides in-memory implementations of the ports used by the application layer.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/application/payment"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/domain/user"
)

// FakeClock is a settable clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func cloneEntitlement(e *entitlement.Entitlement) *entitlement.Entitlement {
	c, err := entitlement.ReconstructEntitlement(
		e.ID(), e.OwnerID(), e.PlanID(), e.PackageID(), e.Status(),
		e.StartTime(), e.EndTime(), e.PaymentMethod(), e.PaymentRef(), e.GraceUntil(),
		e.NeedsReconciliation(), e.ReconciliationReason(), e.Version(), e.CreatedAt(), e.UpdatedAt(),
	)
	if err != nil {
		panic(fmt.Sprintf("testutil: cannot clone entitlement: %v", err))
	}
	return c
}

// MockEntitlementRepository stores copies, so callers only see persisted state.
type MockEntitlementRepository struct {
	mu     sync.Mutex
	items  map[uint]*entitlement.Entitlement
	nextID uint

	CreateErr error
	MutateErr error
	ListErr   error
}

func NewMockEntitlementRepository() *MockEntitlementRepository {
	return &MockEntitlementRepository{items: make(map[uint]*entitlement.Entitlement)}
}

func (m *MockEntitlementRepository) Create(_ context.Context, e *entitlement.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.nextID++
	if err := e.SetID(m.nextID); err != nil {
		return err
	}
	m.items[e.ID()] = cloneEntitlement(e)
	return nil
}

func (m *MockEntitlementRepository) GetByID(_ context.Context, id uint) (*entitlement.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return cloneEntitlement(e), nil
}

func (m *MockEntitlementRepository) Mutate(_ context.Context, id uint, fn entitlement.MutateFunc) (*entitlement.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MutateErr != nil {
		return nil, m.MutateErr
	}
	stored, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	working := cloneEntitlement(stored)
	if err := fn(working); err != nil {
		return nil, err
	}
	m.items[id] = cloneEntitlement(working)
	return working, nil
}

// Put stores e as-is, assigning an ID when it has none.
func (m *MockEntitlementRepository) Put(e *entitlement.Entitlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID() == 0 {
		m.nextID++
		_ = e.SetID(m.nextID)
	} else if e.ID() > m.nextID {
		m.nextID = e.ID()
	}
	m.items[e.ID()] = cloneEntitlement(e)
}

func (m *MockEntitlementRepository) filter(keep func(*entitlement.Entitlement) bool) ([]*entitlement.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*entitlement.Entitlement
	for _, e := range m.items {
		if keep(e) {
			out = append(out, cloneEntitlement(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (m *MockEntitlementRepository) ListActive(context.Context) ([]*entitlement.Entitlement, error) {
	return m.filter(func(e *entitlement.Entitlement) bool { return e.Status() == vo.StatusActive })
}

func (m *MockEntitlementRepository) ListByOwner(_ context.Context, ownerID int64) ([]*entitlement.Entitlement, error) {
	return m.filter(func(e *entitlement.Entitlement) bool { return e.OwnerID() == ownerID })
}

func (m *MockEntitlementRepository) ListPendingReconciliation(context.Context) ([]*entitlement.Entitlement, error) {
	return m.filter(func(e *entitlement.Entitlement) bool { return e.NeedsReconciliation() })
}

func (m *MockEntitlementRepository) ListAdminView(_ context.Context, page, pageSize int) ([]*entitlement.Entitlement, int64, error) {
	visible := map[vo.Status]bool{}
	for _, s := range vo.AdminVisible() {
		visible[s] = true
	}
	all, err := m.filter(func(e *entitlement.Entitlement) bool { return visible[e.Status()] })
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].OwnerID() != all[j].OwnerID() {
			return all[i].OwnerID() < all[j].OwnerID()
		}
		return endUnix(all[i]) > endUnix(all[j])
	})

	start := (page - 1) * pageSize
	if start < 0 || start >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], int64(len(all)), nil
}

func endUnix(e *entitlement.Entitlement) int64 {
	if e.EndTime() == nil {
		return 0
	}
	return e.EndTime().Unix()
}

// MockResourceRepository is an in-memory resource store.
type MockResourceRepository struct {
	mu     sync.Mutex
	items  map[uint]*entitlement.Resource
	nextID uint

	CreateErr  error
	ReleaseErr error
}

func NewMockResourceRepository() *MockResourceRepository {
	return &MockResourceRepository{items: make(map[uint]*entitlement.Resource)}
}

func cloneResource(r *entitlement.Resource) *entitlement.Resource {
	return entitlement.ReconstructResource(r.ID(), r.EntitlementID(), r.Region(), r.CredentialID(), r.AccessURI(), r.ReleasedAt(), r.CreatedAt())
}

func (m *MockResourceRepository) Create(_ context.Context, r *entitlement.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.nextID++
	r.SetID(m.nextID)
	m.items[r.ID()] = cloneResource(r)
	return nil
}

func (m *MockResourceRepository) ListByEntitlement(_ context.Context, entitlementID uint) ([]*entitlement.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entitlement.Resource
	for _, r := range m.items {
		if r.EntitlementID() == entitlementID {
			out = append(out, cloneResource(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (m *MockResourceRepository) FindLive(_ context.Context, entitlementID uint, region string) (*entitlement.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.items {
		if r.EntitlementID() == entitlementID && r.Region() == region && r.IsLive() {
			return cloneResource(r), nil
		}
	}
	return nil, nil
}

func (m *MockResourceRepository) Release(_ context.Context, id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	r, ok := m.items[id]
	if !ok {
		return fmt.Errorf("resource %d not found", id)
	}
	r.Release(at)
	return nil
}

// Live returns the live resources of an entitlement.
func (m *MockResourceRepository) Live(entitlementID uint) []*entitlement.Resource {
	all, _ := m.ListByEntitlement(context.Background(), entitlementID)
	var out []*entitlement.Resource
	for _, r := range all {
		if r.IsLive() {
			out = append(out, r)
		}
	}
	return out
}

// MockUserRepository is an in-memory user store.
type MockUserRepository struct {
	mu    sync.Mutex
	users map[int64]*user.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[int64]*user.User)}
}

func (m *MockUserRepository) Upsert(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID()]; ok {
		existing.Rename(u.DisplayName(), u.UpdatedAt())
		return nil
	}
	m.users[u.ID()] = user.ReconstructUser(u.ID(), u.DisplayName(), u.CreatedAt(), u.UpdatedAt())
	return nil
}

func (m *MockUserRepository) GetByID(_ context.Context, id int64) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return user.ReconstructUser(u.ID(), u.DisplayName(), u.CreatedAt(), u.UpdatedAt()), nil
}

// FakeProvisioner keeps credentials in memory. Set CreateErr/DeleteErr/RenameErr to inject failures.
type FakeProvisioner struct {
	mu     sync.Mutex
	Region string
	keys   map[string]string // credential id → label
	nextID int

	CreateErr error
	RenameErr error
	DeleteErr error

	Creates int
	Deletes int
}

func NewFakeProvisioner(region string) *FakeProvisioner {
	return &FakeProvisioner{Region: region, keys: make(map[string]string)}
}

func (p *FakeProvisioner) Create(context.Context) (provisioning.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return provisioning.Credential{}, p.CreateErr
	}
	p.Creates++
	p.nextID++
	id := fmt.Sprintf("%d", p.nextID)
	p.keys[id] = ""
	return provisioning.Credential{ID: id, AccessURI: fmt.Sprintf("ss://%s-%s@%s.example:443", p.Region, id, p.Region)}, nil
}

func (p *FakeProvisioner) Rename(_ context.Context, credentialID, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RenameErr != nil {
		return p.RenameErr
	}
	if _, ok := p.keys[credentialID]; !ok {
		return provisioning.ErrCredentialNotFound
	}
	p.keys[credentialID] = label
	return nil
}

func (p *FakeProvisioner) Delete(_ context.Context, credentialID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DeleteErr != nil {
		return p.DeleteErr
	}
	p.Deletes++
	if _, ok := p.keys[credentialID]; !ok {
		return provisioning.ErrCredentialNotFound
	}
	delete(p.keys, credentialID)
	return nil
}

// Keys returns a copy of the live credentials and their labels.
func (p *FakeProvisioner) Keys() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.keys))
	for k, v := range p.keys {
		out[k] = v
	}
	return out
}

// FakeVerifier scripts a payment rail. Statuses and verification results are keyed by reference.
type FakeVerifier struct {
	mu       sync.Mutex
	prefix   string
	nextID   int
	statuses map[string]payment.Status
	verified map[string]bool

	CreateErr error
	StatusErr error
	Created   []payment.ChargeRequest
}

func NewFakeVerifier(prefix string) *FakeVerifier {
	return &FakeVerifier{prefix: prefix, statuses: make(map[string]payment.Status), verified: make(map[string]bool)}
}

func (v *FakeVerifier) CreateCharge(_ context.Context, req payment.ChargeRequest) (payment.Charge, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.CreateErr != nil {
		return payment.Charge{}, v.CreateErr
	}
	v.nextID++
	ref := fmt.Sprintf("%s%d", v.prefix, v.nextID)
	v.statuses[ref] = payment.StatusPending
	v.Created = append(v.Created, req)
	return payment.Charge{Reference: ref, PayURL: "https://pay.example/" + ref, Amount: req.Amount}, nil
}

func (v *FakeVerifier) Status(_ context.Context, reference string) (payment.Status, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.StatusErr != nil {
		return payment.StatusError, v.StatusErr
	}
	s, ok := v.statuses[reference]
	if !ok {
		return payment.StatusNotFound, nil
	}
	return s, nil
}

func (v *FakeVerifier) Verify(_ context.Context, reference string, _ catalog.Money) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.verified[reference], nil
}

// MarkPaid makes reference report paid; verified controls the second check.
func (v *FakeVerifier) MarkPaid(reference string, verified bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses[reference] = payment.StatusPaid
	v.verified[reference] = verified
}

func (v *FakeVerifier) SetStatus(reference string, s payment.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses[reference] = s
}

// SentMessage is one message captured by RecordingNotifier.
type SentMessage struct {
	ActorID int64
	Reply   messaging.Reply
}

// RecordingNotifier captures outbound messages.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

func (n *RecordingNotifier) Send(_ context.Context, actorID int64, reply messaging.Reply) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, SentMessage{ActorID: actorID, Reply: reply})
	return nil
}

func (n *RecordingNotifier) Sent() []SentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentMessage(nil), n.sent...)
}
