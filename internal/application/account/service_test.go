package account_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/keygate/internal/application/account"
	"github.com/orris-inc/keygate/internal/application/testutil"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/domain/user"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

var now0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type countingUsers struct {
	*testutil.MockUserRepository
	upserts int
	err     error
}

func (c *countingUsers) Upsert(ctx context.Context, u *user.User) error {
	c.upserts++
	if c.err != nil {
		return c.err
	}
	return c.MockUserRepository.Upsert(ctx, u)
}

type harness struct {
	users        *countingUsers
	entitlements *testutil.MockEntitlementRepository
	resources    *testutil.MockResourceRepository
	svc          *account.Service
}

func newHarness() *harness {
	h := &harness{
		users:        &countingUsers{MockUserRepository: testutil.NewMockUserRepository()},
		entitlements: testutil.NewMockEntitlementRepository(),
		resources:    testutil.NewMockResourceRepository(),
	}
	h.svc = account.NewService(h.users, h.entitlements, h.resources, catalog.Default(), testutil.NewFakeClock(now0), logger.NewNop())
	return h
}

func (h *harness) active(t *testing.T, owner int64, start time.Time, regions ...string) *entitlement.Entitlement {
	t.Helper()
	ctx := context.Background()
	ent, err := entitlement.NewEntitlement(owner, "1_month", vo.PaymentMethodCard, "cs_1", start)
	require.NoError(t, err)
	require.NoError(t, h.entitlements.Create(ctx, ent))
	for _, region := range regions {
		r, err := entitlement.NewResource(ent.ID(), region, "k-"+region, "ss://"+region+"@vpn.example", start)
		require.NoError(t, err)
		require.NoError(t, h.resources.Create(ctx, r))
	}
	ent, err = h.entitlements.Mutate(ctx, ent.ID(), func(e *entitlement.Entitlement) error {
		return e.Activate("standard", 30*24*time.Hour, start)
	})
	require.NoError(t, err)
	return ent
}

func TestTouch_RegistersOnceAndTracksRenames(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	require.NoError(t, h.svc.Touch(ctx, 7, "@ann"))
	require.NoError(t, h.svc.Touch(ctx, 7, "@ann"))
	assert.Equal(t, 1, h.users.upserts, "unchanged name is not written again")

	require.NoError(t, h.svc.Touch(ctx, 7, "@ann_new"))
	assert.Equal(t, 2, h.users.upserts)
	u, err := h.users.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "@ann_new", u.DisplayName())

	assert.Error(t, h.svc.Touch(ctx, 0, "nobody"))
}

func TestTouch_StoreFailureIsRetried(t *testing.T) {
	h := newHarness()
	h.users.err = errors.New("db down")
	assert.Error(t, h.svc.Touch(context.Background(), 9, "bo"))

	h.users.err = nil
	require.NoError(t, h.svc.Touch(context.Background(), 9, "bo"))
	assert.Equal(t, 2, h.users.upserts)
}

func TestSubscriptions_Empty(t *testing.T) {
	h := newHarness()
	reply, err := h.svc.Subscriptions(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "You have no subscriptions yet.", reply.Text)
	assert.Equal(t, account.SubscribeCallback, reply.Buttons[0][0].Data)
}

func TestSubscriptions_ListsKeysAndRenewButtons(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	live := h.active(t, 7, now0.Add(-10*24*time.Hour), "germany", "amsterdam")
	res, err := h.resources.FindLive(ctx, live.ID(), "amsterdam")
	require.NoError(t, err)
	require.NoError(t, h.resources.Release(ctx, res.ID(), now0))

	pending, err := entitlement.NewEntitlement(7, "3_months", vo.PaymentMethodCrypto, "inv-2", now0)
	require.NoError(t, err)
	require.NoError(t, h.entitlements.Create(ctx, pending))

	cancelled := h.active(t, 7, now0.Add(-2*24*time.Hour))
	_, err = h.entitlements.Mutate(ctx, cancelled.ID(), func(e *entitlement.Entitlement) error { return e.CancelByAdmin(now0) })
	require.NoError(t, err)

	h.active(t, 8, now0, "germany")

	reply, err := h.svc.Subscriptions(ctx, 7)
	require.NoError(t, err)

	assert.Contains(t, reply.Text, "active until")
	assert.Contains(t, reply.Text, "(20 days left)")
	assert.Contains(t, reply.Text, "ss://germany@vpn.example")
	assert.NotContains(t, reply.Text, "ss://amsterdam@vpn.example", "released keys are hidden")
	assert.Contains(t, reply.Text, "awaiting setup")
	assert.NotContains(t, reply.Text, "#3 ", "cancelled entitlements are hidden")

	require.Len(t, reply.Buttons, 2)
	assert.Equal(t, "renew_1", reply.Buttons[0][0].Data)
	assert.Equal(t, account.MenuCallback, reply.Buttons[1][0].Data)
}

func TestSubscriptions_LapsedInGrace(t *testing.T) {
	h := newHarness()
	h.active(t, 7, now0.Add(-31*24*time.Hour), "germany")

	reply, err := h.svc.Subscriptions(context.Background(), 7)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "renew now to keep your keys")
	assert.Equal(t, "renew_1", reply.Buttons[0][0].Data)
}

func TestWelcomeAndHelp(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.svc.Welcome("@ann").Text, "Welcome, @ann!")
	assert.Len(t, h.svc.Menu().Buttons, 3)
	assert.Contains(t, h.svc.Help().Text, "/my_subscriptions")
}
