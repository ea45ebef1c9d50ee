package provisioning_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/application/testutil"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/domain/user"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

var now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine    *provisioning.Engine
	resources *testutil.MockResourceRepository
	germany   *testutil.FakeProvisioner
	amsterdam *testutil.FakeProvisioner
	ent       *entitlement.Entitlement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := testutil.NewMockUserRepository()
	u, err := user.NewUser(100, "alice", now)
	require.NoError(t, err)
	require.NoError(t, users.Upsert(context.Background(), u))

	ent, err := entitlement.NewEntitlement(100, "1_month", vo.PaymentMethodCrypto, "inv-1", now)
	require.NoError(t, err)
	require.NoError(t, ent.SetID(9))

	f := &fixture{
		resources: testutil.NewMockResourceRepository(),
		germany:   testutil.NewFakeProvisioner("germany"),
		amsterdam: testutil.NewFakeProvisioner("amsterdam"),
		ent:       ent,
	}
	registry := provisioning.StaticRegistry{"germany": f.germany, "amsterdam": f.amsterdam}
	f.engine = provisioning.NewEngine(f.resources, users, registry, testutil.NewFakeClock(now), logger.NewNop(), 2)
	return f
}

func TestProvision_AllRegions(t *testing.T) {
	f := newFixture(t)

	res := f.engine.Provision(context.Background(), f.ent, []string{"germany", "amsterdam"})

	assert.Equal(t, []string{"germany", "amsterdam"}, res.Succeeded)
	assert.Empty(t, res.Failed)
	require.Len(t, res.Resources, 2)
	assert.Len(t, f.resources.Live(9), 2)
	assert.Equal(t, map[string]string{"1": "alice_germany_9"}, f.germany.Keys())
	assert.Equal(t, map[string]string{"1": "alice_amsterdam_9"}, f.amsterdam.Keys())
}

func TestProvision_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.amsterdam.CreateErr = fmt.Errorf("dial tcp: %w", provisioning.ErrRegionUnavailable)

	res := f.engine.Provision(context.Background(), f.ent, []string{"germany", "amsterdam"})

	assert.Equal(t, []string{"germany"}, res.Succeeded)
	assert.Equal(t, []string{"amsterdam"}, res.Failed)
	live := f.resources.Live(9)
	require.Len(t, live, 1)
	assert.Equal(t, "germany", live[0].Region())
}

func TestProvision_UnknownRegionFails(t *testing.T) {
	f := newFixture(t)

	res := f.engine.Provision(context.Background(), f.ent, []string{"tokyo", "germany", "germany"})

	assert.Equal(t, []string{"germany"}, res.Succeeded)
	assert.Equal(t, []string{"tokyo"}, res.Failed)
	assert.Equal(t, 1, f.germany.Creates, "duplicate regions are provisioned once")
}

func TestProvision_RenameFailureKeepsCredential(t *testing.T) {
	f := newFixture(t)
	f.germany.RenameErr = errors.New("500 internal")

	res := f.engine.Provision(context.Background(), f.ent, []string{"germany"})

	assert.Equal(t, []string{"germany"}, res.Succeeded)
	assert.Len(t, f.germany.Keys(), 1)
}

func TestProvision_PersistFailureDeletesOrphan(t *testing.T) {
	f := newFixture(t)
	f.resources.CreateErr = errors.New("database is locked")

	res := f.engine.Provision(context.Background(), f.ent, []string{"germany"})

	assert.Equal(t, []string{"germany"}, res.Failed)
	assert.Empty(t, f.germany.Keys(), "credential without a row must not survive")
}

func TestProvision_ReusesLiveResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.engine.Provision(ctx, f.ent, []string{"germany"})
	second := f.engine.Provision(ctx, f.ent, []string{"germany"})

	assert.Equal(t, []string{"germany"}, second.Succeeded)
	assert.Equal(t, first.Resources[0].CredentialID(), second.Resources[0].CredentialID())
	assert.Equal(t, 1, f.germany.Creates)
}

func TestProvision_LabelFallsBackWithoutUser(t *testing.T) {
	f := newFixture(t)
	stranger, err := entitlement.NewEntitlement(555, "1_month", vo.PaymentMethodCard, "cs", now)
	require.NoError(t, err)
	require.NoError(t, stranger.SetID(10))

	f.engine.Provision(context.Background(), stranger, []string{"germany"})

	for _, label := range f.germany.Keys() {
		assert.True(t, strings.HasPrefix(label, "user555_germany_10"))
	}
}

func TestDeprovision_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.Provision(ctx, f.ent, []string{"germany", "amsterdam"})

	first, err := f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, provisioning.DeprovisionResult{Deleted: 2, Total: 2}, first)
	assert.True(t, first.Complete())
	assert.Empty(t, f.germany.Keys())

	deletesBefore := f.germany.Deletes + f.amsterdam.Deletes
	second, err := f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, provisioning.DeprovisionResult{Deleted: 2, Total: 2}, second)
	assert.Equal(t, deletesBefore, f.germany.Deletes+f.amsterdam.Deletes, "no provisioner calls on the second pass")
}

func TestDeprovision_PartialFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.Provision(ctx, f.ent, []string{"germany", "amsterdam"})
	f.amsterdam.DeleteErr = fmt.Errorf("timeout: %w", provisioning.ErrRegionUnavailable)

	res, err := f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"amsterdam"}, res.Failed)
	assert.False(t, res.Complete())

	// the failed region is retried on the next call
	f.amsterdam.DeleteErr = nil
	res, err = f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Empty(t, f.amsterdam.Keys())
}

func TestDeprovision_CountsOnlyCurrentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	regions := []string{"germany", "amsterdam"}

	// provisioned, reclaimed, then provisioned again after a renewal
	f.engine.Provision(ctx, f.ent, regions)
	_, err := f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	again := f.engine.Provision(ctx, f.ent, regions)
	require.Len(t, again.Succeeded, 2)

	out, err := f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, provisioning.DeprovisionResult{Deleted: 2, Total: 2}, out)
	assert.Empty(t, f.resources.Live(9))

	repeat, err := f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, provisioning.DeprovisionResult{Deleted: 2, Total: 2}, repeat)
}

func TestDeprovision_AlreadyDeletedOnServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.engine.Provision(ctx, f.ent, []string{"germany"})
	require.NoError(t, f.germany.Delete(ctx, res.Resources[0].CredentialID()))

	out, err := f.engine.Deprovision(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, provisioning.DeprovisionResult{Deleted: 1, Total: 1}, out)
	assert.Empty(t, f.resources.Live(9))
}

func TestDeprovision_NoResources(t *testing.T) {
	f := newFixture(t)
	out, err := f.engine.Deprovision(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, provisioning.DeprovisionResult{}, out)
	assert.True(t, out.Complete())
}
