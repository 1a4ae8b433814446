package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/jbapi/pkg/driver"
	"github.com/cuemby/jbapi/pkg/specstore"
)

type stubEgress struct{}

func (stubEgress) EgressEndpoint(apiName string) (string, error) {
	return "tcp://127.0.0.1:18000", nil
}

func newTestRegistry(t *testing.T) (*Registry, *driver.Fake, specstore.Store) {
	t.Helper()
	store, err := specstore.NewBoltStore(t.TempDir(), "jbapi")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Upsert(specstore.Fields{
		APIName: "echo", Cmd: "/bin/echo", EndpointIn: 17001, EndpointOut: 18001,
		Methods: []string{"GET"}, Publisher: "tests",
	})
	require.NoError(t, err)

	d := driver.NewFake()
	return New(d, store, stubEgress{}, "jbapi", 0, 0), d, store
}

func TestRegistryCreateNewRegisters(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	require.NoError(t, reg.CreateNew(ctx, "echo"))

	assert.Equal(t, 1, reg.ActiveCount("echo"))
	assert.Equal(t, 1, reg.DesiredCount("echo"))
}

func TestRegistryEnsureAvailableIsNoOpWhenPresent(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	require.NoError(t, reg.EnsureAvailable(ctx, "echo"))
	require.NoError(t, reg.EnsureAvailable(ctx, "echo"))

	assert.Equal(t, 1, reg.ActiveCount("echo"))
}

func TestRegistryRefreshAllDropsUnparseableNames(t *testing.T) {
	ctx := context.Background()
	reg, d, _ := newTestRegistry(t)

	_, err := d.Create(ctx, driver.CreateSpec{Name: "not-a-jbapi-container", Image: "scratch"})
	require.NoError(t, err)

	require.NoError(t, reg.CreateNew(ctx, "echo"))
	require.NoError(t, reg.RefreshAll(ctx))

	assert.Equal(t, 1, reg.ActiveCount("echo"))
}

func TestRegistrySetDesiredCountNeverNegative(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	reg.SetDesiredCount("echo", -5)
	assert.Equal(t, 0, reg.DesiredCount("echo"))
}

func TestRegistryReleaseSpecDrainsToZero(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	require.NoError(t, reg.CreateNew(ctx, "echo"))
	reg.ReleaseSpec("echo")

	assert.Equal(t, 0, reg.DesiredCount("echo"))
}

func TestRegistryTotalStoppedCountsUnreapedContainers(t *testing.T) {
	ctx := context.Background()
	reg, d, _ := newTestRegistry(t)

	require.NoError(t, reg.CreateNew(ctx, "echo"))
	require.NoError(t, d.Stop(ctx, reg.Containers("echo")[0], 0))

	d.RemoveErr = fmt.Errorf("remove failed")
	require.NoError(t, reg.RefreshAll(ctx))

	assert.Equal(t, 0, reg.ActiveCount("echo"))
	assert.Equal(t, 1, reg.TotalStopped())

	d.RemoveErr = nil
	require.NoError(t, reg.RefreshAll(ctx))
	assert.Equal(t, 0, reg.TotalStopped())
}
