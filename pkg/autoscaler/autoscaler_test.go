package autoscaler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/jbapi/pkg/cloudhost"
	"github.com/cuemby/jbapi/pkg/connector"
	"github.com/cuemby/jbapi/pkg/driver"
	"github.com/cuemby/jbapi/pkg/queue"
	"github.com/cuemby/jbapi/pkg/registry"
	"github.com/cuemby/jbapi/pkg/specstore"
)

func newHarness(t *testing.T) (*Autoscaler, *registry.Registry, *queue.Manager, *cloudhost.Fake, *driver.Fake) {
	t.Helper()

	store, err := specstore.NewBoltStore(t.TempDir(), "jbapi")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Upsert(specstore.Fields{
		APIName: "busy", Cmd: "/bin/busy", EndpointIn: 0, EndpointOut: 0,
		Methods: []string{"GET"}, Publisher: "tests",
	})
	require.NoError(t, err)

	queues := queue.NewManager(store, "127.0.0.1")
	d := driver.NewFake()
	reg := registry.New(d, store, queues, "jbapi", 0, 0)
	conns := connector.NewManager(queues)
	host := cloudhost.NewFake()

	as := New(Config{
		Period:           time.Hour,
		MaxContainers:    64,
		ScaleDownEnabled: true,
		SelfTerminateOK:  true,
	}, reg, queues, conns, store, host, nil)

	return as, reg, queues, host, d
}

func TestAutoscalerScalesUpOnBacklog(t *testing.T) {
	ctx := context.Background()
	as, reg, queues, _, _ := newHarness(t)

	q, err := queues.GetOrCreate("busy")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		q.IncrOutstanding(1)
	}

	as.RunOnce(ctx)

	assert.Greater(t, reg.DesiredCount("busy"), 1)
	assert.Greater(t, reg.ActiveCount("busy"), 0)
}

func TestAutoscalerScalesDownToZeroWhenIdle(t *testing.T) {
	ctx := context.Background()
	as, reg, _, _, _ := newHarness(t)

	require.NoError(t, reg.CreateNew(ctx, "busy"))
	as.RunOnce(ctx)

	assert.Equal(t, 0, reg.DesiredCount("busy"))
}

func TestAutoscalerSelfTerminatesWhenFleetIdle(t *testing.T) {
	ctx := context.Background()
	exited := false
	as, _, _, host, _ := newHarness(t)
	as.onExit = func() { exited = true }

	as.RunOnce(ctx)

	assert.True(t, host.Terminated)
	assert.True(t, exited)
}

func TestAutoscalerDoesNotSelfTerminateWhenDisabled(t *testing.T) {
	ctx := context.Background()
	as, _, _, host, _ := newHarness(t)
	as.cfg.SelfTerminateOK = false

	as.RunOnce(ctx)

	assert.False(t, host.Terminated)
}

func TestAutoscalerContainersUsedCapsAt100(t *testing.T) {
	ctx := context.Background()
	as, reg, _, host, _ := newHarness(t)
	as.cfg.MaxContainers = 1
	as.cfg.SelfTerminateOK = false

	require.NoError(t, reg.CreateNew(ctx, "busy"))
	require.NoError(t, reg.CreateNew(ctx, "busy"))
	as.RunOnce(ctx)

	assert.Equal(t, 100.0, host.Stats["ContainersUsed"])
}

func TestAutoscalerDrainsAndTearsDownDeletedSpec(t *testing.T) {
	ctx := context.Background()
	as, reg, queues, _, d := newHarness(t)

	require.NoError(t, reg.CreateNew(ctx, "busy"))
	require.NoError(t, as.specs.Delete("busy"))

	// First cycle: desired forced to 0 and a terminate issued; the container
	// is still registered until the worker exits.
	as.RunOnce(ctx)
	assert.Equal(t, 0, reg.DesiredCount("busy"))

	// The worker exits; the next refresh reaps it and teardown completes.
	for _, id := range reg.Containers("busy") {
		require.NoError(t, d.Stop(ctx, id, 0))
	}
	as.RunOnce(ctx)

	assert.NotContains(t, reg.APINames(), "busy")
	assert.NotContains(t, queues.APINames(), "busy")
}

func TestAutoscalerDoesNotSelfTerminateWithUnreapedStoppedContainer(t *testing.T) {
	ctx := context.Background()
	as, reg, _, host, d := newHarness(t)

	require.NoError(t, reg.CreateNew(ctx, "busy"))
	containerID := reg.Containers("busy")[0]
	require.NoError(t, d.Stop(ctx, containerID, 0))
	d.RemoveErr = fmt.Errorf("remove failed")

	as.RunOnce(ctx)

	assert.Equal(t, 1, reg.TotalStopped())
	assert.False(t, host.Terminated)
}
