package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/jbapi/pkg/driver"
	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/metrics"
	"github.com/cuemby/jbapi/pkg/specstore"
	"github.com/cuemby/jbapi/pkg/types"
)

// EgressResolver supplies the egress endpoint URL a newly created worker
// container should connect to; the queue package implements it.
type EgressResolver interface {
	EgressEndpoint(apiName string) (string, error)
}

// Registry is the in-memory container registry: the per-API container map
// and the desired-count map the autoscaler mutates.
type Registry struct {
	driver  driver.Driver
	specs   specstore.Store
	egress  EgressResolver
	logger  zerolog.Logger

	imagePrefix   string
	memLimitBytes int64
	cpuShares     uint64

	mu           sync.Mutex
	containers   map[string][]string // api_name -> container IDs
	desired      map[string]int
	counter      uint64
	stoppedCount int // containers seen non-running this cycle that Remove failed to reap
}

// New constructs a Registry. egress may be nil in tests that don't exercise
// CreateNew.
func New(d driver.Driver, specs specstore.Store, egress EgressResolver, imagePrefix string, memLimitBytes int64, cpuShares uint64) *Registry {
	return &Registry{
		driver:        d,
		specs:         specs,
		egress:        egress,
		logger:        log.WithComponent("registry"),
		imagePrefix:   imagePrefix,
		memLimitBytes: memLimitBytes,
		cpuShares:     cpuShares,
		containers:    make(map[string][]string),
		desired:       make(map[string]int),
	}
}

// RefreshAll enumerates every container the driver reports, decodes each
// name into an api_name, drops unparseable names, removes containers that
// are neither running nor restarting, and rebuilds the api_name -> ids map.
// A container that fails to be reaped is still sitting on the driver, so it
// is counted in stoppedCount rather than silently disappearing from both the
// active and stopped views; TotalStopped reports that count to callers like
// the autoscaler that must not treat the fleet as idle while it's nonzero.
func (r *Registry) RefreshAll(ctx context.Context) error {
	all, err := r.driver.List(ctx)
	if err != nil {
		return fmt.Errorf("registry: list containers: %w", err)
	}

	fresh := make(map[string][]string)
	stopped := 0
	for _, c := range all {
		apiName, ok := types.ParseContainerName(c.Name)
		if !ok {
			continue
		}

		if c.State != types.ContainerRunning && c.State != types.ContainerRestarting {
			if err := r.driver.Remove(ctx, c.ContainerID); err != nil {
				r.logger.Warn().Err(err).Str("container_id", c.ContainerID).Msg("failed to reap stopped container")
				stopped++
			}
			continue
		}

		fresh[apiName] = append(fresh[apiName], c.ContainerID)
	}

	r.mu.Lock()
	r.containers = fresh
	r.stoppedCount = stopped
	for apiName, ids := range fresh {
		metrics.ContainersActive.WithLabelValues(apiName).Set(float64(len(ids)))
	}
	r.mu.Unlock()

	metrics.ContainersStopped.Set(float64(stopped))

	return nil
}

// EnsureAvailable creates a container for apiName if none is currently
// registered; otherwise it is a no-op.
func (r *Registry) EnsureAvailable(ctx context.Context, apiName string) error {
	r.mu.Lock()
	n := len(r.containers[apiName])
	r.mu.Unlock()

	if n > 0 {
		return nil
	}

	return r.CreateNew(ctx, apiName)
}

// CreateNew resolves the spec for apiName, synthesizes a container name,
// creates and starts the container, registers it, and publishes updated
// container-count stats.
func (r *Registry) CreateNew(ctx context.Context, apiName string) error {
	spec, err := r.specs.Get(apiName)
	if err != nil {
		return fmt.Errorf("registry: resolve spec for %s: %w", apiName, err)
	}

	r.mu.Lock()
	r.counter++
	counter := r.counter
	r.mu.Unlock()

	name := types.MakeContainerName(apiName, counter, time.Now())

	env := map[string]string{
		"JBAPI_NAME": apiName,
		"JBAPI_CMD":  spec.Cmd,
	}
	if r.egress != nil {
		endpoint, err := r.egress.EgressEndpoint(apiName)
		if err != nil {
			return fmt.Errorf("registry: resolve egress endpoint for %s: %w", apiName, err)
		}
		env["JBAPI_QUEUE"] = endpoint
	}

	containerID, err := r.driver.Create(ctx, driver.CreateSpec{
		Name:          name,
		Image:         spec.ImageName,
		Env:           env,
		MemLimitBytes: r.memLimitBytes,
		CPUShares:     r.cpuShares,
	})
	if err != nil {
		return fmt.Errorf("registry: create container for %s: %w", apiName, err)
	}

	if err := r.driver.Start(ctx, containerID); err != nil {
		return fmt.Errorf("registry: start container for %s: %w", apiName, err)
	}

	r.Register(apiName, containerID)
	metrics.ContainersCreatedTotal.WithLabelValues(apiName).Inc()
	r.logger.Info().Str("api_name", apiName).Str("container_id", containerID).Str("name", name).Msg("created worker container")

	return nil
}

// Register adds containerID under apiName, seeding a desired count of 1 the
// first time apiName is seen.
func (r *Registry) Register(apiName, containerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.desired[apiName]; !seen {
		r.desired[apiName] = 1
	}
	r.containers[apiName] = append(r.containers[apiName], containerID)
	metrics.ContainersActive.WithLabelValues(apiName).Set(float64(len(r.containers[apiName])))
}

// Deregister removes containerID from apiName's set.
func (r *Registry) Deregister(apiName, containerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.containers[apiName]
	for i, id := range ids {
		if id == containerID {
			r.containers[apiName] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	metrics.ContainersActive.WithLabelValues(apiName).Set(float64(len(r.containers[apiName])))
}

// Containers returns the container IDs currently registered for apiName.
func (r *Registry) Containers(apiName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.containers[apiName]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// APINames returns every api_name the registry currently knows about, from
// either the container map or the desired-count map.
func (r *Registry) APINames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	for apiName := range r.containers {
		seen[apiName] = struct{}{}
	}
	for apiName := range r.desired {
		seen[apiName] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for apiName := range seen {
		names = append(names, apiName)
	}
	return names
}

// DesiredCount returns the autoscaler's current target for apiName.
func (r *Registry) DesiredCount(apiName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.desired[apiName]
}

// SetDesiredCount sets the autoscaler's target for apiName. Desired counts
// never go negative.
func (r *Registry) SetDesiredCount(apiName string, count int) {
	if count < 0 {
		count = 0
	}
	r.mu.Lock()
	r.desired[apiName] = count
	r.mu.Unlock()
	metrics.DesiredCount.WithLabelValues(apiName).Set(float64(count))
}

// ActiveCount returns the number of containers currently registered for
// apiName (the "current_count" the autoscaler diffs against desired).
func (r *Registry) ActiveCount(apiName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers[apiName])
}

// TotalActive returns the total number of registered containers across all
// APIs, used for the fleet-wide ContainersUsed stat.
func (r *Registry) TotalActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, ids := range r.containers {
		total += len(ids)
	}
	return total
}

// TotalStopped returns the number of containers the last RefreshAll cycle
// found non-running and failed to reap via driver.Remove. A container a
// failed removal leaves sitting on the driver is counted neither active nor
// gone; self-termination is gated on this being zero alongside TotalActive.
func (r *Registry) TotalStopped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stoppedCount
}

// ReleaseSpec sets apiName's desired count to 0, used when its spec has been
// deleted from the store (a full drain follows; Forget drops the entry).
func (r *Registry) ReleaseSpec(apiName string) {
	r.SetDesiredCount(apiName, 0)
}

// PingDriver verifies the container driver is reachable by issuing a List.
// The readiness probe uses it: a process whose driver connection is down
// cannot maintain any worker pool.
func (r *Registry) PingDriver(ctx context.Context) error {
	_, err := r.driver.List(ctx)
	return err
}

// Forget drops apiName from both the container and desired-count maps once
// its drain has completed, so a released API stops appearing in APINames.
func (r *Registry) Forget(apiName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers, apiName)
	delete(r.desired, apiName)
	metrics.ContainersActive.DeleteLabelValues(apiName)
	metrics.DesiredCount.DeleteLabelValues(apiName)
}
