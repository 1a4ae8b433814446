package autoscaler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/jbapi/pkg/cloudhost"
	"github.com/cuemby/jbapi/pkg/connector"
	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/metrics"
	"github.com/cuemby/jbapi/pkg/queue"
	"github.com/cuemby/jbapi/pkg/registry"
	"github.com/cuemby/jbapi/pkg/specstore"
	"github.com/cuemby/jbapi/pkg/types"
)

// Config controls the reconciliation loop's policy knobs.
type Config struct {
	Period           time.Duration
	MaxContainers    int
	ScaleDownEnabled bool
	SelfTerminateOK  bool
}

// Autoscaler is the periodic reconciliation loop: refresh, publish stats,
// recompute desired counts, apply diffs, optionally self-terminate.
type Autoscaler struct {
	cfg       Config
	registry  *registry.Registry
	queues    *queue.Manager
	conns     *connector.Manager
	specs     specstore.Store
	host      cloudhost.Host
	logger    zerolog.Logger
	onExit    func()

	mu     sync.Mutex
	stopCh chan struct{}

	cpuSeeded    bool
	lastCPU      float64
	diskBaseline float64
	diskSeeded   bool
}

// New constructs an Autoscaler. onExit is invoked when a self-terminate
// decision is made, after TerminateInstance succeeds; cmd/jbapi wires it to
// the process's graceful-shutdown path.
func New(cfg Config, reg *registry.Registry, queues *queue.Manager, conns *connector.Manager, specs specstore.Store, host cloudhost.Host, onExit func()) *Autoscaler {
	if onExit == nil {
		onExit = func() {}
	}
	return &Autoscaler{
		cfg:      cfg,
		registry: reg,
		queues:   queues,
		conns:    conns,
		specs:    specs,
		host:     host,
		logger:   log.WithComponent("autoscaler"),
		onExit:   onExit,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop.
func (a *Autoscaler) Start() {
	go a.run()
}

// Stop ends the reconciliation loop.
func (a *Autoscaler) Stop() {
	close(a.stopCh)
}

func (a *Autoscaler) run() {
	ticker := time.NewTicker(a.cfg.Period)
	defer ticker.Stop()

	a.logger.Info().Dur("period", a.cfg.Period).Msg("autoscaler started")

	for {
		select {
		case <-ticker.C:
			a.RunOnce(context.Background())
		case <-a.stopCh:
			a.logger.Info().Msg("autoscaler stopped")
			return
		}
	}
}

// RunOnce executes a single reconciliation cycle. Exported so tests can drive
// it outside the ticker.
func (a *Autoscaler) RunOnce(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	if err := a.registry.RefreshAll(ctx); err != nil {
		a.logger.Error().Err(err).Msg("refresh_all failed")
	}

	a.publishFleetStats()
	released := a.recomputeDesiredCounts()
	a.applyDiffs(ctx)
	a.teardownReleased(released)

	if a.shouldSelfTerminate() {
		a.logger.Warn().Msg("self-terminating: fleet idle and platform permits termination")
		if err := a.host.TerminateInstance(); err != nil {
			a.logger.Error().Err(err).Msg("terminate_instance failed")
			return
		}
		a.onExit()
	}
}

// publishFleetStats computes and publishes NumActiveContainers, MemUsed,
// DiskUsed, ContainersUsed, and Load. CpuUsed is the rolling mean of this
// cycle's and the previous cycle's reading; DiskUsed is normalized against
// a baseline captured on first call.
func (a *Autoscaler) publishFleetStats() {
	active := a.registry.TotalActive()
	a.host.PublishStat("NumActiveContainers", "count", float64(active))

	memUsed, err := a.host.MemPercent()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read memory percent")
	}
	a.host.PublishStat("MemUsed", "percent", memUsed)

	diskRaw, err := a.host.DiskPercent()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read disk percent")
	}
	if !a.diskSeeded {
		a.diskBaseline = diskRaw
		a.diskSeeded = true
	}
	diskUsed := diskRaw - a.diskBaseline
	if diskUsed < 0 {
		diskUsed = 0
	}
	a.host.PublishStat("DiskUsed", "percent", diskUsed)

	cpuRaw, err := a.host.CPUPercent()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read cpu percent")
	}
	if !a.cpuSeeded {
		a.lastCPU = cpuRaw
		a.cpuSeeded = true
	}
	cpuUsed := (a.lastCPU + cpuRaw) / 2
	a.lastCPU = cpuRaw

	containersUsed := 100.0
	if a.cfg.MaxContainers > 0 {
		containersUsed = 100 * float64(active) / float64(a.cfg.MaxContainers)
		if containersUsed > 100 {
			containersUsed = 100
		}
	}
	a.host.PublishStat("ContainersUsed", "percent", containersUsed)

	load := containersUsed
	for _, v := range []float64{diskUsed, memUsed, cpuUsed} {
		if v > load {
			load = v
		}
	}
	a.host.PublishStat("Load", "percent", load)
	metrics.FleetLoad.Set(load)
}

// recomputeDesiredCounts recomputes the desired container count from each
// queue's outstanding-request mean, for every API the registry or a bound
// queue currently knows about. It returns the APIs whose
// spec has been deleted from the store: their desired count is forced to 0
// here, and once applyDiffs has sent the terminates their queue, connector
// pool, and registry entries are torn down by teardownReleased.
func (a *Autoscaler) recomputeDesiredCounts() (released []string) {
	names := make(map[string]struct{})
	for _, n := range a.registry.APINames() {
		names[n] = struct{}{}
	}
	for _, n := range a.queues.APINames() {
		names[n] = struct{}{}
	}

	for apiName := range names {
		if _, err := a.specs.Get(apiName); err == specstore.ErrNotFound {
			a.registry.ReleaseSpec(apiName)
			released = append(released, apiName)
			continue
		}

		q, ok := a.queues.Get(apiName)
		if !ok {
			continue
		}

		mean := q.MeanOutstanding()
		desired := a.registry.DesiredCount(apiName)

		switch {
		case mean > 1:
			desired += int(mean)
		case mean < 0.01:
			desired = 0
		case mean < 0.5 && desired > 1:
			desired--
		}

		if a.cfg.MaxContainers > 0 && desired > a.cfg.MaxContainers {
			desired = a.cfg.MaxContainers
		}

		a.registry.SetDesiredCount(apiName, desired)

		if q.NumOutstanding() == 0 {
			q.Decay()
		}
	}

	return released
}

// teardownReleased unbinds the queue, connector pool, and registry entries
// of APIs whose spec has been deleted, once their drain has completed. An
// API still holding containers is left bound so next cycle's diff can keep
// terminating.
func (a *Autoscaler) teardownReleased(released []string) {
	for _, apiName := range released {
		if a.registry.ActiveCount(apiName) != 0 {
			continue
		}
		a.conns.Release(apiName)
		a.queues.Release(apiName)
		a.registry.Forget(apiName)
		a.logger.Info().Str("api_name", apiName).Msg("released api torn down")
	}
}

// applyDiffs diffs each API's current container count against its desired
// count, terminating excess workers or creating new ones.
func (a *Autoscaler) applyDiffs(ctx context.Context) {
	for _, apiName := range a.registry.APINames() {
		current := a.registry.ActiveCount(apiName)
		desired := a.registry.DesiredCount(apiName)
		diff := current - desired

		for i := 0; i < diff; i++ {
			a.terminateOne(apiName)
		}
		for i := 0; i < -diff; i++ {
			if err := a.registry.CreateNew(ctx, apiName); err != nil {
				a.logger.Error().Err(err).Str("api_name", apiName).Msg("create_new failed")
				break
			}
		}
	}
}

func (a *Autoscaler) terminateOne(apiName string) {
	pool, err := a.conns.Pool(apiName)
	if err != nil {
		a.logger.Error().Err(err).Str("api_name", apiName).Msg("resolve connector pool for terminate failed")
		return
	}

	pool.SendRecv(types.WorkerRequest{Cmd: types.TerminateCmd}, 5*time.Second, nil, nil)
	metrics.ContainersTerminatedTotal.WithLabelValues(apiName).Inc()
}

// shouldSelfTerminate requires the fleet to be fully idle, no active
// containers and nothing left stopped-but-unreaped on the driver, before
// the host is even asked whether it can terminate.
func (a *Autoscaler) shouldSelfTerminate() bool {
	if !a.cfg.ScaleDownEnabled || !a.cfg.SelfTerminateOK {
		return false
	}
	if a.registry.TotalActive() != 0 || a.registry.TotalStopped() != 0 {
		return false
	}
	return a.host.CanTerminate()
}
