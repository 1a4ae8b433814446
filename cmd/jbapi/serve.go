package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/jbapi/pkg/autoscaler"
	"github.com/cuemby/jbapi/pkg/cloudhost"
	"github.com/cuemby/jbapi/pkg/config"
	"github.com/cuemby/jbapi/pkg/connector"
	"github.com/cuemby/jbapi/pkg/driver"
	"github.com/cuemby/jbapi/pkg/httpgateway"
	"github.com/cuemby/jbapi/pkg/jobbus"
	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/queue"
	"github.com/cuemby/jbapi/pkg/registry"
	"github.com/cuemby/jbapi/pkg/specstore"
	"github.com/cuemby/jbapi/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the jbapi gateway and autoscaler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := log.WithComponent("serve")

	maintenancePeriod, err := time.ParseDuration(cfg.MaintenancePeriod)
	if err != nil {
		return fmt.Errorf("invalid JBAPI_MAINTENANCE_PERIOD %q: %v", cfg.MaintenancePeriod, err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %v", err)
	}

	specs, err := specstore.NewBoltStore(cfg.DataDir, cfg.ImagePrefix)
	if err != nil {
		return fmt.Errorf("failed to open spec store: %v", err)
	}
	defer specs.Close()

	host := cloudhost.NewLocal(cfg.DataDir)

	localIP, err := host.LocalIP()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to resolve local IP, falling back to loopback")
		localIP = "127.0.0.1"
	}

	queues := queue.NewManager(specs, localIP)
	conns := connector.NewManager(queues)

	var d driver.Driver
	if cfg.ContainerdSocket != "" {
		d, err = driver.NewContainerd(cfg.ContainerdSocket)
		if err != nil {
			return fmt.Errorf("failed to connect to containerd: %v", err)
		}
	} else {
		logger.Warn().Msg("no containerd socket configured, running with an in-memory fake driver")
		d = driver.NewFake()
	}
	defer d.Close()

	reg := registry.New(d, specs, queues, cfg.ImagePrefix, cfg.MemLimitBytes, cfg.CPUShares)

	gw := httpgateway.New(specs, conns, reg)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: gw.Router,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http gateway error: %v", err)
		}
	}()

	bus, err := jobbus.New(cfg.SharedSecret, cfg.BroadcastAddr, cfg.QueryAddr)
	if err != nil {
		return fmt.Errorf("failed to start job bus: %v", err)
	}
	defer bus.Close()

	shutdownCh := make(chan struct{})
	var shutdownOnce sync.Once
	var terminating atomic.Bool
	triggerShutdown := func() {
		terminating.Store(true)
		shutdownOnce.Do(func() { close(shutdownCh) })
	}

	registerJobBusHandlers(bus, reg, terminating.Load)

	scaler := autoscaler.New(autoscaler.Config{
		Period:           maintenancePeriod,
		MaxContainers:    cfg.MaxContainers,
		ScaleDownEnabled: cfg.ScaleDownEnabled,
		SelfTerminateOK:  cfg.SelfTerminateOK,
	}, reg, queues, conns, specs, host, triggerShutdown)
	scaler.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case <-shutdownCh:
		logger.Info().Msg("self-termination requested by autoscaler")
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("http gateway failed")
	}

	scaler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http gateway shutdown error")
	}

	conns.Close()

	logger.Info().Msg("shutdown complete")
	return nil
}

// registerJobBusHandlers wires the opcodes the admin console and peer
// instances query most often: api-status (known APIs with their active and
// desired counts) and is-terminating (whether this instance has begun
// self-termination).
func registerJobBusHandlers(bus *jobbus.Bus, reg *registry.Registry, isTerminating func() bool) {
	bus.RegisterHandler(types.OpAPIStatus, func(_ []byte) ([]byte, error) {
		status := make(map[string]map[string]int)
		for _, name := range reg.APINames() {
			status[name] = map[string]int{
				"active":  reg.ActiveCount(name),
				"desired": reg.DesiredCount(name),
			}
		}
		return json.Marshal(status)
	})

	bus.RegisterHandler(types.OpIsTerminating, func(_ []byte) ([]byte, error) {
		if isTerminating() {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	})
}
