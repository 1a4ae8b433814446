// Package config loads jbapi's single configuration record from the
// environment: struct tags declare the env var name and default, and
// caarlos0/env does the parsing and type coercion.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the configuration record loaded once at process startup.
type Config struct {
	// HTTP gateway
	HTTPAddr string `env:"JBAPI_HTTP_ADDR" envDefault:":8080"`

	// Broker port pair. The ports a Queue binds are taken from its APISpec
	// only; no other package reads these two values.
	DefaultEndpointIn  int `env:"JBAPI_DEFAULT_ENDPOINT_IN" envDefault:"17000"`
	DefaultEndpointOut int `env:"JBAPI_DEFAULT_ENDPOINT_OUT" envDefault:"18000"`

	// Inter-instance job bus
	BroadcastAddr string `env:"JBAPI_BUS_BROADCAST_ADDR" envDefault:":19000"`
	QueryAddr     string `env:"JBAPI_BUS_QUERY_ADDR" envDefault:":19001"`
	SharedSecret  string `env:"JBAPI_SHARED_SECRET,required"`

	// Container driver
	ImagePrefix      string `env:"JBAPI_IMAGE_PREFIX" envDefault:"jbapi"`
	ContainerdSocket string `env:"JBAPI_CONTAINERD_SOCKET" envDefault:""`
	MemLimitBytes    int64  `env:"JBAPI_MEM_LIMIT_BYTES" envDefault:"268435456"`
	CPUShares        uint64 `env:"JBAPI_CPU_SHARES" envDefault:"1024"`
	MaxContainers    int    `env:"JBAPI_MAX_CONTAINERS" envDefault:"64"`

	// Autoscaler / Maintainer
	MaintenancePeriod string `env:"JBAPI_MAINTENANCE_PERIOD" envDefault:"5m"`
	ScaleDownEnabled  bool   `env:"JBAPI_SCALE_DOWN_ENABLED" envDefault:"true"`
	SelfTerminateOK   bool   `env:"JBAPI_SELF_TERMINATE_ENABLED" envDefault:"false"`

	// Spec store
	DataDir string `env:"JBAPI_DATA_DIR" envDefault:"./data"`

	// Logging
	LogLevel  string `env:"JBAPI_LOG_LEVEL" envDefault:"info"`
	LogJSON   bool   `env:"JBAPI_LOG_JSON" envDefault:"false"`
}

// Load reads the configuration from environment variables, applying defaults
// for anything unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}
