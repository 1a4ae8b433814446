package cloudhost

import (
	"fmt"
	"net"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/metrics"
)

// Local is a Host implementation for a bare-metal or single-VM deployment:
// it reads real host stats via gopsutil and treats self-termination as
// always permitted but a no-op, since there is no surrounding orchestrator
// to ask. Cloud-specific Hosts (EC2 lifecycle hooks, GCE metadata, etc.)
// would implement the same interface.
type Local struct {
	dataPath string
}

// NewLocal constructs a Local host that reports disk usage for dataPath.
func NewLocal(dataPath string) *Local {
	if dataPath == "" {
		dataPath = "/"
	}
	return &Local{dataPath: dataPath}
}

// PublishStat forwards name/value into the per-stat Prometheus gauge; jbapi
// has no separate stats backend, so the metrics registry is the sink.
func (l *Local) PublishStat(name, unit string, value float64) {
	lg := log.WithComponent("cloudhost")
	lg.Debug().Str("stat", name).Str("unit", unit).Float64("value", value).Msg("stat published")
	metrics.CloudHostStat.WithLabelValues(name).Set(value)
}

// LocalIP returns the address of the first non-loopback network interface.
func (l *Local) LocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("cloudhost: enumerate interfaces: %w", err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}

	return "", fmt.Errorf("cloudhost: no non-loopback IPv4 address found")
}

func (l *Local) CPUPercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("cloudhost: read cpu percent: %w", err)
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

func (l *Local) MemPercent() (float64, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("cloudhost: read memory stats: %w", err)
	}
	return stat.UsedPercent, nil
}

func (l *Local) DiskPercent() (float64, error) {
	stat, err := disk.Usage(l.dataPath)
	if err != nil {
		return 0, fmt.Errorf("cloudhost: read disk stats for %s: %w", l.dataPath, err)
	}
	return stat.UsedPercent, nil
}

// CanTerminate always permits self-termination for a standalone deployment.
func (l *Local) CanTerminate() bool { return true }

// TerminateInstance is a no-op: there is no surrounding orchestrator to
// notify. The process exits via its own shutdown path.
func (l *Local) TerminateInstance() error { return nil }
