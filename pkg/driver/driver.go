package driver

import (
	"context"
	"time"

	"github.com/cuemby/jbapi/pkg/types"
)

// PortBinding maps a container-side port to a host-side port. The registry
// leaves CreateSpec.Ports empty and the Containerd driver does not apply it.
type PortBinding struct {
	ContainerPort int
	HostPort      int
}

// CreateSpec describes a worker container to create. It is deliberately
// narrower than a general-purpose container spec: jbapi workers are always
// created from an image, a command, and a fixed set of environment variables.
type CreateSpec struct {
	Name          string
	Image         string
	Env           map[string]string
	MemLimitBytes int64
	CPUShares     uint64
	Ports         []PortBinding
}

// Driver is the container-orchestration abstraction the registry and
// autoscaler consume. Implementations own the underlying runtime connection.
type Driver interface {
	// Create pulls the image if necessary and creates (but does not start) a
	// container, returning its runtime-assigned container ID.
	Create(ctx context.Context, spec CreateSpec) (containerID string, err error)
	// Start starts a previously created container.
	Start(ctx context.Context, containerID string) error
	// Stop requests graceful shutdown (SIGTERM), escalating to SIGKILL if the
	// container has not exited within timeout.
	Stop(ctx context.Context, containerID string, timeout time.Duration) error
	// Kill sends SIGKILL immediately.
	Kill(ctx context.Context, containerID string) error
	// Remove deletes a stopped container and its resources.
	Remove(ctx context.Context, containerID string) error
	// Inspect returns the current observed state of one container.
	Inspect(ctx context.Context, containerID string) (types.Container, error)
	// List enumerates every container the driver knows about, regardless of
	// whether its name matches jbapi's naming scheme; callers filter.
	List(ctx context.Context) ([]types.Container, error)
	// ListImages enumerates images available to the driver.
	ListImages(ctx context.Context) ([]string, error)
	// Close releases the driver's underlying connection.
	Close() error
}
