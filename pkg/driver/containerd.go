package driver

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/types"
)

const (
	// Namespace is the containerd namespace jbapi's worker containers live in.
	Namespace = "jbapi"

	// DefaultSocketPath is used when no socket override is configured.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// Containerd implements Driver against a containerd daemon.
type Containerd struct {
	client *containerd.Client
}

// NewContainerd connects to the containerd socket at socketPath (or
// DefaultSocketPath if empty).
func NewContainerd(socketPath string) (*Containerd, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &Containerd{client: client}, nil
}

func (d *Containerd) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// Create pulls spec.Image if not already cached, then creates a container
// with the requested resource limits and environment. The container is not
// started.
func (d *Containerd) Create(ctx context.Context, spec CreateSpec) (string, error) {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	image, err := d.client.GetImage(ctx, spec.Image)
	if err != nil {
		image, err = d.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
		if err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", spec.Image, err)
		}
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	// Workers run with a read-only image rootfs plus a tmpfs scratch space;
	// anything they write is gone when the container is reaped.
	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
		oci.WithMounts([]specs.Mount{{
			Destination: "/tmp",
			Type:        "tmpfs",
			Source:      "tmpfs",
			Options:     []string{"nosuid", "nodev", "size=65536k"},
		}}),
	}
	if spec.CPUShares > 0 {
		opts = append(opts, oci.WithCPUShares(spec.CPUShares))
	}
	if spec.MemLimitBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(spec.MemLimitBytes)))
	}

	ctrdContainer, err := d.client.NewContainer(
		ctx,
		spec.Name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.Name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	return ctrdContainer.ID(), nil
}

func (d *Containerd) Start(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	c, err := d.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := c.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task for %s: %w", containerID, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task for %s: %w", containerID, err)
	}

	return nil
}

// Stop sends SIGTERM and waits up to timeout for the task to exit, escalating
// to SIGKILL if it doesn't.
func (d *Containerd) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	c, err := d.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := c.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to %s: %w", containerID, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait on task %s: %w", containerID, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		lg := log.WithComponent("driver")
		lg.Warn().Str("container_id", containerID).Msg("stop timed out, escalating to SIGKILL")
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to SIGKILL %s: %w", containerID, err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", containerID, err)
	}

	return nil
}

func (d *Containerd) Kill(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	c, err := d.client.LoadContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := c.Task(ctx, nil)
	if err != nil {
		return nil
	}

	return task.Kill(ctx, syscall.SIGKILL)
}

func (d *Containerd) Remove(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	c, err := d.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil
	}

	if err := d.Stop(ctx, containerID, 10*time.Second); err != nil {
		lg := log.WithComponent("driver")
		lg.Warn().Err(err).Str("container_id", containerID).Msg("stop before remove failed")
	}

	if err := c.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container %s: %w", containerID, err)
	}

	return nil
}

func (d *Containerd) Inspect(ctx context.Context, containerID string) (types.Container, error) {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	c, err := d.client.LoadContainer(ctx, containerID)
	if err != nil {
		return types.Container{}, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	info, err := c.Info(ctx)
	if err != nil {
		return types.Container{}, fmt.Errorf("failed to get container info for %s: %w", containerID, err)
	}

	return types.Container{
		ContainerID: c.ID(),
		Name:        c.ID(),
		Image:       info.Image,
		State:       d.stateOf(ctx, c),
	}, nil
}

func (d *Containerd) stateOf(ctx context.Context, c containerd.Container) types.ContainerState {
	task, err := c.Task(ctx, nil)
	if err != nil {
		return types.ContainerStopped
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.ContainerStopped
	}

	switch status.Status {
	case containerd.Running:
		return types.ContainerRunning
	case containerd.Paused:
		return types.ContainerRestarting
	default:
		return types.ContainerStopped
	}
}

func (d *Containerd) List(ctx context.Context) ([]types.Container, error) {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	containers, err := d.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]types.Container, 0, len(containers))
	for _, c := range containers {
		info, err := c.Info(ctx)
		if err != nil {
			continue
		}
		result = append(result, types.Container{
			ContainerID: c.ID(),
			Name:        c.ID(),
			Image:       info.Image,
			State:       d.stateOf(ctx, c),
		})
	}

	return result, nil
}

func (d *Containerd) ListImages(ctx context.Context) ([]string, error) {
	ctx = namespaces.WithNamespace(ctx, Namespace)

	images, err := d.client.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	names := make([]string, 0, len(images))
	for _, img := range images {
		names = append(names, img.Name())
	}
	return names, nil
}
