package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/jbapi/pkg/types"
)

// Fake is an in-memory Driver used by registry and autoscaler tests so they
// don't need a live containerd socket.
type Fake struct {
	mu         sync.Mutex
	containers map[string]*types.Container
	images     map[string]bool
	nextID     int

	CreateErr error
	StartErr  error
	RemoveErr error
	ListErr   error
}

// NewFake returns an empty in-memory driver.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*types.Container),
		images:     make(map[string]bool),
	}
}

func (f *Fake) Create(_ context.Context, spec CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return "", f.CreateErr
	}

	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	f.images[spec.Image] = true
	f.containers[id] = &types.Container{
		ContainerID: id,
		Name:        spec.Name,
		Image:       spec.Image,
		State:       types.ContainerStopped,
	}
	return id, nil
}

func (f *Fake) Start(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StartErr != nil {
		return f.StartErr
	}

	c, ok := f.containers[containerID]
	if !ok {
		return fmt.Errorf("fake driver: no such container %s", containerID)
	}
	c.State = types.ContainerRunning
	return nil
}

func (f *Fake) Stop(_ context.Context, containerID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.containers[containerID]; ok {
		c.State = types.ContainerStopped
	}
	return nil
}

func (f *Fake) Kill(_ context.Context, containerID string) error {
	return f.Stop(context.Background(), containerID, 0)
}

func (f *Fake) Remove(_ context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	delete(f.containers, containerID)
	return nil
}

func (f *Fake) Inspect(_ context.Context, containerID string) (types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.containers[containerID]
	if !ok {
		return types.Container{}, fmt.Errorf("fake driver: no such container %s", containerID)
	}
	return *c, nil
}

func (f *Fake) List(_ context.Context) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	result := make([]types.Container, 0, len(f.containers))
	for _, c := range f.containers {
		result = append(result, *c)
	}
	return result, nil
}

func (f *Fake) ListImages(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.images))
	for name := range f.images {
		names = append(names, name)
	}
	return names, nil
}

func (f *Fake) Close() error { return nil }
