package connector

import (
	"fmt"
	"sync"

	"github.com/cuemby/jbapi/pkg/queue"
)

// Manager owns one Pool per API, dialing each pool against its Queue's
// ingress listener and wiring the Queue itself as the num_outstanding sink.
type Manager struct {
	queues *queue.Manager

	mu    sync.Mutex
	pools map[string]*Pool
}

// NewManager constructs a connector Manager backed by queues.
func NewManager(queues *queue.Manager) *Manager {
	return &Manager{
		queues: queues,
		pools:  make(map[string]*Pool),
	}
}

// Pool returns the connector Pool for apiName, creating its backing Queue
// and Pool on first use.
func (m *Manager) Pool(apiName string) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[apiName]; ok {
		return p, nil
	}

	q, err := m.queues.GetOrCreate(apiName)
	if err != nil {
		return nil, fmt.Errorf("connector manager: resolve queue for %s: %w", apiName, err)
	}

	p := NewPool(apiName, q.IngressAddr(), q)
	m.pools[apiName] = p
	return p, nil
}

// Release closes and forgets the pool for apiName, used when its spec has
// been deleted and the backing queue is being torn down.
func (m *Manager) Release(apiName string) {
	m.mu.Lock()
	p, ok := m.pools[apiName]
	if ok {
		delete(m.pools, apiName)
	}
	m.mu.Unlock()

	if ok {
		p.Close()
	}
}

// Close closes every pool the manager has created.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pools {
		p.Close()
	}
}
