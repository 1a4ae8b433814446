package queue

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/specstore"
)

// Manager owns the set of active per-API Queues, creating them on demand
// from the spec store and tearing them down when a spec is released.
type Manager struct {
	specs  specstore.Store
	host   string
	logger zerolog.Logger

	mu     sync.Mutex
	queues map[string]*Queue
}

// NewManager constructs a Manager. host is the address workers and
// connectors should use to reach this instance (typically its local IP).
func NewManager(specs specstore.Store, host string) *Manager {
	return &Manager{
		specs:  specs,
		host:   host,
		logger: log.WithComponent("queue-manager"),
		queues: make(map[string]*Queue),
	}
}

// GetOrCreate returns the Queue for apiName, creating and binding it from
// the spec store on first use.
func (m *Manager) GetOrCreate(apiName string) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[apiName]; ok {
		return q, nil
	}

	spec, err := m.specs.Get(apiName)
	if err != nil {
		return nil, fmt.Errorf("queue manager: resolve spec for %s: %w", apiName, err)
	}

	q, err := New(apiName, fmt.Sprintf(":%d", spec.EndpointIn), fmt.Sprintf(":%d", spec.EndpointOut), spec.Timeout())
	if err != nil {
		return nil, err
	}

	m.queues[apiName] = q
	m.logger.Info().Str("api_name", apiName).Str("ingress", q.IngressAddr()).Str("egress", q.EgressAddr()).Msg("queue bound")
	return q, nil
}

// Get returns the Queue for apiName if one is currently bound.
func (m *Manager) Get(apiName string) (*Queue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[apiName]
	return q, ok
}

// EgressEndpoint implements registry.EgressResolver: it returns the URL a
// newly created worker container should be given as JBAPI_QUEUE.
func (m *Manager) EgressEndpoint(apiName string) (string, error) {
	q, err := m.GetOrCreate(apiName)
	if err != nil {
		return "", err
	}
	_, port, err := net.SplitHostPort(q.EgressAddr())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tcp://%s:%s", m.host, port), nil
}

// Release closes and forgets the Queue for apiName, used when its spec has
// been deleted from the store.
func (m *Manager) Release(apiName string) {
	m.mu.Lock()
	q, ok := m.queues[apiName]
	if ok {
		delete(m.queues, apiName)
	}
	m.mu.Unlock()

	if ok {
		q.Close()
	}
}

// APINames returns the api_name of every currently bound queue.
func (m *Manager) APINames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	return names
}
