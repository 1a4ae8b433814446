package connector

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/metrics"
	"github.com/cuemby/jbapi/pkg/types"
	"github.com/cuemby/jbapi/pkg/wire"
)

// MaxIdleConns is the maximum number of healthy idle connectors cached per
// API; extras are discarded when released.
const MaxIdleConns = 2

// outstandingCounter is the Queue method the pool drives num_outstanding
// through; satisfied by *queue.Queue.
type outstandingCounter interface {
	IncrOutstanding(delta int)
}

// connector wraps one client socket leased from the pool. hasErrors is
// sticky: once set, the connector is never returned to the pool.
type connector struct {
	conn      net.Conn
	hasErrors bool
}

// Pool is the per-API Connector Pool.
type Pool struct {
	apiName     string
	ingressAddr string
	queue       outstandingCounter
	logger      zerolog.Logger

	mu   sync.Mutex
	idle []*connector
}

// NewPool constructs a Pool dialing ingressAddr for every new connector.
// queue receives IncrOutstanding calls at dispatch and at
// response-or-timeout.
func NewPool(apiName, ingressAddr string, queue outstandingCounter) *Pool {
	return &Pool{
		apiName:     apiName,
		ingressAddr: ingressAddr,
		queue:       queue,
		logger:      log.WithComponent("connector").With().Str("api_name", apiName).Logger(),
	}
}

func (p *Pool) lease() (*connector, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		metrics.ConnectorsIdle.WithLabelValues(p.apiName).Set(float64(len(p.idle)))
		return c, nil
	}
	p.mu.Unlock()

	conn, err := net.Dial("tcp", p.ingressAddr)
	if err != nil {
		return nil, err
	}
	return &connector{conn: conn}, nil
}

// release returns c to the idle pool if it is healthy and the pool has
// room; otherwise it is closed and discarded.
func (p *Pool) release(c *connector) {
	if c.hasErrors {
		c.conn.Close()
		return
	}

	p.mu.Lock()
	if len(p.idle) < MaxIdleConns {
		p.idle = append(p.idle, c)
		p.mu.Unlock()
		metrics.ConnectorsIdle.WithLabelValues(p.apiName).Set(float64(len(p.idle)))
		return
	}
	p.mu.Unlock()

	c.conn.Close()
}

// discard marks c errored and closes it without returning it to the pool.
func (p *Pool) discard(c *connector) {
	c.hasErrors = true
	c.conn.Close()
	p.logger.Debug().Msg("errored connector discarded")
}

// SendRecv implements the asynchronous send_recv primitive.
// Exactly one of onRecv or onTimeout is invoked, never both, never neither.
// A nil onRecv marks a fire-and-forget call (the terminate command): the
// request is still sent and accounted in num_outstanding, but no response is
// awaited.
func (p *Pool) SendRecv(req types.WorkerRequest, timeout time.Duration, onRecv func(msg []byte), onTimeout func()) {
	req.Normalize()

	c, err := p.lease()
	if err != nil {
		metrics.ConnectorTimeoutsTotal.WithLabelValues(p.apiName).Inc()
		if onTimeout != nil {
			onTimeout()
		}
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		p.discard(c)
		if onTimeout != nil {
			onTimeout()
		}
		return
	}

	p.queue.IncrOutstanding(1)

	if err := wire.WriteFrame(c.conn, payload); err != nil {
		p.queue.IncrOutstanding(-1)
		p.discard(c)
		if onTimeout != nil {
			onTimeout()
		}
		return
	}

	if onRecv == nil {
		// Fire-and-forget (":terminate"): don't wait for a reply.
		p.queue.IncrOutstanding(-1)
		p.release(c)
		return
	}

	c.conn.SetReadDeadline(time.Now().Add(timeout))
	resp, err := wire.ReadFrame(c.conn)
	p.queue.IncrOutstanding(-1)

	if err != nil {
		metrics.ConnectorTimeoutsTotal.WithLabelValues(p.apiName).Inc()
		p.discard(c)
		if onTimeout != nil {
			onTimeout()
		}
		return
	}

	c.conn.SetReadDeadline(time.Time{})
	p.release(c)
	onRecv(resp)
}

// IdleCount returns the number of connectors currently cached idle.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close closes every idle connector.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.idle {
		c.conn.Close()
	}
	p.idle = nil
}
