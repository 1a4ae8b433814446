package queue

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/metrics"
	"github.com/cuemby/jbapi/pkg/wire"
)

// BufferSize is the high-water mark on concurrent in-flight forwards per
// API. Requests beyond this block on admission rather than growing an
// unbounded queue during worker outages.
const BufferSize = 20

// Queue is the per-API broker: an ingress listener with router semantics
// (accepts many clients, preserves the reply envelope) and an egress
// listener with dealer semantics (distributes frames across connected
// workers).
type Queue struct {
	apiName string
	timeout time.Duration
	logger  zerolog.Logger

	ingressLn net.Listener
	egressLn  net.Listener

	workers chan net.Conn
	sem     chan struct{}

	mu              sync.Mutex
	numOutstanding  int
	meanOutstanding float64

	closeOnce sync.Once
	closed    chan struct{}
}

// New binds the ingress and egress listeners for apiName and starts the
// accept loops. ingressAddr is where the connector pool connects;
// egressAddr is the JBAPI_QUEUE endpoint workers connect to.
func New(apiName, ingressAddr, egressAddr string, timeout time.Duration) (*Queue, error) {
	ingressLn, err := net.Listen("tcp", ingressAddr)
	if err != nil {
		return nil, fmt.Errorf("queue %s: bind ingress %s: %w", apiName, ingressAddr, err)
	}

	egressLn, err := net.Listen("tcp", egressAddr)
	if err != nil {
		ingressLn.Close()
		return nil, fmt.Errorf("queue %s: bind egress %s: %w", apiName, egressAddr, err)
	}

	q := &Queue{
		apiName:   apiName,
		timeout:   timeout,
		logger:    log.WithComponent("queue").With().Str("api_name", apiName).Logger(),
		ingressLn: ingressLn,
		egressLn:  egressLn,
		workers:   make(chan net.Conn, 256),
		sem:       make(chan struct{}, BufferSize),
		closed:    make(chan struct{}),
	}

	go q.acceptWorkers()
	go q.acceptClients()

	return q, nil
}

// IngressAddr returns the bound address of the ingress (connector-facing)
// listener.
func (q *Queue) IngressAddr() string { return q.ingressLn.Addr().String() }

// EgressAddr returns the bound address of the egress (worker-facing)
// listener.
func (q *Queue) EgressAddr() string { return q.egressLn.Addr().String() }

// Close stops both accept loops and closes all pooled worker connections.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closed)
		q.ingressLn.Close()
		q.egressLn.Close()
		// Drain pooled worker connections. The channel itself is never
		// closed: accept and forwarding goroutines may still be sending on
		// it while they unwind.
		for {
			select {
			case conn := <-q.workers:
				conn.Close()
			default:
				return
			}
		}
	})
	return nil
}

func (q *Queue) acceptWorkers() {
	for {
		conn, err := q.egressLn.Accept()
		if err != nil {
			return
		}
		select {
		case q.workers <- conn:
		case <-q.closed:
			conn.Close()
			return
		default:
			q.logger.Debug().Msg("worker pool saturated, dropping connection")
			conn.Close()
		}
	}
}

func (q *Queue) acceptClients() {
	for {
		conn, err := q.ingressLn.Accept()
		if err != nil {
			return
		}
		go q.handleClient(conn)
	}
}

// handleClient serves one client connection for its whole lifetime: each
// frame read is forwarded to a worker and the worker's reply written back
// on the same connection, so pooled connectors stay usable across many
// requests. The envelope is preserved by never multiplexing a client
// connection across more than one in-flight exchange.
func (q *Queue) handleClient(clientConn net.Conn) {
	defer clientConn.Close()

	for {
		req, err := wire.ReadFrame(clientConn)
		if err != nil {
			return
		}

		select {
		case q.sem <- struct{}{}:
		case <-q.closed:
			return
		}

		resp, ok := q.forward(req)
		<-q.sem
		if !ok {
			return
		}

		if err := wire.WriteFrame(clientConn, resp); err != nil {
			return
		}
	}
}

// forward relays one request frame to a pooled worker and returns its
// reply, putting the worker back for reuse on success.
func (q *Queue) forward(req []byte) ([]byte, bool) {
	var worker net.Conn
	select {
	case worker = <-q.workers:
	case <-q.closed:
		return nil, false
	}

	if err := wire.WriteFrame(worker, req); err != nil {
		worker.Close()
		return nil, false
	}

	resp, err := wire.ReadFrame(worker)
	if err != nil {
		worker.Close()
		return nil, false
	}

	select {
	case q.workers <- worker:
	default:
		worker.Close()
	}

	return resp, true
}

// IncrOutstanding atomically adjusts num_outstanding by delta and folds the
// new count into mean_outstanding as (mean + num) / 2. The connector pool
// calls this at dispatch (+1) and at response-or-timeout (-1); the
// autoscaler calls it with 0 once per cycle to decay idle EMAs.
func (q *Queue) IncrOutstanding(delta int) {
	q.mu.Lock()
	q.numOutstanding += delta
	if q.numOutstanding < 0 {
		q.numOutstanding = 0
	}
	q.meanOutstanding = (q.meanOutstanding + float64(q.numOutstanding)) / 2
	num, mean := q.numOutstanding, q.meanOutstanding
	q.mu.Unlock()

	metrics.QueueOutstanding.WithLabelValues(q.apiName).Set(float64(num))
	metrics.QueueMeanOutstanding.WithLabelValues(q.apiName).Set(mean)
}

// Decay invokes incr_outstanding(0), used by the autoscaler once per cycle
// so idle APIs' EMA decays toward zero even without new traffic.
func (q *Queue) Decay() {
	q.IncrOutstanding(0)
}

// NumOutstanding returns the current outstanding-request count.
func (q *Queue) NumOutstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.numOutstanding
}

// MeanOutstanding returns the current EMA of outstanding requests.
func (q *Queue) MeanOutstanding() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.meanOutstanding
}

// Timeout returns the default per-request timeout configured for this
// queue's API.
func (q *Queue) Timeout() time.Duration { return q.timeout }
