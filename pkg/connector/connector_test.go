package connector

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/jbapi/pkg/queue"
	"github.com/cuemby/jbapi/pkg/types"
	"github.com/cuemby/jbapi/pkg/wire"
)

// countingQueue is a minimal outstandingCounter double that just counts
// calls, used in place of a real *queue.Queue.
type countingQueue struct {
	mu         sync.Mutex
	total      int
	increments int
}

func (c *countingQueue) IncrOutstanding(delta int) {
	c.mu.Lock()
	c.total += delta
	if delta > 0 {
		c.increments++
	}
	c.mu.Unlock()
}

// echoServer accepts one connection and echoes every frame it receives
// prefixed with "reply:", until the connection closes.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			req, err := wire.ReadFrame(conn)
			if err != nil {
				return
			}
			if err := wire.WriteFrame(conn, append([]byte("reply:"), req...)); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestPoolSendRecvHappyPath(t *testing.T) {
	addr := echoServer(t)
	q := &countingQueue{}
	pool := NewPool("echo", addr, q)
	defer pool.Close()

	var got []byte
	var wg sync.WaitGroup
	wg.Add(1)
	pool.SendRecv(types.WorkerRequest{Cmd: "ping"}, time.Second, func(msg []byte) {
		got = msg
		wg.Done()
	}, func() {
		wg.Done()
	})
	wg.Wait()

	assert.Contains(t, string(got), "ping")
	assert.Equal(t, 0, q.total)
	assert.Equal(t, 1, pool.IdleCount())
}

func TestPoolSendRecvTimeoutDiscardsConnector(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Never reply; let the connector's read deadline fire.
		_, _ = wire.ReadFrame(conn)
	}()

	q := &countingQueue{}
	pool := NewPool("slow", ln.Addr().String(), q)
	defer pool.Close()

	var timedOut bool
	var wg sync.WaitGroup
	wg.Add(1)
	pool.SendRecv(types.WorkerRequest{Cmd: "ping"}, 100*time.Millisecond, func(msg []byte) {
		wg.Done()
	}, func() {
		timedOut = true
		wg.Done()
	})
	wg.Wait()

	assert.True(t, timedOut)
	assert.Equal(t, 0, q.total)
	assert.Equal(t, 0, pool.IdleCount())
}

// TestPoolReusesIdleConnectorAgainstRealQueue drives several sequential
// requests through a real broker: after the first exchange the connector is
// cached idle, and each later request must succeed on that same reused
// socket rather than reporting a false timeout.
func TestPoolReusesIdleConnectorAgainstRealQueue(t *testing.T) {
	q, err := queue.New("echo", "127.0.0.1:0", "127.0.0.1:0", time.Second)
	require.NoError(t, err)
	defer q.Close()

	worker, err := net.Dial("tcp", q.EgressAddr())
	require.NoError(t, err)
	defer worker.Close()
	go func() {
		for {
			req, err := wire.ReadFrame(worker)
			if err != nil {
				return
			}
			if err := wire.WriteFrame(worker, append([]byte("reply:"), req...)); err != nil {
				return
			}
		}
	}()

	pool := NewPool("echo", q.IngressAddr(), q)
	defer pool.Close()

	for i := 0; i < 3; i++ {
		var got []byte
		var timedOut bool
		pool.SendRecv(types.WorkerRequest{Cmd: "ping"}, time.Second, func(msg []byte) {
			got = msg
		}, func() {
			timedOut = true
		})

		require.False(t, timedOut, "request %d timed out on a healthy worker", i)
		assert.Contains(t, string(got), "ping")
	}

	assert.Equal(t, 1, pool.IdleCount())
	assert.Equal(t, 0, q.NumOutstanding())
}

func TestPoolIdleCapIsTwo(t *testing.T) {
	addr := echoServer(t)
	q := &countingQueue{}
	pool := NewPool("echo", addr, q)
	defer pool.Close()

	for i := 0; i < 5; i++ {
		c := &connector{conn: mustDial(t, addr)}
		pool.release(c)
	}

	assert.LessOrEqual(t, pool.IdleCount(), MaxIdleConns)
}

func TestPoolFireAndForgetStillCountsOutstanding(t *testing.T) {
	addr := echoServer(t)
	q := &countingQueue{}
	pool := NewPool("echo", addr, q)
	defer pool.Close()

	pool.SendRecv(types.WorkerRequest{Cmd: types.TerminateCmd}, time.Second, nil, nil)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, q.increments)
	assert.Equal(t, 0, q.total)
}

func mustDial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return conn
}
