package queue

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/jbapi/pkg/wire"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New("echo", "127.0.0.1:0", "127.0.0.1:0", 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQueueIncrOutstandingEMA(t *testing.T) {
	q := newTestQueue(t)

	q.IncrOutstanding(1)
	assert.Equal(t, 1, q.NumOutstanding())
	assert.InDelta(t, 0.5, q.MeanOutstanding(), 1e-9)

	q.IncrOutstanding(1)
	assert.Equal(t, 2, q.NumOutstanding())
	assert.InDelta(t, 1.25, q.MeanOutstanding(), 1e-9)

	q.IncrOutstanding(-2)
	assert.Equal(t, 0, q.NumOutstanding())
	assert.GreaterOrEqual(t, q.MeanOutstanding(), 0.0)
}

func TestQueueMeanStaysZeroWithNoActivity(t *testing.T) {
	q := newTestQueue(t)

	for i := 0; i < 5; i++ {
		q.Decay()
	}
	assert.Equal(t, 0.0, q.MeanOutstanding())
}

func TestQueueNeverNegativeOutstanding(t *testing.T) {
	q := newTestQueue(t)

	q.IncrOutstanding(-1)
	assert.Equal(t, 0, q.NumOutstanding())
}

// TestQueueRoundTrip exercises the full ingress -> egress -> ingress path: a
// fake worker dials the egress listener, a fake connector dials ingress and
// sends a frame, and the worker's echoed reply must come back to the
// connector unchanged.
func TestQueueRoundTrip(t *testing.T) {
	q := newTestQueue(t)

	worker, err := net.Dial("tcp", q.EgressAddr())
	require.NoError(t, err)
	defer worker.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := wire.ReadFrame(worker)
		if err != nil {
			return
		}
		_ = wire.WriteFrame(worker, append([]byte("echo:"), req...))
	}()

	client, err := net.Dial("tcp", q.IngressAddr())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, wire.WriteFrame(client, []byte(`{"cmd":"hello"}`)))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadFrame(client)
	require.NoError(t, err)
	assert.Equal(t, `echo:{"cmd":"hello"}`, string(resp))

	<-done
}
