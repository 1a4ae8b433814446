package jobbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/jbapi/pkg/types"
	"github.com/cuemby/jbapi/pkg/wire"
)

func newTestBus(t *testing.T, secret string) *Bus {
	t.Helper()
	b, err := New(secret, "127.0.0.1:0", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBusSendRecvDispatchesToHandler(t *testing.T) {
	b := newTestBus(t, "s3cr3t")
	b.RegisterHandler(types.OpCollectStats, func(data []byte) ([]byte, error) {
		return append([]byte("echo:"), data...), nil
	})

	resp, err := SendRecv("s3cr3t", b.QueryAddr(), types.OpCollectStats, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(resp))
}

func TestBusSendBroadcastInvokesHandler(t *testing.T) {
	b := newTestBus(t, "s3cr3t")
	done := make(chan []byte, 1)
	b.RegisterHandler(types.OpRefreshDisks, func(data []byte) ([]byte, error) {
		done <- data
		return nil, nil
	})

	err := SendBroadcast("s3cr3t", b.BroadcastAddr(), types.OpRefreshDisks, []byte("go"))
	require.NoError(t, err)

	select {
	case got := <-done:
		assert.Equal(t, "go", string(got))
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestBusRejectsTamperedSignature(t *testing.T) {
	b := newTestBus(t, "s3cr3t")
	invoked := false
	b.RegisterHandler(types.OpAPIStatus, func(data []byte) ([]byte, error) {
		invoked = true
		return []byte("ok"), nil
	})

	conn, err := dial(b.QueryAddr())
	require.NoError(t, err)
	defer conn.Close()

	msg, err := Seal([]byte("s3cr3t"), types.OpAPIStatus, []byte("payload"))
	require.NoError(t, err)
	msg.Data = []byte("tampered")

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, raw))

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, err = wire.ReadFrame(conn)
	assert.Error(t, err)
	assert.False(t, invoked)
}

func TestBusRejectsWrongSecret(t *testing.T) {
	b := newTestBus(t, "right-secret")
	b.RegisterHandler(types.OpSessionStatus, func(data []byte) ([]byte, error) {
		return []byte("ok"), nil
	})

	_, err := SendRecv("wrong-secret", b.QueryAddr(), types.OpSessionStatus, []byte("x"))
	assert.Error(t, err)
}

func TestBusQueryWithoutHandlerGetsNoReply(t *testing.T) {
	b := newTestBus(t, "s3cr3t")

	conn, err := dial(b.QueryAddr())
	require.NoError(t, err)
	defer conn.Close()

	raw, err := sealedFrame([]byte("s3cr3t"), types.OpPluginTask, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, raw))

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, err = wire.ReadFrame(conn)
	assert.Error(t, err)
}
