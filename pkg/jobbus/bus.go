package jobbus

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/types"
	"github.com/cuemby/jbapi/pkg/wire"
)

// ConnectTimeout and RecvTimeout bound one sendrecv exchange.
const (
	ConnectTimeout = 10 * time.Second
	RecvTimeout    = 10 * time.Second
	Linger         = 5 * time.Second
)

// Handler processes a verified message's payload, optionally returning a
// response for query-channel callers.
type Handler func(data []byte) ([]byte, error)

// Bus is the per-process job bus handle: one broadcast (push/pull) listener
// and one query (request/reply) listener, both verifying incoming signatures
// before dispatch.
type Bus struct {
	secret []byte
	logger zerolog.Logger

	broadcastLn net.Listener
	queryLn     net.Listener

	mu       sync.RWMutex
	handlers map[types.Opcode]Handler

	closeOnce sync.Once
	closed    chan struct{}
}

// New binds the broadcast and query listeners and starts their accept
// loops. secret configures this instance once, for the process lifetime.
func New(secret, broadcastAddr, queryAddr string) (*Bus, error) {
	broadcastLn, err := net.Listen("tcp", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("jobbus: bind broadcast %s: %w", broadcastAddr, err)
	}

	queryLn, err := net.Listen("tcp", queryAddr)
	if err != nil {
		broadcastLn.Close()
		return nil, fmt.Errorf("jobbus: bind query %s: %w", queryAddr, err)
	}

	b := &Bus{
		secret:      []byte(secret),
		logger:      log.WithComponent("jobbus"),
		broadcastLn: broadcastLn,
		queryLn:     queryLn,
		handlers:    make(map[types.Opcode]Handler),
		closed:      make(chan struct{}),
	}

	go b.acceptLoop(b.broadcastLn, b.handleBroadcast)
	go b.acceptLoop(b.queryLn, b.handleQuery)

	return b, nil
}

// BroadcastAddr returns the bound broadcast listener address.
func (b *Bus) BroadcastAddr() string { return b.broadcastLn.Addr().String() }

// QueryAddr returns the bound query listener address.
func (b *Bus) QueryAddr() string { return b.queryLn.Addr().String() }

// RegisterHandler installs the handler invoked when a verified message with
// the given opcode arrives, on either channel.
func (b *Bus) RegisterHandler(op types.Opcode, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[op] = h
}

func (b *Bus) handlerFor(op types.Opcode) (Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handlers[op]
	return h, ok
}

// Close stops both accept loops.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.broadcastLn.Close()
		b.queryLn.Close()
	})
	return nil
}

func (b *Bus) acceptLoop(ln net.Listener, handle func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go handle(conn)
	}
}

// readMessage decodes and verifies one signed envelope from conn.
func (b *Bus) readMessage(conn net.Conn) (types.SignedMessage, bool, error) {
	raw, err := wire.ReadFrame(conn)
	if err != nil {
		return types.SignedMessage{}, false, err
	}

	var msg types.SignedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return types.SignedMessage{}, false, err
	}

	return msg, verify(b.secret, msg), nil
}

// handleBroadcast implements the push/pull channel: one frame in, no reply,
// dispatched to the registered handler if the signature checks out.
func (b *Bus) handleBroadcast(conn net.Conn) {
	defer conn.Close()

	msg, ok, err := b.readMessage(conn)
	if err != nil {
		return
	}
	if !ok {
		b.logger.Warn().Int("cmd", int(msg.Cmd)).Msg("signature mismatch on broadcast message, dropped")
		return
	}

	handler, found := b.handlerFor(msg.Cmd)
	if !found {
		b.logger.Warn().Int("cmd", int(msg.Cmd)).Msg("no handler registered for broadcast opcode")
		return
	}

	if _, err := handler(msg.Data); err != nil {
		b.logger.Error().Err(err).Int("cmd", int(msg.Cmd)).Msg("broadcast handler failed")
	}
}

// handleQuery implements the request/reply channel: one frame in, the
// handler's return value written back as the reply.
func (b *Bus) handleQuery(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(RecvTimeout))
	msg, ok, err := b.readMessage(conn)
	if err != nil {
		return
	}
	if !ok {
		b.logger.Warn().Int("cmd", int(msg.Cmd)).Msg("signature mismatch on query message, dropped")
		return
	}

	handler, found := b.handlerFor(msg.Cmd)
	if !found {
		b.logger.Warn().Int("cmd", int(msg.Cmd)).Msg("no handler registered for query opcode")
		return
	}

	resp, err := handler(msg.Data)
	if err != nil {
		b.logger.Error().Err(err).Int("cmd", int(msg.Cmd)).Msg("query handler failed")
		return
	}

	_ = wire.WriteFrame(conn, resp)
}
