package jobbus

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/jbapi/pkg/types"
	"github.com/cuemby/jbapi/pkg/wire"
)

func dial(addr string) (*net.TCPConn, error) {
	conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return nil, err
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("jobbus: non-tcp connection to %s", addr)
	}
	tcpConn.SetLinger(int(Linger.Seconds()))
	return tcpConn, nil
}

func sealedFrame(secret []byte, cmd types.Opcode, data []byte) ([]byte, error) {
	msg, err := Seal(secret, cmd, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// SendBroadcast delivers a fire-and-forget signed message to peerAddr's
// broadcast listener. It does not wait for a reply.
func SendBroadcast(secret, peerAddr string, cmd types.Opcode, data []byte) error {
	conn, err := dial(peerAddr)
	if err != nil {
		return fmt.Errorf("jobbus: dial %s: %w", peerAddr, err)
	}
	defer conn.Close()

	raw, err := sealedFrame([]byte(secret), cmd, data)
	if err != nil {
		return err
	}

	return wire.WriteFrame(conn, raw)
}

// SendRecv delivers a signed message to peerAddr's query listener and
// returns the handler's reply payload, bounded by RecvTimeout.
func SendRecv(secret, peerAddr string, cmd types.Opcode, data []byte) ([]byte, error) {
	conn, err := dial(peerAddr)
	if err != nil {
		return nil, fmt.Errorf("jobbus: dial %s: %w", peerAddr, err)
	}
	defer conn.Close()

	raw, err := sealedFrame([]byte(secret), cmd, data)
	if err != nil {
		return nil, err
	}

	if err := wire.WriteFrame(conn, raw); err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(RecvTimeout))
	return wire.ReadFrame(conn)
}
