/*
Package wire implements the length-prefixed frame encoding the queue's
broker and the connector pool's sockets share: a 4-byte big-endian length
prefix followed by that many payload bytes. It carries no knowledge of the
worker wire format (types.WorkerRequest) layered on top of it.
*/
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame to guard against a misbehaving peer
// claiming an enormous length prefix.
const MaxFrameSize = 64 << 20

// WriteFrame writes payload as a 4-byte big-endian length prefix followed by
// the payload bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds maximum", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
