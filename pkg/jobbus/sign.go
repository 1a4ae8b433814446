package jobbus

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/cuemby/jbapi/pkg/types"
)

// canonicalPayload returns the canonical JSON encoding of (cmd, data) the
// signature is computed over. The field order is fixed by the struct
// definition, so two callers with the same cmd/data always produce the same
// bytes.
func canonicalPayload(cmd types.Opcode, data []byte) ([]byte, error) {
	return json.Marshal(struct {
		Cmd  types.Opcode `json:"cmd"`
		Data []byte       `json:"data"`
	}{cmd, data})
}

// sign computes the hex-encoded HMAC-SHA256 of (cmd, data) under secret.
func sign(secret []byte, cmd types.Opcode, data []byte) (string, error) {
	payload, err := canonicalPayload(cmd, data)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// verify reports whether msg.Sign is the correct HMAC for (msg.Cmd,
// msg.Data) under secret, using a constant-time comparison.
func verify(secret []byte, msg types.SignedMessage) bool {
	want, err := sign(secret, msg.Cmd, msg.Data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(msg.Sign))
}

// Seal produces a signed envelope for (cmd, data).
func Seal(secret []byte, cmd types.Opcode, data []byte) (types.SignedMessage, error) {
	s, err := sign(secret, cmd, data)
	if err != nil {
		return types.SignedMessage{}, err
	}
	return types.SignedMessage{Cmd: cmd, Data: data, Sign: s}, nil
}
