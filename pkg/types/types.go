package types

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APISpec is the durable configuration for one logical API.
type APISpec struct {
	APIName     string
	Cmd         string
	ImageName   string
	EndpointIn  int
	EndpointOut int
	TimeoutSecs int
	Methods     map[string]struct{}
	Publisher   string
	CreateTime  time.Time
}

// DefaultTimeoutSecs is applied when an APISpec omits TimeoutSecs.
const DefaultTimeoutSecs = 30

// Timeout returns the spec's request timeout, defaulting when unset.
func (s *APISpec) Timeout() time.Duration {
	secs := s.TimeoutSecs
	if secs <= 0 {
		secs = DefaultTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

// AcceptsMethod reports whether the spec's method set contains m, compared
// upper-cased. A spec with an empty method set accepts every method.
func (s *APISpec) AcceptsMethod(m string) bool {
	if len(s.Methods) == 0 {
		return true
	}
	_, ok := s.Methods[strings.ToUpper(m)]
	return ok
}

// DefaultImageName computes the "<prefix>_<api_name>" fallback used when a
// spec is created without an explicit ImageName.
func DefaultImageName(prefix, apiName string) string {
	return fmt.Sprintf("%s_%s", prefix, apiName)
}

// ContainerState is the lifecycle state the registry observes for a container.
type ContainerState string

const (
	ContainerRunning    ContainerState = "running"
	ContainerRestarting ContainerState = "restarting"
	ContainerStopped    ContainerState = "stopped"
)

// Container is the registry's in-memory view of one worker container.
type Container struct {
	ContainerID string
	Name        string
	Image       string
	State       ContainerState
	APIName     string
}

var containerNamePattern = regexp.MustCompile(`^api_([A-Za-z0-9_]+)_([0-9a-f]{40})$`)

// apiNamePattern matches the characters a logical API name may use.
var apiNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// MakeContainerName synthesizes a container name in the "api_<api_name>_<sha1>"
// shape from a monotonic counter and a timestamp. The counter is not
// persisted across restarts, so a uuid.New() random component is folded into
// the hash input alongside counter+time rather than relying on those alone
// for collision avoidance.
func MakeContainerName(apiName string, counter uint64, now time.Time) string {
	h := sha1.New()
	fmt.Fprintf(h, "%d%d%s", counter, now.UnixNano(), uuid.New().String())
	return fmt.Sprintf("api_%s_%s", apiName, hex.EncodeToString(h.Sum(nil)))
}

// ParseContainerName extracts the api_name from a container name matching the
// "api_<api_name>_<40-hex-sha1>" shape. Names that don't match the schema are
// reported as unparseable; the registry drops them during refresh.
func ParseContainerName(name string) (apiName string, ok bool) {
	m := containerNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ValidAPIName reports whether name is usable as an api_name: the character
// set a synthesized container name can losslessly round-trip.
func ValidAPIName(name string) bool {
	return name != "" && apiNamePattern.MatchString(name)
}

// TerminateCmd is the reserved worker command that instructs a worker to exit.
const TerminateCmd = ":terminate"

// WorkerRequest is the wire format sent to a worker container over the queue.
type WorkerRequest struct {
	Cmd   string              `json:"cmd"`
	Args  []string            `json:"args,omitempty"`
	Vargs map[string][]string `json:"vargs,omitempty"`
}

// Normalize clears empty collections so they marshal as absent rather than
// as an explicit empty array/object.
func (r *WorkerRequest) Normalize() {
	if len(r.Args) == 0 {
		r.Args = nil
	}
	if len(r.Vargs) == 0 {
		r.Vargs = nil
	}
}

// Opcode identifies an inter-instance job bus message type.
type Opcode int

const (
	OpBackupAndCleanup Opcode = iota
	OpLaunchSession
	OpAutoActivate
	OpUpdateImage
	OpRefreshDisks
	OpCollectStats
	OpRecordPerfCounters
	OpPluginMaintenance
	OpPluginTask
	OpSessionStatus
	OpAPIStatus
	OpIsTerminating
)

// SignedMessage is the envelope exchanged over the inter-instance job bus.
// Sign is an HMAC over the canonical JSON encoding of (Cmd, Data) under a
// shared secret; receivers must recompute and compare before acting on Data.
type SignedMessage struct {
	Cmd  Opcode `json:"cmd"`
	Data []byte `json:"data"`
	Sign string `json:"sign"`
}
