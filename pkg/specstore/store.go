package specstore

import (
	"errors"
	"time"

	"github.com/cuemby/jbapi/pkg/types"
)

// ErrNotFound is returned by Get when no spec exists for the given api_name.
// Callers that need to distinguish "not found" from "found with defaults
// applied" should check for this sentinel rather than a zero-value spec.
var ErrNotFound = errors.New("specstore: api spec not found")

// Fields describes the mutation upsert applies. APIName, Cmd, Methods and
// Publisher must be set on every call, creation or update. ImageName,
// EndpointIn, EndpointOut and TimeoutSecs left zero on an existing record are
// left unchanged; EndpointIn and EndpointOut are not checked, so a zero value
// on creation is stored as given.
type Fields struct {
	APIName     string
	Cmd         string
	ImageName   string
	EndpointIn  int
	EndpointOut int
	TimeoutSecs int
	Methods     []string
	Publisher   string
}

// Store is the narrow interface the rest of jbapi depends on.
type Store interface {
	// Get returns the spec for apiName, or ErrNotFound if none exists.
	Get(apiName string) (*types.APISpec, error)
	// Upsert creates or updates the spec named by f.APIName.
	Upsert(f Fields) (*types.APISpec, error)
	// List returns every known spec, optionally filtered by publisher.
	List(publisher string) ([]*types.APISpec, error)
	// Delete removes the spec for apiName. Deleting an absent spec is a no-op.
	Delete(apiName string) error
	Close() error
}

func applyDefaults(existing *types.APISpec, f Fields, prefix string, now time.Time) *types.APISpec {
	spec := existing
	if spec == nil {
		spec = &types.APISpec{APIName: f.APIName, CreateTime: now}
	}
	if f.Cmd != "" {
		spec.Cmd = f.Cmd
	}
	if f.ImageName != "" {
		spec.ImageName = f.ImageName
	} else if spec.ImageName == "" {
		spec.ImageName = types.DefaultImageName(prefix, f.APIName)
	}
	if f.EndpointIn != 0 {
		spec.EndpointIn = f.EndpointIn
	}
	if f.EndpointOut != 0 {
		spec.EndpointOut = f.EndpointOut
	}
	if f.TimeoutSecs != 0 {
		spec.TimeoutSecs = f.TimeoutSecs
	} else if spec.TimeoutSecs == 0 {
		spec.TimeoutSecs = types.DefaultTimeoutSecs
	}
	if len(f.Methods) > 0 {
		methods := make(map[string]struct{}, len(f.Methods))
		for _, m := range f.Methods {
			methods[m] = struct{}{}
		}
		spec.Methods = methods
	}
	if f.Publisher != "" {
		spec.Publisher = f.Publisher
	}
	return spec
}
