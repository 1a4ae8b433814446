package specstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/jbapi/pkg/log"
	"github.com/cuemby/jbapi/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketSpecs = []byte("api_specs")

// record is the JSON-serializable form stored in bbolt; types.APISpec's
// Methods field is a set, which marshals awkwardly, so the store keeps its
// own wire shape and converts on the way in/out.
type record struct {
	APIName     string    `json:"api_name"`
	Cmd         string    `json:"cmd"`
	ImageName   string    `json:"image_name"`
	EndpointIn  int       `json:"endpoint_in"`
	EndpointOut int       `json:"endpoint_out"`
	TimeoutSecs int       `json:"timeout_secs"`
	Methods     []string  `json:"methods"`
	Publisher   string    `json:"publisher"`
	CreateTime  time.Time `json:"create_time"`
}

func toRecord(s *types.APISpec) record {
	methods := make([]string, 0, len(s.Methods))
	for m := range s.Methods {
		methods = append(methods, m)
	}
	return record{
		APIName: s.APIName, Cmd: s.Cmd, ImageName: s.ImageName,
		EndpointIn: s.EndpointIn, EndpointOut: s.EndpointOut,
		TimeoutSecs: s.TimeoutSecs, Methods: methods,
		Publisher: s.Publisher, CreateTime: s.CreateTime,
	}
}

func fromRecord(r record) *types.APISpec {
	methods := make(map[string]struct{}, len(r.Methods))
	for _, m := range r.Methods {
		methods[m] = struct{}{}
	}
	return &types.APISpec{
		APIName: r.APIName, Cmd: r.Cmd, ImageName: r.ImageName,
		EndpointIn: r.EndpointIn, EndpointOut: r.EndpointOut,
		TimeoutSecs: r.TimeoutSecs, Methods: methods,
		Publisher: r.Publisher, CreateTime: r.CreateTime,
	}
}

// BoltStore is the durable Store implementation, backed by a single bbolt
// database, with a read-through in-memory cache keyed by api_name.
type BoltStore struct {
	db     *bolt.DB
	prefix string

	mu    sync.RWMutex
	cache map[string]*types.APISpec
}

// NewBoltStore opens (creating if absent) the bbolt database under dataDir.
func NewBoltStore(dataDir, imagePrefix string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "jbapi.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open spec store database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSpecs)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create spec bucket: %w", err)
	}

	return &BoltStore{
		db:     db,
		prefix: imagePrefix,
		cache:  make(map[string]*types.APISpec),
	}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get returns the spec for apiName. A cache hit skips the bbolt read
// entirely; a miss reads through to bbolt and populates the cache.
func (s *BoltStore) Get(apiName string) (*types.APISpec, error) {
	s.mu.RLock()
	if cached, ok := s.cache[apiName]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	var spec *types.APISpec
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSpecs)
		data := b.Get([]byte(apiName))
		if data == nil {
			return ErrNotFound
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decoding spec for %s: %w", apiName, err)
		}
		spec = fromRecord(r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[apiName] = spec
	s.mu.Unlock()

	return spec, nil
}

// Upsert creates or updates the spec named by f.APIName, stamping CreateTime
// on first creation, and replaces the cache entry so the next Get reflects
// the write.
func (s *BoltStore) Upsert(f Fields) (*types.APISpec, error) {
	// EndpointIn/EndpointOut are mandatory on creation, but 0 is also a
	// legitimate explicit value (bind an OS-assigned ephemeral port), so it
	// can't be used to detect an omitted field the way the string fields
	// can; callers are expected to pass them whenever a spec is first
	// created, and the zero value is honored for local/test deployments.
	if f.APIName == "" || f.Cmd == "" || f.Publisher == "" {
		return nil, fmt.Errorf("specstore: missing mandatory field for %q", f.APIName)
	}
	if len(f.Methods) == 0 {
		return nil, fmt.Errorf("specstore: methods must be non-empty for %q", f.APIName)
	}

	existing, err := s.Get(f.APIName)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	if err == ErrNotFound {
		existing = nil
	}

	spec := applyDefaults(existing, f, s.prefix, time.Now())

	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSpecs)
		data, err := json.Marshal(toRecord(spec))
		if err != nil {
			return err
		}
		return b.Put([]byte(spec.APIName), data)
	}); err != nil {
		return nil, fmt.Errorf("failed to persist spec for %s: %w", spec.APIName, err)
	}

	s.mu.Lock()
	s.cache[spec.APIName] = spec
	s.mu.Unlock()

	lg := log.WithComponent("specstore")
	lg.Info().Str("api_name", spec.APIName).Msg("spec upserted")
	return spec, nil
}

// List returns every known spec, optionally filtered by publisher.
func (s *BoltStore) List(publisher string) ([]*types.APISpec, error) {
	var specs []*types.APISpec
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSpecs)
		return b.ForEach(func(_, data []byte) error {
			var r record
			if err := json.Unmarshal(data, &r); err != nil {
				return err
			}
			if publisher != "" && r.Publisher != publisher {
				return nil
			}
			specs = append(specs, fromRecord(r))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list specs: %w", err)
	}
	return specs, nil
}

// Delete removes the spec for apiName. Deleting an absent spec is a no-op,
// matching bbolt's Delete-on-missing-key semantics.
func (s *BoltStore) Delete(apiName string) error {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpecs).Delete([]byte(apiName))
	}); err != nil {
		return fmt.Errorf("failed to delete spec for %s: %w", apiName, err)
	}

	s.mu.Lock()
	delete(s.cache, apiName)
	s.mu.Unlock()

	return nil
}
