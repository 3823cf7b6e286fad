// Package store is an in-memory, tenant-partitioned key-value store
// reachable through native Get/Put and through the one entry point the
// pushback continuation path is allowed to call, ExecuteExtensionStep.
package store

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// Store is safe for concurrent use: the database service handle is
// shared read-only across cores, and every per-core Loop only ever reads
// from it on the pushback path.
type Store struct {
	cache *ristretto.Cache

	mu         sync.Mutex
	extensions map[string]Extension
}

// New builds a Store with a fixed-size ristretto cache in front of its
// tenant-partitioned key space.
func New() (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("store: create cache: %w", err)
	}
	return &Store{cache: cache, extensions: make(map[string]Extension)}, nil
}

func cacheKey(tenant uint32, tableID uint64, key []byte) string {
	return fmt.Sprintf("%d/%d/%s", tenant, tableID, key)
}

// Get performs a native GET against tenant's partition of tableID.
func (s *Store) Get(tenant uint32, tableID uint64, key []byte) ([]byte, bool) {
	v, ok := s.cache.Get(cacheKey(tenant, tableID, key))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Put performs a native PUT into tenant's partition of tableID. cost is the
// value length, the same accounting ristretto expects for its admission
// policy.
func (s *Store) Put(tenant uint32, tableID uint64, key, value []byte) {
	s.cache.Set(cacheKey(tenant, tableID, key), append([]byte(nil), value...), int64(len(value)))
	s.cache.Wait()
}

// Extension is a short server-side stored procedure registered under a
// name, re-executed locally on the pushback continuation path.
type Extension interface {
	// Step performs one unit of work given the read/write-set accumulated
	// so far for one invocation of this extension, and reports the same
	// three-way result ExecuteExtensionStep forwards to its caller.
	Step(tenant uint32, rwset map[string][]byte) (value []byte, key string, done bool)
}

// RegisterExtension makes an Extension callable by name via
// ExecuteExtensionStep. Intended to be called during startup, not on the
// hot path.
func (s *Store) RegisterExtension(name string, ext Extension) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extensions[name] = ext
}

// ExecuteExtensionStep is the one entry point the storage engine grants
// on the pushback path: given the extension's name and the read/write-set
// accumulated so far, it performs exactly one more unit of work. An
// unregistered name completes immediately with a nil result: free and
// discard, rather than blocking the continuation on work that will never
// exist.
func (s *Store) ExecuteExtensionStep(name string, tenant uint32, rwset map[string][]byte) (value []byte, key string, done bool) {
	s.mu.Lock()
	ext, ok := s.extensions[name]
	s.mu.Unlock()
	if !ok {
		return nil, "", true
	}
	return ext.Step(tenant, rwset)
}
