// Package dedup keeps a bounded, persisted set of content fingerprints so
// the same item is delivered once across cycles and restarts.
package dedup

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultCapacity bounds the set when no capacity is configured.
const DefaultCapacity = 1000

// ErrStorageFault marks a failure to read or write the persisted set.
// The in-memory set stays authoritative when it is returned.
var ErrStorageFault = eris.New("dedup: storage fault")

// Store is an insertion-ordered fingerprint set. Once full, inserting a new
// fingerprint evicts the oldest ones. An empty path keeps it in memory only.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
	order    []string
	seen     map[string]struct{}

	// gen counts mutations; saved is the gen last written to path.
	gen   uint64
	saved uint64
}

// New returns an empty store backed by path.
func New(path string, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		path:     path,
		capacity: capacity,
		seen:     make(map[string]struct{}),
	}
}

// Open creates a store and loads path into it. The store is always usable;
// a non-nil error wraps ErrStorageFault and means it started empty.
func Open(path string, capacity int) (*Store, error) {
	s := New(path, capacity)
	return s, s.Load()
}

// Path is the backing file, "" for memory-only stores.
func (s *Store) Path() string { return s.path }

// Capacity is the current bound.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Len is the number of fingerprints held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// IsNew reports whether fp has not been seen.
func (s *Store) IsNew(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[fp]
	return !ok
}

// MarkSeen inserts fp if absent, evicting the oldest entries beyond
// capacity.
func (s *Store) MarkSeen(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[fp]; ok {
		return
	}
	s.evict(s.capacity - 1)
	s.order = append(s.order, fp)
	s.seen[fp] = struct{}{}
	s.gen++
}

// Resize changes the bound, evicting oldest entries if it shrank.
func (s *Store) Resize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = capacity
	s.evict(capacity)
}

// Dirty reports whether the set changed since it was last loaded or
// persisted. Memory-only stores are never dirty.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path != "" && s.gen != s.saved
}

// Snapshot returns the fingerprints oldest first.
func (s *Store) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// evict drops oldest entries until at most keep remain. Caller holds mu.
func (s *Store) evict(keep int) {
	if keep < 0 {
		keep = 0
	}
	drop := len(s.order) - keep
	if drop <= 0 {
		return
	}
	for _, fp := range s.order[:drop] {
		delete(s.seen, fp)
	}
	s.order = append([]string(nil), s.order[drop:]...)
	s.gen++
}

// Load replaces the in-memory set with the persisted one. A missing file
// loads as empty without error. An unreadable or corrupt file also loads
// as empty but returns a storage fault.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.seen = make(map[string]struct{})
	s.gen++
	s.saved = s.gen
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(ErrStorageFault, "read %s: %v", s.path, err)
	}

	var fps []string
	if err := json.Unmarshal(data, &fps); err != nil {
		// The file no longer matches memory; the next persist rewrites it.
		s.gen++
		return eris.Wrapf(ErrStorageFault, "decode %s: %v", s.path, err)
	}
	for _, fp := range fps {
		if _, ok := s.seen[fp]; ok {
			continue
		}
		s.order = append(s.order, fp)
		s.seen[fp] = struct{}{}
	}
	if dropped := len(s.order) - s.capacity; dropped > 0 {
		s.evict(s.capacity)
		zap.L().Debug("dedup: trimmed persisted set to capacity",
			zap.String("path", s.path),
			zap.Int("dropped", dropped),
		)
	}
	return nil
}

// Persist writes the set to a temp file beside the target, syncs it and
// renames it into place. On failure the previous file is left untouched
// and the store stays dirty.
func (s *Store) Persist() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	snap := append([]string(nil), s.order...)
	gen := s.gen
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrapf(ErrStorageFault, "encode: %v", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(ErrStorageFault, "mkdir %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(ErrStorageFault, "create temp: %v", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrapf(ErrStorageFault, "write %s: %v", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrapf(ErrStorageFault, "sync %s: %v", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return eris.Wrapf(ErrStorageFault, "close %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return eris.Wrapf(ErrStorageFault, "rename to %s: %v", s.path, err)
	}

	s.mu.Lock()
	if gen > s.saved {
		s.saved = gen
	}
	s.mu.Unlock()
	return nil
}
