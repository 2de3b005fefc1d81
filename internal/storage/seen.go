package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// DefaultSeenCapacity bounds how many notification transaction ids are remembered
const DefaultSeenCapacity = 500

// SeenRing is a bounded set of transaction ids that evicts the oldest id once
// full. Membership checks are O(1).
type SeenRing struct {
	buf   []string
	head  int // index of the oldest entry
	size  int
	index map[string]struct{}
}

// NewSeenRing creates an empty ring holding at most capacity ids
func NewSeenRing(capacity int) *SeenRing {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &SeenRing{
		buf:   make([]string, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

// Capacity returns the maximum number of ids retained
func (r *SeenRing) Capacity() int { return len(r.buf) }

// Len returns the number of ids currently retained
func (r *SeenRing) Len() int { return r.size }

// Contains reports whether id is remembered
func (r *SeenRing) Contains(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Add remembers id, evicting the oldest id when full. It returns false if id
// was already present.
func (r *SeenRing) Add(id string) bool {
	if r.Contains(id) {
		return false
	}
	if r.size == len(r.buf) {
		delete(r.index, r.buf[r.head])
		r.buf[r.head] = id
		r.head = (r.head + 1) % len(r.buf)
	} else {
		r.buf[(r.head+r.size)%len(r.buf)] = id
		r.size++
	}
	r.index[id] = struct{}{}
	return true
}

// IDs returns the retained ids, oldest first
func (r *SeenRing) IDs() []string {
	out := make([]string, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// SeenStore keeps a SeenRing in sync with a KeyValueStore entry holding a JSON
// array of ids, oldest first.
type SeenStore struct {
	mu   sync.Mutex
	kv   KeyValueStore
	key  string
	ring *SeenRing
}

// NewSeenStore creates a store over kv; call Load to read persisted ids
func NewSeenStore(kv KeyValueStore, capacity int) *SeenStore {
	return &SeenStore{kv: kv, key: KeySeenNotifications, ring: NewSeenRing(capacity)}
}

// Load replaces the in-memory ring with the persisted ids. A missing or
// corrupt entry yields an empty ring; only transport errors are returned.
func (s *SeenStore) Load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load seen ids: %w", err)
	}

	var ids []string
	ring := NewSeenRing(s.ring.Capacity())
	if json.Unmarshal([]byte(raw), &ids) == nil {
		for _, id := range ids {
			ring.Add(id)
		}
	}

	s.mu.Lock()
	s.ring = ring
	s.mu.Unlock()
	return nil
}

// Contains reports whether id was already surfaced
func (s *SeenStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Contains(id)
}

// Record adds ids to the ring and persists it when anything changed
func (s *SeenStore) Record(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	changed := false
	for _, id := range ids {
		if s.ring.Add(id) {
			changed = true
		}
	}
	snapshot := s.ring.IDs()
	s.mu.Unlock()

	if !changed {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode seen ids: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("persist seen ids: %w", err)
	}
	return nil
}

// Len returns the number of remembered ids
func (s *SeenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Len()
}
