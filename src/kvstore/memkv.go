package kvstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory ordered KV substrate: a sorted slice of keys
// searched by binary search, guarded by a single RWMutex. Grounded on
// nothing in the pack beyond the teacher's own hand-rolled page cache
// (buffermgr/buffer_manager.go) - there is no in-memory ordered-map
// library anywhere in the retrieval pack (DESIGN.md). This is the
// reference implementation used by package tests and single-process
// deployments; BoltStore is the durable one.
type MemStore struct {
	mu   sync.RWMutex
	keys [][]byte // sorted ascending
	vals map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{vals: make(map[string][]byte)}
}

func (m *MemStore) find(key []byte) (int, bool) {
	i := sort.Search(len(m.keys), func(i int) bool {
		return bytes.Compare(m.keys[i], key) >= 0
	})
	if i < len(m.keys) && bytes.Equal(m.keys[i], key) {
		return i, true
	}
	return i, false
}

func (m *MemStore) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemStore) Put(_ context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(key, value)
	return nil
}

func (m *MemStore) putLocked(key, value []byte) {
	i, exists := m.find(key)
	v := make([]byte, len(value))
	copy(v, value)
	if exists {
		m.vals[string(key)] = v
		return
	}
	k := make([]byte, len(key))
	copy(k, key)
	m.keys = append(m.keys, nil)
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = k
	m.vals[string(k)] = v
}

func (m *MemStore) Delete(_ context.Context, key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(key), nil
}

func (m *MemStore) deleteLocked(key []byte) bool {
	i, exists := m.find(key)
	if !exists {
		return false
	}
	delete(m.vals, string(key))
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	return true
}

func (m *MemStore) Has(_ context.Context, key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vals[string(key)]
	return ok, nil
}

func (m *MemStore) Scan(_ context.Context, opts ScanOptions) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start, end := opts.StartKey, opts.EndKey
	if opts.Prefix != nil {
		start = opts.Prefix
		end = prefixUpperBound(opts.Prefix)
	}

	lo := sort.Search(len(m.keys), func(i int) bool {
		if start == nil {
			return true
		}
		return bytes.Compare(m.keys[i], start) >= 0
	})
	hi := len(m.keys)
	if end != nil {
		hi = sort.Search(len(m.keys), func(i int) bool {
			return bytes.Compare(m.keys[i], end) >= 0
		})
	}

	var out []Entry
	if opts.Reverse {
		for i := hi - 1; i >= lo; i-- {
			out = append(out, m.entryAt(i))
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		return out, nil
	}
	for i := lo; i < hi; i++ {
		out = append(out, m.entryAt(i))
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemStore) entryAt(i int) Entry {
	k := m.keys[i]
	v := m.vals[string(k)]
	ck := make([]byte, len(k))
	copy(ck, k)
	cv := make([]byte, len(v))
	copy(cv, v)
	return Entry{Key: ck, Value: cv}
}

func (m *MemStore) Count(_ context.Context, prefix []byte) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if prefix == nil {
		return len(m.keys), nil
	}
	end := prefixUpperBound(prefix)
	lo := sort.Search(len(m.keys), func(i int) bool {
		return bytes.Compare(m.keys[i], prefix) >= 0
	})
	hi := sort.Search(len(m.keys), func(i int) bool {
		return bytes.Compare(m.keys[i], end) >= 0
	})
	return hi - lo, nil
}

func (m *MemStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = nil
	m.vals = make(map[string][]byte)
	return nil
}

func (m *MemStore) BatchWrite(_ context.Context, puts []Entry, deletes [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range deletes {
		m.deleteLocked(d)
	}
	for _, p := range puts {
		m.putLocked(p.Key, p.Value)
	}
	return nil
}

// prefixUpperBound returns prefix with 0xFF appended, matching the
// convention keyenc's index-range helpers use. It bounds every key that
// starts with prefix and whose next byte is below 0xFF; keys continuing
// with a 0xFF byte after prefix fall outside the bound.
func prefixUpperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix)+1)
	copy(out, prefix)
	out[len(prefix)] = 0xFF
	return out
}
