package executor

import (
	"bytes"
	"sort"
	"sync"
)

// Storage is a module's persistent key-value state as seen from inside
// one invocation.
type Storage interface {
	Get(key []byte) ([]byte, bool)
	Set(key, value []byte)
	Delete(key []byte)
}

// store is the committed state of one address.
type store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newStore() *store {
	return &store{data: make(map[string][]byte)}
}

func (s *store) get(key string) ([]byte, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	return v, ok
}

func (s *store) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// overlay buffers writes over a store until commit.
type overlay struct {
	base    *store
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newOverlay(base *store) *overlay {
	return &overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *overlay) Get(key []byte) ([]byte, bool) {
	k := string(key)
	if v, ok := o.writes[k]; ok {
		return bytes.Clone(v), true
	}
	if _, gone := o.deletes[k]; gone {
		return nil, false
	}
	v, ok := o.base.get(k)
	return bytes.Clone(v), ok
}

func (o *overlay) Set(key, value []byte) {
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = bytes.Clone(value)
}

func (o *overlay) Delete(key []byte) {
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
}

func (o *overlay) dirty() bool {
	return len(o.writes) > 0 || len(o.deletes) > 0
}

func (o *overlay) commit() {
	o.base.mu.Lock()
	defer o.base.mu.Unlock()
	for k := range o.deletes {
		delete(o.base.data, k)
	}
	for k, v := range o.writes {
		o.base.data[k] = v
	}
}
