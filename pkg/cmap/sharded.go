package cmap

import (
	"fmt"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map.
type Map[K comparable, V any] struct {
	shards    []*shard[K, V]
	shardMask uint64
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// Option configures a Map.
type Option func(*options)

type options struct {
	shards int
}

// WithShardCount sets the number of shards. Values that are not a power
// of two are replaced by DefaultShardCount.
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// New creates an empty map.
func New[K comparable, V any](opts ...Option) *Map[K, V] {
	o := options{shards: DefaultShardCount}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shards <= 0 || o.shards&(o.shards-1) != 0 {
		o.shards = DefaultShardCount
	}

	m := &Map[K, V]{
		shards:    make([]*shard[K, V], o.shards),
		shardMask: uint64(o.shards - 1),
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	var s string
	switch k := any(key).(type) {
	case string:
		s = k
	case fmt.Stringer:
		s = k.String()
	default:
		s = fmt.Sprint(key)
	}
	return m.shards[murmur3.Sum64([]byte(s))&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	sh := m.getShard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	val, ok := sh.items[key]
	return val, ok
}

// Set stores a key-value pair.
func (m *Map[K, V]) Set(key K, value V) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.items[key] = value
}

// SetIfAbsent stores value only if key is not present. It reports whether
// the value was stored.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[key]; ok {
		return false
	}
	sh.items[key] = value
	return true
}

// GetOrSet returns the existing value for key, or stores and returns
// value. loaded is true if the value was already present.
func (m *Map[K, V]) GetOrSet(key K, value V) (actual V, loaded bool) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if v, ok := sh.items[key]; ok {
		return v, true
	}
	sh.items[key] = value
	return value, false
}

// Delete removes a key.
func (m *Map[K, V]) Delete(key K) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.items, key)
}

// Pop removes key and returns its value.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	return v, ok
}

// Has checks if a key exists.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Count returns the total number of items.
func (m *Map[K, V]) Count() int {
	count := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		count += len(sh.items)
		sh.mu.RUnlock()
	}
	return count
}
