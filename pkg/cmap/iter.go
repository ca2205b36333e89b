package cmap

// Range calls fn for each entry until fn returns false. Each shard is
// read-locked while it is visited, so fn must not modify the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		for k, v := range sh.items {
			if !fn(k, v) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// Keys returns a snapshot of the keys.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Values returns a snapshot of the values.
func (m *Map[K, V]) Values() []V {
	values := make([]V, 0, m.Count())
	m.Range(func(_ K, v V) bool {
		values = append(values, v)
		return true
	})
	return values
}

// DeleteIf removes every entry for which fn returns true and returns the
// number removed. fn runs with the shard write-locked.
func (m *Map[K, V]) DeleteIf(fn func(key K, value V) bool) int {
	removed := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		for k, v := range sh.items {
			if fn(k, v) {
				delete(sh.items, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}
