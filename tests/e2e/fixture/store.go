package fixture

import "sync"

// Store holds the application settings in memory. Saves are deep-merged
// into the current document so partial updates keep untouched sections.
type Store struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// Defaults mirrors the scanner application's out-of-the-box settings.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"scan": map[string]interface{}{
			"startIp": "1.0.0.0",
			"endIp":   "1.0.0.255",
		},
		"auth": map[string]interface{}{
			"type": "offline",
		},
	}
}

func NewStore() *Store {
	return &Store{data: Defaults()}
}

// Snapshot returns a deep copy of the current settings.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mergeDeep(nil, s.data)
}

// Save merges update into the stored settings and returns the result.
func (s *Store) Save(update map[string]interface{}) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = mergeDeep(s.data, update)
	return mergeDeep(nil, s.data)
}

// Reset restores the defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	s.data = Defaults()
	s.mu.Unlock()
}

// mergeDeep returns a new map holding target overlaid with source. Nested
// maps are merged recursively; any other source value replaces the target's.
func mergeDeep(target, source map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(target)+len(source))
	for k, v := range target {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = mergeDeep(nil, m)
			continue
		}
		out[k] = v
	}
	for k, v := range source {
		src, ok := v.(map[string]interface{})
		if !ok {
			out[k] = v
			continue
		}
		if dst, ok := out[k].(map[string]interface{}); ok {
			out[k] = mergeDeep(dst, src)
		} else {
			out[k] = mergeDeep(nil, src)
		}
	}
	return out
}
