// ABOUTME: Thread-safe key-value state store shared across workflow steps.
// ABOUTME: Supports cloning so parallel branches run against isolated copies.
package workflow

import (
	"sync"
)

// State is a thread-safe key-value store scoped to one graph execution.
// Steps read inputs from it and return updates that the executor merges back.
// Concurrent fan-out tasks must each receive their own Clone; the executor
// never shares one State across parallel branches.
type State struct {
	values map[string]any
	logs   []string
	mu     sync.RWMutex
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		values: make(map[string]any),
		logs:   make([]string, 0),
	}
}

// NewStateFrom creates a State pre-populated with the given values.
func NewStateFrom(values map[string]any) *State {
	st := NewState()
	for k, v := range values {
		st.values[k] = v
	}
	return st
}

// Set stores a value under the given key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get retrieves the value for the given key, or nil if not found.
func (s *State) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// GetString retrieves the string value for the given key.
// If the key is missing or the value is not a string, defaultVal is returned.
func (s *State) GetString(key string, defaultVal string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return defaultVal
	}
	str, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return str
}

// GetInt retrieves the int value for the given key.
// If the key is missing or the value is not an int, defaultVal is returned.
func (s *State) GetInt(key string, defaultVal int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return defaultVal
	}
	n, ok := v.(int)
	if !ok {
		return defaultVal
	}
	return n
}

// GetStrings retrieves the []string value for the given key, or nil when
// the key is missing or holds a different type.
func (s *State) GetStrings(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil
	}
	list, ok := v.([]string)
	if !ok {
		return nil
	}
	return list
}

// ApplyUpdates merges the given key-value pairs into the state.
func (s *State) ApplyUpdates(updates map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.values[k] = v
	}
}

// Snapshot returns a shallow copy of all key-value pairs.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]any, len(s.values))
	for k, v := range s.values {
		snap[k] = v
	}
	return snap
}

// Clone creates a copy of the State with independent values and logs.
// Values are copied shallowly; steps treat stored values as immutable.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := &State{
		values: make(map[string]any, len(s.values)),
		logs:   make([]string, len(s.logs)),
	}
	for k, v := range s.values {
		cloned.values[k] = v
	}
	copy(cloned.logs, s.logs)
	return cloned
}

// AppendLog adds an entry to the state's log.
func (s *State) AppendLog(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

// Logs returns a copy of the state's log entries.
func (s *State) Logs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]string, len(s.logs))
	copy(result, s.logs)
	return result
}
