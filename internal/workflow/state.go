package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
)

// State carries the outputs of completed steps to the steps after them.
// Outputs are always held in their JSON form so a step sees the same value
// whether the producer ran in this process or was loaded from the store.
type State struct {
	mu      sync.RWMutex
	outputs map[string]json.RawMessage
}

func newState() *State {
	return &State{outputs: make(map[string]json.RawMessage)}
}

func (s *State) set(step string, output json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[step] = output
}

// Has reports whether step produced an output.
func (s *State) Has(step string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.outputs[step]
	return ok
}

// Output decodes the output of a completed step into T.
func Output[T any](s *State, step string) (T, error) {
	var v T
	s.mu.RLock()
	raw, ok := s.outputs[step]
	s.mu.RUnlock()
	if !ok {
		return v, fmt.Errorf("no output recorded for step %q", step)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode output of step %q: %w", step, err)
	}
	return v, nil
}
