// Package state holds the single shared mutable resource of a run: the
// pipeline state. Keys live in three partitions: parameters (fixed by the
// caller before the run), environment values (computed once at start), and
// stage outputs (write-once per stage execution).
package state

import (
	"sync"

	"github.com/conveyorci/conveyor/pipeline"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type output struct {
	value    string
	producer string
}

// State is the run's key-value store. Safe for concurrent readers and for
// concurrent committed writes from parallel group members.
type State struct {
	mu      sync.RWMutex
	params  map[string]string
	env     map[string]string
	sealed  bool
	outputs map[string]output
}

// New builds a State over the validated parameter set.
func New(params map[string]string) *State {
	copied := map[string]string{}
	for k, v := range params {
		copied[k] = v
	}
	return &State{
		params:  copied,
		env:     map[string]string{},
		outputs: map[string]output{},
	}
}

// SetEnv records a computed environment value. Env writes are only legal
// before Seal; the partition is read-only for the rest of the run.
func (s *State) SetEnv(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return errors.Wrapf(pipeline.ErrConfiguration, "env %q written after run start", key)
	}
	s.env[key] = value
	return nil
}

// Seal freezes the environment partition. Called once when the run starts.
func (s *State) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

// SetOutput records a stage output. A key already produced by a different
// stage is rejected; the same stage may overwrite its own key on
// re-execution (a retry).
func (s *State) SetOutput(producer, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setOutputLocked(producer, key, value)
}

func (s *State) setOutputLocked(producer, key, value string) error {
	if existing, ok := s.outputs[key]; ok && existing.producer != producer {
		return errors.Wrapf(pipeline.ErrConfiguration, "output %q already produced by stage %q", key, existing.producer)
	}
	if _, ok := s.params[key]; ok {
		return errors.Wrapf(pipeline.ErrConfiguration, "output %q shadows a parameter", key)
	}
	if _, ok := s.env[key]; ok {
		return errors.Wrapf(pipeline.ErrConfiguration, "output %q shadows an environment value", key)
	}
	s.outputs[key] = output{value: value, producer: producer}
	return nil
}

// Get looks a key up across partitions: outputs, then env, then params.
func (s *State) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if out, ok := s.outputs[key]; ok {
		return out.value, true
	}
	if v, ok := s.env[key]; ok {
		return v, true
	}
	if v, ok := s.params[key]; ok {
		return v, true
	}
	return "", false
}

// Param reads from the parameter partition only.
func (s *State) Param(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.params[key]
	return v, ok
}

// Env reads from the environment partition only.
func (s *State) Env(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.env[key]
	return v, ok
}

// Output reads from the output partition only. ErrOutputNotReady signals a
// consumer running before its producer.
func (s *State) Output(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if out, ok := s.outputs[key]; ok {
		return out.value, nil
	}
	return "", errors.Wrapf(pipeline.ErrOutputNotReady, "output %q", key)
}

// GetInt coerces the value for key to an int, 0 when absent.
func (s *State) GetInt(key string) int {
	v, _ := s.Get(key)
	return cast.ToInt(v)
}

// GetBool coerces the value for key to a bool, false when absent.
func (s *State) GetBool(key string) bool {
	v, _ := s.Get(key)
	return cast.ToBool(v)
}

// Snapshot flattens all partitions into one map for reports and templates.
func (s *State) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := map[string]string{}
	for k, v := range s.params {
		result[k] = v
	}
	for k, v := range s.env {
		result[k] = v
	}
	for k, v := range s.outputs {
		result[k] = v.value
	}
	return result
}

// Data is Snapshot with interface{} values for the template engine.
func (s *State) Data() map[string]interface{} {
	result := map[string]interface{}{}
	for k, v := range s.Snapshot() {
		result[k] = v
	}
	return result
}

// Buffer stages output writes for a parallel group member so that siblings
// and later stages never observe partial state. Commit applies the writes
// atomically after the whole group finished.
type Buffer struct {
	state    *State
	producer string
	pending  map[string]string
}

// NewBuffer opens a write buffer owned by one stage.
func (s *State) NewBuffer(producer string) *Buffer {
	return &Buffer{
		state:    s,
		producer: producer,
		pending:  map[string]string{},
	}
}

// Set stages a write; nothing is visible until Commit.
func (b *Buffer) Set(key, value string) {
	b.pending[key] = value
}

// Pending returns the staged writes.
func (b *Buffer) Pending() map[string]string {
	return b.pending
}

// Commit applies all staged writes under one lock acquisition.
func (b *Buffer) Commit() error {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	for k, v := range b.pending {
		if err := b.state.setOutputLocked(b.producer, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops the staged writes. Used when a failed sibling invalidates
// the member's results.
func (b *Buffer) Discard() {
	b.pending = map[string]string{}
}
