// Package store implements the engine's data store (nika spec §4.2,
// component C2): a task_id -> JSON value map with atomic per-task insert and
// a dotted/bracket-indexed path resolver built on tidwall/gjson.
package store

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Store holds one run's task outputs. Insert is single-writer per task id
// (a task completes exactly once); Get/Resolve have many concurrent
// readers, so access is guarded by an RWMutex.
type Store struct {
	mu      sync.RWMutex
	outputs map[string]any
}

func New() *Store {
	return &Store{outputs: make(map[string]any)}
}

// Insert records task id's output. Re-inserting the same id overwrites —
// callers are expected to call this exactly once per task, at completion.
func (s *Store) Insert(taskID string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[taskID] = value
}

// Get returns the raw output recorded for taskID.
func (s *Store) Get(taskID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[taskID]
	return v, ok
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// normalize rewrites bracket indices ("items[0]") into gjson's dotted index
// form ("items.0") so the whole path can be split and walked uniformly.
func normalize(path string) string {
	return bracketIndex.ReplaceAllString(path, ".$1")
}

// Resolve walks path — "task_id", "task_id.field", or
// "task_id.field.sub[0]" — against the store. The leading segment names a
// task id; the remainder, if any, is a gjson path walked over that task's
// JSON-marshaled output.
func (s *Store) Resolve(path string) (any, bool) {
	normalized := normalize(path)
	root, rest, hasRest := strings.Cut(normalized, ".")
	value, ok := s.Get(root)
	if !ok {
		return nil, false
	}
	if !hasRest || rest == "" {
		return value, true
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(b, rest)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// Snapshot returns a shallow copy of every recorded output, keyed by task id.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}
