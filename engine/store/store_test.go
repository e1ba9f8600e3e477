package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertGet_RoundTrips(t *testing.T) {
	s := New()
	s.Insert("a", map[string]any{"x": 1})
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"x": 1}, v)
}

func TestGet_MissingIsNotOK(t *testing.T) {
	s := New()
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestResolve_WholeTaskOutput(t *testing.T) {
	s := New()
	s.Insert("p", "hello")
	v, ok := s.Resolve("p")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestResolve_DottedField(t *testing.T) {
	s := New()
	s.Insert("p", map[string]any{"key": "qr"})
	v, ok := s.Resolve("p.key")
	assert.True(t, ok)
	assert.Equal(t, "qr", v)
}

func TestResolve_BracketArrayIndex(t *testing.T) {
	s := New()
	s.Insert("p", map[string]any{"items": []any{"a", "b", "c"}})
	v, ok := s.Resolve("p.items[1]")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestResolve_NestedDottedAndBracket(t *testing.T) {
	s := New()
	s.Insert("p", map[string]any{"list": []any{map[string]any{"id": "x1"}}})
	v, ok := s.Resolve("p.list[0].id")
	assert.True(t, ok)
	assert.Equal(t, "x1", v)
}

func TestResolve_UnknownTaskFails(t *testing.T) {
	s := New()
	_, ok := s.Resolve("missing.field")
	assert.False(t, ok)
}

func TestResolve_UnknownFieldFails(t *testing.T) {
	s := New()
	s.Insert("p", map[string]any{"a": 1})
	_, ok := s.Resolve("p.b")
	assert.False(t, ok)
}

func TestInsert_ConcurrentDistinctKeysAreSafe(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			s.Insert(string(rune('a'+i%26)), i)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, len(s.Snapshot()), 26)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New()
	s.Insert("a", 1)
	snap := s.Snapshot()
	snap["a"] = 999
	v, _ := s.Get("a")
	assert.Equal(t, 1, v)
}
