package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencer_Next(t *testing.T) {
	t.Run("first call returns 1", func(t *testing.T) {
		s := NewSequencer()
		assert.Equal(t, 1, s.Next("message"))
	})
	t.Run("strictly increasing by one", func(t *testing.T) {
		s := NewSequencer()
		prev := s.Next("message")
		for i := 0; i < 100; i++ {
			got := s.Next("message")
			assert.Equal(t, prev+1, got)
			prev = got
		}
	})
	t.Run("keys are independent", func(t *testing.T) {
		s := NewSequencer()
		s.Next("message")
		s.Next("message")
		s.Next("message")
		assert.Equal(t, 1, s.Next("attachment"))
		assert.Equal(t, 4, s.Next("message"))
	})
	t.Run("current", func(t *testing.T) {
		s := NewSequencer()
		assert.Equal(t, 0, s.Current("message"))
		s.Next("message")
		assert.Equal(t, 1, s.Current("message"))
	})
}

func TestMapper_Get(t *testing.T) {
	t.Run("idempotent lookup", func(t *testing.T) {
		m := NewMapper[string]()
		assert.False(t, m.Has("U024BE7LH"))
		first := m.Get("U024BE7LH")
		assert.True(t, m.Has("U024BE7LH"))
		assert.Equal(t, first, m.Get("U024BE7LH"))
	})
	t.Run("injective", func(t *testing.T) {
		m := NewMapper[string]()
		seen := make(map[int]string)
		for _, src := range []string{"a", "b", "c", "d", "a", "b"} {
			id := m.Get(src)
			if prev, ok := seen[id]; ok {
				assert.Equal(t, prev, src, "two source ids mapped to %d", id)
			}
			seen[id] = src
		}
		assert.Equal(t, 4, m.Len())
	})
	t.Run("dense from 1", func(t *testing.T) {
		m := NewMapper[int]()
		assert.Equal(t, 1, m.Get(9999))
		assert.Equal(t, 2, m.Get(-3))
		assert.Equal(t, 3, m.Get(0))
	})
}
