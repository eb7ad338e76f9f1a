package cache

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysLive(Entry) bool { return true }

func TestKey_NormalizesWhitespaceAndCase(t *testing.T) {
	assert.Equal(t, Key("  How Do I   Use Hooks  ", ""), Key("how do i use hooks", ""))
}

func TestKey_DocNameScopesTheKey(t *testing.T) {
	assert.NotEqual(t, Key("hooks", "react"), Key("hooks", "vue"))
	assert.NotEqual(t, Key("hooks", "react"), Key("hooks", ""))
}

func TestPutThenGet_ReturnsStoredEntry(t *testing.T) {
	c := New(10)
	c.Put("hooks", Entry{SectionIDs: []int64{1, 2}, Value: "result"})

	entry, ok := c.Get("hooks", alwaysLive)
	require.True(t, ok)
	assert.Equal(t, "result", entry.Value)
}

func TestGet_MissingKeyReturnsFalse(t *testing.T) {
	c := New(10)
	_, ok := c.Get("nope", alwaysLive)
	assert.False(t, ok)
}

func TestGet_NonLiveEntryIsEvicted(t *testing.T) {
	c := New(10)
	c.Put("hooks", Entry{SectionIDs: []int64{1}, Value: "stale"})

	_, ok := c.Get("hooks", func(Entry) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCapacity_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Put("a", Entry{Value: 1})
	c.Put("b", Entry{Value: 2})
	c.Put("c", Entry{Value: 3}) // evicts "a"

	_, ok := c.Get("a", alwaysLive)
	assert.False(t, ok)

	_, ok = c.Get("c", alwaysLive)
	assert.True(t, ok)
}

func TestDo_CollapsesConcurrentIdenticalKeys(t *testing.T) {
	c := New(10)
	var calls atomic.Int64

	start := make(chan struct{})
	results := make(chan any, 10)
	for i := 0; i < 10; i++ {
		go func() {
			<-start
			v, _, _ := c.Do("hooks", func() (any, error) {
				calls.Add(1)
				return "result", nil
			})
			results <- v
		}()
	}
	close(start)

	for i := 0; i < 10; i++ {
		assert.Equal(t, "result", <-results)
	}
	assert.LessOrEqual(t, calls.Load(), int64(10), "singleflight should collapse overlapping calls, never exceed the caller count")
}
