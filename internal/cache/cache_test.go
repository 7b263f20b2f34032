package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetWithinTTL(t *testing.T) {
	c := New(time.Minute, 10, true)
	c.Set("search:abc", []string{"r1", "r2"})

	v, ok := c.Get("search:abc")
	require.True(t, ok)
	assert.Equal(t, []string{"r1", "r2"}, v)
}

func TestGetExpiredRemovesKey(t *testing.T) {
	c := New(10*time.Millisecond, 10, true)
	c.Set("search:abc", "v")

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("search:abc")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(1), stats.Expired)
}

func TestLRUEviction(t *testing.T) {
	c := New(time.Minute, 3, true)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k:%d", i), i)
	}

	stats := c.Stats()
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, int64(2), stats.Evictions)

	// Oldest keys are gone, newest remain.
	_, ok := c.Get("k:0")
	assert.False(t, ok)
	_, ok = c.Get("k:4")
	assert.True(t, ok)
}

func TestClearScopeRemovesExactlyPrefix(t *testing.T) {
	c := New(time.Minute, 10, true)
	c.Set("search:a", 1)
	c.Set("search:b", 2)
	c.Set("searchx:c", 3)
	c.Set("context:d", 4)

	removed := c.ClearScope("search")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("searchx:c")
	assert.True(t, ok)
	_, ok = c.Get("context:d")
	assert.True(t, ok)
	_, ok = c.Get("search:a")
	assert.False(t, ok)
}

func TestClearPattern(t *testing.T) {
	c := New(time.Minute, 10, true)
	c.Set("search:repo1:q1", 1)
	c.Set("search:repo2:q1", 2)
	c.Set("context:repo1:f", 3)

	removed := c.ClearPattern("search:*:q1")
	assert.Equal(t, 2, removed)

	_, ok := c.Get("context:repo1:f")
	assert.True(t, ok)
}

func TestClearAll(t *testing.T) {
	c := New(time.Minute, 10, true)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.Equal(t, 2, c.ClearAll())
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestDisabledCacheIsInert(t *testing.T) {
	c := New(time.Minute, 10, false)
	c.Set("a", 1)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}
