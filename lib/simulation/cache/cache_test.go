package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLineage struct {
	deps []string
	size int64
}

func (f fakeLineage) Dependencies() []string { return f.deps }
func (f fakeLineage) SizeBytes() int64       { return f.size }

func TestLRUEviction(t *testing.T) {
	c := New(Config{Policy: PolicyLRU, MaxEntries: 3})

	c.Set("A", fakeLineage{size: 1}, 0)
	c.Set("B", fakeLineage{size: 1}, 0)
	c.Set("C", fakeLineage{size: 1}, 0)
	_, ok := c.Get("A") // A becomes most-recently-used
	require.True(t, ok)

	c.Set("D", fakeLineage{size: 1}, 0)

	_, okB := c.Get("B")
	_, okA := c.Get("A")
	_, okC := c.Get("C")
	_, okD := c.Get("D")

	assert.False(t, okB, "B should have been evicted as least-recently-used")
	assert.True(t, okA)
	assert.True(t, okC)
	assert.True(t, okD)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTLExpiry(t *testing.T) {
	c := New(Config{TTL: 10 * time.Millisecond})
	c.Set("A", fakeLineage{}, 0)
	_, ok := c.Get("A")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("A")
	assert.False(t, ok)
}

func TestInvalidateIsIdempotent(t *testing.T) {
	c := New(Config{})
	c.Set("A", fakeLineage{}, 0)
	c.Invalidate("A")
	c.Invalidate("A") // second call is a no-op
	assert.Equal(t, int64(1), c.Stats().Invalidations)
}

func TestInvalidateDependents(t *testing.T) {
	c := New(Config{})
	c.Set("derived1", fakeLineage{deps: []string{"root1"}}, 0)
	c.Set("derived2", fakeLineage{deps: []string{"root1", "root2"}}, 0)
	c.Set("unrelated", fakeLineage{deps: []string{"root2"}}, 0)

	n := c.InvalidateDependents("root1")
	assert.Equal(t, 2, n)

	_, ok1 := c.Get("derived1")
	_, ok2 := c.Get("derived2")
	_, ok3 := c.Get("unrelated")
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)
}

func TestMemoryEvictionPicksLargest(t *testing.T) {
	c := New(Config{Policy: PolicyMemory, MaxEntries: 2})
	c.Set("small", fakeLineage{size: 1}, 0)
	c.Set("large", fakeLineage{size: 100}, 0)
	c.Set("medium", fakeLineage{size: 10}, 0)

	_, okLarge := c.Get("large")
	assert.False(t, okLarge)
}
