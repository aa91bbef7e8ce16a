package packcache

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetPut(t *testing.T) {
	c := New[int](DefaultConfig())

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)

	s := c.Stats()
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRate(), 1e-9)
}

func TestCache_GetOrBuild(t *testing.T) {
	c := New[string](Config{})
	calls := 0
	build := func() (string, error) {
		calls++
		return "pack", nil
	}

	v, hit, err := c.GetOrBuild("k", build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "pack", v)

	v, hit, err = c.GetOrBuild("k", build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "pack", v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), c.Stats().Builds)

	boom := errors.New("boom")
	_, _, err = c.GetOrBuild("bad", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictLRU(t *testing.T) {
	c := New[int](Config{MaxSize: 2})
	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evicts)
	assert.Equal(t, []string{"a", "c"}, c.Keys())
}

func TestCache_DeleteFunc(t *testing.T) {
	c := New[[]string](Config{})
	c.Put("p1", []string{"rho", "mom"})
	c.Put("p2", []string{"energy"})
	c.Put("p3", []string{"mom"})

	n := c.DeleteFunc(func(_ string, labels []string) bool {
		for _, l := range labels {
			if l == "mom" {
				return true
			}
		}
		return false
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"p2"}, c.Keys())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(3), c.Stats().Purges)
}

func TestKeyBuilder(t *testing.T) {
	a := (&KeyBuilder{}).Section("names").String("a,b").Key()
	b := (&KeyBuilder{}).Section("names").String("a").String("b").Key()
	assert.NotEqual(t, a, b)

	k := (&KeyBuilder{}).Section("ids").Int(1).Int(-2).Section("coarse").Bool(true).Key()
	assert.True(t, strings.HasPrefix(k, "|ids:"))
	assert.Equal(t, "|ids:1,-2,|coarse:T", k)
}
