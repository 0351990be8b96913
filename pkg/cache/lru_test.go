package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/cache"
)

func TestLRU(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[int](2)
		c.Put("a", 1)
		c.Put("b", 2)

		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[int](2)
		c.Put("a", 1)
		c.Put("b", 2)
		c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok)
		_, ok = c.Get("a")
		assert.True(t, ok)
	})

	t.Run("update keeps single entry", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[int](2)
		c.Put("a", 1)
		c.Put("a", 5)

		v, _ := c.Get("a")
		assert.Equal(t, 5, v)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("remove and keys", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[int](4)
		c.Put("renewal:stripe:1", 1)
		c.Put("renewal:polar:1", 2)
		c.Put("billing:u", 3)

		assert.ElementsMatch(t, []string{"renewal:stripe:1", "renewal:polar:1"}, c.Keys("renewal:"))
		assert.True(t, c.Remove("billing:u"))
		assert.False(t, c.Remove("billing:u"))
		assert.Len(t, c.Keys(""), 2)
	})

	t.Run("non-positive capacity panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.NewLRU[int](0) })
	})
}
