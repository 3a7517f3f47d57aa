package suggest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetPut(t *testing.T) {
	cache := NewCache(0)

	_, ok := cache.Get("met")
	assert.False(t, ok)

	cache.Put("met", []string{"Metformin Xr"})
	names, ok := cache.Get("met")
	require.True(t, ok)
	assert.Equal(t, []string{"Metformin Xr"}, names)

	t.Run("EmptyListIsAHit", func(t *testing.T) {
		cache.Put("zzz", nil)
		names, ok := cache.Get("zzz")
		assert.True(t, ok)
		assert.Empty(t, names)
	})

	t.Run("StoresCopy", func(t *testing.T) {
		src := []string{"Advil"}
		cache.Put("adv", src)
		src[0] = "changed"
		names, _ := cache.Get("adv")
		assert.Equal(t, []string{"Advil"}, names)
	})
}

func TestCacheUnboundedByDefault(t *testing.T) {
	cache := NewCache(0)
	for i := 0; i < 500; i++ {
		cache.Put(fmt.Sprintf("q%03d", i), []string{"x"})
	}
	assert.Equal(t, 500, cache.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(2)
	cache.Put("aa", []string{"A"})
	cache.Put("bb", []string{"B"})

	// touch "aa" so "bb" becomes the oldest
	_, ok := cache.Get("aa")
	require.True(t, ok)

	cache.Put("cc", []string{"C"})
	assert.Equal(t, 2, cache.Len())

	_, ok = cache.Get("bb")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = cache.Get("aa")
	assert.True(t, ok)
	_, ok = cache.Get("cc")
	assert.True(t, ok)

	t.Run("ReplaceDoesNotEvict", func(t *testing.T) {
		cache.Put("cc", []string{"C2"})
		assert.Equal(t, 2, cache.Len())
		_, ok := cache.Get("aa")
		assert.True(t, ok)
		names, _ := cache.Get("cc")
		assert.Equal(t, []string{"C2"}, names)
	})

	t.Run("ReplaceRefreshesRecency", func(t *testing.T) {
		_, ok := cache.Get("aa")
		require.True(t, ok)
		// rewriting "cc" moves it ahead of "aa"
		cache.Put("cc", []string{"C3"})
		cache.Put("dd", []string{"D"})
		_, ok = cache.Get("aa")
		assert.False(t, ok)
		_, ok = cache.Get("cc")
		assert.True(t, ok)
	})

	assert.Equal(t, 2, cache.Stats()["cacheEvictions"])
}

func TestCacheEvictsInInsertionOrderWithoutReads(t *testing.T) {
	cache := NewCache(3)
	for i := 0; i < 10; i++ {
		cache.Put(fmt.Sprintf("q%d", i), []string{"x"})
	}

	for i := 0; i < 7; i++ {
		_, ok := cache.Get(fmt.Sprintf("q%d", i))
		assert.False(t, ok, "q%d should be gone", i)
	}
	for i := 7; i < 10; i++ {
		_, ok := cache.Get(fmt.Sprintf("q%d", i))
		assert.True(t, ok, "q%d should remain", i)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache(64)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (w*200+i)%100)
				cache.Put(key, []string{key})
				cache.Get(key)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 64)
	stats := cache.Stats()
	assert.Equal(t, 64, stats["maxCacheEntries"])
}
