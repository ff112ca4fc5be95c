package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/localcache/internal/cache"
)

// TestCache_New 測試建構參數驗證
func TestCache_New(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		defaultTTL  time.Duration
		expectedErr error
	}{
		{
			name:       "valid capacity and ttl",
			capacity:   16,
			defaultTTL: time.Minute,
		},
		{
			name:       "no default ttl",
			capacity:   16,
			defaultTTL: cache.NoTTL,
		},
		{
			name:       "zero default ttl is valid",
			capacity:   16,
			defaultTTL: 0,
		},
		{
			name:        "zero capacity",
			capacity:    0,
			defaultTTL:  time.Minute,
			expectedErr: cache.ErrInvalidCapacity,
		},
		{
			name:        "negative capacity",
			capacity:    -3,
			defaultTTL:  time.Minute,
			expectedErr: cache.ErrInvalidCapacity,
		},
		{
			name:        "negative default ttl",
			capacity:    16,
			defaultTTL:  -time.Second,
			expectedErr: cache.ErrNegativeTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := cache.New[string, string](tt.capacity, tt.defaultTTL)

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, c)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, 0, c.Len())
			assert.Equal(t, tt.capacity, c.Stats().Capacity)
		})
	}
}

// TestCache_PutGet 測試基本寫入與讀取
func TestCache_PutGet(t *testing.T) {
	c, err := cache.New[string, string](8, cache.NoTTL)
	require.NoError(t, err)

	t.Run("get returns stored value", func(t *testing.T) {
		evicted := c.Put("user:1", "alice")
		assert.False(t, evicted)

		value, ok := c.Get("user:1")
		require.True(t, ok)
		assert.Equal(t, "alice", value)
	})

	t.Run("missing key returns zero value", func(t *testing.T) {
		value, ok := c.Get("user:404")
		assert.False(t, ok)
		assert.Empty(t, value)
	})
}

// TestCache_Overwrite 測試覆寫既有 key 的行為
func TestCache_Overwrite(t *testing.T) {
	c, err := cache.New[string, string](2, cache.NoTTL)
	require.NoError(t, err)

	c.Put("a", "v1")
	c.Put("b", "v1")

	// 覆寫不是插入：數量不變、不觸發驅逐
	evicted := c.Put("a", "v2")
	assert.False(t, evicted)
	assert.Equal(t, 2, c.Len())

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v2", value)

	// 覆寫後 a 成為最近使用，下一次驅逐輪到 b
	c.Put("c", "v1")
	_, ok = c.Peek("b")
	assert.False(t, ok)
	_, ok = c.Peek("a")
	assert.True(t, ok)
}

// TestCache_CapacityEviction 測試容量驅逐
func TestCache_CapacityEviction(t *testing.T) {
	t.Run("oldest entry evicted on overflow", func(t *testing.T) {
		c, err := cache.New[string, int](2, cache.NoTTL)
		require.NoError(t, err)

		assert.False(t, c.Put("a", 1))
		assert.False(t, c.Put("b", 2))
		assert.True(t, c.Put("c", 3))

		assert.Equal(t, 2, c.Len())
		_, ok := c.Peek("a")
		assert.False(t, ok)
		_, ok = c.Peek("b")
		assert.True(t, ok)
		_, ok = c.Peek("c")
		assert.True(t, ok)
		assert.Equal(t, uint64(1), c.Stats().Evictions)
	})

	t.Run("get promotes entry out of eviction order", func(t *testing.T) {
		c, err := cache.New[string, int](3, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		_, ok := c.Get("a")
		require.True(t, ok)

		// a 已被拉到最前，溢位時出局的是 b
		c.Put("d", 4)
		_, ok = c.Peek("b")
		assert.False(t, ok)
		_, ok = c.Peek("a")
		assert.True(t, ok)
	})

	t.Run("contains does not promote", func(t *testing.T) {
		c, err := cache.New[string, int](2, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)
		c.Put("b", 2)
		assert.True(t, c.Contains("a"))

		// a 仍在最久未使用端
		c.Put("c", 3)
		assert.False(t, c.Contains("a"))
	})

	t.Run("peek does not promote", func(t *testing.T) {
		c, err := cache.New[string, int](2, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)
		c.Put("b", 2)
		_, ok := c.Peek("a")
		require.True(t, ok)

		c.Put("c", 3)
		_, ok = c.Peek("a")
		assert.False(t, ok)
	})
}

// TestCache_TTLExpiry 測試 TTL 過期行為
func TestCache_TTLExpiry(t *testing.T) {
	t.Run("entry expires after ttl", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		_, err = c.PutWithTTL("k", "v", 50*time.Millisecond)
		require.NoError(t, err)

		_, ok := c.Get("k")
		require.True(t, ok)

		time.Sleep(120 * time.Millisecond)

		_, ok = c.Get("k")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("expiration counted once per entry", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		_, err = c.PutWithTTL("k", "v", 50*time.Millisecond)
		require.NoError(t, err)

		_, ok := c.Get("k")
		require.True(t, ok)

		time.Sleep(120 * time.Millisecond)

		// 第一次讀到過期條目：移除並計一次過期
		_, ok = c.Get("k")
		assert.False(t, ok)
		// 之後只是單純的未命中，過期不再累加
		_, ok = c.Get("k")
		assert.False(t, ok)

		stats := c.Stats()
		assert.Equal(t, uint64(1), stats.Expirations)
		assert.Equal(t, uint64(1), stats.Hits)
		assert.Equal(t, uint64(2), stats.Misses)
	})

	t.Run("zero ttl expires immediately", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		_, err = c.PutWithTTL("k", "v", 0)
		require.NoError(t, err)
		assert.Equal(t, 1, c.Len())

		time.Sleep(5 * time.Millisecond)

		_, ok := c.Get("k")
		assert.False(t, ok)
		assert.Equal(t, uint64(1), c.Stats().Expirations)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("no ttl never expires", func(t *testing.T) {
		c, err := cache.New[string, string](8, 30*time.Millisecond)
		require.NoError(t, err)

		_, err = c.PutWithTTL("k", "v", cache.NoTTL)
		require.NoError(t, err)

		time.Sleep(90 * time.Millisecond)

		_, ok := c.Get("k")
		assert.True(t, ok)
	})

	t.Run("per-call ttl overrides default", func(t *testing.T) {
		c, err := cache.New[string, string](8, 40*time.Millisecond)
		require.NoError(t, err)

		c.Put("short", "v")
		_, err = c.PutWithTTL("long", "v", cache.NoTTL)
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)

		_, ok := c.Get("short")
		assert.False(t, ok)
		_, ok = c.Get("long")
		assert.True(t, ok)
	})

	t.Run("negative ttl rejected without mutation", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		_, err = c.PutWithTTL("k", "v", -time.Second)
		require.ErrorIs(t, err, cache.ErrNegativeTTL)

		assert.Equal(t, 0, c.Len())
		stats := c.Stats()
		assert.Equal(t, uint64(0), stats.Hits)
		assert.Equal(t, uint64(0), stats.Misses)
	})

	t.Run("put replaces expired entry with fresh instance", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		_, err = c.PutWithTTL("k", "old", 30*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(80 * time.Millisecond)

		// 舊實例以過期退場，新實例依本次 TTL 重新起算
		c.Put("k", "new")
		assert.Equal(t, uint64(1), c.Stats().Expirations)

		value, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, "new", value)
		assert.Equal(t, 1, c.Len())
	})
}

// TestCache_Delete 測試顯式移除
func TestCache_Delete(t *testing.T) {
	c, err := cache.New[string, string](8, cache.NoTTL)
	require.NoError(t, err)

	t.Run("delete existing key", func(t *testing.T) {
		c.Put("k", "v")
		assert.True(t, c.Delete("k"))
		assert.Equal(t, 0, c.Len())

		_, ok := c.Get("k")
		assert.False(t, ok)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		assert.False(t, c.Delete("k"))
		assert.False(t, c.Delete("never-existed"))
	})

	t.Run("delete removes unswept expired entry", func(t *testing.T) {
		_, err := c.PutWithTTL("stale", "v", 20*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)

		// 過期但尚未被清掃的條目仍然佔據空間，刪除應回報存在
		assert.True(t, c.Delete("stale"))
		// 顯式移除不計入過期
		assert.Equal(t, uint64(0), c.Stats().Expirations)
	})
}

// TestCache_Clear 測試清空與統計保留
func TestCache_Clear(t *testing.T) {
	c, err := cache.New[string, int](8, cache.NoTTL)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	_, ok := c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("missing")
	require.False(t, ok)

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())

	// 累積統計跨越 Clear 存續
	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0, stats.CurrentSize)

	// 清空後快取照常運作
	c.Put("c", 3)
	value, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, value)
}

// TestCache_Peek 測試不帶副作用的讀取
func TestCache_Peek(t *testing.T) {
	t.Run("peek does not touch statistics", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		c.Put("k", "v")

		value, ok := c.Peek("k")
		require.True(t, ok)
		assert.Equal(t, "v", value)

		_, ok = c.Peek("missing")
		assert.False(t, ok)

		stats := c.Stats()
		assert.Equal(t, uint64(0), stats.Hits)
		assert.Equal(t, uint64(0), stats.Misses)
	})

	t.Run("peek removes expired entry", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		_, err = c.PutWithTTL("k", "v", 20*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)

		_, ok := c.Peek("k")
		assert.False(t, ok)
		assert.Equal(t, uint64(1), c.Stats().Expirations)
		assert.Equal(t, 0, c.Len())
	})
}

// TestCache_GetOldest 測試最久未使用端的讀取
func TestCache_GetOldest(t *testing.T) {
	t.Run("empty cache", func(t *testing.T) {
		c, err := cache.New[string, string](8, cache.NoTTL)
		require.NoError(t, err)

		_, _, ok := c.GetOldest()
		assert.False(t, ok)
	})

	t.Run("returns least recently used entry", func(t *testing.T) {
		c, err := cache.New[string, int](8, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		key, value, ok := c.GetOldest()
		require.True(t, ok)
		assert.Equal(t, "a", key)
		assert.Equal(t, 1, value)

		// GetOldest 不搬動近期性，重複呼叫結果相同
		key, _, ok = c.GetOldest()
		require.True(t, ok)
		assert.Equal(t, "a", key)
	})

	t.Run("skips expired tail entries", func(t *testing.T) {
		c, err := cache.New[string, int](8, cache.NoTTL)
		require.NoError(t, err)

		_, err = c.PutWithTTL("stale", 1, 20*time.Millisecond)
		require.NoError(t, err)
		c.Put("live", 2)

		time.Sleep(60 * time.Millisecond)

		key, value, ok := c.GetOldest()
		require.True(t, ok)
		assert.Equal(t, "live", key)
		assert.Equal(t, 2, value)
		assert.Equal(t, uint64(1), c.Stats().Expirations)
	})
}

// TestCache_KeysAndLen 測試 key 列舉與數量語意
func TestCache_KeysAndLen(t *testing.T) {
	t.Run("keys ordered oldest first", func(t *testing.T) {
		c, err := cache.New[string, int](8, cache.NoTTL)
		require.NoError(t, err)

		c.Put("x", 1)
		c.Put("y", 2)
		c.Put("z", 3)

		_, ok := c.Get("x")
		require.True(t, ok)

		assert.Equal(t, []string{"y", "z", "x"}, c.Keys())
	})

	t.Run("len counts unswept expired entries", func(t *testing.T) {
		c, err := cache.New[string, int](8, cache.NoTTL)
		require.NoError(t, err)

		c.Put("live", 1)
		_, err = c.PutWithTTL("stale", 2, 20*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)

		// 尚未有任何操作觸及過期條目，數量與列舉都還包含它
		assert.Equal(t, 2, c.Len())
		assert.Equal(t, []string{"live", "stale"}, c.Keys())

		removed := c.CleanupExpired()
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, []string{"live"}, c.Keys())
	})
}

// TestCache_CleanupExpired 測試主動清掃
func TestCache_CleanupExpired(t *testing.T) {
	c, err := cache.New[string, int](8, cache.NoTTL)
	require.NoError(t, err)

	_, err = c.PutWithTTL("a", 1, 20*time.Millisecond)
	require.NoError(t, err)
	_, err = c.PutWithTTL("b", 2, 20*time.Millisecond)
	require.NoError(t, err)
	c.Put("c", 3)
	c.Put("d", 4)

	time.Sleep(60 * time.Millisecond)

	removed := c.CleanupExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(2), c.Stats().Expirations)

	_, ok := c.Get("c")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)

	// 再次清掃沒有東西可移除
	assert.Equal(t, 0, c.CleanupExpired())
}

// TestCache_Resize 測試動態調整容量
func TestCache_Resize(t *testing.T) {
	t.Run("shrink evicts oldest first", func(t *testing.T) {
		c, err := cache.New[string, int](5, cache.NoTTL)
		require.NoError(t, err)

		for i, key := range []string{"a", "b", "c", "d", "e"} {
			c.Put(key, i)
		}

		evicted, err := c.Resize(2)
		require.NoError(t, err)
		assert.Equal(t, 3, evicted)
		assert.Equal(t, 2, c.Len())
		assert.Equal(t, []string{"d", "e"}, c.Keys())
		assert.Equal(t, uint64(3), c.Stats().Evictions)
		assert.Equal(t, 2, c.Stats().Capacity)

		// 新容量立即生效
		c.Put("f", 5)
		assert.Equal(t, 2, c.Len())
		assert.Equal(t, []string{"e", "f"}, c.Keys())
	})

	t.Run("grow never evicts", func(t *testing.T) {
		c, err := cache.New[string, int](2, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)
		c.Put("b", 2)

		evicted, err := c.Resize(10)
		require.NoError(t, err)
		assert.Equal(t, 0, evicted)
		assert.Equal(t, 2, c.Len())

		c.Put("c", 3)
		assert.Equal(t, 3, c.Len())
	})

	t.Run("invalid capacity rejected without mutation", func(t *testing.T) {
		c, err := cache.New[string, int](2, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)
		c.Put("b", 2)

		_, err = c.Resize(0)
		require.ErrorIs(t, err, cache.ErrInvalidCapacity)
		_, err = c.Resize(-5)
		require.ErrorIs(t, err, cache.ErrInvalidCapacity)

		assert.Equal(t, 2, c.Len())
		assert.Equal(t, 2, c.Stats().Capacity)
	})
}

// TestCache_Stats 測試統計計數與命中率
func TestCache_Stats(t *testing.T) {
	t.Run("hit rate over mixed operations", func(t *testing.T) {
		c, err := cache.New[string, int](3, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)
		c.Put("b", 2)
		c.Put("c", 3)

		_, ok := c.Get("a")
		require.True(t, ok)
		_, ok = c.Get("b")
		require.True(t, ok)
		_, ok = c.Get("missing")
		require.False(t, ok)
		require.True(t, c.Contains("c"))
		require.False(t, c.Contains("nope"))

		stats := c.Stats()
		assert.Equal(t, uint64(3), stats.Hits)
		assert.Equal(t, uint64(2), stats.Misses)
		assert.InDelta(t, 0.6, stats.HitRate, 0.0001)
		assert.Equal(t, 3, stats.CurrentSize)
		assert.Equal(t, 3, stats.Capacity)
		assert.Equal(t, uint64(0), stats.Evictions)
		assert.Equal(t, uint64(0), stats.Expirations)
	})

	t.Run("hit rate is zero before any lookup", func(t *testing.T) {
		c, err := cache.New[string, int](3, cache.NoTTL)
		require.NoError(t, err)

		c.Put("a", 1)

		stats := c.Stats()
		assert.Zero(t, stats.HitRate)
		assert.Equal(t, uint64(0), stats.Hits)
		assert.Equal(t, uint64(0), stats.Misses)
	})
}

type evictRecord struct {
	key    string
	value  string
	reason cache.EvictReason
}

// TestCache_EvictCallback 測試各種退場原因的回呼
func TestCache_EvictCallback(t *testing.T) {
	newRecorded := func(capacity int) (*cache.Cache[string, string], *[]evictRecord) {
		var records []evictRecord
		c, err := cache.NewWithEvict[string, string](capacity, cache.NoTTL,
			func(key, value string, reason cache.EvictReason) {
				records = append(records, evictRecord{key, value, reason})
			})
		require.NoError(t, err)
		return c, &records
	}

	t.Run("capacity eviction", func(t *testing.T) {
		c, records := newRecorded(2)

		c.Put("a", "1")
		c.Put("b", "2")
		c.Put("c", "3")

		require.Len(t, *records, 1)
		assert.Equal(t, evictRecord{"a", "1", cache.ReasonCapacity}, (*records)[0])
	})

	t.Run("lazy expiration", func(t *testing.T) {
		c, records := newRecorded(4)

		_, err := c.PutWithTTL("k", "v", 20*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)
		c.Get("k")

		require.Len(t, *records, 1)
		assert.Equal(t, evictRecord{"k", "v", cache.ReasonExpired}, (*records)[0])
	})

	t.Run("overwrite of expired entry reports old value", func(t *testing.T) {
		c, records := newRecorded(4)

		_, err := c.PutWithTTL("k", "old", 20*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)
		c.Put("k", "new")

		require.Len(t, *records, 1)
		assert.Equal(t, evictRecord{"k", "old", cache.ReasonExpired}, (*records)[0])
	})

	t.Run("overwrite of live entry fires nothing", func(t *testing.T) {
		c, records := newRecorded(4)

		c.Put("k", "v1")
		c.Put("k", "v2")

		assert.Empty(t, *records)
	})

	t.Run("explicit delete", func(t *testing.T) {
		c, records := newRecorded(4)

		c.Put("k", "v")
		c.Delete("k")

		require.Len(t, *records, 1)
		assert.Equal(t, evictRecord{"k", "v", cache.ReasonRemoved}, (*records)[0])
	})

	t.Run("clear fires for every entry oldest first", func(t *testing.T) {
		c, records := newRecorded(4)

		c.Put("a", "1")
		c.Put("b", "2")
		c.Clear()

		require.Len(t, *records, 2)
		assert.Equal(t, evictRecord{"a", "1", cache.ReasonRemoved}, (*records)[0])
		assert.Equal(t, evictRecord{"b", "2", cache.ReasonRemoved}, (*records)[1])
	})

	t.Run("shrink fires capacity eviction per entry", func(t *testing.T) {
		c, records := newRecorded(3)

		c.Put("a", "1")
		c.Put("b", "2")
		c.Put("c", "3")

		_, err := c.Resize(1)
		require.NoError(t, err)

		require.Len(t, *records, 2)
		assert.Equal(t, evictRecord{"a", "1", cache.ReasonCapacity}, (*records)[0])
		assert.Equal(t, evictRecord{"b", "2", cache.ReasonCapacity}, (*records)[1])
	})
}

// TestCache_Churn 長時間混合操作下的結構完整性
func TestCache_Churn(t *testing.T) {
	const capacity = 8

	c, err := cache.New[string, int](capacity, cache.NoTTL)
	require.NoError(t, err)

	for i := 0; i < 2000; i++ {
		key := fmt.Sprintf("key-%d", i%16)
		switch i % 5 {
		case 3:
			c.Delete(key)
		case 4:
			c.Get(key)
		default:
			c.Put(key, i)
		}
		require.LessOrEqual(t, c.Len(), capacity)
	}

	keys := c.Keys()
	assert.Equal(t, c.Len(), len(keys))

	// 列舉結果沒有重複，且每個 key 都真的可讀
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true

		_, ok := c.Peek(key)
		assert.True(t, ok, "key %s listed but unreadable", key)
	}
}

// TestCache_ConcurrentAccess 並發混合操作煙霧測試
func TestCache_ConcurrentAccess(t *testing.T) {
	const (
		capacity    = 64
		goroutines  = 8
		opsPerTask  = 500
		keysPerTask = 20
	)

	c, err := cache.New[string, int](capacity, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < opsPerTask; i++ {
				key := fmt.Sprintf("key-%d-%d", id, i%keysPerTask)
				switch i % 4 {
				case 0, 1:
					c.Put(key, i)
				case 2:
					c.Get(key)
				case 3:
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), capacity)
	stats := c.Stats()
	assert.Equal(t, c.Len(), stats.CurrentSize)
}
