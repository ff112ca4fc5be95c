package cache

import (
	"errors"
	"time"
)

// 可供呼叫端以 errors.Is 判別的錯誤
var (
	// ErrInvalidCapacity 容量必須為正數
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrNegativeTTL TTL 不可為負數
	ErrNegativeTTL = errors.New("ttl must not be negative")
)

// NoTTL 表示條目永不因 TTL 過期。
// 它位於有效 TTL 值域之外；注意 TTL 為零與 NoTTL 是兩回事，
// 前者代表條目在寫入瞬間即到期。
const NoTTL time.Duration = -1

// EvictReason 條目離開快取的原因
type EvictReason uint8

const (
	// ReasonCapacity 容量驅逐，包含 Resize 縮小時的批次驅逐
	ReasonCapacity EvictReason = iota + 1
	// ReasonExpired TTL 過期，惰性移除與主動清掃皆屬此類
	ReasonExpired
	// ReasonRemoved 顯式移除，來自 Delete 或 Clear
	ReasonRemoved
)

func (r EvictReason) String() string {
	switch r {
	case ReasonCapacity:
		return "capacity"
	case ReasonExpired:
		return "expired"
	case ReasonRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// EvictFunc 條目移除時的回呼。
// 回呼在快取的互斥鎖內同步執行：必須保持輕量、不得阻塞，
// 也不得回頭呼叫同一個快取，否則會造成死鎖。
type EvictFunc[K comparable, V any] func(key K, value V, reason EvictReason)

// Cache 行程內、容量受限的併發安全快取，結合 LRU 淘汰與 TTL 過期。
//
// 所有方法都可被多個 goroutine 同時呼叫。讀取會搬動近期性串列、
// 也可能觸發惰性過期移除，因此讀與寫一樣是變更操作，
// 全部經過同一把互斥鎖，不存在唯讀快路徑。
//
// 兩種退場機制彼此獨立：容量驅逐只看近期性順序，不因條目
// 即將過期而偏袒；過期移除只看到期時間，不管條目多熱門。
type Cache[K comparable, V any] struct {
	state guarded[core[K, V]]
}

// core 互斥鎖邊界內的完整內部狀態。
// 方法一律假設呼叫端已持有鎖；now 由鎖外取得後傳入，
// 確保單次操作內的時間判斷一致。
type core[K comparable, V any] struct {
	st         store[K, V]
	capacity   int
	defaultTTL time.Duration
	onEvict    EvictFunc[K, V]
	ctr        counters
}

// New 建立容量為 capacity、預設 TTL 為 defaultTTL 的快取。
// capacity 必須為正數；defaultTTL 可為 NoTTL（預設永不過期）、
// 零或任何非負時長。
func New[K comparable, V any](capacity int, defaultTTL time.Duration) (*Cache[K, V], error) {
	return NewWithEvict[K, V](capacity, defaultTTL, nil)
}

// NewWithEvict 建立快取並掛上移除回呼。
// 條目無論因容量驅逐、TTL 過期或顯式移除離開快取，
// 都會以對應的 EvictReason 觸發一次 onEvict。
func NewWithEvict[K comparable, V any](capacity int, defaultTTL time.Duration, onEvict EvictFunc[K, V]) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if err := validateTTL(defaultTTL); err != nil {
		return nil, err
	}
	c := &Cache[K, V]{}
	c.state.s = core[K, V]{
		st:         newStore[K, V](),
		capacity:   capacity,
		defaultTTL: defaultTTL,
		onEvict:    onEvict,
	}
	return c, nil
}

// Put 以預設 TTL 寫入或覆寫一個條目，寫入後條目成為最近使用。
// 寫入新 key 使數量超過容量時，立即驅逐最久未使用的條目，
// 並回傳 true。
func (c *Cache[K, V]) Put(key K, value V) (evicted bool) {
	now := time.Now()
	c.state.do(func(s *core[K, V]) {
		evicted = s.put(key, value, s.defaultTTL, now)
	})
	return evicted
}

// PutWithTTL 以指定 TTL 寫入或覆寫一個條目，覆蓋快取的預設 TTL。
// ttl 為 NoTTL 代表永不過期；為零代表寫入瞬間即到期；
// 其餘負值回傳 ErrNegativeTTL，且不改動任何狀態。
func (c *Cache[K, V]) PutWithTTL(key K, value V, ttl time.Duration) (evicted bool, err error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}
	now := time.Now()
	c.state.do(func(s *core[K, V]) {
		evicted = s.put(key, value, ttl, now)
	})
	return evicted, nil
}

// Get 查詢一個 key。命中時條目成為最近使用並計入 hits；
// 不存在或已過期都視為未命中計入 misses，已過期的條目
// 會在此刻被移除並計入 expirations。
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var (
		value V
		ok    bool
	)
	now := time.Now()
	c.state.do(func(s *core[K, V]) {
		value, ok = s.get(key, now)
	})
	return value, ok
}

// Contains 回報 key 是否存在且未過期。
// 與 Get 相同計入 hits 或 misses、觸發惰性過期移除，
// 唯一差別是不搬動近期性順序。
func (c *Cache[K, V]) Contains(key K) bool {
	var ok bool
	now := time.Now()
	c.state.do(func(s *core[K, V]) {
		ok = s.contains(key, now)
	})
	return ok
}

// Peek 讀取一個 key 的值，但不搬動近期性順序、不計入統計。
// 對已過期條目的行為與 Get 一致：移除並計入 expirations。
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	var (
		value V
		ok    bool
	)
	now := time.Now()
	c.state.do(func(s *core[K, V]) {
		value, ok = s.peek(key, now)
	})
	return value, ok
}

// GetOldest 回傳最久未使用的存活條目，不搬動近期性、不計入命中統計。
// 尾端若累積了已過期的條目，會在此刻被移除並計入 expirations。
func (c *Cache[K, V]) GetOldest() (K, V, bool) {
	var (
		key   K
		value V
		ok    bool
	)
	now := time.Now()
	c.state.do(func(s *core[K, V]) {
		key, value, ok = s.getOldest(now)
	})
	return key, value, ok
}

// Delete 移除一個 key，回傳它先前是否存在。
// 已過期但尚未清掃的條目同樣會被移除並回傳 true，
// 這類移除計為顯式移除而非過期。重複刪除是冪等的無操作。
func (c *Cache[K, V]) Delete(key K) bool {
	var deleted bool
	c.state.do(func(s *core[K, V]) {
		deleted = s.delete(key)
	})
	return deleted
}

// Clear 一次移除所有條目。累積統計計數器保持不變，
// 之後的 Stats 仍回報歷史命中與未命中。
func (c *Cache[K, V]) Clear() {
	c.state.do(func(s *core[K, V]) {
		s.clear()
	})
}

// Len 回傳目前的條目數。已過期但尚未被任何操作觸及的條目
// 仍然計入，直到惰性移除或 CleanupExpired 清掃為止。
func (c *Cache[K, V]) Len() int {
	var n int
	c.state.do(func(s *core[K, V]) {
		n = s.st.size()
	})
	return n
}

// Keys 由最久未使用到最近使用回傳所有 key 的複本。
// 與 Len 相同，不主動過濾尚未清掃的過期條目。
func (c *Cache[K, V]) Keys() []K {
	var keys []K
	c.state.do(func(s *core[K, V]) {
		keys = s.st.keysOldestFirst()
	})
	return keys
}

// CleanupExpired 掃描整個快取，移除所有已過期的條目並回傳移除數量。
// 掃描在鎖內一次完成，期間其他操作會被擋住；
// 這是時間與延遲的取捨，適合由背景工作者以固定週期呼叫。
func (c *Cache[K, V]) CleanupExpired() int {
	var removed int
	now := time.Now()
	c.state.do(func(s *core[K, V]) {
		removed = s.cleanupExpired(now)
	})
	return removed
}

// Resize 調整容量上限並回傳因縮小而被驅逐的條目數。
// 縮小時由最久未使用端依序驅逐直到符合新容量，計入 evictions；
// 放大永遠不驅逐。capacity 不為正數時回傳 ErrInvalidCapacity，
// 且不改動任何狀態。
func (c *Cache[K, V]) Resize(capacity int) (int, error) {
	if capacity <= 0 {
		return 0, ErrInvalidCapacity
	}
	var evicted int
	c.state.do(func(s *core[K, V]) {
		evicted = s.resize(capacity)
	})
	return evicted, nil
}

// Stats 回傳統計快照。
func (c *Cache[K, V]) Stats() Statistics {
	var stats Statistics
	c.state.do(func(s *core[K, V]) {
		stats = s.ctr.snapshot(s.st.size(), s.capacity)
	})
	return stats
}

func (s *core[K, V]) get(key K, now time.Time) (V, bool) {
	var zero V
	i, ok := s.st.lookup(key)
	if !ok {
		s.ctr.misses++
		return zero, false
	}
	if expired(s.st.slots[i].expiresAt, now) {
		s.expireSlot(i)
		s.ctr.misses++
		return zero, false
	}
	s.st.moveToFront(i)
	s.ctr.hits++
	return s.st.slots[i].value, true
}

func (s *core[K, V]) contains(key K, now time.Time) bool {
	i, ok := s.st.lookup(key)
	if !ok {
		s.ctr.misses++
		return false
	}
	if expired(s.st.slots[i].expiresAt, now) {
		s.expireSlot(i)
		s.ctr.misses++
		return false
	}
	s.ctr.hits++
	return true
}

func (s *core[K, V]) peek(key K, now time.Time) (V, bool) {
	var zero V
	i, ok := s.st.lookup(key)
	if !ok {
		return zero, false
	}
	if expired(s.st.slots[i].expiresAt, now) {
		s.expireSlot(i)
		return zero, false
	}
	return s.st.slots[i].value, true
}

func (s *core[K, V]) getOldest(now time.Time) (K, V, bool) {
	for {
		i, ok := s.st.oldest()
		if !ok {
			var (
				zk K
				zv V
			)
			return zk, zv, false
		}
		if expired(s.st.slots[i].expiresAt, now) {
			s.expireSlot(i)
			continue
		}
		return s.st.slots[i].key, s.st.slots[i].value, true
	}
}

func (s *core[K, V]) put(key K, value V, ttl time.Duration, now time.Time) bool {
	if i, ok := s.st.lookup(key); ok {
		if !expired(s.st.slots[i].expiresAt, now) {
			// 覆寫存活條目：就地更新值、寫入時間與到期時間，
			// 不觸發回呼，近期性搬到最前
			s.st.slots[i].value = value
			s.st.slots[i].setAt = now
			s.st.slots[i].expiresAt = expiryFor(now, ttl)
			s.st.moveToFront(i)
			return false
		}
		// 舊實例已過期：先以過期退場，再寫入全新實例
		s.expireSlot(i)
	}
	s.st.insertFront(key, value, now, expiryFor(now, ttl))
	if s.st.size() > s.capacity {
		s.evictOldest()
		return true
	}
	return false
}

func (s *core[K, V]) delete(key K) bool {
	removed, ok := s.st.removeKey(key)
	if !ok {
		return false
	}
	s.callback(removed.key, removed.value, ReasonRemoved)
	return true
}

func (s *core[K, V]) clear() {
	if s.onEvict != nil {
		for i := s.st.tail; i != none; i = s.st.slots[i].prev {
			s.onEvict(s.st.slots[i].key, s.st.slots[i].value, ReasonRemoved)
		}
	}
	s.st.clear()
}

// cleanupExpired 由最久未使用端往前掃描，移除所有已過期的條目。
// 下一個位置在移除前先記下，移除會歸零當前槽位的鏈結。
func (s *core[K, V]) cleanupExpired(now time.Time) int {
	removed := 0
	for i := s.st.tail; i != none; {
		newer := s.st.slots[i].prev
		if expired(s.st.slots[i].expiresAt, now) {
			s.expireSlot(i)
			removed++
		}
		i = newer
	}
	return removed
}

func (s *core[K, V]) resize(capacity int) int {
	s.capacity = capacity
	evicted := 0
	for s.st.size() > capacity {
		s.evictOldest()
		evicted++
	}
	return evicted
}

// expireSlot 以 TTL 過期退場：每個條目實例至多計數一次，
// 因為移除後 index 不再有它，後續查詢只會是單純的未命中。
func (s *core[K, V]) expireSlot(i int) {
	removed := s.st.removeSlot(i)
	s.ctr.expirations++
	s.callback(removed.key, removed.value, ReasonExpired)
}

// evictOldest 容量驅逐最久未使用的條目。
func (s *core[K, V]) evictOldest() {
	i, ok := s.st.oldest()
	if !ok {
		return
	}
	removed := s.st.removeSlot(i)
	s.ctr.evictions++
	s.callback(removed.key, removed.value, ReasonCapacity)
}

func (s *core[K, V]) callback(key K, value V, reason EvictReason) {
	if s.onEvict != nil {
		s.onEvict(key, value, reason)
	}
}
