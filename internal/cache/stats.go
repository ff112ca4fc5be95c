package cache

// Statistics 快取統計的某一時刻快照。
// 計數器自快取建立起累積，Clear 也不會歸零；
// CurrentSize 與 Capacity 則反映快照當下的狀態。
type Statistics struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	CurrentSize int     `json:"current_size"`
	Capacity    int     `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
}

// counters 累積計數器，由 Cache 的互斥鎖保護。
// 驅逐（容量）與過期（TTL）是兩種不同的退場原因，分開計數。
type counters struct {
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

// snapshot 在鎖內組出對外的統計快照。
// 命中率在此刻計算：int 除法會截斷，必須先轉浮點數；
// 尚無任何查詢時命中率定義為 0。
func (c counters) snapshot(size, capacity int) Statistics {
	s := Statistics{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		CurrentSize: size,
		Capacity:    capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
