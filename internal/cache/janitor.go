package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Janitor 週期性執行過期清掃的背景工作者。
// Cache 本身不啟動任何 goroutine；惰性過期只處理被查詢碰到的條目，
// 再也不會被讀取的冷門條目需要 Janitor 定期清掃，記憶體才能釋放。
type Janitor[K comparable, V any] struct {
	cache    *Cache[K, V]
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewJanitor 建立並立即啟動清掃工作者。interval 必須為正數。
func NewJanitor[K comparable, V any](c *Cache[K, V], interval time.Duration, logger *slog.Logger) *Janitor[K, V] {
	j := &Janitor[K, V]{
		cache:    c,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	j.wg.Add(1)
	go j.run()

	return j
}

func (j *Janitor[K, V]) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := j.cache.CleanupExpired(); removed > 0 {
				j.logger.Debug("expired entries swept", "removed", removed)
			}
		case <-j.stopCh:
			j.logger.Debug("janitor stopped")
			return
		}
	}
}

// Stop 停止清掃並等待背景 goroutine 結束。只能呼叫一次。
func (j *Janitor[K, V]) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}
