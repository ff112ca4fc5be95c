package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// snapshotEntry 快照中單一條目的持久化形狀。
// 到期時間以絕對時刻保存，載入時換算回剩餘 TTL。
type snapshotEntry[K comparable, V any] struct {
	Key       K          `json:"key"`
	Value     V          `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type snapshotFile[K comparable, V any] struct {
	SavedAt time.Time             `json:"saved_at"`
	Entries []snapshotEntry[K, V] `json:"entries"`
}

// Export 將所有存活條目序列化為 JSON 寫入 w。
// 匯出前先執行一次過期清掃，邏輯上已死亡的條目不會被保存。
// 條目由最久未使用到最近使用排列，依序重放寫入即可還原近期性順序。
// 收集在鎖內完成、編碼在鎖外進行，I/O 不會擋住快取操作。
// K 與 V 必須可被 encoding/json 序列化。
func (c *Cache[K, V]) Export(w io.Writer) error {
	now := time.Now()
	snap := snapshotFile[K, V]{SavedAt: now}
	c.state.do(func(s *core[K, V]) {
		s.cleanupExpired(now)
		snap.Entries = make([]snapshotEntry[K, V], 0, s.st.size())
		for i := s.st.tail; i != none; i = s.st.slots[i].prev {
			e := snapshotEntry[K, V]{
				Key:   s.st.slots[i].key,
				Value: s.st.slots[i].value,
			}
			if !s.st.slots[i].expiresAt.IsZero() {
				t := s.st.slots[i].expiresAt
				e.ExpiresAt = &t
			}
			snap.Entries = append(snap.Entries, e)
		}
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Import 從 r 讀回先前匯出的快照，逐筆重放寫入。
// 每筆條目的剩餘 TTL 以 expires_at 減去載入當下的時間換算，
// 換算後已過期的條目直接略過。回傳實際寫入的條目數。
func (c *Cache[K, V]) Import(r io.Reader) (int, error) {
	var snap snapshotFile[K, V]
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}

	now := time.Now()
	restored := 0
	for _, e := range snap.Entries {
		ttl := NoTTL
		if e.ExpiresAt != nil {
			ttl = e.ExpiresAt.Sub(now)
			if ttl <= 0 {
				continue
			}
		}
		if _, err := c.PutWithTTL(e.Key, e.Value, ttl); err != nil {
			return restored, fmt.Errorf("restore key %v: %w", e.Key, err)
		}
		restored++
	}
	return restored, nil
}

// SaveFile 將快照寫入檔案，既有內容會被覆蓋。
func (c *Cache[K, V]) SaveFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := c.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}
	return nil
}

// LoadFile 從檔案讀回快照，回傳實際寫入的條目數。
func (c *Cache[K, V]) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	return c.Import(f)
}
