package cache

import "time"

// validateTTL 檢查 TTL 是否落在有效值域：NoTTL 或非負時長。
// 除 NoTTL 哨兵值外的負數一律視為呼叫端錯誤。
func validateTTL(ttl time.Duration) error {
	if ttl != NoTTL && ttl < 0 {
		return ErrNegativeTTL
	}
	return nil
}

// expiryFor 解析寫入當下的絕對到期時間。
// NoTTL 對應零值 time.Time，代表永不過期；
// TTL 為零是合法輸入，代表條目在寫入瞬間即到期。
func expiryFor(now time.Time, ttl time.Duration) time.Time {
	if ttl == NoTTL {
		return time.Time{}
	}
	return now.Add(ttl)
}

// expired 判斷條目於 now 是否已過期。
// 邊界為嚴格大於：now 恰好等於 expiresAt 時條目仍然有效。
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && now.After(expiresAt)
}
