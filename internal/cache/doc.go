// Package cache 實作行程內、容量受限的併發安全快取，
// 結合 LRU 淘汰與 TTL 過期兩種彼此獨立的退場機制。
//
// 系統設計問題：
//
// 如何在固定的條目數上限內，以 O(1) 的讀寫成本同時滿足
// 「記憶體吃緊時淘汰最沒價值的條目」與「資料不得超過保鮮期」？
//
// 核心設計：
//
//  1. 索引加近期性串列：map 提供 O(1) 查找，侵入式雙向串列維持
//     嚴格的使用順序，頭端是最近使用、尾端是最久未使用。
//     條目集中存放在連續的槽位陣列，鄰居以整數索引相互引用，
//     key 到槽位的 map 是唯一的所有權結構。
//
//  2. 過期策略：每個條目保存絕對到期時間，讀取時惰性移除，
//     另提供全量清掃供背景工作者（Janitor）定期呼叫。
//     過期與容量驅逐互不干涉：快滿時不會偏袒快過期的條目，
//     快過期的條目也不受驅逐豁免。
//
//  3. 單一互斥邊界：讀取會搬動近期性、可能觸發惰性移除，
//     所以讀與寫一樣是變更操作，全部經過同一把互斥鎖，
//     不存在唯讀快路徑。鎖內只做指標搬動與計數，從不做 I/O。
//
// 使用範例：
//
//	c, err := cache.New[string, string](1024, 5*time.Minute)
//	if err != nil {
//		return err
//	}
//	c.Put("session:42", "alice")
//	if v, ok := c.Get("session:42"); ok {
//		fmt.Println(v)
//	}
package cache
