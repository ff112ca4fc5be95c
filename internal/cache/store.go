package cache

import "time"

// none 表示不存在的槽位索引
const none = -1

// slot 槽位：保存一個快取條目，以及它在近期性串列中的前後鏈結。
// prev 指向較新的鄰居（朝 head），next 指向較舊的鄰居（朝 tail）。
type slot[K comparable, V any] struct {
	key       K
	value     V
	createdAt time.Time // 此條目實例首次寫入的時間
	setAt     time.Time // 最後一次寫入的時間
	expiresAt time.Time // 絕對到期時間，零值代表永不過期
	prev      int
	next      int
}

// store 快取的底層儲存：索引加近期性串列。
//
// 設計考量：
//  1. 條目集中存放在連續的槽位陣列（slots），而非一顆顆獨立配置的
//     串列節點。鄰居以整數索引相互引用，不持有指標。
//  2. index 是 key 到槽位索引的唯一對應，也是條目存在與否的
//     唯一判準；槽位移除後索引進入 free 清單等待重用。
//  3. head 是最近使用端，tail 是最久未使用端。所有串列操作
//     （插入、搬移、摘除）都是 O(1)。
//
// store 本身不做任何同步，一律由 Cache 的互斥鎖保護。
type store[K comparable, V any] struct {
	index map[K]int
	slots []slot[K, V]
	free  []int
	head  int
	tail  int
}

func newStore[K comparable, V any]() store[K, V] {
	return store[K, V]{
		index: make(map[K]int),
		head:  none,
		tail:  none,
	}
}

// size 回傳目前的條目數，不區分存活與尚未清掃的過期條目。
func (st *store[K, V]) size() int {
	return len(st.index)
}

// lookup 以 key 查找槽位索引。
func (st *store[K, V]) lookup(key K) (int, bool) {
	i, ok := st.index[key]
	return i, ok
}

// alloc 取得一個可用的槽位索引，優先重用 free 清單。
func (st *store[K, V]) alloc() int {
	if n := len(st.free); n > 0 {
		i := st.free[n-1]
		st.free = st.free[:n-1]
		return i
	}
	st.slots = append(st.slots, slot[K, V]{})
	return len(st.slots) - 1
}

// insertFront 在最近使用端插入一個全新條目。
// 呼叫端必須保證 key 尚未存在於 index 中。
func (st *store[K, V]) insertFront(key K, value V, now, expiresAt time.Time) {
	i := st.alloc()
	st.slots[i] = slot[K, V]{
		key:       key,
		value:     value,
		createdAt: now,
		setAt:     now,
		expiresAt: expiresAt,
		prev:      none,
		next:      st.head,
	}
	if st.head != none {
		st.slots[st.head].prev = i
	}
	st.head = i
	if st.tail == none {
		st.tail = i
	}
	st.index[key] = i
}

// unlink 將槽位自串列摘除，但保留槽位內容與索引。
func (st *store[K, V]) unlink(i int) {
	p, n := st.slots[i].prev, st.slots[i].next
	if p != none {
		st.slots[p].next = n
	} else {
		st.head = n
	}
	if n != none {
		st.slots[n].prev = p
	} else {
		st.tail = p
	}
}

// moveToFront 將既有槽位搬移到最近使用端。
func (st *store[K, V]) moveToFront(i int) {
	if st.head == i {
		return
	}
	st.unlink(i)
	st.slots[i].prev = none
	st.slots[i].next = st.head
	st.slots[st.head].prev = i
	st.head = i
}

// removeSlot 徹底移除一個槽位：摘除鏈結、刪除索引、歸零內容，
// 並把槽位索引放回 free 清單。歸零是為了讓鍵值不再被陣列引用。
// 回傳移除前的槽位內容，供呼叫端計數與觸發回呼。
func (st *store[K, V]) removeSlot(i int) slot[K, V] {
	removed := st.slots[i]
	st.unlink(i)
	delete(st.index, removed.key)
	st.slots[i] = slot[K, V]{}
	st.free = append(st.free, i)
	return removed
}

// removeKey 以 key 移除條目，回傳移除前的內容與是否存在。
func (st *store[K, V]) removeKey(key K) (slot[K, V], bool) {
	i, ok := st.index[key]
	if !ok {
		var zero slot[K, V]
		return zero, false
	}
	return st.removeSlot(i), true
}

// oldest 回傳最久未使用端的槽位索引。
func (st *store[K, V]) oldest() (int, bool) {
	if st.tail == none {
		return none, false
	}
	return st.tail, true
}

// keysOldestFirst 由最久未使用到最近使用收集所有 key。
func (st *store[K, V]) keysOldestFirst() []K {
	keys := make([]K, 0, len(st.index))
	for i := st.tail; i != none; i = st.slots[i].prev {
		keys = append(keys, st.slots[i].key)
	}
	return keys
}

// clear 丟棄所有條目與底層陣列，讓既有鍵值可被回收。
func (st *store[K, V]) clear() {
	st.index = make(map[K]int)
	st.slots = nil
	st.free = nil
	st.head = none
	st.tail = none
}
