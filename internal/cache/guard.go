package cache

import "sync"

// guarded 以單一互斥鎖包裹內部狀態 S。
// 所有操作都透過 do 以閉包形式進入臨界區，將「先取鎖、再碰狀態」
// 變成型別上的必然：狀態欄位不對外暴露，閉包之外拿不到 *S。
// 鎖的釋放由 defer 保證，涵蓋閉包內的每一條返回與恐慌路徑。
type guarded[S any] struct {
	mu sync.Mutex
	s  S
}

func (g *guarded[S]) do(fn func(*S)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.s)
}
