package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait 單次寫入的期限
	writeWait = 10 * time.Second
	// pongWait 等待 pong 的期限，超過視為連線死亡
	pongWait = 60 * time.Second
	// pingPeriod 主動 ping 的週期，必須短於 pongWait
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize 訂閱者不應傳送資料，上限設得很小
	maxMessageSize = 512
	// eventBuffer 事件佇列深度，滿載時 Publish 直接丟棄
	eventBuffer = 1024
	// subscriberBuffer 單一訂閱者的發送佇列深度
	subscriberBuffer = 256
)

// Event 快取條目的異動事件
type Event struct {
	// Type 異動原因：capacity、expired 或 removed
	Type string `json:"type"`
	// Key 離開快取的條目 key
	Key string `json:"key"`
	// OccurredAt 事件發生時間
	OccurredAt time.Time `json:"occurred_at"`
}

// EventHub 將快取的移除事件以 WebSocket 廣播給所有訂閱者。
//
// Publish 被設計成可以在快取的移除回呼內呼叫：它只做一次
// 非阻塞的通道傳送，不取鎖、不做 I/O，佇列滿載時直接丟棄事件。
// 廣播本身由獨立的 goroutine 處理，訂閱者跟不上時丟事件不丟連線。
type EventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool

	events  chan Event
	dropped atomic.Uint64
	stopCh  chan struct{}
	wg      sync.WaitGroup
	connWg  sync.WaitGroup
}

type subscriber struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewEventHub 建立事件中心並啟動廣播 goroutine
func NewEventHub(logger *slog.Logger) *EventHub {
	h := &EventHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 開發環境允許所有來源
				return true
			},
		},
		subs:   make(map[*subscriber]struct{}),
		events: make(chan Event, eventBuffer),
		stopCh: make(chan struct{}),
	}

	h.wg.Add(1)
	go h.broadcastLoop()

	return h
}

// Publish 送出一個事件。永不阻塞：佇列滿載時丟棄並累計丟棄數。
func (h *EventHub) Publish(evt Event) {
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// SubscriberCount 目前的訂閱者數量
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeWS 處理 WebSocket 訂閱請求
// GET /ws/events
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, subscriberBuffer),
	}

	if !h.register(sub) {
		conn.Close()
		return
	}

	h.logger.Info("subscriber connected", "remote", r.RemoteAddr)

	h.connWg.Add(2)
	go h.writePump(sub)
	go h.readPump(sub)
}

func (h *EventHub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}
	return true
}

// unregister 將訂閱者移出名單後才關閉它的通道。
// 廣播迴圈在讀鎖內發送，移除與關閉在寫鎖後進行，
// 確保不會對已關閉的通道發送。
func (h *EventHub) unregister(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	if ok {
		sub.closeOnce.Do(func() {
			close(sub.send)
			sub.conn.Close()
		})
	}
}

func (h *EventHub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case evt := <-h.events:
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("failed to marshal event", "error", err)
				continue
			}

			h.mu.RLock()
			for sub := range h.subs {
				select {
				case sub.send <- data:
				default:
					// 訂閱者跟不上：丟事件，不丟連線
				}
			}
			h.mu.RUnlock()

		case <-h.stopCh:
			return
		}
	}
}

// writePump 將事件寫給單一訂閱者，並定期 ping 維持連線
func (h *EventHub) writePump(sub *subscriber) {
	defer h.connWg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.unregister(sub)
				return
			}

		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(sub)
				return
			}
		}
	}
}

// readPump 消化訂閱者的控制訊框，連線死亡時負責善後
func (h *EventHub) readPump(sub *subscriber) {
	defer h.connWg.Done()
	defer h.unregister(sub)

	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Stop 停止廣播並關閉所有訂閱者連線，等待全部 goroutine 結束。
// 只能呼叫一次。
func (h *EventHub) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.unregister(sub)
	}
	h.connWg.Wait()

	if n := h.dropped.Load(); n > 0 {
		h.logger.Warn("events dropped due to saturation", "dropped", n)
	}
}
