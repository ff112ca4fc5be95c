// Package server 將快取操作暴露為 REST API 與 WebSocket 事件串流
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/localcache/internal/cache"
	apperrors "github.com/koopa0/localcache/pkg/errors"
	"github.com/koopa0/localcache/pkg/logger"
)

// Handler HTTP 處理器。值以原始 JSON 形式存放，
// 服務層不解釋也不重新編碼呼叫端的資料。
type Handler struct {
	cache  *cache.Cache[string, json.RawMessage]
	logger *slog.Logger
}

// NewHandler 建立 HTTP 處理器
func NewHandler(c *cache.Cache[string, json.RawMessage], logger *slog.Logger) *Handler {
	return &Handler{
		cache:  c,
		logger: logger,
	}
}

// Routes 註冊所有路由並掛上中介層
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.requestID(h.loggerMiddleware(handler)))
	}

	mux.HandleFunc("PUT /api/v1/cache/{key}", wrap(h.put))
	mux.HandleFunc("GET /api/v1/cache/{key}", wrap(h.get))
	mux.HandleFunc("DELETE /api/v1/cache/{key}", wrap(h.remove))
	mux.HandleFunc("GET /api/v1/cache/{key}/peek", wrap(h.peek))
	mux.HandleFunc("GET /api/v1/cache/{key}/exists", wrap(h.exists))
	mux.HandleFunc("DELETE /api/v1/cache", wrap(h.clear))
	mux.HandleFunc("GET /api/v1/keys", wrap(h.keys))
	mux.HandleFunc("GET /api/v1/stats", wrap(h.stats))
	mux.HandleFunc("POST /api/v1/cleanup", wrap(h.cleanup))
	mux.HandleFunc("PUT /api/v1/capacity", wrap(h.resize))
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /ready", wrap(h.ready))

	return mux
}

// 請求與回應結構

type putRequest struct {
	// Value 任意 JSON 值，原樣保存
	Value json.RawMessage `json:"value"`
	// TTLSeconds 本次寫入的存活秒數，省略時使用快取預設
	TTLSeconds *float64 `json:"ttl_seconds,omitempty"`
	// NoExpiry 為 true 時此條目永不過期
	NoExpiry bool `json:"no_expiry,omitempty"`
}

type putResponse struct {
	Success bool `json:"success"`
	Evicted bool `json:"evicted"`
}

type getResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type existsResponse struct {
	Key    string `json:"key"`
	Exists bool   `json:"exists"`
}

type removeResponse struct {
	Success bool `json:"success"`
	Deleted bool `json:"deleted"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type keysResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

type cleanupResponse struct {
	Success bool `json:"success"`
	Removed int  `json:"removed"`
}

type resizeRequest struct {
	Capacity int `json:"capacity"`
}

type resizeResponse struct {
	Success  bool `json:"success"`
	Capacity int  `json:"capacity"`
	Evicted  int  `json:"evicted"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// put 寫入或覆寫一個條目
// PUT /api/v1/cache/{key}
func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "key is required")
		return
	}

	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Value) == 0 {
		h.respondError(w, http.StatusBadRequest, "value is required")
		return
	}
	if req.NoExpiry && req.TTLSeconds != nil {
		h.respondError(w, http.StatusBadRequest, "ttl_seconds and no_expiry are mutually exclusive")
		return
	}
	// 負的 ttl_seconds 在轉成 Duration 時會向零截斷，
	// 次奈秒的負值甚至會湊巧落在永不過期的哨兵值上，
	// 必須在轉換前以原始數值驗證
	if req.TTLSeconds != nil && *req.TTLSeconds < 0 {
		h.respondAppError(w, apperrors.ErrInvalidTTL)
		return
	}

	var (
		evicted bool
		err     error
	)
	switch {
	case req.NoExpiry:
		evicted, err = h.cache.PutWithTTL(key, req.Value, cache.NoTTL)
	case req.TTLSeconds != nil:
		ttl := time.Duration(*req.TTLSeconds * float64(time.Second))
		evicted, err = h.cache.PutWithTTL(key, req.Value, ttl)
	default:
		evicted = h.cache.Put(key, req.Value)
	}
	if err != nil {
		h.respondAppError(w, apperrors.ErrInvalidTTL)
		return
	}

	h.respondJSON(w, http.StatusOK, putResponse{Success: true, Evicted: evicted})
}

// get 讀取一個條目，已過期視同不存在
// GET /api/v1/cache/{key}
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, ok := h.cache.Get(key)
	if !ok {
		h.respondAppError(w, apperrors.ErrKeyNotFound)
		return
	}

	h.respondJSON(w, http.StatusOK, getResponse{Key: key, Value: value})
}

// remove 移除一個條目，冪等
// DELETE /api/v1/cache/{key}
func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	deleted := h.cache.Delete(key)
	h.respondJSON(w, http.StatusOK, removeResponse{Success: true, Deleted: deleted})
}

// peek 讀取條目但不影響近期性與統計
// GET /api/v1/cache/{key}/peek
func (h *Handler) peek(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, ok := h.cache.Peek(key)
	if !ok {
		h.respondAppError(w, apperrors.ErrKeyNotFound)
		return
	}

	h.respondJSON(w, http.StatusOK, getResponse{Key: key, Value: value})
}

// exists 查詢條目是否存在，與讀取相同計入命中統計
// GET /api/v1/cache/{key}/exists
func (h *Handler) exists(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	h.respondJSON(w, http.StatusOK, existsResponse{
		Key:    key,
		Exists: h.cache.Contains(key),
	})
}

// clear 清空快取，統計計數器保留
// DELETE /api/v1/cache
func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	h.respondJSON(w, http.StatusOK, successResponse{Success: true})
}

// keys 列出所有 key，由最久未使用到最近使用
// GET /api/v1/keys
func (h *Handler) keys(w http.ResponseWriter, r *http.Request) {
	keys := h.cache.Keys()
	if keys == nil {
		keys = []string{}
	}

	h.respondJSON(w, http.StatusOK, keysResponse{Keys: keys, Count: len(keys)})
}

// stats 回傳統計快照
// GET /api/v1/stats
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.cache.Stats())
}

// cleanup 立即執行一次過期清掃
// POST /api/v1/cleanup
func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.CleanupExpired()
	h.respondJSON(w, http.StatusOK, cleanupResponse{Success: true, Removed: removed})
}

// resize 調整容量上限
// PUT /api/v1/capacity
func (h *Handler) resize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	evicted, err := h.cache.Resize(req.Capacity)
	if err != nil {
		h.respondAppError(w, apperrors.ErrInvalidCapacity)
		return
	}

	h.respondJSON(w, http.StatusOK, resizeResponse{
		Success:  true,
		Capacity: req.Capacity,
		Evicted:  evicted,
	})
}

// health 存活探測
// GET /health
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready 就緒探測
// GET /ready
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// 中介層

// requestID 為每個請求產生追蹤 ID，注入上下文並回寫到回應標頭
func (h *Handler) requestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(ctx))
	}
}

// loggerMiddleware 記錄每個請求的方法、路徑、狀態碼與耗時
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(rw, r)

		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start),
		)
	}
}

// recoverer 攔截處理器恐慌，回應 500 並留下紀錄
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"panic", rec,
					"path", r.URL.Path,
				)
				h.respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next(w, r)
	}
}

// responseWriter 攔截狀態碼供日誌使用
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.written = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// 回應輔助函式

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}

// respondAppError 依錯誤代碼決定 HTTP 狀態碼
func (h *Handler) respondAppError(w http.ResponseWriter, err *apperrors.AppError) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsInvalidInput(err):
		status = http.StatusBadRequest
	}

	h.respondJSON(w, status, errorResponse{Error: err.Message, Code: err.Code})
}
