package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
	"github.com/koopa0/system-design/14-board-game-server/internal/session"
	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
	"github.com/koopa0/system-design/14-board-game-server/pkg/logger"
)

// Handler HTTP 與 WebSocket 請求處理器
type Handler struct {
	rooms    *room.Manager
	sessions *session.Manager
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler 創建處理器
func NewHandler(rooms *room.Manager, sessions *session.Manager, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{
		rooms:    rooms,
		sessions: sessions,
		hub:      hub,
		upgrader: newUpgrader(hub.cfg.AllowedOrigins),
		logger:   logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// 房間管理 API（遊戲動作一律走 WebSocket）
	mux.HandleFunc("POST /api/v1/rooms", wrap(h.createRoom))
	mux.HandleFunc("GET /api/v1/rooms", wrap(h.listRooms))
	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoom))
	mux.HandleFunc("POST /api/v1/rooms/{room_id}/abandon", wrap(h.abandonRoom))
	mux.HandleFunc("POST /api/v1/identities", wrap(h.createIdentity))

	mux.HandleFunc("GET /ws", wrap(h.serveWS))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// createRoom 創建房間
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.Create(r.Context())
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"room_id": rm.ID(),
		"phase":   rm.State().Phase,
	}, http.StatusCreated)
}

// listRooms 列出房間，可用 ?phase= 過濾
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	phase := board.Phase(r.URL.Query().Get("phase"))
	if phase != "" && !phase.Valid() {
		h.errorResponse(w, errors.ErrInvalidInput.WithDetails(fmt.Sprintf("unknown phase %q", phase)))
		return
	}

	rooms := h.rooms.List(phase)
	h.jsonResponse(w, map[string]any{
		"rooms": rooms,
		"total": len(rooms),
	}, http.StatusOK)
}

// getRoom 房間公開狀態
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.Get(r.PathValue("room_id"))
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"summary": rm.Summary(),
		"state":   rm.State(),
	}, http.StatusOK)
}

// abandonRoom 管理端結束整局；玩家只能各自 leave
func (h *Handler) abandonRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")
	ctx := logger.WithRoom(r.Context(), roomID)

	out, err := h.rooms.Submit(ctx, roomID, board.Action{Type: board.ActionAbandon})
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	h.logger.InfoContext(ctx, "room abandoned by admin", "seq", out.Seq)
	h.jsonResponse(w, map[string]any{
		"room_id":         roomID,
		"phase":           board.PhaseEnded,
		"sequence_number": out.Seq,
	}, http.StatusOK)
}

// createIdentity 發放新的玩家身分
func (h *Handler) createIdentity(w http.ResponseWriter, r *http.Request) {
	identity, token, err := h.sessions.NewIdentity(r.Context())
	if err != nil {
		h.errorResponse(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"player_identity": identity,
		"session_token":   token,
	}, http.StatusCreated)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.rooms.Stats()
	conns := h.hub.ConnectionCount()
	total := 0
	for _, n := range conns {
		total += n
	}
	stats["connections"] = total
	h.jsonResponse(w, stats, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode json failed", "error", err)
	}
}

// errorResponse 依錯誤碼決定 HTTP 狀態碼
func (h *Handler) errorResponse(w http.ResponseWriter, err error) {
	var rej *board.Rejection
	if errors.As(err, &rej) {
		h.jsonResponse(w, map[string]any{
			"error": rej.Message,
			"code":  rej.Code,
		}, http.StatusConflict)
		return
	}
	h.jsonResponse(w, map[string]any{
		"error": err.Error(),
		"code":  errors.Code(err),
	}, statusFor(err))
}

func statusFor(err error) int {
	switch errors.Code(err) {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeRoomUnrecoverable:
		return http.StatusGone
	case errors.ErrCodeRoomUnavailable, errors.ErrCodeRoomClosed:
		return http.StatusServiceUnavailable
	case errors.ErrCodeInvalidSession, errors.ErrCodeUnknownIdentity:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// loggerMiddleware 日誌中間件，附帶 request id
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic while handling request",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, errors.New(errors.ErrCodeInternal, "internal server error"))
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack WebSocket 升級需要底層連線
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
