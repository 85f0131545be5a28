package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/protocol"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
	"github.com/koopa0/system-design/14-board-game-server/internal/session"
	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
	"github.com/koopa0/system-design/14-board-game-server/pkg/logger"
)

const maxMessageSize = 64 << 10

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return slices.Contains(allowed, r.Header.Get("Origin"))
		},
	}
}

// serveWS 升級連線並完成握手
//
// 握手成功後 welcome 一定是第一個訊框，接著是房間的完整狀態（若已綁定房間）。
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	binding, token, err := h.handshake(r.Context(), ws)
	if err != nil {
		h.refuse(ws, err)
		return
	}

	var rm *room.Room
	if binding.RoomID != "" {
		if rm, err = h.rooms.Get(binding.RoomID); err != nil {
			h.sessions.Detach(binding.Identity, binding.Generation)
			h.refuse(ws, err)
			return
		}
	}

	welcome := protocol.Welcomed(binding.Identity, token, binding.RoomID)
	if err := h.writeFrame(ws, welcome); err != nil {
		h.sessions.Detach(binding.Identity, binding.Generation)
		ws.Close()
		return
	}

	conn := newConnection(h.hub, ws, binding.Identity, token, binding.Generation)
	h.hub.register(conn, rm)

	go conn.writePump()
	go conn.readPump(h.dispatch, h.connectionClosed)

	h.logger.Info("websocket connection established",
		"room_id", binding.RoomID,
		"player_id", binding.Identity,
		"generation", binding.Generation)
}

// handshake 讀取 hello 並綁定會話
func (h *Handler) handshake(ctx context.Context, ws *websocket.Conn) (session.Binding, string, error) {
	if err := ws.SetReadDeadline(time.Now().Add(h.hub.cfg.HandshakeTimeout)); err != nil {
		return session.Binding{}, "", err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return session.Binding{}, "", errors.Wrap(err, errors.ErrCodeInvalidInput, "read hello")
	}

	hello, err := protocol.DecodeHello(data)
	if err != nil {
		return session.Binding{}, "", err
	}

	identity, token := hello.PlayerIdentity, hello.SessionToken
	if hello.NewIdentity {
		if identity, token, err = h.sessions.NewIdentity(ctx); err != nil {
			return session.Binding{}, "", err
		}
	}

	b, err := h.sessions.Attach(ctx, identity, token, hello.RoomID)
	if err != nil {
		return session.Binding{}, "", err
	}
	return b, token, nil
}

// refuse 送出 rejected 後關閉連線
func (h *Handler) refuse(ws *websocket.Conn, err error) {
	frame := protocol.Refused(err)
	h.logger.Info("handshake rejected", "reason_code", frame.ReasonCode, "error", err)

	_ = h.writeFrame(ws, frame)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, frame.ReasonCode),
		time.Now().Add(time.Second))
	ws.Close()
}

func (h *Handler) writeFrame(ws *websocket.Conn, v any) error {
	if err := ws.SetWriteDeadline(time.Now().Add(h.hub.cfg.WriteWait)); err != nil {
		return err
	}
	return ws.WriteJSON(v)
}

func (h *Handler) connectionClosed(c *Connection) {
	h.sessions.Detach(c.identity, c.generation)
	h.logger.Info("websocket connection closed", "player_id", c.identity)
}

// dispatch 處理一個動作信封
//
// 同一條連線的訊息在 readPump 中依序處理；不同連線的動作由房間 actor 串行化。
func (h *Handler) dispatch(c *Connection, data []byte) {
	bound := c.room()

	in, err := protocol.DecodeInbound(data)
	if err != nil {
		h.reply(c, h.reject(bound, err, 0))
		return
	}
	echo := in.ClientSequenceEcho

	if in.PlayerIdentity != c.identity ||
		subtle.ConstantTimeCompare([]byte(in.SessionToken), []byte(c.token)) != 1 {
		h.reply(c, h.reject(bound, errors.ErrInvalidSession, echo))
		return
	}

	roomID := in.RoomID
	if roomID == "" {
		roomID = bound
	}
	if bound != "" && roomID != bound {
		h.reply(c, h.reject(bound, errors.ErrInvalidSession.WithDetails("room does not match the bound session"), echo))
		return
	}
	if roomID == "" {
		h.reply(c, h.reject("", errors.ErrRoomNotFound, echo))
		return
	}

	rm, err := h.rooms.Get(roomID)
	if err != nil {
		h.reply(c, h.reject(roomID, err, echo))
		return
	}

	if in.IsSync() {
		if bound == "" {
			h.reply(c, h.reject(roomID, errors.ErrRoomNotFound.WithDetails("not in a room"), echo))
			return
		}
		h.hub.sync(c, rm.State())
		return
	}

	a, err := in.Action()
	if err != nil {
		h.reply(c, h.reject(roomID, err, echo))
		return
	}
	// 還沒進房的連線只能送出 join
	if bound == "" && a.Type != board.ActionJoin {
		h.reply(c, h.reject(roomID, &board.Rejection{Code: board.UnknownPlayer, Message: "join the room first"}, echo))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.hub.cfg.SubmitTimeout)
	defer cancel()
	ctx = logger.WithPlayer(logger.WithRoom(ctx, roomID), c.identity)

	out, err := rm.Submit(ctx, a)
	if err != nil {
		h.logger.DebugContext(ctx, "action rejected", "action", a.Type, "error", err)
		h.reply(c, h.reject(roomID, err, echo))
		return
	}
	h.reply(c, protocol.Ack(roomID, out, echo))

	if bound == "" {
		h.sessions.Bind(c.identity, roomID)
		h.hub.register(c, rm)
	}
}

// reject 組出拒絕信封；序號帶房間目前已提交的序號
func (h *Handler) reject(roomID string, err error, echo uint64) protocol.Outbound {
	var seq uint64
	if roomID != "" {
		if rm, getErr := h.rooms.Get(roomID); getErr == nil {
			seq = rm.State().Seq
		}
	}
	code, msg := protocol.ReasonCode(err)
	return protocol.Reject(roomID, seq, code, msg, echo)
}

func (h *Handler) reply(c *Connection, out protocol.Outbound) {
	message, err := protocol.Encode(out)
	if err != nil {
		h.logger.Error("encode reply failed", "error", err)
		return
	}
	c.enqueue(message)
}
