package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection 一條已完成握手的 WebSocket 連線
type Connection struct {
	identity   string
	token      string
	generation uint64
	roomID     string // 由 Hub 在持鎖時更新

	conn *websocket.Conn
	hub  *Hub

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newConnection(hub *Hub, ws *websocket.Conn, identity, token string, generation uint64) *Connection {
	return &Connection{
		identity:   identity,
		token:      token,
		generation: generation,
		conn:       ws,
		hub:        hub,
		send:       make(chan []byte, hub.cfg.SendBuffer),
	}
}

// enqueue 放進發送緩衝區；緩衝區滿時關閉連線並回傳 false
func (c *Connection) enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

// close 關閉發送 channel，writePump 隨後送出 close frame
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Connection) room() string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.roomID
}

// readPump 讀取客戶端訊息
//
// 心跳（讀取端）：PongWait 內沒有收到任何訊息（包括 Pong）就視為死連線。
// 結束時通知 Hub 與會話層，觸發斷線寬限期。
func (c *Connection) readPump(handle func(*Connection, []byte), done func(*Connection)) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		done(c)
	}()

	pongWait := c.hub.cfg.PongWait
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("set read deadline failed", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.logger.Error("set read deadline failed", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error",
					"error", err,
					"room_id", c.room(),
					"player_id", c.identity)
			}
			return
		}
		if messageType == websocket.TextMessage {
			handle(c, message)
		}
	}
}

// writePump 把緩衝區的訊息寫到客戶端，並定期送出 Ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := c.hub.cfg.WriteWait
	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("set write deadline failed", "error", err)
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("set write deadline failed", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
