// Package broker 把房間的 delta 鏡像到 NATS
//
// 每個房間一個主題 <prefix>.<room_id>，其他服務（觀戰、回放、統計）訂閱即可，
// 不必連上遊戲伺服器。這是盡力而為的 Core NATS 發佈：權威紀錄在持久化層，
// 鏡像丟失不影響遊戲。
package broker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/koopa0/system-design/14-board-game-server/internal/protocol"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
)

// Publisher 實作 room.Publisher
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect 連接 NATS 並建立發佈者
//
// 選項沿用訊息佇列服務的設定：無限重連、1 秒重連間隔、20 秒心跳。
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("board-game-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return New(conn, prefix, logger), nil
}

// New 用既有連線建立發佈者
func New(conn *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = "rooms"
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject 房間的主題
func (p *Publisher) Subject(roomID string) string {
	return p.prefix + "." + roomID
}

// Publish 實作 room.Publisher；訊息格式與 WebSocket 廣播相同
func (p *Publisher) Publish(d room.Delta) {
	data, err := protocol.Encode(protocol.FromDelta(d))
	if err != nil {
		p.logger.Error("encode delta failed", "room_id", d.RoomID, "seq", d.Seq, "error", err)
		return
	}
	if err := p.conn.Publish(p.Subject(d.RoomID), data); err != nil {
		p.logger.Warn("mirror delta failed",
			"room_id", d.RoomID,
			"seq", d.Seq,
			"error", err)
	}
}

// Close 送出緩衝中的訊息後關閉連線
func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
