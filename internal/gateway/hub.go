// Package gateway WebSocket 傳輸層與管理用 HTTP 介面
//
// 系統設計問題：
//
//	如何把房間的有序 delta 推送給每個房間的所有連線？
//
// 核心挑戰：
//  1. 順序：每個房間的 delta 必須依序號送達，客戶端靠序號偵測缺口
//  2. 慢客戶端：不能拖累房間 actor 或其他玩家
//  3. 死連線：網路異常時要能察覺並觸發斷線寬限期
//
// 設計方案：
//   - Hub 模式：map[roomID]map[identity]*Connection 集中管理連線
//   - 房間的 outbox 已經保證發佈順序，Hub 只負責依序放進每條連線的緩衝 channel
//   - 緩衝區滿就關閉該連線，客戶端重連後取得完整狀態
//   - Ping/Pong 心跳（預設 54s/60s）
package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/protocol"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
)

// HubConfig 連線參數
type HubConfig struct {
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	HandshakeTimeout time.Duration
	SendBuffer       int
	SubmitTimeout    time.Duration
	// AllowedOrigins 為空時接受所有來源
	AllowedOrigins []string
}

// DefaultHubConfig 預設連線參數
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:     54 * time.Second,
		PongWait:         60 * time.Second,
		WriteWait:        10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		SendBuffer:       256,
		SubmitTimeout:    5 * time.Second,
	}
}

func (c HubConfig) withDefaults() HubConfig {
	d := DefaultHubConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 10 / 9
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	return c
}

// Hub WebSocket 連線中心，實作 room.Publisher
//
// 並發安全：RWMutex。廣播持讀鎖；註冊、移動、註銷持寫鎖。
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]map[string]*Connection // roomID -> identity -> Connection
	lobby       map[string]*Connection            // 尚未進入房間的連線
}

// NewHub 創建 Hub
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:         cfg.withDefaults(),
		logger:      logger,
		connections: make(map[string]map[string]*Connection),
		lobby:       make(map[string]*Connection),
	}
}

// Publish 實作 room.Publisher：把 delta 依序放進房間每條連線的緩衝區
//
// 由房間的 outbox goroutine 呼叫，同一房間的呼叫天然是序列化的。
func (hub *Hub) Publish(d room.Delta) {
	message, err := protocol.Encode(protocol.FromDelta(d))
	if err != nil {
		hub.logger.Error("encode delta failed", "room_id", d.RoomID, "seq", d.Seq, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, conn := range hub.connections[d.RoomID] {
		if !conn.enqueue(message) {
			hub.logger.Warn("send buffer full, dropping connection",
				"room_id", d.RoomID,
				"player_id", conn.identity)
		}
	}
}

// register 登記連線；roomID 非空時先推送完整狀態再加入房間
//
// 讀取狀態與加入廣播名單在同一把寫鎖內完成：
// 序號大於該狀態的 delta 一定在解鎖之後才發佈，不會漏送；
// 序號不大於它的 delta 可能重複送達，客戶端依序號忽略。
func (hub *Hub) register(conn *Connection, r *room.Room) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.detachLocked(conn)

	if r == nil {
		conn.roomID = ""
		hub.lobby[conn.identity] = conn
		return
	}

	conn.roomID = r.ID()
	if hub.connections[conn.roomID] == nil {
		hub.connections[conn.roomID] = make(map[string]*Connection)
	}
	hub.pushState(conn, r.State())
	hub.connections[conn.roomID][conn.identity] = conn
}

// unregister 取消登記；只移除同一個連線物件，不影響已取代它的新連線
func (hub *Hub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.detachLocked(conn)
	conn.close()
}

// detachLocked 從目前的位置移除連線；需持有寫鎖
func (hub *Hub) detachLocked(conn *Connection) {
	if actual, ok := hub.lobby[conn.identity]; ok && actual == conn {
		delete(hub.lobby, conn.identity)
	}
	roomConns, ok := hub.connections[conn.roomID]
	if !ok {
		return
	}
	if actual, ok := roomConns[conn.identity]; ok && actual == conn {
		delete(roomConns, conn.identity)
		if len(roomConns) == 0 {
			delete(hub.connections, conn.roomID)
		}
	}
}

// sync 推送完整狀態給單一連線（客戶端偵測到序號缺口）
func (hub *Hub) sync(conn *Connection, s *board.State) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	hub.pushState(conn, s)
}

func (hub *Hub) pushState(conn *Connection, s *board.State) {
	message, err := protocol.Encode(protocol.FullState(s))
	if err != nil {
		hub.logger.Error("encode full state failed", "room_id", s.RoomID, "error", err)
		return
	}
	conn.enqueue(message)
}

// Stop 關閉所有連線
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, roomConns := range hub.connections {
		for _, conn := range roomConns {
			conn.close()
		}
	}
	for _, conn := range hub.lobby {
		conn.close()
	}
	hub.connections = make(map[string]map[string]*Connection)
	hub.lobby = make(map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("websocket hub stopped")
}

// ConnectionCount 每個房間的連線數
func (hub *Hub) ConnectionCount() map[string]int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	result := make(map[string]int, len(hub.connections))
	for roomID, conns := range hub.connections {
		result[roomID] = len(conns)
	}
	return result
}
