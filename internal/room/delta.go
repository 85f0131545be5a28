package room

import "github.com/koopa0/system-design/14-board-game-server/internal/board"

// DeltaKind 對外通知種類
type DeltaKind string

const (
	// DeltaState 一個被接受的動作造成的狀態差異
	DeltaState DeltaKind = "delta"
	// DeltaUnavailable 房間因持久化失敗停止服務
	DeltaUnavailable DeltaKind = "room_unavailable"
)

// Delta 房間往外送的一則通知，依序號遞增送出
type Delta struct {
	RoomID string           `json:"room_id"`
	Seq    uint64           `json:"seq"`
	Kind   DeltaKind        `json:"kind"`
	Player string           `json:"player,omitempty"`
	Action board.ActionType `json:"action,omitempty"`
	Diff   *board.StateDiff `json:"diff,omitempty"`
	Events []board.Event    `json:"events,omitempty"`
}

// Publisher 接收房間通知（WebSocket 廣播、訊息佇列鏡像）
//
// Publish 在房間的 outbox goroutine 中呼叫，不應長時間阻塞。
type Publisher interface {
	Publish(d Delta)
}

// PublisherFunc 函數轉介面
type PublisherFunc func(Delta)

// Publish 實作 Publisher
func (f PublisherFunc) Publish(d Delta) { f(d) }

// Fanout 依序交給多個 Publisher
type Fanout []Publisher

// Publish 實作 Publisher
func (f Fanout) Publish(d Delta) {
	for _, p := range f {
		if p != nil {
			p.Publish(d)
		}
	}
}
