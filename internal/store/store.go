// Package store 房間動作紀錄與快照的持久化
//
// 每個被接受的動作以 (room_id, seq) 為鍵寫入一次；快照帶有 sha256
// 校驗和，恢復時從最新且校驗通過的快照開始重播。
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ActionRecord 一筆被接受的動作
type ActionRecord struct {
	RoomID    string    `json:"room_id"`
	Seq       uint64    `json:"seq"`
	Action    []byte    `json:"action"`
	Diff      []byte    `json:"diff"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot 某個序號下的完整狀態
type Snapshot struct {
	RoomID    string    `json:"room_id"`
	Seq       uint64    `json:"seq"`
	State     []byte    `json:"state"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSnapshot 建立快照並計算校驗和
func NewSnapshot(roomID string, seq uint64, state []byte) Snapshot {
	return Snapshot{
		RoomID:    roomID,
		Seq:       seq,
		State:     state,
		Checksum:  Checksum(state),
		CreatedAt: time.Now().UTC(),
	}
}

// Verify 校驗和是否與內容相符
func (s Snapshot) Verify() bool {
	return s.Checksum != "" && s.Checksum == Checksum(s.State)
}

// Checksum 內容的 sha256（十六進位）
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store 持久化介面
//
// 實作必須可被多個房間並行呼叫。
type Store interface {
	// AppendAction 寫入一筆動作。同一 (room_id, seq) 重寫相同內容視為成功，
	// 內容不同則回傳 SEQUENCE_CONFLICT。
	AppendAction(ctx context.Context, rec ActionRecord) error

	// SaveSnapshot 寫入快照，並只保留最新的 keep 份（keep <= 0 表示全部保留）
	SaveSnapshot(ctx context.Context, snap Snapshot, keep int) error

	// LoadSnapshots 最新的 n 份快照，新的在前
	LoadSnapshots(ctx context.Context, roomID string, n int) ([]Snapshot, error)

	// LoadActions 序號大於 afterSeq 的動作，依序號遞增
	LoadActions(ctx context.Context, roomID string, afterSeq uint64) ([]ActionRecord, error)

	// ListRooms 所有有持久化資料的房間
	ListRooms(ctx context.Context) ([]string, error)

	Close() error
}

// sameAction 判斷重送的動作是否與已存在的一致
func sameAction(a, b []byte) bool {
	return bytes.Equal(a, b)
}
