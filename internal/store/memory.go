package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// Memory 記憶體實作，用於測試與單機開發
type Memory struct {
	mu        sync.RWMutex
	actions   map[string][]ActionRecord
	snapshots map[string][]Snapshot
}

// NewMemory 建立記憶體儲存
func NewMemory() *Memory {
	return &Memory{
		actions:   make(map[string][]ActionRecord),
		snapshots: make(map[string][]Snapshot),
	}
}

// AppendAction 實作 Store
func (m *Memory) AppendAction(ctx context.Context, rec ActionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.actions[rec.RoomID]
	i, found := slices.BinarySearchFunc(list, rec.Seq, func(r ActionRecord, seq uint64) int {
		switch {
		case r.Seq < seq:
			return -1
		case r.Seq > seq:
			return 1
		}
		return 0
	})
	if found {
		if sameAction(list[i].Action, rec.Action) {
			return nil
		}
		return errors.ErrSequenceConflict.WithDetails(fmt.Sprintf("room %s seq %d", rec.RoomID, rec.Seq))
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Action = slices.Clone(rec.Action)
	rec.Diff = slices.Clone(rec.Diff)
	m.actions[rec.RoomID] = slices.Insert(list, i, rec)
	return nil
}

// SaveSnapshot 實作 Store
func (m *Memory) SaveSnapshot(ctx context.Context, snap Snapshot, keep int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Checksum == "" {
		return fmt.Errorf("snapshot %s@%d: missing checksum", snap.RoomID, snap.Seq)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap.State = slices.Clone(snap.State)
	list := slices.DeleteFunc(m.snapshots[snap.RoomID], func(s Snapshot) bool {
		return s.Seq == snap.Seq
	})
	list = append(list, snap)
	sort.Slice(list, func(i, j int) bool { return list[i].Seq > list[j].Seq })
	if keep > 0 && len(list) > keep {
		list = list[:keep]
	}
	m.snapshots[snap.RoomID] = list
	return nil
}

// LoadSnapshots 實作 Store
func (m *Memory) LoadSnapshots(ctx context.Context, roomID string, n int) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.snapshots[roomID]
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	out := make([]Snapshot, len(list))
	for i, s := range list {
		s.State = slices.Clone(s.State)
		out[i] = s
	}
	return out, nil
}

// LoadActions 實作 Store
func (m *Memory) LoadActions(ctx context.Context, roomID string, afterSeq uint64) ([]ActionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ActionRecord
	for _, r := range m.actions[roomID] {
		if r.Seq > afterSeq {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListRooms 實作 Store
func (m *Memory) ListRooms(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{}, len(m.snapshots))
	for id := range m.snapshots {
		seen[id] = struct{}{}
	}
	for id := range m.actions {
		seen[id] = struct{}{}
	}
	rooms := make([]string, 0, len(seen))
	for id := range seen {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms, nil
}

// Corrupt 竄改指定快照的內容，模擬儲存層資料損毀
func (m *Memory) Corrupt(roomID string, seq uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.snapshots[roomID] {
		if m.snapshots[roomID][i].Seq == seq {
			m.snapshots[roomID][i].State = append(slices.Clone(m.snapshots[roomID][i].State), ' ', 'x')
			return true
		}
	}
	return false
}

// DropAction 刪除一筆動作，模擬序號缺口
func (m *Memory) DropAction(roomID string, seq uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.actions[roomID]
	for i := range list {
		if list[i].Seq == seq {
			m.actions[roomID] = slices.Delete(list, i, i+1)
			return true
		}
	}
	return false
}

// Close 實作 Store
func (m *Memory) Close() error { return nil }
