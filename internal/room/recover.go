package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/store"
	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// Rehydrate 從持久層重建房間狀態
//
// 由新到舊嘗試最多 keep 份快照：校驗和不符或無法解碼就換下一份，
// 接著重播序號更大的動作，序號必須連續。全部失敗回傳 ROOM_UNRECOVERABLE。
func Rehydrate(ctx context.Context, st store.Store, roomID string, keep int, logger *slog.Logger) (*board.State, error) {
	snaps, err := st.LoadSnapshots(ctx, roomID, keep)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	lastErr := fmt.Errorf("no snapshot for room %s", roomID)
	for _, snap := range snaps {
		if !snap.Verify() {
			logger.Warn("snapshot checksum mismatch, trying older",
				"room_id", roomID,
				"seq", snap.Seq)
			lastErr = fmt.Errorf("snapshot %d: checksum mismatch", snap.Seq)
			continue
		}

		var base board.State
		if err := json.Unmarshal(snap.State, &base); err != nil {
			lastErr = fmt.Errorf("snapshot %d: %w", snap.Seq, err)
			continue
		}
		if base.Seq != snap.Seq || base.RoomID != roomID {
			lastErr = fmt.Errorf("snapshot %d: header does not match state", snap.Seq)
			continue
		}

		actions, err := st.LoadActions(ctx, roomID, base.Seq)
		if err != nil {
			return nil, fmt.Errorf("load actions: %w", err)
		}

		state, err := Replay(&base, actions)
		if err != nil {
			logger.Warn("replay failed, trying older snapshot",
				"room_id", roomID,
				"seq", snap.Seq,
				"error", err)
			lastErr = err
			continue
		}
		return state, nil
	}

	return nil, errors.Wrap(lastErr, errors.ErrCodeRoomUnrecoverable, "room cannot be recovered")
}

// Replay 依序套用動作紀錄；序號缺口或重播被拒都視為錯誤
func Replay(base *board.State, actions []store.ActionRecord) (*board.State, error) {
	state := base
	for _, rec := range actions {
		if rec.Seq != state.Seq+1 {
			return nil, fmt.Errorf("sequence gap: have %d, next record %d", state.Seq, rec.Seq)
		}

		var a board.Action
		if err := json.Unmarshal(rec.Action, &a); err != nil {
			return nil, fmt.Errorf("decode action %d: %w", rec.Seq, err)
		}

		next, _, err := board.Apply(state, a)
		if err != nil {
			return nil, fmt.Errorf("replay action %d: %w", rec.Seq, err)
		}
		if next.Seq != rec.Seq {
			return nil, fmt.Errorf("replay action %d produced seq %d", rec.Seq, next.Seq)
		}
		state = next
	}
	return state, nil
}
