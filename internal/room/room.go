// Package room 遊戲房間：每個房間一個 actor goroutine
//
// 系統設計問題：
//
//	多位玩家同時對同一局遊戲送出動作，如何保證權威狀態一致、可重播、不遺失？
//
// 設計方案：
//   - 單一收件匣：所有動作（玩家、計時器、連線事件）排隊由同一個 goroutine 處理
//   - 先寫後推進：動作寫入持久層成功後序號才前進，寫入失敗以指數退避重試
//   - 有序送出：狀態差異交給 outbox goroutine 依序號送出，網路慢不影響下一個驗證
//   - 計時器也是動作：交易／拍賣到期時送一個 expire 進同一個收件匣
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/store"
	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// Config 房間執行參數
type Config struct {
	SnapshotEvery  int
	KeepSnapshots  int
	InboxSize      int
	PersistRetries int
	PersistBackoff time.Duration
}

// DefaultConfig 預設房間參數
func DefaultConfig() Config {
	return Config{
		SnapshotEvery:  20,
		KeepSnapshots:  3,
		InboxSize:      64,
		PersistRetries: 5,
		PersistBackoff: 50 * time.Millisecond,
	}
}

// Deps 可替換的外部依賴；零值欄位使用預設實作
type Deps struct {
	Store     store.Store
	Publisher Publisher
	Logger    *slog.Logger
	Clock     func() time.Time
	Dice      func() [2]int
	Seed      func() uint64
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = store.NewMemory()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Dice == nil {
		d.Dice = func() [2]int { return [2]int{rand.IntN(6) + 1, rand.IntN(6) + 1} }
	}
	if d.Seed == nil {
		d.Seed = rand.Uint64
	}
	return d
}

// Outcome 被接受的動作的結果（只回給送出者）
type Outcome struct {
	Seq    uint64          `json:"seq"`
	Events []board.Event   `json:"events,omitempty"`
	Diff   board.StateDiff `json:"diff"`
}

type request struct {
	action board.Action
	reply  chan result
}

type result struct {
	outcome Outcome
	err     error
}

// Room 一局遊戲
type Room struct {
	id     string
	cfg    Config
	deps   Deps
	logger *slog.Logger

	inbox chan request
	out   *outbox

	// 只由 run goroutine 讀寫
	state   *board.State
	timer   *time.Timer
	timerID string

	view        atomic.Pointer[board.State]
	unavailable atomic.Bool
	lastActive  atomic.Int64
	endedAt     atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New 以既有狀態啟動房間（新建或恢復後）
func New(state *board.State, cfg Config, deps Deps) *Room {
	deps = deps.withDefaults()
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig().InboxSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:     state.RoomID,
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("room_id", state.RoomID),
		inbox:  make(chan request, cfg.InboxSize),
		out:    newOutbox(deps.Publisher),
		state:  state,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.view.Store(state.Public())
	r.lastActive.Store(deps.Clock().UnixMilli())
	if state.Phase == board.PhaseEnded {
		r.endedAt.Store(deps.Clock().UnixMilli())
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.out.run(r.done)
	}()
	go func() {
		defer r.wg.Done()
		r.run()
	}()
	return r
}

// ID 房間 ID
func (r *Room) ID() string { return r.id }

// State 最新已提交狀態的公開視圖（隱藏牌堆）；呼叫端不得修改
func (r *Room) State() *board.State { return r.view.Load() }

// Unavailable 是否因致命錯誤停止服務
func (r *Room) Unavailable() bool { return r.unavailable.Load() }

// LastActive 最後一次接受動作的時間
func (r *Room) LastActive() time.Time { return time.UnixMilli(r.lastActive.Load()) }

// EndedAt 遊戲結束時間；尚未結束回傳零值
func (r *Room) EndedAt() time.Time {
	ms := r.endedAt.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Submit 送出一個動作並等待結果
//
// 驗證失敗回傳 *board.Rejection；房間停止服務回傳 ROOM_UNAVAILABLE。
// ctx 在動作排入後才取消時，動作仍可能被套用。
func (r *Room) Submit(ctx context.Context, a board.Action) (Outcome, error) {
	if r.unavailable.Load() {
		return Outcome{}, errors.ErrRoomUnavailable
	}

	req := request{action: a, reply: make(chan result, 1)}
	select {
	case r.inbox <- req:
	case <-r.done:
		return Outcome{}, errors.ErrRoomClosed
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.outcome, res.err
	case <-r.done:
		return Outcome{}, errors.ErrRoomClosed
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Close 停止房間；已排入的通知會先送完
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.cancel()
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Room) run() {
	r.syncTimer()
	defer r.stopTimer()

	for {
		select {
		case <-r.done:
			return
		case req := <-r.inbox:
			out, err := r.handle(req.action)
			req.reply <- result{outcome: out, err: err}
		}
	}
}

// handle 處理單一動作：蓋章 → 驗證 → 持久化 → 推進 → 送出
func (r *Room) handle(a board.Action) (Outcome, error) {
	if r.unavailable.Load() {
		return Outcome{}, errors.ErrRoomUnavailable
	}

	a = r.stamp(a)
	next, events, err := board.Apply(r.state, a)
	if err != nil {
		r.logger.Debug("action rejected",
			"player_id", a.Player,
			"action", a.Type,
			"error", err)
		return Outcome{}, err
	}

	diff := board.Diff(r.state, next)
	if err := r.persist(a, diff, next.Seq); err != nil {
		if r.ctx.Err() != nil {
			return Outcome{}, errors.ErrRoomClosed
		}
		r.markUnavailable(next.Seq, err)
		return Outcome{}, errors.Wrap(err, errors.ErrCodeRoomUnavailable, "persist action")
	}

	prevPhase := r.state.Phase
	r.state = next
	r.view.Store(next.Public())
	r.lastActive.Store(r.deps.Clock().UnixMilli())
	if next.Phase == board.PhaseEnded && prevPhase != board.PhaseEnded {
		r.endedAt.Store(r.deps.Clock().UnixMilli())
		r.logger.Info("game ended", "winner", next.Winner, "seq", next.Seq)
	}

	if r.cfg.SnapshotEvery > 0 && next.Seq%uint64(r.cfg.SnapshotEvery) == 0 {
		r.snapshot()
	}

	r.out.push(Delta{
		RoomID: r.id,
		Seq:    next.Seq,
		Kind:   DeltaState,
		Player: a.Player,
		Action: a.Type,
		Diff:   &diff,
		Events: events,
	})
	r.syncTimer()

	return Outcome{Seq: next.Seq, Events: events, Diff: diff}, nil
}

// stamp 蓋上伺服器時間、骰子與洗牌種子，記錄下來重播才能得到相同結果
//
// 內部動作（計時器、連線事件）若已帶時間則保留：到期時間點才是它們發生的時刻。
func (r *Room) stamp(a board.Action) board.Action {
	if a.Type.ClientAllowed() || a.At == 0 {
		a.At = r.deps.Clock().UnixMilli()
	}
	switch a.Type {
	case board.ActionRoll:
		a.Dice = r.deps.Dice()
	case board.ActionStart:
		a.Seed = r.deps.Seed()
	}
	return a
}

// persist 以同一序號重試寫入，直到成功或用盡次數
func (r *Room) persist(a board.Action, diff board.StateDiff, seq uint64) error {
	actionJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	diffJSON, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("marshal diff: %w", err)
	}
	rec := store.ActionRecord{
		RoomID:    r.id,
		Seq:       seq,
		Action:    actionJSON,
		Diff:      diffJSON,
		CreatedAt: r.deps.Clock().UTC(),
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.PersistBackoff
	exp.MaxElapsedTime = 0
	retries := r.cfg.PersistRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), r.ctx)

	op := func() error {
		err := r.deps.Store.AppendAction(r.ctx, rec)
		if errors.IsSequenceConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("persist action failed, retrying",
			"seq", seq,
			"wait", wait,
			"error", err)
	}
	return backoff.RetryNotify(op, policy, notify)
}

func (r *Room) snapshot() {
	data, err := json.Marshal(r.state)
	if err != nil {
		r.logger.Error("marshal snapshot", "seq", r.state.Seq, "error", err)
		return
	}
	snap := store.NewSnapshot(r.id, r.state.Seq, data)
	if err := r.deps.Store.SaveSnapshot(r.ctx, snap, r.cfg.KeepSnapshots); err != nil {
		// 快照失敗不影響正確性，恢復時從較舊快照多重播幾筆
		r.logger.Warn("save snapshot failed", "seq", r.state.Seq, "error", err)
	}
}

func (r *Room) markUnavailable(seq uint64, err error) {
	r.unavailable.Store(true)
	r.logger.Error("room unavailable, persistence exhausted",
		"seq", seq,
		"error", err)
	r.stopTimer()
	r.out.push(Delta{
		RoomID: r.id,
		Seq:    r.state.Seq,
		Kind:   DeltaUnavailable,
	})
}

// syncTimer 讓到期計時器跟目前的待決交易一致
func (r *Room) syncTimer() {
	p := r.state.Pending
	if p == nil {
		r.stopTimer()
		return
	}
	if r.timerID == p.ID && r.timer != nil {
		return
	}
	r.stopTimer()

	id, at := p.ID, p.ExpiresAt
	wait := time.Duration(at-r.deps.Clock().UnixMilli()) * time.Millisecond
	if wait < 0 {
		wait = 0
	}
	r.timerID = id
	r.timer = time.AfterFunc(wait, func() {
		_, err := r.Submit(r.ctx, board.Action{Type: board.ActionExpire, PendingID: id, At: at})
		if err != nil {
			r.logger.Debug("expiry not applied", "pending_id", id, "error", err)
		}
	})
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerID = ""
}
