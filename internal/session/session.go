// Package session 管理玩家身分、連線綁定與斷線寬限期
//
// 每個身分同一時間只允許一條連線。連線以遞增的 generation 標記，
// 舊連線遲來的斷線通知因 generation 不符而被忽略。
// 斷線後啟動寬限計時器，到期送出恰好一次 forfeit；期間重連則取消計時器並送出 reconnect。
package session

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// Rooms 會話層需要的房間操作（room.Manager 實作）
type Rooms interface {
	Submit(ctx context.Context, roomID string, a board.Action) (room.Outcome, error)
	Get(roomID string) (*room.Room, error)
}

// Config 會話參數
type Config struct {
	GracePeriod   time.Duration
	TokenTTL      time.Duration
	SubmitTimeout time.Duration
}

// Binding 一條已驗證連線的綁定資訊
type Binding struct {
	Identity   string
	RoomID     string
	Generation uint64
}

type entry struct {
	// op 串行化同一身分的連線操作，送進房間的連線動作才不會亂序
	op sync.Mutex

	roomID       string
	live         bool
	generation   uint64
	disconnected bool
	timer        *time.Timer
}

// Manager 會話管理器
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	draining bool

	tokens Tokens
	rooms  Rooms
	cfg    Config
	clock  func() time.Time
	logger *slog.Logger
}

// NewManager 創建會話管理器
func NewManager(tokens Tokens, rooms Rooms, cfg Config, logger *slog.Logger) *Manager {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	return &Manager{
		sessions: make(map[string]*entry),
		tokens:   tokens,
		rooms:    rooms,
		cfg:      cfg,
		clock:    time.Now,
		logger:   logger,
	}
}

// SetClock 替換時鐘（測試用）
func (m *Manager) SetClock(clock func() time.Time) {
	m.clock = clock
}

// NewIdentity 發放新的持久身分與 session token
func (m *Manager) NewIdentity(ctx context.Context) (identity, token string, err error) {
	identity = uuid.NewString()
	token = uuid.NewString()
	if err := m.tokens.Save(ctx, identity, token, m.cfg.TokenTTL); err != nil {
		return "", "", errors.Wrap(err, errors.ErrCodeInternal, "issue identity")
	}
	m.logger.Info("identity issued", "player_id", identity)
	return identity, token, nil
}

// Authenticate 驗證身分與 token
func (m *Manager) Authenticate(ctx context.Context, identity, token string) error {
	if identity == "" || token == "" {
		return errors.ErrInvalidSession
	}
	stored, err := m.tokens.Lookup(ctx, identity)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return errors.ErrInvalidSession
	}
	return nil
}

// Attach 綁定一條新連線
//
// roomID 為空時沿用先前綁定的房間。同一身分已有連線時回傳 DUPLICATE_CONNECTION。
// 玩家在房間中處於斷線狀態時送出 reconnect。呼叫端隨後推送完整狀態。
func (m *Manager) Attach(ctx context.Context, identity, token, roomID string) (Binding, error) {
	if err := m.Authenticate(ctx, identity, token); err != nil {
		return Binding{}, err
	}

	e := m.lockEntry(identity)
	defer e.op.Unlock()

	m.mu.Lock()
	if e.live {
		m.mu.Unlock()
		return Binding{}, errors.ErrDuplicateConnection
	}
	if roomID == "" {
		roomID = e.roomID
	}
	if roomID != "" {
		if _, err := m.rooms.Get(roomID); err != nil {
			m.mu.Unlock()
			return Binding{}, err
		}
		e.roomID = roomID
	}
	away := e.disconnected
	e.live = true
	e.generation++
	e.disconnected = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	b := Binding{Identity: identity, RoomID: e.roomID, Generation: e.generation}
	m.mu.Unlock()

	if err := m.tokens.Touch(ctx, identity, m.cfg.TokenTTL); err != nil {
		m.logger.Warn("touch token failed", "player_id", identity, "error", err)
	}

	if b.RoomID != "" && (away || m.seatedAway(b.RoomID, identity)) {
		m.submit(b.RoomID, board.Action{Type: board.ActionReconnect, Player: identity})
	}

	m.logger.Info("connection attached",
		"player_id", identity,
		"room_id", b.RoomID,
		"generation", b.Generation)
	return b, nil
}

// Bind 記錄身分所在的房間（加入房間時呼叫）
func (m *Manager) Bind(identity, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(identity).roomID = roomID
}

// Room 身分目前綁定的房間
func (m *Manager) Room(identity string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[identity]; ok {
		return e.roomID
	}
	return ""
}

// Live 身分目前是否有連線
func (m *Manager) Live(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[identity]
	return ok && e.live
}

// Detach 連線結束；generation 不是最新的（已被新連線取代）就忽略
func (m *Manager) Detach(identity string, generation uint64) {
	e := m.lockEntry(identity)
	defer e.op.Unlock()

	m.mu.Lock()
	if !e.live || e.generation != generation {
		m.mu.Unlock()
		return
	}
	e.live = false
	roomID := e.roomID
	if roomID == "" || m.draining {
		// 關機時連線是被伺服器關掉的，不算玩家斷線
		m.mu.Unlock()
		return
	}
	now := m.clock()
	deadline := now.Add(m.cfg.GracePeriod)
	m.startGrace(identity, e, m.cfg.GracePeriod, deadline)
	m.mu.Unlock()

	m.logger.Info("connection lost, grace period started",
		"player_id", identity,
		"room_id", roomID,
		"deadline", deadline)

	m.submit(roomID, board.Action{
		Type:     board.ActionDisconnect,
		Player:   identity,
		At:       now.UnixMilli(),
		Deadline: deadline.UnixMilli(),
	})
}

// Drain 進入關機狀態：之後結束的連線不再送出 disconnect，也不啟動寬限計時器
func (m *Manager) Drain() {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
}

// Adopt 伺服器重啟後接管恢復的房間：所有玩家此時都沒有連線
//
// 停機期間不算在寬限期內：每位玩家都從現在起重新計算一段寬限期，
// 持久化的期限若更晚則沿用。
func (m *Manager) Adopt(s *board.State) {
	if s.Phase == board.PhaseEnded {
		return
	}
	now := m.clock()

	for _, p := range s.Players {
		if p.Conn == board.ConnForfeited || p.Bankrupt {
			continue
		}

		e := m.lockEntry(p.ID)
		m.mu.Lock()
		if e.live {
			m.mu.Unlock()
			e.op.Unlock()
			continue
		}
		e.roomID = s.RoomID
		e.generation++

		deadline := now.Add(m.cfg.GracePeriod)
		if p.Conn == board.ConnDisconnected {
			if persisted := time.UnixMilli(p.GraceDeadline); !persisted.Before(deadline) {
				m.startGrace(p.ID, e, persisted.Sub(now), persisted)
				m.mu.Unlock()
				e.op.Unlock()
				continue
			}
		}

		m.startGrace(p.ID, e, m.cfg.GracePeriod, deadline)
		m.mu.Unlock()

		m.submit(s.RoomID, board.Action{
			Type:     board.ActionDisconnect,
			Player:   p.ID,
			At:       now.UnixMilli(),
			Deadline: deadline.UnixMilli(),
		})
		e.op.Unlock()
	}
}

// Stop 停止所有寬限計時器
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.sessions {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}

// entry 取得或建立；需持有鎖
func (m *Manager) entry(identity string) *entry {
	e, ok := m.sessions[identity]
	if !ok {
		e = &entry{}
		m.sessions[identity] = e
	}
	return e
}

// lockEntry 取得身分的條目並鎖住它的操作鎖
func (m *Manager) lockEntry(identity string) *entry {
	m.mu.Lock()
	e := m.entry(identity)
	m.mu.Unlock()
	e.op.Lock()
	return e
}

// startGrace 啟動寬限計時器；需持有鎖
func (m *Manager) startGrace(identity string, e *entry, wait time.Duration, deadline time.Time) {
	if e.timer != nil {
		e.timer.Stop()
	}
	if wait < 0 {
		wait = 0
	}
	e.disconnected = true
	gen, roomID := e.generation, e.roomID
	e.timer = time.AfterFunc(wait, func() {
		m.expire(identity, gen, roomID, deadline)
	})
}

// expire 寬限期到期：同一個 generation 只會送出一次 forfeit
func (m *Manager) expire(identity string, generation uint64, roomID string, deadline time.Time) {
	e := m.lockEntry(identity)
	defer e.op.Unlock()

	m.mu.Lock()
	if e.live || !e.disconnected || e.generation != generation {
		m.mu.Unlock()
		return
	}
	e.disconnected = false
	e.timer = nil
	m.mu.Unlock()

	m.logger.Info("grace period expired, forfeiting",
		"player_id", identity,
		"room_id", roomID)

	m.submit(roomID, board.Action{
		Type:   board.ActionForfeit,
		Player: identity,
		At:     deadline.UnixMilli(),
	})
}

// seatedAway 玩家是否坐在房間中但被標記為斷線
func (m *Manager) seatedAway(roomID, identity string) bool {
	r, err := m.rooms.Get(roomID)
	if err != nil {
		return false
	}
	p := r.State().Player(identity)
	return p != nil && p.Conn == board.ConnDisconnected
}

func (m *Manager) submit(roomID string, a board.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SubmitTimeout)
	defer cancel()

	if _, err := m.rooms.Submit(ctx, roomID, a); err != nil {
		// 未入座的身分或過期計時器會被拒絕，屬正常情況
		m.logger.Debug("connection action not applied",
			"room_id", roomID,
			"player_id", a.Player,
			"action", a.Type,
			"error", err)
	}
}
