package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/store"
	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// ManagerConfig 房間管理器參數
type ManagerConfig struct {
	Room           Config
	Rules          board.Rules
	RetainAfterEnd time.Duration
	CleanupEvery   time.Duration
}

// Summary 房間列表用的摘要
type Summary struct {
	RoomID      string      `json:"room_id"`
	Phase       board.Phase `json:"phase"`
	Seq         uint64      `json:"seq"`
	Players     int         `json:"players"`
	Active      int         `json:"active_players"`
	MaxPlayers  int         `json:"max_players"`
	Winner      string      `json:"winner,omitempty"`
	Unavailable bool        `json:"unavailable"`
}

// Manager 房間註冊表
//
// 負責建立、查找、啟動時恢復，以及回收已結束的房間。
// 持久化的紀錄不會因回收而刪除。
type Manager struct {
	rooms         map[string]*Room
	unrecoverable map[string]error
	mu            sync.RWMutex

	cfg    ManagerConfig
	deps   Deps
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewManager 創建房間管理器並啟動清理迴圈
func NewManager(cfg ManagerConfig, deps Deps) *Manager {
	deps = deps.withDefaults()
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = time.Minute
	}
	if cfg.Rules.MaxPlayers == 0 {
		cfg.Rules = board.DefaultRules()
	}

	m := &Manager{
		rooms:         make(map[string]*Room),
		unrecoverable: make(map[string]error),
		cfg:           cfg,
		deps:          deps,
		logger:        deps.Logger,
		stopCh:        make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

// Create 建立大廳階段的新房間，並寫入序號 0 的快照作為重播起點
func (m *Manager) Create(ctx context.Context) (*Room, error) {
	id := uuid.NewString()
	state := board.NewState(id, m.cfg.Rules)

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal initial state: %w", err)
	}
	if err := m.deps.Store.SaveSnapshot(ctx, store.NewSnapshot(id, 0, data), m.cfg.Room.KeepSnapshots); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePersistence, "save initial snapshot")
	}

	r := New(state, m.cfg.Room, m.deps)

	m.mu.Lock()
	m.rooms[id] = r
	m.mu.Unlock()

	m.logger.Info("room created",
		"room_id", id,
		"max_players", m.cfg.Rules.MaxPlayers)

	return r, nil
}

// Get 依 ID 取得房間
func (m *Manager) Get(roomID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r, ok := m.rooms[roomID]; ok {
		return r, nil
	}
	if err, ok := m.unrecoverable[roomID]; ok {
		return nil, errors.Wrap(err, errors.ErrCodeRoomUnrecoverable, "room cannot be recovered")
	}
	return nil, errors.ErrRoomNotFound.WithDetails(roomID)
}

// Submit 把動作送進指定房間
func (m *Manager) Submit(ctx context.Context, roomID string, a board.Action) (Outcome, error) {
	r, err := m.Get(roomID)
	if err != nil {
		return Outcome{}, err
	}
	return r.Submit(ctx, a)
}

// List 列出記憶體中的房間，可依階段過濾
func (m *Manager) List(phase board.Phase) []Summary {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		s := r.Summary()
		if phase != "" && s.Phase != phase {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// Summary 房間摘要
func (r *Room) Summary() Summary {
	s := r.State()
	return Summary{
		RoomID:      r.id,
		Phase:       s.Phase,
		Seq:         s.Seq,
		Players:     len(s.Players),
		Active:      s.ActivePlayers(),
		MaxPlayers:  s.Rules.MaxPlayers,
		Winner:      s.Winner,
		Unavailable: r.Unavailable(),
	}
}

// Recover 啟動時從持久層恢復所有未結束的房間
//
// 無法恢復的房間記錄下來，之後的請求回傳 ROOM_UNRECOVERABLE，其他房間照常啟動。
func (m *Manager) Recover(ctx context.Context) (int, error) {
	ids, err := m.deps.Store.ListRooms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		m.mu.RLock()
		_, loaded := m.rooms[id]
		m.mu.RUnlock()
		if loaded {
			continue
		}

		state, err := Rehydrate(ctx, m.deps.Store, id, m.cfg.Room.KeepSnapshots, m.logger)
		if err != nil {
			if !errors.IsFatal(err) {
				return recovered, err
			}
			m.logger.Error("room unrecoverable", "room_id", id, "error", err)
			m.mu.Lock()
			m.unrecoverable[id] = err
			m.mu.Unlock()
			continue
		}
		if state.Phase == board.PhaseEnded {
			continue
		}

		r := New(state, m.cfg.Room, m.deps)
		m.mu.Lock()
		m.rooms[id] = r
		m.mu.Unlock()
		recovered++

		m.logger.Info("room recovered",
			"room_id", id,
			"seq", state.Seq,
			"phase", state.Phase)
	}
	return recovered, nil
}

// cleanupLoop 定期回收房間
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// Cleanup 回收已結束超過保留時間、或所有玩家都已認輸的房間
func (m *Manager) Cleanup() int {
	now := m.deps.Clock()

	m.mu.RLock()
	var expired []*Room
	for _, r := range m.rooms {
		if m.expired(r, now) {
			expired = append(expired, r)
		}
	}
	m.mu.RUnlock()

	for _, r := range expired {
		m.mu.Lock()
		delete(m.rooms, r.id)
		m.mu.Unlock()

		r.Close()
		m.logger.Info("room released", "room_id", r.id)
	}
	return len(expired)
}

func (m *Manager) expired(r *Room, now time.Time) bool {
	s := r.State()
	switch {
	case s.Phase == board.PhaseEnded:
		return now.Sub(r.EndedAt()) >= m.cfg.RetainAfterEnd
	case len(s.Players) > 0 && s.ActivePlayers() == 0:
		return true
	case s.Phase == board.PhaseLobby && len(s.Players) == 0:
		return now.Sub(r.LastActive()) >= m.cfg.RetainAfterEnd
	}
	return false
}

// Stop 停止清理迴圈並關閉所有房間
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.stopCh)
		m.wg.Wait()

		m.mu.Lock()
		rooms := make([]*Room, 0, len(m.rooms))
		for _, r := range m.rooms {
			rooms = append(rooms, r)
		}
		m.rooms = make(map[string]*Room)
		m.mu.Unlock()

		for _, r := range rooms {
			r.Close()
		}
		m.logger.Info("room manager stopped", "rooms", len(rooms))
	})
}

// Stats 統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byPhase := make(map[board.Phase]int)
	totalPlayers, unavailable := 0, 0
	for _, r := range m.rooms {
		s := r.State()
		byPhase[s.Phase]++
		totalPlayers += len(s.Players)
		if r.Unavailable() {
			unavailable++
		}
	}

	return map[string]any{
		"total_rooms":         len(m.rooms),
		"total_players":       totalPlayers,
		"by_phase":            byPhase,
		"unavailable_rooms":   unavailable,
		"unrecoverable_rooms": len(m.unrecoverable),
	}
}
