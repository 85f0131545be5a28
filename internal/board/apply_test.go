package board_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
)

// TestApply_Lobby 測試大廳入座與開局
func TestApply_Lobby(t *testing.T) {
	lobby := func(ids ...string) *board.State {
		s := board.NewState("room-1", board.DefaultRules())
		for _, id := range ids {
			s = mustApply(t, s, board.Action{Type: board.ActionJoin, Player: id})
		}
		return s
	}

	tests := []struct {
		name   string
		state  func() *board.State
		action board.Action
		want   board.ReasonCode
	}{
		{
			name:   "join twice",
			state:  func() *board.State { return lobby("a") },
			action: board.Action{Type: board.ActionJoin, Player: "a"},
			want:   board.AlreadySeated,
		},
		{
			name:   "room full",
			state:  func() *board.State { return lobby("a", "b", "c", "d") },
			action: board.Action{Type: board.ActionJoin, Player: "e"},
			want:   board.RoomFull,
		},
		{
			name:   "start alone",
			state:  func() *board.State { return lobby("a") },
			action: board.Action{Type: board.ActionStart, Player: "a"},
			want:   board.NotEnoughPlayers,
		},
		{
			name:   "start by stranger",
			state:  func() *board.State { return lobby("a", "b") },
			action: board.Action{Type: board.ActionStart, Player: "x"},
			want:   board.UnknownPlayer,
		},
		{
			name:   "join after start",
			state:  func() *board.State { return newGame(t, "a", "b") },
			action: board.Action{Type: board.ActionJoin, Player: "c"},
			want:   board.InvalidPhase,
		},
		{
			name:   "roll in lobby",
			state:  func() *board.State { return lobby("a", "b") },
			action: roll("a", 1, 2),
			want:   board.InvalidPhase,
		},
		{
			name:   "join without identity",
			state:  func() *board.State { return lobby() },
			action: board.Action{Type: board.ActionJoin},
			want:   board.MalformedAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rejectCode(t, tt.state(), tt.action))
		})
	}
}

// TestApply_Start 測試開局後的初始狀態
func TestApply_Start(t *testing.T) {
	s := newGame(t, "a", "b", "c")

	assert.Equal(t, board.PhaseInProgress, s.Phase)
	assert.Equal(t, board.StepPreRoll, s.Step)
	assert.Equal(t, 0, s.Turn)
	assert.Equal(t, uint64(4), s.Seq)
	require.NotNil(t, s.Decks)
	assert.Len(t, s.Decks.Chance, len(board.ChanceCards))
	assert.Len(t, s.Decks.CommunityChest, len(board.CommunityChestCards))
	for i, p := range s.Players {
		assert.Equal(t, i, p.Seat)
		assert.Equal(t, 1500, p.Cash)
		assert.Equal(t, board.ConnConnected, p.Conn)
	}

	// 同樣的種子洗出同樣的牌序
	again := newGame(t, "a", "b", "c")
	assert.Equal(t, s.Decks, again.Decks)
}

// TestApply_Leave 測試大廳離座後座位重排
func TestApply_Leave(t *testing.T) {
	s := board.NewState("room-1", board.DefaultRules())
	for _, id := range []string{"a", "b", "c"} {
		s = mustApply(t, s, board.Action{Type: board.ActionJoin, Player: id})
	}
	s = mustApply(t, s, board.Action{Type: board.ActionLeave, Player: "a"})

	require.Len(t, s.Players, 2)
	assert.Equal(t, "b", s.Players[0].ID)
	assert.Equal(t, 0, s.Players[0].Seat)
	assert.Equal(t, 1, s.Players[1].Seat)
}

// TestApply_TurnGuards 測試回合與子狀態的拒絕原因
func TestApply_TurnGuards(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(s *board.State)
		action board.Action
		want   board.ReasonCode
	}{
		{
			name:   "roll out of turn",
			action: roll("b", 1, 2),
			want:   board.NotYourTurn,
		},
		{
			name:   "end turn before rolling",
			action: board.Action{Type: board.ActionEndTurn, Player: "a"},
			want:   board.InvalidPhase,
		},
		{
			name:   "dice out of range",
			action: roll("a", 0, 7),
			want:   board.MalformedAction,
		},
		{
			name:   "unknown action",
			action: board.Action{Type: "teleport", Player: "a"},
			want:   board.UnknownAction,
		},
		{
			name:   "stranger",
			action: roll("x", 1, 2),
			want:   board.UnknownPlayer,
		},
		{
			name: "end turn with debt",
			setup: func(s *board.State) {
				s.Step = board.StepPayingDebt
				s.Debt = &board.Debt{Debtor: "a", Payees: []board.Payment{{Amount: 200}}, Reason: "tax"}
			},
			action: board.Action{Type: board.ActionEndTurn, Player: "a"},
			want:   board.DebtOutstanding,
		},
		{
			name:   "game over",
			setup:  func(s *board.State) { s.Phase = board.PhaseEnded },
			action: roll("a", 1, 2),
			want:   board.GameEnded,
		},
		{
			name:   "bankrupt player",
			setup:  func(s *board.State) { s.Players[0].Bankrupt = true },
			action: roll("a", 1, 2),
			want:   board.PlayerInactive,
		},
		{
			name:   "client cannot pay rent without debt",
			action: board.Action{Type: board.ActionPayRent, Player: "a"},
			want:   board.InvalidPhase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newGame(t, "a", "b")
			if tt.setup != nil {
				tt.setup(s)
			}
			assert.Equal(t, tt.want, rejectCode(t, s, tt.action))
		})
	}
}

// TestApply_BuyScenario 測試買地：1500 現金買下 200 的地產剩 1300
func TestApply_BuyScenario(t *testing.T) {
	s := newGame(t, "a", "b")

	s = mustApply(t, s, roll("a", 2, 3))
	require.Equal(t, 5, s.Players[0].Position)
	require.Equal(t, board.StepPropertyDecision, s.Step)

	s = mustApply(t, s, act(board.ActionBuy, "a", 0))
	assert.Equal(t, 1300, s.Players[0].Cash)
	assert.Equal(t, "a", s.Property(5).Owner)
	assert.Equal(t, board.StepPostRoll, s.Step)

	// 晚到的競爭購買被拒絕
	assert.Equal(t, board.AlreadyOwned, rejectCode(t, s, act(board.ActionBuy, "b", 5)))
	assert.Equal(t, board.AlreadyOwned, rejectCode(t, s, act(board.ActionBuy, "a", 5)))

	s = mustApply(t, s, board.Action{Type: board.ActionEndTurn, Player: "a"})
	assert.Equal(t, 1, s.Turn)
	assert.Equal(t, board.StepPreRoll, s.Step)
}

// TestApply_BuyInsufficientFunds 測試現金不足無法購買
func TestApply_BuyInsufficientFunds(t *testing.T) {
	s := newGame(t, "a", "b")
	s.Players[0].Cash = 100
	s = mustApply(t, s, roll("a", 2, 3))

	assert.Equal(t, board.InsufficientFunds, rejectCode(t, s, act(board.ActionBuy, "a", 0)))
}

// TestApply_DoublesRollAgain 測試擲出雙數後可再擲
func TestApply_DoublesRollAgain(t *testing.T) {
	s := newGame(t, "a", "b")
	s = mustApply(t, s, roll("a", 2, 2))

	assert.Equal(t, 4, s.Players[0].Position)
	require.Equal(t, board.StepPayingDebt, s.Step)
	s = mustApply(t, s, board.Action{Type: board.ActionPayRent, Player: "a"})

	assert.Equal(t, 1300, s.Players[0].Cash)
	assert.Equal(t, board.StepPreRoll, s.Step)
	assert.Equal(t, 0, s.Turn)
}

// TestApply_DoesNotMutateInput 測試輸入狀態不被修改
func TestApply_DoesNotMutateInput(t *testing.T) {
	s := newGame(t, "a", "b")
	before := s.Clone()

	_, _, err := board.Apply(s, roll("a", 2, 3))
	require.NoError(t, err)
	assert.Equal(t, before, s)

	_, _, err = board.Apply(s, roll("b", 2, 3))
	require.Error(t, err)
	assert.Equal(t, before, s)
}

// TestApply_Abandon 測試管理端結束整局；玩家不能替所有人放棄
func TestApply_Abandon(t *testing.T) {
	s := newGame(t, "a", "b")
	assert.Equal(t, board.UnknownAction, rejectCode(t, s, board.Action{Type: board.ActionAbandon, Player: "b"}))
	assert.False(t, board.ActionAbandon.ClientAllowed())

	s = mustApply(t, s, board.Action{Type: board.ActionAbandon})

	assert.Equal(t, board.PhaseEnded, s.Phase)
	assert.Empty(t, s.Winner)
	assert.Equal(t, board.GameEnded, rejectCode(t, s, roll("a", 1, 2)))
}

// TestDiff 測試狀態差異只包含變動部分
func TestDiff(t *testing.T) {
	s := newGame(t, "a", "b")
	s = mustApply(t, s, roll("a", 2, 3))
	after := mustApply(t, s, act(board.ActionBuy, "a", 0))

	d := board.Diff(s, after)
	assert.Equal(t, after.Seq, d.Seq)
	require.Len(t, d.Players, 1)
	assert.Equal(t, "a", d.Players[0].ID)
	require.Len(t, d.Properties, 1)
	assert.Equal(t, 5, d.Properties[0].Position)
	require.NotNil(t, d.Step)
	assert.Equal(t, board.StepPostRoll, *d.Step)
	assert.Nil(t, d.Turn)
	assert.False(t, d.PendingChanged)

	same := board.Diff(after, after)
	assert.Empty(t, same.Players)
	assert.Empty(t, same.Properties)
	assert.Nil(t, same.Phase)
}

// TestPublic 測試客戶端視圖隱藏牌堆
func TestPublic(t *testing.T) {
	s := newGame(t, "a", "b")
	pub := s.Public()

	assert.Nil(t, pub.Decks)
	assert.NotNil(t, s.Decks)
	assert.Equal(t, s.Players, pub.Players)
}

// TestApply_ReplayDeterminism 測試重播已接受的動作得到完全相同的狀態
//
// 同時檢查每一步之後現金不為負，且最多一個待決交易。
func TestApply_ReplayDeterminism(t *testing.T) {
	for _, seed := range []uint64{1, 7, 99} {
		rng := rand.New(rand.NewPCG(seed, seed))
		initial := newGame(t, "a", "b", "c")

		s := initial
		var log []board.Action
		at := int64(0)
		for i := 0; i < 3000 && s.Phase != board.PhaseEnded; i++ {
			at += 1000
			a := randomAction(s, rng)
			a.At = at
			next, _, err := board.Apply(s, a)
			if err != nil {
				var rej *board.Rejection
				require.ErrorAs(t, err, &rej)
				continue
			}
			log = append(log, a)
			s = next

			for _, p := range s.Players {
				require.GreaterOrEqual(t, p.Cash, 0, "player %s", p.ID)
			}
			if s.Pending != nil {
				assert.Contains(t, []board.Phase{board.PhaseAwaitingTrade, board.PhaseAwaitingAuction}, s.Phase)
			}
		}
		require.NotEmpty(t, log)

		replay := initial
		for _, a := range log {
			var err error
			replay, _, err = board.Apply(replay, a)
			require.NoError(t, err)
		}
		assert.Equal(t, s, replay)
		assert.Equal(t, initial.Seq+uint64(len(log)), replay.Seq)
	}
}

// randomAction 依目前狀態隨機產生一個多半合法的動作
func randomAction(s *board.State, rng *rand.Rand) board.Action {
	cur := s.Current()
	pick := func() string { return s.Players[rng.IntN(len(s.Players))].ID }

	switch s.Phase {
	case board.PhaseAwaitingAuction:
		if rng.IntN(3) == 0 {
			return board.Action{Type: board.ActionCloseAuction, Player: s.Pending.Proposer}
		}
		return board.Action{Type: board.ActionBid, Player: pick(), Amount: s.Pending.HighBid + 1 + rng.IntN(50)}
	case board.PhaseAwaitingTrade:
		switch rng.IntN(3) {
		case 0:
			return board.Action{Type: board.ActionRejectTrade, Player: s.Pending.Counterparts[0]}
		case 1:
			return board.Action{Type: board.ActionExpire, PendingID: s.Pending.ID}
		}
		return board.Action{Type: board.ActionAcceptTrade, Player: s.Pending.Counterparts[0]}
	}

	switch s.Step {
	case board.StepPreRoll:
		if cur.InJail && rng.IntN(2) == 0 {
			return board.Action{Type: board.ActionPayBail, Player: cur.ID}
		}
		return roll(cur.ID, 1+rng.IntN(6), 1+rng.IntN(6))
	case board.StepPropertyDecision:
		if rng.IntN(3) == 0 {
			return board.Action{Type: board.ActionDecline, Player: cur.ID}
		}
		return act(board.ActionBuy, cur.ID, 0)
	case board.StepPayingDebt:
		return board.Action{Type: board.ActionPayRent, Player: cur.ID}
	}

	switch rng.IntN(6) {
	case 0:
		return act(board.ActionBuild, cur.ID, rng.IntN(board.BoardSize))
	case 1:
		return act(board.ActionMortgage, cur.ID, rng.IntN(board.BoardSize))
	case 2:
		return board.Action{
			Type:   board.ActionProposeTrade,
			Player: cur.ID,
			Trade: &board.TradeOffer{
				To:                  pick(),
				OfferedProperties:   []int{rng.IntN(board.BoardSize)},
				RequestedProperties: []int{rng.IntN(board.BoardSize)},
				OfferedCash:         rng.IntN(100),
			},
		}
	}
	return board.Action{Type: board.ActionEndTurn, Player: cur.ID}
}
