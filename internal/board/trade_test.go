package board_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
)

func propose(from string, offer board.TradeOffer) board.Action {
	return board.Action{Type: board.ActionProposeTrade, Player: from, Trade: &offer, At: 1_000}
}

// tradeGame a 持有 1、b 持有 3，輪到 a 且已擲骰
func tradeGame(t *testing.T) *board.State {
	s := newGame(t, "a", "b", "c")
	s.Step = board.StepPostRoll
	own(s, "a", 1)
	own(s, "b", 3)
	return s
}

// TestApply_TradeValidation 測試交易提案驗證
func TestApply_TradeValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *board.State)
		offer board.TradeOffer
		want  board.ReasonCode
	}{
		{
			name:  "empty trade",
			offer: board.TradeOffer{To: "b"},
			want:  board.InvalidTrade,
		},
		{
			name:  "trade with yourself",
			offer: board.TradeOffer{To: "a", OfferedCash: 10},
			want:  board.InvalidTrade,
		},
		{
			name:  "unknown counterpart",
			offer: board.TradeOffer{To: "z", OfferedCash: 10},
			want:  board.UnknownPlayer,
		},
		{
			name:  "negative cash",
			offer: board.TradeOffer{To: "b", OfferedCash: -10, RequestedProperties: []int{3}},
			want:  board.InvalidTrade,
		},
		{
			name:  "offer what you do not own",
			offer: board.TradeOffer{To: "b", OfferedProperties: []int{3}},
			want:  board.PropertyNotOwned,
		},
		{
			name:  "request what they do not own",
			offer: board.TradeOffer{To: "b", RequestedProperties: []int{1}},
			want:  board.PropertyNotOwned,
		},
		{
			name:  "offer more cash than held",
			offer: board.TradeOffer{To: "b", OfferedCash: 5000},
			want:  board.InsufficientFunds,
		},
		{
			name: "buildings in the colour group",
			setup: func(s *board.State) {
				own(s, "a", 6, 8, 9)
				s.Property(8).Level = 1
			},
			offer: board.TradeOffer{To: "b", OfferedProperties: []int{6}},
			want:  board.HasBuildings,
		},
		{
			name:  "jail card not held",
			offer: board.TradeOffer{To: "b", OfferedJailCards: 1},
			want:  board.NoJailCard,
		},
		{
			name:  "inactive counterpart",
			setup: func(s *board.State) { s.Player("b").Bankrupt = true },
			offer: board.TradeOffer{To: "b", OfferedCash: 10},
			want:  board.PlayerInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tradeGame(t)
			if tt.setup != nil {
				tt.setup(s)
			}
			assert.Equal(t, tt.want, rejectCode(t, s, propose("a", tt.offer)))
		})
	}
}

// TestApply_TradeAccept 測試接受後原子交換
func TestApply_TradeAccept(t *testing.T) {
	s := tradeGame(t)
	s.Player("a").JailCards = []board.JailCard{{Deck: board.DeckCommunityChest, Index: 7}}

	s = mustApply(t, s, propose("a", board.TradeOffer{
		To:                  "b",
		OfferedProperties:   []int{1},
		RequestedProperties: []int{3},
		OfferedCash:         50,
		OfferedJailCards:    1,
	}))
	require.NotNil(t, s.Pending)
	assert.Equal(t, board.PhaseAwaitingTrade, s.Phase)
	assert.Equal(t, board.PendingTrade, s.Pending.Kind)
	assert.Equal(t, int64(1_000)+s.Rules.TradeWindowMs, s.Pending.ExpiresAt)

	// 待決期間只允許交易動作
	assert.Equal(t, board.PendingTransactionOpen, rejectCode(t, s, propose("a", board.TradeOffer{To: "c", OfferedCash: 1})))
	assert.Equal(t, board.InvalidPhase, rejectCode(t, s, board.Action{Type: board.ActionEndTurn, Player: "a"}))
	assert.Equal(t, board.NotCounterpart, rejectCode(t, s, board.Action{Type: board.ActionAcceptTrade, Player: "c"}))
	assert.Equal(t, board.NoPendingTransaction, rejectCode(t, s, board.Action{Type: board.ActionAcceptTrade, Player: "b", PendingID: "trade-0"}))

	s = mustApply(t, s, board.Action{Type: board.ActionAcceptTrade, Player: "b", PendingID: s.Pending.ID})

	assert.Equal(t, "b", s.Property(1).Owner)
	assert.Equal(t, "a", s.Property(3).Owner)
	assert.Equal(t, 1450, s.Player("a").Cash)
	assert.Equal(t, 1550, s.Player("b").Cash)
	assert.Empty(t, s.Player("a").JailCards)
	assert.Len(t, s.Player("b").JailCards, 1)
	assert.Nil(t, s.Pending)
	assert.Equal(t, board.PhaseInProgress, s.Phase)
	assert.Equal(t, board.StepPostRoll, s.Step)
}

// TestApply_TradeCounter 測試還價後角色互換
func TestApply_TradeCounter(t *testing.T) {
	s := tradeGame(t)
	s = mustApply(t, s, propose("a", board.TradeOffer{To: "b", OfferedProperties: []int{1}, RequestedProperties: []int{3}}))
	first := s.Pending.ID

	counter := board.Action{
		Type:   board.ActionCounterTrade,
		Player: "b",
		At:     2_000,
		Trade:  &board.TradeOffer{OfferedProperties: []int{3}, RequestedProperties: []int{1}, RequestedCash: 100},
	}
	s = mustApply(t, s, counter)
	require.NotNil(t, s.Pending)
	assert.NotEqual(t, first, s.Pending.ID)
	assert.Equal(t, "b", s.Pending.Proposer)
	assert.Equal(t, []string{"a"}, s.Pending.Counterparts)

	// 原提案者不能再接受自己的舊提案
	assert.Equal(t, board.NotCounterpart, rejectCode(t, s, board.Action{Type: board.ActionAcceptTrade, Player: "b"}))

	s = mustApply(t, s, board.Action{Type: board.ActionAcceptTrade, Player: "a"})
	assert.Equal(t, "a", s.Property(3).Owner)
	assert.Equal(t, "b", s.Property(1).Owner)
	assert.Equal(t, 1400, s.Player("a").Cash)
	assert.Equal(t, 1600, s.Player("b").Cash)
}

// TestApply_TradeRejectAndExpire 測試拒絕與逾時
func TestApply_TradeRejectAndExpire(t *testing.T) {
	base := tradeGame(t)
	offer := board.TradeOffer{To: "b", OfferedProperties: []int{1}}

	t.Run("reject", func(t *testing.T) {
		s := mustApply(t, base, propose("a", offer))
		s = mustApply(t, s, board.Action{Type: board.ActionRejectTrade, Player: "b"})

		assert.Nil(t, s.Pending)
		assert.Equal(t, board.PhaseInProgress, s.Phase)
		assert.Equal(t, "a", s.Property(1).Owner)
	})

	t.Run("proposer withdraws", func(t *testing.T) {
		s := mustApply(t, base, propose("a", offer))
		s = mustApply(t, s, board.Action{Type: board.ActionRejectTrade, Player: "a"})
		assert.Nil(t, s.Pending)
	})

	t.Run("expire", func(t *testing.T) {
		s := mustApply(t, base, propose("a", offer))
		id := s.Pending.ID

		early := board.Action{Type: board.ActionExpire, PendingID: id, At: 2_000}
		assert.Equal(t, board.StaleTimer, rejectCode(t, s, early))
		wrong := board.Action{Type: board.ActionExpire, PendingID: "trade-999", At: 100_000}
		assert.Equal(t, board.StaleTimer, rejectCode(t, s, wrong))

		s = mustApply(t, s, board.Action{Type: board.ActionExpire, PendingID: id, At: s.Pending.ExpiresAt})
		assert.Nil(t, s.Pending)
		assert.Equal(t, "a", s.Property(1).Owner)

		// 已結束的交易再到期一次也是過期計時器
		again := board.Action{Type: board.ActionExpire, PendingID: id, At: 200_000}
		assert.Equal(t, board.StaleTimer, rejectCode(t, s, again))
	})
}

// TestApply_Auction 測試放棄購買後的拍賣
func TestApply_Auction(t *testing.T) {
	s := newGame(t, "a", "b", "c")
	s = mustApply(t, s, roll("a", 2, 3))
	s = mustApply(t, s, board.Action{Type: board.ActionDecline, Player: "a", At: 1_000})

	require.NotNil(t, s.Pending)
	assert.Equal(t, board.PhaseAwaitingAuction, s.Phase)
	assert.Equal(t, board.PendingAuction, s.Pending.Kind)
	assert.Equal(t, 5, s.Pending.Property)
	assert.Equal(t, []string{"a", "b", "c"}, s.Pending.Counterparts)

	bid := func(player string, amount int) board.Action {
		return board.Action{Type: board.ActionBid, Player: player, Amount: amount}
	}
	assert.Equal(t, board.BidTooLow, rejectCode(t, s, bid("b", 0)))
	s = mustApply(t, s, bid("b", 100))
	assert.Equal(t, board.BidTooLow, rejectCode(t, s, bid("c", 90)))
	assert.Equal(t, board.InsufficientFunds, rejectCode(t, s, bid("c", 2000)))
	s = mustApply(t, s, bid("c", 150))
	assert.Equal(t, board.PendingTransactionOpen, rejectCode(t, s, propose("a", board.TradeOffer{To: "b", OfferedCash: 1})))

	assert.Equal(t, board.NotCounterpart, rejectCode(t, s, board.Action{Type: board.ActionCloseAuction, Player: "b"}))
	s = mustApply(t, s, board.Action{Type: board.ActionCloseAuction, Player: "a"})

	assert.Equal(t, "c", s.Property(5).Owner)
	assert.Equal(t, 1350, s.Player("c").Cash)
	assert.Equal(t, 1500, s.Player("b").Cash)
	assert.Nil(t, s.Pending)
	assert.Equal(t, board.PhaseInProgress, s.Phase)
	assert.Equal(t, board.StepPostRoll, s.Step)
	assert.Equal(t, 0, s.Turn)
}

// TestApply_AuctionExpiresUnsold 測試無人出價的拍賣到期
func TestApply_AuctionExpiresUnsold(t *testing.T) {
	s := newGame(t, "a", "b")
	s = mustApply(t, s, roll("a", 2, 3))
	s = mustApply(t, s, board.Action{Type: board.ActionDecline, Player: "a", At: 1_000})

	s = mustApply(t, s, board.Action{Type: board.ActionExpire, PendingID: s.Pending.ID, At: 1_000 + s.Rules.AuctionWindowMs})

	assert.Empty(t, s.Property(5).Owner)
	assert.Equal(t, board.PhaseInProgress, s.Phase)
	assert.Equal(t, 1500, s.Player("a").Cash)
}
