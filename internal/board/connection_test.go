package board_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
)

func disconnect(player string, at, deadline int64) board.Action {
	return board.Action{Type: board.ActionDisconnect, Player: player, At: at, Deadline: deadline}
}

func forfeit(player string, at int64) board.Action {
	return board.Action{Type: board.ActionForfeit, Player: player, At: at}
}

// TestApply_DisconnectSkipsTurns 測試斷線玩家的回合被自動跳過
func TestApply_DisconnectSkipsTurns(t *testing.T) {
	s := newGame(t, "a", "b", "c")
	own(s, "a", 39)

	s = mustApply(t, s, disconnect("a", 1_000, 61_000))
	a := s.Player("a")
	assert.Equal(t, board.ConnDisconnected, a.Conn)
	assert.Equal(t, int64(1_000), a.DisconnectedAt)
	assert.Equal(t, int64(61_000), a.GraceDeadline)
	assert.Equal(t, 1, s.Turn, "current player's turn is auto-passed")

	s.Step = board.StepPostRoll
	s = mustApply(t, s, board.Action{Type: board.ActionEndTurn, Player: "b"})
	assert.Equal(t, 2, s.Turn)
	s.Step = board.StepPostRoll
	s = mustApply(t, s, board.Action{Type: board.ActionEndTurn, Player: "c"})
	assert.Equal(t, 1, s.Turn, "disconnected player is skipped")

	// 寬限期內重連：座位、持有、現金不變
	s = mustApply(t, s, board.Action{Type: board.ActionReconnect, Player: "a", At: 30_000})
	a = s.Player("a")
	assert.Equal(t, board.ConnConnected, a.Conn)
	assert.Equal(t, 0, a.Seat)
	assert.Equal(t, 1500, a.Cash)
	assert.Equal(t, "a", s.Property(39).Owner)

	s.Step = board.StepPostRoll
	s = mustApply(t, s, board.Action{Type: board.ActionEndTurn, Player: "b"})
	s.Step = board.StepPostRoll
	s = mustApply(t, s, board.Action{Type: board.ActionEndTurn, Player: "c"})
	assert.Equal(t, 0, s.Turn, "reconnected player gets turns again")
}

// TestApply_DisconnectSettlesDebt 測試自動跳過時強制結清欠款
func TestApply_DisconnectSettlesDebt(t *testing.T) {
	s := newGame(t, "a", "b")
	own(s, "b", 6)
	s.Players[0].Position = 4
	s = mustApply(t, s, roll("a", 1, 1))
	require.Equal(t, board.StepPayingDebt, s.Step)

	s = mustApply(t, s, disconnect("a", 1_000, 61_000))

	assert.Equal(t, 1500-6, s.Player("a").Cash)
	assert.Equal(t, 1500+6, s.Player("b").Cash)
	assert.Nil(t, s.Debt)
	assert.Equal(t, 1, s.Turn)
}

// TestApply_DisconnectLeavesPropertyUnowned 測試未決定的地產保持無主
func TestApply_DisconnectLeavesPropertyUnowned(t *testing.T) {
	s := newGame(t, "a", "b")
	s = mustApply(t, s, roll("a", 2, 3))
	require.Equal(t, board.StepPropertyDecision, s.Step)

	s = mustApply(t, s, disconnect("a", 1_000, 61_000))

	assert.Empty(t, s.Property(5).Owner)
	assert.Nil(t, s.Pending)
	assert.Equal(t, 1, s.Turn)
}

// TestApply_Forfeit 測試寬限期到期的認輸只會成立一次
func TestApply_Forfeit(t *testing.T) {
	s := newGame(t, "a", "b", "c")
	own(s, "a", 1, 3)
	s.Property(1).Level = 1
	s.Property(3).Level = 1
	s.HousesLeft = board.TotalHouses - 2
	s.Players[0].JailCards = []board.JailCard{{Deck: board.DeckChance, Index: 7}}
	s.Decks.Chance = onTop(s.Decks.Chance, 7)[1:]

	assert.Equal(t, board.StaleTimer, rejectCode(t, s, forfeit("a", 100_000)), "connected player cannot forfeit")

	s = mustApply(t, s, disconnect("a", 1_000, 61_000))
	assert.Equal(t, board.StaleTimer, rejectCode(t, s, forfeit("a", 60_999)), "grace period still running")

	s = mustApply(t, s, forfeit("a", 61_000))
	a := s.Player("a")
	assert.Equal(t, board.ConnForfeited, a.Conn)
	assert.False(t, a.Active())
	assert.Empty(t, s.Property(1).Owner)
	assert.Empty(t, s.Property(3).Owner)
	assert.Equal(t, board.TotalHouses, s.HousesLeft)
	assert.Len(t, s.Decks.Chance, len(board.ChanceCards))
	assert.Equal(t, 2, s.ActivePlayers())
	assert.Equal(t, board.PhaseInProgress, s.Phase)

	assert.Equal(t, board.StaleTimer, rejectCode(t, s, forfeit("a", 62_000)), "second forfeit is stale")
	assert.Equal(t, board.StaleTimer, rejectCode(t, s, board.Action{Type: board.ActionForfeit, Player: "a", At: 90_000}))

	// 之後的回合不再輪到 a
	for i := 0; i < 4; i++ {
		assert.NotEqual(t, 0, s.Turn)
		s.Step = board.StepPostRoll
		s = mustApply(t, s, board.Action{Type: board.ActionEndTurn, Player: s.Current().ID})
	}
}

// TestApply_ForfeitEndsGame 測試兩人局認輸後另一位獲勝
func TestApply_ForfeitEndsGame(t *testing.T) {
	s := newGame(t, "a", "b")
	s = mustApply(t, s, disconnect("b", 1_000, 2_000))
	s = mustApply(t, s, forfeit("b", 2_000))

	assert.Equal(t, board.PhaseEnded, s.Phase)
	assert.Equal(t, "a", s.Winner)
}

// TestApply_ForfeitCancelsTrade 測試認輸會取消牽涉自己的交易
func TestApply_ForfeitCancelsTrade(t *testing.T) {
	s := tradeGame(t)
	s = mustApply(t, s, propose("a", board.TradeOffer{To: "b", OfferedProperties: []int{1}}))
	s = mustApply(t, s, disconnect("b", 1_000, 2_000))
	s = mustApply(t, s, forfeit("b", 2_000))

	assert.Nil(t, s.Pending)
	assert.Equal(t, board.PhaseInProgress, s.Phase)
	assert.Equal(t, "a", s.Property(1).Owner)
}

// TestApply_EveryoneAway 測試全員斷線時回合停住，有人回來就跳過斷線者
func TestApply_EveryoneAway(t *testing.T) {
	s := newGame(t, "a", "b")
	s = mustApply(t, s, disconnect("b", 1_000, 100_000))
	assert.Equal(t, 0, s.Turn)

	s = mustApply(t, s, disconnect("a", 2_000, 100_000))
	assert.Equal(t, 0, s.Turn, "nobody left to hand the turn to")

	s = mustApply(t, s, board.Action{Type: board.ActionReconnect, Player: "b", At: 3_000})
	assert.Equal(t, 1, s.Turn)
	assert.Equal(t, board.StepPreRoll, s.Step)
}

// TestApply_LobbyForfeit 測試大廳中逾時直接釋出座位
func TestApply_LobbyForfeit(t *testing.T) {
	s := board.NewState("room-1", board.DefaultRules())
	s = mustApply(t, s, board.Action{Type: board.ActionJoin, Player: "a"})
	s = mustApply(t, s, board.Action{Type: board.ActionJoin, Player: "b"})
	s = mustApply(t, s, disconnect("a", 1_000, 2_000))
	s = mustApply(t, s, forfeit("a", 2_000))

	require.Len(t, s.Players, 1)
	assert.Equal(t, "b", s.Players[0].ID)
	assert.Equal(t, board.PhaseLobby, s.Phase)
}

// TestApply_GraceRenewed 測試已斷線玩家的寬限期只能延後
func TestApply_GraceRenewed(t *testing.T) {
	s := newGame(t, "a", "b", "c")
	s = mustApply(t, s, disconnect("a", 1_000, 2_000))

	assert.Equal(t, board.PlayerInactive, rejectCode(t, s, disconnect("a", 1_500, 2_000)), "same deadline")
	assert.Equal(t, board.PlayerInactive, rejectCode(t, s, disconnect("a", 1_500, 1_800)), "earlier deadline")

	s = mustApply(t, s, disconnect("a", 10_000, 70_000))
	a := s.Player("a")
	assert.Equal(t, board.ConnDisconnected, a.Conn)
	assert.Equal(t, int64(1_000), a.DisconnectedAt)
	assert.Equal(t, int64(70_000), a.GraceDeadline)

	assert.Equal(t, board.StaleTimer, rejectCode(t, s, forfeit("a", 2_000)), "old deadline no longer applies")
	s = mustApply(t, s, forfeit("a", 70_000))
	assert.Equal(t, board.ConnForfeited, s.Player("a").Conn)
}
