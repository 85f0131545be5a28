package board_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
)

// newGame 建立已開始的遊戲，第一位玩家先行
func newGame(t *testing.T, ids ...string) *board.State {
	t.Helper()
	s := board.NewState("room-1", board.DefaultRules())
	for _, id := range ids {
		s = mustApply(t, s, board.Action{Type: board.ActionJoin, Player: id})
	}
	return mustApply(t, s, board.Action{Type: board.ActionStart, Player: ids[0], Seed: 42})
}

func mustApply(t *testing.T, s *board.State, a board.Action) *board.State {
	t.Helper()
	next, _, err := board.Apply(s, a)
	require.NoError(t, err)
	return next
}

func rejectCode(t *testing.T, s *board.State, a board.Action) board.ReasonCode {
	t.Helper()
	_, _, err := board.Apply(s, a)
	var rej *board.Rejection
	require.ErrorAs(t, err, &rej)
	return rej.Code
}

func roll(player string, d1, d2 int) board.Action {
	return board.Action{Type: board.ActionRoll, Player: player, Dice: [2]int{d1, d2}}
}

func act(typ board.ActionType, player string, pos int) board.Action {
	return board.Action{Type: typ, Player: player, Position: pos}
}

func own(s *board.State, owner string, positions ...int) {
	for _, pos := range positions {
		s.Property(pos).Owner = owner
	}
}

// onTop 把指定的牌放到牌堆頂
func onTop(deck []int, card int) []int {
	out := []int{card}
	for _, c := range deck {
		if c != card {
			out = append(out, c)
		}
	}
	return out
}
