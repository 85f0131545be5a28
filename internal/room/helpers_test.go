package room_test

import (
	"testing"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
)

// nextAction 讓遊戲繼續前進的一個合法動作
func nextAction(s *board.State) board.Action {
	if p := s.Pending; p != nil {
		if p.Kind == board.PendingAuction {
			return board.Action{Type: board.ActionCloseAuction, Player: p.Proposer}
		}
		return board.Action{Type: board.ActionRejectTrade, Player: p.Proposer}
	}
	if s.Debt != nil {
		return board.Action{Type: board.ActionPayRent, Player: s.Debt.Debtor}
	}

	cur := s.Current()
	switch s.Step {
	case board.StepPropertyDecision:
		if cur.Cash >= board.Spaces[cur.Position].Price {
			return board.Action{Type: board.ActionBuy, Player: cur.ID}
		}
		return board.Action{Type: board.ActionDecline, Player: cur.ID}
	case board.StepPostRoll:
		return board.Action{Type: board.ActionEndTurn, Player: cur.ID}
	default:
		return board.Action{Type: board.ActionRoll, Player: cur.ID}
	}
}

// play 一直出合法動作直到序號達到 seq
func play(t *testing.T, r *room.Room, seq uint64) {
	t.Helper()
	for r.State().Seq < seq {
		s := r.State()
		if s.Phase == board.PhaseEnded {
			t.Fatalf("game ended at seq %d before reaching %d", s.Seq, seq)
		}
		submit(t, r, nextAction(s))
	}
}
