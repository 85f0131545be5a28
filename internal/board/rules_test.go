package board_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
)

// TestApply_Rent 測試租金計算
func TestApply_Rent(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *board.State)
		dice     [2]int
		wantDebt int // 0 表示沒有欠款
	}{
		{
			name:     "base rent",
			setup:    func(s *board.State) { own(s, "b", 6) },
			dice:     [2]int{2, 4},
			wantDebt: 6,
		},
		{
			name:     "full colour set doubles base rent",
			setup:    func(s *board.State) { own(s, "b", 6, 8, 9) },
			dice:     [2]int{2, 4},
			wantDebt: 12,
		},
		{
			name: "mortgage elsewhere in the set keeps the bonus",
			setup: func(s *board.State) {
				own(s, "b", 6, 8, 9)
				s.Property(9).Mortgaged = true
			},
			dice:     [2]int{2, 4},
			wantDebt: 12,
		},
		{
			name: "two houses",
			setup: func(s *board.State) {
				own(s, "b", 6, 8, 9)
				s.Property(6).Level = 2
			},
			dice:     [2]int{2, 4},
			wantDebt: 90,
		},
		{
			name: "hotel",
			setup: func(s *board.State) {
				own(s, "b", 6, 8, 9)
				s.Property(6).Level = 5
			},
			dice:     [2]int{2, 4},
			wantDebt: 550,
		},
		{
			name: "mortgaged property charges nothing",
			setup: func(s *board.State) {
				own(s, "b", 6)
				s.Property(6).Mortgaged = true
			},
			dice: [2]int{2, 4},
		},
		{
			name:  "own property",
			setup: func(s *board.State) { own(s, "a", 6) },
			dice:  [2]int{2, 4},
		},
		{
			name:     "railroads scale with count",
			setup:    func(s *board.State) { own(s, "b", 5, 15, 25) },
			dice:     [2]int{2, 3},
			wantDebt: 100,
		},
		{
			name: "one utility pays four times dice",
			setup: func(s *board.State) {
				own(s, "b", 12)
				s.Players[0].Position = 7
			},
			dice:     [2]int{2, 3},
			wantDebt: 20,
		},
		{
			name: "both utilities pay ten times dice",
			setup: func(s *board.State) {
				own(s, "b", 12, 28)
				s.Players[0].Position = 7
			},
			dice:     [2]int{2, 3},
			wantDebt: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newGame(t, "a", "b")
			tt.setup(s)
			s = mustApply(t, s, roll("a", tt.dice[0], tt.dice[1]))

			if tt.wantDebt == 0 {
				assert.Nil(t, s.Debt)
				assert.Equal(t, board.StepPostRoll, s.Step)
				return
			}
			require.NotNil(t, s.Debt)
			assert.Equal(t, board.StepPayingDebt, s.Step)
			assert.Equal(t, tt.wantDebt, s.Debt.Total())
		})
	}
}

// TestApply_PayRent 測試繳租轉帳給地主
func TestApply_PayRent(t *testing.T) {
	s := newGame(t, "a", "b")
	own(s, "b", 6, 8, 9)
	s = mustApply(t, s, roll("a", 2, 4))
	s = mustApply(t, s, board.Action{Type: board.ActionPayRent, Player: "a"})

	assert.Equal(t, 1488, s.Player("a").Cash)
	assert.Equal(t, 1512, s.Player("b").Cash)
	assert.Nil(t, s.Debt)
	assert.Equal(t, board.StepPostRoll, s.Step)
}

// TestApply_Jail 測試入獄與出獄規則
func TestApply_Jail(t *testing.T) {
	jailed := func(s *board.State) {
		s.Players[0].InJail = true
		s.Players[0].Position = board.JailPosition
	}

	tests := []struct {
		name     string
		setup    func(s *board.State)
		action   board.Action
		validate func(t *testing.T, s *board.State)
	}{
		{
			name:   "three doubles go to jail and end the turn",
			setup:  func(s *board.State) { s.Doubles = 2 },
			action: roll("a", 3, 3),
			validate: func(t *testing.T, s *board.State) {
				a := s.Player("a")
				assert.True(t, a.InJail)
				assert.Equal(t, board.JailPosition, a.Position)
				assert.Equal(t, 1, s.Turn)
				assert.Equal(t, board.StepPreRoll, s.Step)
			},
		},
		{
			name:   "go to jail space",
			setup:  func(s *board.State) { s.Players[0].Position = 26 },
			action: roll("a", 1, 3),
			validate: func(t *testing.T, s *board.State) {
				a := s.Player("a")
				assert.True(t, a.InJail)
				assert.Equal(t, board.JailPosition, a.Position)
				assert.Equal(t, 1500, a.Cash)
				assert.Equal(t, board.StepPostRoll, s.Step)
			},
		},
		{
			name:   "failed roll stays in jail",
			setup:  jailed,
			action: roll("a", 1, 2),
			validate: func(t *testing.T, s *board.State) {
				a := s.Player("a")
				assert.True(t, a.InJail)
				assert.Equal(t, 1, a.JailTurns)
				assert.Equal(t, board.JailPosition, a.Position)
				assert.Equal(t, board.StepPostRoll, s.Step)
			},
		},
		{
			name: "last failed roll forces bail",
			setup: func(s *board.State) {
				jailed(s)
				s.Players[0].JailTurns = 2
			},
			action: roll("a", 1, 2),
			validate: func(t *testing.T, s *board.State) {
				a := s.Player("a")
				assert.False(t, a.InJail)
				assert.Equal(t, 1450, a.Cash)
				assert.Equal(t, 13, a.Position)
				assert.Equal(t, board.StepPropertyDecision, s.Step)
			},
		},
		{
			name:   "doubles leave jail without another roll",
			setup:  jailed,
			action: roll("a", 3, 3),
			validate: func(t *testing.T, s *board.State) {
				a := s.Player("a")
				assert.False(t, a.InJail)
				assert.Equal(t, 16, a.Position)
				assert.Equal(t, 0, s.Doubles)
			},
		},
		{
			name:   "pay bail",
			setup:  jailed,
			action: board.Action{Type: board.ActionPayBail, Player: "a"},
			validate: func(t *testing.T, s *board.State) {
				a := s.Player("a")
				assert.False(t, a.InJail)
				assert.Equal(t, 1450, a.Cash)
				assert.Equal(t, board.StepPreRoll, s.Step)
			},
		},
		{
			name: "use jail card returns it to the deck",
			setup: func(s *board.State) {
				jailed(s)
				s.Players[0].JailCards = []board.JailCard{{Deck: board.DeckChance, Index: 7}}
				s.Decks.Chance = onTop(s.Decks.Chance, 7)[1:]
			},
			action: board.Action{Type: board.ActionUseJailCard, Player: "a"},
			validate: func(t *testing.T, s *board.State) {
				a := s.Player("a")
				assert.False(t, a.InJail)
				assert.Empty(t, a.JailCards)
				require.Len(t, s.Decks.Chance, len(board.ChanceCards))
				assert.Equal(t, 7, s.Decks.Chance[len(s.Decks.Chance)-1])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newGame(t, "a", "b")
			tt.setup(s)
			tt.validate(t, mustApply(t, s, tt.action))
		})
	}
}

// TestApply_JailRejections 測試出獄相關的拒絕
func TestApply_JailRejections(t *testing.T) {
	s := newGame(t, "a", "b")
	assert.Equal(t, board.NotInJail, rejectCode(t, s, board.Action{Type: board.ActionPayBail, Player: "a"}))

	s.Players[0].InJail = true
	assert.Equal(t, board.NoJailCard, rejectCode(t, s, board.Action{Type: board.ActionUseJailCard, Player: "a"}))

	s.Players[0].Cash = 10
	assert.Equal(t, board.InsufficientFunds, rejectCode(t, s, board.Action{Type: board.ActionPayBail, Player: "a"}))
}

// TestApply_Cards 測試機會與命運卡效果
func TestApply_Cards(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *board.State)
		dice     [2]int
		validate func(t *testing.T, s *board.State)
	}{
		{
			name: "collect from every player",
			setup: func(s *board.State) {
				s.Players[0].Position = 14
				s.Decks.CommunityChest = onTop(s.Decks.CommunityChest, 6)
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				assert.Equal(t, 1520, s.Player("a").Cash)
				assert.Equal(t, 1490, s.Player("b").Cash)
				assert.Equal(t, 1490, s.Player("c").Cash)
				assert.Equal(t, board.StepPostRoll, s.Step)
			},
		},
		{
			name: "jail card is kept out of the deck",
			setup: func(s *board.State) {
				s.Players[0].Position = 14
				s.Decks.CommunityChest = onTop(s.Decks.CommunityChest, 7)
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				assert.Len(t, s.Player("a").JailCards, 1)
				assert.Len(t, s.Decks.CommunityChest, len(board.CommunityChestCards)-1)
			},
		},
		{
			name: "nearest railroad pays double",
			setup: func(s *board.State) {
				s.Players[0].Position = 4
				s.Decks.Chance = onTop(s.Decks.Chance, 8)
				own(s, "b", 15)
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				assert.Equal(t, 15, s.Player("a").Position)
				require.NotNil(t, s.Debt)
				assert.Equal(t, 50, s.Debt.Total())
			},
		},
		{
			name: "nearest utility pays ten times dice",
			setup: func(s *board.State) {
				s.Players[0].Position = 4
				s.Decks.Chance = onTop(s.Decks.Chance, 10)
				own(s, "b", 12)
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				assert.Equal(t, 12, s.Player("a").Position)
				require.NotNil(t, s.Debt)
				assert.Equal(t, 30, s.Debt.Total())
			},
		},
		{
			name: "move back onto income tax",
			setup: func(s *board.State) {
				s.Players[0].Position = 4
				s.Decks.Chance = onTop(s.Decks.Chance, 2)
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				assert.Equal(t, 4, s.Player("a").Position)
				require.NotNil(t, s.Debt)
				assert.Equal(t, 200, s.Debt.Total())
				assert.Equal(t, "tax", s.Debt.Reason)
			},
		},
		{
			name: "advance to go collects the bonus",
			setup: func(s *board.State) {
				s.Players[0].Position = 4
				s.Decks.Chance = onTop(s.Decks.Chance, 0)
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				assert.Equal(t, 0, s.Player("a").Position)
				assert.Equal(t, 1700, s.Player("a").Cash)
			},
		},
		{
			name: "repairs per house and hotel",
			setup: func(s *board.State) {
				s.Players[0].Position = 14
				s.Decks.CommunityChest = onTop(s.Decks.CommunityChest, 14)
				own(s, "a", 1, 3)
				s.Property(1).Level = 5
				s.Property(3).Level = 4
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				require.NotNil(t, s.Debt)
				assert.Equal(t, 4*40+115, s.Debt.Total())
			},
		},
		{
			name: "pay each player",
			setup: func(s *board.State) {
				s.Players[0].Position = 4
				s.Decks.Chance = onTop(s.Decks.Chance, 12)
			},
			dice: [2]int{1, 2},
			validate: func(t *testing.T, s *board.State) {
				require.NotNil(t, s.Debt)
				assert.Len(t, s.Debt.Payees, 2)
				assert.Equal(t, 100, s.Debt.Total())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newGame(t, "a", "b", "c")
			tt.setup(s)
			tt.validate(t, mustApply(t, s, roll("a", tt.dice[0], tt.dice[1])))
		})
	}
}

// TestApply_Build 測試平均建設與平均出售
func TestApply_Build(t *testing.T) {
	s := newGame(t, "a", "b")
	s.Step = board.StepPostRoll
	own(s, "a", 1, 5)

	assert.Equal(t, board.NoMonopoly, rejectCode(t, s, act(board.ActionBuild, "a", 1)))
	assert.Equal(t, board.NotBuildable, rejectCode(t, s, act(board.ActionBuild, "a", 5)))
	assert.Equal(t, board.PropertyNotOwned, rejectCode(t, s, act(board.ActionBuild, "a", 3)))

	own(s, "a", 3)
	assert.Equal(t, board.NotYourTurn, rejectCode(t, s, act(board.ActionBuild, "b", 1)))

	s = mustApply(t, s, act(board.ActionBuild, "a", 1))
	assert.Equal(t, 1, s.Property(1).Level)
	assert.Equal(t, 1450, s.Player("a").Cash)
	assert.Equal(t, board.TotalHouses-1, s.HousesLeft)

	assert.Equal(t, board.InvalidDevelopmentOrder, rejectCode(t, s, act(board.ActionBuild, "a", 1)))
	assert.Equal(t, board.HasBuildings, rejectCode(t, s, act(board.ActionMortgage, "a", 3)))

	s = mustApply(t, s, act(board.ActionBuild, "a", 3))
	s = mustApply(t, s, act(board.ActionBuild, "a", 1))
	// (2, 1)：只能從較高的那塊賣
	assert.Equal(t, board.InvalidDevelopmentOrder, rejectCode(t, s, act(board.ActionSellBuilding, "a", 3)))

	s = mustApply(t, s, act(board.ActionSellBuilding, "a", 1))
	assert.Equal(t, 1, s.Property(1).Level)
	assert.Equal(t, 1500-3*50+25, s.Player("a").Cash)
}

// TestApply_BuildHotel 測試四棟房屋後蓋旅館與建築存量
func TestApply_BuildHotel(t *testing.T) {
	s := newGame(t, "a", "b")
	s.Step = board.StepPostRoll
	own(s, "a", 1, 3)
	s.Property(1).Level = 4
	s.Property(3).Level = 4
	s.HousesLeft = board.TotalHouses - 8

	s = mustApply(t, s, act(board.ActionBuild, "a", 1))
	assert.Equal(t, 5, s.Property(1).Level)
	assert.Equal(t, board.TotalHotels-1, s.HotelsLeft)
	assert.Equal(t, board.TotalHouses-4, s.HousesLeft)

	s = mustApply(t, s, act(board.ActionBuild, "a", 3))
	assert.Equal(t, board.MaxDevelopment, rejectCode(t, s, act(board.ActionBuild, "a", 3)))

	s.HotelsLeft = board.TotalHotels
	s.Property(1).Level = 0
	s.Property(3).Level = 0
	s.HousesLeft = 0
	assert.Equal(t, board.NoBuildingsAvailable, rejectCode(t, s, act(board.ActionBuild, "a", 1)))
}

// TestApply_Mortgage 測試抵押與贖回
func TestApply_Mortgage(t *testing.T) {
	s := newGame(t, "a", "b")
	s.Step = board.StepPostRoll
	own(s, "a", 1)

	s = mustApply(t, s, act(board.ActionMortgage, "a", 1))
	assert.True(t, s.Property(1).Mortgaged)
	assert.Equal(t, 1530, s.Player("a").Cash)

	assert.Equal(t, board.PropertyMortgaged, rejectCode(t, s, act(board.ActionMortgage, "a", 1)))
	assert.Equal(t, board.PropertyNotOwned, rejectCode(t, s, act(board.ActionMortgage, "a", 3)))

	s = mustApply(t, s, act(board.ActionUnmortgage, "a", 1))
	assert.False(t, s.Property(1).Mortgaged)
	// 30 + 10% 進位 = 33
	assert.Equal(t, 1497, s.Player("a").Cash)

	assert.Equal(t, board.NotMortgaged, rejectCode(t, s, act(board.ActionUnmortgage, "a", 1)))
}
