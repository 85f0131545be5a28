package board

import "slices"

// StateDiff 兩個相鄰狀態之間的最小差異
//
// 只帶有變動的欄位；Pending/Debt 以 *Changed 旗標區分「被清除」與「未變動」。
// 牌堆順序屬於隱藏資訊，永遠不出現在差異中。
type StateDiff struct {
	Seq            uint64     `json:"seq"`
	Phase          *Phase     `json:"phase,omitempty"`
	Step           *Step      `json:"step,omitempty"`
	Turn           *int       `json:"turn,omitempty"`
	Doubles        *int       `json:"doubles,omitempty"`
	LastRoll       *[2]int    `json:"last_roll,omitempty"`
	PlayerCount    *int       `json:"player_count,omitempty"`
	Players        []Player   `json:"players,omitempty"`
	Properties     []Property `json:"properties,omitempty"`
	PendingChanged bool       `json:"pending_changed,omitempty"`
	Pending        *Pending   `json:"pending,omitempty"`
	DebtChanged    bool       `json:"debt_changed,omitempty"`
	Debt           *Debt      `json:"debt,omitempty"`
	HousesLeft     *int       `json:"houses_left,omitempty"`
	HotelsLeft     *int       `json:"hotels_left,omitempty"`
	Winner         *string    `json:"winner,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// Diff 計算 before → after 的差異
func Diff(before, after *State) StateDiff {
	d := StateDiff{Seq: after.Seq}

	if before.Phase != after.Phase {
		d.Phase = ptr(after.Phase)
	}
	if before.Step != after.Step {
		d.Step = ptr(after.Step)
	}
	if before.Turn != after.Turn {
		d.Turn = ptr(after.Turn)
	}
	if before.Doubles != after.Doubles {
		d.Doubles = ptr(after.Doubles)
	}
	if before.LastRoll != after.LastRoll {
		d.LastRoll = ptr(after.LastRoll)
	}
	if before.HousesLeft != after.HousesLeft {
		d.HousesLeft = ptr(after.HousesLeft)
	}
	if before.HotelsLeft != after.HotelsLeft {
		d.HotelsLeft = ptr(after.HotelsLeft)
	}
	if before.Winner != after.Winner {
		d.Winner = ptr(after.Winner)
	}

	// 人數改變（大廳入座、離座）時座位重排，整份送出
	if len(before.Players) != len(after.Players) {
		d.PlayerCount = ptr(len(after.Players))
		d.Players = slices.Clone(after.Players)
	} else {
		for i := range after.Players {
			if !before.Players[i].equal(&after.Players[i]) {
				d.Players = append(d.Players, after.Players[i])
			}
		}
	}

	for i := range after.Properties {
		if i >= len(before.Properties) || before.Properties[i] != after.Properties[i] {
			d.Properties = append(d.Properties, after.Properties[i])
		}
	}

	if !pendingEqual(before.Pending, after.Pending) {
		d.PendingChanged = true
		d.Pending = after.Pending.clone()
	}
	if !debtEqual(before.Debt, after.Debt) {
		d.DebtChanged = true
		if after.Debt != nil {
			cp := *after.Debt
			cp.Payees = slices.Clone(after.Debt.Payees)
			d.Debt = &cp
		}
	}
	return d
}

func pendingEqual(a, b *Pending) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.HighBid != b.HighBid || a.HighBidder != b.HighBidder || a.ExpiresAt != b.ExpiresAt {
		return false
	}
	return slices.Equal(a.Counterparts, b.Counterparts)
}

func debtEqual(a, b *Debt) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Debtor == b.Debtor && a.Reason == b.Reason && slices.Equal(a.Payees, b.Payees)
}
