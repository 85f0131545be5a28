package board

import "fmt"

// landing 落地時的租金修正（卡片帶來的倍率）
type landing int

const (
	landNormal landing = iota
	landDoubleRailroad
	landUtilityTenX
)

func (t *tx) roll() *Rejection {
	p, rej := t.onTurn(StepPreRoll)
	if rej != nil {
		return rej
	}
	d1, d2 := t.a.Dice[0], t.a.Dice[1]
	if d1 < 1 || d1 > 6 || d2 < 1 || d2 > 6 {
		return reject(MalformedAction, "invalid dice %v", t.a.Dice)
	}
	s := t.s
	s.LastRoll = t.a.Dice
	total := d1 + d2
	doubles := d1 == d2
	t.emit("rolled", p.ID, p.Position, total, fmt.Sprintf("%d+%d", d1, d2))

	if p.InJail {
		return t.rollInJail(p, total, doubles)
	}

	if doubles {
		s.Doubles++
		if s.Doubles >= 3 {
			t.sendToJail(p, "three_doubles")
			t.advanceTurn()
			return nil
		}
	} else {
		s.Doubles = 0
	}

	t.move(p, total)
	t.land(p, landNormal)
	return nil
}

// rollInJail 擲出雙數出獄（不再擲）；失敗達上限時強制繳保釋金後移動
func (t *tx) rollInJail(p *Player, total int, doubles bool) *Rejection {
	s := t.s
	s.Doubles = 0
	if doubles {
		t.leaveJail(p, "doubles")
		t.move(p, total)
		t.land(p, landNormal)
		return nil
	}

	p.JailTurns++
	if p.JailTurns < s.Rules.MaxJailTurns {
		s.Step = StepPostRoll
		return nil
	}

	if !t.collect(p, s.Rules.JailBail, "") {
		return nil
	}
	t.emit("paid_bail", p.ID, 0, s.Rules.JailBail, "forced")
	t.leaveJail(p, "bail")
	t.move(p, total)
	t.land(p, landNormal)
	return nil
}

func (t *tx) payBail() *Rejection {
	p, rej := t.onTurn(StepPreRoll)
	if rej != nil {
		return rej
	}
	if !p.InJail {
		return reject(NotInJail, "player %s is not in jail", p.ID)
	}
	bail := t.s.Rules.JailBail
	if p.Cash < bail {
		return reject(InsufficientFunds, "bail is %d, cash is %d", bail, p.Cash)
	}
	p.Cash -= bail
	t.emit("paid_bail", p.ID, 0, bail, "")
	t.leaveJail(p, "bail")
	return nil
}

func (t *tx) useJailCard() *Rejection {
	p, rej := t.onTurn(StepPreRoll)
	if rej != nil {
		return rej
	}
	if !p.InJail {
		return reject(NotInJail, "player %s is not in jail", p.ID)
	}
	if len(p.JailCards) == 0 {
		return reject(NoJailCard, "player %s holds no jail card", p.ID)
	}
	card := p.JailCards[0]
	p.JailCards = p.JailCards[1:]
	t.s.Decks.putBack(card)
	t.leaveJail(p, "card")
	return nil
}

func (t *tx) sendToJail(p *Player, reason string) {
	p.Position = JailPosition
	p.InJail = true
	p.JailTurns = 0
	t.s.Doubles = 0
	t.s.Step = StepPostRoll
	t.emit("jailed", p.ID, JailPosition, 0, reason)
}

func (t *tx) leaveJail(p *Player, how string) {
	p.InJail = false
	p.JailTurns = 0
	t.emit("left_jail", p.ID, JailPosition, 0, how)
}

// move 前進 steps 格，經過或停在起點領獎金
func (t *tx) move(p *Player, steps int) {
	target := (p.Position + steps) % BoardSize
	if p.Position+steps >= BoardSize {
		t.passGo(p)
	}
	p.Position = target
	t.emit("moved", p.ID, target, steps, "")
}

// moveTo 直接前往指定格（卡片），繞過起點時領獎金
func (t *tx) moveTo(p *Player, target int) {
	if target <= p.Position {
		t.passGo(p)
	}
	p.Position = target
	t.emit("moved", p.ID, target, 0, "card")
}

func (t *tx) passGo(p *Player) {
	p.Cash += t.s.Rules.PassGoBonus
	t.emit("passed_go", p.ID, GoPosition, t.s.Rules.PassGoBonus, "")
}

// land 結算落地效果並決定子狀態
func (t *tx) land(p *Player, mod landing) {
	s := t.s
	sp := Spaces[p.Position]

	switch sp.Kind {
	case SpaceStreet, SpaceRailroad, SpaceUtility:
		prop := s.Property(sp.Position)
		switch {
		case prop.Owner == "":
			s.Step = StepPropertyDecision
			t.emit("property_offered", p.ID, sp.Position, sp.Price, sp.Name)
			return
		case prop.Owner == p.ID || prop.Mortgaged:
		default:
			rent := t.rent(sp, prop, mod)
			if rent > 0 {
				t.owe(p, []Payment{{To: prop.Owner, Amount: rent}}, "rent")
				return
			}
		}
	case SpaceTax:
		t.owe(p, []Payment{{Amount: sp.Tax}}, "tax")
		return
	case SpaceChance:
		t.drawCard(p, DeckChance)
		return
	case SpaceCommunityChest:
		t.drawCard(p, DeckCommunityChest)
		return
	case SpaceGoToJail:
		t.sendToJail(p, "space")
		return
	}
	s.Step = t.resumeStep()
}

// owe 建立待結清的強制付款
func (t *tx) owe(p *Player, payees []Payment, reason string) {
	s := t.s
	d := &Debt{Debtor: p.ID, Reason: reason}
	for _, pay := range payees {
		if pay.Amount > 0 {
			d.Payees = append(d.Payees, pay)
		}
	}
	if d.Total() == 0 {
		s.Step = t.resumeStep()
		return
	}
	s.Debt = d
	s.Step = StepPayingDebt
	t.emit("payment_due", p.ID, p.Position, d.Total(), reason)
}

// rent 計算租金
func (t *tx) rent(sp Space, prop *Property, mod landing) int {
	s := t.s
	switch sp.Kind {
	case SpaceRailroad:
		owned := 0
		for _, pos := range groupMembers("railroad") {
			if s.Property(pos).Owner == prop.Owner {
				owned++
			}
		}
		rent := 25 << (owned - 1)
		if mod == landDoubleRailroad {
			rent *= 2
		}
		return rent
	case SpaceUtility:
		dice := s.LastRoll[0] + s.LastRoll[1]
		mult := 4
		if t.ownsGroup(prop.Owner, "utility") || mod == landUtilityTenX {
			mult = 10
		}
		return dice * mult
	default:
		if prop.Level > 0 {
			return sp.Rent[prop.Level]
		}
		// 加倍只看持有整組，組內有抵押也照算
		if t.ownsGroup(prop.Owner, sp.Group) {
			return sp.Rent[0] * 2
		}
		return sp.Rent[0]
	}
}

func (t *tx) ownsGroup(owner, group string) bool {
	for _, pos := range groupMembers(group) {
		if t.s.Property(pos).Owner != owner {
			return false
		}
	}
	return true
}

func (t *tx) groupMortgaged(group string) bool {
	for _, pos := range groupMembers(group) {
		if t.s.Property(pos).Mortgaged {
			return true
		}
	}
	return false
}

// drawCard 抽卡並套用效果
func (t *tx) drawCard(p *Player, kind DeckKind) {
	s := t.s
	idx, card := s.Decks.draw(kind)
	t.emit("card_drawn", p.ID, p.Position, 0, card.Text)

	switch card.Effect {
	case CardCollect:
		p.Cash += card.Value
	case CardPay:
		t.owe(p, []Payment{{Amount: card.Value}}, "card")
		return
	case CardCollectFromEach:
		for i := range s.Players {
			other := &s.Players[i]
			if other.ID == p.ID || !other.Active() {
				continue
			}
			t.collect(other, card.Value, p.ID)
			if s.Phase == PhaseEnded {
				return
			}
		}
	case CardPayEach:
		var payees []Payment
		for i := range s.Players {
			other := &s.Players[i]
			if other.ID != p.ID && other.Active() {
				payees = append(payees, Payment{To: other.ID, Amount: card.Value})
			}
		}
		t.owe(p, payees, "card")
		return
	case CardMoveTo:
		t.moveTo(p, card.Value)
		t.land(p, landNormal)
		return
	case CardNearestRailroad:
		t.moveTo(p, nextOfKind(p.Position, SpaceRailroad))
		t.land(p, landDoubleRailroad)
		return
	case CardNearestUtility:
		t.moveTo(p, nextOfKind(p.Position, SpaceUtility))
		t.land(p, landUtilityTenX)
		return
	case CardMoveBack:
		p.Position = (p.Position - card.Value + BoardSize) % BoardSize
		t.emit("moved", p.ID, p.Position, -card.Value, "card")
		t.land(p, landNormal)
		return
	case CardGoToJail:
		t.sendToJail(p, "card")
		return
	case CardJailFree:
		p.JailCards = append(p.JailCards, JailCard{Deck: kind, Index: idx})
	case CardRepairs:
		houses, hotels := 0, 0
		for _, prop := range s.Holdings(p.ID) {
			if prop.Level == 5 {
				hotels++
			} else {
				houses += prop.Level
			}
		}
		t.owe(p, []Payment{{Amount: houses*card.PerHouse + hotels*card.PerHotel}}, "repairs")
		return
	}
	s.Step = t.resumeStep()
}
