package board

// ---- 購買 ----

// buy 以定價買下目前所在的無主地產
//
// 先檢查地產是否已有主人再檢查回合，同一塊地的競爭購買者會拿到 AlreadyOwned。
func (t *tx) buy() *Rejection {
	p, rej := t.participant()
	if rej != nil {
		return rej
	}
	pos := t.a.Position
	if pos == 0 {
		pos = p.Position
	}
	prop := t.s.Property(pos)
	if prop == nil {
		return reject(MalformedAction, "space %d cannot be bought", pos)
	}
	if prop.Owner != "" {
		return reject(AlreadyOwned, "space %d is owned by %s", pos, prop.Owner)
	}
	if _, rej := t.onTurn(StepPropertyDecision); rej != nil {
		return rej
	}
	if p.Position != pos {
		return reject(InvalidPhase, "player %s is not on space %d", p.ID, pos)
	}
	sp := Spaces[pos]
	if p.Cash < sp.Price {
		return reject(InsufficientFunds, "price is %d, cash is %d", sp.Price, p.Cash)
	}
	p.Cash -= sp.Price
	prop.Owner = p.ID
	t.emit("bought", p.ID, pos, sp.Price, sp.Name)
	t.s.Step = t.resumeStep()
	return nil
}

// decline 放棄購買，地產進入拍賣
func (t *tx) decline() *Rejection {
	p, rej := t.onTurn(StepPropertyDecision)
	if rej != nil {
		return rej
	}
	t.openAuction(p, p.Position)
	return nil
}

// ---- 建築與抵押 ----

func (t *tx) ownedBy(p *Player, pos int) (Space, *Property, *Rejection) {
	prop := t.s.Property(pos)
	if prop == nil {
		return Space{}, nil, reject(PropertyNotOwned, "space %d cannot be owned", pos)
	}
	if prop.Owner != p.ID {
		return Space{}, nil, reject(PropertyNotOwned, "space %d is not owned by %s", pos, p.ID)
	}
	return Spaces[pos], prop, nil
}

func (t *tx) groupLevels(group string) (lo, hi int) {
	lo = 5
	for _, pos := range groupMembers(group) {
		l := t.s.Property(pos).Level
		lo = min(lo, l)
		hi = max(hi, l)
	}
	return lo, hi
}

func (t *tx) build() *Rejection {
	p, rej := t.onTurn(StepPreRoll, StepPostRoll)
	if rej != nil {
		return rej
	}
	sp, prop, rej := t.ownedBy(p, t.a.Position)
	if rej != nil {
		return rej
	}
	s := t.s
	switch {
	case sp.Kind != SpaceStreet:
		return reject(NotBuildable, "%s cannot be developed", sp.Name)
	case !t.ownsGroup(p.ID, sp.Group):
		return reject(NoMonopoly, "player %s does not own all of %s", p.ID, sp.Group)
	case t.groupMortgaged(sp.Group):
		return reject(PropertyMortgaged, "a property in %s is mortgaged", sp.Group)
	case prop.Level >= 5:
		return reject(MaxDevelopment, "%s already has a hotel", sp.Name)
	}
	if lo, _ := t.groupLevels(sp.Group); prop.Level > lo {
		return reject(InvalidDevelopmentOrder, "build evenly across %s", sp.Group)
	}
	if (prop.Level == 4 && s.HotelsLeft == 0) || (prop.Level < 4 && s.HousesLeft == 0) {
		return reject(NoBuildingsAvailable, "bank has no buildings left")
	}
	if p.Cash < sp.HouseCost {
		return reject(InsufficientFunds, "building costs %d, cash is %d", sp.HouseCost, p.Cash)
	}

	p.Cash -= sp.HouseCost
	if prop.Level == 4 {
		s.HotelsLeft--
		s.HousesLeft += 4
	} else {
		s.HousesLeft--
	}
	prop.Level++
	t.emit("built", p.ID, sp.Position, sp.HouseCost, "")
	return nil
}

func (t *tx) sellBuilding() *Rejection {
	p, rej := t.onTurn(StepPreRoll, StepPostRoll, StepPayingDebt)
	if rej != nil {
		return rej
	}
	sp, prop, rej := t.ownedBy(p, t.a.Position)
	if rej != nil {
		return rej
	}
	s := t.s
	if prop.Level == 0 {
		return reject(InvalidDevelopmentOrder, "%s has no buildings", sp.Name)
	}
	if _, hi := t.groupLevels(sp.Group); prop.Level < hi {
		return reject(InvalidDevelopmentOrder, "sell evenly across %s", sp.Group)
	}
	if prop.Level == 5 {
		if s.HousesLeft < 4 {
			return reject(NoBuildingsAvailable, "bank cannot break the hotel into houses")
		}
		s.HotelsLeft++
		s.HousesLeft -= 4
	} else {
		s.HousesLeft++
	}
	prop.Level--
	refund := sp.HouseCost / 2
	p.Cash += refund
	t.emit("sold_building", p.ID, sp.Position, refund, "")
	return nil
}

func (t *tx) mortgage() *Rejection {
	p, rej := t.onTurn(StepPreRoll, StepPostRoll, StepPayingDebt)
	if rej != nil {
		return rej
	}
	sp, prop, rej := t.ownedBy(p, t.a.Position)
	if rej != nil {
		return rej
	}
	if prop.Mortgaged {
		return reject(PropertyMortgaged, "%s is already mortgaged", sp.Name)
	}
	if _, hi := t.groupLevels(sp.Group); hi > 0 {
		return reject(HasBuildings, "sell the buildings in %s first", sp.Group)
	}
	prop.Mortgaged = true
	p.Cash += sp.MortgageValue()
	t.emit("mortgaged", p.ID, sp.Position, sp.MortgageValue(), "")
	return nil
}

func (t *tx) unmortgage() *Rejection {
	p, rej := t.onTurn(StepPreRoll, StepPostRoll)
	if rej != nil {
		return rej
	}
	sp, prop, rej := t.ownedBy(p, t.a.Position)
	if rej != nil {
		return rej
	}
	if !prop.Mortgaged {
		return reject(NotMortgaged, "%s is not mortgaged", sp.Name)
	}
	cost := sp.UnmortgageCost()
	if p.Cash < cost {
		return reject(InsufficientFunds, "unmortgage costs %d, cash is %d", cost, p.Cash)
	}
	p.Cash -= cost
	prop.Mortgaged = false
	t.emit("unmortgaged", p.ID, sp.Position, cost, "")
	return nil
}

// ---- 付款與破產 ----

func (t *tx) payRent() *Rejection {
	if _, rej := t.onTurn(StepPayingDebt); rej != nil {
		return rej
	}
	t.settleDebt()
	return nil
}

func (t *tx) declareBankruptcy() *Rejection {
	p, rej := t.onTurn(StepPayingDebt)
	if rej != nil {
		return rej
	}
	t.bankrupt(p, t.s.Debt.creditor())
	return nil
}

// settleDebt 結清目前玩家的欠款；資產不足時破產並回傳 false
func (t *tx) settleDebt() bool {
	s := t.s
	d := s.Debt
	debtor := s.Player(d.Debtor)
	total := d.Total()

	if !t.raise(debtor, total) {
		t.bankrupt(debtor, d.creditor())
		return false
	}
	for _, pay := range d.Payees {
		debtor.Cash -= pay.Amount
		if c := s.Player(pay.To); c != nil && c.Active() {
			c.Cash += pay.Amount
		}
		t.emit("paid", debtor.ID, 0, pay.Amount, pay.To)
	}
	s.Debt = nil
	s.Step = t.resumeStep()
	return true
}

// collect 立即收取一筆強制付款；付不出來就破產並回傳 false
func (t *tx) collect(debtor *Player, amount int, creditor string) bool {
	if !t.raise(debtor, amount) {
		t.bankrupt(debtor, creditor)
		return false
	}
	debtor.Cash -= amount
	if c := t.s.Player(creditor); c != nil && c.Active() {
		c.Cash += amount
	}
	t.emit("paid", debtor.ID, 0, amount, creditor)
	return true
}

// LiquidationValue 現金加上賣掉所有建築與抵押所有地產可得的金額
func (s *State) LiquidationValue(playerID string) int {
	p := s.Player(playerID)
	if p == nil {
		return 0
	}
	total := p.Cash
	for _, prop := range s.Holdings(playerID) {
		sp := Spaces[prop.Position]
		total += prop.Level * sp.HouseCost / 2
		if !prop.Mortgaged {
			total += sp.MortgageValue()
		}
	}
	return total
}

// raise 讓玩家現金至少達到 amount，必要時強制變賣；資產不足回傳 false
func (t *tx) raise(p *Player, amount int) bool {
	if p.Cash >= amount {
		return true
	}
	if t.s.LiquidationValue(p.ID) < amount {
		return false
	}
	t.liquidate(p, amount)
	return true
}

// liquidate 依設定的順序先整組賣掉建築，再逐一抵押
func (t *tx) liquidate(p *Player, amount int) {
	for p.Cash < amount {
		group := t.pickBuildingGroup(p)
		if group == "" {
			break
		}
		for _, pos := range groupMembers(group) {
			refund := t.returnBuildings(t.s.Property(pos))
			p.Cash += refund
		}
		t.emit("liquidated", p.ID, 0, 0, group)
	}
	for p.Cash < amount {
		prop := t.pickMortgage(p)
		if prop == nil {
			break
		}
		sp := Spaces[prop.Position]
		prop.Mortgaged = true
		p.Cash += sp.MortgageValue()
		t.emit("mortgaged", p.ID, sp.Position, sp.MortgageValue(), "forced")
	}
}

// better 依變賣順序比較兩個價格；同價時保留先出現（位置較小）的
func (t *tx) better(candidate, current int) bool {
	if t.s.Rules.LiquidationOrder == LiquidateMostExpensiveFirst {
		return candidate > current
	}
	return candidate < current
}

func (t *tx) pickBuildingGroup(p *Player) string {
	group, cost := "", 0
	for _, prop := range t.s.Holdings(p.ID) {
		if prop.Level == 0 {
			continue
		}
		sp := Spaces[prop.Position]
		if group == "" || t.better(sp.HouseCost, cost) {
			group, cost = sp.Group, sp.HouseCost
		}
	}
	return group
}

func (t *tx) pickMortgage(p *Player) *Property {
	var pick *Property
	for _, prop := range t.s.Holdings(p.ID) {
		if prop.Mortgaged || prop.Level > 0 {
			continue
		}
		if pick == nil || t.better(Spaces[prop.Position].Price, Spaces[pick.Position].Price) {
			pick = prop
		}
	}
	return pick
}

// returnBuildings 建築歸還銀行，回傳半價退款
func (t *tx) returnBuildings(prop *Property) int {
	if prop.Level == 0 {
		return 0
	}
	refund := prop.Level * Spaces[prop.Position].HouseCost / 2
	if prop.Level == 5 {
		t.s.HotelsLeft++
	} else {
		t.s.HousesLeft += prop.Level
	}
	prop.Level = 0
	return refund
}

// bankrupt 宣告破產
//
// 債權人為玩家：建築賣給銀行後，剩餘現金、地產（保留抵押）、出獄卡轉給債權人。
// 債權人為銀行：地產解除抵押後回到無主，出獄卡放回牌堆。
func (t *tx) bankrupt(debtor *Player, creditorID string) {
	s := t.s
	wasCurrent := s.Current().ID == debtor.ID
	cred := s.Player(creditorID)
	if cred != nil && !cred.Active() {
		cred = nil
	}

	holdings := s.Holdings(debtor.ID)
	for _, prop := range holdings {
		debtor.Cash += t.returnBuildings(prop)
	}
	if cred != nil {
		cred.Cash += debtor.Cash
		for _, prop := range holdings {
			prop.Owner = cred.ID
		}
		cred.JailCards = append(cred.JailCards, debtor.JailCards...)
	} else {
		for _, prop := range holdings {
			prop.Owner = ""
			prop.Mortgaged = false
		}
		for _, c := range debtor.JailCards {
			s.Decks.putBack(c)
		}
	}
	debtor.Cash = 0
	debtor.JailCards = nil
	debtor.InJail = false
	debtor.Bankrupt = true
	if s.Debt != nil && s.Debt.Debtor == debtor.ID {
		s.Debt = nil
	}
	t.emit("bankrupt", debtor.ID, 0, 0, creditorID)

	if t.checkWinner() {
		return
	}
	if wasCurrent {
		t.advanceTurn()
	}
}
