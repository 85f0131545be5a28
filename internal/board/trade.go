package board

import (
	"fmt"
	"slices"
)

// ---- 拍賣 ----

// openAuction 放棄購買的地產交給所有仍在遊戲中的玩家競標
func (t *tx) openAuction(p *Player, pos int) {
	s := t.s
	var bidders []string
	for i := range s.Players {
		if s.Players[i].Active() {
			bidders = append(bidders, s.Players[i].ID)
		}
	}
	s.Pending = &Pending{
		ID:           fmt.Sprintf("auction-%d", s.Seq+1),
		Kind:         PendingAuction,
		Proposer:     p.ID,
		Counterparts: bidders,
		Property:     pos,
		OpenedSeq:    s.Seq + 1,
		ExpiresAt:    t.a.At + s.Rules.AuctionWindowMs,
	}
	s.Phase = PhaseAwaitingAuction
	s.Step = t.resumeStep()
	t.emit("auction_opened", p.ID, pos, 0, s.Pending.ID)
}

func (t *tx) pendingOf(kind PendingKind) (*Pending, *Rejection) {
	pd := t.s.Pending
	if pd == nil || pd.Kind != kind {
		return nil, reject(NoPendingTransaction, "no open %s", kind)
	}
	if t.a.PendingID != "" && t.a.PendingID != pd.ID {
		return nil, reject(NoPendingTransaction, "%s is not the open %s", t.a.PendingID, kind)
	}
	return pd, nil
}

func (t *tx) bid() *Rejection {
	p, rej := t.participant()
	if rej != nil {
		return rej
	}
	pd, rej := t.pendingOf(PendingAuction)
	if rej != nil {
		return rej
	}
	if !slices.Contains(pd.Counterparts, p.ID) {
		return reject(NotCounterpart, "player %s is not bidding", p.ID)
	}
	if t.a.Amount <= 0 || t.a.Amount <= pd.HighBid {
		return reject(BidTooLow, "bid must exceed %d", pd.HighBid)
	}
	if t.a.Amount > p.Cash {
		return reject(InsufficientFunds, "bid %d exceeds cash %d", t.a.Amount, p.Cash)
	}
	pd.HighBid = t.a.Amount
	pd.HighBidder = p.ID
	t.emit("bid_placed", p.ID, pd.Property, t.a.Amount, "")
	return nil
}

func (t *tx) closeAuction() *Rejection {
	p, rej := t.participant()
	if rej != nil {
		return rej
	}
	pd, rej := t.pendingOf(PendingAuction)
	if rej != nil {
		return rej
	}
	if pd.Proposer != p.ID {
		return reject(NotCounterpart, "only %s can close the auction", pd.Proposer)
	}
	t.resolveAuction()
	t.autoPass()
	return nil
}

// resolveAuction 最高出價者得標；無人出價則保持無主
func (t *tx) resolveAuction() {
	s := t.s
	pd := s.Pending
	if w := s.Player(pd.HighBidder); w != nil && w.Active() {
		w.Cash -= pd.HighBid
		s.Property(pd.Property).Owner = w.ID
		t.emit("auction_won", w.ID, pd.Property, pd.HighBid, "")
	} else {
		t.emit("auction_unsold", "", pd.Property, 0, "")
	}
	t.closePending("")
}

// closePending 結束待決交易並回到進行中
func (t *tx) closePending(event string) {
	s := t.s
	if event != "" && s.Pending != nil {
		t.emit(event, s.Pending.Proposer, 0, 0, s.Pending.ID)
	}
	s.Pending = nil
	s.Phase = PhaseInProgress
}

// ---- 交易 ----

func (t *tx) proposeTrade() *Rejection {
	p, rej := t.participant()
	if rej != nil {
		return rej
	}
	if t.s.Pending != nil {
		return reject(PendingTransactionOpen, "%s is still open", t.s.Pending.ID)
	}
	if _, rej := t.onTurn(StepPreRoll, StepPostRoll); rej != nil {
		return rej
	}
	if t.a.Trade == nil {
		return reject(MalformedAction, "missing trade offer")
	}
	if rej := t.validateOffer(p, t.a.Trade); rej != nil {
		return rej
	}
	t.openTrade(p, t.a.Trade)
	return nil
}

func (t *tx) openTrade(p *Player, offer *TradeOffer) {
	s := t.s
	s.Pending = &Pending{
		ID:           fmt.Sprintf("trade-%d", s.Seq+1),
		Kind:         PendingTrade,
		Proposer:     p.ID,
		Counterparts: []string{offer.To},
		Offer:        offer.clone(),
		OpenedSeq:    s.Seq + 1,
		ExpiresAt:    t.a.At + s.Rules.TradeWindowMs,
	}
	s.Phase = PhaseAwaitingTrade
	t.emit("trade_proposed", p.ID, 0, 0, s.Pending.ID)
}

// validateOffer 雙方都擁有要交出的東西，且交易非空
func (t *tx) validateOffer(from *Player, o *TradeOffer) *Rejection {
	s := t.s
	to := s.Player(o.To)
	switch {
	case to == nil:
		return reject(UnknownPlayer, "player %s is not seated", o.To)
	case to.ID == from.ID:
		return reject(InvalidTrade, "cannot trade with yourself")
	case !to.Active():
		return reject(PlayerInactive, "player %s is out of the game", to.ID)
	case o.OfferedCash < 0 || o.RequestedCash < 0 || o.OfferedJailCards < 0 || o.RequestedJailCards < 0:
		return reject(InvalidTrade, "amounts must not be negative")
	case len(o.OfferedProperties)+len(o.RequestedProperties) == 0 &&
		o.OfferedCash+o.RequestedCash+o.OfferedJailCards+o.RequestedJailCards == 0:
		return reject(InvalidTrade, "trade is empty")
	}

	seen := map[int]bool{}
	check := func(owner *Player, positions []int) *Rejection {
		for _, pos := range positions {
			if seen[pos] {
				return reject(InvalidTrade, "space %d listed twice", pos)
			}
			seen[pos] = true
			sp, _, rej := t.ownedBy(owner, pos)
			if rej != nil {
				return rej
			}
			if _, hi := t.groupLevels(sp.Group); hi > 0 {
				return reject(HasBuildings, "sell the buildings in %s first", sp.Group)
			}
		}
		return nil
	}
	if rej := check(from, o.OfferedProperties); rej != nil {
		return rej
	}
	if rej := check(to, o.RequestedProperties); rej != nil {
		return rej
	}

	if from.Cash < o.OfferedCash {
		return reject(InsufficientFunds, "player %s has %d", from.ID, from.Cash)
	}
	if to.Cash < o.RequestedCash {
		return reject(InsufficientFunds, "player %s has %d", to.ID, to.Cash)
	}
	if len(from.JailCards) < o.OfferedJailCards {
		return reject(NoJailCard, "player %s holds %d jail cards", from.ID, len(from.JailCards))
	}
	if len(to.JailCards) < o.RequestedJailCards {
		return reject(NoJailCard, "player %s holds %d jail cards", to.ID, len(to.JailCards))
	}
	return nil
}

func (t *tx) acceptTrade() *Rejection {
	p, rej := t.participant()
	if rej != nil {
		return rej
	}
	pd, rej := t.pendingOf(PendingTrade)
	if rej != nil {
		return rej
	}
	if pd.Counterparts[0] != p.ID {
		return reject(NotCounterpart, "trade %s is addressed to %s", pd.ID, pd.Counterparts[0])
	}
	from := t.s.Player(pd.Proposer)
	if rej := t.validateOffer(from, pd.Offer); rej != nil {
		return rej
	}
	t.swap(from, p, pd.Offer)
	t.closePending("trade_completed")
	t.autoPass()
	return nil
}

// swap 原子交換：驗證全部通過後一次完成
func (t *tx) swap(from, to *Player, o *TradeOffer) {
	s := t.s
	for _, pos := range o.OfferedProperties {
		s.Property(pos).Owner = to.ID
	}
	for _, pos := range o.RequestedProperties {
		s.Property(pos).Owner = from.ID
	}
	from.Cash += o.RequestedCash - o.OfferedCash
	to.Cash += o.OfferedCash - o.RequestedCash

	given := from.JailCards[:o.OfferedJailCards]
	taken := to.JailCards[:o.RequestedJailCards]
	from.JailCards, to.JailCards =
		append(slices.Clone(from.JailCards[o.OfferedJailCards:]), taken...),
		append(slices.Clone(to.JailCards[o.RequestedJailCards:]), given...)
}

func (t *tx) rejectTrade() *Rejection {
	p, rej := t.participant()
	if rej != nil {
		return rej
	}
	pd, rej := t.pendingOf(PendingTrade)
	if rej != nil {
		return rej
	}
	if pd.Counterparts[0] != p.ID && pd.Proposer != p.ID {
		return reject(NotCounterpart, "player %s is not part of %s", p.ID, pd.ID)
	}
	t.closePending("trade_rejected")
	t.autoPass()
	return nil
}

// counterTrade 對方提出新條件，角色互換
func (t *tx) counterTrade() *Rejection {
	p, rej := t.participant()
	if rej != nil {
		return rej
	}
	pd, rej := t.pendingOf(PendingTrade)
	if rej != nil {
		return rej
	}
	if pd.Counterparts[0] != p.ID {
		return reject(NotCounterpart, "trade %s is addressed to %s", pd.ID, pd.Counterparts[0])
	}
	if t.a.Trade == nil {
		return reject(MalformedAction, "missing trade offer")
	}
	offer := t.a.Trade.clone()
	if offer.To == "" {
		offer.To = pd.Proposer
	}
	if offer.To != pd.Proposer {
		return reject(InvalidTrade, "counter offer must go back to %s", pd.Proposer)
	}
	if rej := t.validateOffer(p, offer); rej != nil {
		return rej
	}
	t.emit("trade_countered", p.ID, 0, 0, pd.ID)
	t.openTrade(p, offer)
	return nil
}

// ---- 計時器 ----

// expire 交易或拍賣視窗到期；已結束或未到期的計時器被拒絕
func (t *tx) expire() *Rejection {
	pd := t.s.Pending
	if pd == nil || pd.ID != t.a.PendingID {
		return reject(StaleTimer, "%s is no longer open", t.a.PendingID)
	}
	if t.a.At < pd.ExpiresAt {
		return reject(StaleTimer, "%s expires at %d", pd.ID, pd.ExpiresAt)
	}
	switch pd.Kind {
	case PendingTrade:
		t.closePending("trade_expired")
	case PendingAuction:
		t.resolveAuction()
	}
	t.autoPass()
	return nil
}
