package board

// tx 單次轉移的工作區：在副本上修改並累積事件
type tx struct {
	s      *State
	a      Action
	events []Event
}

func (t *tx) emit(typ, player string, pos, amount int, detail string) {
	t.events = append(t.events, Event{Type: typ, Player: player, Position: pos, Amount: amount, Detail: detail})
}

// Apply 套用一個動作
//
// 成功時回傳新狀態（Seq+1）與事件；失敗時 error 一定是 *Rejection，輸入狀態不變。
func Apply(s *State, a Action) (*State, []Event, error) {
	if s == nil {
		return nil, nil, reject(MalformedAction, "nil state")
	}
	if s.Phase == PhaseEnded {
		return nil, nil, reject(GameEnded, "game has ended")
	}

	t := &tx{s: s.Clone(), a: a}

	var rej *Rejection
	switch a.Type {
	case ActionJoin:
		rej = t.join()
	case ActionLeave:
		rej = t.leave()
	case ActionStart:
		rej = t.start()
	case ActionRoll:
		rej = t.roll()
	case ActionBuy:
		rej = t.buy()
	case ActionDecline:
		rej = t.decline()
	case ActionBuild:
		rej = t.build()
	case ActionSellBuilding:
		rej = t.sellBuilding()
	case ActionMortgage:
		rej = t.mortgage()
	case ActionUnmortgage:
		rej = t.unmortgage()
	case ActionPayBail:
		rej = t.payBail()
	case ActionUseJailCard:
		rej = t.useJailCard()
	case ActionPayRent:
		rej = t.payRent()
	case ActionDeclareBankruptcy:
		rej = t.declareBankruptcy()
	case ActionEndTurn:
		rej = t.endTurn()
	case ActionProposeTrade:
		rej = t.proposeTrade()
	case ActionAcceptTrade:
		rej = t.acceptTrade()
	case ActionRejectTrade:
		rej = t.rejectTrade()
	case ActionCounterTrade:
		rej = t.counterTrade()
	case ActionBid:
		rej = t.bid()
	case ActionCloseAuction:
		rej = t.closeAuction()
	case ActionExpire:
		rej = t.expire()
	case ActionDisconnect:
		rej = t.disconnect()
	case ActionReconnect:
		rej = t.reconnect()
	case ActionForfeit:
		rej = t.forfeit()
	case ActionAbandon:
		rej = t.abandon()
	default:
		rej = reject(UnknownAction, "unknown action type %q", a.Type)
	}
	if rej != nil {
		return nil, nil, rej
	}

	t.s.Seq = s.Seq + 1
	return t.s, t.events, nil
}

// seated 動作者必須坐在房間內
func (t *tx) seated() (*Player, *Rejection) {
	if t.a.Player == "" {
		return nil, reject(MalformedAction, "missing player")
	}
	p := t.s.Player(t.a.Player)
	if p == nil {
		return nil, reject(UnknownPlayer, "player %s is not seated", t.a.Player)
	}
	return p, nil
}

// participant 進行中且仍在回合順序內的玩家
func (t *tx) participant() (*Player, *Rejection) {
	p, rej := t.seated()
	if rej != nil {
		return nil, rej
	}
	if t.s.Phase == PhaseLobby {
		return nil, reject(InvalidPhase, "game has not started")
	}
	if !p.Active() {
		return nil, reject(PlayerInactive, "player %s is out of the game", p.ID)
	}
	return p, nil
}

// onTurn 目前回合玩家，且房間不在待決交易中；steps 為空表示不限子狀態
func (t *tx) onTurn(steps ...Step) (*Player, *Rejection) {
	p, rej := t.participant()
	if rej != nil {
		return nil, rej
	}
	if t.s.Phase != PhaseInProgress {
		return nil, reject(InvalidPhase, "room is %s", t.s.Phase)
	}
	if t.s.Current().ID != p.ID {
		return nil, reject(NotYourTurn, "it is %s's turn", t.s.Current().ID)
	}
	if len(steps) == 0 {
		return p, nil
	}
	for _, st := range steps {
		if t.s.Step == st {
			return p, nil
		}
	}
	if t.s.Step == StepPayingDebt {
		return nil, reject(DebtOutstanding, "a payment of %d is outstanding", t.s.Debt.Total())
	}
	return nil, reject(InvalidPhase, "not allowed during %s", t.s.Step)
}

// ---- 大廳 ----

func (t *tx) join() *Rejection {
	s := t.s
	if t.a.Player == "" {
		return reject(MalformedAction, "missing player")
	}
	if s.Phase != PhaseLobby {
		return reject(InvalidPhase, "game already started")
	}
	if s.Player(t.a.Player) != nil {
		return reject(AlreadySeated, "player %s is already seated", t.a.Player)
	}
	if len(s.Players) >= s.Rules.MaxPlayers {
		return reject(RoomFull, "room has %d seats", s.Rules.MaxPlayers)
	}
	name := t.a.Name
	if name == "" {
		name = t.a.Player
	}
	s.Players = append(s.Players, Player{
		ID:   t.a.Player,
		Name: name,
		Seat: len(s.Players),
		Conn: ConnConnected,
		Cash: s.Rules.StartingCash,
	})
	t.emit("joined", t.a.Player, 0, 0, name)
	return nil
}

// leave 大廳中離座；遊戲中視為主動認輸
func (t *tx) leave() *Rejection {
	p, rej := t.seated()
	if rej != nil {
		return rej
	}
	if t.s.Phase != PhaseLobby {
		if !p.Active() {
			return reject(PlayerInactive, "player %s is out of the game", p.ID)
		}
		t.retire(p, "left")
		return nil
	}
	t.removeSeat(p.ID)
	t.emit("left", t.a.Player, 0, 0, "")
	return nil
}

func (t *tx) removeSeat(id string) {
	s := t.s
	kept := s.Players[:0]
	for _, p := range s.Players {
		if p.ID != id {
			p.Seat = len(kept)
			kept = append(kept, p)
		}
	}
	s.Players = kept
}

func (t *tx) start() *Rejection {
	s := t.s
	if _, rej := t.seated(); rej != nil {
		return rej
	}
	if s.Phase != PhaseLobby {
		return reject(InvalidPhase, "game already started")
	}
	if len(s.Players) < s.Rules.MinPlayers {
		return reject(NotEnoughPlayers, "need at least %d players", s.Rules.MinPlayers)
	}
	s.Decks = shuffleDecks(t.a.Seed)
	s.Phase = PhaseInProgress
	s.Step = StepPreRoll
	s.Turn = 0
	t.emit("game_started", t.a.Player, 0, 0, "")
	t.emit("turn_started", s.Players[0].ID, 0, 0, "")
	return nil
}

// ---- 回合推進 ----

func (t *tx) endTurn() *Rejection {
	if _, rej := t.onTurn(StepPostRoll); rej != nil {
		return rej
	}
	t.advanceTurn()
	return nil
}

// resumeStep 落地結算完成後的子狀態：擲出雙數且未入獄可再擲
func (t *tx) resumeStep() Step {
	if t.s.Doubles > 0 && !t.s.Current().InJail {
		return StepPreRoll
	}
	return StepPostRoll
}

// advanceTurn 交給下一位仍在遊戲中的玩家
//
// 斷線玩家只在還有其他已連線玩家時才跳過，全員斷線時回合停在下一位等待重連。
func (t *tx) advanceTurn() {
	s := t.s
	s.Doubles = 0
	s.Debt = nil
	s.Step = StepPreRoll

	anyConnected := t.anyConnected()
	n := len(s.Players)
	for i := 1; i <= n; i++ {
		c := (s.Turn + i) % n
		p := &s.Players[c]
		if !p.Active() {
			continue
		}
		if p.Conn == ConnDisconnected && anyConnected {
			continue
		}
		s.Turn = c
		t.emit("turn_started", p.ID, 0, 0, "")
		return
	}
}

func (t *tx) anyConnected() bool {
	for i := range t.s.Players {
		p := &t.s.Players[i]
		if p.Active() && p.Conn == ConnConnected {
			return true
		}
	}
	return false
}

// autoPass 目前玩家不在場時代為結束回合
//
// 欠款以強制變賣結清，未決定的地產保持無主，其他規則不觸發。
func (t *tx) autoPass() {
	s := t.s
	if s.Phase != PhaseInProgress {
		return
	}
	p := s.Current()
	if p == nil || p.Conn == ConnConnected {
		return
	}
	if p.Conn == ConnDisconnected && !t.anyConnected() {
		return
	}
	if p.Active() && s.Step == StepPayingDebt && s.Debt != nil {
		if !t.settleDebt() {
			// 破產已推進回合
			return
		}
	}
	t.emit("turn_auto_passed", p.ID, 0, 0, "")
	t.advanceTurn()
}

// checkWinner 只剩一位仍在遊戲中的玩家時結束
func (t *tx) checkWinner() bool {
	s := t.s
	if s.Phase == PhaseLobby || s.Phase == PhaseEnded {
		return false
	}
	if s.ActivePlayers() > 1 {
		return false
	}
	s.Phase = PhaseEnded
	s.Pending = nil
	s.Debt = nil
	for i := range s.Players {
		if s.Players[i].Active() {
			s.Winner = s.Players[i].ID
		}
	}
	t.emit("game_over", s.Winner, 0, 0, "")
	return true
}

// ---- 連線驅動的動作 ----

func (t *tx) disconnect() *Rejection {
	p, rej := t.seated()
	if rej != nil {
		return rej
	}
	// 已斷線的玩家只能延後期限（伺服器重啟後重新給一段寬限期）
	if p.Conn == ConnDisconnected && t.a.Deadline > p.GraceDeadline {
		p.GraceDeadline = t.a.Deadline
		t.emit("grace_renewed", p.ID, 0, 0, "")
		return nil
	}
	if p.Conn != ConnConnected {
		return reject(PlayerInactive, "player %s is %s", p.ID, p.Conn)
	}
	p.Conn = ConnDisconnected
	p.DisconnectedAt = t.a.At
	p.GraceDeadline = t.a.Deadline
	t.emit("disconnected", p.ID, 0, 0, "")
	t.autoPass()
	return nil
}

func (t *tx) reconnect() *Rejection {
	p, rej := t.seated()
	if rej != nil {
		return rej
	}
	if p.Conn != ConnDisconnected {
		return reject(PlayerInactive, "player %s is %s", p.ID, p.Conn)
	}
	p.Conn = ConnConnected
	p.DisconnectedAt = 0
	p.GraceDeadline = 0
	t.emit("reconnected", p.ID, 0, 0, "")
	// 全員斷線時回合停在某位斷線玩家，有人回來就跳過他
	t.autoPass()
	return nil
}

// forfeit 寬限期到期；玩家已重連或期限未到時視為過期計時器
func (t *tx) forfeit() *Rejection {
	p, rej := t.seated()
	if rej != nil {
		return rej
	}
	if p.Conn != ConnDisconnected {
		return reject(StaleTimer, "player %s is %s", p.ID, p.Conn)
	}
	if t.a.At < p.GraceDeadline {
		return reject(StaleTimer, "grace period runs until %d", p.GraceDeadline)
	}
	if t.s.Phase == PhaseLobby {
		t.removeSeat(p.ID)
		t.emit("forfeited", t.a.Player, 0, 0, "")
		return nil
	}
	t.retire(p, "forfeited")
	return nil
}

// retire 玩家退出遊戲：建築賣回銀行，地產歸還，出獄卡放回牌堆
func (t *tx) retire(p *Player, reason string) {
	s := t.s
	wasCurrent := s.Current().ID == p.ID

	// 強制付款不能因退出而消失：先結清，付不出來就對債權人破產
	if d := s.Debt; d != nil && d.Debtor == p.ID {
		if !t.settleDebt() {
			p.Conn = ConnForfeited
			t.emit(reason, p.ID, 0, 0, "")
			return
		}
	}
	p.Conn = ConnForfeited

	for _, prop := range s.Holdings(p.ID) {
		t.returnBuildings(prop)
		prop.Owner = ""
		prop.Mortgaged = false
	}
	for _, c := range p.JailCards {
		s.Decks.putBack(c)
	}
	p.JailCards = nil
	t.emit(reason, p.ID, 0, 0, "")

	if pd := s.Pending; pd != nil {
		switch pd.Kind {
		case PendingTrade:
			if pd.Proposer == p.ID || pd.Counterparts[0] == p.ID {
				t.closePending("trade_cancelled")
			}
		case PendingAuction:
			if pd.HighBidder == p.ID {
				pd.HighBid, pd.HighBidder = 0, ""
			}
		}
	}
	if t.checkWinner() {
		return
	}
	if wasCurrent && s.Phase == PhaseInProgress {
		t.advanceTurn()
	}
}

// abandon 管理端結束整局；單一玩家只能 leave，不能替所有人放棄
func (t *tx) abandon() *Rejection {
	if t.a.Player != "" {
		return reject(UnknownAction, "abandon is not a player action")
	}
	t.s.Phase = PhaseEnded
	t.s.Pending = nil
	t.s.Debt = nil
	t.emit("abandoned", t.a.Player, 0, 0, "")
	return nil
}
