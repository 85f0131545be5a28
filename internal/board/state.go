// Package board 實作大富翁式交易桌遊的規則模型
//
// 系統設計考量：
//   - 純函數：Apply(state, action) → (新狀態, 事件) 或 Rejection，無 I/O、無並發
//   - 先複製再修改：輸入狀態永不被改動，拒絕時直接丟棄副本
//   - 決定性：骰子、洗牌種子、時間戳都由 Room 蓋章進 Action，重播必得相同結果
//   - 單一事實來源：玩家持有的地產由地產表推導，不另存清單
package board

import "slices"

// Phase 房間階段
type Phase string

const (
	PhaseLobby           Phase = "lobby"
	PhaseInProgress      Phase = "in_progress"
	PhaseAwaitingTrade   Phase = "awaiting_trade"
	PhaseAwaitingAuction Phase = "awaiting_auction"
	PhaseEnded           Phase = "ended"
)

// Valid 是否為已知的階段
func (p Phase) Valid() bool {
	switch p {
	case PhaseLobby, PhaseInProgress, PhaseAwaitingTrade, PhaseAwaitingAuction, PhaseEnded:
		return true
	}
	return false
}

// Step 回合內的子狀態
type Step string

const (
	StepPreRoll          Step = "pre_roll"
	StepPropertyDecision Step = "property_decision"
	StepPayingDebt       Step = "paying_debt"
	StepPostRoll         Step = "post_roll"
)

// ConnStatus 玩家連線狀態
type ConnStatus string

const (
	ConnConnected    ConnStatus = "connected"
	ConnDisconnected ConnStatus = "disconnected"
	ConnForfeited    ConnStatus = "forfeited"
)

// 變賣順序
const (
	LiquidateCheapestFirst      = "cheapest_first"
	LiquidateMostExpensiveFirst = "most_expensive_first"
)

// 建築總量
const (
	TotalHouses = 32
	TotalHotels = 12
)

// Rules 建房時凍結的規則參數
//
// 凍結進狀態而不是讀全域配置，重播時才不受配置變更影響。
type Rules struct {
	StartingCash     int    `json:"starting_cash"`
	PassGoBonus      int    `json:"pass_go_bonus"`
	JailBail         int    `json:"jail_bail"`
	MaxJailTurns     int    `json:"max_jail_turns"`
	MinPlayers       int    `json:"min_players"`
	MaxPlayers       int    `json:"max_players"`
	LiquidationOrder string `json:"liquidation_order"`
	TradeWindowMs    int64  `json:"trade_window_ms"`
	AuctionWindowMs  int64  `json:"auction_window_ms"`
}

// DefaultRules 標準規則
func DefaultRules() Rules {
	return Rules{
		StartingCash:     1500,
		PassGoBonus:      200,
		JailBail:         50,
		MaxJailTurns:     3,
		MinPlayers:       2,
		MaxPlayers:       4,
		LiquidationOrder: LiquidateCheapestFirst,
		TradeWindowMs:    60_000,
		AuctionWindowMs:  30_000,
	}
}

// JailCard 玩家持有的出獄卡（記住來源牌堆，用掉後放回）
type JailCard struct {
	Deck  DeckKind `json:"deck"`
	Index int      `json:"index"`
}

// Player 座位上的玩家
type Player struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Seat           int        `json:"seat"`
	Conn           ConnStatus `json:"conn"`
	DisconnectedAt int64      `json:"disconnected_at,omitempty"`
	GraceDeadline  int64      `json:"grace_deadline,omitempty"`
	Cash           int        `json:"cash"`
	Position       int        `json:"position"`
	InJail         bool       `json:"in_jail"`
	JailTurns      int        `json:"jail_turns"`
	JailCards      []JailCard `json:"jail_cards,omitempty"`
	Bankrupt       bool       `json:"bankrupt"`
}

// Active 仍在回合順序中
func (p *Player) Active() bool {
	return !p.Bankrupt && p.Conn != ConnForfeited
}

func (p *Player) equal(o *Player) bool {
	return p.ID == o.ID && p.Name == o.Name && p.Seat == o.Seat && p.Conn == o.Conn &&
		p.DisconnectedAt == o.DisconnectedAt && p.GraceDeadline == o.GraceDeadline &&
		p.Cash == o.Cash && p.Position == o.Position &&
		p.InJail == o.InJail && p.JailTurns == o.JailTurns && p.Bankrupt == o.Bankrupt &&
		slices.Equal(p.JailCards, o.JailCards)
}

// Property 可擁有的格子
type Property struct {
	Position  int    `json:"position"`
	Owner     string `json:"owner,omitempty"`
	Level     int    `json:"level"`
	Mortgaged bool   `json:"mortgaged"`
}

// Payment 一筆應付款，To 為空表示付給銀行
type Payment struct {
	To     string `json:"to,omitempty"`
	Amount int    `json:"amount"`
}

// Debt 當前玩家尚未結清的強制付款
type Debt struct {
	Debtor string    `json:"debtor"`
	Payees []Payment `json:"payees"`
	Reason string    `json:"reason"`
}

// Total 應付總額
func (d *Debt) Total() int {
	total := 0
	for _, p := range d.Payees {
		total += p.Amount
	}
	return total
}

// creditor 唯一的玩家債權人；多位或銀行時回傳空字串
func (d *Debt) creditor() string {
	if len(d.Payees) == 1 {
		return d.Payees[0].To
	}
	return ""
}

// PendingKind 待決交易種類
type PendingKind string

const (
	PendingTrade   PendingKind = "trade"
	PendingAuction PendingKind = "auction"
)

// TradeOffer 交易內容，由提議者的角度描述
type TradeOffer struct {
	To                  string `json:"to"`
	OfferedProperties   []int  `json:"offered_properties,omitempty"`
	RequestedProperties []int  `json:"requested_properties,omitempty"`
	OfferedCash         int    `json:"offered_cash,omitempty"`
	RequestedCash       int    `json:"requested_cash,omitempty"`
	OfferedJailCards    int    `json:"offered_jail_cards,omitempty"`
	RequestedJailCards  int    `json:"requested_jail_cards,omitempty"`
}

func (o *TradeOffer) clone() *TradeOffer {
	if o == nil {
		return nil
	}
	cp := *o
	cp.OfferedProperties = slices.Clone(o.OfferedProperties)
	cp.RequestedProperties = slices.Clone(o.RequestedProperties)
	return &cp
}

// Pending 待決的交易或拍賣，每個房間最多一個
type Pending struct {
	ID           string      `json:"id"`
	Kind         PendingKind `json:"kind"`
	Proposer     string      `json:"proposer"`
	Counterparts []string    `json:"counterparts"`
	Offer        *TradeOffer `json:"offer,omitempty"`
	Property     int         `json:"property,omitempty"`
	HighBid      int         `json:"high_bid,omitempty"`
	HighBidder   string      `json:"high_bidder,omitempty"`
	OpenedSeq    uint64      `json:"opened_seq"`
	ExpiresAt    int64       `json:"expires_at"`
}

func (p *Pending) clone() *Pending {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Counterparts = slices.Clone(p.Counterparts)
	cp.Offer = p.Offer.clone()
	return &cp
}

// Decks 機會與命運牌堆的抽牌順序（牌的索引）
type Decks struct {
	Chance         []int `json:"chance"`
	CommunityChest []int `json:"community_chest"`
}

// State 一個房間的完整權威狀態
type State struct {
	RoomID     string     `json:"room_id"`
	Seq        uint64     `json:"seq"`
	Phase      Phase      `json:"phase"`
	Step       Step       `json:"step,omitempty"`
	Players    []Player   `json:"players"`
	Turn       int        `json:"turn"`
	Doubles    int        `json:"doubles"`
	LastRoll   [2]int     `json:"last_roll"`
	Properties []Property `json:"properties"`
	Pending    *Pending   `json:"pending,omitempty"`
	Debt       *Debt      `json:"debt,omitempty"`
	Decks      *Decks     `json:"decks,omitempty"`
	HousesLeft int        `json:"houses_left"`
	HotelsLeft int        `json:"hotels_left"`
	Winner     string     `json:"winner,omitempty"`
	Rules      Rules      `json:"rules"`
}

// NewState 建立大廳階段的初始狀態
func NewState(roomID string, rules Rules) *State {
	props := make([]Property, 0, 28)
	for _, sp := range Spaces {
		if sp.Ownable() {
			props = append(props, Property{Position: sp.Position})
		}
	}
	return &State{
		RoomID:     roomID,
		Phase:      PhaseLobby,
		Players:    []Player{},
		Properties: props,
		HousesLeft: TotalHouses,
		HotelsLeft: TotalHotels,
		Rules:      rules,
	}
}

// Clone 深拷貝
func (s *State) Clone() *State {
	cp := *s
	cp.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		p.JailCards = slices.Clone(p.JailCards)
		cp.Players[i] = p
	}
	cp.Properties = slices.Clone(s.Properties)
	cp.Pending = s.Pending.clone()
	if s.Debt != nil {
		d := *s.Debt
		d.Payees = slices.Clone(s.Debt.Payees)
		cp.Debt = &d
	}
	if s.Decks != nil {
		cp.Decks = &Decks{
			Chance:         slices.Clone(s.Decks.Chance),
			CommunityChest: slices.Clone(s.Decks.CommunityChest),
		}
	}
	return &cp
}

// Public 給客戶端的視圖：隱藏牌堆順序
func (s *State) Public() *State {
	cp := s.Clone()
	cp.Decks = nil
	return cp
}

// Player 依身分找玩家
func (s *State) Player(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// Current 目前輪到的玩家
func (s *State) Current() *Player {
	if s.Turn < 0 || s.Turn >= len(s.Players) {
		return nil
	}
	return &s.Players[s.Turn]
}

// Property 依位置找地產；非可擁有格子回傳 nil
func (s *State) Property(pos int) *Property {
	for i := range s.Properties {
		if s.Properties[i].Position == pos {
			return &s.Properties[i]
		}
	}
	return nil
}

// Holdings 玩家持有的地產（依位置排序）
func (s *State) Holdings(playerID string) []*Property {
	var out []*Property
	for i := range s.Properties {
		if s.Properties[i].Owner == playerID {
			out = append(out, &s.Properties[i])
		}
	}
	return out
}

// ActivePlayers 仍在回合順序中的玩家數
func (s *State) ActivePlayers() int {
	n := 0
	for i := range s.Players {
		if s.Players[i].Active() {
			n++
		}
	}
	return n
}
