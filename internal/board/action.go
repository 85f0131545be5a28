package board

import "fmt"

// ActionType 封閉的動作種類列舉
//
// 新增種類時必須同時在 Apply 的 switch 加上分支，否則落入 UnknownAction。
type ActionType string

const (
	ActionJoin              ActionType = "join"
	ActionLeave             ActionType = "leave"
	ActionStart             ActionType = "start"
	ActionRoll              ActionType = "roll"
	ActionBuy               ActionType = "buy"
	ActionDecline           ActionType = "decline"
	ActionBuild             ActionType = "build"
	ActionSellBuilding      ActionType = "sell_building"
	ActionMortgage          ActionType = "mortgage"
	ActionUnmortgage        ActionType = "unmortgage"
	ActionPayBail           ActionType = "pay_bail"
	ActionUseJailCard       ActionType = "use_jail_card"
	ActionPayRent           ActionType = "pay_rent"
	ActionDeclareBankruptcy ActionType = "declare_bankruptcy"
	ActionEndTurn           ActionType = "end_turn"
	ActionProposeTrade      ActionType = "propose_trade"
	ActionAcceptTrade       ActionType = "accept_trade"
	ActionRejectTrade       ActionType = "reject_trade"
	ActionCounterTrade      ActionType = "counter_trade"
	ActionBid               ActionType = "bid"
	ActionCloseAuction      ActionType = "close_auction"

	// 以下由伺服器內部（計時器、會話層）或管理 API 產生，客戶端不可送出
	ActionAbandon    ActionType = "abandon"
	ActionExpire     ActionType = "expire"
	ActionDisconnect ActionType = "disconnect"
	ActionReconnect  ActionType = "reconnect"
	ActionForfeit    ActionType = "forfeit"
)

// ClientAllowed 客戶端可直接送出的動作；內部動作與未知種類都不行
func (t ActionType) ClientAllowed() bool {
	switch t {
	case ActionJoin, ActionLeave, ActionStart, ActionRoll, ActionBuy, ActionDecline,
		ActionBuild, ActionSellBuilding, ActionMortgage, ActionUnmortgage,
		ActionPayBail, ActionUseJailCard, ActionPayRent, ActionDeclareBankruptcy,
		ActionEndTurn, ActionProposeTrade, ActionAcceptTrade, ActionRejectTrade,
		ActionCounterTrade, ActionBid, ActionCloseAuction:
		return true
	}
	return false
}

// Action 一筆玩家意圖（或系統事件），欄位依種類使用
type Action struct {
	Type   ActionType `json:"type"`
	Player string     `json:"player,omitempty"`
	// At 伺服器蓋章的時間（unix ms）
	At int64 `json:"at"`

	Name      string      `json:"name,omitempty"`
	Seed      uint64      `json:"seed,omitempty"`
	Dice      [2]int      `json:"dice"`
	Position  int         `json:"position,omitempty"`
	Amount    int         `json:"amount,omitempty"`
	PendingID string      `json:"pending_id,omitempty"`
	Trade     *TradeOffer `json:"trade,omitempty"`
	Deadline  int64       `json:"deadline,omitempty"`
}

// Event 規則轉移時發出的事件，給客戶端呈現用
type Event struct {
	Type     string `json:"type"`
	Player   string `json:"player,omitempty"`
	Position int    `json:"position,omitempty"`
	Amount   int    `json:"amount,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// ReasonCode 拒絕原因碼
type ReasonCode string

const (
	NotYourTurn             ReasonCode = "NotYourTurn"
	InsufficientFunds       ReasonCode = "InsufficientFunds"
	PropertyNotOwned        ReasonCode = "PropertyNotOwned"
	AlreadyOwned            ReasonCode = "AlreadyOwned"
	InvalidDevelopmentOrder ReasonCode = "InvalidDevelopmentOrder"
	InvalidPhase            ReasonCode = "InvalidPhase"
	NotInJail               ReasonCode = "NotInJail"
	NoJailCard              ReasonCode = "NoJailCard"
	PendingTransactionOpen  ReasonCode = "PendingTransactionOpen"
	NoPendingTransaction    ReasonCode = "NoPendingTransaction"
	NotCounterpart          ReasonCode = "NotCounterpart"
	InvalidTrade            ReasonCode = "InvalidTrade"
	HasBuildings            ReasonCode = "HasBuildings"
	PropertyMortgaged       ReasonCode = "PropertyMortgaged"
	NotMortgaged            ReasonCode = "NotMortgaged"
	NotBuildable            ReasonCode = "NotBuildable"
	NoMonopoly              ReasonCode = "NoMonopoly"
	MaxDevelopment          ReasonCode = "MaxDevelopment"
	NoBuildingsAvailable    ReasonCode = "NoBuildingsAvailable"
	BidTooLow               ReasonCode = "BidTooLow"
	UnknownPlayer           ReasonCode = "UnknownPlayer"
	RoomFull                ReasonCode = "RoomFull"
	AlreadySeated           ReasonCode = "AlreadySeated"
	NotEnoughPlayers        ReasonCode = "NotEnoughPlayers"
	PlayerInactive          ReasonCode = "PlayerInactive"
	DebtOutstanding         ReasonCode = "DebtOutstanding"
	MalformedAction         ReasonCode = "MalformedAction"
	UnknownAction           ReasonCode = "UnknownAction"
	StaleTimer              ReasonCode = "StaleTimer"
	GameEnded               ReasonCode = "GameEnded"
)

// Rejection 玩家造成的非法請求，不是系統錯誤
type Rejection struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code ReasonCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}
