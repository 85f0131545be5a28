// Package protocol 客戶端與伺服器之間的訊息格式
//
// 連線先交換握手訊框（hello → welcome / rejected），之後客戶端送出動作信封，
// 伺服器回送帶序號的事件信封。所有訊框都是 JSON 文字訊息。
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
	"github.com/koopa0/system-design/14-board-game-server/pkg/errors"
)

// Version 目前的協議版本
const Version = 1

// ActionSync 客戶端偵測到序號缺口時要求完整狀態
const ActionSync = "sync"

// FrameType 握手訊框種類
type FrameType string

const (
	FrameHello    FrameType = "hello"
	FrameWelcome  FrameType = "welcome"
	FrameRejected FrameType = "rejected"
)

// Hello 客戶端的第一個訊框
type Hello struct {
	Type            FrameType `json:"type"`
	ProtocolVersion int       `json:"protocol_version"`
	PlayerIdentity  string    `json:"player_identity,omitempty"`
	SessionToken    string    `json:"session_token,omitempty"`
	NewIdentity     bool      `json:"new_identity,omitempty"`
	RoomID          string    `json:"room_id,omitempty"`
}

// Welcome 握手成功
type Welcome struct {
	Type            FrameType `json:"type"`
	ProtocolVersion int       `json:"protocol_version"`
	PlayerIdentity  string    `json:"player_identity"`
	SessionToken    string    `json:"session_token"`
	RoomID          string    `json:"room_id,omitempty"`
}

// Rejected 握手失敗，伺服器隨後關閉連線
type Rejected struct {
	Type       FrameType `json:"type"`
	ReasonCode string    `json:"reason_code"`
	Message    string    `json:"message,omitempty"`
}

// Inbound 客戶端的動作信封
type Inbound struct {
	ProtocolVersion    int             `json:"protocol_version"`
	RoomID             string          `json:"room_id"`
	PlayerIdentity     string          `json:"player_identity"`
	SessionToken       string          `json:"session_token"`
	ActionType         string          `json:"action_type"`
	ActionPayload      json.RawMessage `json:"action_payload,omitempty"`
	ClientSequenceEcho uint64          `json:"client_sequence_echo"`
}

// Payload 動作參數；時間、骰子、種子一律由伺服器決定，客戶端無法指定
type Payload struct {
	Name      string            `json:"name,omitempty"`
	Position  int               `json:"position,omitempty"`
	Amount    int               `json:"amount,omitempty"`
	PendingID string            `json:"pending_id,omitempty"`
	Trade     *board.TradeOffer `json:"trade,omitempty"`
}

// EventType 伺服器信封種類
type EventType string

const (
	EventAck             EventType = "ack"
	EventRejected        EventType = "rejected"
	EventDelta           EventType = "delta"
	EventFullState       EventType = "full_state"
	EventRoomUnavailable EventType = "room_unavailable"
)

// Outbound 伺服器送出的信封
type Outbound struct {
	RoomID             string           `json:"room_id"`
	SequenceNumber     uint64           `json:"sequence_number"`
	EventType          EventType        `json:"event_type"`
	Player             string           `json:"player,omitempty"`
	Action             board.ActionType `json:"action,omitempty"`
	StateDiff          *board.StateDiff `json:"state_diff,omitempty"`
	FullState          *board.State     `json:"full_state,omitempty"`
	ReasonCode         string           `json:"reason_code,omitempty"`
	Message            string           `json:"message,omitempty"`
	Events             []board.Event    `json:"events,omitempty"`
	ClientSequenceEcho uint64           `json:"client_sequence_echo,omitempty"`
}

// DecodeHello 解析握手訊框並檢查版本
func DecodeHello(data []byte) (Hello, error) {
	var h Hello
	if err := json.Unmarshal(data, &h); err != nil {
		return Hello{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed hello")
	}
	if h.Type != FrameHello {
		return Hello{}, errors.ErrInvalidInput.WithDetails(fmt.Sprintf("expected hello, got %q", h.Type))
	}
	if h.ProtocolVersion != Version {
		return Hello{}, errors.ErrVersionMismatch.WithDetails(fmt.Sprintf("server speaks %d, client %d", Version, h.ProtocolVersion))
	}
	if !h.NewIdentity && (h.PlayerIdentity == "" || h.SessionToken == "") {
		return Hello{}, errors.ErrInvalidSession
	}
	return h, nil
}

// DecodeInbound 解析動作信封並檢查版本
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "malformed envelope")
	}
	if in.ProtocolVersion != Version {
		return Inbound{}, errors.ErrVersionMismatch
	}
	if in.ActionType == "" {
		return Inbound{}, errors.ErrInvalidInput.WithDetails("missing action_type")
	}
	return in, nil
}

// IsSync 是否為要求完整狀態
func (in Inbound) IsSync() bool {
	return in.ActionType == ActionSync
}

// Action 轉成遊戲動作；不存在或客戶端不可送出的類型回傳 UnknownAction
func (in Inbound) Action() (board.Action, error) {
	t := board.ActionType(in.ActionType)
	if !t.ClientAllowed() {
		return board.Action{}, &board.Rejection{Code: board.UnknownAction, Message: fmt.Sprintf("unknown action %q", in.ActionType)}
	}

	var p Payload
	if len(in.ActionPayload) > 0 && string(in.ActionPayload) != "null" {
		if err := json.Unmarshal(in.ActionPayload, &p); err != nil {
			return board.Action{}, &board.Rejection{Code: board.MalformedAction, Message: err.Error()}
		}
	}

	return board.Action{
		Type:      t,
		Player:    in.PlayerIdentity,
		Name:      p.Name,
		Position:  p.Position,
		Amount:    p.Amount,
		PendingID: p.PendingID,
		Trade:     p.Trade,
	}, nil
}

// Ack 給送出者的確認
func Ack(roomID string, out room.Outcome, echo uint64) Outbound {
	return Outbound{
		RoomID:             roomID,
		SequenceNumber:     out.Seq,
		EventType:          EventAck,
		Events:             out.Events,
		ClientSequenceEcho: echo,
	}
}

// Reject 給送出者的拒絕；seq 為房間目前已提交的序號
func Reject(roomID string, seq uint64, code, message string, echo uint64) Outbound {
	return Outbound{
		RoomID:             roomID,
		SequenceNumber:     seq,
		EventType:          EventRejected,
		ReasonCode:         code,
		Message:            message,
		ClientSequenceEcho: echo,
	}
}

// FullState 完整狀態推送（連線、重連、sync）
func FullState(s *board.State) Outbound {
	return Outbound{
		RoomID:         s.RoomID,
		SequenceNumber: s.Seq,
		EventType:      EventFullState,
		FullState:      s,
	}
}

// FromDelta 房間通知轉成廣播信封
func FromDelta(d room.Delta) Outbound {
	if d.Kind == room.DeltaUnavailable {
		return Outbound{
			RoomID:         d.RoomID,
			SequenceNumber: d.Seq,
			EventType:      EventRoomUnavailable,
			ReasonCode:     errors.ErrCodeRoomUnavailable,
		}
	}
	return Outbound{
		RoomID:         d.RoomID,
		SequenceNumber: d.Seq,
		EventType:      EventDelta,
		Player:         d.Player,
		Action:         d.Action,
		StateDiff:      d.Diff,
		Events:         d.Events,
	}
}

// ReasonCode 錯誤轉成協議的原因碼：驗證錯誤用遊戲原因碼，其他用應用錯誤碼
func ReasonCode(err error) (code, message string) {
	var rej *board.Rejection
	if errors.As(err, &rej) {
		return string(rej.Code), rej.Message
	}
	return errors.Code(err), err.Error()
}

// Welcomed 握手成功訊框
func Welcomed(identity, token, roomID string) Welcome {
	return Welcome{
		Type:            FrameWelcome,
		ProtocolVersion: Version,
		PlayerIdentity:  identity,
		SessionToken:    token,
		RoomID:          roomID,
	}
}

// Refused 握手失敗訊框
func Refused(err error) Rejected {
	code, msg := ReasonCode(err)
	return Rejected{Type: FrameRejected, ReasonCode: code, Message: msg}
}

// Encode 序列化任一訊框
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
