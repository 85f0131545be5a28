// Package errors 提供應用程式錯誤處理
//
// 錯誤分類（對應遊戲伺服器的失敗語意）：
//   - 驗證錯誤：由 board.Rejection 表示，不在此套件
//   - 會話錯誤：INVALID_SESSION / DUPLICATE_CONNECTION / VERSION_MISMATCH / UNKNOWN_IDENTITY
//   - 暫時性基礎設施錯誤：PERSISTENCE_FAILED（內部重試）
//   - 致命錯誤：ROOM_UNAVAILABLE / ROOM_UNRECOVERABLE
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeTimeout 超時錯誤
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeInvalidSession 身分或 token 無效
	ErrCodeInvalidSession = "INVALID_SESSION"
	// ErrCodeUnknownIdentity 身分不存在
	ErrCodeUnknownIdentity = "UNKNOWN_IDENTITY"
	// ErrCodeDuplicateConnection 同一身分已有連線
	ErrCodeDuplicateConnection = "DUPLICATE_CONNECTION"
	// ErrCodeVersionMismatch 協議版本不相容
	ErrCodeVersionMismatch = "VERSION_MISMATCH"

	// ErrCodePersistence 持久化寫入失敗（可重試）
	ErrCodePersistence = "PERSISTENCE_FAILED"
	// ErrCodeSequenceConflict 同序號已有不同的紀錄
	ErrCodeSequenceConflict = "SEQUENCE_CONFLICT"
	// ErrCodeRoomUnavailable 房間因致命錯誤停止服務
	ErrCodeRoomUnavailable = "ROOM_UNAVAILABLE"
	// ErrCodeRoomUnrecoverable 房間無法從持久化狀態恢復
	ErrCodeRoomUnrecoverable = "ROOM_UNRECOVERABLE"
	// ErrCodeRoomClosed 房間已關閉
	ErrCodeRoomClosed = "ROOM_CLOSED"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 添加詳細資訊（回傳副本，避免改動預定義錯誤）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	ErrRoomNotFound        = New(ErrCodeNotFound, "room not found")
	ErrRoomClosed          = New(ErrCodeRoomClosed, "room is closed")
	ErrRoomUnavailable     = New(ErrCodeRoomUnavailable, "room is unavailable")
	ErrRoomUnrecoverable   = New(ErrCodeRoomUnrecoverable, "room cannot be recovered")
	ErrInvalidSession      = New(ErrCodeInvalidSession, "invalid session token")
	ErrUnknownIdentity     = New(ErrCodeUnknownIdentity, "unknown player identity")
	ErrDuplicateConnection = New(ErrCodeDuplicateConnection, "identity already has a live connection")
	ErrVersionMismatch     = New(ErrCodeVersionMismatch, "unsupported protocol version")
	ErrSequenceConflict    = New(ErrCodeSequenceConflict, "sequence already recorded with different payload")
	ErrInvalidInput        = New(ErrCodeInvalidInput, "invalid input")
)

// Code 取出錯誤碼；非 AppError 回傳 INTERNAL_ERROR
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsSessionError 檢查是否為會話類錯誤
func IsSessionError(err error) bool {
	switch Code(err) {
	case ErrCodeInvalidSession, ErrCodeUnknownIdentity, ErrCodeDuplicateConnection, ErrCodeVersionMismatch:
		return true
	}
	return false
}

// IsFatal 檢查是否為房間級致命錯誤
func IsFatal(err error) bool {
	return hasCode(err, ErrCodeRoomUnavailable) || hasCode(err, ErrCodeRoomUnrecoverable)
}

// IsSequenceConflict 檢查是否為序號衝突
func IsSequenceConflict(err error) bool {
	return hasCode(err, ErrCodeSequenceConflict)
}

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Is 轉呼叫標準庫，呼叫端不必同時匯入兩個 errors 套件
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 轉呼叫標準庫
func As(err error, target any) bool {
	return errors.As(err, target)
}
