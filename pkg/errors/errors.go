// Package errors 提供應用程式層的錯誤型別與分類，
// 讓傳輸層能以錯誤代碼決定回應方式，而不是比對錯誤字串。
package errors

import (
	"errors"
	"fmt"
)

// 錯誤代碼
const (
	// ErrCodeNotFound 鍵不存在或已過期
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeInvalidInput 呼叫端輸入無效
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 帶有代碼與細節的應用程式錯誤
type AppError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 讓相同代碼的 AppError 在 errors.Is 下視為同一類錯誤
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

// New 建立應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝底層錯誤並附上代碼與訊息
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 附加結構化細節，回傳新的錯誤實例
func (e *AppError) WithDetails(details map[string]any) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Err:     e.Err,
	}
}

// 預定義錯誤
var (
	// ErrKeyNotFound 快取中找不到指定的鍵
	ErrKeyNotFound = New(ErrCodeNotFound, "key not found")
	// ErrInvalidCapacity 容量設定無效
	ErrInvalidCapacity = New(ErrCodeInvalidInput, "capacity must be positive")
	// ErrInvalidTTL TTL 設定無效
	ErrInvalidTTL = New(ErrCodeInvalidInput, "ttl must not be negative")
)

// IsNotFound 判斷是否為找不到資源的錯誤
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

// IsInvalidInput 判斷是否為輸入無效的錯誤
func IsInvalidInput(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInvalidInput
}

// IsInternal 判斷是否為內部錯誤
func IsInternal(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInternal
}
