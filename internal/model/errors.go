// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, employee, attendance, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmployeeNotFound   = "EMPLOYEE_NOT_FOUND"
	ErrCodeInvalidScan        = "INVALID_SCAN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidEmployee    = "INVALID_EMPLOYEE"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeInvalidPhoto       = "INVALID_PHOTO"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	ErrCodeInvalidDate        = "INVALID_DATE"
)

// NewEmployeeNotFoundError は従業員未検出エラーを生成する。
func NewEmployeeNotFoundError(employeeID int64) *APIError {
	return &APIError{
		Code:     ErrCodeEmployeeNotFound,
		Message:  fmt.Sprintf("Employee not found: %d", employeeID),
		Category: "employee",
		Action:   "Check the employee's QR code or register the employee first.",
	}
}

// NewInvalidScanError は打刻リクエストの形式が不正な場合のエラーを生成する。
func NewInvalidScanError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidScan,
		Message:  fmt.Sprintf("Invalid scan: %s", reason),
		Category: "validation",
		Action:   "Scan the employee QR code again.",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー名とパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "Check your username and password.",
	}
}

// NewInvalidEmployeeError は従業員フォームの入力エラーを生成する。
func NewInvalidEmployeeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmployee,
		Message:  fmt.Sprintf("Invalid employee data: %s", reason),
		Category: "validation",
		Action:   "Fix the highlighted field and submit again.",
	}
}

// NewDuplicateUsernameError はユーザー名が既に使用されている場合のエラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("Username is already taken: %s", username),
		Category: "employee",
		Action:   "Choose a different username.",
	}
}

// NewInvalidPhotoError はアップロード写真が受け付けられない場合のエラーを生成する。
func NewInvalidPhotoError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhoto,
		Message:  fmt.Sprintf("Invalid photo: %s", reason),
		Category: "validation",
		Action:   "Upload a JPEG, PNG or GIF image under the size limit.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewForbiddenError は管理者権限が必要な操作のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Administrator role required.",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewStorageUnavailableError はストレージ障害時のエラーを生成する。
// 内部の詳細はログにのみ記録し、ユーザーには再試行を促す。
func NewStorageUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageUnavailable,
		Message:  "Attendance could not be recorded. Please try again.",
		Category: "system",
		Action:   "Wait a moment and scan again.",
	}
}

// NewInvalidDateError は日付パラメータが不正な場合のエラーを生成する。
func NewInvalidDateError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("Invalid date: %s", value),
		Category: "validation",
		Action:   "Use the YYYY-MM-DD format.",
	}
}
