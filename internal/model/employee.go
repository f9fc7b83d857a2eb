package model

import "time"

// Employee は勤怠管理の対象となる従業員を表す。
// IDはデータベースが採番し、QRコードにはこのIDを数値文字列として埋め込む。
type Employee struct {
	ID           int64
	Name         string
	Username     string
	Email        string
	PasswordHash string
	City         string
	Photo        string // アップロード済み写真のファイル名（空の場合は未登録）
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmployeeInput は従業員の作成・更新フォームの入力値を表す。
// Passwordが空の更新では既存のパスワードを維持する。
type EmployeeInput struct {
	Name     string
	Username string
	Email    string
	Password string
	City     string
}
