// Package model はドメインモデルを定義する。
package model

import "time"

// Role は管理画面ユーザーの権限を表す。
type Role string

const (
	// RoleAdmin はダッシュボードとCSVエクスポートを利用できる管理者。
	RoleAdmin Role = "admin"
	// RoleStaff は従業員管理と打刻のみ利用できるスタッフ。
	RoleStaff Role = "staff"
)

// Valid は定義済みのロールかどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// User は管理画面にログインするユーザーを表す。
// 権限はRoleで明示的に保持し、IDの形式から推測しない。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	Role      Role
	ExpiresAt time.Time
	CreatedAt time.Time
}
