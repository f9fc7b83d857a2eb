package model

import "time"

// AttendanceRecord は従業員1人・1日分の出退勤記録を表す。
// (EmployeeID, WorkDate) で一意となり、SignOutがnilの間は「出勤中」、
// SignIn と SignOut の両方が設定されると「退勤済み」となる。
type AttendanceRecord struct {
	ID         int64
	EmployeeID int64
	WorkDate   time.Time // 日付部分のみ意味を持つ（00:00:00, 設定タイムゾーン）
	SignIn     time.Time
	SignOut    *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsClosed は退勤まで記録済みかどうかを返す。
func (r *AttendanceRecord) IsClosed() bool {
	return r != nil && r.SignOut != nil
}

// AttendanceRow は従業員名と結合した出退勤記録。
// ダッシュボードとCSVエクスポートで使用する。
type AttendanceRow struct {
	EmployeeName string
	WorkDate     time.Time
	SignIn       time.Time
	SignOut      *time.Time
}

// DailyCount は日付ごとの出勤者数を表す。
type DailyCount struct {
	WorkDate time.Time
	Count    int
}
