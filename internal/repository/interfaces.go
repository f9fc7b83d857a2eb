// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/attendman/internal/model"
)

// ErrDuplicateRecord は一意制約違反（PostgreSQL 23505）を表す。
var ErrDuplicateRecord = errors.New("duplicate record")

// ErrNotFound は更新・削除対象の行が存在しないことを表す。
var ErrNotFound = errors.New("record not found")

// UserRepository は管理画面ユーザーの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateRecordを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションをユーザーのロール付きで取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// EmployeeRepository は従業員データの永続化インターフェース。
type EmployeeRepository interface {
	// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Employee, error)

	// List は従業員一覧をID昇順で返す。
	List(ctx context.Context) ([]*model.Employee, error)

	// Count は従業員の総数を返す。
	Count(ctx context.Context) (int, error)

	// Create は従業員を作成し、採番されたIDとタイムスタンプを設定する。
	// ユーザー名が重複する場合はErrDuplicateRecordを返す。
	Create(ctx context.Context, employee *model.Employee) error

	// Update は従業員情報を更新する。
	// 存在しない場合はErrNotFound、ユーザー名が重複する場合はErrDuplicateRecordを返す。
	Update(ctx context.Context, employee *model.Employee) error

	// Delete は従業員を削除する。出退勤記録はCASCADE削除される。
	// 存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id int64) error
}

// AttendanceRepository は出退勤記録の永続化インターフェース。
// 書き込みは (従業員, 日付) 単位のトランザクション内でのみ行う。
type AttendanceRepository interface {
	// InDay は (employeeID, workDate) の排他ロックを取得したトランザクション内でfnを実行する。
	// fnがnilを返した場合のみコミットし、エラーの場合はロールバックする。
	InDay(ctx context.Context, employeeID int64, workDate time.Time, fn func(tx DayTx) error) error
}

// DayTx は1従業員・1日分の出退勤記録に対するトランザクション内操作。
type DayTx interface {
	// Find はその日の記録を取得する。存在しない場合はnilを返す。
	Find(ctx context.Context) (*model.AttendanceRecord, error)

	// Insert は出勤時刻のみ設定した記録を作成する。
	// 同日の記録が既に存在する場合はErrDuplicateRecordを返す。
	Insert(ctx context.Context, signIn time.Time) (*model.AttendanceRecord, error)

	// SetSignOut は未退勤の記録に退勤時刻を設定する。
	// 既に退勤済みの場合は更新せずErrNotFoundを返す。
	SetSignOut(ctx context.Context, recordID int64, signOut time.Time) (*model.AttendanceRecord, error)
}

// ReportRepository は集計・一覧表示用の読み取り専用インターフェース。
type ReportRepository interface {
	// CountPresent は指定日に記録がある従業員の人数を返す。
	CountPresent(ctx context.Context, workDate time.Time) (int, error)

	// ListRows は全出退勤記録を従業員名付きで日付降順に返す。
	ListRows(ctx context.Context) ([]model.AttendanceRow, error)

	// DailyCounts は日付ごとの出勤者数を日付昇順で最大limit件返す。
	DailyCounts(ctx context.Context, limit int) ([]model.DailyCount, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
