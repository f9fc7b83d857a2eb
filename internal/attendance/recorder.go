// Package attendance は出退勤の打刻と集計のドメインロジックを提供する。
//
// 打刻は (従業員, 日付) ごとに 未記録 → 出勤中 → 退勤済み の順にのみ遷移する。
// 退勤済みの日に再度スキャンしても記録は変更されない。
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/attendman/internal/metrics"
	"github.com/hitoshi/attendman/internal/model"
	"github.com/hitoshi/attendman/internal/repository"
)

// Outcome は1回のスキャンの結果を表す。
type Outcome int

const (
	// SignedIn はその日最初のスキャンで出勤を記録したことを表す。
	SignedIn Outcome = iota + 1
	// SignedOut は出勤中の記録に退勤を記録したことを表す。
	SignedOut
	// AlreadyComplete は退勤済みのため何も変更しなかったことを表す。
	AlreadyComplete
)

// String はメトリクスのラベルやログに使う名前を返す。
func (o Outcome) String() string {
	switch o {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case AlreadyComplete:
		return "already_complete"
	default:
		return "unknown"
	}
}

// Result はスキャン結果と対象従業員の情報。
type Result struct {
	Outcome      Outcome
	EmployeeID   int64
	EmployeeName string
	Record       *model.AttendanceRecord
}

// Message はスキャナー画面に表示するメッセージを返す。
func (r *Result) Message() string {
	switch r.Outcome {
	case SignedIn:
		return r.EmployeeName + " - Sign In recorded"
	case SignedOut:
		return r.EmployeeName + " - Sign Out recorded"
	default:
		return r.EmployeeName + " - Already Signed Out"
	}
}

// StorageError は記録の読み書きに失敗したことを表す。
// 記録は変更されておらず、利用者は再スキャンしてよい。
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("attendance storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EmployeeFinder は打刻対象の従業員を参照するためのインターフェース。
type EmployeeFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Employee, error)
}

// Recorder は出退勤の打刻を行う。出退勤記録を書き込むのはRecorderのみ。
type Recorder struct {
	employees EmployeeFinder
	store     repository.AttendanceRepository
	loc       *time.Location
	metrics   metrics.MetricsCollector
}

// NewRecorder はRecorderを生成する。locは打刻時刻から勤務日を決めるタイムゾーン。
func NewRecorder(
	employees EmployeeFinder,
	store repository.AttendanceRepository,
	loc *time.Location,
	mc metrics.MetricsCollector,
) *Recorder {
	if loc == nil {
		loc = time.Local
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Recorder{
		employees: employees,
		store:     store,
		loc:       loc,
		metrics:   mc,
	}
}

// WorkDate は時刻nowが属する勤務日（設定タイムゾーンの0時）を返す。
func (r *Recorder) WorkDate(now time.Time) time.Time {
	return DateOf(now, r.loc)
}

// DateOf はtをlocに変換した日付の0時を返す。
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// RecordScan は従業員のスキャンを1件処理する。
//
// その日の記録がなければ出勤、出勤中なら退勤を記録し、退勤済みなら何もしない。
// 従業員が存在しない場合は EMPLOYEE_NOT_FOUND の APIError、
// 保存に失敗した場合は *StorageError を返し、いずれも記録は変更しない。
func (r *Recorder) RecordScan(ctx context.Context, employeeID int64, now time.Time) (*Result, error) {
	start := time.Now()
	defer func() { r.metrics.RecordScanLatency(time.Since(start)) }()

	if employeeID <= 0 {
		r.metrics.RecordScan("invalid")
		return nil, model.NewInvalidScanError("employee_id must be a positive integer")
	}

	employee, err := r.employees.FindByID(ctx, employeeID)
	if err != nil {
		r.metrics.RecordScan("error")
		return nil, &StorageError{Op: "find employee", Err: err}
	}
	if employee == nil {
		r.metrics.RecordScan("not_found")
		return nil, model.NewEmployeeNotFoundError(employeeID)
	}

	workDate := r.WorkDate(now)

	result, err := r.recordOnce(ctx, employee, workDate, now)
	if errors.Is(err, repository.ErrDuplicateRecord) {
		// 同日の記録が並行して作成された。1回だけ読み直して判定をやり直す。
		slog.Warn("attendance insert conflicted, retrying",
			slog.Int64("employee_id", employeeID),
			slog.String("work_date", workDate.Format(time.DateOnly)),
		)
		result, err = r.recordOnce(ctx, employee, workDate, now)
	}
	if err != nil {
		r.metrics.RecordScan("error")
		var se *StorageError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, &StorageError{Op: "record scan", Err: err}
	}

	r.metrics.RecordScan(result.Outcome.String())
	slog.Info("attendance scan recorded",
		slog.Int64("employee_id", employeeID),
		slog.String("work_date", workDate.Format(time.DateOnly)),
		slog.String("outcome", result.Outcome.String()),
	)
	return result, nil
}

// recordOnce は1トランザクション分の 参照→判定→書き込み を行う。
func (r *Recorder) recordOnce(ctx context.Context, employee *model.Employee, workDate, now time.Time) (*Result, error) {
	result := &Result{
		EmployeeID:   employee.ID,
		EmployeeName: employee.Name,
	}

	err := r.store.InDay(ctx, employee.ID, workDate, func(tx repository.DayTx) error {
		rec, err := tx.Find(ctx)
		if err != nil {
			return err
		}

		switch {
		case rec == nil:
			rec, err = tx.Insert(ctx, now)
			if err != nil {
				return err
			}
			result.Outcome = SignedIn
		case rec.SignOut == nil:
			// 退勤時刻は出勤時刻より前にしない
			signOut := now
			if signOut.Before(rec.SignIn) {
				signOut = rec.SignIn
			}
			rec, err = tx.SetSignOut(ctx, rec.ID, signOut)
			if err != nil {
				return err
			}
			result.Outcome = SignedOut
		default:
			result.Outcome = AlreadyComplete
		}

		result.Record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
