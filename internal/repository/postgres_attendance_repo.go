package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/attendman/internal/model"
)

// dateLayout はDATE列に渡す日付文字列の形式。
// time.Timeのまま渡すとセッションのタイムゾーンで日付がずれるため文字列で渡す。
const dateLayout = "2006-01-02"

// PostgresAttendanceRepo はPostgreSQLを使用した出退勤記録リポジトリ。
type PostgresAttendanceRepo struct {
	db TxBeginner
}

// NewPostgresAttendanceRepo はPostgresAttendanceRepoを生成する。
func NewPostgresAttendanceRepo(db TxBeginner) *PostgresAttendanceRepo {
	return &PostgresAttendanceRepo{db: db}
}

// InDay は (employeeID, workDate) のアドバイザリロックを取得したトランザクション内でfnを実行する。
// ロックはトランザクション終了時に自動で解放される。
func (r *PostgresAttendanceRepo) InDay(ctx context.Context, employeeID int64, workDate time.Time, fn func(tx DayTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	day := workDate.Format(dateLayout)
	lockKey := fmt.Sprintf("attendance:%d:%s", employeeID, day)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return fmt.Errorf("failed to acquire attendance lock: %w", err)
	}

	if err := fn(&postgresDayTx{tx: tx, employeeID: employeeID, day: day}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresDayTx はInDayのトランザクションに束縛されたDayTx実装。
type postgresDayTx struct {
	tx         *sql.Tx
	employeeID int64
	day        string
}

const attendanceColumns = `id, employee_id, work_date, sign_in, sign_out, created_at, updated_at`

func scanAttendance(row rowScanner) (*model.AttendanceRecord, error) {
	rec := &model.AttendanceRecord{}
	var signOut sql.NullTime
	err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.WorkDate, &rec.SignIn, &signOut,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if signOut.Valid {
		t := signOut.Time
		rec.SignOut = &t
	}
	return rec, nil
}

// Find はその日の記録を取得する。存在しない場合はnilを返す。
func (d *postgresDayTx) Find(ctx context.Context) (*model.AttendanceRecord, error) {
	rec, err := scanAttendance(d.tx.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+`
		 FROM attendance
		 WHERE employee_id = $1 AND work_date = $2
		 FOR UPDATE`,
		d.employeeID, d.day,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance: %w", err)
	}
	return rec, nil
}

// Insert は出勤時刻のみ設定した記録を作成する。
func (d *postgresDayTx) Insert(ctx context.Context, signIn time.Time) (*model.AttendanceRecord, error) {
	rec, err := scanAttendance(d.tx.QueryRowContext(ctx,
		`INSERT INTO attendance (employee_id, work_date, sign_in)
		 VALUES ($1, $2, $3)
		 RETURNING `+attendanceColumns,
		d.employeeID, d.day, signIn,
	))
	if isUniqueViolation(err) {
		return nil, ErrDuplicateRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert attendance: %w", err)
	}
	return rec, nil
}

// SetSignOut は未退勤の記録に退勤時刻を設定する。
func (d *postgresDayTx) SetSignOut(ctx context.Context, recordID int64, signOut time.Time) (*model.AttendanceRecord, error) {
	rec, err := scanAttendance(d.tx.QueryRowContext(ctx,
		`UPDATE attendance
		 SET sign_out = $2, updated_at = now()
		 WHERE id = $1 AND sign_out IS NULL
		 RETURNING `+attendanceColumns,
		recordID, signOut,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set sign-out: %w", err)
	}
	return rec, nil
}

// compile-time interface check
var (
	_ AttendanceRepository = (*PostgresAttendanceRepo)(nil)
	_ DayTx                = (*postgresDayTx)(nil)
)
