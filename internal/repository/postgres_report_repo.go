package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/attendman/internal/model"
)

// PostgresReportRepo はダッシュボードとCSVエクスポート用の集計リポジトリ。
type PostgresReportRepo struct {
	db *sql.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sql.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

// CountPresent は指定日に記録がある従業員の人数を返す。
func (r *PostgresReportRepo) CountPresent(ctx context.Context, workDate time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(DISTINCT employee_id) FROM attendance WHERE work_date = $1`,
		workDate.Format(dateLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count present employees: %w", err)
	}
	return count, nil
}

// ListRows は全出退勤記録を従業員名付きで日付降順に返す。
func (r *PostgresReportRepo) ListRows(ctx context.Context) ([]model.AttendanceRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.name, a.work_date, a.sign_in, a.sign_out
		 FROM attendance a
		 JOIN employees e ON e.id = a.employee_id
		 ORDER BY a.work_date DESC, a.sign_in DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance rows: %w", err)
	}
	defer rows.Close()

	var result []model.AttendanceRow
	for rows.Next() {
		var row model.AttendanceRow
		var signOut sql.NullTime
		if err := rows.Scan(&row.EmployeeName, &row.WorkDate, &row.SignIn, &signOut); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		if signOut.Valid {
			t := signOut.Time
			row.SignOut = &t
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance rows: %w", err)
	}
	return result, nil
}

// DailyCounts は日付ごとの出勤者数を日付昇順で最大limit件返す。
func (r *PostgresReportRepo) DailyCounts(ctx context.Context, limit int) ([]model.DailyCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT work_date, count(DISTINCT employee_id)
		 FROM attendance
		 GROUP BY work_date
		 ORDER BY work_date
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily attendance: %w", err)
	}
	defer rows.Close()

	var result []model.DailyCount
	for rows.Next() {
		var dc model.DailyCount
		if err := rows.Scan(&dc.WorkDate, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		result = append(result, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily counts: %w", err)
	}
	return result, nil
}

// compile-time interface check
var _ ReportRepository = (*PostgresReportRepo)(nil)
