package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/attendman/internal/model"
	"github.com/hitoshi/attendman/internal/repository"
)

// TrendDays はダッシュボードの推移グラフに表示する日数。
const TrendDays = 10

// EmployeeCounter は従業員の総数を返すインターフェース。
type EmployeeCounter interface {
	Count(ctx context.Context) (int, error)
}

// Summary は1日分の出勤状況。
type Summary struct {
	Date    time.Time
	Present int
	Absent  int
	Total   int
}

// Dashboard はダッシュボード表示用の集計結果。
type Dashboard struct {
	Today   Summary
	Records []model.AttendanceRow
	Trend   []model.DailyCount
}

// Reporter は出退勤記録の集計を提供する。書き込みは行わない。
type Reporter struct {
	employees EmployeeCounter
	reports   repository.ReportRepository
	loc       *time.Location
}

// NewReporter はReporterを生成する。
func NewReporter(employees EmployeeCounter, reports repository.ReportRepository, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.Local
	}
	return &Reporter{employees: employees, reports: reports, loc: loc}
}

// Location は日付・時刻の表示に使うタイムゾーンを返す。
func (s *Reporter) Location() *time.Location {
	return s.loc
}

// Summary は指定日の出勤者数・欠勤者数・従業員総数を返す。
func (s *Reporter) Summary(ctx context.Context, date time.Time) (*Summary, error) {
	day := DateOf(date, s.loc)

	total, err := s.employees.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("従業員数の取得に失敗しました: %w", err)
	}
	present, err := s.reports.CountPresent(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("出勤者数の取得に失敗しました: %w", err)
	}

	absent := total - present
	if absent < 0 {
		absent = 0
	}
	return &Summary{Date: day, Present: present, Absent: absent, Total: total}, nil
}

// ListRecords は全出退勤記録を従業員名付きで日付降順に返す。
func (s *Reporter) ListRecords(ctx context.Context) ([]model.AttendanceRow, error) {
	rows, err := s.reports.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("出退勤記録の取得に失敗しました: %w", err)
	}
	return rows, nil
}

// Trend は日付ごとの出勤者数を古い日付から最大TrendDays件返す。
func (s *Reporter) Trend(ctx context.Context) ([]model.DailyCount, error) {
	counts, err := s.reports.DailyCounts(ctx, TrendDays)
	if err != nil {
		return nil, fmt.Errorf("出勤推移の取得に失敗しました: %w", err)
	}
	return counts, nil
}

// Dashboard は今日の集計、全記録、推移をまとめて返す。
func (s *Reporter) Dashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	summary, err := s.Summary(ctx, now)
	if err != nil {
		return nil, err
	}
	records, err := s.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	trend, err := s.Trend(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Today: *summary, Records: records, Trend: trend}, nil
}
