package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/attendman/internal/attendance"
	"github.com/hitoshi/attendman/internal/middleware"
	"github.com/hitoshi/attendman/internal/model"
)

// ReportServiceInterface はダッシュボードとCSVエクスポートが必要とする集計インターフェース。
type ReportServiceInterface interface {
	Dashboard(ctx context.Context, now time.Time) (*attendance.Dashboard, error)
	ListRecords(ctx context.Context) ([]model.AttendanceRow, error)
	Location() *time.Location
}

// EmployeeLister は従業員一覧を取得するインターフェース。
type EmployeeLister interface {
	List(ctx context.Context) ([]*model.Employee, error)
}

// dashboardView はダッシュボード画面のデータ。
type dashboardView struct {
	Dashboard *attendance.Dashboard
	Employees []*model.Employee
}

// DashboardHandler は管理者向けのダッシュボードとCSVエクスポートのHTTPハンドラー。
type DashboardHandler struct {
	reports   ReportServiceInterface
	employees EmployeeLister
	renderer  *Renderer
	now       func() time.Time
}

// NewDashboardHandler はDashboardHandlerを生成する。nowがnilの場合はtime.Nowを使う。
func NewDashboardHandler(reports ReportServiceInterface, employees EmployeeLister, renderer *Renderer, now func() time.Time) *DashboardHandler {
	if now == nil {
		now = time.Now
	}
	return &DashboardHandler{reports: reports, employees: employees, renderer: renderer, now: now}
}

// Dashboard は出勤状況の集計・記録一覧・推移を表示する。
// ?date=YYYY-MM-DD を指定するとその日の出勤状況を表示する。
// GET /dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	at := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, h.reports.Location())
		if err != nil {
			apiErr := model.NewInvalidDateError(raw)
			if middleware.WantsJSON(r) {
				middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
				return
			}
			http.Error(w, apiErr.Message, http.StatusBadRequest)
			return
		}
		at = d
	}

	dashboard, err := h.reports.Dashboard(r.Context(), at)
	if err != nil {
		slog.Error("failed to build dashboard", slog.String("error", err.Error()))
		http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
		return
	}
	employees, err := h.employees.List(r.Context())
	if err != nil {
		slog.Error("failed to list employees", slog.String("error", err.Error()))
		http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
		return
	}

	h.renderer.render(w, r, http.StatusOK, pageDashboard, pageData{
		Title: "Dashboard",
		Data:  dashboardView{Dashboard: dashboard, Employees: employees},
	})
}

// ExportCSV は全出退勤記録をCSVファイルとしてダウンロードさせる。
// GET /export_attendance
func (h *DashboardHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reports.ListRecords(r.Context())
	if err != nil {
		slog.Error("failed to list attendance records", slog.String("error", err.Error()))
		http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)
	if err := attendance.WriteCSV(w, rows, h.reports.Location()); err != nil {
		// ヘッダー送信後のためログのみ
		slog.Error("failed to write attendance csv", slog.String("error", err.Error()))
	}
}
