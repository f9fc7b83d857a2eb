package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/attendman/internal/attendance"
	"github.com/hitoshi/attendman/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestDashboardHandler_Dashboard_RendersSummaryTrendAndRecords(t *testing.T) {
	out := at(2024, 3, 4, 17, 30)
	now := at(2024, 3, 4, 12, 0)
	var gotAt time.Time
	reports := &mockReportService{
		dashboardFn: func(ctx context.Context, t time.Time) (*attendance.Dashboard, error) {
			gotAt = t
			return &attendance.Dashboard{
				Today: attendance.Summary{Date: day(2024, 3, 4), Present: 1, Absent: 2, Total: 3},
				Records: []model.AttendanceRow{
					{EmployeeName: "Ava", WorkDate: day(2024, 3, 4), SignIn: at(2024, 3, 4, 9, 0), SignOut: &out},
					{EmployeeName: "Ben", WorkDate: day(2024, 3, 3), SignIn: at(2024, 3, 3, 8, 15)},
				},
				Trend: []model.DailyCount{
					{WorkDate: day(2024, 3, 3), Count: 1},
					{WorkDate: day(2024, 3, 4), Count: 1},
				},
			}, nil
		},
	}
	employees := &mockEmployeeService{
		listFn: func(ctx context.Context) ([]*model.Employee, error) {
			return []*model.Employee{{ID: 1, Name: "Ava"}, {ID: 2, Name: "Ben"}, {ID: 3, Name: "Cy"}}, nil
		},
	}
	h := NewDashboardHandler(reports, employees, newTestRenderer(t), func() time.Time { return now })

	req := withSession(httptest.NewRequest(http.MethodGet, "/dashboard", nil), "admin-1", model.RoleAdmin)
	w := httptest.NewRecorder()
	h.Dashboard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !gotAt.Equal(now) {
		t.Errorf("dashboard time = %v, want %v", gotAt, now)
	}

	doc := parseHTML(t, w.Body)
	checks := map[string]string{
		"summary-date": "2024-03-04",
		"present":      "1",
		"absent":       "2",
		"total":        "3",
	}
	for id, want := range checks {
		if got := textOf(findByID(doc, id)); got != want {
			t.Errorf("#%s = %q, want %q", id, got, want)
		}
	}

	trendRows := findAll(findByID(doc, "trend"), "tr")
	if len(trendRows) != 3 { // ヘッダー + 2行
		t.Errorf("trend rows = %d, want 3", len(trendRows))
	} else if got := textOf(trendRows[1]); got != "2024-03-03 1" {
		t.Errorf("first trend row = %q, want ascending order", got)
	}

	recordRows := findAll(findByID(doc, "records"), "tr")
	if len(recordRows) != 3 {
		t.Fatalf("record rows = %d, want 3", len(recordRows))
	}
	if got := textOf(recordRows[1]); got != "Ava 2024-03-04 09:00:00 17:30:00" {
		t.Errorf("closed record row = %q", got)
	}
	if got := textOf(recordRows[2]); got != "Ben 2024-03-03 08:15:00" {
		t.Errorf("open record row = %q", got)
	}

	if got := len(findAll(findByID(doc, "employee-list"), "li")); got != 3 {
		t.Errorf("employee list items = %d, want 3", got)
	}
}

func TestDashboardHandler_Dashboard_DateParameter(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	var gotAt time.Time
	reports := &mockReportService{
		loc: loc,
		dashboardFn: func(ctx context.Context, t time.Time) (*attendance.Dashboard, error) {
			gotAt = t
			return &attendance.Dashboard{Today: attendance.Summary{Date: t}}, nil
		},
	}
	h := NewDashboardHandler(reports, &mockEmployeeService{}, newTestRenderer(t), nil)

	w := httptest.NewRecorder()
	h.Dashboard(w, httptest.NewRequest(http.MethodGet, "/dashboard?date=2024-02-29", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, loc)
	if !gotAt.Equal(want) {
		t.Errorf("dashboard time = %v, want %v", gotAt, want)
	}
}

func TestDashboardHandler_Dashboard_InvalidDate(t *testing.T) {
	h := NewDashboardHandler(&mockReportService{}, &mockEmployeeService{}, newTestRenderer(t), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard?date=03/04/2024", nil)
	req.Header.Set("Accept", "application/json")
	h.Dashboard(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidDate {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidDate)
	}
}

func TestDashboardHandler_Dashboard_ServiceError(t *testing.T) {
	reports := &mockReportService{
		dashboardFn: func(ctx context.Context, t time.Time) (*attendance.Dashboard, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewDashboardHandler(reports, &mockEmployeeService{}, newTestRenderer(t), nil)

	w := httptest.NewRecorder()
	h.Dashboard(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestDashboardHandler_ExportCSV(t *testing.T) {
	out := at(2024, 3, 4, 17, 30)
	reports := &mockReportService{
		listRecordsFn: func(ctx context.Context) ([]model.AttendanceRow, error) {
			return []model.AttendanceRow{
				{EmployeeName: "Ava", WorkDate: day(2024, 3, 4), SignIn: at(2024, 3, 4, 9, 0), SignOut: &out},
				{EmployeeName: "Ben", WorkDate: day(2024, 3, 4), SignIn: at(2024, 3, 4, 8, 0)},
			}, nil
		},
	}
	h := NewDashboardHandler(reports, &mockEmployeeService{}, newTestRenderer(t), nil)

	w := httptest.NewRecorder()
	h.ExportCSV(w, httptest.NewRequest(http.MethodGet, "/export_attendance", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="attendance.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}

	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	want := [][]string{
		{"Name", "Date", "Sign In", "Sign Out"},
		{"Ava", "2024-03-04", "09:00:00", "17:30:00"},
		{"Ben", "2024-03-04", "08:00:00", ""},
	}
	if len(records) != len(want) {
		t.Fatalf("rows = %d, want %d", len(records), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if records[i][j] != want[i][j] {
				t.Errorf("row %d col %d = %q, want %q", i, j, records[i][j], want[i][j])
			}
		}
	}
}

func TestDashboardHandler_ExportCSV_ServiceError(t *testing.T) {
	reports := &mockReportService{
		listRecordsFn: func(ctx context.Context) ([]model.AttendanceRow, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewDashboardHandler(reports, &mockEmployeeService{}, newTestRenderer(t), nil)

	w := httptest.NewRecorder()
	h.ExportCSV(w, httptest.NewRequest(http.MethodGet, "/export_attendance", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if w.Header().Get("Content-Disposition") != "" {
		t.Error("no attachment should be sent on failure")
	}
}
