package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/attendman/internal/attendance"
	"github.com/hitoshi/attendman/internal/middleware"
	"github.com/hitoshi/attendman/internal/model"
)

// AttendanceRecorder はスキャンハンドラーが必要とする打刻インターフェース。
type AttendanceRecorder interface {
	RecordScan(ctx context.Context, employeeID int64, now time.Time) (*attendance.Result, error)
}

// markAttendanceRequest は打刻リクエストのボディ。
// QRコードの読み取り結果は数値または数値文字列のどちらでも受け付ける。
type markAttendanceRequest struct {
	EmployeeID json.Number `json:"employee_id"`
}

// markAttendanceResponse は打刻レスポンスのボディ。
type markAttendanceResponse struct {
	Message    string `json:"message"`
	Outcome    string `json:"outcome"`
	EmployeeID int64  `json:"employee_id"`
}

// ScanHandler はスキャナー画面と打刻APIのHTTPハンドラー。
type ScanHandler struct {
	recorder AttendanceRecorder
	renderer *Renderer
	now      func() time.Time
}

// NewScanHandler はScanHandlerを生成する。nowがnilの場合はtime.Nowを使う。
func NewScanHandler(recorder AttendanceRecorder, renderer *Renderer, now func() time.Time) *ScanHandler {
	if now == nil {
		now = time.Now
	}
	return &ScanHandler{recorder: recorder, renderer: renderer, now: now}
}

// ScanPage はカメラでQRコードを読み取るスキャナー画面を表示する。
// GET /scan
func (h *ScanHandler) ScanPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.render(w, r, http.StatusOK, pageScan, pageData{Title: "Scan"})
}

// MarkAttendance はスキャンされた従業員IDで出勤または退勤を記録する。
// POST /mark_attendance
func (h *ScanHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req markAttendanceRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidScanError("request body must be JSON"))
		return
	}

	id, err := req.EmployeeID.Int64()
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidScanError("employee_id must be an integer"))
		return
	}

	result, err := h.recorder.RecordScan(r.Context(), id, h.now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markAttendanceResponse{
		Message:    result.Message(),
		Outcome:    result.Outcome.String(),
		EmployeeID: result.EmployeeID,
	})
}
