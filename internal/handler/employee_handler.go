package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/attendman/internal/employee"
	"github.com/hitoshi/attendman/internal/model"
)

// EmployeeServiceInterface は従業員ハンドラーが必要とするサービスインターフェース。
type EmployeeServiceInterface interface {
	List(ctx context.Context) ([]*model.Employee, error)
	Get(ctx context.Context, id int64) (*model.Employee, error)
	Create(ctx context.Context, in model.EmployeeInput, photo *employee.Photo) (*employee.CreateResult, error)
	Update(ctx context.Context, id int64, in model.EmployeeInput, photo *employee.Photo) (*model.Employee, error)
	Delete(ctx context.Context, id int64) error
	RegenerateBadge(ctx context.Context, id int64) error
	BadgeReady(id int64) bool
}

// multipartMemory はmultipartフォーム解析時にメモリに保持する上限。超過分は一時ファイルに退避される。
const multipartMemory = 1 << 20

// employeeRow は一覧画面の1行分のデータ。
type employeeRow struct {
	Employee   *model.Employee
	BadgeReady bool
}

// employeeForm は登録・編集画面のデータ。
type employeeForm struct {
	Action  string
	Editing bool
	Input   model.EmployeeInput
}

// EmployeeHandler は従業員管理画面のHTTPハンドラー。
type EmployeeHandler struct {
	service      EmployeeServiceInterface
	renderer     *Renderer
	cookieSecure bool
}

// NewEmployeeHandler はEmployeeHandlerを生成する。
func NewEmployeeHandler(service EmployeeServiceInterface, renderer *Renderer, cookieSecure bool) *EmployeeHandler {
	return &EmployeeHandler{
		service:      service,
		renderer:     renderer,
		cookieSecure: cookieSecure,
	}
}

// Index は従業員一覧を表示する。
// GET /
func (h *EmployeeHandler) Index(w http.ResponseWriter, r *http.Request) {
	employees, err := h.service.List(r.Context())
	if err != nil {
		slog.Error("failed to list employees", slog.String("error", err.Error()))
		http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
		return
	}

	rows := make([]employeeRow, 0, len(employees))
	for _, e := range employees {
		rows = append(rows, employeeRow{Employee: e, BadgeReady: h.service.BadgeReady(e.ID)})
	}

	h.renderer.render(w, r, http.StatusOK, pageIndex, pageData{
		Title: "Employees",
		Flash: popFlash(w, r, h.cookieSecure),
		Data:  rows,
	})
}

// AddPage は従業員登録フォームを表示する。
// GET /add
func (h *EmployeeHandler) AddPage(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, employeeForm{Action: "/add"}, nil)
}

// Add は従業員を登録する。
// POST /add
func (h *EmployeeHandler) Add(w http.ResponseWriter, r *http.Request) {
	form := employeeForm{Action: "/add"}

	in, photo, cleanup, formErr := parseEmployeeForm(r)
	defer cleanup()
	form.Input = in
	if formErr != nil {
		h.renderForm(w, r, http.StatusBadRequest, form, formErr)
		return
	}

	result, err := h.service.Create(r.Context(), in, photo)
	if err != nil {
		h.formError(w, r, form, err)
		return
	}

	if result.BadgePending {
		setFlash(w, h.cookieSecure, "Employee added, identifier image pending")
	} else {
		setFlash(w, h.cookieSecure, "Employee added successfully")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// EditPage は従業員編集フォームを表示する。
// GET /edit/{id}
func (h *EmployeeHandler) EditPage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}

	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.pageError(w, err)
		return
	}

	h.renderForm(w, r, http.StatusOK, employeeForm{
		Action:  fmt.Sprintf("/edit/%d", id),
		Editing: true,
		Input: model.EmployeeInput{
			Name:     e.Name,
			Username: e.Username,
			Email:    e.Email,
			City:     e.City,
		},
	}, nil)
}

// Edit は従業員情報を更新する。
// POST /edit/{id}
func (h *EmployeeHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}
	form := employeeForm{Action: fmt.Sprintf("/edit/%d", id), Editing: true}

	in, photo, cleanup, formErr := parseEmployeeForm(r)
	defer cleanup()
	form.Input = in
	if formErr != nil {
		h.renderForm(w, r, http.StatusBadRequest, form, formErr)
		return
	}

	if _, err := h.service.Update(r.Context(), id, in, photo); err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Code == model.ErrCodeEmployeeNotFound {
			h.pageError(w, err)
			return
		}
		h.formError(w, r, form, err)
		return
	}

	setFlash(w, h.cookieSecure, "Employee updated")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Delete は従業員を削除する。出退勤記録も削除される。
// POST /delete/{id}
func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.pageError(w, err)
		return
	}

	setFlash(w, h.cookieSecure, "Employee deleted")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RegenerateBadge はQRバッジ画像を生成し直す。
// POST /employees/{id}/badge
func (h *EmployeeHandler) RegenerateBadge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employeeID(w, r)
	if !ok {
		return
	}

	if err := h.service.RegenerateBadge(r.Context(), id); err != nil {
		if _, isAPIErr := asAPIError(err); isAPIErr {
			h.pageError(w, err)
			return
		}
		slog.Error("failed to regenerate badge",
			slog.Int64("employee_id", id),
			slog.String("error", err.Error()),
		)
		setFlash(w, h.cookieSecure, "QR code generation failed. Please try again.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	setFlash(w, h.cookieSecure, "QR code generated")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// employeeID はURLパスの従業員IDを解析する。不正な場合は404を書き込みfalseを返す。
func (h *EmployeeHandler) employeeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Employee not found", http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func (h *EmployeeHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, form employeeForm, apiErr *model.APIError) {
	title := "Add Employee"
	if form.Editing {
		title = "Edit Employee"
	}
	h.renderer.render(w, r, status, pageEmployeeForm, pageData{
		Title: title,
		Error: apiErr,
		Data:  form,
	})
}

// formError は入力エラーをフォームに表示し、それ以外は500を返す。
func (h *EmployeeHandler) formError(w http.ResponseWriter, r *http.Request, form employeeForm, err error) {
	if apiErr, ok := asAPIError(err); ok {
		h.renderForm(w, r, mapAPIErrorToHTTPStatus(apiErr), form, apiErr)
		return
	}
	slog.Error("employee operation failed", slog.String("error", err.Error()))
	http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
}

// pageError はフォーム以外の画面でのエラーをテキストで返す。
func (h *EmployeeHandler) pageError(w http.ResponseWriter, err error) {
	if apiErr, ok := asAPIError(err); ok {
		http.Error(w, apiErr.Message, mapAPIErrorToHTTPStatus(apiErr))
		return
	}
	slog.Error("employee operation failed", slog.String("error", err.Error()))
	http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
}

// parseEmployeeForm はmultipartフォームから入力値と写真を取り出す。
// 返されたcleanupはリクエスト処理の最後に必ず呼ぶ。
func parseEmployeeForm(r *http.Request) (model.EmployeeInput, *employee.Photo, func(), *model.APIError) {
	noop := func() {}
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		slog.Warn("failed to parse employee form", slog.String("error", err.Error()))
		return model.EmployeeInput{}, nil, noop, model.NewInvalidPhotoError("upload is too large or malformed")
	}

	in := model.EmployeeInput{
		Name:     r.FormValue("name"),
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		City:     r.FormValue("city"),
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		// 写真は任意
		return in, nil, noop, nil
	}
	return in, &employee.Photo{Filename: header.Filename, Content: file}, func() { file.Close() }, nil
}
