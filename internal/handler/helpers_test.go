package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"

	"github.com/hitoshi/attendman/internal/attendance"
	"github.com/hitoshi/attendman/internal/employee"
	"github.com/hitoshi/attendman/internal/middleware"
	"github.com/hitoshi/attendman/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn          func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, model.NewUserNotFoundError()
}

type mockEmployeeService struct {
	listFn            func(ctx context.Context) ([]*model.Employee, error)
	getFn             func(ctx context.Context, id int64) (*model.Employee, error)
	createFn          func(ctx context.Context, in model.EmployeeInput, photo *employee.Photo) (*employee.CreateResult, error)
	updateFn          func(ctx context.Context, id int64, in model.EmployeeInput, photo *employee.Photo) (*model.Employee, error)
	deleteFn          func(ctx context.Context, id int64) error
	regenerateBadgeFn func(ctx context.Context, id int64) error
	badgeReadyFn      func(id int64) bool
}

func (m *mockEmployeeService) List(ctx context.Context) ([]*model.Employee, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockEmployeeService) Get(ctx context.Context, id int64) (*model.Employee, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewEmployeeNotFoundError(id)
}

func (m *mockEmployeeService) Create(ctx context.Context, in model.EmployeeInput, photo *employee.Photo) (*employee.CreateResult, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in, photo)
	}
	return &employee.CreateResult{Employee: &model.Employee{ID: 1, Name: in.Name}}, nil
}

func (m *mockEmployeeService) Update(ctx context.Context, id int64, in model.EmployeeInput, photo *employee.Photo) (*model.Employee, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in, photo)
	}
	return &model.Employee{ID: id, Name: in.Name}, nil
}

func (m *mockEmployeeService) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockEmployeeService) RegenerateBadge(ctx context.Context, id int64) error {
	if m.regenerateBadgeFn != nil {
		return m.regenerateBadgeFn(ctx, id)
	}
	return nil
}

func (m *mockEmployeeService) BadgeReady(id int64) bool {
	if m.badgeReadyFn != nil {
		return m.badgeReadyFn(id)
	}
	return true
}

type mockRecorder struct {
	recordScanFn func(ctx context.Context, employeeID int64, now time.Time) (*attendance.Result, error)
}

func (m *mockRecorder) RecordScan(ctx context.Context, employeeID int64, now time.Time) (*attendance.Result, error) {
	if m.recordScanFn != nil {
		return m.recordScanFn(ctx, employeeID, now)
	}
	return nil, model.NewEmployeeNotFoundError(employeeID)
}

type mockReportService struct {
	dashboardFn   func(ctx context.Context, now time.Time) (*attendance.Dashboard, error)
	listRecordsFn func(ctx context.Context) ([]model.AttendanceRow, error)
	loc           *time.Location
}

func (m *mockReportService) Dashboard(ctx context.Context, now time.Time) (*attendance.Dashboard, error) {
	if m.dashboardFn != nil {
		return m.dashboardFn(ctx, now)
	}
	return &attendance.Dashboard{Today: attendance.Summary{Date: now}}, nil
}

func (m *mockReportService) ListRecords(ctx context.Context) ([]model.AttendanceRow, error) {
	if m.listRecordsFn != nil {
		return m.listRecordsFn(ctx)
	}
	return nil, nil
}

func (m *mockReportService) Location() *time.Location {
	if m.loc != nil {
		return m.loc
	}
	return time.UTC
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	rd, err := NewRenderer(time.UTC)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return rd
}

// withSession はテスト用にリクエストコンテキストにセッション情報を注入するヘルパー。
func withSession(r *http.Request, userID string, role model.Role) *http.Request {
	ctx := middleware.ContextWithSession(r.Context(), &model.Session{ID: "session-" + userID, UserID: userID, Role: role})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// parseHTML はレスポンスボディをHTMLとして解析する。
func parseHTML(t *testing.T, body io.Reader) *html.Node {
	t.Helper()
	doc, err := html.Parse(body)
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	return doc
}

// findByID はid属性が一致する要素を探す。
func findByID(n *html.Node, id string) *html.Node {
	var found *html.Node
	walk(n, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// findAll は要素名が一致する要素をすべて返す。
func findAll(n *html.Node, tag string) []*html.Node {
	var nodes []*html.Node
	walk(n, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}

func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf は要素配下のテキストを空白を詰めて連結する。
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	walk(n, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		return true
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}
