package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/attendman/internal/middleware"
	"github.com/hitoshi/attendman/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名
const (
	pageLogin        = "login.html"
	pageIndex        = "index.html"
	pageEmployeeForm = "employee_form.html"
	pageScan         = "scan.html"
	pageDashboard    = "dashboard.html"
)

// pageData は全画面共通のテンプレートデータ。
type pageData struct {
	Title     string
	CSRFToken string
	LoggedIn  bool
	IsAdmin   bool
	Flash     string
	Error     *model.APIError
	Data      any
}

// Renderer はレイアウトと各画面のテンプレートを保持する。
type Renderer struct {
	pages map[string]*template.Template
	loc   *time.Location
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
// 時刻はlocで表示する。
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	funcs := template.FuncMap{
		"clock": func(t time.Time) string {
			return t.In(loc).Format("15:04:05")
		},
		"clockPtr": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.In(loc).Format("15:04:05")
		},
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
	}

	rd := &Renderer{pages: make(map[string]*template.Template), loc: loc}
	for _, page := range []string{pageLogin, pageIndex, pageEmployeeForm, pageScan, pageDashboard} {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		rd.pages[page] = tmpl
	}
	return rd, nil
}

// render は画面を描画する。共通データ（CSRFトークン、ログイン状態）はリクエストから補完する。
// 描画結果はバッファしてから書き込み、途中で失敗した場合は500を返す。
func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := rd.pages[page]
	if !ok {
		slog.Error("unknown template", slog.String("page", page))
		http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
		return
	}

	data.CSRFToken = middleware.CSRFToken(r.Context())
	if _, err := middleware.UserIDFromContext(r.Context()); err == nil {
		data.LoggedIn = true
	}
	data.IsAdmin = middleware.RoleFromContext(r.Context()) == model.RoleAdmin

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal server error. Please try again.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
