package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/attendman/internal/metrics"
	"github.com/hitoshi/attendman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	MaxBodyBytes      int64

	// 運用
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
	DB             Pinger

	// 画面
	Renderer *Renderer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 従業員・打刻・集計
	EmployeeService EmployeeServiceInterface
	Recorder        AttendanceRecorder
	ReportService   ReportServiceInterface

	// 静的ファイル
	BadgeDir  string
	UploadDir string

	// 現在時刻（テスト用に差し替え可能）
	Now func() time.Time
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → BodyLimit → CSRF
//	  → (認証ルート) Session → RateLimit(General) → [RequireAdmin]
//
// ログイン・ログアウト・ヘルスチェック・メトリクスはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.Middleware(mc))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewBodyLimitMiddleware(deps.MaxBodyBytes))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.Renderer, deps.AuthConfig)
	employeeHandler := NewEmployeeHandler(deps.EmployeeService, deps.Renderer, deps.AuthConfig.CookieSecure)
	scanHandler := NewScanHandler(deps.Recorder, deps.Renderer, deps.Now)
	dashboardHandler := NewDashboardHandler(deps.ReportService, deps.EmployeeService, deps.Renderer, deps.Now)

	// --- 認証不要のルート ---

	if deps.DB != nil {
		r.Get("/health", NewHealthHandler(deps.DB))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.LoginMiddleware())
		r.Get("/login", authHandler.LoginPage)
		r.Post("/login", authHandler.Login)
	})
	r.Post("/logout", authHandler.Logout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/me", authHandler.Me)

		// 従業員管理
		r.Get("/", employeeHandler.Index)
		r.Get("/add", employeeHandler.AddPage)
		r.Post("/add", employeeHandler.Add)
		r.Get("/edit/{id}", employeeHandler.EditPage)
		r.Post("/edit/{id}", employeeHandler.Edit)
		r.Post("/delete/{id}", employeeHandler.Delete)
		r.Post("/employees/{id}/badge", employeeHandler.RegenerateBadge)

		// 打刻（打刻専用レート制限を追加）
		r.Get("/scan", scanHandler.ScanPage)
		r.With(deps.RateLimiter.ScanMiddleware()).Post("/mark_attendance", scanHandler.MarkAttendance)

		// バッジ画像と写真
		r.Handle("/static/qrcodes/*", fileServer("/static/qrcodes/", deps.BadgeDir))
		r.Handle("/uploads/*", fileServer("/uploads/", deps.UploadDir))

		// 管理者のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/dashboard", dashboardHandler.Dashboard)
			r.Get("/export_attendance", dashboardHandler.ExportCSV)
		})
	})

	return r
}

// fileServer はdir配下のファイルを配信するハンドラーを返す。ディレクトリ一覧は返さない。
func fileServer(prefix, dir string) http.Handler {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dir == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
