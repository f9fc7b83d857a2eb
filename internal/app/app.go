package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/attendman/internal/attendance"
	"github.com/hitoshi/attendman/internal/auth"
	"github.com/hitoshi/attendman/internal/badge"
	"github.com/hitoshi/attendman/internal/config"
	"github.com/hitoshi/attendman/internal/database"
	"github.com/hitoshi/attendman/internal/employee"
	"github.com/hitoshi/attendman/internal/handler"
	"github.com/hitoshi/attendman/internal/logger"
	"github.com/hitoshi/attendman/internal/metrics"
	"github.com/hitoshi/attendman/internal/middleware"
	"github.com/hitoshi/attendman/internal/model"
	"github.com/hitoshi/attendman/internal/repository"
	"github.com/hitoshi/attendman/internal/security"
	"github.com/hitoshi/attendman/internal/worker/backfill"
	"github.com/hitoshi/attendman/internal/worker/cleanup"
)

// multipartOverhead はアップロード上限に加算するフォームフィールド分の余裕。
const multipartOverhead = 1 << 20

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("timezone", cfg.Location.String()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAdmin:
		return runCreateAdmin(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// server はHTTPサーバーと、停止時に解放する資源をまとめたもの。
type server struct {
	http        *http.Server
	rateLimiter *middleware.RateLimiter
}

// newServer は全依存関係をワイヤリングしたHTTPサーバーを構築する。
// dbへの接続はリクエスト処理時まで行わない。
func newServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	employeeRepo := repository.NewPostgresEmployeeRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	reportRepo := repository.NewPostgresReportRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	badgeDir := filepath.Join(cfg.StaticDir, "qrcodes")
	employeeService := employee.NewService(
		employeeRepo,
		badge.NewRenderer(badgeDir, cfg.QRSize),
		employee.NewPhotoStore(cfg.UploadDir, cfg.MaxUploadSize),
		security.NewTextSanitizer(),
		collector,
		employee.Config{},
	)

	recorder := attendance.NewRecorder(employeeRepo, attendanceRepo, cfg.Location, collector)
	reporter := attendance.NewReporter(employeeRepo, reportRepo, cfg.Location)

	// 4. 画面テンプレート
	renderer, err := handler.NewRenderer(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(
		cfg.RateLimitGeneral, cfg.RateLimitScan, cfg.RateLimitLogin,
	))

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		SessionFinder: sessionRepo,
		RateLimiter:   rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		MaxBodyBytes:      cfg.MaxUploadSize + multipartOverhead,

		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		DB:             db,

		Renderer: renderer,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		EmployeeService: employeeService,
		Recorder:        recorder,
		ReportService:   reporter,

		BadgeDir:  badgeDir,
		UploadDir: cfg.UploadDir,
	}

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      handler.NewRouter(deps),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := newServer(cfg, db, reg)
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", srv.http.Addr))
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップと生成待ちバッジの補完を定期実行し、
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default(), nil)
	backfillJob := backfill.NewJob(
		repository.NewPostgresEmployeeRepo(db),
		badge.NewRenderer(filepath.Join(cfg.StaticDir, "qrcodes"), cfg.QRSize),
		slog.Default(),
		nil,
		0,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
		slog.Duration("badge_backfill_interval", cfg.BadgeBackfillInterval),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		backfillJob.Start(ctx, cfg.BadgeBackfillInterval)
	}()

	// ctxがキャンセルされるまでブロックする
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)
	wg.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runCreateAdmin は管理者ユーザーを作成する。
// 引数は <username> <password>。passwordを省略した場合はADMIN_PASSWORDを使う。
func runCreateAdmin(cfg *config.Config, args []string) error {
	username, password, err := parseCreateAdminArgs(args, os.Getenv("ADMIN_PASSWORD"))
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	authService := auth.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		nil,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := authService.CreateUser(ctx, username, password, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return nil
}

// parseCreateAdminArgs はcreate-adminの引数からユーザー名とパスワードを取り出す。
func parseCreateAdminArgs(args []string, envPassword string) (string, string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", "", errors.New("usage: create-admin <username> [password]")
	}
	password := envPassword
	if len(args) > 1 {
		password = args[1]
	}
	if password == "" {
		return "", "", errors.New("password is required (argument or ADMIN_PASSWORD)")
	}
	return args[0], password, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
