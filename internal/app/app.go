package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/auth"
	"github.com/hitoshi/blogclient/internal/bookmark"
	"github.com/hitoshi/blogclient/internal/comment"
	"github.com/hitoshi/blogclient/internal/config"
	"github.com/hitoshi/blogclient/internal/credential"
	"github.com/hitoshi/blogclient/internal/handler"
	"github.com/hitoshi/blogclient/internal/like"
	"github.com/hitoshi/blogclient/internal/logger"
	"github.com/hitoshi/blogclient/internal/metrics"
	"github.com/hitoshi/blogclient/internal/middleware"
	"github.com/hitoshi/blogclient/internal/notification"
	"github.com/hitoshi/blogclient/internal/post"
	"github.com/hitoshi/blogclient/internal/realtime"
	"github.com/hitoshi/blogclient/internal/security"
	"github.com/hitoshi/blogclient/internal/session"
	"github.com/hitoshi/blogclient/internal/taxonomy"
	"github.com/hitoshi/blogclient/internal/toggle"
	"github.com/hitoshi/blogclient/internal/upload"
	"github.com/hitoshi/blogclient/internal/user"
	"github.com/hitoshi/blogclient/internal/view"
)

// stdout はwhoamiの出力先。テストで差し替える。
var stdout io.Writer = os.Stdout

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

	// 3. 設定されたレベルでロガーを作り直す
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
		port := os.Getenv("LISTEN_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ListenPort),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	switch cmd {
	case CommandWhoami:
		return runWhoami(cfg)
	default:
		return runServe(cfg)
	}
}

// components は配線済みの依存関係一式。
type components struct {
	creds   *credential.Store
	api     *apiclient.Client
	session *session.Container
	inbox   *notification.Inbox
	channel *realtime.Channel
	binder  *realtime.Binder
	toggles *toggle.Mutator
	limiter *middleware.RateLimiter
	router  http.Handler
}

// build は設定から全依存関係を組み立てる。通信は行わない。
func build(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*components, error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. 認証情報とRESTクライアント
	creds := credential.NewStore(cfg.CredentialFile, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, log)
	if err := creds.Load(); err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	api := apiclient.NewClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		creds,
		apiclient.Config{
			BaseURL:   cfg.APIBaseURL,
			RateLimit: cfg.APIRateLimit,
			RateBurst: cfg.APIRateBurst,
		},
		collector,
		log,
	)

	// 3. セッション。401応答は即座にAnonymousへの遷移として反映する
	authService := auth.NewService(api, creds, log)
	container := session.NewContainer(authService, creds, log)
	api.OnUnauthorized(container.HandleInvalidation)

	// 4. ドメインサービス
	postService := post.NewService(api, log)
	commentService := comment.NewService(api, log)
	likeService := like.NewService(api)
	bookmarkService := bookmark.NewService(api)
	taxonomyService := taxonomy.NewService(api)
	userService := user.NewService(api, log)
	uploadService := upload.NewService(api, log)
	notificationService := notification.NewService(api)

	// 5. 通知とリアルタイム接続
	inbox := notification.NewInbox(notificationService, collector, log)
	channel := realtime.NewChannel(realtime.Config{
		URL:        cfg.HubURL,
		MaxBackoff: cfg.RealtimeMaxBackoff,
	}, creds, inbox, collector, log)
	binder := realtime.NewBinder(container, channel, inbox, log)

	// 6. いいね・フォロー・ブックマーク
	toggles := toggle.NewMutator(toggle.Backends{
		Likes:     likeService,
		Follows:   userService,
		Bookmarks: bookmarkService,
	}, container, collector, log)

	// 7. セキュリティ
	guard, err := security.NewMediaGuard(cfg.ImageAllowedOrigins, cfg.ImageMaxSize, cfg.HTTPTimeout, collector, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build media guard: %w", err)
	}
	sanitizer := security.NewContentSanitizer(guard.Allowed)

	// 8. 画面データ
	composer := view.NewComposer(view.Deps{
		Session:   container,
		Posts:     postService,
		Taxonomy:  taxonomyService,
		Comments:  commentService,
		Likes:     likeService,
		Bookmarks: bookmarkService,
		Users:     userService,
		Sanitizer: sanitizer,
		Toggles:   toggles,
		Logger:    log,
	})

	// 9. ルーター
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Gatherer:          reg,
		Session:           container,
		Views:             composer,
		Toggles:           toggles,
		Inbox:             inbox,
		Hub:               channel,
		Posts:             postService,
		Comments:          commentService,
		Uploader:          uploadService,
		Media:             guard,
	})

	return &components{
		creds:   creds,
		api:     api,
		session: container,
		inbox:   inbox,
		channel: channel,
		binder:  binder,
		toggles: toggles,
		limiter: limiter,
		router:  router,
	}, nil
}

// start はセッションの復元とリアルタイム接続の監視を開始する。
// ログアウト時にはトグルの表示状態も破棄する。
func (c *components) start(ctx context.Context) {
	c.session.Watch(func(s session.State) {
		if s.Phase == session.PhaseAnonymous {
			c.toggles.Reset()
		}
	})
	c.binder.Start(ctx)
	if err := c.session.Init(ctx); err != nil {
		slog.Warn("session restore failed", slog.String("error", err.Error()))
	}
}

// close は接続と監視を終了する。
func (c *components) close() {
	c.binder.Close()
	c.session.Close()
	c.limiter.Stop()
}

// runServe はローカルAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、セッションを復元してからHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := build(cfg, slog.Default(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer c.close()

	c.start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.ListenPort,
		Handler:      c.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("local API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down local API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("local API server stopped gracefully")
	return nil
}

// runWhoami は保存済みの認証情報からセッションを復元し、結果を表示する。
// リアルタイム接続は開始しない。
func runWhoami(cfg *config.Config) error {
	c, err := build(cfg, slog.Default(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancel()

	if err := c.session.Init(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(c.session.State())
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
