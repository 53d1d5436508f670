package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blogclient/internal/metrics"
	"github.com/hitoshi/blogclient/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Gatherer          prometheus.Gatherer

	// セッション
	Session SessionServiceInterface

	// 画面データ
	Views ViewComposer

	// いいね・フォロー・ブックマーク
	Toggles Toggler

	// 通知
	Inbox InboxInterface
	Hub   HubInterface

	// 投稿の編集
	Posts    PostEditorInterface
	Comments CommentWriterInterface
	Uploader ImageUploaderInterface

	// 画像プロキシ
	Media MediaFetcher
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Session → Logging → CSRF
//
// Sessionを先に置くことで、アクセスログにuser_idが含まれる。
// ログイン必須のルートには RequireLogin を追加し、トグル操作にはさらにレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.Session))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCSRFMiddleware(deps.CORSAllowedOrigin, deps.Logger))

	sessionHandler := NewSessionHandler(deps.Session, deps.Logger)
	viewHandler := NewViewHandler(deps.Views, deps.Logger)
	toggleHandler := NewToggleHandler(deps.Toggles, deps.Logger)
	notificationHandler := NewNotificationHandler(deps.Inbox, deps.Hub, deps.Logger)
	postHandler := NewPostHandler(deps.Posts, deps.Comments, deps.Uploader, deps.Logger)
	mediaHandler := NewMediaHandler(deps.Media, deps.Logger)
	healthHandler := NewHealthHandler(deps.Session, deps.Hub)

	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- ログイン不要のルート ---
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", sessionHandler.Get)
		r.Post("/login", sessionHandler.Login)
		r.Post("/register", sessionHandler.Register)
		r.Post("/logout", sessionHandler.Logout)
		r.Post("/refresh", sessionHandler.Refresh)
	})

	r.Get("/api/explore", viewHandler.Explore)
	r.Get("/api/posts/{post}", viewHandler.PostDetail)
	r.Get("/api/profiles/{userName}", viewHandler.Profile)
	r.Get("/api/authors/suggested", viewHandler.SuggestedAuthors)
	r.Get("/api/categories/{ref}", viewHandler.Category)
	r.Get("/api/tags/{ref}", viewHandler.Tag)
	r.Get("/api/topics", viewHandler.Topics)
	r.Get("/api/writers", viewHandler.Writers)
	r.Get("/api/writers/{id}", viewHandler.Writer)
	r.Get("/api/users/{userName}/followers", viewHandler.Followers)
	r.Get("/api/users/{userName}/following", viewHandler.Following)
	r.Get("/api/media", mediaHandler.Proxy)

	// --- ログイン必須のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireLoginMiddleware(deps.Session))

		r.Get("/api/bookmarks", viewHandler.Bookmarks)

		// トグル操作（連打を抑えるためレート制限を追加）
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.Middleware())
			}
			r.Post("/api/posts/{post}/like", toggleHandler.LikePost)
			r.Post("/api/posts/{post}/bookmark", toggleHandler.BookmarkPost)
			r.Post("/api/comments/{id}/like", toggleHandler.LikeComment)
			r.Post("/api/users/{userName}/follow", toggleHandler.Follow)
		})

		// 通知
		r.Get("/api/notifications", notificationHandler.List)
		r.Post("/api/notifications/read-all", notificationHandler.MarkAllRead)
		r.Post("/api/notifications/{id}/read", notificationHandler.MarkRead)
		r.Delete("/api/notifications/{id}", notificationHandler.Delete)
		r.Post("/api/notifications/test", notificationHandler.SendTest)

		// 投稿の編集
		r.Get("/api/me/posts", postHandler.MyPosts)
		r.Post("/api/posts", postHandler.Create)
		r.Put("/api/posts/{post}", postHandler.Update)
		r.Delete("/api/posts/{post}", postHandler.Delete)
		r.Post("/api/posts/{post}/publish", postHandler.Publish)
		r.Post("/api/posts/{post}/unpublish", postHandler.Unpublish)
		r.Post("/api/posts/{post}/comments", postHandler.CreateComment)
		r.Put("/api/comments/{id}", postHandler.UpdateComment)
		r.Delete("/api/comments/{id}", postHandler.DeleteComment)
		r.Post("/api/uploads/images", postHandler.UploadImage)
	})

	return r
}
