package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/view"
)

// ViewComposer は画面データの組み立て。view.Composer が実装する。
type ViewComposer interface {
	Explore(ctx context.Context) (*view.Explore, error)
	PostDetail(ctx context.Context, slug string) (*view.PostDetail, error)
	Profile(ctx context.Context, userName string) (*view.Profile, error)
	AuthorsToFollow(ctx context.Context) ([]view.AuthorCard, error)
	Bookmarks(ctx context.Context, page model.Page) (*model.BookmarksPage, error)
	Category(ctx context.Context, ref string, page model.Page) (*view.CategoryPosts, error)
	Tag(ctx context.Context, ref string, page model.Page) (*view.TagPosts, error)
	Topics(ctx context.Context, search string) (*view.Topics, error)
	Writers(ctx context.Context, q view.WriterQuery) ([]view.AuthorCard, error)
	Writer(ctx context.Context, id string) (*view.AuthorCard, error)
	Followers(ctx context.Context, userName string, page model.Page) (*model.FollowersPage, error)
	Following(ctx context.Context, userName string, page model.Page) (*model.FollowingPage, error)
}

// ViewHandler は画面単位のデータを返すHTTPハンドラー。
type ViewHandler struct {
	views  ViewComposer
	logger *slog.Logger
}

// NewViewHandler はViewHandlerを生成する。
func NewViewHandler(views ViewComposer, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{views: views, logger: logger}
}

// Explore は探索画面のデータを返す。
// GET /api/explore
func (h *ViewHandler) Explore(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Explore(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PostDetail は投稿詳細画面のデータを返す。
// GET /api/posts/{post}（{post}はスラッグ）
func (h *ViewHandler) PostDetail(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.PostDetail(r.Context(), chi.URLParam(r, "post"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Profile はプロフィール画面のデータを返す。
// GET /api/profiles/{userName}
func (h *ViewHandler) Profile(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Profile(r.Context(), chi.URLParam(r, "userName"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SuggestedAuthors はおすすめ著者を返す。
// GET /api/authors/suggested
func (h *ViewHandler) SuggestedAuthors(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.AuthorsToFollow(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authors": res})
}

// Bookmarks はブックマーク一覧を返す。
// GET /api/bookmarks?page=&pageSize=
func (h *ViewHandler) Bookmarks(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Bookmarks(r.Context(), pageFromQuery(r, 10))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Category はカテゴリ別の投稿一覧を返す。
// GET /api/categories/{ref}?page=&pageSize=（{ref}はスラッグまたはID）
func (h *ViewHandler) Category(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Category(r.Context(), chi.URLParam(r, "ref"), pageFromQuery(r, 20))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Tag はタグ別の投稿一覧を返す。
// GET /api/tags/{ref}?page=&pageSize=（{ref}はスラッグまたはID）
func (h *ViewHandler) Tag(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Tag(r.Context(), chi.URLParam(r, "ref"), pageFromQuery(r, 20))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Topics はカテゴリとタグの一覧を返す。
// GET /api/topics?q=
func (h *ViewHandler) Topics(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Topics(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Writers は著者ディレクトリを返す。
// GET /api/writers?q=&sort=posts|followers|name|recent
func (h *ViewHandler) Writers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.views.Writers(r.Context(), view.WriterQuery{Search: q.Get("q"), Sort: q.Get("sort")})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authors": res})
}

// Writer はIDで著者を返す。
// GET /api/writers/{id}
func (h *ViewHandler) Writer(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Writer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Followers はフォロワー一覧を返す。
// GET /api/users/{userName}/followers?page=&pageSize=
func (h *ViewHandler) Followers(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Followers(r.Context(), chi.URLParam(r, "userName"), pageFromQuery(r, 20))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Following はフォロー中の一覧を返す。
// GET /api/users/{userName}/following?page=&pageSize=
func (h *ViewHandler) Following(w http.ResponseWriter, r *http.Request) {
	res, err := h.views.Following(r.Context(), chi.URLParam(r, "userName"), pageFromQuery(r, 20))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
