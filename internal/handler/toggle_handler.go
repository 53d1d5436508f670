package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogclient/internal/toggle"
)

// Toggler はトグル操作。toggle.Mutator が実装する。
type Toggler interface {
	Toggle(ctx context.Context, key toggle.Key) (toggle.State, error)
}

// ToggleHandler はいいね・フォロー・ブックマークのHTTPハンドラー。
// 失敗時もレスポンスには直前の状態が含まれる。
type ToggleHandler struct {
	toggles Toggler
	logger  *slog.Logger
}

// NewToggleHandler はToggleHandlerを生成する。
func NewToggleHandler(toggles Toggler, logger *slog.Logger) *ToggleHandler {
	return &ToggleHandler{toggles: toggles, logger: logger}
}

// toggleResponse はトグル結果のAPIレスポンス。
type toggleResponse struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Active bool   `json:"active"`
	Count  int    `json:"count"`
}

// LikePost は記事のいいねを切り替える。
// POST /api/posts/{post}/like
func (h *ToggleHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, toggle.Key{Kind: toggle.KindPostLike, ID: chi.URLParam(r, "post")})
}

// BookmarkPost は記事のブックマークを切り替える。
// POST /api/posts/{post}/bookmark
func (h *ToggleHandler) BookmarkPost(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, toggle.Key{Kind: toggle.KindBookmark, ID: chi.URLParam(r, "post")})
}

// LikeComment はコメントのいいねを切り替える。
// POST /api/comments/{id}/like
func (h *ToggleHandler) LikeComment(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, toggle.Key{Kind: toggle.KindCommentLike, ID: chi.URLParam(r, "id")})
}

// Follow はユーザーのフォローを切り替える。
// POST /api/users/{userName}/follow
func (h *ToggleHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, toggle.Key{Kind: toggle.KindFollow, ID: chi.URLParam(r, "userName")})
}

func (h *ToggleHandler) toggle(w http.ResponseWriter, r *http.Request, key toggle.Key) {
	state, err := h.toggles.Toggle(r.Context(), key)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{
		Kind:   string(key.Kind),
		ID:     key.ID,
		Active: state.Active,
		Count:  state.Count,
	})
}
