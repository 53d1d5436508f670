package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogclient/internal/middleware"
	"github.com/hitoshi/blogclient/internal/model"
)

// maxUploadSize は画像アップロードのmultipartボディの上限。
const maxUploadSize = 10 << 20

// PostEditorInterface は投稿の作成・編集に必要な操作。post.Service が実装する。
type PostEditorInterface interface {
	Get(ctx context.Context, id string) (*model.Post, error)
	MyPosts(ctx context.Context, page model.Page) (*model.PagedResult[model.Post], error)
	Create(ctx context.Context, in model.PostInput) (*model.Post, error)
	Update(ctx context.Context, current *model.Post, userID string, in model.PostInput) (*model.Post, error)
	Delete(ctx context.Context, current *model.Post, userID string) error
	Publish(ctx context.Context, current *model.Post, userID string) (*model.Post, error)
	Unpublish(ctx context.Context, current *model.Post, userID string) (*model.Post, error)
}

// CommentWriterInterface はコメントの投稿・編集・削除。comment.Service が実装する。
type CommentWriterInterface interface {
	Get(ctx context.Context, id string) (*model.Comment, error)
	Create(ctx context.Context, req model.CreateCommentRequest) (*model.Comment, error)
	Update(ctx context.Context, id string, req model.UpdateCommentRequest) (*model.Comment, error)
	Delete(ctx context.Context, id string) error
}

// ImageUploaderInterface は画像のアップロード。upload.Service が実装する。
type ImageUploaderInterface interface {
	UploadImage(ctx context.Context, filename string, content io.Reader) (*model.FileUploadResponse, error)
}

// PostHandler は投稿の作成・編集、コメント投稿、画像アップロードのHTTPハンドラー。
// すべてログイン必須のルートに配置する。
type PostHandler struct {
	posts    PostEditorInterface
	comments CommentWriterInterface
	uploader ImageUploaderInterface
	logger   *slog.Logger
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(posts PostEditorInterface, comments CommentWriterInterface, uploader ImageUploaderInterface, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, comments: comments, uploader: uploader, logger: logger}
}

// MyPosts はログイン中ユーザーの投稿一覧（下書きを含む）を返す。
// GET /api/me/posts
func (h *PostHandler) MyPosts(w http.ResponseWriter, r *http.Request) {
	res, err := h.posts.MyPosts(r.Context(), pageFromQuery(r, 10))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Create は投稿を下書きとして作成する。
// POST /api/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.PostInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.posts.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Update は投稿を更新する。
// PUT /api/posts/{post}
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in model.PostInput
	if !decodeJSON(w, r, &in) {
		return
	}
	current, userID, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	p, err := h.posts.Update(r.Context(), current, userID, in)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete は投稿を削除する。
// DELETE /api/posts/{post}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	current, userID, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if err := h.posts.Delete(r.Context(), current, userID); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish は投稿を公開する。
// POST /api/posts/{post}/publish
func (h *PostHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.posts.Publish)
}

// Unpublish は投稿を非公開に戻す。
// POST /api/posts/{post}/unpublish
func (h *PostHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.posts.Unpublish)
}

func (h *PostHandler) transition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, current *model.Post, userID string) (*model.Post, error)) {
	current, userID, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	p, err := fn(r.Context(), current, userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// loadOwned は編集対象の投稿とログイン中ユーザーIDを取得する。
// 所有者の確認はサービス側で行う。
func (h *PostHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*model.Post, string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewLoginRequiredError())
		return nil, "", false
	}
	current, err := h.posts.Get(r.Context(), chi.URLParam(r, "post"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return nil, "", false
	}
	return current, userID, true
}

// CreateComment は投稿にコメント（または返信）を追加する。
// POST /api/posts/{post}/comments
func (h *PostHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.PostID = chi.URLParam(r, "post")
	c, err := h.comments.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateComment はコメント本文を更新する。投稿者本人以外は403。
// PUT /api/comments/{id}
func (h *PostHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewLoginRequiredError())
		return
	}

	id := chi.URLParam(r, "id")
	current, err := h.comments.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if current.Author.ID != userID {
		handleServiceError(w, h.logger, model.NewForbiddenError("このコメントを編集する権限がありません。"))
		return
	}

	c, err := h.comments.Update(r.Context(), id, req)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteComment はコメントを削除する。
// DELETE /api/comments/{id}
func (h *PostHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.comments.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage はmultipartのfileフィールドで受け取った画像をバックエンドへ転送する。
// POST /api/uploads/images
func (h *PostHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		handleServiceError(w, h.logger, model.NewValidationError("file", "画像ファイルを選択してください。"))
		return
	}
	defer file.Close()

	res, err := h.uploader.UploadImage(r.Context(), header.Filename, file)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
