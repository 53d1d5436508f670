package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogclient/internal/middleware"
	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/session"
)

// SessionServiceInterface はセッションハンドラーが必要とするセッション操作。
// session.Container が実装する。
type SessionServiceInterface interface {
	State() session.State
	Login(ctx context.Context, req model.LoginRequest) (bool, error)
	Register(ctx context.Context, req model.RegisterRequest) (bool, error)
	Logout(ctx context.Context) error
	RefreshUser(ctx context.Context) error
}

// SessionHandler はセッション（ログイン状態）のHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
	logger  *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: service, logger: logger}
}

// Get は現在のセッション状態を返す。
// GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.State())
}

// Login はログインを処理する。
// POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.service.Login(r.Context(), req)
	h.writeAuthResult(w, ok, err)
}

// Register はユーザー登録を処理する。
// POST /api/session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.service.Register(r.Context(), req)
	h.writeAuthResult(w, ok, err)
}

// Logout はログアウトを処理する。サーバー側の失敗に関わらずローカルの状態は破棄される。
// POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.State())
}

// Refresh はユーザー情報を再取得する。
// POST /api/session/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshUser(r.Context()); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.State())
}

func (h *SessionHandler) writeAuthResult(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "INVALID_CREDENTIALS",
			Message:  "ログインに失敗しました。",
			Category: model.CategoryAuth,
			Action:   "入力内容を確認して再度お試しください。",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.service.State())
}
