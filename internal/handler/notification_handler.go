package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/notification"
)

// InboxInterface は通知ハンドラーが必要とする通知一覧の操作。
// notification.Inbox が実装する。
type InboxInterface interface {
	Load(ctx context.Context) error
	LoadPage(ctx context.Context, page model.Page) (int, error)
	ApplyRead(id string)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	SendTest(ctx context.Context) error
	Snapshot() notification.Snapshot
}

// HubInterface はリアルタイム接続経由の既読化。realtime.Channel が実装する。
type HubInterface interface {
	Connected() bool
	MarkAsRead(ctx context.Context, notificationID string) error
}

// NotificationHandler は通知のHTTPハンドラー。
type NotificationHandler struct {
	inbox  InboxInterface
	hub    HubInterface
	logger *slog.Logger
}

// NewNotificationHandler はNotificationHandlerを生成する。hubはnilでもよい。
func NewNotificationHandler(inbox InboxInterface, hub HubInterface, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, hub: hub, logger: logger}
}

// List は通知一覧と未読数を返す。
// GET /api/notifications?refresh=true で先頭ページから再取得し、
// ?page=N（N>1）で続きのページを一覧の末尾に追加する。
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("refresh") == "true":
		if err := h.inbox.Load(r.Context()); err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
	case q.Get("page") != "":
		page := pageFromQuery(r, 20)
		if page.Number > 1 {
			if _, err := h.inbox.LoadPage(r.Context(), page); err != nil {
				handleServiceError(w, h.logger, err)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, h.inbox.Snapshot())
}

// MarkRead は通知を既読にする。
// リアルタイム接続があればハブ経由で送り、失敗した場合はRESTで既読化する。
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.hub != nil && h.hub.Connected() {
		err := h.hub.MarkAsRead(r.Context(), id)
		if err == nil {
			h.inbox.ApplyRead(id)
			writeJSON(w, http.StatusOK, h.inbox.Snapshot())
			return
		}
		h.logger.Warn("hub mark-as-read failed, falling back to REST",
			slog.String("notification_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := h.inbox.MarkRead(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.inbox.Snapshot())
}

// MarkAllRead はすべての通知を既読にする。
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.MarkAllRead(r.Context()); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.inbox.Snapshot())
}

// Delete は通知を削除する。
// DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendTest はテスト通知の送信をバックエンドに依頼する。
// 通知そのものはリアルタイム接続または次回の一覧取得で届くため、202を返す。
// POST /api/notifications/test
func (h *NotificationHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.SendTest(r.Context()); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
