package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/security"
)

// MediaFetcher は許可されたオリジンからの画像取得。security.MediaGuard が実装する。
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.Media, error)
}

// MediaHandler は画像プロキシのHTTPハンドラー。
type MediaHandler struct {
	fetcher MediaFetcher
	logger  *slog.Logger
}

// NewMediaHandler はMediaHandlerを生成する。
func NewMediaHandler(fetcher MediaFetcher, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{fetcher: fetcher, logger: logger}
}

// Proxy は許可リストにあるオリジンの画像を取得して返す。
// GET /api/media?url=...
func (h *MediaHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		handleServiceError(w, h.logger, model.NewValidationError("url", "URLを指定してください。"))
		return
	}

	media, err := h.fetcher.Fetch(r.Context(), raw)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", media.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(media.Body)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(media.Body)
}
