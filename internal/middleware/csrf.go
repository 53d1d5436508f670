package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogclient/internal/model"
)

// NewCSRFMiddleware は状態変更リクエストの送信元を検証するミドルウェアを返す。
// ローカルAPIは他サイトのページからも到達できるため、
// 状態変更メソッド（POST, PUT, PATCH, DELETE）は次のいずれかを満たす場合のみ通す。
//   - OriginヘッダーがallowedOriginと一致する
//   - Originヘッダーがなく、Sec-Fetch-Siteがsame-originまたはnone（もしくは未送信）
//
// 安全なメソッド（GET, HEAD, OPTIONS）は検証しない。
func NewCSRFMiddleware(allowedOrigin string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isTrustedSource(r, allowedOrigin) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("CSRF validation failed: untrusted request source",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", r.Header.Get("Origin")),
				slog.String("sec_fetch_site", r.Header.Get("Sec-Fetch-Site")),
			)
			WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
				Code:     model.ErrCodeForbidden,
				Message:  "送信元を確認できないリクエストです。",
				Category: model.CategoryAuth,
				Action:   "アプリケーションの画面から操作してください。",
			})
		})
	}
}

func isTrustedSource(r *http.Request, allowedOrigin string) bool {
	if origin := r.Header.Get("Origin"); origin != "" {
		return allowedOrigin != "" && origin == allowedOrigin
	}
	switch r.Header.Get("Sec-Fetch-Site") {
	case "", "same-origin", "none":
		return true
	default:
		return false
	}
}

// isSafeMethod は安全なHTTPメソッド（状態を変更しない）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
