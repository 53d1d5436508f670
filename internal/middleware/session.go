// Package middleware はローカルAPIのHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionReader は現在のセッション状態の参照。session.Container が実装する。
type SessionReader interface {
	State() session.State
}

// NewSessionMiddleware はセッション状態を読み取り、ログイン中であれば
// ユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストもそのまま通す。
func NewSessionMiddleware(sess SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := sess.State()
			if state.IsAuthenticated && state.User != nil {
				r = r.WithContext(ContextWithUserID(r.Context(), state.User.ID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireLoginMiddleware はログインしていないリクエストを
// LOGIN_REQUIRED（401）で拒否するミドルウェアを返す。
// 拒否したリクエストはバックエンドへ到達しない。
func NewRequireLoginMiddleware(sess SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sess.State().IsAuthenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewLoginRequiredError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したログイン中のリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
