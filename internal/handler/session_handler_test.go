package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/hitoshi/blogclient/internal/model"
)

// sessionBody はセッション状態レスポンスのうちテストで見るフィールド。
type sessionBody struct {
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	Phase           string      `json:"phase"`
}

func TestSessionHandler_Get(t *testing.T) {
	w := serve(newTestDeps(loggedInSession("u1")), http.MethodGet, "/api/session", nil)

	var body sessionBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.IsAuthenticated || body.User == nil || body.User.ID != "u1" || body.Phase != "authenticated" {
		t.Errorf("state = %+v", body)
	}
}

func TestSessionHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		loginFn    func(ctx context.Context, req model.LoginRequest) (bool, error)
		wantStatus int
		wantCode   string
	}{
		{
			name: "成功",
			loginFn: func(ctx context.Context, req model.LoginRequest) (bool, error) {
				if req.EmailOrUserName != "alice" || req.Password != "pw" {
					t.Errorf("req = %+v", req)
				}
				return true, nil
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "認証失敗",
			loginFn:    func(ctx context.Context, req model.LoginRequest) (bool, error) { return false, nil },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_CREDENTIALS",
		},
		{
			name: "処理中",
			loginFn: func(ctx context.Context, req model.LoginRequest) (bool, error) {
				return false, model.NewInFlightError()
			},
			wantStatus: http.StatusConflict,
			wantCode:   model.ErrCodeInFlight,
		},
		{
			name: "入力検証エラー",
			loginFn: func(ctx context.Context, req model.LoginRequest) (bool, error) {
				return false, model.NewValidationError("password", "パスワードを入力してください。")
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidation,
		},
		{
			name: "通信エラー",
			loginFn: func(ctx context.Context, req model.LoginRequest) (bool, error) {
				return false, model.NewTransportError("connection refused")
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   model.ErrCodeTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := anonymousSession()
			sess.loginFn = tt.loginFn

			w := serve(newTestDeps(sess), http.MethodPost, "/api/session/login",
				strings.NewReader(`{"emailOrUserName":"alice","password":"pw"}`))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if body := parseAPIErrorResponse(t, w); body["code"] != tt.wantCode {
					t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
				}
			}
		})
	}
}

func TestSessionHandler_Register_ForwardsConfirmPassword(t *testing.T) {
	sess := anonymousSession()
	sess.registerFn = func(ctx context.Context, req model.RegisterRequest) (bool, error) {
		if req.ConfirmPassword != "secret1" {
			t.Errorf("ConfirmPassword = %q, want secret1", req.ConfirmPassword)
		}
		return true, nil
	}

	w := serve(newTestDeps(sess), http.MethodPost, "/api/session/register",
		strings.NewReader(`{"userName":"bob","email":"b@example.com","password":"secret1","confirmPassword":"secret1"}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestSessionHandler_Logout(t *testing.T) {
	sess := loggedInSession("u1")

	w := serve(newTestDeps(sess), http.MethodPost, "/api/session/logout", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body sessionBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.IsAuthenticated {
		t.Error("ログアウト後は未ログイン状態を返すべき")
	}
}

func TestSessionHandler_Refresh_Error(t *testing.T) {
	sess := loggedInSession("u1")
	sess.refreshUserFn = func(ctx context.Context) error {
		return model.NewBackendError(503, "")
	}

	w := serve(newTestDeps(sess), http.MethodPost, "/api/session/refresh", nil)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
