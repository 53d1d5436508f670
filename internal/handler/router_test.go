package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/blogclient/internal/model"
)

func TestRouter_Health(t *testing.T) {
	deps := newTestDeps(loggedInSession("u1"))
	deps.Hub = &mockHub{connected: true}

	w := serve(deps, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Status != "ok" || body.Session != "authenticated" || !body.Realtime {
		t.Errorf("body = %+v", body)
	}
}

func TestRouter_Metrics(t *testing.T) {
	w := serve(newTestDeps(anonymousSession()), http.MethodGet, "/metrics", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/posts/p1/like", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()

	NewRouter(newTestDeps(anonymousSession())).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_CrossSitePOSTIsRejected(t *testing.T) {
	toggles := &mockToggler{}
	deps := newTestDeps(loggedInSession("u1"))
	deps.Toggles = toggles

	req := httptest.NewRequest(http.MethodPost, "/api/posts/p1/like", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()

	NewRouter(deps).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if toggles.calls.Load() != 0 {
		t.Error("拒否されたリクエストで操作を実行しないべき")
	}
}

func TestRouter_LoginRequiredRoutes(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/bookmarks"},
		{http.MethodPost, "/api/posts/p1/like"},
		{http.MethodPost, "/api/posts/p1/bookmark"},
		{http.MethodPost, "/api/comments/c1/like"},
		{http.MethodPost, "/api/users/alice/follow"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodPost, "/api/notifications/n1/read"},
		{http.MethodPost, "/api/notifications/read-all"},
		{http.MethodDelete, "/api/notifications/n1"},
		{http.MethodPost, "/api/notifications/test"},
		{http.MethodPut, "/api/comments/c1"},
		{http.MethodGet, "/api/me/posts"},
		{http.MethodPost, "/api/posts"},
		{http.MethodPut, "/api/posts/p1"},
		{http.MethodDelete, "/api/posts/p1"},
		{http.MethodPost, "/api/posts/p1/publish"},
		{http.MethodPost, "/api/posts/p1/comments"},
		{http.MethodPost, "/api/uploads/images"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := serve(newTestDeps(anonymousSession()), rt.method, rt.path, nil)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != model.ErrCodeLoginRequired {
				t.Errorf("code = %q, want %q", body["code"], model.ErrCodeLoginRequired)
			}
		})
	}
}

func TestRouter_SetsRequestIDAndNoStore(t *testing.T) {
	deps := newTestDeps(anonymousSession())

	w := serve(deps, http.MethodGet, "/api/session", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be set")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewLoginRequiredError(), http.StatusUnauthorized},
		{model.NewForbiddenError("x"), http.StatusForbidden},
		{model.NewMediaBlockedError("http://x"), http.StatusForbidden},
		{model.NewValidationError("title", "x"), http.StatusBadRequest},
		{model.NewNotFoundError("記事", "p1"), http.StatusNotFound},
		{model.NewInFlightError(), http.StatusConflict},
		{model.NewAlreadyAuthenticatedError(), http.StatusConflict},
		{model.NewTransportError("x"), http.StatusBadGateway},
		{model.NewBackendError(409, "x"), http.StatusConflict},
		{model.NewBackendError(500, "x"), http.StatusBadGateway},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

func TestDecodeJSON_InvalidBody(t *testing.T) {
	w := serve(newTestDeps(anonymousSession()), http.MethodPost, "/api/session/login", strings.NewReader("{not json"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body["code"] != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", body["code"])
	}
}

func TestRouter_AccessLogIncludesUserID(t *testing.T) {
	var buf bytes.Buffer
	deps := newTestDeps(loggedInSession("u1"))
	deps.Logger = slog.New(slog.NewJSONHandler(&buf, nil))

	serve(deps, http.MethodGet, "/api/session", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse access log: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "http_request" || entry["user_id"] != "u1" {
		t.Errorf("log entry = %v, want http_request with user_id u1", entry)
	}
}
