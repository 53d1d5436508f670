package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/auth"
	"github.com/hitoshi/blogclient/internal/credential"
	"github.com/hitoshi/blogclient/internal/model"
)

// --- モック定義 ---

type mockAuthenticator struct {
	loginFn    func(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error)
	registerFn func(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error)
	logoutFn   func(ctx context.Context) error
	meFn       func(ctx context.Context) (*model.User, error)

	loginCalls atomic.Int32
	meCalls    atomic.Int32
}

func (m *mockAuthenticator) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	m.loginCalls.Add(1)
	if m.loginFn != nil {
		return m.loginFn(ctx, req)
	}
	return &model.AuthResponse{Success: true, Token: "t", User: &model.User{ID: "u1", UserName: "alice"}}, nil
}

func (m *mockAuthenticator) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, req)
	}
	return &model.AuthResponse{Success: true, Token: "t", User: &model.User{ID: "u2", UserName: req.UserName}}, nil
}

func (m *mockAuthenticator) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockAuthenticator) Me(ctx context.Context) (*model.User, error) {
	m.meCalls.Add(1)
	if m.meFn != nil {
		return m.meFn(ctx)
	}
	return &model.User{ID: "u1", UserName: "alice"}, nil
}

type mockCredentials struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (m *mockCredentials) AccessToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *mockCredentials) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
	return nil
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// recordPhases は監視者が受け取ったPhaseを記録する。
func recordPhases(c *Container) func() []Phase {
	var mu sync.Mutex
	var phases []Phase
	c.Watch(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
	})
	return func() []Phase {
		mu.Lock()
		defer mu.Unlock()
		return append([]Phase(nil), phases...)
	}
}

func equalPhases(a, b []Phase) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- Init ---

func TestInit_NoCredential_AnonymousWithoutNetwork(t *testing.T) {
	authMock := &mockAuthenticator{}
	c := NewContainer(authMock, &mockCredentials{}, newTestLogger())
	phases := recordPhases(c)

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init がエラーを返した: %v", err)
	}

	s := c.State()
	if s.Phase != PhaseAnonymous || s.IsAuthenticated || s.User != nil {
		t.Errorf("state = %+v, want anonymous", s)
	}
	if authMock.meCalls.Load() != 0 {
		t.Errorf("Me calls = %d, want 0", authMock.meCalls.Load())
	}
	if !equalPhases(phases(), []Phase{PhaseAnonymous}) {
		t.Errorf("phases = %v", phases())
	}
}

func TestInit_WithCredential_ResolvesUser(t *testing.T) {
	var loadingSeen bool
	authMock := &mockAuthenticator{}
	c := NewContainer(authMock, &mockCredentials{token: "t"}, newTestLogger())
	c.Watch(func(s State) {
		if s.Phase == PhaseLoading {
			loadingSeen = true
			if !s.IsLoading || s.User != nil {
				t.Errorf("loading state = %+v, want IsLoading=true User=nil", s)
			}
		}
	})

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init がエラーを返した: %v", err)
	}

	if !loadingSeen {
		t.Error("Loading を経由すべき")
	}
	s := c.State()
	if !s.IsAuthenticated || s.User == nil || s.User.UserName != "alice" {
		t.Errorf("state = %+v, want authenticated alice", s)
	}
}

func TestInit_ResolveFails_ClearsCredential(t *testing.T) {
	creds := &mockCredentials{token: "t"}
	authMock := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) {
			return nil, model.NewTransportError("connection refused")
		},
	}
	c := NewContainer(authMock, creds, newTestLogger())

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init がエラーを返した: %v", err)
	}

	if c.State().Phase != PhaseAnonymous {
		t.Errorf("phase = %v, want anonymous", c.State().Phase)
	}
	if creds.cleared != 1 {
		t.Errorf("cleared = %d, want 1", creds.cleared)
	}
}

func TestInit_Twice_IsNoop(t *testing.T) {
	authMock := &mockAuthenticator{}
	c := NewContainer(authMock, &mockCredentials{token: "t"}, newTestLogger())

	c.Init(context.Background())
	c.Init(context.Background())

	if authMock.meCalls.Load() != 1 {
		t.Errorf("Me calls = %d, want 1", authMock.meCalls.Load())
	}
}

// --- Login / Register ---

func TestLogin_Success(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{}, newTestLogger())
	c.Init(context.Background())
	phases := recordPhases(c)

	ok, err := c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})
	if err != nil || !ok {
		t.Fatalf("Login = %v, %v, want true, nil", ok, err)
	}

	s := c.State()
	if !s.IsAuthenticated || s.User.UserName != "alice" {
		t.Errorf("state = %+v", s)
	}
	if !equalPhases(phases(), []Phase{PhaseLoading, PhaseAuthenticated}) {
		t.Errorf("phases = %v, want [loading authenticated]", phases())
	}
}

func TestLogin_Rejected_ReturnsFalseNil(t *testing.T) {
	authMock := &mockAuthenticator{
		loginFn: func(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
			return &model.AuthResponse{Success: false, Message: "Invalid credentials"}, nil
		},
	}
	c := NewContainer(authMock, &mockCredentials{}, newTestLogger())
	c.Init(context.Background())

	ok, err := c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "bad"})
	if ok || err != nil {
		t.Fatalf("Login = %v, %v, want false, nil", ok, err)
	}
	if c.State().Phase != PhaseAnonymous {
		t.Errorf("phase = %v, want anonymous", c.State().Phase)
	}
}

func TestLogin_TransportError_ReturnsError(t *testing.T) {
	authMock := &mockAuthenticator{
		loginFn: func(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
			return nil, model.NewTransportError("timeout")
		},
	}
	c := NewContainer(authMock, &mockCredentials{}, newTestLogger())
	c.Init(context.Background())

	ok, err := c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})
	if ok || !model.IsCategory(err, model.CategoryTransport) {
		t.Fatalf("Login = %v, %v, want false, transport error", ok, err)
	}
	if c.State().Phase != PhaseAnonymous {
		t.Errorf("phase = %v, want anonymous", c.State().Phase)
	}
}

func TestLogin_WhileAuthenticated_NotDispatched(t *testing.T) {
	authMock := &mockAuthenticator{}
	c := NewContainer(authMock, &mockCredentials{}, newTestLogger())
	c.Init(context.Background())
	c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})

	ok, err := c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "bob", Password: "pw"})
	if ok || !model.IsCode(err, model.ErrCodeAlreadyAuthenticated) {
		t.Fatalf("Login = %v, %v, want ALREADY_AUTHENTICATED", ok, err)
	}
	if authMock.loginCalls.Load() != 1 {
		t.Errorf("login calls = %d, want 1", authMock.loginCalls.Load())
	}
}

func TestLogin_ResponseWithoutUser_FetchesMe(t *testing.T) {
	authMock := &mockAuthenticator{
		loginFn: func(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
			return &model.AuthResponse{Success: true, Token: "t"}, nil
		},
	}
	c := NewContainer(authMock, &mockCredentials{}, newTestLogger())
	c.Init(context.Background())

	ok, err := c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})
	if !ok || err != nil {
		t.Fatalf("Login = %v, %v", ok, err)
	}
	if authMock.meCalls.Load() != 1 {
		t.Errorf("Me calls = %d, want 1", authMock.meCalls.Load())
	}
	if c.State().User == nil {
		t.Error("User が設定されるべき")
	}
}

func TestLogin_MeFails_ClearsCredential(t *testing.T) {
	creds := &mockCredentials{}
	authMock := &mockAuthenticator{
		loginFn: func(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
			creds.mu.Lock()
			creds.token = "access"
			creds.mu.Unlock()
			return &model.AuthResponse{Success: true, Token: "access"}, nil
		},
		meFn: func(ctx context.Context) (*model.User, error) {
			return nil, model.NewTransportError("connection reset")
		},
	}
	c := NewContainer(authMock, creds, newTestLogger())
	c.Init(context.Background())

	ok, err := c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})
	if ok || !model.IsCategory(err, model.CategoryTransport) {
		t.Fatalf("Login = %v, %v, want false, transport error", ok, err)
	}
	if c.State().Phase != PhaseAnonymous {
		t.Errorf("phase = %v, want anonymous", c.State().Phase)
	}
	if _, has := creds.AccessToken(); has {
		t.Error("ユーザー取得に失敗した場合は保存済みトークンを破棄すべき")
	}
	if creds.cleared != 1 {
		t.Errorf("cleared = %d, want 1", creds.cleared)
	}
}

func TestLogin_SuccessWithoutToken_TreatedAsFailure(t *testing.T) {
	creds := &mockCredentials{}
	authMock := &mockAuthenticator{
		loginFn: func(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
			return &model.AuthResponse{Success: true, User: &model.User{ID: "u1", UserName: "alice"}}, nil
		},
	}
	c := NewContainer(authMock, creds, newTestLogger())
	c.Init(context.Background())

	ok, err := c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})
	if ok || err == nil {
		t.Fatalf("Login = %v, %v, want false, error", ok, err)
	}
	if c.State().Phase != PhaseAnonymous {
		t.Errorf("phase = %v, want anonymous", c.State().Phase)
	}
	if authMock.meCalls.Load() != 0 {
		t.Errorf("Me calls = %d, want 0", authMock.meCalls.Load())
	}
	if creds.cleared != 1 {
		t.Errorf("cleared = %d, want 1", creds.cleared)
	}
}

func TestRegister_Mismatch_NoDispatch(t *testing.T) {
	called := false
	authMock := &mockAuthenticator{
		registerFn: func(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
			called = true
			return nil, nil
		},
	}
	c := NewContainer(authMock, &mockCredentials{}, newTestLogger())
	c.Init(context.Background())

	ok, err := c.Register(context.Background(), model.RegisterRequest{
		UserName: "alice", Email: "a@example.com", Password: "x", ConfirmPassword: "y",
	})
	if ok || !model.IsCategory(err, model.CategoryValidation) {
		t.Fatalf("Register = %v, %v, want validation error", ok, err)
	}
	if called {
		t.Error("検証エラー時に登録APIを呼んではならない")
	}
	if c.State().Phase != PhaseAnonymous {
		t.Errorf("phase = %v, want anonymous", c.State().Phase)
	}
}

func TestRegister_Success(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{}, newTestLogger())
	c.Init(context.Background())

	ok, err := c.Register(context.Background(), model.RegisterRequest{
		UserName: "carol", Email: "c@example.com", Password: "Secret1!", ConfirmPassword: "Secret1!",
	})
	if !ok || err != nil {
		t.Fatalf("Register = %v, %v", ok, err)
	}
	if c.State().User.UserName != "carol" {
		t.Errorf("user = %+v", c.State().User)
	}
}

// --- Logout ---

func TestLoginThenLogout_AlwaysEndsAnonymous(t *testing.T) {
	tests := []struct {
		name      string
		logoutErr error
	}{
		{"server ok", nil},
		{"server fails", errors.New("clear failed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authMock := &mockAuthenticator{
				logoutFn: func(ctx context.Context) error { return tt.logoutErr },
			}
			c := NewContainer(authMock, &mockCredentials{}, newTestLogger())
			c.Init(context.Background())
			c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})

			_ = c.Logout(context.Background())

			s := c.State()
			if s.User != nil || s.IsAuthenticated {
				t.Errorf("state = %+v, want {User: nil, IsAuthenticated: false}", s)
			}
		})
	}
}

// --- RefreshUser / UpdateUser ---

func TestRefreshUser_KeepsLoadingStateAndUpdatesUser(t *testing.T) {
	following := 1
	authMock := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) {
			return &model.User{ID: "u1", UserName: "alice", FollowingCount: following}, nil
		},
	}
	c := NewContainer(authMock, &mockCredentials{token: "t"}, newTestLogger())
	c.Init(context.Background())
	phases := recordPhases(c)

	following = 2
	if err := c.RefreshUser(context.Background()); err != nil {
		t.Fatalf("RefreshUser がエラーを返した: %v", err)
	}

	if c.State().User.FollowingCount != 2 {
		t.Errorf("FollowingCount = %d, want 2", c.State().User.FollowingCount)
	}
	for _, p := range phases() {
		if p == PhaseLoading {
			t.Error("RefreshUser は Loading を経由してはならない")
		}
	}
}

func TestRefreshUser_Failure_LeavesStateUnchanged(t *testing.T) {
	fail := false
	authMock := &mockAuthenticator{
		meFn: func(ctx context.Context) (*model.User, error) {
			if fail {
				return nil, model.NewTransportError("down")
			}
			return &model.User{ID: "u1", UserName: "alice", FollowingCount: 5}, nil
		},
	}
	c := NewContainer(authMock, &mockCredentials{token: "t"}, newTestLogger())
	c.Init(context.Background())

	fail = true
	if err := c.RefreshUser(context.Background()); err == nil {
		t.Error("失敗はエラーとして返すべき")
	}
	s := c.State()
	if !s.IsAuthenticated || s.User.FollowingCount != 5 {
		t.Errorf("state = %+v, want unchanged", s)
	}
}

func TestUpdateUser_ReplacesCachedUser(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{token: "t"}, newTestLogger())
	c.Init(context.Background())

	c.UpdateUser(model.User{ID: "u1", UserName: "alice", Bio: "new bio"})

	if c.State().User.Bio != "new bio" {
		t.Errorf("Bio = %q, want new bio", c.State().User.Bio)
	}
}

func TestAdjustFollowingCount_FloorsAtZero(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{token: "t"}, newTestLogger())
	c.Init(context.Background())

	c.AdjustFollowingCount(1)
	if got := c.State().User.FollowingCount; got != 1 {
		t.Errorf("FollowingCount = %d, want 1", got)
	}
	c.AdjustFollowingCount(-1)
	c.AdjustFollowingCount(-1)
	if got := c.State().User.FollowingCount; got != 0 {
		t.Errorf("FollowingCount = %d, want 0", got)
	}
}

func TestState_ReturnsCopy(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{token: "t"}, newTestLogger())
	c.Init(context.Background())

	s := c.State()
	s.User.UserName = "mallory"

	if c.State().User.UserName != "alice" {
		t.Error("スナップショットの変更が内部状態に影響してはならない")
	}
}

// --- 強制無効化 ---

func TestHandleInvalidation_Idempotent(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{token: "t"}, newTestLogger())
	c.Init(context.Background())
	phases := recordPhases(c)

	for i := 0; i < 3; i++ {
		c.HandleInvalidation(apiclient.Invalidation{Method: "GET", Path: "/notifications"})
	}

	if !equalPhases(phases(), []Phase{PhaseAnonymous}) {
		t.Errorf("phases = %v, want exactly one anonymous transition", phases())
	}
}

func TestWatch_Unsubscribe(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{}, newTestLogger())
	count := 0
	unsubscribe := c.Watch(func(State) { count++ })

	c.Init(context.Background())
	unsubscribe()
	c.Login(context.Background(), model.LoginRequest{EmailOrUserName: "alice", Password: "pw"})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestClose_StopsNotifications(t *testing.T) {
	c := NewContainer(&mockAuthenticator{}, &mockCredentials{}, newTestLogger())
	count := 0
	c.Watch(func(State) { count++ })

	c.Close()
	c.Init(context.Background())

	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

// TestUnauthorizedDuringConcurrentRequests は1件の401と3件の並行リクエストが
// すべて完了し、セッションの無効化がちょうど1回だけ起きることを検証する。
func TestUnauthorizedDuringConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/me" {
			w.Write([]byte(`{"id":"u1","userName":"alice"}`))
			return
		}
		arrived.Done()
		<-release
		if r.URL.Path == "/notifications/unread-count" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	logger := newTestLogger()
	store := credential.NewMemoryStore(time.Hour, time.Hour, logger)
	store.Save("token", "refresh")
	api := apiclient.NewClient(server.Client(), store, apiclient.Config{BaseURL: server.URL}, nil, logger)
	c := NewContainer(auth.NewService(api, store, logger), store, logger)
	api.OnUnauthorized(c.HandleInvalidation)

	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init がエラーを返した: %v", err)
	}
	if !c.State().IsAuthenticated {
		t.Fatal("Init 後は認証済みであるべき")
	}

	var anonymousTransitions atomic.Int32
	c.Watch(func(s State) {
		if s.Phase == PhaseAnonymous {
			anonymousTransitions.Add(1)
		}
	})

	paths := []string{"/notifications/unread-count", "/posts", "/categories", "/tags"}
	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_ = api.Get(context.Background(), p, nil)
		}(p)
	}

	arrived.Wait()
	close(release)
	wg.Wait()

	if got := anonymousTransitions.Load(); got != 1 {
		t.Errorf("anonymous transitions = %d, want 1", got)
	}
	s := c.State()
	if s.IsAuthenticated || s.User != nil {
		t.Errorf("state = %+v, want anonymous", s)
	}
	if _, ok := store.AccessToken(); ok {
		t.Error("認証情報は破棄されているべき")
	}
}
