package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/notification"
	"github.com/hitoshi/blogclient/internal/security"
	"github.com/hitoshi/blogclient/internal/session"
	"github.com/hitoshi/blogclient/internal/toggle"
	"github.com/hitoshi/blogclient/internal/view"
)

// --- モック定義 ---

// mockSessionService はSessionServiceInterfaceのモック実装。
type mockSessionService struct {
	state         session.State
	loginFn       func(ctx context.Context, req model.LoginRequest) (bool, error)
	registerFn    func(ctx context.Context, req model.RegisterRequest) (bool, error)
	logoutFn      func(ctx context.Context) error
	refreshUserFn func(ctx context.Context) error
}

func (m *mockSessionService) State() session.State { return m.state }

func (m *mockSessionService) Login(ctx context.Context, req model.LoginRequest) (bool, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, req)
	}
	return false, nil
}

func (m *mockSessionService) Register(ctx context.Context, req model.RegisterRequest) (bool, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, req)
	}
	return false, nil
}

func (m *mockSessionService) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	m.state = session.State{Phase: session.PhaseAnonymous}
	return nil
}

func (m *mockSessionService) RefreshUser(ctx context.Context) error {
	if m.refreshUserFn != nil {
		return m.refreshUserFn(ctx)
	}
	return nil
}

// mockViews はViewComposerのモック実装。
type mockViews struct {
	bookmarkCalls     atomic.Int32
	exploreFn         func(ctx context.Context) (*view.Explore, error)
	postDetailFn      func(ctx context.Context, slug string) (*view.PostDetail, error)
	profileFn         func(ctx context.Context, userName string) (*view.Profile, error)
	authorsToFollowFn func(ctx context.Context) ([]view.AuthorCard, error)
	bookmarksFn       func(ctx context.Context, page model.Page) (*model.BookmarksPage, error)
	categoryFn        func(ctx context.Context, ref string, page model.Page) (*view.CategoryPosts, error)
	tagFn             func(ctx context.Context, ref string, page model.Page) (*view.TagPosts, error)
	topicsFn          func(ctx context.Context, search string) (*view.Topics, error)
	writersFn         func(ctx context.Context, q view.WriterQuery) ([]view.AuthorCard, error)
	writerFn          func(ctx context.Context, id string) (*view.AuthorCard, error)
	followersFn       func(ctx context.Context, userName string, page model.Page) (*model.FollowersPage, error)
	followingFn       func(ctx context.Context, userName string, page model.Page) (*model.FollowingPage, error)
}

func (m *mockViews) Explore(ctx context.Context) (*view.Explore, error) {
	return m.exploreFn(ctx)
}

func (m *mockViews) PostDetail(ctx context.Context, slug string) (*view.PostDetail, error) {
	return m.postDetailFn(ctx, slug)
}

func (m *mockViews) Profile(ctx context.Context, userName string) (*view.Profile, error) {
	return m.profileFn(ctx, userName)
}

func (m *mockViews) AuthorsToFollow(ctx context.Context) ([]view.AuthorCard, error) {
	return m.authorsToFollowFn(ctx)
}

func (m *mockViews) Bookmarks(ctx context.Context, page model.Page) (*model.BookmarksPage, error) {
	m.bookmarkCalls.Add(1)
	return m.bookmarksFn(ctx, page)
}

func (m *mockViews) Category(ctx context.Context, ref string, page model.Page) (*view.CategoryPosts, error) {
	return m.categoryFn(ctx, ref, page)
}

func (m *mockViews) Tag(ctx context.Context, ref string, page model.Page) (*view.TagPosts, error) {
	return m.tagFn(ctx, ref, page)
}

func (m *mockViews) Topics(ctx context.Context, search string) (*view.Topics, error) {
	return m.topicsFn(ctx, search)
}

func (m *mockViews) Writers(ctx context.Context, q view.WriterQuery) ([]view.AuthorCard, error) {
	return m.writersFn(ctx, q)
}

func (m *mockViews) Writer(ctx context.Context, id string) (*view.AuthorCard, error) {
	return m.writerFn(ctx, id)
}

func (m *mockViews) Followers(ctx context.Context, userName string, page model.Page) (*model.FollowersPage, error) {
	return m.followersFn(ctx, userName, page)
}

func (m *mockViews) Following(ctx context.Context, userName string, page model.Page) (*model.FollowingPage, error) {
	return m.followingFn(ctx, userName, page)
}

// mockToggler はTogglerのモック実装。
type mockToggler struct {
	calls    atomic.Int32
	toggleFn func(ctx context.Context, key toggle.Key) (toggle.State, error)
}

func (m *mockToggler) Toggle(ctx context.Context, key toggle.Key) (toggle.State, error) {
	m.calls.Add(1)
	return m.toggleFn(ctx, key)
}

// mockInbox はInboxInterfaceのモック実装。
type mockInbox struct {
	snapshot      notification.Snapshot
	applied       []string
	loadFn        func(ctx context.Context) error
	loadPageFn    func(ctx context.Context, page model.Page) (int, error)
	markReadFn    func(ctx context.Context, id string) error
	markAllReadFn func(ctx context.Context) error
	deleteFn      func(ctx context.Context, id string) error
	sendTestFn    func(ctx context.Context) error
}

func (m *mockInbox) Load(ctx context.Context) error {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return nil
}

func (m *mockInbox) LoadPage(ctx context.Context, page model.Page) (int, error) {
	if m.loadPageFn != nil {
		return m.loadPageFn(ctx, page)
	}
	return 0, nil
}

func (m *mockInbox) ApplyRead(id string) { m.applied = append(m.applied, id) }

func (m *mockInbox) MarkRead(ctx context.Context, id string) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, id)
	}
	return nil
}

func (m *mockInbox) MarkAllRead(ctx context.Context) error {
	if m.markAllReadFn != nil {
		return m.markAllReadFn(ctx)
	}
	return nil
}

func (m *mockInbox) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockInbox) SendTest(ctx context.Context) error {
	if m.sendTestFn != nil {
		return m.sendTestFn(ctx)
	}
	return nil
}

func (m *mockInbox) Snapshot() notification.Snapshot { return m.snapshot }

// mockHub はHubInterfaceのモック実装。
type mockHub struct {
	connected  bool
	markAsRead func(ctx context.Context, id string) error
}

func (m *mockHub) Connected() bool { return m.connected }

func (m *mockHub) MarkAsRead(ctx context.Context, id string) error {
	return m.markAsRead(ctx, id)
}

// mockPosts はPostEditorInterfaceのモック実装。
type mockPosts struct {
	getFn       func(ctx context.Context, id string) (*model.Post, error)
	myPostsFn   func(ctx context.Context, page model.Page) (*model.PagedResult[model.Post], error)
	createFn    func(ctx context.Context, in model.PostInput) (*model.Post, error)
	updateFn    func(ctx context.Context, current *model.Post, userID string, in model.PostInput) (*model.Post, error)
	deleteFn    func(ctx context.Context, current *model.Post, userID string) error
	publishFn   func(ctx context.Context, current *model.Post, userID string) (*model.Post, error)
	unpublishFn func(ctx context.Context, current *model.Post, userID string) (*model.Post, error)
}

func (m *mockPosts) Get(ctx context.Context, id string) (*model.Post, error) {
	return m.getFn(ctx, id)
}

func (m *mockPosts) MyPosts(ctx context.Context, page model.Page) (*model.PagedResult[model.Post], error) {
	return m.myPostsFn(ctx, page)
}

func (m *mockPosts) Create(ctx context.Context, in model.PostInput) (*model.Post, error) {
	return m.createFn(ctx, in)
}

func (m *mockPosts) Update(ctx context.Context, current *model.Post, userID string, in model.PostInput) (*model.Post, error) {
	return m.updateFn(ctx, current, userID, in)
}

func (m *mockPosts) Delete(ctx context.Context, current *model.Post, userID string) error {
	return m.deleteFn(ctx, current, userID)
}

func (m *mockPosts) Publish(ctx context.Context, current *model.Post, userID string) (*model.Post, error) {
	return m.publishFn(ctx, current, userID)
}

func (m *mockPosts) Unpublish(ctx context.Context, current *model.Post, userID string) (*model.Post, error) {
	return m.unpublishFn(ctx, current, userID)
}

// mockComments はCommentWriterInterfaceのモック実装。
type mockComments struct {
	getFn    func(ctx context.Context, id string) (*model.Comment, error)
	createFn func(ctx context.Context, req model.CreateCommentRequest) (*model.Comment, error)
	updateFn func(ctx context.Context, id string, req model.UpdateCommentRequest) (*model.Comment, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockComments) Get(ctx context.Context, id string) (*model.Comment, error) {
	return m.getFn(ctx, id)
}

func (m *mockComments) Update(ctx context.Context, id string, req model.UpdateCommentRequest) (*model.Comment, error) {
	return m.updateFn(ctx, id, req)
}

func (m *mockComments) Create(ctx context.Context, req model.CreateCommentRequest) (*model.Comment, error) {
	return m.createFn(ctx, req)
}

func (m *mockComments) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

// mockUploader はImageUploaderInterfaceのモック実装。
type mockUploader struct {
	uploadFn func(ctx context.Context, filename string, content io.Reader) (*model.FileUploadResponse, error)
}

func (m *mockUploader) UploadImage(ctx context.Context, filename string, content io.Reader) (*model.FileUploadResponse, error) {
	return m.uploadFn(ctx, filename, content)
}

// mockMedia はMediaFetcherのモック実装。
type mockMedia struct {
	fetchFn func(ctx context.Context, rawURL string) (*security.Media, error)
}

func (m *mockMedia) Fetch(ctx context.Context, rawURL string) (*security.Media, error) {
	return m.fetchFn(ctx, rawURL)
}

// --- テストヘルパー ---

func anonymousSession() *mockSessionService {
	return &mockSessionService{state: session.State{Phase: session.PhaseAnonymous}}
}

func loggedInSession(userID string) *mockSessionService {
	return &mockSessionService{state: session.State{
		Phase:           session.PhaseAuthenticated,
		IsAuthenticated: true,
		User:            &model.User{ID: userID, UserName: "me"},
	}}
}

// newTestDeps は全依存をモックで埋めたRouterDepsを返す。テストごとに必要な部分を上書きする。
func newTestDeps(sess *mockSessionService) *RouterDeps {
	var buf bytes.Buffer
	return &RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(&buf, nil)),
		CORSAllowedOrigin: "http://localhost:5173",
		Gatherer:          prometheus.NewRegistry(),
		Session:           sess,
		Views:             &mockViews{},
		Toggles:           &mockToggler{},
		Inbox:             &mockInbox{},
		Hub:               &mockHub{},
		Posts:             &mockPosts{},
		Comments:          &mockComments{},
		Uploader:          &mockUploader{},
		Media:             &mockMedia{},
	}
}

// serve はルーター経由でリクエストを処理する。
func serve(deps *RouterDeps, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(w, req)
	return w
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
