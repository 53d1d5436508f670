// Package session は「現在のユーザーは誰か」を保持するプロセス全体のセッション状態を提供する。
// 状態はContainerが単独で所有し、Init/Login/Register/Logout/RefreshUser/UpdateUserと
// 強制無効化の経路でのみ変更される。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

// Phase はセッションの状態遷移上の位置。
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseAnonymous
)

// String はPhaseの文字列表現を返す。
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// MarshalText はJSON出力用にPhaseを文字列化する。
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State はセッション状態のスナップショット。
type State struct {
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
	Phase           Phase       `json:"phase"`
}

// Authenticator は認証エンドポイントの呼び出し。auth.Service が実装する。
type Authenticator interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*model.User, error)
}

// CredentialStore は永続化された認証情報。credential.Store が実装する。
type CredentialStore interface {
	AccessToken() (string, bool)
	Clear() error
}

// Container はセッション状態を保持する。
// 状態の変更はmuで直列化し、監視者への通知はnotifyMuで遷移順に直列化する。
type Container struct {
	auth   Authenticator
	creds  CredentialStore
	logger *slog.Logger

	mu    sync.Mutex
	state State
	gen   uint64 // 認証主体が変わるたびに増える。古い応答の反映を防ぐ
	closed bool

	notifyMu sync.Mutex
	watchers []*watcher
	nextID   int
}

type watcher struct {
	id int
	fn func(State)
}

// NewContainer はContainerを生成する。初期状態はUninitialized。
func NewContainer(auth Authenticator, creds CredentialStore, logger *slog.Logger) *Container {
	return &Container{
		auth:   auth,
		creds:  creds,
		logger: logger,
		state:  State{Phase: PhaseUninitialized},
	}
}

// State は現在の状態のスナップショットを返す。
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.state)
}

// Watch は状態遷移の監視者を登録し、解除関数を返す。
// 監視者は遷移順に同期的に呼ばれる。監視者の中からContainerの状態を変更してはならない。
func (c *Container) Watch(fn func(State)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.nextID++
	id := c.nextID
	c.watchers = append(c.watchers, &watcher{id: id, fn: fn})

	return func() {
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		for i, w := range c.watchers {
			if w.id == id {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				return
			}
		}
	}
}

// Init は永続化された認証情報からセッションを復元する。
// 認証情報がなければ通信せずにAnonymousへ遷移する。
// ユーザーの解決に失敗した場合は認証情報を破棄してAnonymousへ遷移する。
func (c *Container) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase != PhaseUninitialized {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.creds.AccessToken(); !ok {
		c.transitionLocked(State{Phase: PhaseAnonymous})
		return nil
	}
	gen := c.transitionLocked(State{Phase: PhaseLoading, IsLoading: true})

	user, err := c.auth.Me(ctx)

	c.mu.Lock()
	if c.gen != gen {
		// 解決中に別の遷移が起きた
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.logger.Warn("failed to restore session",
			slog.String("error", err.Error()),
		)
		c.clearCredentialLocked()
		c.transitionLocked(State{Phase: PhaseAnonymous})
		return nil
	}
	c.transitionLocked(authenticated(user))
	return nil
}

// clearCredentialLocked は保存済みの認証情報を破棄する。失敗はログのみ。
func (c *Container) clearCredentialLocked() {
	if err := c.creds.Clear(); err != nil {
		c.logger.Error("failed to clear credential",
			slog.String("error", err.Error()),
		)
	}
}

// Login はログインを行う。認証失敗（パスワード誤りなど）は false, nil を返し、
// エラーを返すのは入力検証エラーと通信エラーのみ。
// 既にログイン中の場合は通信せずにエラーを返す。
// 成功応答にトークンがない場合やユーザーの取得に失敗した場合は、認証情報を破棄してエラーを返す。
func (c *Container) Login(ctx context.Context, req model.LoginRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	return c.authenticate(ctx, func(ctx context.Context) (*model.AuthResponse, error) {
		return c.auth.Login(ctx, req)
	})
}

// Register はユーザー登録を行う。戻り値の規約はLoginと同じ。
// パスワード確認の不一致は通信せずに検証エラーを返す。
func (c *Container) Register(ctx context.Context, req model.RegisterRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	return c.authenticate(ctx, func(ctx context.Context) (*model.AuthResponse, error) {
		return c.auth.Register(ctx, req)
	})
}

func (c *Container) authenticate(ctx context.Context, call func(context.Context) (*model.AuthResponse, error)) (bool, error) {
	c.mu.Lock()
	switch c.state.Phase {
	case PhaseAuthenticated:
		c.mu.Unlock()
		return false, model.NewAlreadyAuthenticatedError()
	case PhaseLoading:
		c.mu.Unlock()
		return false, model.NewInFlightError()
	}
	gen := c.transitionLocked(State{Phase: PhaseLoading, IsLoading: true})

	resp, err := call(ctx)

	var user *model.User
	if err == nil && resp.Success {
		if resp.Token == "" {
			err = model.NewBackendError(0, "認証応答にトークンが含まれていません。")
		} else if user = resp.User; user == nil {
			user, err = c.auth.Me(ctx)
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false, nil
	}
	if err != nil {
		c.clearCredentialLocked()
		c.transitionLocked(State{Phase: PhaseAnonymous})
		return false, err
	}
	if !resp.Success {
		c.logger.Info("authentication rejected",
			slog.String("message", resp.Message),
		)
		c.transitionLocked(State{Phase: PhaseAnonymous})
		return false, nil
	}
	c.transitionLocked(authenticated(user))
	return true, nil
}

// Logout はログアウトする。サーバー側の失敗に関わらず、
// 認証情報を破棄しユーザーをnilに戻す。
func (c *Container) Logout(ctx context.Context) error {
	err := c.auth.Logout(ctx)

	c.mu.Lock()
	c.transitionLocked(State{Phase: PhaseAnonymous})

	if err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// RefreshUser はローディング状態を変えずに現在のユーザーを再取得する。
// 失敗した場合はログに記録し、状態は変更しない。
func (c *Container) RefreshUser(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase != PhaseAuthenticated {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	user, err := c.auth.Me(ctx)
	if err != nil {
		c.logger.Warn("failed to refresh current user",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to refresh user: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.state.Phase != PhaseAuthenticated {
		c.mu.Unlock()
		return nil
	}
	c.updateLocked(user)
	return nil
}

// UpdateUser はキャッシュ済みのユーザーを置き換える（プロフィール編集後など）。
func (c *Container) UpdateUser(user model.User) {
	c.mu.Lock()
	if c.state.Phase != PhaseAuthenticated {
		c.mu.Unlock()
		return
	}
	c.updateLocked(&user)
}

// AdjustFollowingCount はフォロー切り替えに合わせてfollowingCountを増減する。
// 次回のRefreshUserでサーバーの値に置き換わる。
func (c *Container) AdjustFollowingCount(delta int) {
	c.mu.Lock()
	if c.state.Phase != PhaseAuthenticated || c.state.User == nil {
		c.mu.Unlock()
		return
	}
	u := *c.state.User
	u.FollowingCount += delta
	if u.FollowingCount < 0 {
		u.FollowingCount = 0
	}
	c.updateLocked(&u)
}

// HandleInvalidation は401応答による強制無効化を受け取り、Anonymousへ遷移する。
// 何度呼ばれても遷移は1回だけ起きる。
func (c *Container) HandleInvalidation(ev apiclient.Invalidation) {
	c.mu.Lock()
	if c.state.Phase != PhaseAuthenticated {
		c.mu.Unlock()
		return
	}
	c.logger.Info("session invalidated",
		slog.String("method", ev.Method),
		slog.String("path", ev.Path),
	)
	c.transitionLocked(State{Phase: PhaseAnonymous})
}

// Close は監視者をすべて解除する。以後の遷移は通知されない。
func (c *Container) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.notifyMu.Lock()
	c.watchers = nil
	c.notifyMu.Unlock()
}

// transitionLocked は状態を置き換えて監視者に通知する。
// muを保持した状態で呼び出し、戻る時点でmuは解放されている。
func (c *Container) transitionLocked(next State) uint64 {
	c.gen++
	next.IsAuthenticated = next.Phase == PhaseAuthenticated
	next.IsLoading = next.Phase == PhaseLoading
	if !next.IsAuthenticated {
		next.User = nil
	}
	c.state = next
	gen := c.gen
	c.publishLocked()
	return gen
}

// updateLocked は認証主体を変えずにユーザー情報だけを置き換える。
// muを保持した状態で呼び出し、戻る時点でmuは解放されている。
func (c *Container) updateLocked(user *model.User) {
	u := *user
	c.state.User = &u
	c.publishLocked()
}

// publishLocked はmuからnotifyMuへロックを受け渡して通知する。
// これにより通知は遷移と同じ順序で届く。
func (c *Container) publishLocked() {
	s := snapshot(c.state)
	closed := c.closed
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	if closed {
		return
	}
	for _, w := range c.watchers {
		w.fn(s)
	}
}

func authenticated(user *model.User) State {
	return State{Phase: PhaseAuthenticated, User: user}
}

// snapshot はユーザーをコピーした状態を返す。
func snapshot(s State) State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
