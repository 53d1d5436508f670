package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/blogclient/internal/session"
)

// SessionSource はセッション状態の参照と監視。session.Container が実装する。
type SessionSource interface {
	State() session.State
	Watch(fn func(session.State)) func()
}

// Connector は接続の開始と停止。Channel が実装する。
type Connector interface {
	Start(ctx context.Context)
	Stop()
}

// Inbox は通知一覧の再取得と破棄。notification.Inbox が実装する。
type Inbox interface {
	Load(ctx context.Context) error
	Reset()
}

// Binder はセッションの状態遷移に合わせて接続を開始・停止する。
// Authenticatedになると接続して通知一覧を読み込み、
// Anonymousになると接続を閉じて通知一覧を破棄する。
type Binder struct {
	sess    SessionSource
	channel Connector
	inbox   Inbox
	logger  *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	unwatch    func()
	active     bool
	loadCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewBinder はBinderを生成する。
func NewBinder(sess SessionSource, channel Connector, inbox Inbox, logger *slog.Logger) *Binder {
	return &Binder{
		sess:    sess,
		channel: channel,
		inbox:   inbox,
		logger:  logger,
	}
}

// Start はセッションの監視を開始し、現在の状態を反映する。
// ctxがキャンセルされると接続も終了する。
func (b *Binder) Start(ctx context.Context) {
	b.mu.Lock()
	if b.unwatch != nil {
		b.mu.Unlock()
		return
	}
	b.ctx = ctx
	b.mu.Unlock()

	unwatch := b.sess.Watch(b.apply)

	b.mu.Lock()
	b.unwatch = unwatch
	b.mu.Unlock()

	b.apply(b.sess.State())
}

// Close は監視を解除して接続を閉じる。読み込み中の通知一覧の取得も待つ。
func (b *Binder) Close() {
	b.mu.Lock()
	unwatch := b.unwatch
	b.unwatch = nil
	b.active = false
	b.cancelLoadLocked()
	b.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	b.channel.Stop()
	b.wg.Wait()
}

// Active は接続を維持すべき状態かどうかを返す。
func (b *Binder) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Binder) apply(state session.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return
	}

	switch state.Phase {
	case session.PhaseAuthenticated:
		if b.active {
			return
		}
		b.active = true
		b.logger.Info("ログインを検知したためリアルタイム接続を開始します")
		b.channel.Start(b.ctx)

		ctx, cancel := context.WithCancel(b.ctx)
		b.loadCancel = cancel
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer cancel()
			if err := b.inbox.Load(ctx); err != nil && ctx.Err() == nil {
				b.logger.Warn("通知一覧の読み込みに失敗しました", slog.String("error", err.Error()))
			}
		}()

	case session.PhaseAnonymous:
		if !b.active {
			return
		}
		b.active = false
		b.logger.Info("ログアウトを検知したためリアルタイム接続を停止します")
		b.channel.Stop()
		b.cancelLoadLocked()
		b.inbox.Reset()
	}
}

// cancelLoadLocked は前のセッションで始めた通知一覧の取得を打ち切る。
func (b *Binder) cancelLoadLocked() {
	if b.loadCancel != nil {
		b.loadCancel()
		b.loadCancel = nil
	}
}
