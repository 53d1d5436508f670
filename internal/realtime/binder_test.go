package realtime

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/session"
)

// fakeSession はSessionSourceのモック。publishで監視者に状態を流す。
type fakeSession struct {
	mu       sync.Mutex
	state    session.State
	watchers []func(session.State)
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Watch(fn func(session.State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchers = append(f.watchers, fn)
	idx := len(f.watchers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.watchers[idx] = nil
	}
}

func (f *fakeSession) publish(s session.State) {
	f.mu.Lock()
	f.state = s
	watchers := append([]func(session.State){}, f.watchers...)
	f.mu.Unlock()
	for _, w := range watchers {
		if w != nil {
			w(s)
		}
	}
}

// mockConnector はConnectorのモック。
type mockConnector struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (m *mockConnector) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
}

func (m *mockConnector) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockConnector) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

// mockInbox はInboxのモック。
type mockInbox struct {
	mu     sync.Mutex
	loads  int
	resets int
	loadFn func(ctx context.Context) error
}

func (m *mockInbox) Load(ctx context.Context) error {
	m.mu.Lock()
	m.loads++
	fn := m.loadFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (m *mockInbox) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *mockInbox) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.resets
}

func newTestBinder(sess SessionSource, conn Connector, inbox Inbox) *Binder {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewBinder(sess, conn, inbox, logger)
}

func authState() session.State {
	return session.State{Phase: session.PhaseAuthenticated, IsAuthenticated: true, User: &model.User{ID: "u1"}}
}

func TestBinder_AnonymousNeverConnects(t *testing.T) {
	sess := &fakeSession{state: session.State{Phase: session.PhaseAnonymous}}
	conn := &mockConnector{}
	inbox := &mockInbox{}
	b := newTestBinder(sess, conn, inbox)

	b.Start(context.Background())
	sess.publish(session.State{Phase: session.PhaseLoading, IsLoading: true})
	sess.publish(session.State{Phase: session.PhaseAnonymous})

	if starts, _ := conn.counts(); starts != 0 {
		t.Errorf("starts = %d, want 0", starts)
	}
	if b.Active() {
		t.Error("Anonymous では接続しないべき")
	}
}

func TestBinder_LoginThenLogout(t *testing.T) {
	sess := &fakeSession{state: session.State{Phase: session.PhaseAnonymous}}
	conn := &mockConnector{}
	inbox := &mockInbox{}
	b := newTestBinder(sess, conn, inbox)
	b.Start(context.Background())

	sess.publish(authState())
	// ユーザー情報の更新（followingCount変更など）は再接続しない
	sess.publish(authState())

	b.Close()
	starts, stops := conn.counts()
	if starts != 1 {
		t.Errorf("starts = %d, want 1", starts)
	}
	if loads, _ := inbox.counts(); loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
	if stops != 1 {
		t.Errorf("Close後の stops = %d, want 1", stops)
	}
}

func TestBinder_InvalidationStopsAndResets(t *testing.T) {
	sess := &fakeSession{state: authState()}
	conn := &mockConnector{}
	inbox := &mockInbox{loadFn: func(ctx context.Context) error { return errors.New("boom") }}
	b := newTestBinder(sess, conn, inbox)

	b.Start(context.Background())
	if !b.Active() {
		t.Fatal("Authenticated で開始した場合は接続するべき")
	}

	sess.publish(session.State{Phase: session.PhaseAnonymous})
	sess.publish(session.State{Phase: session.PhaseAnonymous})

	starts, stops := conn.counts()
	if starts != 1 || stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", starts, stops)
	}
	if _, resets := inbox.counts(); resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}

	// 再ログインで再び接続する
	sess.publish(authState())
	if starts, _ := conn.counts(); starts != 2 {
		t.Errorf("再ログイン後の starts = %d, want 2", starts)
	}
	b.Close()
}

func TestBinder_CloseUnwatches(t *testing.T) {
	sess := &fakeSession{state: session.State{Phase: session.PhaseAnonymous}}
	conn := &mockConnector{}
	b := newTestBinder(sess, conn, &mockInbox{})
	b.Start(context.Background())
	b.Close()

	sess.publish(authState())
	if starts, _ := conn.counts(); starts != 0 {
		t.Errorf("Close後は状態遷移に反応しないべき: starts = %d", starts)
	}
}

func TestBinder_LogoutCancelsInFlightLoad(t *testing.T) {
	sess := &fakeSession{state: session.State{Phase: session.PhaseAnonymous}}
	conn := &mockConnector{}
	started := make(chan struct{})
	loadErr := make(chan error, 1)
	inbox := &mockInbox{loadFn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		loadErr <- ctx.Err()
		return ctx.Err()
	}}
	b := newTestBinder(sess, conn, inbox)
	b.Start(context.Background())

	sess.publish(authState())
	<-started
	sess.publish(session.State{Phase: session.PhaseAnonymous})

	if err := <-loadErr; !errors.Is(err, context.Canceled) {
		t.Errorf("load ctx err = %v, want context.Canceled", err)
	}
	if _, resets := inbox.counts(); resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
	b.Close()
}
