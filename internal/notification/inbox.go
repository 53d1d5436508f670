package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/blogclient/internal/metrics"
	"github.com/hitoshi/blogclient/internal/model"
)

// Backend はInboxが使う通知APIの呼び出し。Service が実装する。
type Backend interface {
	List(ctx context.Context, page model.Page) (*model.NotificationsPage, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	UnreadCount(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
	SendTest(ctx context.Context) error
}

// Snapshot はInboxの内容のコピー。
type Snapshot struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

// Inbox は通知一覧と未読数を保持する。
// 一覧は常にidで一意であり、ポーリングとプッシュのどちらから届いても重複しない。
type Inbox struct {
	backend Backend
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu     sync.Mutex
	items  []model.Notification
	ids    map[string]struct{}
	unread int
	// gen はResetのたびに進む。取得開始時と異なる場合、その結果は破棄する。
	gen uint64
}

// NewInbox はInboxを生成する。
func NewInbox(backend Backend, m metrics.MetricsCollector, logger *slog.Logger) *Inbox {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Inbox{
		backend: backend,
		metrics: m,
		logger:  logger,
		ids:     make(map[string]struct{}),
	}
}

// Load は先頭ページと未読数を取得して一覧を置き換える。
// 取得中にプッシュで届いた通知のうち、取得結果に含まれないものは先頭に残す。
// 取得中にResetされた場合は結果を反映しない。
func (b *Inbox) Load(ctx context.Context) error {
	gen := b.generation()

	var (
		page   *model.NotificationsPage
		unread int
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		page, err = b.backend.List(ctx, model.Page{Number: 1, Size: defaultPageSize})
		return err
	})
	g.Go(func() error {
		var err error
		unread, err = b.backend.UnreadCount(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load inbox: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return nil
	}

	fetched := make(map[string]struct{}, len(page.Notifications))
	for _, n := range page.Notifications {
		fetched[n.ID] = struct{}{}
	}

	merged := make([]model.Notification, 0, len(b.items)+len(page.Notifications))
	for _, n := range b.items {
		if _, ok := fetched[n.ID]; !ok {
			merged = append(merged, n)
		}
	}
	b.items = merged
	b.ids = make(map[string]struct{}, len(merged))
	for _, n := range merged {
		b.ids[n.ID] = struct{}{}
	}
	b.appendLocked(page.Notifications)
	b.unread = unread
	return nil
}

// LoadPage は指定ページを取得し、未登録の通知だけを末尾に追加する。
// 取得中にResetされた場合は何も追加せず0を返す。
func (b *Inbox) LoadPage(ctx context.Context, page model.Page) (int, error) {
	gen := b.generation()

	res, err := b.backend.List(ctx, page)
	if err != nil {
		return 0, fmt.Errorf("failed to load notifications page: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return 0, nil
	}
	return b.appendLocked(res.Notifications), nil
}

func (b *Inbox) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// appendLocked は未登録の通知を末尾に追加し、追加件数を返す。
func (b *Inbox) appendLocked(list []model.Notification) int {
	added := 0
	for _, n := range list {
		if _, ok := b.ids[n.ID]; ok {
			continue
		}
		n.ActionURL = model.CleanActionURL(n.ActionURL)
		b.ids[n.ID] = struct{}{}
		b.items = append(b.items, n)
		added++
	}
	return added
}

// Push はプッシュで届いた通知を先頭に追加する。
// 既に同じidがある場合は何もせずfalseを返す。未読数は新規かつ未読の場合のみ増える。
func (b *Inbox) Push(n model.Notification) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n.ID == "" {
		return false
	}
	if _, ok := b.ids[n.ID]; ok {
		return false
	}

	n.ActionURL = model.CleanActionURL(n.ActionURL)
	b.ids[n.ID] = struct{}{}
	b.items = append([]model.Notification{n}, b.items...)
	if !n.IsRead {
		b.unread++
	}
	b.metrics.RecordNotificationPushed()
	return true
}

// ApplyRead は既読化をローカルに反映する。
// 一覧にある未読の通知、または一覧にない通知の場合に未読数を1減らす（0未満にはしない）。
func (b *Inbox) ApplyRead(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if b.items[i].ID != id {
			continue
		}
		if b.items[i].IsRead {
			return
		}
		b.items[i].IsRead = true
		b.decrementLocked()
		return
	}
	b.decrementLocked()
}

// ApplyAllRead はすべての既読化をローカルに反映する。
func (b *Inbox) ApplyAllRead() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		b.items[i].IsRead = true
	}
	b.unread = 0
}

// MarkRead はサーバーで既読化してからローカルに反映する。
func (b *Inbox) MarkRead(ctx context.Context, id string) error {
	if err := b.backend.MarkRead(ctx, id); err != nil {
		return err
	}
	b.ApplyRead(id)
	return nil
}

// MarkAllRead はサーバーですべて既読化してからローカルに反映する。
func (b *Inbox) MarkAllRead(ctx context.Context) error {
	if err := b.backend.MarkAllRead(ctx); err != nil {
		return err
	}
	b.ApplyAllRead()
	return nil
}

// Delete はサーバーで削除してから一覧から取り除く。
// 削除した通知が未読だった場合のみ未読数を減らす。
func (b *Inbox) Delete(ctx context.Context, id string) error {
	if err := b.backend.Delete(ctx, id); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, n := range b.items {
		if n.ID != id {
			continue
		}
		b.items = append(b.items[:i], b.items[i+1:]...)
		delete(b.ids, id)
		if !n.IsRead {
			b.decrementLocked()
		}
		return nil
	}
	return nil
}

// SendTest はテスト通知の送信を依頼する。通知はプッシュまたは次回の取得で一覧に届く。
func (b *Inbox) SendTest(ctx context.Context) error {
	return b.backend.SendTest(ctx)
}

// Reset は一覧と未読数を空にする。ログアウト時に使う。
func (b *Inbox) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = nil
	b.ids = make(map[string]struct{})
	b.unread = 0
	b.gen++
}

// Snapshot は現在の一覧と未読数のコピーを返す。
func (b *Inbox) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]model.Notification, len(b.items))
	copy(items, b.items)
	return Snapshot{Notifications: items, UnreadCount: b.unread}
}

func (b *Inbox) decrementLocked() {
	if b.unread > 0 {
		b.unread--
	}
}
