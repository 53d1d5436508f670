// Package toggle はいいね・フォロー・ブックマークの切り替え操作を一元的に扱う。
//
// 表示上の真偽値は楽観的に反転し、サーバーの応答で確定する。
// 主カウンタ（いいね数）は予測せずサーバー値を採用し、派生カウンタ
// （フォロー対象のフォロワー数、ログイン中ユーザーのfollowingCount）は
// 先行して増減し、失敗時には元に戻す。
package toggle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/blogclient/internal/metrics"
	"github.com/hitoshi/blogclient/internal/model"
)

// Kind は切り替え対象の種別。
type Kind string

const (
	KindPostLike    Kind = "post_like"
	KindCommentLike Kind = "comment_like"
	KindFollow      Kind = "follow"
	KindBookmark    Kind = "bookmark"
)

// Valid は既知の種別かどうかを返す。
func (k Kind) Valid() bool {
	switch k {
	case KindPostLike, KindCommentLike, KindFollow, KindBookmark:
		return true
	}
	return false
}

// Key は切り替え操作を識別する。同じKeyの操作は同時に1つしか実行されない。
// フォローのIDはユーザー名、それ以外は投稿またはコメントのID。
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// State は切り替え対象の表示状態。
// Countはいいね数、フォロー対象のフォロワー数を表す。ブックマークでは使わない。
type State struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// LikeBackend はいいねの切り替えAPI。like.Service が実装する。
type LikeBackend interface {
	TogglePost(ctx context.Context, postID string) (*model.LikeResult, error)
	ToggleComment(ctx context.Context, commentID string) (*model.LikeResult, error)
}

// FollowBackend はフォローの切り替えAPI。user.Service が実装する。
type FollowBackend interface {
	ToggleFollow(ctx context.Context, userName string) (*model.FollowResult, error)
}

// BookmarkBackend はブックマークの切り替えAPI。bookmark.Service が実装する。
type BookmarkBackend interface {
	Toggle(ctx context.Context, postID string) (*model.BookmarkResult, error)
}

// FollowingCounter はログイン中ユーザーのfollowingCountを増減する。
// session.Container が実装する。
type FollowingCounter interface {
	AdjustFollowingCount(delta int)
}

// Backends はMutatorが呼び出すサービスの組。
type Backends struct {
	Likes     LikeBackend
	Follows   FollowBackend
	Bookmarks BookmarkBackend
}

// Mutator はKeyごとの表示状態と処理中フラグを保持する。
type Mutator struct {
	backends  Backends
	following FollowingCounter
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	mu       sync.Mutex
	states   map[Key]State
	inFlight map[Key]struct{}
	// resetGen はResetのたびに進む。操作開始時と異なる応答は状態に書き戻さない。
	resetGen uint64
}

// NewMutator はMutatorを生成する。followingはnilでもよい。
func NewMutator(backends Backends, following FollowingCounter, m metrics.MetricsCollector, logger *slog.Logger) *Mutator {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Mutator{
		backends:  backends,
		following: following,
		metrics:   m,
		logger:    logger,
		states:    make(map[Key]State),
		inFlight:  make(map[Key]struct{}),
	}
}

// Seed はサーバーから取得した状態で表示状態を上書きする。
// 処理中のKeyは応答で確定するため上書きしない。
func (m *Mutator) Seed(key Key, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return
	}
	m.states[key] = state
}

// Get は現在の表示状態を返す。未知のKeyはfalseを返す。
func (m *Mutator) Get(key Key) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[key]
	return s, ok
}

// Pending はKeyの操作が処理中かどうかを返す。
func (m *Mutator) Pending(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.inFlight[key]
	return busy
}

// Reset はすべての表示状態を破棄する。処理中の操作の応答は状態に反映しない。
func (m *Mutator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[Key]State)
	m.resetGen++
}

// Toggle はKeyの状態を切り替え、確定した状態を返す。
// 同じKeyの操作が処理中ならREQUEST_IN_FLIGHTを返し、何も送信しない。
// 失敗時は切り替え前の状態に戻してエラーを返す。
// 処理中にResetされた場合、応答は返すが表示状態には反映しない。
func (m *Mutator) Toggle(ctx context.Context, key Key) (State, error) {
	if !key.Kind.Valid() || key.ID == "" {
		return State{}, model.NewValidationError("kind", "切り替え対象が不正です。")
	}

	m.mu.Lock()
	if _, busy := m.inFlight[key]; busy {
		m.mu.Unlock()
		return State{}, model.NewInFlightError()
	}
	prev := m.states[key]
	m.inFlight[key] = struct{}{}
	gen := m.resetGen

	predicted := State{Active: !prev.Active, Count: prev.Count}
	delta := 0
	if key.Kind == KindFollow {
		delta = 1
		if prev.Active {
			delta = -1
		}
		predicted.Count = clampCount(prev.Count + delta)
	}
	m.states[key] = predicted
	m.mu.Unlock()

	if delta != 0 && m.following != nil {
		m.following.AdjustFollowingCount(delta)
	}

	result, err := m.dispatch(ctx, key, prev)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, key)
	stale := m.resetGen != gen

	if err != nil {
		if !stale {
			m.states[key] = prev
		}
		if delta != 0 && m.following != nil && !stale {
			m.following.AdjustFollowingCount(-delta)
		}
		m.metrics.RecordToggleFailure(string(key.Kind))
		m.logger.Warn("toggle failed",
			slog.String("kind", string(key.Kind)),
			slog.String("id", key.ID),
			slog.String("error", err.Error()),
		)
		return prev, fmt.Errorf("failed to toggle %s: %w", key, err)
	}

	if delta != 0 && result.Active == prev.Active {
		// サーバー側で状態が変わらなかったため先行した増減を取り消す。
		result.Count = prev.Count
		if m.following != nil && !stale {
			m.following.AdjustFollowingCount(-delta)
		}
	}
	if stale {
		return result, nil
	}
	m.states[key] = result
	return result, nil
}

// dispatch は種別に応じたAPIを呼び出し、サーバーが返した状態を返す。
// フォローとブックマークの応答はカウンタを含まないため予測値を使う。
func (m *Mutator) dispatch(ctx context.Context, key Key, prev State) (State, error) {
	switch key.Kind {
	case KindPostLike, KindCommentLike:
		if m.backends.Likes == nil {
			return State{}, fmt.Errorf("like backend is not configured")
		}
		var res *model.LikeResult
		var err error
		if key.Kind == KindPostLike {
			res, err = m.backends.Likes.TogglePost(ctx, key.ID)
		} else {
			res, err = m.backends.Likes.ToggleComment(ctx, key.ID)
		}
		if err != nil {
			return State{}, err
		}
		return State{Active: res.IsLiked, Count: res.LikeCount}, nil

	case KindFollow:
		if m.backends.Follows == nil {
			return State{}, fmt.Errorf("follow backend is not configured")
		}
		res, err := m.backends.Follows.ToggleFollow(ctx, key.ID)
		if err != nil {
			return State{}, err
		}
		count := prev.Count
		if res.IsFollowing != prev.Active {
			if res.IsFollowing {
				count++
			} else {
				count--
			}
		}
		return State{Active: res.IsFollowing, Count: clampCount(count)}, nil

	case KindBookmark:
		if m.backends.Bookmarks == nil {
			return State{}, fmt.Errorf("bookmark backend is not configured")
		}
		res, err := m.backends.Bookmarks.Toggle(ctx, key.ID)
		if err != nil {
			return State{}, err
		}
		return State{Active: res.IsBookmarked}, nil
	}
	return State{}, fmt.Errorf("unknown toggle kind: %s", key.Kind)
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
