// Package view は画面単位のデータを組み立てる。
// 描画は行わず、セッション状態を読み、複数のサービス呼び出しを並行して行い、結果をまとめて返す。
// 取得したいいね・フォロー・ブックマークの状態はトグルの表示状態の初期値として登録する。
package view

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/post"
	"github.com/hitoshi/blogclient/internal/security"
	"github.com/hitoshi/blogclient/internal/session"
	"github.com/hitoshi/blogclient/internal/toggle"
)

const (
	explorePostsPageSize = 10
	exploreCategoryLimit = 6
	exploreTagLimit      = 12
	commentsPageSize     = 20
	profilePostsPageSize = 10
	suggestedAuthorLimit = 3

	commentStatusConcurrency = 4
	followStatusConcurrency  = 4
)

// SessionReader は現在のセッション状態。session.Container が実装する。
type SessionReader interface {
	State() session.State
}

// PostReader は投稿の参照。post.Service が実装する。
type PostReader interface {
	List(ctx context.Context, page model.Page) (*model.PagedResult[model.Post], error)
	GetBySlug(ctx context.Context, slug string) (*model.Post, error)
	ByCategory(ctx context.Context, categorySlug string, page model.Page) (*model.PagedResult[model.Post], error)
	ByTag(ctx context.Context, tagSlug string, page model.Page) (*model.PagedResult[model.Post], error)
}

// TaxonomyReader はカテゴリとタグの参照。taxonomy.Service が実装する。
type TaxonomyReader interface {
	Categories(ctx context.Context) ([]model.Category, error)
	Category(ctx context.Context, id string) (*model.Category, error)
	CategoryBySlug(ctx context.Context, slug string) (*model.Category, error)
	Tags(ctx context.Context) ([]model.Tag, error)
	Tag(ctx context.Context, id string) (*model.Tag, error)
	TagBySlug(ctx context.Context, slug string) (*model.Tag, error)
}

// CommentReader はコメントの参照。comment.Service が実装する。
type CommentReader interface {
	ForPost(ctx context.Context, postID string, page model.Page) (*model.PagedResult[model.Comment], error)
}

// LikeReader はいいね状態の参照。like.Service が実装する。
type LikeReader interface {
	PostStatus(ctx context.Context, postID string) (*model.LikeResult, error)
	CommentStatus(ctx context.Context, commentID string) (*model.LikeResult, error)
}

// BookmarkReader はブックマークの参照。bookmark.Service が実装する。
type BookmarkReader interface {
	List(ctx context.Context, page model.Page) (*model.BookmarksPage, error)
	Status(ctx context.Context, postID string) (*model.BookmarkResult, error)
}

// UserReader はユーザーと著者の参照。user.Service が実装する。
type UserReader interface {
	Profile(ctx context.Context, userName string) (*model.UserProfile, error)
	Posts(ctx context.Context, userName string, page model.Page) (*model.PagedResult[model.Post], error)
	Authors(ctx context.Context) (*model.AuthorsPage, error)
	Author(ctx context.Context, id string) (*model.Author, error)
	Followers(ctx context.Context, userName string, page model.Page) (*model.FollowersPage, error)
	Following(ctx context.Context, userName string, page model.Page) (*model.FollowingPage, error)
}

// Seeder はトグルの表示状態を登録する。toggle.Mutator が実装する。
type Seeder interface {
	Seed(key toggle.Key, state toggle.State)
}

// Deps はComposerの依存。
type Deps struct {
	Session   SessionReader
	Posts     PostReader
	Taxonomy  TaxonomyReader
	Comments  CommentReader
	Likes     LikeReader
	Bookmarks BookmarkReader
	Users     UserReader
	Sanitizer security.ContentSanitizerService
	Toggles   Seeder
	Logger    *slog.Logger
}

// Composer は画面データを組み立てる。
type Composer struct {
	d Deps
}

// NewComposer はComposerを生成する。
func NewComposer(d Deps) *Composer {
	return &Composer{d: d}
}

// Explore は探索画面のデータ。
type Explore struct {
	Posts      []model.Post     `json:"posts"`
	TotalPosts int              `json:"totalPosts"`
	Categories []model.Category `json:"categories"`
	Tags       []model.Tag      `json:"tags"`
}

// Explore は最新の投稿、カテゴリ、タグを並行して取得する。
// 3つの取得はすべて完了するまで待ち、最初のエラーを返す。
func (c *Composer) Explore(ctx context.Context) (*Explore, error) {
	var (
		g          errgroup.Group
		posts      *model.PagedResult[model.Post]
		categories []model.Category
		tags       []model.Tag
	)
	g.Go(func() error {
		var err error
		posts, err = c.d.Posts.List(ctx, model.Page{Number: 1, Size: explorePostsPageSize})
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = c.d.Taxonomy.Categories(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		tags, err = c.d.Taxonomy.Tags(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Explore{
		Posts:      nonNil(posts.Items),
		TotalPosts: posts.TotalCount,
		Categories: nonNil(limit(categories, exploreCategoryLimit)),
		Tags:       nonNil(limit(tags, exploreTagLimit)),
	}, nil
}

// PostDetail は投稿詳細画面のデータ。
//
// LikeStatusKnown と BookmarkStatusKnown は、ログイン中に状態の取得に失敗した場合に false になる。
// その場合 Liked と Bookmarked は未確定であり、トグルの初期値も登録しない。
type PostDetail struct {
	Post                model.Post      `json:"post"`
	ContentHTML         string          `json:"contentHtml"`
	ReadTimeMinutes     int             `json:"readTimeMinutes"`
	Comments            []model.Comment `json:"comments"`
	CommentCount        int             `json:"commentCount"`
	Liked               bool            `json:"liked"`
	LikeCount           int             `json:"likeCount"`
	LikeStatusKnown     bool            `json:"likeStatusKnown"`
	Bookmarked          bool            `json:"bookmarked"`
	BookmarkStatusKnown bool            `json:"bookmarkStatusKnown"`
	// CommentLiked はいいね状態を取得できたコメントのidと状態。
	CommentLiked map[string]bool `json:"commentLiked,omitempty"`
	CanEdit      bool            `json:"canEdit"`
}

// PostDetail はスラッグで投稿を取得し、コメントと（ログイン中なら）いいね・ブックマーク状態を並行して取得する。
// ログイン中は続けて表示中のコメントのいいね状態も取得する。
// コメントや状態の取得失敗は画面全体の失敗にせず、ログに記録して既定値のまま返す。
func (c *Composer) PostDetail(ctx context.Context, slug string) (*PostDetail, error) {
	p, err := c.d.Posts.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	state := c.d.Session.State()
	detail := &PostDetail{
		Post:            *p,
		ContentHTML:     c.d.Sanitizer.Sanitize(p.Content),
		ReadTimeMinutes: p.ReadTimeMinutes,
		Comments:        []model.Comment{},
		CommentCount:    p.CommentCount,
		LikeCount:       p.LikeCount,
		// 未ログイン時はいいね・ブックマークしていないことが確定している
		LikeStatusKnown:     true,
		BookmarkStatusKnown: true,
	}
	if detail.ReadTimeMinutes <= 0 {
		detail.ReadTimeMinutes = post.ReadTime(p.Content)
	}
	if state.IsAuthenticated && state.User != nil {
		detail.CanEdit = p.IsOwnedBy(state.User.ID)
	}

	var g errgroup.Group
	g.Go(func() error {
		res, err := c.d.Comments.ForPost(ctx, p.ID, model.Page{Number: 1, Size: commentsPageSize})
		if err != nil {
			c.localFailure("comments", p.ID, err)
			return nil
		}
		detail.Comments = nonNil(res.Items)
		if res.TotalCount > 0 {
			detail.CommentCount = res.TotalCount
		}
		return nil
	})
	if state.IsAuthenticated {
		g.Go(func() error {
			res, err := c.d.Likes.PostStatus(ctx, p.ID)
			if err != nil {
				c.localFailure("like_status", p.ID, err)
				detail.LikeStatusKnown = false
				return nil
			}
			detail.Liked = res.IsLiked
			detail.LikeCount = res.LikeCount
			return nil
		})
		g.Go(func() error {
			res, err := c.d.Bookmarks.Status(ctx, p.ID)
			if err != nil {
				c.localFailure("bookmark_status", p.ID, err)
				detail.BookmarkStatusKnown = false
				return nil
			}
			detail.Bookmarked = res.IsBookmarked
			return nil
		})
	}
	g.Wait()

	if detail.LikeStatusKnown {
		c.seed(toggle.Key{Kind: toggle.KindPostLike, ID: p.ID}, toggle.State{Active: detail.Liked, Count: detail.LikeCount})
	}
	if state.IsAuthenticated && detail.BookmarkStatusKnown {
		c.seed(toggle.Key{Kind: toggle.KindBookmark, ID: p.ID}, toggle.State{Active: detail.Bookmarked})
	}
	if state.IsAuthenticated && len(detail.Comments) > 0 {
		detail.CommentLiked = c.commentLikes(ctx, detail.Comments)
	}
	return detail, nil
}

// commentLikes はコメントのいいね状態を並行して取得し、取得できたものをトグルの初期値として登録する。
func (c *Composer) commentLikes(ctx context.Context, comments []model.Comment) map[string]bool {
	results := make([]*model.LikeResult, len(comments))
	var g errgroup.Group
	g.SetLimit(commentStatusConcurrency)
	for i := range comments {
		g.Go(func() error {
			res, err := c.d.Likes.CommentStatus(ctx, comments[i].ID)
			if err != nil {
				c.localFailure("comment_like_status", comments[i].ID, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	liked := make(map[string]bool, len(comments))
	for i, res := range results {
		if res == nil {
			continue
		}
		liked[comments[i].ID] = res.IsLiked
		c.seed(toggle.Key{Kind: toggle.KindCommentLike, ID: comments[i].ID},
			toggle.State{Active: res.IsLiked, Count: res.LikeCount})
	}
	return liked
}

// Profile はプロフィール画面のデータ。
type Profile struct {
	Profile model.UserProfile `json:"profile"`
	Posts   []model.Post      `json:"posts"`
	IsSelf  bool              `json:"isSelf"`
}

// Profile はプロフィールと投稿一覧を並行して取得する。
func (c *Composer) Profile(ctx context.Context, userName string) (*Profile, error) {
	var (
		g       errgroup.Group
		profile *model.UserProfile
		posts   *model.PagedResult[model.Post]
	)
	g.Go(func() error {
		var err error
		profile, err = c.d.Users.Profile(ctx, userName)
		return err
	})
	g.Go(func() error {
		var err error
		posts, err = c.d.Users.Posts(ctx, userName, model.Page{Number: 1, Size: profilePostsPageSize})
		if err != nil {
			c.localFailure("profile_posts", userName, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &Profile{Profile: *profile, Posts: []model.Post{}}
	if posts != nil {
		view.Posts = nonNil(posts.Items)
	}
	state := c.d.Session.State()
	if state.User != nil {
		view.IsSelf = state.User.ID == profile.ID || state.User.UserName == profile.UserName
	}
	if !view.IsSelf {
		c.seed(toggle.Key{Kind: toggle.KindFollow, ID: profile.UserName},
			toggle.State{Active: profile.IsFollowing, Count: profile.FollowerCount})
	}
	return view, nil
}

// AuthorCard はおすすめ著者の1件。
type AuthorCard struct {
	Author        model.Author `json:"author"`
	IsFollowing   bool         `json:"isFollowing"`
	FollowerCount int          `json:"followerCount"`
}

// AuthorsToFollow は自分を除いた著者をフォロワー数の降順に並べ、上位3件を返す。
// ログイン中は各著者のフォロー状態をプロフィールから取得する。
func (c *Composer) AuthorsToFollow(ctx context.Context) ([]AuthorCard, error) {
	page, err := c.d.Users.Authors(ctx)
	if err != nil {
		return nil, err
	}

	state := c.d.Session.State()
	candidates := make([]model.Author, 0, len(page.Users))
	for _, a := range page.Users {
		if isSelf(state, a) {
			continue
		}
		candidates = append(candidates, a)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Stats.Followers > candidates[j].Stats.Followers
	})
	candidates = limit(candidates, suggestedAuthorLimit)

	cards := make([]AuthorCard, len(candidates))
	for i, a := range candidates {
		cards[i] = AuthorCard{Author: a, FollowerCount: a.Stats.Followers}
	}
	if state.IsAuthenticated {
		c.fillFollowState(ctx, state, cards)
	}
	return cards, nil
}

// fillFollowState は各著者のフォロー状態をプロフィールから取得し、トグルの初期値として登録する。
// 自分自身と取得に失敗した著者はディレクトリの値のまま残し、登録しない。
func (c *Composer) fillFollowState(ctx context.Context, state session.State, cards []AuthorCard) {
	known := make([]bool, len(cards))
	var g errgroup.Group
	g.SetLimit(followStatusConcurrency)
	for i := range cards {
		if isSelf(state, cards[i].Author) {
			continue
		}
		g.Go(func() error {
			profile, err := c.d.Users.Profile(ctx, cards[i].Author.UserName)
			if err != nil {
				c.localFailure("follow_status", cards[i].Author.UserName, err)
				return nil
			}
			cards[i].IsFollowing = profile.IsFollowing
			cards[i].FollowerCount = profile.FollowerCount
			known[i] = true
			return nil
		})
	}
	g.Wait()

	for i, card := range cards {
		if !known[i] {
			continue
		}
		c.seed(toggle.Key{Kind: toggle.KindFollow, ID: card.Author.UserName},
			toggle.State{Active: card.IsFollowing, Count: card.FollowerCount})
	}
}

func isSelf(state session.State, a model.Author) bool {
	return state.User != nil && (a.ID == state.User.ID || a.UserName == state.User.UserName)
}

// Bookmarks はブックマーク一覧を返す。未ログインの場合は通信せずLOGIN_REQUIREDを返す。
func (c *Composer) Bookmarks(ctx context.Context, page model.Page) (*model.BookmarksPage, error) {
	if !c.d.Session.State().IsAuthenticated {
		return nil, model.NewLoginRequiredError()
	}
	res, err := c.d.Bookmarks.List(ctx, page)
	if err != nil {
		return nil, err
	}
	res.Bookmarks = nonNil(res.Bookmarks)
	for _, p := range res.Bookmarks {
		c.seed(toggle.Key{Kind: toggle.KindBookmark, ID: p.ID}, toggle.State{Active: true})
	}
	return res, nil
}

func (c *Composer) seed(key toggle.Key, state toggle.State) {
	if c.d.Toggles != nil {
		c.d.Toggles.Seed(key, state)
	}
}

func (c *Composer) localFailure(part, key string, err error) {
	c.d.Logger.Warn("view component failed",
		slog.String("part", part),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
