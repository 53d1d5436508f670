package view

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/blogclient/internal/model"
	"github.com/hitoshi/blogclient/internal/toggle"
)

// 著者ディレクトリの並び順。
const (
	WriterSortPosts     = "posts"
	WriterSortFollowers = "followers"
	WriterSortName      = "name"
	WriterSortRecent    = "recent"
)

// CategoryPosts はカテゴリ別の投稿一覧画面のデータ。
type CategoryPosts struct {
	Category   model.Category `json:"category"`
	Posts      []model.Post   `json:"posts"`
	TotalPosts int            `json:"totalPosts"`
}

// TagPosts はタグ別の投稿一覧画面のデータ。
type TagPosts struct {
	Tag        model.Tag    `json:"tag"`
	Posts      []model.Post `json:"posts"`
	TotalPosts int          `json:"totalPosts"`
}

// Category はカテゴリとその投稿一覧を返す。
// refがUUIDの形式ならIDとして、それ以外はスラッグとして扱う。
// カテゴリが存在しない場合はNOT_FOUNDを返す。
func (c *Composer) Category(ctx context.Context, ref string, page model.Page) (*CategoryPosts, error) {
	cat, posts, err := byTaxonomy(ctx, ref, page,
		c.d.Taxonomy.Category, c.d.Taxonomy.CategoryBySlug,
		func(cat *model.Category) string { return cat.Slug },
		c.d.Posts.ByCategory)
	if err != nil {
		return nil, err
	}
	return &CategoryPosts{Category: *cat, Posts: nonNil(posts.Items), TotalPosts: posts.TotalCount}, nil
}

// Tag はタグとその投稿一覧を返す。refの扱いはCategoryと同じ。
func (c *Composer) Tag(ctx context.Context, ref string, page model.Page) (*TagPosts, error) {
	tag, posts, err := byTaxonomy(ctx, ref, page,
		c.d.Taxonomy.Tag, c.d.Taxonomy.TagBySlug,
		func(tag *model.Tag) string { return tag.Slug },
		c.d.Posts.ByTag)
	if err != nil {
		return nil, err
	}
	return &TagPosts{Tag: *tag, Posts: nonNil(posts.Items), TotalPosts: posts.TotalCount}, nil
}

// byTaxonomy はカテゴリまたはタグと、それに属する投稿一覧を取得する。
// スラッグで指定された場合は2つの取得を並行して行い、IDの場合はスラッグの解決を待ってから投稿を取得する。
func byTaxonomy[T any](
	ctx context.Context,
	ref string,
	page model.Page,
	byID func(context.Context, string) (*T, error),
	bySlug func(context.Context, string) (*T, error),
	slugOf func(*T) string,
	posts func(context.Context, string, model.Page) (*model.PagedResult[model.Post], error),
) (*T, *model.PagedResult[model.Post], error) {
	if _, err := uuid.Parse(ref); err == nil {
		item, err := byID(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		res, err := posts(ctx, slugOf(item), page)
		if err != nil {
			return nil, nil, err
		}
		return item, res, nil
	}

	var (
		g    errgroup.Group
		item *T
		res  *model.PagedResult[model.Post]
	)
	g.Go(func() error {
		var err error
		item, err = bySlug(ctx, ref)
		return err
	})
	g.Go(func() error {
		var err error
		res, err = posts(ctx, ref, page)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return item, res, nil
}

// Topics はカテゴリとタグの一覧画面のデータ。
type Topics struct {
	Categories []model.Category `json:"categories"`
	Tags       []model.Tag      `json:"tags"`
}

// Topics はカテゴリとタグを並行して取得する。
// searchが空でなければ、名前または説明に含む（大文字小文字を区別しない）ものだけを返す。
func (c *Composer) Topics(ctx context.Context, search string) (*Topics, error) {
	var (
		g          errgroup.Group
		categories []model.Category
		tags       []model.Tag
	)
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

	term := strings.ToLower(strings.TrimSpace(search))
	return &Topics{
		Categories: nonNil(filter(categories, func(cat model.Category) bool {
			return matches(term, cat.Name, cat.Description)
		})),
		Tags: nonNil(filter(tags, func(tag model.Tag) bool {
			return matches(term, tag.Name, tag.Description)
		})),
	}, nil
}

// WriterQuery は著者ディレクトリの絞り込みと並び順。
type WriterQuery struct {
	Search string
	Sort   string
}

// Writers は著者ディレクトリを絞り込んで並べ替えて返す。
// Sortが空の場合は投稿数の降順。recentは投稿数の降順と同じ。
// ログイン中は自分以外の著者のフォロー状態をプロフィールから取得する。
func (c *Composer) Writers(ctx context.Context, q WriterQuery) ([]AuthorCard, error) {
	less, err := writerOrder(q.Sort)
	if err != nil {
		return nil, err
	}

	page, err := c.d.Users.Authors(ctx)
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(q.Search))
	authors := filter(page.Users, func(a model.Author) bool {
		return matches(term, a.FirstName, a.LastName, a.UserName, a.Bio)
	})
	sort.SliceStable(authors, func(i, j int) bool { return less(authors[i], authors[j]) })

	cards := make([]AuthorCard, len(authors))
	for i, a := range authors {
		cards[i] = AuthorCard{Author: a, FollowerCount: a.Stats.Followers}
	}
	if state := c.d.Session.State(); state.IsAuthenticated {
		c.fillFollowState(ctx, state, cards)
	}
	return cards, nil
}

// Writer はIDで著者を取得する。ログイン中で自分以外ならフォロー状態も取得する。
func (c *Composer) Writer(ctx context.Context, id string) (*AuthorCard, error) {
	a, err := c.d.Users.Author(ctx, id)
	if err != nil {
		return nil, err
	}

	card := &AuthorCard{Author: *a, FollowerCount: a.Stats.Followers}
	state := c.d.Session.State()
	if !state.IsAuthenticated || isSelf(state, *a) {
		return card, nil
	}
	profile, err := c.d.Users.Profile(ctx, a.UserName)
	if err != nil {
		c.localFailure("follow_status", a.UserName, err)
		return card, nil
	}
	card.IsFollowing = profile.IsFollowing
	card.FollowerCount = profile.FollowerCount
	c.seed(toggle.Key{Kind: toggle.KindFollow, ID: a.UserName},
		toggle.State{Active: card.IsFollowing, Count: card.FollowerCount})
	return card, nil
}

// Followers はユーザーのフォロワー一覧を返す。
func (c *Composer) Followers(ctx context.Context, userName string, page model.Page) (*model.FollowersPage, error) {
	res, err := c.d.Users.Followers(ctx, userName, page)
	if err != nil {
		return nil, err
	}
	res.Followers = nonNil(res.Followers)
	return res, nil
}

// Following はユーザーがフォローしている一覧を返す。
func (c *Composer) Following(ctx context.Context, userName string, page model.Page) (*model.FollowingPage, error) {
	res, err := c.d.Users.Following(ctx, userName, page)
	if err != nil {
		return nil, err
	}
	res.Following = nonNil(res.Following)
	return res, nil
}

func writerOrder(sortBy string) (func(a, b model.Author) bool, error) {
	switch sortBy {
	case "", WriterSortPosts, WriterSortRecent:
		return func(a, b model.Author) bool { return a.Stats.Posts > b.Stats.Posts }, nil
	case WriterSortFollowers:
		return func(a, b model.Author) bool { return a.Stats.Followers > b.Stats.Followers }, nil
	case WriterSortName:
		return func(a, b model.Author) bool { return fullName(a) < fullName(b) }, nil
	}
	return nil, model.NewValidationError("sort", "並び順は posts, followers, name, recent のいずれかを指定してください。")
}

func fullName(a model.Author) string {
	return strings.ToLower(a.FirstName + " " + a.LastName)
}

// matches はtermが空か、いずれかのフィールドに含まれる場合にtrueを返す。termは小文字で渡す。
func matches(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
