package model

import (
	"strings"
	"time"
)

// PostStatus は記事の公開状態を表す。
// Draftで作成され、公開／アーカイブは明示的な操作でのみ遷移する。
type PostStatus int

const (
	// PostStatusDraft は下書き。
	PostStatusDraft PostStatus = 0
	// PostStatusPublished は公開済み。
	PostStatusPublished PostStatus = 1
	// PostStatusArchived はアーカイブ済み。
	PostStatusArchived PostStatus = 2
)

// String は状態名を返す。
func (s PostStatus) String() string {
	switch s {
	case PostStatusDraft:
		return "draft"
	case PostStatusPublished:
		return "published"
	case PostStatusArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// Valid は既知の状態かどうかを返す。
func (s PostStatus) Valid() bool {
	return s >= PostStatusDraft && s <= PostStatusArchived
}

// Post はブログ記事を表す。
// viewCount / likeCount / commentCount は非正規化カウンタ。
type Post struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Slug             string     `json:"slug"`
	Content          string     `json:"content"`
	Excerpt          string     `json:"excerpt,omitempty"`
	FeaturedImageURL string     `json:"featuredImageUrl,omitempty"`
	Status           PostStatus `json:"status"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	ViewCount        int        `json:"viewCount"`
	LikeCount        int        `json:"likeCount"`
	CommentCount     int        `json:"commentCount"`
	ReadTimeMinutes  int        `json:"readTimeMinutes"`
	MetaDescription  string     `json:"metaDescription,omitempty"`
	MetaKeywords     string     `json:"metaKeywords,omitempty"`
	AuthorID         string     `json:"authorId"`
	CategoryID       string     `json:"categoryId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Author           User       `json:"author"`
	Category         *Category  `json:"category,omitempty"`
	Tags             []Tag      `json:"tags,omitempty"`
}

// IsOwnedBy は指定ユーザーが記事の所有者かどうかを返す。
func (p *Post) IsOwnedBy(userID string) bool {
	if userID == "" {
		return false
	}
	return p.AuthorID == userID || p.Author.ID == userID
}

// PostInput は記事の作成・更新リクエスト。
type PostInput struct {
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Excerpt          string     `json:"excerpt,omitempty"`
	FeaturedImageURL string     `json:"featuredImageUrl,omitempty"`
	CategoryID       string     `json:"categoryId,omitempty"`
	Tags             []string   `json:"tags"`
	MetaDescription  string     `json:"metaDescription,omitempty"`
	MetaKeywords     string     `json:"metaKeywords,omitempty"`
	Status           PostStatus `json:"status"`
}

// Validate は送信前の入力検証を行う。タイトルと本文は必須。
// 重複タグは取り除かれる。
func (in *PostInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return NewValidationError("title", "タイトルは必須です。")
	}
	if strings.TrimSpace(in.Content) == "" {
		return NewValidationError("content", "本文は必須です。")
	}
	if !in.Status.Valid() {
		return NewValidationError("status", "無効な公開状態です。")
	}
	in.Tags = dedupTags(in.Tags)
	return nil
}

func dedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// LikeResult は記事・コメントのいいねトグルのサーバー応答。
type LikeResult struct {
	IsLiked   bool `json:"isLiked"`
	LikeCount int  `json:"likeCount"`
}

// BookmarkResult はブックマークトグル／状態取得のサーバー応答。
type BookmarkResult struct {
	IsBookmarked bool `json:"isBookmarked"`
}
