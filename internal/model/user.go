// Package model はドメインモデルを定義する。
package model

import "time"

// User はブログのユーザーを表す。
// followerCount / followingCount は非正規化カウンタであり、
// フォロー操作後にローカルで増減し、次回の全件取得で再同期する。
type User struct {
	ID              string    `json:"id"`
	UserName        string    `json:"userName"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Website         string    `json:"website,omitempty"`
	TwitterHandle   string    `json:"twitterHandle,omitempty"`
	LinkedInURL     string    `json:"linkedInUrl,omitempty"`
	JoinDate        time.Time `json:"joinDate"`
	FollowerCount   int       `json:"followerCount"`
	FollowingCount  int       `json:"followingCount"`
	IsVerified      bool      `json:"isVerified"`
}

// DisplayName は表示用の氏名を返す。氏名が未設定の場合はユーザー名を返す。
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.UserName
	}
}

// RecentPost はプロフィールに表示する最近の記事の要約。
type RecentPost struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Excerpt      string    `json:"excerpt,omitempty"`
	PublishedAt  time.Time `json:"publishedAt"`
	ViewCount    int       `json:"viewCount"`
	LikeCount    int       `json:"likeCount"`
	CommentCount int       `json:"commentCount"`
}

// UserProfile は公開プロフィールを表す。
// IsFollowing は閲覧中のユーザーから見たフォロー状態。
type UserProfile struct {
	User
	IsFollowing bool         `json:"isFollowing"`
	RecentPosts []RecentPost `json:"recentPosts"`
}

// FollowerUser はフォロワー／フォロー中一覧の1件。
type FollowerUser struct {
	ID              string `json:"id"`
	UserName        string `json:"userName"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	Bio             string `json:"bio,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	FollowerCount   int    `json:"followerCount"`
	FollowingCount  int    `json:"followingCount"`
	IsVerified      bool   `json:"isVerified"`
}

// AuthorStats は著者一覧に含まれる集計値。
type AuthorStats struct {
	Posts     int `json:"posts"`
	Comments  int `json:"comments"`
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// Author は著者ディレクトリの1件を表す。
type Author struct {
	ID        string      `json:"id"`
	UserName  string      `json:"userName"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Bio       string      `json:"bio,omitempty"`
	Roles     []string    `json:"roles"`
	Stats     AuthorStats `json:"stats"`
}

// FollowResult はフォロートグルのサーバー応答。
type FollowResult struct {
	IsFollowing bool `json:"isFollowing"`
}
