package model

// PagedResult はページング付き一覧の共通レスポンス。
type PagedResult[T any] struct {
	Items           []T  `json:"items"`
	TotalCount      int  `json:"totalCount"`
	Page            int  `json:"page"`
	PageSize        int  `json:"pageSize"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Page はページ番号とページサイズの組。
type Page struct {
	Number int
	Size   int
}

// Normalize はゼロ値や負値をデフォルトで補完したPageを返す。
func (p Page) Normalize(defaultSize int) Page {
	if p.Number <= 0 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = defaultSize
	}
	return p
}

// BookmarksPage はブックマーク一覧のレスポンス。
type BookmarksPage struct {
	Bookmarks  []Post `json:"bookmarks"`
	TotalCount int    `json:"totalCount"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
}

// NotificationsPage は通知一覧のレスポンス。
type NotificationsPage struct {
	Notifications []Notification `json:"notifications"`
	TotalCount    int            `json:"totalCount"`
	Page          int            `json:"page"`
	PageSize      int            `json:"pageSize"`
	TotalPages    int            `json:"totalPages"`
}

// FollowersPage はフォロワー一覧のレスポンス。
type FollowersPage struct {
	Followers  []FollowerUser `json:"followers"`
	TotalCount int            `json:"totalCount"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// FollowingPage はフォロー中一覧のレスポンス。
type FollowingPage struct {
	Following  []FollowerUser `json:"following"`
	TotalCount int            `json:"totalCount"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// AuthorsPage は著者ディレクトリのレスポンス。
type AuthorsPage struct {
	Users      []Author `json:"users"`
	TotalCount int      `json:"totalCount"`
}
