package model

import "time"

// CommentAuthor はコメントに埋め込まれる著者情報。
type CommentAuthor struct {
	ID              string `json:"id"`
	UserName        string `json:"userName"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Comment は記事へのコメントを表す。返信はRepliesにネストされる。
type Comment struct {
	ID              string        `json:"id"`
	Content         string        `json:"content"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       *time.Time    `json:"updatedAt,omitempty"`
	LikeCount       int           `json:"likeCount"`
	PostID          string        `json:"postId"`
	ParentCommentID string        `json:"parentCommentId,omitempty"`
	Author          CommentAuthor `json:"author"`
	Replies         []Comment     `json:"replies,omitempty"`
	ReplyCount      int           `json:"replyCount,omitempty"`
}

// CreateCommentRequest はコメント作成リクエスト。
type CreateCommentRequest struct {
	Content         string `json:"content"`
	PostID          string `json:"postId"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

// UpdateCommentRequest はコメント更新リクエスト。
type UpdateCommentRequest struct {
	Content string `json:"content"`
}
