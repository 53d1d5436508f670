package model

import (
	"strings"
	"time"
)

// NotificationType は通知種別（閉じた列挙）。
type NotificationType string

const (
	NotificationNewComment    NotificationType = "NewComment"
	NotificationNewLike       NotificationType = "NewLike"
	NotificationPostLiked     NotificationType = "PostLiked"
	NotificationNewFollower   NotificationType = "NewFollower"
	NotificationCommentLike   NotificationType = "CommentLike"
	NotificationCommentReply  NotificationType = "CommentReply"
	NotificationPostPublished NotificationType = "PostPublished"
)

// Valid は既知の通知種別かどうかを返す。
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationNewComment, NotificationNewLike, NotificationPostLiked,
		NotificationNewFollower, NotificationCommentLike, NotificationCommentReply,
		NotificationPostPublished:
		return true
	}
	return false
}

// Notification はユーザーへの通知を表す。
// サーバー側で生成され、クライアントはIsReadの変更と削除のみを行う。
type Notification struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Type       NotificationType `json:"type"`
	IsRead     bool             `json:"isRead"`
	ActionURL  string           `json:"actionUrl,omitempty"`
	ActionData string           `json:"actionData,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	ReadAt     *time.Time       `json:"readAt,omitempty"`
	ActorID    string           `json:"actorId,omitempty"`
	PostID     string           `json:"postId,omitempty"`
	CommentID  string           `json:"commentId,omitempty"`
}

// CleanActionURL は通知のリンク先をクライアント側のパスに正規化する。
// フラグメントを除去し、/posts/ を /post/ に置き換える。
func CleanActionURL(raw string) string {
	clean, _, _ := strings.Cut(raw, "#")
	if strings.HasPrefix(clean, "/posts/") {
		clean = "/post/" + strings.TrimPrefix(clean, "/posts/")
	}
	return clean
}
