// Package like は投稿・コメントへのいいねの切り替えと状態取得を提供する。
package like

import (
	"context"
	"fmt"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

// Service はいいねに関するバックエンド呼び出しを提供する。
type Service struct {
	api *apiclient.Client
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// TogglePost は投稿のいいねを切り替え、サーバー側の結果を返す。
func (s *Service) TogglePost(ctx context.Context, postID string) (*model.LikeResult, error) {
	return s.call(ctx, "POST", "/likes/posts/"+apiclient.PathEscape(postID))
}

// ToggleComment はコメントのいいねを切り替える。
func (s *Service) ToggleComment(ctx context.Context, commentID string) (*model.LikeResult, error) {
	return s.call(ctx, "POST", "/likes/comments/"+apiclient.PathEscape(commentID))
}

// PostStatus は投稿に対する現在のユーザーのいいね状態を返す。
func (s *Service) PostStatus(ctx context.Context, postID string) (*model.LikeResult, error) {
	return s.call(ctx, "GET", "/likes/posts/"+apiclient.PathEscape(postID)+"/status")
}

// CommentStatus はコメントに対するいいね状態を返す。
func (s *Service) CommentStatus(ctx context.Context, commentID string) (*model.LikeResult, error) {
	return s.call(ctx, "GET", "/likes/comments/"+apiclient.PathEscape(commentID)+"/status")
}

func (s *Service) call(ctx context.Context, method, path string) (*model.LikeResult, error) {
	var res model.LikeResult
	if err := s.api.Do(ctx, method, path, nil, &res); err != nil {
		return nil, fmt.Errorf("like request failed: %w", err)
	}
	return &res, nil
}
