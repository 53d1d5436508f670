// Package comment は投稿へのコメントの取得・作成・編集・削除を提供する。
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

const defaultPageSize = 20

// Service はコメントに関するバックエンド呼び出しを提供する。
type Service struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client, logger *slog.Logger) *Service {
	return &Service{api: api, logger: logger}
}

// ForPost は投稿のコメント一覧を返す。
func (s *Service) ForPost(ctx context.Context, postID string, page model.Page) (*model.PagedResult[model.Comment], error) {
	var res model.PagedResult[model.Comment]
	path := "/comments/posts/" + apiclient.PathEscape(postID)
	if err := s.api.Get(ctx, path, &res, apiclient.WithPage(page, defaultPageSize)); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return &res, nil
}

// Get はIDでコメントを取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	if err := s.api.Get(ctx, "/comments/"+apiclient.PathEscape(id), &c); err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewNotFoundError("コメント", id)
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &c, nil
}

// Create はコメントを投稿する。ParentCommentIDを指定すると返信になる。
func (s *Service) Create(ctx context.Context, req model.CreateCommentRequest) (*model.Comment, error) {
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return nil, model.NewValidationError("content", "コメントを入力してください。")
	}
	if req.PostID == "" {
		return nil, model.NewValidationError("postId", "投稿が指定されていません。")
	}

	var c model.Comment
	if err := s.api.Post(ctx, "/comments", req, &c); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return &c, nil
}

// Update はコメント本文を更新する。
func (s *Service) Update(ctx context.Context, id string, req model.UpdateCommentRequest) (*model.Comment, error) {
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return nil, model.NewValidationError("content", "コメントを入力してください。")
	}

	var c model.Comment
	if err := s.api.Put(ctx, "/comments/"+apiclient.PathEscape(id), req, &c); err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	return &c, nil
}

// Delete はコメントを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, "/comments/"+apiclient.PathEscape(id), nil); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}
