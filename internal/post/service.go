// Package post は投稿の取得・作成・編集・公開状態の変更を提供する。
package post

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

// defaultPageSize は投稿一覧のデフォルトページサイズ。
const defaultPageSize = 10

// Service は投稿に関するバックエンド呼び出しを提供する。
type Service struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client, logger *slog.Logger) *Service {
	return &Service{api: api, logger: logger}
}

// List は公開済み投稿の一覧を返す。
func (s *Service) List(ctx context.Context, page model.Page) (*model.PagedResult[model.Post], error) {
	return s.list(ctx, "/posts", page)
}

// MyPosts はログイン中のユーザー自身の投稿一覧を返す。
func (s *Service) MyPosts(ctx context.Context, page model.Page) (*model.PagedResult[model.Post], error) {
	return s.list(ctx, "/posts/my-posts", page)
}

// ByCategory はカテゴリスラッグで絞り込んだ投稿一覧を返す。
func (s *Service) ByCategory(ctx context.Context, categorySlug string, page model.Page) (*model.PagedResult[model.Post], error) {
	return s.list(ctx, "/posts/category/slug/"+apiclient.PathEscape(categorySlug), page)
}

// ByTag はタグスラッグで絞り込んだ投稿一覧を返す。
func (s *Service) ByTag(ctx context.Context, tagSlug string, page model.Page) (*model.PagedResult[model.Post], error) {
	return s.list(ctx, "/posts/tag/"+apiclient.PathEscape(tagSlug), page)
}

func (s *Service) list(ctx context.Context, path string, page model.Page) (*model.PagedResult[model.Post], error) {
	var result model.PagedResult[model.Post]
	if err := s.api.Get(ctx, path, &result, apiclient.WithPage(page, defaultPageSize)); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return &result, nil
}

// Get はIDで投稿を取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := s.api.Get(ctx, "/posts/"+apiclient.PathEscape(id), &p); err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewNotFoundError("投稿", id)
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

// GetBySlug はスラッグで投稿を取得する。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*model.Post, error) {
	var p model.Post
	if err := s.api.Get(ctx, "/posts/slug/"+apiclient.PathEscape(slug), &p); err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewNotFoundError("投稿", slug)
		}
		return nil, fmt.Errorf("failed to get post by slug: %w", err)
	}
	return &p, nil
}

// Create は投稿を下書きとして作成する。
// 送信前にタイトル・本文の必須チェックとタグの重複除去を行う。抜粋が空の場合は本文から生成する。
func (s *Service) Create(ctx context.Context, in model.PostInput) (*model.Post, error) {
	in.Status = model.PostStatusDraft
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Excerpt == "" {
		in.Excerpt = Excerpt(in.Content, 0)
	}

	var p model.Post
	if err := s.api.Post(ctx, "/posts", in, &p); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.logger.Info("post created",
		slog.String("post_id", p.ID),
		slog.String("slug", p.Slug),
	)
	return &p, nil
}

// Update は投稿を更新する。投稿者本人以外の場合は送信せずにエラーを返す。
func (s *Service) Update(ctx context.Context, current *model.Post, userID string, in model.PostInput) (*model.Post, error) {
	if err := checkOwner(current, userID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var p model.Post
	if err := s.api.Put(ctx, "/posts/"+apiclient.PathEscape(current.ID), in, &p); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	return &p, nil
}

// Delete は投稿を削除する。投稿者本人のみ実行できる。
func (s *Service) Delete(ctx context.Context, current *model.Post, userID string) error {
	if err := checkOwner(current, userID); err != nil {
		return err
	}
	if err := s.api.Delete(ctx, "/posts/"+apiclient.PathEscape(current.ID), nil); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	s.logger.Info("post deleted",
		slog.String("post_id", current.ID),
	)
	return nil
}

// Publish は投稿を公開状態にする。投稿者本人のみ実行できる。
func (s *Service) Publish(ctx context.Context, current *model.Post, userID string) (*model.Post, error) {
	return s.transition(ctx, current, userID, "publish")
}

// Unpublish は公開済みの投稿を非公開に戻す。投稿者本人のみ実行できる。
func (s *Service) Unpublish(ctx context.Context, current *model.Post, userID string) (*model.Post, error) {
	return s.transition(ctx, current, userID, "unpublish")
}

func (s *Service) transition(ctx context.Context, current *model.Post, userID, action string) (*model.Post, error) {
	if err := checkOwner(current, userID); err != nil {
		return nil, err
	}

	var p model.Post
	if err := s.api.Post(ctx, "/posts/"+apiclient.PathEscape(current.ID)+"/"+action, nil, &p); err != nil {
		return nil, fmt.Errorf("failed to %s post: %w", action, err)
	}
	return &p, nil
}

// checkOwner は投稿者本人かを送信前に確認する。
func checkOwner(p *model.Post, userID string) error {
	if p == nil {
		return model.NewValidationError("id", "投稿が指定されていません。")
	}
	if !p.IsOwnedBy(userID) {
		return model.NewForbiddenError("この投稿を編集する権限がありません。")
	}
	return nil
}
