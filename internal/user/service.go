// Package user はユーザープロフィール・フォロー関係・著者ディレクトリを扱う。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

const (
	// defaultFollowPageSize はフォロワー・フォロー中一覧のデフォルトページサイズ。
	defaultFollowPageSize = 20
	// defaultPostsPageSize はユーザー投稿一覧のデフォルトページサイズ。
	defaultPostsPageSize = 10
)

// Service はユーザーに関するバックエンド呼び出しを提供する。
type Service struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(api *apiclient.Client, logger *slog.Logger) *Service {
	return &Service{api: api, logger: logger}
}

// Profile はユーザー名でプロフィールを取得する。
// ログイン中の場合はisFollowingに現在のユーザーからのフォロー状態が入る。
func (s *Service) Profile(ctx context.Context, userName string) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := s.api.Get(ctx, "/users/"+apiclient.PathEscape(userName), &p); err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewNotFoundError("ユーザー", userName)
		}
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return &p, nil
}

// ToggleFollow はフォロー状態を切り替え、サーバーが返した結果を返す。
func (s *Service) ToggleFollow(ctx context.Context, userName string) (*model.FollowResult, error) {
	var res model.FollowResult
	if err := s.api.Post(ctx, "/users/"+apiclient.PathEscape(userName)+"/follow", nil, &res); err != nil {
		return nil, fmt.Errorf("failed to toggle follow: %w", err)
	}
	return &res, nil
}

// Followers はフォロワー一覧を返す。
func (s *Service) Followers(ctx context.Context, userName string, page model.Page) (*model.FollowersPage, error) {
	var res model.FollowersPage
	path := "/users/" + apiclient.PathEscape(userName) + "/followers"
	if err := s.api.Get(ctx, path, &res, apiclient.WithPage(page, defaultFollowPageSize)); err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	return &res, nil
}

// Following はフォロー中のユーザー一覧を返す。
func (s *Service) Following(ctx context.Context, userName string, page model.Page) (*model.FollowingPage, error) {
	var res model.FollowingPage
	path := "/users/" + apiclient.PathEscape(userName) + "/following"
	if err := s.api.Get(ctx, path, &res, apiclient.WithPage(page, defaultFollowPageSize)); err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	return &res, nil
}

// Posts はユーザーの投稿一覧を返す。
func (s *Service) Posts(ctx context.Context, userName string, page model.Page) (*model.PagedResult[model.Post], error) {
	var res model.PagedResult[model.Post]
	path := "/users/" + apiclient.PathEscape(userName) + "/posts"
	if err := s.api.Get(ctx, path, &res, apiclient.WithPage(page, defaultPostsPageSize)); err != nil {
		return nil, fmt.Errorf("failed to list user posts: %w", err)
	}
	return &res, nil
}

// Authors は著者ディレクトリ全体を返す。
func (s *Service) Authors(ctx context.Context) (*model.AuthorsPage, error) {
	var res model.AuthorsPage
	if err := s.api.Get(ctx, "/Test/users", &res); err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	return &res, nil
}

// Author はIDで著者を取得する。
func (s *Service) Author(ctx context.Context, id string) (*model.Author, error) {
	var a model.Author
	if err := s.api.Get(ctx, "/Test/users/"+apiclient.PathEscape(id), &a); err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewNotFoundError("著者", id)
		}
		return nil, fmt.Errorf("failed to get author: %w", err)
	}
	return &a, nil
}
