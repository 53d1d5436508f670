// Package bookmark は投稿のブックマーク（あとで読む）を扱う。
package bookmark

import (
	"context"
	"fmt"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

const defaultPageSize = 20

// Service はブックマークに関するバックエンド呼び出しを提供する。
type Service struct {
	api *apiclient.Client
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// List はログイン中のユーザーのブックマーク一覧を返す。
func (s *Service) List(ctx context.Context, page model.Page) (*model.BookmarksPage, error) {
	var res model.BookmarksPage
	if err := s.api.Get(ctx, "/bookmarks", &res, apiclient.WithPage(page, defaultPageSize)); err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return &res, nil
}

// Toggle はブックマーク状態を切り替え、サーバー側の結果を返す。
func (s *Service) Toggle(ctx context.Context, postID string) (*model.BookmarkResult, error) {
	var res model.BookmarkResult
	if err := s.api.Post(ctx, "/bookmarks/"+apiclient.PathEscape(postID), nil, &res); err != nil {
		return nil, fmt.Errorf("failed to toggle bookmark: %w", err)
	}
	return &res, nil
}

// Status は投稿がブックマーク済みかを返す。
func (s *Service) Status(ctx context.Context, postID string) (*model.BookmarkResult, error) {
	var res model.BookmarkResult
	if err := s.api.Get(ctx, "/bookmarks/"+apiclient.PathEscape(postID)+"/status", &res); err != nil {
		return nil, fmt.Errorf("failed to get bookmark status: %w", err)
	}
	return &res, nil
}
