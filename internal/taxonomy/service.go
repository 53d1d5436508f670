// Package taxonomy はカテゴリとタグの参照を提供する。
// カテゴリとタグは同じ形のエンドポイントを持つため、1つのサービスで扱う。
package taxonomy

import (
	"context"
	"fmt"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

// Service はカテゴリ・タグに関するバックエンド呼び出しを提供する。
type Service struct {
	api *apiclient.Client
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// Categories はカテゴリ一覧を返す。
func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	return list[model.Category](ctx, s.api, "/categories")
}

// Category はIDでカテゴリを取得する。
func (s *Service) Category(ctx context.Context, id string) (*model.Category, error) {
	return get[model.Category](ctx, s.api, "/categories/"+apiclient.PathEscape(id), "カテゴリ", id)
}

// CategoryBySlug はスラッグでカテゴリを取得する。
func (s *Service) CategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	return get[model.Category](ctx, s.api, "/categories/slug/"+apiclient.PathEscape(slug), "カテゴリ", slug)
}

// Tags はタグ一覧を返す。
func (s *Service) Tags(ctx context.Context) ([]model.Tag, error) {
	return list[model.Tag](ctx, s.api, "/tags")
}

// Tag はIDでタグを取得する。
func (s *Service) Tag(ctx context.Context, id string) (*model.Tag, error) {
	return get[model.Tag](ctx, s.api, "/tags/"+apiclient.PathEscape(id), "タグ", id)
}

// TagBySlug はスラッグでタグを取得する。
func (s *Service) TagBySlug(ctx context.Context, slug string) (*model.Tag, error) {
	return get[model.Tag](ctx, s.api, "/tags/slug/"+apiclient.PathEscape(slug), "タグ", slug)
}

func list[T any](ctx context.Context, api *apiclient.Client, path string) ([]T, error) {
	var out []T
	if err := api.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	return out, nil
}

func get[T any](ctx context.Context, api *apiclient.Client, path, resource, key string) (*T, error) {
	var out T
	if err := api.Get(ctx, path, &out); err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewNotFoundError(resource, key)
		}
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return &out, nil
}
