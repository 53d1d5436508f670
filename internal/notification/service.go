// Package notification は通知の取得・既読化・削除と、
// ポーリングとプッシュの両方から届く通知を1つの一覧にまとめるInboxを提供する。
package notification

import (
	"context"
	"fmt"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

// defaultPageSize は通知一覧のデフォルトページサイズ。
const defaultPageSize = 20

// Service は通知に関するバックエンド呼び出しを提供する。
type Service struct {
	api *apiclient.Client
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// List は通知一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, page model.Page) (*model.NotificationsPage, error) {
	var res model.NotificationsPage
	if err := s.api.Get(ctx, "/notifications", &res, apiclient.WithPage(page, defaultPageSize)); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return &res, nil
}

// MarkRead は通知を既読にする。
func (s *Service) MarkRead(ctx context.Context, id string) error {
	if err := s.api.Put(ctx, "/notifications/"+apiclient.PathEscape(id)+"/mark-read", nil, nil); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkAllRead はすべての通知を既読にする。
func (s *Service) MarkAllRead(ctx context.Context) error {
	if err := s.api.Put(ctx, "/notifications/mark-all-read", nil, nil); err != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	return nil
}

// UnreadCount は未読通知の件数を返す。
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	var res struct {
		UnreadCount int `json:"unreadCount"`
	}
	if err := s.api.Get(ctx, "/notifications/unread-count", &res); err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return res.UnreadCount, nil
}

// Delete は通知を削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, "/notifications/"+apiclient.PathEscape(id), nil); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

// SendTest はテスト通知の送信をバックエンドに依頼する。
func (s *Service) SendTest(ctx context.Context) error {
	if err := s.api.Post(ctx, "/notifications/test", nil, nil); err != nil {
		return fmt.Errorf("failed to create test notification: %w", err)
	}
	return nil
}
