// Package auth はバックエンドの認証エンドポイント（ログイン・登録・ログアウト・トークン更新）を扱う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/model"
)

// TokenStore は発行されたトークンを保持するストア。
// credential.Store が実装する。
type TokenStore interface {
	Save(accessToken, refreshToken string) error
	StoredAccessToken() string
	RefreshToken() (string, bool)
	Clear() error
}

// Service は認証に関するバックエンド呼び出しを提供する。
type Service struct {
	api    *apiclient.Client
	tokens TokenStore
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api *apiclient.Client, tokens TokenStore, logger *slog.Logger) *Service {
	return &Service{
		api:    api,
		tokens: tokens,
		logger: logger,
	}
}

// Login はログインを行い、成功時はトークンを保存する。
// 認証失敗（success=false、400/401応答）はエラーではなくSuccess=falseの応答として返す。
// エラーを返すのは入力検証エラーと通信エラーのみ。
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var resp model.AuthResponse
	err := s.api.Post(ctx, "/auth/login", req, &resp, apiclient.WithoutAuthInvalidation())
	if rejected, ok := rejection(err); ok {
		return rejected, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	if err := s.storeTokens(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register はユーザー登録を行い、成功時はトークンを保存する。
// 送信前にパスワード確認の一致などを検証し、不一致の場合は通信せずに検証エラーを返す。
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var resp model.AuthResponse
	err := s.api.Post(ctx, "/auth/register", req, &resp, apiclient.WithoutAuthInvalidation())
	if rejected, ok := rejection(err); ok {
		return rejected, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	if err := s.storeTokens(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout はサーバー側のログアウトをベストエフォートで呼び出し、常にローカルのトークンを破棄する。
func (s *Service) Logout(ctx context.Context) error {
	if err := s.api.Post(ctx, "/auth/logout", nil, nil, apiclient.WithoutAuthInvalidation()); err != nil {
		s.logger.Warn("logout request failed",
			slog.String("error", err.Error()),
		)
	}

	if err := s.tokens.Clear(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Me は現在のアクセストークンに対応するユーザーを取得する。
func (s *Service) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := s.api.Get(ctx, "/auth/me", &user); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &user, nil
}

// RefreshToken はアクセストークンとリフレッシュトークンを更新する。
// どちらかのトークンを保持していない場合はエラーを返す。
func (s *Service) RefreshToken(ctx context.Context) (*model.AuthResponse, error) {
	token := s.tokens.StoredAccessToken()
	refresh, ok := s.tokens.RefreshToken()
	if token == "" || !ok {
		return nil, model.NewLoginRequiredError()
	}

	q := url.Values{}
	q.Set("token", token)
	q.Set("refreshToken", refresh)

	var resp model.AuthResponse
	if err := s.api.Post(ctx, "/auth/refresh-token", nil, &resp, apiclient.WithQuery(q)); err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := s.storeTokens(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// storeTokens は成功応答に含まれるトークンを保存する。
func (s *Service) storeTokens(resp *model.AuthResponse) error {
	if !resp.Success || resp.Token == "" {
		return nil
	}
	if err := s.tokens.Save(resp.Token, resp.RefreshToken); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// rejection は認証エンドポイントの400/401応答をSuccess=falseの応答に変換する。
func rejection(err error) (*model.AuthResponse, bool) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	if apiErr.Status != http.StatusBadRequest && apiErr.Status != http.StatusUnauthorized {
		return nil, false
	}
	return &model.AuthResponse{Success: false, Message: apiErr.Message}, true
}
