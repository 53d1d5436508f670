// Package credential は永続化された認証情報（アクセストークン・リフレッシュトークン）を管理する。
// 再起動時のセッション復元は、この認証情報を唯一の根拠として行う。
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential はディスクに保存される認証情報。
// アクセストークンとリフレッシュトークンはそれぞれ独立した有効期限を持つ。
type Credential struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Store は認証情報を保持し、ファイルへ永続化する。
// pathが空の場合はメモリ上のみで保持する。
type Store struct {
	mu         sync.RWMutex
	cred       *Credential
	path       string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time // テスト用に差し替え可能
}

// NewStore はファイルに永続化するStoreを生成する。
func NewStore(path string, accessTTL, refreshTTL time.Duration, logger *slog.Logger) *Store {
	return &Store{
		path:       path,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// NewMemoryStore はメモリ上のみで認証情報を保持するStoreを生成する。
func NewMemoryStore(accessTTL, refreshTTL time.Duration, logger *slog.Logger) *Store {
	return NewStore("", accessTTL, refreshTTL, logger)
}

// Load はファイルから認証情報を読み込む。
// ファイルが存在しない場合、または両トークンとも期限切れの場合は未認証状態として扱う。
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		// 壊れたファイルは破棄して未認証から始める
		s.logger.Warn("discarding unreadable credential file",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return s.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cred.AccessToken != "" && !now.Before(cred.AccessExpiresAt) {
		cred.AccessToken = ""
	}
	if cred.RefreshToken != "" && !now.Before(cred.RefreshExpiresAt) {
		cred.RefreshToken = ""
	}
	if cred.AccessToken == "" && cred.RefreshToken == "" {
		s.cred = nil
		return nil
	}
	s.cred = &cred
	return nil
}

// Save は新しいトークンの組を保存する。
// アクセストークンの有効期限はTTLとJWTのexpクレームの早い方とする。
func (s *Store) Save(accessToken, refreshToken string) error {
	if accessToken == "" {
		return errors.New("access token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cred := &Credential{
		AccessToken:     accessToken,
		AccessExpiresAt: now.Add(s.accessTTL),
	}
	if exp, ok := tokenExpiry(accessToken); ok && exp.Before(cred.AccessExpiresAt) {
		cred.AccessExpiresAt = exp
	}
	if refreshToken != "" {
		cred.RefreshToken = refreshToken
		cred.RefreshExpiresAt = now.Add(s.refreshTTL)
	}

	s.cred = cred
	return s.persistLocked()
}

// AccessToken は有効なアクセストークンを返す。存在しないか期限切れの場合はfalse。
func (s *Store) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil || s.cred.AccessToken == "" {
		return "", false
	}
	if !s.now().Before(s.cred.AccessExpiresAt) {
		return "", false
	}
	return s.cred.AccessToken, true
}

// StoredAccessToken は期限に関係なく保持中のアクセストークンを返す。
// 期限切れトークンで送ったリクエストの401を無効化に結び付けるために使う。
func (s *Store) StoredAccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return ""
	}
	return s.cred.AccessToken
}

// RefreshToken は有効なリフレッシュトークンを返す。存在しないか期限切れの場合はfalse。
func (s *Store) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil || s.cred.RefreshToken == "" {
		return "", false
	}
	if !s.now().Before(s.cred.RefreshExpiresAt) {
		return "", false
	}
	return s.cred.RefreshToken, true
}

// Snapshot は現在の認証情報のコピーを返す。
func (s *Store) Snapshot() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

// Clear は両トークンをまとめて破棄する。
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = nil
	return s.persistLocked()
}

// ClearIfCurrent は保持中のアクセストークンがtokenと一致する場合に限り破棄する。
// 破棄した場合のみtrueを返す。同じ認証情報に対する複数の401応答のうち、
// 最初の1件だけが無効化イベントを発行するために使う。
func (s *Store) ClearIfCurrent(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil || token == "" || s.cred.AccessToken != token {
		return false
	}
	s.cred = nil
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to remove credential file",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}
	return true
}

// persistLocked は現在の認証情報をファイルへ書き出す。呼び出し元がmuを保持していること。
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	if s.cred == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove credential file: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.Marshal(s.cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	// 一時ファイルに書いてからリネームし、途中状態のファイルを残さない
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// tokenExpiry はJWTのexpクレームを署名検証なしで読み取る。
// 署名の検証はバックエンドの責務であり、ここでは期限の推定にのみ使う。
func tokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
