package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL string
	HubURL     string

	// Credential
	CredentialFile  string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// HTTP Client
	HTTPTimeout  time.Duration
	APIRateLimit float64
	APIRateBurst int

	// Realtime
	RealtimeMaxBackoff time.Duration

	// Media
	ImageAllowedOrigins []string
	ImageMaxSize        int64

	// Local API
	ListenPort        string
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// defaultImageAllowedOrigins は画像配信元の許可リストのデフォルト値。
var defaultImageAllowedOrigins = []string{
	"https://picsum.photos/",
	"http://localhost:7237/uploads/",
	"https://localhost:7237/uploads/",
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimSuffix(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	base, err := url.Parse(cfg.APIBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("API_BASE_URL is not an absolute URL: %q", cfg.APIBaseURL)
	}

	// Optional fields with defaults
	cfg.HubURL = getEnvString("HUB_URL", defaultHubURL(base))
	cfg.CredentialFile = getEnvString("CREDENTIAL_FILE", defaultCredentialFile())
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", 7*24*time.Hour)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 10)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 20)
	cfg.RealtimeMaxBackoff = getEnvDuration("REALTIME_MAX_BACKOFF", 30*time.Second)
	cfg.ImageAllowedOrigins = getEnvList("IMAGE_ALLOWED_ORIGINS", defaultImageAllowedOrigins)
	cfg.ImageMaxSize = getEnvInt64("IMAGE_MAX_SIZE", 5242880)
	cfg.ListenPort = getEnvString("LISTEN_PORT", "3000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// defaultHubURL はAPIのオリジンから通知ハブのURLを導出する。
// https://host/api → wss://host/notificationHub
func defaultHubURL(base *url.URL) string {
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/notificationHub", scheme, base.Host)
}

// defaultCredentialFile は認証情報ファイルのデフォルトパスを返す。
func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "blogclient", "credentials.json")
	}
	return filepath.Join(home, ".blogclient", "credentials.json")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数をスライスとして返す。空要素は除外する。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultVal...)
	}
	return out
}
