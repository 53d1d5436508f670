package security

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/hitoshi/blogclient/internal/metrics"
	"github.com/hitoshi/blogclient/internal/model"
)

// allowedSchemes は画像取得で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は公開配信元として扱わないネットワーク範囲。
// 許可リスト上のホストがこの範囲にある場合はバックエンド自身のアップロード配信とみなす。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// Origin は画像配信元の許可リストの1件。scheme://host[:port]/path-prefix の形式。
type Origin struct {
	Scheme     string
	Host       string
	Port       string
	PathPrefix string
}

// ParseOrigin は許可リストの1件を解析する。ポート省略時はスキームの既定ポートを補う。
func ParseOrigin(raw string) (Origin, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Origin{}, fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if !isAllowedScheme(scheme) {
		return Origin{}, fmt.Errorf("disallowed scheme in origin %q", raw)
	}
	if u.Hostname() == "" {
		return Origin{}, fmt.Errorf("empty host in origin %q", raw)
	}
	prefix := u.EscapedPath()
	if prefix == "" {
		prefix = "/"
	}
	return Origin{
		Scheme:     scheme,
		Host:       strings.ToLower(u.Hostname()),
		Port:       portOf(u),
		PathPrefix: prefix,
	}, nil
}

// Matches はURLがこの配信元に含まれるかを返す。
func (o Origin) Matches(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, o.Scheme) &&
		strings.EqualFold(u.Hostname(), o.Host) &&
		portOf(u) == o.Port &&
		strings.HasPrefix(u.EscapedPath(), o.PathPrefix)
}

// local はホストがループバックやプライベートアドレスかを返す。
func (o Origin) local() bool {
	if o.Host == "localhost" {
		return true
	}
	ip := net.ParseIP(o.Host)
	return ip != nil && isBlockedIP(ip)
}

// Media は取得した画像。
type Media struct {
	ContentType string
	Body        []byte
}

// MediaGuard は許可された配信元の画像だけを取得する。
//
// 公開配信元への取得はsafeurlのクライアントを使い、DNS解決後のIPアドレスも検証する。
// 許可リストに明示されたローカルの配信元（開発用バックエンドの /uploads/ など）は
// 通常のクライアントで取得する。
type MediaGuard struct {
	origins     []Origin
	maxSize     int64
	safeClient  *http.Client
	localClient *http.Client
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewMediaGuard はMediaGuardを生成する。解析できない許可リストの項目はエラーになる。
func NewMediaGuard(origins []string, maxSize int64, timeout time.Duration, m metrics.MetricsCollector, logger *slog.Logger) (*MediaGuard, error) {
	if m == nil {
		m = metrics.Nop{}
	}
	g := &MediaGuard{
		maxSize:     maxSize,
		localClient: &http.Client{Timeout: timeout},
		metrics:     m,
		logger:      logger,
	}
	ports := map[int]bool{80: true, 443: true}
	for _, raw := range origins {
		o, err := ParseOrigin(raw)
		if err != nil {
			return nil, err
		}
		g.origins = append(g.origins, o)
		if p, err := strconv.Atoi(o.Port); err == nil && !o.local() {
			ports[p] = true
		}
	}

	allowedPorts := make([]int, 0, len(ports))
	for p := range ports {
		allowedPorts = append(allowedPorts, p)
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(allowedPorts...).
		Build()
	g.safeClient = safeurl.Client(config).Client
	return g, nil
}

// Allowed はURLが許可リストに含まれるかを返す。
func (g *MediaGuard) Allowed(rawURL string) bool {
	_, _, err := g.match(rawURL)
	return err == nil
}

// Check はURLを検証し、許可されていなければMEDIA_BLOCKEDを返す。
func (g *MediaGuard) Check(rawURL string) (*url.URL, error) {
	u, _, err := g.match(rawURL)
	if err != nil {
		g.metrics.RecordMediaBlocked()
		g.logger.Warn("media blocked",
			slog.String("url", rawURL),
			slog.String("reason", err.Error()),
		)
		return nil, model.NewMediaBlockedError(rawURL)
	}
	return u, nil
}

func (g *MediaGuard) match(rawURL string) (*url.URL, Origin, error) {
	if rawURL == "" {
		return nil, Origin{}, fmt.Errorf("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, Origin{}, fmt.Errorf("invalid URL: %w", err)
	}
	if !isAllowedScheme(strings.ToLower(u.Scheme)) {
		return nil, Origin{}, fmt.Errorf("disallowed scheme: %s", u.Scheme)
	}
	if u.User != nil {
		return nil, Origin{}, fmt.Errorf("userinfo is not allowed")
	}
	for _, o := range g.origins {
		if o.Matches(u) {
			return u, o, nil
		}
	}
	return nil, Origin{}, fmt.Errorf("origin not in allowlist: %s", u.Host)
}

// Fetch は許可された画像を取得する。画像以外のContent-Typeや上限サイズ超過はエラーになる。
func (g *MediaGuard) Fetch(ctx context.Context, rawURL string) (*Media, error) {
	u, origin, err := g.match(rawURL)
	if err != nil {
		g.metrics.RecordMediaBlocked()
		return nil, model.NewMediaBlockedError(rawURL)
	}

	client := g.safeClient
	if origin.local() {
		client = g.localClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := client.Do(req)
	if err != nil {
		g.logger.Warn("media fetch failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransportError("画像を取得できませんでした")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, model.NewNotFoundError("画像", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.NewBackendError(resp.StatusCode, "")
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		g.metrics.RecordMediaBlocked()
		return nil, model.NewMediaBlockedError(rawURL)
	}
	if resp.ContentLength > g.maxSize {
		return nil, model.NewValidationError("url", "画像サイズが上限を超えています。")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxSize+1))
	if err != nil {
		return nil, model.NewTransportError("画像の読み込みに失敗しました")
	}
	if int64(len(body)) > g.maxSize {
		return nil, model.NewValidationError("url", "画像サイズが上限を超えています。")
	}
	return &Media{ContentType: contentType, Body: body}, nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがローカル扱いのネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func portOf(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "https") {
		return "443"
	}
	return "80"
}
