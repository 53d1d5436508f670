// Package realtime は通知ハブへのWebSocket接続を管理する。
//
// Channel は認証済みの間だけハブに接続し、切断時は上限付きのバックオフで再接続する。
// 受信した通知イベントは Handler（notification.Inbox）へ渡される。
// Binder はセッションの状態遷移に合わせて Channel を開始・停止する。
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/blogclient/internal/metrics"
	"github.com/hitoshi/blogclient/internal/model"
)

const (
	defaultPingInterval     = 15 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

// reconnectDelays は再接続の待ち時間。末尾の値を上限として繰り返す。
var reconnectDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

// errUnauthorized はハブが認証情報を拒否したことを表す。再接続しない。
var errUnauthorized = errors.New("hub rejected credential")

// Backoff は再接続の試行回数に応じた待ち時間を返す。
// 0s, 2s, 10s, 30s の順に増え、以降は30sのまま。maxが正ならその値で頭打ちにする。
func Backoff(attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := reconnectDelays[len(reconnectDelays)-1]
	if attempt < len(reconnectDelays) {
		delay = reconnectDelays[attempt]
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// Handler はハブから届いたイベントを反映する。notification.Inbox が実装する。
type Handler interface {
	Push(n model.Notification) bool
	ApplyRead(id string)
	ApplyAllRead()
}

// TokenSource は接続に使うアクセストークン。credential.Store が実装する。
type TokenSource interface {
	AccessToken() (string, bool)
}

// Config はChannelの設定。
type Config struct {
	URL              string
	MaxBackoff       time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
}

type completion struct {
	err error
}

// Channel はハブへの接続1本を表す。Start/Stop は何度呼んでもよい。
type Channel struct {
	cfg     Config
	tokens  TokenSource
	handler Handler
	dialer  *websocket.Dialer
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	conn    *websocket.Conn
	pending map[string]chan completion

	writeMu sync.Mutex
}

// NewChannel はChannelを生成する。
func NewChannel(cfg Config, tokens TokenSource, handler Handler, m metrics.MetricsCollector, logger *slog.Logger) *Channel {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Channel{
		cfg:     cfg,
		tokens:  tokens,
		handler: handler,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		metrics: m,
		logger:  logger,
		pending: make(map[string]chan completion),
	}
}

// Start は接続ループを開始する。既に動作中なら何もしない。
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Stop は接続を閉じ、接続ループの終了を待つ。以後は再接続しない。
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running は接続ループが動作中かどうかを返す。
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Connected はハンドシェイク済みの接続があるかどうかを返す。
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// MarkAsRead はハブ経由で通知を既読にする。接続がなければtransportエラーを返す。
func (c *Channel) MarkAsRead(ctx context.Context, notificationID string) error {
	id := uuid.NewString()
	ch := make(chan completion, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return model.NewTransportError("リアルタイム接続がありません")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, invocation{
		Type:         MessageInvocation,
		InvocationID: id,
		Target:       MethodMarkAsRead,
		Arguments:    []any{notificationID},
	}); err != nil {
		return model.NewTransportError("既読の送信に失敗しました")
	}

	select {
	case res := <-ch:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run は切断のたびにバックオフして再接続する。
// 認証情報がない、またはハブに拒否された場合は終了する。
func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		token, ok := c.tokens.AccessToken()
		if !ok {
			c.logger.Info("認証情報がないためリアルタイム接続を行いません")
			return
		}

		connected, err := c.connect(ctx, token)
		if ctx.Err() != nil {
			c.logger.Info("リアルタイム接続を停止しました")
			return
		}
		if errors.Is(err, errUnauthorized) {
			c.logger.Warn("ハブが認証情報を拒否したため再接続を中止します")
			return
		}
		if connected {
			attempt = 0
		}

		delay := Backoff(attempt, c.cfg.MaxBackoff)
		attempt++
		c.metrics.RecordRealtimeReconnect()
		c.logger.Warn("リアルタイム接続が切断されました。再接続します",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
			slog.Int("attempt", attempt),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("リアルタイム接続を停止しました")
			return
		case <-timer.C:
		}
	}
}

// connect は1回分の接続を行い、切断されるまで受信を続ける。
// ハンドシェイクまで成功した場合はconnectedにtrueを返す。
func (c *Channel) connect(ctx context.Context, token string) (connected bool, err error) {
	endpoint, err := hubURL(c.cfg.URL, token)
	if err != nil {
		return false, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, errUnauthorized
		}
		return false, fmt.Errorf("failed to dial hub: %w", err)
	}
	defer conn.Close()

	// ctxのキャンセルで読み取りを中断する
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.closeConn(conn)
		case <-stop:
		}
	}()

	if err := c.handshake(conn); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.metrics.RecordRealtimeConnect()
	c.logger.Info("リアルタイム接続を確立しました")

	defer c.detach(conn)

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.write(conn, ping{Type: MessagePing}); err != nil {
					c.logger.Debug("ping送信に失敗しました", slog.String("error", err.Error()))
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("failed to read hub message: %w", err)
		}
		for _, frame := range splitFrames(data) {
			if err := c.dispatch(frame); err != nil {
				return true, err
			}
		}
	}
}

func (c *Channel) handshake(conn *websocket.Conn) error {
	if err := c.write(conn, handshakeRequest{Protocol: "json", Version: 1}); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read handshake response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	frames := splitFrames(data)
	if len(frames) == 0 {
		return fmt.Errorf("empty handshake response")
	}
	var resp handshakeResponse
	if err := json.Unmarshal(frames[0], &resp); err != nil {
		return fmt.Errorf("invalid handshake response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	// ハンドシェイク応答と同じメッセージで届いたフレームも処理する
	for _, frame := range frames[1:] {
		if err := c.dispatch(frame); err != nil {
			return err
		}
	}
	return nil
}

// dispatch は1フレームを処理する。Closeを受け取った場合はエラーを返す。
func (c *Channel) dispatch(frame []byte) error {
	var msg message
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.logger.Warn("不正なハブメッセージを無視しました", slog.String("error", err.Error()))
		return nil
	}

	switch msg.Type {
	case MessageInvocation:
		c.handleInvocation(msg)
	case MessageCompletion:
		c.mu.Lock()
		ch, ok := c.pending[msg.InvocationID]
		c.mu.Unlock()
		if ok {
			var err error
			if msg.Error != "" {
				err = model.NewBackendError(0, msg.Error)
			}
			select {
			case ch <- completion{err: err}:
			default:
			}
		}
	case MessagePing:
	case MessageClose:
		if msg.Error != "" {
			return fmt.Errorf("hub closed connection: %s", msg.Error)
		}
		return fmt.Errorf("hub closed connection")
	default:
		c.logger.Debug("未対応のハブメッセージを無視しました", slog.Int("type", int(msg.Type)))
	}
	return nil
}

func (c *Channel) handleInvocation(msg message) {
	switch msg.Target {
	case EventNewNotification:
		if len(msg.Arguments) == 0 {
			return
		}
		var n model.Notification
		if err := json.Unmarshal(msg.Arguments[0], &n); err != nil {
			c.logger.Warn("通知の解析に失敗しました", slog.String("error", err.Error()))
			return
		}
		c.handler.Push(n)
	case EventNotificationRead:
		if len(msg.Arguments) == 0 {
			return
		}
		id, err := argString(msg.Arguments[0])
		if err != nil {
			c.logger.Warn("既読イベントの解析に失敗しました", slog.String("error", err.Error()))
			return
		}
		c.handler.ApplyRead(id)
	case EventAllNotificationsRead:
		c.handler.ApplyAllRead()
	default:
		c.logger.Debug("未対応のハブイベントを無視しました", slog.String("target", msg.Target))
	}
}

func (c *Channel) write(conn *websocket.Conn, v any) error {
	frame, err := encodeFrame(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// closeConn はCloseフレームを送ってから接続を閉じる。
func (c *Channel) closeConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	conn.Close()
}

// detach は切断した接続を外し、応答待ちの呼び出しを失敗させる。
func (c *Channel) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		select {
		case ch <- completion{err: model.NewTransportError("リアルタイム接続が切断されました")}:
		default:
		}
		delete(c.pending, id)
	}
}

// hubURL はアクセストークンをクエリに付けた接続先を返す。
func hubURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid hub URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported hub URL scheme: %s", u.Scheme)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
