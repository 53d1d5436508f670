package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// recordSeparator はJSONハブプロトコルのフレーム終端。
const recordSeparator byte = 0x1E

// MessageType はハブメッセージの種別。
type MessageType int

const (
	MessageInvocation MessageType = 1
	MessageCompletion MessageType = 3
	MessagePing       MessageType = 6
	MessageClose      MessageType = 7
)

// ハブのメソッド名
const (
	EventNewNotification      = "NewNotification"
	EventNotificationRead     = "NotificationRead"
	EventAllNotificationsRead = "AllNotificationsRead"
	MethodMarkAsRead          = "MarkNotificationAsRead"
)

// handshakeRequest は接続直後に送るハンドシェイク。
type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// handshakeResponse はハンドシェイクの応答。成功時は空のオブジェクト。
type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// message は受信したハブメッセージ。
type message struct {
	Type           MessageType       `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// invocation はクライアントから送るメソッド呼び出し。
type invocation struct {
	Type         MessageType `json:"type"`
	InvocationID string      `json:"invocationId,omitempty"`
	Target       string      `json:"target"`
	Arguments    []any       `json:"arguments"`
}

// ping はキープアライブ。
type ping struct {
	Type MessageType `json:"type"`
}

// encodeFrame はvをJSONにして終端を付ける。
func encodeFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hub frame: %w", err)
	}
	return append(data, recordSeparator), nil
}

// splitFrames は1つのWebSocketメッセージに含まれるフレームを分割する。
// 空のフレームは捨てる。
func splitFrames(data []byte) [][]byte {
	var frames [][]byte
	for _, f := range bytes.Split(data, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(f)) > 0 {
			frames = append(frames, f)
		}
	}
	return frames
}

// argString は文字列または数値の引数を文字列として取り出す。
func argString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("argument is not a string or number: %s", raw)
}
