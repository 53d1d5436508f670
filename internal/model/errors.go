// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, transport, system
	Action   string // ユーザー向け対処方法
	Field    string // 検証エラーの対象フィールド（validationのみ）
	Status   int    // バックエンドが返したHTTPステータス（不明な場合は0）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryTransport  = "transport"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeLoginRequired        = "LOGIN_REQUIRED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeTransport            = "TRANSPORT_FAILED"
	ErrCodeBackend              = "BACKEND_ERROR"
	ErrCodeInFlight             = "REQUEST_IN_FLIGHT"
	ErrCodeAlreadyAuthenticated = "ALREADY_AUTHENTICATED"
	ErrCodeMediaBlocked         = "MEDIA_BLOCKED"
)

// NewUnauthorizedError は認証切れ（強制ログアウト対象）のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証情報が無効または期限切れです。",
		Category: CategoryAuth,
		Action:   "再度ログインしてください。",
		Status:   401,
	}
}

// NewLoginRequiredError は未ログイン状態で認証必須の操作を行った場合のエラーを生成する。
func NewLoginRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginRequired,
		Message:  "この操作にはログインが必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は所有者以外による編集などの権限エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  reason,
		Category: CategoryAuth,
		Action:   "自分のコンテンツのみ操作できます。",
		Status:   403,
	}
}

// NewValidationError は送信前の入力検証エラーを生成する。
// fieldはエラーを表示する入力フィールド名。
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
		Field:    field,
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(resource, key string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%sが見つかりません: %s", resource, key),
		Category: CategoryNotFound,
		Action:   "一覧に戻って別の項目を選択してください。",
		Status:   404,
	}
}

// NewTransportError は通信エラーを生成する。
func NewTransportError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeTransport,
		Message:  fmt.Sprintf("問題が発生しました: %s", reason),
		Category: CategoryTransport,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBackendError はバックエンドが想定外のステータスを返した場合のエラーを生成する。
func NewBackendError(status int, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("バックエンドがステータス %d を返しました。", status)
	}
	category := CategorySystem
	if status >= 400 && status < 500 {
		category = CategoryValidation
	}
	return &APIError{
		Code:     ErrCodeBackend,
		Message:  message,
		Category: category,
		Action:   "しばらく待ってから再度お試しください。",
		Status:   status,
	}
}

// NewInFlightError は同じトグル操作が処理中の場合のエラーを生成する。
func NewInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeInFlight,
		Message:  "前回の操作を処理中です。",
		Category: CategoryValidation,
		Action:   "完了するまでお待ちください。",
	}
}

// NewAlreadyAuthenticatedError はログイン中に再ログインしようとした場合のエラーを生成する。
func NewAlreadyAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyAuthenticated,
		Message:  "既にログインしています。",
		Category: CategoryAuth,
		Action:   "別のアカウントを使う場合は先にログアウトしてください。",
	}
}

// NewMediaBlockedError は許可されていない画像配信元へのアクセスエラーを生成する。
func NewMediaBlockedError(rawURL string) *APIError {
	return &APIError{
		Code:     ErrCodeMediaBlocked,
		Message:  fmt.Sprintf("許可されていない画像URLです: %s", rawURL),
		Category: CategoryValidation,
		Action:   "許可された配信元の画像を指定してください。",
	}
}

// IsCode はerrがAPIErrorであり指定コードを持つかを返す。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsNotFound はerrがリソース未検出エラーかを返す。
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNotFound)
}

// IsCategory はerrがAPIErrorであり指定カテゴリを持つかを返す。
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}
