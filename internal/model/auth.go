package model

import (
	"strings"
	"unicode"
)

// AuthResponse はログイン・登録・トークン更新のサーバー応答。
type AuthResponse struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	Token        string   `json:"token,omitempty"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	User         *User    `json:"user,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// LoginRequest はログインリクエスト。
type LoginRequest struct {
	EmailOrUserName string `json:"emailOrUserName"`
	Password        string `json:"password"`
}

// Validate は送信前の入力検証を行う。
func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.EmailOrUserName) == "" {
		return NewValidationError("emailOrUserName", "メールアドレスまたはユーザー名を入力してください。")
	}
	if r.Password == "" {
		return NewValidationError("password", "パスワードを入力してください。")
	}
	return nil
}

// RegisterRequest はユーザー登録リクエスト。
// ConfirmPassword はPasswordとは別フィールドとしてサーバーに送信される。
type RegisterRequest struct {
	UserName        string `json:"userName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
}

// Validate は送信前の入力検証を行う。
func (r RegisterRequest) Validate() error {
	if strings.TrimSpace(r.UserName) == "" {
		return NewValidationError("userName", "ユーザー名を入力してください。")
	}
	if strings.TrimSpace(r.Email) == "" || !strings.Contains(r.Email, "@") {
		return NewValidationError("email", "有効なメールアドレスを入力してください。")
	}
	if r.Password == "" {
		return NewValidationError("password", "パスワードを入力してください。")
	}
	if r.Password != r.ConfirmPassword {
		return NewValidationError("confirmPassword", "パスワードが一致しません。")
	}
	return nil
}

// PasswordStrength はパスワード強度の判定結果。
type PasswordStrength struct {
	Score     int  `json:"score"` // 0〜5
	Length    bool `json:"length"`
	Lowercase bool `json:"lowercase"`
	Uppercase bool `json:"uppercase"`
	Number    bool `json:"number"`
	Special   bool `json:"special"`
}

// specialChars は強度判定で記号とみなす文字。
const specialChars = `!@#$%^&*(),.?":{}|<>`

// EvaluatePassword はパスワード強度を判定する。判定結果は参考値であり登録を妨げない。
func EvaluatePassword(password string) PasswordStrength {
	s := PasswordStrength{Length: len([]rune(password)) >= 8}
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			s.Lowercase = true
		case unicode.IsUpper(r):
			s.Uppercase = true
		case unicode.IsDigit(r):
			s.Number = true
		case strings.ContainsRune(specialChars, r):
			s.Special = true
		}
	}
	for _, ok := range []bool{s.Length, s.Lowercase, s.Uppercase, s.Number, s.Special} {
		if ok {
			s.Score++
		}
	}
	return s
}

// Label は強度スコアの表示ラベルを返す。
func (s PasswordStrength) Label() string {
	switch {
	case s.Score <= 2:
		return "weak"
	case s.Score == 3:
		return "fair"
	case s.Score == 4:
		return "good"
	default:
		return "strong"
	}
}

// FileUploadResponse は画像アップロードのサーバー応答。
type FileUploadResponse struct {
	Success  bool   `json:"success"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}
