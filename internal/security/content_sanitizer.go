// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は投稿本文のHTMLをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
// MediaGuard は画像プロキシが取得する配信元を許可リストで制限する。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// 投稿詳細の組み立て時に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, hr, h2〜h6, a, ul, ol, li, blockquote, pre, code, strong, em, img, figure, figcaption
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aのhref: https と相対パス（/post/... などブログ内リンク）
//   - imgのsrc: https、または mediaAllowed が許可したhttpの配信元
//   - 外部リンクには target="_blank" と rel="noopener noreferrer" を自動付与
//
// mediaAllowed がnilの場合、httpの画像はすべて除去される。
func NewContentSanitizer(mediaAllowed func(rawURL string) bool) *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "ul", "ol", "li",
		"h2", "h3", "h4", "h5", "h6",
		"blockquote", "pre", "code",
		"strong", "em", "figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})
	// httpは開発用バックエンドのアップロード画像など、許可リストの配信元に限る
	p.AllowURLSchemeWithCustomPolicy("http", func(u *url.URL) bool {
		return mediaAllowed != nil && mediaAllowed(u.String())
	})

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
