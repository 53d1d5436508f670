package post

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// wordsPerMinute は読了時間の推定に使う読書速度。
	wordsPerMinute = 200
	// defaultExcerptLength は抜粋の最大文字数。
	defaultExcerptLength = 160
)

// PlainText はHTML本文からテキストだけを取り出し、空白を1つにまとめて返す。
// script/style要素の中身は含めない。
func PlainText(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if isHiddenElement(string(name)) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isHiddenElement(string(name)) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHiddenElement(name string) bool {
	return name == "script" || name == "style"
}

// ReadTime は本文の語数から読了時間（分）を推定する。最小1分。
func ReadTime(content string) int {
	words := len(strings.Fields(PlainText(content)))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Excerpt は本文の先頭から抜粋を作る。maxLenを超える場合は単語境界で切り、末尾に"..."を付ける。
// maxLenが0以下の場合はデフォルトの長さを使う。
func Excerpt(content string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultExcerptLength
	}
	text := PlainText(content)
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:maxLen])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// Slug はタイトルからURL用のスラッグを生成する。
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
