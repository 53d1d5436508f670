package post

import (
	"strings"
	"testing"
)

func TestPlainText_StripsTagsAndScripts(t *testing.T) {
	in := `<h1>Title</h1><p>Hello <strong>world</strong></p><script>alert(1)</script><style>p{}</style><p>bye</p>`
	got := PlainText(in)
	want := "Title Hello world bye"
	if got != want {
		t.Errorf("PlainText = %q, want %q", got, want)
	}
}

func TestReadTime(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  int
	}{
		{"empty", 0, 1},
		{"short", 50, 1},
		{"exactly 200", 200, 1},
		{"201 words", 201, 2},
		{"1000 words", 1000, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "<p>" + strings.Repeat("word ", tt.words) + "</p>"
			if got := ReadTime(content); got != tt.want {
				t.Errorf("ReadTime(%d words) = %d, want %d", tt.words, got, tt.want)
			}
		})
	}
}

func TestExcerpt_ShortContentUnchanged(t *testing.T) {
	if got := Excerpt("<p>Short post</p>", 50); got != "Short post" {
		t.Errorf("Excerpt = %q, want %q", got, "Short post")
	}
}

func TestExcerpt_TruncatesAtWordBoundary(t *testing.T) {
	got := Excerpt("<p>The quick brown fox jumps over the lazy dog</p>", 18)
	if got != "The quick brown..." {
		t.Errorf("Excerpt = %q, want %q", got, "The quick brown...")
	}
}

func TestExcerpt_DefaultLength(t *testing.T) {
	got := Excerpt(strings.Repeat("abcd ", 100), 0)
	if len([]rune(got)) > defaultExcerptLength+3 {
		t.Errorf("Excerpt length = %d, want <= %d", len([]rune(got)), defaultExcerptLength+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Excerpt = %q, want ... suffix", got)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Go  &  Rust!! ", "go-rust"},
		{"already-a-slug", "already-a-slug"},
		{"Multiple---dashes", "multiple-dashes"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
