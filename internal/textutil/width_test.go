package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisualWidth(t *testing.T) {
	assert.Equal(t, 0, VisualWidth(""))
	assert.Equal(t, 5, VisualWidth("hello"))
	// Wide glyphs count double, escapes count zero.
	assert.Equal(t, 4, VisualWidth("日本"))
	assert.Equal(t, 5, VisualWidth(FgCyan+"hello"+Reset))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxWidth int
		want     string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut with placeholder", "hello world", 8, "hello..."},
		{"no room for placeholder", "hello", 2, "he"},
		{"zero width", "hello", 0, ""},
		{"empty", "", 5, ""},
		{"wide rune not split", "日本語です", 5, "日..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.maxWidth))
		})
	}
}

func TestTruncatePreservesColorCodes(t *testing.T) {
	in := FgRed + "hello world" + Reset
	got := Truncate(in, 8)
	assert.LessOrEqual(t, VisualWidth(got), 8)
	assert.Contains(t, got, FgRed, "escape sequences survive truncation")
	assert.Equal(t, in, Truncate(in, 20), "nothing cut when it fits")
}

func TestTruncateNeverExceedsWidth(t *testing.T) {
	samples := []string{
		"", "a", "hello world", strings.Repeat("x", 500),
		"日本語のテキストが長い場合", "mixed 日本 text", "@ripley #nostromo check this",
		"\x1b[31mred\x1b[0m plain",
	}
	for _, s := range samples {
		for w := 0; w <= 12; w++ {
			got := Truncate(s, w)
			if VisualWidth(got) > w {
				t.Fatalf("Truncate(%q, %d) = %q, width %d", s, w, got, VisualWidth(got))
			}
		}
	}
}

func TestPadToWidth(t *testing.T) {
	assert.Equal(t, "ab   ", PadToWidth("ab", 5))
	assert.Equal(t, "abcdef", PadToWidth("abcdef", 3))
	// Color codes do not consume columns.
	padded := PadToWidth(FgGreen+"ok"+Reset, 4)
	assert.Equal(t, 4, VisualWidth(padded))
	assert.True(t, strings.HasSuffix(padded, "  "))
}

func TestWordWrap(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  []string
	}{
		{"empty", "", 10, []string{""}},
		{"fits", "hello world", 20, []string{"hello world"}},
		{"simple wrap", "one two three four", 9, []string{"one two", "  three", "  four"}},
		{"long word broken", "abcdefghij", 4, []string{"abcd", "  ef", "  gh", "  ij"}},
		{"newlines become spaces", "a\nb\nc", 10, []string{"a b c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WordWrap(tt.in, tt.width))
		})
	}
}

func TestWordWrapNeverExceedsWidth(t *testing.T) {
	samples := []string{
		"the quick brown fox jumps over the lazy dog",
		strings.Repeat("longword", 10),
		"日本語 テキスト の 折り返し",
	}
	for _, s := range samples {
		for w := 2; w <= 15; w++ {
			for _, line := range WordWrap(s, w) {
				if VisualWidth(line) > w {
					t.Fatalf("WordWrap(%q, %d) produced line %q of width %d", s, w, line, VisualWidth(line))
				}
			}
		}
	}
}
