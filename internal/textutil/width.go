package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// VisualWidth returns the number of terminal columns s occupies.
// ANSI escape sequences are stripped before measuring; wide East-Asian
// glyphs count as two columns, combining marks as zero.
func VisualWidth(s string) int {
	return runewidth.StringWidth(Strip(s))
}

// Truncate shortens s to at most maxWidth visual columns, appending
// "..." when something was cut and there is room for it. ANSI escape
// sequences are preserved and cost no columns.
func Truncate(s string, maxWidth int) string {
	return TruncateWith(s, maxWidth, "...")
}

// TruncateWith is Truncate with a caller-chosen placeholder. The
// returned string never exceeds maxWidth columns and never splits a
// wide rune.
func TruncateWith(s string, maxWidth int, placeholder string) string {
	if maxWidth <= 0 {
		return ""
	}
	if VisualWidth(s) <= maxWidth {
		return s
	}
	if maxWidth < runewidth.StringWidth(placeholder) {
		// No room for the placeholder, hard cut.
		return ansi.Truncate(s, maxWidth, "")
	}
	return ansi.Truncate(s, maxWidth, placeholder)
}

// cutToWidth returns the longest prefix of s with visual width <= w.
func cutToWidth(s string, w int) string {
	width := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if width+rw > w {
			return s[:i]
		}
		width += rw
	}
	return s
}

// PadToWidth right-pads s with spaces to exactly w visual columns,
// measuring the ANSI-stripped text so embedded color codes do not
// shift the padding. Strings already wider than w are returned as-is.
func PadToWidth(s string, w int) string {
	gap := w - VisualWidth(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

// WordWrap wraps plain text to the given visual width. Words longer
// than a full line are broken. Continuation lines are indented two
// spaces to match the timeline content column layout. Newlines in the
// input are treated as spaces; the result is never empty.
func WordWrap(s string, width int) []string {
	if width < 1 {
		width = 1
	}
	indent := "  "
	if runewidth.StringWidth(indent) >= width {
		indent = ""
	}

	words := strings.Fields(strings.NewReplacer("\r", "", "\n", " ").Replace(s))
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	line := ""
	push := func() {
		lines = append(lines, line)
		line = indent
	}

	for _, word := range words {
		for {
			sep := ""
			if line != "" && line != indent {
				sep = " "
			}
			if runewidth.StringWidth(line)+len(sep)+runewidth.StringWidth(word) <= width {
				line += sep + word
				break
			}
			// The word does not fit on this line. If it cannot fit on
			// any line, split it and fill the remaining columns.
			avail := width - runewidth.StringWidth(line) - len(sep)
			if runewidth.StringWidth(word) > width-runewidth.StringWidth(indent) && avail > 0 {
				head := cutToWidth(word, avail)
				if head == "" && line == indent {
					// A single rune wider than the line; take it anyway
					// so the loop makes progress.
					_, size := utf8.DecodeRuneInString(word)
					head = word[:size]
				}
				if head != "" {
					line += sep + head
					word = word[len(head):]
				}
			}
			push()
		}
	}
	if line != "" && line != indent {
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
