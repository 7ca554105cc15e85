// Package textutil provides width-aware string helpers for rendering
// to remote terminals: ANSI-stripped measurement, truncation, padding,
// word wrapping, and hashtag/mention highlighting.
package textutil

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// SGR codes written straight to the client PTY. The client terminal
// interprets them, so no local color-profile detection applies.
const (
	Reset     = "\x1b[0m"
	Bold      = "\x1b[1m"
	Dim       = "\x1b[2m"
	Underline = "\x1b[4m"

	FgRed          = "\x1b[31m"
	FgGreen        = "\x1b[32m"
	FgYellow       = "\x1b[33m"
	FgMagenta      = "\x1b[35m"
	FgCyan         = "\x1b[36m"
	FgBrightBlack  = "\x1b[90m"
	FgBrightYellow = "\x1b[93m"
)

// Strip removes all ANSI escape sequences from s.
func Strip(s string) string {
	return ansi.Strip(s)
}

// Go's regexp has no lookbehind, so the "not preceded by a word
// character" boundary is an explicit leading group.
var highlightRE = regexp.MustCompile(`(^|[^0-9A-Za-z_])(#\w(?:[\w-]*\w)?|@\w{3,20})`)

// Highlight colorizes hashtags and @-mentions in eet content.
// Mentions of viewer are drawn in the viewer's own color. Content must
// be plain text: callers wrap and truncate first, then highlight.
func Highlight(content, viewer string) string {
	return highlightRE.ReplaceAllStringFunc(content, func(m string) string {
		sub := highlightRE.FindStringSubmatch(m)
		prefix, token := sub[1], sub[2]
		switch token[0] {
		case '#':
			return prefix + FgMagenta + token + Reset
		case '@':
			if viewer != "" && strings.EqualFold(token[1:], viewer) {
				return prefix + FgBrightYellow + token + Reset
			}
			return prefix + FgCyan + token + Reset
		}
		return m
	})
}
