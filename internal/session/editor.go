package session

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/itter-sh/itter/internal/textutil"
)

// Editor is a single-line input editor with cursor movement. The
// cursor is a rune index into the buffer; rendering converts it to
// visual columns.
type Editor struct {
	buf    []rune
	cursor int
}

func (e *Editor) String() string { return string(e.buf) }
func (e *Editor) Len() int       { return len(e.buf) }

// Set replaces the buffer and places the cursor at the end. Used when
// recalling history entries.
func (e *Editor) Set(s string) {
	e.buf = []rune(s)
	e.cursor = len(e.buf)
}

// Reset clears the buffer.
func (e *Editor) Reset() { e.Set("") }

// Insert places r at the cursor.
func (e *Editor) Insert(r rune) {
	e.buf = append(e.buf[:e.cursor], append([]rune{r}, e.buf[e.cursor:]...)...)
	e.cursor++
}

// Backspace removes the rune before the cursor. Returns false when
// there was nothing to delete.
func (e *Editor) Backspace() bool {
	if e.cursor == 0 {
		return false
	}
	e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
	e.cursor--
	return true
}

// KillLine clears everything (Ctrl+U).
func (e *Editor) KillLine() bool {
	if len(e.buf) == 0 {
		return false
	}
	e.Reset()
	return true
}

// KillWord removes the word before the cursor plus any trailing spaces
// between it and the cursor (Ctrl+W).
func (e *Editor) KillWord() bool {
	if e.cursor == 0 {
		return false
	}
	i := e.cursor - 1
	for i >= 0 && unicode.IsSpace(e.buf[i]) {
		i--
	}
	for i >= 0 && !unicode.IsSpace(e.buf[i]) {
		i--
	}
	start := i + 1
	e.buf = append(e.buf[:start], e.buf[e.cursor:]...)
	e.cursor = start
	return true
}

// Left moves the cursor one rune left. Returns false at the margin.
func (e *Editor) Left() bool {
	if e.cursor == 0 {
		return false
	}
	e.cursor--
	return true
}

// Right moves the cursor one rune right.
func (e *Editor) Right() bool {
	if e.cursor >= len(e.buf) {
		return false
	}
	e.cursor++
	return true
}

// Redraw returns the escape sequence that repaints the whole input
// line and leaves the terminal cursor at the editor's cursor: carriage
// return, prompt and buffer, erase-to-end, then step left over the
// suffix after the cursor.
func (e *Editor) Redraw(prompt string) string {
	var b strings.Builder
	b.WriteString("\r")
	b.WriteString(prompt)
	b.WriteString(string(e.buf))
	b.WriteString("\x1b[K")
	if back := textutil.VisualWidth(string(e.buf[e.cursor:])); back > 0 {
		fmt.Fprintf(&b, "\x1b[%dD", back)
	}
	return b.String()
}
