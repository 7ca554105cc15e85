package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, input string) []keyEvent {
	t.Helper()
	d := newKeyDecoder(strings.NewReader(input))
	var events []keyEvent
	for {
		ev, err := d.Next()
		if err != nil {
			return events
		}
		events = append(events, ev)
	}
}

func TestDecodeRunesAndControls(t *testing.T) {
	events := decodeAll(t, "hi\r\x7f\x03\x04\x15\x17")
	require.Len(t, events, 8)
	assert.Equal(t, keyEvent{kind: keyRune, r: 'h'}, events[0])
	assert.Equal(t, keyEvent{kind: keyRune, r: 'i'}, events[1])
	assert.Equal(t, keyEnter, events[2].kind)
	assert.Equal(t, keyBackspace, events[3].kind)
	assert.Equal(t, keyCtrlC, events[4].kind)
	assert.Equal(t, keyCtrlD, events[5].kind)
	assert.Equal(t, keyCtrlU, events[6].kind)
	assert.Equal(t, keyCtrlW, events[7].kind)
}

func TestDecodeEscapeSequences(t *testing.T) {
	tests := []struct {
		seq  string
		want keyKind
	}{
		{"\x1b[A", keyUp},
		{"\x1b[B", keyDown},
		{"\x1b[C", keyRight},
		{"\x1b[D", keyLeft},
		{"\x1b[5~", keyPgUp},
		{"\x1b[6~", keyPgDn},
		{"\x1b[5;5~", keyCtrlPgUp},
		{"\x1b[6;5~", keyCtrlPgDn},
		{"\x1bOA", keyUp},
		{"\x1bOB", keyDown},
		{"\x1bOC", keyRight},
		{"\x1bOD", keyLeft},
	}
	for _, tt := range tests {
		events := decodeAll(t, tt.seq)
		require.Len(t, events, 1, "sequence %q", tt.seq)
		assert.Equal(t, tt.want, events[0].kind, "sequence %q", tt.seq)
	}
}

func TestDecodeUnknownEscapeIgnored(t *testing.T) {
	events := decodeAll(t, "\x1b[99~x")
	require.Len(t, events, 2)
	assert.Equal(t, keyIgnore, events[0].kind)
	assert.Equal(t, keyEvent{kind: keyRune, r: 'x'}, events[1])
}

func TestDecodeLoneEscapeKeepsNextKey(t *testing.T) {
	// An ESC at the end of a read must not block waiting for, or eat,
	// whatever the user types next.
	events := decodeAll(t, "\x1b")
	require.Len(t, events, 1)
	assert.Equal(t, keyIgnore, events[0].kind)

	events = decodeAll(t, "a\x1b")
	require.Len(t, events, 2)
	assert.Equal(t, keyEvent{kind: keyRune, r: 'a'}, events[0])
	assert.Equal(t, keyIgnore, events[1].kind)
}

func TestDecodeUnknownSS3Ignored(t *testing.T) {
	events := decodeAll(t, "\x1bOPx")
	require.Len(t, events, 2)
	assert.Equal(t, keyIgnore, events[0].kind)
	assert.Equal(t, keyEvent{kind: keyRune, r: 'x'}, events[1])
}

func TestDecodeUTF8(t *testing.T) {
	events := decodeAll(t, "日\x1b[Aé")
	require.Len(t, events, 3)
	assert.Equal(t, keyEvent{kind: keyRune, r: '日'}, events[0])
	assert.Equal(t, keyUp, events[1].kind)
	assert.Equal(t, keyEvent{kind: keyRune, r: 'é'}, events[2])
}
