package session

import (
	"bufio"
	"io"
	"unicode/utf8"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyCtrlC
	keyCtrlD
	keyCtrlU
	keyCtrlW
	keyUp
	keyDown
	keyLeft
	keyRight
	keyPgUp
	keyPgDn
	keyCtrlPgUp
	keyCtrlPgDn
	keyIgnore
)

type keyEvent struct {
	kind keyKind
	r    rune
}

// keyDecoder turns the raw byte stream of an SSH channel into key
// events: UTF-8 runes, control characters and CSI escape sequences.
type keyDecoder struct {
	br *bufio.Reader
}

func newKeyDecoder(r io.Reader) *keyDecoder {
	return &keyDecoder{br: bufio.NewReader(r)}
}

// Next blocks until a full key event is available. Unrecognized input
// comes back as keyIgnore so callers can keep a simple loop.
func (d *keyDecoder) Next() (keyEvent, error) {
	b, err := d.br.ReadByte()
	if err != nil {
		return keyEvent{}, err
	}
	switch b {
	case '\r', '\n':
		return keyEvent{kind: keyEnter}, nil
	case 0x7f, 0x08:
		return keyEvent{kind: keyBackspace}, nil
	case 0x03:
		return keyEvent{kind: keyCtrlC}, nil
	case 0x04:
		return keyEvent{kind: keyCtrlD}, nil
	case 0x15:
		return keyEvent{kind: keyCtrlU}, nil
	case 0x17:
		return keyEvent{kind: keyCtrlW}, nil
	case 0x1b:
		return d.escape()
	}
	if b < 0x20 {
		return keyEvent{kind: keyIgnore}, nil
	}
	if b < utf8.RuneSelf {
		return keyEvent{kind: keyRune, r: rune(b)}, nil
	}
	return d.multibyte(b)
}

// escape consumes an ESC-prefixed sequence: CSI (ESC [) or SS3 (ESC O,
// sent for arrows by terminals in application cursor mode). A lone ESC
// with nothing buffered behind it is dropped without consuming the
// next keypress; other unknown sequences are ignored.
func (d *keyDecoder) escape() (keyEvent, error) {
	if d.br.Buffered() == 0 {
		return keyEvent{kind: keyIgnore}, nil
	}
	b, err := d.br.ReadByte()
	if err != nil {
		return keyEvent{}, err
	}
	if b == 'O' {
		c, err := d.br.ReadByte()
		if err != nil {
			return keyEvent{}, err
		}
		switch c {
		case 'A':
			return keyEvent{kind: keyUp}, nil
		case 'B':
			return keyEvent{kind: keyDown}, nil
		case 'C':
			return keyEvent{kind: keyRight}, nil
		case 'D':
			return keyEvent{kind: keyLeft}, nil
		}
		return keyEvent{kind: keyIgnore}, nil
	}
	if b != '[' {
		return keyEvent{kind: keyIgnore}, nil
	}
	var seq []byte
	for {
		c, err := d.br.ReadByte()
		if err != nil {
			return keyEvent{}, err
		}
		seq = append(seq, c)
		// Final bytes of a CSI sequence are in the 0x40..0x7e range.
		if c >= 0x40 && c <= 0x7e {
			break
		}
		if len(seq) > 16 {
			return keyEvent{kind: keyIgnore}, nil
		}
	}
	switch string(seq) {
	case "A":
		return keyEvent{kind: keyUp}, nil
	case "B":
		return keyEvent{kind: keyDown}, nil
	case "C":
		return keyEvent{kind: keyRight}, nil
	case "D":
		return keyEvent{kind: keyLeft}, nil
	case "5~":
		return keyEvent{kind: keyPgUp}, nil
	case "6~":
		return keyEvent{kind: keyPgDn}, nil
	case "5;5~":
		return keyEvent{kind: keyCtrlPgUp}, nil
	case "6;5~":
		return keyEvent{kind: keyCtrlPgDn}, nil
	}
	return keyEvent{kind: keyIgnore}, nil
}

func (d *keyDecoder) multibyte(first byte) (keyEvent, error) {
	buf := []byte{first}
	for !utf8.FullRune(buf) && len(buf) < utf8.UTFMax {
		b, err := d.br.ReadByte()
		if err != nil {
			return keyEvent{}, err
		}
		buf = append(buf, b)
	}
	r, _ := utf8.DecodeRune(buf)
	if r == utf8.RuneError {
		return keyEvent{kind: keyIgnore}, nil
	}
	return keyEvent{kind: keyRune, r: r}, nil
}

// readKeys pumps decoded key events into out until the reader fails,
// then closes out.
func readKeys(r io.Reader, out chan<- keyEvent) {
	defer close(out)
	d := newKeyDecoder(r)
	for {
		ev, err := d.Next()
		if err != nil {
			return
		}
		if ev.kind == keyIgnore {
			continue
		}
		out <- ev
	}
}
