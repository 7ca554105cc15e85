package session

// History is a bounded command history with arrow-key scrolling.
// Scrolling up walks from the newest entry backwards; scrolling past
// the newest entry again returns an empty line.
type History struct {
	entries []string
	max     int
	cursor  int // -1 means not scrolling
}

func NewHistory(max int) *History {
	if max < 1 {
		max = 1
	}
	return &History{max: max, cursor: -1}
}

// Add appends a command and resets the scroll position. Consecutive
// duplicates are collapsed.
func (h *History) Add(cmd string) {
	h.cursor = -1
	if cmd == "" {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == cmd {
		return
	}
	h.entries = append(h.entries, cmd)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// Up moves one entry back in time and returns it. At the oldest entry
// it stays put.
func (h *History) Up() string {
	if len(h.entries) == 0 {
		return ""
	}
	if h.cursor == -1 {
		h.cursor = len(h.entries) - 1
	} else if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor]
}

// Down moves one entry forward. Past the newest entry it leaves
// scrolling mode and returns "".
func (h *History) Down() string {
	if h.cursor == -1 {
		return ""
	}
	h.cursor++
	if h.cursor >= len(h.entries) {
		h.cursor = -1
		return ""
	}
	return h.entries[h.cursor]
}
