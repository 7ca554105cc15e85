package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/itter-sh/itter/internal/config"
	"github.com/itter-sh/itter/internal/parse"
	"github.com/itter-sh/itter/internal/store"
	"github.com/itter-sh/itter/internal/textutil"
)

// Static timeline column layout.
const (
	staticTimeWidth = 12
	staticUserWidth = 20
	staticSepWidth  = 3
)

// Watch mode column layout.
const (
	watchTimeWidth = 10
	watchUserWidth = 18
	watchColSeps   = 4 // two 2-space separators
)

// Renderer turns posts into terminal output. It holds no per-session
// state beyond the layout configuration, so a single renderer serves
// all sessions.
type Renderer struct {
	UI  config.UIConfig
	Now func() time.Time
}

func NewRenderer(ui config.UIConfig) *Renderer {
	return &Renderer{UI: ui, Now: time.Now}
}

// BodyHeight is how many scrollable body rows fit on a terminal of the
// given height in watch mode.
func (r *Renderer) BodyHeight(termHeight int) int {
	h := termHeight - r.UI.HeaderRows - r.UI.FooterRows - r.UI.PromptRows
	if h < 1 {
		h = 1
	}
	return h
}

// baseCommand reconstructs the timeline command that produced the
// filter, for the pagination hints in the footer.
func baseCommand(f parse.Filter) string {
	switch f.Kind {
	case parse.FilterUser:
		return "timeline @" + f.Value
	case parse.FilterChannel:
		return "timeline #" + f.Value
	case parse.FilterMine:
		return "timeline mine"
	default:
		return "timeline"
	}
}

// userColumn renders an author cell: display name with handle when
// set, truncated, highlighted when the author is the viewer, padded to
// width columns.
func userColumn(viewer string, p store.Post, width int) string {
	cell := "@" + p.Username
	if p.DisplayName != "" {
		cell = fmt.Sprintf("%s (%s)", p.DisplayName, cell)
	}
	cell = textutil.Truncate(cell, width)
	colored := cell
	if strings.EqualFold(p.Username, viewer) {
		colored = textutil.FgBrightYellow + cell + textutil.Reset
	}
	return textutil.PadToWidth(colored, width)
}

// StaticTimeline renders the scrollback-friendly timeline used by the
// timeline command.
func (r *Renderer) StaticTimeline(viewer string, posts []store.Post, f parse.Filter, page, pageSize, termWidth int) string {
	eetWidth := termWidth - staticTimeWidth - staticUserWidth - staticSepWidth*2 - 2
	if eetWidth < 10 {
		eetWidth = 10
	}
	title := f.Title()

	var out []string
	out = append(out, fmt.Sprintf("%s--- %s (Page %d, %d items) ---%s",
		textutil.Bold, title, page, pageSize, textutil.Reset))
	out = append(out, fmt.Sprintf("%-*s   %-*s   %-*s",
		staticTimeWidth, "Time", staticUserWidth, "User", eetWidth, "Eet"))
	ruleWidth := staticTimeWidth + staticUserWidth + eetWidth + staticSepWidth*2
	if ruleWidth > termWidth {
		ruleWidth = termWidth
	}
	out = append(out, textutil.FgBrightBlack+strings.Repeat("-", ruleWidth)+textutil.Reset)

	if len(posts) == 0 {
		if page == 1 {
			out = append(out, " No eets found.")
		} else {
			out = append(out, fmt.Sprintf(" End of timeline for %s.", title))
		}
	}
	now := r.Now()
	indent := strings.Repeat(" ", staticTimeWidth+staticSepWidth+staticUserWidth+staticSepWidth)
	for _, p := range posts {
		timeCell := fmt.Sprintf("%-*s", staticTimeWidth, textutil.TimeAgo(p.CreatedAt, now))
		userCell := userColumn(viewer, p, staticUserWidth)
		content := strings.NewReplacer("\r", "", "\n", " ").Replace(p.Content)
		lines := textutil.WordWrap(textutil.Strip(content), eetWidth)
		out = append(out, fmt.Sprintf("%s   %s   %s",
			timeCell, userCell, textutil.Highlight(lines[0], viewer)))
		for _, line := range lines[1:] {
			out = append(out, indent+textutil.Highlight(line, viewer))
		}
	}

	base := baseCommand(f)
	var footer string
	switch {
	case len(posts) == 0 && page > 1:
		footer = fmt.Sprintf("No more eets on page %d. Type `%s %d` for previous.", page, base, page-1)
	case len(posts) >= pageSize:
		footer = fmt.Sprintf("Type `%s %d` for more, or `%s %d` for previous (if page > 1).", base, page+1, base, page-1)
	case len(posts) > 0:
		footer = fmt.Sprintf("End of results on page %d.", page)
		if page > 1 {
			footer += fmt.Sprintf(" Type `%s %d` for previous.", base, page-1)
		}
	}
	if footer != "" {
		out = append(out, "", footer)
	}
	return strings.Join(out, "\r\n")
}

// SidebarEntries builds the sidebar user list: the viewer first, then
// followed users marked with a star, then everyone else, each group
// alphabetized. Entries are pre-truncated and colored but not padded.
func (r *Renderer) SidebarEntries(viewer string, online []string, followed map[string]bool) []string {
	rank := func(name string) int {
		switch {
		case strings.EqualFold(name, viewer):
			return 0
		case followed[strings.ToLower(name)]:
			return 1
		default:
			return 2
		}
	}
	sorted := make([]string, len(online))
	copy(sorted, online)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if rank(a) != rank(b) {
			return rank(a) < rank(b)
		}
		return strings.ToLower(a) < strings.ToLower(b)
	})

	entries := make([]string, 0, len(sorted))
	for _, name := range sorted {
		var entry string
		switch {
		case strings.EqualFold(name, viewer):
			entry = "  " + textutil.FgBrightYellow + "@" + name + textutil.Reset
		case followed[strings.ToLower(name)]:
			entry = textutil.FgGreen + "*" + textutil.Reset + " @" + name
		default:
			entry = "  @" + name
		}
		entries = append(entries, textutil.Truncate(entry, r.UI.SidebarWidth-1))
	}
	return entries
}

// watchBody renders the timeline pane of the watch screen: wrapped
// posts separated by blank lines, every line padded to width, the
// whole thing cut or padded to exactly height rows.
func (r *Renderer) watchBody(viewer string, posts []store.Post, width, height int) []string {
	blank := strings.Repeat(" ", width)
	var out []string
	if len(posts) == 0 {
		for i := 0; i < height; i++ {
			out = append(out, blank)
		}
		return out
	}

	eetWidth := width - watchTimeWidth - watchUserWidth - watchColSeps
	if eetWidth < 10 {
		eetWidth = 10
	}
	now := r.Now()
	indent := strings.Repeat(" ", watchTimeWidth+2+watchUserWidth+2)

	for idx, p := range posts {
		if len(out) >= height {
			break
		}
		timeCell := fmt.Sprintf("%-*s", watchTimeWidth, textutil.TimeAgo(p.CreatedAt, now))
		userCell := userColumn(viewer, p, watchUserWidth)
		content := strings.NewReplacer("\r", "", "\n", " ").Replace(p.Content)
		lines := textutil.WordWrap(textutil.Strip(content), eetWidth)
		for i, line := range lines {
			if len(out) >= height {
				break
			}
			prefix := indent
			if i == 0 {
				prefix = timeCell + "  " + userCell + "  "
			}
			out = append(out, textutil.PadToWidth(prefix+textutil.Highlight(line, viewer), width))
		}
		if idx < len(posts)-1 && len(out) < height {
			out = append(out, blank)
		}
	}
	for len(out) < height {
		out = append(out, blank)
	}
	return out
}

// WatchScreen composes the full dual-pane watch display: three header
// rows, the timeline and sidebar bodies side by side, and a status
// footer. sidebar entries come from SidebarEntries; scroll is the
// sidebar scroll offset.
func (r *Renderer) WatchScreen(viewer string, posts []store.Post, f parse.Filter, page, pageSize int, sidebar []string, scroll, termWidth, termHeight int) string {
	sidebarW := r.UI.SidebarWidth
	separator := " " + textutil.FgBrightBlack + "|" + textutil.Reset + " "
	timelineW := termWidth - sidebarW - textutil.VisualWidth(separator)
	if timelineW < r.UI.MinTimelineWidth {
		timelineW = r.UI.MinTimelineWidth
	}
	bodyHeight := r.BodyHeight(termHeight)
	title := f.Title()

	pad := func(s string, w int) string { return textutil.PadToWidth(textutil.Truncate(s, w), w) }

	var out []string

	// Header rows.
	tlTitle := textutil.Bold + textutil.Truncate(
		fmt.Sprintf("--- %s (Page %d, %d per page) ---", title, page, pageSize), timelineW) + textutil.Reset
	sbTitle := textutil.Bold + fmt.Sprintf("Souls Connected (%d)", len(sidebar)) + textutil.Reset
	out = append(out, pad(tlTitle, timelineW)+separator+pad(sbTitle, sidebarW))

	eetW := timelineW - watchTimeWidth - watchUserWidth - watchColSeps
	if eetW < 10 {
		eetW = 10
	}
	tlCols := fmt.Sprintf("%-*s  %-*s  %-*s", watchTimeWidth, "Time", watchUserWidth, "User", eetW, "Eet")
	sbRule := textutil.FgBrightBlack + strings.Repeat("-", sidebarW) + textutil.Reset
	out = append(out, pad(tlCols, timelineW)+separator+pad(sbRule, sidebarW))

	tlRule := textutil.FgBrightBlack + strings.Repeat("-", timelineW) + textutil.Reset
	out = append(out, pad(tlRule, timelineW)+separator+strings.Repeat(" ", sidebarW))

	// Body rows.
	body := r.watchBody(viewer, posts, timelineW, bodyHeight)
	visible := sidebarWindow(sidebar, scroll, bodyHeight)
	for i := 0; i < bodyHeight; i++ {
		side := strings.Repeat(" ", sidebarW)
		if i < len(visible) {
			side = textutil.PadToWidth(visible[i], sidebarW)
		}
		out = append(out, body[i]+separator+side)
	}

	footer := fmt.Sprintf("Live updating %s... %s(PgUp/PgDn to scroll. 'exit' to stop)%s",
		title, textutil.FgBrightBlack, textutil.Reset)
	out = append(out, textutil.Truncate(footer, termWidth))

	return strings.Join(out, "\r\n")
}

// sidebarWindow slices the visible portion of the sidebar list.
func sidebarWindow(entries []string, scroll, height int) []string {
	if scroll < 0 {
		scroll = 0
	}
	if scroll >= len(entries) {
		return nil
	}
	end := scroll + height
	if end > len(entries) {
		end = len(entries)
	}
	return entries[scroll:end]
}

// MaxSidebarScroll is the largest useful scroll offset for a sidebar
// of n entries on a terminal of the given height.
func (r *Renderer) MaxSidebarScroll(n, termHeight int) int {
	m := n - r.BodyHeight(termHeight)
	if m < 0 {
		m = 0
	}
	return m
}
