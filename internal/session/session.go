// Package session implements the interactive itter shell that runs on
// top of an SSH channel: line editing, command dispatch, timeline
// rendering and the live watch view.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gliderlabs/ssh"
	"golang.org/x/time/rate"

	"github.com/itter-sh/itter/internal/config"
	"github.com/itter-sh/itter/internal/notify"
	"github.com/itter-sh/itter/internal/parse"
	"github.com/itter-sh/itter/internal/store"
)

// errExit signals a user-requested disconnect, as opposed to an I/O
// failure.
var errExit = errors.New("session exit")

// Deps bundles the shared server components a session talks to.
type Deps struct {
	Store    store.Store
	Hub      *notify.Hub
	Registry *Registry
	Renderer *Renderer
	Config   config.Config
	Logger   *slog.Logger

	// Announce publishes a new-post event to watchers, locally and,
	// when the Pub/Sub bridge is up, across instances.
	Announce func(context.Context, notify.Event)
}

// Session is the per-connection shell state. All fields are owned by
// the Run goroutine; nothing else touches them.
type Session struct {
	deps   Deps
	user   store.User
	ipHash string
	out    io.Writer
	log    *slog.Logger

	width  int
	height int

	editor  Editor
	history *History

	filter    parse.Filter
	page      int
	pageSize  int
	lastCount int // -1 until a timeline was fetched

	watching      bool
	sidebar       []string
	sidebarScroll int
	refresh       *time.Ticker // live only while watching

	eetLimiter *rate.Limiter
}

// New prepares a session for a logged-in user. out is the client's
// terminal.
func New(deps Deps, user store.User, out io.Writer, ipHash string, width, height int) *Session {
	limit := deps.Config.UI.EetsPerMinuteLimit
	if limit < 1 {
		limit = 1
	}
	return &Session{
		deps:       deps,
		user:       user,
		ipHash:     ipHash,
		out:        out,
		log:        deps.Logger.With("user", user.Username),
		width:      width,
		height:     height,
		history:    NewHistory(config.HistorySize),
		filter:     parse.Filter{Kind: parse.FilterAll},
		page:       1,
		pageSize:   config.DefaultPageSize,
		lastCount:  -1,
		eetLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit)), limit),
	}
}

func (s *Session) prompt() string {
	return fmt.Sprintf("(%s)itter> ", s.user.Username)
}

// write sends text to the terminal, normalizing newlines to CRLF and
// terminating with one unless newline is false.
func (s *Session) write(msg string, newline bool) {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\n", "\r\n")
	if newline && !strings.HasSuffix(msg, "\r\n") {
		msg += "\r\n"
	}
	if _, err := io.WriteString(s.out, msg); err != nil {
		s.log.Debug("terminal write failed", "error", err)
	}
}

func (s *Session) writeLine(msg string) { s.write(msg, true) }

func (s *Session) clearScreen() {
	s.write("\x1b[2J\x1b[H", false)
}

func (s *Session) showPrompt() {
	s.write(s.prompt(), false)
}

// redrawInput repaints the prompt and the editor buffer, keeping the
// cursor where the editor says it is.
func (s *Session) redrawInput() {
	s.write(s.editor.Redraw(s.prompt()), false)
}

// Run drives the session until the client disconnects, the user exits
// or ctx is canceled. It owns all session state; key input, resize
// events, the watch refresh ticker and new-post pokes are serialized
// through its select loop.
func (s *Session) Run(ctx context.Context, input io.Reader, winCh <-chan ssh.Window) error {
	s.deps.Registry.Add(s.user.Username)
	defer s.deps.Registry.Remove(s.user.Username)

	keys := make(chan keyEvent, 16)
	go readKeys(input, keys)

	events, cancelSub := s.deps.Hub.Subscribe()
	defer cancelSub()
	defer s.stopRefresh()

	s.showWelcome()
	s.showPrompt()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case w, ok := <-winCh:
			if !ok {
				winCh = nil
				continue
			}
			if w.Width > 0 {
				s.width = w.Width
			}
			if w.Height > 0 {
				s.height = w.Height
			}
			if s.watching {
				s.refreshWatch(ctx, s.page)
			}

		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			if err := s.handleKey(ctx, ev); err != nil {
				if errors.Is(err, errExit) {
					return nil
				}
				return err
			}

		case <-s.refreshC():
			if s.watching {
				s.refreshWatch(ctx, 1)
			}

		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.watching {
				s.refreshWatch(ctx, 1)
			}
		}
	}
}

func (s *Session) showWelcome() {
	s.clearScreen()
	s.writeLine(Banner)
	s.writeLine("")
	s.writeLine(helpText())
}

func (s *Session) handleKey(ctx context.Context, ev keyEvent) error {
	switch ev.kind {
	case keyEnter:
		s.write("\r\n", false)
		line := s.editor.String()
		s.editor.Reset()
		if strings.TrimSpace(line) == "" {
			s.showPrompt()
			return nil
		}
		s.history.Add(strings.TrimSpace(line))
		return s.dispatch(ctx, line)

	case keyBackspace:
		if s.editor.Backspace() {
			s.redrawInput()
		}

	case keyCtrlC:
		s.write("^C\r\n", false)
		return errExit

	case keyCtrlD:
		s.write("^D\r\n", false)
		return errExit

	case keyCtrlU:
		if s.editor.KillLine() {
			s.redrawInput()
		}

	case keyCtrlW:
		if s.editor.KillWord() {
			s.redrawInput()
		}

	case keyUp:
		s.editor.Set(s.history.Up())
		s.redrawInput()

	case keyDown:
		s.editor.Set(s.history.Down())
		s.redrawInput()

	case keyLeft:
		if s.editor.Left() {
			s.write("\x1b[D", false)
		}

	case keyRight:
		if s.editor.Right() {
			s.write("\x1b[C", false)
		}

	case keyPgUp:
		s.pageUp(ctx)

	case keyPgDn:
		s.pageDown(ctx)

	case keyCtrlPgUp:
		if s.watching {
			s.sidebarScroll -= s.deps.Config.UI.SidebarScrollStep
			if s.sidebarScroll < 0 {
				s.sidebarScroll = 0
			}
			s.refreshWatch(ctx, s.page)
		}

	case keyCtrlPgDn:
		if s.watching {
			max := s.deps.Renderer.MaxSidebarScroll(len(s.sidebar), s.height)
			s.sidebarScroll += s.deps.Config.UI.SidebarScrollStep
			if s.sidebarScroll > max {
				s.sidebarScroll = max
			}
			s.refreshWatch(ctx, s.page)
		}

	case keyRune:
		s.editor.Insert(ev.r)
		s.redrawInput()
	}
	return nil
}

func (s *Session) pageUp(ctx context.Context) {
	switch {
	case s.watching:
		if s.page > 1 {
			s.refreshWatch(ctx, s.page-1)
		} else {
			s.writeLine("\nAlready at the first page of timeline.")
			s.redrawInput()
		}
	case s.lastCount >= 0:
		if s.page > 1 {
			s.page--
			s.renderStatic(ctx, "")
		} else {
			s.writeLine("\nAlready at the first page.")
			s.showPrompt()
		}
	}
}

func (s *Session) pageDown(ctx context.Context) {
	switch {
	case s.watching:
		if s.lastCount >= s.pageSize {
			s.refreshWatch(ctx, s.page+1)
		} else {
			s.writeLine("\nAlready at the last page of timeline or no more items.")
			s.redrawInput()
		}
	case s.lastCount >= 0:
		if s.lastCount >= s.pageSize {
			s.page++
			s.renderStatic(ctx, "")
		} else {
			s.writeLine("\nAlready at the last page or no more items.")
			s.showPrompt()
		}
	}
}

// renderStatic fetches and prints the current page of the static
// timeline. notice, if any, is printed after the clear so the user
// actually sees it.
func (s *Session) renderStatic(ctx context.Context, notice string) {
	posts, err := s.deps.Store.Timeline(ctx, s.user.Username, s.filter, s.page, s.pageSize)
	if err != nil {
		s.log.Error("timeline fetch failed", "error", err)
		s.writeLine("An unexpected server error occurred.")
		s.showPrompt()
		return
	}
	s.lastCount = len(posts)
	s.clearScreen()
	s.writeLine(s.deps.Renderer.StaticTimeline(s.user.Username, posts, s.filter, s.page, s.pageSize, s.width))
	if notice != "" {
		s.writeLine(notice)
	}
	s.showPrompt()
}

// refreshWatch repaints the whole watch screen at the given timeline
// page, keeping the sidebar scroll position.
func (s *Session) refreshWatch(ctx context.Context, page int) {
	if !s.watching {
		return
	}
	s.page = page
	posts, err := s.deps.Store.Timeline(ctx, s.user.Username, s.filter, s.page, s.pageSize)
	if err != nil {
		s.log.Error("watch refresh failed", "error", err)
		s.clearScreen()
		s.writeLine("An unexpected server error occurred.")
		s.redrawInput()
		return
	}
	s.lastCount = len(posts)
	s.updateSidebar(ctx)

	screen := s.deps.Renderer.WatchScreen(s.user.Username, posts, s.filter,
		s.page, s.pageSize, s.sidebar, s.sidebarScroll, s.width, s.height)
	s.clearScreen()
	s.writeLine(screen)
	s.redrawInput()
}

// updateSidebar rebuilds the sidebar entries from the online user
// registry and the viewer's follow list.
func (s *Session) updateSidebar(ctx context.Context) {
	online := s.deps.Registry.Usernames()
	followed := make(map[string]bool)
	following, err := s.deps.Store.Following(ctx, s.user.Username)
	if err != nil {
		s.log.Error("sidebar follow list failed", "error", err)
	} else {
		for _, rel := range following {
			followed[strings.ToLower(rel.Username)] = true
		}
	}
	s.sidebar = s.deps.Renderer.SidebarEntries(s.user.Username, online, followed)
	if max := s.deps.Renderer.MaxSidebarScroll(len(s.sidebar), s.height); s.sidebarScroll > max {
		s.sidebarScroll = max
	}
}

// startRefresh (re)starts the watch ticker so the first automatic
// refresh lands a full interval after watch entry, not at whatever
// phase a long-lived ticker happens to be in.
func (s *Session) startRefresh() {
	interval := s.deps.Config.UI.RefreshInterval()
	if s.refresh == nil {
		s.refresh = time.NewTicker(interval)
		return
	}
	s.refresh.Reset(interval)
}

func (s *Session) stopRefresh() {
	if s.refresh != nil {
		s.refresh.Stop()
		s.refresh = nil
	}
}

// refreshC is nil outside watch mode, so the select in Run never
// fires a stale tick.
func (s *Session) refreshC() <-chan time.Time {
	if s.refresh == nil {
		return nil
	}
	return s.refresh.C
}

// stopWatch leaves watch mode and restores the normal screen.
func (s *Session) stopWatch() {
	s.watching = false
	s.stopRefresh()
	s.sidebar = nil
	s.sidebarScroll = 0
	s.clearScreen()
	s.writeLine(Banner)
	s.writeLine("")
	s.writeLine(helpText())
	s.showPrompt()
}
