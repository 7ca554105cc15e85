package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/itter-sh/itter/internal/config"
	"github.com/itter-sh/itter/internal/notify"
	"github.com/itter-sh/itter/internal/parse"
	"github.com/itter-sh/itter/internal/store"
	"github.com/itter-sh/itter/internal/textutil"
)

func helpText() string {
	b, g, r := textutil.Bold, textutil.FgBrightBlack, textutil.Reset
	return "\nitter.sh Commands:\n" +
		fmt.Sprintf("  %se%set %s<text>%s                     - Post an eet (max %d chars).\n", b, r, g, r, config.EetMaxLength) +
		fmt.Sprintf("  %sw%satch %s[mine|all|#chan|@user]%s   - Live timeline view (Default: all).\n", b, r, g, r) +
		fmt.Sprintf("  %st%sime%sl%sine %s[mine|all|#chan|@user] [<page>]%s - Show eets (Default: all, 1).\n", b, r, b, r, g, r) +
		fmt.Sprintf("  %sf%sollow %s[#chan|@user] --list%s    - Follow a user or channel, list follows.\n", b, r, g, r) +
		fmt.Sprintf("  %su%sn%sf%sollow %s[#chan|@user]%s         - Unfollow a user or channel.\n", b, r, b, r, g, r) +
		fmt.Sprintf("  %si%sgnore %s@<user> --list%s          - Ignore a user, list ignores.\n", b, r, g, r) +
		fmt.Sprintf("  %su%sn%si%sgnore %s@<user>%s               - Unignore a user.\n", b, r, b, r, g, r) +
		fmt.Sprintf("  %sp%srofile %s[@<user>]%s              - View user profile (yours or another's).\n", b, r, g, r) +
		fmt.Sprintf("  %sp%srofile %se%sdit %s-name <Name> -email <Email> --reset%s - Edit profile (or reset it).\n", b, r, b, r, g, r) +
		fmt.Sprintf("  %ss%settings                       - View or change settings.\n", b, r) +
		fmt.Sprintf("  %sh%selp                           - Show this help message.\n", b, r) +
		fmt.Sprintf("  %sc%slear                          - Clear the screen.\n", b, r) +
		fmt.Sprintf("  e%sx%sit                           - Exit watch mode or itter.sh.\n", b, r)
}

// dispatch runs one command line. It prints the trailing prompt itself
// except in watch mode, where the screen repaint owns the bottom line.
func (s *Session) dispatch(ctx context.Context, line string) error {
	parsed := parse.ParseLine(line)
	if parsed.Cmd != "timeline" && parsed.Cmd != "tl" && parsed.Cmd != "watch" && parsed.Cmd != "w" {
		s.lastCount = -1
	}

	var err error
	promptAfter := true
	switch parsed.Cmd {
	case "eet", "e":
		err = s.cmdEet(ctx, parsed)
	case "timeline", "tl", "watch", "w":
		watch := parsed.Cmd == "watch" || parsed.Cmd == "w"
		err = s.cmdTimeline(ctx, parsed.Raw, watch)
		promptAfter = false
	case "follow", "f":
		err = s.cmdFollow(ctx, parsed.Raw)
	case "unfollow", "uf":
		err = s.cmdUnfollow(ctx, parsed.Raw)
	case "ignore", "i":
		err = s.cmdIgnore(ctx, parsed.Raw)
	case "unignore", "ui":
		err = s.cmdUnignore(ctx, parsed.Raw)
	case "profile", "p":
		err = s.cmdProfile(ctx, parsed)
	case "settings", "s":
		err = s.cmdSettings(ctx, parsed.Raw)
	case "help", "h":
		s.showWelcome()
	case "clear", "c":
		s.clearScreen()
		if s.watching {
			s.refreshWatch(ctx, s.page)
		} else {
			s.showPrompt()
		}
		return nil
	case "exit", "x":
		if s.watching {
			s.stopWatch()
			return nil
		}
		s.writeLine("\nitter.sh says: Don't let the door hit you!")
		return errExit
	default:
		s.writeLine(fmt.Sprintf("Unknown command: '%s'. Type 'help'.", parsed.Cmd))
	}

	if err != nil {
		if store.IsUserError(err) {
			s.writeLine("Error: " + err.Error())
		} else {
			s.log.Error("command failed", "cmd", parsed.Cmd, "error", err)
			s.writeLine("An unexpected server error occurred.")
		}
	}
	if promptAfter && !s.watching {
		s.showPrompt()
	}
	return nil
}

func (s *Session) cmdEet(ctx context.Context, parsed parse.Line) error {
	content := strings.TrimSpace(parsed.Raw)
	if content == "" {
		s.writeLine("Usage: eet <text>")
		return nil
	}
	if len([]rune(content)) > config.EetMaxLength {
		s.writeLine(fmt.Sprintf("ERROR: Eet too long! Max %d.", config.EetMaxLength))
		return nil
	}
	if !s.eetLimiter.Allow() {
		s.writeLine("Whoa, slow down! You're eeting too fast.")
		return nil
	}
	post, err := s.deps.Store.PostEet(ctx, s.user.Username, content, parsed.Hashtags, parsed.Mentions, s.ipHash)
	if err != nil {
		return err
	}
	s.writeLine("Eet posted!")
	if s.deps.Announce != nil {
		s.deps.Announce(ctx, notify.Event{
			PostID:   post.ID,
			Author:   post.Username,
			Tags:     post.Tags,
			Mentions: post.Mentions,
		})
	}
	if s.watching {
		s.refreshWatch(ctx, 1)
	}
	return nil
}

func (s *Session) cmdTimeline(ctx context.Context, raw string, watch bool) error {
	target, page, hasPage := parse.SplitPage(raw)
	filter, warn := parse.ParseFilter(target)
	s.filter = filter
	s.page = 1
	if hasPage && page > 0 {
		s.page = page
	}

	if watch {
		s.watching = true
		s.sidebarScroll = 0
		s.startRefresh()
		s.refreshWatch(ctx, s.page)
		// The repaint clears the screen, so the fallback warning has to
		// land after it.
		if warn != "" {
			s.writeLine(warn)
			s.redrawInput()
		}
		return nil
	}
	s.watching = false
	s.renderStatic(ctx, warn)
	return nil
}

func (s *Session) cmdFollow(ctx context.Context, raw string) error {
	target := strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(target, "--list"):
		return s.showFollowLists(ctx)
	case strings.HasPrefix(target, "#"):
		tag := target[1:]
		if !parse.ValidChannel(tag) {
			s.writeLine(fmt.Sprintf("Invalid channel name format: '#%s'. Must be alphanumeric with hyphens, not starting/ending with hyphen.", tag))
			return nil
		}
		if err := s.deps.Store.FollowChannel(ctx, s.user.Username, tag); err != nil {
			return err
		}
		s.writeLine(fmt.Sprintf("Now following channel %s#%s%s. Posts from this channel will appear in your 'mine' feed.",
			textutil.FgMagenta, strings.ToLower(tag), textutil.Reset))
	case strings.HasPrefix(target, "@"):
		name := target[1:]
		if !parse.ValidUsername(name) {
			s.writeLine("Invalid username format: '@username' (3-20 alphanumeric/underscore).")
			return nil
		}
		if err := s.deps.Store.FollowUser(ctx, s.user.Username, name); err != nil {
			return err
		}
		s.writeLine(fmt.Sprintf("Following %s@%s%s. You will now see their posts on your 'mine' page.",
			textutil.FgCyan, name, textutil.Reset))
	default:
		s.writeLine(fmt.Sprintf("Usage: %sfollow @<user>%s OR %sfollow #<channel>%s OR %sfollow --list%s",
			textutil.Bold, textutil.Reset, textutil.Bold, textutil.Reset, textutil.Bold, textutil.Reset))
	}
	return nil
}

func (s *Session) cmdUnfollow(ctx context.Context, raw string) error {
	target := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(target, "#"):
		tag := target[1:]
		if !parse.ValidChannel(tag) {
			s.writeLine(fmt.Sprintf("Invalid channel name format: '#%s'.", tag))
			return nil
		}
		if err := s.deps.Store.UnfollowChannel(ctx, s.user.Username, tag); err != nil {
			return err
		}
		s.writeLine(fmt.Sprintf("No longer following channel %s#%s%s.",
			textutil.FgMagenta, strings.ToLower(tag), textutil.Reset))
	case strings.HasPrefix(target, "@"):
		name := target[1:]
		if !parse.ValidUsername(name) {
			s.writeLine("Invalid username format: '@username'.")
			return nil
		}
		if err := s.deps.Store.UnfollowUser(ctx, s.user.Username, name); err != nil {
			return err
		}
		s.writeLine(fmt.Sprintf("Unfollowed %s@%s%s. They won't show up on your 'mine' page anymore.",
			textutil.FgCyan, name, textutil.Reset))
	default:
		s.writeLine(fmt.Sprintf("Usage: %sunfollow @<user>%s OR %sunfollow #<channel>%s",
			textutil.Bold, textutil.Reset, textutil.Bold, textutil.Reset))
	}
	return nil
}

func (s *Session) cmdIgnore(ctx context.Context, raw string) error {
	target := strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(target, "--list"):
		return s.showIgnoreList(ctx)
	case strings.HasPrefix(target, "@"):
		name := target[1:]
		if !parse.ValidUsername(name) {
			s.writeLine("Invalid username format: '@username'.")
			return nil
		}
		if name == s.user.Username {
			s.writeLine("You cannot ignore yourself. (That's what my psychologist said)")
			return nil
		}
		if err := s.deps.Store.IgnoreUser(ctx, s.user.Username, name); err != nil {
			return err
		}
		s.writeLine(fmt.Sprintf("Okay, @%s will now be ignored. Their posts won't appear in your timelines. Phew.", name))
	default:
		s.writeLine(fmt.Sprintf("Usage: %signore @<user>%s OR %signore --list%s",
			textutil.Bold, textutil.Reset, textutil.Bold, textutil.Reset))
	}
	return nil
}

func (s *Session) cmdUnignore(ctx context.Context, raw string) error {
	target := strings.TrimSpace(raw)
	if !strings.HasPrefix(target, "@") {
		s.writeLine(fmt.Sprintf("Usage: %sunignore @<user>%s", textutil.Bold, textutil.Reset))
		return nil
	}
	name := target[1:]
	if !parse.ValidUsername(name) {
		s.writeLine("Invalid username format: '@username'.")
		return nil
	}
	if err := s.deps.Store.UnignoreUser(ctx, s.user.Username, name); err != nil {
		return err
	}
	s.writeLine(fmt.Sprintf("Okay, @%s is forgiven and will no longer be ignored. You'll see their posts again.", name))
	return nil
}

func (s *Session) cmdProfile(ctx context.Context, parsed parse.Line) error {
	args := strings.Fields(parsed.Raw)
	if len(args) > 0 && (strings.EqualFold(args[0], "edit") || strings.EqualFold(args[0], "e")) {
		return s.cmdProfileEdit(ctx, args[1:])
	}

	name := s.user.Username
	if len(parsed.Mentions) > 0 {
		name = parsed.Mentions[0]
	} else if t := strings.TrimSpace(parsed.Raw); t != "" {
		name = strings.TrimPrefix(t, "@")
	}
	if strings.HasPrefix(name, "#") {
		s.writeLine("That's a channel, not a profile: " + name)
		return nil
	}

	stats, err := s.deps.Store.ProfileStats(ctx, name)
	if err != nil {
		if store.IsUserError(err) {
			return err
		}
		s.log.Error("profile fetch failed", "target", name, "error", err)
		s.writeLine(fmt.Sprintf("Error fetching profile for @%s.", name))
		return nil
	}

	display, email := stats.DisplayName, stats.Email
	if display == "" {
		display = "N/A"
	}
	if email == "" {
		email = "N/A"
	}
	s.clearScreen()
	s.writeLine(Banner)
	s.writeLine("")
	s.writeLine(fmt.Sprintf("\n\n\n\n--- Profile: @%s ---\n"+
		"  Display Name: %s\n"+
		"  Email:        %s\n"+
		"  Joined:       %s\n"+
		"  Eets:         %d\n"+
		"  Following:    %d\n"+
		"  Followers:    %d\n"+
		"---------------------------",
		stats.Username, display, email,
		textutil.TimeAgo(stats.JoinedAt, s.deps.Renderer.Now()),
		stats.EetCount, stats.FollowingCount, stats.FollowerCount))
	return nil
}

func (s *Session) cmdProfileEdit(ctx context.Context, args []string) error {
	valueAfter := func(flag string) string {
		for i, a := range args {
			if a == flag && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				return args[i+1]
			}
		}
		return ""
	}
	name := valueAfter("-name")
	email := valueAfter("-email")
	reset := false
	for _, a := range args {
		if a == "--reset" {
			reset = true
			name, email = "", ""
		}
	}
	if name == "" && email == "" && !reset {
		s.writeLine(fmt.Sprintf("%sUsage:%s profile edit -name <Name> -email <Email> --reset",
			textutil.FgBrightBlack, textutil.Reset))
		return nil
	}
	if err := s.deps.Store.UpdateProfile(ctx, s.user.Username, name, email, reset); err != nil {
		return err
	}
	s.writeLine("Profile updated.")
	return nil
}

func (s *Session) cmdSettings(ctx context.Context, raw string) error {
	parts := strings.Fields(strings.ToLower(raw))
	switch {
	case len(parts) == 0:
		s.writeLine(fmt.Sprintf("\nCurrent settings:\n  Eets per page: %s%d%s\n  %sUsage:%s settings pagesize <%d-%d>",
			textutil.Bold, s.pageSize, textutil.Reset,
			textutil.FgBrightBlack, textutil.Reset, config.MinPageSize, config.MaxPageSize))
	case len(parts) == 2 && parts[0] == "pagesize":
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			s.writeLine("That... was not a number.")
			return nil
		}
		if n < config.MinPageSize || n > config.MaxPageSize {
			s.writeLine(fmt.Sprintf("Error: Page size must be between %d and %d.", config.MinPageSize, config.MaxPageSize))
			return nil
		}
		s.pageSize = n
		s.writeLine(fmt.Sprintf("All right! You will now see %d eets per page.", n))
	case parts[0] == "keys":
		// Keys subcommands keep the original argument casing.
		return s.cmdSettingsKeys(ctx, strings.Fields(raw)[1:])
	default:
		s.writeLine(fmt.Sprintf("%sUsage:%s settings pagesize <%d-%d>",
			textutil.FgBrightBlack, textutil.Reset, config.MinPageSize, config.MaxPageSize))
	}
	return nil
}

// cmdSettingsKeys manages the SSH public keys bound to the account.
func (s *Session) cmdSettingsKeys(ctx context.Context, args []string) error {
	usage := fmt.Sprintf("%sUsage:%s settings keys [add <name> <public-key> | remove <name>]",
		textutil.FgBrightBlack, textutil.Reset)
	switch {
	case len(args) == 0:
		keys, err := s.deps.Store.PublicKeys(ctx, s.user.ID)
		if err != nil {
			return err
		}
		s.writeLine(fmt.Sprintf("\n%s--- Your keys (%d) ---%s", textutil.Bold, len(keys), textutil.Reset))
		now := s.deps.Renderer.Now()
		for _, k := range keys {
			lastUsed := "never used"
			if !k.LastUsedAt.IsZero() {
				lastUsed = "last used " + textutil.TimeAgo(k.LastUsedAt, now)
			}
			s.writeLine(fmt.Sprintf("  %s - added %s, %s", k.Name, textutil.TimeAgo(k.CreatedAt, now), lastUsed))
		}
	case args[0] == "add" && len(args) >= 3:
		name := args[1]
		key := strings.Join(args[2:], " ")
		if err := s.deps.Store.AddPublicKey(ctx, s.user.ID, name, key); err != nil {
			return err
		}
		s.writeLine(fmt.Sprintf("Key '%s' added.", name))
	case args[0] == "remove" && len(args) == 2:
		keys, err := s.deps.Store.PublicKeys(ctx, s.user.ID)
		if err != nil {
			return err
		}
		if len(keys) <= 1 {
			s.writeLine("That's your only key. Removing it would lock you out.")
			return nil
		}
		if err := s.deps.Store.RemovePublicKey(ctx, s.user.ID, args[1]); err != nil {
			if err == store.ErrNotFound {
				s.writeLine(fmt.Sprintf("No key named '%s'.", args[1]))
				return nil
			}
			return err
		}
		s.writeLine(fmt.Sprintf("Key '%s' removed.", args[1]))
	default:
		s.writeLine(usage)
	}
	return nil
}

func relationLine(color string, sigil string, rel store.Relation, now string) string {
	display := ""
	if rel.DisplayName != "" {
		display = fmt.Sprintf(" (%s)", rel.DisplayName)
	}
	return fmt.Sprintf("  %s%s%s%s%s - since %s", color, sigil, rel.Username, textutil.Reset, display, now)
}

func (s *Session) showFollowLists(ctx context.Context) error {
	following, err := s.deps.Store.Following(ctx, s.user.Username)
	if err != nil {
		return err
	}
	followers, err := s.deps.Store.Followers(ctx, s.user.Username)
	if err != nil {
		return err
	}
	channels, err := s.deps.Store.FollowedChannels(ctx, s.user.Username)
	if err != nil {
		return err
	}
	now := s.deps.Renderer.Now()

	var out []string
	out = append(out, fmt.Sprintf("\n%s--- You are following (%d users) ---%s", textutil.Bold, len(following), textutil.Reset))
	if len(following) == 0 {
		out = append(out, fmt.Sprintf("  Not following anyone yet. Use `%sfollow @user%s`.", textutil.Bold, textutil.Reset))
	}
	for _, rel := range following {
		out = append(out, relationLine(textutil.FgCyan, "@", rel, textutil.TimeAgo(rel.Since, now)))
	}

	out = append(out, fmt.Sprintf("\n%s--- You are following (%d channels) ---%s", textutil.Bold, len(channels), textutil.Reset))
	if len(channels) == 0 {
		out = append(out, fmt.Sprintf("  Not following any channels yet. Use `%sfollow #channel%s`.", textutil.Bold, textutil.Reset))
	}
	for _, ch := range channels {
		out = append(out, fmt.Sprintf("  %s#%s%s - since %s", textutil.FgMagenta, ch.Tag, textutil.Reset, textutil.TimeAgo(ch.Since, now)))
	}

	out = append(out, fmt.Sprintf("\n%s--- Follows you (%d users) ---%s", textutil.Bold, len(followers), textutil.Reset))
	if len(followers) == 0 {
		out = append(out, "  No followers yet. Be more eet-eresting!")
	}
	for _, rel := range followers {
		out = append(out, relationLine(textutil.FgCyan, "@", rel, textutil.TimeAgo(rel.Since, now)))
	}

	out = append(out, "")
	s.writeLine(strings.Join(out, "\n"))
	return nil
}

func (s *Session) showIgnoreList(ctx context.Context) error {
	ignoring, err := s.deps.Store.Ignoring(ctx, s.user.Username)
	if err != nil {
		return err
	}
	now := s.deps.Renderer.Now()
	var out []string
	out = append(out, fmt.Sprintf("\n%s--- You are ignoring (%d users) ---%s", textutil.Bold, len(ignoring), textutil.Reset))
	if len(ignoring) == 0 {
		out = append(out, fmt.Sprintf("  Not ignoring anyone. What a saint! Use `%signore @user%s` if needed.", textutil.Bold, textutil.Reset))
	}
	for _, rel := range ignoring {
		out = append(out, relationLine(textutil.FgMagenta, "@", rel, textutil.TimeAgo(rel.Since, now)))
	}
	out = append(out, "")
	s.writeLine(strings.Join(out, "\n"))
	return nil
}
