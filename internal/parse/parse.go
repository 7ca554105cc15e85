// Package parse turns raw shell input into commands, targets and
// timeline filters.
package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// Go's regexp has no lookbehind, so the "not preceded by a word
// character" boundary is an explicit leading group.
var (
	hashtagRE = regexp.MustCompile(`(^|[^0-9A-Za-z_])#(\w(?:[\w-]*\w)?)`)
	mentionRE = regexp.MustCompile(`(^|[^0-9A-Za-z_])@(\w{3,20})`)

	usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	channelRE  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)
)

// ValidUsername reports whether name is a legal account name:
// 3-20 characters, alphanumeric or underscore.
func ValidUsername(name string) bool {
	return usernameRE.MatchString(name)
}

// ValidChannel reports whether tag is a legal channel tag:
// alphanumeric with hyphens, not starting or ending with a hyphen.
func ValidChannel(tag string) bool {
	return channelRE.MatchString(tag)
}

// Line is one parsed line of shell input.
type Line struct {
	Cmd      string   // first token, lowercased; "" for blank input
	Raw      string   // everything after the command, untrimmed tail
	Hashtags []string // deduped, lowercased, in order of first appearance
	Mentions []string // deduped, original case, in order of first appearance
}

// ParseLine splits an input line into the command word and its
// argument text, and extracts hashtags and @-mentions from the
// argument text.
func ParseLine(input string) Line {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Line{}
	}
	cmd, raw, _ := strings.Cut(trimmed, " ")
	raw = strings.TrimLeft(raw, " ")
	return Line{
		Cmd:      strings.ToLower(cmd),
		Raw:      raw,
		Hashtags: Hashtags(raw),
		Mentions: Mentions(raw),
	}
}

// Hashtags returns the distinct hashtag names in text, lowercased.
func Hashtags(text string) []string {
	return extract(hashtagRE, strings.ToLower(text))
}

// Mentions returns the distinct @-mentioned usernames in text.
func Mentions(text string) []string {
	return extract(mentionRE, text)
}

func extract(re *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := m[2]
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FilterKind selects which posts a timeline shows.
type FilterKind string

const (
	FilterAll     FilterKind = "all"     // every public post
	FilterMine    FilterKind = "mine"    // own posts plus followed users and channels
	FilterUser    FilterKind = "user"    // one user's posts
	FilterChannel FilterKind = "channel" // one channel's posts
)

// Filter is a resolved timeline target.
type Filter struct {
	Kind  FilterKind
	Value string // username or channel tag, set for user/channel kinds
}

// Title returns the filter's display title for timeline headers.
func (f Filter) Title() string {
	switch f.Kind {
	case FilterMine:
		return "Your 'Mine' Feed"
	case FilterUser:
		return "@" + f.Value
	case FilterChannel:
		return "#" + f.Value
	default:
		return "All Eets"
	}
}

// ParseFilter resolves a target specifier such as "mine", "#news" or
// "@ripley" into a Filter. Malformed specifiers fall back to the
// all-posts filter; the returned warning is non-empty when that
// happened and is meant to be shown to the user verbatim.
func ParseFilter(raw string) (Filter, string) {
	text := strings.TrimSpace(raw)
	switch {
	case text == "" || strings.EqualFold(text, "all"):
		return Filter{Kind: FilterAll}, ""
	case strings.EqualFold(text, "mine"):
		return Filter{Kind: FilterMine}, ""
	case strings.HasPrefix(text, "@"):
		name := text[1:]
		if ValidUsername(name) {
			return Filter{Kind: FilterUser, Value: name}, ""
		}
		return Filter{Kind: FilterAll}, "Invalid user format: '" + text + "'. Defaulting to 'all'."
	case strings.HasPrefix(text, "#"):
		tag := strings.ToLower(text[1:])
		if ValidChannel(tag) {
			return Filter{Kind: FilterChannel, Value: tag}, ""
		}
		return Filter{Kind: FilterAll}, "Invalid channel format: '" + text + "'. Defaulting to 'all'."
	default:
		return Filter{Kind: FilterAll}, "Unrecognized filter '" + text + "'. Defaulting to 'all'."
	}
}

// SplitPage strips a trailing page number from a timeline argument.
// "mine 3" yields ("mine", 3, true); input without a trailing number
// comes back unchanged with ok false.
func SplitPage(raw string) (rest string, page int, ok bool) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return strings.TrimSpace(raw), 0, false
	}
	last := fields[len(fields)-1]
	n, err := strconv.Atoi(last)
	if err != nil || n < 0 || !isDigits(last) {
		return strings.TrimSpace(raw), 0, false
	}
	return strings.Join(fields[:len(fields)-1], " "), n, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
