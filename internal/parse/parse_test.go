package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Line
	}{
		{"blank", "   ", Line{}},
		{"bare command", "help", Line{Cmd: "help"}},
		{"command lowercased", "EET hi there", Line{Cmd: "eet", Raw: "hi there"}},
		{
			"tags and mentions extracted",
			"eet hello @Ripley check #Golang and #golang again",
			Line{
				Cmd:      "eet",
				Raw:      "hello @Ripley check #Golang and #golang again",
				Hashtags: []string{"golang"},
				Mentions: []string{"Ripley"},
			},
		},
		{
			"mid-word tokens ignored",
			"eet email@host.com and file_#tag",
			Line{Cmd: "eet", Raw: "email@host.com and file_#tag"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLine(tt.in))
		})
	}
}

func TestHashtagsAndMentions(t *testing.T) {
	assert.Equal(t, []string{"go", "dev-ops"}, Hashtags("#go stuff #dev-ops #go"))
	assert.Nil(t, Hashtags("no tags here"))
	assert.Equal(t, []string{"dallas", "ash"}, Mentions("@dallas met @ash, then @dallas again"))
	// Mentions shorter than three characters are not usernames.
	assert.Nil(t, Mentions("hi @ab"))
}

func TestValidUsername(t *testing.T) {
	assert.True(t, ValidUsername("abc"))
	assert.True(t, ValidUsername("user_name20"))
	assert.False(t, ValidUsername("ab"))
	assert.False(t, ValidUsername("this_name_is_far_too_long"))
	assert.False(t, ValidUsername("bad-dash"))
	assert.False(t, ValidUsername(""))
}

func TestValidChannel(t *testing.T) {
	assert.True(t, ValidChannel("x"))
	assert.True(t, ValidChannel("dev-ops"))
	assert.False(t, ValidChannel("-lead"))
	assert.False(t, ValidChannel("trail-"))
	assert.False(t, ValidChannel("under_score"))
	assert.False(t, ValidChannel(""))
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		want     Filter
		warnWant bool
	}{
		{"empty defaults to all", "", Filter{Kind: FilterAll}, false},
		{"all", "ALL", Filter{Kind: FilterAll}, false},
		{"mine", "mine", Filter{Kind: FilterMine}, false},
		{"user", "@ripley", Filter{Kind: FilterUser, Value: "ripley"}, false},
		{"channel lowercased", "#DevOps", Filter{Kind: FilterChannel, Value: "devops"}, false},
		{"bad user falls back", "@x", Filter{Kind: FilterAll}, true},
		{"bad channel falls back", "#-bad", Filter{Kind: FilterAll}, true},
		{"garbage falls back", "whatever", Filter{Kind: FilterAll}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warn := ParseFilter(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.warnWant {
				assert.NotEmpty(t, warn)
			} else {
				assert.Empty(t, warn)
			}
		})
	}
}

func TestFilterTitle(t *testing.T) {
	assert.Equal(t, "All Eets", Filter{Kind: FilterAll}.Title())
	assert.Equal(t, "Your 'Mine' Feed", Filter{Kind: FilterMine}.Title())
	assert.Equal(t, "@ash", Filter{Kind: FilterUser, Value: "ash"}.Title())
	assert.Equal(t, "#hr", Filter{Kind: FilterChannel, Value: "hr"}.Title())
}

func TestSplitPage(t *testing.T) {
	rest, page, ok := SplitPage("mine 3")
	assert.True(t, ok)
	assert.Equal(t, "mine", rest)
	assert.Equal(t, 3, page)

	rest, _, ok = SplitPage("#news")
	assert.False(t, ok)
	assert.Equal(t, "#news", rest)

	rest, page, ok = SplitPage("7")
	assert.True(t, ok)
	assert.Equal(t, "", rest)
	assert.Equal(t, 7, page)

	_, _, ok = SplitPage("")
	assert.False(t, ok)
}
