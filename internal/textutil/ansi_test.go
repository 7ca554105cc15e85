package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrip(t *testing.T) {
	assert.Equal(t, "hello", Strip(FgRed+"hello"+Reset))
	assert.Equal(t, "plain", Strip("plain"))
	assert.Equal(t, "ab", Strip("\x1b[1m\x1b[93ma\x1b[0mb"))
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name    string
		content string
		viewer  string
		want    string
	}{
		{
			"hashtag",
			"ship it #golang now",
			"",
			"ship it " + FgMagenta + "#golang" + Reset + " now",
		},
		{
			"mention",
			"cc @ripley please",
			"dallas",
			"cc " + FgCyan + "@ripley" + Reset + " please",
		},
		{
			"viewer mention highlighted",
			"hey @dallas look",
			"dallas",
			"hey " + FgBrightYellow + "@dallas" + Reset + " look",
		},
		{
			"viewer match is case insensitive",
			"hey @Dallas look",
			"dallas",
			"hey " + FgBrightYellow + "@Dallas" + Reset + " look",
		},
		{
			"mid-word tag not highlighted",
			"file_#tag and email@host stay plain",
			"",
			"file_#tag and email@host stay plain",
		},
		{
			"leading token",
			"#intro hello",
			"",
			FgMagenta + "#intro" + Reset + " hello",
		},
		{
			"short mention ignored",
			"hi @ab there",
			"",
			"hi @ab there",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.content, tt.viewer))
		})
	}
}
