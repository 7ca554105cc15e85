package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryScroll(t *testing.T) {
	h := NewHistory(10)
	assert.Equal(t, "", h.Up())

	h.Add("first")
	h.Add("second")
	h.Add("third")

	assert.Equal(t, "third", h.Up())
	assert.Equal(t, "second", h.Up())
	assert.Equal(t, "first", h.Up())
	// Oldest entry is sticky.
	assert.Equal(t, "first", h.Up())

	assert.Equal(t, "second", h.Down())
	assert.Equal(t, "third", h.Down())
	// Past the newest entry the line clears.
	assert.Equal(t, "", h.Down())
	assert.Equal(t, "", h.Down())
}

func TestHistoryDedupAndReset(t *testing.T) {
	h := NewHistory(10)
	h.Add("eet hi")
	h.Add("eet hi")
	assert.Equal(t, "eet hi", h.Up())
	assert.Equal(t, "eet hi", h.Up(), "consecutive duplicates collapse")

	// Adding resets the scroll cursor.
	h.Add("help")
	assert.Equal(t, "help", h.Up())
}

func TestHistoryCapacity(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(fmt.Sprintf("cmd%d", i))
	}
	assert.Equal(t, "cmd4", h.Up())
	assert.Equal(t, "cmd3", h.Up())
	assert.Equal(t, "cmd2", h.Up())
	// cmd0 and cmd1 were evicted.
	assert.Equal(t, "cmd2", h.Up())
}
