package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryTracksOnlineUsers(t *testing.T) {
	r := NewRegistry()
	r.Add("Bravo")
	r.Add("alpha")
	r.Add("Charlie")

	assert.Equal(t, []string{"alpha", "Bravo", "Charlie"}, r.Usernames())
	assert.Equal(t, 3, r.Count())

	r.Remove("Bravo")
	assert.Equal(t, []string{"alpha", "Charlie"}, r.Usernames())
}

func TestRegistryCountsDuplicateSessions(t *testing.T) {
	r := NewRegistry()
	r.Add("ripley")
	r.Add("ripley")
	assert.Equal(t, []string{"ripley"}, r.Usernames())

	r.Remove("ripley")
	assert.Equal(t, []string{"ripley"}, r.Usernames(), "still one session open")
	r.Remove("ripley")
	assert.Empty(t, r.Usernames())
}
