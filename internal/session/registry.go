package session

import (
	"sort"
	"strings"
	"sync"
)

// Registry tracks which users currently have a live shell. A user
// appears once no matter how many sessions they hold open.
type Registry struct {
	mu     sync.Mutex
	online map[string]int // username -> open session count
}

func NewRegistry() *Registry {
	return &Registry{online: make(map[string]int)}
}

func (r *Registry) Add(username string) {
	r.mu.Lock()
	r.online[username]++
	r.mu.Unlock()
}

func (r *Registry) Remove(username string) {
	r.mu.Lock()
	if r.online[username] <= 1 {
		delete(r.online, username)
	} else {
		r.online[username]--
	}
	r.mu.Unlock()
}

// Usernames returns the online users sorted case-insensitively.
func (r *Registry) Usernames() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.online))
	for name := range r.online {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.online)
}
