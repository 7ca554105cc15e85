package textutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "some time ago"},
		{"future clock skew", now.Add(5 * time.Second), "just now"},
		{"just now", now.Add(-3 * time.Second), "just now"},
		{"seconds", now.Add(-45 * time.Second), "45s ago"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
		{"days", now.Add(-52 * time.Hour), "2d ago"},
		{"weeks", now.Add(-8 * 24 * time.Hour), "1w ago"},
		{"months", now.Add(-65 * 24 * time.Hour), "2mo ago"},
		{"years", now.Add(-800 * 24 * time.Hour), "2y ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeAgo(tt.t, now))
		})
	}
}

func TestHashIP(t *testing.T) {
	h := HashIP("pepper", "203.0.113.9")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashIP("pepper", "203.0.113.9"))
	assert.NotEqual(t, h, HashIP("pepper", "203.0.113.10"))
	assert.NotEqual(t, h, HashIP("salt", "203.0.113.9"))
	assert.Empty(t, HashIP("", "203.0.113.9"))
	assert.Empty(t, HashIP("pepper", ""))
}
