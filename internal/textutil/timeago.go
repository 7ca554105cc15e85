package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TimeAgo renders a timestamp as a compact relative age such as "5m
// ago" or "3d ago". A zero timestamp renders as "some time ago" and
// anything under ten seconds as "just now".
func TimeAgo(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "some time ago"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < 10*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(d.Hours()/(24*7)))
	case d < 365*24*time.Hour:
		return fmt.Sprintf("%dmo ago", int(d.Hours()/(24*30)))
	default:
		return fmt.Sprintf("%dy ago", int(d.Hours()/(24*365)))
	}
}

// HashIP returns a salted SHA-256 digest of a client address, so logs
// and stored records never hold the raw IP. Returns "" when either
// input is empty.
func HashIP(salt, ip string) string {
	if salt == "" || ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + ip))
	return hex.EncodeToString(sum[:])
}
