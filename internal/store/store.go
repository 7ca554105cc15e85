// Package store persists users, follows and eets.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/itter-sh/itter/internal/parse"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UserError carries a message that the shell shows to the user
// verbatim, as opposed to internal failures which are logged and
// reported generically.
type UserError string

func (e UserError) Error() string { return string(e) }

// IsUserError reports whether err should be surfaced to the user
// as-is.
func IsUserError(err error) bool {
	var ue UserError
	return errors.As(err, &ue)
}

// User is a registered account.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

// PublicKey is an SSH key bound to an account.
type PublicKey struct {
	UserID     string
	Name       string
	Key        string // authorized_keys format
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Post is a single eet with its author attached.
type Post struct {
	ID          string
	UserID      string
	Username    string
	DisplayName string
	Content     string
	Tags        []string
	Mentions    []string
	CreatedAt   time.Time
}

// ProfileStats is the aggregate shown by the profile command.
type ProfileStats struct {
	Username       string
	DisplayName    string
	Email          string
	JoinedAt       time.Time
	EetCount       int
	FollowingCount int
	FollowerCount  int
}

// Relation is one row of a follow, follower or ignore listing.
type Relation struct {
	Username    string
	DisplayName string
	Since       time.Time
}

// ChannelFollow is one followed channel.
type ChannelFollow struct {
	Tag   string
	Since time.Time
}

// Store is the persistence boundary of the server. All methods are
// safe for concurrent use.
type Store interface {
	// CreateUser registers an account and binds its first public key.
	CreateUser(ctx context.Context, username, publicKey string) (User, error)
	// UserByName looks an account up by exact username.
	UserByName(ctx context.Context, username string) (User, error)
	// UsernameTaken returns the stored spelling of a username that
	// matches name case-insensitively, or "" when the name is free.
	UsernameTaken(ctx context.Context, name string) (string, error)
	// UpdateProfile sets display name and/or email. Empty arguments
	// leave fields unchanged; both empty without reset is a UserError.
	// reset clears both fields regardless of the other arguments.
	UpdateProfile(ctx context.Context, username, displayName, email string, reset bool) error
	ProfileStats(ctx context.Context, username string) (ProfileStats, error)

	PublicKeys(ctx context.Context, userID string) ([]PublicKey, error)
	AddPublicKey(ctx context.Context, userID, name, key string) error
	RemovePublicKey(ctx context.Context, userID, name string) error
	// TouchPublicKey records that a key was just used to log in.
	TouchPublicKey(ctx context.Context, userID, key string) error

	FollowUser(ctx context.Context, username, target string) error
	UnfollowUser(ctx context.Context, username, target string) error
	IsFollowing(ctx context.Context, username, target string) (bool, error)
	Following(ctx context.Context, username string) ([]Relation, error)
	Followers(ctx context.Context, username string) ([]Relation, error)

	FollowChannel(ctx context.Context, username, tag string) error
	UnfollowChannel(ctx context.Context, username, tag string) error
	FollowedChannels(ctx context.Context, username string) ([]ChannelFollow, error)

	IgnoreUser(ctx context.Context, username, target string) error
	UnignoreUser(ctx context.Context, username, target string) error
	Ignoring(ctx context.Context, username string) ([]Relation, error)

	// PostEet stores a new post. Mentions of unknown users are dropped
	// silently; hashedIP may be empty.
	PostEet(ctx context.Context, username, content string, tags, mentions []string, hashedIP string) (Post, error)
	// Timeline returns one page of posts for the given filter, newest
	// first. Page numbers start at 1.
	Timeline(ctx context.Context, username string, filter parse.Filter, page, pageSize int) ([]Post, error)

	Close() error
}
