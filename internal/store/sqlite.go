package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/itter-sh/itter/internal/config"
	"github.com/itter-sh/itter/internal/parse"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             TEXT PRIMARY KEY,
	username       TEXT NOT NULL UNIQUE,
	username_lower TEXT NOT NULL UNIQUE,
	display_name   TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS public_keys (
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	key          TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	last_used_at TIMESTAMP,
	PRIMARY KEY (user_id, name)
);
CREATE UNIQUE INDEX IF NOT EXISTS public_keys_user_key ON public_keys(user_id, key);

CREATE TABLE IF NOT EXISTS follows (
	follower_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	following_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (follower_id, following_id)
);

CREATE TABLE IF NOT EXISTS channel_follows (
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	channel_tag TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, channel_tag)
);

CREATE TABLE IF NOT EXISTS ignored_users (
	ignorer_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	ignored_user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (ignorer_id, ignored_user_id)
);

CREATE TABLE IF NOT EXISTS posts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	mentions   TEXT NOT NULL DEFAULT '[]',
	hashed_ip  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_user ON posts(user_id, created_at);
CREATE INDEX IF NOT EXISTS posts_created ON posts(created_at);

CREATE TABLE IF NOT EXISTS post_tags (
	post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	tag     TEXT NOT NULL,
	PRIMARY KEY (post_id, tag)
);
CREATE INDEX IF NOT EXISTS post_tags_tag ON post_tags(tag);
`

// SQLite is the Store implementation backed by a local SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and
// applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc/sqlite is a single-writer engine; one connection avoids
	// SQLITE_BUSY churn under concurrent sessions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const userCols = "id, username, display_name, email, created_at"

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (s *SQLite) CreateUser(ctx context.Context, username, publicKey string) (User, error) {
	now := s.now().UTC()
	u := User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: now,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, username_lower, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, strings.ToLower(u.Username), now)
	if isUniqueViolation(err) {
		return User{}, UserError(fmt.Sprintf("Username '%s' is already taken.", username))
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user %s: %w", username, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO public_keys (user_id, name, key, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, "initial-key", publicKey, now)
	if err != nil {
		return User{}, fmt.Errorf("insert initial key for %s: %w", username, err)
	}
	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit create user: %w", err)
	}
	return u, nil
}

func (s *SQLite) UserByName(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE username = ?`, username))
}

func (s *SQLite) UsernameTaken(ctx context.Context, name string) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT username FROM users WHERE username_lower = ?`, strings.ToLower(name)).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("check username %s: %w", name, err)
	}
	return existing, nil
}

func (s *SQLite) UpdateProfile(ctx context.Context, username, displayName, email string, reset bool) error {
	if displayName == "" && email == "" && !reset {
		return UserError("Nothing to update. Provide a new name and/or email.")
	}
	u, err := s.UserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return UserError("User not found for profile update.")
	}
	if err != nil {
		return err
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	if email != "" {
		u.Email = email
	}
	if reset {
		u.DisplayName, u.Email = "", ""
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, email = ? WHERE id = ?`,
		u.DisplayName, u.Email, u.ID)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", username, err)
	}
	return nil
}

func (s *SQLite) ProfileStats(ctx context.Context, username string) (ProfileStats, error) {
	u, err := s.UserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return ProfileStats{}, UserError("User not found for profile stats.")
	}
	if err != nil {
		return ProfileStats{}, err
	}
	stats := ProfileStats{
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		JoinedAt:    u.CreatedAt,
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM posts WHERE user_id = ?1),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?1),
			(SELECT COUNT(*) FROM follows WHERE following_id = ?1)`,
		u.ID).Scan(&stats.EetCount, &stats.FollowingCount, &stats.FollowerCount)
	if err != nil {
		return ProfileStats{}, fmt.Errorf("profile stats %s: %w", username, err)
	}
	return stats, nil
}

func (s *SQLite) PublicKeys(ctx context.Context, userID string) ([]PublicKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, key, created_at, last_used_at FROM public_keys WHERE user_id = ? ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var keys []PublicKey
	for rows.Next() {
		var k PublicKey
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.UserID, &k.Name, &k.Key, &k.CreatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLite) AddPublicKey(ctx context.Context, userID, name, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO public_keys (user_id, name, key, created_at) VALUES (?, ?, ?, ?)`,
		userID, name, key, s.now().UTC())
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "public_keys.user_id, public_keys.key") {
			return UserError("Hey there, no duplicates! This public key is already registered to your account.")
		}
		return UserError(fmt.Sprintf("You already have a key named '%s'.", name))
	}
	if err != nil {
		return fmt.Errorf("add key %s: %w", name, err)
	}
	return nil
}

func (s *SQLite) RemovePublicKey(ctx context.Context, userID, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM public_keys WHERE user_id = ? AND name = ?`, userID, name)
	if err != nil {
		return fmt.Errorf("remove key %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) TouchPublicKey(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE public_keys SET last_used_at = ? WHERE user_id = ? AND key = ?`,
		s.now().UTC(), userID, key)
	if err != nil {
		return fmt.Errorf("touch key: %w", err)
	}
	return nil
}

// pair resolves two usernames at once for relation operations.
func (s *SQLite) pair(ctx context.Context, username, target, missingMsg string) (User, User, error) {
	u, err := s.UserByName(ctx, username)
	if err == nil {
		var t User
		t, err = s.UserByName(ctx, target)
		if err == nil {
			return u, t, nil
		}
	}
	if errors.Is(err, ErrNotFound) {
		return User{}, User{}, UserError(missingMsg)
	}
	return User{}, User{}, err
}

func (s *SQLite) FollowUser(ctx context.Context, username, target string) error {
	u, t, err := s.pair(ctx, username, target, "User not found for follow operation.")
	if err != nil {
		return err
	}
	if u.ID == t.ID {
		return UserError("You cannot follow yourself, silly.")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO follows (follower_id, following_id, created_at) VALUES (?, ?, ?)`,
		u.ID, t.ID, s.now().UTC())
	if isUniqueViolation(err) {
		return UserError(fmt.Sprintf("You are already following @%s.", target))
	}
	if err != nil {
		return fmt.Errorf("follow %s -> %s: %w", username, target, err)
	}
	return nil
}

func (s *SQLite) UnfollowUser(ctx context.Context, username, target string) error {
	u, t, err := s.pair(ctx, username, target, "User not found for unfollow operation.")
	if err != nil {
		return err
	}
	if u.ID == t.ID {
		return UserError("No chance. You cannot get rid of yourself. This is life.")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND following_id = ?`, u.ID, t.ID)
	if err != nil {
		return fmt.Errorf("unfollow %s -> %s: %w", username, target, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return UserError(fmt.Sprintf("You are not following @%s anyway.", target))
	}
	return nil
}

func (s *SQLite) IsFollowing(ctx context.Context, username, target string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM follows f
		JOIN users a ON a.id = f.follower_id
		JOIN users b ON b.id = f.following_id
		WHERE a.username = ? AND b.username = ?`, username, target).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is following: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) relationList(ctx context.Context, query, username string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("relation list: %w", err)
	}
	defer rows.Close()
	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.Username, &r.DisplayName, &r.Since); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Following(ctx context.Context, username string) ([]Relation, error) {
	return s.relationList(ctx, `
		SELECT b.username, b.display_name, f.created_at FROM follows f
		JOIN users a ON a.id = f.follower_id
		JOIN users b ON b.id = f.following_id
		WHERE a.username = ? ORDER BY f.created_at DESC`, username)
}

func (s *SQLite) Followers(ctx context.Context, username string) ([]Relation, error) {
	return s.relationList(ctx, `
		SELECT a.username, a.display_name, f.created_at FROM follows f
		JOIN users a ON a.id = f.follower_id
		JOIN users b ON b.id = f.following_id
		WHERE b.username = ? ORDER BY f.created_at DESC`, username)
}

func (s *SQLite) FollowChannel(ctx context.Context, username, tag string) error {
	tag = strings.ToLower(tag)
	if tag == "" {
		return UserError("Channel tag cannot be empty.")
	}
	u, err := s.UserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return UserError(fmt.Sprintf("User '%s' not found.", username))
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO channel_follows (user_id, channel_tag, created_at) VALUES (?, ?, ?)`,
		u.ID, tag, s.now().UTC())
	if isUniqueViolation(err) {
		return UserError(fmt.Sprintf("You are already following channel #%s.", tag))
	}
	if err != nil {
		return fmt.Errorf("follow channel #%s: %w", tag, err)
	}
	return nil
}

func (s *SQLite) UnfollowChannel(ctx context.Context, username, tag string) error {
	tag = strings.ToLower(tag)
	u, err := s.UserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return UserError(fmt.Sprintf("User '%s' not found.", username))
	}
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_follows WHERE user_id = ? AND channel_tag = ?`, u.ID, tag)
	if err != nil {
		return fmt.Errorf("unfollow channel #%s: %w", tag, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return UserError(fmt.Sprintf("You are not following channel #%s anyway.", tag))
	}
	return nil
}

func (s *SQLite) FollowedChannels(ctx context.Context, username string) ([]ChannelFollow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.channel_tag, c.created_at FROM channel_follows c
		JOIN users u ON u.id = c.user_id
		WHERE u.username = ? ORDER BY c.created_at DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("followed channels: %w", err)
	}
	defer rows.Close()
	var out []ChannelFollow
	for rows.Next() {
		var c ChannelFollow
		if err := rows.Scan(&c.Tag, &c.Since); err != nil {
			return nil, fmt.Errorf("scan channel follow: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) IgnoreUser(ctx context.Context, username, target string) error {
	u, t, err := s.pair(ctx, username, target, "User not found for ignore operation.")
	if err != nil {
		return err
	}
	if u.ID == t.ID {
		return UserError("You cannot ignore yourself.")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ignored_users (ignorer_id, ignored_user_id, created_at) VALUES (?, ?, ?)`,
		u.ID, t.ID, s.now().UTC())
	if isUniqueViolation(err) {
		return UserError(fmt.Sprintf("You are already ignoring @%s.", target))
	}
	if err != nil {
		return fmt.Errorf("ignore %s -> %s: %w", username, target, err)
	}
	return nil
}

func (s *SQLite) UnignoreUser(ctx context.Context, username, target string) error {
	u, t, err := s.pair(ctx, username, target, "User not found for unignore operation.")
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ignored_users WHERE ignorer_id = ? AND ignored_user_id = ?`, u.ID, t.ID)
	if err != nil {
		return fmt.Errorf("unignore %s -> %s: %w", username, target, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return UserError(fmt.Sprintf("You are not ignoring @%s anyway.", target))
	}
	return nil
}

func (s *SQLite) Ignoring(ctx context.Context, username string) ([]Relation, error) {
	return s.relationList(ctx, `
		SELECT b.username, b.display_name, i.created_at FROM ignored_users i
		JOIN users a ON a.id = i.ignorer_id
		JOIN users b ON b.id = i.ignored_user_id
		WHERE a.username = ? ORDER BY i.created_at DESC`, username)
}

func (s *SQLite) PostEet(ctx context.Context, username, content string, tags, mentions []string, hashedIP string) (Post, error) {
	if len([]rune(content)) > config.EetMaxLength {
		return Post{}, UserError(fmt.Sprintf("Eet too long! Max %d.", config.EetMaxLength))
	}
	u, err := s.UserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return Post{}, UserError("User not found for posting eet.")
	}
	if err != nil {
		return Post{}, err
	}

	// Mentions of accounts that do not exist are dropped, not errors.
	var valid []string
	for _, m := range mentions {
		if _, err := s.UserByName(ctx, m); err == nil {
			valid = append(valid, m)
		} else if !errors.Is(err, ErrNotFound) {
			return Post{}, err
		}
	}

	p := Post{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Content:     content,
		Tags:        tags,
		Mentions:    valid,
		CreatedAt:   s.now().UTC(),
	}
	tagsJSON, err := json.Marshal(orEmpty(p.Tags))
	if err != nil {
		return Post{}, fmt.Errorf("encode tags: %w", err)
	}
	mentionsJSON, err := json.Marshal(orEmpty(p.Mentions))
	if err != nil {
		return Post{}, fmt.Errorf("encode mentions: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("begin post eet: %w", err)
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, user_id, content, tags, mentions, hashed_ip, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Content, string(tagsJSON), string(mentionsJSON), hashedIP, p.CreatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert eet: %w", err)
	}
	for _, tag := range p.Tags {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO post_tags (post_id, tag) VALUES (?, ?)`, p.ID, strings.ToLower(tag))
		if err != nil {
			return Post{}, fmt.Errorf("insert eet tag #%s: %w", tag, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("commit post eet: %w", err)
	}
	return p, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *SQLite) Timeline(ctx context.Context, username string, filter parse.Filter, page, pageSize int) ([]Post, error) {
	u, err := s.UserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	const base = `
		SELECT p.id, p.user_id, u.username, u.display_name, p.content, p.tags, p.mentions, p.created_at
		FROM posts p JOIN users u ON u.id = p.user_id`
	notIgnored := ` p.user_id NOT IN (SELECT ignored_user_id FROM ignored_users WHERE ignorer_id = ?)`
	tail := ` ORDER BY p.created_at DESC, p.rowid DESC LIMIT ? OFFSET ?`
	limit, offset := pageSize, (page-1)*pageSize

	var query string
	var args []any
	switch filter.Kind {
	case parse.FilterAll:
		query = base + ` WHERE` + notIgnored + tail
		args = []any{u.ID, limit, offset}
	case parse.FilterMine:
		query = base + ` WHERE (p.user_id = ?
			OR p.user_id IN (SELECT following_id FROM follows WHERE follower_id = ?)
			OR p.id IN (SELECT post_id FROM post_tags WHERE tag IN
				(SELECT channel_tag FROM channel_follows WHERE user_id = ?)))
			AND` + notIgnored + tail
		args = []any{u.ID, u.ID, u.ID, u.ID, limit, offset}
	case parse.FilterChannel:
		if filter.Value == "" {
			return nil, nil
		}
		query = base + ` WHERE p.id IN (SELECT post_id FROM post_tags WHERE tag = ?)
			AND` + notIgnored + tail
		args = []any{strings.ToLower(filter.Value), u.ID, limit, offset}
	case parse.FilterUser:
		if filter.Value == "" {
			return nil, nil
		}
		// An explicitly requested user timeline is shown even when
		// the author is on the viewer's ignore list.
		query = base + ` WHERE u.username_lower = ?` + tail
		args = []any{strings.ToLower(filter.Value), limit, offset}
	default:
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("timeline %s/%s: %w", filter.Kind, filter.Value, err)
	}
	defer rows.Close()
	var posts []Post
	for rows.Next() {
		var p Post
		var tagsJSON, mentionsJSON string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Username, &p.DisplayName, &p.Content, &tagsJSON, &mentionsJSON, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", p.ID, err)
		}
		if err := json.Unmarshal([]byte(mentionsJSON), &p.Mentions); err != nil {
			return nil, fmt.Errorf("decode mentions for %s: %w", p.ID, err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
