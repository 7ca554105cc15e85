package sshd

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"

	"github.com/itter-sh/itter/internal/config"
	"github.com/itter-sh/itter/internal/notify"
	"github.com/itter-sh/itter/internal/store"
)

// fakeCtx satisfies ssh.Context for handler-level tests.
type fakeCtx struct {
	context.Context
	sync.Mutex
	user   string
	values map[any]any
}

func newFakeCtx(user string) *fakeCtx {
	return &fakeCtx{Context: context.Background(), user: user, values: map[any]any{}}
}

func (c *fakeCtx) User() string                { return c.user }
func (c *fakeCtx) SessionID() string           { return "test-session" }
func (c *fakeCtx) ClientVersion() string       { return "SSH-2.0-test" }
func (c *fakeCtx) ServerVersion() string       { return "SSH-2.0-test" }
func (c *fakeCtx) RemoteAddr() net.Addr        { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000} }
func (c *fakeCtx) LocalAddr() net.Addr         { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8022} }
func (c *fakeCtx) Permissions() *ssh.Permissions { return nil }
func (c *fakeCtx) SetValue(key, value any)     { c.values[key] = value }

func (c *fakeCtx) Value(key any) any {
	if v, ok := c.values[key]; ok {
		return v
	}
	return c.Context.Value(key)
}

func newTestServer(t *testing.T) (*Server, *store.SQLite) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenSQLite(filepath.Join(dir, "itter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.HostKeyPath = filepath.Join(dir, "host_key")
	cfg.IPHashSalt = "pepper"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := notify.NewHub(logger)
	srv, err := New(cfg, st, hub, func(_ context.Context, ev notify.Event) { hub.Publish(ev) }, logger)
	require.NoError(t, err)
	return srv, st
}

func genClientKey(t *testing.T) (gossh.Signer, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)
	sshPub, err := gossh.NewPublicKey(pub)
	require.NoError(t, err)
	return signer, strings.TrimSpace(string(gossh.MarshalAuthorizedKey(sshPub)))
}

func TestLoadOrCreateHostKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host_key")

	created, err := loadOrCreateHostKey(path)
	require.NoError(t, err)

	loaded, err := loadOrCreateHostKey(path)
	require.NoError(t, err)
	assert.Equal(t,
		created.PublicKey().Marshal(),
		loaded.PublicKey().Marshal())
}

func TestAuthenticate(t *testing.T) {
	srv, st := newTestServer(t)
	signer, authorized := genClientKey(t)
	_, err := st.CreateUser(context.Background(), "ripley", authorized)
	require.NoError(t, err)

	t.Run("login with registered key", func(t *testing.T) {
		ctx := newFakeCtx("ripley")
		assert.True(t, srv.authenticate(ctx, signer.PublicKey()))
		assert.Equal(t, authorized, ctx.Value(pubKeyCtxKey{}))
	})

	t.Run("login with unknown key", func(t *testing.T) {
		other, _ := genClientKey(t)
		assert.False(t, srv.authenticate(newFakeCtx("ripley"), other.PublicKey()))
	})

	t.Run("login for unknown user", func(t *testing.T) {
		assert.False(t, srv.authenticate(newFakeCtx("nobody"), signer.PublicKey()))
	})

	t.Run("registration accepts any key for a free name", func(t *testing.T) {
		ctx := newFakeCtx("register:newbie")
		assert.True(t, srv.authenticate(ctx, signer.PublicKey()))
		assert.Equal(t, authorized, ctx.Value(pubKeyCtxKey{}))
	})

	t.Run("registration rejects taken name case-insensitively", func(t *testing.T) {
		assert.False(t, srv.authenticate(newFakeCtx("register:RIPLEY"), signer.PublicKey()))
	})

	t.Run("registration rejects bad format", func(t *testing.T) {
		assert.False(t, srv.authenticate(newFakeCtx("register:no"), signer.PublicKey()))
		assert.False(t, srv.authenticate(newFakeCtx("register:has space"), signer.PublicKey()))
	})
}

func TestBannerMessages(t *testing.T) {
	srv, st := newTestServer(t)
	_, authorized := genClientKey(t)
	_, err := st.CreateUser(context.Background(), "ripley", authorized)
	require.NoError(t, err)

	assert.Empty(t, srv.banner(newFakeCtx("ripley")))
	assert.Empty(t, srv.banner(newFakeCtx("register:newbie")))
	assert.Equal(t, "Sorry, 'Ripley' is already taken.\r\n", srv.banner(newFakeCtx("register:Ripley")))
	assert.Equal(t,
		"Registration failed: Invalid username format (3-20 alphanumeric/underscore).\r\n",
		srv.banner(newFakeCtx("register:x")))
}

func TestClientIPHash(t *testing.T) {
	srv, _ := newTestServer(t)

	h := srv.clientIPHash(&net.TCPAddr{IP: net.IPv4(203, 0, 113, 9), Port: 40000})
	assert.Len(t, h, 64)
	same := srv.clientIPHash(&net.TCPAddr{IP: net.IPv4(203, 0, 113, 9), Port: 41234})
	assert.Equal(t, h, same, "hash must not depend on the source port")

	srv.cfg.IPHashSalt = ""
	assert.Empty(t, srv.clientIPHash(&net.TCPAddr{IP: net.IPv4(203, 0, 113, 9), Port: 40000}))
}

// lockedBuffer captures session output across goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func dialTest(t *testing.T, addr, user string, signer gossh.Signer) (*gossh.Client, string, error) {
	t.Helper()
	var banner string
	client, err := gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		BannerCallback: func(message string) error {
			banner = message
			return nil
		},
		Timeout: 5 * time.Second,
	})
	return client, banner, err
}

func TestRegistrationAndLoginOverSSH(t *testing.T) {
	srv, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())
	addr := ln.Addr().String()

	signer, _ := genClientKey(t)

	// Register a new account.
	client, _, err := dialTest(t, addr, "register:newbie", signer)
	require.NoError(t, err)
	sess, err := client.NewSession()
	require.NoError(t, err)
	regOut := &lockedBuffer{}
	sess.Stdout = regOut
	require.NoError(t, sess.Shell())
	sess.Wait()
	client.Close()
	assert.Contains(t, regOut.String(), "Registration successful as user 'newbie'!")
	assert.Contains(t, regOut.String(), "Have fun & see you on the other side!")

	// The same name is now rejected before any session is opened.
	_, banner, err := dialTest(t, addr, "register:newbie", signer)
	require.Error(t, err)
	assert.Contains(t, banner, "Sorry, 'newbie' is already taken.")

	// Log in with the registered key and run a session.
	client, _, err = dialTest(t, addr, "newbie", signer)
	require.NoError(t, err)
	defer client.Close()
	sess, err = client.NewSession()
	require.NoError(t, err)
	require.NoError(t, sess.RequestPty("xterm", 24, 80, gossh.TerminalModes{}))

	out := &lockedBuffer{}
	sess.Stdout = out
	stdin, err := sess.StdinPipe()
	require.NoError(t, err)
	require.NoError(t, sess.Shell())

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "(newbie)itter> ")
	}, 5*time.Second, 20*time.Millisecond, "prompt never appeared")

	_, err = stdin.Write([]byte("exit\r"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "itter.sh says: Don't let the door hit you!")
	}, 5*time.Second, 20*time.Millisecond)
	sess.Wait()

	// A login without a PTY is refused.
	sess2, err := client.NewSession()
	require.NoError(t, err)
	noPty, _ := sess2.CombinedOutput("")
	assert.Contains(t, string(noPty), "itter.sh needs a terminal.")
}
