// Package sshd exposes itter over SSH. Logins authenticate against
// stored public keys; connecting as "register:<name>" creates a new
// account bound to the offered key.
package sshd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/gliderlabs/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/itter-sh/itter/internal/config"
	"github.com/itter-sh/itter/internal/notify"
	"github.com/itter-sh/itter/internal/parse"
	"github.com/itter-sh/itter/internal/session"
	"github.com/itter-sh/itter/internal/store"
	"github.com/itter-sh/itter/internal/textutil"
)

const registerPrefix = "register:"

// pubKeyCtxKey carries the authorized-keys form of the key that passed
// auth from PublicKeyHandler to the session handler.
type pubKeyCtxKey struct{}

// Server is the SSH front end. It owns the listener; the store, hub
// and announce fan-out are shared with the rest of the process.
type Server struct {
	cfg      config.Config
	store    store.Store
	hub      *notify.Hub
	registry *session.Registry
	renderer *session.Renderer
	announce func(context.Context, notify.Event)
	log      *slog.Logger

	srv *ssh.Server
}

// New builds a Server. announce is called for every successfully
// posted eet; pass hub.Publish when no cross-instance bridge is
// configured.
func New(cfg config.Config, st store.Store, hub *notify.Hub, announce func(context.Context, notify.Event), logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		store:    st,
		hub:      hub,
		registry: session.NewRegistry(),
		renderer: session.NewRenderer(cfg.UI),
		announce: announce,
		log:      logger,
	}

	signer, err := loadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("host key: %w", err)
	}

	s.srv = &ssh.Server{
		Addr:             cfg.Listen,
		Handler:          s.handle,
		PublicKeyHandler: s.authenticate,
		BannerHandler:    s.banner,
	}
	s.srv.AddHostKey(signer)
	return s, nil
}

// ListenAndServe blocks serving SSH connections until Shutdown or a
// listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info("ssh server listening", "addr", s.cfg.Listen)
	err := s.srv.ListenAndServe()
	if err == ssh.ErrServerClosed {
		return nil
	}
	return err
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	err := s.srv.Serve(ln)
	if err == ssh.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener and waits for active sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// banner runs before key auth. Registration attempts with a bad or
// taken username get told why here, since the client never sees
// session output when auth is then denied.
func (s *Server) banner(ctx ssh.Context) string {
	candidate, ok := strings.CutPrefix(ctx.User(), registerPrefix)
	if !ok {
		return ""
	}
	if !parse.ValidUsername(candidate) {
		return "Registration failed: Invalid username format (3-20 alphanumeric/underscore).\r\n"
	}
	taken, err := s.store.UsernameTaken(ctx, candidate)
	if err != nil {
		s.log.Error("registration lookup failed", "username", candidate, "error", err)
		return "Registration failed: server error. Please try again later.\r\n"
	}
	if taken != "" {
		return fmt.Sprintf("Sorry, '%s' is already taken.\r\n", candidate)
	}
	return ""
}

func (s *Server) authenticate(ctx ssh.Context, key ssh.PublicKey) bool {
	offered := strings.TrimSpace(string(gossh.MarshalAuthorizedKey(key)))

	if candidate, ok := strings.CutPrefix(ctx.User(), registerPrefix); ok {
		if !parse.ValidUsername(candidate) {
			return false
		}
		taken, err := s.store.UsernameTaken(ctx, candidate)
		if err != nil || taken != "" {
			return false
		}
		ctx.SetValue(pubKeyCtxKey{}, offered)
		return true
	}

	user, err := s.store.UserByName(ctx, ctx.User())
	if err != nil {
		if err != store.ErrNotFound {
			s.log.Error("login lookup failed", "username", ctx.User(), "error", err)
		}
		return false
	}
	keys, err := s.store.PublicKeys(ctx, user.ID)
	if err != nil {
		s.log.Error("key lookup failed", "username", user.Username, "error", err)
		return false
	}
	for _, stored := range keys {
		parsed, _, _, _, err := gossh.ParseAuthorizedKey([]byte(stored.Key))
		if err != nil {
			s.log.Warn("stored key unparseable", "username", user.Username, "key_name", stored.Name)
			continue
		}
		if ssh.KeysEqual(key, parsed) {
			ctx.SetValue(pubKeyCtxKey{}, offered)
			return true
		}
	}
	return false
}

func (s *Server) handle(conn ssh.Session) {
	if candidate, ok := strings.CutPrefix(conn.User(), registerPrefix); ok {
		s.handleRegistration(conn, candidate)
		return
	}
	s.handleLogin(conn)
}

// handleRegistration creates the account and disconnects. The user is
// expected to reconnect as the new username.
func (s *Server) handleRegistration(conn ssh.Session, candidate string) {
	key, _ := conn.Context().Value(pubKeyCtxKey{}).(string)
	if key == "" {
		fmt.Fprintf(conn, "ERROR: Registration Error: Missing username or public key.\r\n")
		conn.Exit(1)
		return
	}
	if _, err := s.store.CreateUser(conn.Context(), candidate, key); err != nil {
		if store.IsUserError(err) {
			fmt.Fprintf(conn, "ERROR: Registration failed. Details: %s\r\n", err)
		} else {
			s.log.Error("registration failed", "username", candidate, "error", err)
			fmt.Fprintf(conn, "ERROR: Registration failed. Please try again later.\r\n")
		}
		conn.Exit(1)
		return
	}
	s.log.Info("user registered", "username", candidate)
	fmt.Fprintf(conn,
		"\r\nRegistration successful as user '%s'!\r\n"+
			"You can now log in via:\r\n"+
			"\r\n"+
			"  > %sssh %s@app.itter.sh%s\r\n"+
			"\r\n"+
			"or %sssh%s %s-i /path/to/your/private_key%s %s%s@app.itter.sh%s\r\n"+
			"Have fun & see you on the other side!\r\n\r\n",
		candidate,
		textutil.Bold, candidate, textutil.Reset,
		textutil.Bold, textutil.Reset,
		textutil.FgBrightBlack, textutil.Reset,
		textutil.Bold, candidate, textutil.Reset)
	conn.Exit(0)
}

func (s *Server) handleLogin(conn ssh.Session) {
	ctx := conn.Context()
	user, err := s.store.UserByName(ctx, conn.User())
	if err != nil {
		s.log.Error("login session without user", "username", conn.User(), "error", err)
		fmt.Fprintf(conn, "An unexpected server error occurred.\r\n")
		conn.Exit(1)
		return
	}

	if key, _ := ctx.Value(pubKeyCtxKey{}).(string); key != "" {
		if err := s.store.TouchPublicKey(ctx, user.ID, key); err != nil {
			s.log.Warn("touch public key failed", "username", user.Username, "error", err)
		}
	}

	pty, winCh, isPty := conn.Pty()
	if !isPty {
		fmt.Fprintf(conn, "itter.sh needs a terminal. Try: ssh -t %s@app.itter.sh\r\n", user.Username)
		conn.Exit(1)
		return
	}

	log := s.log.With("username", user.Username, "remote", conn.RemoteAddr().String())
	log.Info("session opened", "term", pty.Term, "width", pty.Window.Width, "height", pty.Window.Height)

	sess := session.New(session.Deps{
		Store:    s.store,
		Hub:      s.hub,
		Registry: s.registry,
		Renderer: s.renderer,
		Config:   s.cfg,
		Logger:   log,
		Announce: s.announce,
	}, user, conn, s.clientIPHash(conn.RemoteAddr()), pty.Window.Width, pty.Window.Height)

	// A canceled context just means the client hung up.
	if err := sess.Run(ctx, conn, winCh); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("session ended with error", "error", err)
		conn.Exit(1)
		return
	}
	log.Info("session closed")
	conn.Exit(0)
}

// clientIPHash returns the salted hash stored alongside posts. Empty
// when no salt is configured or the address has no host part.
func (s *Server) clientIPHash(addr net.Addr) string {
	if s.cfg.IPHashSalt == "" || addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return textutil.HashIP(s.cfg.IPHashSalt, host)
}

// loadOrCreateHostKey reads the host key at path, generating and
// persisting an ed25519 key on first start.
func loadOrCreateHostKey(path string) (gossh.Signer, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		signer, err := gossh.ParsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return signer, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	block, err := gossh.MarshalPrivateKey(priv, "itterd host key")
	if err != nil {
		return nil, fmt.Errorf("marshal host key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return gossh.NewSignerFromKey(priv)
}
