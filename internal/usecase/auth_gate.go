package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/loki_dashboard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const SessionTTL = 24 * time.Hour

type AuthState int

const (
	LoggedOut AuthState = iota
	LoggedIn
)

func (s AuthState) String() string {
	if s == LoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

// Credentials are the reference login values from deployment config. Password
// may be a bcrypt hash.
type Credentials struct {
	Email    string
	Password string
}

// AuthGate decides whether the dashboard is mounted at all. It is a UI gate
// with a static credential pair, not a security boundary: the token never
// reaches the bot backend.
type AuthGate struct {
	store   domain.SessionStore
	creds   Credentials
	logger  *zap.Logger
	timeNow func() time.Time
	token   func() string

	mu        sync.Mutex
	session   *domain.AuthSession
	listeners []func(AuthState)
}

// NewAuthGate restores the persisted session. An expired session is cleared
// and the gate starts logged out.
func NewAuthGate(ctx context.Context, store domain.SessionStore, creds Credentials, logger *zap.Logger) (*AuthGate, error) {
	g := &AuthGate{
		store:   store,
		creds:   creds,
		logger:  logger.Named("auth"),
		timeNow: time.Now,
		token:   uuid.NewString,
	}
	if err := g.restore(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *AuthGate) restore(ctx context.Context) error {
	s, err := g.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if s == nil {
		return nil
	}
	if s.Expired(g.timeNow()) {
		g.logger.Info("Persisted session expired", zap.Time("expiresAt", s.ExpiresAt))
		if err := g.store.ClearSession(ctx); err != nil {
			return fmt.Errorf("clear expired session: %w", err)
		}
		return nil
	}
	g.mu.Lock()
	g.session = s
	g.mu.Unlock()
	g.logger.Info("Session restored", zap.Time("expiresAt", s.ExpiresAt))
	return nil
}

// Login returns false on a credential mismatch. An error is returned only when
// the session cannot be persisted.
func (g *AuthGate) Login(ctx context.Context, email, password string) (bool, error) {
	if !g.matches(email, password) {
		g.logger.Warn("Login rejected")
		return false, nil
	}

	s := &domain.AuthSession{
		Token:     g.token(),
		ExpiresAt: g.timeNow().Add(SessionTTL),
	}
	if err := g.store.SaveSession(ctx, s); err != nil {
		return false, fmt.Errorf("persist session: %w", err)
	}

	g.mu.Lock()
	g.session = s
	g.mu.Unlock()

	g.logger.Info("Login accepted", zap.Time("expiresAt", s.ExpiresAt))
	g.emit(LoggedIn)
	return true, nil
}

// Logout clears the persisted session unconditionally.
func (g *AuthGate) Logout(ctx context.Context) error {
	g.mu.Lock()
	was := g.session != nil
	g.session = nil
	g.mu.Unlock()

	if err := g.store.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if was {
		g.logger.Info("Logged out")
		g.emit(LoggedOut)
	}
	return nil
}

func (g *AuthGate) State() AuthState {
	if g.Session() == nil {
		return LoggedOut
	}
	return LoggedIn
}

func (g *AuthGate) IsAuthenticated() bool {
	return g.State() == LoggedIn
}

// Session returns the live session, or nil. A session observed past its
// expiry is dropped from memory; the persisted copy is cleared on the next
// restore or logout.
func (g *AuthGate) Session() *domain.AuthSession {
	g.mu.Lock()
	s := g.session
	expired := s != nil && s.Expired(g.timeNow())
	if expired {
		g.session = nil
	}
	g.mu.Unlock()

	if expired {
		g.logger.Info("Session expired", zap.Time("expiresAt", s.ExpiresAt))
		g.emit(LoggedOut)
		return nil
	}
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Authorize reports whether token belongs to the live session.
func (g *AuthGate) Authorize(token string) bool {
	s := g.Session()
	if s == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) == 1
}

// OnChange registers fn for LoggedIn/LoggedOut transitions.
func (g *AuthGate) OnChange(fn func(AuthState)) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

func (g *AuthGate) emit(state AuthState) {
	g.mu.Lock()
	listeners := append([]func(AuthState){}, g.listeners...)
	g.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

func (g *AuthGate) matches(email, password string) bool {
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(g.creds.Email)) == 1
	var passOK bool
	if isBcryptHash(g.creds.Password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(g.creds.Password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(g.creds.Password)) == 1
	}
	return emailOK && passOK && g.creds.Email != ""
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
