// Package auth registers accounts, checks credentials and tracks login
// sessions. Sessions live in process memory and expire a fixed TTL after
// they are issued.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/clock"
	"github.com/ssd-technologies/photoshare/internal/credential"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

const (
	maxUsernameLen = 50
	maxPasswordLen = 1024

	msgInvalidCredentials = "invalid credentials"
	msgNotAuthenticated   = "authentication required"
)

// DefaultTTL is the session lifetime used when Options.TTL is zero.
const DefaultTTL = 24 * time.Hour

// UserStore is the subset of storage the manager needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *storage.User) error
	GetUser(ctx context.Context, id int64) (*storage.User, error)
	GetUserByLogin(ctx context.Context, login string) (*storage.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// Session is an authenticated login.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Options configures a Manager.
type Options struct {
	TTL    time.Duration
	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager owns the session table.
type Manager struct {
	store  UserStore
	hasher *credential.Hasher
	ttl    time.Duration
	clock  clock.Clock
	log    *slog.Logger

	dummyOnce sync.Once
	dummyHash string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager over store using hasher for passwords.
func NewManager(store UserStore, hasher *credential.Hasher, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:    store,
		hasher:   hasher,
		ttl:      opts.TTL,
		clock:    opts.Clock,
		log:      opts.Logger.With("component", "auth"),
		sessions: make(map[string]*Session),
	}
}

// Register creates an account. Username and email are trimmed; a taken
// username or email is a Conflict and leaves no row behind.
func (m *Manager) Register(ctx context.Context, username, email, password string) (*storage.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" || password == "" {
		return nil, apperr.Validation("username, email and password are required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return nil, apperr.Validation("username must be at most 50 characters")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("email address is invalid")
	}
	if len(password) > maxPasswordLen {
		return nil, apperr.Validation("password is too long")
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal("registration failed", err)
	}

	u := &storage.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    m.clock.Now().Unix(),
	}
	if err := m.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Conflict("username or email already exists")
		}
		return nil, apperr.Internal("registration failed", err)
	}
	m.log.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Login checks credentials and opens a session. An unknown login and a wrong
// password produce the same Unauthorized error.
func (m *Manager) Login(ctx context.Context, login, password string) (*Session, *storage.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, nil, apperr.Validation("username or email and password are required")
	}
	if len(password) > maxPasswordLen {
		return nil, nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	u, err := m.store.GetUserByLogin(ctx, login)
	if errors.Is(err, storage.ErrNotFound) {
		// Spend the same hashing time as a real check.
		m.hasher.Verify(password, m.dummy())
		return nil, nil, apperr.Unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return nil, nil, apperr.Internal("login failed", err)
	}

	ok, err := m.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, nil, apperr.Internal("login failed", err)
	}
	if !ok {
		return nil, nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	if m.hasher.NeedsRehash(u.PasswordHash) {
		m.rehash(ctx, u, password)
	}

	sess := m.issue(u)
	m.log.Info("user logged in", "user_id", u.ID)
	return sess, u, nil
}

// rehash upgrades a legacy or outdated hash. Failure only costs the upgrade.
func (m *Manager) rehash(ctx context.Context, u *storage.User, password string) {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		m.log.Warn("rehash password", "user_id", u.ID, "error", err)
		return
	}
	if err := m.store.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		m.log.Warn("store rehashed password", "user_id", u.ID, "error", err)
		return
	}
	u.PasswordHash = hash
}

func (m *Manager) dummy() string {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = m.hasher.Hash(uuid.NewString())
	})
	return m.dummyHash
}

func (m *Manager) issue(u *storage.User) *Session {
	now := m.clock.Now()
	sess := &Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.mu.Lock()
	m.sessions[sess.Token] = sess
	m.mu.Unlock()
	return sess
}

// Logout ends the session. Unknown tokens are ignored.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// Session returns the live session for token.
func (m *Manager) Session(token string) (*Session, error) {
	if token == "" {
		return nil, apperr.Unauthorized(msgNotAuthenticated)
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return nil, apperr.Unauthorized(msgNotAuthenticated)
	}
	if sess.expired(now) {
		delete(m.sessions, token)
		return nil, apperr.Unauthorized("session expired")
	}
	return sess, nil
}

// CurrentUser resolves token to its user. A session whose user has been
// deleted is dropped.
func (m *Manager) CurrentUser(ctx context.Context, token string) (*storage.User, error) {
	sess, err := m.Session(token)
	if err != nil {
		return nil, err
	}
	u, err := m.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		m.Logout(token)
		return nil, apperr.Unauthorized(msgNotAuthenticated)
	}
	if err != nil {
		return nil, apperr.Internal("session lookup failed", err)
	}
	return u, nil
}

// RevokeUser drops every session of a user and returns how many there were.
func (m *Manager) RevokeUser(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, sess := range m.sessions {
		if sess.UserID == userID {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

// SweepExpired removes expired sessions and returns how many were removed.
func (m *Manager) SweepExpired() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, sess := range m.sessions {
		if sess.expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
