// Package session owns the authentication state of the client: the stored
// token, the cached profile and the navigation that follows login, logout
// and forced logout.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/audit"
	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/internal/storage"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

type Status int

const (
	// StatusUnknown means CheckAuth has not resolved yet.
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	Status Status
	// ExpiresAt is the unverified exp claim of a JWT token, if any.
	ExpiresAt *time.Time
	Username  string
}

func (s Snapshot) Authenticated() bool { return s.Status == StatusAuthenticated }

// Navigator receives the routing directives that follow state changes.
type Navigator interface {
	ToLogin()
	ToHome()
}

// Notifier shows a user-visible alert.
type Notifier interface {
	Alert(title, message string)
}

type Option func(*Manager)

// WithRecorder sends session events to the audit trail.
func WithRecorder(r audit.Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.audit = r
		}
	}
}

// Manager is the single owner of the session token.
type Manager struct {
	store    storage.Store
	nav      Navigator
	notifier Notifier
	log      *zap.Logger
	audit    audit.Recorder

	mu       sync.RWMutex
	snapshot Snapshot
	closed   bool
}

func NewManager(store storage.Store, nav Navigator, notifier Notifier, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		nav:      nav,
		notifier: notifier,
		log:      logging.OrNop(log).Named("session"),
		audit:    audit.Nop{},
		snapshot: Snapshot{Status: StatusUnknown},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Login persists token and marks the session authenticated, then navigates
// to the authenticated area. A storage failure is reported through the
// notifier and leaves the state unchanged.
func (m *Manager) Login(ctx context.Context, token string) {
	if m.isClosed() {
		m.log.Warn("login after close ignored")
		return
	}
	if token == "" {
		m.fail("login", errors.ErrInvalidInput, "Login failed", "The server returned an empty token.")
		return
	}

	if err := m.store.Set(ctx, storage.KeyUserToken, token); err != nil {
		m.fail("login", err, "Login failed", "Could not save your session. Please try again.")
		return
	}

	next := Snapshot{
		Status:    StatusAuthenticated,
		ExpiresAt: tokenExpiry(token),
		Username:  m.cachedUsername(ctx),
	}
	m.set(next)

	m.record(ctx, audit.ActionLogin, audit.LevelInfo, "")
	m.nav.ToHome()
}

// Logout removes the token and the cached profile and navigates to login.
// A storage failure is reported through the notifier and leaves the state
// unchanged.
func (m *Manager) Logout(ctx context.Context) {
	if m.isClosed() {
		m.log.Warn("logout after close ignored")
		return
	}

	if err := m.clear(ctx); err != nil {
		m.fail("logout", err, "Logout failed", "Could not clear your session. Please try again.")
		return
	}

	m.set(Snapshot{Status: StatusUnauthenticated})
	m.record(ctx, audit.ActionLogout, audit.LevelInfo, "")
	m.nav.ToLogin()
}

// ForceLogout is the 401 path. The session ends even when the store cannot
// be cleared; the failure is logged.
func (m *Manager) ForceLogout(ctx context.Context, reason string) {
	if m.isClosed() {
		return
	}

	if err := m.clear(ctx); err != nil {
		m.log.Error("failed to clear session after auth failure", zap.Error(err))
	}

	m.set(Snapshot{Status: StatusUnauthenticated})
	m.log.Warn("session invalidated by server", zap.String("reason", reason))
	m.record(ctx, audit.ActionForcedLogout, audit.LevelWarning, reason)
	m.nav.ToLogin()
}

// CheckAuth resolves the session from storage. A present token means
// authenticated; an absent token or a read failure means unauthenticated
// and navigates to login.
func (m *Manager) CheckAuth(ctx context.Context) Status {
	if m.isClosed() {
		return m.Snapshot().Status
	}

	token, ok, err := m.store.Get(ctx, storage.KeyUserToken)
	if err != nil {
		m.log.Error("failed to read session token", zap.Error(err))
	}
	if err != nil || !ok || token == "" {
		m.set(Snapshot{Status: StatusUnauthenticated})
		m.nav.ToLogin()
		return StatusUnauthenticated
	}

	next := Snapshot{
		Status:    StatusAuthenticated,
		ExpiresAt: tokenExpiry(token),
		Username:  m.cachedUsername(ctx),
	}
	if next.ExpiresAt != nil && next.ExpiresAt.Before(time.Now()) {
		m.log.Warn("stored token looks expired", zap.Time("expires_at", *next.ExpiresAt))
	}
	m.set(next)

	return StatusAuthenticated
}

// Token returns the stored token, or "" when there is none.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if m.isClosed() {
		return "", errors.ErrSessionClosed
	}
	token, _, err := m.store.Get(ctx, storage.KeyUserToken)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return token, nil
}

// SaveProfile overwrites the cached profile.
func (m *Manager) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if m.isClosed() {
		return errors.ErrSessionClosed
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := m.store.Set(ctx, storage.KeyUserData, string(data)); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	m.mu.Lock()
	if m.snapshot.Status == StatusAuthenticated {
		m.snapshot.Username = profile.Username
	}
	m.mu.Unlock()

	return nil
}

// Profile returns the cached profile and whether one exists.
func (m *Manager) Profile(ctx context.Context) (*models.UserProfile, bool, error) {
	raw, ok, err := m.store.Get(ctx, storage.KeyUserData)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read profile: %w", err)
	}
	if !ok || raw == "" {
		return nil, false, nil
	}

	var profile models.UserProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, false, fmt.Errorf("cached profile is corrupt: %w", err)
	}
	return &profile, true, nil
}

// Close stops the manager. Later state changes are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Manager) clear(ctx context.Context) error {
	if err := m.store.Remove(ctx, storage.KeyUserToken); err != nil {
		return err
	}
	return m.store.Remove(ctx, storage.KeyUserData)
}

func (m *Manager) set(s Snapshot) {
	m.mu.Lock()
	m.snapshot = s
	m.mu.Unlock()
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) cachedUsername(ctx context.Context) string {
	profile, ok, err := m.Profile(ctx)
	if err != nil || !ok {
		return ""
	}
	return profile.Username
}

func (m *Manager) fail(op string, err error, title, message string) {
	m.log.Error(op+" failed", zap.Error(err))
	m.notifier.Alert(title, message)
}

func (m *Manager) record(ctx context.Context, action string, level audit.LogLevel, reason string) {
	event := &audit.Event{
		Level:    level,
		Action:   action,
		Resource: "session",
		Success:  true,
		Metadata: reason,
	}
	if err := m.audit.Log(event); err != nil {
		m.log.Warn("failed to record audit event", zap.String("action", action), zap.Error(err))
	}
}

// tokenExpiry decodes the exp claim without verifying the signature. The
// server stays the authority; this is for display and warnings only.
func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
