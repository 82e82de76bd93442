// Package session owns the authentication credential and its lifecycle:
// loading it from the token store at startup, injecting it into outbound
// requests, and tearing the session down exactly once when the service
// reports an authorization failure or the user logs out.
package session

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Manager holds at most one active credential. Every cached resource is
// scoped to that credential, so clearing it must run the registered
// teardown hooks (cache flush, logout listeners) before anything else can
// observe the unauthenticated state.
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	token string

	hooksMu sync.Mutex
	hooks   []func()
}

// NewManager wires a manager around the given token store. The credential
// is not loaded until Load is called.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: store, logger: logger, now: time.Now}
}

// OnTeardown registers a hook that runs whenever the credential is cleared,
// either by logout or by an authorization failure. Hooks run outside the
// credential lock and fire once per teardown.
func (m *Manager) OnTeardown(fn func()) {
	if fn == nil {
		return
	}
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Load restores a persisted credential. Tokens whose JWT expiry has already
// passed are discarded instead of restored; a call made with one would only
// bounce off the service as a 401.
func (m *Manager) Load() error {
	token, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("session: load credential: %w", err)
	}
	if token == "" {
		return nil
	}
	if expired, exp := tokenExpired(token, m.now()); expired {
		m.logger.Info("discarding expired credential", slog.Time("expired_at", exp))
		if err := m.store.Clear(); err != nil {
			return fmt.Errorf("session: clear expired credential: %w", err)
		}
		return nil
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// SetCredential stores a new credential, or clears the session when token
// is empty. Clearing runs the teardown hooks; storing does not.
func (m *Manager) SetCredential(token string) error {
	if token == "" {
		m.teardown("logout")
		return nil
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	if err := m.store.Save(token); err != nil {
		return fmt.Errorf("session: persist credential: %w", err)
	}
	return nil
}

// Credential returns the active token, if any.
func (m *Manager) Credential() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

// Attach decorates an outgoing request with the bearer credential. It is a
// no-op while unauthenticated.
func (m *Manager) Attach(req *http.Request) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// AuthorizationFailure tears the session down after a 401. It is idempotent
// under concurrency: when several in-flight requests fail at once, only the
// first to arrive clears the credential and runs the hooks.
func (m *Manager) AuthorizationFailure() {
	m.teardown("authorization failure")
}

func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	if m.token == "" {
		m.mu.Unlock()
		return
	}
	m.token = ""
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("credential store clear failed", slog.Any("error", err))
	}
	m.logger.Info("session torn down", slog.String("reason", reason))
	m.runHooks()
}

func (m *Manager) runHooks() {
	m.hooksMu.Lock()
	hooks := make([]func(), len(m.hooks))
	copy(hooks, m.hooks)
	m.hooksMu.Unlock()
	for _, hook := range hooks {
		hook()
	}
}

// adopt installs a credential observed outside this process (token file
// rewritten by another invocation). It bypasses Save so the watcher does not
// feed back into itself. Replacing one live credential with another runs the
// teardown hooks first: the new token may belong to a different account, and
// state cached under the old one must not survive the swap.
func (m *Manager) adopt(token string) {
	if token == "" {
		m.teardown("credential removed externally")
		return
	}
	if expired, exp := tokenExpired(token, m.now()); expired {
		// The file holds a token that is already dead. Drop our
		// credential without clearing the store; the file belongs to
		// whichever process wrote it.
		m.logger.Info("ignoring expired credential from disk", slog.Time("expired_at", exp))
		m.mu.Lock()
		hadToken := m.token != ""
		m.token = ""
		m.mu.Unlock()
		if hadToken {
			m.runHooks()
		}
		return
	}
	m.mu.Lock()
	replaced := m.token != "" && m.token != token
	if replaced {
		m.token = ""
	}
	m.mu.Unlock()
	if replaced {
		m.logger.Info("session replaced externally")
		m.runHooks()
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// tokenExpired inspects the JWT expiry claim without verifying the
// signature; verification is the service's job. Opaque tokens that do not
// parse as JWTs are accepted as-is.
func tokenExpired(token string, now time.Time) (bool, time.Time) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false, time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, time.Time{}
	}
	return exp.Time.Before(now), exp.Time
}
