// ABOUTME: Credential store with single-flight interactive refresh and disk persistence
// ABOUTME: Concurrent callers discovering a missing credential share one login presentation

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// defaultExpirySkew is how long before recorded expiry a credential is
	// treated as stale, so requests don't race the backend's clock.
	defaultExpirySkew = 30 * time.Second

	// defaultLoginTimeout bounds the interactive login flow.
	defaultLoginTimeout = 5 * time.Minute
)

// Store owns the current session credential. It returns the cached
// credential while valid, refreshes it through the Authenticator when not,
// and persists it across process restarts.
type Store struct {
	mu     sync.RWMutex
	cred   *Credential
	loaded bool

	authenticator Authenticator
	path          string
	skew          time.Duration
	loginTimeout  time.Duration

	group  singleflight.Group
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithExpirySkew overrides the expiry safety margin.
func WithExpirySkew(d time.Duration) StoreOption {
	return func(s *Store) { s.skew = d }
}

// WithLoginTimeout bounds the interactive login flow. A timeout surfaces
// as ErrAuthenticationFailed to every waiter.
func WithLoginTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.loginTimeout = d
		}
	}
}

// NewStore creates a credential store persisting to path. An empty path
// disables persistence.
func NewStore(authenticator Authenticator, path string, opts ...StoreOption) *Store {
	s := &Store{
		authenticator: authenticator,
		path:          path,
		skew:          defaultExpirySkew,
		loginTimeout:  defaultLoginTimeout,
		logger:        slog.Default().With("component", "auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a valid credential, refreshing through the interactive
// authenticator when the cached one is missing or expired. Concurrent
// callers that both find an expired credential trigger exactly one login
// presentation and share its outcome.
func (s *Store) Get(ctx context.Context) (*Credential, error) {
	if cred := s.cached(); cred != nil {
		return cred, nil
	}

	v, err, _ := s.group.Do("login", func() (any, error) {
		// A waiter queued behind the refresh that just finished can reuse
		// its result without a second presentation.
		if cred := s.cached(); cred != nil {
			return cred, nil
		}
		return s.refresh()
	})
	if err != nil {
		return nil, err
	}
	// Callers that arrived during the flight still honor their own context.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return v.(*Credential), nil
}

// refresh drives one interactive login flow and caches the result.
func (s *Store) refresh() (*Credential, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.loginTimeout)
	defer cancel()

	s.logger.Info("presenting interactive login")
	cred, err := s.authenticator.PresentLogin(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: login timed out after %s", ErrAuthenticationFailed, s.loginTimeout)
		}
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if cred == nil || cred.Token == "" {
		return nil, fmt.Errorf("%w: authenticator returned empty credential", ErrAuthenticationFailed)
	}

	cred.fillTimesFromToken()

	s.mu.Lock()
	s.cred = cred
	s.loaded = true
	s.mu.Unlock()

	if err := s.persist(cred); err != nil {
		// A credential that cannot be persisted still works for this process.
		s.logger.Warn("failed to persist credential", "error", err)
	}

	s.logger.Info("credential refreshed", "expires_at", cred.ExpiresAt)
	return cred, nil
}

// Set caches a credential directly, bypassing the interactive flow.
func (s *Store) Set(cred *Credential) {
	if cred != nil {
		cred.fillTimesFromToken()
	}

	s.mu.Lock()
	s.cred = cred
	s.loaded = true
	s.mu.Unlock()

	if cred != nil {
		if err := s.persist(cred); err != nil {
			s.logger.Warn("failed to persist credential", "error", err)
		}
	}
}

// Invalidate clears the cached and persisted credential, forcing
// re-authentication on next use. Called on 401-class rejections.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cred = nil
	s.loaded = true
	s.mu.Unlock()

	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove persisted credential", "error", err)
		}
	}

	s.logger.Debug("credential invalidated")
}

// IsAuthenticated reports whether a valid credential is cached.
// Non-blocking: it never triggers a refresh.
func (s *Store) IsAuthenticated() bool {
	return s.cached() != nil
}

// cached returns the cached credential if still valid, loading persisted
// state on first use.
func (s *Store) cached() *Credential {
	s.mu.RLock()
	cred, loaded := s.cred, s.loaded
	s.mu.RUnlock()

	if !loaded {
		s.mu.Lock()
		if !s.loaded {
			s.cred = s.loadPersisted()
			s.loaded = true
		}
		cred = s.cred
		s.mu.Unlock()
	}

	if cred.Valid(time.Now(), s.skew) {
		return cred
	}
	return nil
}

// loadPersisted reads the credential file, if any.
func (s *Store) loadPersisted() *Credential {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read persisted credential", "error", err)
		}
		return nil
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		s.logger.Warn("ignoring malformed credential file", "path", s.path, "error", err)
		return nil
	}

	cred.fillTimesFromToken()
	s.logger.Debug("loaded persisted credential", "expires_at", cred.ExpiresAt)
	return &cred
}

// persist writes the credential file with owner-only permissions.
func (s *Store) persist(cred *Credential) error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	return nil
}
