// Package session owns the process-wide authentication state: one
// Session per process, mutated only here, with atomic snapshots for
// consumers. The persisted token in durable storage is the single source
// of truth; the in-memory state never claims authenticated unless
// persistence confirmed.
package session

import (
	"context"
	"errors"
	"sync"

	"gramsync/pkg/logger"
	"gramsync/pkg/metrics"
	"gramsync/pkg/storage"
	"gramsync/pkg/token"
)

// TokenKey is the durable-storage key holding the raw credential. The
// transport layer reads the same key independently.
const TokenKey = "token"

// Session is the process-wide authentication snapshot. It starts in
// Loading=true and resolves after the initial Restore.
type Session struct {
	Token         string
	Authenticated bool
	Loading       bool
}

// Store manages the Session lifecycle. At most one Store is active per
// process; it is constructed once in main and injected where needed.
type Store struct {
	// mu guards state; every transition is atomic from a consumer's view.
	mu    sync.Mutex
	kv    storage.KV
	state Session

	// onLogout runs on every true authenticated->unauthenticated
	// transition (not the boot default) so the data cache scoped to the
	// previous identity gets cleared.
	onLogout func()
}

// NewStore builds the session store. onLogout may be nil.
func NewStore(kv storage.KV, onLogout func()) *Store {
	return &Store{
		kv:       kv,
		state:    Session{Loading: true},
		onLogout: onLogout,
	}
}

// State returns an atomic snapshot of the session.
func (s *Store) State() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Restore reads the persisted token once at process start. Absent or
// expired tokens resolve to unauthenticated (an expired persisted token
// is also deleted); a storage read failure is treated as absent. The
// loading flag always resolves, even on failure.
func (s *Store) Restore(ctx context.Context) {
	raw, err := s.kv.Get(TokenKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.resolve("", false)
	case err != nil:
		logger.Error("session_restore_read_failed", "error", err)
		s.resolve("", false)
	case token.IsExpired(raw):
		logger.Info("session_restore_token_expired")
		if derr := s.kv.Delete(TokenKey); derr != nil {
			logger.Warn("session_restore_delete_failed", "error", derr)
		}
		s.resolve("", false)
	default:
		logger.Info("session_restored")
		s.resolve(raw, true)
	}
}

func (s *Store) resolve(tok string, authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Session{Token: tok, Authenticated: authenticated, Loading: false}
	if authenticated {
		metrics.SessionTransitionsTotal.WithLabelValues("authenticated").Inc()
	} else {
		metrics.SessionTransitionsTotal.WithLabelValues("unauthenticated").Inc()
	}
}

// Authenticate persists the token, then flips the in-memory state. On a
// persistence failure the error is returned and the state stays
// unauthenticated: memory must never claim a session storage did not
// confirm. When the failure demotes an already-authenticated session,
// the logout cascade runs like any other authenticated->unauthenticated
// transition, so the previous identity's cache does not outlive it.
func (s *Store) Authenticate(ctx context.Context, tok string) error {
	if err := s.kv.Set(TokenKey, tok); err != nil {
		logger.Error("session_persist_failed", "error", err)
		s.mu.Lock()
		wasAuthenticated := s.state.Authenticated
		s.state = Session{Loading: false}
		s.mu.Unlock()
		if wasAuthenticated {
			metrics.SessionTransitionsTotal.WithLabelValues("unauthenticated").Inc()
			if s.onLogout != nil {
				s.onLogout()
			}
		}
		return err
	}
	s.mu.Lock()
	s.state = Session{Token: tok, Authenticated: true, Loading: false}
	s.mu.Unlock()
	metrics.SessionTransitionsTotal.WithLabelValues("authenticated").Inc()
	logger.Info("session_authenticated")
	return nil
}

// Invalidate deletes the persisted token and resets the state. It is
// idempotent and never fails observably: logout must always succeed from
// the caller's perspective, so storage errors are swallowed (logged
// only). A user-triggered logout racing a server-triggered one converges
// to the same terminal state.
func (s *Store) Invalidate(ctx context.Context) {
	if err := s.kv.Delete(TokenKey); err != nil {
		logger.Warn("session_invalidate_delete_failed", "error", err)
	}
	s.mu.Lock()
	wasAuthenticated := s.state.Authenticated
	s.state = Session{Loading: false}
	s.mu.Unlock()
	if wasAuthenticated {
		metrics.SessionTransitionsTotal.WithLabelValues("unauthenticated").Inc()
		logger.Info("session_invalidated")
		if s.onLogout != nil {
			s.onLogout()
		}
	}
}
