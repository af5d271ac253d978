package guest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/twitter-archive/twitterkit-auth/internal/errors"
	"github.com/twitter-archive/twitterkit-auth/internal/logging"
	"github.com/twitter-archive/twitterkit-auth/internal/models"
)

//go:generate mockgen -destination=mock_requester.go -package=guest . TokenRequester

// TokenRequester fetches a fresh guest token. *OAuth2Service implements it.
type TokenRequester interface {
	RequestGuestAuthToken(ctx context.Context) (*models.GuestToken, error)
}

// SessionStore persists the guest session between runs. *state.State
// implements it.
type SessionStore interface {
	GuestSession() (*models.GuestSession, error)
	SetGuestSession(s *models.GuestSession) error
	ClearGuestSession() error
}

// refreshKey is the single flight key; there is one guest session per
// manager.
const refreshKey = "guest"

// SessionManager owns the shared guest session. Reads take a read lock and
// the session is replaced wholesale, never mutated. Refreshes triggered by
// concurrent callers are coalesced into one network call.
type SessionManager struct {
	requester TokenRequester
	store     SessionStore
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	session *models.GuestSession

	group singleflight.Group
}

// NewSessionManager creates a manager backed by requester. store may be
// nil; when set, a previously persisted session is loaded immediately.
func NewSessionManager(requester TokenRequester, store SessionStore, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = logging.Discard()
	}

	m := &SessionManager{
		requester: requester,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}

	if store != nil {
		s, err := store.GuestSession()
		if err != nil {
			logger.Warn("guest: loading stored session failed", slog.String("error", err.Error()))
		} else {
			m.session = s
		}
	}

	return m
}

// Session returns the held session without refreshing. It may be nil or
// expired.
func (m *SessionManager) Session() *models.GuestSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.session
}

// CurrentSession returns the held session if it is still valid, and
// otherwise obtains a new one.
func (m *SessionManager) CurrentSession(ctx context.Context) (*models.GuestSession, error) {
	current := m.Session()
	if current.IsValidAt(m.now()) {
		return current, nil
	}

	return m.RefreshSession(ctx, current)
}

// RefreshSession replaces expired with a new session. If another caller
// already replaced it with a valid session, that session is returned
// without a network call. A nil expired behaves like CurrentSession.
//
// Callers wait with their own ctx, but the shared refresh is not cancelled
// when one of them gives up.
func (m *SessionManager) RefreshSession(ctx context.Context, expired *models.GuestSession) (*models.GuestSession, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), expired)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*models.GuestSession), nil
	}
}

func (m *SessionManager) refresh(ctx context.Context, expired *models.GuestSession) (*models.GuestSession, error) {
	current := m.Session()
	if current.IsValidAt(m.now()) && (expired == nil || !current.Equal(expired)) {
		return current, nil
	}

	m.logger.Debug("guest: refreshing session")

	tok, err := m.requester.RequestGuestAuthToken(ctx)
	if err != nil {
		m.Clear()
		return nil, fmt.Errorf("refreshing guest session: %w", err)
	}

	if tok == nil {
		m.Clear()
		return nil, apperrors.ErrNoGuestToken
	}

	s := &models.GuestSession{Token: tok}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SetGuestSession(s); err != nil {
			m.logger.Warn("guest: persisting session failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

// Clear drops the held session, e.g. on logout.
func (m *SessionManager) Clear() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.ClearGuestSession(); err != nil {
			m.logger.Warn("guest: clearing stored session failed", slog.String("error", err.Error()))
		}
	}
}
