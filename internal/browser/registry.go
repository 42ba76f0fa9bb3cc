package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/errgroup"

	"github.com/soteldo/umbra/internal/store"
	"github.com/soteldo/umbra/pkg/schema"
)

// ProfileStatusSetter is the slice of the store the registry needs to keep
// profile status in sync with session lifetime.
type ProfileStatusSetter interface {
	SetProfileStatus(ctx context.Context, id string, status store.ProfileStatus) error
}

// SessionRegistry tracks live sessions keyed by profile ID. At most one
// session exists per profile. The registry self-heals: when a context
// closes from outside (user closes the window, browser crash), the entry
// is removed and the profile returns to idle.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	statuses ProfileStatusSetter
	logger   *slog.Logger
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(statuses ProfileStatusSetter, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		statuses: statuses,
		logger:   logger,
	}
}

// Has reports whether a live session exists for the profile.
func (r *SessionRegistry) Has(profileID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[profileID]
	return ok
}

// Get returns the session for the profile, or a NOT_FOUND error.
func (r *SessionRegistry) Get(profileID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[profileID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no active session for profile %q", profileID)
	}
	return s, nil
}

// Put registers a session and subscribes to its close event. Returns a
// CONFLICT error if the profile already has a session.
func (r *SessionRegistry) Put(session *Session) error {
	r.mu.Lock()
	if _, exists := r.sessions[session.ProfileID]; exists {
		r.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "profile %q already has an active session", session.ProfileID)
	}
	r.sessions[session.ProfileID] = session
	r.mu.Unlock()

	r.watch(session)
	return nil
}

// watch subscribes to the context close event so externally closed browsers
// are swept out of the registry without an explicit CloseOne call.
func (r *SessionRegistry) watch(session *Session) {
	bctx := session.Context()
	if bctx == nil {
		return
	}

	profileID := session.ProfileID
	sessionID := session.ID
	bctx.OnClose(func(_ playwright.BrowserContext) {
		r.sweep(profileID, sessionID)
	})
}

// sweep removes the session entry after its context closed from outside and
// returns the profile to idle. Only the session that still owns the slot is
// removed; a relaunch may have replaced it already.
func (r *SessionRegistry) sweep(profileID, sessionID string) {
	r.mu.Lock()
	current, ok := r.sessions[profileID]
	if ok && current.ID == sessionID {
		delete(r.sessions, profileID)
	}
	r.mu.Unlock()

	if !ok || current.ID != sessionID {
		return
	}

	r.logger.Info("browser context closed externally",
		slog.String("profile_id", profileID),
		slog.String("session_id", sessionID))

	if profileID != "" && r.statuses != nil {
		if err := r.statuses.SetProfileStatus(context.Background(), profileID, store.ProfileStatusIdle); err != nil {
			r.logger.Warn("failed to reset profile status after close",
				slog.String("profile_id", profileID),
				slog.String("error", err.Error()))
		}
	}
}

// ActiveProfiles returns the profile IDs with live sessions.
func (r *SessionRegistry) ActiveProfiles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseOne closes the session for a profile. Closing a profile with no live
// session is a no-op, so a second close (or a close racing the self-heal
// sweep) never fails. The registry entry is removed and the profile set idle
// regardless of the close outcome, so a wedged browser never leaves a stale
// entry behind.
func (r *SessionRegistry) CloseOne(ctx context.Context, profileID string) error {
	r.mu.Lock()
	session, ok := r.sessions[profileID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, profileID)
	r.mu.Unlock()

	closeErr := session.Close()

	if profileID != "" && r.statuses != nil {
		if err := r.statuses.SetProfileStatus(ctx, profileID, store.ProfileStatusIdle); err != nil {
			r.logger.Warn("failed to reset profile status",
				slog.String("profile_id", profileID),
				slog.String("error", err.Error()))
		}
	}

	if closeErr != nil {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"error closing session for profile %q", profileID).WithCause(closeErr)
	}
	return nil
}

// CloseAll closes every live session concurrently. Used on shutdown.
func (r *SessionRegistry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, session := range sessions {
		session := session
		g.Go(func() error {
			if err := session.Close(); err != nil {
				r.logger.Warn("error closing session",
					slog.String("profile_id", session.ProfileID),
					slog.String("error", err.Error()))
			}
			if session.ProfileID != "" && r.statuses != nil {
				_ = r.statuses.SetProfileStatus(ctx, session.ProfileID, store.ProfileStatusIdle)
			}
			return nil
		})
	}
	return g.Wait()
}
