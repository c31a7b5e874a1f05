package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidSession   = errors.New("invalid session")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionReplaced  = errors.New("session replaced")
)

// Listener is notified with a copy of the session after every change.
// Listeners run synchronously on the mutating goroutine and must not mutate the store.
type Listener func(Session)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Store is the single source of truth for the current session.
// Writes are serialized; reads never block on persistence or listeners.
type Store struct {
	repo    Repo
	nowFunc func() time.Time
	logger  zerolog.Logger

	writeMu    sync.Mutex // serializes mutate, persist and notify
	mu         sync.RWMutex
	session    Session
	generation uint64

	listenersMu    sync.Mutex
	listeners      []listenerEntry
	nextListenerID uint64

	hydrateOnce sync.Once
	ready       chan struct{}
}

type Option func(*Store)

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store. A nil repo disables persistence.
func NewStore(repo Repo, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		nowFunc: time.Now,
		logger:  zerolog.Nop(),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's notion of the current time
func (s *Store) Now() time.Time {
	return s.nowFunc()
}

// Hydrate loads the persisted snapshot. It runs once; later calls return nil immediately.
// Ready is closed when hydration finishes, whatever the outcome.
func (s *Store) Hydrate(ctx context.Context) (err error) {
	s.hydrateOnce.Do(func() {
		defer close(s.ready)
		err = s.hydrate(ctx)
	})
	return err
}

func (s *Store) hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snapshot, err := s.repo.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		return nil
	case errors.Is(err, users.ErrUnknownRole):
		s.logger.Warn().Err(err).Msg("discarding persisted session with unknown role")
		return s.repo.Delete(ctx)
	case err != nil:
		return fmt.Errorf("failed to load session: %w", err)
	}

	restored := snapshot.session()
	if restored.User == nil || !restored.User.Role.Valid() || restored.AccessToken == "" {
		s.logger.Warn().Msg("discarding incomplete persisted session")
		return s.repo.Delete(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.generation != 0 {
		// A login already happened; it wins over the stale snapshot
		s.mu.Unlock()
		return nil
	}
	s.session = restored
	s.mu.Unlock()

	s.logger.Debug().
		Str("userID", restored.User.ID).
		Time("expiry", restored.AccessTokenExpiry).
		Msg("session hydrated")

	s.notify(restored.clone())
	return nil
}

// Ready is closed once Hydrate has completed
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitHydrated blocks until hydration completes or ctx is done
func (s *Store) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetSession replaces the whole session
func (s *Store) SetSession(ctx context.Context, user *users.User, tokens Tokens) error {
	if user == nil || tokens.AccessToken == "" {
		return ErrInvalidSession
	}
	if !user.Role.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidSession, users.ErrUnknownRole, user.Role)
	}

	return s.mutate(ctx, func(cur Session, now time.Time) (Session, bool, error) {
		return Session{
			User:              user.Clone(),
			AccessToken:       tokens.AccessToken,
			AccessTokenExpiry: now.Add(tokens.ExpiresIn),
			RefreshToken:      tokens.RefreshToken,
		}, true, nil
	})
}

// RotateTokens replaces the access token and its expiry after a refresh. The refresh token
// is only replaced when a new one is supplied. generation must match Generation() as read
// before the refresh started, so a refresh that raced a logout or a new login is dropped
// with ErrSessionReplaced.
func (s *Store) RotateTokens(ctx context.Context, generation uint64, tokens Tokens) error {
	if tokens.AccessToken == "" {
		return ErrInvalidSession
	}
	return s.mutate(ctx, func(cur Session, now time.Time) (Session, bool, error) {
		if s.generation != generation {
			return cur, false, ErrSessionReplaced
		}
		if !cur.IsAuthenticated() {
			return cur, false, ErrNotAuthenticated
		}
		cur.AccessToken = tokens.AccessToken
		cur.AccessTokenExpiry = now.Add(tokens.ExpiresIn)
		if tokens.RefreshToken != "" {
			cur.RefreshToken = tokens.RefreshToken
		}
		return cur, false, nil
	})
}

// ClearSession resets every field at once
func (s *Store) ClearSession(ctx context.Context) error {
	return s.mutate(ctx, func(Session, time.Time) (Session, bool, error) {
		return Session{}, true, nil
	})
}

// ClearSessionIf clears the session only while it is still the generation the caller
// observed. It reports whether the session was cleared.
func (s *Store) ClearSessionIf(ctx context.Context, generation uint64) (bool, error) {
	cleared := false
	err := s.mutate(ctx, func(cur Session, _ time.Time) (Session, bool, error) {
		if s.generation != generation {
			return cur, false, ErrSessionReplaced
		}
		cleared = true
		return Session{}, true, nil
	})
	if errors.Is(err, ErrSessionReplaced) {
		return false, nil
	}
	return cleared, err
}

// UpdateUser shallow-merges profile fields into the user without touching tokens
func (s *Store) UpdateUser(ctx context.Context, profile users.Profile) error {
	return s.mutate(ctx, func(cur Session, _ time.Time) (Session, bool, error) {
		if cur.User == nil {
			return cur, false, ErrNotAuthenticated
		}
		cur.User = cur.User.Merge(profile)
		return cur, false, nil
	})
}

// mutate applies fn under the write lock, then persists and notifies. replaced marks a
// whole-session change, which bumps the generation.
func (s *Store) mutate(ctx context.Context, fn func(cur Session, now time.Time) (next Session, replaced bool, err error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.nowFunc()

	s.mu.Lock()
	next, replaced, err := fn(s.session.clone(), now)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.session = next
	if replaced {
		s.generation++
	}
	s.mu.Unlock()

	persistErr := s.persist(ctx, next, now)
	s.notify(next.clone())
	return persistErr
}

func (s *Store) persist(ctx context.Context, session Session, now time.Time) error {
	if s.repo == nil {
		return nil
	}
	var err error
	if !session.IsAuthenticated() {
		err = s.repo.Delete(ctx)
	} else {
		err = s.repo.Save(ctx, session.snapshot(now))
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to persist session")
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// GetSession returns a copy of the current session
func (s *Store) GetSession() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// IsAuthenticated mirrors Session.IsAuthenticated for the current session
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAuthenticated()
}

// GetValidAccessToken returns the access token only while it has not expired
func (s *Store) GetValidAccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session.IsAccessTokenExpired(s.nowFunc()) {
		return "", false
	}
	return s.session.AccessToken, true
}

// IsAccessTokenExpired is the predicate behind GetValidAccessToken
func (s *Store) IsAccessTokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAccessTokenExpired(s.nowFunc())
}

// RefreshToken returns the current refresh token, if any
func (s *Store) RefreshToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.RefreshToken, s.session.HasRefreshToken()
}

// Generation changes every time the whole session is replaced or cleared
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Subscribe registers fn for change notifications. Call the returned func to unsubscribe.
func (s *Store) Subscribe(fn Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextListenerID++
	id := s.nextListenerID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(session Session) {
	s.listenersMu.Lock()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l.fn(session.clone())
	}
}
