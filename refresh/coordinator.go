package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/rs/zerolog"
)

var (
	// ErrNoRefreshToken is returned when a 401 arrives and the session has no refresh token
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrRefreshFailed wraps the cause of a failed refresh call
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrCancelled is returned to waiters dropped by Cancel or by a logout during a refresh
	ErrCancelled = errors.New("refresh cancelled")
)

// State of the coordinator's state machine
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Refresher exchanges a refresh token for a new access token
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error)
}

// RefresherFunc adapts a function to Refresher
type RefresherFunc func(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error) {
	return f(ctx, refreshToken)
}

type result struct {
	token string
	err   error
}

type waiter struct {
	seq  uint64
	done chan result
}

// Coordinator makes sure at most one refresh call is in flight. Callers that hit a 401
// while a refresh is running are queued and released in arrival order once it resolves.
type Coordinator struct {
	store       *sessions.Store
	refresher   Refresher
	logger      zerolog.Logger
	fallbackTTL time.Duration
	timeout     time.Duration
	onExpired   func(error)

	mu       sync.Mutex
	state    State
	queue    []*waiter
	arrivals uint64

	released func(seq uint64)
}

type Option func(*Coordinator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithFallbackTTL sets the lifetime used when the refresh response carries no expiry
func WithFallbackTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.fallbackTTL = ttl
	}
}

// WithTimeout bounds a single refresh flight, retries included
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithSessionExpiredHandler is called after a refresh failure (or a 401 with no refresh
// token) has cleared the session. It is the hook for forcing a redirect to login.
func WithSessionExpiredHandler(fn func(error)) Option {
	return func(c *Coordinator) {
		c.onExpired = fn
	}
}

// NewCoordinator creates an idle coordinator writing refreshed tokens to store
func NewCoordinator(store *sessions.Store, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		refresher:   refresher,
		logger:      zerolog.Nop(),
		fallbackTTL: 15 * time.Minute,
		timeout:     30 * time.Second,
		onExpired:   func(error) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of queued callers
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Refresh is called after a request sent with usedToken got a 401. It returns the access
// token to retry with. If the store already holds a different valid token (another caller
// refreshed in the meantime) it is returned without a new refresh call.
func (c *Coordinator) Refresh(ctx context.Context, usedToken string) (string, error) {
	c.mu.Lock()

	if current, ok := c.store.GetValidAccessToken(); ok && current != usedToken {
		c.mu.Unlock()
		return current, nil
	}

	switch {
	case c.state == StateIdle:
		refreshToken, ok := c.store.RefreshToken()
		if !ok {
			generation := c.store.Generation()
			authenticated := c.store.IsAuthenticated()
			c.mu.Unlock()
			if authenticated {
				c.expire(ctx, generation, ErrNoRefreshToken)
			}
			return "", ErrNoRefreshToken
		}

		c.state = StateRefreshing
		go c.run(refreshToken, c.store.Generation())

	case !c.store.IsAuthenticated():
		// cleared while the flight is still finishing, nothing left to wait for
		c.mu.Unlock()
		return "", ErrNoRefreshToken
	}

	c.arrivals++
	w := &waiter{seq: c.arrivals, done: make(chan result, 1)}
	c.queue = append(c.queue, w)
	c.mu.Unlock()

	select {
	case r := <-w.done:
		return r.token, r.err
	case <-ctx.Done():
		c.remove(w)
		return "", ctx.Err()
	}
}

// Cancel rejects every queued caller at once with ErrCancelled. A refresh already in
// flight still completes, but its result is dropped if the session was cleared meanwhile.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	if len(queue) > 0 {
		c.logger.Debug().Int("waiters", len(queue)).Msg("refresh queue cancelled")
	}
	c.resolve(queue, result{err: ErrCancelled})
}

func (c *Coordinator) remove(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.queue {
		if q == w {
			c.queue = append(c.queue[:i:i], c.queue[i+1:]...)
			return
		}
	}
}

// run performs the single refresh call. It is detached from any caller's context so
// one cancelled request cannot fail the refresh for everyone queued behind it.
func (c *Coordinator) run(refreshToken string, generation uint64) {
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.refresher.Refresh(ctx, refreshToken)
	if err == nil && (resp == nil || resp.AccessToken == "") {
		err = errors.New("refresh response has no access token")
	}
	if err != nil {
		c.fail(context.WithoutCancel(ctx), generation, err)
		return
	}

	ttl := token.ResolveLifetime(resp.Lifetime(), resp.AccessToken, c.store.Now(), c.fallbackTTL)
	rotated, _ := resp.RotatedRefreshToken()

	// The store notifies listeners synchronously, so the write happens outside c.mu.
	// The state stays refreshing until it lands so a racing 401 joins this flight.
	err = c.store.RotateTokens(context.WithoutCancel(ctx), generation, sessions.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: rotated,
		ExpiresIn:    ttl,
	})
	queue := c.release()

	if errors.Is(err, sessions.ErrSessionReplaced) || errors.Is(err, sessions.ErrNotAuthenticated) {
		c.logger.Debug().Msg("refresh result dropped, session changed during refresh")
		c.resolve(queue, result{err: ErrCancelled})
		return
	}
	if err != nil {
		// the in-memory session is updated, only persistence failed
		c.logger.Warn().Err(err).Msg("refreshed tokens not persisted")
	}

	c.logger.Debug().
		Int("waiters", len(queue)).
		Bool("rotated", rotated != "").
		Dur("duration", time.Since(started)).
		Msg("access token refreshed")

	c.resolve(queue, result{token: resp.AccessToken})
}

func (c *Coordinator) fail(ctx context.Context, generation uint64, cause error) {
	refreshErr := fmt.Errorf("%w: %w", ErrRefreshFailed, cause)

	cleared, clearErr := c.store.ClearSessionIf(ctx, generation)
	queue := c.release()

	if clearErr != nil {
		c.logger.Warn().Err(clearErr).Msg("cleared session not persisted")
	}
	c.logger.Warn().Err(cause).Int("waiters", len(queue)).Msg("token refresh failed")

	if !cleared {
		c.resolve(queue, result{err: ErrCancelled})
		return
	}
	c.resolve(queue, result{err: refreshErr})
	c.onExpired(refreshErr)
}

func (c *Coordinator) expire(ctx context.Context, generation uint64, cause error) {
	cleared, err := c.store.ClearSessionIf(ctx, generation)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cleared session not persisted")
	}
	if cleared {
		c.logger.Info().Err(cause).Msg("session expired")
		c.onExpired(cause)
	}
}

// release returns to idle and hands back the queue
func (c *Coordinator) release() []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.queue
	c.queue = nil
	c.state = StateIdle
	return queue
}

// resolve releases waiters in arrival order
func (c *Coordinator) resolve(queue []*waiter, r result) {
	for _, w := range queue {
		w.done <- r
		if c.released != nil {
			c.released(w.seq)
		}
	}
}
