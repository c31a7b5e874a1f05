package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
)

const (
	QueryRedirect      = "redirect"
	QueryRequiredRoles = "required_roles"
)

// Decision is the outcome of evaluating a session against a protected route
type Decision int

const (
	// Checking means the persisted session has not been loaded yet
	Checking Decision = iota
	Authorized
	Unauthenticated
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Checking:
		return "checking"
	case Authorized:
		return "authorized"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Evaluate decides access for session at now. An empty allowed list admits any
// authenticated role. An expired access token is still authorized while a refresh token
// exists, since the next API call refreshes it.
func Evaluate(session sessions.Session, now time.Time, allowed []users.RoleType) Decision {
	if !session.IsAuthenticated() {
		return Unauthenticated
	}
	if session.IsAccessTokenExpired(now) && !session.HasRefreshToken() {
		return Unauthenticated
	}
	if !session.User.HasRole(allowed...) {
		return Forbidden
	}
	return Authorized
}

// Guard wraps protected handler trees
type Guard struct {
	store  *sessions.Store
	config config.GuardConfig
	logger zerolog.Logger
}

type Option func(*Guard)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func New(store *sessions.Store, cfg config.GuardConfig, opts ...Option) *Guard {
	g := &Guard{
		store:  store,
		config: cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide waits for hydration (bounded by the configured timeout) and evaluates the
// current session. It returns Checking when hydration did not finish in time.
func (g *Guard) Decide(ctx context.Context, allowed []users.RoleType) (Decision, sessions.Session) {
	ctx, cancel := context.WithTimeout(ctx, g.config.GetHydrationTimeout())
	defer cancel()
	if err := g.store.WaitHydrated(ctx); err != nil {
		return Checking, sessions.Session{}
	}
	session := g.store.GetSession()
	return Evaluate(session, g.store.Now(), allowed), session
}

// Guard serves children only to sessions whose role is in allowed. Unauthenticated
// requests go to the login page carrying the attempted location; forbidden ones go to
// fallbackPath (the configured forbidden page when empty) carrying the required roles.
func (g *Guard) Guard(children http.Handler, allowed []users.RoleType, fallbackPath string) http.Handler {
	if fallbackPath == "" {
		fallbackPath = g.config.GetForbiddenPath()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, session := g.Decide(r.Context(), allowed)

		switch decision {
		case Authorized:
			children.ServeHTTP(w, r.WithContext(WithUser(r.Context(), session.User)))
		case Unauthenticated:
			g.logger.Debug().Str("path", r.URL.Path).Msg("unauthenticated, redirecting to login")
			redirect(w, r, withQuery(g.config.GetLoginPath(), QueryRedirect, r.URL.RequestURI()))
		case Forbidden:
			g.logger.Debug().
				Str("path", r.URL.Path).
				Str("role", session.User.Role.String()).
				Msg("role not allowed")
			redirect(w, r, withQuery(fallbackPath, QueryRequiredRoles, JoinRoles(allowed)))
		default:
			g.logger.Warn().Str("path", r.URL.Path).Msg("session not hydrated in time")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Session is loading, please retry", http.StatusServiceUnavailable)
		}
	})
}

// GuardFunc is Guard for a HandlerFunc, for use with the server middleware chains
func (g *Guard) GuardFunc(children http.HandlerFunc, allowed []users.RoleType, fallbackPath string) http.HandlerFunc {
	return g.Guard(children, allowed, fallbackPath).ServeHTTP
}

// Watch evaluates the session now and again after every change, calling fn whenever the
// decision differs from the last one reported. Before hydration completes the decision is
// Checking. Call the returned func to stop watching.
func Watch(store *sessions.Store, allowed []users.RoleType, fn func(Decision)) func() {
	var (
		mu   sync.Mutex
		last = Decision(-1)
	)
	report := func(decide func() Decision) {
		mu.Lock()
		decision := decide()
		changed := decision != last
		last = decision
		mu.Unlock()
		if changed {
			fn(decision)
		}
	}
	current := func() Decision {
		return Evaluate(store.GetSession(), store.Now(), allowed)
	}

	unsubscribe := store.Subscribe(func(s sessions.Session) {
		report(func() Decision { return Evaluate(s, store.Now(), allowed) })
	})

	stop := make(chan struct{})
	select {
	case <-store.Ready():
		report(current)
	default:
		report(func() Decision { return Checking })
		// an empty or discarded snapshot completes hydration without a change notification
		go func() {
			select {
			case <-store.Ready():
				report(current)
			case <-stop:
			}
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			unsubscribe()
		})
	}
}

// redirect is htmx-aware: htmx requests get HX-Redirect instead of a 303
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func withQuery(path, key, value string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// JoinRoles renders roles the way they are carried in required_roles
func JoinRoles(roles []users.RoleType) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// RequiredRolesFromQuery reads required_roles. Unknown roles are skipped.
func RequiredRolesFromQuery(q url.Values) []users.RoleType {
	var roles []users.RoleType
	for _, raw := range strings.Split(q.Get(QueryRequiredRoles), ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		role, err := users.ParseRole(raw)
		if errors.Is(err, users.ErrUnknownRole) {
			continue
		}
		roles = append(roles, role)
	}
	return roles
}

// RedirectTargetFromQuery reads redirect, accepting only local paths. Anything else,
// including protocol-relative URLs, yields fallback.
func RedirectTargetFromQuery(q url.Values, fallback string) string {
	target := q.Get(QueryRedirect)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return target
}

type userKey struct{}

// WithUser stores the authorized user in ctx
func WithUser(ctx context.Context, user *users.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user placed in the request context by Guard
func UserFromContext(ctx context.Context) (*users.User, bool) {
	user, ok := ctx.Value(userKey{}).(*users.User)
	return user, ok && user != nil
}
