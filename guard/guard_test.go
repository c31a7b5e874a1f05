package guard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/sessions/repofakes"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

type guardConfig struct {
	hydrationTimeout time.Duration
}

func (guardConfig) GetLoginPath() string { return "/login" }

func (guardConfig) GetForbiddenPath() string { return "/forbidden" }

func (c guardConfig) GetHydrationTimeout() time.Duration { return c.hydrationTimeout }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	clock *fakeClock
	store *sessions.Store
	guard *guard.Guard
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{clock: &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}}
	f.store = sessions.NewStore(repofakes.NewFakeSessionRepo(), sessions.WithClock(f.clock.Now))
	require.NoError(t, f.store.Hydrate(context.Background()))
	f.guard = guard.New(f.store, guardConfig{hydrationTimeout: 50 * time.Millisecond})
	return f
}

func (f *testFixture) login(t *testing.T, role users.RoleType, refreshToken string, ttl time.Duration) {
	t.Helper()
	user := &users.User{ID: "user-1", Email: "user@example.com", Role: role}
	require.NoError(t, f.store.SetSession(context.Background(), user, sessions.Tokens{
		AccessToken:  "a1",
		RefreshToken: refreshToken,
		ExpiresIn:    ttl,
	}))
}

// children echoes the user the guard placed in the request context
func children(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := guard.UserFromContext(r.Context())
		if !ok {
			t.Error("guarded handler ran without a user")
			return
		}
		_, _ = w.Write([]byte("dashboard for " + user.Role.String()))
	})
}

func serve(h http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func location(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	admin := &users.User{ID: "1", Role: users.RoleAdmin}
	tests := []struct {
		name     string
		session  sessions.Session
		allowed  []users.RoleType
		expected guard.Decision
	}{
		{"empty session", sessions.Session{}, nil, guard.Unauthenticated},
		{"user without token", sessions.Session{User: admin}, nil, guard.Unauthenticated},
		{"valid any role", sessions.Session{User: admin, AccessToken: "a", AccessTokenExpiry: now.Add(time.Minute)}, nil, guard.Authorized},
		{"expired without refresh", sessions.Session{User: admin, AccessToken: "a", AccessTokenExpiry: now}, nil, guard.Unauthenticated},
		{"expired with refresh", sessions.Session{User: admin, AccessToken: "a", AccessTokenExpiry: now.Add(-time.Minute), RefreshToken: "r"}, nil, guard.Authorized},
		{"role allowed", sessions.Session{User: admin, AccessToken: "a", AccessTokenExpiry: now.Add(time.Minute)}, []users.RoleType{users.RoleVendor, users.RoleAdmin}, guard.Authorized},
		{"role not allowed", sessions.Session{User: admin, AccessToken: "a", AccessTokenExpiry: now.Add(time.Minute)}, []users.RoleType{users.RoleClient}, guard.Forbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, guard.Evaluate(tt.session, now, tt.allowed))
		})
	}
}

func TestForbiddenRoleRedirectsToFallback(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, users.RoleClient, "r1", time.Hour)

	h := f.guard.Guard(children(t), []users.RoleType{users.RoleAdmin}, "/client/home")
	rec := serve(h, "/admin/billing", nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := location(t, rec)
	require.Equal(t, "/client/home", loc.Path)
	require.Equal(t, "admin", loc.Query().Get(guard.QueryRequiredRoles))
}

func TestForbiddenDefaultsToForbiddenPage(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, users.RoleEmployee, "r1", time.Hour)

	h := f.guard.Guard(children(t), []users.RoleType{users.RoleAdmin, users.RoleVendor}, "")
	rec := serve(h, "/vendor/rates", nil)

	loc := location(t, rec)
	require.Equal(t, "/forbidden", loc.Path)
	require.Equal(t, "admin,vendor", loc.Query().Get(guard.QueryRequiredRoles))
	require.Equal(t, []users.RoleType{users.RoleAdmin, users.RoleVendor}, guard.RequiredRolesFromQuery(loc.Query()))
}

func TestEmptyAllowListAdmitsAnyRole(t *testing.T) {
	for _, role := range []users.RoleType{users.RoleAdmin, users.RoleClient, users.RoleVendor, users.RoleEmployee} {
		t.Run(role.String(), func(t *testing.T) {
			f := setupTestFixture(t)
			f.login(t, role, "", time.Hour)

			rec := serve(f.guard.Guard(children(t), nil, ""), "/dashboard", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, "dashboard for "+role.String(), rec.Body.String())
		})
	}
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	f := setupTestFixture(t)

	rec := serve(f.guard.Guard(children(t), nil, ""), "/client/invoices?page=2", nil)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := location(t, rec)
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, "/client/invoices?page=2", loc.Query().Get(guard.QueryRedirect))
	require.Equal(t, "/client/invoices?page=2", guard.RedirectTargetFromQuery(loc.Query(), "/dashboard"))
}

func TestExpiredTokenWithoutRefreshIsUnauthenticated(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, users.RoleAdmin, "", time.Minute)
	f.clock.Advance(time.Minute)

	rec := serve(f.guard.Guard(children(t), nil, ""), "/dashboard", nil)
	require.Equal(t, "/login", location(t, rec).Path)
}

func TestExpiredTokenWithRefreshIsAuthorized(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, users.RoleAdmin, "r1", time.Minute)
	f.clock.Advance(time.Hour)

	rec := serve(f.guard.Guard(children(t), []users.RoleType{users.RoleAdmin}, ""), "/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTMXRedirect(t *testing.T) {
	f := setupTestFixture(t)

	rec := serve(f.guard.Guard(children(t), nil, ""), "/dashboard", map[string]string{"HX-Request": "true"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Contains(t, rec.Header().Get("HX-Redirect"), "/login?redirect=")
	require.Empty(t, rec.Header().Get("Location"))
}

func TestWaitsForHydration(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	store := sessions.NewStore(repofakes.NewFakeSessionRepo(), sessions.WithClock(clock.Now))
	g := guard.New(store, guardConfig{hydrationTimeout: 20 * time.Millisecond})

	rec := serve(g.Guard(children(t), nil, ""), "/dashboard", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, "no decision before hydration")

	require.NoError(t, store.Hydrate(context.Background()))
	rec = serve(g.Guard(children(t), nil, ""), "/dashboard", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestWatchReportsDecisionChanges(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	store := sessions.NewStore(nil, sessions.WithClock(clock.Now))

	var mu sync.Mutex
	var decisions []guard.Decision
	stop := guard.Watch(store, []users.RoleType{users.RoleVendor}, func(d guard.Decision) {
		mu.Lock()
		defer mu.Unlock()
		decisions = append(decisions, d)
	})
	defer stop()

	snapshot := func() []guard.Decision {
		mu.Lock()
		defer mu.Unlock()
		return append([]guard.Decision(nil), decisions...)
	}

	ctx := context.Background()
	require.NoError(t, store.Hydrate(ctx))
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, time.Second, time.Millisecond)
	vendor := &users.User{ID: "v", Role: users.RoleVendor}
	require.NoError(t, store.SetSession(ctx, vendor, sessions.Tokens{AccessToken: "a1", ExpiresIn: time.Hour}))
	require.NoError(t, store.UpdateUser(ctx, users.Profile{}))
	require.NoError(t, store.ClearSession(ctx))

	require.Equal(t, []guard.Decision{guard.Checking, guard.Unauthenticated, guard.Authorized, guard.Unauthenticated}, snapshot())
}

func TestWatchReportsUnauthenticatedAfterEmptyHydration(t *testing.T) {
	store := sessions.NewStore(repofakes.NewFakeSessionRepo())

	var mu sync.Mutex
	var decisions []guard.Decision
	stop := guard.Watch(store, nil, func(d guard.Decision) {
		mu.Lock()
		defer mu.Unlock()
		decisions = append(decisions, d)
	})
	defer stop()

	require.NoError(t, store.Hydrate(context.Background()))

	expected := []guard.Decision{guard.Checking, guard.Unauthenticated}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(decisions) == len(expected) && decisions[1] == expected[1]
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, expected, decisions)
}

func TestWatchStopBeforeHydration(t *testing.T) {
	store := sessions.NewStore(repofakes.NewFakeSessionRepo())

	var calls int
	var mu sync.Mutex
	stop := guard.Watch(store, nil, func(guard.Decision) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})
	stop()
	stop()

	require.NoError(t, store.Hydrate(context.Background()))
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls, "only the initial Checking decision")
}

func TestRedirectTargetFromQueryOnlyLocal(t *testing.T) {
	tests := map[string]string{
		"/vendor/rates":        "/vendor/rates",
		"https://evil.example": "/dashboard",
		"//evil.example/path":  "/dashboard",
		"/\\evil.example":      "/dashboard",
		"":                     "/dashboard",
		"relative/path":        "/dashboard",
	}
	for target, expected := range tests {
		q := url.Values{guard.QueryRedirect: []string{target}}
		require.Equal(t, expected, guard.RedirectTargetFromQuery(q, "/dashboard"), target)
	}
}

func TestRequiredRolesFromQuerySkipsUnknown(t *testing.T) {
	q := url.Values{guard.QueryRequiredRoles: []string{"Admin, superuser,vendor"}}
	require.Equal(t, []users.RoleType{users.RoleAdmin, users.RoleVendor}, guard.RequiredRolesFromQuery(q))
	require.Empty(t, guard.RequiredRolesFromQuery(url.Values{}))
}

func TestDecisionString(t *testing.T) {
	require.Equal(t, "forbidden", guard.Forbidden.String())
	require.Equal(t, "checking", guard.Checking.String())
}
