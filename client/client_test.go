package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/sessions/repofakes"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type attempt struct {
	authorization string
	requestID     string
	body          string
}

// apiServer answers 200 only for the accepted bearer token, 401 otherwise.
// Requests to /public are always accepted.
type apiServer struct {
	*httptest.Server

	mu       sync.Mutex
	accepted string
	attempts []attempt
}

func newAPIServer(t *testing.T, accepted string) *apiServer {
	t.Helper()
	s := &apiServer{accepted: accepted}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.attempts = append(s.attempts, attempt{
			authorization: r.Header.Get(client.HeaderAuthorization),
			requestID:     r.Header.Get(client.HeaderRequestID),
			body:          string(body),
		})
		ok := r.Header.Get(client.HeaderAuthorization) == "Bearer "+s.accepted
		s.mu.Unlock()

		switch {
		case r.URL.Path == "/public" || ok:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"token_expired"}`))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) Attempts() []attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]attempt(nil), s.attempts...)
}

type testFixture struct {
	clock       *fakeClock
	store       *sessions.Store
	coordinator *refresh.Coordinator
	client      *client.Client
	refreshes   atomic.Int32
	expired     atomic.Int32
}

// setupTestFixture wires store, coordinator and client. refreshFn answers the refresh call.
func setupTestFixture(t *testing.T, refreshFn func(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error), opts ...client.Option) *testFixture {
	t.Helper()
	f := &testFixture{clock: &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}}
	f.store = sessions.NewStore(repofakes.NewFakeSessionRepo(), sessions.WithClock(f.clock.Now))
	f.coordinator = refresh.NewCoordinator(f.store,
		refresh.RefresherFunc(func(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error) {
			f.refreshes.Add(1)
			return refreshFn(ctx, refreshToken)
		}),
		refresh.WithSessionExpiredHandler(func(error) { f.expired.Add(1) }),
	)
	f.client = client.New(f.store, f.coordinator, opts...)
	return f
}

func (f *testFixture) login(t *testing.T, accessToken, refreshToken string, ttl time.Duration) {
	t.Helper()
	user := &users.User{ID: "user-1", Email: "billing@example.com", Role: users.RoleClient}
	require.NoError(t, f.store.SetSession(context.Background(), user, sessions.Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    ttl,
	}))
}

func (f *testFixture) get(t *testing.T, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return f.client.Issue(context.Background(), req)
}

func issuesToken(token string) func(context.Context, string) (*oauth2.TokenResponse, error) {
	return func(context.Context, string) (*oauth2.TokenResponse, error) {
		return &oauth2.TokenResponse{AccessToken: token, ExpiresIn: 900}, nil
	}
}

func mustNotRefresh(t *testing.T) func(context.Context, string) (*oauth2.TokenResponse, error) {
	return func(context.Context, string) (*oauth2.TokenResponse, error) {
		t.Error("refresh must not be called")
		return nil, errors.New("unexpected refresh")
	}
}

func TestBearerHeaderAttachedForValidToken(t *testing.T) {
	srv := newAPIServer(t, "a1")
	f := setupTestFixture(t, mustNotRefresh(t))
	f.login(t, "a1", "r1", time.Hour)

	resp, err := f.get(t, srv.URL+"/invoices")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	attempts := srv.Attempts()
	require.Len(t, attempts, 1)
	require.Equal(t, "Bearer a1", attempts[0].authorization)
	require.NotEmpty(t, attempts[0].requestID)
}

func TestExpiredTokenIsNeverSent(t *testing.T) {
	srv := newAPIServer(t, "a1")
	f := setupTestFixture(t, mustNotRefresh(t))
	f.login(t, "a1", "r1", time.Minute)
	f.clock.Advance(2 * time.Minute)

	resp, err := f.get(t, srv.URL+"/public")
	require.NoError(t, err)
	resp.Body.Close()

	require.Empty(t, srv.Attempts()[0].authorization)
}

func TestRequestIDUniqueIncludingUnauthenticated(t *testing.T) {
	srv := newAPIServer(t, "a1")
	f := setupTestFixture(t, mustNotRefresh(t))

	for i := 0; i < 10; i++ {
		resp, err := f.get(t, srv.URL+"/public")
		require.NoError(t, err)
		resp.Body.Close()
	}

	seen := map[string]bool{}
	for _, a := range srv.Attempts() {
		require.Empty(t, a.authorization)
		_, err := uuid.Parse(a.requestID)
		require.NoError(t, err)
		require.False(t, seen[a.requestID], "duplicate request id %s", a.requestID)
		seen[a.requestID] = true
	}
	require.Len(t, seen, 10)
}

func TestUnauthorizedRefreshesAndReplaysOnce(t *testing.T) {
	srv := newAPIServer(t, "a2")
	f := setupTestFixture(t, func(_ context.Context, refreshToken string) (*oauth2.TokenResponse, error) {
		assert.Equal(t, "r1", refreshToken)
		return &oauth2.TokenResponse{AccessToken: "a2", ExpiresIn: 900}, nil
	})
	f.login(t, "a1", "r1", time.Minute)
	f.clock.Advance(2 * time.Minute)

	resp, err := f.get(t, srv.URL+"/shipments")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, int32(1), f.refreshes.Load())
	attempts := srv.Attempts()
	require.Len(t, attempts, 2)
	require.Empty(t, attempts[0].authorization, "expired token not attached")
	require.Equal(t, "Bearer a2", attempts[1].authorization)
	require.NotEqual(t, attempts[0].requestID, attempts[1].requestID)

	token, ok := f.store.GetValidAccessToken()
	require.True(t, ok)
	require.Equal(t, "a2", token)
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	const n = 3
	srv := newAPIServer(t, "a2")

	var coordinator *refresh.Coordinator
	f := setupTestFixture(t, func(context.Context, string) (*oauth2.TokenResponse, error) {
		deadline := time.Now().Add(2 * time.Second)
		for coordinator.Pending() < n && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		return &oauth2.TokenResponse{AccessToken: "a2", ExpiresIn: 900}, nil
	})
	coordinator = f.coordinator
	f.login(t, "stale", "r1", time.Hour)

	var wg sync.WaitGroup
	statuses := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/rates", nil)
			resp, err := f.client.Do(req)
			errs[i] = err
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), f.refreshes.Load(), "exactly one refresh call")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, http.StatusOK, statuses[i])
	}

	replays := 0
	for _, a := range srv.Attempts() {
		if a.authorization == "Bearer a2" {
			replays++
		}
	}
	require.Equal(t, n, replays)
}

func TestRefreshFailureRejectsEveryRequest(t *testing.T) {
	srv := newAPIServer(t, "never")
	f := setupTestFixture(t, func(context.Context, string) (*oauth2.TokenResponse, error) {
		return nil, &refresh.StatusError{StatusCode: http.StatusUnauthorized}
	})
	f.login(t, "a1", "r1", time.Hour)

	_, err := f.get(t, srv.URL+"/invoices")

	var unauthorized *client.UnauthorizedError
	require.True(t, errors.As(err, &unauthorized))
	require.Equal(t, http.StatusUnauthorized, unauthorized.StatusCode)
	require.JSONEq(t, `{"error":"token_expired"}`, string(unauthorized.Body))
	require.ErrorIs(t, err, refresh.ErrRefreshFailed)

	require.False(t, f.store.IsAuthenticated())
	require.Eventually(t, func() bool { return f.expired.Load() == 1 }, time.Second, time.Millisecond)
	require.Len(t, srv.Attempts(), 1, "original request not replayed")
}

func TestNoRefreshTokenClearsSession(t *testing.T) {
	srv := newAPIServer(t, "never")
	f := setupTestFixture(t, mustNotRefresh(t))
	f.login(t, "a1", "", time.Hour)

	_, err := f.get(t, srv.URL+"/invoices")
	require.ErrorIs(t, err, refresh.ErrNoRefreshToken)
	require.False(t, f.store.IsAuthenticated())
	require.Equal(t, int32(0), f.refreshes.Load())
}

func TestSecondUnauthorizedIsTerminal(t *testing.T) {
	srv := newAPIServer(t, "never")
	f := setupTestFixture(t, issuesToken("a2"))
	f.login(t, "a1", "r1", time.Hour)

	_, err := f.get(t, srv.URL+"/invoices")

	var unauthorized *client.UnauthorizedError
	require.True(t, errors.As(err, &unauthorized))
	require.NoError(t, unauthorized.Cause)
	require.Equal(t, int32(1), f.refreshes.Load())
	require.Len(t, srv.Attempts(), 2, "replayed at most once")
}

func TestNetworkErrorPassesThrough(t *testing.T) {
	cause := errors.New("connection refused")
	f := setupTestFixture(t, mustNotRefresh(t), client.WithTransport(client.RoundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, cause
	})))
	f.login(t, "a1", "r1", time.Hour)

	_, err := f.get(t, "http://billing.invalid/invoices")

	var networkErr *client.NetworkError
	require.True(t, errors.As(err, &networkErr))
	require.ErrorIs(t, err, cause)
	require.Equal(t, http.MethodGet, networkErr.Method)
	require.True(t, f.store.IsAuthenticated())
}

func TestOtherStatusesPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	f := setupTestFixture(t, mustNotRefresh(t))
	f.login(t, "a1", "r1", time.Hour)

	resp, err := f.get(t, srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRequestBodyReplayed(t *testing.T) {
	srv := newAPIServer(t, "a2")
	f := setupTestFixture(t, issuesToken("a2"))
	f.login(t, "a1", "r1", time.Hour)

	// a plain ReadCloser leaves GetBody unset
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/invoices", io.NopCloser(strings.NewReader(`{"amount":120}`)))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	attempts := srv.Attempts()
	require.Len(t, attempts, 2)
	require.Equal(t, `{"amount":120}`, attempts[0].body)
	require.Equal(t, `{"amount":120}`, attempts[1].body)
}

func TestSkipRefreshReturnsUnauthorizedResponse(t *testing.T) {
	srv := newAPIServer(t, "never")
	f := setupTestFixture(t, mustNotRefresh(t))
	f.login(t, "a1", "r1", time.Hour)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/login", nil)
	require.NoError(t, err)
	resp, err := f.client.Issue(client.SkipRefresh(context.Background()), req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.True(t, f.store.IsAuthenticated())
}

func TestHTTPClientSharesPipeline(t *testing.T) {
	srv := newAPIServer(t, "a1")
	f := setupTestFixture(t, mustNotRefresh(t))
	f.login(t, "a1", "r1", time.Hour)

	resp, err := f.client.HTTPClient().Get(srv.URL + "/invoices")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Bearer a1", srv.Attempts()[0].authorization)
}

func TestCustomInterceptorSeesEveryAttempt(t *testing.T) {
	srv := newAPIServer(t, "a2")
	var seen atomic.Int32
	counter := func(next client.RoundTripFunc) client.RoundTripFunc {
		return func(req *http.Request) (*http.Response, error) {
			seen.Add(1)
			return next(req)
		}
	}
	f := setupTestFixture(t, issuesToken("a2"), client.WithInterceptors(counter))
	f.login(t, "a1", "r1", time.Hour)

	resp, err := f.get(t, srv.URL+"/invoices")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, int32(2), seen.Load())
}
