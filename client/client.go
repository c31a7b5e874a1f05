package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"

	maxErrorBody = 1 << 20
)

// RoundTripFunc adapts a function to http.RoundTripper
type RoundTripFunc func(*http.Request) (*http.Response, error)

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Interceptor decorates a single attempt. Interceptors see every attempt, replays included.
type Interceptor func(next RoundTripFunc) RoundTripFunc

// Chain applies interceptors so the first one listed runs first
func Chain(rt RoundTripFunc, interceptors ...Interceptor) RoundTripFunc {
	chained := rt
	for i := len(interceptors) - 1; i >= 0; i-- {
		chained = interceptors[i](chained)
	}
	return chained
}

// Refresher is the part of the refresh coordinator the client needs
type Refresher interface {
	Refresh(ctx context.Context, usedToken string) (string, error)
}

var _ Refresher = (*refresh.Coordinator)(nil)

// Client is the shared, authenticated HTTP pipeline. Every outbound call of the console
// goes through it.
type Client struct {
	store        *sessions.Store
	refresher    Refresher
	transport    http.RoundTripper
	logger       zerolog.Logger
	newRequestID func() string
	interceptors []Interceptor

	pipeline RoundTripFunc
}

type Option func(*Client)

// WithTransport sets the underlying transport (default http.DefaultTransport)
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestIDGenerator replaces uuid.NewString for X-Request-ID values
func WithRequestIDGenerator(fn func() string) Option {
	return func(c *Client) {
		c.newRequestID = fn
	}
}

// WithInterceptors adds interceptors that run after the built-in ones, closest to the transport
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// New builds the pipeline. refresher is normally a *refresh.Coordinator.
func New(store *sessions.Store, refresher Refresher, opts ...Option) *Client {
	c := &Client{
		store:        store,
		refresher:    refresher,
		transport:    http.DefaultTransport,
		logger:       zerolog.Nop(),
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	interceptors := append([]Interceptor{c.requestID, c.logging}, c.interceptors...)
	c.pipeline = Chain(c.transport.RoundTrip, interceptors...)
	return c
}

// HTTPClient returns an *http.Client whose transport is this pipeline
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c}
}

// Issue sends req with ctx through the pipeline
func (c *Client) Issue(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.Do(req.WithContext(ctx))
}

// RoundTrip makes Client usable as an http.RoundTripper
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Do(req)
}

// Do sends req with the current access token. A 401 triggers one refresh through the
// coordinator and a single replay with the new token; a 401 on the replay is terminal.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	usedToken, _ := c.store.GetValidAccessToken()
	resp, err := c.attempt(req, usedToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || refreshSkipped(req.Context()) {
		return resp, nil
	}

	body := drain(resp)
	newToken, err := c.refresher.Refresh(req.Context(), usedToken)
	if err != nil {
		return nil, &UnauthorizedError{StatusCode: http.StatusUnauthorized, Body: body, Cause: err}
	}

	resp, err = c.attempt(req, newToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &UnauthorizedError{StatusCode: http.StatusUnauthorized, Body: drain(resp)}
	}
	return resp, nil
}

// attempt sends one copy of req. The caller's request is never modified.
func (c *Client) attempt(req *http.Request, accessToken string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}

	out.Header.Del(HeaderAuthorization)
	if accessToken != "" {
		out.Header.Set(HeaderAuthorization, "Bearer "+accessToken)
	}

	resp, err := c.pipeline(out)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, URL: req.URL.Redacted(), Err: err}
	}
	return resp, nil
}

func (c *Client) requestID(next RoundTripFunc) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		req.Header.Set(HeaderRequestID, c.newRequestID())
		return next(req)
	}
}

func (c *Client) logging(next RoundTripFunc) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		started := time.Now()
		resp, err := next(req)

		event := c.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("requestID", req.Header.Get(HeaderRequestID)).
			Bool("authenticated", req.Header.Get(HeaderAuthorization) != "").
			Dur("duration", time.Since(started))
		if err != nil {
			event.Err(err).Msg("request failed")
			return resp, err
		}
		event.Int("status", resp.StatusCode).Msg("request")
		return resp, nil
	}
}

// bufferBody makes the body replayable when the caller did not provide GetBody
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	return nil
}

func drain(resp *http.Response) []byte {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return data
}

type skipRefreshKey struct{}

// SkipRefresh marks requests made with ctx so a 401 is returned as-is. Used by the auth
// endpoints where a 401 means bad credentials, not an expired token.
func SkipRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey{}, true)
}

func refreshSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(skipRefreshKey{}).(bool)
	return skip
}
