package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/rs/zerolog"
)

// StatusError is returned when the refresh endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("refresh endpoint returned %d", e.StatusCode)
}

// HTTPRefresher calls the refresh endpoint. It must be given the raw transport, never the
// authenticated pipeline, so a 401 from the refresh endpoint cannot start another refresh.
type HTTPRefresher struct {
	endpoint       string
	client         *http.Client
	maxTries       uint
	initialBackoff time.Duration
	logger         zerolog.Logger
}

type HTTPRefresherOption func(*HTTPRefresher)

// WithRetries sets how many attempts are made on network or 5xx failures
func WithRetries(maxTries uint, initialBackoff time.Duration) HTTPRefresherOption {
	return func(h *HTTPRefresher) {
		h.maxTries = maxTries
		h.initialBackoff = initialBackoff
	}
}

func WithRefresherLogger(logger zerolog.Logger) HTTPRefresherOption {
	return func(h *HTTPRefresher) {
		h.logger = logger
	}
}

// NewHTTPRefresher posts {refresh_token} to endpoint using transport (nil means http.DefaultTransport)
func NewHTTPRefresher(endpoint string, transport http.RoundTripper, opts ...HTTPRefresherOption) *HTTPRefresher {
	if transport == nil {
		transport = http.DefaultTransport
	}
	h := &HTTPRefresher{
		endpoint:       endpoint,
		client:         &http.Client{Transport: transport},
		maxTries:       3,
		initialBackoff: 200 * time.Millisecond,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.maxTries == 0 {
		h.maxTries = 1
	}
	return h
}

var _ Refresher = (*HTTPRefresher)(nil)

func (h *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error) {
	body, err := json.Marshal(oauth2.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to encode refresh request: %w", err))
	}

	attempt := 0
	operation := func() (*oauth2.TokenResponse, error) {
		attempt++
		resp, err := h.post(ctx, body)
		if err != nil {
			h.logger.Debug().Err(err).Int("attempt", attempt).Msg("refresh attempt failed")
		}
		return resp, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.initialBackoff

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(h.maxTries),
	)
}

// post performs one attempt. Transport errors and 5xx are retryable, everything else is permanent.
func (h *HTTPRefresher) post(ctx context.Context, body []byte) (*oauth2.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create refresh request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: data}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: data})
	}

	var tokenResp oauth2.TokenResponse
	if err := json.Unmarshal(data, &tokenResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode refresh response: %w", err))
	}
	return &tokenResp, nil
}
