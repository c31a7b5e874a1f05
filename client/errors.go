package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-client/oauth2"
)

// NetworkError is a transport failure. Nothing was received from the server.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UnauthorizedError is a terminal 401. Cause is set when the refresh that followed the
// first 401 failed; it is nil when the replayed request was rejected again.
type UnauthorizedError struct {
	StatusCode int
	Body       []byte
	Cause      error
}

func (e *UnauthorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unauthorized: %v", e.Cause)
	}
	return "unauthorized"
}

func (e *UnauthorizedError) Unwrap() error {
	return e.Cause
}

// ValidationError carries a 4xx answer from the API. Message is the server's text, unmodified.
type ValidationError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
	Body       []byte
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("request rejected with status %d", e.StatusCode)
}

// StatusError is any other non-2xx answer seen by JSON
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

func newValidationError(status int, body []byte) *ValidationError {
	v := &ValidationError{StatusCode: status, Body: body}
	var resp oauth2.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		v.Code = resp.Error
		v.Message = resp.Message
		v.Fields = resp.Fields
		return v
	}
	v.Message = strings.TrimSpace(string(body))
	return v
}
