package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invoice struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"`
}

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var in invoice
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, 120, in.Amount)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJSONDecodesSuccess(t *testing.T) {
	srv := jsonServer(t, http.StatusCreated, `{"id":"inv-1","amount":120}`)
	f := setupTestFixture(t, mustNotRefresh(t))
	f.login(t, "a1", "r1", time.Hour)

	var out invoice
	require.NoError(t, f.client.JSON(context.Background(), http.MethodPost, srv.URL, invoice{Amount: 120}, &out))
	require.Equal(t, invoice{ID: "inv-1", Amount: 120}, out)
}

func TestJSONNoContent(t *testing.T) {
	srv := jsonServer(t, http.StatusNoContent, ``)
	f := setupTestFixture(t, mustNotRefresh(t))

	var out invoice
	require.NoError(t, f.client.JSON(context.Background(), http.MethodDelete, srv.URL, nil, &out))
	require.Empty(t, out.ID)
}

func TestJSONValidationErrorVerbatim(t *testing.T) {
	srv := jsonServer(t, http.StatusUnprocessableEntity,
		`{"error":"validation_failed","message":"Invoice amount must be positive","fields":{"amount":"must be > 0"}}`)
	f := setupTestFixture(t, mustNotRefresh(t))

	err := f.client.JSON(context.Background(), http.MethodPost, srv.URL, invoice{Amount: 120}, nil)

	var validation *client.ValidationError
	require.True(t, errors.As(err, &validation))
	require.Equal(t, http.StatusUnprocessableEntity, validation.StatusCode)
	require.Equal(t, "validation_failed", validation.Code)
	require.Equal(t, "Invoice amount must be positive", validation.Message)
	require.Equal(t, "Invoice amount must be positive", err.Error())
	require.Equal(t, map[string]string{"amount": "must be > 0"}, validation.Fields)
}

func TestJSONValidationErrorPlainBody(t *testing.T) {
	srv := jsonServer(t, http.StatusConflict, "Email already registered\n")
	f := setupTestFixture(t, mustNotRefresh(t))

	err := f.client.JSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var validation *client.ValidationError
	require.True(t, errors.As(err, &validation))
	require.Equal(t, "Email already registered", validation.Message)
}

func TestJSONServerError(t *testing.T) {
	srv := jsonServer(t, http.StatusBadGateway, `upstream down`)
	f := setupTestFixture(t, mustNotRefresh(t))

	err := f.client.JSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var statusErr *client.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestJSONLoginUnauthorizedIsValidation(t *testing.T) {
	srv := jsonServer(t, http.StatusUnauthorized, `{"error":"invalid_credentials","message":"Email or password is incorrect"}`)
	f := setupTestFixture(t, mustNotRefresh(t))

	err := f.client.JSON(client.SkipRefresh(context.Background()), http.MethodGet, srv.URL, nil, nil)

	var validation *client.ValidationError
	require.True(t, errors.As(err, &validation))
	require.Equal(t, "Email or password is incorrect", validation.Message)
}
