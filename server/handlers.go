package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/guard"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

const contentTypeHTML = "text/html; charset=utf-8"

// redirectWithError helper for htmx-aware error redirects. Extra key/value pairs are
// added to the query alongside the error.
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string, keyValues ...string) {
	redirectWithQuery(w, r, path, append([]string{"error", errorMsg}, keyValues...)...)
}

// redirectWithMessage helper for htmx-aware redirects carrying a confirmation message
func redirectWithMessage(w http.ResponseWriter, r *http.Request, path, message string) {
	redirectWithQuery(w, r, path, "message", message)
}

// redirectWithQuery drops pairs whose value is empty
func redirectWithQuery(w http.ResponseWriter, r *http.Request, path string, keyValues ...string) {
	q := url.Values{}
	for i := 0; i+1 < len(keyValues); i += 2 {
		if keyValues[i+1] != "" {
			q.Set(keyValues[i], keyValues[i+1])
		}
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	redirectSuccess(w, r, path)
}

// safeTarget accepts only local return paths
func safeTarget(raw, fallback string) string {
	return guard.RedirectTargetFromQuery(url.Values{guard.QueryRedirect: {raw}}, fallback)
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// userMessage turns an auth failure into text fit for the page. Server validation
// messages are shown verbatim.
func userMessage(err error) string {
	var validation *client.ValidationError
	if apperrors.As(err, &validation) {
		return validation.Error()
	}
	var network *client.NetworkError
	if apperrors.As(err, &network) {
		return "The billing service is unreachable, please try again"
	}
	for _, target := range userFacingErrors {
		if apperrors.Is(err, target) {
			return err.Error()
		}
	}
	return "Something went wrong, please try again"
}

var userFacingErrors = []error{
	auth.InvalidCredentialsErr,
	auth.WeakPasswordErr,
	auth.InvalidStateErr,
	auth.OAuthNotConfiguredErr,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
