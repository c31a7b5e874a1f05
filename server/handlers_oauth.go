package server

import (
	"net/http"
)

// OAuthStartHandler sends the browser to the provider with a PKCE challenge.
// The redirect query parameter is carried through to the callback.
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnURL := safeTarget(r.URL.Query().Get("redirect"), "")

		authURL, _, err := s.auth.AuthCodeURL(returnURL)
		if err != nil {
			s.logger.Warn().Err(err).Msg("oauth flow not started")
			redirectWithError(w, r, RouteLogin, userMessage(err), "redirect", returnURL)
			return
		}
		redirectSuccess(w, r, authURL)
	}
}

// OAuthCallbackHandler completes the flow and lands the user on the recorded return path
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if providerErr := q.Get("error"); providerErr != "" {
			msg := q.Get("error_description")
			if msg == "" {
				msg = providerErr
			}
			redirectWithError(w, r, RouteLogin, msg)
			return
		}

		code := q.Get("code")
		if code == "" {
			redirectWithError(w, r, RouteLogin, "Missing authorization code")
			return
		}

		user, returnURL, err := s.auth.OAuthCallback(r.Context(), code, q.Get("state"))
		if err != nil {
			s.logger.Info().Err(err).Msg("oauth callback failed")
			redirectWithError(w, r, RouteLogin, userMessage(err))
			return
		}
		redirectSuccess(w, r, safeTarget(returnURL, landingPage(user.Role)))
	}
}
