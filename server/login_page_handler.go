package server

import (
	"net/http"
)

// LoginPageHandler displays the login page (GET /login). A signed-in user goes straight
// to the return path.
func (s *Server) LoginPageHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		redirect := safeTarget(q.Get("redirect"), "")

		session := s.store.GetSession()
		if session.IsAuthenticated() && !session.IsAccessTokenExpired(s.store.Now()) {
			redirectSuccess(w, r, safeTarget(redirect, landingPage(session.User.Role)))
			return
		}

		s.render(w, p, "login.html", PageData{
			Title:    "Sign in",
			Error:    q.Get("error"),
			Message:  q.Get("message"),
			Email:    q.Get("email"),
			Redirect: redirect,
		})
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := r.FormValue("email")
		password := r.FormValue("password")
		redirect := safeTarget(r.FormValue("redirect"), "")

		user, err := s.auth.Login(r.Context(), email, password)
		if err != nil {
			s.logger.Info().Err(err).Str("email", email).Msg("login failed")
			redirectWithError(w, r, RouteLogin, userMessage(err), "email", email, "redirect", redirect)
			return
		}

		redirectSuccess(w, r, safeTarget(redirect, landingPage(user.Role)))
	}
}

// LogoutHandler ends the session locally even when the server call fails
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Logout(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("logout did not persist")
		}
		redirectWithMessage(w, r, RouteLogin, "You have been signed out")
	}
}
