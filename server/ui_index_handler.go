package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/users"
)

// IndexHandler renders the home page
func (s *Server) IndexHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.store.GetSession()
		s.render(w, p, "index.html", PageData{Title: "Home", User: session.User})
	}
}

// AreaHandler renders a guarded area for the user the guard admitted
func (s *Server) AreaHandler(p pages, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := guard.UserFromContext(r.Context())
		s.render(w, p, "area.html", PageData{Title: title, User: user})
	}
}

// ForbiddenHandler lists the roles the denied page asked for
func (s *Server) ForbiddenHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderStatus(w, p, "forbidden.html", http.StatusForbidden, PageData{
			Title:         "Access denied",
			User:          s.store.GetSession().User,
			RequiredRoles: guard.RequiredRolesFromQuery(r.URL.Query()),
		})
	}
}

// SessionState is the JSON view of the session. Tokens are never exposed.
type SessionState struct {
	Authenticated      bool        `json:"authenticated"`
	User               *users.User `json:"user,omitempty"`
	AccessTokenExpiry  *time.Time  `json:"access_token_expiry,omitempty"`
	AccessTokenExpired bool        `json:"access_token_expired"`
	Refreshable        bool        `json:"refreshable"`
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.GetHydrationTimeout())
		defer cancel()
		if err := s.store.WaitHydrated(ctx); err != nil {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Session not loaded", http.StatusServiceUnavailable)
			return
		}
		session := s.store.GetSession()
		state := SessionState{
			Authenticated:      session.IsAuthenticated(),
			User:               session.User,
			AccessTokenExpired: session.IsAccessTokenExpired(s.store.Now()),
			Refreshable:        session.HasRefreshToken(),
		}
		if state.Authenticated {
			expiry := session.AccessTokenExpiry
			state.AccessTokenExpiry = &expiry
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hydrated := false
		select {
		case <-s.store.Ready():
			hydrated = true
		default:
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "hydrated": hydrated})
	}
}
