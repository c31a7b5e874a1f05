package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/guard"
	"github.com/jrsteele09/go-auth-client/users"
)

// signupRoles are the roles offered on the signup form
var signupRoles = []users.RoleType{users.RoleClient, users.RoleVendor}

// SignupGetHandler renders the signup page
func (s *Server) SignupGetHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.render(w, p, "signup.html", PageData{
			Title:       "Create an account",
			Error:       q.Get("error"),
			Email:       q.Get("email"),
			SignupRoles: signupRoles,
		})
	}
}

// SignupPostHandler handles registration form submission
func (s *Server) SignupPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		req := auth.SignupRequest{
			Email:     r.FormValue("email"),
			Password:  r.FormValue("password"),
			FirstName: r.FormValue("first_name"),
			LastName:  r.FormValue("last_name"),
			Company:   r.FormValue("company"),
			Phone:     r.FormValue("phone"),
			Role:      r.FormValue("role"),
		}
		user, err := s.auth.Signup(r.Context(), req)
		if err != nil {
			redirectWithError(w, r, RouteSignup, userMessage(err), "email", req.Email)
			return
		}
		redirectSuccess(w, r, landingPage(user.Role))
	}
}

// ForgotPasswordGetHandler renders the forgot-password page
func (s *Server) ForgotPasswordGetHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.render(w, p, "forgot_password.html", PageData{
			Title: "Reset your password",
			Error: q.Get("error"),
			Email: q.Get("email"),
		})
	}
}

// ForgotPasswordPostHandler requests a reset link and shows the server's confirmation
func (s *Server) ForgotPasswordPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		email := r.FormValue("email")
		message, err := s.auth.ForgotPassword(r.Context(), email)
		if err != nil {
			redirectWithError(w, r, RouteForgotPassword, userMessage(err), "email", email)
			return
		}
		redirectWithMessage(w, r, RouteLogin, message)
	}
}

// ResetPasswordGetHandler renders the reset form for the emailed token
func (s *Server) ResetPasswordGetHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.render(w, p, "reset_password.html", PageData{
			Title: "Choose a new password",
			Error: q.Get("error"),
			Token: q.Get("token"),
		})
	}
}

// ResetPasswordPostHandler processes the reset form
func (s *Server) ResetPasswordPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		resetToken := r.FormValue("token")
		message, err := s.auth.ResetPassword(r.Context(), resetToken, r.FormValue("password"))
		if err != nil {
			redirectWithError(w, r, RouteResetPassword, userMessage(err), "token", resetToken)
			return
		}
		redirectWithMessage(w, r, RouteLogin, message)
	}
}

// ProfileGetHandler renders the signed-in user's profile form
func (s *Server) ProfileGetHandler(p pages) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := guard.UserFromContext(r.Context())
		q := r.URL.Query()
		s.render(w, p, "profile.html", PageData{
			Title:   "Profile",
			Error:   q.Get("error"),
			Message: q.Get("message"),
			User:    user,
		})
	}
}

// ProfilePostHandler sends the fields present in the form as a partial update
func (s *Server) ProfilePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		field := func(name string) *string {
			if _, ok := r.PostForm[name]; !ok {
				return nil
			}
			v := r.PostForm.Get(name)
			return &v
		}
		profile := users.Profile{
			FirstName: field("first_name"),
			LastName:  field("last_name"),
			Company:   field("company"),
			Phone:     field("phone"),
		}

		if _, err := s.auth.UpdateProfile(r.Context(), profile); err != nil {
			redirectWithError(w, r, RouteProfile, userMessage(err))
			return
		}
		redirectWithMessage(w, r, RouteProfile, "Profile saved")
	}
}
