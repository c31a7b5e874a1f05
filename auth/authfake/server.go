// Package authfake is an in-process auth API used by tests and the dev console. It issues
// HS256 access tokens, checks bcrypt password hashes and rotates refresh tokens.
package authfake

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"golang.org/x/crypto/bcrypt"
)

// RouteMe is a protected API route answering with the caller's user record
const RouteMe = "/api/me"

type account struct {
	user users.User
	hash []byte
}

// Server is the fake backend. All state lives in memory.
type Server struct {
	*httptest.Server

	signer         token.Signer
	endpoints      config.Endpoints
	accessTTL      time.Duration
	omitExpiresIn  bool
	noRefreshToken bool
	now            func() time.Time

	mu             sync.Mutex
	accounts       map[string]*account // by email
	accessTokens   map[string]string   // token -> email
	refreshTokens  map[string]string   // token -> email
	resetTokens    map[string]string   // token -> email
	oauthCodes     map[string]string   // code -> email
	failRefresh    bool
	refreshCalls   int
	logoutCalls    int
	lastResetToken string
}

type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens (default 15m)
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

// WithoutExpiresIn leaves expires_in out of token responses, so clients must read the JWT exp claim
func WithoutExpiresIn() Option {
	return func(s *Server) {
		s.omitExpiresIn = true
	}
}

// WithoutRefreshTokens issues sessions that cannot be refreshed
func WithoutRefreshTokens() Option {
	return func(s *Server) {
		s.noRefreshToken = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithSecret(secret string) Option {
	return func(s *Server) {
		s.signer = token.NewHMACSigner(secret)
	}
}

// New starts the server. Close it when done.
func New(opts ...Option) *Server {
	s := &Server{
		signer:        token.NewHMACSigner(uuid.NewString()),
		endpoints:     config.Session{}.GetEndpoints(),
		accessTTL:     15 * time.Minute,
		now:           time.Now,
		accounts:      make(map[string]*account),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		resetTokens:   make(map[string]string),
		oauthCodes:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.endpoints.Login, s.login)
	mux.HandleFunc("POST "+s.endpoints.Signup, s.signup)
	mux.HandleFunc("POST "+s.endpoints.OAuthCallback, s.oauthCallback)
	mux.HandleFunc("POST "+s.endpoints.Refresh, s.refresh)
	mux.HandleFunc("POST "+s.endpoints.Logout, s.logout)
	mux.HandleFunc("PATCH "+s.endpoints.Profile, s.profile)
	mux.HandleFunc("POST "+s.endpoints.ForgotPassword, s.forgotPassword)
	mux.HandleFunc("POST "+s.endpoints.ResetPassword, s.resetPassword)
	mux.HandleFunc("GET "+RouteMe, s.me)
	return mux
}

// AddUser registers an account with a bcrypt hash of password
func (s *Server) AddUser(user users.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(user.Email)] = &account{user: user, hash: hash}
	return nil
}

// AddOAuthCode makes code redeemable once for the account with email
func (s *Server) AddOAuthCode(code, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oauthCodes[code] = strings.ToLower(email)
}

// FailRefresh makes the refresh endpoint answer 401 while fail is true
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// RevokeAccessTokens invalidates every access token issued so far. Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]string)
}

func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

// LastResetToken returns the token of the most recent password reset request
func (s *Server) LastResetToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResetToken
}

// ValidRefreshToken reports whether refreshToken is still redeemable
func (s *Server) ValidRefreshToken(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refreshTokens[refreshToken]
	return ok
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Email or password is incorrect", nil)
		return
	}
	s.writeSession(w, http.StatusOK, acc)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if !decode(w, r, &req) {
		return
	}

	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "Password is too weak", map[string]string{"password": err.Error()})
		return
	}
	role := users.RoleClient
	if req.Role != "" {
		parsed, err := users.ParseRole(req.Role)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", "Unknown role", map[string]string{"role": req.Role})
			return
		}
		role = parsed
	}
	if role == users.RoleAdmin || role == users.RoleEmployee {
		writeError(w, http.StatusForbidden, "forbidden", "This role cannot self-register", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(req.Email)
	if _, exists := s.accounts[email]; exists {
		writeError(w, http.StatusConflict, "email_taken", "Email already registered", map[string]string{"email": "taken"})
		return
	}
	acc := &account{
		user: users.User{
			ID:        uuid.NewString(),
			Email:     req.Email,
			Role:      role,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Company:   req.Company,
			Phone:     req.Phone,
		},
		hash: hash,
	}
	s.accounts[email] = acc
	s.writeSession(w, http.StatusCreated, acc)
}

func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	var req auth.OAuthCallbackRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CodeVerifier == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code_verifier is required", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.oauthCodes[req.Code]
	delete(s.oauthCodes, req.Code)
	acc := s.accounts[email]
	if !ok || acc == nil {
		writeError(w, http.StatusUnauthorized, "invalid_grant", "Authorization code is invalid or expired", nil)
		return
	}
	s.writeSession(w, http.StatusOK, acc)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req oauth2.RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	email, ok := s.refreshTokens[req.RefreshToken]
	if s.failRefresh || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_grant", "Refresh token is invalid or expired", nil)
		return
	}
	delete(s.refreshTokens, req.RefreshToken)

	accessToken, err := s.issueAccessToken(s.accounts[email])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	rotated := uuid.NewString()
	s.refreshTokens[rotated] = email

	resp := oauth2.TokenResponse{AccessToken: accessToken, TokenType: "bearer", RefreshToken: &rotated}
	if !s.omitExpiresIn {
		resp.ExpiresIn = int(s.accessTTL / time.Second)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req auth.LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutCalls++
	delete(s.refreshTokens, req.RefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_expired", "Access token is invalid or expired", nil)
		return
	}
	var profile users.Profile
	if !decode(w, r, &profile) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc.user = *acc.user.Merge(profile)
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(req.Email)
	if _, ok := s.accounts[email]; ok {
		resetToken := uuid.NewString()
		s.resetTokens[resetToken] = email
		s.lastResetToken = resetToken
	}
	writeJSON(w, http.StatusOK, auth.MessageResponse{Message: "If the account exists, a reset link has been sent"})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.resetTokens[req.Token]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_token", "Reset link is invalid or has expired", nil)
		return
	}
	delete(s.resetTokens, req.Token)
	s.accounts[email].hash = hash
	writeJSON(w, http.StatusOK, auth.MessageResponse{Message: "Password updated"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_expired", "Access token is invalid or expired", nil)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, acc.user)
}

// authenticate checks the bearer token signature, expiry and that it was not revoked
func (s *Server) authenticate(r *http.Request) (*account, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, false
	}
	if _, err := token.Verify(s.signer, raw, s.now()); err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.accessTokens[raw]
	if !ok {
		return nil, false
	}
	acc, ok := s.accounts[email]
	return acc, ok
}

// writeSession issues tokens for acc. Callers must hold s.mu.
func (s *Server) writeSession(w http.ResponseWriter, status int, acc *account) {
	accessToken, err := s.issueAccessToken(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	resp := oauth2.AuthResponse{User: &acc.user, AccessToken: accessToken}
	if !s.noRefreshToken {
		resp.RefreshToken = uuid.NewString()
		s.refreshTokens[resp.RefreshToken] = strings.ToLower(acc.user.Email)
	}
	if !s.omitExpiresIn {
		resp.ExpiresIn = int(s.accessTTL / time.Second)
	}
	writeJSON(w, status, resp)
}

// issueAccessToken signs a token for acc. Callers must hold s.mu.
func (s *Server) issueAccessToken(acc *account) (string, error) {
	if acc == nil {
		return "", errors.New("account not found")
	}
	raw, err := token.CreateAccessToken(s.signer, token.AccessTokenClaims{
		Subject:  acc.user.ID,
		Role:     acc.user.Role.String(),
		IssuedAt: s.now(),
		TTL:      s.accessTTL,
	})
	if err != nil {
		return "", err
	}
	s.accessTokens[raw] = strings.ToLower(acc.user.Email)
	return raw, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Malformed request body", nil)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, message string, fields map[string]string) {
	writeJSON(w, status, oauth2.ErrorResponse{Error: code, Message: message, Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
