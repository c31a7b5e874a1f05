package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/auth/flowrepo"
	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/internal/config"
	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/rs/zerolog"
	xoauth2 "golang.org/x/oauth2"
)

const flowTimeout = 10 * time.Minute

// Service talks to the auth endpoints of the API and keeps the session store in step
// with their answers.
type Service struct {
	cfg         config.Config
	store       *sessions.Store
	coordinator *refresh.Coordinator
	api         *client.Client
	flows       flowrepo.Repo
	oauth       *xoauth2.Config
	logger      zerolog.Logger
	nowTime     func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithFlowRepo replaces the in-memory store of pending OAuth flows
func WithFlowRepo(repo flowrepo.Repo) ServiceOption {
	return func(s *Service) {
		s.flows = repo
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(
	cfg config.Config,
	store *sessions.Store,
	coordinator *refresh.Coordinator,
	api *client.Client,
	options ...ServiceOption,
) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("[NewService] config is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] session store is required")
	}
	if coordinator == nil {
		return nil, errors.New("[NewService] refresh coordinator is required")
	}
	if api == nil {
		return nil, errors.New("[NewService] api client is required")
	}

	s := &Service{
		cfg:         cfg,
		store:       store,
		coordinator: coordinator,
		api:         api,
		flows:       flowrepo.NewInMemoryRepo(),
		logger:      zerolog.Nop(),
		nowTime:     time.Now,
		oauth: &xoauth2.Config{
			ClientID:    cfg.GetOAuthClientID(),
			RedirectURL: cfg.GetOAuthRedirectURL(),
			Scopes:      cfg.GetOAuthScopes(),
			Endpoint: xoauth2.Endpoint{
				AuthURL:  cfg.GetOAuthAuthURL(),
				TokenURL: cfg.GetOAuthTokenURL(),
			},
		},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Service) endpoint(path string) string {
	return s.cfg.GetAPIBaseURL() + path
}

// Login exchanges credentials for a new session. A 401 here means bad credentials and is
// returned as a *client.ValidationError without touching the refresh path.
func (s *Service) Login(ctx context.Context, email, password string) (*users.User, error) {
	if err := ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	var resp oauth2.AuthResponse
	req := LoginRequest{Email: email, Password: password}
	if err := s.api.JSON(client.SkipRefresh(ctx), http.MethodPost, s.endpoint(s.cfg.GetEndpoints().Login), req, &resp); err != nil {
		return nil, apperrors.Wrapf(err, "[Login] %s", email)
	}
	return s.startSession(ctx, &resp)
}

// Signup creates an account and signs it in
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*users.User, error) {
	if err := ValidateSignup(req); err != nil {
		return nil, err
	}
	var resp oauth2.AuthResponse
	if err := s.api.JSON(client.SkipRefresh(ctx), http.MethodPost, s.endpoint(s.cfg.GetEndpoints().Signup), req, &resp); err != nil {
		return nil, apperrors.Wrapf(err, "[Signup] %s", req.Email)
	}
	return s.startSession(ctx, &resp)
}

// AuthCodeURL starts an OAuth authorization code flow with PKCE. The returned state must
// come back to OAuthCallback; returnURL is handed back there once the session exists.
func (s *Service) AuthCodeURL(returnURL string) (authURL string, state string, err error) {
	if s.oauth.Endpoint.AuthURL == "" {
		return "", "", OAuthNotConfiguredErr
	}

	state = uuid.NewString()
	verifier := xoauth2.GenerateVerifier()
	if err := s.flows.Upsert(state, &flowrepo.FlowState{
		CodeVerifier: verifier,
		ReturnURL:    returnURL,
		CreatedAt:    s.nowTime(),
	}); err != nil {
		return "", "", apperrors.Wrapf(err, "[AuthCodeURL] failed to store flow")
	}

	return s.oauth.AuthCodeURL(state, xoauth2.AccessTypeOffline, xoauth2.S256ChallengeOption(verifier)), state, nil
}

// OAuthCallback completes the flow started by AuthCodeURL. It returns the signed-in user
// and the return URL recorded for the flow.
func (s *Service) OAuthCallback(ctx context.Context, code, state string) (*users.User, string, error) {
	if err := ValidateState(state); err != nil {
		return nil, "", err
	}
	flow, err := s.flows.Get(state)
	if apperrors.Is(err, flowrepo.ErrStateNotFound) {
		return nil, "", InvalidStateErr
	}
	if err != nil {
		return nil, "", apperrors.Wrapf(err, "[OAuthCallback] failed to load flow")
	}
	// single use
	_ = s.flows.Delete(state)

	if s.nowTime().Sub(flow.CreatedAt) > flowTimeout {
		return nil, "", InvalidStateErr
	}

	var resp oauth2.AuthResponse
	req := OAuthCallbackRequest{
		Code:         code,
		State:        state,
		CodeVerifier: flow.CodeVerifier,
		RedirectURI:  s.oauth.RedirectURL,
	}
	if err := s.api.JSON(client.SkipRefresh(ctx), http.MethodPost, s.endpoint(s.cfg.GetEndpoints().OAuthCallback), req, &resp); err != nil {
		return nil, "", apperrors.Wrapf(err, "[OAuthCallback] exchange failed")
	}
	user, err := s.startSession(ctx, &resp)
	if err != nil {
		return nil, "", err
	}
	return user, flow.ReturnURL, nil
}

// Logout tells the server (best effort), drops every queued refresh waiter and clears the
// local session. The local session is cleared even when the server call fails.
func (s *Service) Logout(ctx context.Context) error {
	if s.store.IsAuthenticated() {
		refreshToken, _ := s.store.RefreshToken()
		err := s.api.JSON(client.SkipRefresh(ctx), http.MethodPost, s.endpoint(s.cfg.GetEndpoints().Logout), LogoutRequest{RefreshToken: refreshToken}, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("logout call failed, clearing local session anyway")
		}
	}

	s.coordinator.Cancel()
	if err := s.store.ClearSession(ctx); err != nil {
		return apperrors.Wrapf(err, "[Logout]")
	}
	s.logger.Info().Msg("logged out")
	return nil
}

// UpdateProfile sends the partial update and merges the server's answer into the session user
func (s *Service) UpdateProfile(ctx context.Context, profile users.Profile) (*users.User, error) {
	if !s.store.IsAuthenticated() {
		return nil, sessions.ErrNotAuthenticated
	}

	var updated users.User
	if err := s.api.JSON(ctx, http.MethodPatch, s.endpoint(s.cfg.GetEndpoints().Profile), profile, &updated); err != nil {
		return nil, apperrors.Wrapf(err, "[UpdateProfile]")
	}

	merge := profile
	if updated.ID != "" {
		merge = updated.AsProfile()
	}
	if err := s.store.UpdateUser(ctx, merge); err != nil {
		if apperrors.Is(err, sessions.ErrNotAuthenticated) {
			return nil, err
		}
		s.logger.Warn().Err(err).Msg("updated profile not persisted")
	}
	return s.store.GetSession().User, nil
}

// ForgotPassword requests a reset link and returns the server's confirmation text
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	var resp MessageResponse
	if err := s.api.JSON(client.SkipRefresh(ctx), http.MethodPost, s.endpoint(s.cfg.GetEndpoints().ForgotPassword), ForgotPasswordRequest{Email: email}, &resp); err != nil {
		return "", apperrors.Wrapf(err, "[ForgotPassword]")
	}
	return resp.Message, nil
}

// ResetPassword sets a new password using the emailed reset token
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (string, error) {
	if err := ValidatePassword(newPassword); err != nil {
		return "", err
	}
	var resp MessageResponse
	req := ResetPasswordRequest{Token: resetToken, Password: newPassword}
	if err := s.api.JSON(client.SkipRefresh(ctx), http.MethodPost, s.endpoint(s.cfg.GetEndpoints().ResetPassword), req, &resp); err != nil {
		return "", apperrors.Wrapf(err, "[ResetPassword]")
	}
	return resp.Message, nil
}

// startSession stores the session from a login, signup or OAuth callback answer
func (s *Service) startSession(ctx context.Context, resp *oauth2.AuthResponse) (*users.User, error) {
	if resp.User == nil {
		return nil, MissingUserErr
	}
	if resp.AccessToken == "" {
		return nil, MissingAccessTokenErr
	}

	ttl := token.ResolveLifetime(resp.Lifetime(), resp.AccessToken, s.store.Now(), s.cfg.GetDefaultAccessTokenTTL())
	err := s.store.SetSession(ctx, resp.User, sessions.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    ttl,
	})
	if apperrors.Is(err, sessions.ErrInvalidSession) {
		return nil, err
	}
	if err != nil {
		// the session is live in memory, only persistence failed
		s.logger.Warn().Err(err).Msg("session not persisted")
	}

	s.logger.Info().
		Str("userID", resp.User.ID).
		Str("role", resp.User.Role.String()).
		Bool("refreshable", resp.RefreshToken != "").
		Msg("session started")
	return resp.User.Clone(), nil
}
