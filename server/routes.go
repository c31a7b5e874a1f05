package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-client/users"
)

// area is a role-gated section of the console
type area struct {
	route   string
	title   string
	allowed []users.RoleType
}

var areas = []area{
	{route: RouteAdmin, title: "Billing administration", allowed: []users.RoleType{users.RoleAdmin}},
	{route: RouteClient, title: "Shipments and invoices", allowed: []users.RoleType{users.RoleClient, users.RoleAdmin}},
	{route: RouteVendor, title: "Trips and rates", allowed: []users.RoleType{users.RoleVendor, users.RoleAdmin}},
	{route: RouteEmployee, title: "Operations", allowed: []users.RoleType{users.RoleEmployee, users.RoleAdmin}},
}

// landingPages maps each role to the area it lands on after signing in
var landingPages = map[users.RoleType]string{
	users.RoleAdmin:    RouteAdmin,
	users.RoleClient:   RouteClient,
	users.RoleVendor:   RouteVendor,
	users.RoleEmployee: RouteEmployee,
}

func landingPage(role users.RoleType) string {
	if page, ok := landingPages[role]; ok {
		return page
	}
	return RouteDashboard
}

func (s *Server) initRoutes() error {
	p, err := parsePages()
	if err != nil {
		return err
	}

	html := func(h http.HandlerFunc) http.HandlerFunc {
		return ChainMiddleware(h, s.HTMLMiddleware()...)
	}

	s.RegisterRouteFunc("GET "+RouteHome, html(s.IndexHandler(p)))

	s.RegisterRouteFunc("GET "+RouteLogin, html(s.LoginPageHandler(p)))
	s.RegisterRouteFunc("POST "+RouteLogin, html(s.LoginSubmissionHandler()))
	s.RegisterRouteFunc("POST "+RouteLogout, html(s.LogoutHandler()))
	s.RegisterRouteFunc("GET "+RouteSignup, html(s.SignupGetHandler(p)))
	s.RegisterRouteFunc("POST "+RouteSignup, html(s.SignupPostHandler()))
	s.RegisterRouteFunc("GET "+RouteForgotPassword, html(s.ForgotPasswordGetHandler(p)))
	s.RegisterRouteFunc("POST "+RouteForgotPassword, html(s.ForgotPasswordPostHandler()))
	s.RegisterRouteFunc("GET "+RouteResetPassword, html(s.ResetPasswordGetHandler(p)))
	s.RegisterRouteFunc("POST "+RouteResetPassword, html(s.ResetPasswordPostHandler()))
	s.RegisterRouteFunc("GET "+RouteOAuthStart, html(s.OAuthStartHandler()))
	s.RegisterRouteFunc("GET "+RouteOAuthCallback, html(s.OAuthCallbackHandler()))
	s.RegisterRouteFunc("GET "+RouteForbidden, html(s.ForbiddenHandler(p)))

	// Guarded pages. An empty allow-list admits any signed-in role.
	s.RegisterRouteFunc("GET "+RouteDashboard, html(s.guard.GuardFunc(s.AreaHandler(p, "Dashboard"), nil, "")))
	s.RegisterRouteFunc("GET "+RouteProfile, html(s.guard.GuardFunc(s.ProfileGetHandler(p), nil, "")))
	s.RegisterRouteFunc("POST "+RouteProfile, html(s.guard.GuardFunc(s.ProfilePostHandler(), nil, "")))
	for _, a := range areas {
		s.RegisterRouteFunc("GET "+a.route, html(s.guard.GuardFunc(s.AreaHandler(p, a.title), a.allowed, "")))
	}

	s.RegisterRouteFunc("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	return nil
}
