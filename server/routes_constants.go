package server

// Route path constants
// All console routes are defined here to ensure consistency and prevent typos
const (
	RouteHome = "/{$}"

	// Auth pages
	RouteLogin          = "/login"
	RouteLogout         = "/logout"
	RouteSignup         = "/signup"
	RouteForgotPassword = "/forgot-password"
	RouteResetPassword  = "/reset-password"
	RouteOAuthStart     = "/oauth/start"
	RouteOAuthCallback  = "/oauth/callback"
	RouteForbidden      = "/forbidden"

	// Role areas, each behind the route guard
	RouteDashboard = "/dashboard"
	RouteAdmin     = "/admin/"
	RouteClient    = "/client/"
	RouteVendor    = "/vendor/"
	RouteEmployee  = "/employee/"
	RouteProfile   = "/profile"

	// JSON
	RouteSession = "/session"
	RouteHealth  = "/healthz"
)
