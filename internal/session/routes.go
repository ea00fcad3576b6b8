package session

import "strings"

const LoginRoute = "/login"

// dashboardRoutes maps a role to its landing page
var dashboardRoutes = map[string]string{
	"patient":  "/patient/dashboard",
	"importer": "/importer/dashboard",
	"donor":    "/donor/dashboard",
	"admin":    "/admin/dashboard",
}

// RouteForRole returns the landing page for role, or the login page for an unknown role
func RouteForRole(role string) string {
	if route, ok := dashboardRoutes[normalizeRole(role)]; ok {
		return route
	}
	return LoginRoute
}

// normalizeRole makes "ROLE_ADMIN", "Admin" and "admin" equivalent
func normalizeRole(role string) string {
	r := strings.TrimSpace(role)
	if len(r) >= 5 && strings.EqualFold(r[:5], "ROLE_") {
		r = r[5:]
	}
	return strings.ToLower(r)
}
