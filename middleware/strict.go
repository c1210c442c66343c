package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

// RequireRoles admits subjects holding any of roles.
func RequireRoles(engine *authcore.Engine, roles ...permission.Role) func(http.Handler) http.Handler {
	return Require(engine, permission.Requirement{Roles: roles})
}

// RequirePermissions admits subjects holding every one of perms.
func RequirePermissions(engine *authcore.Engine, perms ...permission.Permission) func(http.Handler) http.Handler {
	return Require(engine, permission.Requirement{Permissions: perms})
}
