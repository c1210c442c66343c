// Package middleware adapts authcore.Engine to net/http.
//
// # Guards
//
//   - [Require]: rejects the request unless the bearer token satisfies a
//     permission.Requirement.
//   - [RequireRoles], [RequirePermissions]: shorthands for Require.
//   - [Optional]: attaches the subject when a valid token is present and never
//     rejects on a bad token.
//
// Every guard stores the client IP and User-Agent on the request context so
// Login and Refresh can bind them to the session, and stores the resolved
// subject for [authcore.SubjectFromContext].
//
// # Refresh cookie
//
// [SetRefreshCookie] and [ClearRefreshCookie] write the refresh token as an
// HttpOnly, SameSite=Strict cookie scoped to Config.Cookie.Path.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or touch storage.
package middleware
