// Package httpapi exposes an authcore Engine over HTTP with gorilla/mux.
//
// Endpoints:
//
//	POST   /auth/login       JSON {"identifier","secret","remember","client","device_id"}
//	POST   /auth/refresh     rotates the refresh cookie
//	POST   /auth/logout      revokes the cookie's session and the bearer token
//	POST   /auth/logout-all  revokes every session of the bearer's user
//	GET    /auth/sessions    lists the caller's live sessions
//	POST   /auth/devices     registers a device for the caller
//	GET    /me               returns the caller's subject
//	GET    /metrics          Prometheus exposition, when configured
//	GET    /healthz
//
// The refresh token only travels in an HttpOnly cookie scoped to the engine's
// cookie path.
package httpapi
