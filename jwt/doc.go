// Package jwt issues and verifies short-lived access tokens using configured signing keys
// and strict validation semantics suitable for low-latency authentication paths.
//
// Every token carries the user id (sub), the session id (sid) and a random jti.
// [Manager.Verify] fails closed and consults a [RevocationChecker] for the jti.
package jwt
