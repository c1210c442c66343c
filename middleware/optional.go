package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
)

// Optional resolves the subject when a valid bearer token is present and
// passes every request through. Only storage failures are answered early, with
// the status from StatusFor.
func Optional(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithClient(r)
			if engine == nil {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if ok {
				subject, err := engine.TryGetSubject(ctx, token)
				if err != nil {
					DefaultErrorHandler(w, r, err)
					return
				}
				if subject != nil {
					ctx = authcore.WithSubject(ctx, subject)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
