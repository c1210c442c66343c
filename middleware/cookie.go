package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
)

// SetRefreshCookie writes the refresh token of pair. The cookie lives until the
// session's current inactivity expiry.
func SetRefreshCookie(w http.ResponseWriter, cfg authcore.CookieConfig, pair *authcore.TokenPair, now time.Time) {
	maxAge := int(pair.RefreshExpiresAt.Sub(now) / time.Second)
	if maxAge <= 0 {
		ClearRefreshCookie(w, cfg)
		return
	}
	http.SetCookie(w, refreshCookie(cfg, pair.RefreshToken, maxAge))
}

// ClearRefreshCookie expires the refresh cookie.
func ClearRefreshCookie(w http.ResponseWriter, cfg authcore.CookieConfig) {
	http.SetCookie(w, refreshCookie(cfg, "", -1))
}

// RefreshCookie returns the refresh token sent by the client, or "".
func RefreshCookie(r *http.Request, cfg authcore.CookieConfig) string {
	c, err := r.Cookie(cfg.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func refreshCookie(cfg authcore.CookieConfig, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		Secure:   !cfg.Insecure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
