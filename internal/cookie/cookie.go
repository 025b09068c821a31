// Package cookie sets and clears the short-lived cookies that carry
// sign-in state between the redirect and the callback.
package cookie

import (
	"net/http"
	"time"

	"github.com/lewis-wow/auth/internal/envutil"
	"github.com/lewis-wow/auth/internal/log"
)

// SetFlow sets a sign-in flow cookie (state or PKCE verifier).
func SetFlow(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secure := envutil.IsProduction()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Flow cookie set", map[string]any{
		"name":   name,
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   envutil.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Get retrieves a cookie value from the request. A missing cookie is "".
func Get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
