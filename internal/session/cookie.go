package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieOptions configures the session cookie. Nil pointers take defaults:
// Secure in production, Expires true.
type CookieOptions struct {
	Name     string
	Domain   string
	Path     string
	SameSite http.SameSite
	Secure   *bool
	// Expires false makes the cookie last only for the browser session.
	Expires *bool
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	if o.Secure == nil {
		secure := secureDefault()
		o.Secure = &secure
	}
	if o.Expires == nil {
		expires := true
		o.Expires = &expires
	}
	return o
}

// ParseSameSite maps "lax", "strict" or "none" to the http constant.
// Anything else is lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Cookie is a transport-neutral session cookie. MaxAge follows net/http:
// zero omits the attribute, negative means Max-Age=0.
type Cookie struct {
	Name      string
	Value     string
	Domain    string
	Path      string
	SameSite  http.SameSite
	Secure    bool
	HTTPOnly  bool
	ExpiresAt time.Time
	MaxAge    int
}

// HTTP converts the cookie for http.SetCookie.
func (c Cookie) HTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		SameSite: c.SameSite,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		Expires:  c.ExpiresAt,
		MaxAge:   c.MaxAge,
	}
}

// String renders the Set-Cookie header value.
func (c Cookie) String() string {
	return c.HTTP().String()
}

// Cookie encodes s as a session cookie.
func (m *Manager) Cookie(s *Session) Cookie {
	c := m.baseCookie()
	c.Value = s.ID
	if *m.cookie.Expires {
		c.ExpiresAt = s.ExpiresAt
		maxAge := int(s.ExpiresAt.Sub(m.now()).Seconds())
		if maxAge <= 0 {
			maxAge = -1
		}
		c.MaxAge = maxAge
	}
	return c
}

// BlankCookie returns a cookie that deletes the session cookie.
func (m *Manager) BlankCookie() Cookie {
	c := m.baseCookie()
	c.ExpiresAt = time.Unix(0, 0).UTC()
	c.MaxAge = -1
	return c
}

func (m *Manager) baseCookie() Cookie {
	return Cookie{
		Name:     m.cookie.Name,
		Domain:   m.cookie.Domain,
		Path:     m.cookie.Path,
		SameSite: m.cookie.SameSite,
		Secure:   *m.cookie.Secure,
		HTTPOnly: true,
	}
}

// FromCookies reads the session id from a Cookie header value.
func (m *Manager) FromCookies(header string) string {
	if header == "" {
		return ""
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		// A single malformed pair fails ParseCookie; fall back to the
		// lenient request parser that skips it.
		r := http.Request{Header: http.Header{"Cookie": {header}}}
		c, err := r.Cookie(m.cookie.Name)
		if err != nil {
			return ""
		}
		return c.Value
	}
	for _, c := range cookies {
		if c.Name == m.cookie.Name {
			return c.Value
		}
	}
	return ""
}

// FromBearerToken reads the session id from an Authorization header value
// of the form "Bearer <id>". Any other shape yields "".
func FromBearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
