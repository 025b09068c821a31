// Package urlutil builds absolute URLs from a configured base URL.
package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// JoinPath appends path elements to base, which must be an absolute http(s)
// URL. Query and fragment of base are dropped. A trailing slash on the last
// element is kept.
func JoinPath(base string, elems ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("base URL must be an absolute http(s) URL: %q", base)
	}

	trailing := len(elems) > 0 && strings.HasSuffix(elems[len(elems)-1], "/")
	u.Path = path.Join(append([]string{"/", u.Path}, elems...)...)
	if trailing && u.Path != "/" {
		u.Path += "/"
	}
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// CallbackURL is the redirect URI a provider is registered with when none
// is configured: <baseURL><basePath>/callback/<providerID>.
func CallbackURL(baseURL, basePath, providerID string) (string, error) {
	return JoinPath(baseURL, basePath, "callback", providerID)
}
