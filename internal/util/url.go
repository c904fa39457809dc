// url.go - Page URL helpers: analytics page keys and http(s) origins.
package util

import (
	"net/url"
	"strings"
)

// PageKey reduces a page URL to the path that labels analytics events.
// Query and fragment are dropped, a trailing slash is trimmed and the root
// becomes "/". Unparseable input is returned unchanged.
func PageKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "/"
	}
	return p
}

// HTTPOrigin returns scheme://host[:port] for absolute http and https URLs.
func HTTPOrigin(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return scheme + "://" + u.Host, true
}
