package discovery

import (
	"net/url"
	"strings"
)

// NormalizeURL reduces a URL to scheme, host and path in lower case so the
// same site submitted twice compares equal. Query and fragment are dropped,
// as is a trailing slash on a non-root path. Unparseable input is returned
// trimmed and lowercased.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return strings.ToLower(u.Scheme + "://" + u.Hostname() + path)
}

// parseSourceURL returns the URL when it is an absolute http or https URL
// with a host.
func parseSourceURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}
