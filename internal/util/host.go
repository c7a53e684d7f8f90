package util

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeHost reduces a host identity to a comparable form: lowercased,
// with any scheme, port and surrounding whitespace removed. It tolerates
// full URLs, host:port pairs and bracketed IPv6 literals.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return ""
	}
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil && u.Host != "" {
			h = u.Host
		}
	}
	if stripped, _, err := net.SplitHostPort(h); err == nil {
		h = stripped
	}
	return strings.Trim(h, "[]")
}
