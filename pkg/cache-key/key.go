// Package cachekey derives cache keys from request URLs.
package cachekey

import (
	"net"
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// GetKey returns the normalized form of a URL used as the cache key.
// Scheme and host are lower-cased, the default port and the fragment are dropped,
// an empty path becomes "/" and query parameters are sorted by name.
// A URL that cannot be parsed is used verbatim (trimmed).
func GetKey(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return trimmed
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = normalizeHost(u.Scheme, u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	if u.RawQuery != "" {
		// Encode sorts by key
		u.RawQuery = u.Query().Encode()
	}
	return u.String()
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if defaultPorts[scheme] == port {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]"
		}
		return hostname
	}
	return host
}
