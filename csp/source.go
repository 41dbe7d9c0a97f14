package csp

import (
	"net/url"
	"strings"
)

type SourceKind int

const (
	SourceSelf SourceKind = iota
	SourceUnsafeInline
	SourceUnsafeEval
	SourceStrictDynamic
	SourceNone
	SourceWasmUnsafeEval
	SourceScheme
	SourceHost
	SourceNonce
	SourceHash
)

var keywordSources = map[string]SourceKind{
	"'self'":             SourceSelf,
	"'unsafe-inline'":    SourceUnsafeInline,
	"'unsafe-eval'":      SourceUnsafeEval,
	"'strict-dynamic'":   SourceStrictDynamic,
	"'none'":             SourceNone,
	"'wasm-unsafe-eval'": SourceWasmUnsafeEval,
}

func (k SourceKind) String() string {
	switch k {
	case SourceSelf:
		return "self"
	case SourceUnsafeInline:
		return "unsafe-inline"
	case SourceUnsafeEval:
		return "unsafe-eval"
	case SourceStrictDynamic:
		return "strict-dynamic"
	case SourceNone:
		return "none"
	case SourceWasmUnsafeEval:
		return "wasm-unsafe-eval"
	case SourceScheme:
		return "scheme"
	case SourceHost:
		return "host"
	case SourceNonce:
		return "nonce"
	case SourceHash:
		return "hash"
	}
	return "unknown"
}

// Source is one source expression of a directive.
//
// For SourceScheme, Value is the scheme without the colon. For SourceHost,
// Value is the host pattern, and Scheme and Port are set when the expression
// names them (e.g. https://cdn.example.com:8443). For SourceNonce and
// SourceHash, Value is the base64 value and Algorithm the hash algorithm.
type Source struct {
	Kind      SourceKind
	Value     string
	Algorithm string
	Scheme    string
	Port      string
	Raw       string
}

// ParseSource parses a single source expression.
func ParseSource(token string) Source {
	lower := strings.ToLower(token)
	if kind, ok := keywordSources[lower]; ok {
		return Source{Kind: kind, Raw: token}
	}
	if isQuoted(token) {
		inner := token[1 : len(token)-1]
		if strings.HasPrefix(lower, "'nonce-") {
			return Source{Kind: SourceNonce, Value: inner[len("nonce-"):], Raw: token}
		}
		if i := strings.Index(inner, "-"); strings.HasPrefix(lower, "'sha") && i > 3 {
			return Source{Kind: SourceHash, Algorithm: strings.ToLower(inner[:i]), Value: inner[i+1:], Raw: token}
		}
	}
	if strings.HasSuffix(token, ":") && !strings.Contains(token[:len(token)-1], ":") {
		return Source{Kind: SourceScheme, Value: strings.ToLower(strings.TrimSuffix(token, ":")), Raw: token}
	}
	return parseHostSource(token)
}

func isQuoted(token string) bool {
	return len(token) >= 2 && strings.HasPrefix(token, "'") && strings.HasSuffix(token, "'")
}

// parseHostSource parses [scheme://]host[:port][/path]. The path part is
// not used for matching.
func parseHostSource(token string) Source {
	source := Source{Kind: SourceHost, Raw: token}
	rest := token
	if i := strings.Index(rest, "://"); i != -1 {
		source.Scheme = strings.ToLower(rest[:i])
		rest = rest[i+3:]
	}
	if i := strings.Index(rest, "/"); i != -1 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, ":"); i != -1 && !strings.HasSuffix(rest, "]") {
		source.Port = rest[i+1:]
		rest = rest[:i]
	}
	source.Value = strings.ToLower(rest)
	return source
}

// Matches reports whether the source expression allows loading target from
// a document with the given origin. Keyword sources other than 'self' never
// match a URL, they only affect inline and eval checks.
func (s Source) Matches(target *url.URL, documentOrigin *url.URL) bool {
	if target == nil {
		return false
	}
	switch s.Kind {
	case SourceSelf:
		return sameOrigin(target, documentOrigin)
	case SourceScheme:
		return strings.EqualFold(target.Scheme, s.Value)
	case SourceHost:
		return s.matchesHost(target)
	}
	return false
}

func (s Source) matchesHost(target *url.URL) bool {
	if s.Scheme != "" && !schemeMatches(s.Scheme, target.Scheme) {
		return false
	}
	if s.Port != "" && s.Port != "*" && s.Port != effectivePort(target) {
		return false
	}
	host := strings.ToLower(target.Hostname())
	if host == "" {
		return false
	}
	if s.Value == "*" {
		return true
	}
	if strings.HasPrefix(s.Value, "*.") {
		domain := s.Value[2:]
		// the wildcard needs at least one label in front of the domain
		return len(host) > len(domain)+1 && strings.HasSuffix(host, "."+domain)
	}
	return host == strings.Trim(s.Value, "[]")
}

// schemeMatches allows the secure variant of a scheme named by a source.
func schemeMatches(source, target string) bool {
	target = strings.ToLower(target)
	switch source {
	case "http":
		return target == "http" || target == "https"
	case "ws":
		return target == "ws" || target == "wss"
	}
	return source == target
}

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	}
	return ""
}
