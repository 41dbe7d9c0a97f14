package rfc9111

import (
	"net/http"
	"net/url"
)

// §  4.4.  Invalidating Stored Responses
// §
// §     Because unsafe request methods (Section 9.2.1 of [HTTP]) such as PUT,
// §     POST, or DELETE have the potential for changing state on the origin
// §     server, intervening caches are required to invalidate stored
// §     responses to keep their contents up to date.
// §
// §     A cache MUST invalidate the target URI (Section 7.1 of [HTTP]) when
// §     it receives a non-error status code in response to an unsafe request
// §     method (including methods whose safety is unknown).
// §
// §     A cache MAY invalidate other URIs when it receives a non-error status
// §     code in response to an unsafe request method (including methods whose
// §     safety is unknown).  In particular, the URI(s) in the Location and
// §     Content-Location response header fields (if present) are candidates
// §     for invalidation; [...] However, a cache MUST NOT trigger an
// §     invalidation under these conditions if the origin (Section 4.3.1 of
// §     [HTTP]) of the URI to be invalidated differs from that of the target
// §     URI (Section 7.1 of [HTTP]).
// §
// §     A "non-error response" is one with a 2xx (Successful) or 3xx
// §     (Redirection) status code.
func GetInvalidateURIs(method string, target *url.URL, statusCode int, header http.Header) []string {
	if !UnsafeMethod(method) || !nonErrorStatus(statusCode) || target == nil {
		return nil
	}
	uris := []string{target.String()}
	for _, field := range []string{"Location", "Content-Location"} {
		value := HeaderValue(header, field)
		if value == "" {
			continue
		}
		ref, err := url.Parse(value)
		if err != nil {
			continue
		}
		resolved := target.ResolveReference(ref)
		if sameOrigin(resolved, target) {
			uris = append(uris, resolved.String())
		}
	}
	return uris
}

// UnsafeMethod reports whether a request method may change origin state.
// Methods whose safety is unknown are treated as unsafe.
func UnsafeMethod(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

func nonErrorStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 399
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
