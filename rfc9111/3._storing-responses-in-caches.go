package rfc9111

import "net/http"

// § 3.  Storing Responses in Caches
// §
// §    A cache MUST NOT store a response to a request unless:
// §
// §      *  the response status code is final (see Section 15 of [HTTP]);
// §      *  the no-store cache directive is not present in the response (see
// §         Section 5.2.2.5);
//
// IsCacheable reports whether a response with the given status and header
// may be written to the cache. It looks at the raw field value, before the
// stored entry parses it again.
func IsCacheable(statusCode int, header http.Header) bool {
	if !responseStatusCodeIsUnderstood(statusCode) {
		return false
	}
	if FieldAbsent(header, "Cache-Control") {
		return true
	}
	return !ParseCacheControlHeader(header).NoStore()
}

// §  In this context, a cache has "understood" a request method or a
// §  response status code if it recognizes it and implements all specified
// §  caching-related behavior.
func responseStatusCodeIsUnderstood(statusCode int) bool {
	return (statusCode >= 200 && statusCode <= 299) || statusCode == http.StatusNotModified
}

// RequestMethodIsUnderstood reports whether responses to the method are stored.
func RequestMethodIsUnderstood(method string) bool {
	switch method {
	case "", http.MethodGet:
		return true
	}
	return false
}
