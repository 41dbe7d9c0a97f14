package rfc9111

import (
	"net/http"
	"time"
)

// DefaultFreshnessLifetime is used when a response carries neither a max-age
// directive nor a parseable Expires field.
const DefaultFreshnessLifetime = time.Hour

// ExpiresAt returns the absolute expiration time for a response stored at cachedAt.
func ExpiresAt(cachedAt time.Time, header http.Header) time.Time {
	return cachedAt.Add(freshness_lifetime(cachedAt, header))
}

// §  4.2.1.  Calculating Freshness Lifetime
// §
func freshness_lifetime(cachedAt time.Time, header http.Header) time.Duration {
	resCacheControl := ParseCacheControlHeader(header)
	// §     A cache can calculate the freshness lifetime (denoted as
	// §     freshness_lifetime) of a response by evaluating the following rules
	// §     and using the first match:
	// §
	// §     *  If the cache is shared and the s-maxage response directive
	// §        (Section 5.2.2.10) is present, use its value, or
	//
	// this is a private (browser) cache, s-maxage does not apply
	// §
	// §     *  If the max-age response directive (Section 5.2.2.1) is present,
	// §        use its value, or
	if val, ok := resCacheControl.MaxAge(); ok {
		return val
	}
	// §
	// §     *  If the Expires response header field (Section 5.3) is present, use
	// §        its value minus the value of the Date response header field (using
	// §        the time the message was received if it is not present, as per
	// §        Section 6.6.1 of [HTTP]), or
	if expires, err := getExpires(header); err == nil {
		date := cachedAt
		if d, err := HttpDate(HeaderValue(header, "Date")); err == nil {
			date = d
		}
		return expires.Sub(date)
	}
	// §
	// §     *  Otherwise, no explicit expiration time is present in the response.
	// §        A heuristic freshness lifetime might be applicable; see
	// §        Section 4.2.2.
	return DefaultFreshnessLifetime
}
