package rfc9111

import (
	"net/http"
	"time"
)

// §  5.3.  Expires
// §
// §     The "Expires" response header field gives the date/time after which
// §     the response is considered stale.  See Section 4.2 for further
// §     discussion of the freshness model.
// §
// §       Expires = HTTP-date
// §
// §     For example
// §
// §     Expires: Thu, 01 Dec 1994 16:00:00 GMT
// §
// §     If a response includes a Cache-Control header field with the max-age
// §     directive (Section 5.2.2.1), a recipient MUST ignore the Expires
// §     header field.
func getExpires(header http.Header) (time.Time, error) {
	return HttpDate(HeaderValue(header, "Expires"))
}

// §     A cache recipient MUST interpret invalid date formats, especially the
// §     value "0", as representing a time in the past (i.e., "already
// §     expired").
//
// WARNING this cache does not: an Expires value that cannot be parsed
// falls back to DefaultFreshnessLifetime (see ExpiresAt).
