package rfc9111

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// §  1.2.  Syntax Notation
// §
// §     This specification uses the Augmented Backus-Naur Form (ABNF)
// §     notation of [RFC5234], extended with the notation for case-
// §     sensitivity in strings defined in [RFC7405].
// §
// §     It also uses a list extension, defined in Section 5.6.1 of [HTTP],
// §     that allows for compact definition of comma-separated lists using a
// §     "#" operator (similar to how the "*" operator indicates repetition).

// §  1.2.2. Delta Seconds
// §
// §  The delta-seconds rule specifies a non-negative integer, representing time
// §  in seconds.
// §
// §      delta-seconds  = 1*DIGIT
// §
// §  A recipient parsing a delta-seconds value and converting it to binary form
// §  ought to use an arithmetic type of at least 31 bits of non-negative integer
// §  range. If a cache receives a delta-seconds value greater than the greatest
// §  integer it can represent, or if any of its subsequent calculations overflows,
// §  the cache MUST consider the value to be 2147483648 (231) or the greatest
// §  positive integer it can conveniently represent.
func deltaSeconds(secondsStr string) (time.Duration, bool) {
	seconds, err := strconv.ParseUint(strings.TrimSpace(secondsStr), 10, 64)
	if err != nil {
		return 0, false
	}
	if seconds > maxDeltaSeconds {
		seconds = maxDeltaSeconds
	}
	return time.Second * time.Duration(seconds), true
}

const maxDeltaSeconds = 2147483648

// ToDeltaSeconds renders a duration as delta-seconds.
func ToDeltaSeconds(duration time.Duration) string {
	return fmt.Sprintf("%.f", duration.Seconds())
}

// This section is from the HTTP specification (RFC9110), not the cache specification
//
// §  5.6.7.  Date/Time Formats
// §
// §       HTTP-date    = IMF-fixdate / obs-date
// §
// §     An example of the preferred format is
// §
// §       Sun, 06 Nov 1994 08:49:37 GMT    ; IMF-fixdate
// §
// §     Examples of the two obsolete formats are
// §
// §       Sunday, 06-Nov-94 08:49:37 GMT   ; obsolete RFC 850 format
// §       Sun Nov  6 08:49:37 1994         ; ANSI C's asctime() format
// §
// §     A recipient that parses a timestamp value in an HTTP field MUST
// §     accept all three HTTP-date formats.
func HttpDate(dateStr string) (time.Time, error) {
	if date, err := imfDate(dateStr); err == nil {
		return date, err
	} else {
		// try to parse as obsolete date
		if date, err := obsDate(dateStr); err == nil {
			return date, err
		}
		// return original error if unsuccessful
		return date, err
	}
}

// ToHttpDate formats a time in the preferred IMF-fixdate format.
func ToHttpDate(t time.Time) string {
	return t.UTC().Format(http1123GMT)
}

const (
	imfDateLayout = "Mon, 02 Jan 2006 15:04:05 MST"
	http1123GMT   = "Mon, 02 Jan 2006 15:04:05 GMT"
)

func imfDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	date, err := time.Parse(imfDateLayout, str)
	if err != nil {
		return date, err
	}
	if !strings.HasSuffix(str, " GMT") {
		return date, fmt.Errorf("Date %s is not in GMT time, but %s", date, date.Location())
	}
	return date.UTC(), err
}

func obsDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(dateStr)
	if date, err := time.Parse(time.RFC850, str); err == nil {
		return date, err
	}
	return time.Parse(time.ANSIC, str)
}

// §     Although all date formats are specified to be case-sensitive, a
// §     cache recipient SHOULD match the field value case-insensitively.
func normalizeDateStr(dateStr string) string {
	return strings.ToUpper(strings.TrimSpace(dateStr))
}
