package cache

import (
	"net/http"
	"time"

	"github.com/always-cache/fetchpipe/rfc9111"
)

// CacheControl is the parsed directive set of a stored response.
// Unknown directives are ignored.
type CacheControl struct {
	MaxAge         *time.Duration
	NoCache        bool
	NoStore        bool
	MustRevalidate bool
	Public         bool
	Private        bool
}

// ParseCacheControl parses a Cache-Control field value.
func ParseCacheControl(value string) CacheControl {
	return fromDirectives(rfc9111.ParseCacheControl([]string{value}))
}

func parseCacheControlHeader(header http.Header) CacheControl {
	return fromDirectives(rfc9111.ParseCacheControlHeader(header))
}

func fromDirectives(cc rfc9111.CacheControl) CacheControl {
	parsed := CacheControl{
		NoCache:        cc.NoCache(),
		NoStore:        cc.NoStore(),
		MustRevalidate: cc.MustRevalidate(),
		Public:         cc.Public(),
		Private:        cc.Private(),
	}
	if maxAge, ok := cc.MaxAge(); ok {
		parsed.MaxAge = &maxAge
	}
	return parsed
}

// CacheEntry is one cached resource.
// Entries handed out by HttpCache are copies; changing them does not
// change the cache.
type CacheEntry struct {
	URL          string
	Body         []byte
	Header       http.Header
	ETag         string
	LastModified string
	ExpiresAt    time.Time
	CacheControl CacheControl
	HitCount     uint64
	SizeBytes    int64
	CachedAt     time.Time
}

func newEntry(url string, body []byte, header http.Header, now time.Time) CacheEntry {
	return CacheEntry{
		URL:          url,
		Body:         body,
		Header:       header,
		ETag:         rfc9111.HeaderValue(header, "ETag"),
		LastModified: rfc9111.HeaderValue(header, "Last-Modified"),
		ExpiresAt:    rfc9111.ExpiresAt(now, header),
		CacheControl: parseCacheControlHeader(header),
		SizeBytes:    int64(len(body)),
		CachedAt:     now,
	}
}

// IsExpired reports whether the entry is past its expiration time.
// An entry stored with max-age=0 is expired from its first check on.
func (e CacheEntry) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

func (e CacheEntry) IsExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CanUseWithoutRevalidation reports whether the entry may be served without
// a conditional request to the origin.
func (e CacheEntry) CanUseWithoutRevalidation() bool {
	return e.CanUseWithoutRevalidationAt(time.Now())
}

func (e CacheEntry) CanUseWithoutRevalidationAt(now time.Time) bool {
	return !e.IsExpiredAt(now) && !e.CacheControl.NoCache && !e.CacheControl.MustRevalidate
}

// TimeToLive returns the remaining freshness lifetime, zero once expired.
func (e CacheEntry) TimeToLive(now time.Time) time.Duration {
	if ttl := e.ExpiresAt.Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}

func (e CacheEntry) clone() CacheEntry {
	c := e
	c.Body = append([]byte(nil), e.Body...)
	c.Header = e.Header.Clone()
	return c
}
