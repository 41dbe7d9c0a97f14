// Package rfc9211 renders the Cache-Status response header field.
//
// §  The Cache-Status HTTP response header field indicates caches' handling
// §  of the request corresponding to the response it occurs within.
package rfc9211

import "fmt"

// CacheName identifies this cache in the Cache-Status field.
const CacheName = "Fetchpipe"

type CacheStatusStatus string

const (
	StatusHit CacheStatusStatus = "hit"
	StatusFwd CacheStatusStatus = "fwd"
)

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"

	// The cache was able to select a response for the request, but
	// it was stale.
	FwdReasonStale FwdReason = "stale"
)

type CacheStatus struct {
	Status    CacheStatusStatus
	FwdReason FwdReason
	// FwdStatus is the status code the next hop returned, if forwarded.
	FwdStatus int
	// Stored is true if the forwarded response was stored.
	Stored bool
	// TimeToLive in seconds, only meaningful when positive.
	TimeToLive int
	Detail     string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

func (cs CacheStatus) IsHit() bool {
	return cs.Status == StatusHit
}

// §  Cache-Status   = #( cache-identifier *( ";" parameter ) )
func (cs CacheStatus) String() string {
	status := fmt.Sprintf("%s; %s", CacheName, cs.Status)
	if cs.Status == StatusFwd && cs.FwdReason != "" {
		status = fmt.Sprintf("%s=%s", status, cs.FwdReason)
	}
	if cs.FwdStatus != 0 {
		status = fmt.Sprintf("%s; fwd-status=%d", status, cs.FwdStatus)
	}
	if cs.Stored {
		status = status + "; stored"
	}
	if cs.TimeToLive > 0 {
		status = fmt.Sprintf("%s; ttl=%d", status, cs.TimeToLive)
	}
	if cs.Detail != "" {
		status = status + "; detail=" + cs.Detail
	}
	return status
}
