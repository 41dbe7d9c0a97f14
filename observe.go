package fetchpipe

import "time"

// Journal entry kinds.
const (
	KindBlock          = "block"
	KindAbort          = "abort"
	KindRedirect       = "redirect"
	KindUpgrade        = "upgrade"
	KindTransportError = "transport-error"
	KindPolicy         = "csp-policy"
	KindViolation      = "csp-violation"
	KindInvalidate     = "invalidate"
)

// Recorder keeps a trail of pipeline decisions for diagnostics.
type Recorder interface {
	Record(kind, requestID, url, detail string)
}

// Cache lookup results passed to Observer.CacheLookup.
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupStale  = "stale"
	LookupBypass = "bypass"
)

// Observer receives counters and timings of the pipeline.
type Observer interface {
	CacheLookup(result string)
	CacheStored(sizeBytes int64)
	Action(kind string)
	TransportDone(duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, string, string) {}

type nopObserver struct{}

func (nopObserver) CacheLookup(string)                 {}
func (nopObserver) CacheStored(int64)                  {}
func (nopObserver) Action(string)                      {}
func (nopObserver) TransportDone(time.Duration, error) {}
