package fetchpipe

import (
	"net/url"
	"time"

	cacheupdate "github.com/always-cache/fetchpipe/pkg/cache-update"
	"github.com/always-cache/fetchpipe/rfc9111"
)

// updateIfNeeded drops the stored responses affected by an unsafe request:
// the target itself, same-origin Location and Content-Location and any
// resources listed in Cache-Update.
func (f *Fetcher) updateIfNeeded(req *Request, res *Response) {
	if f.cache == nil || res.Status >= 400 {
		return
	}
	target, err := url.Parse(req.URL)
	if err != nil {
		f.log.Error().Err(err).Str("url", req.URL).Msg("Could not parse URL for invalidation")
		return
	}
	f.invalidateUris(req.RequestID,
		rfc9111.GetInvalidateURIs(req.Method, target, res.Status, res.Header))
	f.saveUpdates(req.RequestID,
		cacheupdate.GetCacheUpdates(req.Method, target, res.Header))
}

func (f *Fetcher) invalidateUris(requestID string, uris []string) {
	for _, uri := range uris {
		if f.cache.Invalidate(uri) {
			f.log.Trace().Str("url", uri).Msg("Invalidated stored response")
			f.recorder.Record(KindInvalidate, requestID, uri, "")
		}
	}
}

func (f *Fetcher) saveUpdates(requestID string, updates []cacheupdate.CacheUpdate) {
	for _, update := range updates {
		update := update
		f.log.Trace().Str("update", update.URL).Dur("delay", update.Delay).Msg("Updating cache based on header")
		uri := update.URL
		if update.Delay > 0 {
			go func() {
				time.Sleep(update.Delay)
				f.invalidateUris(requestID, []string{uri})
			}()
		} else {
			f.invalidateUris(requestID, []string{uri})
		}
	}
}
