// Package fetchpipe is the request processing pipeline of a browser: every
// load passes the HTTP cache, an ordered chain of interceptors (ad-block,
// header injection, redirect limits, Content-Security-Policy) and a
// transport, and its response passes the chain back before it is cached.
package fetchpipe

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/always-cache/fetchpipe/cache"
	"github.com/always-cache/fetchpipe/csp"
	"github.com/always-cache/fetchpipe/rfc9111"
	"github.com/always-cache/fetchpipe/rfc9211"
)

// Transport performs the network exchange for a request.
// Implementations return ErrTimeout or a *RequestFailedError on failure.
type Transport interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// DefaultMaxRedirects bounds Navigate when no redirect interceptor stops it
// earlier.
const DefaultMaxRedirects = 20

type Config struct {
	// Cache for responses. Caching is disabled if nil.
	Cache *cache.HttpCache
	// Policies of loaded documents. Upgrade and mixed content checks are
	// disabled if nil.
	Policies *csp.Manager
	// Transport for network requests. Required.
	Transport Transport
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Optional diagnostics journal.
	Recorder Recorder
	// Optional metrics.
	Observer Observer
	// MaxRedirects bounds the hops of a single Navigate call.
	MaxRedirects int
}

// Fetcher orchestrates cache, interceptor chain and transport for single
// loads. It is safe for concurrent use as long as every goroutine passes
// its own RequestHandler.
type Fetcher struct {
	cache        *cache.HttpCache
	policies     *csp.Manager
	transport    Transport
	log          zerolog.Logger
	recorder     Recorder
	observer     Observer
	maxRedirects int
}

// Result is the outcome of a load.
type Result struct {
	// Request as it was sent, after upgrades and interceptor changes.
	Request *Request
	// Response is nil if the request was blocked.
	Response    *Response
	Action      RequestAction
	CacheStatus rfc9211.CacheStatus
}

// CreateFetcher creates a fetcher with the given config.
func CreateFetcher(config Config) *Fetcher {
	if config.Transport == nil {
		panic("fetchpipe: transport required")
	}
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().Str("component", "fetcher").Logger()

	f := &Fetcher{
		cache:        config.Cache,
		policies:     config.Policies,
		transport:    config.Transport,
		log:          logger,
		recorder:     config.Recorder,
		observer:     config.Observer,
		maxRedirects: config.MaxRedirects,
	}
	if f.recorder == nil {
		f.recorder = nopRecorder{}
	}
	if f.observer == nil {
		f.observer = nopObserver{}
	}
	if f.maxRedirects <= 0 {
		f.maxRedirects = DefaultMaxRedirects
	}
	return f
}

// Navigate loads a top-level document, following redirects. The handler is
// reset first, so per-navigation interceptor state starts over.
func (f *Fetcher) Navigate(ctx context.Context, handler *RequestHandler, rawURL string) (*Result, error) {
	handler.Reset()
	target := rawURL
	for hop := 0; ; hop++ {
		if hop > f.maxRedirects {
			return nil, errors.Wrapf(ErrTooManyRedirects, "navigating to %s", rawURL)
		}
		result, err := f.Fetch(ctx, handler, NewRequest(http.MethodGet, target))
		if err != nil {
			return nil, err
		}
		if result.Action.Kind != ActionRedirect {
			return result, nil
		}
		f.log.Debug().Str("from", target).Str("to", result.Action.URL).Msg("Following redirect")
		f.recorder.Record(KindRedirect, result.Request.RequestID, target, result.Action.URL)
		target = result.Action.URL
	}
}

// Load loads a subresource of a document.
func (f *Fetcher) Load(ctx context.Context, handler *RequestHandler, documentURL, resourceURL string, t csp.ResourceType) (*Result, error) {
	target := resourceURL
	if base, err := url.Parse(documentURL); err == nil {
		if ref, err := url.Parse(resourceURL); err == nil {
			target = base.ResolveReference(ref).String()
		}
	}
	return f.Fetch(ctx, handler, NewSubresourceRequest(documentURL, target, t))
}

// Fetch runs a single request through the pipeline:
// document policy upgrades, cache lookup, the request chain, the transport,
// the response chain, invalidation and cache storage.
// A blocked request is not an error; interceptor errors are returned as
// *ChainError and transport errors as returned by the transport.
func (f *Fetcher) Fetch(ctx context.Context, handler *RequestHandler, req *Request) (*Result, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	logger := f.log.With().Str("request", req.RequestID).Logger()
	result := &Result{Request: req, Action: Allow()}

	if upgraded := f.upgradeInsecure(req); upgraded != nil {
		logger.Debug().Str("from", req.URL).Str("to", upgraded.URL).Msg("Upgrading insecure request")
		f.recorder.Record(KindUpgrade, req.RequestID, req.URL, upgraded.URL)
		req = upgraded
		result.Request = req
		result.Action = ModifiedRequest(req)
	}
	logger = logger.With().Str("url", req.URL).Logger()

	if reason, mixed := f.mixedContent(req); mixed {
		return f.blocked(result, reason), nil
	}

	cacheable := f.cache != nil && rfc9111.RequestMethodIsUnderstood(req.Method)
	var stale *cache.CacheEntry
	if !cacheable {
		f.observer.CacheLookup(LookupBypass)
		result.CacheStatus.Forward(rfc9211.FwdReasonMethod)
	} else if entry, ok := f.cache.Get(req.URL); !ok {
		f.observer.CacheLookup(LookupMiss)
		result.CacheStatus.Forward(rfc9211.FwdReasonUriMiss)
	} else if entry.CanUseWithoutRevalidation() {
		// stored responses still answer to the blocking interceptors
		if reason, blocked := handler.Blocked(req); blocked {
			return f.blocked(result, reason), nil
		}
		f.observer.CacheLookup(LookupHit)
		return f.serveStored(result, entry), nil
	} else {
		f.observer.CacheLookup(LookupStale)
		result.CacheStatus.Forward(rfc9211.FwdReasonStale)
		stale = &entry
		for name, values := range rfc9111.ConditionalHeaders(entry.ETag, entry.LastModified) {
			if rfc9111.FieldAbsent(req.Header, name) {
				req.Header[name] = values
			}
		}
	}

	action, err := handler.ProcessRequest(req)
	if err != nil {
		return nil, f.aborted(req, err)
	}
	if action.Kind == ActionBlock {
		return f.blocked(result, action.Reason), nil
	}

	start := time.Now()
	res, err := f.transport.Fetch(ctx, req)
	f.observer.TransportDone(time.Since(start), err)
	if err != nil {
		logger.Debug().Err(err).Msg("Transport failed")
		f.recorder.Record(KindTransportError, req.RequestID, req.URL, err.Error())
		return nil, err
	}
	res.RequestID = req.RequestID
	res.URL = req.URL
	res.Method = req.Method
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	result.CacheStatus.FwdStatus = res.Status

	validated := false
	if res.Status == http.StatusNotModified && stale != nil {
		logger.Trace().Msg("Stored response validated")
		res = &Response{
			Status:    http.StatusOK,
			Header:    rfc9111.UpdateStoredHeader(stale.Header, res.Header),
			Body:      stale.Body,
			RequestID: res.RequestID,
			URL:       res.URL,
			Method:    res.Method,
		}
		validated = true
	}

	if err := handler.ProcessResponse(res); err != nil {
		return nil, f.aborted(req, err)
	}

	if rfc9111.UnsafeMethod(req.Method) {
		f.updateIfNeeded(req, res)
	}

	// stored entries do not keep their status, only 200s are written
	if cacheable && res.Status == http.StatusOK && cache.IsCacheable(res.Status, res.Header) {
		if f.cache.Put(req.URL, res.Body, res.Header) {
			result.CacheStatus.Stored = true
			f.observer.CacheStored(int64(len(res.Body)))
			if stored, ok := f.cache.Peek(req.URL); ok {
				result.CacheStatus.TimeToLive = int(stored.TimeToLive(time.Now()).Seconds())
			}
		}
	}
	if validated {
		result.CacheStatus.Detail = "validated"
	}
	res.Header.Set("Cache-Status", result.CacheStatus.String())
	result.Response = res

	if IsRedirect(res.Status) {
		if location := rfc9111.HeaderValue(res.Header, "Location"); location != "" {
			if next, err := resolve(req.URL, location); err == nil {
				result.Action = Redirect(next)
			}
		}
	}
	f.observer.Action(result.Action.Kind.String())
	logger.Debug().
		Str("method", req.Method).
		Int("status", res.Status).
		Str("fwd", string(result.CacheStatus.FwdReason)).
		Bool("stored", result.CacheStatus.Stored).
		Int("ttl", result.CacheStatus.TimeToLive).
		Str("action", result.Action.Kind.String()).
		Msg("Fetched")
	return result, nil
}

func (f *Fetcher) serveStored(result *Result, entry cache.CacheEntry) *Result {
	now := time.Now()
	result.CacheStatus.Hit()
	result.CacheStatus.TimeToLive = int(entry.TimeToLive(now).Seconds())
	header := entry.Header
	if header == nil {
		header = make(http.Header)
	}
	rfc9111.SetAge(header, rfc9111.CurrentAge(entry.CachedAt, now, entry.Header))
	header.Set("Cache-Status", result.CacheStatus.String())
	result.Response = &Response{
		Status:    http.StatusOK,
		Header:    header,
		Body:      entry.Body,
		RequestID: result.Request.RequestID,
		URL:       result.Request.URL,
		Method:    result.Request.Method,
	}
	f.observer.Action(result.Action.Kind.String())
	f.log.Debug().Str("request", result.Request.RequestID).Str("url", entry.URL).Uint64("hits", entry.HitCount).Msg("Serving stored response")
	return result
}

func (f *Fetcher) blocked(result *Result, reason string) *Result {
	result.Action = Block(reason)
	f.observer.Action(result.Action.Kind.String())
	f.recorder.Record(KindBlock, result.Request.RequestID, result.Request.URL, reason)
	f.log.Debug().Str("request", result.Request.RequestID).Str("url", result.Request.URL).Str("reason", reason).Msg("Blocked")
	return result
}

func (f *Fetcher) aborted(req *Request, err error) error {
	f.observer.Action("abort")
	f.recorder.Record(KindAbort, req.RequestID, req.URL, err.Error())
	f.log.Warn().Err(err).Str("request", req.RequestID).Str("url", req.URL).Msg("Interceptor chain aborted")
	return err
}

// upgradeInsecure returns an https copy of an http subresource request if
// the document's policy asks for upgrades.
func (f *Fetcher) upgradeInsecure(req *Request) *Request {
	policy := f.documentPolicy(req)
	if policy == nil || !policy.UpgradeInsecureRequests() {
		return nil
	}
	target, err := url.Parse(req.URL)
	if err != nil || target.Scheme != "http" {
		return nil
	}
	target.Scheme = "https"
	if target.Port() == "80" {
		target.Host = target.Hostname()
	}
	upgraded := req.Clone()
	upgraded.URL = target.String()
	return upgraded
}

// mixedContent reports http loads of https documents whose policy blocks
// mixed content.
func (f *Fetcher) mixedContent(req *Request) (string, bool) {
	policy := f.documentPolicy(req)
	if policy == nil || !policy.BlocksMixedContent() {
		return "", false
	}
	document, err := url.Parse(req.DocumentURL)
	if err != nil || document.Scheme != "https" {
		return "", false
	}
	target, err := url.Parse(req.URL)
	if err != nil || target.Scheme != "http" {
		return "", false
	}
	return "blocked mixed content", true
}

func (f *Fetcher) documentPolicy(req *Request) *csp.Policy {
	if f.policies == nil || req.IsNavigation() || req.DocumentURL == "" {
		return nil
	}
	if policy, ok := f.policies.GetPolicy(req.DocumentURL); ok && !policy.ReportOnly() {
		return policy
	}
	return nil
}

func resolve(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
