package fetchpipe

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AdBlockInterceptor blocks requests whose URL matches an external
// predicate.
type AdBlockInterceptor struct {
	shouldBlock func(url string) bool
	enabled     bool
}

// NewAdBlockInterceptor wraps the predicate. A nil predicate disables
// blocking.
func NewAdBlockInterceptor(shouldBlock func(url string) bool) *AdBlockInterceptor {
	return &AdBlockInterceptor{shouldBlock: shouldBlock, enabled: shouldBlock != nil}
}

// DisabledAdBlock returns an interceptor that never blocks.
func DisabledAdBlock() *AdBlockInterceptor {
	return &AdBlockInterceptor{}
}

func (a *AdBlockInterceptor) Enabled() bool {
	return a.enabled
}

func (a *AdBlockInterceptor) PreRequest(*Request) error {
	return nil
}

func (a *AdBlockInterceptor) PostResponse(*Response) error {
	return nil
}

func (a *AdBlockInterceptor) ShouldBlock(req *Request) bool {
	return a.enabled && a.shouldBlock(req.URL)
}

func (a *AdBlockInterceptor) Name() string {
	return "adblock"
}

func (a *AdBlockInterceptor) BlockReason(*Request) string {
	return "blocked by ad-block list"
}

// HeaderInjectorInterceptor adds a fixed set of header fields to every
// request.
type HeaderInjectorInterceptor struct {
	headers http.Header
}

func NewHeaderInjectorInterceptor(headers http.Header) *HeaderInjectorInterceptor {
	return &HeaderInjectorInterceptor{headers: headers.Clone()}
}

func (h *HeaderInjectorInterceptor) PreRequest(req *Request) error {
	InjectHeaders(req, h.headers)
	return nil
}

func (h *HeaderInjectorInterceptor) PostResponse(*Response) error {
	return nil
}

func (h *HeaderInjectorInterceptor) ShouldBlock(*Request) bool {
	return false
}

func (h *HeaderInjectorInterceptor) Name() string {
	return "headers"
}

// RedirectInterceptor limits the number of document requests within one
// navigation. Only requests with IsNavigation set count toward the limit,
// so subresource loads through the same handler never trip it.
type RedirectInterceptor struct {
	maxRedirects  int
	redirectCount int
}

func NewRedirectInterceptor(maxRedirects int) *RedirectInterceptor {
	return &RedirectInterceptor{maxRedirects: maxRedirects}
}

func (r *RedirectInterceptor) PreRequest(req *Request) error {
	if !req.IsNavigation() {
		return nil
	}
	if r.redirectCount >= r.maxRedirects {
		return errors.Wrapf(ErrTooManyRedirects, "%s after %d requests", req.URL, r.redirectCount)
	}
	r.redirectCount++
	log.Trace().Str("url", req.URL).Int("count", r.redirectCount).Msg("Navigation request")
	return nil
}

func (r *RedirectInterceptor) PostResponse(*Response) error {
	return nil
}

func (r *RedirectInterceptor) ShouldBlock(*Request) bool {
	return false
}

// Reset clears the counter. Call it once per top-level navigation.
func (r *RedirectInterceptor) Reset() {
	r.redirectCount = 0
}

func (r *RedirectInterceptor) Count() int {
	return r.redirectCount
}

func (r *RedirectInterceptor) Name() string {
	return "redirect"
}

// IsRedirect reports whether the status code is a redirect the pipeline
// follows.
func IsRedirect(statusCode int) bool {
	if statusCode == 301 ||
		statusCode == 302 ||
		statusCode == 303 ||
		statusCode == 307 ||
		statusCode == 308 {
		return true
	}
	return false
}
