package fetchpipe

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// RequestInterceptor is a pluggable policy in the request chain.
type RequestInterceptor interface {
	// PreRequest may mutate the request. An error aborts the chain.
	PreRequest(req *Request) error
	// PostResponse may mutate the response. An error aborts the chain.
	PostResponse(res *Response) error
	// ShouldBlock vetoes a request. It must not mutate anything.
	ShouldBlock(req *Request) bool
}

// BlockReasoner is implemented by interceptors that explain their blocks.
type BlockReasoner interface {
	BlockReason(req *Request) string
}

// Resetter is implemented by interceptors holding per-navigation state.
type Resetter interface {
	Reset()
}

// Namer is implemented by interceptors with a human readable name.
type Namer interface {
	Name() string
}

// RequestHandler runs requests and responses through an ordered chain of
// interceptors. It is not synchronized: use one handler per request stream
// (e.g. per tab) or guard it externally.
type RequestHandler struct {
	interceptors []RequestInterceptor
}

func NewRequestHandler(interceptors ...RequestInterceptor) *RequestHandler {
	h := &RequestHandler{}
	for _, i := range interceptors {
		h.AddInterceptor(i)
	}
	return h
}

// AddInterceptor appends an interceptor. Registration order matters:
// requests pass interceptors in order, responses in reverse order.
func (h *RequestHandler) AddInterceptor(interceptor RequestInterceptor) {
	h.interceptors = append(h.interceptors, interceptor)
}

func (h *RequestHandler) Interceptors() []RequestInterceptor {
	return append([]RequestInterceptor(nil), h.interceptors...)
}

// Blocked asks every interceptor, in order, whether to block the request.
// It returns the reason given by the first one that does.
func (h *RequestHandler) Blocked(req *Request) (string, bool) {
	for _, interceptor := range h.interceptors {
		if interceptor.ShouldBlock(req) {
			return blockReason(interceptor, req), true
		}
	}
	return "", false
}

// ProcessRequest first checks all interceptors for a block, and only then
// lets each of them mutate the request in registration order.
// The first PreRequest error aborts the chain and is returned as a
// *ChainError.
func (h *RequestHandler) ProcessRequest(req *Request) (RequestAction, error) {
	if reason, blocked := h.Blocked(req); blocked {
		log.Debug().Str("url", req.URL).Str("reason", reason).Msg("Request blocked")
		return Block(reason), nil
	}
	for i, interceptor := range h.interceptors {
		if err := interceptor.PreRequest(req); err != nil {
			return RequestAction{}, &ChainError{
				Stage:       StagePreRequest,
				Index:       i,
				Interceptor: interceptorName(interceptor),
				Err:         err,
			}
		}
	}
	return Allow(), nil
}

// ProcessResponse lets each interceptor handle the response, the last
// registered one first.
func (h *RequestHandler) ProcessResponse(res *Response) error {
	for i := len(h.interceptors) - 1; i >= 0; i-- {
		interceptor := h.interceptors[i]
		if err := interceptor.PostResponse(res); err != nil {
			return &ChainError{
				Stage:       StagePostResponse,
				Index:       i,
				Interceptor: interceptorName(interceptor),
				Err:         err,
			}
		}
	}
	return nil
}

// Reset resets the per-navigation state of all interceptors. Call it at the
// start of each top-level navigation.
func (h *RequestHandler) Reset() {
	for _, interceptor := range h.interceptors {
		if r, ok := interceptor.(Resetter); ok {
			r.Reset()
		}
	}
}

// InjectHeaders merges headers into the request, replacing fields that are
// already present under any casing.
func InjectHeaders(req *Request, headers http.Header) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for name, values := range headers {
		for key := range req.Header {
			if strings.EqualFold(key, name) {
				delete(req.Header, key)
			}
		}
		req.Header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
}

func blockReason(interceptor RequestInterceptor, req *Request) string {
	if r, ok := interceptor.(BlockReasoner); ok {
		if reason := r.BlockReason(req); reason != "" {
			return reason
		}
	}
	return "blocked by " + interceptorName(interceptor)
}

func interceptorName(interceptor RequestInterceptor) string {
	if n, ok := interceptor.(Namer); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", interceptor)
}
