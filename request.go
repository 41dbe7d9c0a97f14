package fetchpipe

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/always-cache/fetchpipe/csp"
)

// Request is an outgoing request as seen by the interceptor chain.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
	// Timestamp is the creation time in epoch milliseconds.
	Timestamp int64
	// RequestID correlates the request with its response.
	RequestID string
	// DocumentURL is the document that initiated the load. It is empty for
	// top-level navigations.
	DocumentURL string
	// ResourceType is Document for navigations.
	ResourceType csp.ResourceType
}

// NewRequest creates a top-level document request with a fresh request ID.
func NewRequest(method, url string) *Request {
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		URL:          url,
		Method:       method,
		Header:       make(http.Header),
		Timestamp:    time.Now().UnixMilli(),
		RequestID:    uuid.NewString(),
		ResourceType: csp.Document,
	}
}

// NewSubresourceRequest creates a GET request for a resource loaded by a
// document.
func NewSubresourceRequest(documentURL, url string, t csp.ResourceType) *Request {
	req := NewRequest(http.MethodGet, url)
	req.DocumentURL = documentURL
	req.ResourceType = t
	return req
}

// IsNavigation reports whether the request loads a top-level document.
func (r *Request) IsNavigation() bool {
	return r.ResourceType == csp.Document || r.ResourceType == ""
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Response is the transport's answer to a Request.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
	// URL and Method of the request that produced the response.
	URL    string
	Method string
}
