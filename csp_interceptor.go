package fetchpipe

import (
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/fetchpipe/csp"
	"github.com/always-cache/fetchpipe/rfc9111"
)

// documentBindingTTL bounds how long a document request waits for its
// response before the binding is dropped.
const documentBindingTTL = time.Minute

// CspInterceptor extracts policies from document responses and enforces
// them on the document's subresource loads.
//
// Responses do not know which document they belong to, so PreRequest binds
// the request ID of every document request to its URL and PostResponse
// resolves the response's request ID through that binding.
type CspInterceptor struct {
	manager   *csp.Manager
	documents *gocache.Cache
	recorder  Recorder
}

// NewCspInterceptor creates an interceptor storing policies in manager.
// The recorder, if not nil, receives report-only violations and policy
// changes.
func NewCspInterceptor(manager *csp.Manager, recorder Recorder) *CspInterceptor {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CspInterceptor{
		manager:   manager,
		documents: gocache.New(documentBindingTTL, 2*documentBindingTTL),
		recorder:  recorder,
	}
}

func (c *CspInterceptor) Name() string {
	return "csp"
}

func (c *CspInterceptor) ShouldBlock(req *Request) bool {
	v := c.violation(req)
	return v != nil && v.Enforced()
}

func (c *CspInterceptor) BlockReason(req *Request) string {
	if v := c.violation(req); v != nil {
		return fmt.Sprintf("blocked by Content-Security-Policy (%s)", v.EffectiveDirective)
	}
	return ""
}

// PreRequest binds document requests and reports report-only violations
// of subresource requests.
func (c *CspInterceptor) PreRequest(req *Request) error {
	if req.IsNavigation() {
		c.documents.SetDefault(req.RequestID, req.URL)
		return nil
	}
	if v := c.violation(req); v != nil && !v.Enforced() {
		report, err := jsoniter.MarshalToString(v)
		if err != nil {
			return errors.Wrap(err, "could not encode violation report")
		}
		log.Debug().Str("document", req.DocumentURL).Str("url", req.URL).Msg("Report-only CSP violation")
		c.recorder.Record(KindViolation, req.RequestID, req.URL, report)
	}
	return nil
}

// PostResponse stores the policy of a document response. An enforced
// header policy wins over a meta policy, which wins over a report-only
// header. A document without any policy has its previous one removed.
func (c *CspInterceptor) PostResponse(res *Response) error {
	value, ok := c.documents.Get(res.RequestID)
	if !ok {
		return nil
	}
	c.documents.Delete(res.RequestID)
	documentURL := value.(string)

	policy, err := c.extractPolicy(res)
	if err != nil {
		return err
	}
	if policy == nil {
		c.manager.RemovePolicy(documentURL)
		return nil
	}
	log.Trace().Str("document", documentURL).Bool("reportOnly", policy.ReportOnly()).Msg("Storing CSP")
	c.manager.SetPolicy(documentURL, policy)
	c.recorder.Record(KindPolicy, res.RequestID, documentURL, policy.Raw())
	return nil
}

func (c *CspInterceptor) extractPolicy(res *Response) (*csp.Policy, error) {
	if value := rfc9111.HeaderValue(res.Header, "Content-Security-Policy"); strings.TrimSpace(value) != "" {
		return csp.Parse(value, false), nil
	}
	if isHTML(res) {
		policies, err := csp.ParseMeta(res.Body)
		if err != nil {
			return nil, errors.Wrap(err, "could not parse document for CSP meta tags")
		}
		if len(policies) > 0 {
			return policies[0], nil
		}
	}
	if value := rfc9111.HeaderValue(res.Header, "Content-Security-Policy-Report-Only"); strings.TrimSpace(value) != "" {
		return csp.Parse(value, true), nil
	}
	return nil, nil
}

func (c *CspInterceptor) violation(req *Request) *csp.Violation {
	if req.IsNavigation() || req.DocumentURL == "" {
		return nil
	}
	return c.manager.Check(req.DocumentURL, req.URL, req.ResourceType)
}

func isHTML(res *Response) bool {
	if contentType := rfc9111.HeaderValue(res.Header, "Content-Type"); contentType != "" {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return len(res.Body) > 0 && mimetype.Detect(res.Body).Is("text/html")
}
