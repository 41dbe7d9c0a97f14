package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/always-cache/fetchpipe"
	"github.com/always-cache/fetchpipe/cache"
	"github.com/always-cache/fetchpipe/csp"
	"github.com/always-cache/fetchpipe/journal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultTab is used when a request names no tab.
const defaultTab = "default"

// tab holds the interceptor chain of one browsing context. Loads of a tab
// are serialized so per-navigation state stays consistent.
type tab struct {
	mu      sync.Mutex
	handler *fetchpipe.RequestHandler
}

type server struct {
	fetcher    *fetchpipe.Fetcher
	cache      *cache.HttpCache
	policies   *csp.Manager
	journal    journal.SQLiteJournal
	gatherer   prometheus.Gatherer
	newHandler func() *fetchpipe.RequestHandler

	mu   sync.Mutex
	tabs map[string]*tab
}

func (s *server) tab(id string) *tab {
	if id == "" {
		id = defaultTab
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[id]
	if !ok {
		t = &tab{handler: s.newHandler()}
		s.tabs[id] = t
		log.Debug().Str("tab", id).Msg("Created tab")
	}
	return t
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/navigate", s.navigate)
	r.Get("/load", s.load)
	r.Route("/debug", func(r chi.Router) {
		r.Get("/cache", s.getCache)
		r.Delete("/cache", s.deleteCache)
		r.Get("/csp", s.getPolicy)
		r.Delete("/csp", s.deletePolicy)
		r.Get("/journal", s.getJournal)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *server) navigate(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}
	t := s.tab(r.URL.Query().Get("tab"))
	t.mu.Lock()
	result, err := s.fetcher.Navigate(r.Context(), t.handler, target)
	t.mu.Unlock()
	writeResult(w, result, err)
}

func (s *server) load(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	document, target := query.Get("document"), query.Get("url")
	if document == "" || target == "" {
		writeError(w, http.StatusBadRequest, "document and url parameters required")
		return
	}
	resourceType := csp.ParseResourceType(query.Get("type"))
	t := s.tab(query.Get("tab"))
	t.mu.Lock()
	result, err := s.fetcher.Load(r.Context(), t.handler, document, target, resourceType)
	t.mu.Unlock()
	writeResult(w, result, err)
}

func writeResult(w http.ResponseWriter, result *fetchpipe.Result, err error) {
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, fetchpipe.ErrTimeout) {
			status = http.StatusGatewayTimeout
		} else if fetchpipe.IsChainAbort(err) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}
	w.Header().Set("X-Fetchpipe-Action", result.Action.Kind.String())
	if result.Response == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"action": result.Action.Kind.String(),
			"reason": result.Action.Reason,
			"url":    result.Request.URL,
		})
		return
	}
	for name, values := range result.Response.Header {
		w.Header()[name] = values
	}
	w.Header().Del("Content-Length")
	w.Header().Del("Transfer-Encoding")
	if result.Action.Kind == fetchpipe.ActionRedirect {
		w.Header().Set("X-Fetchpipe-Redirect", result.Action.URL)
	}
	w.WriteHeader(result.Response.Status)
	w.Write(result.Response.Body)
}

type entryView struct {
	URL          string              `json:"url"`
	SizeBytes    int64               `json:"size_bytes"`
	HitCount     uint64              `json:"hit_count"`
	CachedAt     time.Time           `json:"cached_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
	Fresh        bool                `json:"fresh"`
	ETag         string              `json:"etag,omitempty"`
	LastModified string              `json:"last_modified,omitempty"`
	Header       map[string][]string `json:"header"`
}

func (s *server) getCache(w http.ResponseWriter, r *http.Request) {
	if target := r.URL.Query().Get("url"); target != "" {
		entry, ok := s.cache.Peek(target)
		if !ok {
			writeError(w, http.StatusNotFound, "not cached")
			return
		}
		writeJSON(w, http.StatusOK, entryView{
			URL:          entry.URL,
			SizeBytes:    entry.SizeBytes,
			HitCount:     entry.HitCount,
			CachedAt:     entry.CachedAt,
			ExpiresAt:    entry.ExpiresAt,
			Fresh:        entry.CanUseWithoutRevalidation(),
			ETag:         entry.ETag,
			LastModified: entry.LastModified,
			Header:       entry.Header,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"size_bytes":       s.cache.Size(),
		"max_memory_bytes": s.cache.MaxMemoryBytes(),
		"entries":          s.cache.Len(),
		"keys":             s.cache.Keys(),
	})
}

func (s *server) deleteCache(w http.ResponseWriter, r *http.Request) {
	if target := r.URL.Query().Get("url"); target != "" {
		if !s.cache.Invalidate(target) {
			writeError(w, http.StatusNotFound, "not cached")
			return
		}
	} else {
		s.cache.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

type policyView struct {
	Document    string              `json:"document"`
	ReportOnly  bool                `json:"report_only"`
	Raw         string              `json:"raw"`
	Directives  map[string][]string `json:"directives"`
	ReportURIs  []string            `json:"report_uris,omitempty"`
	UpgradeHTTP bool                `json:"upgrade_insecure_requests"`
}

func (s *server) getPolicy(w http.ResponseWriter, r *http.Request) {
	document := r.URL.Query().Get("document")
	if document == "" {
		writeJSON(w, http.StatusOK, map[string]any{"documents": s.policies.Documents()})
		return
	}
	policy, ok := s.policies.GetPolicy(document)
	if !ok {
		writeError(w, http.StatusNotFound, "no policy")
		return
	}
	view := policyView{
		Document:    document,
		ReportOnly:  policy.ReportOnly(),
		Raw:         policy.Raw(),
		Directives:  map[string][]string{},
		ReportURIs:  policy.ReportURIs(),
		UpgradeHTTP: policy.UpgradeInsecureRequests(),
	}
	for _, directive := range policy.Directives() {
		sources, _ := policy.Sources(directive)
		tokens := make([]string, 0, len(sources))
		for _, source := range sources {
			tokens = append(tokens, source.Raw)
		}
		view.Directives[directive.String()] = tokens
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) deletePolicy(w http.ResponseWriter, r *http.Request) {
	if document := r.URL.Query().Get("document"); document != "" {
		s.policies.RemovePolicy(document)
	} else {
		s.policies.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) getJournal(w http.ResponseWriter, r *http.Request) {
	var entries []journal.Entry
	var err error
	if requestID := r.URL.Query().Get("request"); requestID != "" {
		entries, err = s.journal.ForRequest(requestID)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err = s.journal.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Could not read journal")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Could not write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
