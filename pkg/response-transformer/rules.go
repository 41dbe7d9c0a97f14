// Package responsetransformer applies configured rules to responses before
// they reach the cache, so origins without proper caching headers can still
// be cached.
package responsetransformer

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

type Rules []Rule

type Rule struct {
	Prefix   string            `yaml:"prefix"`
	Path     string            `yaml:"path"`
	Host     string            `yaml:"host"`
	Method   string            `yaml:"method"`
	Default  string            `yaml:"default"`
	Override string            `yaml:"override"`
	Query    map[string]string `yaml:"query"`
	Headers  map[string]string `yaml:"headers"`
}

// Apply applies the first matching rule to the response header.
// It reports whether a rule was applied.
func (r Rules) Apply(method string, target *url.URL, status int, header http.Header) bool {
	// only apply rules for successes
	if status != http.StatusOK || target == nil || header == nil {
		return false
	}
	// if rule found, apply to response
	if rule := r.find(method, target); rule != nil {
		applyRuleToHeader(*rule, header)
		return true
	}
	return false
}

func applyRuleToHeader(rule Rule, header http.Header) {
	if rule.Override != "" {
		log.Trace().Msg("Overriding Cache-Control header")
		setHeader(header, "Cache-Control", rule.Override)
	} else if rule.Default != "" && !hasHeader(header, "Cache-Control") {
		log.Trace().Msg("Applying default Cache-Control header")
		header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		log.Trace().Msgf("Setting header %s", name)
		setHeader(header, name, value)
	}
}

func (r Rules) find(method string, target *url.URL) *Rule {
	log.Trace().Msgf("Finding rule for request %s:%s", method, target.Path)
	if method == "" {
		method = http.MethodGet
	}
rulesLoop:
	for _, rule := range r {
		log.Trace().Msgf("Checking rule %+v", rule)
		if rule.Method == "" && method != http.MethodGet {
			continue
		}
		if rule.Method != "" && !strings.EqualFold(rule.Method, method) {
			continue
		}
		if rule.Host != "" && !strings.EqualFold(rule.Host, target.Hostname()) {
			continue
		}
		if rule.Path != "" && rule.Path != target.Path {
			continue
		}
		if rule.Prefix != "" && !strings.HasPrefix(target.Path, rule.Prefix) {
			continue
		}
		if len(rule.Query) > 0 {
			qry := target.Query()
			for name, value := range rule.Query {
				if value == "" && !qry.Has(name) {
					continue rulesLoop
				} else if value != "" && qry.Get(name) != value {
					continue rulesLoop
				}
			}
		}
		return &rule
	}
	return nil
}

// hasHeader and setHeader also consider non-canonical keys, since headers are
// not guaranteed to be normalized when they reach the transformer.
func hasHeader(header http.Header, name string) bool {
	for key, values := range header {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return true
		}
	}
	return false
}

func setHeader(header http.Header, name, value string) {
	for key := range header {
		if strings.EqualFold(key, name) {
			delete(header, key)
		}
	}
	header.Set(name, value)
}
