package fetchpipe

import (
	"net/url"

	"github.com/rs/zerolog/log"

	transformer "github.com/always-cache/fetchpipe/pkg/response-transformer"
)

// RulesInterceptor applies configured response rules, e.g. to add caching
// headers to origins that do not send them.
type RulesInterceptor struct {
	rules transformer.Rules
}

func NewRulesInterceptor(rules transformer.Rules) *RulesInterceptor {
	return &RulesInterceptor{rules: rules}
}

func (r *RulesInterceptor) Name() string {
	return "rules"
}

func (r *RulesInterceptor) PreRequest(*Request) error {
	return nil
}

func (r *RulesInterceptor) ShouldBlock(*Request) bool {
	return false
}

func (r *RulesInterceptor) PostResponse(res *Response) error {
	if len(r.rules) == 0 {
		return nil
	}
	target, err := url.Parse(res.URL)
	if err != nil {
		log.Debug().Err(err).Str("url", res.URL).Msg("Not applying rules to unparseable URL")
		return nil
	}
	if r.rules.Apply(res.Method, target, res.Status, res.Header) {
		log.Trace().Str("url", res.URL).Msg("Applied response rule")
	}
	return nil
}
