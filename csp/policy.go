package csp

import (
	"net/url"
	"sort"
	"strings"
)

// Policy is a parsed Content-Security-Policy. It is immutable once parsed
// and safe to share between goroutines.
type Policy struct {
	directives map[Directive][]Source
	reportOnly bool
	raw        string
}

// Parse parses a policy header value. Directive clauses are separated by
// semicolons, the first token of a clause names the directive and the
// remaining tokens are its sources. Unknown directives are kept. When a
// directive repeats, the first occurrence wins.
func Parse(header string, reportOnly bool) *Policy {
	p := &Policy{
		directives: make(map[Directive][]Source),
		reportOnly: reportOnly,
		raw:        header,
	}
	for _, clause := range strings.Split(header, ";") {
		tokens := strings.Fields(clause)
		if len(tokens) == 0 {
			continue
		}
		directive := ParseDirective(tokens[0])
		if _, seen := p.directives[directive]; seen {
			continue
		}
		sources := make([]Source, 0, len(tokens)-1)
		for _, token := range tokens[1:] {
			sources = append(sources, ParseSource(token))
		}
		p.directives[directive] = sources
	}
	return p
}

func (p *Policy) ReportOnly() bool {
	return p.reportOnly
}

// Raw returns the header value the policy was parsed from.
func (p *Policy) Raw() string {
	return p.raw
}

// Sources returns the sources of a directive as written, without fallback.
func (p *Policy) Sources(directive Directive) ([]Source, bool) {
	sources, ok := p.directives[directive]
	return sources, ok
}

// Directives returns the names of all directives, sorted.
func (p *Policy) Directives() []Directive {
	names := make([]Directive, 0, len(p.directives))
	for name := range p.directives {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// resolve returns the source list governing a directive, falling back to
// default-src.
func (p *Policy) resolve(directive Directive) (Directive, []Source, bool) {
	if sources, ok := p.directives[directive]; ok {
		return directive, sources, true
	}
	if sources, ok := p.directives[DefaultSrc]; ok {
		return DefaultSrc, sources, true
	}
	return "", nil, false
}

// Allows reports whether a resource of type t at target may be loaded by a
// document with the given origin. A policy without the governing directive
// (and without default-src) allows everything; 'none' denies everything.
func (p *Policy) Allows(target *url.URL, t ResourceType, documentOrigin *url.URL) bool {
	return p.Evaluate(target, t, documentOrigin) == nil
}

// Evaluate is Allows returning the violation instead of a boolean.
// It returns nil when the load is allowed.
func (p *Policy) Evaluate(target *url.URL, t ResourceType, documentOrigin *url.URL) *Violation {
	governing := t.Directive()
	if governing == "" {
		return nil
	}
	directive, sources, ok := p.resolve(governing)
	if !ok {
		return nil
	}
	if !containsKind(sources, SourceNone) {
		for _, source := range sources {
			if source.Matches(target, documentOrigin) {
				return nil
			}
		}
	}
	return p.violation(target, documentOrigin, governing, directive)
}

func (p *Policy) violation(target, documentOrigin *url.URL, effective, violated Directive) *Violation {
	v := &Violation{
		EffectiveDirective: string(effective),
		ViolatedDirective:  string(violated),
		OriginalPolicy:     p.raw,
		Disposition:        DispositionEnforce,
	}
	if p.reportOnly {
		v.Disposition = DispositionReport
	}
	if target != nil {
		v.BlockedURI = target.String()
	}
	if documentOrigin != nil {
		v.DocumentURI = documentOrigin.String()
	}
	return v
}

// AllowsInlineScript reports whether inline scripts may run.
func (p *Policy) AllowsInlineScript() bool {
	return p.allowsKeyword(ScriptSrc, SourceUnsafeInline)
}

// AllowsInlineStyle reports whether inline styles may be applied.
func (p *Policy) AllowsInlineStyle() bool {
	return p.allowsKeyword(StyleSrc, SourceUnsafeInline)
}

// AllowsEval reports whether eval and similar may run.
func (p *Policy) AllowsEval() bool {
	return p.allowsKeyword(ScriptSrc, SourceUnsafeEval)
}

func (p *Policy) allowsKeyword(directive Directive, kind SourceKind) bool {
	_, sources, ok := p.resolve(directive)
	if !ok {
		return true
	}
	return containsKind(sources, kind)
}

func (p *Policy) UpgradeInsecureRequests() bool {
	_, ok := p.directives[UpgradeInsecureRequests]
	return ok
}

func (p *Policy) BlocksMixedContent() bool {
	_, ok := p.directives[BlockAllMixedContent]
	return ok
}

// ReportURIs returns the endpoints named by report-uri.
func (p *Policy) ReportURIs() []string {
	uris := make([]string, 0)
	for _, source := range p.directives[ReportURI] {
		uris = append(uris, source.Raw)
	}
	return uris
}

// without returns a copy of the policy lacking the given directives.
func (p *Policy) without(names ...Directive) *Policy {
	c := &Policy{
		directives: make(map[Directive][]Source, len(p.directives)),
		reportOnly: p.reportOnly,
		raw:        p.raw,
	}
	for name, sources := range p.directives {
		c.directives[name] = sources
	}
	for _, name := range names {
		delete(c.directives, name)
	}
	return c
}

func containsKind(sources []Source, kind SourceKind) bool {
	for _, source := range sources {
		if source.Kind == kind {
			return true
		}
	}
	return false
}
