package csp

import (
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestWildcardHost(t *testing.T) {
	policy := Parse("script-src *.example.com", false)
	doc := mustParseURL(t, "https://example.org/")
	if !policy.Allows(mustParseURL(t, "https://sub.example.com/a.js"), Script, doc) {
		t.Fatal("Subdomain denied")
	}
	if !policy.Allows(mustParseURL(t, "https://a.b.example.com/a.js"), Script, doc) {
		t.Fatal("Nested subdomain denied")
	}
	if policy.Allows(mustParseURL(t, "https://example.com/a.js"), Script, doc) {
		t.Fatal("Wildcard matched its own domain")
	}
	if policy.Allows(mustParseURL(t, "https://badexample.com/a.js"), Script, doc) {
		t.Fatal("Wildcard matched without a dot")
	}
}

func TestDefaultSrcFallback(t *testing.T) {
	policy := Parse("default-src 'self'", false)
	doc := mustParseURL(t, "https://example.com/page")
	if !policy.Allows(mustParseURL(t, "https://example.com/app.js"), Script, doc) {
		t.Fatal("Same-origin script denied")
	}
	if policy.Allows(mustParseURL(t, "https://cdn.example.net/app.js"), Script, doc) {
		t.Fatal("Cross-origin script allowed")
	}
	if policy.Allows(mustParseURL(t, "http://example.com/app.js"), Script, doc) {
		t.Fatal("Different scheme treated as same origin")
	}
	if policy.Allows(mustParseURL(t, "https://example.com:8443/app.js"), Script, doc) {
		t.Fatal("Different port treated as same origin")
	}
	if !policy.Allows(mustParseURL(t, "https://example.com:443/app.js"), Script, doc) {
		t.Fatal("Explicit default port denied")
	}
}

func TestSelfWithoutDocument(t *testing.T) {
	policy := Parse("img-src 'self'", false)
	if policy.Allows(mustParseURL(t, "https://example.com/a.png"), Image, nil) {
		t.Fatal("'self' matched without document origin")
	}
}

func TestNoneShortCircuits(t *testing.T) {
	policy := Parse("script-src 'none' https: *.example.com", false)
	if policy.Allows(mustParseURL(t, "https://sub.example.com/a.js"), Script, nil) {
		t.Fatal("'none' did not deny")
	}
}

func TestMissingDirectiveAllows(t *testing.T) {
	policy := Parse("img-src 'none'", false)
	if !policy.Allows(mustParseURL(t, "https://evil.example/a.js"), Script, nil) {
		t.Fatal("Script denied without script-src and default-src")
	}
	if !policy.Allows(mustParseURL(t, "https://evil.example/"), Document, nil) {
		t.Fatal("Document denied")
	}
}

func TestSchemeSource(t *testing.T) {
	policy := Parse("img-src data: HTTPS:", false)
	if !policy.Allows(mustParseURL(t, "data:image/png;base64,AAAA"), Image, nil) {
		t.Fatal("data: denied")
	}
	if !policy.Allows(mustParseURL(t, "https://example.com/a.png"), Image, nil) {
		t.Fatal("https: denied")
	}
	if policy.Allows(mustParseURL(t, "http://example.com/a.png"), Image, nil) {
		t.Fatal("http allowed by https:")
	}
}

func TestHostSourceWithSchemeAndPort(t *testing.T) {
	policy := Parse("connect-src https://api.example.com:8443/v1/ http://cdn.example.com", false)
	if !policy.Allows(mustParseURL(t, "https://api.example.com:8443/v1/items"), Connect, nil) {
		t.Fatal("Matching scheme and port denied")
	}
	if policy.Allows(mustParseURL(t, "https://api.example.com/v1/items"), Connect, nil) {
		t.Fatal("Port mismatch allowed")
	}
	if !policy.Allows(mustParseURL(t, "https://cdn.example.com/lib.js"), Connect, nil) {
		t.Fatal("Secure upgrade of http source denied")
	}
}

func TestInlineAndEval(t *testing.T) {
	if p := Parse("img-src *", false); !p.AllowsInlineScript() || !p.AllowsInlineStyle() || !p.AllowsEval() {
		t.Fatal("Absent directives must be permissive")
	}
	p := Parse("default-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-eval'", false)
	if p.AllowsInlineScript() {
		t.Fatal("Inline script allowed although script-src lacks 'unsafe-inline'")
	}
	if !p.AllowsEval() {
		t.Fatal("Eval denied")
	}
	if !p.AllowsInlineStyle() {
		t.Fatal("Inline style denied through default-src")
	}
}

func TestKeywordsDoNotMatchURLs(t *testing.T) {
	policy := Parse("script-src 'unsafe-inline' 'unsafe-eval' 'strict-dynamic' 'nonce-abc' 'sha256-xyz'", false)
	if policy.Allows(mustParseURL(t, "https://example.com/a.js"), Script, nil) {
		t.Fatal("Keyword source matched a URL")
	}
}

func TestParseSources(t *testing.T) {
	policy := Parse("  Script-Src 'SELF' 'nonce-R4nd0m' 'sha384-AbC=' https: *.cdn.net ;; foo-bar baz ", true)
	sources, ok := policy.Sources(ScriptSrc)
	if !ok {
		t.Fatal("script-src missing")
	}
	kinds := make([]SourceKind, 0)
	for _, s := range sources {
		kinds = append(kinds, s.Kind)
	}
	if diff := cmp.Diff([]SourceKind{SourceSelf, SourceNonce, SourceHash, SourceScheme, SourceHost}, kinds); diff != "" {
		t.Fatalf("Kinds mismatch (-want +got):\n%s", diff)
	}
	if sources[1].Value != "R4nd0m" || sources[2].Algorithm != "sha384" || sources[2].Value != "AbC=" {
		t.Fatalf("Nonce/hash parsed wrong: %+v", sources)
	}
	if unknown, ok := policy.Sources("foo-bar"); !ok || len(unknown) != 1 || ParseDirective("foo-bar").Known() {
		t.Fatal("Unknown directive not retained")
	}
	if !policy.ReportOnly() || policy.Raw() == "" {
		t.Fatal("Report-only flag or raw header lost")
	}
}

func TestFlagDirectives(t *testing.T) {
	p := Parse("upgrade-insecure-requests; block-all-mixed-content; report-uri /csp-report", false)
	if !p.UpgradeInsecureRequests() || !p.BlocksMixedContent() {
		t.Fatal("Flag directives missing")
	}
	if diff := cmp.Diff([]string{"/csp-report"}, p.ReportURIs()); diff != "" {
		t.Fatalf("Report URIs (-want +got):\n%s", diff)
	}
	if Parse("default-src *", false).UpgradeInsecureRequests() {
		t.Fatal("Upgrade without directive")
	}
}

func TestEvaluateViolation(t *testing.T) {
	p := Parse("default-src 'self'", true)
	v := p.Evaluate(mustParseURL(t, "https://evil.example/x.js"), Script, mustParseURL(t, "https://example.com/"))
	if v == nil {
		t.Fatal("No violation")
	}
	if v.EffectiveDirective != "script-src" || v.ViolatedDirective != "default-src" || v.Enforced() {
		t.Fatalf("Violation %+v", v)
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	if !m.IsAllowed("https://example.com/", "https://evil.example/x.js", Script) {
		t.Fatal("Document without policy must allow")
	}
	m.SetPolicy("https://example.com/", Parse("script-src 'self'", false))
	if m.IsAllowed("https://example.com/", "https://evil.example/x.js", Script) {
		t.Fatal("Cross-origin script allowed")
	}
	if !m.IsAllowed("https://example.com/#top", "https://example.com/x.js", Script) {
		t.Fatal("Same-origin script denied")
	}
	if _, ok := m.GetPolicy("https://example.com/"); !ok {
		t.Fatal("Policy missing")
	}
	m.RemovePolicy("https://example.com/")
	if !m.IsAllowed("https://example.com/", "https://evil.example/x.js", Script) {
		t.Fatal("Removed policy still enforced")
	}
	m.SetPolicy("https://a.example/", Parse("default-src 'none'", false))
	m.SetPolicy("https://b.example/", Parse("default-src 'none'", false))
	m.Clear()
	if m.Len() != 0 {
		t.Fatal("Manager not cleared")
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				document := fmt.Sprintf("https://site%d.example/", i%5)
				switch (g + i) % 4 {
				case 0:
					m.SetPolicy(document, Parse("script-src 'self'", false))
				case 1:
					m.RemovePolicy(document)
				case 2:
					if i%50 == 2 {
						m.Clear()
					}
				}
				// allowed with or without the policy in place
				if !m.IsAllowed(document, document+"app.js", Script) {
					t.Errorf("Same-origin script denied for %s", document)
				}
				if policy, ok := m.GetPolicy(document); ok && policy == nil {
					t.Errorf("Nil policy stored for %s", document)
				}
			}
		}(g)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		m.SetPolicy(fmt.Sprintf("https://site%d.example/", i), Parse("script-src 'self'", false))
	}
	if m.Len() != 5 || len(m.Documents()) != 5 {
		t.Fatalf("Expected 5 documents, got %d", m.Len())
	}
	m.Clear()
	if m.Len() != 0 {
		t.Fatal("Manager not cleared")
	}
}

func TestResourceTypes(t *testing.T) {
	cases := map[string]Directive{
		"script": ScriptSrc,
		"img":    ImgSrc,
		"xhr":    ConnectSrc,
		"iframe": FrameSrc,
		"beacon": DefaultSrc,
	}
	for name, want := range cases {
		if got := ParseResourceType(name).Directive(); got != want {
			t.Fatalf("%s: got %s, want %s", name, got, want)
		}
	}
}
