package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

func TestMaxAge(t *testing.T) {
	cc := ParseCacheControl([]string{"max-age=60"})
	val, ok := cc.Get("max-age")
	if !ok {
		t.Fatal("Could not get directive")
	}
	if val != "60" {
		t.Fatalf("Value is %s", val)
	}
	if d, ok := cc.MaxAge(); !ok || d != time.Minute {
		t.Fatalf("MaxAge is %s, %v", d, ok)
	}
}

func TestReal(t *testing.T) {
	cc := ParseCacheControl([]string{"public, max-age=0, s-maxage=600"})
	if val, ok := cc.Get("public"); !ok || val != "" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
	if val, ok := cc.Get("max-age"); !ok || val != "0" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
	if val, ok := cc.Get("s-maxage"); !ok || val != "600" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
}

func TestNoSpaceAndCase(t *testing.T) {
	cc := ParseCacheControl([]string{"No-Store,MUST-REVALIDATE ,  Private"})
	if !cc.NoStore() || !cc.MustRevalidate() || !cc.Private() {
		t.Fatalf("Directives not parsed: %+v", cc)
	}
	if cc.NoCache() || cc.Public() {
		t.Fatalf("Unexpected directives: %+v", cc)
	}
}

func TestQuotedAndInvalidMaxAge(t *testing.T) {
	if d, ok := ParseCacheControl([]string{`max-age="30"`}).MaxAge(); !ok || d != 30*time.Second {
		t.Fatalf("Quoted max-age is %s, %v", d, ok)
	}
	if _, ok := ParseCacheControl([]string{"max-age=soon"}).MaxAge(); ok {
		t.Fatal("Invalid max-age accepted")
	}
}

func TestUnknownDirectivesIgnored(t *testing.T) {
	cc := ParseCacheControl([]string{"immutable, stale-while-revalidate=30"})
	if cc.NoStore() || cc.NoCache() {
		t.Fatal("Unknown directive interpreted")
	}
	if _, ok := cc.MaxAge(); ok {
		t.Fatal("max-age found")
	}
}

func TestParseCacheControlHeaderLowerCaseKey(t *testing.T) {
	header := http.Header{"cache-control": []string{"no-cache"}}
	if !ParseCacheControlHeader(header).NoCache() {
		t.Fatal("Lower-case header key not found")
	}
}
