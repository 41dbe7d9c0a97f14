package rfc9111

import (
	"net/http"
	"testing"
)

func TestUpdateStoredHeader(t *testing.T) {
	stored := http.Header{
		"Cache-Control":  []string{"max-age=10"},
		"content-type":   []string{"text/html"},
		"Content-Length": []string{"42"},
		"Etag":           []string{`"a"`},
	}
	received := http.Header{
		"cache-control":  []string{"max-age=60"},
		"Content-Type":   []string{"text/plain"},
		"Content-Length": []string{"0"},
	}
	updated := UpdateStoredHeader(stored, received)
	if cc := HeaderValues(updated, "Cache-Control"); len(cc) != 1 || cc[0] != "max-age=60" {
		t.Fatalf("Cache-Control not updated: %v", updated)
	}
	if HeaderValue(updated, "Content-Type") != "text/html" {
		t.Fatal("Content-Type must not be updated")
	}
	if updated.Get("Content-Length") != "42" {
		t.Fatal("Content-Length must not be updated")
	}
	if updated.Get("Etag") != `"a"` {
		t.Fatal("Unrelated field lost")
	}
	if stored.Get("Cache-Control") != "max-age=10" {
		t.Fatal("Stored header mutated")
	}
}

func TestConditionalHeaders(t *testing.T) {
	header := ConditionalHeaders(`"v1"`, "Sun, 06 Nov 1994 08:49:37 GMT")
	if header.Get("If-None-Match") != `"v1"` || header.Get("If-Modified-Since") == "" {
		t.Fatalf("Wrong preconditions %v", header)
	}
	if len(ConditionalHeaders("", "")) != 0 {
		t.Fatal("Preconditions without validators")
	}
}
