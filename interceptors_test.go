package fetchpipe

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/always-cache/fetchpipe/csp"
	transformer "github.com/always-cache/fetchpipe/pkg/response-transformer"
)

func TestRedirectLimit(t *testing.T) {
	r := NewRedirectInterceptor(2)
	for i := 0; i < 2; i++ {
		if err := r.PreRequest(NewRequest("GET", "https://example.com/")); err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
	}
	err := r.PreRequest(NewRequest("GET", "https://example.com/"))
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("Third request error is %v", err)
	}
	r.Reset()
	if err := r.PreRequest(NewRequest("GET", "https://example.com/")); err != nil {
		t.Fatalf("Request after reset failed: %v", err)
	}
}

func TestRedirectLimitIgnoresSubresources(t *testing.T) {
	r := NewRedirectInterceptor(1)
	for i := 0; i < 3; i++ {
		req := NewSubresourceRequest("https://example.com/", "https://example.com/a.js", csp.Script)
		if err := r.PreRequest(req); err != nil {
			t.Fatal(err)
		}
	}
	if r.Count() != 0 {
		t.Fatalf("Subresources counted: %d", r.Count())
	}
}

func TestHandlerResetsRedirects(t *testing.T) {
	r := NewRedirectInterceptor(1)
	handler := NewRequestHandler(r)
	if _, err := handler.ProcessRequest(NewRequest("GET", "https://example.com/")); err != nil {
		t.Fatal(err)
	}
	handler.Reset()
	if _, err := handler.ProcessRequest(NewRequest("GET", "https://example.com/")); err != nil {
		t.Fatalf("Counter not reset: %v", err)
	}
}

func TestIsRedirect(t *testing.T) {
	for _, status := range []int{301, 302, 303, 307, 308} {
		if !IsRedirect(status) {
			t.Fatalf("%d not a redirect", status)
		}
	}
	for _, status := range []int{200, 300, 304, 305, 404} {
		if IsRedirect(status) {
			t.Fatalf("%d is a redirect", status)
		}
	}
}

func TestAdBlock(t *testing.T) {
	ads := NewAdBlockInterceptor(func(url string) bool { return strings.Contains(url, "ads.") })
	if !ads.ShouldBlock(NewRequest("GET", "https://ads.example.com/x")) {
		t.Fatal("Ad not blocked")
	}
	if ads.ShouldBlock(NewRequest("GET", "https://example.com/x")) {
		t.Fatal("Content blocked")
	}
	if DisabledAdBlock().ShouldBlock(NewRequest("GET", "https://ads.example.com/x")) {
		t.Fatal("Disabled interceptor blocked")
	}
	action, _ := NewRequestHandler(ads).ProcessRequest(NewRequest("GET", "https://ads.example.com/x"))
	if action.Kind != ActionBlock || action.Reason != "blocked by ad-block list" {
		t.Fatalf("Action is %s", action)
	}
}

func TestDecodeGzip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte("hello gzip"))
	w.Close()
	res := &Response{Status: 200, Body: buf.Bytes(), Header: http.Header{"Content-Encoding": []string{"gzip"}}}
	if err := NewDecodingInterceptor().PostResponse(res); err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "hello gzip" {
		t.Fatalf("Body is %q", res.Body)
	}
	if res.Header.Get("Content-Encoding") != "" || res.Header.Get("Content-Length") != "10" {
		t.Fatalf("Headers are %v", res.Header)
	}
}

func TestDecodeBrotli(t *testing.T) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	w.Write([]byte("hello brotli"))
	w.Close()
	res := &Response{Status: 200, Body: buf.Bytes(), Header: http.Header{"content-encoding": []string{"br"}}}
	if err := NewDecodingInterceptor().PostResponse(res); err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "hello brotli" {
		t.Fatalf("Body is %q", res.Body)
	}
}

func TestDecodeUnknownCoding(t *testing.T) {
	res := &Response{Status: 200, Body: []byte("x"), Header: http.Header{"Content-Encoding": []string{"compress"}}}
	if err := NewDecodingInterceptor().PostResponse(res); err == nil {
		t.Fatal("Unknown coding decoded")
	}
}

func TestDecodingAcceptEncoding(t *testing.T) {
	req := NewRequest("GET", "https://example.com/")
	NewDecodingInterceptor().PreRequest(req)
	if req.Header.Get("Accept-Encoding") != AcceptEncoding {
		t.Fatalf("Accept-Encoding is %q", req.Header.Get("Accept-Encoding"))
	}
	req.Header.Set("Accept-Encoding", "identity")
	NewDecodingInterceptor().PreRequest(req)
	if req.Header.Get("Accept-Encoding") != "identity" {
		t.Fatal("Caller's Accept-Encoding replaced")
	}
}

func TestDecodingWithoutHeaderMap(t *testing.T) {
	req := &Request{URL: "https://example.com/", Method: "GET"}
	action, err := NewRequestHandler(NewDecodingInterceptor()).ProcessRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if action.Kind != ActionAllow {
		t.Fatalf("Expected allow, got %v", action.Kind)
	}
	if req.Header.Get("Accept-Encoding") != AcceptEncoding {
		t.Fatalf("Accept-Encoding is %q", req.Header.Get("Accept-Encoding"))
	}
}

func TestRulesInterceptor(t *testing.T) {
	rules := NewRulesInterceptor(transformer.Rules{{Prefix: "/static/", Default: "max-age=600"}})
	res := &Response{Status: 200, Method: "GET", URL: "https://example.com/static/app.css", Header: make(http.Header)}
	if err := rules.PostResponse(res); err != nil {
		t.Fatal(err)
	}
	if res.Header.Get("Cache-Control") != "max-age=600" {
		t.Fatalf("Cache-Control is %q", res.Header.Get("Cache-Control"))
	}
}
