package adblock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const list = `
! Title: test list
# hosts section
0.0.0.0 tracker.example.net
127.0.0.1 localhost
0.0.0.0 pixel.example.org   # inline comment

||ads.example.com^
||cdn.example.com/banners/*
||static.example.com/ads
*.doubleclick.test
metrics.example.io
@@||ads.example.com/allowed^
example.com##.banner
`

func TestShouldBlock(t *testing.T) {
	m := NewMatcher()
	n, err := m.Load(strings.NewReader(list))
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Fatalf("Expected 7 rules, got %d", n)
	}

	tests := map[string]bool{
		"https://tracker.example.net/p.gif":       true,
		"https://sub.tracker.example.net/":        false,
		"http://pixel.example.org/":               true,
		"http://localhost:8080/":                  false,
		"https://ads.example.com/x.js":            true,
		"https://eu.ads.example.com/x.js":         true,
		"https://notads.example.com/":             false,
		"https://cdn.example.com/banners/top.png": true,
		"https://cdn.example.com/banners/a/b.png": false,
		"https://cdn.example.com/app.js":          false,
		"https://static.example.com/ads":          true,
		"https://static.example.com/ads/a/b.js":   true,
		"https://static.example.com/adsense.js":   false,
		"https://ad.doubleclick.test/":            true,
		"https://doubleclick.test/":               false,
		"https://METRICS.example.io./collect":     true,
		"https://example.com/":                    false,
		"not a url":                               false,
		"data:text/plain,hello":                   false,
	}
	for u, want := range tests {
		if got := m.ShouldBlock(u); got != want {
			t.Errorf("ShouldBlock(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestAddRuleOptions(t *testing.T) {
	m := NewMatcher()
	if ok, err := m.AddRule("||tracker.test^$third-party,script"); !ok || err != nil {
		t.Fatalf("Expected rule to be added, got %v %v", ok, err)
	}
	if !m.ShouldBlock("https://a.tracker.test/t.js") {
		t.Fatal("Expected options to be ignored")
	}
}

func TestAddRuleInvalidGlob(t *testing.T) {
	m := NewMatcher()
	if _, err := m.AddRule("ads[.example.com"); err == nil {
		t.Fatal("Expected invalid host pattern to fail")
	}
	if _, err := m.Load(strings.NewReader("ok.example.com\nads[.example.com\n")); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("Expected error on line 2, got %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"one.txt":          "||one.test^\n",
		"nested/two.hosts": "0.0.0.0 two.test\n",
		"nested/readme.md": "||three.test^\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMatcher()
	n, err := m.LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || m.Len() != 2 {
		t.Fatalf("Expected 2 rules, got %d (len %d)", n, m.Len())
	}
	if !m.ShouldBlock("https://www.one.test/") || !m.ShouldBlock("https://two.test/") {
		t.Fatal("Expected rules from both lists")
	}
	if m.ShouldBlock("https://three.test/") {
		t.Fatal("Expected non-list files to be skipped")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := NewMatcher().LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
