// Package adblock decides whether a URL belongs to a blocked host, from
// hosts files and a subset of the adblock filter syntax.
package adblock

import (
	"bufio"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ListExtensions are the file extensions LoadDir picks up.
var ListExtensions = []string{".txt", ".list", ".hosts"}

// names that appear in every hosts file and must never be blocked
var hostsBoilerplate = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"local":                 true,
	"broadcasthost":         true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
	"0.0.0.0":               true,
}

type rule struct {
	host     glob.Glob
	domain   string
	anchored bool
	path     string
}

// Matcher is safe for concurrent use. Lists may be loaded while requests
// are being matched.
type Matcher struct {
	mu      sync.RWMutex
	hosts   map[string]struct{}
	domains map[string]struct{}
	rules   []rule
}

func NewMatcher() *Matcher {
	return &Matcher{
		hosts:   map[string]struct{}{},
		domains: map[string]struct{}{},
	}
}

// Load reads one rule per line and returns the number of rules added.
// Comments (# or !), exception rules (@@) and cosmetic filters (##) are
// skipped.
func (m *Matcher) Load(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	added := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		ok, err := m.AddRule(scanner.Text())
		if err != nil {
			return added, errors.Wrapf(err, "line %d", lineNo)
		}
		if ok {
			added++
		}
	}
	if err := scanner.Err(); err != nil {
		return added, errors.Wrap(err, "reading rule list")
	}
	return added, nil
}

func (m *Matcher) LoadFile(filename string) (int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, errors.Wrap(err, "opening rule list")
	}
	defer f.Close()
	n, err := m.Load(f)
	if err != nil {
		return n, errors.Wrap(err, filename)
	}
	log.Debug().Str("file", filename).Int("rules", n).Msg("Loaded block list")
	return n, nil
}

// LoadDir loads every list file below dir.
func (m *Matcher) LoadDir(dir string) (int, error) {
	var mu sync.Mutex
	total := 0
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isListFile(p) {
			return nil
		}
		n, err := m.LoadFile(p)
		if err != nil {
			return err
		}
		mu.Lock()
		total += n
		mu.Unlock()
		return nil
	})
	return total, err
}

func isListFile(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range ListExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// AddRule parses a single line. It reports false for lines that carry no
// rule.
func (m *Matcher) AddRule(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' || line[0] == '!' || line[0] == '[' {
		return false, nil
	}
	if strings.HasPrefix(line, "@@") || strings.Contains(line, "##") || strings.Contains(line, "#@#") {
		return false, nil
	}

	// hosts file: "0.0.0.0 ads.example.com # comment"
	if fields := strings.Fields(line); len(fields) >= 2 && net.ParseIP(fields[0]) != nil {
		added := false
		for _, h := range fields[1:] {
			if strings.HasPrefix(h, "#") {
				break
			}
			h = strings.ToLower(h)
			if hostsBoilerplate[h] {
				continue
			}
			m.mu.Lock()
			m.hosts[h] = struct{}{}
			m.mu.Unlock()
			added = true
		}
		return added, nil
	}

	if i := strings.IndexByte(line, '$'); i >= 0 {
		line = line[:i]
	}
	anchored := false
	if strings.HasPrefix(line, "||") {
		anchored = true
		line = line[2:]
	}
	line = strings.TrimLeft(line, "|")
	line = strings.TrimSuffix(strings.TrimSuffix(line, "|"), "^")

	host, path := line, ""
	if i := strings.IndexAny(line, "/^"); i >= 0 {
		host, path = line[:i], strings.TrimSuffix(line[i:], "^")
		if strings.HasPrefix(path, "^") {
			path = ""
		}
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false, nil
	}

	if path != "" && !doublestar.ValidatePattern(path) {
		return false, errors.Errorf("invalid path pattern %q", path)
	}

	r := rule{domain: host, anchored: anchored, path: path}
	if strings.ContainsAny(host, "*?[{") {
		g, err := glob.Compile(host, '.')
		if err != nil {
			return false, errors.Wrapf(err, "invalid host pattern %q", host)
		}
		r.host = g
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case r.host == nil && path == "" && anchored:
		m.domains[host] = struct{}{}
	case r.host == nil && path == "":
		m.hosts[host] = struct{}{}
	default:
		m.rules = append(m.rules, r)
	}
	return true, nil
}

// Len returns the number of rules loaded.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hosts) + len(m.domains) + len(m.rules)
}

// ShouldBlock matches the host (and path, for path rules) of rawURL.
// Unparsable URLs are never blocked.
func (m *Matcher) ShouldBlock(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.hosts[host]; ok {
		return true
	}
	for d := host; d != ""; d = parent(d) {
		if _, ok := m.domains[d]; ok {
			return true
		}
	}
	for _, r := range m.rules {
		if r.matchesHost(host) && r.matchesPath(path) {
			return true
		}
	}
	return false
}

func (r rule) matchesHost(host string) bool {
	if r.host != nil {
		return r.host.Match(host)
	}
	if host == r.domain {
		return true
	}
	return r.anchored && strings.HasSuffix(host, "."+r.domain)
}

func (r rule) matchesPath(path string) bool {
	if r.path == "" || path == r.path {
		return true
	}
	pattern := r.path
	if !strings.ContainsAny(pattern, "*?[{") {
		// plain paths match as prefixes
		pattern = strings.TrimSuffix(pattern, "/") + "/**"
	}
	ok, _ := doublestar.Match(pattern, path)
	return ok
}

func parent(host string) string {
	i := strings.IndexByte(host, '.')
	if i < 0 {
		return ""
	}
	return host[i+1:]
}
