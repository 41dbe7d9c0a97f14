// Package cacheupdate reads the `Cache-Update` response header, which lets an
// origin name additional resources affected by an unsafe request.
package cacheupdate

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/fetchpipe/rfc9111"
)

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// Fully resolved URL of the affected resource.
	URL string
	// Update delay, i.e. delay update by this duration.
	Delay time.Duration
}

var delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)

// GetCacheUpdates gets the updates specified by the response.
// The request URL is used in order to resolve potentially relative update paths.
// Only responses to unsafe requests carry updates.
func GetCacheUpdates(method string, target *url.URL, header http.Header) []CacheUpdate {
	if !rfc9111.UnsafeMethod(method) || target == nil {
		return nil
	}
	updates := make([]CacheUpdate, 0)
	for _, update := range rfc9111.HeaderValues(header, "Cache-Update") {
		resolved := getURL(target, update)
		if resolved == nil {
			continue
		}
		updates = append(updates, CacheUpdate{
			URL:   resolved.String(),
			Delay: getDelay(update),
		})
	}
	return updates
}

// getURL returns the URL to update the cache for from the `Cache-Update` header parameter.
// The URL is the first parameter in the header value (separated by a semicolon).
func getURL(target *url.URL, update string) *url.URL {
	possiblyRelativeURL := update
	if i := strings.Index(update, ";"); i != -1 {
		possiblyRelativeURL = update[:i]
	}
	ref, err := url.Parse(strings.TrimSpace(possiblyRelativeURL))
	if err != nil {
		return nil
	}
	return target.ResolveReference(ref)
}

// getDelay returns the delay to wait before updating the cache for from the `Cache-Update` header parameter.
// The delay directive syntax is `delay=N`, where N is the number of seconds to wait.
// Directives are separated by a semicolon.
// If no delay directive is found, it returns 0.
func getDelay(update string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(update); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
