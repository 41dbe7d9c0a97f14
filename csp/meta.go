package csp

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseMeta returns the policies delivered through
// <meta http-equiv="Content-Security-Policy"> elements of an HTML document.
// Meta policies cannot be report-only and ignore the directives that only
// work in headers.
func ParseMeta(html []byte) ([]*Policy, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}
	policies := make([]*Policy, 0)
	doc.Find("meta[http-equiv]").Each(func(_ int, meta *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(meta.AttrOr("http-equiv", "")), "Content-Security-Policy") {
			return
		}
		content, ok := meta.Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			return
		}
		policies = append(policies, Parse(content, false).without(FrameAncestors, ReportURI, "sandbox"))
	})
	return policies, nil
}
