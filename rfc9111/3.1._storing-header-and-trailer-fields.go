package rfc9111

import (
	"net/http"
	"strings"
)

// §  3.1.  Storing Header and Trailer Fields
// §
// §     Caches MUST include all received response header fields -- including
// §     unrecognized ones -- when storing a response; this assures that new
// §     HTTP header fields can be successfully deployed.

// HeaderValue returns the first value of the named field.
// Headers reaching the pipeline are not guaranteed to be canonicalised
// (they may come from a map literal), so the canonical key is tried first,
// then the lower-case key, then any key that matches case-insensitively.
func HeaderValue(header http.Header, field string) string {
	if values := headerValues(header, field); len(values) > 0 {
		return values[0]
	}
	return ""
}

// HeaderValues is the multi-value version of HeaderValue.
func HeaderValues(header http.Header, field string) []string {
	return headerValues(header, field)
}

func headerValues(header http.Header, field string) []string {
	if header == nil {
		return nil
	}
	if values, ok := header[http.CanonicalHeaderKey(field)]; ok {
		return values
	}
	if values, ok := header[strings.ToLower(field)]; ok {
		return values
	}
	for key, values := range header {
		if strings.EqualFold(key, field) {
			return values
		}
	}
	return nil
}

// FieldAbsent reports whether the named field is missing from the header.
func FieldAbsent(header http.Header, field string) bool {
	return len(headerValues(header, field)) == 0
}

// GetListHeader returns the comma separated members of a list-based field.
func GetListHeader(header http.Header, field string) []string {
	list := make([]string, 0)
	for _, hdr := range headerValues(header, field) {
		for _, item := range strings.Split(hdr, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
	}
	return list
}
