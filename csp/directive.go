// Package csp parses Content-Security-Policy headers and answers whether a
// document may load a resource, run inline code or eval.
package csp

import "strings"

// Directive is a CSP directive name, always lower case.
// Names outside the known set are kept as unknown directives.
type Directive string

// Fetch, document, navigation and reporting directives understood by Policy.
const (
	DefaultSrc              Directive = "default-src"
	ScriptSrc               Directive = "script-src"
	StyleSrc                Directive = "style-src"
	ImgSrc                  Directive = "img-src"
	FontSrc                 Directive = "font-src"
	MediaSrc                Directive = "media-src"
	ConnectSrc              Directive = "connect-src"
	FrameSrc                Directive = "frame-src"
	ObjectSrc               Directive = "object-src"
	BaseURI                 Directive = "base-uri"
	FormAction              Directive = "form-action"
	FrameAncestors          Directive = "frame-ancestors"
	UpgradeInsecureRequests Directive = "upgrade-insecure-requests"
	BlockAllMixedContent    Directive = "block-all-mixed-content"
	ReportURI               Directive = "report-uri"
	ReportTo                Directive = "report-to"
)

var knownDirectives = map[Directive]struct{}{
	DefaultSrc:              {},
	ScriptSrc:               {},
	StyleSrc:                {},
	ImgSrc:                  {},
	FontSrc:                 {},
	MediaSrc:                {},
	ConnectSrc:              {},
	FrameSrc:                {},
	ObjectSrc:               {},
	BaseURI:                 {},
	FormAction:              {},
	FrameAncestors:          {},
	UpgradeInsecureRequests: {},
	BlockAllMixedContent:    {},
	ReportURI:               {},
	ReportTo:                {},
}

// ParseDirective parses a directive name case-insensitively.
func ParseDirective(name string) Directive {
	return Directive(strings.ToLower(strings.TrimSpace(name)))
}

// Known reports whether the directive is one of the named constants.
func (d Directive) Known() bool {
	_, ok := knownDirectives[d]
	return ok
}

func (d Directive) String() string {
	return string(d)
}

// ResourceType classifies a load so that it can be checked against the
// matching fetch directive.
type ResourceType string

const (
	Document ResourceType = "document"
	Script   ResourceType = "script"
	Style    ResourceType = "style"
	Image    ResourceType = "image"
	Font     ResourceType = "font"
	Media    ResourceType = "media"
	Connect  ResourceType = "connect"
	Frame    ResourceType = "frame"
	Object   ResourceType = "object"
	Other    ResourceType = "other"
)

// ParseResourceType maps a name (e.g. from a query parameter) to a resource
// type. Unknown names are Other.
func ParseResourceType(name string) ResourceType {
	switch t := ResourceType(strings.ToLower(strings.TrimSpace(name))); t {
	case Document, Script, Style, Image, Font, Media, Connect, Frame, Object:
		return t
	case "img":
		return Image
	case "xhr", "fetch", "websocket":
		return Connect
	case "iframe":
		return Frame
	}
	return Other
}

// Directive returns the fetch directive governing the resource type.
// Top-level documents are not governed by a fetch directive, Directive
// returns the empty string for them.
func (t ResourceType) Directive() Directive {
	switch t {
	case Document:
		return ""
	case Script:
		return ScriptSrc
	case Style:
		return StyleSrc
	case Image:
		return ImgSrc
	case Font:
		return FontSrc
	case Media:
		return MediaSrc
	case Connect:
		return ConnectSrc
	case Frame:
		return FrameSrc
	case Object:
		return ObjectSrc
	}
	return DefaultSrc
}
