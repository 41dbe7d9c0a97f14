package csp

const (
	DispositionEnforce = "enforce"
	DispositionReport  = "report"
)

// Violation describes a load denied by a policy, shaped like the body of a
// CSP violation report.
type Violation struct {
	DocumentURI        string `json:"document-uri"`
	BlockedURI         string `json:"blocked-uri"`
	ViolatedDirective  string `json:"violated-directive"`
	EffectiveDirective string `json:"effective-directive"`
	OriginalPolicy     string `json:"original-policy"`
	Disposition        string `json:"disposition"`
}

// Enforced reports whether the violation blocks the load.
func (v Violation) Enforced() bool {
	return v.Disposition == DispositionEnforce
}
