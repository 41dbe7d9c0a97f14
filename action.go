package fetchpipe

import "fmt"

type ActionKind int

const (
	ActionAllow ActionKind = iota
	ActionBlock
	ActionRedirect
	ActionModifiedRequest
)

func (k ActionKind) String() string {
	switch k {
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	case ActionRedirect:
		return "redirect"
	case ActionModifiedRequest:
		return "modified"
	}
	return "unknown"
}

// RequestAction is the outcome of processing a request. Reason is set for
// ActionBlock, URL for ActionRedirect and Request for ActionModifiedRequest.
type RequestAction struct {
	Kind    ActionKind
	Reason  string
	URL     string
	Request *Request
}

func Allow() RequestAction {
	return RequestAction{Kind: ActionAllow}
}

func Block(reason string) RequestAction {
	return RequestAction{Kind: ActionBlock, Reason: reason}
}

func Redirect(url string) RequestAction {
	return RequestAction{Kind: ActionRedirect, URL: url}
}

func ModifiedRequest(req *Request) RequestAction {
	return RequestAction{Kind: ActionModifiedRequest, Request: req}
}

func (a RequestAction) String() string {
	switch a.Kind {
	case ActionBlock:
		return fmt.Sprintf("block (%s)", a.Reason)
	case ActionRedirect:
		return fmt.Sprintf("redirect (%s)", a.URL)
	case ActionModifiedRequest:
		if a.Request != nil {
			return fmt.Sprintf("modified (%s)", a.Request.URL)
		}
	}
	return a.Kind.String()
}
