package fetchpipe

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is returned by transports when a request timed out.
	ErrTimeout = errors.New("request timed out")
	// ErrTooManyRedirects is returned once a navigation exceeds its
	// redirect limit.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// RequestFailedError is a transport-reported failure.
type RequestFailedError struct {
	Message string
}

func (e *RequestFailedError) Error() string {
	return "request failed: " + e.Message
}

const (
	StagePreRequest   = "pre-request"
	StagePostResponse = "post-response"
)

// ChainError wraps an error returned by an interceptor. It aborts the chain
// and is never turned into a Block action.
type ChainError struct {
	Stage       string
	Index       int
	Interceptor string
	Err         error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s interceptor %d (%s): %v", e.Stage, e.Index, e.Interceptor, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// Cause makes the wrapped error reachable through errors.Cause.
func (e *ChainError) Cause() error {
	return e.Err
}

// IsChainAbort reports whether err stems from an interceptor.
func IsChainAbort(err error) bool {
	var chainErr *ChainError
	return errors.As(err, &chainErr)
}
