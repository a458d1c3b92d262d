package querycache

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is carried by entries requested after Close.
	ErrClosed = errors.New("querycache: client closed")
	// ErrTypeMismatch is carried by typed results whose cached data has another type.
	ErrTypeMismatch = errors.New("querycache: cached data has unexpected type")
)

// NetworkError is a transport failure or a non-2xx upstream response.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a malformed response body.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports an invalid key or mutation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether repeating the operation may succeed.
// Validation and decode failures are deterministic; context errors belong to the caller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) && ne.StatusCode >= 400 && ne.StatusCode < 500 && ne.StatusCode != 429 {
		return false
	}
	return true
}
