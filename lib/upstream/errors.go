// Package upstream holds the error kinds raised while talking to county data sources.
package upstream

import (
	"errors"
	"fmt"
)

// BadRequest means the remote host rejected a request, either with an HTTP status >= 400 or
// with an application level error payload.
type BadRequest struct {
	// Status is 0 when the error was reported inside a successful HTTP response.
	Status  int
	URL     string
	Message string
}

func (e *BadRequest) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("bad request: %s (%s)", e.Message, e.URL)
	}
	return fmt.Sprintf("bad request: %d %s (%s)", e.Status, e.Message, e.URL)
}

// FormatError means an upstream response no longer has the structure an adapter expects.
// It is fatal for the county being scraped.
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Message
}

// Formatf creates a *FormatError.
func Formatf(format string, args ...any) error {
	return &FormatError{Message: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err or anything it wraps is a *FormatError.
func IsFormatError(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}

// IsBadRequest reports whether err or anything it wraps is a *BadRequest.
func IsBadRequest(err error) bool {
	var target *BadRequest
	return errors.As(err, &target)
}
