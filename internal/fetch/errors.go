package fetch

import (
	"errors"
	"fmt"
	"time"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL        string
	Code       int
	Body       string        // first 4 KB, trimmed
	RetryAfter time.Duration // parsed Retry-After, informational only
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d for %s", e.Code, e.URL)
	}
	return fmt.Sprintf("http status %d for %s: %s", e.Code, e.URL, e.Body)
}

// ExhaustedError reports that a fetch gave up: retries ran out, or the
// server answered with a status that is never retried.
type ExhaustedError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: gave up after %d attempt(s): %v", e.URL, e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// permanentError marks an attempt failure that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Policy.Do stops without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// IsStatus reports whether err carries an HTTP status error with code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
