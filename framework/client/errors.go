package client

import (
	"errors"
	"fmt"
	"time"
)

// The client performs no retries itself. Failure modes are classified
// precisely so the caller can decide retry policy:
//
//   - TimeoutError: the request deadline expired
//   - ConnectionError: the target could not be reached at all
//   - ResponseError: the target answered with a non-2xx status
type (
	// TimeoutError reports a request that exceeded its deadline.
	TimeoutError struct {
		Op      string
		Timeout time.Duration
	}

	// ConnectionError reports a transport-level failure to reach the target.
	ConnectionError struct {
		URL string
		Err error
	}

	// ResponseError reports a non-2xx response, with the error body parsed
	// when the target returned a structured API error.
	ResponseError struct {
		StatusCode int
		ErrorType  string
		Message    string
	}
)

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s: %s", e.StatusCode, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// IsTimeout returns true if err is a request timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsConnection returns true if err is a transport-level failure.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsResponse returns true if err is a non-2xx response.
func IsResponse(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}

// IsUnreachable returns true if err means the target could not be contacted
// at all, covering both connection failures and timeouts.
func IsUnreachable(err error) bool {
	return IsConnection(err) || IsTimeout(err)
}
