package framework

import (
	"errors"
	"fmt"
)

// Sentinel errors for run orchestration
var (
	// ErrCheckFailed marks a test assertion failure, as opposed to an
	// infrastructure error. Strategies wrap it so the runner can tell a
	// failed test from a broken one.
	ErrCheckFailed = errors.New("check failed")

	// ErrUnsupported marks a test type that cannot run in the current
	// environment. The runner records it as skipped.
	ErrUnsupported = errors.New("not supported in this environment")

	// ErrRunAborted indicates the run stopped before executing all
	// selected test types.
	ErrRunAborted = errors.New("run aborted")

	// ErrGlobalTimeout indicates the whole run exceeded its ceiling.
	ErrGlobalTimeout = errors.New("global timeout exceeded")
)

// VersionMismatchError reports a deployed target whose version does not
// match the configured expectation.
type VersionMismatchError struct {
	Expected string
	Actual   string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("target version %q does not match expected %q", e.Actual, e.Expected)
}

// CheckFailedf wraps ErrCheckFailed with a formatted message.
func CheckFailedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCheckFailed}, args...)...)
}

// IsCheckFailure reports whether err marks an assertion failure rather than
// an infrastructure error.
func IsCheckFailure(err error) bool {
	return errors.Is(err, ErrCheckFailed)
}
