package deploy

import (
	"errors"
	"fmt"

	"github.com/monitoring-qa/promtest/framework/config"
)

// Sentinel errors for deployment operations
var (
	// ErrUnsupportedPlatform indicates an unknown provisioning target.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrPrerequisite indicates a platform prerequisite is missing.
	ErrPrerequisite = errors.New("prerequisite not satisfied")

	// ErrTargetNotReady indicates the deployed target never became ready.
	ErrTargetNotReady = errors.New("target not ready")

	// ErrTeardownIncomplete indicates teardown left resources behind.
	ErrTeardownIncomplete = errors.New("teardown incomplete")
)

// DeploymentError wraps a failure in a deployment phase with enough context
// to report which platform and phase broke.
type DeploymentError struct {
	Platform config.Platform
	Phase    string
	Err      error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment on %s failed during %s: %v", e.Platform, e.Phase, e.Err)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// NewDeploymentError creates a DeploymentError for the given phase.
func NewDeploymentError(platform config.Platform, phase string, err error) *DeploymentError {
	return &DeploymentError{Platform: platform, Phase: phase, Err: err}
}

// IsDeploymentError reports whether err is or wraps a DeploymentError.
func IsDeploymentError(err error) bool {
	var de *DeploymentError
	return errors.As(err, &de)
}
