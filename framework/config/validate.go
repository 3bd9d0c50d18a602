package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// validFormats are the supported report formats.
var validFormats = map[string]bool{
	"json": true,
	"csv":  true,
	"text": true,
	"html": true,
}

// Validate checks cfg against the schema. It returns the single worst
// offending field: structural problems first, then invariants, then
// per-type parameter shapes.
func Validate(cfg *TestConfig) error {
	if cfg.Suite == "" {
		return NewConfigError("suite", "required")
	}

	if !cfg.Platform.Valid() {
		return NewConfigError("platform", fmt.Sprintf("must be one of %v, got %q", AllPlatforms(), cfg.Platform))
	}

	if !cfg.DeploymentMode.Valid() {
		return NewConfigError("deploymentMode", fmt.Sprintf("must be %q or %q, got %q", ModeSingleInstance, ModeMultiReplica, cfg.DeploymentMode))
	}

	// Multi-replica topology requires a managed platform. Catching this here
	// guarantees it fails before any deployment attempt.
	if cfg.DeploymentMode == ModeMultiReplica && !cfg.Platform.IsManaged() {
		return &UnsupportedModeError{Platform: cfg.Platform, Mode: cfg.DeploymentMode}
	}

	if cfg.Platform.IsManaged() && !cfg.ConnectOnly() {
		if cfg.Target.Namespace == "" {
			return NewConfigError("target.namespace", "required")
		}
		if cfg.Target.OrgID == "" {
			return NewConfigError("org-id", "required")
		}
	}

	if cfg.Target.Version != "" {
		if _, err := semver.NewVersion(cfg.Target.Version); err != nil {
			return NewConfigError("target.version", fmt.Sprintf("not a semantic version: %q", cfg.Target.Version))
		}
	}

	if err := validateRunner(&cfg.Runner); err != nil {
		return err
	}

	if err := validateTests(&cfg.Tests); err != nil {
		return err
	}

	if err := validateThresholds(&cfg.Thresholds); err != nil {
		return err
	}

	for _, f := range cfg.Output.Formats {
		if !validFormats[f] {
			return NewConfigError("output.formats", fmt.Sprintf("unknown format %q", f))
		}
	}

	return nil
}

func validateRunner(r *RunnerConfig) error {
	if r.GlobalTimeout != "" && !ValidDuration(r.GlobalTimeout) {
		return NewConfigError("runner.globalTimeout", durationReason(r.GlobalTimeout))
	}
	if r.ReadyTimeout != "" && !ValidDuration(r.ReadyTimeout) {
		return NewConfigError("runner.readyTimeout", durationReason(r.ReadyTimeout))
	}
	if r.RequestTimeout != "" && !ValidDuration(r.RequestTimeout) {
		return NewConfigError("runner.requestTimeout", durationReason(r.RequestTimeout))
	}
	if r.MaxParallel < 0 {
		return NewConfigError("runner.maxParallel", "must not be negative")
	}
	return nil
}

func validateTests(tc *TestsConfig) error {
	// Duration syntax is validated for every type that carries one, enabled
	// or not, so a typo is caught before a later run enables the type.
	for _, t := range AllTestTypes() {
		if budget := tc.ForType(t).Budget(); budget != "" && !ValidDuration(budget) {
			return NewConfigError(fmt.Sprintf("tests.%s", t), durationReason(budget))
		}
	}

	if tc.Sanity.Enabled && len(tc.Sanity.Endpoints) == 0 {
		return NewConfigError("tests.sanity.endpoints", "must be non-empty when sanity is enabled")
	}
	if tc.Integration.Enabled && len(tc.Integration.Scenarios) == 0 {
		return NewConfigError("tests.integration.scenarios", "must be non-empty when integration is enabled")
	}
	if tc.Load.Enabled {
		if tc.Load.VUs <= 0 {
			return NewConfigError("tests.load.vus", "must be positive when load is enabled")
		}
		if tc.Load.Series <= 0 {
			return NewConfigError("tests.load.series", "must be positive when load is enabled")
		}
	}
	if tc.Stress.Enabled {
		if tc.Stress.StartVUs <= 0 {
			return NewConfigError("tests.stress.startVUs", "must be positive when stress is enabled")
		}
		if tc.Stress.MaxVUs < tc.Stress.StartVUs {
			return NewConfigError("tests.stress.maxVUs", "must be >= startVUs")
		}
	}
	if tc.Performance.Enabled {
		if len(tc.Performance.Queries) == 0 {
			return NewConfigError("tests.performance.queries", "must be non-empty when performance is enabled")
		}
		if tc.Performance.QPS <= 0 {
			return NewConfigError("tests.performance.qps", "must be positive when performance is enabled")
		}
	}
	if tc.Scalability.Enabled && len(tc.Scalability.Replicas) == 0 {
		return NewConfigError("tests.scalability.replicas", "must be non-empty when scalability is enabled")
	}
	if tc.Endurance.Enabled && tc.Endurance.VUs <= 0 {
		return NewConfigError("tests.endurance.vus", "must be positive when endurance is enabled")
	}
	if tc.Reliability.Enabled {
		if tc.Reliability.ProbeInterval == "" || !ValidDuration(tc.Reliability.ProbeInterval) {
			return NewConfigError("tests.reliability.probeInterval", durationReason(tc.Reliability.ProbeInterval))
		}
	}
	if tc.Chaos.Enabled && len(tc.Chaos.Scenarios) == 0 {
		return NewConfigError("tests.chaos.scenarios", "must be non-empty when chaos is enabled")
	}
	if tc.Regression.Enabled && tc.Regression.BaselineFile == "" {
		return NewConfigError("tests.regression.baselineFile", "required when regression is enabled")
	}
	if tc.Security.Enabled && len(tc.Security.Endpoints) == 0 {
		return NewConfigError("tests.security.endpoints", "must be non-empty when security is enabled")
	}

	return nil
}

func validateThresholds(tc *ThresholdsConfig) error {
	for i, e := range tc.Entries {
		field := fmt.Sprintf("thresholds.entries[%d]", i)
		if !e.TestType.Valid() {
			return NewConfigError(field+".testType", fmt.Sprintf("unknown test type %q", e.TestType))
		}
		if e.Metric == "" {
			return NewConfigError(field+".metric", "required")
		}
		if !e.Direction.Valid() {
			return NewConfigError(field+".direction", fmt.Sprintf("must be %q or %q, got %q", UpperBound, LowerBound, e.Direction))
		}
	}
	return nil
}

func durationReason(s string) string {
	return fmt.Sprintf("duration %q must match N[smhd]", s)
}
