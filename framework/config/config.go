package config

// Platform identifies the provisioning target for the system under test.
type Platform string

const (
	// PlatformLocalBinary runs Prometheus as a local child process.
	PlatformLocalBinary Platform = "local-binary"
	// PlatformContainer runs Prometheus in a local container.
	PlatformContainer Platform = "container"
	// PlatformKind deploys to a kind (Kubernetes-in-Docker) cluster.
	PlatformKind Platform = "k8s-kind"
	// PlatformEKS deploys to an Amazon EKS cluster.
	PlatformEKS Platform = "k8s-eks"
	// PlatformGKE deploys to a Google GKE cluster.
	PlatformGKE Platform = "k8s-gke"
	// PlatformOpenShift deploys to an OpenShift cluster.
	PlatformOpenShift Platform = "k8s-openshift"
)

// AllPlatforms returns every supported platform.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformLocalBinary,
		PlatformContainer,
		PlatformKind,
		PlatformEKS,
		PlatformGKE,
		PlatformOpenShift,
	}
}

// IsManaged returns true for the managed-Kubernetes platform variants.
func (p Platform) IsManaged() bool {
	switch p {
	case PlatformKind, PlatformEKS, PlatformGKE, PlatformOpenShift:
		return true
	}
	return false
}

// Valid returns true if p is a known platform.
func (p Platform) Valid() bool {
	for _, known := range AllPlatforms() {
		if p == known {
			return true
		}
	}
	return false
}

// DeploymentMode is the target topology.
type DeploymentMode string

const (
	// ModeSingleInstance runs a single Prometheus instance.
	ModeSingleInstance DeploymentMode = "single-instance"
	// ModeMultiReplica runs multiple replicas behind a gateway.
	// Only supported on managed-Kubernetes platforms.
	ModeMultiReplica DeploymentMode = "multi-replica"
)

// Valid returns true if m is a known deployment mode.
func (m DeploymentMode) Valid() bool {
	return m == ModeSingleInstance || m == ModeMultiReplica
}

// TestType identifies one of the supported test suites.
type TestType string

const (
	TestSanity      TestType = "sanity"
	TestIntegration TestType = "integration"
	TestLoad        TestType = "load"
	TestStress      TestType = "stress"
	TestPerformance TestType = "performance"
	TestScalability TestType = "scalability"
	TestEndurance   TestType = "endurance"
	TestReliability TestType = "reliability"
	TestChaos       TestType = "chaos"
	TestRegression  TestType = "regression"
	TestSecurity    TestType = "security"
)

// AllTestTypes returns the test types in canonical execution order.
func AllTestTypes() []TestType {
	return []TestType{
		TestSanity,
		TestIntegration,
		TestLoad,
		TestStress,
		TestPerformance,
		TestScalability,
		TestEndurance,
		TestReliability,
		TestChaos,
		TestRegression,
		TestSecurity,
	}
}

// Valid returns true if t is a known test type.
func (t TestType) Valid() bool {
	for _, known := range AllTestTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Exclusive reports whether a test type saturates the target and therefore
// must never run concurrently with another exclusive type. This is a
// scheduling classification, not a runtime lock: the protected resource is
// the target system's capacity.
func (t TestType) Exclusive() bool {
	switch t {
	case TestLoad, TestStress, TestPerformance, TestScalability, TestEndurance, TestChaos:
		return true
	}
	return false
}

// TestConfig is the root configuration object. It is constructed once per
// CLI invocation by Load and never mutated afterwards.
type TestConfig struct {
	// Suite is the human-readable name of this test suite run.
	Suite string `json:"suite"`

	// Platform is the provisioning target.
	Platform Platform `json:"platform"`

	// DeploymentMode is the target topology. Multi-replica is only valid
	// on managed-Kubernetes platforms.
	DeploymentMode DeploymentMode `json:"deploymentMode"`

	// Target describes how to reach the system under test. If URL is set
	// the runner operates in connect-only mode and skips deployment.
	Target TargetConfig `json:"target"`

	// Tools holds paths to external executables.
	Tools ToolsConfig `json:"tools"`

	// Credentials are expanded from ${VAR} placeholders at load time.
	// Unresolved placeholders are left verbatim so optional credentials
	// do not fail the load.
	Credentials CredentialsConfig `json:"credentials,omitempty"`

	// Tests configures each test type. Types absent from the file get
	// defaults with Enabled=false.
	Tests TestsConfig `json:"tests"`

	// Thresholds configures the pass/fail boundaries per test type.
	Thresholds ThresholdsConfig `json:"thresholds,omitempty"`

	// Runner configures orchestration behavior.
	Runner RunnerConfig `json:"runner"`

	// Output configures report generation.
	Output OutputConfig `json:"output"`
}

// TargetConfig describes the system under test.
type TargetConfig struct {
	// URL is the base URL of a pre-existing Prometheus-compatible target.
	// When set, deploy and teardown phases are skipped.
	URL string `json:"url,omitempty"`

	// Namespace is the Kubernetes namespace for managed platforms.
	Namespace string `json:"namespace,omitempty"`

	// Version is the expected Prometheus version, a semantic version string.
	Version string `json:"version,omitempty"`

	// OrgID is the tenant identifier sent as X-Scope-OrgID.
	// Required on managed-Kubernetes platforms.
	OrgID string `json:"orgID,omitempty"`
}

// ToolsConfig holds paths to external executables invoked as subprocesses.
type ToolsConfig struct {
	// K6Path is the k6 load-generator binary.
	K6Path string `json:"k6Path,omitempty"`

	// PromtoolPath is the promtool binary used by the regression suite.
	PromtoolPath string `json:"promtoolPath,omitempty"`

	// PrometheusPath is the prometheus binary used by the local-binary platform.
	PrometheusPath string `json:"prometheusPath,omitempty"`

	// ContainerRuntime is the container CLI used by the container platform.
	ContainerRuntime string `json:"containerRuntime,omitempty"`
}

// CredentialsConfig holds credential references. Each value may be an
// environment-variable placeholder of the form ${VAR}.
type CredentialsConfig struct {
	BearerToken string `json:"bearerToken,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
}

// ThresholdDirection is the comparison direction for a threshold entry.
type ThresholdDirection string

const (
	// UpperBound passes when the observation is <= the threshold value.
	UpperBound ThresholdDirection = "upper-bound"
	// LowerBound passes when the observation is >= the threshold value.
	LowerBound ThresholdDirection = "lower-bound"
)

// Valid returns true if d is a known direction.
func (d ThresholdDirection) Valid() bool {
	return d == UpperBound || d == LowerBound
}

// ThresholdEntry binds a metric of a test type to a numeric boundary.
type ThresholdEntry struct {
	TestType  TestType           `json:"testType"`
	Metric    string             `json:"metric"`
	Direction ThresholdDirection `json:"direction"`
	Value     float64            `json:"value"`
}

// ThresholdsConfig configures the threshold table. Entries from File are
// loaded first, inline Entries override them.
type ThresholdsConfig struct {
	File    string           `json:"file,omitempty"`
	Entries []ThresholdEntry `json:"entries,omitempty"`
}

// RunnerConfig configures orchestration behavior.
type RunnerConfig struct {
	// Parallel allows independent test types to run concurrently.
	Parallel bool `json:"parallel,omitempty"`

	// MaxParallel caps the worker pool for parallel execution.
	MaxParallel int `json:"maxParallel,omitempty"`

	// FailFast aborts remaining test types after the first failure.
	FailFast bool `json:"failFast,omitempty"`

	// GlobalTimeout is the ceiling for the whole run, e.g. "2h".
	GlobalTimeout string `json:"globalTimeout,omitempty"`

	// ReadyTimeout is how long to wait for the target to become ready
	// after deployment, e.g. "5m".
	ReadyTimeout string `json:"readyTimeout,omitempty"`

	// RequestTimeout applies to individual API calls, e.g. "30s".
	RequestTimeout string `json:"requestTimeout,omitempty"`
}

// OutputConfig configures report generation.
type OutputConfig struct {
	// Dir is the directory reports are written to.
	Dir string `json:"dir,omitempty"`

	// Formats selects report formats: json, csv, text, html.
	Formats []string `json:"formats,omitempty"`
}

// EnabledTypes returns the enabled test types in canonical order.
func (c *TestConfig) EnabledTypes() []TestType {
	var enabled []TestType
	for _, t := range AllTestTypes() {
		if c.Tests.ForType(t).Enabled() {
			enabled = append(enabled, t)
		}
	}
	return enabled
}

// ConnectOnly reports whether the runner should skip deploy/teardown because
// a pre-existing target URL was supplied.
func (c *TestConfig) ConnectOnly() bool {
	return c.Target.URL != ""
}
