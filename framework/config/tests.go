package config

// TestsConfig nests one typed configuration block per test type. Each block
// has its own parameter shape, decoded and validated once at load time.
type TestsConfig struct {
	Sanity      SanityConfig      `json:"sanity,omitempty"`
	Integration IntegrationConfig `json:"integration,omitempty"`
	Load        LoadConfig        `json:"load,omitempty"`
	Stress      StressConfig      `json:"stress,omitempty"`
	Performance PerformanceConfig `json:"performance,omitempty"`
	Scalability ScalabilityConfig `json:"scalability,omitempty"`
	Endurance   EnduranceConfig   `json:"endurance,omitempty"`
	Reliability ReliabilityConfig `json:"reliability,omitempty"`
	Chaos       ChaosConfig       `json:"chaos,omitempty"`
	Regression  RegressionConfig  `json:"regression,omitempty"`
	Security    SecurityConfig    `json:"security,omitempty"`
}

// TypeSettings is the common view over a per-type block: whether it is
// enabled and its time budget (timeout or duration, depending on the type).
type TypeSettings struct {
	enabled bool
	budget  string
}

// Enabled reports whether the test type is selected by configuration.
func (s TypeSettings) Enabled() bool { return s.enabled }

// Budget returns the type's timeout or duration string.
func (s TypeSettings) Budget() string { return s.budget }

// ForType returns the common settings view for a test type.
func (tc *TestsConfig) ForType(t TestType) TypeSettings {
	switch t {
	case TestSanity:
		return TypeSettings{tc.Sanity.Enabled, tc.Sanity.Timeout}
	case TestIntegration:
		return TypeSettings{tc.Integration.Enabled, tc.Integration.Timeout}
	case TestLoad:
		return TypeSettings{tc.Load.Enabled, tc.Load.Duration}
	case TestStress:
		return TypeSettings{tc.Stress.Enabled, tc.Stress.Duration}
	case TestPerformance:
		return TypeSettings{tc.Performance.Enabled, tc.Performance.Duration}
	case TestScalability:
		return TypeSettings{tc.Scalability.Enabled, tc.Scalability.Timeout}
	case TestEndurance:
		return TypeSettings{tc.Endurance.Enabled, tc.Endurance.Duration}
	case TestReliability:
		return TypeSettings{tc.Reliability.Enabled, tc.Reliability.Duration}
	case TestChaos:
		return TypeSettings{tc.Chaos.Enabled, tc.Chaos.Timeout}
	case TestRegression:
		return TypeSettings{tc.Regression.Enabled, tc.Regression.Timeout}
	case TestSecurity:
		return TypeSettings{tc.Security.Enabled, tc.Security.Timeout}
	}
	return TypeSettings{}
}

// SanityConfig configures quick post-deployment validation of basic
// reachability and health.
type SanityConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// Endpoints are API paths probed for a 2xx response.
	Endpoints []string `json:"endpoints,omitempty"`
}

// IntegrationConfig configures end-to-end scenario checks.
type IntegrationConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// Scenarios are named query scenarios from the built-in catalog.
	Scenarios []string `json:"scenarios,omitempty"`
}

// LoadConfig configures sustained write/read load generation.
type LoadConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Duration string `json:"duration,omitempty"`

	// VUs is the number of virtual users driving the load.
	VUs int `json:"vus,omitempty"`

	// Series is the number of active series the generator maintains.
	Series int `json:"series,omitempty"`
}

// StressConfig configures a ramping load that pushes past expected capacity.
type StressConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Duration string `json:"duration,omitempty"`

	StartVUs int `json:"startVUs,omitempty"`
	MaxVUs   int `json:"maxVUs,omitempty"`
}

// PerformanceConfig configures query latency measurement at a fixed rate.
type PerformanceConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Duration string `json:"duration,omitempty"`

	// Queries are named entries from the built-in query catalog.
	Queries []string `json:"queries,omitempty"`

	// QPS is the target query rate.
	QPS int `json:"qps,omitempty"`
}

// ScalabilityConfig configures stepwise replica scaling. Only meaningful on
// managed-Kubernetes platforms in multi-replica mode.
type ScalabilityConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// Replicas are the replica counts stepped through, in order.
	Replicas []int `json:"replicas,omitempty"`

	// SeriesPerReplica is the series load applied at each step.
	SeriesPerReplica int `json:"seriesPerReplica,omitempty"`
}

// EnduranceConfig configures long-running moderate load.
type EnduranceConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Duration string `json:"duration,omitempty"`

	VUs int `json:"vus,omitempty"`
}

// ReliabilityConfig configures availability probing over a window.
type ReliabilityConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Duration string `json:"duration,omitempty"`

	// ProbeInterval is the spacing between health probes, e.g. "10s".
	ProbeInterval string `json:"probeInterval,omitempty"`
}

// ChaosConfig configures fault-injection scenarios.
type ChaosConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// Scenarios are named fault scenarios, e.g. "pod-kill", "network-delay".
	Scenarios []string `json:"scenarios,omitempty"`
}

// RegressionConfig configures comparison against a stored baseline.
type RegressionConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// BaselineFile is a previously written JSON suite result.
	BaselineFile string `json:"baselineFile,omitempty"`
}

// SecurityConfig configures authentication and endpoint exposure checks.
type SecurityConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// Endpoints are admin API paths checked for exposure.
	Endpoints []string `json:"endpoints,omitempty"`

	// ExpectAuth asserts that unauthenticated requests are rejected.
	ExpectAuth bool `json:"expectAuth,omitempty"`
}
