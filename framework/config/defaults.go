package config

import (
	"os"
	"strconv"
	"time"
)

// Default timeouts used throughout the framework
const (
	// DefaultRequestTimeout is the default timeout for individual API calls
	DefaultRequestTimeout = 30 * time.Second

	// DefaultReadyTimeout is the default timeout for the target to become ready
	DefaultReadyTimeout = 5 * time.Minute

	// DefaultReadyPollInterval is the default interval for polling readiness
	DefaultReadyPollInterval = 5 * time.Second

	// DefaultGlobalTimeout is the default ceiling for a whole run
	DefaultGlobalTimeout = 2 * time.Hour

	// DefaultJobTimeout is the default timeout for a load-generation subprocess
	DefaultJobTimeout = 30 * time.Minute

	// DefaultTeardownTimeout bounds best-effort teardown
	DefaultTeardownTimeout = 2 * time.Minute

	// DefaultMaxParallel is the default cap on concurrently running test types
	DefaultMaxParallel = 4
)

// Environment variable names for framework-internal overrides
const (
	EnvRequestTimeout  = "PROMTEST_REQUEST_TIMEOUT"
	EnvReadyTimeout    = "PROMTEST_READY_TIMEOUT"
	EnvJobTimeout      = "PROMTEST_JOB_TIMEOUT"
	EnvTeardownTimeout = "PROMTEST_TEARDOWN_TIMEOUT"
	EnvMaxParallel     = "PROMTEST_MAX_PARALLEL"
)

// Timeouts holds framework-internal timing configuration with optional
// environment overrides. These are operational knobs, distinct from the
// user-facing TestConfig schema.
type Timeouts struct {
	RequestTimeout    time.Duration
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	GlobalTimeout     time.Duration
	JobTimeout        time.Duration
	TeardownTimeout   time.Duration
	MaxParallel       int
}

// DefaultTimeouts returns a Timeouts with all default values.
func DefaultTimeouts() *Timeouts {
	return &Timeouts{
		RequestTimeout:    DefaultRequestTimeout,
		ReadyTimeout:      DefaultReadyTimeout,
		ReadyPollInterval: DefaultReadyPollInterval,
		GlobalTimeout:     DefaultGlobalTimeout,
		JobTimeout:        DefaultJobTimeout,
		TeardownTimeout:   DefaultTeardownTimeout,
		MaxParallel:       DefaultMaxParallel,
	}
}

// TimeoutsFromEnv returns a Timeouts with values from environment variables,
// falling back to defaults.
func TimeoutsFromEnv() *Timeouts {
	t := DefaultTimeouts()

	if v := os.Getenv(EnvRequestTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t.RequestTimeout = d
		}
	}

	if v := os.Getenv(EnvReadyTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t.ReadyTimeout = d
		}
	}

	if v := os.Getenv(EnvJobTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t.JobTimeout = d
		}
	}

	if v := os.Getenv(EnvTeardownTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			t.TeardownTimeout = d
		}
	}

	if v := os.Getenv(EnvMaxParallel); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			t.MaxParallel = n
		}
	}

	return t
}

// Default returns a TestConfig with built-in defaults. An empty or missing
// configuration file yields exactly this.
func Default() *TestConfig {
	return &TestConfig{
		Suite:          "promtest",
		Platform:       PlatformLocalBinary,
		DeploymentMode: ModeSingleInstance,
		Target: TargetConfig{
			Namespace: "monitoring",
		},
		Tools: ToolsConfig{
			K6Path:           "k6",
			PromtoolPath:     "promtool",
			PrometheusPath:   "prometheus",
			ContainerRuntime: "docker",
		},
		Tests: TestsConfig{
			Sanity: SanityConfig{
				Enabled: true,
				Timeout: "60s",
				Endpoints: []string{
					"/-/healthy",
					"/-/ready",
					"/api/v1/status/buildinfo",
				},
			},
			Integration: IntegrationConfig{
				Timeout:   "5m",
				Scenarios: []string{"instant_up", "rate_5m", "targets_up_ratio"},
			},
			Load: LoadConfig{
				Duration: "10m",
				VUs:      20,
				Series:   10000,
			},
			Stress: StressConfig{
				Duration: "15m",
				StartVUs: 10,
				MaxVUs:   200,
			},
			Performance: PerformanceConfig{
				Duration: "10m",
				Queries:  []string{"instant_up", "rate_5m", "histogram_p99"},
				QPS:      10,
			},
			Scalability: ScalabilityConfig{
				Timeout:          "30m",
				Replicas:         []int{1, 2, 3},
				SeriesPerReplica: 5000,
			},
			Endurance: EnduranceConfig{
				Duration: "1h",
				VUs:      10,
			},
			Reliability: ReliabilityConfig{
				Duration:      "30m",
				ProbeInterval: "10s",
			},
			Chaos: ChaosConfig{
				Timeout:   "20m",
				Scenarios: []string{"pod-kill"},
			},
			Regression: RegressionConfig{
				Timeout: "10m",
			},
			Security: SecurityConfig{
				Timeout: "5m",
				Endpoints: []string{
					"/api/v1/admin/tsdb/snapshot",
					"/api/v1/admin/tsdb/delete_series",
				},
			},
		},
		Runner: RunnerConfig{
			MaxParallel:    DefaultMaxParallel,
			GlobalTimeout:  "2h",
			ReadyTimeout:   "5m",
			RequestTimeout: "30s",
		},
		Output: OutputConfig{
			Dir:     "results",
			Formats: []string{"json", "text"},
		},
	}
}
