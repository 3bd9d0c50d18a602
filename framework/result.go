package framework

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// Status is the outcome of a test type or a whole suite.
type Status string

const (
	// StatusPassed means every evaluated threshold and check held.
	StatusPassed Status = "passed"
	// StatusFailed means a check or threshold was violated.
	StatusFailed Status = "failed"
	// StatusSkipped means the test type did not run.
	StatusSkipped Status = "skipped"
	// StatusError means the test could not complete for an
	// infrastructure reason. Error outranks failure in aggregation.
	StatusError Status = "error"
)

// severity orders statuses for worst-of aggregation.
func (s Status) severity() int {
	switch s {
	case StatusError:
		return 3
	case StatusFailed:
		return 2
	case StatusSkipped:
		return 1
	default:
		return 0
	}
}

// TestResult is the outcome of one test type.
type TestResult struct {
	Type     config.TestType `json:"type"`
	Status   Status          `json:"status"`
	Message  string          `json:"message,omitempty"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Duration time.Duration   `json:"duration"`

	// Observations are the measured values the test produced.
	Observations []threshold.Observation `json:"observations,omitempty"`

	// Verdicts record the threshold evaluation per observation.
	Verdicts []threshold.Verdict `json:"verdicts,omitempty"`
}

// SuiteResult is the aggregate outcome of a whole run. It is always
// populated, even when the run aborts early, so partial results can be
// reported.
type SuiteResult struct {
	RunID          string                `json:"runID"`
	Suite          string                `json:"suite"`
	Platform       config.Platform       `json:"platform"`
	DeploymentMode config.DeploymentMode `json:"deploymentMode"`
	TargetURL      string                `json:"targetURL,omitempty"`
	TargetVersion  string                `json:"targetVersion,omitempty"`

	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration"`

	Status Status `json:"status"`

	// Error holds the run-level failure when the suite never reached the
	// execution phase, e.g. a deployment error.
	Error string `json:"error,omitempty"`

	// Results are per-type outcomes in canonical execution order.
	Results []TestResult `json:"results"`

	// mu guards Results while test types append concurrently.
	mu sync.RWMutex
}

// NewSuiteResult initializes a suite result with a fresh run ID.
func NewSuiteResult(cfg *config.TestConfig) *SuiteResult {
	return &SuiteResult{
		RunID:          uuid.NewString(),
		Suite:          cfg.Suite,
		Platform:       cfg.Platform,
		DeploymentMode: cfg.DeploymentMode,
		Started:        time.Now().UTC(),
		Status:         StatusPassed,
	}
}

// Append records a test result, keeping Results in canonical order. It is
// safe to call from concurrently running test types.
func (s *SuiteResult) Append(r TestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, r)
	s.sortCanonical()
}

// Snapshot returns a copy of Results that is safe to read while other test
// types are still appending.
func (s *SuiteResult) Snapshot() []TestResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TestResult, len(s.Results))
	copy(out, s.Results)
	return out
}

func (s *SuiteResult) sortCanonical() {
	order := make(map[config.TestType]int, len(config.AllTestTypes()))
	for i, t := range config.AllTestTypes() {
		order[t] = i
	}
	for i := 1; i < len(s.Results); i++ {
		for j := i; j > 0 && order[s.Results[j].Type] < order[s.Results[j-1].Type]; j-- {
			s.Results[j], s.Results[j-1] = s.Results[j-1], s.Results[j]
		}
	}
}

// Aggregate computes the suite status as the worst per-type status, ordered
// error > failed > skipped > passed. A run-level error always yields
// StatusError.
func (s *SuiteResult) Aggregate() {
	worst := StatusPassed
	for _, r := range s.Results {
		if r.Status.severity() > worst.severity() {
			worst = r.Status
		}
	}
	if s.Error != "" {
		worst = StatusError
	}
	s.Status = worst
}

// Counts returns the number of results per status.
func (s *SuiteResult) Counts() (passed, failed, skipped, errored int) {
	for _, r := range s.Results {
		switch r.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		case StatusError:
			errored++
		}
	}
	return passed, failed, skipped, errored
}

// ResultFor returns the result for a test type, if present.
func (s *SuiteResult) ResultFor(t config.TestType) (TestResult, bool) {
	for _, r := range s.Results {
		if r.Type == t {
			return r, true
		}
	}
	return TestResult{}, false
}
