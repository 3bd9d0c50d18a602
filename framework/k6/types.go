package k6

import (
	"encoding/json"
	"time"
)

// Scenario selects which embedded k6 script is executed.
type Scenario string

const (
	// ScenarioLoad drives a constant query load at a fixed VU count.
	ScenarioLoad Scenario = "load"
	// ScenarioStress ramps VUs from a floor to a ceiling.
	ScenarioStress Scenario = "stress"
	// ScenarioEndurance sustains a moderate load for a long window.
	ScenarioEndurance Scenario = "endurance"
)

// Config holds configuration for one k6 subprocess invocation.
type Config struct {
	// K6Path is the k6 executable. Defaults to "k6" on PATH.
	K6Path string

	// TargetURL is the base URL of the system under test.
	TargetURL string

	// OrgID is forwarded to the script as a request header value.
	OrgID string

	// BearerToken is forwarded to the script when set.
	BearerToken string

	// VUs is the virtual user count (floor for ramping scenarios).
	VUs int

	// MaxVUs is the ramp ceiling for the stress scenario.
	MaxVUs int

	// Duration is the k6 run duration, e.g. "10m".
	Duration string

	// Series is the series cardinality hint passed to the script.
	Series int

	// QPS is the per-VU pacing hint passed to the script.
	QPS int

	// Timeout bounds the whole subprocess. Zero means no extra bound
	// beyond the caller's context.
	Timeout time.Duration

	// WorkDir is where scripts and summaries are written. Defaults to a
	// temporary directory.
	WorkDir string
}

// Result holds the outcome of a k6 subprocess run.
type Result struct {
	Success  bool
	Output   string
	Duration time.Duration
	Metrics  *Metrics
}

// Metrics holds the parsed k6 summary.
type Metrics struct {
	// Requests is the total number of HTTP requests issued.
	Requests float64

	// RequestRate is requests per second over the run.
	RequestRate float64

	// FailureRate is the fraction of failed requests (0..1).
	FailureRate float64

	// RequestDuration aggregates request latency in milliseconds.
	RequestDuration MetricStats

	// Iterations is the total completed script iterations.
	Iterations float64

	// DataSentBytes and DataReceivedBytes are transfer totals.
	DataSentBytes     float64
	DataReceivedBytes float64

	// PeakVUs is the maximum concurrent virtual users reached.
	PeakVUs float64
}

// MetricStats holds statistical values for a trend metric.
type MetricStats struct {
	Avg float64
	Min float64
	Med float64
	Max float64
	P90 float64
	P95 float64
	P99 float64
}

// summaryJSON mirrors k6's --summary-export document.
type summaryJSON struct {
	Metrics map[string]summaryMetric `json:"metrics"`
}

type summaryMetric struct {
	Count float64 `json:"count"`
	Rate  float64 `json:"rate"`
	Value float64 `json:"value"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Med   float64 `json:"med"`
	Max   float64 `json:"max"`
	P90   float64 `json:"p(90)"`
	P95   float64 `json:"p(95)"`
	P99   float64 `json:"p(99)"`
}

// ParseSummary parses a k6 --summary-export JSON document.
func ParseSummary(data []byte) (*Metrics, error) {
	var summary summaryJSON
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}

	m := &Metrics{}

	if reqs, ok := summary.Metrics["http_reqs"]; ok {
		m.Requests = reqs.Count
		m.RequestRate = reqs.Rate
	}
	if failed, ok := summary.Metrics["http_req_failed"]; ok {
		m.FailureRate = failed.Value
	}
	if dur, ok := summary.Metrics["http_req_duration"]; ok {
		m.RequestDuration = MetricStats{
			Avg: dur.Avg,
			Min: dur.Min,
			Med: dur.Med,
			Max: dur.Max,
			P90: dur.P90,
			P95: dur.P95,
			P99: dur.P99,
		}
	}
	if iters, ok := summary.Metrics["iterations"]; ok {
		m.Iterations = iters.Count
	}
	if sent, ok := summary.Metrics["data_sent"]; ok {
		m.DataSentBytes = sent.Count
	}
	if recv, ok := summary.Metrics["data_received"]; ok {
		m.DataReceivedBytes = recv.Count
	}
	if vus, ok := summary.Metrics["vus_max"]; ok {
		m.PeakVUs = vus.Value
		if m.PeakVUs == 0 {
			m.PeakVUs = vus.Max
		}
	}

	return m, nil
}
