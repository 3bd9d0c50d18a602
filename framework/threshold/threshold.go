// Package threshold compares collected metric observations against
// configurable pass/fail boundaries. Evaluation is a pure function: no side
// effects, no network access, deterministic for a given input.
package threshold

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/monitoring-qa/promtest/framework/config"
)

// Observation is a single collected metric value.
type Observation struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// VerdictStatus is the outcome of evaluating one observation.
type VerdictStatus string

const (
	// Passed means the observation satisfied its threshold.
	Passed VerdictStatus = "passed"
	// Failed means the observation violated its threshold.
	Failed VerdictStatus = "failed"
	// Skipped means no threshold entry matched the observation. Skipped
	// metrics are surfaced in reports, never silently dropped, and do not
	// affect the test's status.
	Skipped VerdictStatus = "skipped"
)

// Verdict is the evaluated outcome for one metric.
type Verdict struct {
	Metric    string                    `json:"metric"`
	Status    VerdictStatus             `json:"status"`
	Value     float64                   `json:"value"`
	Threshold float64                   `json:"threshold,omitempty"`
	Direction config.ThresholdDirection `json:"direction,omitempty"`
}

type key struct {
	testType config.TestType
	metric   string
}

// Table maps (test type, metric name) to a threshold entry. It is read-only
// after construction and safe to share across parallel workers.
type Table struct {
	entries map[key]config.ThresholdEntry
}

// NewTable builds a Table from entries. Later entries override earlier ones
// with the same (test type, metric) key.
func NewTable(entries []config.ThresholdEntry) *Table {
	t := &Table{entries: make(map[key]config.ThresholdEntry, len(entries))}
	for _, e := range entries {
		t.entries[key{e.TestType, e.Metric}] = e
	}
	return t
}

// Lookup returns the entry for a test type and metric.
func (t *Table) Lookup(testType config.TestType, metric string) (config.ThresholdEntry, bool) {
	e, ok := t.entries[key{testType, metric}]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// thresholdFile is the schema of a standalone threshold YAML document.
type thresholdFile struct {
	Entries []config.ThresholdEntry `json:"entries"`
}

// LoadFile reads threshold entries from a YAML file.
func LoadFile(path string) ([]config.ThresholdEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold file %s: %w", path, err)
	}

	var f thresholdFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse threshold file %s: %w", path, err)
	}

	for i, e := range f.Entries {
		if !e.TestType.Valid() {
			return nil, fmt.Errorf("threshold file %s: entry %d: unknown test type %q", path, i, e.TestType)
		}
		if e.Metric == "" {
			return nil, fmt.Errorf("threshold file %s: entry %d: metric is required", path, i)
		}
		if !e.Direction.Valid() {
			return nil, fmt.Errorf("threshold file %s: entry %d: unknown direction %q", path, i, e.Direction)
		}
	}

	return f.Entries, nil
}

// FromConfig builds the table for a run: entries from the optional file
// first, inline entries layered on top with higher precedence.
func FromConfig(tc config.ThresholdsConfig) (*Table, error) {
	var entries []config.ThresholdEntry

	if tc.File != "" {
		fileEntries, err := LoadFile(tc.File)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	entries = append(entries, tc.Entries...)
	return NewTable(entries), nil
}

// Evaluate compares every observation against the table. All comparisons are
// attempted even after a failure so the report is complete. Observations with
// no matching entry are marked Skipped.
func Evaluate(testType config.TestType, observations []Observation, table *Table) []Verdict {
	verdicts := make([]Verdict, 0, len(observations))

	for _, obs := range observations {
		entry, ok := table.Lookup(testType, obs.Name)
		if !ok {
			verdicts = append(verdicts, Verdict{
				Metric: obs.Name,
				Status: Skipped,
				Value:  obs.Value,
			})
			continue
		}

		status := Failed
		switch entry.Direction {
		case config.UpperBound:
			if obs.Value <= entry.Value {
				status = Passed
			}
		case config.LowerBound:
			if obs.Value >= entry.Value {
				status = Passed
			}
		}

		verdicts = append(verdicts, Verdict{
			Metric:    obs.Name,
			Status:    status,
			Value:     obs.Value,
			Threshold: entry.Value,
			Direction: entry.Direction,
		})
	}

	return verdicts
}

// Failures returns the metric names that failed their threshold.
func Failures(verdicts []Verdict) []string {
	var failed []string
	for _, v := range verdicts {
		if v.Status == Failed {
			failed = append(failed, v.Metric)
		}
	}
	return failed
}
