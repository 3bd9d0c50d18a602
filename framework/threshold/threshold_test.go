package threshold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitoring-qa/promtest/framework/config"
)

func testTable() *Table {
	return NewTable([]config.ThresholdEntry{
		{TestType: config.TestLoad, Metric: "query_latency_p99", Direction: config.UpperBound, Value: 0.5},
		{TestType: config.TestLoad, Metric: "targets_up_ratio", Direction: config.LowerBound, Value: 0.99},
	})
}

func TestEvaluate_UpperBound(t *testing.T) {
	table := testTable()

	cases := []struct {
		value float64
		want  VerdictStatus
	}{
		{0.4, Passed},
		{0.5, Passed}, // boundary is inclusive
		{0.6, Failed},
	}
	for _, tc := range cases {
		verdicts := Evaluate(config.TestLoad, []Observation{
			{Name: "query_latency_p99", Value: tc.value, Unit: "seconds"},
		}, table)
		require.Len(t, verdicts, 1)
		assert.Equal(t, tc.want, verdicts[0].Status, "value %v", tc.value)
	}
}

func TestEvaluate_LowerBound(t *testing.T) {
	table := testTable()

	cases := []struct {
		value float64
		want  VerdictStatus
	}{
		{1.0, Passed},
		{0.99, Passed},
		{0.5, Failed},
	}
	for _, tc := range cases {
		verdicts := Evaluate(config.TestLoad, []Observation{
			{Name: "targets_up_ratio", Value: tc.value},
		}, table)
		require.Len(t, verdicts, 1)
		assert.Equal(t, tc.want, verdicts[0].Status, "value %v", tc.value)
	}
}

func TestEvaluate_MissingEntryIsSkippedNotFailed(t *testing.T) {
	table := testTable()

	verdicts := Evaluate(config.TestLoad, []Observation{
		{Name: "custom_metric_x", Value: 42},
	}, table)
	require.Len(t, verdicts, 1)
	assert.Equal(t, Skipped, verdicts[0].Status)
	assert.Empty(t, Failures(verdicts))
}

func TestEvaluate_NoShortCircuit(t *testing.T) {
	table := testTable()

	// The first observation fails; the rest must still be evaluated.
	verdicts := Evaluate(config.TestLoad, []Observation{
		{Name: "query_latency_p99", Value: 10},
		{Name: "targets_up_ratio", Value: 1.0},
		{Name: "custom_metric_x", Value: 1},
	}, table)
	require.Len(t, verdicts, 3)
	assert.Equal(t, Failed, verdicts[0].Status)
	assert.Equal(t, Passed, verdicts[1].Status)
	assert.Equal(t, Skipped, verdicts[2].Status)
	assert.Equal(t, []string{"query_latency_p99"}, Failures(verdicts))
}

func TestEvaluate_TestTypeScoping(t *testing.T) {
	table := testTable()

	// Entries are keyed by test type: the stress suite has no entry for
	// this metric even though the load suite does.
	verdicts := Evaluate(config.TestStress, []Observation{
		{Name: "query_latency_p99", Value: 10},
	}, table)
	require.Len(t, verdicts, 1)
	assert.Equal(t, Skipped, verdicts[0].Status)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - testType: sanity
    metric: targets_up_ratio
    direction: lower-bound
    value: 1.0
  - testType: performance
    metric: query_latency_p99
    direction: upper-bound
    value: 0.25
`), 0o644))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, config.TestSanity, entries[0].TestType)
}

func TestLoadFile_RejectsBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - testType: warp
    metric: m
    direction: upper-bound
    value: 1
`), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestFromConfig_InlineOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - testType: load
    metric: query_latency_p99
    direction: upper-bound
    value: 1.0
`), 0o644))

	table, err := FromConfig(config.ThresholdsConfig{
		File: path,
		Entries: []config.ThresholdEntry{
			{TestType: config.TestLoad, Metric: "query_latency_p99", Direction: config.UpperBound, Value: 0.5},
		},
	})
	require.NoError(t, err)

	entry, ok := table.Lookup(config.TestLoad, "query_latency_p99")
	require.True(t, ok)
	assert.Equal(t, 0.5, entry.Value)
}
