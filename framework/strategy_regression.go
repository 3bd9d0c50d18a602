package framework

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// regressionTolerance is the allowed relative degradation of a latency
// observation against the baseline before the test fails.
const regressionTolerance = 1.25

// regressionMetrics are the observations compared against the baseline.
// Only latency-style metrics regress meaningfully; counters depend on run
// duration and are skipped.
var regressionMetrics = []string{
	"scenario_latency_avg_ms",
	"query_latency_avg_ms",
	"query_latency_p95_ms",
	"query_latency_p99_ms",
	"request_p95_ms",
	"request_p99_ms",
}

// regressionStrategy compares this run's latency observations against a
// stored baseline suite result and optionally cross-checks the target with
// promtool.
type regressionStrategy struct{}

func (regressionStrategy) Type() config.TestType { return config.TestRegression }

func (regressionStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	baselinePath := env.Cfg.Tests.Regression.BaselineFile
	if baselinePath == "" {
		return nil, fmt.Errorf("%w: no baseline file configured", ErrUnsupported)
	}

	baseline, err := readBaseline(baselinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline %s: %w", baselinePath, err)
	}

	// Snapshot: shared-safe siblings may still be appending to the suite.
	current := indexObservations(env.Suite.Snapshot())
	base := indexObservations(baseline.Results)

	var (
		compared   int
		worstRatio float64
		regressed  []string
	)
	for _, metric := range regressionMetrics {
		baseValue, okBase := base[metric]
		curValue, okCur := current[metric]
		if !okBase || !okCur || baseValue <= 0 {
			continue
		}

		compared++
		ratio := curValue / baseValue
		if ratio > worstRatio {
			worstRatio = ratio
		}
		if ratio > regressionTolerance {
			regressed = append(regressed, fmt.Sprintf("%s %.1f%% slower", metric, (ratio-1)*100))
		}
		env.Logger.Debug("regression comparison", "metric", metric, "baseline", baseValue, "current", curValue, "ratio", ratio)
	}

	obs := []threshold.Observation{
		{Name: "baseline_metrics_compared", Value: float64(compared)},
		{Name: "regression_worst_ratio", Value: worstRatio},
	}

	if out, err := promtoolCheck(ctx, env); err != nil {
		return obs, CheckFailedf("promtool cross-check: %v: %s", err, out)
	}

	if compared == 0 {
		return obs, fmt.Errorf("%w: baseline shares no comparable metrics with this run", ErrUnsupported)
	}
	if len(regressed) > 0 {
		return obs, CheckFailedf("regressions against baseline: %s", strings.Join(regressed, ", "))
	}
	return obs, nil
}

// readBaseline loads a previously written JSON suite result.
func readBaseline(path string) (*SuiteResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var suite SuiteResult
	if err := json.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("invalid baseline document: %w", err)
	}
	return &suite, nil
}

// indexObservations flattens per-type observations by name. Later test
// types win on duplicate names, matching canonical order.
func indexObservations(results []TestResult) map[string]float64 {
	index := make(map[string]float64)
	for _, result := range results {
		for _, o := range result.Observations {
			index[o.Name] = o.Value
		}
	}
	return index
}

// promtoolCheck runs an instant query through promtool against the live
// target as an external consistency check. Skipped when no promtool path is
// configured.
func promtoolCheck(ctx context.Context, env *Env) (string, error) {
	promtool := env.Cfg.Tools.PromtoolPath
	if promtool == "" {
		return "", nil
	}
	if _, err := exec.LookPath(promtool); err != nil {
		env.Logger.Warn("promtool not found, skipping cross-check", "path", promtool)
		return "", nil
	}

	cmd := exec.CommandContext(ctx, promtool, "query", "instant", env.Client.BaseURL(), "up")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return strings.TrimSpace(out.String()), err
	}
	return strings.TrimSpace(out.String()), nil
}
