package framework

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/k6"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// k6Config assembles the subprocess configuration shared by the k6-backed
// strategies.
func k6Config(env *Env, vus, maxVUs int, duration string, series, qps int) k6.Config {
	return k6.Config{
		K6Path:      env.Cfg.Tools.K6Path,
		TargetURL:   env.Client.BaseURL(),
		OrgID:       env.Cfg.Target.OrgID,
		BearerToken: env.Cfg.Credentials.BearerToken,
		VUs:         vus,
		MaxVUs:      maxVUs,
		Duration:    duration,
		Series:      series,
		QPS:         qps,
	}
}

// runScenario executes a k6 scenario and converts its summary to
// observations.
func runScenario(ctx context.Context, env *Env, scenario k6.Scenario, cfg k6.Config) ([]threshold.Observation, *k6.Result, error) {
	runner, err := k6.NewRunner(cfg, env.Logger)
	if err != nil {
		return nil, nil, err
	}

	result, err := runner.Run(ctx, scenario)
	if err != nil {
		return nil, nil, err
	}

	var obs []threshold.Observation
	if m := result.Metrics; m != nil {
		obs = append(obs,
			threshold.Observation{Name: "requests_total", Value: m.Requests},
			threshold.Observation{Name: "request_rate", Value: m.RequestRate, Unit: "req/s"},
			threshold.Observation{Name: "request_failure_ratio", Value: m.FailureRate},
			threshold.Observation{Name: "request_p95_ms", Value: m.RequestDuration.P95, Unit: "ms"},
			threshold.Observation{Name: "request_p99_ms", Value: m.RequestDuration.P99, Unit: "ms"},
		)
	}
	return obs, result, nil
}

// loadStrategy drives sustained query load through k6 and samples
// server-side ingestion metrics afterwards.
type loadStrategy struct{}

func (loadStrategy) Type() config.TestType { return config.TestLoad }

func (loadStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	tc := env.Cfg.Tests.Load
	cfg := k6Config(env, tc.VUs, 0, tc.Duration, tc.Series, 0)

	obs, result, err := runScenario(ctx, env, k6.ScenarioLoad, cfg)
	if err != nil {
		return obs, err
	}

	for _, name := range []string{"samples_appended_rate", "head_series"} {
		if o, ok := serverObservation(ctx, env, name); ok {
			obs = append(obs, o)
		}
	}

	if !result.Success {
		return obs, CheckFailedf("load scenario exited unsuccessfully")
	}
	return obs, nil
}

// stressStrategy ramps load past expected capacity and observes the failure
// behavior.
type stressStrategy struct{}

func (stressStrategy) Type() config.TestType { return config.TestStress }

func (stressStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	tc := env.Cfg.Tests.Stress
	cfg := k6Config(env, tc.StartVUs, tc.MaxVUs, tc.Duration, 0, 0)

	obs, result, err := runScenario(ctx, env, k6.ScenarioStress, cfg)
	if err != nil {
		return obs, err
	}
	if m := result.Metrics; m != nil {
		obs = append(obs, threshold.Observation{Name: "peak_vus", Value: m.PeakVUs})
	}

	// A stress test is expected to degrade the target; only a scenario
	// that could not run at all fails here. Thresholds decide the rest.
	if result.Metrics == nil {
		return obs, CheckFailedf("stress scenario produced no metrics")
	}
	return obs, nil
}

// enduranceStrategy sustains moderate load over a long window and checks
// for resource growth.
type enduranceStrategy struct{}

func (enduranceStrategy) Type() config.TestType { return config.TestEndurance }

func (enduranceStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	memBefore, haveBefore := serverObservation(ctx, env, "process_resident_memory")

	tc := env.Cfg.Tests.Endurance
	cfg := k6Config(env, tc.VUs, 0, tc.Duration, 0, 0)

	obs, result, err := runScenario(ctx, env, k6.ScenarioEndurance, cfg)
	if err != nil {
		return obs, err
	}

	if memAfter, haveAfter := serverObservation(ctx, env, "process_resident_memory"); haveBefore && haveAfter && memBefore.Value > 0 {
		obs = append(obs, threshold.Observation{
			Name:  "memory_growth_ratio",
			Value: memAfter.Value / memBefore.Value,
		})
	}

	if !result.Success {
		return obs, CheckFailedf("endurance scenario exited unsuccessfully")
	}
	return obs, nil
}

// performanceStrategy measures query latency at a paced rate using the API
// client directly, so latency reflects single queries rather than load-test
// aggregates.
type performanceStrategy struct{}

func (performanceStrategy) Type() config.TestType { return config.TestPerformance }

func (performanceStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	tc := env.Cfg.Tests.Performance
	window := config.DurationOr(tc.Duration, time.Minute)
	qps := tc.QPS
	if qps <= 0 {
		qps = 1
	}
	pacing := time.Second / time.Duration(qps)

	queries := make([]client.MetricQuery, 0, len(tc.Queries))
	for _, name := range tc.Queries {
		q, ok := client.LookupQuery(name)
		if !ok {
			return nil, CheckFailedf("unknown query %q", name)
		}
		queries = append(queries, q)
	}

	var (
		latencies []float64
		failures  int
	)
	deadline := time.Now().Add(window)
	for i := 0; time.Now().Before(deadline); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := queries[i%len(queries)]
		start := time.Now()
		_, err := env.Client.Query(ctx, q.Query, time.Time{})
		latencies = append(latencies, float64(time.Since(start).Microseconds())/1000.0)

		if err != nil {
			if client.IsUnreachable(err) {
				return nil, fmt.Errorf("query %s: %w", q.Name, err)
			}
			failures++
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pacing):
		}
	}

	obs := []threshold.Observation{
		{Name: "queries_executed", Value: float64(len(latencies))},
		{Name: "query_failures", Value: float64(failures)},
		{Name: "query_latency_avg_ms", Value: mean(latencies), Unit: "ms"},
		{Name: "query_latency_p95_ms", Value: percentile(latencies, 0.95), Unit: "ms"},
		{Name: "query_latency_p99_ms", Value: percentile(latencies, 0.99), Unit: "ms"},
	}

	if len(latencies) > 0 && failures == len(latencies) {
		return obs, CheckFailedf("every query failed")
	}
	return obs, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile returns the p-quantile using nearest-rank on a sorted copy.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(p*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
