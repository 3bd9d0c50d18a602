package framework

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// sanityStrategy probes the configured API paths for a 2xx response. It is
// the cheapest test type and the default gate for everything else.
type sanityStrategy struct{}

func (sanityStrategy) Type() config.TestType { return config.TestSanity }

func (sanityStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	endpoints := env.Cfg.Tests.Sanity.Endpoints

	var failed []string
	for _, path := range endpoints {
		code, err := env.Client.Probe(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", path, err)
		}
		if code < 200 || code > 299 {
			failed = append(failed, fmt.Sprintf("%s=%d", path, code))
		}
		env.Logger.Debug("sanity probe", "path", path, "code", code)
	}

	obs := []threshold.Observation{
		{Name: "endpoints_probed", Value: float64(len(endpoints))},
		{Name: "endpoints_failed", Value: float64(len(failed))},
	}

	if len(failed) > 0 {
		return obs, CheckFailedf("endpoints not healthy: %s", strings.Join(failed, ", "))
	}
	return obs, nil
}

// integrationStrategy executes named query scenarios from the built-in
// catalog end to end and measures their latency.
type integrationStrategy struct{}

func (integrationStrategy) Type() config.TestType { return config.TestIntegration }

func (integrationStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	scenarios := env.Cfg.Tests.Integration.Scenarios

	var (
		totalLatency time.Duration
		failures     []string
	)
	for _, name := range scenarios {
		q, ok := client.LookupQuery(name)
		if !ok {
			failures = append(failures, name+" (unknown scenario)")
			continue
		}

		start := time.Now()
		_, err := env.Client.Query(ctx, q.Query, time.Time{})
		latency := time.Since(start)
		totalLatency += latency

		if err != nil {
			if client.IsUnreachable(err) {
				return nil, fmt.Errorf("scenario %s: %w", name, err)
			}
			failures = append(failures, fmt.Sprintf("%s (%v)", name, err))
			continue
		}
		env.Logger.Debug("integration scenario", "scenario", name, "latency", latency)
	}

	obs := []threshold.Observation{
		{Name: "scenarios_run", Value: float64(len(scenarios))},
		{Name: "scenarios_failed", Value: float64(len(failures))},
	}
	if n := len(scenarios); n > 0 {
		obs = append(obs, threshold.Observation{
			Name:  "scenario_latency_avg_ms",
			Value: float64(totalLatency.Milliseconds()) / float64(n),
			Unit:  "ms",
		})
	}

	if len(failures) > 0 {
		return obs, CheckFailedf("scenarios failed: %s", strings.Join(failures, ", "))
	}
	return obs, nil
}

// reliabilityStrategy probes target health at a fixed interval over the
// configured window and reports the availability ratio.
type reliabilityStrategy struct{}

func (reliabilityStrategy) Type() config.TestType { return config.TestReliability }

func (reliabilityStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	window := config.DurationOr(env.Cfg.Tests.Reliability.Duration, 5*time.Minute)
	interval := config.DurationOr(env.Cfg.Tests.Reliability.ProbeInterval, 10*time.Second)

	var probes, failures int
	deadline := time.Now().Add(window)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		probes++
		if err := env.Client.Healthy(ctx); err != nil {
			failures++
			env.Logger.Debug("reliability probe failed", "probe", probes, "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	availability := 1.0
	if probes > 0 {
		availability = float64(probes-failures) / float64(probes)
	}

	obs := []threshold.Observation{
		{Name: "probes_total", Value: float64(probes)},
		{Name: "probes_failed", Value: float64(failures)},
		{Name: "availability_ratio", Value: availability},
	}
	if failures == probes && probes > 0 {
		return obs, CheckFailedf("target was never healthy during the %v window", window)
	}
	return obs, nil
}

// securityStrategy checks that administrative endpoints are not exposed and,
// when configured, that unauthenticated requests are rejected.
type securityStrategy struct{}

func (securityStrategy) Type() config.TestType { return config.TestSecurity }

func (securityStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	endpoints := env.Cfg.Tests.Security.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{
			"/api/v1/admin/tsdb/snapshot",
			"/api/v1/admin/tsdb/delete_series",
			"/-/quit",
			"/-/reload",
		}
	}

	// Probe without credentials: the point is what an anonymous caller
	// can reach.
	anon, err := client.New(&client.Config{
		BaseURL: env.Client.BaseURL(),
		Timeout: env.Client.Timeout(),
	})
	if err != nil {
		return nil, err
	}

	var exposed []string
	for _, path := range endpoints {
		code, err := anon.Probe(ctx, path)
		if err != nil {
			if client.IsUnreachable(err) {
				return nil, fmt.Errorf("probe %s: %w", path, err)
			}
			continue
		}
		if code >= 200 && code <= 299 {
			exposed = append(exposed, path)
		}
		env.Logger.Debug("security probe", "path", path, "code", code)
	}

	obs := []threshold.Observation{
		{Name: "admin_endpoints_checked", Value: float64(len(endpoints))},
		{Name: "admin_endpoints_exposed", Value: float64(len(exposed))},
	}

	var problems []string
	if len(exposed) > 0 {
		problems = append(problems, "exposed admin endpoints: "+strings.Join(exposed, ", "))
	}

	if env.Cfg.Tests.Security.ExpectAuth {
		code, err := anon.Probe(ctx, "/api/v1/query?query=up")
		if err != nil && client.IsUnreachable(err) {
			return obs, fmt.Errorf("auth probe: %w", err)
		}
		authenticated := err == nil && code >= 200 && code <= 299
		if authenticated {
			problems = append(problems, "query API accepts unauthenticated requests")
		}
		obs = append(obs, threshold.Observation{Name: "anonymous_query_accepted", Value: boolToFloat(authenticated)})
	}

	if len(problems) > 0 {
		return obs, CheckFailedf("%s", strings.Join(problems, "; "))
	}
	return obs, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
