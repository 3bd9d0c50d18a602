package framework

import (
	"context"
	"log/slog"
	"time"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/deploy"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// Env is the shared environment a strategy runs against. It is read-only
// from the strategy's point of view.
type Env struct {
	Cfg      *config.TestConfig
	Client   *client.Client
	Deployer deploy.Deployer
	Logger   *slog.Logger

	// Suite holds the results accumulated so far. Strategies that compare
	// against earlier results (regression) read it; nothing writes to it
	// from a strategy.
	Suite *SuiteResult
}

// strategy implements one test type. Run returns the observations the test
// produced. An error wrapping ErrCheckFailed marks the test failed; an
// error wrapping ErrUnsupported marks it skipped; any other error marks it
// errored. Observations returned alongside an error are still recorded.
type strategy interface {
	Type() config.TestType
	Run(ctx context.Context, env *Env) ([]threshold.Observation, error)
}

// strategyFor returns the implementation for a test type.
func strategyFor(t config.TestType) strategy {
	switch t {
	case config.TestSanity:
		return sanityStrategy{}
	case config.TestIntegration:
		return integrationStrategy{}
	case config.TestLoad:
		return loadStrategy{}
	case config.TestStress:
		return stressStrategy{}
	case config.TestPerformance:
		return performanceStrategy{}
	case config.TestScalability:
		return scalabilityStrategy{}
	case config.TestEndurance:
		return enduranceStrategy{}
	case config.TestReliability:
		return reliabilityStrategy{}
	case config.TestChaos:
		return chaosStrategy{}
	case config.TestRegression:
		return regressionStrategy{}
	case config.TestSecurity:
		return securityStrategy{}
	}
	return nil
}

// serverObservation evaluates a catalog query against the target and
// returns it as an observation. Query failures are logged, not fatal: a
// missing metric must not error the test that sampled it.
func serverObservation(ctx context.Context, env *Env, queryName string) (threshold.Observation, bool) {
	q, ok := client.LookupQuery(queryName)
	if !ok {
		return threshold.Observation{}, false
	}
	resp, err := env.Client.Query(ctx, q.Query, time.Time{})
	if err != nil {
		env.Logger.Debug("server-side observation failed", "query", queryName, "err", err)
		return threshold.Observation{}, false
	}
	value, ok := client.ScalarValue(resp)
	if !ok {
		return threshold.Observation{}, false
	}
	return threshold.Observation{Name: q.Name, Value: value, Unit: q.Unit}, true
}
