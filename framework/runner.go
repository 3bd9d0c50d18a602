// Package framework orchestrates the test lifecycle: deploy the target,
// verify it, execute the selected test types, aggregate results, and tear
// everything down. Partial results survive every failure mode.
package framework

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/concurrent"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/deploy"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// State is the runner's lifecycle phase.
type State string

const (
	StateIdle        State = "idle"
	StateDeploying   State = "deploying"
	StateVerifying   State = "verifying"
	StateExecuting   State = "executing"
	StateAggregating State = "aggregating"
	StateTearingDown State = "tearing-down"
	StateDone        State = "done"
)

// Runner drives one suite run through its lifecycle. A Runner is used for a
// single Run call.
type Runner struct {
	cfg        *config.TestConfig
	logger     *slog.Logger
	deployer   deploy.Deployer
	thresholds *threshold.Table

	// timeouts carries the framework-internal defaults, overridable via
	// the PROMTEST_* environment variables. Configuration-file values
	// still take precedence.
	timeouts *config.Timeouts

	// newClient is injectable for tests.
	newClient func(url string) (*client.Client, error)

	mu    sync.Mutex
	state State
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithDeployer injects a deployer, overriding platform selection.
func WithDeployer(d deploy.Deployer) Option {
	return func(r *Runner) { r.deployer = d }
}

// WithThresholds injects a threshold table, overriding the configured one.
func WithThresholds(t *threshold.Table) Option {
	return func(r *Runner) { r.thresholds = t }
}

// WithClientFactory injects the API client constructor.
func WithClientFactory(fn func(url string) (*client.Client, error)) Option {
	return func(r *Runner) { r.newClient = fn }
}

// NewRunner builds a runner for the given configuration. The configuration
// must already be validated.
func NewRunner(cfg *config.TestConfig, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		logger:   slog.Default(),
		state:    StateIdle,
		timeouts: config.TimeoutsFromEnv(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.thresholds == nil {
		table, err := threshold.FromConfig(cfg.Thresholds)
		if err != nil {
			return nil, fmt.Errorf("failed to load thresholds: %w", err)
		}
		r.thresholds = table
	}

	if r.deployer == nil {
		d, err := deploy.New(cfg, r.logger)
		if err != nil {
			return nil, err
		}
		r.deployer = d
	}

	if r.newClient == nil {
		requestTimeout := config.DurationOr(cfg.Runner.RequestTimeout, r.timeouts.RequestTimeout)
		r.newClient = func(url string) (*client.Client, error) {
			return client.New(&client.Config{
				BaseURL:     url,
				Timeout:     requestTimeout,
				BearerToken: cfg.Credentials.BearerToken,
				OrgID:       cfg.Target.OrgID,
			})
		}
	}

	return r, nil
}

// State returns the current lifecycle phase.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	r.logger.Info("state transition", "from", prev, "to", s)
}

// Run executes the whole lifecycle and always returns a suite result, even
// when the run aborts early. The returned error reports run-level problems
// (deployment failure, verification failure, global timeout); per-type
// outcomes live in the result.
func (r *Runner) Run(ctx context.Context) (*SuiteResult, error) {
	suite := NewSuiteResult(r.cfg)

	globalTimeout := config.DurationOr(r.cfg.Runner.GlobalTimeout, r.timeouts.GlobalTimeout)
	runCtx, cancel := context.WithTimeout(ctx, globalTimeout)
	defer cancel()

	defer func() {
		suite.Finished = time.Now().UTC()
		suite.Duration = suite.Finished.Sub(suite.Started)
		r.setState(StateDone)
	}()

	runErr := r.run(runCtx, suite)

	r.setState(StateAggregating)
	suite.Aggregate()

	// Teardown must not be starved by an expired run context.
	r.setState(StateTearingDown)
	r.logger.Info("tearing down target", "endpoint", r.deployer.EndpointURL())
	teardownCtx, teardownCancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeouts.TeardownTimeout)
	defer teardownCancel()
	if err := r.deployer.Teardown(teardownCtx); err != nil {
		r.logger.Error("teardown failed", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil && errors.Is(runErr, context.DeadlineExceeded) && runCtx.Err() != nil && ctx.Err() == nil {
		runErr = fmt.Errorf("%w after %v", ErrGlobalTimeout, globalTimeout)
		suite.Error = runErr.Error()
		suite.Aggregate()
	} else if runErr != nil && errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		runErr = fmt.Errorf("%w: cancelled by caller", ErrRunAborted)
		suite.Error = runErr.Error()
		suite.Aggregate()
	}

	return suite, runErr
}

// run performs the deploy, verify and execute phases.
func (r *Runner) run(ctx context.Context, suite *SuiteResult) error {
	r.setState(StateDeploying)
	target, err := r.deployer.Deploy(ctx)
	if err != nil {
		suite.Error = err.Error()
		r.skipAll(suite, "deployment failed")
		return err
	}
	suite.TargetURL = target.URL

	r.setState(StateVerifying)
	c, err := r.newClient(target.URL)
	if err != nil {
		suite.Error = err.Error()
		r.skipAll(suite, "verification failed")
		return err
	}
	if err := r.verify(ctx, c, suite); err != nil {
		suite.Error = err.Error()
		r.skipAll(suite, "verification failed")
		return err
	}

	r.setState(StateExecuting)
	env := &Env{
		Cfg:      r.cfg,
		Client:   c,
		Deployer: r.deployer,
		Logger:   r.logger,
		Suite:    suite,
	}
	r.execute(ctx, env, suite)
	return ctx.Err()
}

// verify confirms the target is reachable and, when a version is pinned,
// that the deployed version matches it.
func (r *Runner) verify(ctx context.Context, c *client.Client, suite *SuiteResult) error {
	if err := c.Healthy(ctx); err != nil {
		return fmt.Errorf("target health check: %w", err)
	}
	if err := c.Ready(ctx); err != nil {
		return fmt.Errorf("target readiness check: %w", err)
	}

	info, err := c.BuildInfo(ctx)
	if err != nil {
		r.logger.Warn("failed to read build info", "err", err)
		return nil
	}
	suite.TargetVersion = info.Version

	expected := r.cfg.Target.Version
	if expected == "" {
		return nil
	}

	want, err := semver.NewVersion(expected)
	if err != nil {
		return fmt.Errorf("invalid expected version %q: %w", expected, err)
	}
	got, err := semver.NewVersion(strings.TrimPrefix(info.Version, "v"))
	if err != nil {
		return fmt.Errorf("target reports unparsable version %q: %w", info.Version, err)
	}
	if !want.Equal(got) {
		return &VersionMismatchError{Expected: expected, Actual: info.Version}
	}
	return nil
}

// execute runs the enabled test types. In parallel mode the shared-safe
// types fan out first; exclusive types always run one at a time because
// they saturate the target.
func (r *Runner) execute(ctx context.Context, env *Env, suite *SuiteResult) {
	enabled := r.cfg.EnabledTypes()
	if len(enabled) == 0 {
		r.logger.Warn("no test types enabled")
		return
	}

	if !r.cfg.Runner.Parallel {
		r.executeSequential(ctx, env, suite, enabled)
		return
	}

	var shared, exclusive []config.TestType
	for _, t := range enabled {
		if t.Exclusive() {
			exclusive = append(exclusive, t)
		} else {
			shared = append(shared, t)
		}
	}

	limit := r.cfg.Runner.MaxParallel
	if limit <= 0 {
		limit = r.timeouts.MaxParallel
	}

	// Append synchronizes internally.
	_ = concurrent.ForEachWithLimit(ctx, shared, limit, func(ctx context.Context, t config.TestType) error {
		suite.Append(r.executeOne(ctx, env, t))
		return nil
	})

	if r.cfg.Runner.FailFast && r.hasFailure(suite) {
		r.skipRemaining(suite, exclusive, "skipped by fail-fast")
		return
	}

	r.executeSequential(ctx, env, suite, exclusive)
}

func (r *Runner) executeSequential(ctx context.Context, env *Env, suite *SuiteResult, types []config.TestType) {
	for i, t := range types {
		if ctx.Err() != nil {
			r.skipRemaining(suite, types[i:], "run cancelled")
			return
		}

		result := r.executeOne(ctx, env, t)
		suite.Append(result)

		if r.cfg.Runner.FailFast && (result.Status == StatusFailed || result.Status == StatusError) {
			r.skipRemaining(suite, types[i+1:], "skipped by fail-fast")
			return
		}
	}
}

// executeOne runs a single test type under its time budget and classifies
// the outcome.
func (r *Runner) executeOne(ctx context.Context, env *Env, t config.TestType) TestResult {
	budget := config.DurationOr(r.cfg.Tests.ForType(t).Budget(), r.timeouts.JobTimeout)
	// Give the budget headroom over the test's own window so a test using
	// its full duration is not cancelled at the finish line.
	testCtx, cancel := context.WithTimeout(ctx, budget+time.Minute)
	defer cancel()

	r.logger.Info("test starting", "type", t, "budget", budget)
	result := TestResult{Type: t, Started: time.Now().UTC()}

	strat := strategyFor(t)
	obs, err := strat.Run(testCtx, env)

	result.Finished = time.Now().UTC()
	result.Duration = result.Finished.Sub(result.Started)
	result.Observations = obs
	result.Verdicts = threshold.Evaluate(t, obs, r.thresholds)

	switch {
	case err == nil:
		if failures := threshold.Failures(result.Verdicts); len(failures) > 0 {
			result.Status = StatusFailed
			result.Message = "thresholds violated: " + strings.Join(failures, ", ")
		} else {
			result.Status = StatusPassed
		}
	case errors.Is(err, ErrUnsupported):
		result.Status = StatusSkipped
		result.Message = err.Error()
	case IsCheckFailure(err):
		result.Status = StatusFailed
		result.Message = err.Error()
	default:
		result.Status = StatusError
		result.Message = err.Error()
	}

	r.logger.Info("test finished",
		"type", t,
		"status", result.Status,
		"duration", result.Duration,
		"observations", len(result.Observations))
	return result
}

func (r *Runner) hasFailure(suite *SuiteResult) bool {
	for _, res := range suite.Results {
		if res.Status == StatusFailed || res.Status == StatusError {
			return true
		}
	}
	return false
}

// skipAll records every enabled type as skipped; used when the run never
// reaches the execution phase.
func (r *Runner) skipAll(suite *SuiteResult, reason string) {
	r.skipRemaining(suite, r.cfg.EnabledTypes(), reason)
}

func (r *Runner) skipRemaining(suite *SuiteResult, types []config.TestType, reason string) {
	now := time.Now().UTC()
	for _, t := range types {
		if _, exists := suite.ResultFor(t); exists {
			continue
		}
		suite.Append(TestResult{
			Type:     t,
			Status:   StatusSkipped,
			Message:  reason,
			Started:  now,
			Finished: now,
		})
	}
}
