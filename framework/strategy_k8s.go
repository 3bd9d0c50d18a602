package framework

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/deploy"
	"github.com/monitoring-qa/promtest/framework/retry"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// scalabilityStrategy steps the target through the configured replica
// counts and verifies it stays queryable at each step. It requires a
// deployer that can scale, which only the managed platforms provide.
type scalabilityStrategy struct{}

func (scalabilityStrategy) Type() config.TestType { return config.TestScalability }

func (scalabilityStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	scaler, ok := env.Deployer.(deploy.Scaler)
	if !ok {
		return nil, fmt.Errorf("%w: platform %s cannot scale replicas", ErrUnsupported, env.Cfg.Platform)
	}
	if env.Cfg.DeploymentMode != config.ModeMultiReplica {
		return nil, fmt.Errorf("%w: scalability requires multi-replica mode", ErrUnsupported)
	}

	steps := env.Cfg.Tests.Scalability.Replicas
	maxReached := 0

	for _, replicas := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		env.Logger.Info("scaling step", "replicas", replicas)
		if err := scaler.Scale(ctx, replicas); err != nil {
			obs := []threshold.Observation{
				{Name: "max_replicas_reached", Value: float64(maxReached)},
				{Name: "replica_steps_total", Value: float64(len(steps))},
			}
			return obs, CheckFailedf("scaling to %d replicas: %v", replicas, err)
		}

		// Verify the scaled target still answers queries.
		if err := env.Client.Healthy(ctx); err != nil {
			obs := []threshold.Observation{
				{Name: "max_replicas_reached", Value: float64(maxReached)},
				{Name: "replica_steps_total", Value: float64(len(steps))},
			}
			return obs, CheckFailedf("target unhealthy at %d replicas: %v", replicas, err)
		}
		maxReached = replicas
	}

	return []threshold.Observation{
		{Name: "max_replicas_reached", Value: float64(maxReached)},
		{Name: "replica_steps_total", Value: float64(len(steps))},
	}, nil
}

// chaosStrategy runs the named fault scenarios and measures recovery time.
type chaosStrategy struct{}

func (chaosStrategy) Type() config.TestType { return config.TestChaos }

func (chaosStrategy) Run(ctx context.Context, env *Env) ([]threshold.Observation, error) {
	injector, ok := env.Deployer.(deploy.FaultInjector)
	if !ok {
		return nil, fmt.Errorf("%w: platform %s cannot inject faults", ErrUnsupported, env.Cfg.Platform)
	}

	var (
		obs      []threshold.Observation
		failures []string
		worst    time.Duration
	)

	for _, scenario := range env.Cfg.Tests.Chaos.Scenarios {
		if err := ctx.Err(); err != nil {
			return obs, err
		}

		switch scenario {
		case "pod-kill":
			recovery, err := runPodKill(ctx, env, injector)
			if err != nil {
				failures = append(failures, fmt.Sprintf("pod-kill (%v)", err))
				continue
			}
			if recovery > worst {
				worst = recovery
			}
			env.Logger.Info("pod-kill recovered", "recovery", recovery)
		default:
			env.Logger.Warn("skipping unknown chaos scenario", "scenario", scenario)
		}
	}

	obs = append(obs, threshold.Observation{
		Name:  "recovery_seconds",
		Value: worst.Seconds(),
		Unit:  "s",
	})

	if len(failures) > 0 {
		return obs, CheckFailedf("chaos scenarios failed: %s", strings.Join(failures, ", "))
	}
	return obs, nil
}

// runPodKill deletes a pod and measures how long the target takes to report
// healthy again.
func runPodKill(ctx context.Context, env *Env, injector deploy.FaultInjector) (time.Duration, error) {
	victim, err := injector.KillPod(ctx)
	if err != nil {
		return 0, err
	}
	env.Logger.Info("killed pod", "pod", victim)

	start := time.Now()
	err = retry.Do(ctx, func(ctx context.Context) error {
		return env.Client.Healthy(ctx)
	},
		retry.WithMaxAttempts(60),
		retry.WithInitialDelay(2*time.Second),
		retry.WithMaxDelay(5*time.Second),
	)
	if err != nil {
		return 0, fmt.Errorf("target did not recover: %w", err)
	}
	return time.Since(start), nil
}
