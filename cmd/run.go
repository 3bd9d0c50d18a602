package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/monitoring-qa/promtest/framework"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/report"
)

// runOptions holds the run command's flag values.
type runOptions struct {
	configPath     string
	platform       string
	deploymentMode string
	types          []string
	prometheusURL  string
	namespace      string
	orgID          string
	targetVersion  string
	k6VUs          int
	k6Duration     string
	parallel       bool
	failFast       bool
	timeout        string
	outputDir      string
	formats        []string
	dryRun         bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deploy a target and execute the configured test suite",
		Long: `Run executes the full lifecycle: deploy the Prometheus target on the
selected platform, verify it is healthy, execute the enabled test types,
evaluate thresholds, write reports and tear everything down.

Flags override the corresponding configuration file values. With
--prometheus-url the deploy and teardown phases are skipped and the tests
run against the existing target.

Reports are always written, including for interrupted or failed runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	f.StringVar(&opts.platform, "platform", "", "deployment platform (local-binary, container, k8s-kind, k8s-eks, k8s-gke, k8s-openshift)")
	f.StringVar(&opts.deploymentMode, "deployment-mode", "", "target topology (single-instance, multi-replica)")
	f.StringSliceVarP(&opts.types, "type", "t", nil, "run only the listed test types (repeatable)")
	f.StringVar(&opts.prometheusURL, "prometheus-url", "", "connect to an existing target instead of deploying")
	f.StringVar(&opts.namespace, "namespace", "", "Kubernetes namespace for managed platforms")
	f.StringVar(&opts.orgID, "org-id", "", "tenant ID sent as X-Scope-OrgID")
	f.StringVar(&opts.targetVersion, "target-version", "", "expected Prometheus version, verified after deployment")
	f.IntVar(&opts.k6VUs, "k6-vus", 0, "virtual users for the k6-driven test types")
	f.StringVar(&opts.k6Duration, "k6-duration", "", "duration for the k6-driven test types, e.g. 10m")
	f.BoolVar(&opts.parallel, "parallel", false, "run independent test types concurrently")
	f.BoolVar(&opts.failFast, "fail-fast", false, "skip remaining test types after the first failure")
	f.StringVar(&opts.timeout, "timeout", "", "global timeout for the whole run, e.g. 2h")
	f.StringVarP(&opts.outputDir, "output", "o", "", "directory reports are written to")
	f.StringSliceVar(&opts.formats, "format", nil, "report formats: json, csv, text, html (repeatable)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "resolve and print the run plan without executing")

	return cmd
}

func runSuite(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadRunConfig(cmd.Flags(), opts)
	if err != nil {
		return err
	}

	logger := slog.Default()

	if opts.dryRun {
		printPlan(cmd, cfg)
		return nil
	}

	runner, err := framework.NewRunner(cfg, framework.WithLogger(logger))
	if err != nil {
		return err
	}

	// First signal cancels the run; teardown and report writing still
	// happen. A second signal exits immediately.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var interrupted atomic.Bool
	go func() {
		for range sigCh {
			if interrupted.CompareAndSwap(false, true) {
				logger.Warn("interrupt received, cancelling run (send again to force exit)")
				cancel()
				continue
			}
			os.Exit(ExitInterrupted)
		}
	}()

	suite, runErr := runner.Run(ctx)

	// Partial results are still results: reports are written whatever
	// happened to the run.
	gen := report.NewGenerator(cfg.Output.Dir, logger)
	if paths, err := gen.Write(suite, cfg.Output.Formats); err != nil {
		logger.Error("report writing incomplete", "err", err, "written", paths)
	}

	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprint(cmd.OutOrStdout(), report.Text(suite))

	if interrupted.Load() {
		return errInterrupted
	}
	if runErr != nil {
		return runErr
	}
	return suiteOutcome(suite)
}

// suiteOutcome converts the aggregated suite status into the command result.
// A suite where every test skipped failed nothing, so it exits clean.
func suiteOutcome(suite *framework.SuiteResult) error {
	switch suite.Status {
	case framework.StatusPassed, framework.StatusSkipped:
		return nil
	default:
		return fmt.Errorf("%w: suite status is %s", errTestsFailed, suite.Status)
	}
}

// loadRunConfig loads the configuration file with the changed flags applied
// as overrides, then narrows the enabled types when --type was given.
func loadRunConfig(flags *pflag.FlagSet, opts *runOptions) (*config.TestConfig, error) {
	overrides := map[string]string{}
	setIfChanged := func(flag, key, value string) {
		if flags.Changed(flag) {
			overrides[key] = value
		}
	}
	setIfChanged("platform", "platform", opts.platform)
	setIfChanged("deployment-mode", "deployment-mode", opts.deploymentMode)
	setIfChanged("prometheus-url", "prometheus-url", opts.prometheusURL)
	setIfChanged("namespace", "namespace", opts.namespace)
	setIfChanged("org-id", "org-id", opts.orgID)
	setIfChanged("target-version", "version", opts.targetVersion)
	setIfChanged("k6-vus", "k6-vus", strconv.Itoa(opts.k6VUs))
	setIfChanged("k6-duration", "k6-duration", opts.k6Duration)
	setIfChanged("parallel", "parallel", strconv.FormatBool(opts.parallel))
	setIfChanged("fail-fast", "fail-fast", strconv.FormatBool(opts.failFast))
	setIfChanged("timeout", "timeout", opts.timeout)
	setIfChanged("output", "output", opts.outputDir)

	cfg, err := config.Load(opts.configPath, overrides)
	if err != nil {
		return nil, err
	}

	if flags.Changed("format") {
		for _, f := range opts.formats {
			if !report.ValidFormat(f) {
				return nil, config.NewConfigError("format", fmt.Sprintf("unknown report format %q", f))
			}
		}
		cfg.Output.Formats = opts.formats
	}

	if len(opts.types) > 0 {
		if err := selectTypes(cfg, opts.types); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// selectTypes narrows the run to exactly the listed types, regardless of
// what the file enables.
func selectTypes(cfg *config.TestConfig, types []string) error {
	selected := make(map[config.TestType]bool, len(types))
	for _, raw := range types {
		t := config.TestType(raw)
		if !t.Valid() {
			return config.NewConfigError("type", fmt.Sprintf("unknown test type %q", raw))
		}
		selected[t] = true
	}
	for _, t := range config.AllTestTypes() {
		setTypeEnabled(cfg, t, selected[t])
	}
	return nil
}

func setTypeEnabled(cfg *config.TestConfig, t config.TestType, enabled bool) {
	switch t {
	case config.TestSanity:
		cfg.Tests.Sanity.Enabled = enabled
	case config.TestIntegration:
		cfg.Tests.Integration.Enabled = enabled
	case config.TestLoad:
		cfg.Tests.Load.Enabled = enabled
	case config.TestStress:
		cfg.Tests.Stress.Enabled = enabled
	case config.TestPerformance:
		cfg.Tests.Performance.Enabled = enabled
	case config.TestScalability:
		cfg.Tests.Scalability.Enabled = enabled
	case config.TestEndurance:
		cfg.Tests.Endurance.Enabled = enabled
	case config.TestReliability:
		cfg.Tests.Reliability.Enabled = enabled
	case config.TestChaos:
		cfg.Tests.Chaos.Enabled = enabled
	case config.TestRegression:
		cfg.Tests.Regression.Enabled = enabled
	case config.TestSecurity:
		cfg.Tests.Security.Enabled = enabled
	}
}

// printPlan renders the resolved configuration for --dry-run.
func printPlan(cmd *cobra.Command, cfg *config.TestConfig) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Suite:     %s\n", cfg.Suite)
	fmt.Fprintf(out, "Platform:  %s (%s)\n", cfg.Platform, cfg.DeploymentMode)
	if cfg.ConnectOnly() {
		fmt.Fprintf(out, "Target:    %s (connect-only, no deployment)\n", cfg.Target.URL)
	} else if cfg.Platform.IsManaged() {
		fmt.Fprintf(out, "Namespace: %s\n", cfg.Target.Namespace)
	}
	fmt.Fprintf(out, "Output:    %s (%v)\n", cfg.Output.Dir, cfg.Output.Formats)
	fmt.Fprintf(out, "Parallel:  %t, fail-fast: %t\n", cfg.Runner.Parallel, cfg.Runner.FailFast)
	fmt.Fprintln(out, "Tests:")
	for _, t := range cfg.EnabledTypes() {
		settings := cfg.Tests.ForType(t)
		fmt.Fprintf(out, "  - %s (budget %s)\n", t, settings.Budget())
	}
}
