// Package cmd implements the promtest command-line interface.
package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/monitoring-qa/promtest/framework"
	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/deploy"
)

// Exit codes. They are stable so CI pipelines can branch on the kind of
// failure without parsing output.
const (
	// ExitSuccess indicates every executed test passed.
	ExitSuccess = 0
	// ExitTestFailure indicates at least one test failed or errored.
	ExitTestFailure = 1
	// ExitConfigError indicates the configuration could not be loaded or
	// validated.
	ExitConfigError = 2
	// ExitDeployError indicates deployment or target verification failed.
	ExitDeployError = 3
	// ExitInterrupted indicates the run was cancelled by a signal or hit
	// the global timeout.
	ExitInterrupted = 4
)

// Sentinels used to carry the outcome classification out of RunE.
var (
	errTestsFailed = errors.New("one or more tests did not pass")
	errInterrupted = errors.New("run interrupted")
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "promtest",
	Short: "Orchestrate Prometheus test suites across deployment platforms",
	Long: `promtest deploys a Prometheus target on the selected platform, runs the
configured test types against it, evaluates the results against thresholds
and writes reports. Targets can also be pre-existing: point promtest at a
URL and the deploy and teardown phases are skipped.`,
	// The application prints its own errors with context; cobra's usage
	// dump on every failure just buries them.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(logLevel)
	},
}

// SetVersion injects the build version, called from main.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI and exits the process with a semantic exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "promtest version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to its exit code.
func exitCode(err error) int {
	if errors.Is(err, errInterrupted) || errors.Is(err, framework.ErrGlobalTimeout) ||
		errors.Is(err, framework.ErrRunAborted) {
		return ExitInterrupted
	}
	if config.IsConfigError(err) {
		return ExitConfigError
	}

	var deployErr *deploy.DeploymentError
	if errors.As(err, &deployErr) {
		return ExitDeployError
	}
	var versionErr *framework.VersionMismatchError
	if errors.As(err, &versionErr) {
		return ExitDeployError
	}
	if errors.Is(err, deploy.ErrUnsupportedPlatform) || errors.Is(err, deploy.ErrPrerequisite) ||
		errors.Is(err, deploy.ErrTargetNotReady) || client.IsUnreachable(err) {
		return ExitDeployError
	}

	return ExitTestFailure
}

// configureLogging installs the process-wide structured logger.
func configureLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log verbosity: debug, info, warn or error")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newInfoCmd())
}
