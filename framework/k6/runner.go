// Package k6 runs load scenarios through the k6 executable as a subprocess
// and parses its exported summary into structured metrics.
package k6

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

//go:embed scripts/*.js
var scripts embed.FS

// ErrK6NotFound indicates the k6 executable is not available.
var ErrK6NotFound = errors.New("k6 executable not found")

// Runner executes k6 scenarios against a target.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// NewRunner validates the configuration and returns a scenario runner.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	if cfg.TargetURL == "" {
		return nil, errors.New("k6 runner requires a target URL")
	}
	if cfg.K6Path == "" {
		cfg.K6Path = "k6"
	}
	if cfg.VUs <= 0 {
		cfg.VUs = 10
	}
	if cfg.Duration == "" {
		cfg.Duration = "1m"
	}
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := exec.LookPath(cfg.K6Path); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrK6NotFound, cfg.K6Path)
	}

	return &Runner{cfg: cfg, logger: logger}, nil
}

// Run executes the scenario and blocks until the subprocess exits or the
// context is cancelled. A failed run (non-zero exit, failed thresholds)
// returns a Result with Success=false rather than an error; errors are
// reserved for not being able to run at all.
func (r *Runner) Run(ctx context.Context, scenario Scenario) (*Result, error) {
	workDir := r.cfg.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "promtest-k6-")
		if err != nil {
			return nil, fmt.Errorf("failed to create k6 work dir: %w", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	scriptPath, err := r.materializeScript(scenario, workDir)
	if err != nil {
		return nil, err
	}
	summaryPath := filepath.Join(workDir, fmt.Sprintf("summary-%s.json", scenario))

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := []string{
		"run",
		"--summary-export", summaryPath,
		"--quiet",
		scriptPath,
	}

	cmd := exec.CommandContext(ctx, r.cfg.K6Path, args...)
	cmd.Env = append(os.Environ(), r.scriptEnv()...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Info("starting k6 scenario",
		"scenario", scenario,
		"vus", r.cfg.VUs,
		"duration", r.cfg.Duration,
		"target", r.cfg.TargetURL)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := &Result{
		Success:  runErr == nil,
		Output:   output.String(),
		Duration: elapsed,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("k6 scenario %s interrupted after %v: %w", scenario, elapsed, ctxErr)
	}

	// The summary is written even on threshold failures, so parse it
	// regardless of exit status.
	if data, readErr := os.ReadFile(summaryPath); readErr == nil {
		metrics, parseErr := ParseSummary(data)
		if parseErr != nil {
			r.logger.Warn("failed to parse k6 summary", "path", summaryPath, "err", parseErr)
		} else {
			result.Metrics = metrics
		}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			r.logger.Warn("k6 scenario failed",
				"scenario", scenario,
				"exit_code", exitErr.ExitCode(),
				"duration", elapsed)
			return result, nil
		}
		return result, fmt.Errorf("failed to run k6: %w", runErr)
	}

	r.logger.Info("k6 scenario completed", "scenario", scenario, "duration", elapsed)
	return result, nil
}

// materializeScript writes the embedded scenario script into the work
// directory so k6 can load it from disk.
func (r *Runner) materializeScript(scenario Scenario, workDir string) (string, error) {
	name := fmt.Sprintf("scripts/%s.js", scenario)
	data, err := scripts.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("unknown k6 scenario %q: %w", scenario, err)
	}

	path := filepath.Join(workDir, fmt.Sprintf("%s.js", scenario))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write k6 script: %w", err)
	}
	return path, nil
}

// scriptEnv builds the environment variables the embedded scripts read.
func (r *Runner) scriptEnv() []string {
	env := []string{
		"TARGET_URL=" + r.cfg.TargetURL,
		"VUS=" + strconv.Itoa(r.cfg.VUs),
		"DURATION=" + r.cfg.Duration,
	}
	if r.cfg.MaxVUs > 0 {
		env = append(env, "MAX_VUS="+strconv.Itoa(r.cfg.MaxVUs))
	}
	if r.cfg.QPS > 0 {
		env = append(env, "QPS="+strconv.Itoa(r.cfg.QPS))
	}
	if r.cfg.Series > 0 {
		env = append(env, "SERIES="+strconv.Itoa(r.cfg.Series))
	}
	if r.cfg.OrgID != "" {
		env = append(env, "ORG_ID="+r.cfg.OrgID)
	}
	if r.cfg.BearerToken != "" {
		env = append(env, "BEARER_TOKEN="+r.cfg.BearerToken)
	}
	return env
}
