package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitoring-qa/promtest/framework"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/deploy"
	"github.com/monitoring-qa/promtest/framework/report"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// execute runs a freshly constructed command with args and captures output.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"interrupted", errInterrupted, ExitInterrupted},
		{"wrapped interrupted", fmt.Errorf("run: %w", errInterrupted), ExitInterrupted},
		{"global timeout", fmt.Errorf("%w after 2h", framework.ErrGlobalTimeout), ExitInterrupted},
		{"run aborted", fmt.Errorf("%w: cancelled by caller", framework.ErrRunAborted), ExitInterrupted},
		{"config error", config.NewConfigError("platform", "unknown"), ExitConfigError},
		{"unsupported mode", &config.UnsupportedModeError{Platform: config.PlatformContainer, Mode: config.ModeMultiReplica}, ExitConfigError},
		{"deployment error", deploy.NewDeploymentError(config.PlatformKind, "provision", errors.New("boom")), ExitDeployError},
		{"prerequisite", fmt.Errorf("%w: k6", deploy.ErrPrerequisite), ExitDeployError},
		{"version mismatch", &framework.VersionMismatchError{Expected: "2.53.0", Actual: "2.52.0"}, ExitDeployError},
		{"tests failed", fmt.Errorf("%w: suite status is failed", errTestsFailed), ExitTestFailure},
		{"generic", errors.New("something else"), ExitTestFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}

func TestSuiteOutcome(t *testing.T) {
	assert.NoError(t, suiteOutcome(&framework.SuiteResult{Status: framework.StatusPassed}))
	assert.NoError(t, suiteOutcome(&framework.SuiteResult{Status: framework.StatusSkipped}),
		"an all-skipped suite failed nothing")

	err := suiteOutcome(&framework.SuiteResult{Status: framework.StatusFailed})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTestsFailed)
	assert.Equal(t, ExitTestFailure, exitCode(err))
}

func TestRunDryRun(t *testing.T) {
	out, err := execute(t, newRunCmd(),
		"--dry-run",
		"--prometheus-url", "http://127.0.0.1:9090",
		"--type", "sanity,security",
		"--parallel")
	require.NoError(t, err)

	assert.Contains(t, out, "connect-only")
	assert.Contains(t, out, "sanity")
	assert.Contains(t, out, "security")
	assert.NotContains(t, out, "- load")
	assert.Contains(t, out, "Parallel:  true")
}

func TestRunUnknownType(t *testing.T) {
	_, err := execute(t, newRunCmd(), "--dry-run", "--type", "smoke")
	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
	assert.Contains(t, err.Error(), "smoke")
}

func TestRunUnknownFormat(t *testing.T) {
	_, err := execute(t, newRunCmd(), "--dry-run", "--format", "pdf")
	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
}

func TestRunInvalidPlatform(t *testing.T) {
	_, err := execute(t, newRunCmd(), "--dry-run", "--platform", "bare-metal")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestSelectTypes(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, selectTypes(cfg, []string{"load", "chaos"}))

	enabled := cfg.EnabledTypes()
	require.Len(t, enabled, 2)
	assert.Equal(t, config.TestLoad, enabled[0])
	assert.Equal(t, config.TestChaos, enabled[1])
	assert.False(t, cfg.Tests.Sanity.Enabled, "sanity default gets switched off")
}

func writtenSuiteFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	suite := &framework.SuiteResult{
		RunID:          "11111111-2222-4333-8444-555555555555",
		Suite:          "nightly",
		Platform:       config.PlatformContainer,
		DeploymentMode: config.ModeSingleInstance,
		Started:        time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		Status:         framework.StatusPassed,
		Results: []framework.TestResult{
			{
				Type:   config.TestSanity,
				Status: framework.StatusPassed,
				Observations: []threshold.Observation{
					{Name: "endpoints_probed", Value: 3},
				},
			},
		},
	}
	paths, err := report.NewGenerator(dir, nil).Write(suite, []string{"json"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	return paths[0]
}

func TestReportTextToStdout(t *testing.T) {
	input := writtenSuiteFile(t)

	out, err := execute(t, newReportCmd(), "--input", input)
	require.NoError(t, err)
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "PASSED")
}

func TestReportWritesFormats(t *testing.T) {
	input := writtenSuiteFile(t)
	outDir := t.TempDir()

	out, err := execute(t, newReportCmd(),
		"--input", input,
		"--output", outDir,
		"--format", "html,csv")
	require.NoError(t, err)
	assert.Contains(t, out, outDir)

	matches, err := filepath.Glob(filepath.Join(outDir, "nightly-*.html"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestReportNonTextNeedsOutput(t *testing.T) {
	input := writtenSuiteFile(t)
	_, err := execute(t, newReportCmd(), "--input", input, "--format", "csv")
	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
}

func TestReportMissingInput(t *testing.T) {
	_, err := execute(t, newReportCmd(), "--input", filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestStatusHealthyTarget(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/api/v1/status/buildinfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"version":"2.53.0"}}`)
	})
	mux.HandleFunc("/api/v1/status/tsdb", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"headStats":{"numSeries":1234}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := execute(t, newStatusCmd(), "--prometheus-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "2.53.0")
	assert.Contains(t, out, "1234")
}

func TestStatusUnreachableTarget(t *testing.T) {
	_, err := execute(t, newStatusCmd(),
		"--prometheus-url", "http://127.0.0.1:1",
		"--timeout", "500ms")
	require.Error(t, err)
	assert.Equal(t, ExitDeployError, exitCode(err))
}

func TestCleanupLocalBinary(t *testing.T) {
	out, err := execute(t, newCleanupCmd(), "--platform", "local-binary")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to clean")
}

func TestCleanupUnknownPlatform(t *testing.T) {
	_, err := execute(t, newCleanupCmd(), "--platform", "metal")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestCleanupNamespaceRequired(t *testing.T) {
	// The namespace check fires before any cluster client is built.
	_, err := execute(t, newCleanupCmd(), "--platform", "k8s-kind")
	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
}

func TestInfoListsEverything(t *testing.T) {
	out, err := execute(t, newInfoCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "k8s-kind")
	assert.Contains(t, out, "exclusive")
	assert.Contains(t, out, "regression")
	assert.Contains(t, out, "samples_appended_rate")
	assert.Contains(t, out, "json")
}
