package k6

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSummary = `{
  "metrics": {
    "http_reqs": {"count": 12000, "rate": 200.5},
    "http_req_failed": {"value": 0.0125, "passes": 150, "fails": 11850},
    "http_req_duration": {
      "avg": 45.2, "min": 2.1, "med": 38.0, "max": 912.4,
      "p(90)": 88.7, "p(95)": 120.3, "p(99)": 310.9
    },
    "iterations": {"count": 11900, "rate": 198.3},
    "data_sent": {"count": 2400000, "rate": 40000},
    "data_received": {"count": 96000000, "rate": 1600000},
    "vus_max": {"value": 50, "min": 50, "max": 50}
  }
}`

func TestParseSummary(t *testing.T) {
	m, err := ParseSummary([]byte(sampleSummary))
	require.NoError(t, err)

	assert.Equal(t, 12000.0, m.Requests)
	assert.Equal(t, 200.5, m.RequestRate)
	assert.Equal(t, 0.0125, m.FailureRate)
	assert.Equal(t, 45.2, m.RequestDuration.Avg)
	assert.Equal(t, 310.9, m.RequestDuration.P99)
	assert.Equal(t, 11900.0, m.Iterations)
	assert.Equal(t, 50.0, m.PeakVUs)
}

func TestParseSummaryMissingMetrics(t *testing.T) {
	m, err := ParseSummary([]byte(`{"metrics": {}}`))
	require.NoError(t, err)
	assert.Zero(t, m.Requests)
	assert.Zero(t, m.FailureRate)
}

func TestParseSummaryInvalidJSON(t *testing.T) {
	_, err := ParseSummary([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseSummaryPeakVUsFallsBackToMax(t *testing.T) {
	m, err := ParseSummary([]byte(`{"metrics": {"vus_max": {"min": 10, "max": 40}}}`))
	require.NoError(t, err)
	assert.Equal(t, 40.0, m.PeakVUs)
}

func TestEmbeddedScriptsExist(t *testing.T) {
	for _, scenario := range []Scenario{ScenarioLoad, ScenarioStress, ScenarioEndurance} {
		data, err := scripts.ReadFile("scripts/" + string(scenario) + ".js")
		require.NoError(t, err, "scenario %s", scenario)
		assert.Contains(t, string(data), "TARGET_URL")
	}
}

func TestNewRunnerRequiresTarget(t *testing.T) {
	_, err := NewRunner(Config{}, slog.Default())
	assert.Error(t, err)
}

func TestNewRunnerMissingExecutable(t *testing.T) {
	_, err := NewRunner(Config{
		TargetURL: "http://localhost:9090",
		K6Path:    "/nonexistent/bin/k6",
	}, slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrK6NotFound)
}

func TestRunnerMaterializesScript(t *testing.T) {
	workDir := t.TempDir()
	r := &Runner{
		cfg:    Config{TargetURL: "http://localhost:9090", WorkDir: workDir},
		logger: slog.Default(),
	}

	path, err := r.materializeScript(ScenarioLoad, workDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "load.js"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "export default function")
}

func TestRunnerUnknownScenario(t *testing.T) {
	r := &Runner{cfg: Config{TargetURL: "http://localhost:9090"}, logger: slog.Default()}
	_, err := r.materializeScript(Scenario("bogus"), t.TempDir())
	assert.Error(t, err)
}

func TestScriptEnv(t *testing.T) {
	r := &Runner{
		cfg: Config{
			TargetURL:   "http://prometheus:9090",
			VUs:         25,
			MaxVUs:      100,
			Duration:    "10m",
			QPS:         8,
			OrgID:       "tenant-1",
			BearerToken: "secret",
		},
		logger: slog.Default(),
	}

	env := r.scriptEnv()
	assert.Contains(t, env, "TARGET_URL=http://prometheus:9090")
	assert.Contains(t, env, "VUS=25")
	assert.Contains(t, env, "MAX_VUS=100")
	assert.Contains(t, env, "DURATION=10m")
	assert.Contains(t, env, "QPS=8")
	assert.Contains(t, env, "ORG_ID=tenant-1")
	assert.Contains(t, env, "BEARER_TOKEN=secret")
}

func TestScriptEnvOmitsEmptyOptionals(t *testing.T) {
	r := &Runner{
		cfg:    Config{TargetURL: "http://localhost:9090", VUs: 5, Duration: "1m"},
		logger: slog.Default(),
	}

	for _, e := range r.scriptEnv() {
		assert.NotContains(t, e, "ORG_ID=")
		assert.NotContains(t, e, "BEARER_TOKEN=")
		assert.NotContains(t, e, "MAX_VUS=")
	}
}

func TestRunWithFakeK6(t *testing.T) {
	// Stand in for k6 with a shell script that writes a summary file at
	// the path given by --summary-export and exits cleanly.
	workDir := t.TempDir()
	fake := filepath.Join(workDir, "k6")
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "--summary-export" ]; then
    shift
    cat > "$1" <<'EOF'
{"metrics": {"http_reqs": {"count": 100, "rate": 10}, "http_req_failed": {"value": 0}}}
EOF
  fi
  shift
done
exit 0
`
	require.NoError(t, os.WriteFile(fake, []byte(script), 0o755))

	r, err := NewRunner(Config{
		TargetURL: "http://localhost:9090",
		K6Path:    fake,
		WorkDir:   workDir,
	}, slog.Default())
	require.NoError(t, err)

	result, err := r.Run(context.Background(), ScenarioLoad)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Metrics)
	assert.Equal(t, 100.0, result.Metrics.Requests)
}

func TestRunFailingK6ReturnsUnsuccessfulResult(t *testing.T) {
	workDir := t.TempDir()
	fake := filepath.Join(workDir, "k6")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\nexit 99\n"), 0o755))

	r, err := NewRunner(Config{
		TargetURL: "http://localhost:9090",
		K6Path:    fake,
		WorkDir:   workDir,
	}, slog.Default())
	require.NoError(t, err)

	result, err := r.Run(context.Background(), ScenarioLoad)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
