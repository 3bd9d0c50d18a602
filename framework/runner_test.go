package framework

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/deploy"
	"github.com/monitoring-qa/promtest/framework/threshold"
)

// fakeDeployer satisfies deploy.Deployer without touching any platform.
type fakeDeployer struct {
	url       string
	deployErr error
	tornDown  bool
}

func (d *fakeDeployer) Deploy(context.Context) (*deploy.Target, error) {
	if d.deployErr != nil {
		return nil, d.deployErr
	}
	return &deploy.Target{URL: d.url}, nil
}

func (d *fakeDeployer) Teardown(context.Context) error {
	d.tornDown = true
	return nil
}

func (d *fakeDeployer) Platform() config.Platform { return config.PlatformLocalBinary }

func (d *fakeDeployer) EndpointURL() string { return d.url }

// fakeTarget serves the minimal Prometheus API surface the runner touches.
func fakeTarget(t *testing.T, version string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/status/buildinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"version":"` + version + `"}}`))
	})
	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1700000000,"1"]}]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// sanityOnly returns a config with only the sanity suite enabled and short
// windows everywhere.
func sanityOnly() *config.TestConfig {
	cfg := config.Default()
	cfg.Tests.Sanity.Enabled = true
	cfg.Tests.Sanity.Timeout = "10s"
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.TestConfig, d deploy.Deployer) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, WithDeployer(d))
	require.NoError(t, err)
	return r
}

func TestRunSanityPasses(t *testing.T) {
	srv := fakeTarget(t, "2.53.0")
	d := &fakeDeployer{url: srv.URL}

	r := newTestRunner(t, sanityOnly(), d)
	suite, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, r.State())
	assert.Equal(t, StatusPassed, suite.Status)
	assert.Equal(t, "2.53.0", suite.TargetVersion)
	assert.Equal(t, srv.URL, suite.TargetURL)
	assert.True(t, d.tornDown, "teardown must run after a successful suite")

	result, ok := suite.ResultFor(config.TestSanity)
	require.True(t, ok)
	assert.Equal(t, StatusPassed, result.Status)
	assert.NotEmpty(t, result.Observations)
}

func TestRunDeployFailureSkipsTestsAndTearsDown(t *testing.T) {
	d := &fakeDeployer{deployErr: errors.New("no cluster")}

	r := newTestRunner(t, sanityOnly(), d)
	suite, err := r.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, StatusError, suite.Status)
	assert.Contains(t, suite.Error, "no cluster")
	assert.True(t, d.tornDown, "teardown must run even when deploy fails")

	result, ok := suite.ResultFor(config.TestSanity)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, result.Status)
}

func TestRunVersionMismatch(t *testing.T) {
	srv := fakeTarget(t, "2.40.0")
	d := &fakeDeployer{url: srv.URL}

	cfg := sanityOnly()
	cfg.Target.Version = "2.53.0"

	r := newTestRunner(t, cfg, d)
	suite, err := r.Run(context.Background())
	require.Error(t, err)

	var mismatch *VersionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "2.53.0", mismatch.Expected)
	assert.Equal(t, StatusError, suite.Status)
	assert.True(t, d.tornDown)
}

func TestRunFailFastSkipsRemaining(t *testing.T) {
	// The target answers health but every sanity endpoint with 500, so
	// sanity fails and fail-fast must skip integration.
	mux := http.NewServeMux()
	mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := sanityOnly()
	cfg.Tests.Sanity.Endpoints = []string{"/api/v1/status/flags"}
	cfg.Tests.Integration.Enabled = true
	cfg.Runner.FailFast = true

	r := newTestRunner(t, cfg, &fakeDeployer{url: srv.URL})
	suite, err := r.Run(context.Background())
	require.NoError(t, err)

	sanity, ok := suite.ResultFor(config.TestSanity)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, sanity.Status)

	integration, ok := suite.ResultFor(config.TestIntegration)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, integration.Status)
	assert.Contains(t, integration.Message, "fail-fast")

	assert.Equal(t, StatusFailed, suite.Status)
}

func TestRunThresholdViolationFailsTest(t *testing.T) {
	srv := fakeTarget(t, "2.53.0")

	cfg := sanityOnly()
	table := threshold.NewTable([]config.ThresholdEntry{
		{
			TestType:  config.TestSanity,
			Metric:    "endpoints_probed",
			Direction: config.UpperBound,
			Value:     1, // default sanity config probes three endpoints
		},
	})

	r, err := NewRunner(cfg, WithDeployer(&fakeDeployer{url: srv.URL}), WithThresholds(table))
	require.NoError(t, err)

	suite, err := r.Run(context.Background())
	require.NoError(t, err)

	result, ok := suite.ResultFor(config.TestSanity)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Message, "endpoints_probed")
}

func TestRunUnsupportedTypeIsSkipped(t *testing.T) {
	srv := fakeTarget(t, "2.53.0")

	cfg := sanityOnly()
	cfg.Tests.Sanity.Enabled = false
	cfg.Tests.Scalability.Enabled = true
	cfg.Tests.Scalability.Timeout = "10s"

	// fakeDeployer does not implement deploy.Scaler.
	r := newTestRunner(t, cfg, &fakeDeployer{url: srv.URL})
	suite, err := r.Run(context.Background())
	require.NoError(t, err)

	result, ok := suite.ResultFor(config.TestScalability)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, StatusSkipped, suite.Status, "a skipped-only suite aggregates to skipped")
}

func TestRunParallelSharedSafeTypes(t *testing.T) {
	srv := fakeTarget(t, "2.53.0")

	cfg := sanityOnly()
	cfg.Tests.Integration.Enabled = true
	cfg.Tests.Integration.Timeout = "10s"
	cfg.Tests.Security.Enabled = true
	cfg.Tests.Security.Timeout = "10s"
	cfg.Tests.Security.ExpectAuth = false
	cfg.Runner.Parallel = true
	cfg.Runner.MaxParallel = 2

	r := newTestRunner(t, cfg, &fakeDeployer{url: srv.URL})
	suite, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, suite.Results, 3)

	// Results stay in canonical order regardless of completion order.
	assert.Equal(t, config.TestSanity, suite.Results[0].Type)
	assert.Equal(t, config.TestIntegration, suite.Results[1].Type)
	assert.Equal(t, config.TestSecurity, suite.Results[2].Type)
}

func TestRunnerTimeoutsFromEnv(t *testing.T) {
	t.Setenv(config.EnvRequestTimeout, "7s")
	t.Setenv(config.EnvMaxParallel, "5")

	cfg := sanityOnly()
	cfg.Runner.RequestTimeout = ""

	r := newTestRunner(t, cfg, &fakeDeployer{url: "http://127.0.0.1:9"})
	assert.Equal(t, 7*time.Second, r.timeouts.RequestTimeout)
	assert.Equal(t, 5, r.timeouts.MaxParallel)

	// The default client factory picks up the overridden request timeout.
	c, err := r.newClient("http://127.0.0.1:9")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, c.Timeout())
}

func TestRunnerConfigTimeoutBeatsEnv(t *testing.T) {
	t.Setenv(config.EnvRequestTimeout, "7s")

	cfg := sanityOnly()
	cfg.Runner.RequestTimeout = "3s"

	r := newTestRunner(t, cfg, &fakeDeployer{url: "http://127.0.0.1:9"})
	c, err := r.newClient("http://127.0.0.1:9")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, c.Timeout())
}

func TestVerifyUnreachableTarget(t *testing.T) {
	d := &fakeDeployer{url: "http://127.0.0.1:1"}

	r := newTestRunner(t, sanityOnly(), d)
	suite, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, suite.Status)
	assert.True(t, d.tornDown)
}
