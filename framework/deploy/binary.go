package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/wait"
)

// prometheusConfig is the minimal configuration used for local targets. The
// self-scrape job guarantees queries have data to return.
const prometheusConfig = `global:
  scrape_interval: 5s
  evaluation_interval: 5s

scrape_configs:
  - job_name: prometheus
    static_configs:
      - targets: ['localhost:%d']
`

// binaryDeployer runs Prometheus as a local child process.
type binaryDeployer struct {
	cfg      *config.TestConfig
	logger   *slog.Logger
	timeouts *config.Timeouts

	cmd     *exec.Cmd
	workDir string
	port    int
	target  *Target
}

func newBinaryDeployer(cfg *config.TestConfig, logger *slog.Logger) *binaryDeployer {
	return &binaryDeployer{cfg: cfg, logger: logger, timeouts: config.TimeoutsFromEnv()}
}

func (d *binaryDeployer) Platform() config.Platform {
	return config.PlatformLocalBinary
}

func (d *binaryDeployer) Deploy(ctx context.Context) (*Target, error) {
	// Deploy is idempotent: a second call returns the running target.
	if d.target != nil {
		return d.target, nil
	}

	binPath := d.cfg.Tools.PrometheusPath
	if binPath == "" {
		binPath = "prometheus"
	}
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, NewDeploymentError(d.Platform(), "prerequisites",
			fmt.Errorf("%w: prometheus executable %q", ErrPrerequisite, binPath))
	}

	port, err := freePort()
	if err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}
	d.port = port

	workDir, err := os.MkdirTemp("", "promtest-prometheus-")
	if err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}
	d.workDir = workDir

	configPath := filepath.Join(workDir, "prometheus.yml")
	if err := os.WriteFile(configPath, []byte(fmt.Sprintf(prometheusConfig, port)), 0o644); err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}

	// Do not tie the child to ctx: the process must outlive the deploy
	// call and is stopped explicitly in Teardown.
	cmd := exec.Command(resolved,
		"--config.file="+configPath,
		"--storage.tsdb.path="+filepath.Join(workDir, "data"),
		"--web.listen-address=127.0.0.1:"+strconv.Itoa(port),
	)
	logPath := filepath.Join(workDir, "prometheus.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	d.logger.Info("starting prometheus process", "binary", resolved, "port", port, "log", logPath)
	if err := cmd.Start(); err != nil {
		return nil, NewDeploymentError(d.Platform(), "start", err)
	}
	d.cmd = cmd

	target := &Target{URL: fmt.Sprintf("http://127.0.0.1:%d", port)}
	if err := d.waitReady(ctx, target.URL); err != nil {
		return nil, NewDeploymentError(d.Platform(), "readiness", err)
	}
	d.target = target

	d.logger.Info("prometheus process ready", "url", target.URL, "pid", cmd.Process.Pid)
	return target, nil
}

// EndpointURL returns the running target's base URL, empty before Deploy.
func (d *binaryDeployer) EndpointURL() string {
	if d.target == nil {
		return ""
	}
	return d.target.URL
}

func (d *binaryDeployer) waitReady(ctx context.Context, url string) error {
	c, err := client.New(&client.Config{BaseURL: url, Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	timeout := config.DurationOr(d.cfg.Runner.ReadyTimeout, d.timeouts.ReadyTimeout)
	if err := wait.ForTargetReady(ctx, c, timeout, time.Second, d.logger); err != nil {
		return fmt.Errorf("%w: %v", ErrTargetNotReady, err)
	}
	return nil
}

func (d *binaryDeployer) Teardown(_ context.Context) error {
	d.target = nil
	if d.cmd == nil || d.cmd.Process == nil {
		return d.removeWorkDir()
	}

	d.logger.Info("stopping prometheus process", "pid", d.cmd.Process.Pid)
	if err := d.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		// Fall through to SIGKILL below.
		d.logger.Warn("SIGTERM failed", "err", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(d.timeouts.TeardownTimeout):
		d.logger.Warn("prometheus did not exit, killing", "pid", d.cmd.Process.Pid)
		if err := d.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("%w: failed to kill pid %d: %v", ErrTeardownIncomplete, d.cmd.Process.Pid, err)
		}
		<-done
	}
	d.cmd = nil

	return d.removeWorkDir()
}

func (d *binaryDeployer) removeWorkDir() error {
	if d.workDir == "" {
		return nil
	}
	if err := os.RemoveAll(d.workDir); err != nil {
		return fmt.Errorf("%w: %v", ErrTeardownIncomplete, err)
	}
	d.workDir = ""
	return nil
}

// freePort asks the kernel for an unused TCP port on the loopback interface.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
