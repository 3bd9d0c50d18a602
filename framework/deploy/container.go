package deploy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/wait"
)

// defaultPrometheusImage is used when no version is pinned in the
// configuration.
const defaultPrometheusImage = "prom/prometheus"

// containerDeployer runs Prometheus in a local container through the
// configured container runtime CLI (docker or podman).
type containerDeployer struct {
	cfg      *config.TestConfig
	logger   *slog.Logger
	timeouts *config.Timeouts

	runtime       string
	containerName string
	workDir       string
	port          int
	target        *Target
}

func newContainerDeployer(cfg *config.TestConfig, logger *slog.Logger) *containerDeployer {
	runtime := cfg.Tools.ContainerRuntime
	if runtime == "" {
		runtime = "docker"
	}
	return &containerDeployer{cfg: cfg, logger: logger, runtime: runtime, timeouts: config.TimeoutsFromEnv()}
}

func (d *containerDeployer) Platform() config.Platform {
	return config.PlatformContainer
}

func (d *containerDeployer) image() string {
	if v := d.cfg.Target.Version; v != "" {
		return defaultPrometheusImage + ":v" + strings.TrimPrefix(v, "v")
	}
	return defaultPrometheusImage + ":latest"
}

func (d *containerDeployer) Deploy(ctx context.Context) (*Target, error) {
	// Deploy is idempotent: a second call returns the running target.
	if d.target != nil {
		return d.target, nil
	}

	if _, err := exec.LookPath(d.runtime); err != nil {
		return nil, NewDeploymentError(d.Platform(), "prerequisites",
			fmt.Errorf("%w: container runtime %q", ErrPrerequisite, d.runtime))
	}

	port, err := freePort()
	if err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}
	d.port = port

	workDir, err := os.MkdirTemp("", "promtest-container-")
	if err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}
	d.workDir = workDir

	configPath := filepath.Join(workDir, "prometheus.yml")
	if err := os.WriteFile(configPath, []byte(fmt.Sprintf(prometheusConfig, 9090)), 0o644); err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}

	d.containerName = "promtest-" + uuid.NewString()[:8]

	args := []string{
		"run", "--detach",
		"--name", d.containerName,
		"--label", LabelManagedBy + "=" + LabelManagedByValue,
		"--publish", fmt.Sprintf("127.0.0.1:%d:9090", port),
		"--volume", configPath + ":/etc/prometheus/prometheus.yml:ro",
		d.image(),
	}

	d.logger.Info("starting prometheus container",
		"runtime", d.runtime,
		"name", d.containerName,
		"image", d.image(),
		"port", port)

	if out, err := d.run(ctx, args...); err != nil {
		return nil, NewDeploymentError(d.Platform(), "start",
			fmt.Errorf("%s run failed: %w: %s", d.runtime, err, out))
	}

	target := &Target{URL: fmt.Sprintf("http://127.0.0.1:%d", port)}
	if err := d.waitReady(ctx, target.URL); err != nil {
		return nil, NewDeploymentError(d.Platform(), "readiness", err)
	}
	d.target = target

	d.logger.Info("prometheus container ready", "url", target.URL, "name", d.containerName)
	return target, nil
}

// EndpointURL returns the running target's base URL, empty before Deploy.
func (d *containerDeployer) EndpointURL() string {
	if d.target == nil {
		return ""
	}
	return d.target.URL
}

func (d *containerDeployer) waitReady(ctx context.Context, url string) error {
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

func (d *containerDeployer) Teardown(ctx context.Context) error {
	d.target = nil
	if d.containerName != "" {
		d.logger.Info("removing prometheus container", "name", d.containerName)
		if out, err := d.run(ctx, "rm", "--force", d.containerName); err != nil {
			return fmt.Errorf("%w: %s rm failed: %v: %s", ErrTeardownIncomplete, d.runtime, err, out)
		}
		d.containerName = ""
	}
	if d.workDir != "" {
		if err := os.RemoveAll(d.workDir); err != nil {
			return fmt.Errorf("%w: %v", ErrTeardownIncomplete, err)
		}
		d.workDir = ""
	}
	return nil
}

// CleanupManagedContainers force-removes every container carrying the
// managed-by label. Used to reclaim containers left behind by a crashed run.
func CleanupManagedContainers(ctx context.Context, runtime string, logger *slog.Logger) ([]string, error) {
	if runtime == "" {
		runtime = "docker"
	}
	if _, err := exec.LookPath(runtime); err != nil {
		return nil, fmt.Errorf("%w: container runtime %q", ErrPrerequisite, runtime)
	}

	list := exec.CommandContext(ctx, runtime, "ps", "--all", "--quiet",
		"--filter", "label="+LabelManagedBy+"="+LabelManagedByValue)
	out, err := list.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var removed []string
	for _, id := range strings.Fields(string(out)) {
		logger.Info("removing orphaned container", "id", id)
		rm := exec.CommandContext(ctx, runtime, "rm", "--force", id)
		if rmOut, err := rm.CombinedOutput(); err != nil {
			return removed, fmt.Errorf("%w: failed to remove container %s: %v: %s",
				ErrTeardownIncomplete, id, err, strings.TrimSpace(string(rmOut)))
		}
		removed = append(removed, id)
	}
	return removed, nil
}

func (d *containerDeployer) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.runtime, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}
