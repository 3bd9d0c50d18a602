// Package deploy provisions the Prometheus target under test on the
// supported platforms and tears it down afterwards. Each platform variant
// implements the same Deployer contract so the runner never branches on
// platform details.
package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/monitoring-qa/promtest/framework/config"
)

// Labels applied to every Kubernetes resource the framework creates, used
// for cleanup when resource tracking is unavailable.
const (
	LabelManagedBy      = "app.kubernetes.io/managed-by"
	LabelManagedByValue = "promtest"
	LabelInstance       = "promtest.io/instance"
)

// Target describes a deployed (or pre-existing) system under test.
type Target struct {
	// URL is the base URL the API client should use.
	URL string

	// Namespace is set for Kubernetes platforms.
	Namespace string
}

// Deployer provisions and removes the system under test. Implementations
// must make Teardown safe to call after a partial Deploy.
type Deployer interface {
	// Deploy provisions the target and blocks until it is ready or the
	// context is cancelled.
	Deploy(ctx context.Context) (*Target, error)

	// Teardown removes everything Deploy created. It is a no-op when
	// nothing was deployed.
	Teardown(ctx context.Context) error

	// Platform identifies the provisioning target.
	Platform() config.Platform

	// EndpointURL returns the base URL of the deployed target, empty
	// until Deploy has succeeded.
	EndpointURL() string
}

// FaultInjector is implemented by deployers that can inject faults into the
// running target.
type FaultInjector interface {
	// KillPod deletes one pod of the target and returns its name.
	KillPod(ctx context.Context) (string, error)
}

// New returns the deployer for the configured platform. When a target URL
// is supplied the returned deployer connects to it without provisioning
// anything.
func New(cfg *config.TestConfig, logger *slog.Logger) (Deployer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectOnly() {
		return &connectDeployer{cfg: cfg, logger: logger}, nil
	}

	switch cfg.Platform {
	case config.PlatformLocalBinary:
		return newBinaryDeployer(cfg, logger), nil
	case config.PlatformContainer:
		return newContainerDeployer(cfg, logger), nil
	case config.PlatformKind, config.PlatformEKS, config.PlatformGKE, config.PlatformOpenShift:
		return newKubernetesDeployer(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, cfg.Platform)
	}
}

// connectDeployer targets a pre-existing instance. Deploy verifies nothing
// and Teardown leaves the instance alone.
type connectDeployer struct {
	cfg    *config.TestConfig
	logger *slog.Logger
}

func (d *connectDeployer) Deploy(_ context.Context) (*Target, error) {
	d.logger.Info("using pre-existing target, skipping deployment", "url", d.cfg.Target.URL)
	return &Target{URL: d.cfg.Target.URL, Namespace: d.cfg.Target.Namespace}, nil
}

func (d *connectDeployer) Teardown(_ context.Context) error {
	return nil
}

func (d *connectDeployer) Platform() config.Platform {
	return d.cfg.Platform
}

func (d *connectDeployer) EndpointURL() string {
	return d.cfg.Target.URL
}
