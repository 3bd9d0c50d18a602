package deploy

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/gvr"
)

func fakeDynamicClient() *dynfake.FakeDynamicClient {
	return dynfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			gvr.Prometheus:     "PrometheusList",
			gvr.ServiceMonitor: "ServiceMonitorList",
			gvr.PrometheusRule: "PrometheusRuleList",
		})
}

func TestNewReturnsConnectDeployerWhenURLSet(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformEKS
	cfg.Target.URL = "http://prometheus.example.com:9090"

	d, err := New(cfg, slog.Default())
	require.NoError(t, err)

	target, err := d.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://prometheus.example.com:9090", target.URL)
	assert.NoError(t, d.Teardown(context.Background()))
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.Platform("mainframe")

	_, err := New(cfg, slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestBinaryDeployerMissingExecutable(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformLocalBinary
	cfg.Tools.PrometheusPath = "/nonexistent/bin/prometheus"

	d := newBinaryDeployer(cfg, slog.Default())
	_, err := d.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrerequisite)
	assert.True(t, IsDeploymentError(err))

	var de *DeploymentError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "prerequisites", de.Phase)
	assert.Equal(t, config.PlatformLocalBinary, de.Platform)
}

func TestBinaryDeployerTeardownWithoutDeploy(t *testing.T) {
	d := newBinaryDeployer(config.Default(), slog.Default())
	assert.NoError(t, d.Teardown(context.Background()))
}

func TestBinaryDeployerDeployIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.PrometheusPath = "/nonexistent/bin/prometheus"

	d := newBinaryDeployer(cfg, slog.Default())
	running := &Target{URL: "http://127.0.0.1:19090"}
	d.target = running

	// A second Deploy returns the running target without re-provisioning;
	// the broken binary path proves prerequisites are never re-checked.
	target, err := d.Deploy(context.Background())
	require.NoError(t, err)
	assert.Same(t, running, target)
	assert.Equal(t, running.URL, d.EndpointURL())

	require.NoError(t, d.Teardown(context.Background()))
	assert.Empty(t, d.EndpointURL(), "teardown forgets the target")
}

func TestContainerDeployerDeployIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.ContainerRuntime = "/nonexistent/bin/docker"

	d := newContainerDeployer(cfg, slog.Default())
	running := &Target{URL: "http://127.0.0.1:19090"}
	d.target = running

	target, err := d.Deploy(context.Background())
	require.NoError(t, err)
	assert.Same(t, running, target)
	assert.Equal(t, running.URL, d.EndpointURL())
}

func TestDeployerEndpointURLBeforeDeploy(t *testing.T) {
	assert.Empty(t, newBinaryDeployer(config.Default(), slog.Default()).EndpointURL())
	assert.Empty(t, newContainerDeployer(config.Default(), slog.Default()).EndpointURL())
	assert.Empty(t, newTestKubernetesDeployer(config.Default()).EndpointURL())
}

func TestConnectDeployerEndpointURL(t *testing.T) {
	cfg := config.Default()
	cfg.Target.URL = "http://prometheus.example.com:9090"

	d, err := New(cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, cfg.Target.URL, d.EndpointURL())
}

func TestDeployerTimeoutsFromEnv(t *testing.T) {
	t.Setenv(config.EnvReadyTimeout, "42s")
	t.Setenv(config.EnvTeardownTimeout, "11s")

	d := newBinaryDeployer(config.Default(), slog.Default())
	assert.Equal(t, 42*time.Second, d.timeouts.ReadyTimeout)
	assert.Equal(t, 11*time.Second, d.timeouts.TeardownTimeout)

	c := newContainerDeployer(config.Default(), slog.Default())
	assert.Equal(t, 42*time.Second, c.timeouts.ReadyTimeout)
}

func TestContainerDeployerMissingRuntime(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformContainer
	cfg.Tools.ContainerRuntime = "/nonexistent/bin/docker"

	d := newContainerDeployer(cfg, slog.Default())
	_, err := d.Deploy(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrerequisite)
}

func TestContainerImageNaming(t *testing.T) {
	cfg := config.Default()
	d := newContainerDeployer(cfg, slog.Default())
	assert.Equal(t, "prom/prometheus:latest", d.image())

	cfg.Target.Version = "2.53.0"
	assert.Equal(t, "prom/prometheus:v2.53.0", d.image())

	cfg.Target.Version = "v2.53.0"
	assert.Equal(t, "prom/prometheus:v2.53.0", d.image())
}

func TestFreePort(t *testing.T) {
	p1, err := freePort()
	require.NoError(t, err)
	assert.Greater(t, p1, 0)
}

func newTestKubernetesDeployer(cfg *config.TestConfig) *kubernetesDeployer {
	return &kubernetesDeployer{
		cfg:           cfg,
		logger:        slog.Default(),
		timeouts:      config.DefaultTimeouts(),
		client:        k8sfake.NewSimpleClientset(),
		dynamicClient: fakeDynamicClient(),
		namespace:     cfg.Target.Namespace,
	}
}

func TestKubernetesReplicaSelection(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformEKS
	cfg.Target.Namespace = "perf-1"

	d := newTestKubernetesDeployer(cfg)
	assert.Equal(t, 1, d.replicas(), "single-instance runs one replica")

	cfg.DeploymentMode = config.ModeMultiReplica
	assert.Equal(t, 2, d.replicas(), "multi-replica defaults to two replicas")

	cfg.Tests.Scalability.Replicas = []int{3, 5, 7}
	assert.Equal(t, 3, d.replicas(), "first scalability step seeds the replica count")
}

func TestKubernetesEnsureNamespaceIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformGKE
	cfg.Target.Namespace = "perf-1"
	d := newTestKubernetesDeployer(cfg)

	ctx := context.Background()
	require.NoError(t, d.ensureNamespace(ctx))
	require.NoError(t, d.ensureNamespace(ctx))

	ns, err := d.client.CoreV1().Namespaces().Get(ctx, "perf-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, LabelManagedByValue, ns.Labels[LabelManagedBy])
}

func TestKubernetesCreateAndTeardownCR(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformKind
	cfg.Target.Namespace = "perf-1"
	cfg.Target.Version = "2.53.0"
	d := newTestKubernetesDeployer(cfg)

	ctx := context.Background()
	require.NoError(t, d.ensureNamespace(ctx))
	require.NoError(t, d.createPrometheusCR(ctx, 2))

	obj, err := d.dynamicClient.Resource(gvr.Prometheus).Namespace("perf-1").Get(ctx, prometheusCRName, metav1.GetOptions{})
	require.NoError(t, err)

	replicas, found, err := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), replicas)

	version, _, _ := unstructured.NestedString(obj.Object, "spec", "version")
	assert.Equal(t, "v2.53.0", version)

	require.NoError(t, d.Teardown(ctx))

	_, err = d.dynamicClient.Resource(gvr.Prometheus).Namespace("perf-1").Get(ctx, prometheusCRName, metav1.GetOptions{})
	assert.Error(t, err, "CR should be deleted by teardown")
}

func TestKubernetesCreateServiceSelectsOperatorPods(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformKind
	cfg.Target.Namespace = "perf-1"
	d := newTestKubernetesDeployer(cfg)

	svc, err := d.createService(context.Background(), corev1.ServiceTypeNodePort)
	require.NoError(t, err)
	assert.Equal(t, prometheusCRName, svc.Spec.Selector[operatorNameLabel])
	assert.Equal(t, corev1.ServiceTypeNodePort, svc.Spec.Type)
}

func TestKubernetesDeployIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformKind
	d := newTestKubernetesDeployer(cfg)

	running := &Target{URL: "http://127.0.0.1:30900", Namespace: cfg.Target.Namespace}
	d.target = running

	target, err := d.Deploy(context.Background())
	require.NoError(t, err)
	assert.Same(t, running, target)
	assert.Equal(t, running.URL, d.EndpointURL())

	require.NoError(t, d.Teardown(context.Background()))
	assert.Empty(t, d.EndpointURL(), "teardown forgets the target")
}

func TestKubernetesVerifyOperator(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformKind
	d := newTestKubernetesDeployer(cfg)

	d.client = k8sfake.NewSimpleClientset(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "prometheus-operator",
			Namespace: "operators",
			Labels:    map[string]string{"app.kubernetes.io/name": "prometheus-operator"},
		},
		Status: appsv1.DeploymentStatus{Replicas: 1, ReadyReplicas: 1},
	})
	assert.NoError(t, d.verifyOperator(context.Background(), time.Minute))
}

func TestKubernetesVerifyOperatorUnlabeledInstall(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformKind
	d := newTestKubernetesDeployer(cfg)

	// No deployment carries the conventional label; the rollout check is
	// skipped rather than failing the deploy.
	assert.NoError(t, d.verifyOperator(context.Background(), time.Minute))
}

func TestCleanupNamespaceRefusesUnmanaged(t *testing.T) {
	cs := k8sfake.NewSimpleClientset(&corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: "prod"},
	})

	err := CleanupNamespace(context.Background(), cs, fakeDynamicClient(), "prod", false, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not managed")
}

func TestCleanupNamespaceForce(t *testing.T) {
	cs := k8sfake.NewSimpleClientset(&corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: "prod"},
	})

	err := CleanupNamespace(context.Background(), cs, fakeDynamicClient(), "prod", true, slog.Default())
	require.NoError(t, err)

	_, getErr := cs.CoreV1().Namespaces().Get(context.Background(), "prod", metav1.GetOptions{})
	assert.Error(t, getErr)
}

func TestCleanupNamespaceAlreadyGone(t *testing.T) {
	cs := k8sfake.NewSimpleClientset()
	err := CleanupNamespace(context.Background(), cs, fakeDynamicClient(), "gone", false, slog.Default())
	assert.NoError(t, err)
}

func TestListManagedNamespaces(t *testing.T) {
	cs := k8sfake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
			Name:   "perf-1",
			Labels: map[string]string{LabelManagedBy: LabelManagedByValue},
		}},
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "kube-system"}},
	)

	names, err := ListManagedNamespaces(context.Background(), cs)
	require.NoError(t, err)
	assert.Equal(t, []string{"perf-1"}, names)
}
