package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/monitoring-qa/promtest/framework/client"
	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/gvr"
	"github.com/monitoring-qa/promtest/framework/wait"
)

const (
	// prometheusCRName is the name of the Prometheus custom resource the
	// framework creates.
	prometheusCRName = "promtest"

	// exposedServiceName is the service fronting the Prometheus replicas.
	exposedServiceName = "promtest-prometheus"

	// operatorNameLabel is set by the Prometheus operator on the pods it
	// manages, keyed by the owning CR name.
	operatorNameLabel = "operator.prometheus.io/name"

	// operatorAppLabel is the conventional app label on the Prometheus
	// operator's own deployment.
	operatorAppLabel = "app.kubernetes.io/name=prometheus-operator"

	crDeletionTimeout      = 2 * time.Minute
	crDeletionPollInterval = 5 * time.Second
)

// Scaler is implemented by deployers that can change the replica count of a
// running target.
type Scaler interface {
	Scale(ctx context.Context, replicas int) error
}

// trackedResource records a custom resource for teardown.
type trackedResource struct {
	gvr       schema.GroupVersionResource
	namespace string
	name      string
}

// kubernetesDeployer provisions Prometheus through the Prometheus operator
// on the managed platform variants. The variants share provisioning and
// differ only in how the endpoint is exposed.
type kubernetesDeployer struct {
	cfg      *config.TestConfig
	logger   *slog.Logger
	timeouts *config.Timeouts

	client        kubernetes.Interface
	dynamicClient dynamic.Interface

	namespace string
	target    *Target

	mu      sync.Mutex
	tracked []trackedResource
}

// NewClients builds typed and dynamic Kubernetes clients from the in-cluster
// configuration, falling back to the local kubeconfig.
func NewClients() (kubernetes.Interface, dynamic.Interface, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		restConfig, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get kubernetes config: %w", err)
		}
	}

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return cs, dyn, nil
}

func newKubernetesDeployer(cfg *config.TestConfig, logger *slog.Logger) (*kubernetesDeployer, error) {
	cs, dyn, err := NewClients()
	if err != nil {
		return nil, NewDeploymentError(cfg.Platform, "connect", err)
	}
	return &kubernetesDeployer{
		cfg:           cfg,
		logger:        logger,
		timeouts:      config.TimeoutsFromEnv(),
		client:        cs,
		dynamicClient: dyn,
		namespace:     cfg.Target.Namespace,
	}, nil
}

func (d *kubernetesDeployer) Platform() config.Platform {
	return d.cfg.Platform
}

// managedLabels returns the labels stamped on every created resource.
func (d *kubernetesDeployer) managedLabels() map[string]string {
	return map[string]string{
		LabelManagedBy: LabelManagedByValue,
		LabelInstance:  d.namespace,
	}
}

func (d *kubernetesDeployer) track(res schema.GroupVersionResource, namespace, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracked = append(d.tracked, trackedResource{gvr: res, namespace: namespace, name: name})
}

func (d *kubernetesDeployer) Deploy(ctx context.Context) (*Target, error) {
	// Deploy is idempotent: a second call returns the running target.
	if d.target != nil {
		return d.target, nil
	}

	readyTimeout := config.DurationOr(d.cfg.Runner.ReadyTimeout, d.timeouts.ReadyTimeout)

	if err := d.checkPrerequisites(ctx); err != nil {
		return nil, NewDeploymentError(d.Platform(), "prerequisites", err)
	}
	if err := d.verifyOperator(ctx, readyTimeout); err != nil {
		return nil, NewDeploymentError(d.Platform(), "prerequisites", err)
	}
	if err := d.ensureNamespace(ctx); err != nil {
		return nil, NewDeploymentError(d.Platform(), "namespace", err)
	}
	if err := d.createPrometheusCR(ctx, d.replicas()); err != nil {
		return nil, NewDeploymentError(d.Platform(), "provision", err)
	}

	selector := labels.SelectorFromSet(labels.Set{operatorNameLabel: prometheusCRName})
	if err := wait.ForPodsReady(ctx, d.client, d.namespace, selector, d.replicas(), readyTimeout); err != nil {
		return nil, NewDeploymentError(d.Platform(), "readiness", fmt.Errorf("%w: %v", ErrTargetNotReady, err))
	}

	url, err := d.expose(ctx)
	if err != nil {
		return nil, NewDeploymentError(d.Platform(), "expose", err)
	}

	target := &Target{URL: url, Namespace: d.namespace}
	if err := d.waitTargetReady(ctx, url, readyTimeout); err != nil {
		return nil, NewDeploymentError(d.Platform(), "readiness", err)
	}
	d.target = target

	d.logger.Info("prometheus deployed",
		"platform", d.Platform(),
		"namespace", d.namespace,
		"replicas", d.replicas(),
		"url", url)
	return target, nil
}

// replicas returns the desired replica count for the configured topology.
func (d *kubernetesDeployer) replicas() int {
	if d.cfg.DeploymentMode != config.ModeMultiReplica {
		return 1
	}
	if steps := d.cfg.Tests.Scalability.Replicas; len(steps) > 0 {
		return steps[0]
	}
	return 2
}

// EndpointURL returns the exposed target's base URL, empty before Deploy.
func (d *kubernetesDeployer) EndpointURL() string {
	if d.target == nil {
		return ""
	}
	return d.target.URL
}

// verifyOperator waits for the Prometheus operator deployment to be fully
// rolled out. Installations without the conventional app label are only
// logged; the CRD check already proved the operator is installed.
func (d *kubernetesDeployer) verifyOperator(ctx context.Context, timeout time.Duration) error {
	deployments, err := d.client.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		LabelSelector: operatorAppLabel,
	})
	if err != nil {
		return fmt.Errorf("failed to list operator deployments: %w", err)
	}
	if len(deployments.Items) == 0 {
		d.logger.Warn("prometheus operator deployment not found by label, skipping rollout check",
			"selector", operatorAppLabel)
		return nil
	}

	op := deployments.Items[0]
	d.logger.Info("waiting for prometheus operator", "namespace", op.Namespace, "name", op.Name)
	if err := wait.ForDeploymentReady(ctx, d.client, op.Namespace, op.Name, timeout); err != nil {
		return fmt.Errorf("%w: prometheus operator not ready: %v", ErrPrerequisite, err)
	}
	return nil
}

// checkPrerequisites verifies the Prometheus operator CRDs are installed.
func (d *kubernetesDeployer) checkPrerequisites(ctx context.Context) error {
	for _, crd := range []string{gvr.PrometheusCRD, gvr.ServiceMonitorCRD} {
		_, err := d.dynamicClient.Resource(gvr.CustomResourceDefinition).Get(ctx, crd, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("%w: CRD %s: %v", ErrPrerequisite, crd, err)
		}
	}
	return nil
}

func (d *kubernetesDeployer) ensureNamespace(ctx context.Context) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   d.namespace,
			Labels: d.managedLabels(),
		},
	}
	_, err := d.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create namespace %s: %w", d.namespace, err)
	}
	return nil
}

// createPrometheusCR builds the Prometheus custom resource and creates it
// through the dynamic client.
func (d *kubernetesDeployer) createPrometheusCR(ctx context.Context, replicas int) error {
	spec := map[string]interface{}{
		"replicas": int64(replicas),
		"serviceMonitorSelector": map[string]interface{}{
			"matchLabels": map[string]interface{}{LabelManagedBy: LabelManagedByValue},
		},
		"resources": map[string]interface{}{
			"requests": map[string]interface{}{"memory": "400Mi"},
		},
		"externalLabels": map[string]interface{}{
			"suite": d.cfg.Suite,
		},
	}
	if v := d.cfg.Target.Version; v != "" {
		spec["version"] = "v" + v
	}

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "monitoring.coreos.com/v1",
		"kind":       "Prometheus",
		"metadata": map[string]interface{}{
			"name":      prometheusCRName,
			"namespace": d.namespace,
			"labels":    toInterfaceMap(d.managedLabels()),
		},
		"spec": spec,
	}}

	_, err := d.dynamicClient.Resource(gvr.Prometheus).Namespace(d.namespace).Create(ctx, obj, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create Prometheus CR: %w", err)
	}
	// Track even when it already existed so teardown removes it.
	d.track(gvr.Prometheus, d.namespace, prometheusCRName)
	return nil
}

// Scale patches the Prometheus CR to the requested replica count and waits
// for the pods to settle.
func (d *kubernetesDeployer) Scale(ctx context.Context, replicas int) error {
	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
	_, err := d.dynamicClient.Resource(gvr.Prometheus).Namespace(d.namespace).Patch(
		ctx, prometheusCRName, types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("failed to scale Prometheus CR to %d replicas: %w", replicas, err)
	}

	d.logger.Info("scaling prometheus", "replicas", replicas)
	readyTimeout := config.DurationOr(d.cfg.Runner.ReadyTimeout, d.timeouts.ReadyTimeout)
	// The operator runs the replicas as a statefulset named after the CR.
	return wait.ForStatefulSetReady(ctx, d.client, d.namespace, "prometheus-"+prometheusCRName, int32(replicas), readyTimeout)
}

// KillPod deletes one running Prometheus pod. The operator replaces it;
// callers observe recovery behavior through the API client.
func (d *kubernetesDeployer) KillPod(ctx context.Context) (string, error) {
	selector := labels.SelectorFromSet(labels.Set{operatorNameLabel: prometheusCRName})
	pods, err := d.client.CoreV1().Pods(d.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list pods: %w", err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods found for %s in %s", prometheusCRName, d.namespace)
	}

	victim := pods.Items[0].Name
	d.logger.Info("killing pod", "pod", victim, "namespace", d.namespace)
	if err := d.client.CoreV1().Pods(d.namespace).Delete(ctx, victim, metav1.DeleteOptions{}); err != nil {
		return "", fmt.Errorf("failed to delete pod %s: %w", victim, err)
	}
	return victim, nil
}

func (d *kubernetesDeployer) waitTargetReady(ctx context.Context, url string, timeout time.Duration) error {
	c, err := client.New(&client.Config{
		BaseURL:     url,
		Timeout:     5 * time.Second,
		OrgID:       d.cfg.Target.OrgID,
		BearerToken: d.cfg.Credentials.BearerToken,
	})
	if err != nil {
		return err
	}
	if err := wait.ForTargetReady(ctx, c, timeout, 2*time.Second, d.logger); err != nil {
		return fmt.Errorf("%w: %v", ErrTargetNotReady, err)
	}
	return nil
}

func (d *kubernetesDeployer) Teardown(ctx context.Context) error {
	d.logger.Info("starting teardown", "namespace", d.namespace)
	d.target = nil

	// Delete CRs first so the operator can unwind its managed resources,
	// then remove the namespace, which cascades to everything else.
	if err := d.deleteTrackedCRs(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTeardownIncomplete, err)
	}
	if err := d.waitForCRsGone(ctx); err != nil {
		d.logger.Warn("some CRs may not have been fully deleted", "err", err)
	}

	// Give the operator a window to reap the replica pods before the
	// namespace delete cascades over them.
	selector := labels.SelectorFromSet(labels.Set{operatorNameLabel: prometheusCRName})
	if err := wait.ForPodsGone(ctx, d.client, d.namespace, selector, d.timeouts.TeardownTimeout); err != nil {
		d.logger.Warn("prometheus pods still terminating", "err", err)
	}

	err := d.client.CoreV1().Namespaces().Delete(ctx, d.namespace, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: failed to delete namespace %s: %v", ErrTeardownIncomplete, d.namespace, err)
	}

	d.logger.Info("teardown completed", "namespace", d.namespace)
	return nil
}

func (d *kubernetesDeployer) deleteTrackedCRs(ctx context.Context) error {
	d.mu.Lock()
	tracked := make([]trackedResource, len(d.tracked))
	copy(tracked, d.tracked)
	d.mu.Unlock()

	if len(tracked) == 0 {
		return CleanupManagedCRs(ctx, d.dynamicClient, d.namespace, d.logger)
	}

	for _, res := range tracked {
		d.logger.Debug("deleting CR", "resource", res.gvr.Resource, "name", res.name)
		err := d.dynamicClient.Resource(res.gvr).Namespace(res.namespace).Delete(ctx, res.name, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete %s/%s: %w", res.gvr.Resource, res.name, err)
		}
	}
	return nil
}

// waitForCRsGone polls until every tracked CR is deleted, removing
// finalizers from stuck resources after the deadline.
func (d *kubernetesDeployer) waitForCRsGone(ctx context.Context) error {
	d.mu.Lock()
	pending := make([]trackedResource, len(d.tracked))
	copy(pending, d.tracked)
	d.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	deadline := time.Now().Add(crDeletionTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		var still []trackedResource
		for _, res := range pending {
			_, err := d.dynamicClient.Resource(res.gvr).Namespace(res.namespace).Get(ctx, res.name, metav1.GetOptions{})
			if err == nil {
				still = append(still, res)
			} else if !apierrors.IsNotFound(err) {
				still = append(still, res)
			}
		}
		if len(still) == 0 {
			return nil
		}
		pending = still

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(crDeletionPollInterval):
		}
	}

	// Remove finalizers from whatever is stuck so namespace deletion can
	// proceed.
	for _, res := range pending {
		patch := []byte(`{"metadata":{"finalizers":null}}`)
		_, err := d.dynamicClient.Resource(res.gvr).Namespace(res.namespace).Patch(
			ctx, res.name, types.MergePatchType, patch, metav1.PatchOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			d.logger.Warn("failed to remove finalizers", "resource", res.gvr.Resource, "name", res.name, "err", err)
		}
	}
	return fmt.Errorf("timed out waiting for %d custom resources to be deleted", len(pending))
}

func toInterfaceMap(in map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
