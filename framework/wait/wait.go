// Package wait provides bounded polling loops for readiness surfaces. Every
// wait has an explicit timeout and poll interval; there are no unbounded
// retries.
package wait

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"github.com/monitoring-qa/promtest/framework/client"
)

// ForTargetReady polls the target's health and readiness surfaces until both
// report success or the timeout expires. The returned error wraps the last
// probe failure so callers can classify it.
func ForTargetReady(ctx context.Context, c *client.Client, timeout, interval time.Duration, logger *slog.Logger) error {
	deadline := time.Now().Add(timeout)
	var lastErr error

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.Healthy(ctx); err != nil {
			lastErr = err
		} else if err := c.Ready(ctx); err != nil {
			lastErr = err
		} else {
			return nil
		}

		logger.Debug("target not ready yet", "target", c.BaseURL(), "err", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return fmt.Errorf("target %s not ready after %v: %w", c.BaseURL(), timeout, lastErr)
}

// ForDeploymentReady waits for a deployment's replicas to all become ready.
func ForDeploymentReady(ctx context.Context, cs kubernetes.Interface, namespace, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		deployment, err := cs.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err == nil &&
			deployment.Status.ReadyReplicas == deployment.Status.Replicas &&
			deployment.Status.ReadyReplicas > 0 {
			return nil
		}

		time.Sleep(2 * time.Second)
	}

	return fmt.Errorf("deployment %s/%s not ready after %v", namespace, name, timeout)
}

// ForStatefulSetReady waits for a statefulset to reach the desired ready
// replica count.
func ForStatefulSetReady(ctx context.Context, cs kubernetes.Interface, namespace, name string, replicas int32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		sts, err := cs.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err == nil && sts.Status.ReadyReplicas >= replicas {
			return nil
		}

		time.Sleep(5 * time.Second)
	}

	return fmt.Errorf("statefulset %s/%s did not reach %d ready replicas after %v", namespace, name, replicas, timeout)
}

// ForPodsReady waits for at least minReady pods matching the selector to be
// ready.
func ForPodsReady(ctx context.Context, cs kubernetes.Interface, namespace string, selector labels.Selector, minReady int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		pods, err := cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: selector.String(),
		})
		if err != nil {
			return fmt.Errorf("failed to list pods: %w", err)
		}

		ready := 0
		for _, pod := range pods.Items {
			if IsPodReady(&pod) {
				ready++
			}
		}
		if ready >= minReady && len(pods.Items) > 0 {
			return nil
		}

		time.Sleep(5 * time.Second)
	}

	return fmt.Errorf("pods not ready after %v (expected at least %d ready)", timeout, minReady)
}

// ForPodsGone waits for pods matching the selector to be fully terminated.
func ForPodsGone(ctx context.Context, cs kubernetes.Interface, namespace string, selector labels.Selector, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		pods, err := cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: selector.String(),
		})
		if err != nil {
			// Listing failing usually means the namespace is gone too.
			return nil
		}
		if len(pods.Items) == 0 {
			return nil
		}

		time.Sleep(5 * time.Second)
	}

	return fmt.Errorf("pods not terminated after %v", timeout)
}

// IsPodReady checks if a pod is running with a True Ready condition.
func IsPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}
