package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/monitoring-qa/promtest/framework/concurrent"
	"github.com/monitoring-qa/promtest/framework/gvr"
)

// CleanupManagedCRs deletes every framework-managed custom resource in the
// namespace, found through the managed-by label. Used when no resource
// tracking survives, e.g. cleaning up after a crashed run.
func CleanupManagedCRs(ctx context.Context, dyn dynamic.Interface, namespace string, logger *slog.Logger) error {
	selector := fmt.Sprintf("%s=%s", LabelManagedBy, LabelManagedByValue)

	return concurrent.ForEachWithLimit(ctx, gvr.ManagedCRs(), 4, func(ctx context.Context, res schema.GroupVersionResource) error {
		list, err := dyn.Resource(res).Namespace(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: selector,
		})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to list %s: %w", res.Resource, err)
		}

		var errs []error
		for _, item := range list.Items {
			logger.Debug("deleting CR by label", "resource", res.Resource, "name", item.GetName())
			err := dyn.Resource(res).Namespace(namespace).Delete(ctx, item.GetName(), metav1.DeleteOptions{})
			if err != nil && !apierrors.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("failed to delete %s/%s: %w", res.Resource, item.GetName(), err))
			}
		}
		return errors.Join(errs...)
	})
}

// CleanupNamespace removes the managed CRs and then the namespace itself.
// It refuses to touch namespaces the framework did not create unless force
// is set.
func CleanupNamespace(ctx context.Context, cs kubernetes.Interface, dyn dynamic.Interface, namespace string, force bool, logger *slog.Logger) error {
	ns, err := cs.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			logger.Info("namespace already gone", "namespace", namespace)
			return nil
		}
		return fmt.Errorf("failed to read namespace %s: %w", namespace, err)
	}

	if !force && ns.Labels[LabelManagedBy] != LabelManagedByValue {
		return fmt.Errorf("namespace %s is not managed by this tool (use force to override)", namespace)
	}

	if err := CleanupManagedCRs(ctx, dyn, namespace, logger); err != nil {
		logger.Warn("failed to delete some custom resources", "err", err)
	}

	logger.Info("deleting namespace", "namespace", namespace)
	err = cs.CoreV1().Namespaces().Delete(ctx, namespace, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: failed to delete namespace %s: %v", ErrTeardownIncomplete, namespace, err)
	}
	return nil
}

// ListManagedNamespaces returns the namespaces carrying the framework's
// managed-by label.
func ListManagedNamespaces(ctx context.Context, cs kubernetes.Interface) ([]string, error) {
	list, err := cs.CoreV1().Namespaces().List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", LabelManagedBy, LabelManagedByValue),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}
