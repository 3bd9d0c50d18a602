package deploy

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/monitoring-qa/promtest/framework/config"
	"github.com/monitoring-qa/promtest/framework/gvr"
)

const lbProvisionTimeout = 4 * time.Minute

// expose publishes the Prometheus service outside the cluster and returns
// the external base URL. The mechanism depends on the platform: kind uses a
// NodePort reachable through the node address, EKS and GKE provision a cloud
// load balancer, and OpenShift creates a Route.
func (d *kubernetesDeployer) expose(ctx context.Context) (string, error) {
	switch d.cfg.Platform {
	case config.PlatformKind:
		svc, err := d.createService(ctx, corev1.ServiceTypeNodePort)
		if err != nil {
			return "", err
		}
		return d.nodePortURL(ctx, svc)
	case config.PlatformEKS, config.PlatformGKE:
		if _, err := d.createService(ctx, corev1.ServiceTypeLoadBalancer); err != nil {
			return "", err
		}
		return d.loadBalancerURL(ctx)
	case config.PlatformOpenShift:
		if _, err := d.createService(ctx, corev1.ServiceTypeClusterIP); err != nil {
			return "", err
		}
		return d.routeURL(ctx)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, d.cfg.Platform)
	}
}

// createService creates the fronting service selecting the operator-managed
// pods. With multiple replicas the service spreads requests across them.
func (d *kubernetesDeployer) createService(ctx context.Context, svcType corev1.ServiceType) (*corev1.Service, error) {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      exposedServiceName,
			Namespace: d.namespace,
			Labels:    d.managedLabels(),
		},
		Spec: corev1.ServiceSpec{
			Type:     svcType,
			Selector: map[string]string{operatorNameLabel: prometheusCRName},
			Ports: []corev1.ServicePort{
				{
					Name:       "web",
					Port:       9090,
					TargetPort: intstr.FromString("web"),
				},
			},
		},
	}

	created, err := d.client.CoreV1().Services(d.namespace).Create(ctx, svc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return d.client.CoreV1().Services(d.namespace).Get(ctx, exposedServiceName, metav1.GetOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return created, nil
}

// nodePortURL resolves the first schedulable node address and combines it
// with the allocated node port.
func (d *kubernetesDeployer) nodePortURL(ctx context.Context, svc *corev1.Service) (string, error) {
	if len(svc.Spec.Ports) == 0 || svc.Spec.Ports[0].NodePort == 0 {
		// Re-read: the node port is allocated asynchronously on some
		// API servers.
		refreshed, err := d.client.CoreV1().Services(d.namespace).Get(ctx, svc.Name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to read service node port: %w", err)
		}
		svc = refreshed
	}
	nodePort := svc.Spec.Ports[0].NodePort
	if nodePort == 0 {
		return "", fmt.Errorf("service %s has no node port allocated", svc.Name)
	}

	nodes, err := d.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil || len(nodes.Items) == 0 {
		return "", fmt.Errorf("failed to list nodes: %w", err)
	}

	addr := ""
	for _, a := range nodes.Items[0].Status.Addresses {
		if a.Type == corev1.NodeInternalIP {
			addr = a.Address
			break
		}
	}
	if addr == "" {
		return "", fmt.Errorf("node %s has no internal address", nodes.Items[0].Name)
	}

	return fmt.Sprintf("http://%s:%d", addr, nodePort), nil
}

// loadBalancerURL polls until the cloud load balancer reports an ingress
// address.
func (d *kubernetesDeployer) loadBalancerURL(ctx context.Context) (string, error) {
	deadline := time.Now().Add(lbProvisionTimeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		svc, err := d.client.CoreV1().Services(d.namespace).Get(ctx, exposedServiceName, metav1.GetOptions{})
		if err == nil {
			for _, ingress := range svc.Status.LoadBalancer.Ingress {
				if ingress.Hostname != "" {
					return fmt.Sprintf("http://%s:9090", ingress.Hostname), nil
				}
				if ingress.IP != "" {
					return fmt.Sprintf("http://%s:9090", ingress.IP), nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}

	return "", fmt.Errorf("load balancer for %s not provisioned after %v", exposedServiceName, lbProvisionTimeout)
}

// routeURL creates an OpenShift Route for the service and reads its host.
func (d *kubernetesDeployer) routeURL(ctx context.Context) (string, error) {
	route := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "route.openshift.io/v1",
		"kind":       "Route",
		"metadata": map[string]interface{}{
			"name":      exposedServiceName,
			"namespace": d.namespace,
			"labels":    toInterfaceMap(d.managedLabels()),
		},
		"spec": map[string]interface{}{
			"to": map[string]interface{}{
				"kind": "Service",
				"name": exposedServiceName,
			},
			"port": map[string]interface{}{
				"targetPort": "web",
			},
		},
	}}

	_, err := d.dynamicClient.Resource(gvr.Route).Namespace(d.namespace).Create(ctx, route, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("failed to create route: %w", err)
	}

	// The router assigns the host asynchronously.
	deadline := time.Now().Add(time.Minute)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		created, err := d.dynamicClient.Resource(gvr.Route).Namespace(d.namespace).Get(ctx, exposedServiceName, metav1.GetOptions{})
		if err == nil {
			host, found, _ := unstructured.NestedString(created.Object, "spec", "host")
			if found && host != "" {
				return "http://" + host, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return "", fmt.Errorf("route %s was not assigned a host", exposedServiceName)
}
