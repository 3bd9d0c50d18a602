// Package gvr centralizes the GroupVersionResources the framework touches
// through the dynamic Kubernetes client.
package gvr

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Prometheus Operator custom resources
var (
	// Prometheus is the GVR for Prometheus custom resources
	Prometheus = schema.GroupVersionResource{
		Group:    "monitoring.coreos.com",
		Version:  "v1",
		Resource: "prometheuses",
	}

	// ServiceMonitor is the GVR for ServiceMonitor custom resources
	ServiceMonitor = schema.GroupVersionResource{
		Group:    "monitoring.coreos.com",
		Version:  "v1",
		Resource: "servicemonitors",
	}

	// PrometheusRule is the GVR for PrometheusRule custom resources
	PrometheusRule = schema.GroupVersionResource{
		Group:    "monitoring.coreos.com",
		Version:  "v1",
		Resource: "prometheusrules",
	}
)

// Core resources
var (
	// Namespace is the GVR for Namespace resources
	Namespace = schema.GroupVersionResource{
		Group:    "",
		Version:  "v1",
		Resource: "namespaces",
	}

	// Secret is the GVR for Secret resources
	Secret = schema.GroupVersionResource{
		Group:    "",
		Version:  "v1",
		Resource: "secrets",
	}

	// ConfigMap is the GVR for ConfigMap resources
	ConfigMap = schema.GroupVersionResource{
		Group:    "",
		Version:  "v1",
		Resource: "configmaps",
	}

	// Pod is the GVR for Pod resources
	Pod = schema.GroupVersionResource{
		Group:    "",
		Version:  "v1",
		Resource: "pods",
	}

	// Service is the GVR for Service resources
	Service = schema.GroupVersionResource{
		Group:    "",
		Version:  "v1",
		Resource: "services",
	}

	// PersistentVolumeClaim is the GVR for PersistentVolumeClaim resources
	PersistentVolumeClaim = schema.GroupVersionResource{
		Group:    "",
		Version:  "v1",
		Resource: "persistentvolumeclaims",
	}
)

// Apps resources
var (
	// Deployment is the GVR for Deployment resources
	Deployment = schema.GroupVersionResource{
		Group:    "apps",
		Version:  "v1",
		Resource: "deployments",
	}

	// StatefulSet is the GVR for StatefulSet resources
	StatefulSet = schema.GroupVersionResource{
		Group:    "apps",
		Version:  "v1",
		Resource: "statefulsets",
	}
)

// OpenShift Route resources
var (
	// Route is the GVR for OpenShift Route resources
	Route = schema.GroupVersionResource{
		Group:    "route.openshift.io",
		Version:  "v1",
		Resource: "routes",
	}
)

// API Extensions
var (
	// CustomResourceDefinition is the GVR for CRD resources
	CustomResourceDefinition = schema.GroupVersionResource{
		Group:    "apiextensions.k8s.io",
		Version:  "v1",
		Resource: "customresourcedefinitions",
	}
)

// CRD names for prerequisite checks
const (
	// PrometheusCRD is the full name of the Prometheus CRD
	PrometheusCRD = "prometheuses.monitoring.coreos.com"

	// ServiceMonitorCRD is the full name of the ServiceMonitor CRD
	ServiceMonitorCRD = "servicemonitors.monitoring.coreos.com"
)

// ManagedCRs returns the custom resource GVRs the framework creates and
// tears down on managed platforms.
func ManagedCRs() []schema.GroupVersionResource {
	return []schema.GroupVersionResource{
		Prometheus,
		ServiceMonitor,
		PrometheusRule,
	}
}
