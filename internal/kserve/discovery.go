// Package kserve discovers answer and judge models served by KServe
// InferenceServices.
package kserve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var isvcGVR = schema.GroupVersionResource{
	Group:    "serving.kserve.io",
	Version:  "v1beta1",
	Resource: "inferenceservices",
}

// Discovery lists InferenceServices labelled as part of llm-judge.
type Discovery struct {
	client    dynamic.Interface
	namespace string
	logger    *slog.Logger
}

// NewDiscovery creates a Discovery from a kubeconfig or the in-cluster
// service account.
func NewDiscovery(namespace, kubeconfig string, inCluster bool, logger *slog.Logger) (*Discovery, error) {
	var (
		config *rest.Config
		err    error
	)
	if inCluster {
		config, err = rest.InClusterConfig()
	} else {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfig != "" {
			rules.ExplicitPath = kubeconfig
		}
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return NewDiscoveryWithClient(client, namespace, logger), nil
}

// NewDiscoveryWithClient creates a Discovery using client.
func NewDiscoveryWithClient(client dynamic.Interface, namespace string, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{client: client, namespace: namespace, logger: logger}
}

// CheckAvailable verifies that the InferenceService CRD is installed.
func (d *Discovery) CheckAvailable(ctx context.Context) error {
	_, err := d.client.Resource(isvcGVR).Namespace(d.namespace).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("KServe InferenceService CRD is not available in the cluster: %w", err)
	}
	return nil
}

// List returns every labelled endpoint sorted by model id.
func (d *Discovery) List(ctx context.Context) ([]Endpoint, error) {
	list, err := d.client.Resource(isvcGVR).Namespace(d.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: PartOfLabel + "=" + partOf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list InferenceServices: %w", err)
	}

	endpoints := make([]Endpoint, 0, len(list.Items))
	for i := range list.Items {
		isvc, err := fromUnstructured(&list.Items[i])
		if err != nil {
			d.logger.Warn("skipping InferenceService", "name", list.Items[i].GetName(), "error", err)
			continue
		}
		endpoints = append(endpoints, endpointFor(isvc, d.namespace))
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Model < endpoints[j].Model })
	return endpoints, nil
}

// Resolve returns the ready endpoint serving model. It returns false when
// no InferenceService serves it or it is not ready yet.
func (d *Discovery) Resolve(ctx context.Context, model string) (*Endpoint, bool, error) {
	endpoints, err := d.List(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range endpoints {
		if endpoints[i].Model == model && endpoints[i].Ready {
			return &endpoints[i], true, nil
		}
	}

	// fall back to an InferenceService named after the model
	item, err := d.client.Resource(isvcGVR).Namespace(d.namespace).Get(ctx, ResourceName(model), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get InferenceService for %s: %w", model, err)
	}
	isvc, err := fromUnstructured(item)
	if err != nil {
		return nil, false, err
	}
	ep := endpointFor(isvc, d.namespace)
	if !ep.Ready {
		return nil, false, nil
	}
	ep.Model = model
	return &ep, true, nil
}
