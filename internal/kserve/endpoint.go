package kserve

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

const (
	// PartOfLabel selects the InferenceServices offered to judging runs.
	PartOfLabel = "app.kubernetes.io/part-of"
	partOf      = "llm-judge"
	// ModelLabel overrides the model id an InferenceService serves.
	ModelLabel = "llm-judge.giantswarm.io/model"
)

// Endpoint is a model served by an InferenceService.
type Endpoint struct {
	Model      string `json:"model"`
	Name       string `json:"name"`
	Ready      bool   `json:"ready"`
	URL        string `json:"url,omitempty"`
	StorageURI string `json:"storage_uri,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	Message    string `json:"message,omitempty"`
}

func fromUnstructured(obj *unstructured.Unstructured) (*InferenceService, error) {
	isvc := &InferenceService{}
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, isvc); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to InferenceService: %w", err)
	}
	return isvc, nil
}

func endpointFor(isvc *InferenceService, namespace string) Endpoint {
	ep := Endpoint{
		Model:     isvc.Name,
		Name:      isvc.Name,
		CreatedAt: isvc.CreationTimestamp.Format(time.RFC3339),
	}
	if m := isvc.Labels[ModelLabel]; m != "" {
		ep.Model = m
	}
	if pm := isvc.Spec.Predictor.Model; pm != nil && pm.StorageURI != nil {
		ep.StorageURI = *pm.StorageURI
	}

	if isvc.Status.IsReady() {
		ep.Ready = true
		ep.URL = openAIBaseURL(isvc, namespace)
		return ep
	}
	ep.Message = "pending"
	if c := isvc.Status.ReadyCondition(); c != nil && c.Message != "" {
		ep.Message = c.Message
	}
	return ep
}

// openAIBaseURL returns the OpenAI-compatible base URL of isvc.
func openAIBaseURL(isvc *InferenceService, namespace string) string {
	if isvc.Status.URL != "" {
		return strings.TrimRight(isvc.Status.URL, "/") + "/v1"
	}
	return ServiceURL(isvc.Name, namespace)
}

// ResourceName converts a model id to a valid Kubernetes resource name.
func ResourceName(model string) string {
	out := make([]byte, 0, len(model))
	for _, c := range strings.ToLower(model) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			out = append(out, byte(c))
		case c == '_', c == '.', c == '/', c == '@', c == ':':
			out = append(out, '-')
		}
	}
	if len(out) > 0 && (out[0] < 'a' || out[0] > 'z') {
		out = append([]byte("m-"), out...)
	}
	if len(out) > 63 {
		out = out[:63]
	}
	return strings.TrimRight(string(out), "-")
}

// ServiceURL returns the in-cluster OpenAI-compatible URL for an
// InferenceService named after model.
func ServiceURL(model, namespace string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local/v1", ResourceName(model), namespace)
}
