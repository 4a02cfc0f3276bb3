package kserve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"
)

const testNamespace = "judges"

func newFakeClient(objects ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			isvcGVR: "InferenceServiceList",
		},
		objects...,
	)
}

func newFakeDiscovery(objects ...runtime.Object) *Discovery {
	return NewDiscoveryWithClient(newFakeClient(objects...), testNamespace, nil)
}

type isvcOption func(map[string]interface{})

func withModelLabel(model string) isvcOption {
	return func(obj map[string]interface{}) {
		labels := obj["metadata"].(map[string]interface{})["labels"].(map[string]interface{})
		labels[ModelLabel] = model
	}
}

func unlabelled() isvcOption {
	return func(obj map[string]interface{}) {
		delete(obj["metadata"].(map[string]interface{})["labels"].(map[string]interface{}), PartOfLabel)
	}
}

func makeISVC(name string, ready bool, opts ...isvcOption) *unstructured.Unstructured {
	condition := map[string]interface{}{"type": "Ready", "status": "True"}
	if !ready {
		condition = map[string]interface{}{
			"type":    "Ready",
			"status":  "False",
			"reason":  "Pending",
			"message": "waiting for model download",
		}
	}

	obj := map[string]interface{}{
		"apiVersion": "serving.kserve.io/v1beta1",
		"kind":       "InferenceService",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": testNamespace,
			"labels": map[string]interface{}{
				PartOfLabel: partOf,
			},
			"creationTimestamp": time.Now().Format(time.RFC3339),
		},
		"spec": map[string]interface{}{
			"predictor": map[string]interface{}{
				"model": map[string]interface{}{
					"modelFormat": map[string]interface{}{"name": "vLLM"},
					"storageUri":  "hf://org/" + name,
				},
			},
		},
		"status": map[string]interface{}{
			"conditions": []interface{}{condition},
			"url":        "http://" + name + "." + testNamespace + ".example.com",
		},
	}
	for _, opt := range opts {
		opt(obj)
	}
	return &unstructured.Unstructured{Object: obj}
}

func TestDiscoveryList(t *testing.T) {
	d := newFakeDiscovery(
		makeISVC("qwen", true, withModelLabel("Qwen/Qwen2.5-7B-Instruct")),
		makeISVC("mistral", false),
		makeISVC("other", true, unlabelled()),
	)

	endpoints, err := d.List(context.Background())
	require.NoError(t, err)
	require.Len(t, endpoints, 2)

	assert.Equal(t, "Qwen/Qwen2.5-7B-Instruct", endpoints[0].Model)
	assert.Equal(t, "qwen", endpoints[0].Name)
	assert.True(t, endpoints[0].Ready)
	assert.Equal(t, "http://qwen.judges.example.com/v1", endpoints[0].URL)
	assert.Equal(t, "hf://org/qwen", endpoints[0].StorageURI)

	assert.Equal(t, "mistral", endpoints[1].Model)
	assert.False(t, endpoints[1].Ready)
	assert.Empty(t, endpoints[1].URL)
	assert.Equal(t, "waiting for model download", endpoints[1].Message)
}

func TestDiscoveryListEmpty(t *testing.T) {
	endpoints, err := newFakeDiscovery().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, endpoints)
}

func TestDiscoveryResolve(t *testing.T) {
	d := newFakeDiscovery(
		makeISVC("qwen", true, withModelLabel("Qwen/Qwen2.5")),
		makeISVC("pending", false, withModelLabel("slow")),
		makeISVC("llama-3-8b", true, unlabelled()),
	)
	ctx := context.Background()

	ep, ok, err := d.Resolve(ctx, "Qwen/Qwen2.5")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://qwen.judges.example.com/v1", ep.URL)

	_, ok, err = d.Resolve(ctx, "slow")
	require.NoError(t, err)
	assert.False(t, ok)

	ep, ok, err = d.Resolve(ctx, "llama.3.8b")
	require.NoError(t, err)
	require.True(t, ok, "falls back to the InferenceService named after the model")
	assert.Equal(t, "llama.3.8b", ep.Model)

	_, ok, err = d.Resolve(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckAvailable(t *testing.T) {
	assert.NoError(t, newFakeDiscovery().CheckAvailable(context.Background()))

	client := newFakeClient()
	client.PrependReactor("list", "inferenceservices", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewNotFound(schema.GroupResource{Group: "serving.kserve.io", Resource: "inferenceservices"}, "")
	})

	err := NewDiscoveryWithClient(client, testNamespace, nil).CheckAvailable(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestResourceName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "gpt-4o", want: "gpt-4o"},
		{in: "Qwen/Qwen2.5-7B", want: "qwen-qwen2-5-7b"},
		{in: "deepseek:r1", want: "deepseek-r1"},
		{in: "7b-model", want: "m-7b-model"},
		{in: "model_", want: "model"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ResourceName(tt.in))
		})
	}
}

func TestServiceURL(t *testing.T) {
	assert.Equal(t, "http://gpt-4o.judges.svc.cluster.local/v1", ServiceURL("gpt-4o", "judges"))
}
