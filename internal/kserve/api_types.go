package kserve

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// InferenceService mirrors the parts of the serving.kserve.io/v1beta1
// InferenceService schema used for endpoint discovery.
type InferenceService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   InferenceServiceSpec   `json:"spec,omitempty"`
	Status InferenceServiceStatus `json:"status,omitempty"`
}

// InferenceServiceSpec is the desired state of an InferenceService.
type InferenceServiceSpec struct {
	Predictor PredictorSpec `json:"predictor"`
}

// PredictorSpec holds the served model.
type PredictorSpec struct {
	Model *PredictorModel `json:"model,omitempty"`
}

// PredictorModel describes the served model's format and storage.
type PredictorModel struct {
	ModelFormat ModelFormat `json:"modelFormat"`
	Runtime     *string     `json:"runtime,omitempty"`
	StorageURI  *string     `json:"storageUri,omitempty"`
}

// ModelFormat identifies the model format by name.
type ModelFormat struct {
	Name    string  `json:"name"`
	Version *string `json:"version,omitempty"`
}

// InferenceServiceStatus is the observed state of an InferenceService.
type InferenceServiceStatus struct {
	Conditions []StatusCondition `json:"conditions,omitempty"`
	// URL is assigned by the InferenceService controller.
	URL string `json:"url,omitempty"`
}

// StatusCondition is a Knative-style condition.
type StatusCondition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsReady reports whether the Ready condition is True.
func (s *InferenceServiceStatus) IsReady() bool {
	c := s.ReadyCondition()
	return c != nil && c.Status == "True"
}

// ReadyCondition returns the Ready condition, or nil.
func (s *InferenceServiceStatus) ReadyCondition() *StatusCondition {
	for i := range s.Conditions {
		if s.Conditions[i].Type == "Ready" {
			return &s.Conditions[i]
		}
	}
	return nil
}
