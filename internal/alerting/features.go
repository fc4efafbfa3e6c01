// Package alerting scores incoming lab results against the external AKI
// classifier and drives page delivery for positive decisions.
package alerting

import (
	"sort"

	"github.com/renalert/renalert/internal/domain/patient"
)

// FeatureVector is the fixed-shape input to the classifier. Its layout is
// owned by the model artifact's training contract and must not change
// independently of the model.
type FeatureVector struct {
	Age              float64 `json:"age"`
	Sex              float64 `json:"sex"`
	CreatinineMean   float64 `json:"creatinine_mean"`
	CreatinineMedian float64 `json:"creatinine_median"`
	CreatinineMax    float64 `json:"creatinine_max"`
	CreatinineMin    float64 `json:"creatinine_min"`
	CreatinineLatest float64 `json:"creatinine_latest"`
}

// BuildFeatures derives the vector from the patient's demographics and
// full result history, most recent first. The history must be non-empty.
// Sex encodes male as 0 and everything else as 1; unknown age encodes as 0.
func BuildFeatures(p *patient.Patient, history []patient.LabResult) FeatureVector {
	vec := FeatureVector{Sex: 1}
	if p.Age != nil {
		vec.Age = float64(*p.Age)
	}
	if p.Sex != nil && *p.Sex == "M" {
		vec.Sex = 0
	}

	values := make([]float64, len(history))
	for i, r := range history {
		values[i] = r.Value
	}
	vec.CreatinineLatest = values[0]
	vec.CreatinineMean = mean(values)
	vec.CreatinineMedian = median(values)
	vec.CreatinineMax = max64(values)
	vec.CreatinineMin = min64(values)
	return vec
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func max64(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func min64(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
