// SPDX-License-Identifier: MIT
//
// Package classifier adapts pre-trained tree ensembles to the canonical
// feature vector. Models and label encoders are immutable after load and
// safe for concurrent use.
package classifier

// Model is a trained classifier over a fixed feature layout.
type Model interface {
	// Predict returns the class code for one feature row.
	Predict(x []float64) (int, error)
	// PredictProbabilities returns one probability per class code.
	PredictProbabilities(x []float64) ([]float64, error)
	// FeatureNames returns the training column order, or nil when the
	// artifact does not record it.
	FeatureNames() []string
	NumClasses() int
}

// featureCounter is implemented by models that know their input width even
// without feature names.
type featureCounter interface {
	NumFeatures() int
}

// LabelEncoder maps class codes to genre labels.
type LabelEncoder interface {
	Decode(code int) (string, error)
	Labels() []string
}

// Compile-time checks for interface implementations.
var _ Model = (*XGBoost)(nil)
var _ Model = (*Forest)(nil)
var _ featureCounter = (*XGBoost)(nil)
var _ featureCounter = (*Forest)(nil)
var _ LabelEncoder = Labels(nil)

func argmax(p []float64) int {
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return best
}
