// SPDX-License-Identifier: MIT
package classifier

import (
	"encoding/json"
	"fmt"
)

// Forest evaluates a random forest exported from scikit-learn tree arrays.
type Forest struct {
	names      []string
	numFeature int
	numClass   int
	trees      []forestTree
}

type forestTree struct {
	left, right []int
	feature     []int
	threshold   []float64
	dist        [][]float64 // Normalised class distribution per node.
}

// forestDocument is the export layout: one entry per estimator holding the
// arrays of its tree_ attribute.
type forestDocument struct {
	FeatureNames []string     `json:"feature_names"`
	NumFeatures  int          `json:"n_features"`
	NumClasses   int          `json:"n_classes"`
	Estimators   []forestJSON `json:"estimators"`
}

type forestJSON struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"` // [node][class]
}

// ParseForest decodes a forest JSON export.
func ParseForest(data []byte) (*Forest, error) {
	var doc forestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse forest model: %w", err)
	}
	if len(doc.Estimators) == 0 {
		return nil, fmt.Errorf("forest model has no estimators")
	}
	f := &Forest{names: doc.FeatureNames, numFeature: doc.NumFeatures, numClass: doc.NumClasses}
	if f.numFeature == 0 {
		f.numFeature = len(f.names)
	}
	if f.numFeature <= 0 {
		return nil, fmt.Errorf("forest model does not record its feature count")
	}
	if len(f.names) > 0 && len(f.names) != f.numFeature {
		return nil, fmt.Errorf("model lists %d feature names for %d features", len(f.names), f.numFeature)
	}
	if f.numClass == 0 && len(doc.Estimators[0].Value) > 0 {
		f.numClass = len(doc.Estimators[0].Value[0])
	}
	if f.numClass < 2 {
		return nil, fmt.Errorf("forest model has %d classes", f.numClass)
	}

	f.trees = make([]forestTree, len(doc.Estimators))
	for i, e := range doc.Estimators {
		t, err := e.compile(f.numFeature, f.numClass)
		if err != nil {
			return nil, fmt.Errorf("estimator %d: %w", i, err)
		}
		f.trees[i] = t
	}
	return f, nil
}

func (e forestJSON) compile(numFeature, numClass int) (forestTree, error) {
	n := len(e.ChildrenLeft)
	if n == 0 {
		return forestTree{}, fmt.Errorf("empty tree")
	}
	if len(e.ChildrenRight) != n || len(e.Feature) != n || len(e.Threshold) != n || len(e.Value) != n {
		return forestTree{}, fmt.Errorf("node arrays differ in length")
	}
	dist := make([][]float64, n)
	for i := range n {
		l, r := e.ChildrenLeft[i], e.ChildrenRight[i]
		if l == -1 {
			if len(e.Value[i]) != numClass {
				return forestTree{}, fmt.Errorf("leaf %d has %d class values, want %d", i, len(e.Value[i]), numClass)
			}
			dist[i] = normalise(e.Value[i])
			continue
		}
		if l <= i || r <= i || l >= n || r >= n {
			return forestTree{}, fmt.Errorf("node %d has invalid children %d, %d", i, l, r)
		}
		if e.Feature[i] < 0 || e.Feature[i] >= numFeature {
			return forestTree{}, fmt.Errorf("node %d splits on feature %d of %d", i, e.Feature[i], numFeature)
		}
	}
	return forestTree{
		left:      e.ChildrenLeft,
		right:     e.ChildrenRight,
		feature:   e.Feature,
		threshold: e.Threshold,
		dist:      dist,
	}, nil
}

func normalise(v []float64) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}

// leaf walks the tree for x. Inputs are rounded to float32 as scikit-learn
// does before comparing.
func (t *forestTree) leaf(x []float64) []float64 {
	i := 0
	for t.left[i] != -1 {
		if float64(float32(x[t.feature[i]])) <= t.threshold[i] {
			i = t.left[i]
		} else {
			i = t.right[i]
		}
	}
	return t.dist[i]
}

// PredictProbabilities averages the leaf distributions of every tree.
func (f *Forest) PredictProbabilities(x []float64) ([]float64, error) {
	if len(x) != f.numFeature {
		return nil, inputError(fmt.Sprintf("got %d features, model expects %d", len(x), f.numFeature), nil)
	}
	out := make([]float64, f.numClass)
	for i := range f.trees {
		for c, p := range f.trees[i].leaf(x) {
			out[c] += p
		}
	}
	scale := 1 / float64(len(f.trees))
	for c := range out {
		out[c] *= scale
	}
	return out, nil
}

// Predict returns the most probable class code for x.
func (f *Forest) Predict(x []float64) (int, error) {
	p, err := f.PredictProbabilities(x)
	if err != nil {
		return 0, err
	}
	return argmax(p), nil
}

func (f *Forest) FeatureNames() []string { return f.names }
func (f *Forest) NumFeatures() int       { return f.numFeature }
func (f *Forest) NumClasses() int        { return f.numClass }
