// SPDX-License-Identifier: MIT
package classifier

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"genre/internal/features"
	applog "genre/internal/log"
)

var logger = applog.For("Classifier")

// Probability is one entry of a Distribution.
type Probability struct {
	Label string  `json:"label" msgpack:"label"`
	P     float64 `json:"probability" msgpack:"p"`
}

// Distribution lists the probability of every label in encoder order.
type Distribution []Probability

// Top returns the most probable entry; ties keep the earlier label.
func (d Distribution) Top() Probability {
	if len(d) == 0 {
		return Probability{}
	}
	best := d[0]
	for _, p := range d[1:] {
		if p.P > best.P {
			best = p
		}
	}
	return best
}

// Sorted returns a copy ordered by descending probability.
func (d Distribution) Sorted() Distribution {
	out := slices.Clone(d)
	slices.SortStableFunc(out, func(a, b Probability) int { return cmp.Compare(b.P, a.P) })
	return out
}

// Map returns the distribution keyed by label.
func (d Distribution) Map() map[string]float64 {
	m := make(map[string]float64, len(d))
	for _, p := range d {
		m[p.Label] = p.P
	}
	return m
}

// MarshalJSON encodes d as an object keyed by label in encoder order.
func (d Distribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(p.Label))
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(p.P, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Adapter joins a Model and a LabelEncoder after checking that the model
// consumes exactly the canonical feature layout.
type Adapter struct {
	model  Model
	labels LabelEncoder
}

// NewAdapter verifies the model's feature names and class count once.
// Models that record no feature names are accepted when their input width
// is the canonical count.
func NewAdapter(model Model, labels LabelEncoder) (*Adapter, error) {
	if model == nil || labels == nil {
		return nil, fmt.Errorf("classifier requires a model and a label encoder")
	}
	fc, counted := model.(featureCounter)
	if names := model.FeatureNames(); names != nil {
		if err := features.CheckNames(names); err != nil {
			return nil, inputError("model feature names differ from the canonical layout", err)
		}
	} else if !counted {
		return nil, inputError("model records neither feature names nor a feature count", nil)
	} else {
		logger.Warnf("Model records no feature names; assuming canonical order")
	}
	if counted && fc.NumFeatures() != features.Count {
		return nil, inputError(fmt.Sprintf("model expects %d features, want %d", fc.NumFeatures(), features.Count), nil)
	}

	if n, l := model.NumClasses(), len(labels.Labels()); n != l {
		return nil, fmt.Errorf("model has %d classes but label encoder has %d labels", n, l)
	}
	return &Adapter{model: model, labels: labels}, nil
}

// Labels returns the label order of every Distribution.
func (a *Adapter) Labels() []string { return a.labels.Labels() }

// Model returns the wrapped model.
func (a *Adapter) Model() Model { return a.model }

// Classify returns the predicted label for v.
func (a *Adapter) Classify(v features.Vector) (string, error) {
	code, err := a.model.Predict(v.Slice())
	if err != nil {
		return "", fmt.Errorf("prediction failed: %w", err)
	}
	return a.labels.Decode(code)
}

// Probabilities returns the label distribution for v. It sums to 1.
func (a *Adapter) Probabilities(v features.Vector) (Distribution, error) {
	p, err := a.model.PredictProbabilities(v.Slice())
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	labels := a.labels.Labels()
	if len(p) != len(labels) {
		return nil, fmt.Errorf("model returned %d probabilities for %d labels", len(p), len(labels))
	}

	var sum float64
	for _, x := range p {
		if math.IsNaN(x) || x < 0 {
			return nil, fmt.Errorf("model returned invalid probability %v", x)
		}
		sum += x
	}
	if sum <= 0 {
		return nil, fmt.Errorf("model returned an empty distribution")
	}
	out := make(Distribution, len(p))
	for i, x := range p {
		out[i] = Probability{Label: labels[i], P: x / sum}
	}
	return out, nil
}

// ClassifyNamed classifies an externally named vector. Names must equal the
// canonical layout in content and order.
func (a *Adapter) ClassifyNamed(n features.Named) (string, error) {
	v, err := namedVector(n)
	if err != nil {
		return "", err
	}
	return a.Classify(v)
}

// ProbabilitiesNamed is Probabilities for an externally named vector.
func (a *Adapter) ProbabilitiesNamed(n features.Named) (Distribution, error) {
	v, err := namedVector(n)
	if err != nil {
		return nil, err
	}
	return a.Probabilities(v)
}

func namedVector(n features.Named) (features.Vector, error) {
	v, err := n.Vector()
	if err != nil {
		return v, inputError("input features differ from the canonical layout", err)
	}
	return v, nil
}

// String renders d as label=probability pairs.
func (d Distribution) String() string {
	parts := make([]string, len(d))
	for i, p := range d {
		parts[i] = fmt.Sprintf("%s=%.4f", p.Label, p.P)
	}
	return strings.Join(parts, " ")
}
