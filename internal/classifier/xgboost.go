// SPDX-License-Identifier: MIT
package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// XGBoost evaluates a gbtree booster saved with save_model("*.json").
type XGBoost struct {
	objective   string
	numClass    int // Output groups; 1 for binary:logistic.
	numFeature  int
	names       []string
	baseMargin  []float64 // Per output group.
	trees       []xgbTree
	treeClasses []int
}

type xgbTree struct {
	left, right []int32
	split       []int32
	cond        []float32 // Split threshold, or leaf value.
	defaultLeft []bool
}

// xgbDocument mirrors the parts of the XGBoost JSON schema that inference
// needs.
type xgbDocument struct {
	Learner struct {
		FeatureNames    []string `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				TreeInfo []int     `json:"tree_info"`
				Trees    []xgbJSON `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbJSON struct {
	LeftChildren    []int32   `json:"left_children"`
	RightChildren   []int32   `json:"right_children"`
	SplitIndices    []int32   `json:"split_indices"`
	SplitConditions []float32 `json:"split_conditions"`
	DefaultLeft     flags     `json:"default_left"`
}

// flags accepts both the boolean and the 0/1 encodings of default_left.
type flags []bool

func (f *flags) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, r := range raw {
		switch s := string(bytes.TrimSpace(r)); s {
		case "true", "1":
			out[i] = true
		case "false", "0":
		default:
			return fmt.Errorf("default_left[%d]: unexpected value %s", i, s)
		}
	}
	*f = out
	return nil
}

// ParseXGBoost decodes an XGBoost JSON model.
func ParseXGBoost(data []byte) (*XGBoost, error) {
	var doc xgbDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse xgboost model: %w", err)
	}
	l := doc.Learner
	if name := l.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("unsupported xgboost booster %q", name)
	}

	m := &XGBoost{objective: l.Objective.Name, names: l.FeatureNames}
	switch m.objective {
	case "multi:softprob", "multi:softmax":
		n, err := strconv.Atoi(l.LearnerModelParam.NumClass)
		if err != nil || n < 2 {
			return nil, fmt.Errorf("invalid num_class %q for %s", l.LearnerModelParam.NumClass, m.objective)
		}
		m.numClass = n
	case "binary:logistic":
		m.numClass = 1
	default:
		return nil, fmt.Errorf("unsupported xgboost objective %q", m.objective)
	}

	if nf := l.LearnerModelParam.NumFeature; nf != "" {
		n, err := strconv.Atoi(nf)
		if err != nil {
			return nil, fmt.Errorf("invalid num_feature %q", nf)
		}
		m.numFeature = n
	} else {
		m.numFeature = len(m.names)
	}
	if m.numFeature <= 0 {
		return nil, errors.New("xgboost model does not record its feature count")
	}
	if len(m.names) > 0 && len(m.names) != m.numFeature {
		return nil, fmt.Errorf("model lists %d feature names for %d features", len(m.names), m.numFeature)
	}

	base, err := parseBaseScore(l.LearnerModelParam.BaseScore, m.numClass)
	if err != nil {
		return nil, err
	}
	m.baseMargin = base
	if m.objective == "binary:logistic" {
		// Stored in probability space.
		m.baseMargin[0] = logit(m.baseMargin[0])
	}

	trees := l.GradientBooster.Model.Trees
	info := l.GradientBooster.Model.TreeInfo
	if len(info) != len(trees) {
		return nil, fmt.Errorf("tree_info has %d entries for %d trees", len(info), len(trees))
	}
	m.trees = make([]xgbTree, len(trees))
	m.treeClasses = make([]int, len(trees))
	for i, t := range trees {
		tree, err := t.compile(m.numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		if info[i] < 0 || info[i] >= m.numClass {
			return nil, fmt.Errorf("tree %d: class %d out of range", i, info[i])
		}
		m.trees[i] = tree
		m.treeClasses[i] = info[i]
	}
	return m, nil
}

func (t xgbJSON) compile(numFeature int) (xgbTree, error) {
	n := len(t.LeftChildren)
	if n == 0 {
		return xgbTree{}, errors.New("empty tree")
	}
	if len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n || len(t.DefaultLeft) != n {
		return xgbTree{}, errors.New("node arrays differ in length")
	}
	for i := range n {
		l, r := t.LeftChildren[i], t.RightChildren[i]
		if l == -1 {
			continue
		}
		if l <= int32(i) || r <= int32(i) || int(l) >= n || int(r) >= n {
			return xgbTree{}, fmt.Errorf("node %d has invalid children %d, %d", i, l, r)
		}
		if t.SplitIndices[i] < 0 || int(t.SplitIndices[i]) >= numFeature {
			return xgbTree{}, fmt.Errorf("node %d splits on feature %d of %d", i, t.SplitIndices[i], numFeature)
		}
	}
	return xgbTree{
		left:        t.LeftChildren,
		right:       t.RightChildren,
		split:       t.SplitIndices,
		cond:        t.SplitConditions,
		defaultLeft: t.DefaultLeft,
	}, nil
}

// parseBaseScore reads a scalar ("5E-1") or per-group ("[5E-1,5E-1]")
// base score.
func parseBaseScore(s string, groups int) ([]float64, error) {
	out := make([]float64, groups)
	s = strings.TrimSpace(s)
	if s == "" {
		for i := range out {
			out[i] = 0.5
		}
		return out, nil
	}
	if strings.HasPrefix(s, "[") {
		parts := strings.Split(strings.Trim(s, "[]"), ",")
		if len(parts) == 1 {
			s = parts[0]
		} else {
			if len(parts) != groups {
				return nil, fmt.Errorf("base_score has %d values for %d groups", len(parts), groups)
			}
			for i, p := range parts {
				v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					return nil, fmt.Errorf("invalid base_score %q: %w", s, err)
				}
				out[i] = v
			}
			return out, nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	for i := range out {
		out[i] = v
	}
	return out, nil
}

func logit(p float64) float64 {
	p = math.Min(math.Max(p, 1e-16), 1-1e-16)
	return math.Log(p / (1 - p))
}

// leaf walks the tree for x. Comparisons run in float32 like the booster.
func (t *xgbTree) leaf(x []float64) float32 {
	i := int32(0)
	for t.left[i] != -1 {
		v := x[t.split[i]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[i] {
				i = t.left[i]
			} else {
				i = t.right[i]
			}
		case float32(v) < t.cond[i]:
			i = t.left[i]
		default:
			i = t.right[i]
		}
	}
	return t.cond[i]
}

// Margins returns the raw per-group scores for x.
func (m *XGBoost) Margins(x []float64) ([]float64, error) {
	if err := m.checkWidth(x); err != nil {
		return nil, err
	}
	out := make([]float64, m.numClass)
	copy(out, m.baseMargin)
	for i := range m.trees {
		out[m.treeClasses[i]] += float64(m.trees[i].leaf(x))
	}
	return out, nil
}

// PredictProbabilities returns class probabilities for x.
func (m *XGBoost) PredictProbabilities(x []float64) ([]float64, error) {
	margins, err := m.Margins(x)
	if err != nil {
		return nil, err
	}
	if m.numClass == 1 {
		p := 1 / (1 + math.Exp(-margins[0]))
		return []float64{1 - p, p}, nil
	}
	return softmax(margins), nil
}

// Predict returns the most probable class code for x.
func (m *XGBoost) Predict(x []float64) (int, error) {
	p, err := m.PredictProbabilities(x)
	if err != nil {
		return 0, err
	}
	return argmax(p), nil
}

func (m *XGBoost) FeatureNames() []string { return m.names }
func (m *XGBoost) NumFeatures() int       { return m.numFeature }

// NumClasses returns the number of class codes; binary models have two.
func (m *XGBoost) NumClasses() int {
	if m.numClass == 1 {
		return 2
	}
	return m.numClass
}

// Objective returns the training objective name.
func (m *XGBoost) Objective() string { return m.objective }

func (m *XGBoost) checkWidth(x []float64) error {
	if len(x) != m.numFeature {
		return inputError(fmt.Sprintf("got %d features, model expects %d", len(x), m.numFeature), nil)
	}
	return nil
}

func softmax(z []float64) []float64 {
	peak := math.Inf(-1)
	for _, v := range z {
		peak = math.Max(peak, v)
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
