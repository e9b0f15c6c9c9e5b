// SPDX-License-Identifier: MIT
package classifier

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"genre/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLabels = Labels{"blues", "jazz", "rock"}

type node struct {
	left, right, split int32
	cond               float32
	defaultLeft        int
}

func tree(nodes ...node) map[string]any {
	t := map[string]any{}
	var l, r, s []int32
	var c []float32
	var d []int
	for _, n := range nodes {
		l, r, s, c, d = append(l, n.left), append(r, n.right), append(s, n.split), append(c, n.cond), append(d, n.defaultLeft)
	}
	t["left_children"], t["right_children"], t["split_indices"] = l, r, s
	t["split_conditions"], t["default_left"] = c, d
	return t
}

func leaf(v float32) node { return node{left: -1, right: -1, cond: v} }

// xgbFixture builds a three-class softprob model: class 0 favours slow tempo,
// class 1 favours high chroma mean, class 2 is constant.
func xgbFixture(names []string) []byte {
	doc := map[string]any{
		"learner": map[string]any{
			"feature_names": names,
			"gradient_booster": map[string]any{
				"name": "gbtree",
				"model": map[string]any{
					"tree_info": []int{0, 1, 2},
					"trees": []any{
						tree(node{left: 1, right: 2, split: features.IdxTempo, cond: 100, defaultLeft: 1}, leaf(1), leaf(-1)),
						tree(node{left: 1, right: 2, split: features.IdxChromaMean, cond: 0.5}, leaf(-0.5), leaf(2)),
						tree(leaf(0)),
					},
				},
			},
			"learner_model_param": map[string]any{
				"base_score":  "5E-1",
				"num_class":   "3",
				"num_feature": "57",
			},
			"objective": map[string]any{"name": "multi:softprob"},
		},
		"version": []int{2, 0, 3},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

func forestFixture() []byte {
	est := func(feature int, threshold float64, left, right []float64) map[string]any {
		return map[string]any{
			"children_left":  []int{1, -1, -1},
			"children_right": []int{2, -1, -1},
			"feature":        []int{feature, -2, -2},
			"threshold":      []float64{threshold, -2, -2},
			"value":          [][]float64{{10, 10, 10}, left, right},
		}
	}
	doc := map[string]any{
		"feature_names": features.Names[:],
		"n_features":    features.Count,
		"n_classes":     3,
		"estimators": []any{
			est(features.IdxTempo, 100, []float64{8, 2, 0}, []float64{0, 2, 8}),
			est(features.IdxRMSMean, 0.1, []float64{5, 5, 0}, []float64{0, 0, 10}),
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	m, err := ParseXGBoost(xgbFixture(features.Names[:]))
	require.NoError(t, err)
	a, err := NewAdapter(m, testLabels)
	require.NoError(t, err)
	return a
}

func vec(tempo, chroma float64) features.Vector {
	var v features.Vector
	v[features.IdxTempo] = tempo
	v[features.IdxChromaMean] = chroma
	return v
}

func TestXGBoostMargins(t *testing.T) {
	m, err := ParseXGBoost(xgbFixture(features.Names[:]))
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumClasses())
	assert.Equal(t, "multi:softprob", m.Objective())

	tests := []struct {
		name  string
		tempo float64
		want  []float64
	}{
		{"slow", 80, []float64{1.5, 0, 0.5}},
		{"fast", 150, []float64{-0.5, 0, 0.5}},
		{"boundary goes right", 100, []float64{-0.5, 0, 0.5}},
		{"missing follows default", math.NaN(), []float64{1.5, 0, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Margins(vec(tt.tempo, 0.2).Slice())
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}

	p, err := m.PredictProbabilities(vec(150, 0.9).Slice())
	require.NoError(t, err)
	z := []float64{-0.5, 2.5, 0.5}
	sum := math.Exp(z[0]) + math.Exp(z[1]) + math.Exp(z[2])
	assert.InDelta(t, math.Exp(z[1])/sum, p[1], 1e-12)

	_, err = m.Predict(make([]float64, 3))
	assert.ErrorIs(t, err, ErrFeatureOrder)
}

func TestXGBoostBinary(t *testing.T) {
	doc := map[string]any{
		"learner": map[string]any{
			"gradient_booster": map[string]any{
				"name":  "gbtree",
				"model": map[string]any{"tree_info": []int{0}, "trees": []any{tree(leaf(0))}},
			},
			"learner_model_param": map[string]any{"base_score": "[2.5E-1]", "num_class": "0", "num_feature": "57"},
			"objective":           map[string]any{"name": "binary:logistic"},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	m, err := ParseXGBoost(data)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumClasses())
	assert.Nil(t, m.FeatureNames())
	p, err := m.PredictProbabilities(make([]float64, features.Count))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, p, 1e-12)
}

func TestParseXGBoostErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"dart", `{"learner":{"gradient_booster":{"name":"dart"}}}`},
		{"objective", `{"learner":{"gradient_booster":{"name":"gbtree"},"learner_model_param":{"num_feature":"57"},"objective":{"name":"reg:squarederror"}}}`},
		{"tree info", `{"learner":{"gradient_booster":{"name":"gbtree","model":{"tree_info":[0],"trees":[]}},"learner_model_param":{"num_class":"3","num_feature":"57"},"objective":{"name":"multi:softprob"}}}`},
		{"bad child", `{"learner":{"gradient_booster":{"name":"gbtree","model":{"tree_info":[0],"trees":[{"left_children":[0],"right_children":[0],"split_indices":[0],"split_conditions":[0],"default_left":[0]}]}},"learner_model_param":{"num_class":"3","num_feature":"57"},"objective":{"name":"multi:softprob"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseXGBoost([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseBaseScore(t *testing.T) {
	got, err := parseBaseScore("[1E-1,2E-1,3E-1]", 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, got, 1e-12)

	got, err = parseBaseScore("", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, got)

	_, err = parseBaseScore("[1,2]", 3)
	assert.Error(t, err)
}

func TestForest(t *testing.T) {
	f, err := ParseForest(forestFixture())
	require.NoError(t, err)
	assert.Equal(t, 3, f.NumClasses())

	var v features.Vector
	v[features.IdxTempo] = 90
	v[features.IdxRMSMean] = 0.05
	p, err := f.PredictProbabilities(v.Slice())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.65, 0.35, 0}, p, 1e-12)

	v[features.IdxTempo] = 100 // x <= threshold goes left
	code, err := f.Predict(v.Slice())
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	v[features.IdxTempo], v[features.IdxRMSMean] = 140, 0.2
	code, err = f.Predict(v.Slice())
	require.NoError(t, err)
	assert.Equal(t, 2, code)
}

func TestDetectModelFormat(t *testing.T) {
	f, err := DetectModelFormat(xgbFixture(nil))
	require.NoError(t, err)
	assert.Equal(t, FormatXGBoost, f)

	f, err = DetectModelFormat(forestFixture())
	require.NoError(t, err)
	assert.Equal(t, FormatForest, f)

	_, err = DetectModelFormat([]byte(`{"weights":[1,2]}`))
	assert.Error(t, err)
	_, err = DetectModelFormat([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestLoadModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forest.json")
	require.NoError(t, os.WriteFile(path, forestFixture(), 0o644))

	m, err := LoadModel(path, FormatAuto)
	require.NoError(t, err)
	assert.IsType(t, &Forest{}, m)

	_, err = LoadModel(path, FormatXGBoost)
	assert.Error(t, err, "forced format must not fall back")

	_, err = LoadModel(filepath.Join(dir, "missing.json"), "")
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := []struct {
		name    string
		file    string
		content string
		want    Labels
		wantErr bool
	}{
		{"yaml list", "l.yaml", "- blues\n- jazz\n- rock\n", testLabels, false},
		{"json list", "l.json", `["blues","jazz","rock"]`, testLabels, false},
		{"classes key", "l.yml", "classes: [blues, jazz, rock]\n", testLabels, false},
		{"text", "l.txt", "blues\n\n# comment\njazz\nrock\n", testLabels, false},
		{"duplicate", "d.yaml", "[a, a]", nil, true},
		{"single", "s.yaml", "[a]", nil, true},
		{"wrong shape", "w.yaml", "labels: 3\n", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadLabels(write(tt.file, tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	label, err := testLabels.Decode(2)
	require.NoError(t, err)
	assert.Equal(t, "rock", label)
	_, err = testLabels.Decode(3)
	assert.Error(t, err)
}

func TestNewAdapterRejectsFeatureOrder(t *testing.T) {
	names := append([]string(nil), features.Names[:]...)
	names[1], names[2] = names[2], names[1]
	m, err := ParseXGBoost(xgbFixture(names))
	require.NoError(t, err)

	_, err = NewAdapter(m, testLabels)
	var mie *ModelInputError
	require.ErrorAs(t, err, &mie)
	assert.ErrorIs(t, err, ErrFeatureOrder)
	var mm *features.MismatchError
	require.ErrorAs(t, err, &mm)
	assert.Equal(t, 1, mm.Position)
}

func TestNewAdapterRejectsLabelCount(t *testing.T) {
	m, err := ParseXGBoost(xgbFixture(features.Names[:]))
	require.NoError(t, err)
	_, err = NewAdapter(m, Labels{"blues", "jazz"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrFeatureOrder))
}

func TestNewAdapterWithoutNames(t *testing.T) {
	m, err := ParseXGBoost(xgbFixture(nil))
	require.NoError(t, err)
	_, err = NewAdapter(m, testLabels)
	assert.NoError(t, err)
}

func TestAdapterClassify(t *testing.T) {
	a := newTestAdapter(t)

	label, err := a.Classify(vec(80, 0.2))
	require.NoError(t, err)
	assert.Equal(t, "blues", label)

	label, err = a.Classify(vec(150, 0.9))
	require.NoError(t, err)
	assert.Equal(t, "jazz", label)

	d, err := a.Probabilities(vec(150, 0.9))
	require.NoError(t, err)
	require.Len(t, d, 3)
	var sum float64
	for i, p := range d {
		assert.Equal(t, testLabels[i], p.Label)
		sum += p.P
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Equal(t, "jazz", d.Top().Label)
	assert.Equal(t, "jazz", d.Sorted()[0].Label)

	again, err := a.Probabilities(vec(150, 0.9))
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

// spyModel records whether it was invoked.
type spyModel struct {
	calls int
}

func (s *spyModel) Predict(x []float64) (int, error) { s.calls++; return 0, nil }
func (s *spyModel) PredictProbabilities(x []float64) ([]float64, error) {
	s.calls++
	return []float64{1, 1, 2}, nil
}
func (s *spyModel) FeatureNames() []string { return features.Names[:] }
func (s *spyModel) NumClasses() int        { return 3 }

func TestAdapterNamedTransposed(t *testing.T) {
	spy := &spyModel{}
	a, err := NewAdapter(spy, testLabels)
	require.NoError(t, err)

	n := features.Vector{}.Named()
	n.Names = append([]string(nil), n.Names...)
	n.Names[20], n.Names[21] = n.Names[21], n.Names[20]

	_, err = a.ClassifyNamed(n)
	var mie *ModelInputError
	require.ErrorAs(t, err, &mie)
	_, err = a.ProbabilitiesNamed(n)
	assert.ErrorIs(t, err, ErrFeatureOrder)
	assert.Zero(t, spy.calls, "model must not be invoked")

	d, err := a.ProbabilitiesNamed(features.Vector{}.Named())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d[2].P, 1e-12, "probabilities are renormalised")
	assert.Equal(t, 1, spy.calls)
}

func TestDistributionJSON(t *testing.T) {
	d := Distribution{{"rock", 0.25}, {"blues", 0.75}}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"rock":0.25,"blues":0.75}`, string(data))
	assert.Equal(t, "rock=0.2500 blues=0.7500", d.String())
	assert.Equal(t, map[string]float64{"rock": 0.25, "blues": 0.75}, d.Map())
}

func TestEvaluate(t *testing.T) {
	a := newTestAdapter(t)
	rows := []features.Row{
		{Filename: "a", Vector: vec(80, 0.2), Label: "blues"},
		{Filename: "b", Vector: vec(70, 0.1), Label: "blues"},
		{Filename: "c", Vector: vec(150, 0.9), Label: "jazz"},
		{Filename: "d", Vector: vec(60, 0.3), Label: "jazz"},
		{Filename: "e", Vector: vec(60, 0.3), Label: "polka"},
	}

	r, err := Evaluate(a, rows)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 1, r.Skipped)
	assert.InDelta(t, 0.75, r.Accuracy, 1e-12)
	assert.Equal(t, [][]int{{2, 0, 0}, {1, 1, 0}, {0, 0, 0}}, r.Confusion)

	blues := r.Classes[0]
	assert.InDelta(t, 2.0/3, blues.Precision, 1e-12)
	assert.InDelta(t, 1.0, blues.Recall, 1e-12)
	assert.InDelta(t, 0.8, blues.F1, 1e-12)
	assert.Equal(t, 2, blues.Support)

	jazz := r.Classes[1]
	assert.InDelta(t, 1.0, jazz.Precision, 1e-12)
	assert.InDelta(t, 0.5, jazz.Recall, 1e-12)

	_, err = Evaluate(a, rows[4:])
	assert.Error(t, err)
}

func BenchmarkXGBoostPredict(b *testing.B) {
	m, err := ParseXGBoost(xgbFixture(features.Names[:]))
	if err != nil {
		b.Fatal(err)
	}
	x := vec(120, 0.4).Slice()
	for b.Loop() {
		if _, err := m.PredictProbabilities(x); err != nil {
			b.Fatal(err)
		}
	}
}
