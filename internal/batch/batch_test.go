// SPDX-License-Identifier: MIT
package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"genre/internal/audio"
	"genre/internal/classifier"
	"genre/internal/features"
	"genre/internal/transport"
	"genre/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// thresholdModel predicts "loud" when the first feature is positive.
type thresholdModel struct{}

func (thresholdModel) Predict(x []float64) (int, error) {
	if x[0] > 0 {
		return 1, nil
	}
	return 0, nil
}

func (m thresholdModel) PredictProbabilities(x []float64) ([]float64, error) {
	if x[0] > 0 {
		return []float64{0.2, 0.8}, nil
	}
	return []float64{0.9, 0.1}, nil
}

func (thresholdModel) FeatureNames() []string { return features.Names[:] }
func (thresholdModel) NumClasses() int        { return 2 }

// pathExtractor derives the vector from the file name: "loud" files get a
// positive first feature, "bad" files fail.
type pathExtractor struct {
	calls atomic.Int32
	block chan struct{}
}

func (e *pathExtractor) ExtractFile(path string) (features.Vector, error) {
	e.calls.Add(1)
	if e.block != nil {
		<-e.block
	}
	var v features.Vector
	switch {
	case strings.Contains(path, "bad"):
		return v, &audio.DecodeError{Path: path, Format: audio.FormatWAV, Err: errors.New("truncated")}
	case strings.Contains(path, "loud"):
		v[0] = 1
	}
	return v, nil
}

func (e *pathExtractor) ExtractBytes(data []byte, _ audio.Format) (features.Vector, error) {
	return e.ExtractFile(string(data))
}

func testPipeline(t *testing.T, ex Extractor) Pipeline {
	t.Helper()
	a, err := classifier.NewAdapter(thresholdModel{}, classifier.Labels{"quiet", "loud"})
	require.NoError(t, err)
	return Pipeline{Extractor: ex, Adapter: a}
}

func TestRun(t *testing.T) {
	mock := &utils.MockTransport{}
	p := testPipeline(t, &pathExtractor{})
	files := []string{"a_loud.wav", "b.wav", "c_bad.wav", "d_loud.wav"}

	results, err := Run(context.Background(), p, files, Options{Workers: 2, Transport: mock, WithFeatures: true})
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, files[i], r.Source, "results keep input order")
	}
	assert.Equal(t, "loud", results[0].Label)
	assert.InDelta(t, 0.8, results[0].Probabilities.Top().P, 1e-12)
	assert.Equal(t, "quiet", results[1].Label)
	assert.Contains(t, results[2].Error, "truncated")
	assert.Empty(t, results[2].Label)
	require.NotNil(t, results[3].Features)
	assert.Equal(t, 1.0, results[3].Features[0])
	assert.NotEmpty(t, results[0].ID)

	assert.Len(t, mock.Messages(), 4)

	s := Summarize(results)
	assert.Equal(t, Summary{Total: 4, Failed: 1, Labels: map[string]int{"loud": 2, "quiet": 1}}, s)
}

func TestRunCancelled(t *testing.T) {
	ex := &pathExtractor{block: make(chan struct{})}
	p := testPipeline(t, ex)
	ctx, cancel := context.WithCancel(context.Background())

	files := make([]string, 10)
	for i := range files {
		files[i] = "x.wav"
	}

	done := make(chan struct{})
	var results []transport.Result
	var err error
	go func() {
		results, err = Run(ctx, p, files, Options{Workers: 1})
		close(done)
	}()

	// Let the first file start, then cancel and release it.
	require.Eventually(t, func() bool { return ex.calls.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	close(ex.block)
	<-done

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 10)
	assert.Equal(t, "quiet", results[0].Label)
	assert.Less(t, int(ex.calls.Load()), 10)
	assert.Equal(t, context.Canceled.Error(), results[9].Error)
}

func TestClassifyBytes(t *testing.T) {
	p := testPipeline(t, &pathExtractor{})
	r, err := p.ClassifyBytes("upload", []byte("loud"), "", false)
	require.NoError(t, err)
	assert.Equal(t, "upload", r.Source)
	assert.Equal(t, "loud", r.Label)
	assert.Nil(t, r.Features)

	r, err = p.ClassifyBytes("upload", []byte("bad"), "", false)
	var de *audio.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, err.Error(), r.Error)

	var v features.Vector
	v[0] = 3
	r, err = p.ClassifyVector("vec", v)
	require.NoError(t, err)
	assert.Equal(t, "loud", r.Label)
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.wav", "a.mp3", "notes.txt", "sub/c.flac"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}
	loose := filepath.Join(dir, "notes.txt")

	files, err := Expand([]string{dir, loose})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.mp3"),
		filepath.Join(dir, "b.wav"),
		filepath.Join(dir, "sub", "c.flac"),
		loose,
	}, files)

	_, err = Expand([]string{filepath.Join(dir, "missing")})
	var ioErr *audio.IOError
	assert.ErrorAs(t, err, &ioErr)
}
