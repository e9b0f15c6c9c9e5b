// SPDX-License-Identifier: MIT
package features

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"genre/internal/analysis"
	"genre/internal/audio"
	"genre/internal/config"
	"genre/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = config.DefaultSampleRate

func newTestExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	e, err := NewExtractor(config.NewPipeline(), opts...)
	require.NoError(t, err)
	return e
}

func sine(seconds float64, freq float64) audio.Waveform {
	n := int(seconds * testSampleRate)
	return audio.Waveform{
		Samples:    utils.GenerateSineWave(n, testSampleRate, freq, 0.5),
		SampleRate: testSampleRate,
	}
}

func TestNamesLayout(t *testing.T) {
	assert.Equal(t, 57, Count)
	assert.Equal(t, "chroma_stft_mean", Names[IdxChromaMean])
	assert.Equal(t, "perceptr_var", Names[IdxPerceptrMean+1])
	assert.Equal(t, "tempo", Names[IdxTempo])
	assert.Equal(t, "mfcc1_mean", Names[IdxMFCCMean(0)])
	assert.Equal(t, "mfcc20_var", Names[IdxMFCCMean(19)+1])

	seen := map[string]bool{}
	for _, n := range Names {
		assert.False(t, seen[n], "duplicate name %s", n)
		seen[n] = true
	}
}

func TestCheckNames(t *testing.T) {
	require.NoError(t, CheckNames(Names[:]))

	swapped := append([]string(nil), Names[:]...)
	swapped[3], swapped[4] = swapped[4], swapped[3]
	var me *MismatchError
	require.ErrorAs(t, CheckNames(swapped), &me)
	assert.Equal(t, 3, me.Position)
	assert.Equal(t, "spectral_centroid_mean", me.Got)
	assert.Equal(t, "rms_var", me.Want)

	require.ErrorAs(t, CheckNames(Names[:56]), &me)
	assert.Equal(t, -1, me.Position)
}

func TestVectorJSON(t *testing.T) {
	var v Vector
	for i := range v {
		v[i] = float64(i) + 0.5
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"chroma_stft_mean":0.5,"chroma_stft_var":1.5,`))

	var n Named
	require.NoError(t, json.Unmarshal(data, &n))
	assert.Equal(t, Names[:], n.Names)

	var back Vector
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, v, back)

	x, ok := back.Get("tempo")
	assert.True(t, ok)
	assert.Equal(t, 16.5, x)
	_, ok = back.Get("loudness")
	assert.False(t, ok)
}

func TestVectorJSONRejectsReordering(t *testing.T) {
	var v Vector
	data, err := json.Marshal(v)
	require.NoError(t, err)
	// Move rms_mean in front of chroma_stft_mean.
	reordered := strings.Replace(string(data), `"chroma_stft_mean":0,"chroma_stft_var":0,"rms_mean":0,`,
		`"rms_mean":0,"chroma_stft_mean":0,"chroma_stft_var":0,`, 1)
	require.NotEqual(t, string(data), reordered)

	var back Vector
	err = json.Unmarshal([]byte(reordered), &back)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 0, me.Position)
}

func TestNamedUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"array", `[1,2,3]`},
		{"duplicate", `{"tempo":1,"tempo":2}`},
		{"string value", `{"tempo":"fast"}`},
		{"truncated", `{"tempo":1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Named
			assert.Error(t, json.Unmarshal([]byte(tt.in), &n))
		})
	}
}

func TestMarshalRejectsNaN(t *testing.T) {
	var v Vector
	v[IdxTempo] = math.NaN()
	_, err := json.Marshal(v)
	assert.Error(t, err)
	assert.False(t, v.Finite())
}

func TestAggregate(t *testing.T) {
	s := &analysis.Series{
		Chroma:    [][]float64{{1, 0}, {0, 1}},
		RMS:       []float64{1, 3},
		Centroid:  []float64{2, 2, 2},
		Bandwidth: nil,
		Tempo:     123.0469,
		MFCC:      [][]float64{make([]float64, analysis.NMFCC), make([]float64, analysis.NMFCC)},
	}
	s.MFCC[0][0], s.MFCC[1][0] = -10, 10
	s.MFCC[0][19], s.MFCC[1][19] = 4, 4

	v := Aggregate(s)
	assert.InDelta(t, 0.5, v[IdxChromaMean], 1e-12)
	assert.InDelta(t, 0.25, v[IdxChromaMean+1], 1e-12)
	assert.InDelta(t, 2.0, v[IdxRMSMean], 1e-12)
	assert.InDelta(t, 1.0, v[IdxRMSMean+1], 1e-12, "population variance")
	assert.InDelta(t, 2.0, v[IdxCentroidMean], 1e-12)
	assert.Zero(t, v[IdxCentroidMean+1])
	assert.Zero(t, v[IdxBandwidthMean])
	assert.Zero(t, v[IdxHarmonyMean])
	assert.Equal(t, 123.0469, v[IdxTempo])
	assert.InDelta(t, 0.0, v[IdxMFCCMean(0)], 1e-12)
	assert.InDelta(t, 100.0, v[IdxMFCCMean(0)+1], 1e-12)
	assert.InDelta(t, 4.0, v[IdxMFCCMean(19)], 1e-12)
	assert.True(t, v.Finite())
}

func TestExtractSine(t *testing.T) {
	e := newTestExtractor(t)
	w := sine(3, 440)
	orig := append([]float32(nil), w.Samples...)

	v, err := e.Extract(w)
	require.NoError(t, err)
	assert.True(t, v.Finite())
	assert.InDelta(t, 440.0, v[IdxCentroidMean], 50.0)
	assert.InDelta(t, 2*440.0/testSampleRate, v[IdxZCRMean], 0.005)
	assert.InDelta(t, 0.5/math.Sqrt2, v[IdxRMSMean], 0.02)
	assert.Equal(t, orig, w.Samples, "input must not be modified")

	again, err := e.Extract(w)
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestExtractSilence(t *testing.T) {
	e := newTestExtractor(t)
	v, err := e.Extract(audio.Waveform{Samples: make([]float32, 2*testSampleRate), SampleRate: testSampleRate})
	require.NoError(t, err)
	assert.True(t, v.Finite())
	for _, idx := range []int{IdxRMSMean, IdxZCRMean, IdxCentroidMean, IdxBandwidthMean, IdxRolloffMean, IdxTempo} {
		assert.Zero(t, v[idx], Names[idx])
	}
}

func TestExtractDegenerate(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract(audio.Waveform{SampleRate: testSampleRate})
	var de *DegenerateInputError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrEmptyWaveform)

	_, err = e.Extract(audio.Waveform{Samples: make([]float32, 100)})
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrSampleRate)
	assert.Zero(t, de.SampleRate)
	assert.Equal(t, testSampleRate, de.Want)
}

func TestExtractResamplesForeignRate(t *testing.T) {
	e := newTestExtractor(t)
	const rate = 44100
	w := audio.Waveform{
		Samples:    utils.GenerateSineWave(3*rate, rate, 440, 0.5),
		SampleRate: rate,
	}
	orig := slices.Clone(w.Samples)

	got, err := e.Extract(w)
	require.NoError(t, err)
	want, err := e.Extract(sine(3, 440))
	require.NoError(t, err)

	assert.True(t, got.Finite())
	assert.InDelta(t, want[IdxCentroidMean], got[IdxCentroidMean], 20.0)
	assert.InDelta(t, want[IdxZCRMean], got[IdxZCRMean], 0.002)
	assert.InDelta(t, want[IdxRMSMean], got[IdxRMSMean], 0.01)
	assert.Equal(t, orig, w.Samples, "input must not be modified")
}

func TestExtractCopyInvariance(t *testing.T) {
	e := newTestExtractor(t)
	w := sine(2, 330)

	v, err := e.Extract(w)
	require.NoError(t, err)

	copied, err := e.Extract(audio.Waveform{Samples: slices.Clone(w.Samples), SampleRate: w.SampleRate})
	require.NoError(t, err)
	assert.Equal(t, v, copied)

	var wg sync.WaitGroup
	results := make([]Vector, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.Extract(w)
		}()
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, v, results[i])
	}
}

func TestNewExtractorRejectsConfig(t *testing.T) {
	cfg := config.NewPipeline()
	cfg.HopLength = 0
	_, err := NewExtractor(cfg)
	assert.Error(t, err)
}

type memCache struct {
	mu   sync.Mutex
	m    map[string]Vector
	hits int
}

func (c *memCache) Get(key string) (Vector, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Put(key string, v Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = v
	return nil
}

func TestExtractFileUsesCache(t *testing.T) {
	cache := &memCache{m: map[string]Vector{}}
	e := newTestExtractor(t, WithCache(cache))

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, audio.WriteWAV(path, sine(1, 330)))

	first, err := e.ExtractFile(path)
	require.NoError(t, err)
	assert.Len(t, cache.m, 1)
	assert.Zero(t, cache.hits)

	second, err := e.ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.hits)

	v, n, err := e.ExtractWithLength(path)
	require.NoError(t, err)
	assert.Equal(t, testSampleRate, n)
	assert.Equal(t, first, v)
}

func TestExtractFileErrors(t *testing.T) {
	e := newTestExtractor(t)
	_, err := e.ExtractFile(filepath.Join(t.TempDir(), "missing.wav"))
	var ioErr *audio.IOError
	assert.ErrorAs(t, err, &ioErr)

	_, err = e.ExtractBytes([]byte("not audio"), "")
	var de *audio.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestCacheKey(t *testing.T) {
	cfg := config.NewPipeline()
	a := CacheKey([]byte("abc"), cfg)
	assert.Len(t, a, 64)
	assert.Equal(t, a, CacheKey([]byte("abc"), cfg))
	assert.NotEqual(t, a, CacheKey([]byte("abd"), cfg))

	cfg.HopLength = 256
	assert.NotEqual(t, a, CacheKey([]byte("abc"), cfg))
}

func TestCSVRoundTrip(t *testing.T) {
	var v Vector
	for i := range v {
		v[i] = float64(i) / 7
	}
	rows := []Row{
		{Filename: "blues.00000.wav", Length: 661794, Vector: v, Label: "blues"},
		{Filename: "jazz.00001.wav", Length: 661500, Vector: Vector{}, Label: "jazz"},
	}

	var buf bytes.Buffer
	w := NewRowWriter(&buf)
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Flush())

	header, _, _ := strings.Cut(buf.String(), "\n")
	assert.True(t, strings.HasPrefix(header, "filename,length,chroma_stft_mean,"))
	assert.True(t, strings.HasSuffix(header, "mfcc20_var,label"))

	got, err := ReadRows(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadRowsErrors(t *testing.T) {
	header := strings.Join(Header(), ",")
	values := strings.Repeat("0,", Count)

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"short header", "filename,length,tempo\n"},
		{"bad order", strings.Replace(header, "rms_mean,rms_var", "rms_var,rms_mean", 1) + "\n"},
		{"bad number", header + "\na.wav,10," + strings.Repeat("0,", Count-1) + "x,rock\n"},
		{"bad length", header + "\na.wav,ten," + values + "rock\n"},
		{"missing field", header + "\na.wav,10,0,rock\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRows(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}

	// The label column is optional.
	noLabel := strings.Join(Header()[:Count+2], ",") + "\na.wav,10," + strings.TrimSuffix(values, ",") + "\n"
	rows, err := ReadRows(strings.NewReader(noLabel))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Label)
}

func BenchmarkExtract(b *testing.B) {
	e, err := NewExtractor(config.NewPipeline())
	if err != nil {
		b.Fatal(err)
	}
	w := sine(5, 440)
	for b.Loop() {
		if _, err := e.Extract(w); err != nil {
			b.Fatal(err)
		}
	}
}
