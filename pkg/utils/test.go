// SPDX-License-Identifier: MIT
//
// Package utils holds deterministic test signals and doubles shared by the
// package tests.
package utils

import (
	"math"
	"math/rand/v2"
	"sync"
)

// MockTransport implements transport.Transport for testing.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
}

// Send records the message instead of transmitting it.
func (m *MockTransport) Send(msg any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Messages returns a snapshot of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.Sent...)
}

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateSineWave returns size samples of a sine at frequency with the given
// peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateClickTrack returns short decaying noise bursts at bpm beats per
// minute, starting at sample 0.
func GenerateClickTrack(size int, sampleRate, bpm float64) []float32 {
	buffer := make([]float32, size)
	period := 60 * sampleRate / bpm
	clickLen := int(0.01 * sampleRate)
	rng := rand.New(rand.NewPCG(1, 2))
	for beat := 0; ; beat++ {
		start := int(math.Round(float64(beat) * period))
		if start >= size {
			break
		}
		for j := 0; j < clickLen && start+j < size; j++ {
			decay := math.Exp(-float64(j) / (0.002 * sampleRate))
			buffer[start+j] = float32(0.8 * decay * (2*rng.Float64() - 1))
		}
	}
	return buffer
}

// GenerateNoise returns uniform white noise in [-amplitude, amplitude). The
// same seed always yields the same samples.
func GenerateNoise(size int, amplitude float64, seed uint64) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = float32(amplitude * (2*rng.Float64() - 1))
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
