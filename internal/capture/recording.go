// SPDX-License-Identifier: MIT
//
// Package capture records short clips from a PortAudio input device for
// live classification.
package capture

import (
	"context"
	"fmt"
	"time"

	"genre/internal/audio"
	applog "genre/internal/log"

	"github.com/gordonklaus/portaudio"
)

var logger = applog.For("Capture")

// DefaultFramesPerBuffer is the blocking read size in frames.
const DefaultFramesPerBuffer = 1024

// Config selects the device and clip shape.
type Config struct {
	Device          int           // Device ID, or DefaultDevice.
	Duration        time.Duration // Clip length.
	Channels        int           // Input channels to open.
	SampleRate      int           // Output rate; 0 keeps the device rate.
	FramesPerBuffer int
	LowLatency      bool
}

// stream is the subset of *portaudio.Stream used for blocking capture.
type stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

var openStream = func(p portaudio.StreamParameters, buf []float32) (stream, error) {
	return portaudio.OpenStream(p, buf)
}

// Record captures cfg.Duration of audio and returns it as a mono waveform at
// cfg.SampleRate. It stops early with the context's error on cancellation.
func Record(ctx context.Context, cfg Config) (audio.Waveform, error) {
	if cfg.Channels <= 0 {
		return audio.Waveform{}, fmt.Errorf("capture channels must be positive, got %d", cfg.Channels)
	}
	if cfg.Duration <= 0 {
		return audio.Waveform{}, fmt.Errorf("capture duration must be positive, got %v", cfg.Duration)
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}

	if err := Initialize(); err != nil {
		return audio.Waveform{}, err
	}
	defer Terminate()

	device, err := InputDevice(cfg.Device)
	if err != nil {
		return audio.Waveform{}, err
	}
	rate := device.DefaultSampleRate
	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	buf := make([]float32, cfg.FramesPerBuffer*cfg.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  latency,
		},
		FramesPerBuffer: cfg.FramesPerBuffer,
		SampleRate:      rate,
	}
	s, err := openStream(params, buf)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("failed to open input stream: %w", err)
	}
	defer s.Close()

	if err := s.Start(); err != nil {
		return audio.Waveform{}, fmt.Errorf("failed to start input stream: %w", err)
	}
	defer s.Stop()

	want := int(cfg.Duration.Seconds() * rate)
	logger.Infof("Recording %v from %s at %.0f Hz", cfg.Duration, device.Name, rate)

	interleaved := make([]float32, 0, (want+cfg.FramesPerBuffer)*cfg.Channels)
	for len(interleaved) < want*cfg.Channels {
		if err := ctx.Err(); err != nil {
			return audio.Waveform{}, err
		}
		if err := s.Read(); err != nil {
			return audio.Waveform{}, fmt.Errorf("failed to read input stream: %w", err)
		}
		interleaved = append(interleaved, buf...)
	}
	interleaved = interleaved[:want*cfg.Channels]

	mono := audio.Downmix(interleaved, cfg.Channels)
	out := cfg.SampleRate
	if out <= 0 {
		out = int(rate)
	}
	samples, err := audio.Resample(mono, int(rate), out)
	if err != nil {
		return audio.Waveform{}, err
	}
	return audio.Waveform{Samples: samples, SampleRate: out}, nil
}
