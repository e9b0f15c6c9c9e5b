// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "genre/internal/log"
)

var logger = applog.For("Loader")

// NativeRate passed as a sample rate keeps the source rate.
const NativeRate = 0

// Info describes a decoded source before resampling.
type Info struct {
	Format     Format
	SampleRate int
	Channels   int
	BitDepth   int // 0 for lossy formats.
	Samples    int // Mono samples at the source rate.
	Duration   time.Duration
}

// ReadFile reads a whole audio file, reporting failures as *IOError.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return data, nil
}

// Load decodes the file at path into a mono waveform at sampleRate. The
// format is taken from the extension, falling back to the content.
func Load(path string, sampleRate int) (Waveform, error) {
	data, err := ReadFile(path)
	if err != nil {
		return Waveform{}, err
	}
	w, err := DecodeBytes(data, FormatFromPath(path), sampleRate)
	var de *DecodeError
	if errors.As(err, &de) {
		de.Path = path
	}
	return w, err
}

// Decode reads r to the end and decodes it into a mono waveform at
// sampleRate. An empty format is detected from the content.
func Decode(r io.Reader, format Format, sampleRate int) (Waveform, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Waveform{}, &IOError{Path: "stream", Err: err}
	}
	return DecodeBytes(data, format, sampleRate)
}

// DecodeBytes decodes an in-memory file into a mono waveform at sampleRate.
func DecodeBytes(data []byte, format Format, sampleRate int) (Waveform, error) {
	p, format, err := decodePCM(data, format)
	if err != nil {
		return Waveform{}, err
	}
	if sampleRate == NativeRate || sampleRate == p.SampleRate {
		return Waveform{Samples: p.Samples, SampleRate: p.SampleRate}, nil
	}

	logger.Debugf("Resampling %s from %d Hz to %d Hz (%d samples)", format, p.SampleRate, sampleRate, len(p.Samples))
	samples, err := Resample(p.Samples, p.SampleRate, sampleRate)
	if err != nil {
		return Waveform{}, err
	}
	return Waveform{Samples: samples, SampleRate: sampleRate}, nil
}

// Probe decodes the file at path and reports its native properties.
func Probe(path string) (Info, error) {
	data, err := ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	p, format, err := decodePCM(data, FormatFromPath(path))
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return Info{}, err
	}
	w := Waveform{Samples: p.Samples, SampleRate: p.SampleRate}
	return Info{
		Format:     format,
		SampleRate: p.SampleRate,
		Channels:   p.Channels,
		BitDepth:   p.BitDepth,
		Samples:    len(p.Samples),
		Duration:   w.Duration(),
	}, nil
}

// WriteWAV stores w as 16-bit mono PCM.
func WriteWAV(path string, w Waveform) error {
	file, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}

	enc := wav.NewEncoder(file, w.SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           make([]int, len(w.Samples)),
		SourceBitDepth: 16,
	}
	for i, v := range w.Samples {
		s := int(v * 32768)
		buf.Data[i] = max(-32768, min(32767, s))
	}

	if err := enc.Write(buf); err != nil {
		file.Close()
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finalise wav header: %w", err)
	}
	return file.Close()
}
