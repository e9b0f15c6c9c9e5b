// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// pcm is a decoded stream before resampling.
type pcm struct {
	Samples    []float32 // Mono.
	SampleRate int
	Channels   int // Channel count of the source.
	BitDepth   int // 0 for lossy sources.
}

type decoder func(data []byte) (pcm, error)

var decoders = map[Format]decoder{
	FormatWAV:  decodeWAV,
	FormatMP3:  decodeMP3,
	FormatFLAC: decodeFLAC,
	FormatOGG:  decodeOGG,
}

// resolveFormat picks the decoder format: the hint when given, otherwise the
// content signature.
func resolveFormat(data []byte, hint Format) (Format, error) {
	if hint != "" {
		if _, ok := decoders[hint]; !ok {
			return hint, fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, hint)
		}
		return hint, nil
	}
	if f, ok := DetectFormat(data[:min(len(data), 16)]); ok {
		return f, nil
	}
	return "", ErrUnsupportedFormat
}

func decodePCM(data []byte, hint Format) (pcm, Format, error) {
	format, err := resolveFormat(data, hint)
	if err != nil {
		return pcm{}, format, &DecodeError{Format: format, Err: err}
	}
	out, err := decoders[format](data)
	if err != nil {
		return pcm{}, format, &DecodeError{Format: format, Err: err}
	}
	if out.SampleRate <= 0 {
		return pcm{}, format, &DecodeError{Format: format, Err: fmt.Errorf("invalid sample rate %d", out.SampleRate)}
	}
	return out, format, nil
}

func decodeWAV(data []byte) (pcm, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return pcm{}, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, err
	}
	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	if channels <= 0 || depth <= 0 {
		return pcm{}, fmt.Errorf("invalid wav format (%d channels, %d bits)", channels, depth)
	}
	return pcm{
		Samples:    Downmix(intToFloat(buf, depth), channels),
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   depth,
	}, nil
}

// intToFloat scales integer PCM of the given bit depth to [-1, 1).
func intToFloat(buf *goaudio.IntBuffer, depth int) []float32 {
	out := make([]float32, len(buf.Data))
	if depth == 8 {
		// 8-bit WAV is unsigned.
		for i, v := range buf.Data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := 1 / float32(int64(1)<<(depth-1))
	for i, v := range buf.Data {
		out[i] = float32(v) * scale
	}
	return out
}

func decodeMP3(data []byte) (pcm, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return pcm{}, err
	}
	// go-mp3 always emits 16-bit little-endian stereo.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return pcm{}, err
	}
	interleaved := make([]float32, len(raw)/2)
	for i := range interleaved {
		interleaved[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	return pcm{
		Samples:    Downmix(interleaved, 2),
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}

func decodeFLAC(data []byte) (pcm, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return pcm{}, err
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	depth := int(info.BitsPerSample)
	if channels <= 0 || depth <= 0 {
		return pcm{}, fmt.Errorf("invalid flac format (%d channels, %d bits)", channels, depth)
	}
	scale := 1 / float32(int64(1)<<(depth-1))
	chScale := scale / float32(channels)

	samples := make([]float32, 0, info.NSamples)
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return pcm{}, err
		}
		n := len(frame.Subframes[0].Samples)
		for i := range n {
			var sum float32
			for _, sub := range frame.Subframes {
				sum += float32(sub.Samples[i])
			}
			samples = append(samples, sum*chScale)
		}
	}
	return pcm{
		Samples:    samples,
		SampleRate: int(info.SampleRate),
		Channels:   channels,
		BitDepth:   depth,
	}, nil
}

func decodeOGG(data []byte) (pcm, error) {
	interleaved, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return pcm{}, err
	}
	return pcm{
		Samples:    Downmix(interleaved, format.Channels),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}, nil
}
