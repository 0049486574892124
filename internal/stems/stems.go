// Package stems mixes multitrack stem recordings into a single mono WAV at a
// fixed sample rate.
package stems

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"rawbench/internal/logging"
)

// SampleRate is the rate every mix is written at.
const SampleRate = 44100

// WAV format tags accepted by ReadMono.
const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// Result summarises one mix.
type Result struct {
	Stems   int
	Samples int
	Peak    float64
}

// Clipped reports whether the summed signal exceeded full scale.
func (r Result) Clipped() bool {
	return r.Peak > 1
}

// MixFiles loads every stem, converts each to mono at SampleRate, truncates
// all of them to the shortest, sums them, and writes a 16-bit PCM WAV to out.
func MixFiles(ctx context.Context, paths []string, out string, logger *slog.Logger) (Result, error) {
	if len(paths) == 0 {
		return Result{}, errors.New("no stems to mix")
	}
	tracks := make([][]float64, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		samples, rate, err := ReadMono(path)
		if err != nil {
			return Result{}, fmt.Errorf("read stem %s: %w", path, err)
		}
		tracks = append(tracks, Resample(samples, rate, SampleRate))
	}

	mixed, peak := Mix(tracks)
	result := Result{Stems: len(paths), Samples: len(mixed), Peak: peak}
	if result.Clipped() {
		logging.WarnWithContext(logger, "mixed audio exceeds full scale", "mix_clipping",
			logging.String("output", out),
			logging.Any("peak", peak),
			logging.String(logging.FieldErrorHint, "samples are clipped when written"),
			logging.String(logging.FieldImpact, "mixture contains clipped samples"),
		)
	}
	if err := WriteWAV(out, mixed, SampleRate); err != nil {
		return result, err
	}
	return result, nil
}

// ReadMono decodes an integer PCM WAV file and averages its channels. Other
// encodings, IEEE float among them, are rejected.
func ReadMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}
	if format := dec.WavAudioFormat; format != formatPCM && format != formatExtensible {
		return nil, 0, fmt.Errorf("unsupported wav encoding (format tag %d), expected integer pcm", format)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode pcm: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, errors.New("wav file has no format")
	}
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	scale := math.Exp2(float64(bitDepth - 1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c]-offset) / scale
		}
		out[i] = sum / float64(channels)
	}
	return out, buf.Format.SampleRate, nil
}

// Resample converts samples from one rate to another with linear
// interpolation.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float64, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(i0)
		out[i] = samples[i0]*(1-frac) + samples[i0+1]*frac
	}
	return out
}

// Mix truncates tracks to the shortest one and sums them sample by sample.
// It returns the mixture and its absolute peak.
func Mix(tracks [][]float64) ([]float64, float64) {
	if len(tracks) == 0 {
		return nil, 0
	}
	length := len(tracks[0])
	for _, t := range tracks[1:] {
		length = min(length, len(t))
	}
	mixed := make([]float64, length)
	var peak float64
	for i := range mixed {
		var sum float64
		for _, t := range tracks {
			sum += t[i]
		}
		mixed[i] = sum
		peak = max(peak, math.Abs(sum))
	}
	return mixed, peak
}

// WriteWAV writes mono samples in [-1, 1] as 16-bit PCM. Values outside the
// range are clipped.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = quantize16(s)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

func quantize16(s float64) int {
	v := math.Round(s * 32767)
	return int(max(-32768, min(32767, v)))
}
