// Package audio provides minimal WAV encoding used by mock provider adapters
// and test fixtures that need a real, valid audio file on disk.
package audio

import (
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SamplesToWAV encodes float32 PCM samples (range [-1, 1]) as a mono 16-bit
// WAV byte slice, via go-audio/wav's encoder. The encoder requires an
// io.WriteSeeker, so encoding round-trips through a temp file rather than an
// in-memory buffer.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	ints := make([]int, len(samples))
	for i, s := range samples {
		clamped := max(float32(-1.0), min(float32(1.0), s))
		ints[i] = int(clamped * math.MaxInt16)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}

	f, err := os.CreateTemp("", "dubline-wav-*.wav")
	if err != nil {
		return nil
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return nil
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil
	}
	f.Close()

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil
	}
	return data
}

// ToneWAV synthesizes a pure sine tone of the given frequency and duration as a WAV
// byte slice. Used by the mock TTS adapter to produce a real, playable placeholder
// audio artifact instead of an empty or garbage file.
func ToneWAV(freqHz float64, duration float64, sampleRate int) []byte {
	n := int(duration * float64(sampleRate))
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*freqHz*t))
	}
	return SamplesToWAV(samples, sampleRate)
}

// SilenceWAV synthesizes silence of the given duration as a WAV byte slice.
func SilenceWAV(duration float64, sampleRate int) []byte {
	n := int(duration * float64(sampleRate))
	return SamplesToWAV(make([]float32, n), sampleRate)
}
