package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// PCMBuffer holds decoded mono samples together with the rate they were
// decoded at. Immutable once produced; downstream code reads the rate from
// here instead of assuming one.
type PCMBuffer struct {
	Samples    []float64
	SampleRate int
}

// Seconds returns the buffer duration in seconds.
func (b *PCMBuffer) Seconds() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Slice returns the sub-buffer covering [begin, end) in seconds, clamped to
// the available samples. The returned buffer shares backing storage.
func (b *PCMBuffer) Slice(begin, end float64) *PCMBuffer {
	start := int(begin * float64(b.SampleRate))
	stop := int(end * float64(b.SampleRate))
	if start < 0 {
		start = 0
	}
	if start > len(b.Samples) {
		start = len(b.Samples)
	}
	if stop > len(b.Samples) {
		stop = len(b.Samples)
	}
	if stop < start {
		stop = start
	}
	return &PCMBuffer{Samples: b.Samples[start:stop], SampleRate: b.SampleRate}
}

// ReadWAVRate reads just the header of a WAV file and returns the rate its
// samples were encoded at, without decoding any audio data.
func ReadWAVRate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if decoder.SampleRate == 0 {
		return 0, fmt.Errorf("%s: missing sample rate", path)
	}
	return int(decoder.SampleRate), nil
}

// ReadWAV decodes a PCM WAV file into mono, normalized float64 samples.
// Multi-channel audio is averaged down to one channel.
func ReadWAV(path string) (*PCMBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data from %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, errors.New("missing WAV format information")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float64(channels) * scale
	}

	return &PCMBuffer{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}
