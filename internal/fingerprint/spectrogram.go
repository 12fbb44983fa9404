package fingerprint

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"

	"github.com/acousticlab/samplescan/internal/audio"
)

// Reference analysis parameters. The dense matcher favors frequency
// resolution; the landmark extractor trades it for speed.
const (
	DenseWindowSize    = 2048
	LandmarkWindowSize = 1024
	DefaultHopSize     = 512
)

// ErrTooShort is returned when the input holds fewer samples than one
// analysis window, i.e. the spectrogram would have zero frames. Callers
// treat it as "no data" rather than a batch-fatal error.
var ErrTooShort = errors.New("input shorter than one analysis window")

// Spectrogram is a bins x frames magnitude matrix. Frame t covers samples
// [t*hop, t*hop+window). Bin count is window/2; the mirrored upper half of
// the FFT output is discarded.
type Spectrogram struct {
	mag        *mat.Dense
	SampleRate int
	WindowSize int
	HopSize    int
}

// NewSpectrogram wraps an existing bins x frames magnitude matrix.
func NewSpectrogram(mag *mat.Dense, sampleRate, windowSize, hopSize int) *Spectrogram {
	return &Spectrogram{mag: mag, SampleRate: sampleRate, WindowSize: windowSize, HopSize: hopSize}
}

func (s *Spectrogram) Bins() int {
	r, _ := s.mag.Dims()
	return r
}

func (s *Spectrogram) Frames() int {
	_, c := s.mag.Dims()
	return c
}

// At returns the magnitude at (bin, frame).
func (s *Spectrogram) At(bin, frame int) float64 {
	return s.mag.At(bin, frame)
}

// Hann returns a Hann window of length n: 0.5 - 0.5*cos(2*pi*i/n).
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Build computes the windowed-FFT magnitude spectrogram of pcm. It is pure
// and safe to call from any worker goroutine.
func Build(pcm *audio.PCMBuffer, windowSize, hopSize int) (*Spectrogram, error) {
	if windowSize <= 0 || hopSize <= 0 {
		return nil, errors.New("window and hop sizes must be positive")
	}
	if len(pcm.Samples) < windowSize {
		return nil, ErrTooShort
	}

	nFrames := (len(pcm.Samples)-windowSize)/hopSize + 1
	nBins := windowSize / 2
	window := Hann(windowSize)

	magnitudes := mat.NewDense(nBins, nFrames, nil)
	frame := make([]float64, windowSize)
	for t := 0; t < nFrames; t++ {
		offset := t * hopSize
		for i := 0; i < windowSize; i++ {
			frame[i] = pcm.Samples[offset+i] * window[i]
		}
		spectrum := fft.FFTReal(frame)
		for bin := 0; bin < nBins; bin++ {
			magnitudes.Set(bin, t, cmplx.Abs(spectrum[bin]))
		}
	}

	return &Spectrogram{
		mag:        magnitudes,
		SampleRate: pcm.SampleRate,
		WindowSize: windowSize,
		HopSize:    hopSize,
	}, nil
}
