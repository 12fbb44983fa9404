package match

import (
	"fmt"
	"math"

	"github.com/acousticlab/samplescan/internal/audio"
	"github.com/acousticlab/samplescan/internal/fingerprint"
)

// DenseThreshold is the minimum cosine similarity accepted as a match.
const DenseThreshold = 0.5

// DenseMatcher slides the snippet spectrogram across every valid starting
// column of the track spectrogram and scores each alignment with cosine
// similarity over the flattened magnitudes. O(track frames x snippet
// frames x bins); correct but expensive, kept as the baseline the landmark
// matcher is checked against.
type DenseMatcher struct {
	WindowSize int
	HopSize    int
	Threshold  float64
}

func NewDense() *DenseMatcher {
	return &DenseMatcher{
		WindowSize: fingerprint.DenseWindowSize,
		HopSize:    fingerprint.DefaultHopSize,
		Threshold:  DenseThreshold,
	}
}

func (m *DenseMatcher) Name() string { return string(StrategyDense) }

// Fingerprint returns the spectrogram itself; the dense strategy adds no
// further transformation.
func (m *DenseMatcher) Fingerprint(pcm *audio.PCMBuffer) (Fingerprint, error) {
	return fingerprint.Build(pcm, m.WindowSize, m.HopSize)
}

func (m *DenseMatcher) Match(snippet, track Fingerprint) (*Result, error) {
	sn, ok := snippet.(*fingerprint.Spectrogram)
	if !ok {
		return nil, fmt.Errorf("dense matcher: snippet fingerprint is %T, want spectrogram", snippet)
	}
	tr, ok := track.(*fingerprint.Spectrogram)
	if !ok {
		return nil, fmt.Errorf("dense matcher: track fingerprint is %T, want spectrogram", track)
	}
	if sn.Bins() != tr.Bins() {
		return nil, fmt.Errorf("dense matcher: bin count mismatch: %d vs %d", sn.Bins(), tr.Bins())
	}
	if sn.SampleRate != tr.SampleRate {
		return nil, fmt.Errorf("dense matcher: sample rate mismatch: snippet %d Hz, track %d Hz", sn.SampleRate, tr.SampleRate)
	}

	snFrames := sn.Frames()
	trFrames := tr.Frames()
	if snFrames > trFrames {
		return nil, nil
	}

	bins := sn.Bins()
	var snNorm float64
	for r := 0; r < bins; r++ {
		for c := 0; c < snFrames; c++ {
			v := sn.At(r, c)
			snNorm += v * v
		}
	}
	snNorm = math.Sqrt(snNorm)

	bestScore := math.Inf(-1)
	bestCol := 0
	for col := 0; col <= trFrames-snFrames; col++ {
		var dot, trNorm float64
		for r := 0; r < bins; r++ {
			for c := 0; c < snFrames; c++ {
				a := sn.At(r, c)
				b := tr.At(r, col+c)
				dot += a * b
				trNorm += b * b
			}
		}
		trNorm = math.Sqrt(trNorm)

		score := 0.0
		if snNorm >= 1e-9 && trNorm >= 1e-9 {
			score = dot / (snNorm * trNorm)
		}
		// first-seen wins on exact ties
		if score > bestScore {
			bestScore = score
			bestCol = col
		}
	}

	if bestScore < m.Threshold {
		return nil, nil
	}
	offset := float64(bestCol*tr.HopSize) / float64(tr.SampleRate)
	return &Result{OffsetSeconds: offset, Score: bestScore}, nil
}
