// Package match locates a snippet fingerprint inside a track fingerprint.
// Two strategies exist behind one interface: a dense sliding-window cosine
// correlation (the accuracy baseline) and sparse landmark-hash offset
// voting (the scalable path). Callers pick one via a Strategy value.
package match

import (
	"fmt"

	"github.com/acousticlab/samplescan/internal/audio"
)

// Result is a located occurrence: where the snippet starts inside the
// track, and how strong the alignment is. Score is a cosine similarity in
// [-1, 1] for the dense strategy and a raw collision count for landmark.
type Result struct {
	OffsetSeconds float64
	Score         float64
}

// Fingerprint is a comparable representation of one audio stream. Concrete
// types differ per strategy; Frames reports the time span in hop-sized
// frames so matchers can reject snippets longer than the track.
type Fingerprint interface {
	Frames() int
}

// Matcher turns PCM into a strategy-specific fingerprint and aligns two of
// them. A nil Result with a nil error means no qualifying match.
type Matcher interface {
	Name() string
	Fingerprint(pcm *audio.PCMBuffer) (Fingerprint, error)
	Match(snippet, track Fingerprint) (*Result, error)
}

type Strategy string

const (
	StrategyDense    Strategy = "dense"
	StrategyLandmark Strategy = "landmark"
)

// New returns the matcher for a strategy with its reference parameters.
func New(s Strategy) (Matcher, error) {
	switch s {
	case StrategyDense:
		return NewDense(), nil
	case StrategyLandmark:
		return NewLandmark(), nil
	default:
		return nil, fmt.Errorf("unknown match strategy %q", s)
	}
}
