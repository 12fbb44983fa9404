package match

import (
	"fmt"

	"github.com/acousticlab/samplescan/internal/audio"
	"github.com/acousticlab/samplescan/internal/fingerprint"
)

// LandmarkMinVotes is the collision count a winning offset must strictly
// exceed to be reported.
const LandmarkMinVotes = 5

// LandmarkFingerprint is the sparse representation: a multiset of hash
// entries plus the parameters needed to turn frame offsets into seconds.
type LandmarkFingerprint struct {
	Entries    []fingerprint.HashEntry
	SampleRate int
	HopSize    int
}

// Frames reports the fingerprint's time span: the last frame any entry
// touches, anchor or target.
func (f *LandmarkFingerprint) Frames() int {
	span := 0
	for _, e := range f.Entries {
		end := int(e.AnchorTime) + int(e.DeltaT) + 1
		if end > span {
			span = end
		}
	}
	return span
}

// LandmarkMatcher indexes the track's entries by (f1, f2, delta) key and
// votes on the anchor-time offset of every key collision with the snippet.
// O(snippet entries + track entries) after index construction.
type LandmarkMatcher struct {
	WindowSize int
	HopSize    int
	TopN       int
	FanValue   int
	Lookahead  int
	MinVotes   int
}

func NewLandmark() *LandmarkMatcher {
	return &LandmarkMatcher{
		WindowSize: fingerprint.LandmarkWindowSize,
		HopSize:    fingerprint.DefaultHopSize,
		TopN:       fingerprint.DefaultTopN,
		FanValue:   fingerprint.DefaultFanValue,
		Lookahead:  fingerprint.DefaultLookahead,
		MinVotes:   LandmarkMinVotes,
	}
}

func (m *LandmarkMatcher) Name() string { return string(StrategyLandmark) }

func (m *LandmarkMatcher) Fingerprint(pcm *audio.PCMBuffer) (Fingerprint, error) {
	entries, err := m.Extract(pcm)
	if err != nil {
		return nil, err
	}
	return &LandmarkFingerprint{Entries: entries, SampleRate: pcm.SampleRate, HopSize: m.HopSize}, nil
}

// Extract computes just the hash entries, the part of a fingerprint the
// cache persists.
func (m *LandmarkMatcher) Extract(pcm *audio.PCMBuffer) ([]fingerprint.HashEntry, error) {
	spec, err := fingerprint.Build(pcm, m.WindowSize, m.HopSize)
	if err != nil {
		return nil, err
	}
	return fingerprint.ExtractLandmarks(spec, m.TopN, m.FanValue, m.Lookahead), nil
}

// FromEntries rebuilds a fingerprint around cached entries. sampleRate must
// be the rate the track was decoded at when the entries were computed; WAV
// inputs pass through conversion untouched, so it is not necessarily the
// configured target rate.
func (m *LandmarkMatcher) FromEntries(entries []fingerprint.HashEntry, sampleRate int) *LandmarkFingerprint {
	return &LandmarkFingerprint{Entries: entries, SampleRate: sampleRate, HopSize: m.HopSize}
}

func (m *LandmarkMatcher) Match(snippet, track Fingerprint) (*Result, error) {
	sn, ok := snippet.(*LandmarkFingerprint)
	if !ok {
		return nil, fmt.Errorf("landmark matcher: snippet fingerprint is %T, want landmarks", snippet)
	}
	tr, ok := track.(*LandmarkFingerprint)
	if !ok {
		return nil, fmt.Errorf("landmark matcher: track fingerprint is %T, want landmarks", track)
	}
	if sn.SampleRate != tr.SampleRate {
		return nil, fmt.Errorf("landmark matcher: sample rate mismatch: snippet %d Hz, track %d Hz", sn.SampleRate, tr.SampleRate)
	}
	if sn.Frames() > tr.Frames() {
		return nil, nil
	}

	index := make(map[uint32][]uint32, len(tr.Entries))
	for _, e := range tr.Entries {
		k := e.Key()
		index[k] = append(index[k], e.AnchorTime)
	}

	// offset (frames, possibly negative) -> collision count
	votes := make(map[int]int)
	for _, e := range sn.Entries {
		for _, anchor := range index[e.Key()] {
			votes[int(anchor)-int(e.AnchorTime)]++
		}
	}
	if len(votes) == 0 {
		return nil, nil
	}

	bestOffset, bestCount := 0, 0
	for offset, count := range votes {
		if count > bestCount {
			bestOffset = offset
			bestCount = count
		}
	}
	if bestCount <= m.MinVotes {
		return nil, nil
	}

	offset := float64(bestOffset*tr.HopSize) / float64(tr.SampleRate)
	return &Result{OffsetSeconds: offset, Score: float64(bestCount)}, nil
}
