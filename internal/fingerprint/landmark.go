package fingerprint

import "sort"

// Landmark extraction tunables.
const (
	DefaultTopN      = 5
	DefaultFanValue  = 5
	DefaultLookahead = 9
)

// HashEntry is one landmark: a pair of loud frequency bins a few frames
// apart, anchored at the frame where the first bin was observed. The
// (F1, F2, DeltaT) triple is the lookup key; AnchorTime is the payload that
// offset voting runs on. JSON field names are the on-disk cache format.
type HashEntry struct {
	F1         uint16 `json:"f1"`
	F2         uint16 `json:"f2"`
	DeltaT     uint16 `json:"delta_t"`
	AnchorTime uint32 `json:"anchor_time"`
}

// Key packs (F1, F2, DeltaT) into a single uint32 for map indexing.
// Layout: [ f1 (12 bits) | f2 (12 bits) | delta (8 bits) ], which fits
// windows up to 8192 samples and the small frame deltas pairing produces.
func (e HashEntry) Key() uint32 {
	return uint32(e.F1)<<20 | (uint32(e.F2)&0xfff)<<8 | uint32(e.DeltaT)&0xff
}

// topBins returns the topN bin indices of frame t by magnitude, loudest
// first. Deliberately naive: per-frame maxima only, no suppression across
// neighboring frames. Order of equal-magnitude bins is not guaranteed;
// matching only depends on the resulting multiset of entries.
func topBins(spec *Spectrogram, t, topN int) []int {
	nBins := spec.Bins()
	bins := make([]int, nBins)
	for i := range bins {
		bins[i] = i
	}
	sort.Slice(bins, func(a, b int) bool {
		return spec.At(bins[a], t) > spec.At(bins[b], t)
	})
	if topN < nBins {
		bins = bins[:topN]
	}
	return bins
}

// ExtractLandmarks derives the sparse landmark fingerprint of a
// spectrogram. Each of a frame's topN peaks is paired with up to fanValue
// peaks in each of the following lookahead-1 frames, emitting one entry per
// pairing. The redundancy makes individual hashes robust to the global time
// shift that matching recovers.
func ExtractLandmarks(spec *Spectrogram, topN, fanValue, lookahead int) []HashEntry {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if fanValue <= 0 {
		fanValue = DefaultFanValue
	}
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	nFrames := spec.Frames()
	peaks := make([][]int, nFrames)
	for t := 0; t < nFrames; t++ {
		peaks[t] = topBins(spec, t, topN)
	}

	entries := make([]HashEntry, 0, nFrames*topN*fanValue)
	for t := 0; t < nFrames; t++ {
		for _, f1 := range peaks[t] {
			for dt := 1; dt < lookahead; dt++ {
				target := t + dt
				if target >= nFrames {
					break
				}
				fan := fanValue
				if fan > len(peaks[target]) {
					fan = len(peaks[target])
				}
				for _, f2 := range peaks[target][:fan] {
					entries = append(entries, HashEntry{
						F1:         uint16(f1),
						F2:         uint16(f2),
						DeltaT:     uint16(dt),
						AnchorTime: uint32(t),
					})
				}
			}
		}
	}
	return entries
}
