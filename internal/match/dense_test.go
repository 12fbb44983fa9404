package match

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/acousticlab/samplescan/internal/audio"
	"github.com/acousticlab/samplescan/internal/fingerprint"
)

const (
	testRate   = 8192
	testWindow = 1024
	testHop    = 256
)

// testDense uses a smaller window than the production default so synthetic
// scenarios stay fast.
func testDense() *DenseMatcher {
	return &DenseMatcher{WindowSize: testWindow, HopSize: testHop, Threshold: DenseThreshold}
}

// melody synthesizes a deterministic tone sequence: distinctive spectral
// peaks that move over time, like a riff.
func melody(seconds float64, rate int) []float64 {
	freqs := []float64{440, 880, 1320, 660, 990, 550, 770, 1100}
	n := int(seconds * float64(rate))
	segment := n / len(freqs)
	samples := make([]float64, n)
	for i := range samples {
		f := freqs[(i/segment)%len(freqs)]
		samples[i] = 0.8 * math.Sin(2*math.Pi*f*float64(i)/float64(rate))
	}
	return samples
}

func noise(rng *rand.Rand, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.1 * (rng.Float64()*2 - 1)
	}
	return samples
}

// trackWithSnippet builds 5 s of noise, an exact copy of the snippet, then
// 5 s more noise. 5 s at 8192 Hz is an exact multiple of the hop size, so
// at the default test rate the embedded copy is frame-aligned at 5.0 s.
func trackWithSnippet(snippet []float64, rate int) *audio.PCMBuffer {
	rng := rand.New(rand.NewSource(42))
	lead := noise(rng, 5*rate)
	tail := noise(rng, 5*rate)
	samples := make([]float64, 0, len(lead)+len(snippet)+len(tail))
	samples = append(samples, lead...)
	samples = append(samples, snippet...)
	samples = append(samples, tail...)
	return &audio.PCMBuffer{Samples: samples, SampleRate: rate}
}

func specFromColumns(t *testing.T, cols [][]float64, hop, rate int) *fingerprint.Spectrogram {
	t.Helper()
	bins := len(cols[0])
	m := mat.NewDense(bins, len(cols), nil)
	for f, col := range cols {
		for b, v := range col {
			m.Set(b, f, v)
		}
	}
	return fingerprint.NewSpectrogram(m, rate, bins*2, hop)
}

func TestDenseSelfSimilarity(t *testing.T) {
	m := testDense()
	pcm := &audio.PCMBuffer{Samples: melody(2, testRate), SampleRate: testRate}
	fp, err := m.Fingerprint(pcm)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	res, err := m.Match(fp, fp)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res == nil {
		t.Fatal("expected a self-match")
	}
	if res.OffsetSeconds != 0 {
		t.Errorf("expected offset 0, got %f", res.OffsetSeconds)
	}
	if math.Abs(res.Score-1.0) > 1e-9 {
		t.Errorf("expected score ~1.0, got %f", res.Score)
	}
}

func TestDenseSnippetLongerThanTrack(t *testing.T) {
	m := testDense()
	long, err := m.Fingerprint(&audio.PCMBuffer{Samples: melody(2, testRate), SampleRate: testRate})
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	short, err := m.Fingerprint(&audio.PCMBuffer{Samples: melody(1, testRate), SampleRate: testRate})
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	res, err := m.Match(long, short)
	if err != nil {
		t.Fatalf("Match should not error: %v", err)
	}
	if res != nil {
		t.Errorf("expected no match, got %+v", res)
	}
}

func TestDenseShapeMismatch(t *testing.T) {
	m := testDense()
	a := specFromColumns(t, [][]float64{{1, 0}}, testHop, testRate)
	b := specFromColumns(t, [][]float64{{1, 0, 0, 0}}, testHop, testRate)
	if _, err := m.Match(a, b); err == nil {
		t.Error("expected an error on bin count mismatch")
	}
}

func TestDenseRejectsRateMismatch(t *testing.T) {
	m := testDense()
	a := specFromColumns(t, [][]float64{{1, 0}}, testHop, 44100)
	b := specFromColumns(t, [][]float64{{1, 0}, {0, 1}}, testHop, 48000)
	if _, err := m.Match(a, b); err == nil {
		t.Error("expected an error when snippet and track rates differ")
	}
}

func TestDenseThresholdAndArgmax(t *testing.T) {
	// snippet column (3,4); track col 0 orthogonal, col 1 at cosine
	// exactly 0.6. With threshold 0.6 the >= contract accepts col 1.
	snippet := specFromColumns(t, [][]float64{{3, 4}}, testHop, testRate)
	track := specFromColumns(t, [][]float64{{4, -3}, {5, 0}}, testHop, testRate)

	m := testDense()
	m.Threshold = 0.6
	res, err := m.Match(snippet, track)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res == nil {
		t.Fatal("expected a match at exactly the threshold")
	}
	wantOffset := float64(testHop) / float64(testRate)
	if math.Abs(res.OffsetSeconds-wantOffset) > 1e-12 {
		t.Errorf("expected offset %f, got %f", wantOffset, res.OffsetSeconds)
	}

	// raising the threshold above the best score turns it into a no-match
	m.Threshold = 0.61
	res, err = m.Match(snippet, track)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res != nil {
		t.Errorf("expected no match above threshold, got %+v", res)
	}
}

func TestDenseSilentTrackScoresZero(t *testing.T) {
	snippet := specFromColumns(t, [][]float64{{1, 1}}, testHop, testRate)
	track := specFromColumns(t, [][]float64{{0, 0}, {0, 0}, {0, 0}}, testHop, testRate)

	res, err := testDense().Match(snippet, track)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res != nil {
		t.Errorf("near-zero norms must score 0 and fail the threshold, got %+v", res)
	}
}

func TestDenseOffsetRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sliding-window correlation in short mode")
	}

	m := testDense()
	snippetSamples := melody(2, testRate)
	snippet, err := m.Fingerprint(&audio.PCMBuffer{Samples: snippetSamples, SampleRate: testRate})
	if err != nil {
		t.Fatalf("Fingerprint(snippet): %v", err)
	}
	track, err := m.Fingerprint(trackWithSnippet(snippetSamples, testRate))
	if err != nil {
		t.Fatalf("Fingerprint(track): %v", err)
	}

	res, err := m.Match(snippet, track)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res == nil {
		t.Fatal("expected to find the embedded snippet")
	}

	hopSeconds := float64(testHop) / float64(testRate)
	if math.Abs(res.OffsetSeconds-5.0) > hopSeconds {
		t.Errorf("expected offset within one hop of 5.0 s, got %f", res.OffsetSeconds)
	}
	t.Logf("dense: offset=%.4f s score=%.4f", res.OffsetSeconds, res.Score)
}
