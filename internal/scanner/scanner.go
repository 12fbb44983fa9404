// Package scanner runs the snippet search across a music library: every
// candidate track is converted, decoded, fingerprinted and matched on a
// bounded worker pool, with per-track soft failures logged and skipped.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/acousticlab/samplescan/internal/audio"
	"github.com/acousticlab/samplescan/internal/cache"
	"github.com/acousticlab/samplescan/internal/fingerprint"
	"github.com/acousticlab/samplescan/internal/match"
	"github.com/acousticlab/samplescan/pkg/logger"
)

// DefaultWorkers bounds how many track pipelines run at once.
const DefaultWorkers = 4

type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeNoMatch Outcome = "no-match"
	OutcomeSkipped Outcome = "skipped"
)

// TrackResult is one track's outcome. Err is set only for skips.
type TrackResult struct {
	Path          string
	Outcome       Outcome
	OffsetSeconds float64
	Score         float64
	Err           error
	Elapsed       time.Duration
	Bytes         int64
}

// Report collects every track's result plus scan-wide tallies, so callers
// get a structured view instead of having to scrape logs.
type Report struct {
	Results    []TrackResult
	Hits       int
	NoMatches  int
	Skipped    int
	Elapsed    time.Duration
	AudioBytes uint64
}

type Option func(*Scanner)

func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithCache(store *cache.Store) Option {
	return func(s *Scanner) { s.cache = store }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Scanner) { s.log = log }
}

func WithTempDir(dir string) Option {
	return func(s *Scanner) { s.tempDir = dir }
}

func WithSampleRate(rate int) Option {
	return func(s *Scanner) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

func WithProgress(show bool) Option {
	return func(s *Scanner) { s.progress = show }
}

// Scanner drives the batch scan. The snippet fingerprint it receives is
// shared by reference across workers and never copied.
type Scanner struct {
	matcher    match.Matcher
	cache      *cache.Store
	log        *logger.Logger
	workers    int
	sampleRate int
	tempDir    string
	progress   bool

	// overridable in tests
	pipeline func(ctx context.Context, path string, snippet match.Fingerprint) (*match.Result, error)
}

func New(m match.Matcher, opts ...Option) *Scanner {
	s := &Scanner{
		matcher:    m,
		workers:    DefaultWorkers,
		sampleRate: audio.DefaultSampleRate,
		tempDir:    os.TempDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.GetLogger()
	}
	if s.pipeline == nil {
		s.pipeline = s.processTrack
	}
	return s
}

var supportedExtensions = map[string]bool{
	".wav":  true,
	".ogg":  true,
	".mp3":  true,
	".flac": true,
	".m4a":  true,
}

func (s *Scanner) collectTracks(dir string) ([]string, error) {
	var tracks []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			tracks = append(tracks, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// processTrack is the per-track pipeline: convert -> decode -> fingerprint
// -> match. It runs to completion on one worker. A sub-window track counts
// as no data, not a failure.
func (s *Scanner) processTrack(ctx context.Context, path string, snippet match.Fingerprint) (*match.Result, error) {
	wavPath, err := audio.EnsureWAV(ctx, path, s.tempDir, s.sampleRate)
	if err != nil {
		return nil, err
	}

	if lm, ok := s.matcher.(*match.LandmarkMatcher); ok && s.cache != nil {
		entries, err := s.cache.LoadOrBuild(cache.Key(path), func() ([]fingerprint.HashEntry, error) {
			s.log.Debugf("decoding %s", wavPath)
			pcm, err := audio.ReadWAV(wavPath)
			if err != nil {
				return nil, err
			}
			s.log.Debugf("computing landmarks for %s", path)
			return lm.Extract(pcm)
		})
		if err != nil {
			if errors.Is(err, fingerprint.ErrTooShort) {
				return nil, nil
			}
			return nil, err
		}
		// WAV inputs skip conversion, so the decoded rate can differ from
		// the configured target rate. Rebuild around the file's actual rate.
		rate, err := audio.ReadWAVRate(wavPath)
		if err != nil {
			return nil, err
		}
		return s.matcher.Match(snippet, lm.FromEntries(entries, rate))
	}

	s.log.Debugf("decoding %s", wavPath)
	pcm, err := audio.ReadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("computing spectrogram for %s", path)
	fp, err := s.matcher.Fingerprint(pcm)
	if errors.Is(err, fingerprint.ErrTooShort) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.matcher.Match(snippet, fp)
}

// Scan runs the snippet search over every supported file under dir.
// Per-track failures never unwind past here; only an unreadable directory
// aborts the scan. Completion order across tracks is unspecified.
func (s *Scanner) Scan(ctx context.Context, dir string, snippet match.Fingerprint) (*Report, error) {
	tracks, err := s.collectTracks(dir)
	if err != nil {
		return nil, err
	}
	s.log.Infof("found %d candidate tracks in %s", len(tracks), dir)

	report := &Report{}

	// stems key the fingerprint cache and name converted WAVs, so two
	// tracks sharing a stem would silently share each other's state
	seen := make(map[string]string, len(tracks))
	unique := tracks[:0]
	for _, t := range tracks {
		key := cache.Key(t)
		if prev, ok := seen[key]; ok {
			err := fmt.Errorf("track stem %q already claimed by %s", key, prev)
			s.log.Warnf("skipping %s due to error: %v", t, err)
			report.Results = append(report.Results, TrackResult{Path: t, Outcome: OutcomeSkipped, Err: err})
			report.Skipped++
			continue
		}
		seen[key] = t
		unique = append(unique, t)
	}
	tracks = unique

	if len(tracks) == 0 {
		return report, nil
	}

	var bar *mpb.Bar
	var progress *mpb.Progress
	if s.progress {
		progress = mpb.New(mpb.WithWidth(64))
		bar = progress.AddBar(int64(len(tracks)),
			mpb.PrependDecorators(
				decor.Name("Scanning: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
		)
	}

	start := time.Now()
	jobs := make(chan string)
	results := make(chan TrackResult)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- s.runOne(ctx, path, snippet)
			}
		}()
	}
	go func() {
		for _, t := range tracks {
			jobs <- t
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for tr := range results {
		completed++
		report.Results = append(report.Results, tr)
		report.AudioBytes += uint64(tr.Bytes)

		switch tr.Outcome {
		case OutcomeHit:
			report.Hits++
			s.log.Infof("potential match in %s at ~%.2f seconds, score=%.4f", tr.Path, tr.OffsetSeconds, tr.Score)
		case OutcomeNoMatch:
			report.NoMatches++
			s.log.Infof("no strong match in %s", tr.Path)
		case OutcomeSkipped:
			report.Skipped++
			s.log.Warnf("skipping %s due to error: %v", tr.Path, tr.Err)
		}

		if bar != nil {
			bar.EwmaIncrement(tr.Elapsed)
		} else if remaining := len(tracks) - completed; remaining > 0 {
			mean := time.Since(start) / time.Duration(completed)
			s.log.Infof("%d tracks remain, ETA: %s", remaining, (mean * time.Duration(remaining)).Round(time.Second))
		}
	}
	if progress != nil {
		progress.Wait()
	}

	report.Elapsed = time.Since(start)
	s.log.Infof("scan complete: %d hits, %d no-match, %d skipped, %s of audio in %s",
		report.Hits, report.NoMatches, report.Skipped,
		humanize.Bytes(report.AudioBytes), report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (s *Scanner) runOne(ctx context.Context, path string, snippet match.Fingerprint) TrackResult {
	t0 := time.Now()
	res, err := s.pipeline(ctx, path, snippet)
	tr := TrackResult{Path: path, Elapsed: time.Since(t0)}
	if fi, statErr := os.Stat(path); statErr == nil {
		tr.Bytes = fi.Size()
	}
	switch {
	case err != nil:
		tr.Outcome = OutcomeSkipped
		tr.Err = err
	case res != nil:
		tr.Outcome = OutcomeHit
		tr.OffsetSeconds = res.OffsetSeconds
		tr.Score = res.Score
	default:
		tr.Outcome = OutcomeNoMatch
	}
	return tr
}
