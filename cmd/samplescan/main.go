// samplescan locates where a short audio snippet reoccurs inside a library
// of longer tracks. Configuration comes from MUSIC_DIR, SAMPLE_PATH,
// SAMPLE_BEGIN and SAMPLE_END, with flags layered on top.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/acousticlab/samplescan/internal/audio"
	"github.com/acousticlab/samplescan/internal/cache"
	"github.com/acousticlab/samplescan/internal/catalog"
	"github.com/acousticlab/samplescan/internal/match"
	"github.com/acousticlab/samplescan/internal/scanner"
	"github.com/acousticlab/samplescan/pkg/logger"
)

var (
	musicDir   string
	samplePath string
	beginArg   string
	endArg     string
	strategy   string
	workers    int
	sampleRate int
	cacheDir   string
	tempDir    string
	dbPath     string
	noProgress bool
)

func init() {
	flag.StringVar(&musicDir, "music-dir", os.Getenv("MUSIC_DIR"), "directory with candidate tracks")
	flag.StringVar(&samplePath, "sample", os.Getenv("SAMPLE_PATH"), "audio file containing the snippet")
	flag.StringVar(&beginArg, "begin", os.Getenv("SAMPLE_BEGIN"), "snippet start within the sample file, in seconds")
	flag.StringVar(&endArg, "end", os.Getenv("SAMPLE_END"), "snippet end within the sample file, in seconds")
	flag.StringVar(&strategy, "strategy", string(match.StrategyLandmark), "matching strategy: dense | landmark")
	flag.IntVar(&workers, "workers", scanner.DefaultWorkers, "concurrent track pipelines")
	flag.IntVar(&sampleRate, "rate", audio.DefaultSampleRate, "target sample rate for conversion")
	flag.StringVar(&cacheDir, "cache-dir", getEnvOrDefault("SAMPLESCAN_CACHE_DIR", "fingerprints"), "landmark fingerprint cache directory (empty disables caching)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SAMPLESCAN_TEMP_DIR", os.TempDir()), "directory for converted WAV files")
	flag.StringVar(&dbPath, "db", os.Getenv("SAMPLESCAN_DB_PATH"), "sqlite catalog path (empty disables the catalog)")
	flag.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	if musicDir == "" {
		log.Fatalf("missing music directory: set MUSIC_DIR or -music-dir")
	}
	if samplePath == "" {
		log.Fatalf("missing sample file: set SAMPLE_PATH or -sample")
	}
	begin, err := parseSeconds(beginArg, "SAMPLE_BEGIN")
	if err != nil {
		log.Fatalf("%v", err)
	}
	end, err := parseSeconds(endArg, "SAMPLE_END")
	if err != nil {
		log.Fatalf("%v", err)
	}
	if end <= begin {
		log.Fatalf("snippet end (%.2f) must be after begin (%.2f)", end, begin)
	}

	matcher, err := match.New(match.Strategy(strategy))
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	snippet := prepareSnippet(ctx, log, matcher, begin, end)

	opts := []scanner.Option{
		scanner.WithWorkers(workers),
		scanner.WithSampleRate(sampleRate),
		scanner.WithTempDir(tempDir),
		scanner.WithProgress(!noProgress),
		scanner.WithLogger(log),
	}
	if cacheDir != "" && matcher.Name() == string(match.StrategyLandmark) {
		store, err := cache.NewStore(cacheDir)
		if err != nil {
			log.Fatalf("%v", err)
		}
		opts = append(opts, scanner.WithCache(store))
	}

	report, err := scanner.New(matcher, opts...).Scan(ctx, musicDir, snippet)
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}

	if dbPath != "" {
		recordRun(log, report)
	}
}

// prepareSnippet converts the sample file to WAV if needed, decodes it,
// cuts out [begin, end) and fingerprints the result. The fingerprint is
// built once and shared read-only across all workers.
func prepareSnippet(ctx context.Context, log *logger.Logger, matcher match.Matcher, begin, end float64) match.Fingerprint {
	wavPath := samplePath
	if !strings.EqualFold(filepath.Ext(samplePath), ".wav") {
		wavPath = strings.TrimSuffix(samplePath, filepath.Ext(samplePath)) + ".wav"
		if _, err := os.Stat(wavPath); err != nil {
			log.Infof("converting sample to WAV: %s", samplePath)
			if err := audio.ConvertToWAV(ctx, samplePath, wavPath, sampleRate); err != nil {
				log.Fatalf("sample conversion failed: %v", err)
			}
		}
	}

	log.Infof("decoding sample snippet from %s", wavPath)
	pcm, err := audio.ReadWAV(wavPath)
	if err != nil {
		log.Fatalf("failed to decode sample: %v", err)
	}

	clip := pcm.Slice(begin, end)
	fp, err := matcher.Fingerprint(clip)
	if err != nil {
		log.Fatalf("failed to fingerprint snippet: %v", err)
	}
	log.Infof("snippet ready: %.2f s, strategy=%s", clip.Seconds(), matcher.Name())
	return fp
}

func recordRun(log *logger.Logger, report *scanner.Report) {
	store, err := catalog.Open(dbPath)
	if err != nil {
		log.Warnf("catalog unavailable, results not persisted: %v", err)
		return
	}
	defer store.Close()

	run, err := store.CreateRun(samplePath, musicDir, strategy)
	if err != nil {
		log.Warnf("failed to create catalog run: %v", err)
		return
	}
	for _, tr := range report.Results {
		errMsg := ""
		if tr.Err != nil {
			errMsg = tr.Err.Error()
		}
		if err := store.RecordOutcome(run.ID, tr.Path, string(tr.Outcome), tr.OffsetSeconds, tr.Score, errMsg); err != nil {
			log.Warnf("%v", err)
		}
	}
	if err := store.FinishRun(run.ID, len(report.Results), report.Hits, report.Skipped); err != nil {
		log.Warnf("%v", err)
	}
	log.Infof("scan recorded in catalog as run %s", run.ID)
}

func parseSeconds(value, name string) (float64, error) {
	if value == "" {
		return 0, errFor(name)
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errFor(name)
	}
	return f, nil
}

func errFor(name string) error {
	return &configError{name: name}
}

type configError struct{ name string }

func (e *configError) Error() string {
	return "missing or invalid " + e.name + " (seconds, e.g. 12.5)"
}
