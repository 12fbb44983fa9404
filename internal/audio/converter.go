package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ConvertToWAV transcodes inputPath to a mono 16-bit PCM WAV at the given
// rate using ffmpeg. Only the exit status is inspected; the output is
// written via a temp file so a failed run never leaves a partial WAV behind.
func ConvertToWAV(ctx context.Context, inputPath, outputPath string, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	return os.Rename(tmpPath, outputPath)
}

// DefaultSampleRate is the rate handed to ffmpeg when the caller does not
// pick one. It is a default, not an assumption: decoded buffers carry their
// actual rate.
const DefaultSampleRate = 48000

// EnsureWAV returns a readable WAV path for inputPath. WAV inputs pass
// through untouched; anything else is converted into outputDir, reusing a
// previously converted file when one already exists.
func EnsureWAV(ctx context.Context, inputPath, outputDir string, sampleRate int) (string, error) {
	if strings.EqualFold(filepath.Ext(inputPath), ".wav") {
		return inputPath, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	outputPath := filepath.Join(outputDir, stem+".wav")
	if _, err := os.Stat(outputPath); err == nil {
		return outputPath, nil
	}

	if err := ConvertToWAV(ctx, inputPath, outputPath, sampleRate); err != nil {
		return "", err
	}
	return outputPath, nil
}
