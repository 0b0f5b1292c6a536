// Package media wraps the ffprobe/ffmpeg executables for clip metadata:
// duration probing and still-frame thumbnail extraction.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Inspector derives clip metadata from local media files. It satisfies
// timeline.MetadataSource.
type Inspector struct {
	ffprobePath string
	ffmpegPath  string
}

func NewInspector() *Inspector {
	return &Inspector{ffprobePath: "ffprobe", ffmpegPath: "ffmpeg"}
}

// Available reports whether the ffmpeg tooling is on PATH.
func Available() bool {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return false
	}
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

func probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// Duration returns the container duration in seconds.
func (i *Inspector) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, i.ffprobePath, probeArgs(path)...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseDuration(string(output))
}

func parseDuration(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid duration %f", d)
	}
	return d, nil
}

func thumbnailArgs(inputPath, outputPath string) []string {
	return []string{
		"-i", inputPath,
		"-ss", "0.5",
		"-frames:v", "1",
		"-vf", "scale=120:68:force_original_aspect_ratio=decrease,pad=120:68:(ow-iw)/2:(oh-ih)/2",
		"-q:v", "5",
		"-y",
		outputPath,
	}
}

// Thumbnail extracts one small still frame as JPEG bytes.
func (i *Inspector) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "keepsake-thumb-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	cmd := exec.CommandContext(ctx, i.ffmpegPath, thumbnailArgs(path, tmpPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg thumbnail: %w: %s", err, string(output))
	}
	return os.ReadFile(tmpPath)
}
