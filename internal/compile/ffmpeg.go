package compile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner is the real Transcoder: it shells out to ffmpeg with a scratch
// directory as the working directory. The directory is created by NewRunner
// and removed by Close; everything the engine writes lives under it.
type Runner struct {
	ffmpegPath string
	dir        string
	onProgress func(float64)
}

func NewRunner(ffmpegPath string) (*Runner, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	dir, err := os.MkdirTemp("", "keepsake-compile-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Runner{ffmpegPath: ffmpegPath, dir: dir}, nil
}

// Available reports whether the ffmpeg binary can be found.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.ffmpegPath)
	return err == nil
}

func (r *Runner) Close() error {
	return os.RemoveAll(r.dir)
}

func (r *Runner) OnProgress(fn func(float64)) {
	r.onProgress = fn
}

func (r *Runner) WriteInput(name string, src io.Reader) error {
	path, err := r.resolve(name)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

func (r *Runner) ReadOutput(name string) ([]byte, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (r *Runner) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list work dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (r *Runner) DeleteFile(name string) error {
	path, err := r.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Exec runs ffmpeg with the given args inside the working directory.
// Progress reporting goes to stdout as key=value batches; stderr is kept
// for the error message since ffmpeg writes its diagnostics there.
func (r *Runner) Exec(ctx context.Context, args []string) error {
	full := append([]string{
		"-nostats", "-hide_banner", "-loglevel", "error",
		"-progress", "pipe:1",
	}, args...)

	cmd := exec.CommandContext(ctx, r.ffmpegPath, full...)
	cmd.Dir = r.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	r.readProgress(stdout)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// readProgress consumes ffmpeg's -progress stream. Batches are key=value
// lines terminated by a progress= marker; out_time_us carries the output
// timestamp in microseconds, with out_time as an HH:MM:SS fallback.
func (r *Runner) readProgress(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	var batchSeconds float64
	var haveSeconds bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				batchSeconds = float64(us) / 1e6
				haveSeconds = true
			}
		case "out_time":
			if !haveSeconds {
				if s, err := parseClockTime(value); err == nil {
					batchSeconds = s
					haveSeconds = true
				}
			}
		case "progress":
			if haveSeconds && r.onProgress != nil {
				r.onProgress(batchSeconds)
			}
			haveSeconds = false
		}
	}
}

// parseClockTime parses ffmpeg's "HH:MM:SS.micros" timestamps.
func parseClockTime(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	total := float64(h)*3600 + float64(m)*60 + sec
	if total < 0 {
		return 0, fmt.Errorf("negative timestamp %q", s)
	}
	return total, nil
}

func (r *Runner) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid work file name %q", name)
	}
	return filepath.Join(r.dir, name), nil
}
