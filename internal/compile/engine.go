package compile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// ErrNoClips rejects compilation of an empty timeline.
var ErrNoClips = errors.New("no clips to compile")

// CompilationError reports which stage of the pipeline failed.
type CompilationError struct {
	Stage string
	Err   error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile %s: %v", e.Stage, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// Input is one clip in compilation order. Duration is the effective
// playable length in seconds; Trimmed marks clips whose Start and End
// bound a sub-range of the source.
type Input struct {
	Source   io.Reader
	Duration float64
	Start    float64
	End      float64
	Trimmed  bool
}

// Normalization profile. Every clip is re-encoded down to a small common
// format so the final join can be a lossless stream copy, and so the
// result stays small enough to upload from modest connections.
const (
	outputWidth  = 640
	outputHeight = 360
	outputFPS    = 20
	videoCRF     = "40"
	audioBitrate = "64k"
)

// Engine drives a Transcoder through normalize-then-concatenate. It is not
// reentrant; callers serialize Compile invocations.
type Engine struct {
	t Transcoder
}

func NewEngine(t Transcoder) *Engine {
	return &Engine{t: t}
}

// Compile re-encodes every input to the common profile, honoring trim
// windows, then joins the normalized parts without re-encoding and returns
// the final MP4 bytes. onProgress, if non-nil, receives a monotonic
// percentage that reaches exactly 100 on success.
//
// The working directory is drained before returning on both the success
// and failure paths, so a failed run never poisons the next one.
func (e *Engine) Compile(ctx context.Context, inputs []Input, onProgress func(pct int)) (out []byte, err error) {
	if len(inputs) == 0 {
		return nil, ErrNoClips
	}
	defer e.drain()

	n := len(inputs)
	lastPct := 0
	emit := func(pct int) {
		if pct > 100 {
			pct = 100
		}
		if pct <= lastPct || onProgress == nil {
			return
		}
		lastPct = pct
		onProgress(pct)
	}

	parts := make([]string, 0, n)
	for i, in := range inputs {
		inName := fmt.Sprintf("input%d.mp4", i)
		outName := fmt.Sprintf("temp%d.mp4", i)

		if err := e.t.WriteInput(inName, in.Source); err != nil {
			return nil, &CompilationError{Stage: "stage input", Err: err}
		}

		// While clip i normalizes, overall progress sweeps the
		// [i/n, (i+1)/n) band, clamped so a clip never reads done
		// before its encode returns.
		clipDur := in.Duration
		base := float64(i) / float64(n)
		e.t.OnProgress(func(outSeconds float64) {
			frac := 1.0
			if clipDur > 0 {
				frac = outSeconds / clipDur
			}
			if frac > 1 {
				frac = 1
			}
			pct := int((base + frac/float64(n)) * 100)
			if pct >= 100 {
				pct = 99
			}
			emit(pct)
		})

		if err := e.t.Exec(ctx, normalizeArgs(inName, outName, in)); err != nil {
			return nil, &CompilationError{Stage: fmt.Sprintf("normalize clip %d", i), Err: err}
		}
		parts = append(parts, outName)
		emit(int(float64(i+1) / float64(n) * 99))
	}

	list := make([]string, len(parts))
	for i, p := range parts {
		list[i] = fmt.Sprintf("file '%s'", p)
	}
	if err := e.t.WriteInput("concat_list.txt", strings.NewReader(strings.Join(list, "\n")+"\n")); err != nil {
		return nil, &CompilationError{Stage: "write concat list", Err: err}
	}

	e.t.OnProgress(nil)
	concat := []string{
		"-f", "concat", "-safe", "0",
		"-i", "concat_list.txt",
		"-c", "copy",
		"-y", "output.mp4",
	}
	if err := e.t.Exec(ctx, concat); err != nil {
		return nil, &CompilationError{Stage: "concatenate", Err: err}
	}

	data, err := e.t.ReadOutput("output.mp4")
	if err != nil {
		return nil, &CompilationError{Stage: "read output", Err: err}
	}
	emit(100)
	return data, nil
}

// normalizeArgs builds the per-clip re-encode command. The trim window is
// applied here, during decode, so trimmed frames never reach the output.
func normalizeArgs(in, out string, clip Input) []string {
	args := []string{"-i", in}
	if clip.Trimmed {
		args = append(args,
			"-ss", formatSeconds(clip.Start),
			"-to", formatSeconds(clip.End),
		)
	}
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d,fps=%d", outputWidth, outputHeight, outputFPS),
		"-c:v", "libx264",
		"-crf", videoCRF,
		"-preset", "ultrafast",
		"-movflags", "+faststart",
		"-profile:v", "baseline",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-x264-params", "ref=1:me=dia",
		"-y", out,
	)
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// drain removes every file left in the working directory. Failures are
// logged rather than returned; a leftover file only wastes space.
func (e *Engine) drain() {
	e.t.OnProgress(nil)
	names, err := e.t.ListFiles()
	if err != nil {
		slog.Warn("compile: listing work files for cleanup", "error", err)
		return
	}
	for _, name := range names {
		if err := e.t.DeleteFile(name); err != nil {
			slog.Warn("compile: removing work file", "file", name, "error", err)
		}
	}
}
