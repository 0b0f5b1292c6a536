// Package compile turns an ordered, trimmed clip list into a single
// shareable MP4: each clip is normalized to a common low-bitrate profile,
// then the normalized parts are stream-copied together.
package compile

import (
	"context"
	"io"
)

// Transcoder is the engine's view of an ffmpeg installation plus a private
// working directory. Input and output names are workdir-relative; the
// engine never sees absolute paths, so a test double can run in memory.
//
// OnProgress registers a callback receiving output-timestamp seconds while
// an Exec is running; registering replaces any previous callback.
type Transcoder interface {
	WriteInput(name string, src io.Reader) error
	Exec(ctx context.Context, args []string) error
	ReadOutput(name string) ([]byte, error)
	ListFiles() ([]string, error)
	DeleteFile(name string) error
	OnProgress(fn func(outTimeSeconds float64))
}
