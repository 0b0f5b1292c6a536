package timeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keepsake/keepsake/internal/validate"
)

// MetadataSource derives clip metadata from a materialized media file.
// Derivation is non-critical: failures degrade the display, never the clip.
type MetadataSource interface {
	Duration(ctx context.Context, path string) (float64, error)
	Thumbnail(ctx context.Context, path string) ([]byte, error)
}

// Registry owns the ordered clip list that IS the timeline. List order is
// the single source of truth for both preview playback and compilation.
//
// The registry follows the session's cooperative scheduling model: all
// operations are called from one goroutine. Only the asynchronous metadata
// derivation runs concurrently, and it re-enters through the same mutex.
type Registry struct {
	mu        sync.Mutex
	clips     []*Clip
	dir       string
	meta      MetadataSource
	listeners []func()
	closed    bool
}

// NewRegistry creates a registry with a private scratch directory for
// materialized clip bytes. Close removes the directory and every clip file.
func NewRegistry(meta MetadataSource) (*Registry, error) {
	dir, err := os.MkdirTemp("", "keepsake-clips-")
	if err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}
	return &Registry{dir: dir, meta: meta}, nil
}

// Subscribe registers a callback invoked after every registry mutation,
// including asynchronous metadata resolution.
func (r *Registry) Subscribe(fn func()) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notify() {
	r.mu.Lock()
	fns := make([]func(), len(r.listeners))
	copy(fns, r.listeners)
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Add validates and materializes a user-picked file as a new local clip.
// Only MP4 input up to the size ceiling is accepted; rejection names the
// offending constraint. Duration and thumbnail derivation are scheduled
// asynchronously; the clip is usable before they resolve.
func (r *Registry) Add(name, contentType string, size int64, src io.Reader) (*Clip, error) {
	if !validate.IsMP4(name, contentType) {
		return nil, errWrongType(name, contentType)
	}
	if size > validate.MaxClipBytes {
		return nil, errTooLarge(name, size, validate.MaxClipBytes)
	}

	clip := &Clip{
		ID:         uuid.NewString(),
		Provenance: ProvenanceLocal,
	}
	path, err := r.materialize(clip.ID, src)
	if err != nil {
		return nil, err
	}
	clip.SourcePath = path

	r.mu.Lock()
	r.clips = append(r.clips, clip)
	r.recomputeLocked()
	r.mu.Unlock()
	r.notify()

	go r.deriveMetadata(clip.ID, path)
	return clip.copyOut(), nil
}

// addRemote inserts an already-fetched remote clip. Remote clips start with
// TrimStart pinned at 0; TrimEnd defaults once the duration resolves.
func (r *Registry) addRemote(path string, ref RemoteRef) *Clip {
	zero := 0.0
	clip := &Clip{
		ID:         "remote-" + ref.UploadID,
		SourcePath: path,
		TrimStart:  &zero,
		Provenance: ProvenanceRemote,
		Remote:     &ref,
	}

	r.mu.Lock()
	r.clips = append(r.clips, clip)
	r.recomputeLocked()
	r.mu.Unlock()
	r.notify()

	go r.deriveMetadata(clip.ID, path)
	return clip.copyOut()
}

// Remove drops the clip, releases its local file, and returns how many
// clips remain (callers clear the active player when it reaches zero).
func (r *Registry) Remove(id string) int {
	if c, _ := r.Detach(id); c != nil {
		r.Release(c)
	}
	return r.Len()
}

// Detach removes the clip from the list but keeps its materialized file,
// so a removal pending server confirmation can be reverted with Reattach.
// Returns the detached clip and its former position, or (nil, -1).
func (r *Registry) Detach(id string) (*Clip, int) {
	r.mu.Lock()
	for i, c := range r.clips {
		if c.ID == id {
			r.clips = append(r.clips[:i], r.clips[i+1:]...)
			r.recomputeLocked()
			r.mu.Unlock()
			r.notify()
			return c, i
		}
	}
	r.mu.Unlock()
	return nil, -1
}

// Reattach restores a detached clip at its former position (clamped to the
// current list length).
func (r *Registry) Reattach(c *Clip, at int) {
	r.mu.Lock()
	if at < 0 || at > len(r.clips) {
		at = len(r.clips)
	}
	r.clips = append(r.clips[:at], append([]*Clip{c}, r.clips[at:]...)...)
	r.recomputeLocked()
	r.mu.Unlock()
	r.notify()
}

// Release removes a detached clip's materialized file once the removal is
// final.
func (r *Registry) Release(c *Clip) {
	if err := os.Remove(c.SourcePath); err != nil && !os.IsNotExist(err) {
		slog.Warn("registry: failed to release clip file", "path", c.SourcePath, "error", err)
	}
}

// Move relocates the clip at from to position to, preserving the relative
// order of everything else.
func (r *Registry) Move(from, to int) error {
	r.mu.Lock()
	if from < 0 || from >= len(r.clips) || to < 0 || to >= len(r.clips) {
		n := len(r.clips)
		r.mu.Unlock()
		return fmt.Errorf("move %d -> %d out of range (have %d clips)", from, to, n)
	}
	c := r.clips[from]
	r.clips = append(r.clips[:from], r.clips[from+1:]...)
	r.clips = append(r.clips[:to], append([]*Clip{c}, r.clips[to:]...)...)
	r.recomputeLocked()
	r.mu.Unlock()
	r.notify()
	return nil
}

// ApplyTrim overwrites the clip's trim bounds. Bounds must satisfy
// 0 <= start < end <= duration; rejection leaves the prior bounds intact.
func (r *Registry) ApplyTrim(id string, start, end float64) error {
	r.mu.Lock()
	c := r.findLocked(id)
	if c == nil {
		r.mu.Unlock()
		return fmt.Errorf("clip %s not in registry", id)
	}
	if c.Duration == nil {
		r.mu.Unlock()
		return errBadTrim(start, end, 0)
	}
	if start < 0 || start >= end || end > *c.Duration {
		dur := *c.Duration
		r.mu.Unlock()
		return errBadTrim(start, end, dur)
	}
	s, e := start, end
	c.TrimStart, c.TrimEnd = &s, &e
	r.recomputeLocked()
	r.mu.Unlock()
	r.notify()
	return nil
}

// TotalDuration is the sum of effective durations. Clips whose duration has
// not resolved yet contribute zero, so the total may briefly understate.
func (r *Registry) TotalDuration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, c := range r.clips {
		total += c.EffectiveDuration()
	}
	return total
}

// Len returns the clip count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clips)
}

// Clip returns a copy of the clip with the given id, or nil.
func (r *Registry) Clip(id string) *Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.findLocked(id); c != nil {
		return c.copyOut()
	}
	return nil
}

// ClipAt returns a copy of the clip at list position i, or nil.
func (r *Registry) ClipAt(i int) *Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.clips) {
		return nil
	}
	return r.clips[i].copyOut()
}

// Snapshot returns a copy of the ordered clip list, the shape both playback
// sequencing and compilation read so the two can never diverge.
func (r *Registry) Snapshot() []Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Clip, len(r.clips))
	for i, c := range r.clips {
		out[i] = *c.copyOut()
	}
	return out
}

// hasUpload reports whether a remote clip with the given upload id is
// already materialized.
func (r *Registry) hasUpload(uploadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clips {
		if c.Remote != nil && c.Remote.UploadID == uploadID {
			return true
		}
	}
	return false
}

// Close releases every clip's file and the scratch directory. The registry
// must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.clips = nil
	dir := r.dir
	r.mu.Unlock()
	return os.RemoveAll(dir)
}

func (r *Registry) materialize(id string, src io.Reader) (string, error) {
	path := filepath.Join(r.dir, id+".mp4")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write clip file: %w", err)
	}
	if n > validate.MaxClipBytes {
		_ = os.Remove(path)
		return "", errTooLarge(filepath.Base(path), n, validate.MaxClipBytes)
	}
	return path, nil
}

// deriveMetadata resolves duration and thumbnail after insertion. Failures
// are logged only; the clip stays usable with a provisional zero duration.
func (r *Registry) deriveMetadata(id, path string) {
	if r.meta == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dur, err := r.meta.Duration(ctx, path)
	if err != nil {
		slog.Warn("registry: duration probe failed", "clip", id, "error", err)
	}
	thumb, terr := r.meta.Thumbnail(ctx, path)
	if terr != nil {
		slog.Warn("registry: thumbnail derivation failed", "clip", id, "error", terr)
	}

	r.mu.Lock()
	c := r.findLocked(id)
	if c == nil {
		r.mu.Unlock()
		return
	}
	if err == nil && dur > 0 {
		d := dur
		c.Duration = &d
		if c.TrimEnd == nil {
			end := dur
			c.TrimEnd = &end
		}
	}
	if terr == nil {
		c.Thumbnail = thumb
	}
	r.recomputeLocked()
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) findLocked(id string) *Clip {
	for _, c := range r.clips {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// recomputeLocked refreshes every StartOffset from the current order and
// trim bounds; offsets strictly increase and sum to the total duration.
func (r *Registry) recomputeLocked() {
	var at float64
	for _, c := range r.clips {
		c.StartOffset = at
		at += c.EffectiveDuration()
	}
}

func (c *Clip) copyOut() *Clip {
	out := *c
	if c.Duration != nil {
		d := *c.Duration
		out.Duration = &d
	}
	if c.TrimStart != nil {
		s := *c.TrimStart
		out.TrimStart = &s
	}
	if c.TrimEnd != nil {
		e := *c.TrimEnd
		out.TrimEnd = &e
	}
	if c.Remote != nil {
		ref := *c.Remote
		out.Remote = &ref
	}
	return &out
}
