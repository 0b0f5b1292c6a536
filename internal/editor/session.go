// Package editor ties the timeline, playback, and compile layers into one
// editing session for a single event.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/keepsake/keepsake/internal/compile"
	"github.com/keepsake/keepsake/internal/playback"
	"github.com/keepsake/keepsake/internal/timeline"
)

// EventService is the slice of the server API a session needs: listing and
// deleting the contributors' uploads and storing the finished compilation.
type EventService interface {
	ListClips(ctx context.Context, eventID string) ([]timeline.RemoteClip, error)
	DeleteClip(ctx context.Context, eventID, uploadID string) error
	PublishCompiled(ctx context.Context, eventID string, video []byte) (string, error)
	GetCompiled(ctx context.Context, eventID string) (string, bool, error)
}

// ErrCompileInProgress rejects a second compilation while one is running.
var ErrCompileInProgress = errors.New("compilation already in progress")

// ErrNothingToPublish means Publish was called with no compiled video held.
var ErrNothingToPublish = errors.New("no compiled video to publish")

// Session is one editing workspace over an event's timeline. Like the
// playback controller it assumes the session's cooperative single-threaded
// model; only the registry beneath it deals with concurrent metadata
// updates.
type Session struct {
	eventID  string
	registry *timeline.Registry
	drag     *timeline.DragState
	control  *playback.Controller
	engine   *compile.Engine
	service  EventService
	loader   *timeline.Loader
	logger   *slog.Logger

	compiling bool
	compiled  []byte
}

func NewSession(eventID string, reg *timeline.Registry, inline playback.Surface, eng *compile.Engine, svc EventService, loader *timeline.Loader, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		eventID:  eventID,
		registry: reg,
		drag:     timeline.NewDragState(reg),
		control:  playback.NewController(&timelineSource{reg: reg}, inline),
		engine:   eng,
		service:  svc,
		loader:   loader,
		logger:   logger,
	}
}

func (s *Session) Registry() *timeline.Registry   { return s.registry }
func (s *Session) Drag() *timeline.DragState      { return s.drag }
func (s *Session) Playback() *playback.Controller { return s.control }

// AddClip validates and adds a local recording to the end of the timeline.
func (s *Session) AddClip(name, contentType string, size int64, src io.Reader) (*timeline.Clip, error) {
	clip, err := s.registry.Add(name, contentType, size, src)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return clip, nil
}

// RemoveClip deletes a clip and stops playback if it was the one loaded.
// A contributor clip is also deleted from the event: the timeline entry
// disappears optimistically and is put back when the server delete fails,
// so the next remote load cannot re-materialize a discarded clip.
func (s *Session) RemoveClip(ctx context.Context, id string) error {
	clip := s.registry.Clip(id)
	if clip == nil {
		return nil
	}
	s.control.ClipRemoved(id)

	if clip.Provenance == timeline.ProvenanceRemote && clip.Remote != nil {
		detached, at := s.registry.Detach(id)
		if detached == nil {
			return nil
		}
		if err := s.service.DeleteClip(ctx, s.eventID, detached.Remote.UploadID); err != nil {
			s.registry.Reattach(detached, at)
			return fmt.Errorf("removing %s's clip from the event failed: %w", detached.Remote.InviteeName, err)
		}
		s.registry.Release(detached)
	} else {
		s.registry.Remove(id)
	}

	s.invalidate()
	if s.registry.Len() == 0 {
		s.control.CloseSequence()
	}
	return nil
}

// MoveClip reorders the timeline.
func (s *Session) MoveClip(from, to int) error {
	if err := s.registry.Move(from, to); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// ApplyTrim commits a trim window and reseeks the clip if it is loaded.
func (s *Session) ApplyTrim(id string, start, end float64) error {
	if err := s.registry.ApplyTrim(id, start, end); err != nil {
		return err
	}
	s.control.TrimApplied(id, start)
	s.invalidate()
	return nil
}

// LoadRemoteClips pulls the event's contributor uploads into the timeline.
// Clips already present are left alone; individual download failures skip
// that clip rather than failing the load.
func (s *Session) LoadRemoteClips(ctx context.Context) error {
	clips, err := s.service.ListClips(ctx, s.eventID)
	if err != nil {
		return fmt.Errorf("list remote clips: %w", err)
	}
	if err := s.loader.Load(ctx, clips); err != nil {
		return fmt.Errorf("load remote clips: %w", err)
	}
	return nil
}

// Compile renders the timeline into a single video and publishes it,
// returning the share URL. The compiled bytes are kept on the session so a
// publish failure can be retried with Publish without re-encoding.
func (s *Session) Compile(ctx context.Context, onProgress func(pct int)) (string, error) {
	if s.compiling {
		return "", ErrCompileInProgress
	}
	s.compiling = true
	defer func() { s.compiling = false }()

	inputs, closers, err := s.collectInputs()
	if err != nil {
		return "", fmt.Errorf("compilation failed: %w", err)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	video, err := s.engine.Compile(ctx, inputs, onProgress)
	if err != nil {
		return "", fmt.Errorf("compilation failed: %w", err)
	}
	s.compiled = video

	return s.publish(ctx)
}

// Publish retries uploading the last compiled video without re-encoding.
func (s *Session) Publish(ctx context.Context) (string, error) {
	if len(s.compiled) == 0 {
		return "", ErrNothingToPublish
	}
	return s.publish(ctx)
}

// CompiledSize returns the size of the held compilation, zero if none.
func (s *Session) CompiledSize() int { return len(s.compiled) }

// ExistingCompilation checks whether the event already has a published
// video, letting the caller skip compiling entirely.
func (s *Session) ExistingCompilation(ctx context.Context) (string, bool, error) {
	return s.service.GetCompiled(ctx, s.eventID)
}

// Close releases the timeline's materialized clip files.
func (s *Session) Close() error {
	return s.registry.Close()
}

func (s *Session) publish(ctx context.Context) (string, error) {
	url, err := s.service.PublishCompiled(ctx, s.eventID, s.compiled)
	if err != nil {
		return "", fmt.Errorf("publishing failed: %w", err)
	}
	s.logger.Info("editor: compilation published", "event", s.eventID, "bytes", len(s.compiled), "url", url)
	s.compiled = nil
	return url, nil
}

// collectInputs opens every clip file in timeline order. The caller closes
// the returned files after the engine has consumed them.
func (s *Session) collectInputs() ([]compile.Input, []io.Closer, error) {
	clips := s.registry.Snapshot()
	if len(clips) == 0 {
		return nil, nil, compile.ErrNoClips
	}
	inputs := make([]compile.Input, 0, len(clips))
	closers := make([]io.Closer, 0, len(clips))
	for _, clip := range clips {
		f, err := os.Open(clip.SourcePath)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, nil, fmt.Errorf("open clip %s: %w", clip.ID, err)
		}
		closers = append(closers, f)
		in := compile.Input{Source: f, Duration: clip.EffectiveDuration()}
		if clip.Trimmed() {
			in.Start, in.End, in.Trimmed = *clip.TrimStart, *clip.TrimEnd, true
		}
		inputs = append(inputs, in)
	}
	return inputs, closers, nil
}

// invalidate drops the held compilation after any timeline edit so a stale
// video can never be published.
func (s *Session) invalidate() {
	s.compiled = nil
	s.drag.MarkEdited()
}

// timelineSource adapts the registry to the playback controller's view.
type timelineSource struct {
	reg *timeline.Registry
}

func (t *timelineSource) Len() int { return t.reg.Len() }

func (t *timelineSource) Entry(i int) (playback.Entry, bool) {
	clip := t.reg.ClipAt(i)
	if clip == nil {
		return playback.Entry{}, false
	}
	e := playback.Entry{ID: clip.ID, URI: clip.SourcePath}
	if clip.Trimmed() {
		e.TrimStart, e.TrimEnd = *clip.TrimStart, *clip.TrimEnd
	} else if clip.Duration != nil {
		e.TrimEnd = *clip.Duration
	}
	return e, true
}
