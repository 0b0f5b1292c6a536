package playback

import (
	"errors"
	"fmt"
	"log/slog"
)

// State of the controller's single active rendering surface.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Entry is one playable timeline position. TrimEnd of zero means no trim
// boundary is known yet.
type Entry struct {
	ID        string
	URI       string
	TrimStart float64
	TrimEnd   float64
}

// Source is the controller's read-only view of the timeline. Playback and
// compilation both read the same ordered list, so the two can never
// disagree about sequence order.
type Source interface {
	Len() int
	Entry(i int) (Entry, bool)
}

// ErrNoClips rejects PlayAll on an empty timeline.
var ErrNoClips = errors.New("no clips to play")

// MediaError wraps a decode or play rejection from a surface. Playback
// stays in its last stable state; the user may retry manually.
type MediaError struct {
	ClipID string
	Err    error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media playback failed for clip %s: %v", e.ClipID, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// Controller sequences an ordered, trimmed playlist over two surfaces: an
// inline surface for single-clip preview and a dedicated sequence surface
// for full-timeline playback, so the two never fight over one element.
//
// The controller follows the session's cooperative scheduling model: calls
// and surface events arrive on a single goroutine.
type Controller struct {
	src      Source
	inline   Surface
	sequence Surface

	active     Surface
	state      State
	index      int
	currentID  string
	sequencing bool
	loadGen    int

	onSequenceDone func()
}

func NewController(src Source, inline Surface) *Controller {
	c := &Controller{src: src, inline: inline, index: -1}
	c.wireSurface(inline)
	return c
}

// SetSequenceSurface attaches the full-sequence surface (e.g. a modal
// player). onDone runs when sequence playback finishes on its own, letting
// the owner close the modal context.
func (c *Controller) SetSequenceSurface(s Surface, onDone func()) {
	c.sequence = s
	c.onSequenceDone = onDone
	c.wireSurface(s)
}

func (c *Controller) wireSurface(s Surface) {
	s.OnLoaded(func() { c.handleLoaded(s) })
	s.OnTimeUpdate(func(t float64) { c.handleTimeUpdate(s, t) })
	s.OnEnded(func() { c.handleEnded(s) })
}

// State returns the current playback state.
func (c *Controller) State() State { return c.state }

// CurrentIndex returns the loaded clip's list index, or -1.
func (c *Controller) CurrentIndex() int {
	if c.currentID == "" {
		return -1
	}
	return c.index
}

// Sequencing reports whether full-sequence playback is active.
func (c *Controller) Sequencing() bool { return c.sequencing }

// SelectClip loads the clip at index i into the inline surface for
// single-clip preview. Anything currently playing is paused first so two
// sources never play over each other.
func (c *Controller) SelectClip(i int) error {
	entry, ok := c.src.Entry(i)
	if !ok {
		return fmt.Errorf("no clip at index %d", i)
	}
	if c.state == Playing && c.active != nil {
		c.active.Pause()
	}
	c.sequencing = false
	c.active = c.inline
	c.load(i, entry)
	return nil
}

// PlayAll starts full-sequence playback from the first clip, regardless of
// any previously selected index. It requires at least one clip and an
// attached sequence surface.
func (c *Controller) PlayAll() error {
	if c.src.Len() == 0 {
		return ErrNoClips
	}
	if c.sequence == nil {
		return errors.New("no sequence surface attached")
	}
	entry, ok := c.src.Entry(0)
	if !ok {
		return ErrNoClips
	}
	if c.state == Playing && c.active != nil {
		c.active.Pause()
	}
	c.sequencing = true
	c.active = c.sequence
	c.load(0, entry)
	return nil
}

// CloseSequence aborts sequence playback: the active surface is paused
// synchronously and the controller resets to Idle.
func (c *Controller) CloseSequence() {
	if c.active != nil {
		c.active.Pause()
	}
	c.reset()
}

// ClipRemoved tells the controller a clip left the timeline. If it is the
// loaded clip, playback stops so no automatic advance can land on it.
func (c *Controller) ClipRemoved(id string) {
	if c.currentID != id {
		return
	}
	if c.active != nil {
		c.active.Pause()
	}
	c.reset()
}

// TrimApplied repositions playback when the loaded clip's trim start moved;
// no reselect is needed.
func (c *Controller) TrimApplied(id string, newStart float64) {
	if c.currentID != id || c.active == nil {
		return
	}
	c.active.Seek(newStart)
}

// Pause stops the active surface without resetting the loaded clip.
func (c *Controller) Pause() {
	if c.state != Playing || c.active == nil {
		return
	}
	c.active.Pause()
	c.state = Paused
}

func (c *Controller) load(i int, entry Entry) {
	c.state = Loading
	c.index = i
	c.currentID = entry.ID
	c.loadGen++
	c.active.LoadSource(entry.URI)
}

func (c *Controller) handleLoaded(s Surface) {
	if s != c.active || c.state != Loading {
		return
	}
	entry, ok := c.src.Entry(c.index)
	if !ok || entry.ID != c.currentID {
		// The timeline changed while the source was decoding.
		c.reset()
		return
	}
	c.active.Seek(entry.TrimStart)
	if err := c.active.Play(); err != nil {
		slog.Warn("playback: play rejected", "error", &MediaError{ClipID: entry.ID, Err: err})
		c.state = Paused
		return
	}
	c.state = Playing
}

// entryForCurrent resolves the playing clip by id rather than trusting the
// held index: a reorder under the playing clip moves it without notice.
// The index is refreshed so a later advance continues from the clip's new
// position.
func (c *Controller) entryForCurrent() (Entry, bool) {
	if entry, ok := c.src.Entry(c.index); ok && entry.ID == c.currentID {
		return entry, true
	}
	for i := 0; i < c.src.Len(); i++ {
		if entry, ok := c.src.Entry(i); ok && entry.ID == c.currentID {
			c.index = i
			return entry, true
		}
	}
	return Entry{}, false
}

func (c *Controller) handleTimeUpdate(s Surface, t float64) {
	if s != c.active || c.state != Playing {
		return
	}
	entry, ok := c.entryForCurrent()
	if !ok {
		return
	}
	if entry.TrimEnd > 0 && t >= entry.TrimEnd {
		// Pause before any frames past the trim boundary can show.
		c.active.Pause()
		c.state = Paused
		if c.sequencing {
			c.advance()
		}
	}
}

func (c *Controller) handleEnded(s Surface) {
	if s != c.active || c.state != Playing {
		return
	}
	c.state = Paused
	if c.sequencing {
		c.advance()
	}
}

func (c *Controller) advance() {
	next := c.index + 1
	entry, ok := c.src.Entry(next)
	if !ok {
		done := c.onSequenceDone
		wasSequencing := c.sequencing
		c.reset()
		if wasSequencing && done != nil {
			done()
		}
		return
	}
	c.load(next, entry)
}

func (c *Controller) reset() {
	c.state = Idle
	c.index = -1
	c.currentID = ""
	c.sequencing = false
}
