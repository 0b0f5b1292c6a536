package playback

import (
	"errors"
	"testing"
)

type fakeSurface struct {
	loaded   string
	seeks    []float64
	playing  bool
	playErr  error
	onLoaded func()
	onTime   func(float64)
	onEnded  func()
}

func (f *fakeSurface) LoadSource(uri string) { f.loaded = uri }
func (f *fakeSurface) Seek(t float64)        { f.seeks = append(f.seeks, t) }

func (f *fakeSurface) Play() error {
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakeSurface) Pause()                        { f.playing = false }
func (f *fakeSurface) OnLoaded(fn func())            { f.onLoaded = fn }
func (f *fakeSurface) OnTimeUpdate(fn func(float64)) { f.onTime = fn }
func (f *fakeSurface) OnEnded(fn func())             { f.onEnded = fn }

func (f *fakeSurface) finishLoad() { f.onLoaded() }
func (f *fakeSurface) tick(t float64) {
	if f.onTime != nil {
		f.onTime(t)
	}
}
func (f *fakeSurface) end() { f.onEnded() }

type listSource struct {
	entries []Entry
}

func (s *listSource) Len() int { return len(s.entries) }
func (s *listSource) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[i], true
}

func threeClips() *listSource {
	return &listSource{entries: []Entry{
		{ID: "a", URI: "file/a.mp4", TrimStart: 0, TrimEnd: 10},
		{ID: "b", URI: "file/b.mp4", TrimStart: 2, TrimEnd: 6},
		{ID: "c", URI: "file/c.mp4", TrimStart: 0, TrimEnd: 5},
	}}
}

func TestSelectClipSeeksTrimStartThenPlays(t *testing.T) {
	inline := &fakeSurface{}
	c := NewController(threeClips(), inline)

	if err := c.SelectClip(1); err != nil {
		t.Fatalf("SelectClip: %v", err)
	}
	if c.State() != Loading {
		t.Fatalf("state = %v, want Loading", c.State())
	}
	if inline.loaded != "file/b.mp4" {
		t.Fatalf("loaded %q, want file/b.mp4", inline.loaded)
	}

	inline.finishLoad()
	if c.State() != Playing {
		t.Fatalf("state = %v, want Playing", c.State())
	}
	if len(inline.seeks) != 1 || inline.seeks[0] != 2 {
		t.Fatalf("seeks = %v, want [2]", inline.seeks)
	}
	if !inline.playing {
		t.Fatal("surface not playing")
	}
}

func TestSelectClipOutOfRange(t *testing.T) {
	c := NewController(threeClips(), &fakeSurface{})
	if err := c.SelectClip(7); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if c.State() != Idle {
		t.Fatalf("state = %v, want Idle", c.State())
	}
}

func TestTrimEndPausesInlinePlayback(t *testing.T) {
	inline := &fakeSurface{}
	c := NewController(threeClips(), inline)
	if err := c.SelectClip(1); err != nil {
		t.Fatal(err)
	}
	inline.finishLoad()

	inline.tick(5.9)
	if c.State() != Playing {
		t.Fatalf("state = %v before trim end, want Playing", c.State())
	}

	inline.tick(6.0)
	if c.State() != Paused {
		t.Fatalf("state = %v at trim end, want Paused", c.State())
	}
	if inline.playing {
		t.Fatal("surface still playing past trim end")
	}
	// Inline preview never auto-advances.
	if got := c.CurrentIndex(); got != 1 {
		t.Fatalf("index = %d, want 1", got)
	}
}

func TestPlayAllAdvancesThroughSequence(t *testing.T) {
	inline := &fakeSurface{}
	seq := &fakeSurface{}
	done := 0
	c := NewController(threeClips(), inline)
	c.SetSequenceSurface(seq, func() { done++ })

	if err := c.PlayAll(); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	if !c.Sequencing() {
		t.Fatal("not sequencing after PlayAll")
	}

	// Clip a: runs to its trim end.
	seq.finishLoad()
	if seq.loaded != "file/a.mp4" {
		t.Fatalf("loaded %q, want file/a.mp4", seq.loaded)
	}
	seq.tick(10)
	if seq.loaded != "file/b.mp4" {
		t.Fatalf("loaded %q after advance, want file/b.mp4", seq.loaded)
	}

	// Clip b: the media ends on its own before the trim boundary fires.
	seq.finishLoad()
	if got := seq.seeks[len(seq.seeks)-1]; got != 2 {
		t.Fatalf("seek = %v, want trim start 2", got)
	}
	seq.end()
	if seq.loaded != "file/c.mp4" {
		t.Fatalf("loaded %q after ended, want file/c.mp4", seq.loaded)
	}

	// Clip c is the last one: finishing closes the sequence.
	seq.finishLoad()
	seq.tick(5)
	if c.State() != Idle {
		t.Fatalf("state = %v after last clip, want Idle", c.State())
	}
	if done != 1 {
		t.Fatalf("sequence done callback ran %d times, want 1", done)
	}
	if c.Sequencing() {
		t.Fatal("still sequencing after final clip")
	}
}

func TestPlayAllRestartsFromFirstClip(t *testing.T) {
	inline := &fakeSurface{}
	seq := &fakeSurface{}
	c := NewController(threeClips(), inline)
	c.SetSequenceSurface(seq, nil)

	if err := c.SelectClip(2); err != nil {
		t.Fatal(err)
	}
	inline.finishLoad()

	if err := c.PlayAll(); err != nil {
		t.Fatal(err)
	}
	if inline.playing {
		t.Fatal("inline surface kept playing during sequence start")
	}
	if seq.loaded != "file/a.mp4" {
		t.Fatalf("sequence started with %q, want file/a.mp4", seq.loaded)
	}
	if got := c.CurrentIndex(); got != 0 {
		t.Fatalf("index = %d, want 0", got)
	}
}

func TestPlayAllEmptyTimeline(t *testing.T) {
	c := NewController(&listSource{}, &fakeSurface{})
	c.SetSequenceSurface(&fakeSurface{}, nil)
	if err := c.PlayAll(); !errors.Is(err, ErrNoClips) {
		t.Fatalf("err = %v, want ErrNoClips", err)
	}
}

func TestCloseSequenceStopsImmediately(t *testing.T) {
	seq := &fakeSurface{}
	c := NewController(threeClips(), &fakeSurface{})
	c.SetSequenceSurface(seq, nil)

	if err := c.PlayAll(); err != nil {
		t.Fatal(err)
	}
	seq.finishLoad()

	c.CloseSequence()
	if seq.playing {
		t.Fatal("sequence surface still playing after close")
	}
	if c.State() != Idle || c.Sequencing() {
		t.Fatalf("state = %v sequencing = %v, want Idle/false", c.State(), c.Sequencing())
	}
}

func TestPlayRejectionLeavesPaused(t *testing.T) {
	inline := &fakeSurface{playErr: errors.New("decode failure")}
	c := NewController(threeClips(), inline)

	if err := c.SelectClip(0); err != nil {
		t.Fatal(err)
	}
	inline.finishLoad()
	if c.State() != Paused {
		t.Fatalf("state = %v after play rejection, want Paused", c.State())
	}
	if got := c.CurrentIndex(); got != 0 {
		t.Fatalf("index = %d, want clip to stay loaded", got)
	}
}

func TestClipRemovedResetsOnlyForLoadedClip(t *testing.T) {
	inline := &fakeSurface{}
	c := NewController(threeClips(), inline)
	if err := c.SelectClip(0); err != nil {
		t.Fatal(err)
	}
	inline.finishLoad()

	c.ClipRemoved("b")
	if c.State() != Playing {
		t.Fatalf("state = %v after removing another clip, want Playing", c.State())
	}

	c.ClipRemoved("a")
	if c.State() != Idle {
		t.Fatalf("state = %v after removing loaded clip, want Idle", c.State())
	}
	if inline.playing {
		t.Fatal("surface still playing after loaded clip removed")
	}
}

func TestTrimAppliedReseeksLoadedClip(t *testing.T) {
	inline := &fakeSurface{}
	c := NewController(threeClips(), inline)
	if err := c.SelectClip(0); err != nil {
		t.Fatal(err)
	}
	inline.finishLoad()

	c.TrimApplied("a", 3.5)
	if got := inline.seeks[len(inline.seeks)-1]; got != 3.5 {
		t.Fatalf("seek = %v, want 3.5", got)
	}

	before := len(inline.seeks)
	c.TrimApplied("b", 1)
	if len(inline.seeks) != before {
		t.Fatal("trim on unloaded clip must not seek")
	}
}

func TestTrimEndHoldsAfterReorderUnderPlayingClip(t *testing.T) {
	src := threeClips()
	inline := &fakeSurface{}
	c := NewController(src, inline)
	if err := c.SelectClip(1); err != nil {
		t.Fatal(err)
	}
	inline.finishLoad()

	// Clip b moves to the front while it is playing.
	src.entries = []Entry{src.entries[1], src.entries[0], src.entries[2]}

	inline.tick(6.0)
	if c.State() != Paused {
		t.Fatalf("state = %v at trim end after reorder, want Paused", c.State())
	}
	if inline.playing {
		t.Fatal("surface overran the trim boundary after reorder")
	}
	if got := c.CurrentIndex(); got != 0 {
		t.Fatalf("index = %d, want the clip's new position 0", got)
	}
}

func TestSequenceAdvancesFromMovedClip(t *testing.T) {
	src := threeClips()
	seq := &fakeSurface{}
	c := NewController(src, &fakeSurface{})
	c.SetSequenceSurface(seq, nil)
	if err := c.PlayAll(); err != nil {
		t.Fatal(err)
	}
	seq.finishLoad()

	// Clip a moves to the middle while it is playing; the sequence must
	// continue with whatever follows it now.
	src.entries = []Entry{src.entries[1], src.entries[0], src.entries[2]}

	seq.tick(10)
	if seq.loaded != "file/c.mp4" {
		t.Fatalf("loaded %q after advance, want file/c.mp4", seq.loaded)
	}
}

func TestStaleLoadAfterTimelineChange(t *testing.T) {
	src := threeClips()
	inline := &fakeSurface{}
	c := NewController(src, inline)
	if err := c.SelectClip(2); err != nil {
		t.Fatal(err)
	}

	// The clip at the loading index is replaced before decode finishes.
	src.entries = src.entries[:2]
	inline.finishLoad()
	if c.State() != Idle {
		t.Fatalf("state = %v after stale load, want Idle", c.State())
	}
}
