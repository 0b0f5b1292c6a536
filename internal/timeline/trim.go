package timeline

// PreviewSeeker repositions a preview player's scrub position while a trim
// handle is being dragged. Optional; nil disables preview seeking.
type PreviewSeeker interface {
	Seek(seconds float64)
}

// DefaultTrimStep is the minimum gap between the two trim handles when the
// caller does not configure one. Fractional-second granularity is supported.
const DefaultTrimStep = 0.1

// TrimSession holds the in-flight state of a two-handle trim edit. Handle
// drags update only the session (and the preview scrub position); the
// registry is untouched until Apply.
type TrimSession struct {
	registry *Registry
	clipID   string
	duration float64
	step     float64
	start    float64
	end      float64
	preview  PreviewSeeker
}

// NewTrimSession opens a trim edit for the given clip. The clip's duration
// must already be known; the handles start at the clip's current bounds.
func NewTrimSession(registry *Registry, clipID string, step float64) (*TrimSession, error) {
	c := registry.Clip(clipID)
	if c == nil {
		return nil, &ValidationError{Constraint: "trim", Message: "clip is no longer in the timeline"}
	}
	if c.Duration == nil {
		return nil, &ValidationError{Constraint: "trim", Message: "clip duration has not loaded yet"}
	}
	if step <= 0 {
		step = DefaultTrimStep
	}
	// A clip shorter than the step would otherwise push the clamps past
	// [0, duration] and make every Apply fail.
	if step > *c.Duration {
		step = *c.Duration
	}
	s := &TrimSession{
		registry: registry,
		clipID:   clipID,
		duration: *c.Duration,
		step:     step,
		end:      *c.Duration,
	}
	if c.TrimStart != nil {
		s.start = *c.TrimStart
	}
	if c.TrimEnd != nil {
		s.end = *c.TrimEnd
	}
	return s, nil
}

// AttachPreview wires a preview player that follows handle drags.
func (s *TrimSession) AttachPreview(p PreviewSeeker) {
	s.preview = p
}

// DragStart moves the start handle. It clamps to [0, end-step] so the
// handles can never cross or coincide, then scrubs the preview to the new
// start.
func (s *TrimSession) DragStart(v float64) {
	if v < 0 {
		v = 0
	}
	if v > s.end-s.step {
		v = s.end - s.step
	}
	s.start = v
	if s.preview != nil {
		s.preview.Seek(s.start)
	}
}

// DragEnd moves the end handle, clamped to [start+step, duration].
func (s *TrimSession) DragEnd(v float64) {
	if v > s.duration {
		v = s.duration
	}
	if v < s.start+s.step {
		v = s.start + s.step
	}
	s.end = v
	if s.preview != nil {
		s.preview.Seek(s.end)
	}
}

// Bounds returns the current handle positions.
func (s *TrimSession) Bounds() (start, end float64) {
	return s.start, s.end
}

// Window is the selected length in seconds.
func (s *TrimSession) Window() float64 {
	return s.end - s.start
}

// Apply commits the session bounds to the registry.
func (s *TrimSession) Apply() error {
	return s.registry.ApplyTrim(s.clipID, s.start, s.end)
}
