package playback

// Surface is the capability a rendering target must provide: assign a
// source, seek, start and stop playback, and report load/time/end events.
// One implementation exists per platform media primitive; tests use a fake.
type Surface interface {
	LoadSource(uri string)
	Seek(seconds float64)
	Play() error
	Pause()
	OnLoaded(fn func())
	OnTimeUpdate(fn func(seconds float64))
	OnEnded(fn func())
}

// Discard is a headless surface for sessions that never preview, such as
// the command-line editor.
type Discard struct{}

func (Discard) LoadSource(string)          {}
func (Discard) Seek(float64)               {}
func (Discard) Play() error                { return nil }
func (Discard) Pause()                     {}
func (Discard) OnLoaded(func())            {}
func (Discard) OnTimeUpdate(func(float64)) {}
func (Discard) OnEnded(func())             {}
