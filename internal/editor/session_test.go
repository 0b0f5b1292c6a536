package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/keepsake/keepsake/internal/compile"
	"github.com/keepsake/keepsake/internal/timeline"
)

type fixedMeta struct {
	duration float64
}

func (m fixedMeta) Duration(context.Context, string) (float64, error) { return m.duration, nil }
func (m fixedMeta) Thumbnail(context.Context, string) ([]byte, error) { return []byte{1}, nil }

type nullSurface struct {
	onLoaded func()
	playing  bool
}

func (s *nullSurface) LoadSource(string) {
	if s.onLoaded != nil {
		s.onLoaded()
	}
}
func (s *nullSurface) Seek(float64) {}
func (s *nullSurface) Play() error {
	s.playing = true
	return nil
}
func (s *nullSurface) Pause()                     { s.playing = false }
func (s *nullSurface) OnLoaded(fn func())         { s.onLoaded = fn }
func (s *nullSurface) OnTimeUpdate(func(float64)) {}
func (s *nullSurface) OnEnded(func())             {}

type fakeService struct {
	remote     []timeline.RemoteClip
	published  [][]byte
	publishErr error
	deleteErr  error
	deleted    []string
	watchURL   string
	existing   string
}

func (f *fakeService) ListClips(context.Context, string) ([]timeline.RemoteClip, error) {
	return f.remote, nil
}

// DeleteClip mirrors the server: a successful delete drops the upload from
// subsequent listings.
func (f *fakeService) DeleteClip(_ context.Context, _ string, uploadID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, uploadID)
	kept := f.remote[:0]
	for _, rc := range f.remote {
		if rc.UploadID != uploadID {
			kept = append(kept, rc)
		}
	}
	f.remote = kept
	return nil
}

func (f *fakeService) PublishCompiled(_ context.Context, _ string, video []byte) (string, error) {
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.published = append(f.published, video)
	return f.watchURL, nil
}

func (f *fakeService) GetCompiled(context.Context, string) (string, bool, error) {
	if f.existing == "" {
		return "", false, nil
	}
	return f.existing, true, nil
}

// memTranscoder is an in-memory Transcoder whose Exec count tracks how many
// encodes actually ran.
type memTranscoder struct {
	files    map[string][]byte
	execs    [][]string
	encodes  int
	progress func(float64)
}

func newMemTranscoder() *memTranscoder { return &memTranscoder{files: map[string][]byte{}} }

func (m *memTranscoder) WriteInput(name string, src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	m.files[name] = data
	return nil
}

func (m *memTranscoder) Exec(_ context.Context, args []string) error {
	m.encodes++
	m.execs = append(m.execs, args)
	if m.progress != nil {
		m.progress(1)
	}
	m.files[args[len(args)-1]] = []byte(strings.Join(args, " "))
	return nil
}

func (m *memTranscoder) ReadOutput(name string) ([]byte, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("no such file %s", name)
	}
	return data, nil
}

func (m *memTranscoder) ListFiles() ([]string, error) {
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memTranscoder) DeleteFile(name string) error {
	delete(m.files, name)
	return nil
}

func (m *memTranscoder) OnProgress(fn func(float64)) { m.progress = fn }

type fakeFetcher struct {
	fetches int
}

func (f *fakeFetcher) FetchClip(_ context.Context, _ string, destPath string) error {
	f.fetches++
	return os.WriteFile(destPath, []byte("remote bytes"), 0o644)
}

type fixture struct {
	session *Session
	service *fakeService
	trans   *memTranscoder
	inline  *nullSurface
	fetcher *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := timeline.NewRegistry(fixedMeta{duration: 10})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })

	svc := &fakeService{watchURL: "http://share/ok"}
	tr := newMemTranscoder()
	inline := &nullSurface{}
	fetcher := &fakeFetcher{}
	s := NewSession("ev1", reg, inline, compile.NewEngine(tr), svc, timeline.NewLoader(reg, fetcher), nil)
	return &fixture{session: s, service: svc, trans: tr, inline: inline, fetcher: fetcher}
}

func (f *fixture) addClip(t *testing.T, name string) string {
	t.Helper()
	clip, err := f.session.AddClip(name, "video/mp4", 3, strings.NewReader("abc"))
	if err != nil {
		t.Fatal(err)
	}
	f.waitForDuration(t, clip.ID)
	return clip.ID
}

// waitForDuration blocks until async metadata resolution lands.
func (f *fixture) waitForDuration(t *testing.T, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c := f.session.Registry().Clip(id); c != nil && c.Duration != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("duration for clip %s never resolved", id)
}

func TestCompilePublishesAndReturnsURL(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "a.mp4")
	f.addClip(t, "b.mp4")

	var last int
	url, err := f.session.Compile(context.Background(), func(p int) { last = p })
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if url != "http://share/ok" {
		t.Fatalf("url = %q", url)
	}
	if last != 100 {
		t.Fatalf("final progress = %d, want 100", last)
	}
	if len(f.service.published) != 1 {
		t.Fatalf("published %d videos, want 1", len(f.service.published))
	}
	// 2 normalizes + 1 concat.
	if f.trans.encodes != 3 {
		t.Fatalf("encodes = %d, want 3", f.trans.encodes)
	}
	if f.session.CompiledSize() != 0 {
		t.Fatal("compiled blob kept after successful publish")
	}
}

func TestCompileEmptyTimeline(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Compile(context.Background(), nil)
	if !errors.Is(err, compile.ErrNoClips) {
		t.Fatalf("err = %v, want ErrNoClips", err)
	}
}

func TestPublishRetriesWithoutRecompile(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "a.mp4")

	f.service.publishErr = errors.New("503")
	_, err := f.session.Compile(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "publishing failed") {
		t.Fatalf("err = %v, want publishing failure", err)
	}
	if f.session.CompiledSize() == 0 {
		t.Fatal("compiled blob dropped on publish failure")
	}
	encodesAfterCompile := f.trans.encodes

	f.service.publishErr = nil
	url, err := f.session.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish retry: %v", err)
	}
	if url != "http://share/ok" {
		t.Fatalf("url = %q", url)
	}
	if f.trans.encodes != encodesAfterCompile {
		t.Fatal("retry re-encoded instead of reusing the held video")
	}
}

func TestPublishWithoutCompile(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.Publish(context.Background()); !errors.Is(err, ErrNothingToPublish) {
		t.Fatalf("err = %v, want ErrNothingToPublish", err)
	}
}

func TestEditInvalidatesHeldCompilation(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "a.mp4")
	f.addClip(t, "b.mp4")

	f.service.publishErr = errors.New("down")
	if _, err := f.session.Compile(context.Background(), nil); err == nil {
		t.Fatal("expected publish failure")
	}

	if err := f.session.MoveClip(0, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.session.Publish(context.Background()); !errors.Is(err, ErrNothingToPublish) {
		t.Fatalf("stale compilation still publishable after reorder: %v", err)
	}
}

func TestApplyTrimFeedsCompileWindow(t *testing.T) {
	f := newFixture(t)
	id := f.addClip(t, "a.mp4")

	if err := f.session.ApplyTrim(id, 2, 6); err != nil {
		t.Fatalf("ApplyTrim: %v", err)
	}
	if _, err := f.session.Compile(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	normalize := strings.Join(f.trans.execs[0], " ")
	if !strings.Contains(normalize, "-ss 2") || !strings.Contains(normalize, "-to 6") {
		t.Fatalf("normalize missing trim window: %s", normalize)
	}
}

func TestRemoveLastClipStopsPlayback(t *testing.T) {
	f := newFixture(t)
	id := f.addClip(t, "a.mp4")

	if err := f.session.Playback().SelectClip(0); err != nil {
		t.Fatal(err)
	}
	if !f.inline.playing {
		t.Fatal("clip did not start playing")
	}

	if err := f.session.RemoveClip(context.Background(), id); err != nil {
		t.Fatalf("RemoveClip: %v", err)
	}
	if f.inline.playing {
		t.Fatal("surface still playing after its clip was removed")
	}
	if f.session.Registry().Len() != 0 {
		t.Fatal("clip not removed")
	}
	if len(f.service.deleted) != 0 {
		t.Fatal("local clip removal reached the server")
	}
}

// loadRemote lists the fixture's remote clips into the timeline and waits
// for their metadata.
func (f *fixture) loadRemote(t *testing.T) {
	t.Helper()
	if err := f.session.LoadRemoteClips(context.Background()); err != nil {
		t.Fatalf("LoadRemoteClips: %v", err)
	}
	for _, rc := range f.service.remote {
		f.waitForDuration(t, "remote-"+rc.UploadID)
	}
}

func TestRemoveRemoteClipDeletesUpload(t *testing.T) {
	f := newFixture(t)
	f.service.remote = []timeline.RemoteClip{
		{UploadID: "up1", InviteeID: "inv1", InviteeName: "Maya", FileURL: "http://files/up1"},
	}
	f.loadRemote(t)

	if err := f.session.RemoveClip(context.Background(), "remote-up1"); err != nil {
		t.Fatalf("RemoveClip: %v", err)
	}
	if len(f.service.deleted) != 1 || f.service.deleted[0] != "up1" {
		t.Fatalf("deleted uploads = %v, want [up1]", f.service.deleted)
	}

	// Listing again must not bring the clip back.
	if err := f.session.LoadRemoteClips(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := f.session.Registry().Len(); n != 0 {
		t.Fatalf("removed contributor clip reappeared, timeline has %d clips", n)
	}
	if f.fetcher.fetches != 1 {
		t.Fatalf("fetches = %d, want 1", f.fetcher.fetches)
	}
}

func TestRemoveRemoteClipRestoredWhenDeleteFails(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "a.mp4")
	f.service.remote = []timeline.RemoteClip{
		{UploadID: "up1", InviteeID: "inv1", InviteeName: "Maya", FileURL: "http://files/up1"},
	}
	f.loadRemote(t)
	f.addClip(t, "b.mp4")

	f.service.deleteErr = errors.New("503")
	err := f.session.RemoveClip(context.Background(), "remote-up1")
	if err == nil {
		t.Fatal("expected an error when the server delete fails")
	}
	if !strings.Contains(err.Error(), "Maya") {
		t.Fatalf("error does not name the contributor: %v", err)
	}

	clip := f.session.Registry().ClipAt(1)
	if clip == nil || clip.ID != "remote-up1" {
		t.Fatalf("clip not restored at its former position, got %+v", clip)
	}
	if _, statErr := os.Stat(clip.SourcePath); statErr != nil {
		t.Fatalf("restored clip lost its source file: %v", statErr)
	}
}

func TestCompileRejectsReentry(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "a.mp4")

	var inner error
	reentered := false
	_, err := f.session.Compile(context.Background(), func(int) {
		if !reentered {
			reentered = true
			_, inner = f.session.Compile(context.Background(), nil)
		}
	})
	if err != nil {
		t.Fatalf("outer Compile: %v", err)
	}
	if !errors.Is(inner, ErrCompileInProgress) {
		t.Fatalf("inner err = %v, want ErrCompileInProgress", inner)
	}
}

func TestExistingCompilation(t *testing.T) {
	f := newFixture(t)
	f.service.existing = "http://share/old"
	url, ok, err := f.session.ExistingCompilation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ok || url != "http://share/old" {
		t.Fatalf("got %q %v", url, ok)
	}
}
