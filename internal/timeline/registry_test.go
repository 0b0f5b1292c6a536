package timeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// contentMeta derives a clip's duration from its file content, so tests can
// pick durations by writing them as the clip bytes.
type contentMeta struct{}

func (contentMeta) Duration(_ context.Context, path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
}

func (contentMeta) Thumbnail(context.Context, string) ([]byte, error) {
	return []byte{0xff}, nil
}

// failingMeta never resolves metadata.
type failingMeta struct{}

func (failingMeta) Duration(context.Context, string) (float64, error) {
	return 0, errors.New("probe failed")
}

func (failingMeta) Thumbnail(context.Context, string) ([]byte, error) {
	return nil, errors.New("no thumbnail")
}

func newTestRegistry(t *testing.T, meta MetadataSource) *Registry {
	t.Helper()
	r, err := NewRegistry(meta)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func addClip(t *testing.T, r *Registry, seconds float64) *Clip {
	t.Helper()
	body := strconv.FormatFloat(seconds, 'f', -1, 64)
	clip, err := r.Add("clip.mp4", "video/mp4", int64(len(body)), strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	waitDuration(t, r, clip.ID)
	return r.Clip(clip.ID)
}

func waitDuration(t *testing.T, r *Registry, id string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c := r.Clip(id); c != nil && c.Duration != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("duration for clip %s never resolved", id)
}

func TestAddRejectsWrongType(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	_, err := r.Add("doc.pdf", "application/pdf", 10, strings.NewReader("x"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Constraint != "type" {
		t.Fatalf("constraint = %q, want type", verr.Constraint)
	}
	if r.Len() != 0 {
		t.Fatal("rejected file still added")
	}
}

func TestAddRejectsOversizedFile(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	size := int64(60 * 1024 * 1024)
	_, err := r.Add("big.mp4", "video/mp4", size, strings.NewReader("x"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Constraint != "size" {
		t.Fatalf("constraint = %q, want size", verr.Constraint)
	}
	if !strings.Contains(verr.Message, "50 MB") {
		t.Fatalf("message does not name the ceiling: %q", verr.Message)
	}
	if !strings.Contains(verr.Message, fmt.Sprintf("%d", size)) {
		t.Fatalf("message does not name the actual size: %q", verr.Message)
	}
}

func TestTotalDurationTracksTrimAndOrder(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	a := addClip(t, r, 10)
	b := addClip(t, r, 8)

	if got := r.TotalDuration(); got != 18 {
		t.Fatalf("total = %v, want 18", got)
	}

	if err := r.ApplyTrim(b.ID, 2, 6); err != nil {
		t.Fatalf("ApplyTrim: %v", err)
	}
	if got := r.TotalDuration(); got != 14 {
		t.Fatalf("total after trim = %v, want 14", got)
	}

	// Move B first: offsets follow the new order and the trimmed length.
	if err := r.Move(1, 0); err != nil {
		t.Fatal(err)
	}
	if got := r.Clip(b.ID).StartOffset; got != 0 {
		t.Fatalf("B offset = %v, want 0", got)
	}
	if got := r.Clip(a.ID).StartOffset; got != 4 {
		t.Fatalf("A offset = %v, want 4", got)
	}
	if got := r.TotalDuration(); got != 14 {
		t.Fatalf("total after reorder = %v, want 14", got)
	}
}

func TestApplyTrimRejectionLeavesBounds(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	c := addClip(t, r, 10)

	if err := r.ApplyTrim(c.ID, 3, 7); err != nil {
		t.Fatal(err)
	}

	for _, bounds := range [][2]float64{{-1, 5}, {5, 5}, {6, 4}, {0, 11}} {
		err := r.ApplyTrim(c.ID, bounds[0], bounds[1])
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("ApplyTrim(%v) = %v, want *ValidationError", bounds, err)
		}
		got := r.Clip(c.ID)
		if *got.TrimStart != 3 || *got.TrimEnd != 7 {
			t.Fatalf("bounds changed on rejection: [%v, %v]", *got.TrimStart, *got.TrimEnd)
		}
	}
}

func TestApplyTrimUnknownDuration(t *testing.T) {
	r := newTestRegistry(t, failingMeta{})
	clip, err := r.Add("a.mp4", "video/mp4", 2, strings.NewReader("10"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.ApplyTrim(clip.ID, 1, 2); err == nil {
		t.Fatal("trim accepted before duration resolved")
	}
}

func TestRemoveReleasesClipFile(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	a := addClip(t, r, 5)
	b := addClip(t, r, 5)

	if remaining := r.Remove(a.ID); remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
	if _, err := os.Stat(a.SourcePath); !os.IsNotExist(err) {
		t.Fatalf("clip file not released: %v", err)
	}
	if _, err := os.Stat(b.SourcePath); err != nil {
		t.Fatalf("wrong file released: %v", err)
	}
	if got := r.Clip(b.ID).StartOffset; got != 0 {
		t.Fatalf("offset = %v after removal, want 0", got)
	}
}

func TestDetachKeepsFileAndReattachRestoresOrder(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	a := addClip(t, r, 5)
	b := addClip(t, r, 5)
	c := addClip(t, r, 5)

	detached, at := r.Detach(b.ID)
	if detached == nil || at != 1 {
		t.Fatalf("Detach = (%v, %d), want clip at 1", detached, at)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d after detach, want 2", r.Len())
	}
	if _, err := os.Stat(detached.SourcePath); err != nil {
		t.Fatalf("detached clip file gone: %v", err)
	}

	r.Reattach(detached, at)
	order := []string{a.ID, b.ID, c.ID}
	for i, want := range order {
		if got := r.ClipAt(i).ID; got != want {
			t.Fatalf("clip %d = %s, want %s", i, got, want)
		}
	}
	if got := r.ClipAt(2).StartOffset; got == 0 {
		t.Fatal("offsets not recomputed after reattach")
	}

	detached, _ = r.Detach(b.ID)
	r.Release(detached)
	if _, err := os.Stat(detached.SourcePath); !os.IsNotExist(err) {
		t.Fatalf("released clip file still present: %v", err)
	}
}

func TestDetachUnknownClip(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	if c, at := r.Detach("nope"); c != nil || at != -1 {
		t.Fatalf("Detach = (%v, %d), want (nil, -1)", c, at)
	}
}

func TestUnresolvedDurationContributesZero(t *testing.T) {
	r := newTestRegistry(t, failingMeta{})
	if _, err := r.Add("a.mp4", "video/mp4", 2, strings.NewReader("10")); err != nil {
		t.Fatal(err)
	}
	// Probe failure leaves duration nil; the clip stays but counts as zero.
	time.Sleep(50 * time.Millisecond)
	if got := r.TotalDuration(); got != 0 {
		t.Fatalf("total = %v, want 0 while duration unknown", got)
	}
	if r.Len() != 1 {
		t.Fatal("clip dropped on probe failure")
	}
}

func TestMoveOutOfRange(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	addClip(t, r, 5)
	for _, mv := range [][2]int{{-1, 0}, {0, 1}, {3, 0}} {
		if err := r.Move(mv[0], mv[1]); err == nil {
			t.Errorf("Move(%d, %d) accepted", mv[0], mv[1])
		}
	}
}

func TestSubscribeSeesMetadataResolution(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	notified := make(chan struct{}, 16)
	r.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	addClip(t, r, 5)

	// At least the insert and the metadata resolution must notify.
	count := 0
	for {
		select {
		case <-notified:
			count++
		case <-time.After(100 * time.Millisecond):
			if count < 2 {
				t.Fatalf("got %d notifications, want at least 2", count)
			}
			return
		}
	}
}

func TestCloseRemovesScratchDir(t *testing.T) {
	r, err := NewRegistry(contentMeta{})
	if err != nil {
		t.Fatal(err)
	}
	c := addClip(t, r, 5)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.SourcePath); !os.IsNotExist(err) {
		t.Fatal("clip file survived Close")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	c := addClip(t, r, 10)

	snap := r.Snapshot()
	*snap[0].Duration = 999
	snap[0].ID = "tampered"

	if got := *r.Clip(c.ID).Duration; got != 10 {
		t.Fatalf("registry duration = %v after snapshot tamper, want 10", got)
	}
}
