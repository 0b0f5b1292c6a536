package timeline

import "testing"

func TestDragDropReorders(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	a := addClip(t, r, 1)
	b := addClip(t, r, 2)
	c := addClip(t, r, 3)

	d := NewDragState(r)
	if !d.BeginDrag(2) {
		t.Fatal("BeginDrag(2) rejected")
	}
	if got := d.Dragging(); got != 2 {
		t.Fatalf("Dragging() = %d, want 2", got)
	}
	if !d.Drop(0) {
		t.Fatal("Drop(0) failed")
	}

	wantOrder := []string{c.ID, a.ID, b.ID}
	for i, id := range wantOrder {
		if got := r.ClipAt(i); got == nil || got.ID != id {
			t.Fatalf("position %d = %v, want %s", i, got, id)
		}
	}
	if got := d.Dragging(); got != -1 {
		t.Fatalf("Dragging() = %d after drop, want -1", got)
	}
}

func TestDropWithoutDragIsIgnored(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	a := addClip(t, r, 1)
	addClip(t, r, 2)

	d := NewDragState(r)
	if d.Drop(1) {
		t.Fatal("drop with no active drag succeeded")
	}
	if got := r.ClipAt(0); got.ID != a.ID {
		t.Fatal("order changed by a stray drop")
	}
}

func TestBeginDragValidatesIndex(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	addClip(t, r, 1)

	d := NewDragState(r)
	if d.BeginDrag(-1) || d.BeginDrag(1) {
		t.Fatal("out-of-range drag accepted")
	}
	if d.Dragging() != -1 {
		t.Fatal("dragged index set by rejected drag")
	}
}

func TestConsumeEditedClearsFlag(t *testing.T) {
	r := newTestRegistry(t, contentMeta{})
	addClip(t, r, 1)
	addClip(t, r, 2)

	d := NewDragState(r)
	if d.ConsumeEdited() {
		t.Fatal("edited before any gesture")
	}
	d.BeginDrag(0)
	d.Drop(1)
	if !d.ConsumeEdited() {
		t.Fatal("edit not recorded")
	}
	if d.ConsumeEdited() {
		t.Fatal("edited flag not cleared by consume")
	}
	d.MarkEdited()
	if !d.ConsumeEdited() {
		t.Fatal("MarkEdited not visible")
	}
}
