package timeline

// DragState tracks a reorder gesture. Only one entry can be dragged at a
// time by construction: there is a single dragged-index slot.
type DragState struct {
	registry *Registry
	dragged  int
	edited   bool
}

func NewDragState(registry *Registry) *DragState {
	return &DragState{registry: registry, dragged: -1}
}

// BeginDrag records the dragged list index and marks the timeline edited so
// the next sequence playback restarts from the first clip.
func (d *DragState) BeginDrag(index int) bool {
	if index < 0 || index >= d.registry.Len() {
		return false
	}
	d.dragged = index
	d.edited = true
	return true
}

// Drop commits the pending move. A drop with no active drag is silently
// ignored.
func (d *DragState) Drop(target int) bool {
	if d.dragged < 0 {
		return false
	}
	from := d.dragged
	d.dragged = -1
	if err := d.registry.Move(from, target); err != nil {
		return false
	}
	d.edited = true
	return true
}

// Dragging returns the active drag index, or -1.
func (d *DragState) Dragging() int {
	return d.dragged
}

// MarkEdited flags the timeline as changed outside a drag (e.g. a removal).
func (d *DragState) MarkEdited() {
	d.edited = true
}

// ConsumeEdited reports and clears the edited flag; playback reads it once
// when deciding whether to restart from the first clip.
func (d *DragState) ConsumeEdited() bool {
	e := d.edited
	d.edited = false
	return e
}
