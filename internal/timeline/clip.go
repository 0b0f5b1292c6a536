package timeline

import "time"

// Provenance records where a clip's bytes came from: picked locally by the
// event owner, or fetched from server storage where a contributor uploaded it.
type Provenance string

const (
	ProvenanceLocal  Provenance = "local"
	ProvenanceRemote Provenance = "remote"
)

// RemoteRef links a remote clip back to the server-side identifiers needed
// to delete it again.
type RemoteRef struct {
	UploadID    string
	InviteeID   string
	InviteeName string
	UploadedAt  time.Time
}

// Clip is one entry in the timeline. SourcePath is an exclusively owned
// local file holding the clip bytes; it is removed when the clip leaves the
// registry. Duration and the trim bounds are unknown (nil) until media
// metadata resolves.
type Clip struct {
	ID         string
	SourcePath string
	Thumbnail  []byte
	Duration   *float64
	TrimStart  *float64
	TrimEnd    *float64

	// StartOffset is derived: the running sum of preceding clips' effective
	// durations. Recomputed on every order or trim change.
	StartOffset float64

	Provenance Provenance
	Remote     *RemoteRef
}

// EffectiveDuration is the clip's contribution to the timeline total: the
// trim window when both bounds are set, otherwise the full duration,
// otherwise zero while metadata is still loading.
func (c *Clip) EffectiveDuration() float64 {
	if c.TrimStart != nil && c.TrimEnd != nil {
		return *c.TrimEnd - *c.TrimStart
	}
	if c.Duration != nil {
		return *c.Duration
	}
	return 0
}

// Trimmed reports whether an explicit trim window is set.
func (c *Clip) Trimmed() bool {
	return c.TrimStart != nil && c.TrimEnd != nil
}
