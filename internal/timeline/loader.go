package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// RemoteClip describes a contributor upload as listed by the server.
type RemoteClip struct {
	UploadID    string
	InviteeID   string
	InviteeName string
	FileURL     string
	UploadedAt  time.Time
}

// ClipFetcher downloads a remote clip's bytes. Implemented by the event API
// client; faked in tests.
type ClipFetcher interface {
	FetchClip(ctx context.Context, fileURL, destPath string) error
}

// Loader materializes contributor uploads into registry clips. Repeated
// loads with the same list are idempotent: clips already present (matched
// by upload id) are neither duplicated nor re-fetched.
type Loader struct {
	registry *Registry
	fetcher  ClipFetcher
	parallel int
}

func NewLoader(registry *Registry, fetcher ClipFetcher) *Loader {
	return &Loader{registry: registry, fetcher: fetcher, parallel: 4}
}

// Load fetches every listed clip that is not already in the registry.
// Per-item fetch failures are logged and swallowed so one bad upload does
// not block the rest of the batch; Load only fails on context cancellation.
func (l *Loader) Load(ctx context.Context, remote []RemoteClip) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)

	for _, rc := range remote {
		if l.registry.hasUpload(rc.UploadID) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := l.fetch(ctx, rc); err != nil {
				slog.Warn("loader: skipping remote clip", "upload_id", rc.UploadID, "invitee", rc.InviteeName, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (l *Loader) fetch(ctx context.Context, rc RemoteClip) error {
	dest := filepath.Join(l.registry.dir, "remote-"+rc.UploadID+".mp4")
	if err := l.fetcher.FetchClip(ctx, rc.FileURL, dest); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("fetch clip bytes: %w", err)
	}
	l.registry.addRemote(dest, RemoteRef{
		UploadID:    rc.UploadID,
		InviteeID:   rc.InviteeID,
		InviteeName: rc.InviteeName,
		UploadedAt:  rc.UploadedAt,
	})
	return nil
}
