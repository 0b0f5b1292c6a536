// Package event implements the celebration-event API: event and invitee
// management for owners, contributor clip uploads, compiled-video
// publishing, and the public watch surface.
package event

import (
	"context"
	"io"
	"time"

	"github.com/keepsake/keepsake/internal/database"
	"github.com/keepsake/keepsake/internal/geoip"
	"github.com/keepsake/keepsake/internal/media"
)

type ObjectStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string, size int64) error
	DownloadToFile(ctx context.Context, key string, destPath string) error
	DeleteObject(ctx context.Context, key string) error
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	GenerateDownloadURLWithDisposition(ctx context.Context, key string, filename string, expiry time.Duration) (string, error)
}

type Handler struct {
	db             database.DBTX
	storage        ObjectStorage
	geo            *geoip.Resolver
	baseURL        string
	maxUploadBytes int64

	// probe derives the duration of a stored clip in the background.
	// Replaceable so handler tests stay synchronous.
	probe func(uploadID, objectKey string)
}

func NewHandler(db database.DBTX, s ObjectStorage, geo *geoip.Resolver, baseURL string, maxUploadBytes int64) *Handler {
	h := &Handler{
		db:             db,
		storage:        s,
		geo:            geo,
		baseURL:        baseURL,
		maxUploadBytes: maxUploadBytes,
	}
	inspector := media.NewInspector()
	h.probe = func(uploadID, objectKey string) {
		go probeDuration(context.Background(), h.db, h.storage, inspector, uploadID, objectKey)
	}
	return h
}

// requireOwnedEvent confirms the event exists, is live, and belongs to
// userID. pgx.ErrNoRows doubles as the not-found signal.
func (h *Handler) requireOwnedEvent(ctx context.Context, eventID, userID string) error {
	var id string
	return h.db.QueryRow(ctx,
		`SELECT id FROM events WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`,
		eventID, userID,
	).Scan(&id)
}
