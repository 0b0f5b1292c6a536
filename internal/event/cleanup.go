package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keepsake/keepsake/internal/database"
)

// PurgeDeletedUploads removes the storage objects of soft-deleted clips
// and then drops their rows. Batched so one sweep never monopolizes the
// loop.
func PurgeDeletedUploads(ctx context.Context, db database.DBTX, storage ObjectStorage) {
	rows, err := db.Query(ctx,
		`SELECT id, object_key FROM uploads
		 WHERE deleted_at IS NOT NULL
		 LIMIT 50`)
	if err != nil {
		slog.Error("cleanup: failed to query deleted uploads", "error", err)
		return
	}
	defer rows.Close()

	type purgeTarget struct {
		id  string
		key string
	}
	var targets []purgeTarget
	for rows.Next() {
		var t purgeTarget
		if err := rows.Scan(&t.id, &t.key); err != nil {
			slog.Error("cleanup: failed to scan upload row", "error", err)
			continue
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("cleanup: row iteration error", "error", err)
		return
	}

	for _, t := range targets {
		if err := deleteWithRetry(ctx, storage, t.key, 3); err != nil {
			slog.Error("cleanup: failed to delete clip object", "key", t.key, "error", err)
			continue
		}
		if _, err := db.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, t.id); err != nil {
			slog.Error("cleanup: failed to drop upload row", "id", t.id, "error", err)
		}
	}
}

// PurgeDeletedEvents dismantles soft-deleted events: clips are handed to
// the upload purge by soft-deleting them, the compilation object is
// removed, and once no clips remain the event row goes (cascading
// invitees and compilation rows).
func PurgeDeletedEvents(ctx context.Context, db database.DBTX, storage ObjectStorage) {
	rows, err := db.Query(ctx,
		`SELECT id FROM events WHERE deleted_at IS NOT NULL LIMIT 10`)
	if err != nil {
		slog.Error("cleanup: failed to query deleted events", "error", err)
		return
	}
	defer rows.Close()

	var eventIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("cleanup: failed to scan event row", "error", err)
			continue
		}
		eventIDs = append(eventIDs, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("cleanup: row iteration error", "error", err)
		return
	}

	for _, eventID := range eventIDs {
		if _, err := db.Exec(ctx,
			`UPDATE uploads SET deleted_at = now()
			 WHERE event_id = $1 AND deleted_at IS NULL`,
			eventID,
		); err != nil {
			slog.Error("cleanup: failed to mark event uploads deleted", "event_id", eventID, "error", err)
			continue
		}

		var compilationKey *string
		if err := db.QueryRow(ctx,
			`SELECT object_key FROM compilations WHERE event_id = $1`, eventID,
		).Scan(&compilationKey); err == nil && compilationKey != nil {
			if err := deleteWithRetry(ctx, storage, *compilationKey, 3); err != nil {
				slog.Error("cleanup: failed to delete compilation object", "event_id", eventID, "error", err)
				continue
			}
		}

		var remaining int
		if err := db.QueryRow(ctx,
			`SELECT count(*) FROM uploads WHERE event_id = $1`, eventID,
		).Scan(&remaining); err != nil {
			slog.Error("cleanup: failed to count remaining uploads", "event_id", eventID, "error", err)
			continue
		}
		if remaining > 0 {
			// Upload purge drains them; the event goes on a later sweep.
			continue
		}

		if _, err := db.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID); err != nil {
			slog.Error("cleanup: failed to drop event row", "event_id", eventID, "error", err)
		}
	}
}

func deleteWithRetry(ctx context.Context, storage ObjectStorage, key string, maxAttempts int) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = storage.DeleteObject(ctx, key)
		if lastErr == nil {
			return nil
		}
		slog.Error("cleanup: delete attempt failed", "attempt", attempt+1, "max_attempts", maxAttempts, "key", key, "error", lastErr)
	}
	return fmt.Errorf("all %d delete attempts failed for %s: %w", maxAttempts, key, lastErr)
}

// StartCleanupLoop sweeps deleted uploads and events on the given
// interval until ctx is cancelled.
func StartCleanupLoop(ctx context.Context, db database.DBTX, storage ObjectStorage, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("cleanup: shutting down")
				return
			case <-ticker.C:
				PurgeDeletedUploads(ctx, db, storage)
				PurgeDeletedEvents(ctx, db, storage)
			}
		}
	}()
}
