package event

import (
	"context"
	"log"
	"os"

	"github.com/keepsake/keepsake/internal/database"
	"github.com/keepsake/keepsake/internal/media"
)

// probeDuration downloads a stored clip and records its duration. Best
// effort: a clip without a known duration still lists and plays, the
// editor derives it locally.
func probeDuration(ctx context.Context, db database.DBTX, storage ObjectStorage, inspector *media.Inspector, uploadID, objectKey string) {
	log.Printf("probe: starting duration probe for upload %s", uploadID)

	tmpFile, err := os.CreateTemp("", "keepsake-probe-*")
	if err != nil {
		log.Printf("probe: failed to create temp file: %v", err)
		return
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := storage.DownloadToFile(ctx, objectKey, tmpPath); err != nil {
		log.Printf("probe: failed to download upload %s: %v", uploadID, err)
		return
	}

	duration, err := inspector.Duration(ctx, tmpPath)
	if err != nil {
		log.Printf("probe: ffprobe failed for %s: %v", uploadID, err)
		return
	}
	if duration <= 0 {
		log.Printf("probe: invalid duration %f for %s", duration, uploadID)
		return
	}

	if _, err := db.Exec(ctx,
		`UPDATE uploads SET duration_seconds = $1 WHERE id = $2`,
		duration, uploadID,
	); err != nil {
		log.Printf("probe: failed to update duration for %s: %v", uploadID, err)
		return
	}

	log.Printf("probe: upload %s duration is %.2fs", uploadID, duration)
}
