package event

import (
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

var watchPageTemplate = template.Must(template.New("watch").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.EventName}} — Keepsake</title>
    <meta property="og:title" content="{{.EventName}}">
    <meta property="og:type" content="video.other">
    <meta property="og:video" content="{{.VideoURL}}">
    <meta property="og:site_name" content="Keepsake">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #1a1224;
            color: #ffffff;
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
            align-items: center;
        }
        .container {
            max-width: 960px;
            width: 100%;
            padding: 2rem 1rem;
        }
        video {
            width: 100%;
            border-radius: 8px;
            background: #000;
        }
        h1 {
            margin-top: 1rem;
            font-size: 1.5rem;
            font-weight: 600;
        }
        .meta {
            margin-top: 0.5rem;
            color: #b3a6c9;
            font-size: 0.875rem;
        }
    </style>
</head>
<body>
    <div class="container">
        <video controls playsinline>
            <source src="{{.VideoURL}}" type="video/mp4">
            Your browser does not support video playback.
        </video>
        <h1>{{.EventName}}</h1>
        <p class="meta">A keepsake from {{.ContributorCount}} {{if eq .ContributorCount 1}}person{{else}}people{{end}} · {{.Date}}</p>
    </div>
</body>
</html>`))

type watchPageData struct {
	EventName        string
	VideoURL         string
	ContributorCount int
	Date             string
}

// WatchPage renders the public playback page for a share token and records
// the view.
func (h *Handler) WatchPage(w http.ResponseWriter, r *http.Request) {
	shareToken := chi.URLParam(r, "shareToken")

	var compilationID, objectKey, eventName string
	var createdAt time.Time
	var contributors int
	err := h.db.QueryRow(r.Context(),
		`SELECT c.id, c.object_key, e.name, c.created_at,
		        (SELECT count(*) FROM uploads u WHERE u.event_id = e.id AND u.deleted_at IS NULL)
		 FROM compilations c
		 JOIN events e ON e.id = c.event_id
		 WHERE c.share_token = $1 AND e.deleted_at IS NULL`,
		shareToken,
	).Scan(&compilationID, &objectKey, &eventName, &createdAt, &contributors)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	h.recordView(compilationID, r)

	videoURL, err := h.storage.GenerateDownloadURL(r.Context(), objectKey, 1*time.Hour)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := watchPageTemplate.Execute(w, watchPageData{
		EventName:        eventName,
		VideoURL:         videoURL,
		ContributorCount: contributors,
		Date:             createdAt.Format("Jan 2, 2006"),
	}); err != nil {
		log.Printf("failed to render watch page: %v", err)
	}
}
