package event

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keepsake/keepsake/internal/auth"
	"github.com/keepsake/keepsake/internal/httputil"
	"github.com/keepsake/keepsake/internal/storage"
	"github.com/keepsake/keepsake/internal/validate"
)

type compiledResponse struct {
	WatchURL  string    `json:"watchUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) watchURL(shareToken string) string {
	return h.baseURL + "/watch/" + shareToken
}

// PublishCompiled stores the owner's compiled video and returns the public
// watch URL. Re-publishing replaces the object but keeps the share token,
// so previously shared links stay valid.
func (h *Handler) PublishCompiled(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCompilationBytes+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer func() { _ = file.Close() }()

	objectKey := storage.CompilationKey(eventID)
	if err := h.storage.Upload(r.Context(), objectKey, file, validate.MP4ContentType, header.Size); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store compilation")
		return
	}

	shareToken, err := httputil.NewShareToken()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to publish compilation")
		return
	}

	var resp compiledResponse
	var token string
	err = h.db.QueryRow(r.Context(),
		`INSERT INTO compilations (event_id, object_key, share_token, size_bytes)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO UPDATE
		 SET object_key = EXCLUDED.object_key, size_bytes = EXCLUDED.size_bytes, created_at = now()
		 RETURNING share_token, created_at`,
		eventID, objectKey, shareToken, header.Size,
	).Scan(&token, &resp.CreatedAt)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to publish compilation")
		return
	}
	resp.WatchURL = h.watchURL(token)

	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// GetCompiled reports the zero-or-one published compilation: 404 tells the
// editor no compilation exists yet.
func (h *Handler) GetCompiled(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	var token string
	var createdAt time.Time
	err := h.db.QueryRow(r.Context(),
		`SELECT share_token, created_at FROM compilations WHERE event_id = $1`,
		eventID,
	).Scan(&token, &createdAt)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "no compilation published")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, compiledResponse{
		WatchURL:  h.watchURL(token),
		CreatedAt: createdAt,
	})
}

type watchResponse struct {
	EventName string `json:"eventName"`
	VideoURL  string `json:"videoUrl"`
}

// Watch resolves a share token to a presigned playback URL and records the
// view. Public endpoint.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	shareToken := chi.URLParam(r, "shareToken")

	var compilationID, objectKey, eventName string
	err := h.db.QueryRow(r.Context(),
		`SELECT c.id, c.object_key, e.name
		 FROM compilations c
		 JOIN events e ON e.id = c.event_id
		 WHERE c.share_token = $1 AND e.deleted_at IS NULL`,
		shareToken,
	).Scan(&compilationID, &objectKey, &eventName)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	h.recordView(compilationID, r)

	videoURL, err := h.storage.GenerateDownloadURL(r.Context(), objectKey, 1*time.Hour)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate video URL")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, watchResponse{EventName: eventName, VideoURL: videoURL})
}

// Compiled videos are bounded by the per-clip ceiling times a generous
// clip count; enforced to keep a rogue client from filling the bucket.
const maxCompilationBytes = int64(2) << 30
