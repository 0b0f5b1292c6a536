package event

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keepsake/keepsake/internal/auth"
	"github.com/keepsake/keepsake/internal/httputil"
	"github.com/keepsake/keepsake/internal/storage"
	"github.com/keepsake/keepsake/internal/validate"
)

type uploadResponse struct {
	UploadID    string    `json:"uploadId"`
	InviteeID   string    `json:"inviteeId"`
	InviteeName string    `json:"inviteeName"`
	FileURL     string    `json:"fileUrl"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// UploadClip receives a contributor's clip. The endpoint is public: the
// invitee id acts as the capability from the invite link. One clip per
// invitee; a re-upload soft-deletes the previous one.
func (h *Handler) UploadClip(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	inviteeID := chi.URLParam(r, "inviteeID")

	var inviteeName string
	var deadline time.Time
	err := h.db.QueryRow(r.Context(),
		`SELECT i.name, e.deadline FROM invitees i
		 JOIN events e ON e.id = i.event_id
		 WHERE i.id = $1 AND i.event_id = $2 AND e.deleted_at IS NULL`,
		inviteeID, eventID,
	).Scan(&inviteeName, &deadline)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "invite not found")
		return
	}

	if time.Now().After(deadline) {
		httputil.WriteError(w, http.StatusForbidden, "the upload deadline for this event has passed")
		return
	}

	// Parse headroom covers multipart framing around the clip itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024*1024)
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

	if !validate.IsMP4(header.Filename, header.Header.Get("Content-Type")) {
		httputil.WriteError(w, http.StatusBadRequest, "only MP4 clips are supported")
		return
	}
	if header.Size > h.maxUploadBytes {
		httputil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("clip is %d bytes, the maximum is %d bytes", header.Size, h.maxUploadBytes))
		return
	}

	uploadID := uuid.New().String()
	objectKey := storage.UploadKey(eventID, uploadID)

	if err := h.storage.Upload(r.Context(), objectKey, file, validate.MP4ContentType, header.Size); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store clip")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`UPDATE uploads SET deleted_at = now()
		 WHERE invitee_id = $1 AND deleted_at IS NULL`,
		inviteeID,
	); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store clip")
		return
	}

	var uploadedAt time.Time
	err = h.db.QueryRow(r.Context(),
		`INSERT INTO uploads (id, event_id, invitee_id, object_key, size_bytes)
		 VALUES ($1, $2, $3, $4, $5) RETURNING uploaded_at`,
		uploadID, eventID, inviteeID, objectKey, header.Size,
	).Scan(&uploadedAt)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store clip")
		return
	}

	h.probe(uploadID, objectKey)

	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{
		UploadID:    uploadID,
		InviteeID:   inviteeID,
		InviteeName: inviteeName,
		FileURL:     h.uploadFileURL(eventID, uploadID),
		UploadedAt:  uploadedAt,
	})
}

func (h *Handler) uploadFileURL(eventID, uploadID string) string {
	return fmt.Sprintf("%s/api/events/%s/uploads/%s/file", h.baseURL, eventID, uploadID)
}

func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT u.id, i.id, i.name, u.uploaded_at
		 FROM uploads u
		 JOIN invitees i ON i.id = u.invitee_id
		 WHERE u.event_id = $1 AND u.deleted_at IS NULL
		 ORDER BY u.uploaded_at`,
		eventID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}
	defer rows.Close()

	uploads := make([]uploadResponse, 0)
	for rows.Next() {
		var u uploadResponse
		if err := rows.Scan(&u.UploadID, &u.InviteeID, &u.InviteeName, &u.UploadedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to list uploads")
			return
		}
		u.FileURL = h.uploadFileURL(eventID, u.UploadID)
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

// UploadFile redirects to a short-lived presigned URL carrying the
// contributor's name as the download filename.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")
	uploadID := chi.URLParam(r, "uploadID")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	var objectKey, inviteeName string
	err := h.db.QueryRow(r.Context(),
		`SELECT u.object_key, i.name
		 FROM uploads u
		 JOIN invitees i ON i.id = u.invitee_id
		 WHERE u.id = $1 AND u.event_id = $2 AND u.deleted_at IS NULL`,
		uploadID, eventID,
	).Scan(&objectKey, &inviteeName)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "upload not found")
		return
	}

	url, err := h.storage.GenerateDownloadURLWithDisposition(
		r.Context(), objectKey, inviteeName+".mp4", 15*time.Minute)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate download URL")
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// DeleteUpload is idempotent: removing an already-removed clip is a
// success so editor retries never surface spurious errors.
func (h *Handler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")
	uploadID := chi.URLParam(r, "uploadID")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`UPDATE uploads SET deleted_at = now()
		 WHERE id = $1 AND event_id = $2 AND deleted_at IS NULL`,
		uploadID, eventID,
	); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete upload")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
