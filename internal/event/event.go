package event

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keepsake/keepsake/internal/auth"
	"github.com/keepsake/keepsake/internal/httputil"
	"github.com/keepsake/keepsake/internal/validate"
)

// Contributors need a window to upload, owners a bounded wait: the
// deadline must sit between 12 hours and one month out.
const minDeadlineLead = 12 * time.Hour

type createEventRequest struct {
	Name     string    `json:"name"`
	Deadline time.Time `json:"deadline"`
}

type eventResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Deadline  time.Time `json:"deadline"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		httputil.WriteError(w, http.StatusBadRequest, "event name must be at least 2 characters")
		return
	}
	if msg := validate.EventName(name); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now()
	if req.Deadline.Before(now.Add(minDeadlineLead)) {
		httputil.WriteError(w, http.StatusBadRequest, "deadline must be at least 12 hours from now")
		return
	}
	if req.Deadline.After(now.AddDate(0, 1, 0)) {
		httputil.WriteError(w, http.StatusBadRequest, "deadline must be within one month")
		return
	}

	var ev eventResponse
	err := h.db.QueryRow(r.Context(),
		`INSERT INTO events (owner_id, name, deadline) VALUES ($1, $2, $3)
		 RETURNING id, name, deadline, created_at`,
		userID, name, req.Deadline,
	).Scan(&ev.ID, &ev.Name, &ev.Deadline, &ev.CreatedAt)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, ev)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	rows, err := h.db.Query(r.Context(),
		`SELECT id, name, deadline, created_at FROM events
		 WHERE owner_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	defer rows.Close()

	events := make([]eventResponse, 0)
	for rows.Next() {
		var ev eventResponse
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Deadline, &ev.CreatedAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to list events")
			return
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	var ev eventResponse
	err := h.db.QueryRow(r.Context(),
		`SELECT id, name, deadline, created_at FROM events
		 WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`,
		eventID, userID,
	).Scan(&ev.ID, &ev.Name, &ev.Deadline, &ev.CreatedAt)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ev)
}

// DeleteEvent soft-deletes: rows and storage objects are reaped by the
// cleanup loop so the request stays fast and retry-safe.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	tag, err := h.db.Exec(r.Context(),
		`UPDATE events SET deleted_at = now()
		 WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`,
		eventID, userID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
