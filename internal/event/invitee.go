package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keepsake/keepsake/internal/auth"
	"github.com/keepsake/keepsake/internal/httputil"
	"github.com/keepsake/keepsake/internal/validate"
)

type addInviteeRequest struct {
	Name string `json:"name"`
}

type inviteeResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	HasUpload bool      `json:"hasUpload"`
}

func (h *Handler) AddInvitee(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	var req addInviteeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "invitee name is required")
		return
	}
	if msg := validate.InviteeName(name); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	var inv inviteeResponse
	err := h.db.QueryRow(r.Context(),
		`INSERT INTO invitees (event_id, name) VALUES ($1, $2)
		 RETURNING id, name, created_at`,
		eventID, name,
	).Scan(&inv.ID, &inv.Name, &inv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			httputil.WriteError(w, http.StatusConflict, "an invitee with that name already exists for this event")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to add invitee")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, inv)
}

func (h *Handler) ListInvitees(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT i.id, i.name, i.created_at,
		        EXISTS (SELECT 1 FROM uploads u WHERE u.invitee_id = i.id AND u.deleted_at IS NULL)
		 FROM invitees i
		 WHERE i.event_id = $1
		 ORDER BY i.created_at`,
		eventID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list invitees")
		return
	}
	defer rows.Close()

	invitees := make([]inviteeResponse, 0)
	for rows.Next() {
		var inv inviteeResponse
		if err := rows.Scan(&inv.ID, &inv.Name, &inv.CreatedAt, &inv.HasUpload); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to list invitees")
			return
		}
		invitees = append(invitees, inv)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list invitees")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"invitees": invitees})
}

// DeleteInvitee soft-deletes any clip the invitee contributed, then removes
// the invitee row. Object purge is left to the cleanup loop.
func (h *Handler) DeleteInvitee(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")
	inviteeID := chi.URLParam(r, "inviteeID")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`UPDATE uploads SET deleted_at = now()
		 WHERE invitee_id = $1 AND deleted_at IS NULL`,
		inviteeID,
	); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete invitee")
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`DELETE FROM invitees WHERE id = $1 AND event_id = $2`,
		inviteeID, eventID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete invitee")
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteError(w, http.StatusNotFound, "invitee not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
