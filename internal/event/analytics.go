package event

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"github.com/keepsake/keepsake/internal/auth"
	"github.com/keepsake/keepsake/internal/geoip"
	"github.com/keepsake/keepsake/internal/httputil"
)

// recordView stores one row per watch hit, off the request path. A failed
// insert never affects playback.
func (h *Handler) recordView(compilationID string, r *http.Request) {
	ip := httputil.ClientIP(r)
	rawUA := r.UserAgent()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ua := useragent.New(rawUA)
		browser, _ := ua.Browser()

		var loc geoip.Location
		if h.geo != nil {
			loc = h.geo.Locate(ip)
		}

		if _, err := h.db.Exec(ctx,
			`INSERT INTO compilation_views (compilation_id, country, city, browser, os, mobile)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			compilationID, loc.Country, loc.City, browser, ua.OSInfo().Name, ua.Mobile(),
		); err != nil {
			slog.Error("failed to record view", "compilation_id", compilationID, "error", err)
		}
	}()
}

type viewBreakdown struct {
	Name  string `json:"name"`
	Views int64  `json:"views"`
}

type viewStatsResponse struct {
	TotalViews  int64           `json:"totalViews"`
	MobileViews int64           `json:"mobileViews"`
	Countries   []viewBreakdown `json:"countries"`
	Browsers    []viewBreakdown `json:"browsers"`
}

// ViewStats summarizes who watched the published compilation.
func (h *Handler) ViewStats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	eventID := chi.URLParam(r, "id")

	if err := h.requireOwnedEvent(r.Context(), eventID, userID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "event not found")
		return
	}

	var compilationID string
	err := h.db.QueryRow(r.Context(),
		`SELECT id FROM compilations WHERE event_id = $1`, eventID,
	).Scan(&compilationID)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "no compilation published")
		return
	}

	resp := viewStatsResponse{Countries: []viewBreakdown{}, Browsers: []viewBreakdown{}}
	err = h.db.QueryRow(r.Context(),
		`SELECT count(*), count(*) FILTER (WHERE mobile)
		 FROM compilation_views WHERE compilation_id = $1`,
		compilationID,
	).Scan(&resp.TotalViews, &resp.MobileViews)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load view stats")
		return
	}

	countries, err := h.viewGroups(r.Context(), compilationID, "country")
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load view stats")
		return
	}
	resp.Countries = countries

	browsers, err := h.viewGroups(r.Context(), compilationID, "browser")
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load view stats")
		return
	}
	resp.Browsers = browsers

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) viewGroups(ctx context.Context, compilationID, column string) ([]viewBreakdown, error) {
	// column is one of two compile-time constants, never user input.
	rows, err := h.db.Query(ctx,
		`SELECT `+column+`, count(*) FROM compilation_views
		 WHERE compilation_id = $1 AND `+column+` <> ''
		 GROUP BY `+column+` ORDER BY count(*) DESC LIMIT 10`,
		compilationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]viewBreakdown, 0)
	for rows.Next() {
		var g viewBreakdown
		if err := rows.Scan(&g.Name, &g.Views); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
