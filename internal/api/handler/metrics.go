package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitalsync/vitalsync/internal/api/respond"
	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/store"
)

// dailyReadingJSON is the wire shape of one daily reading.
type dailyReadingJSON struct {
	Metric          string   `json:"metric"`
	Date            string   `json:"date"`
	Provider        string   `json:"provider"`
	Value           *float64 `json:"value"`
	Unit            string   `json:"unit"`
	Timezone        string   `json:"timezone,omitempty"`
	SourceUpdatedAt *string  `json:"source_updated_at,omitempty"`
}

// GetDaily returns all stored daily metrics for one (user, provider, date).
// @Summary Daily metrics for a day
// @Description Returns the canonical daily readings stored for one user, provider, and local date.
// @Tags metrics
// @Produce json
// @Param userID path string true "User ID"
// @Param provider path string true "Provider name"
// @Param date path string true "Local date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/metrics/{userID}/{provider}/daily/{date} [get]
func (h *Handler) GetDaily(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	prov := chi.URLParam(r, "provider")
	date, err := metric.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
		return
	}

	readings, err := h.store.DailyForDay(r.Context(), userID, prov, date)
	if err != nil {
		h.logger.Error("Daily read failed", "user_id", userID, "provider", prov, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read daily metrics")
		return
	}

	out := make([]dailyReadingJSON, 0, len(readings))
	for _, reading := range readings {
		out = append(out, toDailyJSON(reading))
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"provider": prov,
		"date":     date.String(),
		"metrics":  out,
	})
}

// GetIntraday returns the stored intraday series for one key.
// @Summary Intraday series
// @Description Returns the stored fine-grained samples for one user, provider, metric, and local date.
// @Tags metrics
// @Produce json
// @Param userID path string true "User ID"
// @Param provider path string true "Provider name"
// @Param metric path string true "Metric name"
// @Param date path string true "Local date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/metrics/{userID}/{provider}/intraday/{metric}/{date} [get]
func (h *Handler) GetIntraday(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	prov := chi.URLParam(r, "provider")
	m := metric.Metric(chi.URLParam(r, "metric"))
	date, err := metric.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
		return
	}

	windowRow, err := h.store.GetIntraday(r.Context(), userID, prov, m, date, h.cfg.IntradayResolution)
	if err != nil {
		h.logger.Error("Intraday read failed", "user_id", userID, "provider", prov, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read intraday series")
		return
	}
	if windowRow == nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No intraday series stored for this key")
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    userID,
		"provider":   prov,
		"metric":     string(m),
		"date":       date.String(),
		"resolution": windowRow.Resolution,
		"start_utc":  windowRow.StartUTC,
		"end_utc":    windowRow.EndUTC,
		"samples":    windowRow.Samples,
	})
}

// GetLatest returns the freshest stored value per metric across providers.
// @Summary Latest canonical snapshot
// @Description Returns the freshest non-null value per metric within the lookback window.
// @Tags metrics
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/metrics/{userID}/latest [get]
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	since := h.windows.Today("").AddDays(-h.cfg.HRFallbackDays)

	out := make(map[string]dailyReadingJSON)
	for _, m := range metric.All {
		reading, err := h.store.LatestDailyMetric(r.Context(), userID, m, since)
		if err != nil {
			h.logger.Error("Latest read failed", "user_id", userID, "metric", string(m), "error", err)
			respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read latest metrics")
			return
		}
		if reading == nil || reading.Value == nil {
			continue
		}
		out[string(m)] = toDailyJSON(*reading)
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"since":   since.String(),
		"metrics": out,
	})
}

func toDailyJSON(r store.DailyReading) dailyReadingJSON {
	out := dailyReadingJSON{
		Metric:   string(r.Metric),
		Date:     r.Date.String(),
		Provider: r.Provider,
		Value:    r.Value,
		Unit:     r.Unit,
		Timezone: r.Timezone,
	}
	if r.SourceUpdatedAt != nil {
		s := r.SourceUpdatedAt.UTC().Format(time.RFC3339)
		out.SourceUpdatedAt = &s
	}
	return out
}
