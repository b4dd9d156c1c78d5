package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitalsync/vitalsync/internal/api/respond"
	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/normalize"
)

// TriggerSync runs sync_day for one account on demand.
// @Summary Manual sync
// @Description Fetches, normalizes, and persists one (user, provider, date). Defaults to today in the account's timezone; falls back to earlier days when the requested day is empty.
// @Tags sync
// @Produce json
// @Param userID path string true "User ID"
// @Param provider path string true "Provider name"
// @Param date query string false "Local date (YYYY-MM-DD), defaults to today"
// @Param debug query bool false "Attach raw provider payloads"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/sync/{userID}/{provider} [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	prov := chi.URLParam(r, "provider")

	cred, err := h.store.ResolveAccount(r.Context(), userID, prov)
	if err != nil {
		h.logger.Error("Account lookup failed", "user_id", userID, "provider", prov, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to resolve account")
		return
	}
	if cred == nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_LINKED", "User has not linked this provider")
		return
	}

	date := h.windows.Today(cred.TimezoneHint)
	if q := r.URL.Query().Get("date"); q != "" {
		date, err = metric.ParseDate(q)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
			return
		}
	}
	debug := r.URL.Query().Get("debug") == "1" || r.URL.Query().Get("debug") == "true"

	res, err := h.syncer.SyncDay(r.Context(), *cred, date, normalize.Options{
		Fallback: true,
		Debug:    debug,
	})
	if err != nil {
		h.logger.Error("Manual sync failed",
			"user_id", userID, "provider", prov, "date", date.String(), "error", err)
		respond.WriteErrorDetail(w, http.StatusBadGateway, "SYNC_FAILED", "Sync failed", err.Error())
		return
	}

	body := map[string]interface{}{
		"user_id":       userID,
		"provider":      prov,
		"requested":     date.String(),
		"no_data":       res.NoData,
		"days_searched": res.DaysSearched,
		"rows":          res.RowsPersisted,
	}
	if res.Record != nil {
		body["date"] = res.Record.Date.String()
		body["timezone"] = res.Record.Timezone
		body["values"] = res.Record.Values
		if res.Record.FallbackFrom != nil {
			body["fallback_from"] = res.Record.FallbackFrom.String()
		}
		if debug && res.Record.RawRollUp != nil {
			body["raw_rollup"] = string(res.Record.RawRollUp)
		}
	}
	respond.WriteJSON(w, http.StatusOK, body)
}
