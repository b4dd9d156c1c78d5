package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitalsync/vitalsync/internal/api/respond"
)

// thresholdsJSON is the wire shape of a user's threshold settings.
type thresholdsJSON struct {
	HRThresholdLow  *float64 `json:"hr_threshold_low"`
	HRThresholdHigh *float64 `json:"hr_threshold_high"`
}

// GetThresholds returns a user's configured heart-rate thresholds.
// @Summary Get thresholds
// @Description Returns the user's low/high heart-rate thresholds. Null means disabled.
// @Tags thresholds
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} thresholdsJSON
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/thresholds [get]
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("User read failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read user")
		return
	}
	if user == nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown user")
		return
	}

	respond.WriteJSON(w, http.StatusOK, thresholdsJSON{
		HRThresholdLow:  user.HRThresholdLow,
		HRThresholdHigh: user.HRThresholdHigh,
	})
}

// PutThresholds replaces a user's heart-rate thresholds.
// @Summary Set thresholds
// @Description Replaces the user's low/high heart-rate thresholds. Null clears a side.
// @Tags thresholds
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param body body thresholdsJSON true "New thresholds"
// @Success 200 {object} thresholdsJSON
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/thresholds [put]
func (h *Handler) PutThresholds(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var body thresholdsJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Body must be JSON with hr_threshold_low/high")
		return
	}
	if body.HRThresholdLow != nil && body.HRThresholdHigh != nil &&
		*body.HRThresholdLow >= *body.HRThresholdHigh {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_RANGE", "Low threshold must be below high threshold")
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("User read failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read user")
		return
	}
	if user == nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown user")
		return
	}

	if err := h.store.SetThresholds(r.Context(), userID, body.HRThresholdLow, body.HRThresholdHigh); err != nil {
		h.logger.Error("Threshold update failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to update thresholds")
		return
	}

	h.logger.Info("Thresholds updated", "user_id", userID)
	respond.WriteJSON(w, http.StatusOK, body)
}
