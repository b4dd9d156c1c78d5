package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitalsync/vitalsync/internal/api/respond"
	"github.com/vitalsync/vitalsync/internal/config"
	"github.com/vitalsync/vitalsync/internal/token"
)

// linkState is the payload stored behind a correlation token while the user
// completes the provider's consent screen.
type linkState struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

// StartLink issues a single-use correlation token for an OAuth link flow.
// @Summary Start provider link
// @Description Issues a short-lived single-use state token correlating the upcoming OAuth callback with this user.
// @Tags link
// @Produce json
// @Param userID path string true "User ID"
// @Param provider path string true "Provider name"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/link/{userID}/{provider}/start [post]
func (h *Handler) StartLink(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	prov := chi.URLParam(r, "provider")
	if !knownProvider(prov) {
		respond.WriteError(w, http.StatusBadRequest, "UNKNOWN_PROVIDER", "Unsupported provider")
		return
	}

	payload, err := json.Marshal(linkState{UserID: userID, Provider: prov})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode state")
		return
	}
	state, err := h.tokens.Issue(r.Context(), payload, h.cfg.TokenTTL)
	if err != nil {
		h.logger.Error("Issuing link state failed", "user_id", userID, "provider", prov, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue state token")
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"state":       state,
		"ttl_seconds": int(h.cfg.TokenTTL.Seconds()),
	})
}

// completeLinkBody is the callback payload after token exchange.
type completeLinkBody struct {
	State        string `json:"state"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Timezone     string `json:"timezone"`
}

// CompleteLink redeems the state token and stores the provider credentials.
// @Summary Complete provider link
// @Description Redeems the state token (single use) and upserts the account's provider credentials.
// @Tags link
// @Accept json
// @Produce json
// @Param body body completeLinkBody true "Callback payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 410 {object} respond.ErrorResponse
// @Router /api/v1/link/complete [post]
func (h *Handler) CompleteLink(w http.ResponseWriter, r *http.Request) {
	var body completeLinkBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "Body must be JSON")
		return
	}
	if body.State == "" || body.AccessToken == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "state and access_token are required")
		return
	}

	payload, err := h.tokens.Pop(r.Context(), body.State)
	if errors.Is(err, token.ErrNotFound) {
		respond.WriteError(w, http.StatusGone, "STATE_EXPIRED", "State token expired or already used")
		return
	}
	if err != nil {
		h.logger.Error("Redeeming link state failed", "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to redeem state token")
		return
	}

	var state linkState
	if err := json.Unmarshal(payload, &state); err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "DECODE_ERROR", "Stored state is corrupt")
		return
	}

	err = h.store.UpsertAccount(r.Context(), state.UserID, state.Provider,
		body.AccessToken, body.RefreshToken, body.Timezone)
	if err != nil {
		h.logger.Error("Storing linked account failed",
			"user_id", state.UserID, "provider", state.Provider, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to store account")
		return
	}

	h.logger.Info("Provider account linked", "user_id", state.UserID, "provider", state.Provider)
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  state.UserID,
		"provider": state.Provider,
		"linked":   true,
	})
}

func knownProvider(prov string) bool {
	for _, p := range config.Providers {
		if p == prov {
			return true
		}
	}
	return false
}
