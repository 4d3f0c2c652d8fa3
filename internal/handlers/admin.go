package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/models"
	"github.com/checkfox/leadroute/internal/repository"
)

// AdminHandler exposes the validated save paths for routing configuration
type AdminHandler struct {
	configRepo repository.ConfigRepository
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(configRepo repository.ConfigRepository) *AdminHandler {
	return &AdminHandler{
		configRepo: configRepo,
	}
}

// ConfigUpdateRequest carries a replacement rule tree and field mapping
type ConfigUpdateRequest struct {
	Rules   models.SourceRules   `json:"rules"`
	Mapping models.SourceMapping `json:"mapping"`
}

// ValidationErrorResponse reports a refused configuration document with the
// offending field path
type ValidationErrorResponse struct {
	Error         string `json:"error"`
	Field         string `json:"field"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// HandleUpdateSourceConfig handles PUT /v1/admin/sources/{source_id}/config
func (h *AdminHandler) HandleUpdateSourceConfig(w http.ResponseWriter, r *http.Request) {
	h.handleUpdate(w, r, mux.Vars(r)["source_id"], h.configRepo.UpdateSourceRules)
}

// HandleUpdateCampaignConfig handles PUT /v1/admin/campaigns/{campaign_id}/config
func (h *AdminHandler) HandleUpdateCampaignConfig(w http.ResponseWriter, r *http.Request) {
	h.handleUpdate(w, r, mux.Vars(r)["campaign_id"], h.configRepo.UpdateCampaignRules)
}

type configUpdateFn func(ctx context.Context, id string, ruleSet models.SourceRules, mapping models.SourceMapping) error

func (h *AdminHandler) handleUpdate(w http.ResponseWriter, r *http.Request, id string, update configUpdateFn) {
	correlationID := uuid.New().String()
	ctx := context.WithValue(r.Context(), logger.CorrelationIDKey, correlationID)

	if id == "" {
		respondError(w, ctx, http.StatusBadRequest, "missing document id")
		return
	}

	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}
	defer r.Body.Close()

	if err := update(ctx, id, req.Rules, req.Mapping); err != nil {
		var cfgErr *models.ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			logger.Info(ctx, "Configuration document refused",
				"id", id, "field", cfgErr.Field, "error", cfgErr.Message)
			respondJSON(w, ctx, http.StatusUnprocessableEntity, ValidationErrorResponse{
				Error:         cfgErr.Message,
				Field:         cfgErr.Field,
				CorrelationID: correlationID,
			})

		case strings.Contains(err.Error(), "not found"):
			respondError(w, ctx, http.StatusNotFound, err.Error())

		default:
			logger.LogError(ctx, "Failed to update configuration", err, "id", id)
			respondError(w, ctx, http.StatusServiceUnavailable, "database error")
		}
		return
	}

	logger.Info(ctx, "Configuration updated", "id", id)
	w.Header().Set("X-Correlation-ID", correlationID)
	w.WriteHeader(http.StatusNoContent)
}
