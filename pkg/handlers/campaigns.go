package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/middleware"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

// CampaignsHandler handles canonical campaign HTTP requests.
type CampaignsHandler struct {
	campaigns  services.CampaignService
	acceptance services.AcceptanceService
	logger     *zap.Logger
}

// NewCampaignsHandler creates a new campaigns handler.
func NewCampaignsHandler(campaigns services.CampaignService, acceptance services.AcceptanceService, logger *zap.Logger) *CampaignsHandler {
	return &CampaignsHandler{campaigns: campaigns, acceptance: acceptance, logger: logger}
}

// RegisterRoutes registers the campaigns handler's routes on the given mux.
func (h *CampaignsHandler) RegisterRoutes(mux *http.ServeMux, scope middleware.ScopeFunc, campaignScope middleware.ScopeFunc) {
	mux.HandleFunc("GET /api/campaigns", scope(h.List))
	mux.HandleFunc("GET /api/campaigns/{cid}", campaignScope(h.Get))
	mux.HandleFunc("GET /api/campaigns/{cid}/entities", campaignScope(h.ListEntities))
	mux.HandleFunc("GET /api/campaigns/{cid}/entities/{eid}", campaignScope(h.GetEntity))
	mux.HandleFunc("PUT /api/campaigns/{cid}/intent", campaignScope(h.UpdateIntent))
	mux.HandleFunc("POST /api/campaigns/{cid}/intent/migrate", campaignScope(h.MigrateIntent))
}

// List handles GET /api/campaigns
func (h *CampaignsHandler) List(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.ListCampaigns(r.Context())
	if err != nil {
		h.writeCampaignError(w, err, "Failed to list campaigns")
		return
	}
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/campaigns/{cid}
func (h *CampaignsHandler) Get(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}

	campaign, err := h.campaigns.GetCampaign(r.Context(), campaignID)
	if err != nil {
		h.writeCampaignError(w, err, "Failed to load campaign")
		return
	}
	if err := WriteJSON(w, http.StatusOK, campaign); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListEntities handles GET /api/campaigns/{cid}/entities?type=npc
func (h *CampaignsHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}

	entityType := models.EntityType(r.URL.Query().Get("type"))
	entities, err := h.campaigns.ListEntities(r.Context(), campaignID, entityType)
	if err != nil {
		h.writeCampaignError(w, err, "Failed to list entities")
		return
	}
	if entities == nil {
		entities = []*models.CanonicalEntity{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"entities": entities}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetEntity handles GET /api/campaigns/{cid}/entities/{eid}
func (h *CampaignsHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	if _, ok := ParseCampaignID(w, r, h.logger); !ok {
		return
	}
	entityID, ok := ParseEntityID(w, r, h.logger)
	if !ok {
		return
	}

	entity, err := h.campaigns.GetEntity(r.Context(), entityID)
	if err != nil {
		h.writeCampaignError(w, err, "Failed to load entity")
		return
	}
	if err := WriteJSON(w, http.StatusOK, entity); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateIntent handles PUT /api/campaigns/{cid}/intent
func (h *CampaignsHandler) UpdateIntent(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}

	var intent models.CampaignIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid intent"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.acceptance.UpdateIntent(r.Context(), campaignID, &intent); err != nil {
		h.writeCampaignError(w, err, "Failed to update intent")
		return
	}
	if err := WriteJSON(w, http.StatusOK, intent); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// MigrateIntent handles POST /api/campaigns/{cid}/intent/migrate
func (h *CampaignsHandler) MigrateIntent(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Intent models.CampaignIntent `json:"intent"`
		Reason string                `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Reason) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Intent and a migration reason are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.acceptance.MigrateIntent(r.Context(), campaignID, &body.Intent, body.Reason); err != nil {
		h.writeCampaignError(w, err, "Failed to migrate intent")
		return
	}
	if err := WriteJSON(w, http.StatusOK, body.Intent); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *CampaignsHandler) writeCampaignError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, apperrors.ErrCampaignNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "campaign_not_found", "Campaign not found")
	case errors.Is(err, apperrors.ErrNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrIntentLocked):
		err = ErrorResponse(w, http.StatusConflict, "intent_locked", "Campaign intent is locked; use an explicit migration")
	default:
		h.logger.Error(fallback, zap.Error(err))
		err = ErrorResponse(w, http.StatusInternalServerError, "internal_error", fallback)
	}
	if err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
