package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/middleware"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

// DraftsHandler handles creation draft HTTP requests.
type DraftsHandler struct {
	draftService services.DraftService
	logger       *zap.Logger
}

// NewDraftsHandler creates a new drafts handler.
func NewDraftsHandler(draftService services.DraftService, logger *zap.Logger) *DraftsHandler {
	return &DraftsHandler{draftService: draftService, logger: logger}
}

// RegisterRoutes registers the drafts handler's routes on the given mux.
func (h *DraftsHandler) RegisterRoutes(mux *http.ServeMux, scope middleware.ScopeFunc) {
	mux.HandleFunc("POST /api/drafts", scope(h.Create))
	mux.HandleFunc("GET /api/drafts", scope(h.List))
	mux.HandleFunc("GET /api/drafts/{did}", scope(h.Get))
	mux.HandleFunc("DELETE /api/drafts/{did}", scope(h.Delete))
	mux.HandleFunc("POST /api/drafts/{did}/patches", scope(h.ApplyPatches))
	mux.HandleFunc("POST /api/drafts/{did}/step", scope(h.SetStep))
	mux.HandleFunc("POST /api/drafts/{did}/autosave", scope(h.Autosave))
	mux.HandleFunc("POST /api/drafts/{did}/complete", scope(h.Complete))
}

// Create handles POST /api/drafts
func (h *DraftsHandler) Create(w http.ResponseWriter, r *http.Request) {
	draft, err := h.draftService.CreateDraft(r.Context())
	if err != nil {
		h.writeDraftError(w, err, "Failed to create draft")
		return
	}
	if err := WriteJSON(w, http.StatusCreated, draft); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/drafts
func (h *DraftsHandler) List(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.draftService.ListIncomplete(r.Context())
	if err != nil {
		h.writeDraftError(w, err, "Failed to list drafts")
		return
	}
	if drafts == nil {
		drafts = []*models.DraftSnapshot{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"drafts": drafts}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/drafts/{did}
func (h *DraftsHandler) Get(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	draft, err := h.draftService.LoadDraft(r.Context(), draftID)
	if err != nil {
		h.writeDraftError(w, err, "Failed to load draft")
		return
	}
	if err := WriteJSON(w, http.StatusOK, draft); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/drafts/{did}
func (h *DraftsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.draftService.DeleteDraft(r.Context(), draftID); err != nil {
		h.writeDraftError(w, err, "Failed to delete draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyPatches handles POST /api/drafts/{did}/patches
func (h *DraftsHandler) ApplyPatches(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	var set models.PatchSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid patch set"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if set.Source == "" {
		set.Source = models.PatchSourceWizard
	}

	draft, err := h.draftService.ApplyPatches(r.Context(), draftID, set)
	if err != nil {
		h.writeDraftError(w, err, "Failed to apply patches")
		return
	}
	if err := WriteJSON(w, http.StatusOK, draft); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetStep handles POST /api/drafts/{did}/step
func (h *DraftsHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Step models.WizardStep `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid step request"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	draft, err := h.draftService.SetStep(r.Context(), draftID, body.Step)
	if err != nil {
		h.writeDraftError(w, err, "Failed to set step")
		return
	}
	if err := WriteJSON(w, http.StatusOK, draft); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Autosave handles POST /api/drafts/{did}/autosave
func (h *DraftsHandler) Autosave(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.draftService.AutosaveHint(r.Context(), draftID); err != nil {
		h.writeDraftError(w, err, "Failed to record autosave")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete handles POST /api/drafts/{did}/complete
func (h *DraftsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	campaign, err := h.draftService.CompleteDraft(r.Context(), draftID)
	if err != nil {
		h.writeDraftError(w, err, "Failed to complete draft")
		return
	}
	if err := WriteJSON(w, http.StatusCreated, campaign); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DraftsHandler) writeDraftError(w http.ResponseWriter, err error, fallback string) {
	var pe *apperrors.PatchValidationError
	switch {
	case errors.Is(err, apperrors.ErrDraftNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "draft_not_found", "Draft not found")
	case errors.Is(err, apperrors.ErrInvalidStepTransition):
		err = ErrorResponse(w, http.StatusConflict, "invalid_step_transition", err.Error())
	case errors.As(err, &pe):
		err = ErrorResponse(w, http.StatusUnprocessableEntity, "invalid_patch", pe.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		err = ErrorResponse(w, http.StatusInternalServerError, "internal_error", fallback)
	}
	if err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
