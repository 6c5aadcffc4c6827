package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/middleware"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

// AcceptanceHandler handles the review workflow for generated entity
// drafts: approve, reject, modify, apply, and the audit trail.
type AcceptanceHandler struct {
	acceptance services.AcceptanceService
	logger     *zap.Logger
}

// NewAcceptanceHandler creates a new acceptance handler.
func NewAcceptanceHandler(acceptance services.AcceptanceService, logger *zap.Logger) *AcceptanceHandler {
	return &AcceptanceHandler{acceptance: acceptance, logger: logger}
}

// RegisterRoutes registers the acceptance handler's routes on the given mux.
func (h *AcceptanceHandler) RegisterRoutes(mux *http.ServeMux, scope middleware.ScopeFunc, campaignScope middleware.ScopeFunc) {
	mux.HandleFunc("GET /api/campaigns/{cid}/drafts", campaignScope(h.ListPending))
	mux.HandleFunc("POST /api/campaigns/{cid}/drafts/approve-all", campaignScope(h.ApproveAll))

	mux.HandleFunc("GET /api/entity-drafts/{edid}", scope(h.Get))
	mux.HandleFunc("POST /api/entity-drafts/{edid}/approve", scope(h.Approve))
	mux.HandleFunc("POST /api/entity-drafts/{edid}/reject", scope(h.Reject))
	mux.HandleFunc("POST /api/entity-drafts/{edid}/modify", scope(h.Modify))
	mux.HandleFunc("POST /api/entity-drafts/{edid}/revert", scope(h.Revert))
	mux.HandleFunc("POST /api/entity-drafts/{edid}/apply", scope(h.Apply))
	mux.HandleFunc("POST /api/entity-drafts/{edid}/session-use", scope(h.SessionUse))
	mux.HandleFunc("POST /api/entity-drafts/{edid}/retcon", scope(h.Retcon))
	mux.HandleFunc("GET /api/entity-drafts/{edid}/history", scope(h.History))
}

// ListPending handles GET /api/campaigns/{cid}/drafts
func (h *AcceptanceHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}

	drafts, err := h.acceptance.ListPendingDrafts(r.Context(), campaignID)
	if err != nil {
		h.writeAcceptanceError(w, err, "Failed to list pending drafts")
		return
	}
	if drafts == nil {
		drafts = []*models.GenerationDraft{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"drafts": drafts}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ApproveAll handles POST /api/campaigns/{cid}/drafts/approve-all. The
// body may carry draft_ids to approve a selection; an empty or absent
// body approves every pending draft.
func (h *AcceptanceHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		DraftIDs []uuid.UUID `json:"draft_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid approve-all request"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.acceptance.ApproveAll(r.Context(), campaignID, body.DraftIDs)
	if err != nil {
		h.writeAcceptanceError(w, err, "Failed to approve drafts")
		return
	}
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/entity-drafts/{edid}
func (h *AcceptanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseEntityDraftID(w, r, h.logger)
	if !ok {
		return
	}

	draft, err := h.acceptance.GetDraft(r.Context(), draftID)
	if err != nil {
		h.writeAcceptanceError(w, err, "Failed to load entity draft")
		return
	}
	if err := WriteJSON(w, http.StatusOK, draft); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Approve handles POST /api/entity-drafts/{edid}/approve
func (h *AcceptanceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to approve draft", h.acceptance.ApproveDraft)
}

// Revert handles POST /api/entity-drafts/{edid}/revert
func (h *AcceptanceHandler) Revert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to revert draft", h.acceptance.RevertToDraft)
}

// SessionUse handles POST /api/entity-drafts/{edid}/session-use
func (h *AcceptanceHandler) SessionUse(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to mark session use", h.acceptance.MarkUsedInSession)
}

// Reject handles POST /api/entity-drafts/{edid}/reject. The draft stays
// editable; the rejection and its reason land in the audit trail.
func (h *AcceptanceHandler) Reject(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseEntityDraftID(w, r, h.logger)
	if !ok {
		return
	}

	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	if err := h.acceptance.RejectDraft(r.Context(), draftID, reason); err != nil {
		h.writeAcceptanceError(w, err, "Failed to reject draft")
		return
	}
	h.writeUpdatedDraft(w, r, draftID)
}

// Modify handles POST /api/entity-drafts/{edid}/modify
func (h *AcceptanceHandler) Modify(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseEntityDraftID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Payload) == 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "A payload is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.acceptance.ModifyDraft(r.Context(), draftID, body.Payload); err != nil {
		h.writeAcceptanceError(w, err, "Failed to modify draft")
		return
	}
	h.writeUpdatedDraft(w, r, draftID)
}

// Apply handles POST /api/entity-drafts/{edid}/apply
func (h *AcceptanceHandler) Apply(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseEntityDraftID(w, r, h.logger)
	if !ok {
		return
	}

	entity, err := h.acceptance.ApplyToCampaign(r.Context(), draftID)
	if err != nil {
		h.writeAcceptanceError(w, err, "Failed to apply draft")
		return
	}
	if err := WriteJSON(w, http.StatusOK, entity); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Retcon handles POST /api/entity-drafts/{edid}/retcon
func (h *AcceptanceHandler) Retcon(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseEntityDraftID(w, r, h.logger)
	if !ok {
		return
	}

	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	if err := h.acceptance.Retcon(r.Context(), draftID, reason); err != nil {
		h.writeAcceptanceError(w, err, "Failed to retcon entity")
		return
	}
	h.writeUpdatedDraft(w, r, draftID)
}

// History handles GET /api/entity-drafts/{edid}/history
func (h *AcceptanceHandler) History(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseEntityDraftID(w, r, h.logger)
	if !ok {
		return
	}

	history, err := h.acceptance.GetAcceptanceHistory(r.Context(), draftID)
	if err != nil {
		h.writeAcceptanceError(w, err, "Failed to load acceptance history")
		return
	}
	if err := WriteJSON(w, http.StatusOK, history); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// transition runs a reasonless status change and returns the updated draft.
func (h *AcceptanceHandler) transition(w http.ResponseWriter, r *http.Request, fallback string, fn func(context.Context, uuid.UUID) error) {
	draftID, ok := ParseEntityDraftID(w, r, h.logger)
	if !ok {
		return
	}

	if err := fn(r.Context(), draftID); err != nil {
		h.writeAcceptanceError(w, err, fallback)
		return
	}
	h.writeUpdatedDraft(w, r, draftID)
}

func (h *AcceptanceHandler) decodeReason(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Reason) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_reason", "A reason is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return body.Reason, true
}

func (h *AcceptanceHandler) writeUpdatedDraft(w http.ResponseWriter, r *http.Request, draftID uuid.UUID) {
	draft, err := h.acceptance.GetDraft(r.Context(), draftID)
	if err != nil {
		h.writeAcceptanceError(w, err, "Failed to load entity draft")
		return
	}
	if err := WriteJSON(w, http.StatusOK, draft); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AcceptanceHandler) writeAcceptanceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, apperrors.ErrEntityDraftNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "entity_draft_not_found", "Entity draft not found")
	case errors.Is(err, apperrors.ErrCampaignNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "campaign_not_found", "Campaign not found")
	case errors.Is(err, apperrors.ErrInvalidStatusTransition):
		err = ErrorResponse(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, apperrors.ErrCanonicalMutationRejected):
		err = ErrorResponse(w, http.StatusConflict, "canonical_mutation_rejected", "Canonical entities can only change through apply or retcon")
	default:
		h.logger.Error(fallback, zap.Error(err))
		err = ErrorResponse(w, http.StatusInternalServerError, "internal_error", fallback)
	}
	if err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
