package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/middleware"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

// ConversationsHandler handles thread and message HTTP requests.
type ConversationsHandler struct {
	ledger     services.LedgerService
	generation services.GenerationService
	drafts     services.DraftService
	logger     *zap.Logger
}

// NewConversationsHandler creates a new conversations handler.
func NewConversationsHandler(ledger services.LedgerService, generation services.GenerationService, drafts services.DraftService, logger *zap.Logger) *ConversationsHandler {
	return &ConversationsHandler{ledger: ledger, generation: generation, drafts: drafts, logger: logger}
}

// RegisterRoutes registers the conversations handler's routes on the given mux.
func (h *ConversationsHandler) RegisterRoutes(mux *http.ServeMux, scope middleware.ScopeFunc) {
	mux.HandleFunc("POST /api/threads", scope(h.CreateThread))
	mux.HandleFunc("GET /api/threads/{tid}", scope(h.GetThread))
	mux.HandleFunc("GET /api/threads/{tid}/messages", scope(h.ListMessages))
	mux.HandleFunc("POST /api/threads/{tid}/messages", scope(h.PostMessage))
	mux.HandleFunc("POST /api/threads/{tid}/branch", scope(h.Branch))
	mux.HandleFunc("POST /api/threads/{tid}/decisions", scope(h.RecordDecision))
	mux.HandleFunc("GET /api/threads/{tid}/decisions/summary", scope(h.DecisionSummary))
	mux.HandleFunc("POST /api/threads/{tid}/messages/{mid}/suggestions/{sid}", scope(h.ResolveSuggestion))
	mux.HandleFunc("GET /api/drafts/{did}/threads", scope(h.ListDraftThreads))
}

// CreateThread handles POST /api/threads
func (h *ConversationsHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DraftID    *uuid.UUID           `json:"draft_id"`
		CampaignID *uuid.UUID           `json:"campaign_id"`
		Purpose    models.ThreadPurpose `json:"purpose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid thread request"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if body.Purpose == "" {
		body.Purpose = models.PurposeFreeform
	}

	thread, err := h.ledger.CreateThread(r.Context(), body.DraftID, body.CampaignID, body.Purpose)
	if err != nil {
		h.writeThreadError(w, err, "Failed to create thread")
		return
	}

	if body.DraftID != nil {
		if err := h.drafts.AttachThread(r.Context(), *body.DraftID, thread.ID); err != nil {
			h.writeThreadError(w, err, "Failed to attach thread to draft")
			return
		}
	}

	if err := WriteJSON(w, http.StatusCreated, thread); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetThread handles GET /api/threads/{tid}
func (h *ConversationsHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	threadID, ok := ParseThreadID(w, r, h.logger)
	if !ok {
		return
	}

	thread, err := h.ledger.GetThread(r.Context(), threadID)
	if err != nil {
		h.writeThreadError(w, err, "Failed to load thread")
		return
	}
	if err := WriteJSON(w, http.StatusOK, thread); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListMessages handles GET /api/threads/{tid}/messages?limit=N
func (h *ConversationsHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	threadID, ok := ParseThreadID(w, r, h.logger)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = n
	}

	messages, err := h.ledger.History(r.Context(), threadID, limit)
	if err != nil {
		h.writeThreadError(w, err, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"messages": messages}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PostMessage handles POST /api/threads/{tid}/messages. The GM message is
// recorded, answered with grounded context, and the assistant reply is
// returned with any embedded proposals.
func (h *ConversationsHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	threadID, ok := ParseThreadID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Message content is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	thread, err := h.ledger.GetThread(r.Context(), threadID)
	if err != nil {
		h.writeThreadError(w, err, "Failed to load thread")
		return
	}

	reply, err := h.generation.Converse(r.Context(), threadID, thread.DraftID, body.Content)
	if err != nil {
		h.writeThreadError(w, err, "Failed to process message")
		return
	}
	if err := WriteJSON(w, http.StatusOK, reply); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Branch handles POST /api/threads/{tid}/branch
func (h *ConversationsHandler) Branch(w http.ResponseWriter, r *http.Request) {
	threadID, ok := ParseThreadID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		MessageID uuid.UUID `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MessageID == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "message_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	branch, err := h.ledger.BranchFrom(r.Context(), threadID, body.MessageID)
	if err != nil {
		h.writeThreadError(w, err, "Failed to branch thread")
		return
	}
	if err := WriteJSON(w, http.StatusCreated, branch); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RecordDecision handles POST /api/threads/{tid}/decisions. An accepted or
// modified decision carries the patches the GM applied; those are routed
// through the draft patch pipeline, never applied directly.
func (h *ConversationsHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	threadID, ok := ParseThreadID(w, r, h.logger)
	if !ok {
		return
	}

	var decision models.Decision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid decision"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	decision.ThreadID = threadID

	if err := h.ledger.RecordDecision(r.Context(), &decision); err != nil {
		h.writeThreadError(w, err, "Failed to record decision")
		return
	}

	if decision.Kind != models.DecisionRejected && len(decision.AppliedPatches) > 0 {
		thread, err := h.ledger.GetThread(r.Context(), threadID)
		if err != nil {
			h.writeThreadError(w, err, "Failed to load thread")
			return
		}
		if thread.DraftID != nil {
			if _, err := h.drafts.ApplyPatches(r.Context(), *thread.DraftID, models.PatchSet{
				Patches: decision.AppliedPatches,
				Source:  models.PatchSourceSuggestion,
			}); err != nil {
				h.writeThreadError(w, err, "Failed to apply accepted patches")
				return
			}
		}
	}

	if err := WriteJSON(w, http.StatusCreated, decision); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ResolveSuggestion handles POST /api/threads/{tid}/messages/{mid}/suggestions/{sid}.
// Accepting a suggestion routes its value through the draft patch
// pipeline; rejecting only records the verdict.
func (h *ConversationsHandler) ResolveSuggestion(w http.ResponseWriter, r *http.Request) {
	threadID, ok := ParseThreadID(w, r, h.logger)
	if !ok {
		return
	}
	messageID, ok := ParseMessageID(w, r, h.logger)
	if !ok {
		return
	}
	suggestionID, ok := ParseSuggestionID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Status models.SuggestionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		(body.Status != models.SuggestionAccepted && body.Status != models.SuggestionRejected) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "status must be accepted or rejected"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	msg, err := h.ledger.ResolveSuggestion(r.Context(), threadID, messageID, suggestionID, body.Status)
	if err != nil {
		h.writeThreadError(w, err, "Failed to resolve suggestion")
		return
	}

	if body.Status == models.SuggestionAccepted {
		thread, err := h.ledger.GetThread(r.Context(), threadID)
		if err != nil {
			h.writeThreadError(w, err, "Failed to load thread")
			return
		}
		if thread.DraftID != nil {
			if patch, ok := suggestionPatch(msg, suggestionID); ok {
				if _, err := h.drafts.ApplyPatches(r.Context(), *thread.DraftID, models.PatchSet{
					Patches: []models.Patch{patch},
					Source:  models.PatchSourceSuggestion,
				}); err != nil {
					h.writeThreadError(w, err, "Failed to apply accepted suggestion")
					return
				}
			}
		}
	}

	if err := WriteJSON(w, http.StatusOK, msg); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// suggestionPatch turns one embedded suggestion into a draft patch.
func suggestionPatch(msg *models.Message, suggestionID uuid.UUID) (models.Patch, bool) {
	for _, s := range msg.Suggestions {
		if s.ID != suggestionID {
			continue
		}
		value, err := json.Marshal(s.Value)
		if err != nil {
			return models.Patch{}, false
		}
		return models.Patch{Path: s.Field, Value: value}, true
	}
	return models.Patch{}, false
}

// ListDraftThreads handles GET /api/drafts/{did}/threads
func (h *ConversationsHandler) ListDraftThreads(w http.ResponseWriter, r *http.Request) {
	draftID, ok := ParseDraftID(w, r, h.logger)
	if !ok {
		return
	}

	threads, err := h.ledger.ThreadsForDraft(r.Context(), draftID)
	if err != nil {
		h.writeThreadError(w, err, "Failed to list draft threads")
		return
	}
	if threads == nil {
		threads = []*models.ConversationThread{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"threads": threads}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DecisionSummary handles GET /api/threads/{tid}/decisions/summary
func (h *ConversationsHandler) DecisionSummary(w http.ResponseWriter, r *http.Request) {
	threadID, ok := ParseThreadID(w, r, h.logger)
	if !ok {
		return
	}

	summary, err := h.ledger.SummarizeDecisions(r.Context(), threadID)
	if err != nil {
		h.writeThreadError(w, err, "Failed to summarize decisions")
		return
	}
	if err := WriteJSON(w, http.StatusOK, summary); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ConversationsHandler) writeThreadError(w http.ResponseWriter, err error, fallback string) {
	var pe *apperrors.PatchValidationError
	switch {
	case errors.Is(err, apperrors.ErrThreadNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "thread_not_found", "Thread not found")
	case errors.Is(err, apperrors.ErrDraftNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "draft_not_found", "Draft not found")
	case errors.Is(err, apperrors.ErrNotFound):
		err = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
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
