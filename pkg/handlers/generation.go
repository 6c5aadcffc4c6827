package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/middleware"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/prompts"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

// GenerateRequest for POST generation endpoints.
type GenerateRequest struct {
	Purpose  models.GenerationPurpose `json:"purpose"`
	Params   prompts.GenerationParams `json:"params"`
	Filters  models.GroundingFilters  `json:"filters"`
	DraftID  *uuid.UUID               `json:"draft_id,omitempty"`
	ThreadID *uuid.UUID               `json:"thread_id,omitempty"`
}

// generationEventType labels one SSE frame of a generation run.
type generationEventType string

const (
	eventToken  generationEventType = "token"
	eventResult generationEventType = "result"
	eventError  generationEventType = "error"
)

// generationEvent is the SSE payload for generation streaming.
type generationEvent struct {
	Type    generationEventType       `json:"type"`
	Token   string                    `json:"token,omitempty"`
	Result  *models.ArtifactBundle    `json:"result,omitempty"`
	Drafts  []*models.GenerationDraft `json:"drafts,omitempty"`
	Message string                    `json:"message,omitempty"`
}

// GenerationHandler handles content generation HTTP requests with SSE
// streaming.
type GenerationHandler struct {
	generation services.GenerationService
	acceptance services.AcceptanceService
	logger     *zap.Logger
}

// NewGenerationHandler creates a new generation handler.
func NewGenerationHandler(generation services.GenerationService, acceptance services.AcceptanceService, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{generation: generation, acceptance: acceptance, logger: logger}
}

// RegisterRoutes registers the generation handler's routes on the given mux.
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux, scope middleware.ScopeFunc, campaignScope middleware.ScopeFunc) {
	// Draft-phase generation has no campaign yet.
	mux.HandleFunc("POST /api/generate", scope(h.Generate))
	mux.HandleFunc("POST /api/campaigns/{cid}/generate", campaignScope(h.GenerateForCampaign))
}

// Generate handles POST /api/generate
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, nil)
}

// GenerateForCampaign handles POST /api/campaigns/{cid}/generate. Finalized
// artifacts are registered as entity drafts awaiting GM review.
func (h *GenerationHandler) GenerateForCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := ParseCampaignID(w, r, h.logger)
	if !ok {
		return
	}
	h.generate(w, r, &campaignID)
}

// generate runs one generation and streams it as SSE: token events while
// the model produces output, then a single result event carrying the
// finalized artifact bundle.
func (h *GenerationHandler) generate(w http.ResponseWriter, r *http.Request, campaignID *uuid.UUID) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.Purpose == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_purpose", "Generation purpose is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	stream, err := h.generation.Generate(r.Context(), services.GenerationRequest{
		Purpose:    req.Purpose,
		Params:     req.Params,
		Filters:    req.Filters,
		CampaignID: campaignID,
		DraftID:    req.DraftID,
		ThreadID:   req.ThreadID,
	})
	if err != nil {
		h.logger.Error("Failed to start generation",
			zap.String("purpose", string(req.Purpose)),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "generation_failed", "Failed to start generation"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		stream.Cancel()
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// A dropped client cancels the run; accumulated text still finalizes
	// into a partial artifact below.
	go func() {
		<-r.Context().Done()
		stream.Cancel()
	}()

	for token := range stream.Tokens() {
		h.writeEvent(w, flusher, generationEvent{Type: eventToken, Token: token})
	}

	// The request context is already dead when the client dropped; finalize
	// and persist on a detached context so the partial artifact survives.
	// Values (including the database scope) are preserved.
	tail := context.WithoutCancel(r.Context())

	bundle, err := stream.Finalize(tail)
	if err != nil {
		h.logger.Error("Failed to finalize generation", zap.Error(err))
		h.writeEvent(w, flusher, generationEvent{Type: eventError, Message: "generation failed"})
		return
	}

	result := generationEvent{Type: eventResult, Result: bundle}
	if campaignID != nil {
		for _, artifact := range bundle.Artifacts {
			draft, err := h.acceptance.CreateDraft(tail, *campaignID, artifact)
			if err != nil {
				h.logger.Error("Failed to register entity draft",
					zap.String("campaign_id", campaignID.String()),
					zap.Error(err))
				continue
			}
			result.Drafts = append(result.Drafts, draft)
		}
	}
	h.writeEvent(w, flusher, result)
}

func (h *GenerationHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, event generationEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
