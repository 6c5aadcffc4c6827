package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseDraftID extracts and validates the creation draft ID from the
// request path. Returns the parsed UUID and true on success, or uuid.Nil
// and false on error (after writing an error response).
// Expects path parameter: did
func ParseDraftID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "did", "invalid_draft_id", "Invalid draft ID format", logger)
}

// ParseThreadID extracts and validates the thread ID from the request path.
// Expects path parameter: tid
func ParseThreadID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "tid", "invalid_thread_id", "Invalid thread ID format", logger)
}

// ParseCampaignID extracts and validates the campaign ID from the request path.
// Expects path parameter: cid
func ParseCampaignID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_campaign_id", "Invalid campaign ID format", logger)
}

// ParseEntityDraftID extracts and validates the entity draft ID from the
// request path.
// Expects path parameter: edid
func ParseEntityDraftID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "edid", "invalid_entity_draft_id", "Invalid entity draft ID format", logger)
}

// ParseEntityID extracts and validates the canonical entity ID from the
// request path.
// Expects path parameter: eid
func ParseEntityID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "eid", "invalid_entity_id", "Invalid entity ID format", logger)
}

// ParseMessageID extracts and validates the message ID from the request path.
// Expects path parameter: mid
func ParseMessageID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "mid", "invalid_message_id", "Invalid message ID format", logger)
}

// ParseSuggestionID extracts and validates the suggestion ID from the
// request path.
// Expects path parameter: sid
func ParseSuggestionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_suggestion_id", "Invalid suggestion ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
