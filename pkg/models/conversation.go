package models

import (
	"time"

	"github.com/google/uuid"
)

// ThreadPurpose describes what a conversation thread is for.
type ThreadPurpose string

const (
	PurposeCampaignCreation ThreadPurpose = "campaign_creation"
	PurposeSessionPrep      ThreadPurpose = "session_prep"
	PurposeFreeform         ThreadPurpose = "freeform"
)

// ConversationThread is a persisted dialogue keyed to a creation draft.
// Threads may branch from an earlier message; a branch copies history up
// to and including the branch point.
type ConversationThread struct {
	ID               uuid.UUID     `json:"id"`
	DraftID          *uuid.UUID    `json:"draft_id,omitempty"`
	CampaignID       *uuid.UUID    `json:"campaign_id,omitempty"`
	Purpose          ThreadPurpose `json:"purpose"`
	BranchedFromID   *uuid.UUID    `json:"branched_from_id,omitempty"`
	BranchPointMsgID *uuid.UUID    `json:"branch_point_message_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// MessageRole is the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// SuggestionStatus tracks what happened to an embedded suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Suggestion is a field-level proposal embedded in an assistant message.
type Suggestion struct {
	ID        uuid.UUID        `json:"id"`
	Field     string           `json:"field"`
	Value     string           `json:"value"`
	Rationale string           `json:"rationale,omitempty"`
	Status    SuggestionStatus `json:"status"`
}

// Message is one entry in a conversation thread.
type Message struct {
	ID          uuid.UUID    `json:"id"`
	ThreadID    uuid.UUID    `json:"thread_id"`
	Role        MessageRole  `json:"role"`
	Content     string       `json:"content"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Citations   []Citation   `json:"citations,omitempty"`
	Proposals   []Proposal   `json:"proposals,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
