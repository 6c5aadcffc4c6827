package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PatchSource identifies which input surface produced a patch set.
// It is logged with every application so a last-write-wins conflict
// between a wizard edit and an accepted suggestion is reconstructible.
type PatchSource string

const (
	PatchSourceWizard     PatchSource = "wizard"
	PatchSourceSuggestion PatchSource = "accepted_suggestion"
)

// Patch is a single field-path/value update against a PartialCampaign.
type Patch struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// PatchSet is the only legal way to mutate a draft. All patches in a set
// are applied atomically.
type PatchSet struct {
	Patches []Patch     `json:"patches"`
	Source  PatchSource `json:"source"`
}

// Proposal is an AI-produced suggestion: patches plus rationale plus
// citations plus trust. It is never applied automatically.
type Proposal struct {
	ID        uuid.UUID  `json:"id"`
	Patches   []Patch    `json:"patches"`
	Rationale string     `json:"rationale,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Trust     TrustLevel `json:"trust"`
}

// DecisionKind is the GM verdict on a proposal.
type DecisionKind string

const (
	DecisionAccepted DecisionKind = "accepted"
	DecisionRejected DecisionKind = "rejected"
	DecisionModified DecisionKind = "modified"
)

// Decision records the GM verdict on a proposal. AppliedPatches holds the
// patches actually applied for accepted/modified decisions.
type Decision struct {
	ID             uuid.UUID    `json:"id"`
	ThreadID       uuid.UUID    `json:"thread_id"`
	ProposalID     uuid.UUID    `json:"proposal_id"`
	Kind           DecisionKind `json:"kind"`
	Topic          string       `json:"topic,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	AppliedPatches []Patch      `json:"applied_patches,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// DecisionSummary is a compact digest of past decisions on a thread, fed
// back into generation so rejected suggestions are not repeated.
type DecisionSummary struct {
	Accepted       int        `json:"accepted"`
	Rejected       int        `json:"rejected"`
	Modified       int        `json:"modified"`
	RejectedTopics []string   `json:"rejected_topics,omitempty"`
	Recent         []Decision `json:"recent,omitempty"`
}
