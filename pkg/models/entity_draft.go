package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TrustLevel classifies how reliable a piece of generated content is,
// from most to least reliable. A trust level is never silently upgraded;
// raising it requires an explicit verification action.
type TrustLevel string

const (
	TrustCanonical  TrustLevel = "canonical"
	TrustDerived    TrustLevel = "derived"
	TrustCreative   TrustLevel = "creative"
	TrustUnverified TrustLevel = "unverified"
)

// trustRank orders trust levels; higher is more reliable.
func trustRank(t TrustLevel) int {
	switch t {
	case TrustCanonical:
		return 3
	case TrustDerived:
		return 2
	case TrustCreative:
		return 1
	default:
		return 0
	}
}

// Reliable reports whether content at this level can be presented as
// grounded in source material.
func (t TrustLevel) Reliable() bool {
	return t == TrustCanonical || t == TrustDerived
}

// MinTrust returns the least reliable of a and b.
func MinTrust(a, b TrustLevel) TrustLevel {
	if trustRank(a) <= trustRank(b) {
		return a
	}
	return b
}

// CanonStatus is the promotion lifecycle stage of a generated entity.
type CanonStatus string

const (
	StatusDraft      CanonStatus = "draft"
	StatusApproved   CanonStatus = "approved"
	StatusCanonical  CanonStatus = "canonical"
	StatusDeprecated CanonStatus = "deprecated"
)

// CanTransitionTo encodes the legal status edges. draft->approved and
// approved->draft are GM decisions, approved->canonical happens
// automatically on first session use, canonical->deprecated is a retcon.
func (s CanonStatus) CanTransitionTo(target CanonStatus) bool {
	switch s {
	case StatusDraft:
		return target == StatusApproved
	case StatusApproved:
		return target == StatusCanonical || target == StatusDraft
	case StatusCanonical:
		return target == StatusDeprecated
	default:
		return false
	}
}

// Editable reports whether the entity may be modified in place.
// Canonical entities require a retcon first, deprecated ones are frozen.
func (s CanonStatus) Editable() bool {
	return s == StatusDraft || s == StatusApproved
}

// SourceType classifies where a citation comes from.
type SourceType string

const (
	SourceRulebook       SourceType = "rulebook"
	SourceFlavour        SourceType = "flavour_source"
	SourceAdventure      SourceType = "adventure"
	SourceHomebrew       SourceType = "homebrew"
	SourceCampaignEntity SourceType = "campaign_entity"
)

// Citation attributes generated content to indexed reference material.
type Citation struct {
	ID         uuid.UUID  `json:"id,omitempty"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id,omitempty"`
	SourceName string     `json:"source_name"`
	Page       *int       `json:"page,omitempty"`
	Section    string     `json:"section,omitempty"`
	Chapter    string     `json:"chapter,omitempty"`
	Excerpt    string     `json:"excerpt,omitempty"`
	Confidence float64    `json:"confidence"`
}

// EntityDraft is the generic envelope around any generated payload. It is
// the unit the acceptance manager operates on. Payloads with trust
// canonical or derived must carry at least one citation.
type EntityDraft[T any] struct {
	ID              uuid.UUID   `json:"id"`
	CampaignID      *uuid.UUID  `json:"campaign_id,omitempty"`
	EntityType      EntityType  `json:"entity_type"`
	Payload         T           `json:"payload"`
	Status          CanonStatus `json:"status"`
	Trust           TrustLevel  `json:"trust"`
	Confidence      float64     `json:"confidence"`
	Citations       []Citation  `json:"citations,omitempty"`
	AppliedEntityID *uuid.UUID  `json:"applied_entity_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// GenerationDraft is the serialized row form of an EntityDraft, as stored
// and as exchanged with the acceptance manager.
type GenerationDraft = EntityDraft[json.RawMessage]

// StatusTransition is one immutable audit-log row for a canon status edge.
type StatusTransition struct {
	ID          uuid.UUID   `json:"id"`
	DraftID     uuid.UUID   `json:"draft_id"`
	EntityType  EntityType  `json:"entity_type"`
	FromStatus  CanonStatus `json:"from_status"`
	ToStatus    CanonStatus `json:"to_status"`
	TriggeredBy string      `json:"triggered_by"`
	Reason      string      `json:"reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Audit trigger sources.
const (
	TriggerGM           = "gm"
	TriggerSessionStart = "session_start"
	TriggerRetcon       = "retcon"
	TriggerWizard       = "wizard_completion"
)

// AcceptanceEventKind is the decision recorded in the acceptance log.
type AcceptanceEventKind string

const (
	EventApproved AcceptanceEventKind = "approved"
	EventRejected AcceptanceEventKind = "rejected"
	EventModified AcceptanceEventKind = "modified"
	EventApplied  AcceptanceEventKind = "applied"
	EventRetcon   AcceptanceEventKind = "retconned"
)

// IntentMigration is one immutable record of a locked campaign intent
// being rewritten.
type IntentMigration struct {
	ID          uuid.UUID       `json:"id"`
	CampaignID  uuid.UUID       `json:"campaign_id"`
	PriorIntent json.RawMessage `json:"prior_intent,omitempty"`
	NewIntent   json.RawMessage `json:"new_intent"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AcceptanceEvent is one immutable acceptance-log row.
type AcceptanceEvent struct {
	ID            uuid.UUID           `json:"id"`
	DraftID       uuid.UUID           `json:"draft_id"`
	EntityType    EntityType          `json:"entity_type"`
	Kind          AcceptanceEventKind `json:"kind"`
	PrevStatus    CanonStatus         `json:"prev_status"`
	NewStatus     CanonStatus         `json:"new_status"`
	Modifications json.RawMessage     `json:"modifications,omitempty"`
	PriorVersion  json.RawMessage     `json:"prior_version,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}
