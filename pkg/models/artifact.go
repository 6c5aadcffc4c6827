package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// GenerationPurpose selects a prompt template and finalize parser.
type GenerationPurpose string

const (
	PurposeNPC                 GenerationPurpose = "npc"
	PurposeCharacterBackground GenerationPurpose = "character_background"
	PurposeSessionPlan         GenerationPurpose = "session_plan"
	PurposePartyComposition    GenerationPurpose = "party_composition"
	PurposeArcOutline          GenerationPurpose = "arc_outline"
	PurposeRecap               GenerationPurpose = "recap"
)

// EntityTypeFor maps a generation purpose to the entity type its
// artifacts belong to.
func (p GenerationPurpose) EntityTypeFor() EntityType {
	switch p {
	case PurposeNPC, PurposeCharacterBackground:
		return EntityNPC
	case PurposeSessionPlan:
		return EntitySession
	case PurposeArcOutline:
		return EntityArc
	case PurposeRecap:
		return EntityRecap
	default:
		return EntityPlotPoint
	}
}

// NPCImportance selects the depth of NPC generation. Major NPCs get
// inline expansion of mechanical references so the artifact stands alone.
type NPCImportance string

const (
	ImportanceMinor      NPCImportance = "minor"
	ImportanceSupporting NPCImportance = "supporting"
	ImportanceMajor      NPCImportance = "major"
)

// DetailLevel describes how much detail the prompt should request.
func (i NPCImportance) DetailLevel() string {
	switch i {
	case ImportanceMinor:
		return "minimal"
	case ImportanceMajor:
		return "detailed"
	default:
		return "moderate"
	}
}

// Artifact is a generated entity not yet tied to a draft field or to
// canonical state. It enters the acceptance pipeline as a draft-status
// EntityDraft.
type Artifact struct {
	ID         uuid.UUID       `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	Name       string          `json:"name,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	RawText    string          `json:"raw_text,omitempty"`
	Trust      TrustLevel      `json:"trust"`
	Confidence float64         `json:"confidence"`
	Citations  []Citation      `json:"citations,omitempty"`
}

// ArtifactBundle is the finalized output of one generation run.
type ArtifactBundle struct {
	Proposals []Proposal `json:"proposals,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
}
