package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CampaignIntent is the creative-vision anchor for a campaign. Exactly one
// exists per campaign. Once the campaign holds any canonical entity the
// intent is immutable except through an explicit, logged migration.
type CampaignIntent struct {
	Fantasy           string   `json:"fantasy"`
	PlayerExperiences []string `json:"player_experiences,omitempty"`
	Constraints       []string `json:"constraints,omitempty"`
	Themes            []string `json:"themes,omitempty"`
	ToneKeywords      []string `json:"tone_keywords,omitempty"`
	Avoid             []string `json:"avoid,omitempty"`
}

// Campaign is a permanent campaign record. IntentLocked is set when the
// first canonical entity lands; after that the intent may only change
// through an explicit, logged migration.
type Campaign struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	System       string          `json:"system"`
	Description  string          `json:"description,omitempty"`
	Intent       *CampaignIntent `json:"intent,omitempty"`
	IntentLocked bool            `json:"intent_locked"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EntityType classifies canonical campaign entities and entity drafts.
type EntityType string

const (
	EntityNPC       EntityType = "npc"
	EntityLocation  EntityType = "location"
	EntityPlotPoint EntityType = "plot_point"
	EntityArc       EntityType = "arc"
	EntitySession   EntityType = "session_plan"
	EntityRecap     EntityType = "recap"
)

// CanonicalEntity is a permanent campaign entity. Only the canonical
// campaign store writes these; everything else produces proposals.
type CanonicalEntity struct {
	ID         uuid.UUID       `json:"id"`
	CampaignID uuid.UUID       `json:"campaign_id"`
	EntityType EntityType      `json:"entity_type"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Version    int             `json:"version"`
	Deprecated bool            `json:"deprecated"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
