package models

import (
	"time"

	"github.com/google/uuid"
)

// WizardStep identifies a stage of the campaign creation wizard.
type WizardStep string

const (
	StepBasics           WizardStep = "basics"
	StepIntent           WizardStep = "intent"
	StepScope            WizardStep = "scope"
	StepPlayers          WizardStep = "players"
	StepPartyComposition WizardStep = "party_composition"
	StepArcStructure     WizardStep = "arc_structure"
	StepInitialContent   WizardStep = "initial_content"
	StepReview           WizardStep = "review"
)

// wizardOrder is the forward progression of the wizard.
var wizardOrder = []WizardStep{
	StepBasics,
	StepIntent,
	StepScope,
	StepPlayers,
	StepPartyComposition,
	StepArcStructure,
	StepInitialContent,
	StepReview,
}

// WizardSteps returns the full ordered step list.
func WizardSteps() []WizardStep {
	steps := make([]WizardStep, len(wizardOrder))
	copy(steps, wizardOrder)
	return steps
}

func (s WizardStep) index() int {
	for i, step := range wizardOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known wizard step.
func (s WizardStep) Valid() bool {
	return s.index() >= 0
}

// Next returns the following step, or empty string at the end.
func (s WizardStep) Next() WizardStep {
	i := s.index()
	if i < 0 || i+1 >= len(wizardOrder) {
		return ""
	}
	return wizardOrder[i+1]
}

// Previous returns the preceding step, or empty string at the start.
func (s WizardStep) Previous() WizardStep {
	i := s.index()
	if i <= 0 {
		return ""
	}
	return wizardOrder[i-1]
}

// Skippable reports whether the step may be skipped without data.
func (s WizardStep) Skippable() bool {
	switch s {
	case StepPartyComposition, StepArcStructure, StepInitialContent:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the wizard may move from s to target.
// Backward movement to any earlier step is allowed; forward movement only
// to the immediately next step, or past a contiguous run of skippable steps.
func (s WizardStep) CanTransitionTo(target WizardStep) bool {
	from, to := s.index(), target.index()
	if from < 0 || to < 0 || from == to {
		return false
	}
	if to < from {
		return true
	}
	// Every step strictly between from and to must be skippable.
	for i := from + 1; i < to; i++ {
		if !wizardOrder[i].Skippable() {
			return false
		}
	}
	return true
}

// CampaignPacing expresses the desired campaign tempo.
type CampaignPacing string

const (
	PacingFast     CampaignPacing = "fast"
	PacingBalanced CampaignPacing = "balanced"
	PacingSlow     CampaignPacing = "slow"
	PacingSandbox  CampaignPacing = "sandbox"
)

// ExperienceLevel describes how seasoned the player group is.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceExperienced  ExperienceLevel = "experienced"
	ExperienceMixed        ExperienceLevel = "mixed"
)

// SessionScope configures expected session cadence and duration.
type SessionScope struct {
	SessionCount         *int           `json:"session_count,omitempty"`
	SessionDurationHours *float64       `json:"session_duration_hours,omitempty"`
	Pacing               CampaignPacing `json:"pacing,omitempty"`
	DurationMonths       *int           `json:"duration_months,omitempty"`
}

// PartyRole is used for party gap analysis.
type PartyRole string

const (
	RoleTank       PartyRole = "tank"
	RoleHealer     PartyRole = "healer"
	RoleDamage     PartyRole = "damage_dealer"
	RoleSupport    PartyRole = "support"
	RoleController PartyRole = "controller"
	RoleUtility    PartyRole = "utility"
	RoleFace       PartyRole = "face"
	RoleScout      PartyRole = "scout"
)

// CharacterSummary is a lightweight player character description.
type CharacterSummary struct {
	ID    string    `json:"id"`
	Name  string    `json:"name,omitempty"`
	Class string    `json:"class,omitempty"`
	Level *int      `json:"level,omitempty"`
	Role  PartyRole `json:"role,omitempty"`
}

// LevelRange is the expected character level progression.
type LevelRange struct {
	StartLevel int `json:"start_level"`
	EndLevel   int `json:"end_level"`
}

// PartyComposition holds what is known about the player party.
type PartyComposition struct {
	Characters []CharacterSummary `json:"characters,omitempty"`
	PartySize  *int               `json:"party_size,omitempty"`
	LevelRange *LevelRange        `json:"level_range,omitempty"`
}

// ArcTemplate is a predefined narrative arc shape.
type ArcTemplate string

const (
	ArcHerosJourney      ArcTemplate = "heros_journey"
	ArcThreeAct          ArcTemplate = "three_act"
	ArcFiveAct           ArcTemplate = "five_act"
	ArcMystery           ArcTemplate = "mystery"
	ArcPoliticalIntrigue ArcTemplate = "political_intrigue"
	ArcDungeonDelve      ArcTemplate = "dungeon_delve"
	ArcSandbox           ArcTemplate = "sandbox"
	ArcCustom            ArcTemplate = "custom"
)

// NarrativeStyle is the overall narrative structure preference.
type NarrativeStyle string

const (
	NarrativeLinear    NarrativeStyle = "linear"
	NarrativeBranching NarrativeStyle = "branching"
	NarrativeSandbox   NarrativeStyle = "sandbox"
	NarrativeEpisodic  NarrativeStyle = "episodic"
)

// ArcPhase is one configured phase of the campaign arc.
type ArcPhase struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	EstimatedSessions *int   `json:"estimated_sessions,omitempty"`
}

// ArcStructure configures the campaign narrative arc.
type ArcStructure struct {
	Template       ArcTemplate    `json:"template,omitempty"`
	Phases         []ArcPhase     `json:"phases,omitempty"`
	NarrativeStyle NarrativeStyle `json:"narrative_style,omitempty"`
}

// PlotHookType classifies an initial plot hook.
type PlotHookType string

const (
	HookMainQuest    PlotHookType = "main_quest"
	HookSideQuest    PlotHookType = "side_quest"
	HookCharacterTie PlotHookType = "character_tie"
	HookWorldEvent   PlotHookType = "world_event"
	HookMystery      PlotHookType = "mystery"
)

// LocationSketch is a starting location collected during creation.
type LocationSketch struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	LocationType       string `json:"location_type,omitempty"`
	Description        string `json:"description,omitempty"`
	IsStartingLocation bool   `json:"is_starting_location"`
}

// NPCSketch is an initial NPC collected during creation.
type NPCSketch struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// PlotHookSketch is an initial plot hook collected during creation.
type PlotHookSketch struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	HookType    PlotHookType `json:"hook_type,omitempty"`
}

// InitialContent holds the draft entities collected at the initial-content step.
type InitialContent struct {
	Locations []LocationSketch `json:"locations,omitempty"`
	NPCs      []NPCSketch      `json:"npcs,omitempty"`
	PlotHooks []PlotHookSketch `json:"plot_hooks,omitempty"`
}

// PartialCampaign is the single mutable truth during campaign creation.
// Both structured wizard edits and accepted conversational suggestions
// mutate it, only ever through patch sets.
type PartialCampaign struct {
	Name        string `json:"name,omitempty"`
	System      string `json:"system,omitempty"`
	Description string `json:"description,omitempty"`

	Intent *CampaignIntent `json:"intent,omitempty"`

	SessionScope *SessionScope `json:"session_scope,omitempty"`

	PlayerCount     *int            `json:"player_count,omitempty"`
	ExperienceLevel ExperienceLevel `json:"experience_level,omitempty"`

	PartyComposition *PartyComposition `json:"party_composition,omitempty"`
	ArcStructure     *ArcStructure     `json:"arc_structure,omitempty"`
	InitialContent   *InitialContent   `json:"initial_content,omitempty"`
}

// HasBasics reports whether the minimum basics fields are set.
func (p *PartialCampaign) HasBasics() bool {
	return p.Name != "" && p.System != ""
}

// ValidateForCompletion checks the required fields for campaign creation.
func (p *PartialCampaign) ValidateForCompletion() []string {
	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.System == "" {
		missing = append(missing, "system")
	}
	if p.PlayerCount == nil {
		missing = append(missing, "player_count")
	}
	return missing
}

// DraftSnapshot is the persisted state of one creation session: exactly one
// exists per session, from CreateDraft until cancel or completion.
type DraftSnapshot struct {
	ID             uuid.UUID       `json:"id"`
	CurrentStep    WizardStep      `json:"current_step"`
	CompletedSteps []WizardStep    `json:"completed_steps"`
	Campaign       PartialCampaign `json:"campaign"`
	ThreadID       *uuid.UUID      `json:"thread_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	AutosavedAt    *time.Time      `json:"autosaved_at,omitempty"`
}

// StepCompleted reports whether the given step has been completed.
func (d *DraftSnapshot) StepCompleted(step WizardStep) bool {
	for _, s := range d.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// ProgressPercent returns wizard progress in [0,100].
func (d *DraftSnapshot) ProgressPercent() int {
	return len(d.CompletedSteps) * 100 / len(wizardOrder)
}
