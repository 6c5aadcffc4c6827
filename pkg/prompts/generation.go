package prompts

import (
	"fmt"
	"strings"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// GenerationParams are the purpose-specific knobs for one generation run.
type GenerationParams struct {
	// Topic is the subject of generation: an NPC name, a session focus,
	// an arc premise, or the events being recapped.
	Topic string

	// Notes is free-form GM guidance to honor.
	Notes string

	// Importance applies to NPC generation only.
	Importance models.NPCImportance
}

const citationInstructions = `Cite the reference material for any mechanical or setting fact you use.
Citation format inside the JSON: {"source_name": "...", "section": "...", "page": 12, "excerpt": "..."}.
Do not invent sources. Content without support in the reference material is fine, but leave it uncited.`

// SystemPromptFor returns the system prompt for a generation purpose.
func SystemPromptFor(purpose models.GenerationPurpose) string {
	switch purpose {
	case models.PurposeNPC, models.PurposeCharacterBackground:
		return "You are an experienced tabletop RPG game master's assistant. You create NPCs and character material that fit the campaign's tone and honor its constraints. You respond with a single JSON object and nothing else."
	case models.PurposeSessionPlan:
		return "You are an experienced tabletop RPG session planner. You build session plans around the campaign's arc and the party's recent decisions. You respond with a single JSON object and nothing else."
	case models.PurposePartyComposition:
		return "You are a tabletop RPG party analyst. You evaluate party composition, identify gaps in coverage, and suggest fits for the campaign's expected challenges. You respond with a single JSON object and nothing else."
	case models.PurposeArcOutline:
		return "You are a tabletop RPG narrative designer. You outline campaign arcs with escalating stakes tied to the campaign's core fantasy. You respond with a single JSON object and nothing else."
	case models.PurposeRecap:
		return "You are a tabletop RPG session chronicler. You write vivid but accurate recaps strictly from the events given. You respond with a single JSON object and nothing else."
	default:
		return "You are an experienced tabletop RPG game master's assistant. You respond with a single JSON object and nothing else."
	}
}

// BuildGenerationPrompt renders the user prompt for a generation run.
// context is the assembled context block; it precedes the task.
func BuildGenerationPrompt(purpose models.GenerationPurpose, params GenerationParams, context string) (string, error) {
	var task string
	switch purpose {
	case models.PurposeNPC:
		task = buildNPCTask(params)
	case models.PurposeCharacterBackground:
		task = buildBackgroundTask(params)
	case models.PurposeSessionPlan:
		task = buildSessionPlanTask(params)
	case models.PurposePartyComposition:
		task = buildPartyCompositionTask(params)
	case models.PurposeArcOutline:
		task = buildArcOutlineTask(params)
	case models.PurposeRecap:
		task = buildRecapTask(params)
	default:
		return "", fmt.Errorf("unknown generation purpose: %s", purpose)
	}

	var prompt strings.Builder
	if context != "" {
		prompt.WriteString(context)
	}
	prompt.WriteString(task)
	prompt.WriteString("\n\n")
	prompt.WriteString(citationInstructions)
	return prompt.String(), nil
}

func buildNPCTask(params GenerationParams) string {
	var b strings.Builder
	b.WriteString("## Task\n\n")

	importance := params.Importance
	if importance == "" {
		importance = models.ImportanceSupporting
	}

	b.WriteString(fmt.Sprintf("Create a %s importance NPC", importance))
	if params.Topic != "" {
		b.WriteString(fmt.Sprintf(" named or described as: %s", params.Topic))
	}
	b.WriteString(fmt.Sprintf(". Detail level: %s.\n", importance.DetailLevel()))

	switch importance {
	case models.ImportanceMinor:
		b.WriteString("Keep it to name, role, one distinguishing trait, and one mannerism.\n")
	case models.ImportanceMajor:
		b.WriteString("Include full personality, motivations, secrets, relationships, and stat-relevant abilities. ")
		b.WriteString("Where the reference material defines a spell, trait, or rule the NPC uses, reproduce its mechanical effect inline so the NPC sheet stands alone.\n")
	default:
		b.WriteString("Include personality, motivation, appearance, and a hook tying them to the party.\n")
	}

	if params.Notes != "" {
		b.WriteString(fmt.Sprintf("\nGM guidance: %s\n", params.Notes))
	}

	b.WriteString("\nRespond with JSON: {\"name\": string, \"role\": string, \"description\": string, \"personality\": string, \"motivation\": string, \"secrets\": [string], \"abilities\": [string], \"citations\": [citation]}")
	return b.String()
}

func buildBackgroundTask(params GenerationParams) string {
	var b strings.Builder
	b.WriteString("## Task\n\n")
	b.WriteString("Write a character background")
	if params.Topic != "" {
		b.WriteString(fmt.Sprintf(" for: %s", params.Topic))
	}
	b.WriteString(". Tie it to the campaign's themes and leave at least two open threads a GM can pull on.\n")
	if params.Notes != "" {
		b.WriteString(fmt.Sprintf("\nGM guidance: %s\n", params.Notes))
	}
	b.WriteString("\nRespond with JSON: {\"name\": string, \"background\": string, \"bonds\": [string], \"open_threads\": [string], \"citations\": [citation]}")
	return b.String()
}

func buildSessionPlanTask(params GenerationParams) string {
	var b strings.Builder
	b.WriteString("## Task\n\n")
	b.WriteString("Plan the next session")
	if params.Topic != "" {
		b.WriteString(fmt.Sprintf(" focused on: %s", params.Topic))
	}
	b.WriteString(". Include a strong open, two to four scenes with goals and fallbacks, and contingencies for the party going sideways.\n")
	if params.Notes != "" {
		b.WriteString(fmt.Sprintf("\nGM guidance: %s\n", params.Notes))
	}
	b.WriteString("\nRespond with JSON: {\"title\": string, \"opening\": string, \"scenes\": [{\"name\": string, \"goal\": string, \"fallback\": string}], \"contingencies\": [string], \"citations\": [citation]}")
	return b.String()
}

func buildPartyCompositionTask(params GenerationParams) string {
	var b strings.Builder
	b.WriteString("## Task\n\n")
	b.WriteString("Analyze the party composition in the campaign draft. Identify covered roles, gaps, and how the campaign's expected challenges interact with those gaps.\n")
	if params.Notes != "" {
		b.WriteString(fmt.Sprintf("\nGM guidance: %s\n", params.Notes))
	}
	b.WriteString("\nRespond with JSON: {\"covered_roles\": [string], \"gaps\": [string], \"risks\": [string], \"suggestions\": [string], \"citations\": [citation]}")
	return b.String()
}

func buildArcOutlineTask(params GenerationParams) string {
	var b strings.Builder
	b.WriteString("## Task\n\n")
	b.WriteString("Outline a campaign arc")
	if params.Topic != "" {
		b.WriteString(fmt.Sprintf(" around: %s", params.Topic))
	}
	b.WriteString(". Follow the arc structure in the draft if one is set. Each phase needs stakes, an antagonist move, and a player-facing question.\n")
	if params.Notes != "" {
		b.WriteString(fmt.Sprintf("\nGM guidance: %s\n", params.Notes))
	}
	b.WriteString("\nRespond with JSON: {\"title\": string, \"premise\": string, \"phases\": [{\"name\": string, \"stakes\": string, \"antagonist_move\": string, \"question\": string}], \"citations\": [citation]}")
	return b.String()
}

func buildRecapTask(params GenerationParams) string {
	var b strings.Builder
	b.WriteString("## Task\n\n")
	b.WriteString("Write a recap of the following session events. Stick strictly to what happened; do not invent outcomes.\n\n")
	b.WriteString(fmt.Sprintf("Events:\n%s\n", params.Topic))
	if params.Notes != "" {
		b.WriteString(fmt.Sprintf("\nGM guidance: %s\n", params.Notes))
	}
	b.WriteString("\nRespond with JSON: {\"title\": string, \"recap\": string, \"cliffhanger\": string, \"citations\": [citation]}")
	return b.String()
}
