package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// ContextInput is everything the assembler may draw on when building the
// context block for a generation or conversation prompt.
type ContextInput struct {
	Intent    *models.CampaignIntent
	Snippets  []models.Snippet
	Draft     *models.PartialCampaign
	Messages  []*models.Message
	Decisions *models.DecisionSummary
}

// Assembler builds prompt context under a token budget. Sections are
// added in priority order: campaign intent first (never trimmed), then
// reference snippets, then the draft snapshot, then the recent
// conversation window. Whatever no longer fits is dropped whole.
type Assembler struct {
	budget int
	enc    *tiktoken.Tiktoken
}

// NewAssembler creates an Assembler with the given token budget.
func NewAssembler(budget int) *Assembler {
	if budget <= 0 {
		budget = 6000
	}
	// Encoding load needs the embedded BPE ranks; if unavailable the
	// assembler falls back to a bytes/4 heuristic.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Assembler{budget: budget, enc: enc}
}

// CountTokens returns the token count of s under the assembler's encoding.
func (a *Assembler) CountTokens(s string) int {
	if a.enc != nil {
		return len(a.enc.Encode(s, nil, nil))
	}
	return len(s) / 4
}

// Assemble renders the context block, dropping lower-priority sections
// that would exceed the budget.
func (a *Assembler) Assemble(in ContextInput) string {
	var out strings.Builder
	used := 0

	if in.Intent != nil {
		section := renderIntent(in.Intent)
		out.WriteString(section)
		used += a.CountTokens(section)
	}

	if len(in.Snippets) > 0 {
		var section strings.Builder
		section.WriteString("## Reference Material\n\n")
		for i, s := range in.Snippets {
			entry := renderSnippet(i+1, s)
			if used+a.CountTokens(section.String()+entry) > a.budget {
				break
			}
			section.WriteString(entry)
		}
		if cost := a.CountTokens(section.String()); used+cost <= a.budget {
			out.WriteString(section.String())
			used += cost
		}
	}

	if in.Draft != nil {
		section := renderDraft(in.Draft)
		if cost := a.CountTokens(section); used+cost <= a.budget {
			out.WriteString(section)
			used += cost
		}
	}

	if len(in.Messages) > 0 {
		section := renderConversation(in.Messages, in.Decisions)
		if cost := a.CountTokens(section); used+cost <= a.budget {
			out.WriteString(section)
			used += cost
		}
	}

	return out.String()
}

func renderIntent(intent *models.CampaignIntent) string {
	var b strings.Builder
	b.WriteString("## Campaign Vision\n\n")
	if intent.Fantasy != "" {
		b.WriteString(fmt.Sprintf("Core fantasy: %s\n", intent.Fantasy))
	}
	writeList(&b, "Player experiences", intent.PlayerExperiences)
	writeList(&b, "Themes", intent.Themes)
	writeList(&b, "Tone", intent.ToneKeywords)
	writeList(&b, "Constraints", intent.Constraints)
	writeList(&b, "Avoid", intent.Avoid)
	b.WriteString("\n")
	return b.String()
}

func renderSnippet(n int, s models.Snippet) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("### [%d] %s", n, s.SourceName))
	if s.Section != "" {
		b.WriteString(fmt.Sprintf(", %s", s.Section))
	}
	if s.Page != nil {
		b.WriteString(fmt.Sprintf(" (p. %d)", *s.Page))
	}
	b.WriteString("\n")
	b.WriteString(s.Content)
	b.WriteString("\n\n")
	return b.String()
}

func renderDraft(draft *models.PartialCampaign) string {
	// The draft is small relative to the budget; JSON keeps field names
	// stable for the model to reference.
	data, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return ""
	}
	return fmt.Sprintf("## Campaign Draft So Far\n\n```json\n%s\n```\n\n", data)
}

func renderConversation(messages []*models.Message, decisions *models.DecisionSummary) string {
	var b strings.Builder
	b.WriteString("## Recent Conversation\n\n")
	for _, m := range messages {
		b.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
	}
	if decisions != nil && len(decisions.RejectedTopics) > 0 {
		b.WriteString("\nThe GM has already rejected suggestions about: ")
		b.WriteString(strings.Join(decisions.RejectedTopics, ", "))
		b.WriteString(". Do not suggest these again.\n")
	}
	b.WriteString("\n")
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("%s: %s\n", label, strings.Join(items, ", ")))
}
