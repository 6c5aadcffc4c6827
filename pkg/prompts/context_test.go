package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

func intent() *models.CampaignIntent {
	return &models.CampaignIntent{
		Fantasy:      "political intrigue in a dying empire",
		Themes:       []string{"betrayal", "legacy"},
		ToneKeywords: []string{"grim", "slow-burn"},
		Avoid:        []string{"comic relief"},
	}
}

func snippet(source, content string) models.Snippet {
	return models.Snippet{
		SourceName: source,
		SourceType: models.SourceRulebook,
		Content:    content,
		Confidence: 0.9,
		Match:      models.MatchKeyword,
	}
}

func TestAssembler_SectionOrder(t *testing.T) {
	a := NewAssembler(6000)

	out := a.Assemble(ContextInput{
		Intent:   intent(),
		Snippets: []models.Snippet{snippet("Player's Handbook", "Intrigue rules for courts.")},
		Draft:    &models.PartialCampaign{Name: "Ashes of Empire", System: "D&D 5e"},
		Messages: []*models.Message{
			{Role: models.RoleUser, Content: "I want a scheming vizier"},
			{Role: models.RoleAssistant, Content: "Consider Vizier Qelath"},
		},
	})

	vision := strings.Index(out, "## Campaign Vision")
	reference := strings.Index(out, "## Reference Material")
	draft := strings.Index(out, "## Campaign Draft So Far")
	conversation := strings.Index(out, "## Recent Conversation")

	require.True(t, vision >= 0 && reference >= 0 && draft >= 0 && conversation >= 0, "all sections present:\n%s", out)
	assert.True(t, vision < reference && reference < draft && draft < conversation, "sections out of order:\n%s", out)

	assert.Contains(t, out, "Core fantasy: political intrigue in a dying empire")
	assert.Contains(t, out, "Themes: betrayal, legacy")
	assert.Contains(t, out, "Ashes of Empire")
	assert.Contains(t, out, "user: I want a scheming vizier")
}

func TestAssembler_IntentSurvivesTinyBudget(t *testing.T) {
	a := NewAssembler(1)

	out := a.Assemble(ContextInput{
		Intent:   intent(),
		Snippets: []models.Snippet{snippet("Player's Handbook", strings.Repeat("long reference text ", 200))},
		Draft:    &models.PartialCampaign{Name: "Ashes of Empire"},
		Messages: []*models.Message{{Role: models.RoleUser, Content: "hello"}},
	})

	// Intent is never trimmed; everything else is dropped.
	assert.Contains(t, out, "## Campaign Vision")
	assert.NotContains(t, out, "long reference text")
	assert.NotContains(t, out, "## Campaign Draft So Far")
	assert.NotContains(t, out, "## Recent Conversation")
}

func TestAssembler_DropsSnippetsPastBudget(t *testing.T) {
	a := NewAssembler(6000)

	intentCost := a.CountTokens(a.Assemble(ContextInput{Intent: intent()}))
	small := snippet("Player's Handbook", "Short snippet.")
	huge := snippet("Player's Handbook", strings.Repeat("filler text about courts and intrigue ", 1500))

	tight := NewAssembler(intentCost +
		a.CountTokens("## Reference Material\n\n") +
		a.CountTokens("### [1] Player's Handbook\nShort snippet.\n\n") + 8)

	out := tight.Assemble(ContextInput{
		Intent:   intent(),
		Snippets: []models.Snippet{small, huge},
	})

	assert.Contains(t, out, "Short snippet.")
	assert.NotContains(t, out, "filler text")
}

func TestAssembler_RejectedTopicsSuppressed(t *testing.T) {
	a := NewAssembler(6000)

	out := a.Assemble(ContextInput{
		Messages: []*models.Message{{Role: models.RoleUser, Content: "any villains left?"}},
		Decisions: &models.DecisionSummary{
			Rejected:       2,
			RejectedTopics: []string{"dragon BBEG", "lich patron"},
		},
	})

	assert.Contains(t, out, "already rejected suggestions about: dragon BBEG, lich patron")
	assert.Contains(t, out, "Do not suggest these again")
}

func TestAssembler_CountTokens(t *testing.T) {
	a := NewAssembler(6000)
	assert.Zero(t, a.CountTokens(""))
	assert.Greater(t, a.CountTokens("the quick brown fox jumps over the lazy dog"), 5)
}
