package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

func newTrustService() TrustService {
	return NewTrustService(&TrustServiceDeps{Logger: zap.NewNop()})
}

func citation(name, excerpt string, confidence float64) models.Citation {
	return models.Citation{
		SourceType: models.SourceRulebook,
		SourceName: name,
		Excerpt:    excerpt,
		Confidence: confidence,
	}
}

func TestTrustService_FullySupportedClaimIsCanonical(t *testing.T) {
	svc := newTrustService()

	got := svc.AssignTrust(
		"Goblins attack caravans along mountain passes during winter.",
		[]models.Citation{citation(
			"Monster Manual",
			"goblin raiders attack caravans along mountain passes during winter months",
			1.0,
		)},
	)

	assert.Equal(t, models.TrustCanonical, got.Overall)
	assert.InDelta(t, 1.0, got.Confidence, 0.001)
	require.Len(t, got.Claims, 1)
	assert.Equal(t, "Monster Manual", got.Claims[0].CitationID)
}

func TestTrustService_LowerCitationConfidenceIsDerived(t *testing.T) {
	svc := newTrustService()

	// Full term overlap against a citation the retriever only trusts at
	// 0.8 caps support at 0.8, below the canonical threshold.
	got := svc.AssignTrust(
		"Goblins attack caravans along mountain passes during winter.",
		[]models.Citation{citation(
			"Monster Manual",
			"goblin raiders attack caravans along mountain passes during winter months",
			0.8,
		)},
	)

	assert.Equal(t, models.TrustDerived, got.Overall)
	assert.InDelta(t, 0.8, got.Confidence, 0.001)
}

func TestTrustService_FailedCitationIsUnverified(t *testing.T) {
	svc := newTrustService()

	// A claim that names a source the citations cannot back up drops to
	// unverified rather than creative.
	got := svc.AssignTrust(
		"According to the core rules, displacer beasts hunt in mated pairs.",
		nil,
	)

	assert.Equal(t, models.TrustUnverified, got.Overall)
	require.Len(t, got.Claims, 1)
	assert.Zero(t, got.Claims[0].Support)
}

func TestTrustService_UnsupportedClaimIsCreative(t *testing.T) {
	svc := newTrustService()

	got := svc.AssignTrust(
		"Lord Vexmoor secretly funds both sides of the border war.",
		[]models.Citation{citation("Monster Manual", "goblins live in caves", 1.0)},
	)

	assert.Equal(t, models.TrustCreative, got.Overall)
}

func TestTrustService_OverallIsMinimumAcrossClaims(t *testing.T) {
	svc := newTrustService()

	cites := []models.Citation{citation(
		"Monster Manual",
		"goblin raiders attack caravans along mountain passes during winter months",
		1.0,
	)}

	got := svc.AssignTrust(
		"Goblins attack caravans along mountain passes during winter. "+
			"Lord Vexmoor secretly funds both sides of the border war.",
		cites,
	)

	require.Len(t, got.Claims, 2)
	assert.Equal(t, models.TrustCanonical, got.Claims[0].Trust)
	assert.Equal(t, models.TrustCreative, got.Claims[1].Trust)
	assert.Equal(t, models.TrustCreative, got.Overall)
	assert.Less(t, got.Confidence, 0.5)
}

func TestTrustService_EmptyContent(t *testing.T) {
	svc := newTrustService()

	for _, content := range []string{"", "Yes.", "Okay then. Sure."} {
		got := svc.AssignTrust(content, nil)
		assert.Equal(t, models.TrustCreative, got.Overall, "content %q", content)
		assert.Zero(t, got.Confidence)
		assert.Empty(t, got.Claims)
	}
}

func TestTrustService_PluralFormsMatchSingularSources(t *testing.T) {
	svc := newTrustService()

	got := svc.AssignTrust(
		"Beholders distrust other beholders above everything else.",
		[]models.Citation{citation(
			"Monster Manual",
			"the beholder distrusts every other beholder above everything else",
			1.0,
		)},
	)

	assert.Equal(t, models.TrustCanonical, got.Overall)
}

func TestSplitClaims(t *testing.T) {
	claims := splitClaims("First sentence with enough length here. Short. Second sentence with enough length here!")
	require.Len(t, claims, 2)
	assert.Equal(t, "First sentence with enough length here", claims[0])
}
