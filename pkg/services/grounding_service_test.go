package services

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/config"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/llm"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

func newGroundingService(repo *fakeReferenceRepo, embedder llm.EmbeddingClient) GroundingService {
	return NewGroundingService(&GroundingServiceDeps{
		ReferenceRepo: repo,
		Embedder:      embedder,
		Config: config.GroundingConfig{
			Timeout:  time.Second,
			TopK:     8,
			CacheTTL: time.Minute,
		},
		Logger: zap.NewNop(),
	})
}

func refChunk(title, section, content, term string, rank float64, embedding []float32) *repositories.ReferenceChunk {
	return &repositories.ReferenceChunk{
		ID:          uuid.New(),
		SourceID:    uuid.New(),
		Section:     section,
		Content:     content,
		Term:        term,
		Embedding:   embedding,
		SourceTitle: title,
		SourceType:  models.SourceRulebook,
		Rank:        rank,
	}
}

func TestGroundingService_ExplicitReferenceOutranksKeyword(t *testing.T) {
	repo := &fakeReferenceRepo{chunks: []*repositories.ReferenceChunk{
		refChunk("Player's Handbook", "Spells", "Zone of Truth compels creatures to speak only truth.", "zone of truth", 0.3, nil),
	}}
	embedder := &llm.MockEmbeddingClient{
		EmbedFunc: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("embedder down")
		},
	}
	svc := newGroundingService(repo, embedder)

	pack, err := svc.Ground(context.Background(), `How does "Zone of Truth" interact with illusions?`, "D&D 5e", models.GroundingFilters{})
	require.NoError(t, err)

	// The same chunk comes back from both term lookup and keyword search;
	// only the higher-confidence exact match survives dedupe.
	require.Len(t, pack.Snippets, 1)
	assert.Equal(t, models.MatchExactReference, pack.Snippets[0].Match)
	assert.InDelta(t, 0.95, pack.Snippets[0].Confidence, 0.001)

	require.Len(t, pack.Citations, 1)
	assert.Equal(t, "Player's Handbook", pack.Citations[0].SourceName)
	assert.InDelta(t, 0.95, pack.Citations[0].Confidence, 0.001)
}

func TestGroundingService_SemanticRerank(t *testing.T) {
	repo := &fakeReferenceRepo{chunks: []*repositories.ReferenceChunk{
		refChunk("Monster Manual", "Goblins", "Goblins favor ambush tactics.", "", 0.1, []float32{1, 0, 0}),
		refChunk("Monster Manual", "Orcs", "Orcs fight in open formation.", "", 0.1, []float32{0, 1, 0}),
	}}
	svc := newGroundingService(repo, &llm.MockEmbeddingClient{})

	pack, err := svc.Ground(context.Background(), "how do goblins fight", "D&D 5e", models.GroundingFilters{})
	require.NoError(t, err)
	require.Len(t, pack.Snippets, 2)

	// The aligned embedding is re-ranked semantic and sorts first. The
	// orthogonal one stays at keyword confidence.
	assert.Equal(t, models.MatchSemantic, pack.Snippets[0].Match)
	assert.Equal(t, "Goblins", pack.Snippets[0].Section)
	assert.InDelta(t, 0.99, pack.Snippets[0].Confidence, 0.001)

	assert.Equal(t, models.MatchKeyword, pack.Snippets[1].Match)
	assert.InDelta(t, 0.6, pack.Snippets[1].Confidence, 0.001)
}

func TestGroundingService_DegradesToEmptyPack(t *testing.T) {
	repo := &fakeReferenceRepo{keywordErr: errors.New("index unavailable")}
	svc := newGroundingService(repo, &llm.MockEmbeddingClient{})

	pack, err := svc.Ground(context.Background(), "anything at all", "D&D 5e", models.GroundingFilters{})
	require.NoError(t, err)
	assert.True(t, pack.Empty())
	assert.Equal(t, "anything at all", pack.Query)
}

func TestGroundingService_EmbedderFailureKeepsKeywordRanking(t *testing.T) {
	repo := &fakeReferenceRepo{chunks: []*repositories.ReferenceChunk{
		refChunk("Monster Manual", "Goblins", "Goblins favor ambush tactics.", "", 0.3, []float32{1, 0, 0}),
	}}
	embedder := &llm.MockEmbeddingClient{
		EmbedFunc: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("embedder down")
		},
	}
	svc := newGroundingService(repo, embedder)

	pack, err := svc.Ground(context.Background(), "goblin tactics", "D&D 5e", models.GroundingFilters{})
	require.NoError(t, err)
	require.Len(t, pack.Snippets, 1)
	assert.Equal(t, models.MatchKeyword, pack.Snippets[0].Match)
	assert.InDelta(t, 0.8, pack.Snippets[0].Confidence, 0.001)
}

func TestGroundingService_FilterLimitCapsResults(t *testing.T) {
	repo := &fakeReferenceRepo{chunks: []*repositories.ReferenceChunk{
		refChunk("Monster Manual", "A", "First entry about goblins.", "", 0.4, nil),
		refChunk("Monster Manual", "B", "Second entry about goblins.", "", 0.2, nil),
		refChunk("Monster Manual", "C", "Third entry about goblins.", "", 0.1, nil),
	}}
	svc := newGroundingService(repo, &llm.MockEmbeddingClient{})

	pack, err := svc.Ground(context.Background(), "goblins", "D&D 5e", models.GroundingFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, pack.Snippets, 1)
	assert.Equal(t, "A", pack.Snippets[0].Section)
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Zones of Truth", "zone of truth"},
		{"  zone of truth ", "zone of truth"},
		{"Displacer Beasts", "displacer beast"},
		{"Fireball", "fireball"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTerm(tt.in), "input %q", tt.in)
	}
}

func TestHasExplicitReference(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{`what does "Zone of Truth" do`, true},
		{"see page 53 of the handbook", true},
		{"compare with p. 117", true},
		{"how does the Fireball spell scale", true},
		{"what would a goblin warlord do next", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasExplicitReference(tt.query), "query %q", tt.query)
	}
}

func TestFirstNKeepsRuneBoundaries(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"goblin", 10, "goblin"},
		{"goblin", 3, "gob"},
		{"cafétéria", 4, "caf"},
		{"魔法使いの塔", 7, "魔法"},
		{"魔法使いの塔", 2, ""},
	}
	for _, tt := range tests {
		got := firstN(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "firstN(%q, %d)", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got), "firstN(%q, %d) split a rune", tt.in, tt.n)
	}
}
