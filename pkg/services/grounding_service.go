package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jinzhu/inflection"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/config"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/llm"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// GroundingService retrieves relevant reference snippets for a query.
// Grounding is best-effort: on timeout or index failure it degrades to an
// empty pack rather than failing the caller, and generation proceeds with
// reduced trust.
type GroundingService interface {
	Ground(ctx context.Context, query, system string, filters models.GroundingFilters) (*models.GroundingPack, error)
}

type groundingService struct {
	referenceRepo repositories.ReferenceRepository
	embedder      llm.EmbeddingClient
	cache         *redis.Client
	cfg           config.GroundingConfig
	logger        *zap.Logger
}

// GroundingServiceDeps contains dependencies for GroundingService.
// Cache is optional; nil disables caching.
type GroundingServiceDeps struct {
	ReferenceRepo repositories.ReferenceRepository
	Embedder      llm.EmbeddingClient
	Cache         *redis.Client
	Config        config.GroundingConfig
	Logger        *zap.Logger
}

// NewGroundingService creates a new GroundingService.
func NewGroundingService(deps *GroundingServiceDeps) GroundingService {
	return &groundingService{
		referenceRepo: deps.ReferenceRepo,
		embedder:      deps.Embedder,
		cache:         deps.Cache,
		cfg:           deps.Config,
		logger:        deps.Logger,
	}
}

var _ GroundingService = (*groundingService)(nil)

// Explicit reference patterns: quoted terms, page numbers, and
// "the X spell/feat/rule/class/monster" constructions.
var (
	quotedTermPattern = regexp.MustCompile(`"([^"]{2,64})"`)
	pagePattern       = regexp.MustCompile(`(?i)\b(?:page|p\.|pg\.?)\s*(\d{1,4})\b`)
	ruleTermPattern   = regexp.MustCompile(`(?i)\bthe\s+([A-Z][\w' -]{1,48}?)\s+(spell|feat|rule|class|subclass|monster|item|trait|condition)\b`)
)

const (
	exactReferenceConfidence = 0.95
	keywordBaseConfidence    = 0.5
)

func (s *groundingService) Ground(ctx context.Context, query, system string, filters models.GroundingFilters) (*models.GroundingPack, error) {
	if cached := s.cacheGet(ctx, query, system, filters); cached != nil {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	pack, err := s.ground(ctx, query, system, filters)
	if err != nil {
		// Degrade, never fail: the caller generates with an empty pack
		// and the trust assigner downgrades accordingly.
		s.logger.Warn("grounding degraded to empty pack",
			zap.String("query", truncateQuery(query)), zap.Error(err))
		return &models.GroundingPack{Query: query}, nil
	}

	s.cachePut(ctx, query, system, filters, pack)
	return pack, nil
}

func (s *groundingService) ground(ctx context.Context, query, system string, filters models.GroundingFilters) (*models.GroundingPack, error) {
	topK := filters.Limit
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	var snippets []models.Snippet

	// Explicit references resolve first and outrank everything else.
	for _, term := range detectExplicitTerms(query) {
		chunks, err := s.referenceRepo.FindByTerm(ctx, NormalizeTerm(term), 3)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			snippets = append(snippets, chunkToSnippet(c, models.MatchExactReference, exactReferenceConfidence))
		}
	}

	// Hybrid retrieval always runs: keyword candidates, semantically
	// re-ranked when an embedding is available for the query.
	candidates, err := s.referenceRepo.KeywordSearch(ctx, query+" "+system, filters, topK*3)
	if err != nil {
		return nil, err
	}

	queryVec, embErr := s.embedder.CreateEmbedding(ctx, query)
	if embErr != nil {
		s.logger.Debug("query embedding unavailable, keyword ranking only", zap.Error(embErr))
	}

	for _, c := range candidates {
		match := models.MatchKeyword
		confidence := keywordBaseConfidence + math.Min(c.Rank, 0.4)
		if embErr == nil && len(c.Embedding) > 0 {
			if sim := cosineSimilarity(queryVec, c.Embedding); sim > 0 {
				match = models.MatchSemantic
				confidence = math.Max(confidence, sim)
			}
		}
		snippets = append(snippets, chunkToSnippet(c, match, confidence))
	}

	snippets = dedupeSnippets(snippets)
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Confidence > snippets[j].Confidence
	})
	if len(snippets) > topK {
		snippets = snippets[:topK]
	}

	pack := &models.GroundingPack{Query: query, Snippets: snippets}
	for _, sn := range snippets {
		pack.Citations = append(pack.Citations, sn.ToCitation())
	}
	return pack, nil
}

// detectExplicitTerms extracts quoted terms and rule-name constructions
// from the query. A page reference alone is not resolvable to a term but
// marks the query as explicit for the caller's confidence floor.
func detectExplicitTerms(query string) []string {
	var terms []string
	for _, m := range quotedTermPattern.FindAllStringSubmatch(query, -1) {
		terms = append(terms, m[1])
	}
	for _, m := range ruleTermPattern.FindAllStringSubmatch(query, -1) {
		terms = append(terms, m[1])
	}
	return terms
}

// HasExplicitReference reports whether the query names source material
// directly, by quoted term, rule construction, or page number.
func HasExplicitReference(query string) bool {
	return len(detectExplicitTerms(query)) > 0 || pagePattern.MatchString(query)
}

// NormalizeTerm lowercases and singularizes each word of a term so
// "Zones of Truth" and "zone of truth" index identically.
func NormalizeTerm(term string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(term)))
	for i, w := range words {
		words[i] = inflection.Singular(w)
	}
	return strings.Join(words, " ")
}

func chunkToSnippet(c *repositories.ReferenceChunk, match models.MatchKind, confidence float64) models.Snippet {
	return models.Snippet{
		SourceID:   c.SourceID.String(),
		SourceName: c.SourceTitle,
		SourceType: c.SourceType,
		Section:    c.Section,
		Content:    c.Content,
		Confidence: math.Min(confidence, 0.99),
		Match:      match,
	}
}

func dedupeSnippets(snippets []models.Snippet) []models.Snippet {
	seen := make(map[string]int)
	var out []models.Snippet
	for _, sn := range snippets {
		key := sn.SourceID + "|" + sn.Section + "|" + firstN(sn.Content, 64)
		if i, ok := seen[key]; ok {
			// Keep the higher-confidence occurrence.
			if sn.Confidence > out[i].Confidence {
				out[i] = sn
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, sn)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (s *groundingService) cacheKey(query, system string, filters models.GroundingFilters) string {
	raw, _ := json.Marshal(filters)
	sum := sha256.Sum256([]byte(query + "\x00" + system + "\x00" + string(raw)))
	return "grounding:" + hex.EncodeToString(sum[:16])
}

func (s *groundingService) cacheGet(ctx context.Context, query, system string, filters models.GroundingFilters) *models.GroundingPack {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(query, system, filters)).Bytes()
	if err != nil {
		return nil
	}
	var pack models.GroundingPack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return nil
	}
	return &pack
}

func (s *groundingService) cachePut(ctx context.Context, query, system string, filters models.GroundingFilters, pack *models.GroundingPack) {
	if s.cache == nil || pack.Empty() {
		return
	}
	raw, err := json.Marshal(pack)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(query, system, filters), raw, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Debug("failed to cache grounding pack", zap.Error(err))
	}
}

func truncateQuery(q string) string {
	return firstN(q, 120)
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so multibyte content is never split.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
