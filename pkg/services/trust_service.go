package services

import (
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// ClaimAssessment is the trust verdict for one claim in generated content.
type ClaimAssessment struct {
	Claim      string            `json:"claim"`
	Trust      models.TrustLevel `json:"trust"`
	Support    float64           `json:"support"`
	CitationID string            `json:"citation_id,omitempty"`
}

// TrustAssignment is the overall trust verdict for a piece of content.
// Overall is the minimum across claims: one unsupported claim caps the
// whole piece.
type TrustAssignment struct {
	Overall    models.TrustLevel `json:"overall"`
	Confidence float64           `json:"confidence"`
	Claims     []ClaimAssessment `json:"claims,omitempty"`
}

// TrustService classifies generated content by how well its claims are
// supported by citations. Trust is assigned once at generation time and
// never silently upgraded.
type TrustService interface {
	AssignTrust(content string, citations []models.Citation) TrustAssignment
}

type trustService struct {
	logger *zap.Logger
}

// TrustServiceDeps contains dependencies for TrustService.
type TrustServiceDeps struct {
	Logger *zap.Logger
}

// NewTrustService creates a new TrustService.
func NewTrustService(deps *TrustServiceDeps) TrustService {
	return &trustService{logger: deps.Logger}
}

var _ TrustService = (*trustService)(nil)

const (
	canonicalThreshold = 0.95
	derivedThreshold   = 0.75

	// Claims shorter than this carry no checkable assertion.
	minClaimLength = 20
)

var sentenceSplitPattern = regexp.MustCompile(`[.!?]+\s+`)

// citationMarkerPattern matches inline attempts to cite source material,
// like "(PHB p. 53)" or "per the Player's Handbook". A claim carrying one
// of these but matching no actual citation is a failed citation and drops
// to unverified.
var citationMarkerPattern = regexp.MustCompile(`(?i)\(([^)]*(?:p\.|page|pg\.)\s*\d+[^)]*)\)|\bper the\b|\baccording to\b`)

func (s *trustService) AssignTrust(content string, citations []models.Citation) TrustAssignment {
	claims := splitClaims(content)
	if len(claims) == 0 {
		return TrustAssignment{Overall: models.TrustCreative, Confidence: 0}
	}

	assignment := TrustAssignment{
		Overall:    models.TrustCanonical,
		Confidence: 1.0,
	}

	for _, claim := range claims {
		assessment := assessClaim(claim, citations)
		assignment.Claims = append(assignment.Claims, assessment)
		assignment.Overall = models.MinTrust(assignment.Overall, assessment.Trust)
		if assessment.Support < assignment.Confidence {
			assignment.Confidence = assessment.Support
		}
	}

	return assignment
}

// splitClaims breaks content into sentence-level claims, dropping
// fragments too short to assert anything.
func splitClaims(content string) []string {
	var claims []string
	for _, raw := range sentenceSplitPattern.Split(content, -1) {
		claim := strings.TrimSpace(raw)
		if len(claim) >= minClaimLength {
			claims = append(claims, claim)
		}
	}
	return claims
}

func assessClaim(claim string, citations []models.Citation) ClaimAssessment {
	best := 0.0
	bestCitation := ""
	for _, c := range citations {
		overlap := termOverlap(claim, c.Excerpt+" "+c.SourceName+" "+c.Section)
		support := overlap * c.Confidence
		if support > best {
			best = support
			bestCitation = c.SourceName
		}
	}

	assessment := ClaimAssessment{
		Claim:      claim,
		Support:    best,
		CitationID: bestCitation,
	}

	switch {
	case best >= canonicalThreshold:
		assessment.Trust = models.TrustCanonical
	case best >= derivedThreshold:
		assessment.Trust = models.TrustDerived
	case citationMarkerPattern.MatchString(claim):
		// The claim cites something the citations cannot back up.
		assessment.Trust = models.TrustUnverified
	default:
		assessment.Trust = models.TrustCreative
	}

	return assessment
}

// termOverlap is the fraction of the claim's normalized content words
// present in the reference text.
func termOverlap(claim, reference string) float64 {
	claimTerms := contentTerms(claim)
	if len(claimTerms) == 0 {
		return 0
	}
	refTerms := make(map[string]struct{})
	for _, t := range contentTerms(reference) {
		refTerms[t] = struct{}{}
	}

	matched := 0
	for _, t := range claimTerms {
		if _, ok := refTerms[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(claimTerms))
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "is": {}, "are": {}, "was": {}, "were": {}, "it": {},
	"its": {}, "with": {}, "for": {}, "as": {}, "by": {}, "at": {}, "that": {},
	"this": {}, "they": {}, "their": {}, "has": {}, "have": {}, "can": {},
}

var termPattern = regexp.MustCompile(`[a-z']+`)

// contentTerms lowercases, singularizes, and strips stopwords so plural
// and singular forms of a source term match.
func contentTerms(text string) []string {
	var terms []string
	for _, w := range termPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[w]; stop || len(w) < 3 {
			continue
		}
		terms = append(terms, inflection.Singular(w))
	}
	return terms
}
