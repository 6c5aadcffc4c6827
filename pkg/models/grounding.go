package models

// MatchKind records how a grounding snippet was found, from strongest to
// weakest: an explicit reference in the query, a semantic match, or a
// keyword fallback.
type MatchKind string

const (
	MatchExactReference MatchKind = "exact_reference"
	MatchSemantic       MatchKind = "semantic"
	MatchKeyword        MatchKind = "keyword"
)

// Snippet is one ranked piece of indexed reference material.
type Snippet struct {
	SourceID   string     `json:"source_id"`
	SourceName string     `json:"source_name"`
	SourceType SourceType `json:"source_type"`
	Page       *int       `json:"page,omitempty"`
	Section    string     `json:"section,omitempty"`
	Content    string     `json:"content"`
	Confidence float64    `json:"confidence"`
	Match      MatchKind  `json:"match"`
}

// GroundingFilters narrows a grounding query.
type GroundingFilters struct {
	SourceTypes []SourceType `json:"source_types,omitempty"`
	SourceIDs   []string     `json:"source_ids,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// GroundingPack is the result of grounding a query: ranked snippets plus
// the citations derived from them. An empty pack is a valid degraded
// result when the index is unavailable.
type GroundingPack struct {
	Query     string     `json:"query"`
	Snippets  []Snippet  `json:"snippets,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// Empty reports whether the pack carries no grounding at all.
func (p *GroundingPack) Empty() bool {
	return len(p.Snippets) == 0
}

// ToCitation converts a snippet into a citation carrying its confidence.
func (s Snippet) ToCitation() Citation {
	return Citation{
		SourceType: s.SourceType,
		SourceID:   s.SourceID,
		SourceName: s.SourceName,
		Page:       s.Page,
		Section:    s.Section,
		Excerpt:    s.Content,
		Confidence: s.Confidence,
	}
}
