package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// ReferenceSource is an ingested source document.
type ReferenceSource struct {
	ID         uuid.UUID         `json:"id"`
	Title      string            `json:"title"`
	SourceType models.SourceType `json:"source_type"`
}

// ReferenceChunk is one indexed piece of source material. Term is the
// normalized headword for exact-reference lookup; Embedding is the stored
// vector used for semantic re-ranking.
type ReferenceChunk struct {
	ID        uuid.UUID `json:"id"`
	SourceID  uuid.UUID `json:"source_id"`
	Section   string    `json:"section,omitempty"`
	Content   string    `json:"content"`
	Term      string    `json:"term,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`

	// Joined from the source row on read.
	SourceTitle string            `json:"source_title,omitempty"`
	SourceType  models.SourceType `json:"source_type,omitempty"`

	// Rank is the keyword relevance score from full-text search.
	Rank float64 `json:"rank,omitempty"`
}

// ReferenceRepository provides data access to the reference index.
type ReferenceRepository interface {
	// CreateSource inserts a source document record.
	CreateSource(ctx context.Context, source *ReferenceSource) error

	// CreateChunks inserts chunks for a source in one batch.
	CreateChunks(ctx context.Context, chunks []*ReferenceChunk) error

	// KeywordSearch runs full-text search over chunk content, returning
	// the top limit chunks by rank with embeddings included.
	KeywordSearch(ctx context.Context, query string, filters models.GroundingFilters, limit int) ([]*ReferenceChunk, error)

	// FindByTerm returns chunks whose normalized term matches exactly.
	// Used to resolve explicit references like "the Zone of Truth spell".
	FindByTerm(ctx context.Context, term string, limit int) ([]*ReferenceChunk, error)
}

type referenceRepository struct{}

// NewReferenceRepository creates a new ReferenceRepository.
func NewReferenceRepository() ReferenceRepository {
	return &referenceRepository{}
}

var _ ReferenceRepository = (*referenceRepository)(nil)

func (r *referenceRepository) CreateSource(ctx context.Context, source *ReferenceSource) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO reference_sources (title, source_type)
		VALUES ($1, $2)
		RETURNING id`

	err := scope.Querier().QueryRow(ctx, query, source.Title, string(source.SourceType)).Scan(&source.ID)
	if err != nil {
		return fmt.Errorf("failed to create reference source: %w", err)
	}

	return nil
}

func (r *referenceRepository) CreateChunks(ctx context.Context, chunks []*ReferenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO reference_chunks (source_id, section, content, term, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		embedding, err := jsonbEmbedding(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		batch.Queue(query, chunk.SourceID, chunk.Section, chunk.Content, chunk.Term, embedding)
	}

	results := scope.Querier().SendBatch(ctx, batch)
	defer results.Close()

	for i := range chunks {
		if err := results.QueryRow().Scan(&chunks[i].ID); err != nil {
			return fmt.Errorf("failed to create reference chunk %d: %w", i, err)
		}
	}

	return nil
}

func (r *referenceRepository) KeywordSearch(ctx context.Context, query string, filters models.GroundingFilters, limit int) ([]*ReferenceChunk, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if limit <= 0 {
		limit = 20
	}

	sourceTypes := make([]string, 0, len(filters.SourceTypes))
	for _, st := range filters.SourceTypes {
		sourceTypes = append(sourceTypes, string(st))
	}

	sql := `
		SELECT c.id, c.source_id, c.section, c.content, c.term, c.embedding,
		       s.title, s.source_type,
		       ts_rank(c.content_tsv, websearch_to_tsquery('english', $1)) AS rank
		FROM reference_chunks c
		JOIN reference_sources s ON s.id = c.source_id
		WHERE c.content_tsv @@ websearch_to_tsquery('english', $1)
		  AND (cardinality($2::text[]) = 0 OR s.source_type = ANY($2))
		ORDER BY rank DESC
		LIMIT $3`

	rows, err := scope.Querier().Query(ctx, sql, query, sourceTypes, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search reference chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, true)
}

func (r *referenceRepository) FindByTerm(ctx context.Context, term string, limit int) ([]*ReferenceChunk, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if limit <= 0 {
		limit = 5
	}

	sql := `
		SELECT c.id, c.source_id, c.section, c.content, c.term, c.embedding,
		       s.title, s.source_type
		FROM reference_chunks c
		JOIN reference_sources s ON s.id = c.source_id
		WHERE c.term = lower($1)
		LIMIT $2`

	rows, err := scope.Querier().Query(ctx, sql, term, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find reference chunks by term: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, false)
}

func scanChunks(rows pgx.Rows, withRank bool) ([]*ReferenceChunk, error) {
	var chunks []*ReferenceChunk
	for rows.Next() {
		var c ReferenceChunk
		var sourceType string
		var embedding []byte

		dest := []any{&c.ID, &c.SourceID, &c.Section, &c.Content, &c.Term, &embedding, &c.SourceTitle, &sourceType}
		if withRank {
			dest = append(dest, &c.Rank)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan reference chunk: %w", err)
		}

		c.SourceType = models.SourceType(sourceType)
		if len(embedding) > 0 && string(embedding) != "null" {
			if err := json.Unmarshal(embedding, &c.Embedding); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
			}
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chunks, nil
		}
		return nil, fmt.Errorf("error iterating reference chunks: %w", err)
	}

	return chunks, nil
}

func jsonbEmbedding(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
