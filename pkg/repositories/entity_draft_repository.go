package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// EntityDraftRepository provides data access for generated entity drafts
// awaiting acceptance.
type EntityDraftRepository interface {
	// Create inserts a new entity draft.
	Create(ctx context.Context, draft *models.GenerationDraft) error

	// GetByID returns an entity draft by ID.
	GetByID(ctx context.Context, draftID uuid.UUID) (*models.GenerationDraft, error)

	// ListPending returns non-terminal drafts for a campaign, optionally
	// filtered by status.
	ListPending(ctx context.Context, campaignID uuid.UUID, status models.CanonStatus) ([]*models.GenerationDraft, error)

	// UpdatePayload rewrites the draft payload and downgraded trust after a
	// GM modification.
	UpdatePayload(ctx context.Context, draftID uuid.UUID, payload json.RawMessage, trust models.TrustLevel, confidence float64) error

	// UpdateStatus moves the draft to a new canon status.
	UpdateStatus(ctx context.Context, draftID uuid.UUID, status models.CanonStatus) error

	// MarkApplied records the canonical entity a draft was applied to.
	MarkApplied(ctx context.Context, draftID, entityID uuid.UUID) error
}

type entityDraftRepository struct{}

// NewEntityDraftRepository creates a new EntityDraftRepository.
func NewEntityDraftRepository() EntityDraftRepository {
	return &entityDraftRepository{}
}

var _ EntityDraftRepository = (*entityDraftRepository)(nil)

func (r *entityDraftRepository) Create(ctx context.Context, draft *models.GenerationDraft) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	citations, err := jsonbSlice(draft.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	query := `
		INSERT INTO generation_drafts (campaign_id, entity_type, payload, status, trust, confidence, citations)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err = scope.Querier().QueryRow(ctx, query,
		draft.CampaignID,
		string(draft.EntityType),
		[]byte(draft.Payload),
		string(draft.Status),
		string(draft.Trust),
		draft.Confidence,
		citations,
	).Scan(&draft.ID, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create entity draft: %w", err)
	}

	return nil
}

func (r *entityDraftRepository) GetByID(ctx context.Context, draftID uuid.UUID) (*models.GenerationDraft, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, campaign_id, entity_type, payload, status, trust, confidence,
		       citations, applied_entity_id, created_at, updated_at
		FROM generation_drafts
		WHERE id = $1`

	draft, err := scanEntityDraft(scope.Querier().QueryRow(ctx, query, draftID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrEntityDraftNotFound
		}
		return nil, err
	}
	return draft, nil
}

func (r *entityDraftRepository) ListPending(ctx context.Context, campaignID uuid.UUID, status models.CanonStatus) ([]*models.GenerationDraft, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, campaign_id, entity_type, payload, status, trust, confidence,
		       citations, applied_entity_id, created_at, updated_at
		FROM generation_drafts
		WHERE campaign_id = $1
		  AND ($2 = '' OR status = $2)
		  AND status NOT IN ('deprecated')
		ORDER BY created_at DESC`

	rows, err := scope.Querier().Query(ctx, query, campaignID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list entity drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*models.GenerationDraft
	for rows.Next() {
		draft, err := scanEntityDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity drafts: %w", err)
	}

	return drafts, nil
}

func (r *entityDraftRepository) UpdatePayload(ctx context.Context, draftID uuid.UUID, payload json.RawMessage, trust models.TrustLevel, confidence float64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE generation_drafts
		SET payload = $2, trust = $3, confidence = $4, updated_at = now()
		WHERE id = $1`

	result, err := scope.Querier().Exec(ctx, query, draftID, []byte(payload), string(trust), confidence)
	if err != nil {
		return fmt.Errorf("failed to update entity draft payload: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrEntityDraftNotFound
	}

	return nil
}

func (r *entityDraftRepository) UpdateStatus(ctx context.Context, draftID uuid.UUID, status models.CanonStatus) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `UPDATE generation_drafts SET status = $2, updated_at = now() WHERE id = $1`
	result, err := scope.Querier().Exec(ctx, query, draftID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update entity draft status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrEntityDraftNotFound
	}

	return nil
}

func (r *entityDraftRepository) MarkApplied(ctx context.Context, draftID, entityID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `UPDATE generation_drafts SET applied_entity_id = $2, updated_at = now() WHERE id = $1`
	result, err := scope.Querier().Exec(ctx, query, draftID, entityID)
	if err != nil {
		return fmt.Errorf("failed to mark entity draft applied: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrEntityDraftNotFound
	}

	return nil
}

func scanEntityDraft(row pgx.Row) (*models.GenerationDraft, error) {
	var d models.GenerationDraft
	var entityType, status, trust string
	var payload, citations []byte

	err := row.Scan(
		&d.ID,
		&d.CampaignID,
		&entityType,
		&payload,
		&status,
		&trust,
		&d.Confidence,
		&citations,
		&d.AppliedEntityID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entity draft: %w", err)
	}

	d.EntityType = models.EntityType(entityType)
	d.Status = models.CanonStatus(status)
	d.Trust = models.TrustLevel(trust)
	d.Payload = json.RawMessage(payload)
	if err := unmarshalJSONB(citations, &d.Citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}

	return &d, nil
}
