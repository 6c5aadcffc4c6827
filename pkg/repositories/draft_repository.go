package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// DraftRepository provides data access for creation drafts and their
// patch application log.
type DraftRepository interface {
	// Create inserts a new draft snapshot.
	Create(ctx context.Context, draft *models.DraftSnapshot) error

	// GetByID returns a draft by ID.
	GetByID(ctx context.Context, draftID uuid.UUID) (*models.DraftSnapshot, error)

	// Update persists the full draft state.
	Update(ctx context.Context, draft *models.DraftSnapshot) error

	// Touch updates only the autosave timestamp.
	Touch(ctx context.Context, draftID uuid.UUID, at time.Time) error

	// List returns all drafts, most recently updated first.
	List(ctx context.Context) ([]*models.DraftSnapshot, error)

	// Delete removes a draft and its patch log.
	Delete(ctx context.Context, draftID uuid.UUID) error

	// LogPatches appends an applied patch set to the draft's patch log.
	LogPatches(ctx context.Context, draftID uuid.UUID, set models.PatchSet) error
}

type draftRepository struct{}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository() DraftRepository {
	return &draftRepository{}
}

var _ DraftRepository = (*draftRepository)(nil)

func (r *draftRepository) Create(ctx context.Context, draft *models.DraftSnapshot) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	completed, err := json.Marshal(draft.CompletedSteps)
	if err != nil {
		return fmt.Errorf("failed to marshal completed steps: %w", err)
	}
	campaign, err := json.Marshal(draft.Campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign draft: %w", err)
	}

	query := `
		INSERT INTO creation_drafts (current_step, completed_steps, campaign_draft, thread_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err = scope.Querier().QueryRow(ctx, query,
		string(draft.CurrentStep),
		completed,
		campaign,
		draft.ThreadID,
	).Scan(&draft.ID, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}

	return nil
}

func (r *draftRepository) GetByID(ctx context.Context, draftID uuid.UUID) (*models.DraftSnapshot, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, current_step, completed_steps, campaign_draft, thread_id,
		       created_at, updated_at, autosaved_at
		FROM creation_drafts
		WHERE id = $1`

	row := scope.Querier().QueryRow(ctx, query, draftID)
	draft, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrDraftNotFound
		}
		return nil, err
	}
	return draft, nil
}

func (r *draftRepository) Update(ctx context.Context, draft *models.DraftSnapshot) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	completed, err := json.Marshal(draft.CompletedSteps)
	if err != nil {
		return fmt.Errorf("failed to marshal completed steps: %w", err)
	}
	campaign, err := json.Marshal(draft.Campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign draft: %w", err)
	}

	query := `
		UPDATE creation_drafts
		SET current_step = $2, completed_steps = $3, campaign_draft = $4,
		    thread_id = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err = scope.Querier().QueryRow(ctx, query,
		draft.ID,
		string(draft.CurrentStep),
		completed,
		campaign,
		draft.ThreadID,
	).Scan(&draft.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrDraftNotFound
		}
		return fmt.Errorf("failed to update draft: %w", err)
	}

	return nil
}

func (r *draftRepository) Touch(ctx context.Context, draftID uuid.UUID, at time.Time) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `UPDATE creation_drafts SET autosaved_at = $2 WHERE id = $1`
	result, err := scope.Querier().Exec(ctx, query, draftID, at)
	if err != nil {
		return fmt.Errorf("failed to touch draft: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrDraftNotFound
	}

	return nil
}

func (r *draftRepository) List(ctx context.Context) ([]*models.DraftSnapshot, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, current_step, completed_steps, campaign_draft, thread_id,
		       created_at, updated_at, autosaved_at
		FROM creation_drafts
		ORDER BY updated_at DESC`

	rows, err := scope.Querier().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*models.DraftSnapshot
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafts: %w", err)
	}

	return drafts, nil
}

func (r *draftRepository) Delete(ctx context.Context, draftID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Querier().Exec(ctx, `DELETE FROM creation_drafts WHERE id = $1`, draftID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrDraftNotFound
	}

	return nil
}

func (r *draftRepository) LogPatches(ctx context.Context, draftID uuid.UUID, set models.PatchSet) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	patches, err := json.Marshal(set.Patches)
	if err != nil {
		return fmt.Errorf("failed to marshal patches: %w", err)
	}

	query := `INSERT INTO draft_patch_log (draft_id, source, patches) VALUES ($1, $2, $3)`
	_, err = scope.Querier().Exec(ctx, query, draftID, string(set.Source), patches)
	if err != nil {
		return fmt.Errorf("failed to log patches: %w", err)
	}

	return nil
}

func scanDraft(row pgx.Row) (*models.DraftSnapshot, error) {
	var d models.DraftSnapshot
	var step string
	var completed, campaign []byte

	err := row.Scan(
		&d.ID,
		&step,
		&completed,
		&campaign,
		&d.ThreadID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.AutosavedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan draft: %w", err)
	}

	d.CurrentStep = models.WizardStep(step)
	if err := json.Unmarshal(completed, &d.CompletedSteps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed steps: %w", err)
	}
	if err := json.Unmarshal(campaign, &d.Campaign); err != nil {
		return nil, fmt.Errorf("failed to unmarshal campaign draft: %w", err)
	}

	return &d, nil
}
