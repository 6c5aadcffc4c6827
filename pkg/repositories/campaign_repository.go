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

// CampaignRepository provides data access for campaigns and their
// canonical entities.
type CampaignRepository interface {
	// Create inserts a new campaign.
	Create(ctx context.Context, campaign *models.Campaign) error

	// GetByID returns a campaign by ID.
	GetByID(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)

	// List returns all campaigns, most recently updated first.
	List(ctx context.Context) ([]*models.Campaign, error)

	// UpdateIntent rewrites the campaign intent. Callers enforce the
	// intent lock before calling.
	UpdateIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent) error

	// LockIntent marks the intent immutable.
	LockIntent(ctx context.Context, campaignID uuid.UUID) error

	// CreateEntity inserts a canonical entity.
	CreateEntity(ctx context.Context, entity *models.CanonicalEntity) error

	// GetEntity returns a canonical entity by ID.
	GetEntity(ctx context.Context, entityID uuid.UUID) (*models.CanonicalEntity, error)

	// ListEntities returns non-deprecated entities for a campaign,
	// optionally filtered by type.
	ListEntities(ctx context.Context, campaignID uuid.UUID, entityType models.EntityType) ([]*models.CanonicalEntity, error)

	// UpdateEntity rewrites an entity payload and bumps its version.
	UpdateEntity(ctx context.Context, entityID uuid.UUID, payload json.RawMessage) error

	// DeprecateEntity marks an entity deprecated. Deprecated entities stay
	// queryable for audit but are excluded from grounding.
	DeprecateEntity(ctx context.Context, entityID uuid.UUID) error
}

type campaignRepository struct{}

// NewCampaignRepository creates a new CampaignRepository.
func NewCampaignRepository() CampaignRepository {
	return &campaignRepository{}
}

var _ CampaignRepository = (*campaignRepository)(nil)

func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	intent, err := jsonbValue(campaign.Intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	query := `
		INSERT INTO campaigns (name, system, description, intent)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err = scope.Querier().QueryRow(ctx, query,
		campaign.Name,
		campaign.System,
		campaign.Description,
		intent,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, name, system, description, intent, intent_locked, created_at, updated_at
		FROM campaigns
		WHERE id = $1`

	campaign, err := scanCampaign(scope.Querier().QueryRow(ctx, query, campaignID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCampaignNotFound
		}
		return nil, err
	}
	return campaign, nil
}

func (r *campaignRepository) List(ctx context.Context) ([]*models.Campaign, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, name, system, description, intent, intent_locked, created_at, updated_at
		FROM campaigns
		ORDER BY updated_at DESC`

	rows, err := scope.Querier().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

func (r *campaignRepository) UpdateIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	value, err := jsonbValue(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	query := `UPDATE campaigns SET intent = $2, updated_at = now() WHERE id = $1`
	result, err := scope.Querier().Exec(ctx, query, campaignID, value)
	if err != nil {
		return fmt.Errorf("failed to update campaign intent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrCampaignNotFound
	}

	return nil
}

func (r *campaignRepository) LockIntent(ctx context.Context, campaignID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `UPDATE campaigns SET intent_locked = TRUE, updated_at = now() WHERE id = $1`
	result, err := scope.Querier().Exec(ctx, query, campaignID)
	if err != nil {
		return fmt.Errorf("failed to lock campaign intent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrCampaignNotFound
	}

	return nil
}

func (r *campaignRepository) CreateEntity(ctx context.Context, entity *models.CanonicalEntity) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO campaign_entities (campaign_id, entity_type, name, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, version, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		entity.CampaignID,
		string(entity.EntityType),
		entity.Name,
		[]byte(entity.Payload),
	).Scan(&entity.ID, &entity.Version, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign entity: %w", err)
	}

	return nil
}

func (r *campaignRepository) GetEntity(ctx context.Context, entityID uuid.UUID) (*models.CanonicalEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, campaign_id, entity_type, name, payload, version, deprecated, created_at, updated_at
		FROM campaign_entities
		WHERE id = $1`

	entity, err := scanEntity(scope.Querier().QueryRow(ctx, query, entityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return entity, nil
}

func (r *campaignRepository) ListEntities(ctx context.Context, campaignID uuid.UUID, entityType models.EntityType) ([]*models.CanonicalEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, campaign_id, entity_type, name, payload, version, deprecated, created_at, updated_at
		FROM campaign_entities
		WHERE campaign_id = $1
		  AND ($2 = '' OR entity_type = $2)
		  AND NOT deprecated
		ORDER BY created_at`

	rows, err := scope.Querier().Query(ctx, query, campaignID, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign entities: %w", err)
	}
	defer rows.Close()

	var entities []*models.CanonicalEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign entities: %w", err)
	}

	return entities, nil
}

func (r *campaignRepository) UpdateEntity(ctx context.Context, entityID uuid.UUID, payload json.RawMessage) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE campaign_entities
		SET payload = $2, version = version + 1, updated_at = now()
		WHERE id = $1`

	result, err := scope.Querier().Exec(ctx, query, entityID, []byte(payload))
	if err != nil {
		return fmt.Errorf("failed to update campaign entity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *campaignRepository) DeprecateEntity(ctx context.Context, entityID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `UPDATE campaign_entities SET deprecated = TRUE, updated_at = now() WHERE id = $1`
	result, err := scope.Querier().Exec(ctx, query, entityID)
	if err != nil {
		return fmt.Errorf("failed to deprecate campaign entity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var intent []byte

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.System,
		&c.Description,
		&intent,
		&c.IntentLocked,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan campaign: %w", err)
	}

	if len(intent) > 0 && string(intent) != "null" {
		c.Intent = &models.CampaignIntent{}
		if err := json.Unmarshal(intent, c.Intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
		}
	}

	return &c, nil
}

func scanEntity(row pgx.Row) (*models.CanonicalEntity, error) {
	var e models.CanonicalEntity
	var entityType string
	var payload []byte

	err := row.Scan(
		&e.ID,
		&e.CampaignID,
		&entityType,
		&e.Name,
		&payload,
		&e.Version,
		&e.Deprecated,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan campaign entity: %w", err)
	}

	e.EntityType = models.EntityType(entityType)
	e.Payload = payload
	return &e, nil
}

// jsonbValue marshals v for JSONB insertion, mapping nil pointers to NULL.
func jsonbValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if intent, ok := v.(*models.CampaignIntent); ok && intent == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
