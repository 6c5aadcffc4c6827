package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// AuditRepository provides append-only access to the status transition and
// acceptance event logs. There are no update or delete operations; both
// logs are immutable by contract.
type AuditRepository interface {
	// RecordTransition appends a status transition row.
	RecordTransition(ctx context.Context, t *models.StatusTransition) error

	// RecordEvent appends an acceptance event row.
	RecordEvent(ctx context.Context, e *models.AcceptanceEvent) error

	// ListTransitions returns all transitions for a draft in order.
	ListTransitions(ctx context.Context, draftID uuid.UUID) ([]*models.StatusTransition, error)

	// ListEvents returns all acceptance events for a draft in order.
	ListEvents(ctx context.Context, draftID uuid.UUID) ([]*models.AcceptanceEvent, error)

	// RecordIntentMigration appends an intent migration row.
	RecordIntentMigration(ctx context.Context, m *models.IntentMigration) error

	// ListIntentMigrations returns a campaign's intent migrations in order.
	ListIntentMigrations(ctx context.Context, campaignID uuid.UUID) ([]*models.IntentMigration, error)
}

type auditRepository struct{}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepository{}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) RecordTransition(ctx context.Context, t *models.StatusTransition) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO status_transitions (draft_id, entity_type, from_status, to_status, triggered_by, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := scope.Querier().QueryRow(ctx, query,
		t.DraftID,
		string(t.EntityType),
		string(t.FromStatus),
		string(t.ToStatus),
		t.TriggeredBy,
		t.Reason,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record status transition: %w", err)
	}

	return nil
}

func (r *auditRepository) RecordEvent(ctx context.Context, e *models.AcceptanceEvent) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO acceptance_events (draft_id, entity_type, kind, prev_status, new_status, modifications, prior_version, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := scope.Querier().QueryRow(ctx, query,
		e.DraftID,
		string(e.EntityType),
		string(e.Kind),
		string(e.PrevStatus),
		string(e.NewStatus),
		jsonbRaw(e.Modifications),
		jsonbRaw(e.PriorVersion),
		e.Reason,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record acceptance event: %w", err)
	}

	return nil
}

func (r *auditRepository) ListTransitions(ctx context.Context, draftID uuid.UUID) ([]*models.StatusTransition, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, draft_id, entity_type, from_status, to_status, triggered_by, reason, created_at
		FROM status_transitions
		WHERE draft_id = $1
		ORDER BY created_at`

	rows, err := scope.Querier().Query(ctx, query, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*models.StatusTransition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status transitions: %w", err)
	}

	return transitions, nil
}

func (r *auditRepository) ListEvents(ctx context.Context, draftID uuid.UUID) ([]*models.AcceptanceEvent, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, draft_id, entity_type, kind, prev_status, new_status, modifications, prior_version, reason, created_at
		FROM acceptance_events
		WHERE draft_id = $1
		ORDER BY created_at`

	rows, err := scope.Querier().Query(ctx, query, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list acceptance events: %w", err)
	}
	defer rows.Close()

	var events []*models.AcceptanceEvent
	for rows.Next() {
		var e models.AcceptanceEvent
		var entityType, kind, prev, next string
		var modifications, prior []byte
		if err := rows.Scan(
			&e.ID,
			&e.DraftID,
			&entityType,
			&kind,
			&prev,
			&next,
			&modifications,
			&prior,
			&e.Reason,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan acceptance event: %w", err)
		}
		e.EntityType = models.EntityType(entityType)
		e.Kind = models.AcceptanceEventKind(kind)
		e.PrevStatus = models.CanonStatus(prev)
		e.NewStatus = models.CanonStatus(next)
		e.Modifications = modifications
		e.PriorVersion = prior
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating acceptance events: %w", err)
	}

	return events, nil
}

func (r *auditRepository) RecordIntentMigration(ctx context.Context, m *models.IntentMigration) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO intent_migrations (campaign_id, prior_intent, new_intent, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := scope.Querier().QueryRow(ctx, query,
		m.CampaignID,
		jsonbRaw(m.PriorIntent),
		jsonbRaw(m.NewIntent),
		m.Reason,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record intent migration: %w", err)
	}

	return nil
}

func (r *auditRepository) ListIntentMigrations(ctx context.Context, campaignID uuid.UUID) ([]*models.IntentMigration, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, campaign_id, prior_intent, new_intent, reason, created_at
		FROM intent_migrations
		WHERE campaign_id = $1
		ORDER BY created_at`

	rows, err := scope.Querier().Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list intent migrations: %w", err)
	}
	defer rows.Close()

	var migrations []*models.IntentMigration
	for rows.Next() {
		var m models.IntentMigration
		var prior, next []byte
		if err := rows.Scan(&m.ID, &m.CampaignID, &prior, &next, &m.Reason, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan intent migration: %w", err)
		}
		m.PriorIntent = prior
		m.NewIntent = next
		migrations = append(migrations, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intent migrations: %w", err)
	}

	return migrations, nil
}

func scanTransition(rows pgx.Rows) (*models.StatusTransition, error) {
	var t models.StatusTransition
	var entityType, from, to string
	err := rows.Scan(
		&t.ID,
		&t.DraftID,
		&entityType,
		&from,
		&to,
		&t.TriggeredBy,
		&t.Reason,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan status transition: %w", err)
	}
	t.EntityType = models.EntityType(entityType)
	t.FromStatus = models.CanonStatus(from)
	t.ToStatus = models.CanonStatus(to)
	return &t, nil
}

// jsonbRaw maps empty raw JSON to NULL for JSONB insertion.
func jsonbRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
