package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

// maxRejectedTopics bounds the rejected-topic digest fed back into
// prompts; older topics age out first.
const maxRejectedTopics = 20

// DecisionRepository provides data access for GM proposal decisions.
type DecisionRepository interface {
	// Record inserts a decision.
	Record(ctx context.Context, decision *models.Decision) error

	// ListByThread returns decisions on a thread, newest first.
	ListByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Decision, error)

	// Summarize returns a compact digest of decisions on a thread.
	Summarize(ctx context.Context, threadID uuid.UUID, recentLimit int) (*models.DecisionSummary, error)
}

type decisionRepository struct{}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository() DecisionRepository {
	return &decisionRepository{}
}

var _ DecisionRepository = (*decisionRepository)(nil)

func (r *decisionRepository) Record(ctx context.Context, decision *models.Decision) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	patches, err := jsonbSlice(decision.AppliedPatches)
	if err != nil {
		return fmt.Errorf("failed to marshal applied patches: %w", err)
	}

	query := `
		INSERT INTO proposal_decisions (thread_id, proposal_id, kind, topic, reason, applied_patches)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err = scope.Querier().QueryRow(ctx, query,
		decision.ThreadID,
		decision.ProposalID,
		string(decision.Kind),
		decision.Topic,
		decision.Reason,
		patches,
	).Scan(&decision.ID, &decision.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	return nil
}

func (r *decisionRepository) ListByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Decision, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, thread_id, proposal_id, kind, topic, reason, applied_patches, created_at
		FROM proposal_decisions
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := scope.Querier().Query(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.Decision
	for rows.Next() {
		var d models.Decision
		var kind string
		var patches []byte
		if err := rows.Scan(
			&d.ID,
			&d.ThreadID,
			&d.ProposalID,
			&kind,
			&d.Topic,
			&d.Reason,
			&patches,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Kind = models.DecisionKind(kind)
		if err := unmarshalJSONB(patches, &d.AppliedPatches); err != nil {
			return nil, fmt.Errorf("failed to unmarshal applied patches: %w", err)
		}
		decisions = append(decisions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}

	return decisions, nil
}

func (r *decisionRepository) Summarize(ctx context.Context, threadID uuid.UUID, recentLimit int) (*models.DecisionSummary, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT kind, COUNT(*) as count
		FROM proposal_decisions
		WHERE thread_id = $1
		GROUP BY kind`

	rows, err := scope.Querier().Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize decisions: %w", err)
	}
	defer rows.Close()

	summary := &models.DecisionSummary{}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan decision count: %w", err)
		}
		switch models.DecisionKind(kind) {
		case models.DecisionAccepted:
			summary.Accepted = count
		case models.DecisionRejected:
			summary.Rejected = count
		case models.DecisionModified:
			summary.Modified = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision counts: %w", err)
	}

	topicQuery := `
		SELECT topic
		FROM proposal_decisions
		WHERE thread_id = $1 AND kind = 'rejected' AND topic <> ''
		GROUP BY topic
		ORDER BY MAX(created_at) DESC
		LIMIT $2`

	topicRows, err := scope.Querier().Query(ctx, topicQuery, threadID, maxRejectedTopics)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected topics: %w", err)
	}
	defer topicRows.Close()

	for topicRows.Next() {
		var topic string
		if err := topicRows.Scan(&topic); err != nil {
			return nil, fmt.Errorf("failed to scan rejected topic: %w", err)
		}
		summary.RejectedTopics = append(summary.RejectedTopics, topic)
	}
	if err := topicRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rejected topics: %w", err)
	}

	if recentLimit > 0 {
		recent, err := r.ListByThread(ctx, threadID, recentLimit)
		if err != nil {
			return nil, err
		}
		for _, d := range recent {
			summary.Recent = append(summary.Recent, *d)
		}
	}

	return summary, nil
}
