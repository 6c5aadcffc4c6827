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

// ConversationRepository provides data access for conversation threads
// and their messages.
type ConversationRepository interface {
	// CreateThread inserts a new thread.
	CreateThread(ctx context.Context, thread *models.ConversationThread) error

	// GetThread returns a thread by ID.
	GetThread(ctx context.Context, threadID uuid.UUID) (*models.ConversationThread, error)

	// ListThreadsByDraft returns all threads attached to a draft.
	ListThreadsByDraft(ctx context.Context, draftID uuid.UUID) ([]*models.ConversationThread, error)

	// AddMessage appends a message to a thread.
	AddMessage(ctx context.Context, msg *models.Message) error

	// GetMessage returns a message by ID.
	GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error)

	// ListMessages returns thread messages in chronological order. A zero
	// limit returns all of them; otherwise the most recent limit messages.
	ListMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Message, error)

	// CopyMessagesUpTo copies messages of srcThreadID up to and including
	// branchPoint into dstThreadID, preserving order. Used for branching.
	CopyMessagesUpTo(ctx context.Context, srcThreadID, dstThreadID, branchPoint uuid.UUID) error

	// UpdateSuggestionStatus rewrites the status of one suggestion embedded
	// in a message.
	UpdateSuggestionStatus(ctx context.Context, messageID, suggestionID uuid.UUID, status models.SuggestionStatus) error
}

type conversationRepository struct{}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository() ConversationRepository {
	return &conversationRepository{}
}

var _ ConversationRepository = (*conversationRepository)(nil)

func (r *conversationRepository) CreateThread(ctx context.Context, thread *models.ConversationThread) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO conversation_threads (draft_id, campaign_id, purpose, branched_from_id, branch_point_message_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		thread.DraftID,
		thread.CampaignID,
		string(thread.Purpose),
		thread.BranchedFromID,
		thread.BranchPointMsgID,
	).Scan(&thread.ID, &thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}

	return nil
}

func (r *conversationRepository) GetThread(ctx context.Context, threadID uuid.UUID) (*models.ConversationThread, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, draft_id, campaign_id, purpose, branched_from_id, branch_point_message_id,
		       created_at, updated_at
		FROM conversation_threads
		WHERE id = $1`

	var t models.ConversationThread
	var purpose string
	err := scope.Querier().QueryRow(ctx, query, threadID).Scan(
		&t.ID,
		&t.DraftID,
		&t.CampaignID,
		&purpose,
		&t.BranchedFromID,
		&t.BranchPointMsgID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	t.Purpose = models.ThreadPurpose(purpose)
	return &t, nil
}

func (r *conversationRepository) ListThreadsByDraft(ctx context.Context, draftID uuid.UUID) ([]*models.ConversationThread, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, draft_id, campaign_id, purpose, branched_from_id, branch_point_message_id,
		       created_at, updated_at
		FROM conversation_threads
		WHERE draft_id = $1
		ORDER BY created_at`

	rows, err := scope.Querier().Query(ctx, query, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.ConversationThread
	for rows.Next() {
		var t models.ConversationThread
		var purpose string
		if err := rows.Scan(
			&t.ID,
			&t.DraftID,
			&t.CampaignID,
			&purpose,
			&t.BranchedFromID,
			&t.BranchPointMsgID,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		t.Purpose = models.ThreadPurpose(purpose)
		threads = append(threads, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	return threads, nil
}

func (r *conversationRepository) AddMessage(ctx context.Context, msg *models.Message) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	suggestions, err := jsonbSlice(msg.Suggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}
	citations, err := jsonbSlice(msg.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	proposals, err := jsonbSlice(msg.Proposals)
	if err != nil {
		return fmt.Errorf("failed to marshal proposals: %w", err)
	}

	query := `
		INSERT INTO conversation_messages (thread_id, role, content, suggestions, citations, proposals)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err = scope.Querier().QueryRow(ctx, query,
		msg.ThreadID,
		string(msg.Role),
		msg.Content,
		suggestions,
		citations,
		proposals,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}

	return nil
}

func (r *conversationRepository) GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, thread_id, role, content, suggestions, citations, proposals, created_at
		FROM conversation_messages
		WHERE id = $1`

	msg, err := scanMessage(scope.Querier().QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (r *conversationRepository) ListMessages(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Message, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, thread_id, role, content, suggestions, citations, proposals, created_at
		FROM conversation_messages
		WHERE thread_id = $1
		ORDER BY created_at`
	args := []any{threadID}

	if limit > 0 {
		// Most recent limit messages, still in chronological order.
		query = `
			SELECT id, thread_id, role, content, suggestions, citations, proposals, created_at
			FROM (
				SELECT id, thread_id, role, content, suggestions, citations, proposals, created_at
				FROM conversation_messages
				WHERE thread_id = $1
				ORDER BY created_at DESC
				LIMIT $2
			) recent
			ORDER BY created_at`
		args = append(args, limit)
	}

	rows, err := scope.Querier().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func (r *conversationRepository) CopyMessagesUpTo(ctx context.Context, srcThreadID, dstThreadID, branchPoint uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO conversation_messages (thread_id, role, content, suggestions, citations, proposals, created_at)
		SELECT $2, role, content, suggestions, citations, proposals, created_at
		FROM conversation_messages
		WHERE thread_id = $1
		  AND created_at <= (SELECT created_at FROM conversation_messages WHERE id = $3)
		ORDER BY created_at`

	_, err := scope.Querier().Exec(ctx, query, srcThreadID, dstThreadID, branchPoint)
	if err != nil {
		return fmt.Errorf("failed to copy messages: %w", err)
	}

	return nil
}

func (r *conversationRepository) UpdateSuggestionStatus(ctx context.Context, messageID, suggestionID uuid.UUID, status models.SuggestionStatus) error {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	found := false
	for i := range msg.Suggestions {
		if msg.Suggestions[i].ID == suggestionID {
			msg.Suggestions[i].Status = status
			found = true
			break
		}
	}
	if !found {
		return apperrors.ErrNotFound
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	suggestions, err := jsonbSlice(msg.Suggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestions: %w", err)
	}

	query := `UPDATE conversation_messages SET suggestions = $2 WHERE id = $1`
	_, err = scope.Querier().Exec(ctx, query, messageID, suggestions)
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}

	return nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var role string
	var suggestions, citations, proposals []byte

	err := row.Scan(
		&m.ID,
		&m.ThreadID,
		&role,
		&m.Content,
		&suggestions,
		&citations,
		&proposals,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	m.Role = models.MessageRole(role)
	if err := unmarshalJSONB(suggestions, &m.Suggestions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suggestions: %w", err)
	}
	if err := unmarshalJSONB(citations, &m.Citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}
	if err := unmarshalJSONB(proposals, &m.Proposals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposals: %w", err)
	}

	return &m, nil
}

// jsonbSlice marshals a slice for JSONB insertion, mapping empty to NULL.
func jsonbSlice[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSONB(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
