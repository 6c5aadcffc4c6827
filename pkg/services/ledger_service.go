package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// LedgerService is the append-mostly record of the GM's dialogue with the
// assistant: threads, messages, embedded proposals, and the decisions made
// on them. It never mutates draft or canonical state; accepted proposals
// are applied by the caller through DraftService.
type LedgerService interface {
	// CreateThread starts a conversation thread.
	CreateThread(ctx context.Context, draftID *uuid.UUID, campaignID *uuid.UUID, purpose models.ThreadPurpose) (*models.ConversationThread, error)

	// GetThread returns a thread by ID.
	GetThread(ctx context.Context, threadID uuid.UUID) (*models.ConversationThread, error)

	// AppendUserMessage records a GM message.
	AppendUserMessage(ctx context.Context, threadID uuid.UUID, content string) (*models.Message, error)

	// AppendAssistantMessage records an assistant message with any
	// embedded proposals, field suggestions, and citations.
	AppendAssistantMessage(ctx context.Context, threadID uuid.UUID, content string, proposals []models.Proposal, suggestions []models.Suggestion, citations []models.Citation) (*models.Message, error)

	// ResolveSuggestion marks one embedded suggestion accepted or
	// rejected and returns the updated message.
	ResolveSuggestion(ctx context.Context, threadID, messageID, suggestionID uuid.UUID, status models.SuggestionStatus) (*models.Message, error)

	// ThreadsForDraft returns every thread attached to a creation draft.
	ThreadsForDraft(ctx context.Context, draftID uuid.UUID) ([]*models.ConversationThread, error)

	// History returns thread messages in order. limit 0 means all.
	History(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Message, error)

	// RecordDecision logs the GM verdict on a proposal.
	RecordDecision(ctx context.Context, decision *models.Decision) error

	// SummarizeDecisions digests past decisions for prompt context.
	SummarizeDecisions(ctx context.Context, threadID uuid.UUID) (*models.DecisionSummary, error)

	// BranchFrom creates a new thread copying history up to and including
	// the given message, to explore an alternative direction.
	BranchFrom(ctx context.Context, threadID, messageID uuid.UUID) (*models.ConversationThread, error)
}

type ledgerService struct {
	conversationRepo repositories.ConversationRepository
	decisionRepo     repositories.DecisionRepository
	logger           *zap.Logger
}

// LedgerServiceDeps contains dependencies for LedgerService.
type LedgerServiceDeps struct {
	ConversationRepo repositories.ConversationRepository
	DecisionRepo     repositories.DecisionRepository
	Logger           *zap.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(deps *LedgerServiceDeps) LedgerService {
	return &ledgerService{
		conversationRepo: deps.ConversationRepo,
		decisionRepo:     deps.DecisionRepo,
		logger:           deps.Logger,
	}
}

var _ LedgerService = (*ledgerService)(nil)

const recentDecisionWindow = 5

func (s *ledgerService) CreateThread(ctx context.Context, draftID *uuid.UUID, campaignID *uuid.UUID, purpose models.ThreadPurpose) (*models.ConversationThread, error) {
	thread := &models.ConversationThread{
		DraftID:    draftID,
		CampaignID: campaignID,
		Purpose:    purpose,
	}
	if err := s.conversationRepo.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *ledgerService) GetThread(ctx context.Context, threadID uuid.UUID) (*models.ConversationThread, error) {
	return s.conversationRepo.GetThread(ctx, threadID)
}

func (s *ledgerService) AppendUserMessage(ctx context.Context, threadID uuid.UUID, content string) (*models.Message, error) {
	msg := &models.Message{
		ThreadID: threadID,
		Role:     models.RoleUser,
		Content:  content,
	}
	if err := s.conversationRepo.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ledgerService) AppendAssistantMessage(ctx context.Context, threadID uuid.UUID, content string, proposals []models.Proposal, suggestions []models.Suggestion, citations []models.Citation) (*models.Message, error) {
	// Proposals and suggestions embedded in a message need stable IDs
	// for later decisions.
	for i := range proposals {
		if proposals[i].ID == uuid.Nil {
			proposals[i].ID = uuid.New()
		}
	}
	for i := range suggestions {
		if suggestions[i].ID == uuid.Nil {
			suggestions[i].ID = uuid.New()
		}
		if suggestions[i].Status == "" {
			suggestions[i].Status = models.SuggestionPending
		}
	}

	msg := &models.Message{
		ThreadID:    threadID,
		Role:        models.RoleAssistant,
		Content:     content,
		Proposals:   proposals,
		Suggestions: suggestions,
		Citations:   citations,
	}
	if err := s.conversationRepo.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ledgerService) ResolveSuggestion(ctx context.Context, threadID, messageID, suggestionID uuid.UUID, status models.SuggestionStatus) (*models.Message, error) {
	switch status {
	case models.SuggestionAccepted, models.SuggestionRejected:
	default:
		return nil, fmt.Errorf("suggestion can only be resolved to accepted or rejected, got %q", status)
	}

	msg, err := s.conversationRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ThreadID != threadID {
		return nil, fmt.Errorf("%w: message %s is not on thread %s", apperrors.ErrNotFound, messageID, threadID)
	}

	if err := s.conversationRepo.UpdateSuggestionStatus(ctx, messageID, suggestionID, status); err != nil {
		return nil, err
	}

	s.logger.Info("resolved suggestion",
		zap.String("message_id", messageID.String()),
		zap.String("suggestion_id", suggestionID.String()),
		zap.String("status", string(status)))

	return s.conversationRepo.GetMessage(ctx, messageID)
}

func (s *ledgerService) ThreadsForDraft(ctx context.Context, draftID uuid.UUID) ([]*models.ConversationThread, error) {
	return s.conversationRepo.ListThreadsByDraft(ctx, draftID)
}

func (s *ledgerService) History(ctx context.Context, threadID uuid.UUID, limit int) ([]*models.Message, error) {
	return s.conversationRepo.ListMessages(ctx, threadID, limit)
}

func (s *ledgerService) RecordDecision(ctx context.Context, decision *models.Decision) error {
	switch decision.Kind {
	case models.DecisionAccepted, models.DecisionRejected, models.DecisionModified:
	default:
		return fmt.Errorf("unknown decision kind: %s", decision.Kind)
	}

	if err := s.decisionRepo.Record(ctx, decision); err != nil {
		return err
	}

	s.logger.Info("recorded proposal decision",
		zap.String("thread_id", decision.ThreadID.String()),
		zap.String("proposal_id", decision.ProposalID.String()),
		zap.String("kind", string(decision.Kind)))

	return nil
}

func (s *ledgerService) SummarizeDecisions(ctx context.Context, threadID uuid.UUID) (*models.DecisionSummary, error) {
	return s.decisionRepo.Summarize(ctx, threadID, recentDecisionWindow)
}

func (s *ledgerService) BranchFrom(ctx context.Context, threadID, messageID uuid.UUID) (*models.ConversationThread, error) {
	src, err := s.conversationRepo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	branchPoint, err := s.conversationRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if branchPoint.ThreadID != threadID {
		return nil, fmt.Errorf("%w: message %s is not on thread %s", apperrors.ErrNotFound, messageID, threadID)
	}

	branch := &models.ConversationThread{
		DraftID:          src.DraftID,
		CampaignID:       src.CampaignID,
		Purpose:          src.Purpose,
		BranchedFromID:   &threadID,
		BranchPointMsgID: &messageID,
	}
	if err := s.conversationRepo.CreateThread(ctx, branch); err != nil {
		return nil, err
	}

	if err := s.conversationRepo.CopyMessagesUpTo(ctx, threadID, branch.ID, messageID); err != nil {
		return nil, err
	}

	s.logger.Info("branched conversation thread",
		zap.String("source_thread_id", threadID.String()),
		zap.String("branch_thread_id", branch.ID.String()))

	return branch, nil
}
