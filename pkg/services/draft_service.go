package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// DraftService manages creation drafts: the single mutable truth while a
// campaign is being created. All mutations go through patch sets; writes
// to the same draft are serialized by a per-draft mutex.
type DraftService interface {
	// CreateDraft starts a new creation session at the basics step.
	CreateDraft(ctx context.Context) (*models.DraftSnapshot, error)

	// LoadDraft returns a draft snapshot by ID.
	LoadDraft(ctx context.Context, draftID uuid.UUID) (*models.DraftSnapshot, error)

	// ApplyPatches applies a patch set atomically. Either every patch in
	// the set applies or none do.
	ApplyPatches(ctx context.Context, draftID uuid.UUID, set models.PatchSet) (*models.DraftSnapshot, error)

	// SetStep moves the wizard to a reachable step, recording completion
	// of the step being left on forward movement.
	SetStep(ctx context.Context, draftID uuid.UUID, step models.WizardStep) (*models.DraftSnapshot, error)

	// AutosaveHint records client-driven autosave without changing state.
	AutosaveHint(ctx context.Context, draftID uuid.UUID) error

	// ListIncomplete returns all unfinished drafts.
	ListIncomplete(ctx context.Context) ([]*models.DraftSnapshot, error)

	// DeleteDraft abandons a creation session.
	DeleteDraft(ctx context.Context, draftID uuid.UUID) error

	// AttachThread associates a conversation thread with the draft.
	AttachThread(ctx context.Context, draftID, threadID uuid.UUID) error

	// CompleteDraft validates the draft, creates the campaign, and routes
	// initial content into the acceptance pipeline. The creation draft is
	// deleted on success.
	CompleteDraft(ctx context.Context, draftID uuid.UUID) (*models.Campaign, error)
}

type draftService struct {
	draftRepo    repositories.DraftRepository
	campaignRepo repositories.CampaignRepository
	acceptance   AcceptanceService
	logger       *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*draftLock
}

// DraftServiceDeps contains dependencies for DraftService.
type DraftServiceDeps struct {
	DraftRepo    repositories.DraftRepository
	CampaignRepo repositories.CampaignRepository
	Acceptance   AcceptanceService
	Logger       *zap.Logger
}

// NewDraftService creates a new DraftService.
func NewDraftService(deps *DraftServiceDeps) DraftService {
	return &draftService{
		draftRepo:    deps.DraftRepo,
		campaignRepo: deps.CampaignRepo,
		acceptance:   deps.Acceptance,
		logger:       deps.Logger,
		locks:        make(map[uuid.UUID]*draftLock),
	}
}

var _ DraftService = (*draftService)(nil)

// draftLock is a per-draft mutex with a reference count so entries can
// be dropped once the last holder releases.
type draftLock struct {
	mu   sync.Mutex
	refs int
}

// lockFor serializes writes to one draft and returns the release. Locks
// are per draft, never global, so concurrent sessions do not contend.
// The entry is removed only when no caller still references it; a waiter
// blocked on the mutex keeps the entry alive, so two writers can never
// end up holding different mutexes for the same draft.
func (s *draftService) lockFor(draftID uuid.UUID) func() {
	s.mu.Lock()
	lock, ok := s.locks[draftID]
	if !ok {
		lock = &draftLock{}
		s.locks[draftID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, draftID)
		}
		s.mu.Unlock()
	}
}

func (s *draftService) CreateDraft(ctx context.Context) (*models.DraftSnapshot, error) {
	draft := &models.DraftSnapshot{
		CurrentStep:    models.StepBasics,
		CompletedSteps: []models.WizardStep{},
		Campaign:       models.PartialCampaign{},
	}
	if err := s.draftRepo.Create(ctx, draft); err != nil {
		return nil, err
	}

	s.logger.Info("created creation draft", zap.String("draft_id", draft.ID.String()))
	return draft, nil
}

func (s *draftService) LoadDraft(ctx context.Context, draftID uuid.UUID) (*models.DraftSnapshot, error) {
	return s.draftRepo.GetByID(ctx, draftID)
}

func (s *draftService) ApplyPatches(ctx context.Context, draftID uuid.UUID, set models.PatchSet) (*models.DraftSnapshot, error) {
	if len(set.Patches) == 0 {
		return nil, &apperrors.PatchValidationError{Path: "", Reason: "empty patch set"}
	}

	release := s.lockFor(draftID)
	defer release()

	draft, err := s.draftRepo.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	if err := models.ApplyPatchSet(&draft.Campaign, set); err != nil {
		return nil, err
	}

	if err := s.draftRepo.Update(ctx, draft); err != nil {
		return nil, err
	}
	if err := s.draftRepo.LogPatches(ctx, draftID, set); err != nil {
		return nil, err
	}

	s.logger.Debug("applied patch set",
		zap.String("draft_id", draftID.String()),
		zap.String("source", string(set.Source)),
		zap.Int("patches", len(set.Patches)))

	return draft, nil
}

func (s *draftService) SetStep(ctx context.Context, draftID uuid.UUID, step models.WizardStep) (*models.DraftSnapshot, error) {
	if !step.Valid() {
		return nil, fmt.Errorf("%w: unknown step %q", apperrors.ErrInvalidStepTransition, step)
	}

	release := s.lockFor(draftID)
	defer release()

	draft, err := s.draftRepo.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	if !draft.CurrentStep.CanTransitionTo(step) {
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidStepTransition, draft.CurrentStep, step)
	}

	// Forward movement completes the step being left.
	if indexOf(draft.CurrentStep) < indexOf(step) && !draft.StepCompleted(draft.CurrentStep) {
		draft.CompletedSteps = append(draft.CompletedSteps, draft.CurrentStep)
	}
	draft.CurrentStep = step

	if err := s.draftRepo.Update(ctx, draft); err != nil {
		return nil, err
	}

	return draft, nil
}

func indexOf(step models.WizardStep) int {
	for i, s := range models.WizardSteps() {
		if s == step {
			return i
		}
	}
	return -1
}

func (s *draftService) AutosaveHint(ctx context.Context, draftID uuid.UUID) error {
	return s.draftRepo.Touch(ctx, draftID, time.Now())
}

func (s *draftService) ListIncomplete(ctx context.Context) ([]*models.DraftSnapshot, error) {
	return s.draftRepo.List(ctx)
}

func (s *draftService) DeleteDraft(ctx context.Context, draftID uuid.UUID) error {
	release := s.lockFor(draftID)
	defer release()

	if err := s.draftRepo.Delete(ctx, draftID); err != nil {
		return err
	}

	s.logger.Info("deleted creation draft", zap.String("draft_id", draftID.String()))
	return nil
}

func (s *draftService) AttachThread(ctx context.Context, draftID, threadID uuid.UUID) error {
	release := s.lockFor(draftID)
	defer release()

	draft, err := s.draftRepo.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	draft.ThreadID = &threadID
	return s.draftRepo.Update(ctx, draft)
}

func (s *draftService) CompleteDraft(ctx context.Context, draftID uuid.UUID) (*models.Campaign, error) {
	release := s.lockFor(draftID)
	defer release()

	draft, err := s.draftRepo.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	if missing := draft.Campaign.ValidateForCompletion(); len(missing) > 0 {
		return nil, &apperrors.PatchValidationError{
			Path:   missing[0],
			Reason: "required for completion",
		}
	}

	campaign := &models.Campaign{
		Name:        draft.Campaign.Name,
		System:      draft.Campaign.System,
		Description: draft.Campaign.Description,
		Intent:      draft.Campaign.Intent,
	}
	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, err
	}

	// Initial content goes through the acceptance pipeline like any other
	// entity. GM-authored sketches carry a homebrew citation at full
	// confidence and land directly as approved drafts.
	if draft.Campaign.InitialContent != nil {
		if err := s.acceptance.IngestWizardContent(ctx, campaign.ID, draft.Campaign.InitialContent); err != nil {
			return nil, fmt.Errorf("failed to ingest initial content: %w", err)
		}
	}

	if err := s.draftRepo.Delete(ctx, draftID); err != nil {
		s.logger.Warn("failed to delete completed draft",
			zap.String("draft_id", draftID.String()), zap.Error(err))
	}

	s.logger.Info("completed creation draft",
		zap.String("draft_id", draftID.String()),
		zap.String("campaign_id", campaign.ID.String()))

	return campaign, nil
}
