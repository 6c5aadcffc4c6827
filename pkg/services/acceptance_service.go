package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// AcceptanceHistory is the full audit trail for one entity draft.
type AcceptanceHistory struct {
	Events      []*models.AcceptanceEvent  `json:"events"`
	Transitions []*models.StatusTransition `json:"transitions"`
}

// ApproveAllResult reports the outcome of a bulk approval.
type ApproveAllResult struct {
	Approved int      `json:"approved"`
	Skipped  int      `json:"skipped"`
	Reasons  []string `json:"reasons,omitempty"`
}

// AcceptanceService is the gate between generated content and canonical
// campaign state. It owns the canon status machine, writes every
// transition to the immutable audit log, and is the sole holder of the
// CampaignWriter.
type AcceptanceService interface {
	// CreateDraft registers a generated artifact as an entity draft.
	CreateDraft(ctx context.Context, campaignID uuid.UUID, artifact models.Artifact) (*models.GenerationDraft, error)

	// GetDraft returns an entity draft by ID.
	GetDraft(ctx context.Context, draftID uuid.UUID) (*models.GenerationDraft, error)

	// ListPendingDrafts returns drafts awaiting GM review.
	ListPendingDrafts(ctx context.Context, campaignID uuid.UUID) ([]*models.GenerationDraft, error)

	// ApproveDraft moves draft -> approved.
	ApproveDraft(ctx context.Context, draftID uuid.UUID) error

	// RejectDraft logs a rejection. The draft stays at draft status and
	// remains editable; the event log records the verdict and reason.
	RejectDraft(ctx context.Context, draftID uuid.UUID, reason string) error

	// ModifyDraft rewrites an editable draft's payload, logging the
	// modification.
	ModifyDraft(ctx context.Context, draftID uuid.UUID, payload json.RawMessage) error

	// RevertToDraft moves approved -> draft for rework.
	RevertToDraft(ctx context.Context, draftID uuid.UUID) error

	// ApplyToCampaign writes an approved draft into canonical campaign
	// state. Transactional and idempotent: reapplying returns the entity
	// already created.
	ApplyToCampaign(ctx context.Context, draftID uuid.UUID) (*models.CanonicalEntity, error)

	// ApproveAll approves and applies pending drafts for a campaign. An
	// empty draftIDs list covers every pending draft.
	ApproveAll(ctx context.Context, campaignID uuid.UUID, draftIDs []uuid.UUID) (*ApproveAllResult, error)

	// GetAcceptanceHistory returns the audit trail for a draft.
	GetAcceptanceHistory(ctx context.Context, draftID uuid.UUID) (*AcceptanceHistory, error)

	// MarkUsedInSession promotes approved -> canonical when the entity is
	// first used at the table.
	MarkUsedInSession(ctx context.Context, draftID uuid.UUID) error

	// Retcon deprecates a canonical entity, logging its prior version.
	Retcon(ctx context.Context, draftID uuid.UUID, reason string) error

	// IngestWizardContent converts GM-authored initial content into
	// applied canonical entities at wizard completion.
	IngestWizardContent(ctx context.Context, campaignID uuid.UUID, content *models.InitialContent) error

	// UpdateIntent rewrites an unlocked campaign intent. Once the intent
	// is locked this returns ErrIntentLocked; use MigrateIntent instead.
	UpdateIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent) error

	// MigrateIntent rewrites a locked campaign intent as an explicit,
	// logged migration.
	MigrateIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent, reason string) error
}

type acceptanceService struct {
	entityDraftRepo repositories.EntityDraftRepository
	auditRepo       repositories.AuditRepository
	campaignRepo    repositories.CampaignRepository
	writer          CampaignWriter
	tx              database.TxManager
	logger          *zap.Logger
}

// AcceptanceServiceDeps contains dependencies for AcceptanceService.
type AcceptanceServiceDeps struct {
	EntityDraftRepo repositories.EntityDraftRepository
	AuditRepo       repositories.AuditRepository
	CampaignRepo    repositories.CampaignRepository
	Writer          CampaignWriter
	TxManager       database.TxManager
	Logger          *zap.Logger
}

// NewAcceptanceService creates a new AcceptanceService.
func NewAcceptanceService(deps *AcceptanceServiceDeps) AcceptanceService {
	return &acceptanceService{
		entityDraftRepo: deps.EntityDraftRepo,
		auditRepo:       deps.AuditRepo,
		campaignRepo:    deps.CampaignRepo,
		writer:          deps.Writer,
		tx:              deps.TxManager,
		logger:          deps.Logger,
	}
}

var _ AcceptanceService = (*acceptanceService)(nil)

func (s *acceptanceService) CreateDraft(ctx context.Context, campaignID uuid.UUID, artifact models.Artifact) (*models.GenerationDraft, error) {
	if artifact.Trust.Reliable() && len(artifact.Citations) == 0 {
		return nil, fmt.Errorf("%s trust requires at least one citation", artifact.Trust)
	}

	payload := artifact.Payload
	if payload == nil {
		raw, err := json.Marshal(map[string]string{"raw_text": artifact.RawText})
		if err != nil {
			return nil, fmt.Errorf("failed to wrap raw text: %w", err)
		}
		payload = raw
	}

	draft := &models.GenerationDraft{
		CampaignID: &campaignID,
		EntityType: artifact.EntityType,
		Payload:    payload,
		Status:     models.StatusDraft,
		Trust:      artifact.Trust,
		Confidence: artifact.Confidence,
		Citations:  artifact.Citations,
	}
	if err := s.entityDraftRepo.Create(ctx, draft); err != nil {
		return nil, err
	}

	s.logger.Info("created entity draft",
		zap.String("draft_id", draft.ID.String()),
		zap.String("entity_type", string(draft.EntityType)),
		zap.String("trust", string(draft.Trust)))

	return draft, nil
}

func (s *acceptanceService) GetDraft(ctx context.Context, draftID uuid.UUID) (*models.GenerationDraft, error) {
	return s.entityDraftRepo.GetByID(ctx, draftID)
}

func (s *acceptanceService) ListPendingDrafts(ctx context.Context, campaignID uuid.UUID) ([]*models.GenerationDraft, error) {
	return s.entityDraftRepo.ListPending(ctx, campaignID, "")
}

// transition moves a draft along one status edge, recording both the
// transition and the acceptance event atomically.
func (s *acceptanceService) transition(ctx context.Context, draft *models.GenerationDraft, to models.CanonStatus, kind models.AcceptanceEventKind, triggeredBy, reason string, modifications, prior json.RawMessage) error {
	if !draft.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidStatusTransition, draft.Status, to)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.entityDraftRepo.UpdateStatus(ctx, draft.ID, to); err != nil {
			return err
		}
		if err := s.auditRepo.RecordTransition(ctx, &models.StatusTransition{
			DraftID:     draft.ID,
			EntityType:  draft.EntityType,
			FromStatus:  draft.Status,
			ToStatus:    to,
			TriggeredBy: triggeredBy,
			Reason:      reason,
		}); err != nil {
			return err
		}
		if err := s.auditRepo.RecordEvent(ctx, &models.AcceptanceEvent{
			DraftID:       draft.ID,
			EntityType:    draft.EntityType,
			Kind:          kind,
			PrevStatus:    draft.Status,
			NewStatus:     to,
			Modifications: modifications,
			PriorVersion:  prior,
			Reason:        reason,
		}); err != nil {
			return err
		}
		draft.Status = to
		return nil
	})
}

func (s *acceptanceService) ApproveDraft(ctx context.Context, draftID uuid.UUID) error {
	draft, err := s.entityDraftRepo.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	return s.transition(ctx, draft, models.StatusApproved, models.EventApproved, models.TriggerGM, "", nil, nil)
}

func (s *acceptanceService) RejectDraft(ctx context.Context, draftID uuid.UUID, reason string) error {
	draft, err := s.entityDraftRepo.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	if !draft.Status.Editable() {
		return fmt.Errorf("%w: cannot reject %s draft", apperrors.ErrInvalidStatusTransition, draft.Status)
	}

	return s.auditRepo.RecordEvent(ctx, &models.AcceptanceEvent{
		DraftID:    draft.ID,
		EntityType: draft.EntityType,
		Kind:       models.EventRejected,
		PrevStatus: draft.Status,
		NewStatus:  draft.Status,
		Reason:     reason,
	})
}

func (s *acceptanceService) ModifyDraft(ctx context.Context, draftID uuid.UUID, payload json.RawMessage) error {
	draft, err := s.entityDraftRepo.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	if !draft.Status.Editable() {
		if draft.Status == models.StatusCanonical {
			return apperrors.ErrCanonicalMutationRejected
		}
		return fmt.Errorf("%w: cannot modify %s draft", apperrors.ErrInvalidStatusTransition, draft.Status)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Trust is never upgraded by edits; the GM's changes keep the
		// original classification and the event log keeps both versions.
		if err := s.entityDraftRepo.UpdatePayload(ctx, draftID, payload, draft.Trust, draft.Confidence); err != nil {
			return err
		}
		return s.auditRepo.RecordEvent(ctx, &models.AcceptanceEvent{
			DraftID:       draft.ID,
			EntityType:    draft.EntityType,
			Kind:          models.EventModified,
			PrevStatus:    draft.Status,
			NewStatus:     draft.Status,
			Modifications: payload,
			PriorVersion:  draft.Payload,
		})
	})
}

func (s *acceptanceService) RevertToDraft(ctx context.Context, draftID uuid.UUID) error {
	draft, err := s.entityDraftRepo.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	return s.transition(ctx, draft, models.StatusDraft, models.EventModified, models.TriggerGM, "reverted for rework", nil, nil)
}

func (s *acceptanceService) ApplyToCampaign(ctx context.Context, draftID uuid.UUID) (*models.CanonicalEntity, error) {
	draft, err := s.entityDraftRepo.GetByID(ctx, draftID)
	if err != nil {
		return nil, err
	}

	// Idempotent: a draft already applied returns its entity. A draft
	// that was reverted, modified, and re-approved refreshes the entity
	// it created instead of minting a duplicate.
	if draft.AppliedEntityID != nil {
		entity, err := s.campaignRepo.GetEntity(ctx, *draft.AppliedEntityID)
		if err != nil {
			return nil, err
		}
		if draft.Status != models.StatusApproved || bytes.Equal(entity.Payload, draft.Payload) {
			return entity, nil
		}

		prior := entity.Payload
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.writer.RewriteEntity(ctx, entity.ID, draft.Payload); err != nil {
				return err
			}
			return s.auditRepo.RecordEvent(ctx, &models.AcceptanceEvent{
				DraftID:       draft.ID,
				EntityType:    draft.EntityType,
				Kind:          models.EventApplied,
				PrevStatus:    draft.Status,
				NewStatus:     draft.Status,
				Modifications: draft.Payload,
				PriorVersion:  prior,
			})
		})
		if err != nil {
			return nil, err
		}
		entity.Payload = draft.Payload
		entity.Version++
		return entity, nil
	}

	if draft.Status != models.StatusApproved {
		return nil, fmt.Errorf("%w: only approved drafts apply, draft is %s", apperrors.ErrInvalidStatusTransition, draft.Status)
	}
	if draft.CampaignID == nil {
		return nil, fmt.Errorf("entity draft %s has no campaign", draftID)
	}

	entity := &models.CanonicalEntity{
		CampaignID: *draft.CampaignID,
		EntityType: draft.EntityType,
		Name:       entityName(draft.Payload),
		Payload:    draft.Payload,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.writer.WriteEntity(ctx, entity); err != nil {
			return err
		}
		if err := s.entityDraftRepo.MarkApplied(ctx, draft.ID, entity.ID); err != nil {
			return err
		}
		if err := s.auditRepo.RecordEvent(ctx, &models.AcceptanceEvent{
			DraftID:    draft.ID,
			EntityType: draft.EntityType,
			Kind:       models.EventApplied,
			PrevStatus: draft.Status,
			NewStatus:  draft.Status,
		}); err != nil {
			return err
		}

		// The first canonical entity locks the campaign intent.
		campaign, err := s.campaignRepo.GetByID(ctx, *draft.CampaignID)
		if err != nil {
			return err
		}
		if !campaign.IntentLocked {
			return s.writer.LockIntent(ctx, campaign.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("applied entity draft to campaign",
		zap.String("draft_id", draft.ID.String()),
		zap.String("entity_id", entity.ID.String()))

	return entity, nil
}

func (s *acceptanceService) ApproveAll(ctx context.Context, campaignID uuid.UUID, draftIDs []uuid.UUID) (*ApproveAllResult, error) {
	result := &ApproveAllResult{}

	var drafts []*models.GenerationDraft
	if len(draftIDs) == 0 {
		var err error
		drafts, err = s.entityDraftRepo.ListPending(ctx, campaignID, models.StatusDraft)
		if err != nil {
			return nil, err
		}
	} else {
		for _, id := range draftIDs {
			draft, err := s.entityDraftRepo.GetByID(ctx, id)
			if err != nil {
				result.Skipped++
				result.Reasons = append(result.Reasons, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			if draft.CampaignID == nil || *draft.CampaignID != campaignID {
				result.Skipped++
				result.Reasons = append(result.Reasons, fmt.Sprintf("%s: draft belongs to another campaign", id))
				continue
			}
			drafts = append(drafts, draft)
		}
	}

	for _, draft := range drafts {
		if err := s.transition(ctx, draft, models.StatusApproved, models.EventApproved, models.TriggerGM, "bulk approval", nil, nil); err != nil {
			result.Skipped++
			result.Reasons = append(result.Reasons, fmt.Sprintf("%s: %v", draft.ID, err))
			continue
		}
		if _, err := s.ApplyToCampaign(ctx, draft.ID); err != nil {
			result.Skipped++
			result.Reasons = append(result.Reasons, fmt.Sprintf("%s: %v", draft.ID, err))
			continue
		}
		result.Approved++
	}
	return result, nil
}

func (s *acceptanceService) GetAcceptanceHistory(ctx context.Context, draftID uuid.UUID) (*AcceptanceHistory, error) {
	events, err := s.auditRepo.ListEvents(ctx, draftID)
	if err != nil {
		return nil, err
	}
	transitions, err := s.auditRepo.ListTransitions(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return &AcceptanceHistory{Events: events, Transitions: transitions}, nil
}

func (s *acceptanceService) MarkUsedInSession(ctx context.Context, draftID uuid.UUID) error {
	draft, err := s.entityDraftRepo.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	if draft.Status == models.StatusCanonical {
		// Already promoted; session use is not an error twice.
		return nil
	}
	return s.transition(ctx, draft, models.StatusCanonical, models.EventApplied, models.TriggerSessionStart, "first session use", nil, nil)
}

func (s *acceptanceService) Retcon(ctx context.Context, draftID uuid.UUID, reason string) error {
	draft, err := s.entityDraftRepo.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	if draft.Status != models.StatusCanonical {
		return fmt.Errorf("%w: only canonical entities can be retconned, draft is %s", apperrors.ErrInvalidStatusTransition, draft.Status)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var prior json.RawMessage
		if draft.AppliedEntityID != nil {
			entity, err := s.campaignRepo.GetEntity(ctx, *draft.AppliedEntityID)
			if err != nil {
				return err
			}
			prior = entity.Payload
			if err := s.writer.DeprecateEntity(ctx, entity.ID); err != nil {
				return err
			}
		}
		return s.transition(ctx, draft, models.StatusDeprecated, models.EventRetcon, models.TriggerRetcon, reason, nil, prior)
	})
}

func (s *acceptanceService) IngestWizardContent(ctx context.Context, campaignID uuid.UUID, content *models.InitialContent) error {
	artifacts, err := wizardArtifacts(content)
	if err != nil {
		return err
	}

	for _, artifact := range artifacts {
		draft, err := s.CreateDraft(ctx, campaignID, artifact)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, draft, models.StatusApproved, models.EventApproved, models.TriggerWizard, "wizard completion", nil, nil); err != nil {
			return err
		}
		if _, err := s.ApplyToCampaign(ctx, draft.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *acceptanceService) UpdateIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent) error {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.IntentLocked {
		return apperrors.ErrIntentLocked
	}
	return s.writer.WriteIntent(ctx, campaignID, intent)
}

func (s *acceptanceService) MigrateIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: intent migration requires a reason", apperrors.ErrIntentLocked)
	}

	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		prior, err := json.Marshal(campaign.Intent)
		if err != nil {
			return fmt.Errorf("failed to marshal prior intent: %w", err)
		}
		next, err := json.Marshal(intent)
		if err != nil {
			return fmt.Errorf("failed to marshal new intent: %w", err)
		}

		if err := s.writer.WriteIntent(ctx, campaignID, intent); err != nil {
			return err
		}
		return s.auditRepo.RecordIntentMigration(ctx, &models.IntentMigration{
			CampaignID:  campaignID,
			PriorIntent: prior,
			NewIntent:   next,
			Reason:      reason,
		})
	})
}

// entityName pulls a display name from a JSON payload, best-effort.
func entityName(payload json.RawMessage) string {
	var fields struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	if fields.Name != "" {
		return fields.Name
	}
	return fields.Title
}

// wizardArtifacts converts GM-authored initial content into artifacts.
// GM input is its own source of truth: homebrew citation, full confidence.
func wizardArtifacts(content *models.InitialContent) ([]models.Artifact, error) {
	gmCitation := []models.Citation{{
		SourceType: models.SourceHomebrew,
		SourceName: "GM wizard input",
		Confidence: 1.0,
	}}

	var artifacts []models.Artifact
	add := func(entityType models.EntityType, name string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal wizard content: %w", err)
		}
		artifacts = append(artifacts, models.Artifact{
			ID:         uuid.New(),
			EntityType: entityType,
			Name:       name,
			Payload:    payload,
			Trust:      models.TrustCanonical,
			Confidence: 1.0,
			Citations:  gmCitation,
		})
		return nil
	}

	for _, npc := range content.NPCs {
		if err := add(models.EntityNPC, npc.Name, npc); err != nil {
			return nil, err
		}
	}
	for _, loc := range content.Locations {
		if err := add(models.EntityLocation, loc.Name, loc); err != nil {
			return nil, err
		}
	}
	for _, hook := range content.PlotHooks {
		if err := add(models.EntityPlotPoint, hook.Title, hook); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}
