package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// In-memory repository fakes. Each fake keeps rows in maps and slices so
// tests can assert on persisted state directly.

type fakeDraftRepo struct {
	drafts  map[uuid.UUID]*models.DraftSnapshot
	log     []models.PatchSet
	updates int
}

func newFakeDraftRepo() *fakeDraftRepo {
	return &fakeDraftRepo{drafts: make(map[uuid.UUID]*models.DraftSnapshot)}
}

func (r *fakeDraftRepo) Create(_ context.Context, draft *models.DraftSnapshot) error {
	draft.ID = uuid.New()
	draft.CreatedAt = time.Now()
	draft.UpdatedAt = draft.CreatedAt
	copied := *draft
	r.drafts[draft.ID] = &copied
	return nil
}

func (r *fakeDraftRepo) GetByID(_ context.Context, draftID uuid.UUID) (*models.DraftSnapshot, error) {
	draft, ok := r.drafts[draftID]
	if !ok {
		return nil, apperrors.ErrDraftNotFound
	}
	copied := *draft
	return &copied, nil
}

func (r *fakeDraftRepo) Update(_ context.Context, draft *models.DraftSnapshot) error {
	if _, ok := r.drafts[draft.ID]; !ok {
		return apperrors.ErrDraftNotFound
	}
	r.updates++
	draft.UpdatedAt = time.Now()
	copied := *draft
	r.drafts[draft.ID] = &copied
	return nil
}

func (r *fakeDraftRepo) Touch(_ context.Context, draftID uuid.UUID, at time.Time) error {
	draft, ok := r.drafts[draftID]
	if !ok {
		return apperrors.ErrDraftNotFound
	}
	draft.AutosavedAt = &at
	return nil
}

func (r *fakeDraftRepo) List(_ context.Context) ([]*models.DraftSnapshot, error) {
	out := make([]*models.DraftSnapshot, 0, len(r.drafts))
	for _, d := range r.drafts {
		copied := *d
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *fakeDraftRepo) Delete(_ context.Context, draftID uuid.UUID) error {
	if _, ok := r.drafts[draftID]; !ok {
		return apperrors.ErrDraftNotFound
	}
	delete(r.drafts, draftID)
	return nil
}

func (r *fakeDraftRepo) LogPatches(_ context.Context, _ uuid.UUID, set models.PatchSet) error {
	r.log = append(r.log, set)
	return nil
}

var _ repositories.DraftRepository = (*fakeDraftRepo)(nil)

type fakeEntityDraftRepo struct {
	drafts map[uuid.UUID]*models.GenerationDraft
}

func newFakeEntityDraftRepo() *fakeEntityDraftRepo {
	return &fakeEntityDraftRepo{drafts: make(map[uuid.UUID]*models.GenerationDraft)}
}

func (r *fakeEntityDraftRepo) Create(_ context.Context, draft *models.GenerationDraft) error {
	draft.ID = uuid.New()
	draft.CreatedAt = time.Now()
	draft.UpdatedAt = draft.CreatedAt
	copied := *draft
	r.drafts[draft.ID] = &copied
	return nil
}

func (r *fakeEntityDraftRepo) GetByID(_ context.Context, draftID uuid.UUID) (*models.GenerationDraft, error) {
	draft, ok := r.drafts[draftID]
	if !ok {
		return nil, apperrors.ErrEntityDraftNotFound
	}
	copied := *draft
	return &copied, nil
}

func (r *fakeEntityDraftRepo) ListPending(_ context.Context, campaignID uuid.UUID, status models.CanonStatus) ([]*models.GenerationDraft, error) {
	var out []*models.GenerationDraft
	for _, d := range r.drafts {
		if d.CampaignID == nil || *d.CampaignID != campaignID {
			continue
		}
		if d.Status == models.StatusDeprecated {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		copied := *d
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeEntityDraftRepo) UpdatePayload(_ context.Context, draftID uuid.UUID, payload json.RawMessage, trust models.TrustLevel, confidence float64) error {
	draft, ok := r.drafts[draftID]
	if !ok {
		return apperrors.ErrEntityDraftNotFound
	}
	draft.Payload = payload
	draft.Trust = trust
	draft.Confidence = confidence
	return nil
}

func (r *fakeEntityDraftRepo) UpdateStatus(_ context.Context, draftID uuid.UUID, status models.CanonStatus) error {
	draft, ok := r.drafts[draftID]
	if !ok {
		return apperrors.ErrEntityDraftNotFound
	}
	draft.Status = status
	return nil
}

func (r *fakeEntityDraftRepo) MarkApplied(_ context.Context, draftID, entityID uuid.UUID) error {
	draft, ok := r.drafts[draftID]
	if !ok {
		return apperrors.ErrEntityDraftNotFound
	}
	draft.AppliedEntityID = &entityID
	return nil
}

var _ repositories.EntityDraftRepository = (*fakeEntityDraftRepo)(nil)

type fakeAuditRepo struct {
	transitions []*models.StatusTransition
	events      []*models.AcceptanceEvent
	migrations  []*models.IntentMigration
}

func (r *fakeAuditRepo) RecordTransition(_ context.Context, t *models.StatusTransition) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	r.transitions = append(r.transitions, t)
	return nil
}

func (r *fakeAuditRepo) RecordEvent(_ context.Context, e *models.AcceptanceEvent) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	r.events = append(r.events, e)
	return nil
}

func (r *fakeAuditRepo) ListTransitions(_ context.Context, draftID uuid.UUID) ([]*models.StatusTransition, error) {
	var out []*models.StatusTransition
	for _, t := range r.transitions {
		if t.DraftID == draftID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) ListEvents(_ context.Context, draftID uuid.UUID) ([]*models.AcceptanceEvent, error) {
	var out []*models.AcceptanceEvent
	for _, e := range r.events {
		if e.DraftID == draftID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) RecordIntentMigration(_ context.Context, m *models.IntentMigration) error {
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	r.migrations = append(r.migrations, m)
	return nil
}

func (r *fakeAuditRepo) ListIntentMigrations(_ context.Context, campaignID uuid.UUID) ([]*models.IntentMigration, error) {
	var out []*models.IntentMigration
	for _, m := range r.migrations {
		if m.CampaignID == campaignID {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ repositories.AuditRepository = (*fakeAuditRepo)(nil)

type fakeCampaignRepo struct {
	campaigns map[uuid.UUID]*models.Campaign
	entities  map[uuid.UUID]*models.CanonicalEntity
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: make(map[uuid.UUID]*models.Campaign),
		entities:  make(map[uuid.UUID]*models.CanonicalEntity),
	}
}

func (r *fakeCampaignRepo) Create(_ context.Context, campaign *models.Campaign) error {
	campaign.ID = uuid.New()
	campaign.CreatedAt = time.Now()
	copied := *campaign
	r.campaigns[campaign.ID] = &copied
	return nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	campaign, ok := r.campaigns[campaignID]
	if !ok {
		return nil, apperrors.ErrCampaignNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (r *fakeCampaignRepo) List(_ context.Context) ([]*models.Campaign, error) {
	out := make([]*models.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeCampaignRepo) UpdateIntent(_ context.Context, campaignID uuid.UUID, intent *models.CampaignIntent) error {
	campaign, ok := r.campaigns[campaignID]
	if !ok {
		return apperrors.ErrCampaignNotFound
	}
	campaign.Intent = intent
	return nil
}

func (r *fakeCampaignRepo) LockIntent(_ context.Context, campaignID uuid.UUID) error {
	campaign, ok := r.campaigns[campaignID]
	if !ok {
		return apperrors.ErrCampaignNotFound
	}
	campaign.IntentLocked = true
	return nil
}

func (r *fakeCampaignRepo) CreateEntity(_ context.Context, entity *models.CanonicalEntity) error {
	entity.ID = uuid.New()
	entity.Version = 1
	entity.CreatedAt = time.Now()
	copied := *entity
	r.entities[entity.ID] = &copied
	return nil
}

func (r *fakeCampaignRepo) GetEntity(_ context.Context, entityID uuid.UUID) (*models.CanonicalEntity, error) {
	entity, ok := r.entities[entityID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *entity
	return &copied, nil
}

func (r *fakeCampaignRepo) ListEntities(_ context.Context, campaignID uuid.UUID, entityType models.EntityType) ([]*models.CanonicalEntity, error) {
	var out []*models.CanonicalEntity
	for _, e := range r.entities {
		if e.CampaignID != campaignID || e.Deprecated {
			continue
		}
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeCampaignRepo) UpdateEntity(_ context.Context, entityID uuid.UUID, payload json.RawMessage) error {
	entity, ok := r.entities[entityID]
	if !ok {
		return apperrors.ErrNotFound
	}
	entity.Payload = payload
	entity.Version++
	return nil
}

func (r *fakeCampaignRepo) DeprecateEntity(_ context.Context, entityID uuid.UUID) error {
	entity, ok := r.entities[entityID]
	if !ok {
		return apperrors.ErrNotFound
	}
	entity.Deprecated = true
	return nil
}

var _ repositories.CampaignRepository = (*fakeCampaignRepo)(nil)

type fakeConversationRepo struct {
	threads  map[uuid.UUID]*models.ConversationThread
	messages map[uuid.UUID][]*models.Message
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		threads:  make(map[uuid.UUID]*models.ConversationThread),
		messages: make(map[uuid.UUID][]*models.Message),
	}
}

func (r *fakeConversationRepo) CreateThread(_ context.Context, thread *models.ConversationThread) error {
	thread.ID = uuid.New()
	thread.CreatedAt = time.Now()
	thread.UpdatedAt = thread.CreatedAt
	copied := *thread
	r.threads[thread.ID] = &copied
	return nil
}

func (r *fakeConversationRepo) GetThread(_ context.Context, threadID uuid.UUID) (*models.ConversationThread, error) {
	thread, ok := r.threads[threadID]
	if !ok {
		return nil, apperrors.ErrThreadNotFound
	}
	copied := *thread
	return &copied, nil
}

func (r *fakeConversationRepo) ListThreadsByDraft(_ context.Context, draftID uuid.UUID) ([]*models.ConversationThread, error) {
	var out []*models.ConversationThread
	for _, t := range r.threads {
		if t.DraftID != nil && *t.DraftID == draftID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeConversationRepo) AddMessage(_ context.Context, msg *models.Message) error {
	if _, ok := r.threads[msg.ThreadID]; !ok {
		return apperrors.ErrThreadNotFound
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	copied := *msg
	r.messages[msg.ThreadID] = append(r.messages[msg.ThreadID], &copied)
	return nil
}

func (r *fakeConversationRepo) GetMessage(_ context.Context, messageID uuid.UUID) (*models.Message, error) {
	for _, msgs := range r.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				copied := *m
				return &copied, nil
			}
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeConversationRepo) ListMessages(_ context.Context, threadID uuid.UUID, limit int) ([]*models.Message, error) {
	msgs := r.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeConversationRepo) CopyMessagesUpTo(_ context.Context, srcThreadID, dstThreadID, branchPoint uuid.UUID) error {
	for _, m := range r.messages[srcThreadID] {
		copied := *m
		copied.ID = uuid.New()
		copied.ThreadID = dstThreadID
		r.messages[dstThreadID] = append(r.messages[dstThreadID], &copied)
		if m.ID == branchPoint {
			break
		}
	}
	return nil
}

func (r *fakeConversationRepo) UpdateSuggestionStatus(_ context.Context, messageID, suggestionID uuid.UUID, status models.SuggestionStatus) error {
	for _, msgs := range r.messages {
		for _, m := range msgs {
			if m.ID != messageID {
				continue
			}
			for i := range m.Suggestions {
				if m.Suggestions[i].ID == suggestionID {
					m.Suggestions[i].Status = status
					return nil
				}
			}
		}
	}
	return apperrors.ErrNotFound
}

var _ repositories.ConversationRepository = (*fakeConversationRepo)(nil)

type fakeDecisionRepo struct {
	decisions []*models.Decision
}

func (r *fakeDecisionRepo) Record(_ context.Context, decision *models.Decision) error {
	decision.ID = uuid.New()
	decision.CreatedAt = time.Now()
	copied := *decision
	r.decisions = append(r.decisions, &copied)
	return nil
}

func (r *fakeDecisionRepo) ListByThread(_ context.Context, threadID uuid.UUID, limit int) ([]*models.Decision, error) {
	var out []*models.Decision
	for i := len(r.decisions) - 1; i >= 0; i-- {
		if r.decisions[i].ThreadID != threadID {
			continue
		}
		copied := *r.decisions[i]
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeDecisionRepo) Summarize(_ context.Context, threadID uuid.UUID, recentLimit int) (*models.DecisionSummary, error) {
	summary := &models.DecisionSummary{}
	for _, d := range r.decisions {
		if d.ThreadID != threadID {
			continue
		}
		switch d.Kind {
		case models.DecisionAccepted:
			summary.Accepted++
		case models.DecisionRejected:
			summary.Rejected++
		case models.DecisionModified:
			summary.Modified++
		}
	}
	// Topics are deduplicated, newest rejection first, bounded at 20 to
	// match the SQL digest.
	seen := make(map[string]struct{})
	for i := len(r.decisions) - 1; i >= 0 && len(summary.RejectedTopics) < 20; i-- {
		d := r.decisions[i]
		if d.ThreadID != threadID || d.Kind != models.DecisionRejected || d.Topic == "" {
			continue
		}
		if _, ok := seen[d.Topic]; ok {
			continue
		}
		seen[d.Topic] = struct{}{}
		summary.RejectedTopics = append(summary.RejectedTopics, d.Topic)
	}
	if recentLimit > 0 {
		recent, _ := r.ListByThread(context.Background(), threadID, recentLimit)
		for _, d := range recent {
			summary.Recent = append(summary.Recent, *d)
		}
	}
	return summary, nil
}

var _ repositories.DecisionRepository = (*fakeDecisionRepo)(nil)

// fakeTxManager runs the function directly; the fakes have no
// transactional state to join.
type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeReferenceRepo struct {
	sources []*repositories.ReferenceSource
	chunks  []*repositories.ReferenceChunk

	keywordErr error
}

func (r *fakeReferenceRepo) CreateSource(_ context.Context, source *repositories.ReferenceSource) error {
	source.ID = uuid.New()
	r.sources = append(r.sources, source)
	return nil
}

func (r *fakeReferenceRepo) CreateChunks(_ context.Context, chunks []*repositories.ReferenceChunk) error {
	r.chunks = append(r.chunks, chunks...)
	return nil
}

func (r *fakeReferenceRepo) KeywordSearch(_ context.Context, _ string, _ models.GroundingFilters, limit int) ([]*repositories.ReferenceChunk, error) {
	if r.keywordErr != nil {
		return nil, r.keywordErr
	}
	if len(r.chunks) > limit {
		return r.chunks[:limit], nil
	}
	return r.chunks, nil
}

func (r *fakeReferenceRepo) FindByTerm(_ context.Context, term string, limit int) ([]*repositories.ReferenceChunk, error) {
	var out []*repositories.ReferenceChunk
	for _, c := range r.chunks {
		if c.Term == term {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

var _ repositories.ReferenceRepository = (*fakeReferenceRepo)(nil)
