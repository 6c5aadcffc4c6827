package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
)

type acceptanceFixture struct {
	svc          AcceptanceService
	entityDrafts *fakeEntityDraftRepo
	audit        *fakeAuditRepo
	campaigns    *fakeCampaignRepo
	campaignID   uuid.UUID
}

func newAcceptanceFixture(t *testing.T) *acceptanceFixture {
	t.Helper()

	campaigns := newFakeCampaignRepo()
	campaign := &models.Campaign{Name: "Ashes of Eredor", System: "D&D 5e"}
	require.NoError(t, campaigns.Create(context.Background(), campaign))

	entityDrafts := newFakeEntityDraftRepo()
	audit := &fakeAuditRepo{}

	svc := NewAcceptanceService(&AcceptanceServiceDeps{
		EntityDraftRepo: entityDrafts,
		AuditRepo:       audit,
		CampaignRepo:    campaigns,
		Writer:          NewCampaignWriter(campaigns),
		TxManager:       fakeTxManager{},
		Logger:          zap.NewNop(),
	})

	return &acceptanceFixture{
		svc:          svc,
		entityDrafts: entityDrafts,
		audit:        audit,
		campaigns:    campaigns,
		campaignID:   campaign.ID,
	}
}

func creativeArtifact(name string) models.Artifact {
	payload, _ := json.Marshal(map[string]string{"name": name, "description": "a mysterious stranger"})
	return models.Artifact{
		ID:         uuid.New(),
		EntityType: models.EntityNPC,
		Name:       name,
		Payload:    payload,
		Trust:      models.TrustCreative,
		Confidence: 0.4,
	}
}

func TestAcceptanceService_CreateDraft(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	t.Run("reliable trust requires a citation", func(t *testing.T) {
		artifact := creativeArtifact("Mira")
		artifact.Trust = models.TrustDerived
		_, err := f.svc.CreateDraft(ctx, f.campaignID, artifact)
		assert.Error(t, err)
	})

	t.Run("reliable trust with citation accepted", func(t *testing.T) {
		artifact := creativeArtifact("Mira")
		artifact.Trust = models.TrustDerived
		artifact.Citations = []models.Citation{{SourceType: models.SourceRulebook, SourceName: "Basic Rules", Confidence: 0.8}}
		draft, err := f.svc.CreateDraft(ctx, f.campaignID, artifact)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDraft, draft.Status)
		assert.Equal(t, models.TrustDerived, draft.Trust)
	})

	t.Run("raw text wrapped when payload missing", func(t *testing.T) {
		artifact := models.Artifact{
			EntityType: models.EntityNPC,
			RawText:    "unparseable model output",
			Trust:      models.TrustUnverified,
		}
		draft, err := f.svc.CreateDraft(ctx, f.campaignID, artifact)
		require.NoError(t, err)

		var wrapped map[string]string
		require.NoError(t, json.Unmarshal(draft.Payload, &wrapped))
		assert.Equal(t, "unparseable model output", wrapped["raw_text"])
	})
}

func TestAcceptanceService_Lifecycle(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact("Mira"))
	require.NoError(t, err)

	// Applying an unapproved draft is refused.
	_, err = f.svc.ApplyToCampaign(ctx, draft.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition)

	require.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))

	// Approving twice is not a legal edge.
	err = f.svc.ApproveDraft(ctx, draft.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition)

	entity, err := f.svc.ApplyToCampaign(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mira", entity.Name)
	assert.Equal(t, f.campaignID, entity.CampaignID)

	// Reapplying returns the same entity, no duplicate write.
	again, err := f.svc.ApplyToCampaign(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ID, again.ID)
	assert.Len(t, f.campaigns.entities, 1)

	// First session use promotes to canonical.
	require.NoError(t, f.svc.MarkUsedInSession(ctx, draft.ID))
	stored, err := f.svc.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanonical, stored.Status)

	// A second session use is a no-op, not an error.
	require.NoError(t, f.svc.MarkUsedInSession(ctx, draft.ID))

	// Retcon deprecates both draft and entity, keeping the prior payload.
	require.NoError(t, f.svc.Retcon(ctx, draft.ID, "player backstory changed"))
	stored, err = f.svc.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeprecated, stored.Status)

	deprecated, err := f.campaigns.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.True(t, deprecated.Deprecated)

	history, err := f.svc.GetAcceptanceHistory(ctx, draft.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history.Events)
	last := history.Events[len(history.Events)-1]
	assert.Equal(t, models.EventRetcon, last.Kind)
	assert.JSONEq(t, string(entity.Payload), string(last.PriorVersion))
	assert.Equal(t, "player backstory changed", last.Reason)
}

func TestAcceptanceService_EveryTransitionAudited(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact("Mira"))
	require.NoError(t, err)
	require.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))
	require.NoError(t, f.svc.RevertToDraft(ctx, draft.ID))
	require.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))
	require.NoError(t, f.svc.MarkUsedInSession(ctx, draft.ID))

	transitions, err := f.audit.ListTransitions(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 4)
	assert.Equal(t, models.StatusApproved, transitions[0].ToStatus)
	assert.Equal(t, models.StatusDraft, transitions[1].ToStatus)
	assert.Equal(t, models.StatusApproved, transitions[2].ToStatus)
	assert.Equal(t, models.StatusCanonical, transitions[3].ToStatus)
	assert.Equal(t, models.TriggerSessionStart, transitions[3].TriggeredBy)
}

func TestAcceptanceService_RejectKeepsDraftEditable(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact("Mira"))
	require.NoError(t, err)

	require.NoError(t, f.svc.RejectDraft(ctx, draft.ID, "wrong tone"))

	stored, err := f.svc.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, stored.Status)

	events, err := f.audit.ListEvents(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventRejected, events[0].Kind)
	assert.Equal(t, "wrong tone", events[0].Reason)

	// Still approvable after rejection.
	assert.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))
}

func TestAcceptanceService_ModifyDraft(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact("Mira"))
	require.NoError(t, err)

	edited := json.RawMessage(`{"name":"Mira","description":"now a retired soldier"}`)
	require.NoError(t, f.svc.ModifyDraft(ctx, draft.ID, edited))

	stored, err := f.svc.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(edited), string(stored.Payload))
	// GM edits never upgrade trust.
	assert.Equal(t, models.TrustCreative, stored.Trust)

	events, err := f.audit.ListEvents(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventModified, events[0].Kind)
	assert.JSONEq(t, string(draft.Payload), string(events[0].PriorVersion))
}

func TestAcceptanceService_ModifyCanonicalRejected(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact("Mira"))
	require.NoError(t, err)
	require.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))
	require.NoError(t, f.svc.MarkUsedInSession(ctx, draft.ID))

	err = f.svc.ModifyDraft(ctx, draft.ID, json.RawMessage(`{"name":"Changed"}`))
	assert.ErrorIs(t, err, apperrors.ErrCanonicalMutationRejected)
}

func TestAcceptanceService_FirstApplyLocksIntent(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	intent := &models.CampaignIntent{Fantasy: "rebels against a tyrant"}
	require.NoError(t, f.svc.UpdateIntent(ctx, f.campaignID, intent))

	draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact("Mira"))
	require.NoError(t, err)
	require.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))
	_, err = f.svc.ApplyToCampaign(ctx, draft.ID)
	require.NoError(t, err)

	campaign, err := f.campaigns.GetByID(ctx, f.campaignID)
	require.NoError(t, err)
	assert.True(t, campaign.IntentLocked)

	// Plain intent edits are refused once locked.
	err = f.svc.UpdateIntent(ctx, f.campaignID, &models.CampaignIntent{Fantasy: "something else"})
	assert.ErrorIs(t, err, apperrors.ErrIntentLocked)

	// Migration without a reason is refused.
	err = f.svc.MigrateIntent(ctx, f.campaignID, &models.CampaignIntent{Fantasy: "exploration"}, "")
	assert.Error(t, err)

	// An explicit migration succeeds and is logged with both versions.
	next := &models.CampaignIntent{Fantasy: "exploration of a shattered world"}
	require.NoError(t, f.svc.MigrateIntent(ctx, f.campaignID, next, "table voted to pivot"))

	campaign, err = f.campaigns.GetByID(ctx, f.campaignID)
	require.NoError(t, err)
	assert.Equal(t, next.Fantasy, campaign.Intent.Fantasy)

	migrations, err := f.audit.ListIntentMigrations(ctx, f.campaignID)
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, "table voted to pivot", migrations[0].Reason)
	assert.Contains(t, string(migrations[0].PriorIntent), "rebels against a tyrant")
}

func TestAcceptanceService_ApproveAll(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	for _, name := range []string{"Mira", "Thorn", "Vex"} {
		_, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact(name))
		require.NoError(t, err)
	}

	result, err := f.svc.ApproveAll(ctx, f.campaignID, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Approved)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, f.campaigns.entities, 3)

	// Nothing left pending at draft status.
	again, err := f.svc.ApproveAll(ctx, f.campaignID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Approved)
}

func TestAcceptanceService_ApproveAll_SelectedDrafts(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for _, name := range []string{"Mira", "Thorn", "Vex"} {
		draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact(name))
		require.NoError(t, err)
		ids = append(ids, draft.ID)
	}

	// Only the named drafts are approved; a foreign ID is skipped with a
	// reason instead of failing the batch.
	result, err := f.svc.ApproveAll(ctx, f.campaignID, []uuid.UUID{ids[0], ids[2], uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Approved)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Reasons, 1)
	assert.Len(t, f.campaigns.entities, 2)

	middle, err := f.svc.GetDraft(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, middle.Status)
}

func TestAcceptanceService_IngestWizardContent(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	content := &models.InitialContent{
		NPCs:      []models.NPCSketch{{ID: "npc-1", Name: "Aldous the Sage", Role: "mentor"}},
		Locations: []models.LocationSketch{{ID: "loc-1", Name: "Duskhollow", IsStartingLocation: true}},
		PlotHooks: []models.PlotHookSketch{{ID: "hook-1", Title: "The Missing Caravan", HookType: models.HookMainQuest}},
	}

	require.NoError(t, f.svc.IngestWizardContent(ctx, f.campaignID, content))

	entities, err := f.campaigns.ListEntities(ctx, f.campaignID, "")
	require.NoError(t, err)
	assert.Len(t, entities, 3)

	// GM-authored content enters as canonical trust with the homebrew
	// citation, through the same approval machinery as generated content.
	drafts, err := f.entityDrafts.ListPending(ctx, f.campaignID, models.StatusApproved)
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	for _, d := range drafts {
		assert.Equal(t, models.TrustCanonical, d.Trust)
		require.Len(t, d.Citations, 1)
		assert.Equal(t, models.SourceHomebrew, d.Citations[0].SourceType)
		assert.Equal(t, 1.0, d.Citations[0].Confidence)
		assert.NotNil(t, d.AppliedEntityID)
	}
}

func TestAcceptanceService_ReapplyRefreshesEntity(t *testing.T) {
	f := newAcceptanceFixture(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.campaignID, creativeArtifact("Mira"))
	require.NoError(t, err)
	require.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))

	entity, err := f.svc.ApplyToCampaign(ctx, draft.ID)
	require.NoError(t, err)
	firstVersion := entity.Version

	// Rework the applied draft: revert, edit, re-approve.
	require.NoError(t, f.svc.RevertToDraft(ctx, draft.ID))
	reworked := json.RawMessage(`{"name":"Mira","description":"a spy for the Ashen Court"}`)
	require.NoError(t, f.svc.ModifyDraft(ctx, draft.ID, reworked))
	require.NoError(t, f.svc.ApproveDraft(ctx, draft.ID))

	updated, err := f.svc.ApplyToCampaign(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ID, updated.ID, "re-apply must not mint a second entity")
	assert.JSONEq(t, string(reworked), string(updated.Payload))
	assert.Greater(t, updated.Version, firstVersion)
	assert.Len(t, f.campaigns.entities, 1)

	// Re-applying with no changes is a no-op.
	again, err := f.svc.ApplyToCampaign(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Version, again.Version)
}
