package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// CampaignWriter is the single write port to canonical campaign state.
// Only the acceptance service holds a reference; every other component
// produces proposals or drafts. This keeps the mutation-rejection
// invariant structural rather than policed.
type CampaignWriter interface {
	// WriteEntity persists a new canonical entity.
	WriteEntity(ctx context.Context, entity *models.CanonicalEntity) error

	// RewriteEntity replaces an entity payload when a reverted draft is
	// re-approved and re-applied. Bumps the entity version.
	RewriteEntity(ctx context.Context, entityID uuid.UUID, payload json.RawMessage) error

	// DeprecateEntity marks a canonical entity deprecated during a retcon.
	DeprecateEntity(ctx context.Context, entityID uuid.UUID) error

	// LockIntent freezes the campaign intent.
	LockIntent(ctx context.Context, campaignID uuid.UUID) error

	// WriteIntent rewrites the campaign intent during a logged migration.
	WriteIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent) error
}

type pgCampaignWriter struct {
	campaignRepo repositories.CampaignRepository
}

// NewCampaignWriter creates the Postgres-backed CampaignWriter.
func NewCampaignWriter(campaignRepo repositories.CampaignRepository) CampaignWriter {
	return &pgCampaignWriter{campaignRepo: campaignRepo}
}

var _ CampaignWriter = (*pgCampaignWriter)(nil)

func (w *pgCampaignWriter) WriteEntity(ctx context.Context, entity *models.CanonicalEntity) error {
	return w.campaignRepo.CreateEntity(ctx, entity)
}

func (w *pgCampaignWriter) RewriteEntity(ctx context.Context, entityID uuid.UUID, payload json.RawMessage) error {
	return w.campaignRepo.UpdateEntity(ctx, entityID, payload)
}

func (w *pgCampaignWriter) DeprecateEntity(ctx context.Context, entityID uuid.UUID) error {
	return w.campaignRepo.DeprecateEntity(ctx, entityID)
}

func (w *pgCampaignWriter) LockIntent(ctx context.Context, campaignID uuid.UUID) error {
	return w.campaignRepo.LockIntent(ctx, campaignID)
}

func (w *pgCampaignWriter) WriteIntent(ctx context.Context, campaignID uuid.UUID, intent *models.CampaignIntent) error {
	return w.campaignRepo.UpdateIntent(ctx, campaignID, intent)
}
