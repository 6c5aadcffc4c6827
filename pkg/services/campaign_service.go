package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// CampaignService is the read side of canonical campaign state. All writes
// go through AcceptanceService.
type CampaignService interface {
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error)

	ListCampaigns(ctx context.Context) ([]*models.Campaign, error)

	// ListEntities returns non-deprecated entities, optionally filtered by
	// type. Pass "" for all types.
	ListEntities(ctx context.Context, campaignID uuid.UUID, entityType models.EntityType) ([]*models.CanonicalEntity, error)

	GetEntity(ctx context.Context, entityID uuid.UUID) (*models.CanonicalEntity, error)
}

type campaignService struct {
	campaignRepo repositories.CampaignRepository
	logger       *zap.Logger
}

// CampaignServiceDeps contains dependencies for CampaignService.
type CampaignServiceDeps struct {
	CampaignRepo repositories.CampaignRepository
	Logger       *zap.Logger
}

// NewCampaignService creates a new CampaignService.
func NewCampaignService(deps *CampaignServiceDeps) CampaignService {
	return &campaignService{campaignRepo: deps.CampaignRepo, logger: deps.Logger}
}

var _ CampaignService = (*campaignService)(nil)

func (s *campaignService) GetCampaign(ctx context.Context, campaignID uuid.UUID) (*models.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, campaignID)
}

func (s *campaignService) ListCampaigns(ctx context.Context) ([]*models.Campaign, error) {
	return s.campaignRepo.List(ctx)
}

func (s *campaignService) ListEntities(ctx context.Context, campaignID uuid.UUID, entityType models.EntityType) ([]*models.CanonicalEntity, error) {
	return s.campaignRepo.ListEntities(ctx, campaignID, entityType)
}

func (s *campaignService) GetEntity(ctx context.Context, entityID uuid.UUID) (*models.CanonicalEntity, error) {
	return s.campaignRepo.GetEntity(ctx, entityID)
}
