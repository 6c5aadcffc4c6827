package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/config"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/llm"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

// sseRecorder is a flushing response writer that signals when the first
// body write lands, so a test can drop the request mid-stream.
type sseRecorder struct {
	mu        sync.Mutex
	header    http.Header
	body      bytes.Buffer
	firstByte chan struct{}
	once      sync.Once
}

func newSSERecorder() *sseRecorder {
	return &sseRecorder{header: make(http.Header), firstByte: make(chan struct{})}
}

func (r *sseRecorder) Header() http.Header { return r.header }

func (r *sseRecorder) WriteHeader(int) {}

func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.body.Write(p)
	r.once.Do(func() { close(r.firstByte) })
	return n, err
}

func (r *sseRecorder) Flush() {}

func (r *sseRecorder) contents() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

type stubCampaignRepo struct {
	repositories.CampaignRepository
	campaign *models.Campaign
}

func (r *stubCampaignRepo) GetByID(_ context.Context, _ uuid.UUID) (*models.Campaign, error) {
	return r.campaign, nil
}

type stubGrounder struct{}

func (stubGrounder) Ground(_ context.Context, query, _ string, _ models.GroundingFilters) (*models.GroundingPack, error) {
	return &models.GroundingPack{Query: query}, nil
}

// captureAcceptance records the context handed to CreateDraft.
type captureAcceptance struct {
	services.AcceptanceService
	mu     sync.Mutex
	ctx    context.Context
	drafts int
}

func (a *captureAcceptance) CreateDraft(ctx context.Context, campaignID uuid.UUID, artifact models.Artifact) (*models.GenerationDraft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = ctx
	a.drafts++
	return &models.GenerationDraft{
		ID:         uuid.New(),
		CampaignID: &campaignID,
		EntityType: artifact.EntityType,
		Status:     models.StatusDraft,
		Trust:      artifact.Trust,
	}, nil
}

func TestGenerateForCampaign_ClientDropStillRegistersDraft(t *testing.T) {
	campaignID := uuid.New()

	mock := llm.NewMockCompletionClient()
	mock.Chunks = append(mock.Chunks, `{"name":"Mira Thistlewood","description":"`)
	for i := 0; i < 40; i++ {
		mock.Chunks = append(mock.Chunks, "an innkeeper with a long memory ")
	}
	mock.Chunks = append(mock.Chunks, `"}`)

	gen := services.NewGenerationService(&services.GenerationServiceDeps{
		Completion:   mock,
		Grounding:    stubGrounder{},
		Trust:        services.NewTrustService(&services.TrustServiceDeps{Logger: zap.NewNop()}),
		CampaignRepo: &stubCampaignRepo{campaign: &models.Campaign{ID: campaignID, System: "D&D 5e"}},
		Config: config.GenerationConfig{
			ContextTokenBudget: 6000,
			MaxOutputTokens:    512,
			Timeout:            5 * time.Second,
			ConversationWindow: 10,
		},
		Logger: zap.NewNop(),
	})

	acceptance := &captureAcceptance{}
	h := NewGenerationHandler(gen, acceptance, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/"+campaignID.String()+"/generate",
		strings.NewReader(`{"purpose":"npc","params":{"topic":"innkeeper"}}`))
	req = req.WithContext(ctx)
	req.SetPathValue("cid", campaignID.String())

	rec := newSSERecorder()
	done := make(chan struct{})
	go func() {
		h.GenerateForCampaign(rec, req)
		close(done)
	}()

	// Drop the client as soon as the first token frame arrives.
	select {
	case <-rec.firstByte:
	case <-time.After(5 * time.Second):
		t.Fatal("no tokens streamed")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not finish after the client dropped")
	}

	acceptance.mu.Lock()
	defer acceptance.mu.Unlock()
	require.Equal(t, 1, acceptance.drafts, "partial artifact must still be registered")
	require.NotNil(t, acceptance.ctx)
	require.NoError(t, acceptance.ctx.Err(), "draft registration must outlive the dropped request")
	require.Contains(t, rec.contents(), `"type":"result"`)
}
