package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/config"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/jsonutil"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/llm"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/prompts"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
)

// GenerationRequest describes one generation run.
type GenerationRequest struct {
	Purpose models.GenerationPurpose `json:"purpose"`
	Params  prompts.GenerationParams `json:"params"`
	Filters models.GroundingFilters  `json:"filters"`

	// Context sources; all optional.
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	DraftID    *uuid.UUID `json:"draft_id,omitempty"`
	ThreadID   *uuid.UUID `json:"thread_id,omitempty"`
}

// GenerationService runs grounded, streamed content generation. A run
// streams tokens to the caller and is finalized exactly once into an
// ArtifactBundle carrying trust and citations.
type GenerationService interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationStream, error)

	// Converse runs one creation-chat turn: record the GM message, answer
	// with grounded context, and record the assistant reply with any
	// proposals it carries. Proposals are never applied here.
	Converse(ctx context.Context, threadID uuid.UUID, draftID *uuid.UUID, message string) (*models.Message, error)
}

type generationService struct {
	completion    llm.CompletionClient
	grounding     GroundingService
	trust         TrustService
	draftRepo     repositories.DraftRepository
	campaignRepo  repositories.CampaignRepository
	ledger        LedgerService
	referenceRepo repositories.ReferenceRepository
	assembler     *prompts.Assembler
	cfg           config.GenerationConfig
	logger        *zap.Logger
}

// GenerationServiceDeps contains dependencies for GenerationService.
type GenerationServiceDeps struct {
	Completion    llm.CompletionClient
	Grounding     GroundingService
	Trust         TrustService
	DraftRepo     repositories.DraftRepository
	CampaignRepo  repositories.CampaignRepository
	Ledger        LedgerService
	ReferenceRepo repositories.ReferenceRepository
	Config        config.GenerationConfig
	Logger        *zap.Logger
}

// NewGenerationService creates a new GenerationService.
func NewGenerationService(deps *GenerationServiceDeps) GenerationService {
	return &generationService{
		completion:    deps.Completion,
		grounding:     deps.Grounding,
		trust:         deps.Trust,
		draftRepo:     deps.DraftRepo,
		campaignRepo:  deps.CampaignRepo,
		ledger:        deps.Ledger,
		referenceRepo: deps.ReferenceRepo,
		assembler:     prompts.NewAssembler(deps.Config.ContextTokenBudget),
		cfg:           deps.Config,
		logger:        deps.Logger,
	}
}

var _ GenerationService = (*generationService)(nil)

// streamState is the explicit lifecycle of a generation run.
type streamState int

const (
	stateStreaming streamState = iota
	stateFinalizing
	stateDone
)

// GenerationStream is one in-flight generation run. Consume Tokens()
// until closed, then call Finalize exactly once. Cancel stops the model
// call; accumulated text is still finalized into a partial artifact.
type GenerationStream struct {
	svc     *generationService
	req     GenerationRequest
	pack    *models.GroundingPack
	stream  *llm.TokenStream
	cancelT context.CancelFunc

	mu    sync.Mutex
	state streamState
}

// Tokens returns the token channel for this run.
func (g *GenerationStream) Tokens() <-chan string {
	return g.stream.Tokens()
}

// Cancel stops the underlying completion call.
func (g *GenerationStream) Cancel() {
	g.stream.Cancel()
}

// Finalize parses the accumulated output into an ArtifactBundle. It may
// be called exactly once, after the token channel closes or after Cancel.
func (g *GenerationStream) Finalize(ctx context.Context) (*models.ArtifactBundle, error) {
	g.mu.Lock()
	if g.state != stateStreaming {
		g.mu.Unlock()
		return nil, apperrors.ErrStreamFinalized
	}
	g.state = stateFinalizing
	g.mu.Unlock()

	defer func() {
		g.cancelT()
		g.mu.Lock()
		g.state = stateDone
		g.mu.Unlock()
	}()

	text := g.stream.Text()
	if err := g.stream.Err(); err != nil && text == "" {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	bundle := g.svc.finalize(ctx, g.req, g.pack, text)
	if g.stream.Canceled() {
		bundle.Warnings = append(bundle.Warnings, "generation cancelled; artifact built from partial output")
	} else if err := g.stream.Err(); err != nil {
		bundle.Warnings = append(bundle.Warnings, fmt.Sprintf("stream ended with error: %v", err))
	}
	return bundle, nil
}

func (s *generationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationStream, error) {
	in, system, err := s.buildContext(ctx, req)
	if err != nil {
		return nil, err
	}

	pack, err := s.grounding.Ground(ctx, groundingQuery(req), system, req.Filters)
	if err != nil {
		// Ground degrades internally; an error here is a programming error.
		return nil, err
	}
	in.Snippets = pack.Snippets

	prompt, err := prompts.BuildGenerationPrompt(req.Purpose, req.Params, s.assembler.Assemble(*in))
	if err != nil {
		return nil, err
	}

	// The timeout context lives beyond this call: it bounds the stream.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)

	stream, err := s.completion.StreamCompletion(runCtx, llm.CompletionRequest{
		System:    prompts.SystemPromptFor(req.Purpose),
		Prompt:    prompt,
		MaxTokens: s.cfg.MaxOutputTokens,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start generation: %w", err)
	}

	s.logger.Info("generation started",
		zap.String("purpose", string(req.Purpose)),
		zap.Int("snippets", len(pack.Snippets)))

	return &GenerationStream{
		svc:     s,
		req:     req,
		pack:    pack,
		stream:  stream,
		cancelT: cancel,
	}, nil
}

func (s *generationService) Converse(ctx context.Context, threadID uuid.UUID, draftID *uuid.UUID, message string) (*models.Message, error) {
	if _, err := s.ledger.AppendUserMessage(ctx, threadID, message); err != nil {
		return nil, err
	}

	req := GenerationRequest{DraftID: draftID, ThreadID: &threadID}
	in, system, err := s.buildContext(ctx, req)
	if err != nil {
		return nil, err
	}

	pack, err := s.grounding.Ground(ctx, message, system, models.GroundingFilters{})
	if err != nil {
		return nil, err
	}
	in.Snippets = pack.Snippets

	reply, err := s.completion.Complete(ctx, llm.CompletionRequest{
		System:    prompts.ConversationSystemPrompt,
		Prompt:    prompts.BuildConversationPrompt(s.assembler.Assemble(*in), message),
		MaxTokens: s.cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation turn failed: %w", err)
	}

	content, proposals, suggestions := parseConversationReply(reply, pack, s.trust)
	return s.ledger.AppendAssistantMessage(ctx, threadID, content, proposals, suggestions, pack.Citations)
}

// parseConversationReply extracts the reply text, proposals, and field
// suggestions from a conversation turn. Unparseable output is kept
// verbatim as the reply.
func parseConversationReply(reply string, pack *models.GroundingPack, trust TrustService) (string, []models.Proposal, []models.Suggestion) {
	payload, err := llm.ExtractJSON(reply)
	if err != nil {
		return reply, nil, nil
	}

	var parsed struct {
		Reply     string `json:"reply"`
		Proposals []struct {
			Rationale string            `json:"rationale"`
			Patches   []models.Patch    `json:"patches"`
			Citations []models.Citation `json:"citations"`
		} `json:"proposals"`
		Suggestions []struct {
			Field     string `json:"field"`
			Value     string `json:"value"`
			Rationale string `json:"rationale"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil || parsed.Reply == "" {
		return reply, nil, nil
	}

	var proposals []models.Proposal
	for _, p := range parsed.Proposals {
		if len(p.Patches) == 0 {
			continue
		}
		citations := mergeCitations(nil, p.Citations, pack.Snippets)
		assignment := trust.AssignTrust(p.Rationale, append(citations, pack.Citations...))
		proposals = append(proposals, models.Proposal{
			ID:        uuid.New(),
			Patches:   p.Patches,
			Rationale: p.Rationale,
			Citations: citations,
			Trust:     assignment.Overall,
		})
	}

	var suggestions []models.Suggestion
	for _, s := range parsed.Suggestions {
		if s.Field == "" || s.Value == "" {
			continue
		}
		suggestions = append(suggestions, models.Suggestion{
			Field:     s.Field,
			Value:     s.Value,
			Rationale: s.Rationale,
			Status:    models.SuggestionPending,
		})
	}
	return parsed.Reply, proposals, suggestions
}

// buildContext gathers intent, draft snapshot, and conversation window.
func (s *generationService) buildContext(ctx context.Context, req GenerationRequest) (*prompts.ContextInput, string, error) {
	in := &prompts.ContextInput{}
	system := ""

	if req.CampaignID != nil {
		campaign, err := s.campaignRepo.GetByID(ctx, *req.CampaignID)
		if err != nil {
			return nil, "", err
		}
		in.Intent = campaign.Intent
		system = campaign.System
	}

	if req.DraftID != nil {
		draft, err := s.draftRepo.GetByID(ctx, *req.DraftID)
		if err != nil {
			return nil, "", err
		}
		in.Draft = &draft.Campaign
		if in.Intent == nil {
			in.Intent = draft.Campaign.Intent
		}
		if system == "" {
			system = draft.Campaign.System
		}
	}

	if req.ThreadID != nil {
		messages, err := s.ledger.History(ctx, *req.ThreadID, s.cfg.ConversationWindow)
		if err != nil {
			return nil, "", err
		}
		in.Messages = messages

		decisions, err := s.ledger.SummarizeDecisions(ctx, *req.ThreadID)
		if err != nil {
			return nil, "", err
		}
		in.Decisions = decisions
	}

	return in, system, nil
}

func groundingQuery(req GenerationRequest) string {
	parts := []string{string(req.Purpose)}
	if req.Params.Topic != "" {
		parts = append(parts, req.Params.Topic)
	}
	if req.Params.Notes != "" {
		parts = append(parts, req.Params.Notes)
	}
	return strings.Join(parts, " ")
}

// finalize turns accumulated model output into an ArtifactBundle. A
// payload that fails to parse becomes a single raw-text artifact at
// unverified trust with a warning; generation output is never discarded.
func (s *generationService) finalize(ctx context.Context, req GenerationRequest, pack *models.GroundingPack, text string) *models.ArtifactBundle {
	bundle := &models.ArtifactBundle{Citations: pack.Citations}

	payload, err := llm.ExtractJSON(text)
	if err != nil {
		s.logger.Warn("generation output did not parse, keeping raw text",
			zap.String("purpose", string(req.Purpose)), zap.Error(err))
		bundle.Warnings = append(bundle.Warnings, "output could not be parsed; stored as raw text")
		bundle.Artifacts = append(bundle.Artifacts, models.Artifact{
			ID:         uuid.New(),
			EntityType: req.Purpose.EntityTypeFor(),
			RawText:    text,
			Trust:      models.TrustUnverified,
			Confidence: 0,
		})
		return bundle
	}

	var fields struct {
		Name      json.RawMessage   `json:"name"`
		Title     json.RawMessage   `json:"title"`
		Citations []models.Citation `json:"citations"`
	}
	// Field extraction is best-effort; the payload stays verbatim.
	_ = json.Unmarshal([]byte(payload), &fields)

	citations := mergeCitations(pack.Citations, fields.Citations, pack.Snippets)

	raw := json.RawMessage(payload)
	if req.Purpose == models.PurposeNPC && req.Params.Importance == models.ImportanceMajor {
		expanded, extra := s.expandReferences(ctx, raw)
		raw = expanded
		citations = append(citations, extra...)
	}

	assignment := s.trust.AssignTrust(text, citations)

	name := jsonutil.FlexibleStringValue(fields.Name)
	if name == "" {
		name = jsonutil.FlexibleStringValue(fields.Title)
	}

	bundle.Citations = citations
	bundle.Artifacts = append(bundle.Artifacts, models.Artifact{
		ID:         uuid.New(),
		EntityType: req.Purpose.EntityTypeFor(),
		Name:       name,
		Payload:    raw,
		Trust:      assignment.Overall,
		Confidence: assignment.Confidence,
		Citations:  citations,
	})

	return bundle
}

// mergeCitations keeps the grounding pack's citations authoritative and
// admits model-claimed citations only when they name a retrieved source.
func mergeCitations(packCitations, claimed []models.Citation, snippets []models.Snippet) []models.Citation {
	out := make([]models.Citation, len(packCitations))
	copy(out, packCitations)

	known := make(map[string]models.SourceType)
	for _, sn := range snippets {
		known[strings.ToLower(sn.SourceName)] = sn.SourceType
	}

	for _, c := range claimed {
		sourceType, ok := known[strings.ToLower(c.SourceName)]
		if !ok {
			continue
		}
		c.SourceType = sourceType
		if c.Confidence == 0 {
			c.Confidence = 0.75
		}
		out = append(out, c)
	}
	return out
}

// expandReferences inlines reference-index entries for the abilities a
// major NPC lists, so the artifact stands alone at the table.
func (s *generationService) expandReferences(ctx context.Context, payload json.RawMessage) (json.RawMessage, []models.Citation) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload, nil
	}

	abilities, ok := doc["abilities"].([]any)
	if !ok || len(abilities) == 0 {
		return payload, nil
	}

	details := make(map[string]string)
	var citations []models.Citation
	for _, a := range abilities {
		ability, ok := a.(string)
		if !ok || ability == "" {
			continue
		}
		chunks, err := s.referenceRepo.FindByTerm(ctx, NormalizeTerm(ability), 1)
		if err != nil || len(chunks) == 0 {
			continue
		}
		details[ability] = chunks[0].Content
		citations = append(citations, models.Citation{
			SourceType: chunks[0].SourceType,
			SourceID:   chunks[0].SourceID.String(),
			SourceName: chunks[0].SourceTitle,
			Section:    chunks[0].Section,
			Excerpt:    firstN(chunks[0].Content, 240),
			Confidence: exactReferenceConfidence,
		})
	}

	if len(details) == 0 {
		return payload, nil
	}

	doc["ability_details"] = details
	expanded, err := json.Marshal(doc)
	if err != nil {
		return payload, citations
	}
	return expanded, citations
}
