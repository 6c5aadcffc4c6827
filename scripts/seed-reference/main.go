// seed-reference ingests source material into the reference index that
// grounding queries run against. Input is a JSON file describing one
// source (a rulebook, adventure, or homebrew document) already split into
// sections:
//
//	{
//	  "title": "Basic Rules",
//	  "source_type": "rulebook",
//	  "chunks": [
//	    {"section": "Chapter 10: Spellcasting", "term": "Zone of Truth",
//	     "content": "..."}
//	  ]
//	}
//
// Embeddings are computed for every chunk through the configured embedding
// endpoint with bounded concurrency; a chunk whose embedding fails is
// indexed anyway and participates in keyword search only.
//
// Usage: go run ./scripts/seed-reference <source.json>
//
// Database connection: standard PG* environment variables.
// Embeddings: AI_EMBEDDING_BASE_URL / AI_LLM_API_KEY.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/config"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/database"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/llm"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/logging"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/models"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/repositories"
	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/services"
)

const embedConcurrency = 8

type sourceFile struct {
	Title      string            `json:"title"`
	SourceType models.SourceType `json:"source_type"`
	Chunks     []chunkInput      `json:"chunks"`
}

type chunkInput struct {
	Section string `json:"section,omitempty"`
	Term    string `json:"term,omitempty"`
	Content string `json:"content"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: seed-reference <source.json>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "seed-reference: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	var src sourceFile
	if err := json.Unmarshal(raw, &src); err != nil {
		return fmt.Errorf("failed to parse source file: %w", err)
	}
	if src.Title == "" || len(src.Chunks) == 0 {
		return fmt.Errorf("source file needs a title and at least one chunk")
	}
	if src.SourceType == "" {
		src.SourceType = models.SourceRulebook
	}

	cfg, err := config.Load("seed")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Encoding: "console"})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	embedder, err := llm.NewEmbedder(&cfg.AI, logger.Named("embeddings"))
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}

	scope, err := db.WithoutCampaign(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer scope.Close()
	ctx = database.SetScope(ctx, scope)

	repo := repositories.NewReferenceRepository()

	source := &repositories.ReferenceSource{Title: src.Title, SourceType: src.SourceType}
	if err := repo.CreateSource(ctx, source); err != nil {
		return err
	}
	logger.Info("Created reference source",
		zap.String("id", source.ID.String()),
		zap.String("title", source.Title),
		zap.Int("chunks", len(src.Chunks)))

	chunks := make([]*repositories.ReferenceChunk, len(src.Chunks))
	items := make([]llm.WorkItem[[]float32], len(src.Chunks))
	for i, in := range src.Chunks {
		chunks[i] = &repositories.ReferenceChunk{
			SourceID: source.ID,
			Section:  in.Section,
			Content:  in.Content,
			Term:     services.NormalizeTerm(in.Term),
		}
		content := in.Content
		items[i] = llm.WorkItem[[]float32]{
			ID: fmt.Sprintf("%d", i),
			Execute: func(ctx context.Context) ([]float32, error) {
				return embedder.CreateEmbedding(ctx, content)
			},
		}
	}

	pool := llm.NewWorkerPool(embedConcurrency, logger)
	embedded := 0
	for _, result := range llm.Process(ctx, pool, items) {
		if result.Err != nil {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(result.ID, "%d", &idx); err != nil {
			continue
		}
		chunks[idx].Embedding = result.Result
		embedded++
	}
	if embedded < len(chunks) {
		logger.Warn("Some chunks indexed without embeddings",
			zap.Int("missing", len(chunks)-embedded))
	}

	if err := repo.CreateChunks(ctx, chunks); err != nil {
		return err
	}

	logger.Info("Reference source indexed",
		zap.String("title", source.Title),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", embedded))
	return nil
}
