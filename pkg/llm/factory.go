package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/config"
)

// NewCompletionClient builds the completion client selected by config:
// "openai" covers any OpenAI-compatible endpoint, "anthropic" uses the
// Messages API.
func NewCompletionClient(cfg *config.AIConfig, logger *zap.Logger) (CompletionClient, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewClient(&Config{
			Endpoint: cfg.LLMBaseURL,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
		}, logger)
	case "anthropic":
		return NewAnthropicClient(cfg.LLMAPIKey, cfg.LLMModel, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// NewEmbedder builds the embedding client. Embeddings always go through an
// OpenAI-compatible endpoint, which may differ from the completion one.
func NewEmbedder(cfg *config.AIConfig, logger *zap.Logger) (EmbeddingClient, error) {
	return NewClient(&Config{
		Endpoint:       cfg.EffectiveEmbeddingBaseURL(),
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		APIKey:         cfg.LLMAPIKey,
	}, logger)
}
