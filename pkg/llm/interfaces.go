// Package llm provides completion and embedding clients for
// OpenAI-compatible and Anthropic endpoints.
package llm

import "context"

// CompletionRequest is a single rendered prompt for the completion
// capability. No structured-output contract is assumed; parsing whatever
// comes back is the caller's responsibility.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// CompletionClient turns a rendered prompt into text, either whole or as
// a cancellable token stream. Use this interface for dependency injection
// to enable mocking in tests.
type CompletionClient interface {
	// Complete generates the full response text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// StreamCompletion starts a completion and returns a cancellable
	// stream of text chunks.
	StreamCompletion(ctx context.Context, req CompletionRequest) (*TokenStream, error)

	// Model returns the configured model name.
	Model() string
}

// EmbeddingClient generates embedding vectors for semantic search.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
}

// Compile-time interface checks.
var (
	_ CompletionClient = (*Client)(nil)
	_ CompletionClient = (*AnthropicClient)(nil)
	_ EmbeddingClient  = (*Client)(nil)
)
