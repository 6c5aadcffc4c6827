package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/retry"
)

// Client provides access to OpenAI-compatible completion and embedding
// endpoints.
type Client struct {
	client         *openai.Client
	endpoint       string
	model          string
	embeddingModel string
	logger         *zap.Logger
}

// Config holds configuration for creating an LLM client.
type Config struct {
	Endpoint       string // Base URL, e.g. "https://api.openai.com/v1"
	Model          string // Completion model name
	EmbeddingModel string // Embedding model name (embeddings only)
	APIKey         string // Optional for local endpoints
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" && cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client:         openai.NewClientWithConfig(clientConfig),
		endpoint:       cfg.Endpoint,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		logger:         logger.Named("llm"),
	}, nil
}

// Model returns the configured completion model name.
func (c *Client) Model() string {
	return c.model
}

// Complete generates the full response text for a prompt. Transient
// failures retry inline; the caller owns the deadline.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	start := time.Now()

	resp, err := retry.DoWithResult(ctx, nil, func() (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, c.chatRequest(req, false))
		if err != nil {
			return resp, ClassifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeParse, "completion returned no choices", false, nil)
	}

	c.logger.Debug("Completion finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return resp.Choices[0].Message.Content, nil
}

// StreamCompletion starts a completion and returns a cancellable stream of
// text chunks. The stream's channel is closed when the completion ends,
// fails, or is cancelled; accumulated text stays available either way.
func (c *Client) StreamCompletion(ctx context.Context, req CompletionRequest) (*TokenStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	upstream, err := c.client.CreateChatCompletionStream(streamCtx, c.chatRequest(req, true))
	if err != nil {
		cancel()
		return nil, ClassifyError(err)
	}

	stream := newTokenStream(cancel)
	go func() {
		defer upstream.Close()
		for {
			resp, err := upstream.Recv()
			if errors.Is(err, io.EOF) {
				stream.finish(nil)
				return
			}
			if err != nil {
				stream.finish(ClassifyError(err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				stream.emit(streamCtx, delta)
			}
		}
	}()

	return stream, nil
}

func (c *Client) chatRequest(req CompletionRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

// CreateEmbedding generates an embedding vector for a single input.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CreateEmbeddings generates embeddings for multiple inputs.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := retry.DoWithResult(ctx, nil, func() (openai.EmbeddingResponse, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: inputs,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return resp, ClassifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, NewError(ErrorTypeParse,
			fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Data)), false, nil)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
