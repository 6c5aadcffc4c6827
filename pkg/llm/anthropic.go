package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/retry"
)

// AnthropicClient adapts the Anthropic Messages API to the
// CompletionClient interface.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates a completion client backed by Anthropic.
func NewAnthropicClient(apiKey, model string, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("llm"),
	}, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

func (c *AnthropicClient) messagesRequest(req CompletionRequest) anthropic.MessagesRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	temperature := float32(req.Temperature)
	return anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(req.Prompt),
		},
	}
}

// Complete generates the full response text for a prompt.
func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := retry.DoWithResult(ctx, nil, func() (anthropic.MessagesResponse, error) {
		resp, err := c.client.CreateMessages(ctx, c.messagesRequest(req))
		if err != nil {
			return resp, ClassifyError(err)
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}
	return resp.GetFirstContentText(), nil
}

// StreamCompletion starts a completion and returns a cancellable stream of
// text chunks.
func (c *AnthropicClient) StreamCompletion(ctx context.Context, req CompletionRequest) (*TokenStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream := newTokenStream(cancel)

	go func() {
		_, err := c.client.CreateMessagesStream(streamCtx, anthropic.MessagesStreamRequest{
			MessagesRequest: c.messagesRequest(req),
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				if data.Delta.Text != nil {
					stream.emit(streamCtx, *data.Delta.Text)
				}
			},
		})
		if err != nil {
			stream.finish(ClassifyError(err))
			return
		}
		stream.finish(nil)
	}()

	return stream, nil
}
