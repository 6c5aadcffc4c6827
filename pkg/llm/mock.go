package llm

import "context"

// MockCompletionClient is a configurable mock for testing generation
// pipelines. Set the function fields to control behavior.
type MockCompletionClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns empty string and nil error.
	CompleteFunc func(ctx context.Context, req CompletionRequest) (string, error)

	// StreamFunc is called when StreamCompletion is invoked. If nil, the
	// mock streams Chunks and finishes with StreamErr.
	StreamFunc func(ctx context.Context, req CompletionRequest) (*TokenStream, error)

	// Chunks are emitted by the default stream behavior.
	Chunks []string

	// StreamErr terminates the default stream after Chunks, if set.
	StreamErr error

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification.
	CompleteCalls int
	StreamCalls   int
	LastRequest   CompletionRequest
}

// NewMockCompletionClient creates a mock with sensible defaults.
func NewMockCompletionClient() *MockCompletionClient {
	return &MockCompletionClient{ModelName: "mock-model"}
}

// Complete implements CompletionClient.
func (m *MockCompletionClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.CompleteCalls++
	m.LastRequest = req
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// StreamCompletion implements CompletionClient.
func (m *MockCompletionClient) StreamCompletion(ctx context.Context, req CompletionRequest) (*TokenStream, error) {
	m.StreamCalls++
	m.LastRequest = req
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := newTokenStream(cancel)
	go func() {
		for _, chunk := range m.Chunks {
			select {
			case <-streamCtx.Done():
				stream.finish(nil)
				return
			default:
			}
			stream.emit(streamCtx, chunk)
		}
		stream.finish(m.StreamErr)
	}()
	return stream, nil
}

// Model implements CompletionClient.
func (m *MockCompletionClient) Model() string {
	return m.ModelName
}

var _ CompletionClient = (*MockCompletionClient)(nil)

// MockEmbeddingClient is a configurable mock for embedding calls.
type MockEmbeddingClient struct {
	// EmbedFunc is called per input. If nil, returns a fixed unit vector.
	EmbedFunc func(ctx context.Context, input string) ([]float32, error)

	EmbeddingCalls int
}

// CreateEmbedding implements EmbeddingClient.
func (m *MockEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	m.EmbeddingCalls++
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, input)
	}
	return []float32{1, 0, 0}, nil
}

// CreateEmbeddings implements EmbeddingClient.
func (m *MockEmbeddingClient) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, err := m.CreateEmbedding(ctx, input)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

var _ EmbeddingClient = (*MockEmbeddingClient)(nil)
