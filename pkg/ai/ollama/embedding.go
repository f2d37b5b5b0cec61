package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/graphmesh/graphmesh/pkg/ai"
)

const defaultDimensions = 768

// GenerateEmbedding creates a vector embedding for the given input text using
// the configured embedding model on Ollama.
//
// Empty input returns a zero vector of the configured dimension so callers
// never have to special-case blank descriptions.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	dim := c.embeddingDimensions
	if dim <= 0 {
		dim = defaultDimensions
	}
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, dim), nil
	}

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	res, err := c.Client.Embed(ctx, req)
	if err != nil {
		return nil, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(res.Embeddings) != 1 {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want 1", len(res.Embeddings))
	}
	return res.Embeddings[0], nil
}
