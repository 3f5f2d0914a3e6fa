package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

const (
	DefaultGeminiEmbedModel = "text-embedding-004"
	DefaultGeminiEmbedDim   = 768
)

// GeminiEmbedderFactory opens one Gemini client per caller key.
type GeminiEmbedderFactory struct {
	Model string
	Dim   int
}

func (f GeminiEmbedderFactory) NewEmbeddingProvider(ctx context.Context, apiKey string) (core.EmbeddingProvider, error) {
	return NewGeminiEmbedder(ctx, apiKey, f.Model, f.Dim)
}

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, &core.ConfigurationError{Setting: "GEMINI_API_KEY", Err: core.ErrNoEmbeddingKey}
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = DefaultGeminiEmbedModel
	}
	if dim <= 0 {
		dim = DefaultGeminiEmbedDim
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Dimensions() int { return g.dim }

// Embed sends one EmbedContent request for text.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	return resp.Embedding.Values, nil
}

var (
	_ core.EmbeddingProvider        = (*GeminiEmbedder)(nil)
	_ core.EmbeddingProviderFactory = GeminiEmbedderFactory{}
)
