package core

import "context"

// EmbeddingProvider turns one text into one vector. Implementations make a
// single upstream call per text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// EmbeddingProviderFactory builds a provider bound to a caller supplied key.
// Keys are per owner, so providers are not shared between requests.
type EmbeddingProviderFactory interface {
	NewEmbeddingProvider(ctx context.Context, apiKey string) (EmbeddingProvider, error)
}

type LLMProvider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
