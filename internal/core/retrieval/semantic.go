package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

const (
	DefaultSimilarityThreshold = 0.35
	DefaultResultLimit         = 5
)

// SemanticOptions tunes vector search.
//
// Threshold:    minimum cosine similarity; low to favour recall in Arabic.
// Limit:        maximum passages per query.
// EmbedTimeout: deadline for embedding the query.
type SemanticOptions struct {
	Threshold    float64
	Limit        int
	EmbedTimeout time.Duration
	Estimator    TokenEstimator
}

var _ Strategy = (*SemanticStrategy)(nil)

// SemanticStrategy embeds the query and searches the owner's segments.
type SemanticStrategy struct {
	segments  core.SegmentStore
	embedders core.EmbeddingProviderFactory
	opts      SemanticOptions
	logger    *slog.Logger
}

func NewSemanticStrategy(segments core.SegmentStore, embedders core.EmbeddingProviderFactory, opts SemanticOptions, logger *slog.Logger) *SemanticStrategy {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultSimilarityThreshold
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultResultLimit
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 30 * time.Second
	}
	if opts.Estimator == nil {
		opts.Estimator = CharEstimator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticStrategy{segments: segments, embedders: embedders, opts: opts, logger: logger}
}

func (s *SemanticStrategy) Name() string { return "semantic" }

// SearchSemantic returns passage texts for query, most relevant first.
func (s *SemanticStrategy) SearchSemantic(ctx context.Context, ownerID, query, embeddingKey string, limit int) ([]string, error) {
	passages, err := s.search(ctx, ownerID, query, embeddingKey, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Content
	}
	return out, nil
}

func (s *SemanticStrategy) Retrieve(ctx context.Context, q Query) ([]models.ScoredPassage, error) {
	passages, err := s.search(ctx, q.OwnerID, q.Text, q.EmbeddingKey, s.opts.Limit)
	if err != nil {
		return nil, err
	}
	return fitBudget(passages, q.MaxTokens, s.opts.Estimator), nil
}

func (s *SemanticStrategy) search(ctx context.Context, ownerID, query, embeddingKey string, limit int) ([]models.ScoredPassage, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if embeddingKey == "" {
		return nil, &core.ConfigurationError{Setting: "EMBEDDING_API_KEY", Err: core.ErrNoEmbeddingKey}
	}
	normalized := NormalizeArabic(query)
	if normalized == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.opts.Limit
	}

	embedder, err := s.embedders.NewEmbeddingProvider(ctx, embeddingKey)
	if err != nil {
		return nil, &core.RetrievalError{Strategy: s.Name(), Err: fmt.Errorf("create embedder: %w", err)}
	}
	defer embedder.Close()

	embedCtx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	vec, err := embedder.Embed(embedCtx, normalized)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.RetrievalError{Strategy: s.Name(), Err: fmt.Errorf("embed query: %w", err)}
	}

	passages, err := s.segments.SearchSegments(ctx, ownerID, vec, s.opts.Threshold, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.RetrievalError{Strategy: s.Name(), Err: fmt.Errorf("search segments: %w", err)}
	}

	s.logger.Debug("SemanticStrategy: search done", "owner", ownerID, "hits", len(passages))
	return passages, nil
}
