package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-kb/internal/core"
	db "github.com/markdave123-py/contexta-kb/internal/core/database"
	"github.com/markdave123-py/contexta-kb/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-kb/internal/core/retrieval"
)

// topicEmbedder scores text against a fixed vocabulary, one axis per word.
type topicEmbedder struct{}

var topics = []string{"refund", "shipping", "warranty"}

func (topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	vec := make([]float32, len(topics))
	for i, t := range topics {
		vec[i] = float32(strings.Count(text, t))
	}
	return vec, nil
}

func (topicEmbedder) Dimensions() int { return len(topics) }
func (topicEmbedder) Close() error    { return nil }

type topicFactory struct{}

func (topicFactory) NewEmbeddingProvider(context.Context, string) (core.EmbeddingProvider, error) {
	return topicEmbedder{}, nil
}

type recordingLLM struct {
	mu     sync.Mutex
	answer string
	err    error
	system string
	user   string
}

func (r *recordingLLM) Name() string { return "recording" }

func (r *recordingLLM) Generate(_ context.Context, system, user string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.system, r.user = system, user
	return r.answer, r.err
}

type fixture struct {
	store *db.MemoryClient
	docs  *DocumentService
	chat  *ChatService
	llm   *recordingLLM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := db.NewMemoryClient(len(topics))

	cfg := ingestion_engine.DefaultIngestConfig()
	cfg.Index.Dimensions = len(topics)
	indexer, err := ingestion_engine.NewIndexer(store, topicFactory{}, cfg.Index, nil)
	require.NoError(t, err)
	ingestor := ingestion_engine.NewDocumentIngestor(store, indexer, cfg, nil)
	extractor := ingestion_engine.NewExtractor(nil, nil, cfg.Extractor, nil)
	pipeline := ingestion_engine.NewPipeline(store, store, extractor, ingestor, cfg, nil)

	chain := retrieval.NewChain(nil,
		retrieval.NewSemanticStrategy(store, topicFactory{}, retrieval.SemanticOptions{}, nil),
		retrieval.NewKeywordStrategy(nil),
	)
	llm := &recordingLLM{answer: "Refunds are accepted for 30 days."}

	return &fixture{
		store: store,
		docs:  NewDocumentService(pipeline, store, nil),
		chat:  NewChatService(store, chain, llm, retrieval.DefaultInstructionPolicy(), 1000, nil),
		llm:   llm,
	}
}
