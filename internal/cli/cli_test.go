package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/markdave123-py/contexta-kb/internal/api/middlewares"
	"github.com/markdave123-py/contexta-kb/internal/core"
	db "github.com/markdave123-py/contexta-kb/internal/core/database"
	"github.com/markdave123-py/contexta-kb/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-kb/internal/core/retrieval"
	"github.com/markdave123-py/contexta-kb/internal/services"
)

type countEmbedder struct{}

func (countEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	text = strings.ToLower(text)
	return []float32{float32(strings.Count(text, "refund")), float32(strings.Count(text, "shipping"))}, nil
}
func (countEmbedder) Dimensions() int { return 2 }
func (countEmbedder) Close() error    { return nil }

type countFactory struct{}

func (countFactory) NewEmbeddingProvider(context.Context, string) (core.EmbeddingProvider, error) {
	return countEmbedder{}, nil
}

type cannedLLM struct{}

func (cannedLLM) Name() string { return "canned" }
func (cannedLLM) Generate(context.Context, string, string) (string, error) {
	return "Within 30 days.", nil
}

func setup(t *testing.T) {
	t.Helper()
	store := db.NewMemoryClient(2)
	cfg := ingestion_engine.DefaultIngestConfig()
	cfg.Index.Dimensions = 2
	indexer, err := ingestion_engine.NewIndexer(store, countFactory{}, cfg.Index, nil)
	require.NoError(t, err)
	pipeline := ingestion_engine.NewPipeline(store, store,
		ingestion_engine.NewExtractor(nil, nil, cfg.Extractor, nil),
		ingestion_engine.NewDocumentIngestor(store, indexer, cfg, nil), cfg, nil)
	chain := retrieval.NewChain(nil,
		retrieval.NewSemanticStrategy(store, countFactory{}, retrieval.SemanticOptions{}, nil),
		retrieval.NewKeywordStrategy(nil),
	)

	SetServices(
		services.NewDocumentService(pipeline, store, nil),
		services.NewChatService(store, chain, cannedLLM{}, retrieval.DefaultInstructionPolicy(), 1000, nil),
	)
	t.Cleanup(func() { SetServices(nil, nil) })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ownerID, embeddingKey, jwtSecret, outputJSON = "local", "key", "", false

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFiles(t *testing.T, files map[string]string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		paths = append(paths, p)
	}
	return paths
}

func TestIngestDocsDelete(t *testing.T) {
	setup(t)
	paths := writeFiles(t, map[string]string{
		"refunds.txt": "Refunds are accepted within 30 days.",
		"blob.txt":    "\x00\x01binary",
	})

	out, err := run(t, append([]string{"ingest"}, paths...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "refunds.txt: indexed (1/1 chunks)")
	assert.Contains(t, out, "failed blob.txt")

	out, err = run(t, "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "refunds.txt")
	assert.Contains(t, out, "indexed")

	out, err = run(t, "docs", "--owner", "someone-else")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents found.")

	out, err = run(t, "reindex", "refunds.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "refunds.txt: indexed (1/1 chunks)")

	out, err = run(t, "delete", "refunds.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted refunds.txt")

	_, err = run(t, "delete", "refunds.txt")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIngest_PrintsProgress(t *testing.T) {
	setup(t)
	paths := writeFiles(t, map[string]string{"refunds.txt": "Refunds are accepted within 30 days."})

	out, err := run(t, append([]string{"ingest"}, paths...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "\r  refunds.txt: 1/1\n")

	out, err = run(t, append([]string{"ingest", "--json"}, paths...)...)
	require.NoError(t, err)
	assert.NotContains(t, out, "\r")
}

func TestIngest_AllFailed(t *testing.T) {
	setup(t)
	paths := writeFiles(t, map[string]string{"blob.txt": "\x00\x00"})
	_, err := run(t, append([]string{"ingest"}, paths...)...)
	assert.Error(t, err)

	_, err = run(t, "ingest", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestContextAndAsk(t *testing.T) {
	setup(t)
	paths := writeFiles(t, map[string]string{
		"refunds.txt":  "Refunds are accepted within 30 days.",
		"shipping.txt": "Shipping takes a week.",
	})
	_, err := run(t, append([]string{"ingest"}, paths...)...)
	require.NoError(t, err)

	out, err := run(t, "context", "refund", "window?")
	require.NoError(t, err)
	assert.Contains(t, out, "# strategy: semantic")
	assert.Contains(t, out, "Refunds are accepted")

	out, err = run(t, "ask", "what", "is", "the", "refund", "window?")
	require.NoError(t, err)
	assert.Contains(t, out, "Within 30 days.")
	assert.Contains(t, out, "- refunds.txt")

	out, err = run(t, "context", "--json", "refund?")
	require.NoError(t, err)
	assert.Contains(t, out, `"strategy": "semantic"`)
}

func TestCommandsWithoutServices(t *testing.T) {
	SetServices(nil, nil)
	_, err := run(t, "docs")
	assert.ErrorContains(t, err, "not configured")
	_, err = run(t, "ask", "hello")
	assert.ErrorContains(t, err, "not configured")
}

func TestToken(t *testing.T) {
	_, err := run(t, "token")
	assert.ErrorContains(t, err, "JWT_SECRET")

	buf := new(bytes.Buffer)
	ownerID, jwtSecret, outputJSON = "alice", "secret", false
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"token"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	tok := strings.TrimSpace(buf.String())
	assert.NotEmpty(t, tok)
	issued, err := middleware.IssueToken("secret", "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, len(strings.Split(issued, ".")), len(strings.Split(tok, ".")))
}

func TestStrategyLabel(t *testing.T) {
	assert.Equal(t, "semantic", strategyLabel("semantic", nil))
	assert.Equal(t, "keyword, after semantic", strategyLabel("keyword", []string{"semantic"}))
	assert.Equal(t, "none, after semantic, keyword", strategyLabel("", []string{"semantic", "keyword"}))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KiB", humanSize(1536))
	assert.Equal(t, "2.0 MiB", humanSize(2<<20))
}
