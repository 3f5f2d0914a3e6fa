package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/markdave123-py/contexta-kb/internal/api/middlewares"
	"github.com/markdave123-py/contexta-kb/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		EmbedProvider:  "openai",
		EmbedDim:       8,
		VectorBackend:  "memory",
		JWTSecret:      "secret",
		Port:           "0",
		AllowedOrigins: []string{"http://localhost:5173"},
		Pipeline: config.Pipeline{
			MaxChunkSize:        500,
			ChunkOverlap:        50,
			MaxContextTokens:    1000,
			SimilarityThreshold: 0.35,
			ResultLimit:         5,
			MaxPDFPages:         10,
			MaxOCRPages:         2,
			MaxFileSizeBytes:    1 << 20,
			EmbedBatchSize:      2,
			FlushSize:           4,
			EmbedTimeout:        time.Second,
			Workers:             1,
			InstructionPolicy:   []string{"Answer briefly."},
		},
	}
}

func TestIngestConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Pipeline.EmbedRPS = 3
	c := IngestConfig(cfg)

	assert.Equal(t, 500, c.Index.MaxChunkSize)
	assert.Equal(t, 50, c.Index.ChunkOverlap)
	assert.Equal(t, 2, c.Index.BatchSize)
	assert.Equal(t, 4, c.Index.FlushSize)
	assert.Equal(t, 3.0, c.Index.RequestsPerSecond)
	assert.Equal(t, 8, c.Index.Dimensions)
	assert.Equal(t, 10, c.Extractor.MaxPDFPages)
	assert.Equal(t, 2, c.Extractor.MaxOCRPages)
	assert.Equal(t, int64(1<<20), c.MaxFileSizeBytes)
	require.NoError(t, c.Validate())
}

func TestInstructionPolicy(t *testing.T) {
	cfg := memoryConfig()
	assert.Equal(t, []string{"Answer briefly."}, InstructionPolicy(cfg).Rules)

	cfg.Pipeline.InstructionPolicy = nil
	assert.Len(t, InstructionPolicy(cfg).Rules, 4)
}

func TestNewApp_MemoryBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := NewApp(ctx, memoryConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Objects)
	assert.Empty(t, a.Generator.Providers())
	require.NotNil(t, a.Server)

	h := a.Server.httpServer.Handler

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := appMiddleware.IssueToken("secret", "alice", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestNewApp_ChromemBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.VectorBackend = "chromem"
	cfg.ChromemPath = t.TempDir()
	cfg.LLMProviders = []string{"ollama"}
	cfg.OllamaURL = "http://localhost:11434"

	a, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, []string{"ollama"}, a.Generator.Providers())
}

func TestNewApp_ConfigErrors(t *testing.T) {
	cfg := memoryConfig()
	cfg.EmbedProvider = "cohere"
	_, err := NewApp(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.LLMProviders = []string{"claude"}
	_, err = NewApp(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.VectorBackend = "sqlite"
	_, err = NewApp(context.Background(), cfg, nil)
	assert.Error(t, err)
}
