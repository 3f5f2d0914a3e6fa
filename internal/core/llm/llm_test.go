package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	f := OpenAIEmbedderFactory{BaseURL: srv.URL + "/", Dim: 3}
	p, err := f.NewEmbeddingProvider(context.Background(), "sk-test")
	require.NoError(t, err)
	defer p.Close()

	vec, err := p.Embed(context.Background(), "مرحبا")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, p.Dimensions())
	assert.Equal(t, []string{"مرحبا"}, got.Input)
	assert.Equal(t, DefaultOpenAIEmbedModel, got.Model)
	assert.Equal(t, 3, got.Dimensions)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	p, err := OpenAIEmbedderFactory{BaseURL: srv.URL}.NewEmbeddingProvider(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimensions())

	_, err = p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")

	_, err = OpenAIEmbedderFactory{}.NewEmbeddingProvider(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrNoEmbeddingKey)
}

func TestGeminiEmbedder_RequiresKey(t *testing.T) {
	_, err := GeminiEmbedderFactory{}.NewEmbeddingProvider(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrNoEmbeddingKey)
	var cfgErr *core.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestOllamaLLM_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"الإجابة"},"done":true}`))
	}))
	defer srv.Close()

	o := NewOllamaLLM(srv.URL, "", time.Second)
	out, err := o.Generate(context.Background(), "be brief", "question")
	require.NoError(t, err)
	assert.Equal(t, "الإجابة", out)
	assert.Equal(t, DefaultOllamaModel, got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOllamaLLM_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaLLM(srv.URL, "missing", time.Second).Generate(context.Background(), "", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	blank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  "}}`))
	}))
	defer blank.Close()

	_, err = NewOllamaLLM(blank.URL, "m", time.Second).Generate(context.Background(), "", "q")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

type stubLLM struct {
	name  string
	out   string
	err   error
	calls int
}

func (s *stubLLM) Name() string { return s.name }
func (s *stubLLM) Generate(context.Context, string, string) (string, error) {
	s.calls++
	return s.out, s.err
}

func TestChain_FallsBackInOrder(t *testing.T) {
	first := &stubLLM{name: "gemini", err: errors.New("quota exceeded")}
	second := &stubLLM{name: "ollama", out: "answer"}
	third := &stubLLM{name: "spare", out: "unused"}

	c := NewChain(nil, first, nil, second, third)
	assert.Equal(t, []string{"gemini", "ollama", "spare"}, c.Providers())

	out, err := c.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Zero(t, third.calls)
}

func TestChain_AllFail(t *testing.T) {
	c := NewChain(nil,
		&stubLLM{name: "a", err: ErrEmptyCompletion},
		&stubLLM{name: "b", err: errors.New("connection refused")},
	)
	_, err := c.Generate(context.Background(), "", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
	assert.Contains(t, err.Error(), "b: connection refused")

	_, err = NewChain(nil).Generate(context.Background(), "", "q")
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestChain_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	second := &stubLLM{name: "b", out: "late"}
	c := NewChain(nil, &stubLLM{name: "a", err: context.Canceled}, second)

	_, err := c.Generate(ctx, "", "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, second.calls)
}
