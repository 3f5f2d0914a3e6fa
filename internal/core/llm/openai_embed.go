package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

const (
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultOpenAIEmbedModel = "text-embedding-3-small"
)

var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedderFactory builds embedders for any OpenAI compatible
// /embeddings endpoint.
type OpenAIEmbedderFactory struct {
	BaseURL string
	Model   string
	Dim     int
	Client  *http.Client
}

func (f OpenAIEmbedderFactory) NewEmbeddingProvider(_ context.Context, apiKey string) (core.EmbeddingProvider, error) {
	if apiKey == "" {
		return nil, &core.ConfigurationError{Setting: "OPENAI_API_KEY", Err: core.ErrNoEmbeddingKey}
	}
	e := &OpenAIEmbedder{
		client:  f.Client,
		baseURL: strings.TrimRight(f.BaseURL, "/"),
		apiKey:  apiKey,
		model:   f.Model,
		dim:     f.Dim,
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: 60 * time.Second}
	}
	if e.baseURL == "" {
		e.baseURL = DefaultOpenAIBaseURL
	}
	if e.model == "" {
		e.model = DefaultOpenAIEmbedModel
	}
	if e.dim <= 0 {
		e.dim = openAIDimensions[e.model]
	}
	if e.dim <= 0 {
		e.dim = 1536
	}
	return e, nil
}

type OpenAIEmbedder struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	dim     int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dim }
func (e *OpenAIEmbedder) Close() error    { return nil }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{Model: e.model, Input: []string{text}}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		reqBody.Dimensions = e.dim
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out embeddingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai error (status %d)", resp.StatusCode)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return out.Data[0].Embedding, nil
}

var (
	_ core.EmbeddingProvider        = (*OpenAIEmbedder)(nil)
	_ core.EmbeddingProviderFactory = OpenAIEmbedderFactory{}
)
