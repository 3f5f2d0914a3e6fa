package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/core/retrieval"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

// ErrEmptyQuestion rejects chat requests without a question.
var ErrEmptyQuestion = errors.New("question is required")

type ChatRequest struct {
	OwnerID      string
	Question     string
	EmbeddingKey string
}

// ContextResult is the assembled prompt context and where it came from.
type ContextResult struct {
	Strategy  string                 `json:"strategy"`
	Fallbacks []string               `json:"fallbacks,omitempty"`
	Passages  []models.ScoredPassage `json:"passages"`
	Context   string                 `json:"context"`
}

type ChatAnswer struct {
	Answer string `json:"answer"`
	ContextResult
}

// ChatService answers questions from an owner's documents.
type ChatService struct {
	docs      core.DocumentStore
	retriever *retrieval.Chain
	generator core.LLMProvider
	policy    retrieval.InstructionPolicy
	maxTokens int
	logger    *slog.Logger
}

func NewChatService(docs core.DocumentStore, retriever *retrieval.Chain, generator core.LLMProvider, policy retrieval.InstructionPolicy, maxTokens int, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		docs:      docs,
		retriever: retriever,
		generator: generator,
		policy:    policy,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// BuildContext retrieves passages and assembles them under the instruction
// policy without calling a generator.
func (s *ChatService) BuildContext(ctx context.Context, req ChatRequest) (*ContextResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if req.OwnerID == "" {
		return nil, errors.New("owner id is required")
	}

	files, err := s.fileContexts(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	res, err := s.retriever.Retrieve(ctx, retrieval.Query{
		OwnerID:      req.OwnerID,
		Text:         question,
		EmbeddingKey: req.EmbeddingKey,
		MaxTokens:    s.maxTokens,
		Files:        files,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	s.logger.Info("ChatService: context built",
		"owner", req.OwnerID,
		"strategy", res.Strategy,
		"passages", len(res.Passages),
		"fallbacks", res.Fallbacks,
	)
	return &ContextResult{
		Strategy:  res.Strategy,
		Fallbacks: res.Fallbacks,
		Passages:  res.Passages,
		Context:   retrieval.Assemble(res.Passages, s.policy),
	}, nil
}

// Ask builds the context and sends it as the system prompt.
func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (*ChatAnswer, error) {
	if s.generator == nil {
		return nil, &core.ConfigurationError{Setting: "LLM_PROVIDERS", Err: errors.New("no generator configured")}
	}
	cr, err := s.BuildContext(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, cr.Context, strings.TrimSpace(req.Question))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &ChatAnswer{Answer: answer, ContextResult: *cr}, nil
}

// fileContexts feeds the keyword strategy with every document that has text.
func (s *ChatService) fileContexts(ctx context.Context, ownerID string) ([]models.FileContext, error) {
	docs, err := s.docs.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	files := make([]models.FileContext, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.RawContent) == "" {
			continue
		}
		files = append(files, models.FileContext{Name: d.Name, Content: d.RawContent})
	}
	return files, nil
}
