package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// ErrNoProviders is returned by a chain with nothing configured.
var ErrNoProviders = errors.New("no generation providers configured")

// Chain tries providers in a fixed order and returns the first answer.
type Chain struct {
	providers []core.LLMProvider
	logger    *slog.Logger
}

func NewChain(logger *slog.Logger, providers ...core.LLMProvider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	var ps []core.LLMProvider
	for _, p := range providers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &Chain{providers: ps, logger: logger}
}

func (c *Chain) Name() string { return "chain" }

// Providers lists the chain's provider names in call order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

func (c *Chain) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrNoProviders
	}

	var errs []error
	for _, p := range c.providers {
		out, err := p.Generate(ctx, systemPrompt, userPrompt)
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.logger.Warn("LLM chain: provider failed, trying next", "provider", p.Name(), "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return "", fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

var _ core.LLMProvider = (*Chain)(nil)
