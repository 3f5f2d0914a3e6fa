package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

// Result is the outcome of a chained retrieval.
type Result struct {
	Strategy  string                 `json:"strategy"`
	Passages  []models.ScoredPassage `json:"passages"`
	Fallbacks []string               `json:"fallbacks,omitempty"`
}

// Chain runs strategies in a fixed order. A strategy that fails with a
// retrieval or configuration error, or finds nothing, hands over to the next.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

func (c *Chain) Retrieve(ctx context.Context, q Query) (*Result, error) {
	if len(c.strategies) == 0 {
		return nil, errors.New("no retrieval strategies configured")
	}

	res := &Result{}
	var (
		errs     []error
		answered bool
	)
	for _, s := range c.strategies {
		passages, err := s.Retrieve(ctx, q)
		if err != nil {
			if !recoverable(err) {
				return nil, err
			}
			c.logger.Warn("Retrieval: strategy failed, falling back", "strategy", s.Name(), "owner", q.OwnerID, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			res.Fallbacks = append(res.Fallbacks, s.Name())
			continue
		}

		answered = true
		if len(passages) == 0 {
			c.logger.Info("Retrieval: no passages, falling back", "strategy", s.Name(), "owner", q.OwnerID)
			res.Fallbacks = append(res.Fallbacks, s.Name())
			continue
		}
		res.Strategy = s.Name()
		res.Passages = passages
		return res, nil
	}

	// Nothing found is a valid answer as long as one strategy ran cleanly.
	if !answered {
		return nil, errors.Join(errs...)
	}
	return res, nil
}

func recoverable(err error) bool {
	var rerr *core.RetrievalError
	var cerr *core.ConfigurationError
	return errors.As(err, &rerr) || errors.As(err, &cerr)
}
