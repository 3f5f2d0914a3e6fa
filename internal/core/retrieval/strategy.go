package retrieval

import (
	"context"

	"github.com/markdave123-py/contexta-kb/internal/models"
)

// PassageSeparator is placed between passages in every assembled context.
const PassageSeparator = "\n\n---\n\n"

// Query is one retrieval request. Files is the raw document text used by the
// keyword strategy; the semantic strategy ignores it.
type Query struct {
	OwnerID      string
	Text         string
	EmbeddingKey string
	MaxTokens    int
	Files        []models.FileContext
}

// Strategy selects passages for a query. Implementations never return more
// than Query.MaxTokens estimated tokens once joined with PassageSeparator.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, q Query) ([]models.ScoredPassage, error)
}

// fitBudget keeps passages in order, skipping any that would overflow
// maxTokens. One separator is counted between neighbours.
func fitBudget(passages []models.ScoredPassage, maxTokens int, est TokenEstimator) []models.ScoredPassage {
	sep := est.Estimate(PassageSeparator)
	used := 0
	var out []models.ScoredPassage
	for _, p := range passages {
		cost := est.Estimate(p.Content)
		if len(out) > 0 {
			cost += sep
		}
		if used+cost > maxTokens {
			continue
		}
		used += cost
		out = append(out, p)
	}
	return out
}
