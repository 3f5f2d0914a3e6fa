package retrieval

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/contexta-kb/internal/models"
)

// NoContextMarker stands in for the passages when nothing was retrieved.
const NoContextMarker = "(no relevant content found)"

// InstructionPolicy is the fixed instruction block placed above the context.
type InstructionPolicy struct {
	Rules         []string
	ContextHeader string
}

// DefaultInstructionPolicy keeps answers grounded in the retrieved content.
func DefaultInstructionPolicy() InstructionPolicy {
	return InstructionPolicy{
		Rules: []string{
			"Answer only from the context below; do not use outside knowledge.",
			"If the answer is not in the context, say clearly that the information is not available in the provided sources.",
			"Do not list all of the data at once; answer the question that was asked.",
			"Reply in the language the user wrote in.",
		},
		ContextHeader: "Context:",
	}
}

// Assemble renders the policy followed by the passages, separated by
// PassageSeparator.
func Assemble(passages []models.ScoredPassage, policy InstructionPolicy) string {
	var b strings.Builder
	for i, rule := range policy.Rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	if len(policy.Rules) > 0 {
		b.WriteString("\n")
	}

	header := policy.ContextHeader
	if header == "" {
		header = "Context:"
	}
	b.WriteString(header)
	b.WriteString("\n")

	if len(passages) == 0 {
		b.WriteString(NoContextMarker)
		return b.String()
	}
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Content
	}
	b.WriteString(strings.Join(parts, PassageSeparator))
	return b.String()
}
