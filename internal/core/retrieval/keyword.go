package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-kb/internal/models"
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

var _ Strategy = (*KeywordStrategy)(nil)

// KeywordStrategy works on raw document text and needs no index. When the
// documents exceed the budget, paragraphs are ranked by how many query
// keywords they contain. Ranking discards document order.
type KeywordStrategy struct {
	estimator TokenEstimator
}

func NewKeywordStrategy(estimator TokenEstimator) *KeywordStrategy {
	if estimator == nil {
		estimator = CharEstimator{}
	}
	return &KeywordStrategy{estimator: estimator}
}

func (k *KeywordStrategy) Name() string { return "keyword" }

// BuildContext returns the whole corpus when it fits maxTokens, otherwise
// the best scoring paragraphs joined by PassageSeparator.
func (k *KeywordStrategy) BuildContext(files []models.FileContext, query string, maxTokens int) string {
	if len(files) == 0 || maxTokens <= 0 {
		return ""
	}

	blocks := fileBlocks(files)
	all := make([]string, len(blocks))
	for i, b := range blocks {
		all[i] = b.Content
	}
	if text := strings.Join(all, "\n\n"); k.estimator.Estimate(text) <= maxTokens {
		return text
	}

	picked := k.rank(blocks, query, maxTokens)
	parts := make([]string, len(picked))
	for i, p := range picked {
		parts[i] = p.Content
	}
	return strings.Join(parts, PassageSeparator)
}

func (k *KeywordStrategy) Retrieve(ctx context.Context, q Query) ([]models.ScoredPassage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(q.Files) == 0 || q.MaxTokens <= 0 {
		return nil, nil
	}

	blocks := fileBlocks(q.Files)
	if whole := fitBudget(blocks, q.MaxTokens, k.estimator); len(whole) == len(blocks) {
		return whole, nil
	}
	return k.rank(blocks, q.Text, q.MaxTokens), nil
}

// rank scores every paragraph and greedily keeps the best ones. If even the
// best paragraph is too large, its prefix is returned.
func (k *KeywordStrategy) rank(blocks []models.ScoredPassage, query string, maxTokens int) []models.ScoredPassage {
	keywords := queryKeywords(query)

	var paras []models.ScoredPassage
	for _, b := range blocks {
		for _, p := range paragraphSplit.Split(b.Content, -1) {
			if strings.TrimSpace(p) == "" {
				continue
			}
			paras = append(paras, models.ScoredPassage{
				Content:      p,
				Score:        float64(keywordScore(p, keywords)),
				DocumentName: b.DocumentName,
				Position:     len(paras),
			})
		}
	}
	if len(paras) == 0 {
		return nil
	}

	sort.SliceStable(paras, func(i, j int) bool { return paras[i].Score > paras[j].Score })

	picked := fitBudget(paras, maxTokens, k.estimator)
	if len(picked) == 0 {
		top := paras[0]
		top.Content = truncateTokens(top.Content, maxTokens)
		if top.Content == "" {
			return nil
		}
		picked = []models.ScoredPassage{top}
	}
	return picked
}

// fileBlocks renders each file as "[name]\ncontent".
func fileBlocks(files []models.FileContext) []models.ScoredPassage {
	out := make([]models.ScoredPassage, 0, len(files))
	for i, f := range files {
		out = append(out, models.ScoredPassage{
			Content:      fmt.Sprintf("[%s]\n%s", f.Name, f.Content),
			DocumentName: f.Name,
			Position:     i,
		})
	}
	return out
}

// queryKeywords lowercases and folds the query, keeping distinct words longer
// than two characters.
func queryKeywords(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(NormalizeArabic(query))) {
		if utf8.RuneCountInString(w) <= 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func keywordScore(paragraph string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	text := strings.ToLower(NormalizeArabic(paragraph))
	score := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			score++
		}
	}
	return score
}
