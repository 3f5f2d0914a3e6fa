package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

const (
	collectionName = "kb_segments"

	metaOwner    = "user_id"
	metaDocument = "document_name"
	metaPosition = "position"
	metaHash     = "content_hash"
)

var _ core.SegmentStore = (*ChromemStore)(nil)

// ChromemStore keeps segments in an embedded chromem collection. With a path
// the collection is persisted to disk, otherwise it lives in memory.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dim        int
	logger     *slog.Logger
}

func NewChromemStore(path string, dim int, logger *slog.Logger) (*ChromemStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	s := &ChromemStore{db: db, collection: collection, dim: dim, logger: logger}
	// chromem compares vector lengths at query time, so a probe against
	// existing segments exposes a collection built for another model.
	if collection.Count() > 0 {
		if _, err := s.query(context.Background(), s.probe(), 1, nil); err != nil {
			return nil, &core.ConfigurationError{
				Setting: "EMBED_DIM",
				Err:     fmt.Errorf("%w: %v", core.ErrDimensionMismatch, err),
			}
		}
	}

	logger.Info("ChromemStore: collection ready", "path", path, "segments", collection.Count())
	return s, nil
}

func (s *ChromemStore) InsertSegments(ctx context.Context, chunks []models.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	metas := make([]map[string]string, len(chunks))
	contents := make([]string, len(chunks))

	for i, ch := range chunks {
		if len(ch.Embedding) != s.dim {
			return fmt.Errorf("chunk %d: %w: got %d want %d", ch.Position, core.ErrDimensionMismatch, len(ch.Embedding), s.dim)
		}
		meta := make(map[string]string, len(ch.Metadata)+4)
		for k, v := range ch.Metadata {
			meta[k] = v
		}
		meta[metaOwner] = ch.OwnerID
		meta[metaDocument] = ch.DocumentName
		meta[metaPosition] = strconv.Itoa(ch.Position)
		meta[metaHash] = ch.ContentHash

		ids[i] = ch.ID
		vectors[i] = append([]float32(nil), ch.Embedding...)
		metas[i] = meta
		contents[i] = ch.Content
	}

	if err := s.collection.Add(ctx, ids, vectors, metas, contents); err != nil {
		return fmt.Errorf("chromem add: %w", err)
	}
	return nil
}

func (s *ChromemStore) SearchSegments(ctx context.Context, ownerID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredPassage, error) {
	if len(queryVec) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", core.ErrDimensionMismatch, len(queryVec), s.dim)
	}

	results, err := s.query(ctx, queryVec, limit, map[string]string{metaOwner: ownerID})
	if err != nil {
		return nil, err
	}

	out := make([]models.ScoredPassage, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < threshold {
			continue
		}
		pos, _ := strconv.Atoi(r.Metadata[metaPosition])
		out = append(out, models.ScoredPassage{
			Content:      r.Content,
			Score:        score,
			DocumentName: r.Metadata[metaDocument],
			Position:     pos,
		})
	}
	return out, nil
}

func (s *ChromemStore) DeleteSegments(ctx context.Context, ownerID, documentName string) (int, error) {
	where := map[string]string{metaOwner: ownerID, metaDocument: documentName}
	matches, err := s.query(ctx, s.probe(), s.collection.Count(), where)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		return 0, fmt.Errorf("chromem delete: %w", err)
	}
	return len(matches), nil
}

func (s *ChromemStore) CountSegments(ctx context.Context, ownerID, documentName, contentHash string) (int, error) {
	where := map[string]string{metaOwner: ownerID, metaDocument: documentName, metaHash: contentHash}
	matches, err := s.query(ctx, s.probe(), s.collection.Count(), where)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// Count reports the number of stored segments across all owners.
func (s *ChromemStore) Count() int { return s.collection.Count() }

// query clamps n to the collection size; chromem rejects larger requests.
func (s *ChromemStore) query(ctx context.Context, vec []float32, n int, where map[string]string) ([]chromem.Result, error) {
	total := s.collection.Count()
	if total == 0 {
		return nil, nil
	}
	if n <= 0 || n > total {
		n = total
	}
	results, err := s.collection.QueryEmbedding(ctx, vec, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	return results, nil
}

// probe is a unit vector used when only the where filter matters.
func (s *ChromemStore) probe() []float32 {
	v := make([]float32, s.dim)
	v[0] = 1
	return v
}
