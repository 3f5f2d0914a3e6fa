package ingestion_engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

// IndexConfig tunes chunking and embedding.
//
// BatchSize:         concurrent embedding calls per batch (e.g., 5).
// FlushSize:         records buffered before a store write (e.g., 20).
// EmbedTimeout:      deadline for a single embedding call.
// RequestsPerSecond: embedding call rate, 0 for unlimited.
// Dimensions:        expected vector length, 0 to trust the provider.
type IndexConfig struct {
	MaxChunkSize      int
	ChunkOverlap      int
	BatchSize         int
	FlushSize         int
	EmbedTimeout      time.Duration
	RequestsPerSecond float64
	Dimensions        int
}

func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		MaxChunkSize: DefaultMaxChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		BatchSize:    5,
		FlushSize:    20,
		EmbedTimeout: 30 * time.Second,
	}
}

type IndexStatus string

const (
	IndexComplete  IndexStatus = "complete"
	IndexPartial   IndexStatus = "partial"
	IndexFailed    IndexStatus = "failed"
	IndexSkipped   IndexStatus = "skipped"
	IndexUnchanged IndexStatus = "unchanged"
)

// DocumentStatus maps an indexing outcome onto the document lifecycle.
func (s IndexStatus) DocumentStatus() string {
	switch s {
	case IndexComplete, IndexUnchanged:
		return models.StatusIndexed
	case IndexPartial:
		return models.StatusPartial
	case IndexSkipped:
		return models.StatusSkipped
	default:
		return models.StatusFailed
	}
}

// ProgressFunc receives the number of chunks handled so far.
type ProgressFunc func(processed, total int)

type IndexRequest struct {
	OwnerID      string
	DocumentName string
	Content      string
	EmbeddingKey string
	// Replace drops the document's existing segments before indexing.
	Replace    bool
	OnProgress ProgressFunc
}

// IndexReport describes what reached the store. Failures holds one
// *core.IndexingError per lost chunk or failed flush.
type IndexReport struct {
	DocumentName string
	Total        int
	Indexed      int
	Failures     []error
	Status       IndexStatus
	Skip         error
}

func (r *IndexReport) finish() {
	switch {
	case r.Status == IndexSkipped || r.Status == IndexUnchanged:
	case r.Indexed == r.Total:
		r.Status = IndexComplete
	case r.Indexed == 0:
		r.Status = IndexFailed
	default:
		r.Status = IndexPartial
	}
}

// Indexer chunks, embeds and persists document text.
type Indexer struct {
	segments  core.SegmentStore
	embedders core.EmbeddingProviderFactory
	cfg       IndexConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func NewIndexer(segments core.SegmentStore, embedders core.EmbeddingProviderFactory, cfg IndexConfig, logger *slog.Logger) (*Indexer, error) {
	if err := ValidateChunkConfig(cfg.MaxChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 20
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Indexer{
		segments:  segments,
		embedders: embedders,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, cfg.BatchSize),
		logger:    logger,
	}, nil
}

// ContentHash is the idempotency key stored with every chunk of a document.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Index embeds every chunk of req.Content. Per-chunk and per-flush failures
// are recorded in the report; the returned error is reserved for invalid
// configuration and cancellation.
func (x *Indexer) Index(ctx context.Context, req IndexRequest) (*IndexReport, error) {
	report := &IndexReport{DocumentName: req.DocumentName}
	log := x.logger.With("owner", req.OwnerID, "document", req.DocumentName)

	if strings.TrimSpace(req.EmbeddingKey) == "" {
		report.Status = IndexSkipped
		report.Skip = &core.ConfigurationError{Setting: "embedding_key", Err: core.ErrNoEmbeddingKey}
		log.Info("Indexer: indexing skipped, no embedding key")
		return report, nil
	}

	chunks, err := Chunk(req.Content, x.cfg.MaxChunkSize, x.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	report.Total = len(chunks)
	hash := ContentHash(req.Content)

	if req.Replace {
		n, err := x.segments.DeleteSegments(ctx, req.OwnerID, req.DocumentName)
		if err != nil {
			return nil, fmt.Errorf("delete segments: %w", err)
		}
		log.Debug("Indexer: dropped previous segments", "count", n)
	} else {
		stored, err := x.segments.CountSegments(ctx, req.OwnerID, req.DocumentName, hash)
		switch {
		case err != nil:
			log.Warn("Indexer: idempotency check failed", "err", err)
		case stored > 0 && stored == len(chunks):
			report.Status = IndexUnchanged
			report.Indexed = report.Total
			log.Info("Indexer: content already indexed")
			return report, nil
		case stored > 0:
			// An earlier run stopped short; start over rather than guess
			// which positions are missing.
			if _, err := x.segments.DeleteSegments(ctx, req.OwnerID, req.DocumentName); err != nil {
				return nil, fmt.Errorf("delete incomplete segments: %w", err)
			}
			log.Info("Indexer: replacing incomplete segments", "stored", stored, "total", len(chunks))
		}
	}

	if len(chunks) == 0 {
		report.finish()
		return report, nil
	}

	embedder, err := x.embedders.NewEmbeddingProvider(ctx, req.EmbeddingKey)
	if err != nil {
		report.Failures = append(report.Failures, &core.IndexingError{Document: req.DocumentName, Position: -1, Stage: core.IndexStageEmbedder, Err: err})
		report.finish()
		log.Error("Indexer: embedder unavailable", "err", err)
		return report, nil
	}
	defer embedder.Close()

	dim := x.cfg.Dimensions
	if dim == 0 {
		dim = embedder.Dimensions()
	}

	pending := make([]models.TextChunk, 0, x.cfg.FlushSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := x.segments.InsertSegments(ctx, pending); err != nil {
			report.Failures = append(report.Failures, &core.IndexingError{
				Document: req.DocumentName, Position: -1, Stage: core.IndexStageFlush,
				Err: fmt.Errorf("%d chunks not persisted: %w", len(pending), err),
			})
			log.Error("Indexer: flush failed", "chunks", len(pending), "err", err)
		} else {
			report.Indexed += len(pending)
		}
		pending = pending[:0]
	}

	processed := 0
	for start := 0; start < len(chunks); start += x.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			report.finish()
			return report, err
		}

		end := min(start+x.cfg.BatchSize, len(chunks))
		rows, errs := x.embedBatch(ctx, embedder, dim, chunks[start:end], start)

		if err := ctx.Err(); err != nil {
			report.finish()
			return report, err
		}

		for i := range rows {
			pos := start + i
			if errs[i] != nil {
				report.Failures = append(report.Failures, &core.IndexingError{Document: req.DocumentName, Position: pos, Err: errs[i]})
				log.Warn("Indexer: chunk embedding failed", "position", pos, "err", errs[i])
				continue
			}
			row := rows[i]
			row.ID = uuid.NewString()
			row.OwnerID = req.OwnerID
			row.DocumentName = req.DocumentName
			row.ContentHash = hash
			row.CreatedAt = time.Now().UTC()
			row.Metadata = map[string]string{
				"file_name":   req.DocumentName,
				"chunk_index": strconv.Itoa(pos),
			}
			pending = append(pending, row)
		}

		processed = end
		if req.OnProgress != nil {
			req.OnProgress(processed, len(chunks))
		}

		if len(pending) >= x.cfg.FlushSize {
			flush()
		}
	}
	flush()

	report.finish()
	log.Info("Indexer: document indexed", "status", report.Status, "indexed", report.Indexed, "total", report.Total)
	return report, nil
}

// embedBatch embeds texts concurrently. Positions are fixed before dispatch,
// so rows[i] always belongs to chunk offset+i whatever order calls finish in.
func (x *Indexer) embedBatch(ctx context.Context, embedder core.EmbeddingProvider, dim int, texts []string, offset int) ([]models.TextChunk, []error) {
	rows := make([]models.TextChunk, len(texts))
	errs := make([]error, len(texts))

	var g errgroup.Group
	g.SetLimit(x.cfg.BatchSize)

	for i, text := range texts {
		rows[i] = models.TextChunk{Position: offset + i, Content: text}

		g.Go(func() error {
			if err := x.limiter.Wait(ctx); err != nil {
				errs[i] = err
				return nil
			}

			callCtx, cancel := context.WithTimeout(ctx, x.cfg.EmbedTimeout)
			defer cancel()

			vec, err := embedder.Embed(callCtx, text)
			switch {
			case err != nil:
				errs[i] = fmt.Errorf("embed: %w", err)
			case dim > 0 && len(vec) != dim:
				errs[i] = fmt.Errorf("%w: got %d want %d", core.ErrDimensionMismatch, len(vec), dim)
			default:
				rows[i].Embedding = vec
			}
			return nil
		})
	}
	_ = g.Wait()

	return rows, errs
}
