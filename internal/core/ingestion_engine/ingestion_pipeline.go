package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

// Pipeline turns an upload batch into stored, indexed documents. Files are
// handled one after another and a failing file never stops its siblings.
type Pipeline struct {
	docs      core.DocumentStore
	segments  core.SegmentStore
	extractor core.DocumentExtractor
	ingestor  *DocumentIngestor
	objects   core.ObjectClient
	bucket    string
	async     bool
	cfg       IngestConfig
	logger    *slog.Logger
}

type PipelineOption func(*Pipeline)

// WithObjectStorage keeps the original upload bytes in a bucket.
func WithObjectStorage(obj core.ObjectClient, bucket string) PipelineOption {
	return func(p *Pipeline) {
		p.objects = obj
		p.bucket = bucket
	}
}

// WithBackgroundIndexing hands indexing to the ingestor's job queue instead
// of running it inline. The ingestor must be started.
func WithBackgroundIndexing() PipelineOption {
	return func(p *Pipeline) { p.async = true }
}

func NewPipeline(docs core.DocumentStore, segments core.SegmentStore, extractor core.DocumentExtractor, ingestor *DocumentIngestor, cfg IngestConfig, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		docs:      docs,
		segments:  segments,
		extractor: extractor,
		ingestor:  ingestor,
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type BatchRequest struct {
	OwnerID      string
	EmbeddingKey string
	Files        []models.RawFile
	// OnProgress reports chunk counts while a document is indexed inline.
	OnProgress func(document string, processed, total int)
}

// FileFailure ties an error to the uploaded file name.
type FileFailure struct {
	File string `json:"file"`
	Err  error  `json:"-"`
}

func (f FileFailure) Error() string { return fmt.Sprintf("%s: %v", f.File, f.Err) }

// BatchReport lists what happened to each file of a batch.
//
// Documents: stored documents, including ones whose extraction degraded.
// Failures:  files that were rejected or could not be stored or indexed.
// Warnings:  degraded extractions and non fatal storage problems.
// Indexing:  inline indexing reports, one per stored document.
// Queued:    documents handed to background indexing.
type BatchReport struct {
	Documents []models.UploadedDocument
	Failures  []FileFailure
	Warnings  []FileFailure
	Indexing  []*IndexReport
	Queued    []string
}

// ProcessBatch validates, extracts, stores and indexes every file. Only
// cancellation aborts the batch; the partial report is returned with it.
func (p *Pipeline) ProcessBatch(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	report := &BatchReport{}
	if req.OwnerID == "" {
		return report, errors.New("owner id is required")
	}

	for _, file := range req.Files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		doc, warn, err := p.processFile(ctx, req.OwnerID, file)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return report, cerr
			}
			p.logger.Warn("Pipeline: file rejected", "owner", req.OwnerID, "file", file.Name, "err", err)
			report.Failures = append(report.Failures, FileFailure{File: file.Name, Err: err})
			continue
		}
		if warn != nil {
			report.Warnings = append(report.Warnings, FileFailure{File: doc.Name, Err: warn})
		}

		job := IndexJob{OwnerID: req.OwnerID, DocumentName: doc.Name, EmbeddingKey: req.EmbeddingKey}
		if req.OnProgress != nil {
			name := doc.Name
			job.OnProgress = func(processed, total int) { req.OnProgress(name, processed, total) }
		}
		if p.async {
			if err := p.ingestor.Enqueue(ctx, job); err != nil {
				return report, err
			}
			report.Documents = append(report.Documents, *doc)
			report.Queued = append(report.Queued, doc.Name)
			continue
		}

		ir, err := p.ingestor.ProcessOne(ctx, job)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return report, cerr
			}
			report.Failures = append(report.Failures, FileFailure{File: doc.Name, Err: err})
			doc.Status = models.StatusFailed
			report.Documents = append(report.Documents, *doc)
			continue
		}
		doc.Status = ir.Status.DocumentStatus()
		report.Documents = append(report.Documents, *doc)
		report.Indexing = append(report.Indexing, ir)
	}
	return report, nil
}

// processFile runs one file up to the point where it is stored.
func (p *Pipeline) processFile(ctx context.Context, ownerID string, file models.RawFile) (doc *models.UploadedDocument, warn error, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, warn, err = nil, nil, fmt.Errorf("panic while processing %s: %v", file.Name, r)
		}
	}()

	file.Name = CleanFileName(file.Name)
	if file.SizeBytes <= 0 {
		file.SizeBytes = int64(len(file.Data))
	}
	if err := p.Validate(file); err != nil {
		return nil, nil, err
	}

	out, err := p.extractor.Extract(ctx, file)
	if err != nil {
		return nil, nil, err
	}
	warn = out.Warning
	content := Normalize(out.Text)

	existing, err := p.docs.GetDocument(ctx, ownerID, file.Name)
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return nil, nil, fmt.Errorf("lookup document: %w", err)
	case existing.RawContent == content && existing.Status == models.StatusIndexed:
		p.logger.Info("Pipeline: content unchanged", "owner", ownerID, "document", file.Name)
		return existing, warn, nil
	default:
		if err := p.Remove(ctx, ownerID, file.Name); err != nil {
			return nil, nil, fmt.Errorf("replace document: %w", err)
		}
	}

	now := time.Now().UTC()
	doc = &models.UploadedDocument{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       file.Name,
		MimeType:   file.MimeType,
		SizeBytes:  file.SizeBytes,
		RawContent: content,
		Status:     models.StatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if p.objects != nil {
		key := objectKey(ownerID, doc.ID, file.Name)
		contentType := file.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := p.objects.UploadFile(ctx, p.bucket, key, file.Data, contentType); err != nil {
			p.logger.Warn("Pipeline: original not stored", "document", file.Name, "err", err)
			warn = errors.Join(warn, fmt.Errorf("store original: %w", err))
		} else {
			doc.StorageKey = key
		}
	}

	if err := p.docs.CreateDocument(ctx, doc); err != nil {
		if doc.StorageKey != "" {
			_ = p.objects.DeleteFile(ctx, p.bucket, doc.StorageKey)
		}
		return nil, nil, fmt.Errorf("create document: %w", err)
	}

	p.logger.Info("Pipeline: document stored", "owner", ownerID, "document", doc.Name, "chars", len([]rune(content)))
	return doc, warn, nil
}

// Validate rejects files before any extraction work is done.
func (p *Pipeline) Validate(file models.RawFile) error {
	switch {
	case file.Name == "":
		return &core.ValidationError{File: file.Name, Err: core.ErrInvalidFileName}
	case file.SizeBytes > p.cfg.MaxFileSizeBytes || int64(len(file.Data)) > p.cfg.MaxFileSizeBytes:
		return &core.ValidationError{File: file.Name, Err: fmt.Errorf("%w: %d bytes, limit %d", core.ErrFileTooLarge, max(file.SizeBytes, int64(len(file.Data))), p.cfg.MaxFileSizeBytes)}
	case classify(file.Name, file.MimeType) == kindText && looksBinary(file.Data):
		return &core.ValidationError{File: file.Name, Err: fmt.Errorf("%w: %q", core.ErrUnsupportedType, file.MimeType)}
	}
	return nil
}

// Remove deletes a document with its segments and stored original. Indexing
// of the document is stopped first and stays blocked until Remove returns.
// Segments go before the row so an interrupted delete never leaves vectors
// without a document.
func (p *Pipeline) Remove(ctx context.Context, ownerID, name string) error {
	doc, err := p.docs.GetDocument(ctx, ownerID, name)
	if err != nil {
		return err
	}

	if p.ingestor != nil {
		release, err := p.ingestor.hold(ctx, ownerID, name)
		if err != nil {
			return fmt.Errorf("stop indexing: %w", err)
		}
		defer release()
	}

	n, err := p.segments.DeleteSegments(ctx, ownerID, name)
	if err != nil {
		return fmt.Errorf("delete segments: %w", err)
	}

	if doc.StorageKey != "" && p.objects != nil {
		if err := p.objects.DeleteFile(ctx, p.bucket, doc.StorageKey); err != nil {
			p.logger.Warn("Pipeline: stored original not deleted", "key", doc.StorageKey, "err", err)
		}
	}

	if err := p.docs.DeleteDocument(ctx, ownerID, name); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if p.ingestor != nil {
		p.ingestor.forget(ownerID, name)
	}

	p.logger.Info("Pipeline: document removed", "owner", ownerID, "document", name, "segments", n)
	return nil
}

// Reindex rebuilds a stored document's segments from its saved text.
func (p *Pipeline) Reindex(ctx context.Context, ownerID, name, embeddingKey string) (*IndexReport, error) {
	job := IndexJob{OwnerID: ownerID, DocumentName: name, EmbeddingKey: embeddingKey, Replace: true}
	if p.async {
		if _, err := p.docs.GetDocument(ctx, ownerID, name); err != nil {
			return nil, err
		}
		return nil, p.ingestor.Enqueue(ctx, job)
	}
	return p.ingestor.ProcessOne(ctx, job)
}

// Reextract runs a stored original through the pipeline again, for example
// after extractor improvements.
func (p *Pipeline) Reextract(ctx context.Context, ownerID, name, embeddingKey string) (*BatchReport, error) {
	if p.objects == nil {
		return nil, &core.ConfigurationError{Setting: "BUCKET_NAME", Err: errors.New("object storage is not configured")}
	}
	doc, err := p.docs.GetDocument(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if doc.StorageKey == "" {
		return nil, fmt.Errorf("document %q has no stored original: %w", name, core.ErrNotFound)
	}

	data, err := p.objects.GetFile(ctx, p.bucket, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch original: %w", err)
	}

	return p.ProcessBatch(ctx, BatchRequest{
		OwnerID:      ownerID,
		EmbeddingKey: embeddingKey,
		Files:        []models.RawFile{{Name: doc.Name, MimeType: doc.MimeType, SizeBytes: int64(len(data)), Data: data}},
	})
}

// Progress reports background indexing state for a document.
func (p *Pipeline) Progress(ownerID, name string) (Progress, bool) {
	return p.ingestor.Progress(ownerID, name)
}

// CleanFileName strips directories so names cannot escape their key prefix.
func CleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// objectKey creates a consistent S3 key layout.
func objectKey(ownerID, docID, filename string) string {
	filename = strings.ReplaceAll(strings.TrimSpace(filename), " ", "_")
	return path.Join("users", ownerID, "documents", docID, filename)
}
