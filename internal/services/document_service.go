package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

// DocumentService is the owner facing surface of the ingestion pipeline.
type DocumentService struct {
	pipeline *ingestion_engine.Pipeline
	docs     core.DocumentStore
	logger   *slog.Logger
}

func NewDocumentService(pipeline *ingestion_engine.Pipeline, docs core.DocumentStore, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{pipeline: pipeline, docs: docs, logger: logger}
}

// Upload stores and indexes a batch. The report is returned even when the
// batch was cut short by cancellation.
func (s *DocumentService) Upload(ctx context.Context, ownerID, embeddingKey string, files []models.RawFile) (*ingestion_engine.BatchReport, error) {
	return s.UploadWithProgress(ctx, ownerID, embeddingKey, files, nil)
}

// UploadWithProgress is Upload with chunk counts reported while each
// document is indexed inline. onProgress may be nil.
func (s *DocumentService) UploadWithProgress(ctx context.Context, ownerID, embeddingKey string, files []models.RawFile, onProgress func(document string, processed, total int)) (*ingestion_engine.BatchReport, error) {
	if len(files) == 0 {
		return nil, &core.ValidationError{Err: errors.New("no files in upload")}
	}
	report, err := s.pipeline.ProcessBatch(ctx, ingestion_engine.BatchRequest{
		OwnerID:      ownerID,
		EmbeddingKey: embeddingKey,
		Files:        files,
		OnProgress:   onProgress,
	})
	if err != nil {
		return report, err
	}
	s.logger.Info("DocumentService: batch processed",
		"owner", ownerID,
		"files", len(files),
		"stored", len(report.Documents),
		"failed", len(report.Failures),
		"queued", len(report.Queued),
	)
	return report, nil
}

func (s *DocumentService) Get(ctx context.Context, ownerID, name string) (*models.UploadedDocument, error) {
	return s.docs.GetDocument(ctx, ownerID, name)
}

func (s *DocumentService) List(ctx context.Context, ownerID string) ([]models.UploadedDocument, error) {
	docs, err := s.docs.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes the document, its segments and its stored original.
func (s *DocumentService) Delete(ctx context.Context, ownerID, name string) error {
	return s.pipeline.Remove(ctx, ownerID, name)
}

// Reindex returns a nil report when indexing was queued.
func (s *DocumentService) Reindex(ctx context.Context, ownerID, name, embeddingKey string) (*ingestion_engine.IndexReport, error) {
	return s.pipeline.Reindex(ctx, ownerID, name, embeddingKey)
}

func (s *DocumentService) Reextract(ctx context.Context, ownerID, name, embeddingKey string) (*ingestion_engine.BatchReport, error) {
	return s.pipeline.Reextract(ctx, ownerID, name, embeddingKey)
}

// Progress prefers live indexing counters and falls back to the stored
// document status once a document is no longer tracked.
func (s *DocumentService) Progress(ctx context.Context, ownerID, name string) (ingestion_engine.Progress, error) {
	if p, ok := s.pipeline.Progress(ownerID, name); ok {
		return p, nil
	}
	doc, err := s.docs.GetDocument(ctx, ownerID, name)
	if err != nil {
		return ingestion_engine.Progress{}, err
	}
	return ingestion_engine.Progress{Status: doc.Status, UpdatedAt: doc.UpdatedAt}, nil
}
