package ingestion_engine

import (
	"fmt"
	"time"
)

// IngestConfig tunes the upload pipeline.
//
// MaxFileSizeBytes: uploads above this size are rejected before extraction.
// QueueSize:        buffered background indexing jobs.
// ProcessTimeout:   deadline for indexing one document.
type IngestConfig struct {
	Extractor        ExtractorConfig
	Index            IndexConfig
	MaxFileSizeBytes int64
	QueueSize        int
	ProcessTimeout   time.Duration
}

func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Extractor:        DefaultExtractorConfig(),
		Index:            DefaultIndexConfig(),
		MaxFileSizeBytes: 10 << 20,
		QueueSize:        64,
		ProcessTimeout:   5 * time.Minute,
	}
}

func (c IngestConfig) Validate() error {
	if err := ValidateChunkConfig(c.Index.MaxChunkSize, c.Index.ChunkOverlap); err != nil {
		return err
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSizeBytes)
	}
	if c.Extractor.MaxPDFPages <= 0 {
		return fmt.Errorf("max PDF pages must be positive, got %d", c.Extractor.MaxPDFPages)
	}
	if c.Extractor.MaxOCRPages < 0 {
		return fmt.Errorf("max OCR pages must not be negative, got %d", c.Extractor.MaxOCRPages)
	}
	return nil
}
