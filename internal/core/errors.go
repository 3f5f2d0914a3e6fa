package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDocumentExists     = errors.New("document already exists")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")
	ErrNoEmbeddingKey     = errors.New("no embedding key")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrFileTooLarge       = errors.New("file exceeds size limit")
	ErrInvalidFileName    = errors.New("invalid file name")
)

// ExtractionError means a file could not be converted to text. The pipeline
// keeps going with a diagnostic in place of the content.
type ExtractionError struct {
	File   string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.File, e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError rejects a file before extraction is attempted.
type ValidationError struct {
	File string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %v", e.File, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Stages of an IndexingError that is not tied to one chunk.
const (
	IndexStageFlush    = "flush"
	IndexStageEmbedder = "embedder"
)

// IndexingError records one chunk that was not persisted. Position is -1
// and Stage names the failing step when the error covers more than a chunk.
type IndexingError struct {
	Document string
	Position int
	Stage    string
	Err      error
}

func (e *IndexingError) Error() string {
	switch {
	case e.Stage != "":
		return fmt.Sprintf("index %s: %s: %v", e.Document, e.Stage, e.Err)
	case e.Position < 0:
		return fmt.Sprintf("index %s: %s: %v", e.Document, IndexStageFlush, e.Err)
	}
	return fmt.Sprintf("index %s: chunk %d: %v", e.Document, e.Position, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

type RetrievalError struct {
	Strategy string
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve (%s): %v", e.Strategy, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid setting, most often an
// absent embedding key.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
