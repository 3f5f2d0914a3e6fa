package models

import (
	"time"
)

// Document lifecycle states.
const (
	StatusUploaded = "uploaded"
	StatusIndexing = "indexing"
	StatusIndexed  = "indexed"
	StatusPartial  = "partial"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// UploadedDocument is a user-owned source file and its extracted text.
// Name is unique per owner; a re-upload replaces the whole record.
type UploadedDocument struct {
	ID         string    `db:"id" json:"id"`
	OwnerID    string    `db:"user_id" json:"owner_id"`
	Name       string    `db:"name" json:"name"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	RawContent string    `db:"raw_content" json:"-"`
	Status     string    `db:"status" json:"status"`           // uploaded | indexing | indexed | partial | skipped | failed
	StorageKey string    `db:"storage_key" json:"storage_key"` // object key of the original upload, empty if not stored
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TextChunk is one embedded slice of a document.
type TextChunk struct {
	ID           string            `db:"id" json:"id"`
	OwnerID      string            `db:"user_id" json:"owner_id"`
	DocumentName string            `db:"document_name" json:"document_name"`
	Position     int               `db:"position" json:"position"`
	Content      string            `db:"content" json:"content"`
	Embedding    []float32         `db:"embedding" json:"-"` // pgvector column
	ContentHash  string            `db:"content_hash" json:"content_hash"`
	Metadata     map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}

// ScoredPassage is a retrieval hit, most relevant first.
type ScoredPassage struct {
	Content      string  `json:"content"`
	Score        float64 `json:"score"`
	DocumentName string  `json:"document_name,omitempty"`
	Position     int     `json:"position"`
}

// FileContext is the raw text of one document fed to keyword retrieval.
type FileContext struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// RawFile is an upload as received from the caller.
type RawFile struct {
	Name      string
	MimeType  string
	SizeBytes int64
	Data      []byte
}
