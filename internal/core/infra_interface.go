package core

import (
	"context"

	"github.com/markdave123-py/contexta-kb/internal/models"
)

// DocumentStore persists uploaded documents. Every call is scoped by owner.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.UploadedDocument) error
	GetDocument(ctx context.Context, ownerID, name string) (*models.UploadedDocument, error)
	ListDocuments(ctx context.Context, ownerID string) ([]models.UploadedDocument, error)
	UpdateDocumentStatus(ctx context.Context, ownerID, name, status string) error
	DeleteDocument(ctx context.Context, ownerID, name string) error
}

// SegmentStore is the append-only chunk store with similarity search.
// It abstracts Postgres/pgvector so higher layers never depend on a specific backend.
type SegmentStore interface {
	InsertSegments(ctx context.Context, chunks []models.TextChunk) error
	SearchSegments(ctx context.Context, ownerID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredPassage, error)
	DeleteSegments(ctx context.Context, ownerID, documentName string) (int, error)
	// CountSegments counts the document's segments stored under contentHash.
	CountSegments(ctx context.Context, ownerID, documentName, contentHash string) (int, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
