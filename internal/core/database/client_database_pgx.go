package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/contexta-kb/internal/config"
	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

// DatabaseClient stores documents and segments in Postgres with pgvector.
type DatabaseClient struct {
	db  *sql.DB
	dim int
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db, dim: cfg.EmbedDim}, nil
}

// buildDSN appends CA verification parameters when a certificate is configured.
func buildDSN(databaseURL, certPath string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.UploadedDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, name, mime_type, size_bytes, raw_content, status, storage_key, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.OwnerID, doc.Name, doc.MimeType, doc.SizeBytes, doc.RawContent, doc.Status, doc.StorageKey,
		nullTime(doc.CreatedAt), nullTime(doc.UpdatedAt))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("document %q: %w", doc.Name, core.ErrDocumentExists)
	}
	return err
}

func (c *DatabaseClient) GetDocument(ctx context.Context, ownerID, name string) (*models.UploadedDocument, error) {
	const q = `
		SELECT id, user_id, name, mime_type, size_bytes, raw_content, status, storage_key, created_at, updated_at
		FROM documents
		WHERE user_id = $1 AND name = $2
	`
	var d models.UploadedDocument
	err := c.db.QueryRowContext(ctx, q, ownerID, name).Scan(
		&d.ID, &d.OwnerID, &d.Name, &d.MimeType, &d.SizeBytes, &d.RawContent, &d.Status, &d.StorageKey, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, ownerID string) ([]models.UploadedDocument, error) {
	const q = `
		SELECT id, user_id, name, mime_type, size_bytes, raw_content, status, storage_key, created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UploadedDocument
	for rows.Next() {
		var d models.UploadedDocument
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.Name, &d.MimeType, &d.SizeBytes, &d.RawContent, &d.Status, &d.StorageKey, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, ownerID, name, status string) error {
	const q = `
		UPDATE documents
		SET status = $3, updated_at = now()
		WHERE user_id = $1 AND name = $2
	`
	res, err := c.db.ExecContext(ctx, q, ownerID, name, status)
	if err != nil {
		return err
	}
	return expectRow(res, name)
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, ownerID, name string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE user_id = $1 AND name = $2`, ownerID, name)
	if err != nil {
		return err
	}
	return expectRow(res, name)
}

// Segments

// InsertSegments inserts chunks in a single transaction.
func (c *DatabaseClient) InsertSegments(ctx context.Context, chunks []models.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if len(chunks[i].Embedding) != c.dim {
			return fmt.Errorf("chunk %d: %w: got %d want %d", chunks[i].Position, core.ErrDimensionMismatch, len(chunks[i].Embedding), c.dim)
		}
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO file_segments
			(id, user_id, document_name, position, content, embedding, content_hash, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := json.Marshal(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata: %w", err)
		}
		if ch.Metadata == nil {
			meta = []byte("{}")
		}

		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.OwnerID, ch.DocumentName, ch.Position, ch.Content,
			pgvector.NewVector(ch.Embedding), ch.ContentHash, string(meta), nullTime(ch.CreatedAt),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchSegments returns the owner's segments with cosine similarity of at
// least threshold, best first.
func (c *DatabaseClient) SearchSegments(ctx context.Context, ownerID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredPassage, error) {
	if len(queryVec) != c.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", core.ErrDimensionMismatch, len(queryVec), c.dim)
	}
	const q = `
		SELECT content, document_name, position, 1 - (embedding <=> $2) AS similarity
		FROM file_segments
		WHERE user_id = $1 AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2, document_name, position
		LIMIT $4
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID, pgvector.NewVector(queryVec), threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredPassage
	for rows.Next() {
		var p models.ScoredPassage
		if err := rows.Scan(&p.Content, &p.DocumentName, &p.Position, &p.Score); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteSegments(ctx context.Context, ownerID, documentName string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM file_segments WHERE user_id = $1 AND document_name = $2`, ownerID, documentName)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (c *DatabaseClient) CountSegments(ctx context.Context, ownerID, documentName, contentHash string) (int, error) {
	const q = `
		SELECT COUNT(*) FROM file_segments
		WHERE user_id = $1 AND document_name = $2 AND content_hash = $3`
	var n int
	err := c.db.QueryRowContext(ctx, q, ownerID, documentName, contentHash).Scan(&n)
	return n, err
}

func expectRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %q: %w", name, core.ErrNotFound)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
