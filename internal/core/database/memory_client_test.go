package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

func chunk(owner, doc string, pos int, content string, vec ...float32) models.TextChunk {
	return models.TextChunk{
		ID: owner + doc + content, OwnerID: owner, DocumentName: doc, Position: pos,
		Content: content, Embedding: vec, ContentHash: "h-" + doc,
	}
}

func TestMemoryClient_Documents(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient(2)

	doc := &models.UploadedDocument{ID: "1", OwnerID: "alice", Name: "a.txt", Status: models.StatusUploaded}
	require.NoError(t, m.CreateDocument(ctx, doc))
	assert.ErrorIs(t, m.CreateDocument(ctx, doc), core.ErrDocumentExists)

	// Same name, different owner.
	require.NoError(t, m.CreateDocument(ctx, &models.UploadedDocument{ID: "2", OwnerID: "bob", Name: "a.txt"}))

	got, err := m.GetDocument(ctx, "alice", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)

	require.NoError(t, m.UpdateDocumentStatus(ctx, "alice", "a.txt", models.StatusIndexed))
	got, err = m.GetDocument(ctx, "alice", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, models.StatusIndexed, got.Status)

	list, err := m.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, m.DeleteDocument(ctx, "alice", "a.txt"))
	_, err = m.GetDocument(ctx, "alice", "a.txt")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, m.UpdateDocumentStatus(ctx, "alice", "a.txt", "x"), core.ErrNotFound)

	_, err = m.GetDocument(ctx, "bob", "a.txt")
	assert.NoError(t, err)
}

func TestMemoryClient_SearchIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient(2)

	require.NoError(t, m.InsertSegments(ctx, []models.TextChunk{
		chunk("alice", "a.txt", 0, "same text", 1, 0),
		chunk("bob", "b.txt", 0, "same text", 1, 0),
		chunk("alice", "a.txt", 1, "other", 0, 1),
	}))

	res, err := m.SearchSegments(ctx, "alice", []float32{1, 0}, 0.35, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "same text", res[0].Content)
	assert.Equal(t, "a.txt", res[0].DocumentName)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)

	res, err = m.SearchSegments(ctx, "carol", []float32{1, 0}, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryClient_SearchOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient(2)
	require.NoError(t, m.InsertSegments(ctx, []models.TextChunk{
		chunk("u", "d", 0, "weak", 1, 1),
		chunk("u", "d", 1, "best", 1, 0.1),
		chunk("u", "d", 2, "opposite", -1, 0),
		chunk("u", "d", 3, "good", 1, 0.5),
	}))

	res, err := m.SearchSegments(ctx, "u", []float32{1, 0}, 0.35, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "best", res[0].Content)
	assert.Equal(t, "good", res[1].Content)
}

func TestMemoryClient_DimensionChecks(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient(3)

	err := m.InsertSegments(ctx, []models.TextChunk{chunk("u", "d", 0, "x", 1, 2)})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = m.SearchSegments(ctx, "u", []float32{1}, 0, 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestMemoryClient_DeleteAndCountSegments(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient(2)
	require.NoError(t, m.InsertSegments(ctx, []models.TextChunk{
		chunk("u", "a", 0, "x", 1, 0),
		chunk("u", "a", 1, "y", 1, 0),
		chunk("u", "b", 0, "z", 1, 0),
		chunk("v", "a", 0, "w", 1, 0),
	}))

	count, err := m.CountSegments(ctx, "u", "a", "h-a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = m.CountSegments(ctx, "u", "a", "stale")
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err := m.DeleteSegments(ctx, "u", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err = m.CountSegments(ctx, "u", "a", "h-a")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = m.CountSegments(ctx, "v", "a", "h-a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestBootstrapSQL(t *testing.T) {
	script, err := bootstrapSQL(768)
	require.NoError(t, err)
	assert.Contains(t, script, "vector(768)")
	assert.NotContains(t, script, "{{embedding_dim}}")
	assert.True(t, strings.Contains(script, "UNIQUE (user_id, name)"))
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN("postgres://u:p@localhost:5432/kb", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/kb", dsn)

	_, err = buildDSN("", "")
	assert.Error(t, err)

	_, err = buildDSN("postgres://localhost/kb", "/does/not/exist.pem")
	assert.Error(t, err)

	cert := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	dsn, err = buildDSN("postgres://localhost/kb?application_name=kb", cert)
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-ca")
	assert.Contains(t, dsn, "application_name=kb")
}
