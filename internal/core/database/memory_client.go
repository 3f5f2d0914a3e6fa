package db

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

// MemoryClient is an in-process DbClient for tests, the CLI and single node
// deployments without Postgres. Search is a linear cosine scan.
type MemoryClient struct {
	mu       sync.RWMutex
	dim      int
	docs     map[string]models.UploadedDocument
	segments []models.TextChunk
}

func NewMemoryClient(dim int) *MemoryClient {
	return &MemoryClient{dim: dim, docs: make(map[string]models.UploadedDocument)}
}

func docKey(ownerID, name string) string { return ownerID + "\x00" + name }

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) CreateDocument(_ context.Context, doc *models.UploadedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(doc.OwnerID, doc.Name)
	if _, ok := m.docs[key]; ok {
		return fmt.Errorf("document %q: %w", doc.Name, core.ErrDocumentExists)
	}
	d := *doc
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	m.docs[key] = d
	return nil
}

func (m *MemoryClient) GetDocument(_ context.Context, ownerID, name string) (*models.UploadedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[docKey(ownerID, name)]
	if !ok {
		return nil, fmt.Errorf("document %q: %w", name, core.ErrNotFound)
	}
	return &d, nil
}

func (m *MemoryClient) ListDocuments(_ context.Context, ownerID string) ([]models.UploadedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.UploadedDocument
	for _, d := range m.docs {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemoryClient) UpdateDocumentStatus(_ context.Context, ownerID, name, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(ownerID, name)
	d, ok := m.docs[key]
	if !ok {
		return fmt.Errorf("document %q: %w", name, core.ErrNotFound)
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	m.docs[key] = d
	return nil
}

func (m *MemoryClient) DeleteDocument(_ context.Context, ownerID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(ownerID, name)
	if _, ok := m.docs[key]; !ok {
		return fmt.Errorf("document %q: %w", name, core.ErrNotFound)
	}
	delete(m.docs, key)
	return nil
}

func (m *MemoryClient) InsertSegments(_ context.Context, chunks []models.TextChunk) error {
	for i := range chunks {
		if len(chunks[i].Embedding) != m.dim {
			return fmt.Errorf("chunk %d: %w: got %d want %d", chunks[i].Position, core.ErrDimensionMismatch, len(chunks[i].Embedding), m.dim)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range chunks {
		ch.Embedding = append([]float32(nil), ch.Embedding...)
		m.segments = append(m.segments, ch)
	}
	return nil
}

func (m *MemoryClient) SearchSegments(_ context.Context, ownerID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredPassage, error) {
	if len(queryVec) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", core.ErrDimensionMismatch, len(queryVec), m.dim)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ScoredPassage
	for _, ch := range m.segments {
		if ch.OwnerID != ownerID {
			continue
		}
		score := Cosine(queryVec, ch.Embedding)
		if score < threshold {
			continue
		}
		out = append(out, models.ScoredPassage{
			Content: ch.Content, Score: score, DocumentName: ch.DocumentName, Position: ch.Position,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryClient) DeleteSegments(_ context.Context, ownerID, documentName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.segments[:0]
	removed := 0
	for _, ch := range m.segments {
		if ch.OwnerID == ownerID && ch.DocumentName == documentName {
			removed++
			continue
		}
		kept = append(kept, ch)
	}
	m.segments = kept
	return removed, nil
}

func (m *MemoryClient) CountSegments(_ context.Context, ownerID, documentName, contentHash string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, ch := range m.segments {
		if ch.OwnerID == ownerID && ch.DocumentName == documentName && ch.ContentHash == contentHash {
			n++
		}
	}
	return n, nil
}

// Cosine returns the cosine similarity of two equal length vectors, 0 when
// either is all zeros.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
