package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/markdave123-py/contexta-kb/internal/core"
	"github.com/markdave123-py/contexta-kb/internal/models"
)

type fakeOCR struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	langs []string
}

func (f *fakeOCR) Recognize(_ context.Context, image []byte, languages []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.langs = languages
	if f.err != nil {
		return "", f.err
	}
	return f.text + " (" + string(image) + ")", nil
}

type fakePDF struct {
	pages   [][]core.TextFragment
	openErr error
	panics  bool
}

func (f *fakePDF) Open(_ []byte) (core.PDFDocument, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakePDFDoc{src: f}, nil
}

type fakePDFDoc struct {
	src    *fakePDF
	closed bool
}

func (d *fakePDFDoc) NumPages() int { return len(d.src.pages) }

func (d *fakePDFDoc) PageText(_ context.Context, page int) ([]core.TextFragment, error) {
	if d.src.panics {
		panic("corrupt xref table")
	}
	return d.src.pages[page-1], nil
}

func (d *fakePDFDoc) RenderPage(_ context.Context, page int, scale float64) ([]byte, error) {
	return []byte(fmt.Sprintf("page-%d@%.1f", page, scale)), nil
}

func (d *fakePDFDoc) Close() error {
	d.closed = true
	return nil
}

// textPage lays lines out top to bottom, 20 units apart.
func textPage(lines ...string) []core.TextFragment {
	out := make([]core.TextFragment, 0, len(lines))
	for i, l := range lines {
		out = append(out, core.TextFragment{X: 10, Y: 800 - float64(i*20), Text: l})
	}
	return out
}

// fakeEmbedder returns a vector derived from the text; texts containing
// failOn are rejected.
type fakeEmbedder struct {
	mu     sync.Mutex
	dim    int
	failOn string
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embedding service unavailable")
	}
	vec := make([]float32, f.dim)
	for i, r := range text {
		vec[i%f.dim] += float32(r % 7)
	}
	vec[0] += 1
	return vec, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) Close() error    { return nil }

type fakeFactory struct {
	emb  *fakeEmbedder
	keys []string
}

func (f *fakeFactory) NewEmbeddingProvider(_ context.Context, apiKey string) (core.EmbeddingProvider, error) {
	f.keys = append(f.keys, apiKey)
	return f.emb, nil
}

// memSegments is a minimal segment store for indexer tests.
type memSegments struct {
	mu        sync.Mutex
	chunks    []models.TextChunk
	inserts   int
	failFirst int
}

func (m *memSegments) InsertSegments(_ context.Context, chunks []models.TextChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failFirst > 0 {
		m.failFirst--
		return errors.New("connection reset")
	}
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memSegments) SearchSegments(context.Context, string, []float32, float64, int) ([]models.ScoredPassage, error) {
	return nil, nil
}

func (m *memSegments) DeleteSegments(_ context.Context, ownerID, documentName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunks[:0]
	n := 0
	for _, c := range m.chunks {
		if c.OwnerID == ownerID && c.DocumentName == documentName {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	return n, nil
}

func (m *memSegments) CountSegments(_ context.Context, ownerID, documentName, hash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.chunks {
		if c.OwnerID == ownerID && c.DocumentName == documentName && c.ContentHash == hash {
			n++
		}
	}
	return n, nil
}

func (m *memSegments) positions() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c.Position)
	}
	sort.Ints(out)
	return out
}
