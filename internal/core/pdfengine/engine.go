package pdfengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/contexta-kb/internal/core"
)

var (
	_ core.PDFEngine   = Engine{}
	_ core.PDFDocument = (*Document)(nil)
)

// Engine reads positioned text with ledongthuc/pdf and rasterizes pages with
// MuPDF. When the text parser rejects a file, MuPDF's plain text is used.
type Engine struct{}

func (Engine) Open(data []byte) (core.PDFDocument, error) {
	if len(data) == 0 {
		return nil, errors.New("pdf: empty file")
	}
	d := &Document{data: data}

	r, err := openReader(data)
	if err == nil {
		d.reader = r
		d.pages = r.NumPage()
		return d, nil
	}

	fz, ferr := fitz.NewFromMemory(data)
	if ferr != nil {
		return nil, fmt.Errorf("pdf: open: %w", errors.Join(err, ferr))
	}
	d.fz = fz
	d.pages = fz.NumPage()
	return d, nil
}

func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("pdf: parser panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// Document is one opened PDF. Pages are 1-indexed.
type Document struct {
	data   []byte
	reader *pdf.Reader
	pages  int

	mu sync.Mutex
	fz *fitz.Document
}

func (d *Document) NumPages() int { return d.pages }

func (d *Document) PageText(ctx context.Context, page int) ([]core.TextFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("pdf: page %d out of range 1-%d", page, d.pages)
	}
	if d.reader != nil {
		return readerText(d.reader, page)
	}
	return d.fitzText(page)
}

func readerText(r *pdf.Reader, page int) (frags []core.TextFragment, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			frags, err = nil, fmt.Errorf("pdf: page %d: parser panic: %v", page, rec)
		}
	}()

	p := r.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}
	return coalesce(p.Content().Text), nil
}

// coalesce merges per-glyph runs on the same baseline into word fragments.
// A horizontal gap wider than a fraction of the font size starts a new word.
func coalesce(glyphs []pdf.Text) []core.TextFragment {
	var (
		out   []core.TextFragment
		cur   strings.Builder
		start pdf.Text
		end   float64
		open  bool
	)
	flush := func() {
		if open {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, core.TextFragment{X: start.X, Y: start.Y, Text: s})
			}
		}
		cur.Reset()
		open = false
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		if open {
			size := math.Max(start.FontSize, 1)
			sameLine := math.Abs(g.Y-start.Y) < size*0.3
			gap := g.X - end
			if !sameLine || gap > size*0.25 || gap < -size*2 {
				flush()
			}
		}
		if !open {
			start = g
			open = true
		}
		cur.WriteString(g.S)
		end = g.X + g.W
	}
	flush()
	return out
}

func (d *Document) fitzText(page int) ([]core.TextFragment, error) {
	fz, err := d.mupdf()
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	text, err := fz.Text(page - 1)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("pdf: page %d text: %w", page, err)
	}

	lines := strings.Split(text, "\n")
	out := make([]core.TextFragment, 0, len(lines))
	for i, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, core.TextFragment{X: 0, Y: float64(-i * 20), Text: l})
		}
	}
	return out, nil
}

// RenderPage rasterizes a page to PNG at 72*scale DPI.
func (d *Document) RenderPage(ctx context.Context, page int, scale float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("pdf: page %d out of range 1-%d", page, d.pages)
	}
	if scale <= 0 {
		scale = 1
	}
	fz, err := d.mupdf()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	img, err := fz.ImageDPI(page-1, 72*scale)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("pdf: render page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("pdf: encode page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

func (d *Document) mupdf() (*fitz.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fz != nil {
		return d.fz, nil
	}
	fz, err := fitz.NewFromMemory(d.data)
	if err != nil {
		return nil, fmt.Errorf("pdf: mupdf open: %w", err)
	}
	d.fz = fz
	return fz, nil
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fz == nil {
		return nil
	}
	err := d.fz.Close()
	d.fz = nil
	return err
}
