package core

import (
	"context"

	"github.com/markdave123-py/contexta-kb/internal/models"
)

// ExtractedText represents the result of text extraction, potentially with metadata.
// Warning is set when a handler degraded to an inline diagnostic.
type ExtractedText struct {
	Text     string
	Metadata map[string]string
	Warning  error
}

// DocumentExtractor converts an uploaded file into plain text.
type DocumentExtractor interface {
	Extract(ctx context.Context, file models.RawFile) (*ExtractedText, error)
}

// OCREngine recognizes text in an encoded raster image (PNG, JPEG, ...).
type OCREngine interface {
	Recognize(ctx context.Context, image []byte, languages []string) (string, error)
}

// TextFragment is a positioned run of text on a PDF page.
// Y grows upwards, as in PDF user space.
type TextFragment struct {
	X, Y float64
	Text string
}

// PDFEngine opens PDF documents for layout and raster access.
type PDFEngine interface {
	Open(data []byte) (PDFDocument, error)
}

// PDFDocument pages are numbered from 1.
type PDFDocument interface {
	NumPages() int
	PageText(ctx context.Context, page int) ([]TextFragment, error)
	RenderPage(ctx context.Context, page int, scale float64) ([]byte, error)
	Close() error
}
